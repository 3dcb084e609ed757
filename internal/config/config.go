package config

import (
	"fmt"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Provider  ProviderConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type ProviderConfig struct {
	BaseURL        string
	APIKey         string
	DefaultModel   string
	AttemptTimeout string // duration string, e.g. "90s"
}

type RateLimitConfig struct {
	Requests int
	WindowMS int
}

type StorageConfig struct {
	Driver  string // "sqlite" or "memory"
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Provider: ProviderConfig{
			BaseURL:        "https://api.groq.com/openai/v1",
			DefaultModel:   "llama-3.3-70b-versatile",
			AttemptTimeout: "90s",
		},
		RateLimit: RateLimitConfig{
			Requests: 10,
			WindowMS: 60000,
		},
		Storage: StorageConfig{
			Driver:  "sqlite",
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a JSON file at
// $XDG_CONFIG_HOME/appforge/config.json, then applies APPFORGE_*
// environment overrides. A .env file in the working directory is loaded
// into the environment first, so local development keys work without
// exporting anything.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadWith(newFileBackend(configFilePath()))
}

// LoadClient reads configuration without requiring the provider API key.
// Client commands only need the server address.
func LoadClient() (Config, error) {
	_ = godotenv.Load()
	cfg := defaults()
	if err := applyBackend(&cfg, newFileBackend(configFilePath())); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Provider.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: Groq API key. Set it via environment variable GROQ_API_KEY")
	}

	return cfg, nil
}
