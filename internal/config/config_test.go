package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, data map[string]any) Backend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}
	return newFileBackend(path)
}

func clearEnvOverrides(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		if s.env != "" {
			t.Setenv(s.env, "")
		}
	}
}

func TestDefaults(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("GROQ_API_KEY", "test-key")

	cfg, err := loadWith(writeTempConfig(t, map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.Provider.BaseURL != "https://api.groq.com/openai/v1" {
		t.Errorf("Provider.BaseURL = %q", cfg.Provider.BaseURL)
	}
	if cfg.Provider.DefaultModel != "llama-3.3-70b-versatile" {
		t.Errorf("Provider.DefaultModel = %q", cfg.Provider.DefaultModel)
	}
	if cfg.RateLimit.Requests != 10 || cfg.RateLimit.WindowMS != 60000 {
		t.Errorf("RateLimit = %+v, want 10 per 60000ms", cfg.RateLimit)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestFileValues(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("GROQ_API_KEY", "test-key")

	cfg, err := loadWith(writeTempConfig(t, map[string]any{
		"server.port":            8080,
		"provider.default_model": "openai/gpt-oss-120b",
		"rate_limit.requests":    "25",
		"storage.driver":         "memory",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Provider.DefaultModel != "openai/gpt-oss-120b" {
		t.Errorf("Provider.DefaultModel = %q", cfg.Provider.DefaultModel)
	}
	if cfg.RateLimit.Requests != 25 {
		t.Errorf("RateLimit.Requests = %d, want 25 (string coercion)", cfg.RateLimit.Requests)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Storage.Driver = %q, want memory", cfg.Storage.Driver)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("GROQ_API_KEY", "test-key")
	t.Setenv("APPFORGE_SERVER_PORT", "9999")
	t.Setenv("APPFORGE_STORAGE_DRIVER", "memory")

	cfg, err := loadWith(writeTempConfig(t, map[string]any{
		"server.port":    8080,
		"storage.driver": "sqlite",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want env override 9999", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Storage.Driver = %q, want env override memory", cfg.Storage.Driver)
	}
}

func TestMissingAPIKey(t *testing.T) {
	clearEnvOverrides(t)

	_, err := loadWith(writeTempConfig(t, map[string]any{}))
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestSecretNotListedOrSettable(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("GROQ_API_KEY", "super-secret")

	cfg, err := loadWith(writeTempConfig(t, map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, info := range ShowAll(cfg) {
		if info.Key == "provider.api_key" {
			t.Error("secret key listed by ShowAll")
		}
		if info.Value == "super-secret" {
			t.Errorf("secret value leaked under key %s", info.Key)
		}
	}
	for _, k := range ValidKeys() {
		if k == "provider.api_key" {
			t.Error("secret key listed by ValidKeys")
		}
	}
}

func TestBadIntEnvKeepsDefault(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("GROQ_API_KEY", "test-key")
	t.Setenv("APPFORGE_SERVER_PORT", "not-a-number")

	cfg, err := loadWith(writeTempConfig(t, map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want default 4000 on parse failure", cfg.Server.Port)
	}
}
