package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/appforge/appforge/internal/api"
	"github.com/appforge/appforge/internal/config"
	"github.com/appforge/appforge/internal/orchestrator"
	"github.com/appforge/appforge/internal/provider"
	"github.com/appforge/appforge/internal/ratelimit"
	"github.com/appforge/appforge/internal/store"
)

const defaultAttemptTimeout = 90 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the appforge server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		parallel, _ := cmd.Flags().GetBool("parallel-stages")
		return runServer(parallel)
	},
}

func init() {
	serveCmd.Flags().Bool("parallel-stages", false, "generate schema and UI concurrently")
}

func openStore(cfg config.Config) (store.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite", "":
		return store.Open(cfg.Storage.DataDir)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func runServer(parallelStages bool) error {
	fmt.Fprintf(os.Stderr, "appforge version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	attemptTimeout, err := time.ParseDuration(cfg.Provider.AttemptTimeout)
	if err != nil {
		slog.Warn("invalid attempt timeout, using default",
			"value", cfg.Provider.AttemptTimeout, "default", defaultAttemptTimeout, "error", err)
		attemptTimeout = defaultAttemptTimeout
	}

	client := provider.NewClientWithBaseURL(cfg.Provider.APIKey, cfg.Provider.BaseURL)
	orch := orchestrator.New(client, st, slog.Default(), orchestrator.Options{
		AttemptTimeout: attemptTimeout,
		ParallelStages: parallelStages,
	})

	handler := api.NewHandler(api.Deps{
		Store:             st,
		Generator:         orch,
		Completer:         client,
		Limiter:           ratelimit.New(),
		RateLimitRequests: cfg.RateLimit.Requests,
		RateLimitWindow:   time.Duration(cfg.RateLimit.WindowMS) * time.Millisecond,
		DefaultModel:      cfg.Provider.DefaultModel,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server over stdio, alongside HTTP.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:        st,
		Generator:    orch,
		DefaultModel: cfg.Provider.DefaultModel,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "appforge listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
