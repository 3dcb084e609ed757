// Package api exposes the generation pipeline over HTTP: a generate
// endpoint gated by a rate limiter, a completion passthrough with optional
// streaming, and CRUD for projects, files, versions, and audit logs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/appforge/appforge/internal/orchestrator"
	"github.com/appforge/appforge/internal/provider"
	"github.com/appforge/appforge/internal/ratelimit"
	"github.com/appforge/appforge/internal/store"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Generator abstracts the orchestrator for the handlers.
type Generator interface {
	Generate(ctx context.Context, projectID, prompt string, models []string) orchestrator.Result
}

// Completer abstracts the provider for the passthrough endpoint.
type Completer interface {
	Complete(ctx context.Context, prompt, modelID string, opts provider.Options) (string, error)
	Stream(ctx context.Context, prompt, modelID string, opts provider.Options, fn func(provider.Chunk) error) error
}

// Deps holds the collaborators the HTTP layer dispatches onto.
type Deps struct {
	Store     store.Store
	Generator Generator
	Completer Completer
	Limiter   *ratelimit.Limiter

	// Rate-limit gate applied to generate requests, keyed by client IP.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	DefaultModel string
}

// NewHandler returns the HTTP router over deps.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", handleGenerate(deps))
		r.Post("/complete", handleComplete(deps))

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", handleListProjects(deps))
			r.Post("/", handleCreateProject(deps))
			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", handleGetProject(deps))
				r.Put("/", handleUpdateProject(deps))
				r.Delete("/", handleDeleteProject(deps))

				r.Get("/files", handleListFiles(deps))
				r.Post("/files", handleCreateFile(deps))
				r.Get("/files/*", handleGetFile(deps))
				r.Put("/files/*", handleUpdateFile(deps))
				r.Delete("/files/*", handleDeleteFile(deps))

				r.Get("/versions", handleListVersions(deps))
				r.Post("/versions", handleCreateVersion(deps))
			})
		})

		r.Get("/logs", handleListLogs(deps))
		r.Delete("/logs", handleClearLogs(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type generateRequest struct {
	ProjectID string   `json:"projectId"`
	Prompt    string   `json:"prompt"`
	Models    []string `json:"models,omitempty"`
}

func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !deps.Limiter.Allow("generate:"+ip, deps.RateLimitRequests, deps.RateLimitWindow) {
			slog.Warn("rate limit exceeded", "client_ip", ip)
			httpError(w, http.StatusTooManyRequests, "rate_limit_error", "rate limit exceeded, please try again later")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if err := validateProjectID(req.ProjectID); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err := validatePrompt(req.Prompt); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if _, err := deps.Store.GetProject(req.ProjectID); err != nil {
			storeError(w, err, "loading project")
			return
		}

		models := req.Models
		if len(models) == 0 && deps.DefaultModel != "" {
			models = []string{deps.DefaultModel}
		}

		// The orchestrator reports failures inside the result; the HTTP
		// status stays 200 either way.
		result := deps.Generator.Generate(r.Context(), req.ProjectID, req.Prompt, models)
		writeJSON(w, http.StatusOK, result)
	}
}

type completeRequest struct {
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"topP,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty"`
}

func handleComplete(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req completeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		model := req.Model
		if model == "" {
			model = deps.DefaultModel
		}
		opts := provider.Options{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			MaxTokens:   req.MaxTokens,
		}

		if req.Stream {
			streamCompletion(w, r, deps, req.Prompt, model, opts)
			return
		}

		text, err := deps.Completer.Complete(r.Context(), req.Prompt, model, opts)
		if err != nil {
			providerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"text": text, "model": model})
	}
}

func streamCompletion(w http.ResponseWriter, r *http.Request, deps Deps, prompt, model string, opts provider.Options) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	err := deps.Completer.Stream(r.Context(), prompt, model, opts, func(c provider.Chunk) error {
		payload, err := json.Marshal(map[string]string{
			"content":      c.Content,
			"finishReason": c.FinishReason,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Headers are gone; surface the failure inside the stream.
		fmt.Fprintf(w, "data: {\"error\":%q}\n\n", err.Error())
		flusher.Flush()
		return
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func handleListLogs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit < 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit %q", raw)
				return
			}
		}
		logs, err := deps.Store.ListLogs(limit)
		if err != nil {
			storeError(w, err, "listing logs")
			return
		}
		writeJSON(w, http.StatusOK, logs)
	}
}

func handleClearLogs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.ClearLogs(); err != nil {
			storeError(w, err, "clearing logs")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// clientIP picks the rate-limit key: proxy headers first, then the
// connection peer.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// storeError maps store failures onto HTTP: ErrNotFound is a 404,
// everything else a 500.
func storeError(w http.ResponseWriter, err error, action string) {
	if errors.Is(err, store.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found_error", "%s: %v", action, err)
		return
	}
	httpError(w, http.StatusInternalServerError, "api_error", "%s: %v", action, err)
}

// providerError maps provider failures onto HTTP status codes by kind.
func providerError(w http.ResponseWriter, err error) {
	switch provider.KindOf(err) {
	case provider.KindInvalidInput:
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case provider.KindRateLimited:
		httpError(w, http.StatusTooManyRequests, "rate_limit_error", "%v", err)
	case provider.KindUnauthorized:
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
	case provider.KindUnavailable, provider.KindUpstream, provider.KindEmptyResponse:
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}
