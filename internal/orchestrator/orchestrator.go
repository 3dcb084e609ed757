// Package orchestrator drives multi-model code generation: for each
// artifact it walks an ordered model list until one produces output,
// validates what came back, asks for at most one repair, and persists the
// result as a versioned project.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/appforge/appforge/internal/provider"
	"github.com/appforge/appforge/internal/store"
	"github.com/appforge/appforge/internal/validate"
)

// Generated files land at fixed conventional paths.
const (
	PagePath   = "src/app/page.tsx"
	APIPath    = "src/app/api/route.ts"
	SchemaPath = "src/types/schema.ts"
)

const (
	agentOrchestrator = "orchestrator"
	agentDatabase     = "database-agent"
	agentUI           = "ui-agent"
	agentBackend      = "backend-agent"
	agentQA           = "qa-agent"
)

// CompletionClient is the slice of the provider the orchestrator consumes.
type CompletionClient interface {
	Complete(ctx context.Context, prompt, modelID string, opts provider.Options) (string, error)
}

// Options tunes orchestration behavior.
type Options struct {
	// AttemptTimeout bounds each model attempt so one hung provider cannot
	// stall the whole fallback chain. Zero disables the bound.
	AttemptTimeout time.Duration
	// ParallelStages runs the schema and UI stages concurrently. The API
	// stage still waits for the schema it embeds.
	ParallelStages bool
}

// Orchestrator coordinates generation runs. Safe for concurrent use; each
// run keeps its own log trail tagged with a run ID.
type Orchestrator struct {
	client CompletionClient
	store  store.Store
	logger *slog.Logger
	opts   Options
	now    func() time.Time
}

// New creates an Orchestrator over the given provider client and store.
func New(client CompletionClient, st store.Store, logger *slog.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		client: client,
		store:  st,
		logger: logger,
		opts:   opts,
		now:    time.Now,
	}
}

// Result is what a generation run hands back to the caller. It is always
// populated: failures arrive as Success=false with Error set, never as a
// panic or a Go error.
type Result struct {
	Files   []store.ProjectFile `json:"files"`
	Logs    []store.AILog       `json:"logs"`
	Success bool                `json:"success"`
	Error   string              `json:"error,omitempty"`
}

// Generate runs the full pipeline for projectID: schema, UI, and API
// artifacts with per-stage model fallback in caller order, validation with
// at most one repair per artifact, then persistence of the three files and
// a version-1 snapshot. An empty models list uses the default model.
func (o *Orchestrator) Generate(ctx context.Context, projectID, prompt string, models []string) Result {
	if len(models) == 0 {
		models = []string{provider.DefaultModel}
	}

	r := &run{o: o, id: uuid.NewString()}
	r.log(agentOrchestrator, store.LevelInfo, "starting code generation",
		fmt.Sprintf("prompt: %s, models: %s", prompt, strings.Join(models, ", ")))

	files, err := r.generate(ctx, projectID, prompt, models)
	if err != nil {
		r.log(agentOrchestrator, store.LevelError, "generation failed", err.Error())
		return Result{
			Files:   []store.ProjectFile{},
			Logs:    r.trail(),
			Success: false,
			Error:   err.Error(),
		}
	}

	r.log(agentOrchestrator, store.LevelInfo, "generation completed successfully",
		fmt.Sprintf("generated %d files", len(files)))
	return Result{Files: files, Logs: r.trail(), Success: true}
}

// run is the per-generation state: its own log accumulator plus the run ID
// that tags persisted entries, so concurrent runs never interleave trails.
type run struct {
	o  *Orchestrator
	id string

	mu   sync.Mutex
	logs []store.AILog
}

func (r *run) generate(ctx context.Context, projectID, prompt string, models []string) ([]store.ProjectFile, error) {
	var schema, uiCode string
	if r.o.opts.ParallelStages {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			schema, err = r.stage(gctx, agentDatabase, "database schema", schemaPrompt(prompt), models)
			return err
		})
		g.Go(func() error {
			var err error
			uiCode, err = r.stage(gctx, agentUI, "UI code", uiPrompt(prompt), models)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		var err error
		schema, err = r.stage(ctx, agentDatabase, "database schema", schemaPrompt(prompt), models)
		if err != nil {
			return nil, err
		}
		uiCode, err = r.stage(ctx, agentUI, "UI code", uiPrompt(prompt), models)
		if err != nil {
			return nil, err
		}
	}

	apiCode, err := r.stage(ctx, agentBackend, "API code", apiPrompt(prompt, schema), models)
	if err != nil {
		return nil, err
	}

	// Each artifact is validated and repaired independently.
	uiCode, err = r.repair(ctx, uiCode, models)
	if err != nil {
		return nil, err
	}
	apiCode, err = r.repair(ctx, apiCode, models)
	if err != nil {
		return nil, err
	}

	return r.persist(projectID, prompt, schema, uiCode, apiCode)
}

// stage tries each model in caller order and keeps the first non-empty
// result. Failed attempts are logged as warnings; when the whole chain is
// exhausted the last attempt error is returned, or a generic one when no
// attempt produced an error at all.
func (r *run) stage(ctx context.Context, agent, artifact, prompt string, models []string) (string, error) {
	r.log(agent, store.LevelInfo, fmt.Sprintf("generating %s using %d model(s)", artifact, len(models)), "")

	var lastErr error
	for _, modelID := range models {
		r.log(agent, store.LevelInfo, "attempting generation with model: "+modelID, "")

		text, err := r.complete(ctx, prompt, modelID)
		if err != nil {
			lastErr = err
			r.log(agent, store.LevelWarning, fmt.Sprintf("model %s failed: %v", modelID, err), "")
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if strings.TrimSpace(text) == "" {
			r.log(agent, store.LevelWarning, fmt.Sprintf("model %s returned an empty result", modelID), "")
			continue
		}

		r.log(agent, store.LevelInfo, fmt.Sprintf("successfully generated %s with model: %s", artifact, modelID), "")
		return text, nil
	}

	if lastErr != nil {
		return "", lastErr
	}
	return "", fmt.Errorf("all models failed to generate %s", artifact)
}

func (r *run) complete(ctx context.Context, prompt, modelID string) (string, error) {
	if r.o.opts.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.o.opts.AttemptTimeout)
		defer cancel()
	}
	return r.o.client.Complete(ctx, prompt, modelID, provider.Options{})
}

// repair scans code and, when findings exist, makes a single fix call
// against the first model in the caller's list. No fallback: a failed
// repair fails the run.
func (r *run) repair(ctx context.Context, code string, models []string) (string, error) {
	findings := validate.Scan(code)
	if len(findings) == 0 {
		r.log(agentQA, store.LevelInfo, "code validation passed", "")
		return code, nil
	}

	issues := validate.Messages(findings)
	r.log(agentQA, store.LevelWarning, fmt.Sprintf("found %d issue(s) to fix", len(issues)),
		strings.Join(issues, "; "))

	fixed, err := r.complete(ctx, fixPrompt(code, issues), models[0])
	if err != nil {
		return "", fmt.Errorf("repairing code: %w", err)
	}

	r.log(agentQA, store.LevelInfo, "code fixed successfully", "")
	return fixed, nil
}

func (r *run) persist(projectID, prompt, schema, uiCode, apiCode string) ([]store.ProjectFile, error) {
	entries := []store.NewFile{
		{Path: PagePath, Content: uiCode, FileType: store.FileTypePage},
		{Path: APIPath, Content: apiCode, FileType: store.FileTypeAPI},
		{Path: SchemaPath, Content: schema, FileType: store.FileTypeSchema},
	}

	files := make([]store.ProjectFile, 0, len(entries))
	for _, nf := range entries {
		f, err := r.o.store.CreateFile(projectID, nf)
		if err != nil {
			return nil, fmt.Errorf("saving %s: %w", nf.Path, err)
		}
		files = append(files, f)
	}

	snapshot, err := store.EncodeSnapshot(files, r.o.now())
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	if _, err := r.o.store.CreateVersion(projectID, store.NewVersion{
		VersionNumber: 1,
		Snapshot:      snapshot,
		Description:   "Initial generation from prompt: " + prompt,
	}); err != nil {
		return nil, fmt.Errorf("saving version snapshot: %w", err)
	}

	return files, nil
}

// log records one audit entry: persisted through the store, appended to the
// run trail, and mirrored to the structured logger.
func (r *run) log(agent, level, message, detail string) {
	entry, err := r.o.store.AddLog(store.NewLog{
		RunID:   r.id,
		Agent:   agent,
		Level:   level,
		Message: message,
		Context: detail,
	})
	if err != nil {
		// Keep the in-run trail intact even when persistence fails.
		entry = store.AILog{
			ID:        uuid.NewString(),
			RunID:     r.id,
			Agent:     agent,
			Level:     level,
			Message:   message,
			Context:   detail,
			CreatedAt: r.o.now().UTC(),
		}
		r.o.logger.Warn("persisting audit log", "error", err)
	}

	r.mu.Lock()
	r.logs = append(r.logs, entry)
	r.mu.Unlock()

	attrs := []any{"run_id", r.id, "agent", agent}
	if detail != "" {
		attrs = append(attrs, "context", detail)
	}
	switch level {
	case store.LevelError:
		r.o.logger.Error(message, attrs...)
	case store.LevelWarning:
		r.o.logger.Warn(message, attrs...)
	default:
		r.o.logger.Info(message, attrs...)
	}
}

// trail returns a copy of the run's accumulated log entries.
func (r *run) trail() []store.AILog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]store.AILog, len(r.logs))
	copy(out, r.logs)
	return out
}
