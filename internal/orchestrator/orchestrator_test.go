package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/appforge/appforge/internal/provider"
	"github.com/appforge/appforge/internal/store"
)

type fakeCall struct {
	Prompt  string
	ModelID string
}

type fakeClient struct {
	mu      sync.Mutex
	calls   []fakeCall
	handler func(prompt, modelID string) (string, error)
}

func (f *fakeClient) Complete(ctx context.Context, prompt, modelID string, opts provider.Options) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{Prompt: prompt, ModelID: modelID})
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.handler(prompt, modelID)
}

// countPrompts returns how many recorded calls carry substr in the prompt.
func (f *fakeClient) countPrompts(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, c := range f.calls {
		if strings.Contains(c.Prompt, substr) {
			n++
		}
	}
	return n
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const fixMarker = "Fix the following issues"

func cleanCode(prompt, modelID string) (string, error) {
	return "export default function Page() { return null }", nil
}

func newTestOrchestrator(t *testing.T, client CompletionClient, opts Options) (*Orchestrator, store.Store, string) {
	t.Helper()
	st := store.NewMemory()
	p, err := st.CreateProject(store.NewProject{Name: "test project"})
	if err != nil {
		t.Fatalf("creating project: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(client, st, logger, opts), st, p.ID
}

func countLevel(logs []store.AILog, level string) int {
	var n int
	for _, l := range logs {
		if l.Level == level {
			n++
		}
	}
	return n
}

func TestGenerateSuccess(t *testing.T) {
	client := &fakeClient{handler: cleanCode}
	o, st, projectID := newTestOrchestrator(t, client, Options{})

	res := o.Generate(context.Background(), projectID, "Build a todo app", []string{"model-A"})
	if !res.Success {
		t.Fatalf("Success = false, error = %q", res.Error)
	}
	if len(res.Files) != 3 {
		t.Fatalf("got %d files, want 3", len(res.Files))
	}

	wantPaths := map[string]string{
		PagePath:   store.FileTypePage,
		APIPath:    store.FileTypeAPI,
		SchemaPath: store.FileTypeSchema,
	}
	for _, f := range res.Files {
		wantType, ok := wantPaths[f.Path]
		if !ok {
			t.Errorf("unexpected file path %q", f.Path)
			continue
		}
		if f.FileType != wantType {
			t.Errorf("file %s type = %q, want %q", f.Path, f.FileType, wantType)
		}
		if f.ProjectID != projectID {
			t.Errorf("file %s projectID = %q", f.Path, f.ProjectID)
		}
		delete(wantPaths, f.Path)
	}
	if len(wantPaths) != 0 {
		t.Errorf("missing files: %v", wantPaths)
	}

	// Clean output means no repair calls: schema, UI, API only.
	if got := client.callCount(); got != 3 {
		t.Errorf("call count = %d, want 3", got)
	}
	if got := client.countPrompts(fixMarker); got != 0 {
		t.Errorf("fix calls = %d, want 0", got)
	}

	versions, err := st.ListVersions(projectID)
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 1 {
		t.Fatalf("got %d versions, want 1", len(versions))
	}
	if versions[0].VersionNumber != 1 {
		t.Errorf("versionNumber = %d, want 1", versions[0].VersionNumber)
	}
	snap, err := store.DecodeSnapshot(versions[0].Snapshot)
	if err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if len(snap.Files) != 3 {
		t.Errorf("snapshot has %d files, want 3", len(snap.Files))
	}
	if snap.GeneratedAt.IsZero() {
		t.Error("snapshot GeneratedAt is zero")
	}
}

// Fallback scenario: the first model always fails, the second succeeds for
// every stage. The trail must carry a warning per failed attempt and a
// success per stage.
func TestGenerateFallsBackInOrder(t *testing.T) {
	client := &fakeClient{handler: func(prompt, modelID string) (string, error) {
		if modelID == "model-A" {
			return "", &provider.Error{Kind: provider.KindUnavailable, StatusCode: 503, Message: "upstream service unavailable"}
		}
		return cleanCode(prompt, modelID)
	}}
	o, _, projectID := newTestOrchestrator(t, client, Options{})

	res := o.Generate(context.Background(), projectID, "Build a todo app", []string{"model-A", "model-B"})
	if !res.Success {
		t.Fatalf("Success = false, error = %q", res.Error)
	}
	if len(res.Files) != 3 {
		t.Fatalf("got %d files, want 3", len(res.Files))
	}

	var warnings, successes int
	for _, l := range res.Logs {
		if l.Level == store.LevelWarning && strings.Contains(l.Message, "model-A") {
			warnings++
		}
		if strings.Contains(l.Message, "successfully generated") && strings.Contains(l.Message, "model-B") {
			successes++
		}
	}
	if warnings != 3 {
		t.Errorf("warnings mentioning model-A = %d, want 3", warnings)
	}
	if successes != 3 {
		t.Errorf("successes mentioning model-B = %d, want 3", successes)
	}

	// Both models attempted for each of the three stages.
	if got := client.callCount(); got != 6 {
		t.Errorf("call count = %d, want 6", got)
	}
}

func TestGenerateAllModelsFail(t *testing.T) {
	client := &fakeClient{handler: func(prompt, modelID string) (string, error) {
		return "", fmt.Errorf("model %s exploded", modelID)
	}}
	o, st, projectID := newTestOrchestrator(t, client, Options{})

	res := o.Generate(context.Background(), projectID, "Build a todo app", []string{"model-A", "model-B"})
	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if res.Error == "" {
		t.Error("Error is empty")
	}
	if !strings.Contains(res.Error, "model-B") {
		t.Errorf("Error = %q, want the last attempt's error", res.Error)
	}
	if len(res.Files) != 0 {
		t.Errorf("got %d files, want 0", len(res.Files))
	}
	if countLevel(res.Logs, store.LevelError) == 0 {
		t.Error("trail has no error entry")
	}

	files, err := st.ListFiles(projectID)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("store has %d files after a failed run, want 0", len(files))
	}
}

func TestGenerateEmptyResultFallsThrough(t *testing.T) {
	client := &fakeClient{handler: func(prompt, modelID string) (string, error) {
		if modelID == "model-A" {
			return "   \n", nil
		}
		return cleanCode(prompt, modelID)
	}}
	o, _, projectID := newTestOrchestrator(t, client, Options{})

	res := o.Generate(context.Background(), projectID, "Build a todo app", []string{"model-A", "model-B"})
	if !res.Success {
		t.Fatalf("Success = false, error = %q", res.Error)
	}
}

func TestGenerateAllEmptyIsGenericError(t *testing.T) {
	client := &fakeClient{handler: func(prompt, modelID string) (string, error) {
		return "", nil
	}}
	o, _, projectID := newTestOrchestrator(t, client, Options{})

	res := o.Generate(context.Background(), projectID, "Build a todo app", []string{"model-A"})
	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if !strings.Contains(res.Error, "all models failed") {
		t.Errorf("Error = %q, want generic all-models-failed", res.Error)
	}
}

// A TODO in the UI artifact triggers exactly one repair call for it and
// none for a clean API artifact.
func TestRepairOnlyDirtyArtifact(t *testing.T) {
	const dirtyUI = "export default function Page() {\n// TODO: finish\nreturn null }"
	const fixedUI = "export default function Page() { return <div>done</div> }"

	client := &fakeClient{handler: func(prompt, modelID string) (string, error) {
		switch {
		case strings.Contains(prompt, fixMarker):
			return fixedUI, nil
		case strings.Contains(prompt, "React page component"):
			return dirtyUI, nil
		default:
			return cleanCode(prompt, modelID)
		}
	}}
	o, st, projectID := newTestOrchestrator(t, client, Options{})

	res := o.Generate(context.Background(), projectID, "Build a todo app", []string{"model-A", "model-B"})
	if !res.Success {
		t.Fatalf("Success = false, error = %q", res.Error)
	}

	if got := client.countPrompts(fixMarker); got != 1 {
		t.Fatalf("fix calls = %d, want exactly 1", got)
	}

	page, err := st.GetFile(projectID, PagePath)
	if err != nil {
		t.Fatal(err)
	}
	if page.Content != fixedUI {
		t.Errorf("page content = %q, want the repaired output", page.Content)
	}
	api, err := st.GetFile(projectID, APIPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(api.Content, "TODO") {
		t.Error("API artifact should not have needed repair")
	}
}

func TestRepairFailureFailsRun(t *testing.T) {
	client := &fakeClient{handler: func(prompt, modelID string) (string, error) {
		if strings.Contains(prompt, fixMarker) {
			return "", &provider.Error{Kind: provider.KindRateLimited, StatusCode: 429, Message: "rate limit exceeded"}
		}
		return "// FIXME broken everywhere", nil
	}}
	o, _, projectID := newTestOrchestrator(t, client, Options{})

	res := o.Generate(context.Background(), projectID, "Build a todo app", []string{"model-A"})
	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if !strings.Contains(res.Error, "repairing code") {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestGenerateDefaultsModelList(t *testing.T) {
	client := &fakeClient{handler: cleanCode}
	o, _, projectID := newTestOrchestrator(t, client, Options{})

	res := o.Generate(context.Background(), projectID, "Build a todo app", nil)
	if !res.Success {
		t.Fatalf("Success = false, error = %q", res.Error)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	for _, c := range client.calls {
		if c.ModelID != provider.DefaultModel {
			t.Errorf("modelID = %q, want default %q", c.ModelID, provider.DefaultModel)
		}
	}
}

func TestGenerateMissingProject(t *testing.T) {
	client := &fakeClient{handler: cleanCode}
	o, _, _ := newTestOrchestrator(t, client, Options{})

	res := o.Generate(context.Background(), "no-such-project", "Build a todo app", []string{"model-A"})
	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if res.Error == "" {
		t.Error("Error is empty")
	}
}

func TestAttemptTimeoutFallsThrough(t *testing.T) {
	client := &fakeClient{handler: func(prompt, modelID string) (string, error) {
		if modelID == "slow-model" {
			time.Sleep(200 * time.Millisecond)
			return "", context.DeadlineExceeded
		}
		return cleanCode(prompt, modelID)
	}}
	o, _, projectID := newTestOrchestrator(t, client, Options{AttemptTimeout: 10 * time.Millisecond})

	res := o.Generate(context.Background(), projectID, "Build a todo app", []string{"slow-model", "fast-model"})
	if !res.Success {
		t.Fatalf("Success = false, error = %q", res.Error)
	}
}

func TestParallelStages(t *testing.T) {
	client := &fakeClient{handler: cleanCode}
	o, _, projectID := newTestOrchestrator(t, client, Options{ParallelStages: true})

	res := o.Generate(context.Background(), projectID, "Build a todo app", []string{"model-A"})
	if !res.Success {
		t.Fatalf("Success = false, error = %q", res.Error)
	}
	if len(res.Files) != 3 {
		t.Errorf("got %d files, want 3", len(res.Files))
	}
	if got := client.callCount(); got != 3 {
		t.Errorf("call count = %d, want 3", got)
	}
}

// Concurrent runs keep separate trails: every entry in a result belongs to
// that run, and the two runs carry distinct run IDs.
func TestConcurrentRunsDoNotShareTrails(t *testing.T) {
	client := &fakeClient{handler: cleanCode}
	o, _, projectID := newTestOrchestrator(t, client, Options{})

	var wg sync.WaitGroup
	results := make([]Result, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = o.Generate(context.Background(), projectID, "Build a todo app", []string{"model-A"})
		}(i)
	}
	wg.Wait()

	ids := make(map[string]bool)
	for _, res := range results {
		if !res.Success {
			t.Fatalf("Success = false, error = %q", res.Error)
		}
		if len(res.Logs) == 0 {
			t.Fatal("empty trail")
		}
		runID := res.Logs[0].RunID
		if runID == "" {
			t.Fatal("empty run ID")
		}
		for _, l := range res.Logs {
			if l.RunID != runID {
				t.Errorf("trail mixes run IDs: %q and %q", runID, l.RunID)
			}
		}
		ids[runID] = true
	}
	if len(ids) != 2 {
		t.Errorf("got %d distinct run IDs, want 2", len(ids))
	}
}

func TestGenerateCancelledContext(t *testing.T) {
	client := &fakeClient{handler: cleanCode}
	o, _, projectID := newTestOrchestrator(t, client, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := o.Generate(ctx, projectID, "Build a todo app", []string{"model-A", "model-B"})
	if res.Success {
		t.Fatal("Success = true, want false")
	}
	// A cancelled run stops at the first attempt instead of walking the
	// rest of the chain.
	if got := client.callCount(); got != 1 {
		t.Errorf("call count = %d, want 1", got)
	}
}
