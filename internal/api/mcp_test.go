package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/appforge/appforge/internal/orchestrator"
	"github.com/appforge/appforge/internal/provider"
	"github.com/appforge/appforge/internal/store"
)

func newTestMCPDeps(t *testing.T) (MCPDeps, *fakeGenerator, store.Store) {
	t.Helper()
	st := store.NewMemory()
	gen := &fakeGenerator{result: orchestrator.Result{Success: true}}
	return MCPDeps{
		Store:        st,
		Generator:    gen,
		DefaultModel: provider.DefaultModel,
	}, gen, st
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", result.Content[0])
	}
	return tc.Text
}

func TestMCPTool_GenerateApp(t *testing.T) {
	deps, gen, st := newTestMCPDeps(t)
	p, err := st.CreateProject(store.NewProject{Name: "test"})
	if err != nil {
		t.Fatal(err)
	}
	gen.result = orchestrator.Result{
		Success: true,
		Files: []store.ProjectFile{
			{Path: orchestrator.PagePath},
			{Path: orchestrator.APIPath},
			{Path: orchestrator.SchemaPath},
		},
	}
	handler := mcpGenerateApp(deps)

	req := makeCallToolRequest("generate_app", map[string]interface{}{
		"project_id": p.ID,
		"prompt":     "Build a todo application",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	text := toolText(t, result)
	if !strings.Contains(text, "3 files") || !strings.Contains(text, orchestrator.PagePath) {
		t.Errorf("text = %q", text)
	}

	gen.mu.Lock()
	defer gen.mu.Unlock()
	if len(gen.calls) != 1 {
		t.Fatalf("generator called %d times", len(gen.calls))
	}
	if got := gen.calls[0].Models; len(got) != 1 || got[0] != provider.DefaultModel {
		t.Errorf("models = %v, want default", got)
	}
}

func TestMCPTool_GenerateApp_MissingArgs(t *testing.T) {
	deps, gen, _ := newTestMCPDeps(t)
	handler := mcpGenerateApp(deps)

	for name, args := range map[string]map[string]interface{}{
		"no project": {"prompt": "Build a todo application"},
		"no prompt":  {"project_id": "aaaaaaaa-bbbb"},
		"bad prompt": {"project_id": "aaaaaaaa-bbbb", "prompt": "short"},
	} {
		t.Run(name, func(t *testing.T) {
			result, err := handler(context.Background(), makeCallToolRequest("generate_app", args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError {
				t.Error("expected tool error")
			}
		})
	}
	if gen.callCount() != 0 {
		t.Errorf("generator called %d times for invalid args", gen.callCount())
	}
}

func TestMCPTool_GenerateApp_FailureSurfaced(t *testing.T) {
	deps, gen, _ := newTestMCPDeps(t)
	gen.result = orchestrator.Result{Success: false, Error: "all models failed to generate UI code"}
	handler := mcpGenerateApp(deps)

	result, err := handler(context.Background(), makeCallToolRequest("generate_app", map[string]interface{}{
		"project_id": "aaaaaaaa-bbbb",
		"prompt":     "Build a todo application",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if !strings.Contains(toolText(t, result), "all models failed") {
		t.Errorf("text = %q", toolText(t, result))
	}
}

func TestMCPTool_ListProjects(t *testing.T) {
	deps, _, st := newTestMCPDeps(t)
	if _, err := st.CreateProject(store.NewProject{Name: "alpha"}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.CreateProject(store.NewProject{Name: "beta"}); err != nil {
		t.Fatal(err)
	}
	handler := mcpListProjects(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_projects", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var projects []projectSummary
	if err := json.Unmarshal([]byte(toolText(t, result)), &projects); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(projects) != 2 {
		t.Errorf("got %d projects, want 2", len(projects))
	}
}

func TestMCPTool_GetProjectFiles(t *testing.T) {
	deps, _, st := newTestMCPDeps(t)
	p, err := st.CreateProject(store.NewProject{Name: "test"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.CreateFile(p.ID, store.NewFile{
		Path:     orchestrator.PagePath,
		Content:  "export default function Page() {}",
		FileType: store.FileTypePage,
	}); err != nil {
		t.Fatal(err)
	}
	handler := mcpGetProjectFiles(deps)

	result, err := handler(context.Background(), makeCallToolRequest("get_project_files", map[string]interface{}{
		"project_id": p.ID,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var files []fileSummary
	if err := json.Unmarshal([]byte(toolText(t, result)), &files); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(files) != 1 || files[0].Path != orchestrator.PagePath {
		t.Errorf("files = %+v", files)
	}
}
