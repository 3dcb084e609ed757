package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/appforge/appforge/internal/store"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store        store.Store
	Generator    Generator
	DefaultModel string
}

type projectSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type fileSummary struct {
	Path     string `json:"path"`
	FileType string `json:"fileType"`
	Content  string `json:"content"`
}

// NewMCPServer creates an MCP server exposing generation and project
// browsing to agent clients over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"appforge",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("appforge is an AI-assisted web-app generator. It synthesizes React pages, API routes, and schemas from a natural-language prompt."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("generate_app",
			mcp.WithDescription("Generate a web app (page, API route, schema) for a project from a natural-language prompt."),
			mcp.WithString("project_id", mcp.Description("Target project ID"), mcp.Required()),
			mcp.WithString("prompt", mcp.Description("What to build"), mcp.Required()),
			mcp.WithArray("models", mcp.Description("Ordered model IDs to try; defaults to the configured model")),
		),
		mcpGenerateApp(deps),
	)

	s.AddTool(
		mcp.NewTool("list_projects",
			mcp.WithDescription("List all projects with their IDs and names."),
		),
		mcpListProjects(deps),
	)

	s.AddTool(
		mcp.NewTool("get_project_files",
			mcp.WithDescription("Return the generated files of a project."),
			mcp.WithString("project_id", mcp.Description("Project ID"), mcp.Required()),
		),
		mcpGetProjectFiles(deps),
	)

	return s
}

func mcpGenerateApp(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, err := req.RequireString("project_id")
		if err != nil {
			return mcpError("project_id is required"), nil
		}
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return mcpError("prompt is required"), nil
		}
		if err := validatePrompt(prompt); err != nil {
			return mcpError(err.Error()), nil
		}

		models := req.GetStringSlice("models", nil)
		if len(models) == 0 && deps.DefaultModel != "" {
			models = []string{deps.DefaultModel}
		}

		result := deps.Generator.Generate(ctx, projectID, prompt, models)
		if !result.Success {
			return mcpError(fmt.Sprintf("generation failed: %s", result.Error)), nil
		}

		paths := make([]string, 0, len(result.Files))
		for _, f := range result.Files {
			paths = append(paths, f.Path)
		}
		return mcpText(fmt.Sprintf("Generated %d files: %s", len(result.Files), strings.Join(paths, ", "))), nil
	}
}

func mcpListProjects(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projects, err := deps.Store.ListProjects()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list projects: %v", err)), nil
		}
		summaries := make([]projectSummary, 0, len(projects))
		for _, p := range projects {
			summaries = append(summaries, projectSummary{ID: p.ID, Name: p.Name, Description: p.Description})
		}
		b, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal projects: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetProjectFiles(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, err := req.RequireString("project_id")
		if err != nil {
			return mcpError("project_id is required"), nil
		}

		files, err := deps.Store.ListFiles(projectID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list files: %v", err)), nil
		}
		summaries := make([]fileSummary, 0, len(files))
		for _, f := range files {
			summaries = append(summaries, fileSummary{Path: f.Path, FileType: f.FileType, Content: f.Content})
		}
		b, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal files: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
