package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/appforge/appforge/internal/config"
	"github.com/appforge/appforge/internal/orchestrator"
	"github.com/appforge/appforge/internal/store"
)

// --- generate ---

var generateCmd = &cobra.Command{
	Use:   "generate <prompt>",
	Short: "Generate an app from a prompt via the running server",
	Long: `Generate an app from a natural-language prompt.

Examples:
  appforge generate "Build a todo app with categories and due dates"
  appforge generate --project 1b4e28ba-2fa1-11d2-883f-0016d3cca427 "Add a kanban view"
  appforge generate --models openai/gpt-oss-120b,llama-3.3-70b-versatile "Build a blog"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")
		projectID, _ := cmd.Flags().GetString("project")
		name, _ := cmd.Flags().GetString("name")
		modelsStr, _ := cmd.Flags().GetString("models")

		var models []string
		if modelsStr != "" {
			for _, m := range strings.Split(modelsStr, ",") {
				models = append(models, strings.TrimSpace(m))
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := context.Background()

		if projectID == "" {
			printStep("Creating project %q", name)
			resp, err := client.post(ctx, "/api/projects", map[string]any{"name": name})
			if err != nil {
				return err
			}
			var p store.Project
			if err := decodeJSON(resp, &p); err != nil {
				return err
			}
			projectID = p.ID
			printSuccess("Created project %s", p.ID)
		}

		printStep("Generating from prompt")
		req := map[string]any{"projectId": projectID, "prompt": prompt}
		if len(models) > 0 {
			req["models"] = models
		}
		resp, err := client.post(ctx, "/api/generate", req)
		if err != nil {
			return err
		}
		var result orchestrator.Result
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printLogTrail(result.Logs)

		if !result.Success {
			printError("Generation failed: %s", result.Error)
			return fmt.Errorf("generation failed")
		}

		printSuccess("Generated %d files", len(result.Files))
		for _, f := range result.Files {
			fmt.Fprintf(os.Stdout, "%s\t%s\n", f.FileType, f.Path)
		}
		return nil
	},
}

func printLogTrail(logs []store.AILog) {
	for _, l := range logs {
		switch l.Level {
		case store.LevelError:
			printError("[%s] %s", l.Agent, l.Message)
		case store.LevelWarning:
			printWarning("[%s] %s", l.Agent, l.Message)
		default:
			printStep("[%s] %s", l.Agent, l.Message)
		}
	}
}

func init() {
	generateCmd.Flags().String("project", "", "existing project ID to generate into")
	generateCmd.Flags().String("name", "untitled app", "name for a newly created project")
	generateCmd.Flags().String("models", "", "comma-separated model IDs to try in order")
}

// --- projects ---

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(context.Background(), "/api/projects")
		if err != nil {
			return err
		}
		var projects []store.Project
		if err := decodeJSON(resp, &projects); err != nil {
			return err
		}

		if len(projects) == 0 {
			fmt.Fprintln(os.Stdout, "no projects")
			return nil
		}
		for _, p := range projects {
			fmt.Fprintf(os.Stdout, "%s\t%s\t%s\n", p.ID, p.CreatedAt.Format("2006-01-02 15:04"), p.Name)
		}
		return nil
	},
}

var projectsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a project and its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := context.Background()

		resp, err := client.get(ctx, "/api/projects/"+args[0])
		if err != nil {
			return err
		}
		var p store.Project
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		printStatus("ID", "%s", p.ID)
		printStatus("Name", "%s", p.Name)
		if p.Description != "" {
			printStatus("Description", "%s", p.Description)
		}
		printStatus("Created", "%s", p.CreatedAt.Format("2006-01-02 15:04:05"))

		resp, err = client.get(ctx, "/api/projects/"+args[0]+"/files")
		if err != nil {
			return err
		}
		var files []store.ProjectFile
		if err := decodeJSON(resp, &files); err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintf(os.Stdout, "%s\t%s\t%d bytes\n", f.FileType, f.Path, len(f.Content))
		}
		return nil
	},
}

func init() {
	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClient()
		if err != nil {
			return err
		}
		for _, info := range config.ShowAll(cfg) {
			fmt.Fprintf(os.Stdout, "%-28s %-20s (env %s)\n", info.Key, info.Value, info.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key",
	Long:  "Set a configuration key.\n\nValid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
