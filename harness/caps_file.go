package harness

import (
	"context"
	"fmt"
	"strings"
)

// RegisterFileCapabilities registers the file, search, patch, and shell
// operations backed by the workspace.
func RegisterFileCapabilities(reg *Registry, ws *Workspace) error {
	capabilities := []CapabilityDescriptor{
		{
			Name:        "read_file",
			Description: "Read the contents of a file at the specified path",
			Parameters: []Parameter{
				{Name: "path", Type: "string", Description: "The file path to read (relative to workspace root)", Required: true},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				return ws.ReadFile(stringArg(args, "path", ""))
			},
		},
		{
			Name:        "write_file",
			Description: "Write content to a file (creates or overwrites)",
			Parameters: []Parameter{
				{Name: "path", Type: "string", Description: "The file path to write to (relative to workspace root)", Required: true},
				{Name: "content", Type: "string", Description: "The content to write to the file", Required: true},
			},
			SuccessMarkers: []string{"successfully wrote to"},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				path := stringArg(args, "path", "")
				content, _ := args["content"].(string)
				if err := ws.WriteFile(path, content); err != nil {
					return nil, err
				}
				return fmt.Sprintf("Successfully wrote to %s", path), nil
			},
		},
		{
			Name:        "list_dir",
			Description: "List contents of a directory",
			Parameters: []Parameter{
				{Name: "path", Type: "string", Description: "The directory path to list ('.' for the workspace root)", Required: true},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				entries, err := ws.ListDir(stringArg(args, "path", "."))
				if err != nil {
					return nil, err
				}
				if len(entries) == 0 {
					return "(empty directory)", nil
				}
				return strings.Join(entries, "\n"), nil
			},
		},
		{
			Name:        "mkdir",
			Description: "Create a directory (including parent directories)",
			Parameters: []Parameter{
				{Name: "path", Type: "string", Description: "The directory path to create", Required: true},
			},
			SuccessMarkers: []string{"created directory:"},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				path := stringArg(args, "path", "")
				if err := ws.Mkdir(path); err != nil {
					return nil, err
				}
				return fmt.Sprintf("Created directory: %s", path), nil
			},
		},
		{
			Name:        "remove",
			Description: "Remove a file or directory",
			Parameters: []Parameter{
				{Name: "path", Type: "string", Description: "The file or directory path to remove", Required: true},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				path := stringArg(args, "path", "")
				if err := ws.Remove(path); err != nil {
					return nil, err
				}
				return fmt.Sprintf("Removed %s", path), nil
			},
		},
		{
			Name:        "grep",
			Description: "Search for a pattern in files",
			Parameters: []Parameter{
				{Name: "pattern", Type: "string", Description: "The search pattern (supports regex)", Required: true},
				{Name: "path", Type: "string", Description: "The file or directory path to search in", Required: true},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				return ws.Grep(ctx, stringArg(args, "pattern", ""), stringArg(args, "path", "."))
			},
		},
		{
			Name:        "apply_patch",
			Description: "Apply a unified diff patch using git apply",
			Parameters: []Parameter{
				{Name: "patch", Type: "string", Description: "The unified diff patch to apply", Required: true},
			},
			SuccessMarkers: []string{"patch applied successfully"},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				patch, _ := args["patch"].(string)
				result, err := ws.ExecStdin(ctx, patch, "git", "apply")
				if err != nil {
					return nil, err
				}
				if result.ExitCode != 0 {
					return nil, fmt.Errorf("git apply: %s", strings.TrimSpace(result.Stderr))
				}
				return "Patch applied successfully", nil
			},
		},
		{
			Name:        "run_cmd",
			Description: "Run a shell command in the workspace (use with caution)",
			Parameters: []Parameter{
				{Name: "command", Type: "string", Description: "The command to run", Required: true},
				{Name: "cwd", Type: "string", Description: "Working directory relative to workspace root (default '.')"},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				result, err := ws.Exec(ctx, stringArg(args, "command", ""), stringArg(args, "cwd", "."))
				if err != nil {
					return nil, err
				}
				return renderExecResult(result), nil
			},
		},
	}

	for _, c := range capabilities {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// renderExecResult formats a command result for the transcript.
func renderExecResult(result *ExecResult) string {
	if result.TimedOut {
		return "Command timed out"
	}
	output := result.Stdout
	if result.Stderr != "" {
		output += "\nSTDERR:\n" + result.Stderr
	}
	if result.ExitCode != 0 {
		return fmt.Sprintf("Command exited with code %d\n%s", result.ExitCode, output)
	}
	if strings.TrimSpace(output) == "" {
		return fmt.Sprintf("Command completed (exit code: %d)", result.ExitCode)
	}
	return output
}
