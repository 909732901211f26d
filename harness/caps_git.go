package harness

import (
	"context"
	"fmt"
	"strings"
)

// RegisterGitCapabilities registers version-control operations: status,
// diff, branch management, and commit. Command internals stay in git; these
// only execute and report the outcome.
func RegisterGitCapabilities(reg *Registry, ws *Workspace) error {
	capabilities := []CapabilityDescriptor{
		{
			Name:        "git_status",
			Description: "Get the current git status",
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				result, err := ws.Git(ctx, "status", "--porcelain")
				if err != nil {
					return nil, err
				}
				if result.ExitCode != 0 {
					return nil, fmt.Errorf("git status: %s", strings.TrimSpace(result.Stderr))
				}
				if strings.TrimSpace(result.Stdout) == "" {
					return "Working tree clean", nil
				}
				return result.Stdout, nil
			},
		},
		{
			Name:        "git_diff",
			Description: "Get the git diff of current changes",
			Parameters: []Parameter{
				{Name: "cached", Type: "boolean", Description: "Show staged changes (--cached)"},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				gitArgs := []string{"diff"}
				cached := boolArg(args, "cached")
				if cached {
					gitArgs = append(gitArgs, "--cached")
				}
				result, err := ws.Git(ctx, gitArgs...)
				if err != nil {
					return nil, err
				}
				if result.ExitCode != 0 {
					return nil, fmt.Errorf("git diff: %s", strings.TrimSpace(result.Stderr))
				}
				if strings.TrimSpace(result.Stdout) == "" {
					if cached {
						return "No staged changes", nil
					}
					return "No changes", nil
				}
				return result.Stdout, nil
			},
		},
		{
			Name:        "git_current_branch",
			Description: "Get the current git branch name",
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				result, err := ws.Git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
				if err != nil {
					return nil, err
				}
				if result.ExitCode != 0 {
					return nil, fmt.Errorf("git rev-parse: %s", strings.TrimSpace(result.Stderr))
				}
				return strings.TrimSpace(result.Stdout), nil
			},
		},
		{
			Name:        "git_checkout",
			Description: "Checkout a git branch",
			Parameters: []Parameter{
				{Name: "branch", Type: "string", Description: "The branch name to checkout", Required: true},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				branch := stringArg(args, "branch", "")
				result, err := ws.Git(ctx, "checkout", branch)
				if err != nil {
					return nil, err
				}
				if result.ExitCode != 0 {
					return nil, fmt.Errorf("git checkout: %s", strings.TrimSpace(result.Stderr))
				}
				return fmt.Sprintf("Checked out branch: %s", branch), nil
			},
		},
		{
			Name:        "git_create_branch",
			Description: "Create and checkout a new git branch",
			Parameters: []Parameter{
				{Name: "branch", Type: "string", Description: "The new branch name", Required: true},
				{Name: "from_ref", Type: "string", Description: "The ref to branch from (default: main)"},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				branch := stringArg(args, "branch", "")
				fromRef := stringArg(args, "from_ref", "main")
				result, err := ws.Git(ctx, "checkout", fromRef)
				if err != nil {
					return nil, err
				}
				if result.ExitCode != 0 {
					return nil, fmt.Errorf("git checkout %s: %s", fromRef, strings.TrimSpace(result.Stderr))
				}
				result, err = ws.Git(ctx, "checkout", "-b", branch)
				if err != nil {
					return nil, err
				}
				if result.ExitCode != 0 {
					return nil, fmt.Errorf("git checkout -b: %s", strings.TrimSpace(result.Stderr))
				}
				return fmt.Sprintf("Created and checked out new branch: %s (from %s)", branch, fromRef), nil
			},
		},
		{
			Name:        "git_commit_all",
			Description: "Stage all changes and commit with a message",
			Parameters: []Parameter{
				{Name: "message", Type: "string", Description: "The commit message", Required: true},
			},
			SuccessMarkers: []string{"committed:"},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				message := stringArg(args, "message", "")
				result, err := ws.Git(ctx, "add", "-A")
				if err != nil {
					return nil, err
				}
				if result.ExitCode != 0 {
					return nil, fmt.Errorf("git add: %s", strings.TrimSpace(result.Stderr))
				}
				result, err = ws.Git(ctx, "commit", "-m", message)
				if err != nil {
					return nil, err
				}
				if result.ExitCode != 0 {
					if strings.Contains(strings.ToLower(result.Stdout), "nothing to commit") {
						return "No changes to commit", nil
					}
					return nil, fmt.Errorf("git commit: %s", strings.TrimSpace(result.Stderr))
				}
				return fmt.Sprintf("Committed: %s", message), nil
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
