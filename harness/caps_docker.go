package harness

import (
	"context"
	"fmt"
	"strings"
)

// RegisterDockerCapabilities registers container operations. Like the git
// set, these execute and report the outcome; compose-file paths and command
// text are passed through unchanged.
func RegisterDockerCapabilities(reg *Registry, ws *Workspace) error {
	capabilities := []CapabilityDescriptor{
		{
			Name:        "docker_build",
			Description: "Build a docker image from the workspace",
			Parameters: []Parameter{
				{Name: "tag", Type: "string", Description: "The image tag to build", Required: true},
				{Name: "path", Type: "string", Description: "Build context path (default '.')"},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				command := fmt.Sprintf("docker build -t %s %s",
					shellQuote(stringArg(args, "tag", "")), shellQuote(stringArg(args, "path", ".")))
				return runDockerCommand(ctx, ws, command)
			},
		},
		{
			Name:        "docker_compose_up",
			Description: "Start services with docker compose (detached)",
			Parameters: []Parameter{
				{Name: "file", Type: "string", Description: "Compose file path (default docker-compose.yml)"},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				command := "docker compose up -d --build"
				if file := stringArg(args, "file", ""); file != "" {
					command = fmt.Sprintf("docker compose -f %s up -d --build", shellQuote(file))
				}
				return runDockerCommand(ctx, ws, command)
			},
		},
		{
			Name:        "docker_compose_down",
			Description: "Stop services started with docker compose",
			Parameters: []Parameter{
				{Name: "file", Type: "string", Description: "Compose file path (default docker-compose.yml)"},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				command := "docker compose down"
				if file := stringArg(args, "file", ""); file != "" {
					command = fmt.Sprintf("docker compose -f %s down", shellQuote(file))
				}
				return runDockerCommand(ctx, ws, command)
			},
		},
		{
			Name:        "docker_exec",
			Description: "Run a command inside a running container",
			Parameters: []Parameter{
				{Name: "container", Type: "string", Description: "The container name or ID", Required: true},
				{Name: "command", Type: "string", Description: "The command to run inside the container", Required: true},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				command := fmt.Sprintf("docker exec %s sh -c %s",
					shellQuote(stringArg(args, "container", "")), shellQuote(stringArg(args, "command", "")))
				return runDockerCommand(ctx, ws, command)
			},
		},
		{
			Name:        "docker_logs",
			Description: "Fetch recent logs from a container",
			Parameters: []Parameter{
				{Name: "container", Type: "string", Description: "The container name or ID", Required: true},
				{Name: "tail", Type: "integer", Description: "Number of trailing lines (default 100)"},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				tail := 100
				if v, ok := args["tail"].(float64); ok && v > 0 {
					tail = int(v)
				}
				command := fmt.Sprintf("docker logs --tail %d %s",
					tail, shellQuote(stringArg(args, "container", "")))
				return runDockerCommand(ctx, ws, command)
			},
		},
		{
			Name:        "docker_ps",
			Description: "List running containers",
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				return runDockerCommand(ctx, ws, "docker ps")
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

func runDockerCommand(ctx context.Context, ws *Workspace, command string) (any, error) {
	result, err := ws.Exec(ctx, command, ".")
	if err != nil {
		return nil, err
	}
	return renderExecResult(result), nil
}

// shellQuote single-quotes a value for safe interpolation into a shell
// command line.
func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
