// Command ralph drives a locally hosted Ollama model through an autonomous
// build loop: it reads a system prompt and a task list from the workspace,
// runs bounded agent sessions against the model, and repeats until every
// story passes or the iteration budget runs out.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JamesMcMurran/ralph-ollama/backend"
	"github.com/JamesMcMurran/ralph-ollama/config"
	"github.com/JamesMcMurran/ralph-ollama/harness"
	"github.com/JamesMcMurran/ralph-ollama/tasklist"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("ralph", flag.ContinueOnError)
	var (
		configPath    = fs.String("config", "", "path to config file (default ralph.yaml if present)")
		model         = fs.String("model", "", "ollama model name (overrides config)")
		host          = fs.String("host", "", "ollama endpoint (overrides config)")
		workspace     = fs.String("workspace", "", "working-tree root (default current directory)")
		maxSteps      = fs.Int("max-steps", 0, "max completion steps per session (overrides config)")
		maxIterations = fs.Int("max-iterations", 0, "max sessions before giving up (overrides config)")
		health        = fs.Bool("health", false, "check backend health and exit")
	)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ralph: %v\n", err)
		return 1
	}
	if *model != "" {
		cfg.Model = *model
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *workspace != "" {
		cfg.Workspace = *workspace
	}
	if *maxSteps > 0 {
		cfg.MaxSteps = *maxSteps
	}
	if *maxIterations > 0 {
		cfg.MaxIterations = *maxIterations
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *health {
		return runHealthCheck(ctx, cfg)
	}

	adapter, err := backend.NewOllamaAdapter(cfg.Host, cfg.Model,
		backend.WithTemperature(cfg.Temperature))
	if err != nil {
		logger.Error("backend setup failed", "error", err)
		return 1
	}
	client := backend.NewClient(adapter, backend.WithLogger(logger))

	ws, err := harness.NewWorkspace(cfg.Workspace, harness.WorkspaceConfig{
		Hidden:          cfg.HiddenPaths,
		ReadOnly:        cfg.ReadOnlyPaths,
		BlockedCommands: cfg.BlockedCommands,
	})
	if err != nil {
		logger.Error("workspace setup failed", "error", err)
		return 1
	}
	store := tasklist.NewStore(ws.Root())

	registry := harness.NewRegistry()
	for _, register := range []func() error{
		func() error { return harness.RegisterFileCapabilities(registry, ws) },
		func() error { return harness.RegisterGitCapabilities(registry, ws) },
		func() error { return harness.RegisterDockerCapabilities(registry, ws) },
		func() error { return harness.RegisterTaskCapabilities(registry, store) },
	} {
		if err := register(); err != nil {
			logger.Error("capability registration failed", "error", err)
			return 1
		}
	}

	instructions, err := loadInstructions(cfg, registry)
	if err != nil {
		logger.Error("loading system prompt failed", "error", err)
		return 1
	}

	sessionConfig := harness.SessionConfig{
		Model:          cfg.Model,
		MaxSteps:       cfg.MaxSteps,
		WindowCapacity: cfg.RecentWindow,
		Temperature:    &cfg.Temperature,
		TerminalMarker: cfg.TerminalMarker,
	}

	logger.Info("starting run",
		"model", cfg.Model,
		"host", cfg.Host,
		"workspace", ws.Root(),
		"max_steps", cfg.MaxSteps,
		"max_iterations", cfg.MaxIterations)

	for iteration := 1; iteration <= cfg.MaxIterations; iteration++ {
		// Each iteration gets a fresh session: the model sees only the
		// workspace state, never a previous session's transcript.
		session := harness.NewSession(client, registry, instructions, &sessionConfig, logger)
		done := make(chan struct{})
		go func() {
			drainEvents(session.Events(), logger)
			close(done)
		}()

		result := session.Run(ctx)
		<-done

		switch result.Status {
		case harness.HaltCompleted:
			logger.Info("run complete",
				"iteration", iteration,
				"steps", result.Steps,
				"suppressed", result.Suppressed)
			return 0
		case harness.HaltInternalError:
			if ctx.Err() != nil {
				logger.Info("interrupted", "iteration", iteration)
			} else {
				logger.Error("session failed", "iteration", iteration, "error", result.Err)
			}
			return 1
		case harness.HaltStepLimit:
			if allPassing(store, logger) {
				logger.Info("all stories passing", "iteration", iteration)
				return 0
			}
			logger.Warn("step limit reached, starting next iteration",
				"iteration", iteration,
				"steps", result.Steps,
				"stalled", result.Stalled)
		}
	}

	logger.Error("iteration budget exhausted", "max_iterations", cfg.MaxIterations)
	return 1
}

// loadInstructions reads the system prompt document and appends the tool
// listing so the model knows what it can call.
func loadInstructions(cfg config.Config, registry *harness.Registry) (string, error) {
	data, err := os.ReadFile(cfg.PromptPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", cfg.PromptPath, err)
	}
	var b strings.Builder
	b.Write(data)
	b.WriteString("\n\n")
	b.WriteString(harness.DescribeCapabilities(registry))
	b.WriteString("\n\nWhen every story passes, reply with exactly: ")
	b.WriteString(cfg.TerminalMarker)
	b.WriteString("\n")
	return b.String(), nil
}

func runHealthCheck(ctx context.Context, cfg config.Config) int {
	report, err := backend.HealthCheck(ctx, cfg.Host, cfg.Model)
	fmt.Printf("host reachable:  %v\n", report.HostReachable)
	fmt.Printf("model available: %v\n", report.ModelAvailable)
	fmt.Printf("chat works:      %v\n", report.ChatWorks)
	if len(report.AvailableModels) > 0 {
		fmt.Printf("pulled models:   %s\n", strings.Join(report.AvailableModels, ", "))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ralph: %v\n", err)
		return 1
	}
	return 0
}

func allPassing(store *tasklist.Store, logger *slog.Logger) bool {
	done, err := store.AllPassing()
	if err != nil {
		logger.Warn("task list check failed", "error", err)
		return false
	}
	return done
}

func drainEvents(events <-chan harness.SessionEvent, logger *slog.Logger) {
	for event := range events {
		logger.Debug("session event",
			"kind", string(event.Kind),
			"session_id", event.SessionID,
			"data", event.Data)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
