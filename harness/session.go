package harness

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/JamesMcMurran/ralph-ollama/backend"
)

// State is the orchestrator's explicit lifecycle state. Unrecognized model
// output always maps to a defined transition; there is no token-driven
// fallthrough.
type State string

const (
	StateStarting           State = "starting"
	StateAwaitingCompletion State = "awaiting_completion"
	StateExtractingCalls    State = "extracting_calls"
	StateExecuting          State = "executing"
	StateHalted             State = "halted"
)

// HaltReason explains why a session reached StateHalted.
type HaltReason string

const (
	// HaltCompleted means the model emitted the terminal marker with no
	// remaining actionable calls.
	HaltCompleted HaltReason = "completed"
	// HaltStepLimit means the configured step budget was exhausted. This is
	// the only condition that forcibly halts a session.
	HaltStepLimit HaltReason = "step-limit"
	// HaltInternalError means the backend round-trip failed unrecoverably.
	HaltInternalError HaltReason = "internal-error"
)

// Session defaults.
const (
	DefaultMaxSteps       = 50
	DefaultTemperature    = 0.7
	DefaultTerminalMarker = "ALL STORIES COMPLETE"
	DefaultKickoffMessage = "Begin. Follow the system instructions."
)

// SessionConfig holds configuration for one bounded session.
type SessionConfig struct {
	Model          string `json:"model"`
	MaxSteps       int    `json:"max_steps"`
	WindowCapacity int    `json:"window_capacity"`
	// Temperature nil means the default; zero is a valid explicit setting.
	Temperature     *float64 `json:"temperature,omitempty"`
	TerminalMarker  string   `json:"terminal_marker"`
	KickoffMessage  string   `json:"kickoff_message"`
	MaxIdleSteps    int      `json:"max_idle_steps"`
	MaxInertResults int      `json:"max_inert_results"`
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	temperature := DefaultTemperature
	return SessionConfig{
		MaxSteps:        DefaultMaxSteps,
		WindowCapacity:  DefaultWindowCapacity,
		Temperature:     &temperature,
		TerminalMarker:  DefaultTerminalMarker,
		KickoffMessage:  DefaultKickoffMessage,
		MaxIdleSteps:    DefaultMaxIdleSteps,
		MaxInertResults: DefaultMaxInertResults,
	}
}

// SessionResult is handed back to the outer driver when a session halts.
// The full transcript is always included so a step-limit halt can be
// diagnosed.
type SessionResult struct {
	Status     HaltReason `json:"status"`
	FinalText  string     `json:"final_text"`
	Steps      int        `json:"steps"`
	Suppressed int        `json:"suppressed"`
	Stalled    bool       `json:"stalled"`
	Err        error      `json:"-"`
	Transcript []Turn     `json:"transcript"`
}

// Session drives one bounded run: request completion, extract calls, guard,
// execute, append results, repeat until halted. It is single-threaded and
// cooperative; the transcript and recent-call window are owned exclusively
// by the session and discarded when it ends.
type Session struct {
	id           string
	config       SessionConfig
	completer    backend.Completer
	registry     *Registry
	instructions string
	transcript   *Transcript
	extractor    *Extractor
	guard        *LoopGuard
	monitor      *ProgressMonitor
	emitter      *EventEmitter
	logger       *slog.Logger
	state        State
	steps        int
}

// NewSession creates a session. instructions is the system prompt document;
// config nil means defaults.
func NewSession(completer backend.Completer, registry *Registry, instructions string, config *SessionConfig, logger *slog.Logger) *Session {
	cfg := DefaultSessionConfig()
	if config != nil {
		cfg = *config
		if cfg.MaxSteps <= 0 {
			cfg.MaxSteps = DefaultMaxSteps
		}
		if cfg.WindowCapacity <= 0 {
			cfg.WindowCapacity = DefaultWindowCapacity
		}
		if cfg.Temperature == nil {
			temperature := float64(DefaultTemperature)
			cfg.Temperature = &temperature
		}
		if cfg.TerminalMarker == "" {
			cfg.TerminalMarker = DefaultTerminalMarker
		}
		if cfg.KickoffMessage == "" {
			cfg.KickoffMessage = DefaultKickoffMessage
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	sessionID := uuid.New().String()
	return &Session{
		id:           sessionID,
		config:       cfg,
		completer:    completer,
		registry:     registry,
		instructions: instructions,
		transcript:   NewTranscript(),
		extractor:    NewExtractor(registry.Names()),
		guard:        NewLoopGuard(NewRecentCallWindow(cfg.WindowCapacity)),
		monitor: NewProgressMonitor(
			WithStallThresholds(cfg.MaxIdleSteps, cfg.MaxInertResults),
			WithExtraMarkers(registry.SuccessMarkers()...),
		),
		emitter: NewEventEmitter(sessionID, 256),
		logger:  logger.With("session_id", sessionID),
		state:   StateStarting,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Events returns the event channel for the host application.
func (s *Session) Events() <-chan SessionEvent {
	return s.emitter.Events()
}

// Run drives the session to a halt. Every fault becomes a result turn or a
// halt reason; Run itself never panics and never returns before reaching
// StateHalted within the step budget.
func (s *Session) Run(ctx context.Context) *SessionResult {
	defer s.emitter.Close()

	s.emitter.Emit(EventSessionStart, map[string]any{"model": s.config.Model})
	s.transcript.AppendInstructions(s.instructions)
	s.transcript.AppendKickoff(s.config.KickoffMessage)
	s.state = StateAwaitingCompletion

	var halt HaltReason
	var runErr error
	totalSuppressed := 0
	stalled := false

	for s.steps < s.config.MaxSteps && halt == "" {
		s.steps++
		s.emitter.Emit(EventStepStart, map[string]any{"step": s.steps})

		resp, err := s.completer.Complete(ctx, backend.Request{
			Model:       s.config.Model,
			Messages:    s.transcript.Messages(),
			Temperature: s.config.Temperature,
		})
		if err != nil {
			halt = HaltInternalError
			runErr = err
			s.emitter.Emit(EventError, map[string]any{"error": err.Error()})
			s.logger.Error("completion request failed", "step", s.steps, "error", err)
			break
		}
		s.transcript.AppendAssistant(resp.Text)
		s.emitter.Emit(EventCompletion, map[string]any{"step": s.steps, "chars": len(resp.Text)})

		s.state = StateExtractingCalls
		candidates := s.extractor.Extract(resp.Text)
		execute, suppressed := s.guard.Filter(candidates)
		totalSuppressed += suppressed
		if suppressed > 0 {
			s.emitter.Emit(EventCallSuppressed, map[string]any{"count": suppressed})
			s.logger.Info("suppressed duplicate calls", "step", s.steps, "count", suppressed)
		}

		var executed []ExecutionResult
		if len(execute) == 0 {
			if strings.Contains(resp.Text, s.config.TerminalMarker) {
				halt = HaltCompleted
			} else {
				// Prevents a silent no-op loop: the model is told explicitly
				// that nothing actionable was found.
				s.transcript.AppendNote("No actionable tool call was found in your last response. " +
					"Reply with a tool call, or emit the terminal marker if all work is done.")
				s.emitter.Emit(EventNoActionable, map[string]any{"step": s.steps})
				s.state = StateAwaitingCompletion
			}
		} else {
			s.state = StateExecuting
			for _, call := range execute {
				result := s.registry.Invoke(ctx, call)
				s.transcript.AppendResult(result)
				executed = append(executed, result)
				s.emitter.Emit(EventCallExecuted, map[string]any{
					"name":    call.Name,
					"call_id": result.CallID,
					"success": result.Success,
				})
				s.logger.Info("executed call",
					"step", s.steps,
					"capability", call.Name,
					"success", result.Success,
					"failure", string(result.Failure))
			}
			s.state = StateAwaitingCompletion
		}

		if halt == "" && s.monitor.ObserveStep(executed) {
			stalled = true
			s.transcript.AppendNote("No visible progress was detected over the last several steps. " +
				"Re-read the task list, pick the next failing story, and make a concrete change.")
			s.emitter.Emit(EventStallWarning, map[string]any{"step": s.steps})
			s.logger.Warn("session appears stalled", "step", s.steps)
			s.monitor.Reset()
		}
	}

	if halt == "" {
		halt = HaltStepLimit
		s.logger.Warn("step limit reached", "steps", s.steps, "turns", s.transcript.Len())
	}

	s.state = StateHalted
	s.emitter.Emit(EventHalt, map[string]any{"reason": string(halt), "steps": s.steps})
	s.emitter.Emit(EventSessionEnd, nil)

	return &SessionResult{
		Status:     halt,
		FinalText:  s.transcript.LastAssistantText(),
		Steps:      s.steps,
		Suppressed: totalSuppressed,
		Stalled:    stalled,
		Err:        runErr,
		Transcript: s.transcript.Turns(),
	}
}
