package harness

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesMcMurran/ralph-ollama/backend"
)

// scriptedCompleter returns canned completions in order, recording every
// request it sees. Once the script runs out it repeats the last entry.
type scriptedCompleter struct {
	script   []string
	err      error
	requests []backend.Request
}

func (s *scriptedCompleter) Complete(ctx context.Context, req backend.Request) (*backend.Response, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	idx := len(s.requests) - 1
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	return &backend.Response{ID: fmt.Sprintf("resp_%d", idx), Text: s.script[idx]}, nil
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	reg.MustRegister(CapabilityDescriptor{
		Name: "git_status",
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return "Working tree clean", nil
		},
	})
	reg.MustRegister(CapabilityDescriptor{
		Name: "write_file",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Required: true},
			{Name: "content", Type: "string", Required: true},
		},
		SuccessMarkers: []string{"successfully wrote to"},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return fmt.Sprintf("Successfully wrote to %s", args["path"]), nil
		},
	})
	return reg
}

func sessionConfig(maxSteps int) *SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.Model = "llama3.1"
	cfg.MaxSteps = maxSteps
	return &cfg
}

func TestSessionHaltsOnTerminalMarker(t *testing.T) {
	completer := &scriptedCompleter{script: []string{
		`{"name":"git_status","arguments":{}}`,
		"Everything is done. ALL STORIES COMPLETE",
	}}
	session := NewSession(completer, testRegistry(t), "build the app", sessionConfig(10), nil)

	result := session.Run(context.Background())

	assert.Equal(t, HaltCompleted, result.Status)
	assert.Equal(t, 2, result.Steps)
	assert.Contains(t, result.FinalText, "ALL STORIES COMPLETE")
	assert.Equal(t, StateHalted, session.State())
}

func TestSessionHaltsAtStepLimit(t *testing.T) {
	// Each completion carries a distinct call, so the guard never trims and
	// every step executes.
	var script []string
	for i := 0; i < 20; i++ {
		script = append(script, fmt.Sprintf(`{"name":"write_file","arguments":{"path":"f%d.txt","content":"x"}}`, i))
	}
	completer := &scriptedCompleter{script: script}
	session := NewSession(completer, testRegistry(t), "build the app", sessionConfig(5), nil)

	result := session.Run(context.Background())

	assert.Equal(t, HaltStepLimit, result.Status)
	assert.Equal(t, 5, result.Steps)
	assert.Len(t, completer.requests, 5)
}

func TestSessionHaltsOnBackendError(t *testing.T) {
	completer := &scriptedCompleter{err: errors.New("connection refused")}
	session := NewSession(completer, testRegistry(t), "build the app", sessionConfig(10), nil)

	result := session.Run(context.Background())

	assert.Equal(t, HaltInternalError, result.Status)
	assert.ErrorContains(t, result.Err, "connection refused")
	assert.Equal(t, 1, result.Steps)
}

func TestSessionResultVisibleInNextRequest(t *testing.T) {
	completer := &scriptedCompleter{script: []string{
		`{"name":"git_status","arguments":{}}`,
		"ALL STORIES COMPLETE",
	}}
	session := NewSession(completer, testRegistry(t), "build the app", sessionConfig(10), nil)
	session.Run(context.Background())

	require.Len(t, completer.requests, 2)
	second := completer.requests[1].Messages
	require.NotEmpty(t, second)

	last := second[len(second)-1]
	assert.Equal(t, backend.RoleTool, last.Role)
	assert.Equal(t, "[git_status ok] Working tree clean", last.Content)
}

func TestSessionSuppressesRepeatedCall(t *testing.T) {
	completer := &scriptedCompleter{script: []string{
		`{"name":"git_status","arguments":{}}`,
		`{"name":"git_status","arguments":{}}`,
		"ALL STORIES COMPLETE",
	}}
	session := NewSession(completer, testRegistry(t), "build the app", sessionConfig(10), nil)

	result := session.Run(context.Background())

	assert.Equal(t, HaltCompleted, result.Status)
	assert.Equal(t, 1, result.Suppressed)

	// The second completion's only call was suppressed, leaving nothing to
	// execute; without the marker in its text the session nudges and moves on.
	var resultTurns, noteTurns int
	for _, turn := range result.Transcript {
		switch turn.Kind {
		case TurnResult:
			resultTurns++
		case TurnNote:
			noteTurns++
		}
	}
	assert.Equal(t, 1, resultTurns)
	assert.Equal(t, 1, noteTurns)
}

func TestSessionNudgesOnNoActionableCall(t *testing.T) {
	completer := &scriptedCompleter{script: []string{
		"I will think about this first.",
		"ALL STORIES COMPLETE",
	}}
	session := NewSession(completer, testRegistry(t), "build the app", sessionConfig(10), nil)

	result := session.Run(context.Background())

	assert.Equal(t, HaltCompleted, result.Status)
	assert.Equal(t, 2, result.Steps)

	// The nudge note is relayed to the model as a user turn.
	second := completer.requests[1].Messages
	last := second[len(second)-1]
	assert.Equal(t, backend.RoleUser, last.Role)
	assert.Contains(t, last.Content, "No actionable tool call")
}

func TestSessionMarkerWithPendingCallDoesNotHalt(t *testing.T) {
	completer := &scriptedCompleter{script: []string{
		`Almost there: {"name":"git_status","arguments":{}} ALL STORIES COMPLETE`,
		"ALL STORIES COMPLETE",
	}}
	session := NewSession(completer, testRegistry(t), "build the app", sessionConfig(10), nil)

	result := session.Run(context.Background())

	// The first completion still carried an executable call, so the marker
	// alone does not complete the session.
	assert.Equal(t, HaltCompleted, result.Status)
	assert.Equal(t, 2, result.Steps)
}

func TestSessionUnknownCapabilityBecomesFailedResult(t *testing.T) {
	completer := &scriptedCompleter{script: []string{
		`{"name":"launch_rocket","arguments":{}}`,
		"ALL STORIES COMPLETE",
	}}
	session := NewSession(completer, testRegistry(t), "build the app", sessionConfig(10), nil)

	result := session.Run(context.Background())

	assert.Equal(t, HaltCompleted, result.Status)

	var found bool
	for _, turn := range result.Transcript {
		if turn.Kind == TurnResult && turn.Result != nil {
			found = true
			assert.False(t, turn.Result.Success)
			assert.Equal(t, FailureUnknownCapability, turn.Result.Failure)
		}
	}
	assert.True(t, found)
}

func TestSessionStallWarningInjected(t *testing.T) {
	cfg := sessionConfig(10)
	cfg.MaxIdleSteps = 2
	// Prose-only completions produce idle steps until the threshold trips.
	completer := &scriptedCompleter{script: []string{
		"Thinking.",
		"Still thinking.",
		"ALL STORIES COMPLETE",
	}}
	session := NewSession(completer, testRegistry(t), "build the app", cfg, nil)

	result := session.Run(context.Background())

	assert.Equal(t, HaltCompleted, result.Status)
	assert.True(t, result.Stalled)
}

func TestSessionEmitsEvents(t *testing.T) {
	completer := &scriptedCompleter{script: []string{"ALL STORIES COMPLETE"}}
	session := NewSession(completer, testRegistry(t), "build the app", sessionConfig(10), nil)

	result := session.Run(context.Background())
	require.Equal(t, HaltCompleted, result.Status)

	var kinds []EventKind
	for event := range session.Events() {
		kinds = append(kinds, event.Kind)
	}
	assert.Contains(t, kinds, EventSessionStart)
	assert.Contains(t, kinds, EventStepStart)
	assert.Contains(t, kinds, EventCompletion)
	assert.Contains(t, kinds, EventHalt)
	assert.Contains(t, kinds, EventSessionEnd)
}

func TestSessionZeroTemperaturePreserved(t *testing.T) {
	cfg := sessionConfig(10)
	zero := 0.0
	cfg.Temperature = &zero

	completer := &scriptedCompleter{script: []string{"ALL STORIES COMPLETE"}}
	session := NewSession(completer, testRegistry(t), "build the app", cfg, nil)
	session.Run(context.Background())

	require.Len(t, completer.requests, 1)
	require.NotNil(t, completer.requests[0].Temperature)
	assert.Equal(t, 0.0, *completer.requests[0].Temperature)
}

func TestSessionIgnoresManifestInProse(t *testing.T) {
	// A quoted package manifest and a quoted code snippet must produce no
	// call attempts; the marker in the same response completes the session
	// on the first step.
	completer := &scriptedCompleter{script: []string{
		`Write this as package.json: {"name":"my-app","version":"1.0.0","private":true}
and call json.dumps({"key": "value"}) if you need it. ALL STORIES COMPLETE`,
	}}
	session := NewSession(completer, testRegistry(t), "build the app", sessionConfig(10), nil)

	result := session.Run(context.Background())

	assert.Equal(t, HaltCompleted, result.Status)
	assert.Equal(t, 1, result.Steps)
	for _, turn := range result.Transcript {
		assert.NotEqual(t, TurnResult, turn.Kind)
	}
}

func TestSessionFirstRequestShape(t *testing.T) {
	completer := &scriptedCompleter{script: []string{"ALL STORIES COMPLETE"}}
	session := NewSession(completer, testRegistry(t), "system instructions here", sessionConfig(10), nil)
	session.Run(context.Background())

	require.Len(t, completer.requests, 1)
	messages := completer.requests[0].Messages
	require.Len(t, messages, 2)
	assert.Equal(t, backend.RoleSystem, messages[0].Role)
	assert.Equal(t, "system instructions here", messages[0].Content)
	assert.Equal(t, backend.RoleUser, messages[1].Role)
	assert.Equal(t, DefaultKickoffMessage, messages[1].Content)
}
