package harness

import (
	"fmt"
	"time"

	"github.com/JamesMcMurran/ralph-ollama/backend"
)

// TurnKind discriminates between transcript turn types.
type TurnKind string

const (
	TurnInstructions TurnKind = "instructions"
	TurnKickoff      TurnKind = "kickoff"
	TurnAssistant    TurnKind = "assistant"
	TurnResult       TurnKind = "result"
	TurnNote         TurnKind = "note"
)

// Turn is a single entry in the conversation transcript.
type Turn struct {
	Kind      TurnKind         `json:"kind"`
	Timestamp time.Time        `json:"timestamp"`
	Content   string           `json:"content,omitempty"`
	Result    *ExecutionResult `json:"result,omitempty"`
}

// Transcript is the append-only ordered sequence of turns for one session.
// It is owned exclusively by the session and rebuilt fresh each session; no
// in-process memory crosses sessions.
type Transcript struct {
	turns []Turn
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{turns: make([]Turn, 0)}
}

// AppendInstructions appends the system instructions turn.
func (t *Transcript) AppendInstructions(content string) {
	t.append(Turn{Kind: TurnInstructions, Timestamp: time.Now(), Content: content})
}

// AppendKickoff appends the kickoff turn that starts the model working.
func (t *Transcript) AppendKickoff(content string) {
	t.append(Turn{Kind: TurnKickoff, Timestamp: time.Now(), Content: content})
}

// AppendAssistant appends one model completion.
func (t *Transcript) AppendAssistant(content string) {
	t.append(Turn{Kind: TurnAssistant, Timestamp: time.Now(), Content: content})
}

// AppendResult appends one execution result turn, tagged to its call.
func (t *Transcript) AppendResult(result ExecutionResult) {
	r := result
	t.append(Turn{Kind: TurnResult, Timestamp: time.Now(), Result: &r})
}

// AppendNote appends a harness-injected note (stall warnings, no-actionable-
// call nudges). Notes are sent to the model as user turns.
func (t *Transcript) AppendNote(content string) {
	t.append(Turn{Kind: TurnNote, Timestamp: time.Now(), Content: content})
}

func (t *Transcript) append(turn Turn) {
	t.turns = append(t.turns, turn)
}

// Len returns the number of turns.
func (t *Transcript) Len() int { return len(t.turns) }

// Turns returns a copy of the transcript.
func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Messages converts the transcript into the role-tagged messages the
// backend consumes. Result turns become tool messages tagged with the
// originating capability so the next completion can reason about them.
func (t *Transcript) Messages() []backend.Message {
	messages := make([]backend.Message, 0, len(t.turns))
	for _, turn := range t.turns {
		switch turn.Kind {
		case TurnInstructions:
			messages = append(messages, backend.SystemMessage(turn.Content))
		case TurnKickoff, TurnNote:
			messages = append(messages, backend.UserMessage(turn.Content))
		case TurnAssistant:
			messages = append(messages, backend.AssistantMessage(turn.Content))
		case TurnResult:
			if turn.Result != nil {
				messages = append(messages, backend.ToolMessage(turn.Result.Render()))
			}
		}
	}
	return messages
}

// LastAssistantText returns the content of the most recent assistant turn,
// or the empty string if there is none.
func (t *Transcript) LastAssistantText() string {
	for i := len(t.turns) - 1; i >= 0; i-- {
		if t.turns[i].Kind == TurnAssistant {
			return t.turns[i].Content
		}
	}
	return ""
}

// Render produces the transcript text form of an execution result: the
// capability name, the outcome, and the rendered output.
func (r ExecutionResult) Render() string {
	status := "ok"
	if !r.Success {
		status = "error"
	}
	return fmt.Sprintf("[%s %s] %s", r.Call.Name, status, r.Rendered)
}
