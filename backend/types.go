package backend

import "strings"

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single role-tagged text turn sent to the backend.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant Message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// ToolMessage creates a tool-result Message.
func ToolMessage(text string) Message {
	return Message{Role: RoleTool, Content: text}
}

// Request is the input for one blocking completion round-trip.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// Usage tracks approximate token consumption for one round-trip.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add returns a new Usage that is the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// Response is the output of one completion round-trip. The backend has no
// reliable structured call channel, so the payload is a single text block.
type Response struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// estimateTokens provides a rough token count from request messages. Ollama
// does not expose usage through the gollm text path, so callers get an
// approximation rather than nothing.
func estimateTokens(messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content) / 4
	}
	if total == 0 {
		total = 1
	}
	return total
}

// flattenPrompt joins non-system messages into a single prompt block,
// prefixing assistant and tool turns so the model can distinguish its own
// prior output and tool results from user input.
func flattenPrompt(messages []Message) (system string, prompt string) {
	var sys, parts []string
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			sys = append(sys, msg.Content)
		case RoleUser:
			parts = append(parts, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				parts = append(parts, "[Assistant]: "+msg.Content)
			}
		case RoleTool:
			parts = append(parts, "[Tool Result]: "+msg.Content)
		}
	}
	return strings.TrimSpace(strings.Join(sys, "\n")), strings.Join(parts, "\n")
}
