package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// OllamaAdapter wraps a gollm.LLM configured for the Ollama provider and
// implements Completer. It translates role-tagged messages into the flat
// prompt gollm expects and classifies provider errors into the backend
// taxonomy.
type OllamaAdapter struct {
	llm   gollm.LLM
	model string
	host  string
}

// OllamaOption configures an OllamaAdapter.
type OllamaOption func(*ollamaConfig)

type ollamaConfig struct {
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithMaxTokens sets the default max tokens per completion.
func WithMaxTokens(n int) OllamaOption {
	return func(c *ollamaConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) OllamaOption {
	return func(c *ollamaConfig) {
		c.temperature = t
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) OllamaOption {
	return func(c *ollamaConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewOllamaAdapter creates an adapter for the given Ollama host and model.
// host is the base URL, e.g. "http://localhost:11434".
func NewOllamaAdapter(host, model string, opts ...OllamaOption) (*OllamaAdapter, error) {
	if model == "" {
		return nil, &ConfigurationError{BackendError: BackendError{
			Message: "ollama adapter requires a model identifier",
		}}
	}
	if host == "" {
		host = "http://localhost:11434"
	}

	cfg := &ollamaConfig{
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider("ollama"),
		gollm.SetModel(model),
		gollm.SetOllamaEndpoint(host),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retry is handled by Client
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &ConfigurationError{BackendError: BackendError{
			Message: fmt.Sprintf("failed to create ollama client for %s", host),
			Cause:   err,
		}}
	}

	return &OllamaAdapter{llm: llm, model: model, host: host}, nil
}

// Model returns the configured model identifier.
func (a *OllamaAdapter) Model() string { return a.model }

// Host returns the configured backend address.
func (a *OllamaAdapter) Host() string { return a.host }

// Complete sends a blocking request and returns the text completion.
func (a *OllamaAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.translateRequest(req)
	a.applyRequestOptions(req)

	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, classifyError(err)
	}

	model := req.Model
	if model == "" {
		model = a.model
	}

	return &Response{
		ID:    "resp_" + uuid.New().String()[:8],
		Model: model,
		Text:  text,
		Usage: Usage{
			// The gollm text path does not expose real usage; estimate.
			InputTokens:  estimateTokens(req.Messages),
			OutputTokens: len(text) / 4,
			TotalTokens:  estimateTokens(req.Messages) + len(text)/4,
		},
	}, nil
}

// translateRequest converts a backend Request into a gollm Prompt.
func (a *OllamaAdapter) translateRequest(req Request) *gollm.Prompt {
	system, promptText := flattenPrompt(req.Messages)
	if promptText == "" {
		promptText = "Continue."
	}

	promptOpts := []gollm.PromptOption{}
	if system != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(system), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// applyRequestOptions applies request-level parameters to the gollm LLM.
func (a *OllamaAdapter) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}
