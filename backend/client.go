package backend

import (
	"context"
	"log/slog"
	"time"
)

// Completer is the minimal interface the harness depends on: one blocking
// completion round-trip with no partial-result visibility.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Client wraps a provider adapter with retry and logging. It implements
// Completer itself so the harness never sees the adapter directly.
type Client struct {
	adapter Completer
	policy  RetryPolicy
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *Client) {
		c.policy = policy
	}
}

// WithLogger sets the structured logger used for retry and latency logs.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client around the given adapter.
func NewClient(adapter Completer, opts ...ClientOption) *Client {
	c := &Client{
		adapter: adapter,
		policy:  DefaultRetryPolicy(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.OnRetry == nil {
		logger := c.logger
		c.policy.OnRetry = func(err error, attempt int, delay time.Duration) {
			logger.Warn("retrying completion request",
				"attempt", attempt, "delay", delay, "error", err)
		}
	}
	return c
}

// Complete sends one blocking request through the retry policy.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := Retry(ctx, c.policy, func(ctx context.Context) (*Response, error) {
		return c.adapter.Complete(ctx, req)
	})
	if err != nil {
		c.logger.Error("completion request failed",
			"model", req.Model, "duration", time.Since(start), "error", err)
		return nil, err
	}
	c.logger.Debug("completion request succeeded",
		"model", req.Model,
		"duration", time.Since(start),
		"output_tokens", resp.Usage.OutputTokens)
	return resp, nil
}
