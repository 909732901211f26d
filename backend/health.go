package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HealthReport summarizes the outcome of a backend health check.
type HealthReport struct {
	HostReachable   bool
	ModelAvailable  bool
	ChatWorks       bool
	AvailableModels []string
}

// OK reports whether every check passed.
func (r HealthReport) OK() bool {
	return r.HostReachable && r.ModelAvailable && r.ChatWorks
}

// HealthCheck verifies that the Ollama host is reachable, that the model is
// pulled, and that a trivial completion succeeds. The report is populated as
// far as the checks got; the returned error describes the first failure.
func HealthCheck(ctx context.Context, host, model string) (HealthReport, error) {
	report := HealthReport{}

	models, err := listModels(ctx, host)
	if err != nil {
		return report, &ConnectionError{BackendError: BackendError{
			Message:   fmt.Sprintf("cannot reach ollama at %s", host),
			Cause:     err,
			Retryable: true,
		}}
	}
	report.HostReachable = true
	report.AvailableModels = models

	for _, m := range models {
		if m == model || strings.HasPrefix(m, model+":") {
			report.ModelAvailable = true
			break
		}
	}
	if !report.ModelAvailable {
		return report, &ModelNotFoundError{BackendError: BackendError{
			Message: fmt.Sprintf("model %q not found on %s; pull it with: ollama pull %s", model, host, model),
		}}
	}

	adapter, err := NewOllamaAdapter(host, model)
	if err != nil {
		return report, err
	}
	probeTokens := 10
	_, err = adapter.Complete(ctx, Request{
		Model:     model,
		Messages:  []Message{UserMessage("Say 'test' and nothing else")},
		MaxTokens: &probeTokens,
	})
	if err != nil {
		return report, err
	}
	report.ChatWorks = true

	return report, nil
}

// listModels queries the Ollama /api/tags endpoint for pulled models.
func listModels(ctx context.Context, host string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(host, "/")+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding /api/tags response: %w", err)
	}

	names := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
