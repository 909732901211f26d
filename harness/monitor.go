package harness

import "strings"

// Default stall thresholds.
const (
	DefaultMaxIdleSteps    = 3
	DefaultMaxInertResults = 6
)

// defaultEffectMarkers is the fixed vocabulary of externally visible
// effects: successful writes, commits, test runs, and completion-status
// changes. Matching is case-insensitive substring containment.
var defaultEffectMarkers = []string{
	"successfully wrote",
	"committed:",
	"patch applied successfully",
	"created directory:",
	"test passed",
	"all tests passed",
	`"passes": true`,
	"marked passing",
}

// ProgressMonitor inspects execution results for evidence of externally
// visible effect and flags stalls. It is a coarse advisory heuristic, not a
// formal effect system: a missed effect only produces a spurious warning,
// never a forced halt.
type ProgressMonitor struct {
	markers         []string
	maxIdleSteps    int
	maxInertResults int

	idleSteps    int
	inertResults int
}

// MonitorOption configures a ProgressMonitor.
type MonitorOption func(*ProgressMonitor)

// WithStallThresholds overrides how many idle steps or inert results are
// tolerated before the session is flagged stalled.
func WithStallThresholds(maxIdleSteps, maxInertResults int) MonitorOption {
	return func(m *ProgressMonitor) {
		if maxIdleSteps > 0 {
			m.maxIdleSteps = maxIdleSteps
		}
		if maxInertResults > 0 {
			m.maxInertResults = maxInertResults
		}
	}
}

// WithExtraMarkers extends the effect vocabulary, typically with the
// per-capability success markers declared on registered descriptors.
func WithExtraMarkers(markers ...string) MonitorOption {
	return func(m *ProgressMonitor) {
		for _, marker := range markers {
			if marker != "" {
				m.markers = append(m.markers, strings.ToLower(marker))
			}
		}
	}
}

// NewProgressMonitor creates a monitor with the default effect vocabulary.
func NewProgressMonitor(opts ...MonitorOption) *ProgressMonitor {
	m := &ProgressMonitor{
		maxIdleSteps:    DefaultMaxIdleSteps,
		maxInertResults: DefaultMaxInertResults,
	}
	for _, marker := range defaultEffectMarkers {
		m.markers = append(m.markers, strings.ToLower(marker))
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ObserveStep records the executed results of one orchestrator step and
// reports whether the session is now considered stalled.
func (m *ProgressMonitor) ObserveStep(executed []ExecutionResult) bool {
	if len(executed) == 0 {
		m.idleSteps++
	} else {
		m.idleSteps = 0
		for _, r := range executed {
			if r.Success && m.showsEffect(r.Rendered) {
				m.inertResults = 0
			} else {
				m.inertResults++
			}
		}
	}
	return m.Stalled()
}

// Stalled reports the current advisory stall state.
func (m *ProgressMonitor) Stalled() bool {
	return m.idleSteps >= m.maxIdleSteps || m.inertResults >= m.maxInertResults
}

// Reset clears accumulated counters, typically after a stall warning has
// been injected so the session is not re-warned every step.
func (m *ProgressMonitor) Reset() {
	m.idleSteps = 0
	m.inertResults = 0
}

func (m *ProgressMonitor) showsEffect(rendered string) bool {
	lower := strings.ToLower(rendered)
	for _, marker := range m.markers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
