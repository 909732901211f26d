package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func successResult(rendered string) ExecutionResult {
	return ExecutionResult{Success: true, Rendered: rendered}
}

func failedResult(rendered string) ExecutionResult {
	return ExecutionResult{Success: false, Failure: FailureOperationFault, Rendered: rendered}
}

func TestMonitorFlagsIdleSteps(t *testing.T) {
	m := NewProgressMonitor(WithStallThresholds(3, 6))

	assert.False(t, m.ObserveStep(nil))
	assert.False(t, m.ObserveStep(nil))
	assert.True(t, m.ObserveStep(nil), "third consecutive idle step crosses the threshold")
}

func TestMonitorIdleCounterResetsOnExecution(t *testing.T) {
	m := NewProgressMonitor(WithStallThresholds(3, 6))

	m.ObserveStep(nil)
	m.ObserveStep(nil)
	assert.False(t, m.ObserveStep([]ExecutionResult{successResult("Successfully wrote to main.go")}))
	assert.False(t, m.ObserveStep(nil))
	assert.False(t, m.ObserveStep(nil))
	assert.True(t, m.ObserveStep(nil))
}

func TestMonitorFlagsInertResults(t *testing.T) {
	m := NewProgressMonitor(WithStallThresholds(3, 4))

	// Reads succeed but show no externally visible effect.
	for i := 0; i < 3; i++ {
		assert.False(t, m.ObserveStep([]ExecutionResult{successResult("package main\n\nfunc main() {}")}))
	}
	assert.True(t, m.ObserveStep([]ExecutionResult{successResult("package main")}))
}

func TestMonitorEffectMarkersClearInertCount(t *testing.T) {
	m := NewProgressMonitor(WithStallThresholds(3, 4))

	m.ObserveStep([]ExecutionResult{successResult("file contents")})
	m.ObserveStep([]ExecutionResult{successResult("file contents")})
	m.ObserveStep([]ExecutionResult{successResult("Committed: add parser")})
	m.ObserveStep([]ExecutionResult{successResult("file contents")})
	m.ObserveStep([]ExecutionResult{successResult("file contents")})
	assert.False(t, m.Stalled())
}

func TestMonitorFailedResultsAreInert(t *testing.T) {
	m := NewProgressMonitor(WithStallThresholds(10, 3))

	m.ObserveStep([]ExecutionResult{failedResult("write_file failed: permission denied")})
	m.ObserveStep([]ExecutionResult{failedResult("write_file failed: permission denied")})
	assert.True(t, m.ObserveStep([]ExecutionResult{failedResult("write_file failed: permission denied")}))
}

func TestMonitorMatchingIsCaseInsensitive(t *testing.T) {
	m := NewProgressMonitor(WithStallThresholds(3, 2))

	m.ObserveStep([]ExecutionResult{successResult("SUCCESSFULLY WROTE to a.txt")})
	m.ObserveStep([]ExecutionResult{successResult("Patch Applied Successfully")})
	assert.False(t, m.Stalled())
}

func TestMonitorExtraMarkers(t *testing.T) {
	m := NewProgressMonitor(WithStallThresholds(3, 2), WithExtraMarkers("deployed to"))

	m.ObserveStep([]ExecutionResult{successResult("Deployed to staging")})
	m.ObserveStep([]ExecutionResult{successResult("Deployed to production")})
	assert.False(t, m.Stalled())
}

func TestMonitorReset(t *testing.T) {
	m := NewProgressMonitor(WithStallThresholds(2, 6))

	m.ObserveStep(nil)
	m.ObserveStep(nil)
	assert.True(t, m.Stalled())

	m.Reset()
	assert.False(t, m.Stalled())
	assert.False(t, m.ObserveStep(nil))
}
