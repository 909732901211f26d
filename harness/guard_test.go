package harness

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(name, args string) CallCandidate {
	return CallCandidate{Name: name, Arguments: json.RawMessage(args), Format: FormatObject}
}

func TestLoopGuardSuppressesIdenticalCall(t *testing.T) {
	guard := NewLoopGuard(NewRecentCallWindow(10))

	execute, suppressed := guard.Filter([]CallCandidate{call("git_status", `{}`)})
	require.Len(t, execute, 1)
	assert.Equal(t, 0, suppressed)

	execute, suppressed = guard.Filter([]CallCandidate{call("git_status", `{}`)})
	assert.Empty(t, execute)
	assert.Equal(t, 1, suppressed)
}

func TestLoopGuardKeyOrderIndependent(t *testing.T) {
	guard := NewLoopGuard(NewRecentCallWindow(10))

	execute, _ := guard.Filter([]CallCandidate{call("run_cmd", `{"command":"go test","cwd":"."}`)})
	require.Len(t, execute, 1)

	execute, suppressed := guard.Filter([]CallCandidate{call("run_cmd", `{"cwd":".","command":"go test"}`)})
	assert.Empty(t, execute)
	assert.Equal(t, 1, suppressed)
}

func TestLoopGuardDistinguishesArguments(t *testing.T) {
	guard := NewLoopGuard(NewRecentCallWindow(10))

	execute, suppressed := guard.Filter([]CallCandidate{
		call("read_file", `{"path":"a"}`),
		call("read_file", `{"path":"b"}`),
	})
	assert.Len(t, execute, 2)
	assert.Equal(t, 0, suppressed)
}

func TestLoopGuardSuppressesWithinBatch(t *testing.T) {
	guard := NewLoopGuard(NewRecentCallWindow(10))

	execute, suppressed := guard.Filter([]CallCandidate{
		call("git_status", `{}`),
		call("git_status", `{}`),
		call("git_status", `{}`),
	})
	assert.Len(t, execute, 1)
	assert.Equal(t, 2, suppressed)
}

func TestLoopGuardEvictsOldest(t *testing.T) {
	guard := NewLoopGuard(NewRecentCallWindow(2))

	for _, path := range []string{"a", "b", "c"} {
		execute, _ := guard.Filter([]CallCandidate{call("read_file", fmt.Sprintf(`{"path":%q}`, path))})
		require.Len(t, execute, 1)
	}

	// "a" was evicted when "c" arrived, so it executes again; "c" is still
	// in the window and stays suppressed.
	execute, suppressed := guard.Filter([]CallCandidate{call("read_file", `{"path":"a"}`)})
	assert.Len(t, execute, 1)
	assert.Equal(t, 0, suppressed)

	execute, suppressed = guard.Filter([]CallCandidate{call("read_file", `{"path":"c"}`)})
	assert.Empty(t, execute)
	assert.Equal(t, 1, suppressed)
}

func TestLoopGuardSuppressedCallsNotReRecorded(t *testing.T) {
	guard := NewLoopGuard(NewRecentCallWindow(2))

	guard.Filter([]CallCandidate{call("read_file", `{"path":"a"}`)})
	guard.Filter([]CallCandidate{call("read_file", `{"path":"a"}`)}) // suppressed, not re-recorded
	guard.Filter([]CallCandidate{call("read_file", `{"path":"b"}`)})
	guard.Filter([]CallCandidate{call("read_file", `{"path":"c"}`)}) // evicts "a"

	execute, suppressed := guard.Filter([]CallCandidate{call("read_file", `{"path":"a"}`)})
	assert.Len(t, execute, 1)
	assert.Equal(t, 0, suppressed)
}

func TestRecentCallWindowClear(t *testing.T) {
	guard := NewLoopGuard(NewRecentCallWindow(10))
	guard.Filter([]CallCandidate{call("git_status", `{}`)})
	require.Equal(t, 1, guard.Window().Len())

	guard.Window().Clear()
	assert.Equal(t, 0, guard.Window().Len())

	execute, suppressed := guard.Filter([]CallCandidate{call("git_status", `{}`)})
	assert.Len(t, execute, 1)
	assert.Equal(t, 0, suppressed)
}

func TestCanonicalArguments(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{name: "empty input", raw: "", expected: "{}"},
		{name: "sorted keys", raw: `{"b":2,"a":1}`, expected: `{"a":1,"b":2}`},
		{name: "nested maps sorted", raw: `{"outer":{"z":1,"a":2}}`, expected: `{"outer":{"a":2,"z":1}}`},
		{name: "invalid json falls back to raw", raw: `{broken`, expected: `{broken`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, canonicalArguments(json.RawMessage(tt.raw)))
		})
	}
}
