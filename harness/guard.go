package harness

import "encoding/json"

// DefaultWindowCapacity is the default size of the recent-call window.
const DefaultWindowCapacity = 10

// RecentCallWindow is a fixed-capacity ordered sequence of executed
// (name, arguments) pairs. It is owned by one session's guard and cleared
// when the session ends; it is never process-wide state.
type RecentCallWindow struct {
	capacity int
	entries  []windowEntry
}

type windowEntry struct {
	name string
	args string // canonical argument encoding
}

// NewRecentCallWindow creates a window with the given capacity.
func NewRecentCallWindow(capacity int) *RecentCallWindow {
	if capacity <= 0 {
		capacity = DefaultWindowCapacity
	}
	return &RecentCallWindow{capacity: capacity}
}

// Len returns the number of recorded calls.
func (w *RecentCallWindow) Len() int { return len(w.entries) }

// Capacity returns the maximum number of recorded calls.
func (w *RecentCallWindow) Capacity() int { return w.capacity }

// contains reports whether an identical call is in the window.
func (w *RecentCallWindow) contains(name, args string) bool {
	for _, e := range w.entries {
		if e.name == name && e.args == args {
			return true
		}
	}
	return false
}

// push records a call, evicting the oldest entry beyond capacity.
func (w *RecentCallWindow) push(name, args string) {
	w.entries = append(w.entries, windowEntry{name: name, args: args})
	if len(w.entries) > w.capacity {
		w.entries = w.entries[len(w.entries)-w.capacity:]
	}
}

// Clear empties the window.
func (w *RecentCallWindow) Clear() {
	w.entries = w.entries[:0]
}

// LoopGuard deduplicates new candidates against the recent-call window to
// suppress call storms. One inference round-trip is expensive and the
// backend cannot be trusted not to repeat itself; suppressing a
// byte-identical repeat is always safe, since legitimate re-reads differ by
// argument or are separated by an intervening distinct call.
type LoopGuard struct {
	window *RecentCallWindow
}

// NewLoopGuard creates a guard over the given window.
func NewLoopGuard(window *RecentCallWindow) *LoopGuard {
	if window == nil {
		window = NewRecentCallWindow(DefaultWindowCapacity)
	}
	return &LoopGuard{window: window}
}

// Window returns the guard's recent-call window.
func (g *LoopGuard) Window() *RecentCallWindow { return g.window }

// Filter returns the subset of candidates to execute plus the count of
// suppressed duplicates. Two candidates are the same call when the
// capability name and the full argument mapping are structurally equal
// (key-order-independent, deep value equality). Kept candidates are
// recorded immediately, so a duplicate later in the same batch is
// suppressed too; suppressed candidates are never re-recorded.
func (g *LoopGuard) Filter(candidates []CallCandidate) (execute []CallCandidate, suppressed int) {
	for _, c := range candidates {
		args := canonicalArguments(c.Arguments)
		if g.window.contains(c.Name, args) {
			suppressed++
			continue
		}
		g.window.push(c.Name, args)
		execute = append(execute, c)
	}
	return execute, suppressed
}

// canonicalArguments produces a key-order-independent encoding of an
// argument object: decode to generic values, then re-marshal (encoding/json
// emits map keys sorted). Undecodable input falls back to its raw bytes so
// equality degrades to byte equality instead of failing.
func canonicalArguments(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return string(raw)
	}
	return string(data)
}
