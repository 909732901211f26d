package harness

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// CallFormat tags which surface syntax a candidate was recovered from.
type CallFormat string

const (
	// FormatObject is a JSON object with "name"/"arguments" keys embedded
	// anywhere in prose.
	FormatObject CallFormat = "object"
	// FormatLabeled is the two-line "Tool: name" / "Arguments: {...}" form.
	FormatLabeled CallFormat = "labeled"
	// FormatFunction is the function-call-like form name({...}).
	FormatFunction CallFormat = "function"
)

// CallCandidate is a parsed, not-yet-validated request to invoke a
// capability. Arguments keeps the raw JSON so nested structure and escape
// sequences survive until validation.
type CallCandidate struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Format    CallFormat      `json:"format"`
}

// positioned pairs a candidate with its byte offset in the source text so
// independently matched syntaxes can be merged in source order.
type positioned struct {
	candidate CallCandidate
	offset    int
}

// Extractor recognizes call candidates in one block of model text. The
// function-call form is gated on the known capability names: without the
// gate, any identifier followed by an object literal in quoted code (for
// example json.dumps({...}) in an explanation) would become a candidate.
type Extractor struct {
	known map[string]bool
}

// NewExtractor creates an extractor whose function-call form recognizes
// only the given capability names.
func NewExtractor(names []string) *Extractor {
	known := make(map[string]bool, len(names))
	for _, name := range names {
		known[name] = true
	}
	return &Extractor{known: known}
}

var (
	labeledPattern  = regexp.MustCompile(`(?is)Tool:\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*Arguments:\s*`)
	functionPattern = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)\s*\(\s*`)
)

// Extract scans one block of model text and returns the ordered sequence of
// call candidates it contains. All supported syntaxes are attempted
// independently; results are merged in source order with exact duplicates
// (same name, structurally equal arguments) removed. Spans that fail to
// parse are silently discarded.
func (e *Extractor) Extract(text string) []CallCandidate {
	var found []positioned
	found = append(found, extractObjects(text)...)
	found = append(found, extractLabeled(text)...)
	found = append(found, e.extractFunctionCalls(text)...)

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].offset < found[j].offset
	})

	seen := make(map[string]bool)
	var out []CallCandidate
	for _, p := range found {
		key := p.candidate.Name + "\x00" + canonicalArguments(p.candidate.Arguments)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p.candidate)
	}
	return out
}

// extractObjects finds top-level balanced JSON objects and keeps those that
// carry a usable name field.
func extractObjects(text string) []positioned {
	var out []positioned
	for _, span := range scanObjects(text) {
		if c, ok := parseObjectCall(text[span.start:span.end]); ok {
			out = append(out, positioned{candidate: c, offset: span.start})
		}
	}
	return out
}

// extractLabeled finds "Tool: name" / "Arguments: {...}" pairs.
func extractLabeled(text string) []positioned {
	var out []positioned
	for _, m := range labeledPattern.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		args, ok := scanObjectAt(text, m[1])
		if !ok {
			continue
		}
		if !json.Valid([]byte(args)) {
			continue
		}
		out = append(out, positioned{
			candidate: CallCandidate{Name: name, Arguments: json.RawMessage(args), Format: FormatLabeled},
			offset:    m[0],
		})
	}
	return out
}

// extractFunctionCalls finds name({...}) forms for known capability names.
// The brace argument must parse as a JSON object and be followed by a
// closing parenthesis.
func (e *Extractor) extractFunctionCalls(text string) []positioned {
	var out []positioned
	for _, m := range functionPattern.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		if !e.known[name] {
			continue
		}
		args, ok := scanObjectAt(text, m[1])
		if !ok {
			continue
		}
		rest := strings.TrimLeft(text[m[1]+len(args):], " \t\n")
		if !strings.HasPrefix(rest, ")") {
			continue
		}
		if !json.Valid([]byte(args)) {
			continue
		}
		out = append(out, positioned{
			candidate: CallCandidate{Name: name, Arguments: json.RawMessage(args), Format: FormatFunction},
			offset:    m[0],
		})
	}
	return out
}

// parseObjectCall decodes one object span into a candidate. Both the name
// and the arguments keys must be present: a lone "name" string is how every
// package manifest and API-response example in prose looks, and those must
// not become candidates. A null arguments value counts as present and means
// the empty object.
func parseObjectCall(span string) (CallCandidate, bool) {
	var probe struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(span), &probe); err != nil {
		return CallCandidate{}, false
	}
	if probe.Name == "" || probe.Arguments == nil {
		return CallCandidate{}, false
	}
	args := probe.Arguments
	if string(args) == "null" {
		args = json.RawMessage("{}")
	}
	return CallCandidate{Name: probe.Name, Arguments: args, Format: FormatObject}, true
}

// objectSpan marks one balanced top-level {...} region in the source text.
type objectSpan struct {
	start, end int
}

// scanObjects walks the text tracking brace nesting depth and string-escape
// state, yielding every top-level balanced object span. A first-closing-
// brace match would break on nested objects and on braces inside strings;
// this does not.
func scanObjects(text string) []objectSpan {
	var spans []objectSpan
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if depth > 0 && inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					spans = append(spans, objectSpan{start: start, end: i + 1})
					start = -1
				}
			}
		}
	}
	return spans
}

// scanObjectAt returns the balanced object literal beginning at or after
// offset (skipping leading whitespace). Reports false if the text at that
// position is not an object or the braces never balance.
func scanObjectAt(text string, offset int) (string, bool) {
	i := offset
	for i < len(text) && (text[i] == ' ' || text[i] == '\t' || text[i] == '\n' || text[i] == '\r') {
		i++
	}
	if i >= len(text) || text[i] != '{' {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for j := i; j < len(text); j++ {
		ch := text[j]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[i : j+1], true
			}
		}
	}
	return "", false
}
