package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
)

// FailureKind classifies why an invocation produced a failed result.
type FailureKind string

const (
	// FailureUnknownCapability means the candidate named an unregistered
	// capability. It is rejected, never executed.
	FailureUnknownCapability FailureKind = "unknown_capability"
	// FailureArgumentError means a required parameter was missing or a
	// parameter was mistyped per the schema.
	FailureArgumentError FailureKind = "argument_error"
	// FailureOperationFault means the capability's underlying action failed.
	FailureOperationFault FailureKind = "operation_fault"
)

// Executor performs a capability's side effect. It receives arguments that
// have already passed schema validation. The returned value is rendered
// into the transcript; an error becomes a failed result, never a session
// abort.
type Executor func(ctx context.Context, args map[string]any) (any, error)

// Parameter describes one schema parameter of a capability.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string", "boolean", "integer", "number", "object", "array"
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// CapabilityDescriptor declares one executable operation: its name, its
// parameter schema, and its executor. Descriptors are registered once at
// startup and are immutable for the run.
type CapabilityDescriptor struct {
	Name        string
	Description string
	Parameters  []Parameter
	// SuccessMarkers are extra effect markers this capability's successful
	// output may carry, merged into the progress monitor's vocabulary.
	SuccessMarkers []string
	Execute        Executor
}

// SchemaJSON renders the parameter schema in the JSON-schema shape used
// when describing capabilities to the model.
func (d CapabilityDescriptor) SchemaJSON() map[string]any {
	properties := make(map[string]any, len(d.Parameters))
	var required []string
	for _, p := range d.Parameters {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ExecutionResult is the outcome of one invocation. It becomes one
// transcript turn. A failed result carries the failure classification and a
// rendered diagnostic; it never carries a propagating error.
type ExecutionResult struct {
	Call     CallCandidate `json:"call"`
	CallID   string        `json:"call_id"`
	Success  bool          `json:"success"`
	Failure  FailureKind   `json:"failure,omitempty"`
	Rendered string        `json:"rendered"`
	Value    any           `json:"-"`
}

// Registry validates and dispatches capability invocations. Side effects
// belong entirely to individual capabilities; the registry itself only
// validates and dispatches.
type Registry struct {
	mu    sync.RWMutex
	caps  map[string]*CapabilityDescriptor
	order []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]*CapabilityDescriptor)}
}

// Register adds a capability. Names are unique; registering a duplicate
// name is a startup programming error and is reported as such.
func (r *Registry) Register(desc CapabilityDescriptor) error {
	if desc.Name == "" {
		return fmt.Errorf("capability name must not be empty")
	}
	if desc.Execute == nil {
		return fmt.Errorf("capability %q has no executor", desc.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.caps[desc.Name]; exists {
		return fmt.Errorf("capability %q is already registered", desc.Name)
	}
	d := desc
	r.caps[desc.Name] = &d
	r.order = append(r.order, desc.Name)
	return nil
}

// MustRegister registers a capability and panics on error. Intended for
// startup wiring where a duplicate name is a bug.
func (r *Registry) MustRegister(desc CapabilityDescriptor) {
	if err := r.Register(desc); err != nil {
		panic(err)
	}
}

// Get returns a registered capability by name, or nil if not found.
func (r *Registry) Get(name string) *CapabilityDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps[name]
}

// Names returns capability names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Descriptors returns all descriptors in registration order.
func (r *Registry) Descriptors() []CapabilityDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CapabilityDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.caps[name])
	}
	return out
}

// SuccessMarkers returns the union of all per-capability success markers.
func (r *Registry) SuccessMarkers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var markers []string
	for _, name := range r.order {
		markers = append(markers, r.caps[name].SuccessMarkers...)
	}
	return markers
}

// Invoke executes one candidate. Every fault is converted into a failed
// ExecutionResult: an unregistered name, a schema violation, an executor
// error, or an executor panic. Nothing propagates, so a tool failure can
// never abort a session.
func (r *Registry) Invoke(ctx context.Context, call CallCandidate) (result ExecutionResult) {
	result = ExecutionResult{
		Call:   call,
		CallID: "call_" + uuid.New().String()[:8],
	}

	desc := r.Get(call.Name)
	if desc == nil {
		result.Failure = FailureUnknownCapability
		result.Rendered = fmt.Sprintf("unknown capability %q", call.Name)
		return result
	}

	args, err := decodeArguments(call.Arguments)
	if err != nil {
		result.Failure = FailureArgumentError
		result.Rendered = fmt.Sprintf("invalid arguments for %s: %v", call.Name, err)
		return result
	}
	if err := validateArguments(desc, args); err != nil {
		result.Failure = FailureArgumentError
		result.Rendered = fmt.Sprintf("invalid arguments for %s: %v", call.Name, err)
		return result
	}

	defer func() {
		if rec := recover(); rec != nil {
			result.Success = false
			result.Value = nil
			result.Failure = FailureOperationFault
			result.Rendered = fmt.Sprintf("%s panicked: %v", call.Name, rec)
		}
	}()

	value, err := desc.Execute(ctx, args)
	if err != nil {
		result.Failure = FailureOperationFault
		result.Rendered = fmt.Sprintf("%s failed: %v", call.Name, err)
		return result
	}

	result.Success = true
	result.Value = value
	result.Rendered = renderValue(value)
	return result
}

// decodeArguments decodes the raw argument object into a map.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// validateArguments checks required presence and primitive types against
// the descriptor schema. Parameters not declared in the schema are passed
// through untouched; the model frequently invents harmless extras.
func validateArguments(desc *CapabilityDescriptor, args map[string]any) error {
	for _, p := range desc.Parameters {
		value, present := args[p.Name]
		if !present {
			if p.Required {
				return fmt.Errorf("missing required parameter %q", p.Name)
			}
			continue
		}
		if !typeMatches(p.Type, value) {
			return fmt.Errorf("parameter %q must be of type %s", p.Name, p.Type)
		}
	}
	return nil
}

func typeMatches(declared string, value any) bool {
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == math.Trunc(f)
	case "number":
		_, ok := value.(float64)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	default:
		return true
	}
}

// renderValue turns an executor's raw value into transcript text.
func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "(no output)"
	case string:
		if v == "" {
			return "(no output)"
		}
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
