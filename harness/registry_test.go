package harness

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoCapability() CapabilityDescriptor {
	return CapabilityDescriptor{
		Name:        "echo",
		Description: "Echo back the message",
		Parameters: []Parameter{
			{Name: "message", Type: "string", Required: true},
			{Name: "upper", Type: "boolean"},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return args["message"], nil
		},
	}
}

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoCapability()))

	assert.Error(t, reg.Register(echoCapability()), "duplicate name must be rejected")
	assert.Error(t, reg.Register(CapabilityDescriptor{Name: "", Execute: func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }}))
	assert.Error(t, reg.Register(CapabilityDescriptor{Name: "no_executor"}))

	assert.NotNil(t, reg.Get("echo"))
	assert.Nil(t, reg.Get("missing"))
	assert.Equal(t, []string{"echo"}, reg.Names())
}

func TestRegistryInvokeSuccess(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(echoCapability())

	result := reg.Invoke(context.Background(), call("echo", `{"message":"hello"}`))
	assert.True(t, result.Success)
	assert.Empty(t, result.Failure)
	assert.Equal(t, "hello", result.Rendered)
	assert.NotEmpty(t, result.CallID)
}

func TestRegistryInvokeUnknownCapability(t *testing.T) {
	reg := NewRegistry()

	result := reg.Invoke(context.Background(), call("nonexistent", `{}`))
	assert.False(t, result.Success)
	assert.Equal(t, FailureUnknownCapability, result.Failure)
	assert.Contains(t, result.Rendered, `unknown capability "nonexistent"`)
}

func TestRegistryInvokeArgumentErrors(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(echoCapability())

	tests := []struct {
		name     string
		args     string
		rendered string
	}{
		{name: "missing required", args: `{}`, rendered: `missing required parameter "message"`},
		{name: "mistyped parameter", args: `{"message":42}`, rendered: `parameter "message" must be of type string`},
		{name: "mistyped optional", args: `{"message":"hi","upper":"yes"}`, rendered: `parameter "upper" must be of type boolean`},
		{name: "arguments not an object", args: `["hi"]`, rendered: "arguments must be a JSON object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := reg.Invoke(context.Background(), call("echo", tt.args))
			assert.False(t, result.Success)
			assert.Equal(t, FailureArgumentError, result.Failure)
			assert.Contains(t, result.Rendered, tt.rendered)
		})
	}
}

func TestRegistryIntegerParameterRejectsFractions(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(CapabilityDescriptor{
		Name: "tail_logs",
		Parameters: []Parameter{
			{Name: "lines", Type: "integer", Required: true},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return args["lines"], nil
		},
	})

	result := reg.Invoke(context.Background(), call("tail_logs", `{"lines":1.5}`))
	assert.False(t, result.Success)
	assert.Equal(t, FailureArgumentError, result.Failure)
	assert.Contains(t, result.Rendered, `parameter "lines" must be of type integer`)

	result = reg.Invoke(context.Background(), call("tail_logs", `{"lines":100}`))
	assert.True(t, result.Success)
}

func TestRegistryInvokeUndeclaredParametersPassThrough(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(echoCapability())

	result := reg.Invoke(context.Background(), call("echo", `{"message":"hi","extra":"ignored"}`))
	assert.True(t, result.Success)
}

func TestRegistryInvokeExecutorError(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(CapabilityDescriptor{
		Name: "fail",
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("disk full")
		},
	})

	result := reg.Invoke(context.Background(), call("fail", `{}`))
	assert.False(t, result.Success)
	assert.Equal(t, FailureOperationFault, result.Failure)
	assert.Equal(t, "fail failed: disk full", result.Rendered)
}

func TestRegistryInvokeRecoversPanic(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(CapabilityDescriptor{
		Name: "explode",
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			panic("boom")
		},
	})

	result := reg.Invoke(context.Background(), call("explode", `{}`))
	assert.False(t, result.Success)
	assert.Equal(t, FailureOperationFault, result.Failure)
	assert.Equal(t, "explode panicked: boom", result.Rendered)
}

func TestRegistryInvokeRendersValues(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		rendered string
	}{
		{name: "string", value: "output", rendered: "output"},
		{name: "empty string", value: "", rendered: "(no output)"},
		{name: "nil", value: nil, rendered: "(no output)"},
		{name: "map rendered as json", value: map[string]any{"ok": true}, rendered: `{"ok":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			value := tt.value
			reg.MustRegister(CapabilityDescriptor{
				Name: "produce",
				Execute: func(ctx context.Context, args map[string]any) (any, error) {
					return value, nil
				},
			})
			result := reg.Invoke(context.Background(), call("produce", `{}`))
			require.True(t, result.Success)
			assert.Equal(t, tt.rendered, result.Rendered)
		})
	}
}

func TestCapabilitySchemaJSON(t *testing.T) {
	desc := echoCapability()
	schema := desc.SchemaJSON()

	data, err := json.Marshal(schema)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"required":["message"]`)

	properties, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, properties, "message")
	assert.Contains(t, properties, "upper")
}

func TestRegistrySuccessMarkers(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(CapabilityDescriptor{
		Name:           "deploy",
		SuccessMarkers: []string{"deployed to"},
		Execute:        func(ctx context.Context, args map[string]any) (any, error) { return nil, nil },
	})
	reg.MustRegister(echoCapability())

	assert.Equal(t, []string{"deployed to"}, reg.SuccessMarkers())
}
