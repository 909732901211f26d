package harness

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Argument helpers for executors. Validation has already run, so a present
// declared parameter has the declared type.

func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

// DescribeCapabilities renders the registry as a text block suitable for
// embedding in the model instructions: each capability's name, description,
// and JSON parameter schema.
func DescribeCapabilities(reg *Registry) string {
	var sb strings.Builder
	sb.WriteString("Available tools:\n")
	for _, desc := range reg.Descriptors() {
		schema, _ := json.Marshal(desc.SchemaJSON())
		fmt.Fprintf(&sb, "\n- %s: %s\n  parameters: %s\n", desc.Name, desc.Description, schema)
	}
	return sb.String()
}
