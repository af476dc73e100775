package chat

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool is a host-provided function the model can call. Tools are registered
// before session creation or via SetTools and are never mutated afterwards.
// Fn runs synchronously on the session goroutine, so a blocking tool blocks
// the whole session.
type Tool struct {
	Name        string
	Description string

	// Schema is the JSON schema of the arguments object. Empty means the
	// tool accepts anything.
	Schema json.RawMessage

	Fn func(args json.RawMessage) string
}

// NewTool builds a tool definition.
func NewTool(name, description string, schema json.RawMessage, fn func(json.RawMessage) string) Tool {
	return Tool{Name: name, Description: description, Schema: schema, Fn: fn}
}

// validateArgs checks parsed call arguments against the tool's schema.
// Grammar-constrained decoding makes violations unlikely but not impossible;
// formats without full schema constraints (escaped key-value bodies) rely on
// this check entirely.
func (t *Tool) validateArgs(args json.RawMessage) error {
	if len(t.Schema) == 0 {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(t.Schema)); err != nil {
		return fmt.Errorf("tool %s: schema: %w", t.Name, err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("tool %s: schema: %w", t.Name, err)
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("tool %s: arguments: %w", t.Name, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("tool %s: arguments: %w", t.Name, err)
	}
	return nil
}

// findTool returns the registered tool with the given name. Linear scan;
// tool counts are small.
func findTool(tools []Tool, name string) (*Tool, bool) {
	for i := range tools {
		if tools[i].Name == name {
			return &tools[i], true
		}
	}
	return nil, false
}
