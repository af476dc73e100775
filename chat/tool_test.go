package chat

import (
	"encoding/json"
	"testing"
)

func TestToolValidateArgs(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"location": {"type": "string"}},
		"required": ["location"]
	}`)
	tool := NewTool("get_weather", "weather lookup", schema, func(json.RawMessage) string { return "ok" })

	tests := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{"valid arguments", `{"location": "Berlin"}`, false},
		{"wrong type", `{"location": 5}`, true},
		{"missing required", `{}`, true},
		{"not json", `{`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tool.validateArgs(json.RawMessage(tt.args))
			if (err != nil) != tt.wantErr {
				t.Errorf("validateArgs(%s) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
		})
	}

	t.Run("empty schema accepts anything", func(t *testing.T) {
		open := NewTool("free", "", nil, func(json.RawMessage) string { return "" })
		if err := open.validateArgs(json.RawMessage(`{"whatever": true}`)); err != nil {
			t.Errorf("validateArgs: %v", err)
		}
	})
}

func TestFindTool(t *testing.T) {
	tools := []Tool{
		NewTool("a", "", nil, func(json.RawMessage) string { return "a" }),
		NewTool("b", "", nil, func(json.RawMessage) string { return "b" }),
	}
	if got, ok := findTool(tools, "b"); !ok || got.Name != "b" {
		t.Errorf("findTool(b) = %v, %v", got, ok)
	}
	if _, ok := findTool(tools, "c"); ok {
		t.Error("findTool(c) unexpectedly succeeded")
	}
}
