package chat

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestQwen3ExtractCalls(t *testing.T) {
	f := Qwen3Format{}

	t.Run("single call", func(t *testing.T) {
		input := `<tool_call>{"name": "get_weather", "arguments": {"location": "San Francisco"}}</tool_call>`
		calls := f.ExtractCalls(input)
		if len(calls) != 1 {
			t.Fatalf("got %d calls, want 1", len(calls))
		}
		if calls[0].Name != "get_weather" {
			t.Errorf("name = %q, want get_weather", calls[0].Name)
		}
		var args map[string]string
		if err := json.Unmarshal(calls[0].Arguments, &args); err != nil {
			t.Fatalf("arguments: %v", err)
		}
		if args["location"] != "San Francisco" {
			t.Errorf("location = %q", args["location"])
		}
	})

	t.Run("multiple calls", func(t *testing.T) {
		input := `<tool_call>{"name": "tool1", "arguments": {"a": 1}}</tool_call>` +
			`<tool_call>{"name": "tool2", "arguments": {"b": 2}}</tool_call>`
		calls := f.ExtractCalls(input)
		if len(calls) != 2 {
			t.Fatalf("got %d calls, want 2", len(calls))
		}
		if calls[0].Name != "tool1" || calls[1].Name != "tool2" {
			t.Errorf("names = %q, %q", calls[0].Name, calls[1].Name)
		}
	})

	t.Run("multiline body", func(t *testing.T) {
		input := "<tool_call>\n{\"name\": \"tool1\", \"arguments\": {}}\n</tool_call>"
		if calls := f.ExtractCalls(input); len(calls) != 1 {
			t.Fatalf("got %d calls, want 1", len(calls))
		}
	})

	t.Run("plain text", func(t *testing.T) {
		if calls := f.ExtractCalls("This is just regular text."); len(calls) != 0 {
			t.Fatalf("got %d calls, want 0", len(calls))
		}
	})

	t.Run("malformed body skipped", func(t *testing.T) {
		input := `<tool_call>not json</tool_call><tool_call>{"name": "ok", "arguments": {}}</tool_call>`
		calls := f.ExtractCalls(input)
		if len(calls) != 1 || calls[0].Name != "ok" {
			t.Fatalf("calls = %+v, want one call named ok", calls)
		}
	})
}

func TestQwen3FormatCallsRoundTrip(t *testing.T) {
	f := Qwen3Format{}
	in := []ToolCall{
		{Name: "get_weather", Arguments: json.RawMessage(`{"location":"Berlin"}`)},
		{Name: "get_time", Arguments: json.RawMessage(`{}`)},
	}
	out := f.ExtractCalls(f.FormatCalls(in))
	if len(out) != 2 {
		t.Fatalf("got %d calls, want 2", len(out))
	}
	if out[0].Name != "get_weather" || out[1].Name != "get_time" {
		t.Errorf("names = %q, %q", out[0].Name, out[1].Name)
	}
}

func TestQwen3Grammar(t *testing.T) {
	f := Qwen3Format{}
	tools := []Tool{
		NewTool("get_weather", "weather", json.RawMessage(`{"type":"object"}`), func(json.RawMessage) string { return "" }),
	}
	g, err := f.Grammar(tools)
	if err != nil {
		t.Fatalf("Grammar: %v", err)
	}
	if g.Root != "root" {
		t.Errorf("root = %q", g.Root)
	}
	if g.TriggerOn != "<tool_call>" {
		t.Errorf("trigger = %q", g.TriggerOn)
	}
	for _, want := range []string{`"<tool_call>"`, `"</tool_call>"`, `"\"get_weather\""`, "value ::="} {
		if !strings.Contains(g.GBNF, want) {
			t.Errorf("grammar missing %s:\n%s", want, g.GBNF)
		}
	}

	if _, err := f.Grammar(nil); err == nil {
		t.Error("expected error for empty tool set")
	}
}

func TestGemmaExtractCalls(t *testing.T) {
	f := GemmaFormat{}

	t.Run("single param", func(t *testing.T) {
		input := `<start_function_call>call:get_weather{location:<escape>San Francisco<escape>}<end_function_call>`
		calls := f.ExtractCalls(input)
		if len(calls) != 1 {
			t.Fatalf("got %d calls, want 1", len(calls))
		}
		if calls[0].Name != "get_weather" {
			t.Errorf("name = %q", calls[0].Name)
		}
		var args map[string]any
		if err := json.Unmarshal(calls[0].Arguments, &args); err != nil {
			t.Fatalf("arguments: %v", err)
		}
		if args["location"] != "San Francisco" {
			t.Errorf("location = %v", args["location"])
		}
	})

	t.Run("numbers parse as numbers", func(t *testing.T) {
		input := `<start_function_call>call:calculate{x:<escape>10<escape>, y:<escape>20<escape>, op:<escape>add<escape>}<end_function_call>`
		calls := f.ExtractCalls(input)
		if len(calls) != 1 {
			t.Fatalf("got %d calls, want 1", len(calls))
		}
		var args map[string]any
		if err := json.Unmarshal(calls[0].Arguments, &args); err != nil {
			t.Fatalf("arguments: %v", err)
		}
		if args["x"] != float64(10) || args["op"] != "add" {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("no params", func(t *testing.T) {
		calls := f.ExtractCalls(`<start_function_call>call:get_time{}<end_function_call>`)
		if len(calls) != 1 || calls[0].Name != "get_time" {
			t.Fatalf("calls = %+v", calls)
		}
		if string(calls[0].Arguments) != "{}" {
			t.Errorf("arguments = %s, want {}", calls[0].Arguments)
		}
	})

	t.Run("plain text", func(t *testing.T) {
		if calls := f.ExtractCalls("nothing here"); len(calls) != 0 {
			t.Fatalf("got %d calls, want 0", len(calls))
		}
	})
}

func TestGemmaGrammar(t *testing.T) {
	f := GemmaFormat{}
	schema := json.RawMessage(`{"type":"object","properties":{"location":{"type":"string"},"unit":{"type":"string"}}}`)
	tools := []Tool{
		NewTool("get_weather", "weather", schema, func(json.RawMessage) string { return "" }),
		NewTool("get_time", "time", nil, func(json.RawMessage) string { return "" }),
	}
	g, err := f.Grammar(tools)
	if err != nil {
		t.Fatalf("Grammar: %v", err)
	}
	if g.TriggerOn != "<start_function_call>" {
		t.Errorf("trigger = %q", g.TriggerOn)
	}
	for _, want := range []string{
		`"call:get_weather{"`,
		`"location:"`,
		`"unit:"`,
		`"call:get_time{}"`,
		`"<escape>"`,
	} {
		if !strings.Contains(g.GBNF, want) {
			t.Errorf("grammar missing %s:\n%s", want, g.GBNF)
		}
	}
}

func TestToolFormatRegistry(t *testing.T) {
	for _, name := range []string{"qwen3", "gemma"} {
		if _, ok := ToolFormatByName(name); !ok {
			t.Errorf("format %q not registered", name)
		}
	}
	if _, ok := ToolFormatByName("nope"); ok {
		t.Error("unexpected format registered under nope")
	}
}
