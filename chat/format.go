package chat

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"fireside/engine"
)

// ToolFormat describes one model family's tool-call wire syntax: the markers
// that delimit a call in the output stream, the constrained-decoding grammar
// that forces syntactically valid calls, extraction of calls from final
// text, and how calls and tool definitions appear in the rendered prompt.
type ToolFormat interface {
	Name() string

	// BeginToken and EndToken delimit one call in model output.
	BeginToken() string
	EndToken() string

	// Grammar builds the lazy decoding grammar for the registered tools.
	Grammar(tools []Tool) (*engine.Grammar, error)

	// ExtractCalls parses all calls out of a finished response. A nil or
	// empty result means the response is plain text.
	ExtractCalls(text string) []ToolCall

	// FormatCalls renders calls back into wire syntax for re-feeding the
	// conversation through the chat template.
	FormatCalls(calls []ToolCall) string

	// UsesTemplateForTools reports whether the chat template renders tool
	// definitions itself. When false, SystemToolInjection supplies a
	// block to append to the system message instead.
	UsesTemplateForTools() bool
	SystemToolInjection(tools []Tool) (string, bool)
}

var (
	formatMu sync.RWMutex
	formats  = map[string]ToolFormat{}
)

// RegisterToolFormat makes a format available by name. Built-in formats
// register themselves; hosts can add formats for other model families.
func RegisterToolFormat(f ToolFormat) {
	formatMu.Lock()
	defer formatMu.Unlock()
	formats[f.Name()] = f
}

// ToolFormatByName looks up a registered format.
func ToolFormatByName(name string) (ToolFormat, bool) {
	formatMu.RLock()
	defer formatMu.RUnlock()
	f, ok := formats[name]
	return f, ok
}

func init() {
	RegisterToolFormat(Qwen3Format{})
	RegisterToolFormat(GemmaFormat{})
}

// toolDefinitionJSON is the OpenAI-style function declaration most chat
// templates expect in their tools section.
func toolDefinitionJSON(t Tool) string {
	schema := t.Schema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	def := map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  schema,
		},
	}
	b, err := json.Marshal(def)
	if err != nil {
		return ""
	}
	return string(b)
}

// gbnfLiteral quotes s as a GBNF terminal.
func gbnfLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// gbnfJSONRules are the generic JSON value rules shared by formats whose
// call body is JSON. Argument objects are constrained to valid JSON with the
// tool name pinned; full schema-to-grammar compilation is left to the
// backend's grammar tooling.
const gbnfJSONRules = `value ::= object | array | string | number | ("true" | "false" | "null") ws
object ::= "{" ws ( string ":" ws value ("," ws string ":" ws value)* )? "}" ws
array ::= "[" ws ( value ("," ws value)* )? "]" ws
string ::= "\"" ( [^"\\] | "\\" (["\\bfnrt] | "u" [0-9a-fA-F] [0-9a-fA-F] [0-9a-fA-F] [0-9a-fA-F]) )* "\"" ws
number ::= ("-"? ([0-9] | [1-9] [0-9]*)) ("." [0-9]+)? ([eE] [-+]? [0-9]+)? ws
ws ::= [ \t\n]*
`

// Qwen3Format is the Qwen3 family syntax: one JSON object per call wrapped
// in <tool_call> markers.
type Qwen3Format struct{}

func (Qwen3Format) Name() string       { return "qwen3" }
func (Qwen3Format) BeginToken() string { return "<tool_call>" }
func (Qwen3Format) EndToken() string   { return "</tool_call>" }

func (f Qwen3Format) Grammar(tools []Tool) (*engine.Grammar, error) {
	if len(tools) == 0 {
		return nil, fmt.Errorf("chat: no tools to build grammar from")
	}
	var b strings.Builder
	b.WriteString("root ::= toolcall+\n")
	fmt.Fprintf(&b, "toolcall ::= %s ws call ws %s ws\n",
		gbnfLiteral(f.BeginToken()), gbnfLiteral(f.EndToken()))
	alts := make([]string, len(tools))
	for i := range tools {
		alts[i] = fmt.Sprintf("call%d", i)
	}
	fmt.Fprintf(&b, "call ::= %s\n", strings.Join(alts, " | "))
	for i, t := range tools {
		fmt.Fprintf(&b,
			"call%d ::= \"{\" ws \"\\\"name\\\"\" ws \":\" ws %s ws \",\" ws \"\\\"arguments\\\"\" ws \":\" ws value ws \"}\"\n",
			i, gbnfLiteral(`"`+t.Name+`"`))
	}
	b.WriteString(gbnfJSONRules)
	return &engine.Grammar{Root: "root", GBNF: b.String(), TriggerOn: f.BeginToken()}, nil
}

func (f Qwen3Format) ExtractCalls(text string) []ToolCall {
	re := regexp.MustCompile("(?s)" +
		regexp.QuoteMeta(f.BeginToken()) + "(.*?)" + regexp.QuoteMeta(f.EndToken()))
	var calls []ToolCall
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		var call ToolCall
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &call); err != nil {
			continue
		}
		if call.Name == "" {
			continue
		}
		calls = append(calls, call)
	}
	return calls
}

func (f Qwen3Format) FormatCalls(calls []ToolCall) string {
	var parts []string
	for _, c := range calls {
		body, err := json.Marshal(c)
		if err != nil {
			continue
		}
		parts = append(parts, f.BeginToken()+"\n"+string(body)+"\n"+f.EndToken())
	}
	return strings.Join(parts, "\n")
}

func (Qwen3Format) UsesTemplateForTools() bool { return true }

func (Qwen3Format) SystemToolInjection(tools []Tool) (string, bool) { return "", false }

// GemmaFormat is the FunctionGemma syntax:
// <start_function_call>call:name{param:<escape>value<escape>}<end_function_call>
type GemmaFormat struct{}

func (GemmaFormat) Name() string       { return "gemma" }
func (GemmaFormat) BeginToken() string { return "<start_function_call>" }
func (GemmaFormat) EndToken() string   { return "<end_function_call>" }

// schemaProperties returns the sorted property names of a JSON schema's
// top-level object.
func schemaProperties(schema json.RawMessage) []string {
	if len(schema) == 0 {
		return nil
	}
	var s struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(schema, &s); err != nil {
		return nil
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// gbnfRuleName strips characters GBNF rule names cannot carry.
func gbnfRuleName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (f GemmaFormat) Grammar(tools []Tool) (*engine.Grammar, error) {
	if len(tools) == 0 {
		return nil, fmt.Errorf("chat: no tools to build grammar from")
	}
	var b strings.Builder
	b.WriteString("root ::= toolcall\n")
	fmt.Fprintf(&b, "toolcall ::= %s ws call ws %s ws\n",
		gbnfLiteral(f.BeginToken()), gbnfLiteral(f.EndToken()))
	alts := make([]string, len(tools))
	for i, t := range tools {
		alts[i] = "tool" + gbnfRuleName(t.Name)
	}
	fmt.Fprintf(&b, "call ::= %s\n", strings.Join(alts, " | "))
	for i, t := range tools {
		props := schemaProperties(t.Schema)
		if len(props) == 0 {
			fmt.Fprintf(&b, "%s ::= %s\n", alts[i], gbnfLiteral("call:"+t.Name+"{}"))
			continue
		}
		paramsRule := alts[i] + "params"
		fmt.Fprintf(&b, "%s ::= %s %s \"}\"\n",
			alts[i], gbnfLiteral("call:"+t.Name+"{"), paramsRule)
		var items []string
		for j, p := range props {
			if j > 0 {
				items = append(items, `", "`)
			}
			items = append(items, gbnfLiteral(p+":"), "value")
		}
		fmt.Fprintf(&b, "%s ::= %s\n", paramsRule, strings.Join(items, " "))
	}
	b.WriteString("value ::= \"<escape>\" [^<>{},:]* \"<escape>\"\n")
	b.WriteString("ws ::= [ \\t\\n]*\n")
	return &engine.Grammar{Root: "root", GBNF: b.String(), TriggerOn: f.BeginToken()}, nil
}

var (
	gemmaCallRE  = regexp.MustCompile(`<start_function_call>\s*call:(\w+)\{(.*?)\}\s*<end_function_call>`)
	gemmaParamRE = regexp.MustCompile(`(\w+):<escape>(.*?)<escape>`)
)

func (f GemmaFormat) ExtractCalls(text string) []ToolCall {
	var calls []ToolCall
	for _, m := range gemmaCallRE.FindAllStringSubmatch(text, -1) {
		args := map[string]any{}
		for _, pm := range gemmaParamRE.FindAllStringSubmatch(m[2], -1) {
			var v any
			if err := json.Unmarshal([]byte(pm[2]), &v); err != nil {
				v = pm[2]
			}
			args[pm[1]] = v
		}
		raw, err := json.Marshal(args)
		if err != nil {
			continue
		}
		calls = append(calls, ToolCall{Name: m[1], Arguments: raw})
	}
	return calls
}

func (f GemmaFormat) FormatCalls(calls []ToolCall) string {
	var parts []string
	for _, c := range calls {
		var args map[string]json.RawMessage
		_ = json.Unmarshal(c.Arguments, &args)
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var params []string
		for _, k := range keys {
			val := string(args[k])
			var s string
			if err := json.Unmarshal(args[k], &s); err == nil {
				val = s
			}
			params = append(params, k+":<escape>"+val+"<escape>")
		}
		parts = append(parts,
			f.BeginToken()+"call:"+c.Name+"{"+strings.Join(params, ", ")+"}"+f.EndToken())
	}
	return strings.Join(parts, "\n")
}

func (GemmaFormat) UsesTemplateForTools() bool { return false }

func (GemmaFormat) SystemToolInjection(tools []Tool) (string, bool) {
	if len(tools) == 0 {
		return "", false
	}
	var b strings.Builder
	b.WriteString("You can call the following functions:\n")
	for _, t := range tools {
		b.WriteString(toolDefinitionJSON(t))
		b.WriteString("\n")
	}
	return b.String(), true
}
