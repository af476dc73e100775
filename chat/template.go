package chat

import (
	"fmt"
	"strings"
)

// RenderOptions carry the per-session rendering context.
type RenderOptions struct {
	AllowThinking bool
	Tools         []Tool
	Format        ToolFormat
}

// TemplateRenderer turns a message list into the prompt string fed to the
// model. Renders must be deterministic for identical inputs; the prefix-diff
// cache reuse depends on it.
type TemplateRenderer interface {
	Render(messages []Message, opts RenderOptions) (string, error)
}

// renderPipeline wraps a TemplateRenderer with a one-time capability probe.
// Renderers that reject the system role get the system message merged into
// the first user message at render time, instead of sniffing error strings
// on every render.
type renderPipeline struct {
	renderer    TemplateRenderer
	mergeSystem bool
}

func newRenderPipeline(r TemplateRenderer) *renderPipeline {
	p := &renderPipeline{renderer: r}
	probe := []Message{
		SystemMessage("You are a helpful assistant."),
		UserMessage("Hello"),
	}
	if _, err := r.Render(probe, RenderOptions{AllowThinking: true}); err != nil {
		p.mergeSystem = true
	}
	return p
}

func (p *renderPipeline) Render(messages []Message, opts RenderOptions) (string, error) {
	if p.mergeSystem && len(messages) > 0 && messages[0].Role == RoleSystem {
		if len(messages) == 1 {
			// Nothing but the system prompt; there is no user message
			// to merge into yet, so the prompt is empty.
			return "", nil
		}
		if messages[1].Role != RoleUser {
			return "", fmt.Errorf("cannot merge system prompt: second message is %s, not user", messages[1].Role)
		}
		merged := make([]Message, 0, len(messages)-1)
		merged = append(merged, UserMessage(messages[0].Content+"\n\n"+messages[1].Content))
		merged = append(merged, messages[2:]...)
		messages = merged
	}
	return p.renderer.Render(messages, opts)
}

// ChatMLRenderer renders the ChatML prompt layout used by the Qwen family.
// It is the default template; hosts with other model families provide their
// own TemplateRenderer.
type ChatMLRenderer struct{}

// NewChatMLRenderer returns the built-in default renderer.
func NewChatMLRenderer() ChatMLRenderer { return ChatMLRenderer{} }

func (ChatMLRenderer) Render(messages []Message, opts RenderOptions) (string, error) {
	var b strings.Builder
	rest := messages

	format := opts.Format
	if format == nil {
		format = Qwen3Format{}
	}

	systemContent := ""
	if len(rest) > 0 && rest[0].Role == RoleSystem {
		systemContent = rest[0].Content
		rest = rest[1:]
	}

	switch {
	case len(opts.Tools) > 0 && format.UsesTemplateForTools():
		b.WriteString("<|im_start|>system\n")
		if systemContent != "" {
			b.WriteString(systemContent)
			b.WriteString("\n\n")
		}
		b.WriteString("# Tools\n\nYou may call one or more functions to assist with the user query.\n\n")
		b.WriteString("You are provided with function signatures within <tools></tools> XML tags:\n<tools>")
		for _, t := range opts.Tools {
			b.WriteString("\n")
			b.WriteString(toolDefinitionJSON(t))
		}
		b.WriteString("\n</tools>\n\nFor each function call, return a json object with function name and arguments within ")
		b.WriteString(format.BeginToken())
		b.WriteString(format.EndToken())
		b.WriteString(" XML tags:\n")
		b.WriteString(format.BeginToken())
		b.WriteString("\n{\"name\": <function-name>, \"arguments\": <args-json-object>}\n")
		b.WriteString(format.EndToken())
		b.WriteString("<|im_end|>\n")
	case len(opts.Tools) > 0:
		injection, ok := format.SystemToolInjection(opts.Tools)
		content := systemContent
		if ok {
			if content != "" {
				content += "\n\n"
			}
			content += injection
		}
		if content != "" {
			b.WriteString("<|im_start|>system\n")
			b.WriteString(content)
			b.WriteString("<|im_end|>\n")
		}
	case systemContent != "":
		b.WriteString("<|im_start|>system\n")
		b.WriteString(systemContent)
		b.WriteString("<|im_end|>\n")
	}

	for _, m := range rest {
		switch {
		case m.Role == RoleAssistant && len(m.ToolCalls) > 0:
			b.WriteString("<|im_start|>assistant\n")
			if m.Content != "" {
				b.WriteString(m.Content)
				b.WriteString("\n")
			}
			b.WriteString(format.FormatCalls(m.ToolCalls))
			b.WriteString("<|im_end|>\n")
		case m.Role == RoleTool:
			b.WriteString("<|im_start|>user\n<tool_response>\n")
			b.WriteString(m.Content)
			b.WriteString("\n</tool_response><|im_end|>\n")
		case m.Role == RoleSystem:
			return "", fmt.Errorf("system message at position other than first")
		default:
			b.WriteString("<|im_start|>")
			b.WriteString(string(m.Role))
			b.WriteString("\n")
			b.WriteString(m.Content)
			b.WriteString("<|im_end|>\n")
		}
	}

	b.WriteString("<|im_start|>assistant\n")
	if !opts.AllowThinking {
		b.WriteString("<think>\n\n</think>\n\n")
	}
	return b.String(), nil
}
