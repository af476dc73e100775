package chat

import (
	"fmt"
	"log"
	"slices"
	"strings"
	"sync/atomic"

	"fireside/engine"
)

// worker owns all mutable session state. Exactly one goroutine, the session
// actor, ever touches a worker; the only cross-goroutine state is the
// shouldStop flag and the mailbox.
type worker struct {
	model    engine.Model
	ctx      engine.Context
	lock     *engine.InferenceLock
	pipeline *renderPipeline

	format  ToolFormat
	tools   []Tool
	grammar *engine.Grammar

	sampler         engine.SamplerConfig
	allowThinking   bool
	stopWords       []string
	keepRecentTurns int

	messages []Message
	// tokensInContext is the exact token sequence resident in the native
	// context, the baseline for prefix-diff reuse.
	tokensInContext []engine.Token

	shouldStop *atomic.Bool
}

func newWorker(model engine.Model, lock *engine.InferenceLock, cfg Config, stop *atomic.Bool) (*worker, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: nil model", ErrInit)
	}
	if lock == nil {
		return nil, fmt.Errorf("%w: nil inference lock", ErrInit)
	}
	defaults := DefaultConfig()
	if cfg.ContextSize <= 0 {
		cfg.ContextSize = defaults.ContextSize
	}
	if cfg.Format == nil {
		cfg.Format = defaults.Format
	}
	if cfg.Template == nil {
		cfg.Template = NewChatMLRenderer()
	}
	if cfg.KeepRecentTurns <= 0 {
		cfg.KeepRecentTurns = defaults.KeepRecentTurns
	}
	if cfg.Sampler == (engine.SamplerConfig{}) {
		cfg.Sampler = defaults.Sampler
	}

	ctx, err := model.NewContext(cfg.ContextSize)
	if err != nil {
		return nil, fmt.Errorf("%w: context: %v", ErrInit, err)
	}

	w := &worker{
		model:           model,
		ctx:             ctx,
		lock:            lock,
		pipeline:        newRenderPipeline(cfg.Template),
		format:          cfg.Format,
		sampler:         cfg.Sampler,
		allowThinking:   cfg.AllowThinking,
		stopWords:       slices.Clone(cfg.StopWords),
		keepRecentTurns: cfg.KeepRecentTurns,
		shouldStop:      stop,
	}
	if cfg.SystemPrompt != "" {
		w.messages = append(w.messages, SystemMessage(cfg.SystemPrompt))
	}
	if err := w.applyTools(cfg.Tools); err != nil {
		ctx.Close()
		return nil, fmt.Errorf("%w: %v", ErrInit, err)
	}
	return w, nil
}

func (w *worker) close() {
	if w.ctx != nil {
		w.ctx.Close()
	}
}

// ask runs the tool-call state machine for one user turn: generate, and
// while the response carries tool calls, execute them and generate again
// with the tool results appended.
func (w *worker) ask(text string, emit func(Output)) error {
	w.shouldStop.Store(false)
	w.messages = append(w.messages, UserMessage(text))

	cfg := w.sampler
	begin := w.format.BeginToken()
	if w.grammar != nil {
		cfg.Grammar = w.grammar
	}

	resp, err := w.generateTurn(cfg, emit, begin)
	if err != nil {
		return err
	}

	for {
		calls := w.format.ExtractCalls(resp)
		if len(calls) == 0 {
			break
		}
		w.messages = append(w.messages, toolCallsMessage(calls))
		for _, call := range calls {
			w.messages = append(w.messages, toolResponseMessage(call.Name, w.runTool(call)))
		}
		if resp, err = w.generateTurn(cfg, emit, begin); err != nil {
			return err
		}
	}

	if begin != "" && strings.Contains(resp, begin) {
		log.Printf("chat: committed response contains %q, tool-call suppression defect", begin)
	}
	w.messages = append(w.messages, AssistantMessage(resp))

	// The model has already decoded its own response, so the cache holds
	// more than the last render. Approximate with a fresh render of the
	// committed history; the next prefix-diff repairs any remainder.
	rendered, err := w.renderTokens()
	if err != nil {
		return err
	}
	w.tokensInContext = rendered
	return nil
}

// runTool executes one call synchronously. Unknown names and schema
// violations are surfaced to the model as error responses, never to the
// caller; the orchestration loop continues either way.
func (w *worker) runTool(call ToolCall) string {
	tool, ok := findTool(w.tools, call.Name)
	if !ok {
		log.Printf("chat: model called unregistered tool %q", call.Name)
		return "ERROR - Invalid tool name: " + call.Name
	}
	if err := tool.validateArgs(call.Arguments); err != nil {
		log.Printf("chat: rejected tool call: %v", err)
		return "ERROR - Invalid arguments: " + err.Error()
	}
	return tool.Fn(call.Arguments)
}

// resync re-renders the full history and aligns the native context, so the
// next ask starts from a valid tokensInContext baseline.
func (w *worker) resync() error {
	rendered, err := w.renderTokens()
	if err != nil {
		return err
	}
	return w.syncContext(rendered)
}

func (w *worker) applyTools(tools []Tool) error {
	if len(tools) == 0 {
		w.tools = nil
		w.grammar = nil
		return nil
	}
	grammar, err := w.format.Grammar(tools)
	if err != nil {
		return fmt.Errorf("tool grammar: %w", err)
	}
	w.tools = slices.Clone(tools)
	w.grammar = grammar
	return nil
}

func (w *worker) resetChat(systemPrompt string, tools []Tool) error {
	if err := w.applyTools(tools); err != nil {
		return err
	}
	w.messages = nil
	if systemPrompt != "" {
		w.messages = append(w.messages, SystemMessage(systemPrompt))
	}
	return w.resync()
}

func (w *worker) setTools(tools []Tool) error {
	if err := w.applyTools(tools); err != nil {
		return err
	}
	return w.resync()
}

func (w *worker) setSystemPrompt(text string) error {
	hasSystem := len(w.messages) > 0 && w.messages[0].Role == RoleSystem
	switch {
	case text == "" && hasSystem:
		w.messages = w.messages[1:]
	case text != "" && hasSystem:
		w.messages[0] = SystemMessage(text)
	case text != "":
		w.messages = append([]Message{SystemMessage(text)}, w.messages...)
	}
	return w.resync()
}

// history returns the conversation without the system message.
func (w *worker) history() []Message {
	msgs := w.messages
	if len(msgs) > 0 && msgs[0].Role == RoleSystem {
		msgs = msgs[1:]
	}
	return slices.Clone(msgs)
}

// setHistory replaces everything after the system message. System-role
// entries in the input are dropped; the session's own system prompt stays.
func (w *worker) setHistory(messages []Message) error {
	var next []Message
	if len(w.messages) > 0 && w.messages[0].Role == RoleSystem {
		next = append(next, w.messages[0])
	}
	for _, m := range messages {
		if m.Role == RoleSystem {
			continue
		}
		next = append(next, m)
	}
	w.messages = next
	return w.resync()
}
