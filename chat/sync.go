package chat

import (
	"fmt"

	"fireside/engine"
)

// prefixDiff compares the tokens already resident in the context with a
// fresh render and returns the index of the first divergence plus the tokens
// that still need to be fed. Everything before the index is reused from the
// KV cache; this is the perf-critical path that makes long conversations
// cheap to extend.
func prefixDiff(old, rendered []engine.Token) (int, []engine.Token) {
	if len(old) == 0 {
		return 0, rendered
	}
	n := min(len(old), len(rendered))
	for i := 0; i < n; i++ {
		if old[i] != rendered[i] {
			return i, rendered[i:]
		}
	}
	if len(rendered) <= len(old) {
		return len(rendered), nil
	}
	return len(old), rendered[len(old):]
}

// syncContext makes the native context hold exactly rendered: truncate at
// the divergence point, feed the tail, and track tokensInContext in lockstep
// so an error partway through never leaves the two out of agreement.
func (w *worker) syncContext(rendered []engine.Token) error {
	p, tail := prefixDiff(w.tokensInContext, rendered)

	w.lock.Lock()
	defer w.lock.Unlock()

	if err := w.ctx.Truncate(p); err != nil {
		return fmt.Errorf("%w: truncate at %d: %v", ErrContextSync, p, err)
	}
	if len(w.tokensInContext) > p {
		w.tokensInContext = w.tokensInContext[:p]
	}
	if len(tail) > 0 {
		if err := w.ctx.Append(tail); err != nil {
			return fmt.Errorf("%w: feeding %d tokens: %v", ErrContextSync, len(tail), err)
		}
	}
	w.tokensInContext = rendered
	return nil
}

// renderTokens renders the current message list and tokenizes the result.
func (w *worker) renderTokens() ([]engine.Token, error) {
	return w.renderTokensOf(w.messages)
}

func (w *worker) renderTokensOf(messages []Message) ([]engine.Token, error) {
	text, err := w.pipeline.Render(messages, w.renderOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	tokens, err := w.model.Tokenize(text)
	if err != nil {
		return nil, fmt.Errorf("%w: tokenize: %v", ErrContextSync, err)
	}
	return tokens, nil
}

func (w *worker) renderOptions() RenderOptions {
	return RenderOptions{
		AllowThinking: w.allowThinking,
		Tools:         w.tools,
		Format:        w.format,
	}
}
