package chat

import (
	"fmt"
	"strings"

	"fireside/engine"
)

// generate runs the token loop: sample, decode, reassemble bytes, stream
// fragments, until end-of-generation, a stop word, or cancellation. The
// inference lock is taken per sample/decode step so concurrent sessions
// interleave at token granularity rather than turn granularity.
func (w *worker) generate(cfg engine.SamplerConfig, emit func(Output)) error {
	sampler, err := w.model.NewSampler(cfg)
	if err != nil {
		return fmt.Errorf("%w: sampler: %v", ErrDecode, err)
	}
	defer sampler.Close()

	var full strings.Builder
	var generated []engine.Token
	var buf ReassemblyBuffer
	emitted := 0
	maxStop := 0
	for _, s := range w.stopWords {
		if len(s) > maxStop {
			maxStop = len(s)
		}
	}

	for !w.shouldStop.Load() {
		if w.ctx.Pos() == w.ctx.Capacity() {
			// The window filled mid-generation. Evict, re-align the
			// context with the shrunken history, then replay this
			// turn's tokens. tokensInContext deliberately excludes
			// the replayed tokens; ask reconciles it after the
			// assistant message is committed.
			if err := w.contextShift(); err != nil {
				return err
			}
			rendered, err := w.renderTokens()
			if err != nil {
				return err
			}
			if err := w.syncContext(rendered); err != nil {
				return err
			}
			w.lock.Lock()
			err = w.ctx.Append(generated)
			w.lock.Unlock()
			if err != nil {
				return fmt.Errorf("%w: replaying generated tokens: %v", ErrContextSync, err)
			}
		}

		w.lock.Lock()
		token, err := sampler.Sample(w.ctx)
		if err == nil {
			err = w.ctx.Append([]engine.Token{token})
		}
		w.lock.Unlock()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDecode, err)
		}
		generated = append(generated, token)

		raw, err := w.model.TokenBytes(token)
		if err != nil {
			return fmt.Errorf("%w: token bytes: %v", ErrDecode, err)
		}
		if w.model.IsEOG(token) {
			break
		}
		fragment, ready := buf.Feed(raw)
		if !ready {
			continue
		}
		full.WriteString(fragment)
		text := full.String()

		if maxStop > 0 {
			// A match can only end inside this fragment; earlier
			// completions were caught when their last byte arrived,
			// so scanning a bounded window suffices.
			from := len(text) - len(fragment) - maxStop + 1
			if from < 0 {
				from = 0
			}
			if stop, at := matchStopWord(text[from:], w.stopWords); stop {
				at += from
				if at > emitted {
					emit(Output{Token: text[emitted:at]})
				}
				emit(Output{Done: true, Final: text[:at]})
				return nil
			}
		}

		// Hold back a suffix that could still grow into a stop word, so
		// text the stop word would trim is never streamed.
		end := len(text) - longestStopPrefix(text, w.stopWords)
		if end > emitted {
			emit(Output{Token: text[emitted:end]})
			emitted = end
		}
	}

	// A held suffix that never completed a stop word is real output.
	text := full.String()
	if len(text) > emitted {
		emit(Output{Token: text[emitted:]})
	}
	emit(Output{Done: true, Final: text})
	return nil
}

// matchStopWord reports whether any stop word occurs in text and the offset
// of the earliest occurrence. Callers pass a window covering the newest
// fragment rather than the whole response.
func matchStopWord(text string, stopWords []string) (bool, int) {
	found := false
	at := len(text)
	for _, s := range stopWords {
		if s == "" {
			continue
		}
		if i := strings.Index(text, s); i >= 0 && i < at {
			found = true
			at = i
		}
	}
	return found, at
}

// longestStopPrefix returns the length of the longest suffix of text that is
// a proper prefix of any stop word.
func longestStopPrefix(text string, stopWords []string) int {
	hold := 0
	for _, s := range stopWords {
		if k := longestMarkerPrefix(text, s); k > hold {
			hold = k
		}
	}
	return hold
}

// generateTurn aligns the context with the current history (shifting first
// when even the bare render overflows) and runs one generation. Token
// emission goes through an emissionGate: from the moment the tool-call begin
// marker appears in the stream, nothing further reaches the caller, and
// fragments that could be a prefix of the marker are held back until they
// resolve. Decoding continues regardless so the full call can be parsed. A
// suppressed generation's Done is withheld too: the caller gets exactly one
// Done per Ask, from the final call-free generation.
func (w *worker) generateTurn(cfg engine.SamplerConfig, emit func(Output), beginToken string) (string, error) {
	rendered, err := w.renderTokens()
	if err != nil {
		return "", err
	}
	if len(rendered) > w.ctx.Capacity() {
		if err := w.contextShift(); err != nil {
			return "", err
		}
		if rendered, err = w.renderTokens(); err != nil {
			return "", err
		}
	}
	if err := w.syncContext(rendered); err != nil {
		return "", err
	}

	gate := &emissionGate{begin: beginToken, emit: emit}
	var final string
	wrapped := func(o Output) {
		if o.Done {
			final = o.Final
			gate.finish(o.Final)
			return
		}
		gate.feed(o.Token)
	}

	if err := w.generate(cfg, wrapped); err != nil {
		return "", err
	}
	return final, nil
}

// emissionGate filters a generation's stream so the caller never sees
// tool-call syntax, whole or partial. Text whose suffix could still grow
// into the begin marker is held until the next fragment decides; once the
// marker is complete everything from it onward is dropped, including Done.
type emissionGate struct {
	begin      string
	emit       func(Output)
	held       string
	suppressed bool
}

func (g *emissionGate) feed(fragment string) {
	if g.begin == "" {
		g.emit(Output{Token: fragment})
		return
	}
	if g.suppressed {
		return
	}
	text := g.held + fragment
	if i := strings.Index(text, g.begin); i >= 0 {
		g.suppressed = true
		g.held = ""
		if i > 0 {
			g.emit(Output{Token: text[:i]})
		}
		return
	}
	hold := longestMarkerPrefix(text, g.begin)
	if out := text[:len(text)-hold]; out != "" {
		g.emit(Output{Token: out})
	}
	g.held = text[len(text)-hold:]
}

func (g *emissionGate) finish(final string) {
	if g.suppressed {
		return
	}
	if g.held != "" {
		g.emit(Output{Token: g.held})
		g.held = ""
	}
	g.emit(Output{Done: true, Final: final})
}

// longestMarkerPrefix returns the length of the longest suffix of text that
// is a proper prefix of marker.
func longestMarkerPrefix(text, marker string) int {
	maxLen := min(len(text), len(marker)-1)
	for k := maxLen; k > 0; k-- {
		if strings.HasSuffix(text, marker[:k]) {
			return k
		}
	}
	return 0
}
