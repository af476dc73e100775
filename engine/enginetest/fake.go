// Package enginetest provides a deterministic in-memory engine implementing
// the contracts in package engine. Tokenization is rune-level, generation
// replays scripted responses, and contexts record every truncate and append
// so tests can assert on cache reuse.
package enginetest

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"fireside/engine"
)

// Token ranges. Rune tokens carry the rune value directly; byte tokens and
// the EOG marker sit above the Unicode range so they never collide.
const (
	byteBase engine.Token = 0x110000
	// EOG ends a scripted response.
	EOG engine.Token = byteBase + 0x100
)

// Text tokenizes a string the way the fake model does, one token per rune.
func Text(s string) []engine.Token {
	var out []engine.Token
	for _, r := range s {
		out = append(out, engine.Token(r))
	}
	return out
}

// Bytes tokenizes a string into single-byte tokens. Multi-byte characters
// split across tokens, which exercises partial-character reassembly.
func Bytes(s string) []engine.Token {
	out := make([]engine.Token, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = byteBase + engine.Token(s[i])
	}
	return out
}

// Model is a scripted engine.Model. Each NewSampler call consumes the next
// response from Script; when the script runs out, Default is replayed.
type Model struct {
	mu      sync.Mutex
	Script  [][]engine.Token
	Default []engine.Token

	// Samplers counts NewSampler calls, one per generation run.
	Samplers int
	// LastSamplerConfig is the config of the most recent NewSampler call.
	LastSamplerConfig engine.SamplerConfig

	closed bool
}

var _ engine.EmbeddingModel = (*Model)(nil)

// New builds a model that replays the given responses in order. Each
// response string becomes rune tokens followed by EOG.
func New(responses ...string) *Model {
	m := &Model{Default: append(Text("ok"), EOG)}
	for _, r := range responses {
		m.Script = append(m.Script, append(Text(r), EOG))
	}
	return m
}

// AddTokenResponse appends a pre-tokenized response to the script. The
// caller controls termination, so include EOG (or a stop word) explicitly.
func (m *Model) AddTokenResponse(tokens []engine.Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Script = append(m.Script, tokens)
}

func (m *Model) Tokenize(text string) ([]engine.Token, error) {
	if m.isClosed() {
		return nil, fmt.Errorf("enginetest: model closed")
	}
	return Text(text), nil
}

func (m *Model) TokenBytes(t engine.Token) ([]byte, error) {
	switch {
	case t == EOG:
		return nil, nil
	case t >= byteBase && t < byteBase+0x100:
		return []byte{byte(t - byteBase)}, nil
	case t >= 0 && t < byteBase && utf8.ValidRune(rune(t)):
		return []byte(string(rune(t))), nil
	}
	return nil, fmt.Errorf("enginetest: token %d outside vocabulary", t)
}

func (m *Model) IsEOG(t engine.Token) bool { return t == EOG }

func (m *Model) NewContext(capacity int) (engine.Context, error) {
	if m.isClosed() {
		return nil, fmt.Errorf("enginetest: model closed")
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("enginetest: context capacity %d", capacity)
	}
	return &Context{capacity: capacity}, nil
}

func (m *Model) NewSampler(cfg engine.SamplerConfig) (engine.Sampler, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("enginetest: model closed")
	}
	m.Samplers++
	m.LastSamplerConfig = cfg
	queue := m.Default
	if len(m.Script) > 0 {
		queue = m.Script[0]
		m.Script = m.Script[1:]
	}
	return &Sampler{queue: queue}, nil
}

func (m *Model) NewEmbeddingContext(capacity int) (engine.EmbeddingContext, error) {
	if m.isClosed() {
		return nil, fmt.Errorf("enginetest: model closed")
	}
	return &EmbeddingContext{capacity: capacity}, nil
}

func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Model) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Context is an in-memory KV cache standin. It keeps the resident token
// slice plus a log of mutations for assertions.
type Context struct {
	capacity int
	tokens   []engine.Token

	// Truncates records the from index of every Truncate call.
	Truncates []int
	// Appends records a copy of the tokens passed to every Append call.
	Appends [][]engine.Token

	Closed bool
}

func (c *Context) Capacity() int { return c.capacity }
func (c *Context) Pos() int      { return len(c.tokens) }

// Tokens returns the resident tokens. Test helper, not part of the contract.
func (c *Context) Tokens() []engine.Token { return c.tokens }

func (c *Context) Truncate(from int) error {
	if from < 0 || from > len(c.tokens) {
		return fmt.Errorf("enginetest: truncate %d outside [0,%d]", from, len(c.tokens))
	}
	c.Truncates = append(c.Truncates, from)
	c.tokens = c.tokens[:from]
	return nil
}

func (c *Context) Append(tokens []engine.Token) error {
	if len(c.tokens)+len(tokens) > c.capacity {
		return engine.ErrContextFull
	}
	c.Appends = append(c.Appends, append([]engine.Token(nil), tokens...))
	c.tokens = append(c.tokens, tokens...)
	return nil
}

func (c *Context) Close() error {
	c.Closed = true
	return nil
}

// Sampler replays one scripted response token by token. If the script is
// exhausted it keeps returning EOG.
type Sampler struct {
	queue []engine.Token
}

func (s *Sampler) Sample(ctx engine.Context) (engine.Token, error) {
	if len(s.queue) == 0 {
		return EOG, nil
	}
	t := s.queue[0]
	s.queue = s.queue[1:]
	return t, nil
}

func (s *Sampler) Close() error { return nil }

// EmbeddingContext produces a deterministic 8-dim byte-histogram embedding,
// so similar texts get similar vectors.
type EmbeddingContext struct {
	capacity int
	Closed   bool
}

func (e *EmbeddingContext) Embed(tokens []engine.Token) ([]float32, error) {
	if e.Closed {
		return nil, fmt.Errorf("enginetest: embedding context closed")
	}
	if len(tokens) > e.capacity {
		return nil, engine.ErrContextFull
	}
	vec := make([]float32, 8)
	for _, t := range tokens {
		vec[int(t)%len(vec)]++
	}
	return vec, nil
}

func (e *EmbeddingContext) Close() error {
	e.Closed = true
	return nil
}

func init() {
	engine.Register("scripted", func(opts engine.Options) (engine.Model, error) {
		m := New()
		m.Default = append(Text("This backend replays scripted responses; load a real backend for inference."), EOG)
		return m, nil
	})
}
