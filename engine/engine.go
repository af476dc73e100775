// Package engine defines the contract between the chat runtime and a native
// inference backend (llama.cpp or compatible). The runtime only ever talks to
// these interfaces; the actual tensor execution, tokenizer, and KV cache live
// behind them. A cgo-backed implementation registers itself with the Registry
// at init time; tests and demos use the deterministic fake in enginetest.
package engine

import "errors"

// Token is a vocabulary id produced by the backend's tokenizer.
type Token int32

// ErrContextFull is returned by Context.Append when the KV cache has no room
// for the requested tokens. The chat runtime reacts by evicting old
// conversation turns and re-synchronizing.
var ErrContextFull = errors.New("engine: context full")

// Model wraps loaded weights. Implementations must be safe for concurrent
// read access: weights are shared by every session on the model, while each
// session owns its private Context.
type Model interface {
	// Tokenize converts text to tokens without adding BOS/EOS markers.
	// The conversion must be deterministic and prefix-stable: equal string
	// prefixes tokenize to equal token prefixes up to the final token.
	Tokenize(text string) ([]Token, error)

	// TokenBytes returns the raw bytes of a token. The bytes of one token
	// are not necessarily valid UTF-8 on their own; multi-byte characters
	// can be split across tokens.
	TokenBytes(t Token) ([]byte, error)

	// IsEOG reports whether the token ends generation for this model.
	IsEOG(t Token) bool

	// NewContext allocates a KV cache holding up to capacity tokens.
	// The context is exclusive to one session.
	NewContext(capacity int) (Context, error)

	// NewSampler builds a sampler for one generation run. Stateful parts
	// (penalty history, grammar position) live for that run only.
	NewSampler(cfg SamplerConfig) (Sampler, error)

	Close() error
}

// Context is a backend inference context: the KV cache plus a position
// counter. NOT safe for concurrent use — the owning session serializes all
// access, and every Append or Sample happens under the InferenceLock shared
// by all sessions on the same weights.
type Context interface {
	// Capacity is the fixed context window size in tokens.
	Capacity() int

	// Pos is the number of tokens currently resident in the KV cache.
	Pos() int

	// Truncate discards cache entries from index from onwards and rewinds
	// the position counter to from. Truncate(0) clears the cache.
	Truncate(from int) error

	// Append feeds tokens into the cache (batch decode), advancing the
	// position. After Append the logits of the last token are available
	// for sampling. Returns ErrContextFull when capacity would be
	// exceeded. On error the cache must be left unchanged, so callers can
	// keep tracking the resident token sequence.
	Append(tokens []Token) error

	Close() error
}

// Sampler selects the next token from a context's current logits. Sampling
// also accepts the token into the sampler's internal state (penalties,
// grammar), so callers must not re-sample the same position.
type Sampler interface {
	Sample(ctx Context) (Token, error)
	Close() error
}

// EmbeddingModel is implemented by backends that can run embedding
// extraction in addition to generation.
type EmbeddingModel interface {
	Model
	NewEmbeddingContext(capacity int) (EmbeddingContext, error)
}

// EmbeddingContext produces pooled embedding vectors for token sequences.
type EmbeddingContext interface {
	Embed(tokens []Token) ([]float32, error)
	Close() error
}
