// Package embed provides embedding sessions: text-to-vector extraction on a
// dedicated actor goroutine, sharing the process-wide inference lock with
// the chat sessions running on the same weights.
package embed

import (
	"fmt"
	"math"

	"fireside/engine"
)

// Session is a handle to one embedding worker. Safe for use from any
// goroutine; requests are processed strictly in send order.
type Session struct {
	cmds chan embedCmd
	dead chan struct{}
}

type embedCmd struct {
	text string
	out  chan embedResult
}

type embedResult struct {
	vec []float32
	err error
}

// ErrSessionClosed is returned by Embed after the session actor has exited.
var ErrSessionClosed = fmt.Errorf("embed: session closed")

// NewSession allocates an embedding context on the model. contextSize caps
// the input length in tokens; zero means 512.
func NewSession(model engine.EmbeddingModel, lock *engine.InferenceLock, contextSize int) (*Session, error) {
	if lock == nil {
		return nil, fmt.Errorf("embed: nil inference lock")
	}
	if contextSize <= 0 {
		contextSize = 512
	}
	ectx, err := model.NewEmbeddingContext(contextSize)
	if err != nil {
		return nil, fmt.Errorf("embed: context: %w", err)
	}
	s := &Session{
		cmds: make(chan embedCmd, 16),
		dead: make(chan struct{}),
	}
	go s.run(model, lock, ectx)
	return s, nil
}

func (s *Session) run(model engine.EmbeddingModel, lock *engine.InferenceLock, ectx engine.EmbeddingContext) {
	defer close(s.dead)
	defer ectx.Close()

	for cmd := range s.cmds {
		if cmd.text == "" && cmd.out == nil {
			return
		}
		tokens, err := model.Tokenize(cmd.text)
		if err != nil {
			cmd.out <- embedResult{err: fmt.Errorf("embed: tokenize: %w", err)}
			continue
		}
		lock.Lock()
		vec, err := ectx.Embed(tokens)
		lock.Unlock()
		if err != nil {
			cmd.out <- embedResult{err: fmt.Errorf("embed: %w", err)}
			continue
		}
		cmd.out <- embedResult{vec: vec}
	}
}

// Embed returns the pooled embedding vector for text.
func (s *Session) Embed(text string) ([]float32, error) {
	out := make(chan embedResult, 1)
	select {
	case s.cmds <- embedCmd{text: text, out: out}:
	case <-s.dead:
		return nil, ErrSessionClosed
	}
	select {
	case res := <-out:
		return res.vec, res.err
	case <-s.dead:
		return nil, ErrSessionClosed
	}
}

// Close stops the actor after draining queued requests.
func (s *Session) Close() error {
	select {
	case s.cmds <- embedCmd{}:
		<-s.dead
	case <-s.dead:
	}
	return nil
}

// CosineSimilarity compares two vectors in [-1, 1]. Mismatched lengths and
// zero vectors compare as 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
