package chat

import (
	"log"
	"sync"
	"sync/atomic"

	"fireside/engine"
)

// Session is a handle to one conversation. All state lives on a dedicated
// actor goroutine; the handle's methods send commands through a FIFO mailbox
// and are safe to call from any goroutine. Setter commands block until the
// actor has applied them, so a subsequent Ask observes consistent state.
type Session struct {
	cmds chan command
	dead chan struct{}
	stop *atomic.Bool

	// sendMu fences mailbox shutdown: senders hold the read lock across
	// the enqueue, and the exiting actor takes the write lock after dead
	// closes, so every command that won the race into the mailbox is
	// still in it when drainMailbox runs.
	sendMu sync.RWMutex
}

type command interface{}

type askCmd struct {
	text string
	out  chan Output
}

type resetCmd struct {
	systemPrompt string
	tools        []Tool
	ack          chan error
}

type setToolsCmd struct {
	tools []Tool
	ack   chan error
}

type setSystemPromptCmd struct {
	text string
	ack  chan error
}

type setThinkingCmd struct {
	allow bool
	ack   chan error
}

type setSamplerCmd struct {
	cfg engine.SamplerConfig
	ack chan error
}

type getHistoryCmd struct {
	out chan []Message
}

type setHistoryCmd struct {
	messages []Message
	ack      chan error
}

type closeCmd struct{}

// NewSession loads a conversation onto the given model. The lock must be the
// process-wide inference lock shared by every session on the same weights.
// Initialization failures surface here; the actor goroutine starts only on
// success.
func NewSession(model engine.Model, lock *engine.InferenceLock, cfg Config) (*Session, error) {
	stop := &atomic.Bool{}
	w, err := newWorker(model, lock, cfg, stop)
	if err != nil {
		return nil, err
	}
	s := &Session{
		cmds: make(chan command, 16),
		dead: make(chan struct{}),
		stop: stop,
	}
	go s.run(w)
	return s, nil
}

func (s *Session) run(w *worker) {
	defer s.drainMailbox()
	defer close(s.dead)
	defer w.close()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("chat: session actor panicked: %v", r)
		}
	}()

	for cmd := range s.cmds {
		switch c := cmd.(type) {
		case askCmd:
			s.handleAsk(w, c)
		case resetCmd:
			c.ack <- w.resetChat(c.systemPrompt, c.tools)
		case setToolsCmd:
			c.ack <- w.setTools(c.tools)
		case setSystemPromptCmd:
			c.ack <- w.setSystemPrompt(c.text)
		case setThinkingCmd:
			w.allowThinking = c.allow
			c.ack <- nil
		case setSamplerCmd:
			w.sampler = c.cfg
			c.ack <- nil
		case getHistoryCmd:
			c.out <- w.history()
		case setHistoryCmd:
			c.ack <- w.setHistory(c.messages)
		case closeCmd:
			return
		}
	}
}

// handleAsk guarantees the output channel closes even when the turn aborts
// or the worker panics, so stream consumers never hang. A turn error closes
// the stream without a Done event and leaves the session usable.
func (s *Session) handleAsk(w *worker, c askCmd) {
	defer close(c.out)
	if err := w.ask(c.text, func(o Output) { c.out <- o }); err != nil {
		log.Printf("chat: ask aborted: %v", err)
	}
}

func (s *Session) send(c command) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	select {
	case <-s.dead:
		return ErrSessionClosed
	default:
	}
	select {
	case s.cmds <- c:
		return nil
	case <-s.dead:
		return ErrSessionClosed
	}
}

// drainMailbox fails every command left in the mailbox after the actor
// exits. Without it, a command that raced past a closing session would sit
// in the buffer forever; for an Ask that means a stream nobody ever closes.
func (s *Session) drainMailbox() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	for {
		select {
		case cmd := <-s.cmds:
			failCommand(cmd)
		default:
			return
		}
	}
}

// failCommand resolves one abandoned command. Ask streams are closed so
// consumers observe the turn-aborted ending; ack channels are buffered, so
// the sends cannot block. getHistoryCmd needs no reply, its caller selects
// on dead.
func failCommand(cmd command) {
	switch c := cmd.(type) {
	case askCmd:
		close(c.out)
	case resetCmd:
		c.ack <- ErrSessionClosed
	case setToolsCmd:
		c.ack <- ErrSessionClosed
	case setSystemPromptCmd:
		c.ack <- ErrSessionClosed
	case setThinkingCmd:
		c.ack <- ErrSessionClosed
	case setSamplerCmd:
		c.ack <- ErrSessionClosed
	case setHistoryCmd:
		c.ack <- ErrSessionClosed
	}
}

func (s *Session) await(ack chan error) error {
	select {
	case err := <-ack:
		return err
	case <-s.dead:
		return ErrSessionClosed
	}
}

// Ask streams the model's reply to one user message. The returned stream
// must be consumed; an unread stream eventually blocks the actor.
func (s *Session) Ask(text string) *Stream {
	out := make(chan Output, 64)
	if err := s.send(askCmd{text: text, out: out}); err != nil {
		close(out)
		return &Stream{ch: out, err: err}
	}
	return &Stream{ch: out}
}

// StopGeneration requests cooperative cancellation of the in-progress turn.
// The flag is observed once per sampled token, so the stream completes
// within one further token; a native decode already in flight is not
// interrupted.
func (s *Session) StopGeneration() {
	s.stop.Store(true)
}

// ResetChat replaces the system prompt and tool set and clears the history.
func (s *Session) ResetChat(systemPrompt string, tools []Tool) error {
	ack := make(chan error, 1)
	if err := s.send(resetCmd{systemPrompt: systemPrompt, tools: tools, ack: ack}); err != nil {
		return err
	}
	return s.await(ack)
}

// SetTools replaces the registered tool set.
func (s *Session) SetTools(tools []Tool) error {
	ack := make(chan error, 1)
	if err := s.send(setToolsCmd{tools: tools, ack: ack}); err != nil {
		return err
	}
	return s.await(ack)
}

// SetSystemPrompt replaces the system message. Empty removes it.
func (s *Session) SetSystemPrompt(text string) error {
	ack := make(chan error, 1)
	if err := s.send(setSystemPromptCmd{text: text, ack: ack}); err != nil {
		return err
	}
	return s.await(ack)
}

// SetAllowThinking toggles the model's reasoning blocks.
func (s *Session) SetAllowThinking(allow bool) error {
	ack := make(chan error, 1)
	if err := s.send(setThinkingCmd{allow: allow, ack: ack}); err != nil {
		return err
	}
	return s.await(ack)
}

// SetSamplerConfig replaces the decoding configuration for future Asks.
func (s *Session) SetSamplerConfig(cfg engine.SamplerConfig) error {
	ack := make(chan error, 1)
	if err := s.send(setSamplerCmd{cfg: cfg, ack: ack}); err != nil {
		return err
	}
	return s.await(ack)
}

// GetHistory returns the conversation, system message excluded.
func (s *Session) GetHistory() ([]Message, error) {
	out := make(chan []Message, 1)
	if err := s.send(getHistoryCmd{out: out}); err != nil {
		return nil, err
	}
	select {
	case msgs := <-out:
		return msgs, nil
	case <-s.dead:
		return nil, ErrSessionClosed
	}
}

// SetHistory replaces the conversation after the system message.
func (s *Session) SetHistory(messages []Message) error {
	ack := make(chan error, 1)
	if err := s.send(setHistoryCmd{messages: messages, ack: ack}); err != nil {
		return err
	}
	return s.await(ack)
}

// ResetHistory clears the conversation, keeping the system message.
func (s *Session) ResetHistory() error {
	return s.SetHistory(nil)
}

// Close drains queued commands and stops the actor. The session's native
// context is released; the model stays open, it belongs to the caller.
func (s *Session) Close() error {
	if err := s.send(closeCmd{}); err != nil {
		return nil
	}
	<-s.dead
	return nil
}
