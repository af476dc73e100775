package subcommands

import (
	"fmt"
	"log"
	"strings"

	"fireside/chat"
	"fireside/engine"
	"fireside/internal/config"
	"fireside/internal/history"
)

// Host wires an engine backend, a chat session and optional transcript
// persistence for the CLI frontends.
type Host struct {
	Config         config.Config
	Model          engine.Model
	Session        *chat.Session
	Store          *history.Store
	ConversationID string
}

// NewHost loads the configured backend and starts a chat session on it.
// Transcript persistence is best effort: a history store that fails to open
// is logged and skipped rather than blocking the session.
func NewHost(cfg config.Config, tools []chat.Tool) (*Host, error) {
	chatCfg, err := cfg.ChatConfig()
	if err != nil {
		return nil, err
	}
	chatCfg.Tools = tools

	model, err := engine.DefaultRegistry.Load(cfg.Engine.Backend, cfg.EngineOptions())
	if err != nil {
		return nil, err
	}

	session, err := chat.NewSession(model, engine.NewInferenceLock(), chatCfg)
	if err != nil {
		model.Close()
		return nil, err
	}

	h := &Host{Config: cfg, Model: model, Session: session}

	if cfg.History.Enabled {
		store, err := history.NewStore(cfg.History.Path)
		if err != nil {
			log.Printf("warning: transcript persistence disabled: %v", err)
		} else {
			h.Store = store
		}
	}

	return h, nil
}

// StartConversation registers a new transcript. title defaults to the first
// words of the opening message.
func (h *Host) StartConversation(title string) error {
	if h.Store == nil {
		return nil
	}
	id, err := h.Store.CreateConversation(titleOrDefault(title))
	if err != nil {
		return err
	}
	h.ConversationID = id
	return nil
}

// Resume loads a stored transcript into the live session.
func (h *Host) Resume(conversationID string) error {
	if h.Store == nil {
		return fmt.Errorf("transcript persistence is disabled")
	}
	msgs, err := h.Store.Messages(conversationID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return fmt.Errorf("conversation %q not found or empty", conversationID)
	}
	if err := h.Session.SetHistory(msgs); err != nil {
		return err
	}
	h.ConversationID = conversationID
	return nil
}

// SaveTranscript writes the session's current history to the store.
func (h *Host) SaveTranscript() error {
	if h.Store == nil || h.ConversationID == "" {
		return nil
	}
	msgs, err := h.Session.GetHistory()
	if err != nil {
		return err
	}
	return h.Store.SaveMessages(h.ConversationID, msgs)
}

// Close tears down the session, the model and the store.
func (h *Host) Close() {
	if h.Session != nil {
		if err := h.Session.Close(); err != nil {
			log.Printf("warning: failed to close session: %v", err)
		}
	}
	if h.Model != nil {
		h.Model.Close()
	}
	if h.Store != nil {
		if err := h.Store.Close(); err != nil {
			log.Printf("warning: failed to close history store: %v", err)
		}
	}
}

func titleOrDefault(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "untitled conversation"
	}
	words := strings.Fields(s)
	if len(words) > 6 {
		words = words[:6]
	}
	title := strings.Join(words, " ")
	if len(title) > 60 {
		title = title[:60]
	}
	return title
}
