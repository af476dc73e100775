package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"fireside/engine"
	"fireside/engine/enginetest"
)

// newTestWorker builds a worker on the scripted fake engine.
func newTestWorker(t *testing.T, cfg Config, responses ...string) (*worker, *enginetest.Model) {
	t.Helper()
	model := enginetest.New(responses...)
	w, err := newWorker(model, engine.NewInferenceLock(), cfg, &atomic.Bool{})
	if err != nil {
		t.Fatalf("newWorker: %v", err)
	}
	t.Cleanup(w.close)
	return w, model
}

// conversation builds a system message plus n user/assistant turns with
// distinct, padded contents.
func conversation(n, pad int) []Message {
	msgs := []Message{SystemMessage("You are a terse assistant.")}
	for i := 1; i <= n; i++ {
		filler := strings.Repeat("x", pad)
		msgs = append(msgs,
			UserMessage(fmt.Sprintf("question %d %s", i, filler)),
			AssistantMessage(fmt.Sprintf("answer %d %s", i, filler)),
		)
	}
	return msgs
}

func TestWorkerInit(t *testing.T) {
	t.Run("nil lock fails", func(t *testing.T) {
		_, err := newWorker(enginetest.New(), nil, DefaultConfig(), &atomic.Bool{})
		if err == nil {
			t.Fatal("expected init error")
		}
	})

	t.Run("context creation failure surfaces", func(t *testing.T) {
		model := enginetest.New()
		model.Close()
		_, err := newWorker(model, engine.NewInferenceLock(), DefaultConfig(), &atomic.Bool{})
		if err == nil {
			t.Fatal("expected init error")
		}
	})

	t.Run("system prompt seeds history", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SystemPrompt = "be brief"
		w, _ := newTestWorker(t, cfg)
		if len(w.messages) != 1 || w.messages[0].Role != RoleSystem {
			t.Fatalf("messages = %+v", w.messages)
		}
	})

	t.Run("tools compile a grammar", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Tools = []Tool{NewTool("f", "", nil, func(json.RawMessage) string { return "" })}
		w, _ := newTestWorker(t, cfg)
		if w.grammar == nil {
			t.Fatal("expected grammar")
		}
		if w.grammar.TriggerOn != w.format.BeginToken() {
			t.Errorf("trigger = %q", w.grammar.TriggerOn)
		}
	})
}

func TestWorkerSyncContextReusesPrefix(t *testing.T) {
	w, _ := newTestWorker(t, DefaultConfig())
	w.messages = conversation(2, 0)

	if err := w.resync(); err != nil {
		t.Fatalf("resync: %v", err)
	}
	ctx := w.ctx.(*enginetest.Context)
	if len(ctx.Appends) != 1 {
		t.Fatalf("appends = %d, want 1", len(ctx.Appends))
	}
	baseline := ctx.Pos()

	// Extending the history must feed only the new suffix.
	w.messages = append(w.messages, UserMessage("one more thing"))
	if err := w.resync(); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if got := ctx.Truncates[len(ctx.Truncates)-1]; got < baseline-64 {
		t.Errorf("truncated to %d, discarding most of the %d cached tokens", got, baseline)
	}
	last := ctx.Appends[len(ctx.Appends)-1]
	if len(last) >= baseline {
		t.Errorf("fed %d tokens, want fewer than the %d already cached", len(last), baseline)
	}
	if ctx.Pos() <= baseline {
		t.Errorf("pos = %d, want more than %d", ctx.Pos(), baseline)
	}
}

func TestWorkerSetSystemPrompt(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SystemPrompt = "old"
	w, _ := newTestWorker(t, cfg)
	w.messages = append(w.messages, UserMessage("hi"), AssistantMessage("hello"))

	if err := w.setSystemPrompt("new"); err != nil {
		t.Fatalf("setSystemPrompt: %v", err)
	}
	if w.messages[0].Content != "new" || len(w.messages) != 3 {
		t.Fatalf("messages = %+v", w.messages)
	}

	if err := w.setSystemPrompt(""); err != nil {
		t.Fatalf("setSystemPrompt: %v", err)
	}
	if len(w.messages) != 2 || w.messages[0].Role != RoleUser {
		t.Fatalf("messages after removal = %+v", w.messages)
	}

	if err := w.setSystemPrompt("again"); err != nil {
		t.Fatalf("setSystemPrompt: %v", err)
	}
	if w.messages[0].Role != RoleSystem || len(w.messages) != 3 {
		t.Fatalf("messages after insert = %+v", w.messages)
	}
}

func TestWorkerHistoryExcludesSystem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SystemPrompt = "sys"
	w, _ := newTestWorker(t, cfg)
	w.messages = append(w.messages, UserMessage("a"), AssistantMessage("b"))

	got := w.history()
	if len(got) != 2 || got[0].Role != RoleUser {
		t.Fatalf("history = %+v", got)
	}
}
