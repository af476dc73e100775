package history

import (
	"encoding/json"
	"path/filepath"
	"reflect"
	"testing"

	"fireside/chat"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTranscriptRoundTrip(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateConversation("weather chat")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	msgs := []chat.Message{
		chat.UserMessage("weather in SF?"),
		{
			Role: chat.RoleAssistant,
			ToolCalls: []chat.ToolCall{
				{Name: "get_weather", Arguments: json.RawMessage(`{"location":"San Francisco"}`)},
			},
		},
		{Role: chat.RoleTool, Content: "sunny, 21C", Name: "get_weather"},
		chat.AssistantMessage("It is sunny."),
	}
	if err := s.SaveMessages(id, msgs); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	got, err := s.Messages(id)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if !reflect.DeepEqual(got, msgs) {
		t.Errorf("round trip = %+v, want %+v", got, msgs)
	}

	// Saving again replaces rather than appends.
	shorter := msgs[:2]
	if err := s.SaveMessages(id, shorter); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}
	got, err = s.Messages(id)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("transcript length after resave = %d, want 2", len(got))
	}
}

func TestSaveMessagesUnknownConversation(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveMessages("01XXXXXXXXXXXXXXXXXXXXXXXX", []chat.Message{chat.UserMessage("hi")}); err == nil {
		t.Error("expected error for unknown conversation")
	}
}

func TestConversationsOrdering(t *testing.T) {
	s := newTestStore(t)

	first, err := s.CreateConversation("first")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	second, err := s.CreateConversation("second")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	// Touch the first conversation so it becomes the most recent.
	if err := s.SaveMessages(first, []chat.Message{chat.UserMessage("hi")}); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	convs, err := s.Conversations(10)
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("conversations = %d, want 2", len(convs))
	}
	ids := []string{convs[0].ID, convs[1].ID}
	if ids[0] != first && ids[0] != second {
		t.Errorf("unexpected ids %v", ids)
	}
	if convs[0].Title == "" {
		t.Error("title not stored")
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateConversation("doomed")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if err := s.SaveMessages(id, []chat.Message{chat.UserMessage("hi"), chat.AssistantMessage("yo")}); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	if err := s.DeleteConversation(id); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	msgs, err := s.Messages(id)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("messages survived deletion: %+v", msgs)
	}
	convs, err := s.Conversations(10)
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(convs) != 0 {
		t.Errorf("conversation survived deletion: %+v", convs)
	}
}

func TestConversationIDsAreSortable(t *testing.T) {
	s := newTestStore(t)
	a, err := s.CreateConversation("a")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	b, err := s.CreateConversation("b")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if len(a) != 26 || len(b) != 26 {
		t.Errorf("id lengths = %d, %d, want 26", len(a), len(b))
	}
	if a >= b {
		t.Errorf("ids not monotonic: %s >= %s", a, b)
	}
}
