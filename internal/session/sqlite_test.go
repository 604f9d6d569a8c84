package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"llmgram/internal/llm"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(Config{
		Enabled: true,
		DBPath:  filepath.Join(t.TempDir(), "sessions.db"),
	})
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreCreateGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := &Session{
		ID:        NewID(),
		ChatID:    42,
		Provider:  "Anthropic (claude-sonnet-4-5)",
		Model:     "claude-sonnet-4-5",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	loaded, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected session to exist")
	}
	if loaded.ChatID != 42 {
		t.Errorf("expected chat_id=42, got %d", loaded.ChatID)
	}
	if loaded.Status != StatusActive {
		t.Errorf("expected status=active, got %q", loaded.Status)
	}

	byChat, err := store.GetByChat(ctx, 42)
	if err != nil {
		t.Fatalf("failed to load session by chat: %v", err)
	}
	if byChat == nil || byChat.ID != sess.ID {
		t.Fatalf("GetByChat returned wrong session: %+v", byChat)
	}

	missing, err := store.GetByChat(ctx, 999)
	if err != nil {
		t.Fatalf("unexpected error for missing chat: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing chat, got %+v", missing)
	}
}

func TestSQLiteStoreUpdateMetrics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := &Session{ChatID: 7, Provider: "OpenAI (gpt-5.2)", Model: "gpt-5.2"}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	if err := store.UpdateMetrics(ctx, sess.ID, 3, 1000, 250); err != nil {
		t.Fatalf("failed to update metrics: %v", err)
	}
	if err := store.UpdateMetrics(ctx, sess.ID, 1, 100, 50); err != nil {
		t.Fatalf("failed to update metrics: %v", err)
	}
	if err := store.IncrementUserTurns(ctx, sess.ID); err != nil {
		t.Fatalf("failed to increment user turns: %v", err)
	}

	loaded, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if loaded.ToolCalls != 4 {
		t.Errorf("expected tool_calls=4, got %d", loaded.ToolCalls)
	}
	if loaded.InputTokens != 1100 {
		t.Errorf("expected input_tokens=1100, got %d", loaded.InputTokens)
	}
	if loaded.OutputTokens != 300 {
		t.Errorf("expected output_tokens=300, got %d", loaded.OutputTokens)
	}
	if loaded.UserTurns != 1 {
		t.Errorf("expected user_turns=1, got %d", loaded.UserTurns)
	}
}

func TestSQLiteStoreMessagesRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := &Session{ChatID: 1, Provider: "p", Model: "m"}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	call := llm.ToolCall{ID: "c1", Name: "weather", Arguments: []byte(`{"city":"Oslo"}`)}
	msgs := []llm.Message{
		llm.UserText("what's the weather in Oslo?"),
		llm.AssistantToolCall("Checking.", call),
		llm.ToolResultMessage("c1", "weather", "12C, rain"),
		llm.AssistantText("It's 12C and raining in Oslo."),
	}
	for _, m := range msgs {
		if err := store.AddMessage(ctx, sess.ID, NewMessage(sess.ID, m, -1)); err != nil {
			t.Fatalf("failed to add message: %v", err)
		}
	}

	stored, err := store.GetMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("failed to get messages: %v", err)
	}
	if len(stored) != len(msgs) {
		t.Fatalf("expected %d messages, got %d", len(msgs), len(stored))
	}
	for i, m := range stored {
		if m.Sequence != i {
			t.Errorf("message %d has sequence %d", i, m.Sequence)
		}
		if m.Role != msgs[i].Role {
			t.Errorf("message %d role=%q, want %q", i, m.Role, msgs[i].Role)
		}
	}

	round := stored[1].ToLLMMessage()
	if len(round.Parts) != 2 || round.Parts[1].ToolCall == nil {
		t.Fatalf("tool call did not survive round trip: %+v", round)
	}
	if round.Parts[1].ToolCall.Name != "weather" {
		t.Errorf("tool name=%q, want weather", round.Parts[1].ToolCall.Name)
	}
	if string(round.Parts[1].ToolCall.Arguments) != `{"city":"Oslo"}` {
		t.Errorf("tool args=%s", round.Parts[1].ToolCall.Arguments)
	}
}

func TestSQLiteStoreDeleteCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := &Session{ChatID: 5, Provider: "p", Model: "m"}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if err := store.AddMessage(ctx, sess.ID, NewMessage(sess.ID, llm.UserText("hi"), -1)); err != nil {
		t.Fatalf("failed to add message: %v", err)
	}

	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("failed to delete session: %v", err)
	}
	msgs, err := store.GetMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("failed to query messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected cascade delete, found %d messages", len(msgs))
	}
}

func TestTruncateSummary(t *testing.T) {
	if got := TruncateSummary("  hello\nworld  "); got != "hello" {
		t.Errorf("got %q", got)
	}
	long := ""
	for i := 0; i < 30; i++ {
		long += "abcde"
	}
	got := TruncateSummary(long)
	if len(got) != 100 {
		t.Errorf("len=%d, want 100", len(got))
	}
}
