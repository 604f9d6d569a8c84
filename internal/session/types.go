package session

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"llmgram/internal/llm"
)

// Status represents the current state of a session.
type Status string

const (
	StatusActive      Status = "active"      // session is open (may be streaming)
	StatusComplete    Status = "complete"    // session finished normally
	StatusError       Status = "error"       // session ended with an error
	StatusInterrupted Status = "interrupted" // session was cancelled
)

// Session is one conversation with a chat, stored in the database.
type Session struct {
	ID       string `json:"id"`
	ChatID   int64  `json:"chat_id"`
	Summary  string `json:"summary,omitempty"` // first user message, truncated
	Provider string `json:"provider"`
	Model    string `json:"model"`

	UserTurns    int    `json:"user_turns,omitempty"`
	ToolCalls    int    `json:"tool_calls,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	Status       Status `json:"status,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one conversation message. Parts stores the full
// llm.Message.Parts as JSON so tool calls and results survive a restart.
type Message struct {
	ID          int64      `json:"id"`
	SessionID   string     `json:"session_id"`
	Role        llm.Role   `json:"role"`
	Parts       []llm.Part `json:"parts"`
	TextContent string     `json:"text_content"`
	CreatedAt   time.Time  `json:"created_at"`
	Sequence    int        `json:"sequence"`
}

// NewID returns a fresh session ID.
func NewID() string {
	return uuid.NewString()
}

// NewMessage creates a Message from an llm.Message. A negative sequence asks
// the store to allocate the next one.
func NewMessage(sessionID string, msg llm.Message, sequence int) *Message {
	m := &Message{
		SessionID: sessionID,
		Role:      msg.Role,
		Parts:     msg.Parts,
		CreatedAt: time.Now(),
		Sequence:  sequence,
	}
	m.TextContent = msg.TextContent()
	return m
}

// ToLLMMessage converts a stored Message back to an llm.Message.
func (m *Message) ToLLMMessage() llm.Message {
	return llm.Message{Role: m.Role, Parts: m.Parts}
}

// PartsJSON returns the Parts field serialized for database storage.
func (m *Message) PartsJSON() (string, error) {
	data, err := json.Marshal(m.Parts)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetPartsFromJSON deserializes JSON into the Parts field.
func (m *Message) SetPartsFromJSON(data string) error {
	if data == "" {
		m.Parts = nil
		return nil
	}
	return json.Unmarshal([]byte(data), &m.Parts)
}

// TruncateSummary returns the first line of content, truncated to 100 chars.
func TruncateSummary(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "\n"); idx != -1 {
		content = content[:idx]
	}
	if len(content) > 100 {
		content = content[:97] + "..."
	}
	return content
}
