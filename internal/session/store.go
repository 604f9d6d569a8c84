package session

import (
	"context"
)

// Store is the interface for session persistence.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	// GetByChat returns the most recent session for a chat, or nil.
	GetByChat(ctx context.Context, chatID int64) (*Session, error)
	Update(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error

	AddMessage(ctx context.Context, sessionID string, msg *Message) error
	GetMessages(ctx context.Context, sessionID string) ([]Message, error)

	UpdateMetrics(ctx context.Context, id string, toolCalls, inputTokens, outputTokens int) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	IncrementUserTurns(ctx context.Context, id string) error

	Close() error
}

// Config holds session storage configuration.
type Config struct {
	Enabled    bool
	DBPath     string
	MaxAgeDays int // auto-delete after N days (0=never)
	MaxCount   int // keep at most N sessions (0=unlimited)
}

// NewStore creates a Store based on the configuration. When persistence is
// disabled a no-op store is returned.
func NewStore(cfg Config) (Store, error) {
	if !cfg.Enabled {
		return &NoopStore{}, nil
	}
	return NewSQLiteStore(cfg)
}
