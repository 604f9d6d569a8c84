package session

import "context"

// NoopStore is a no-op implementation of Store used when persistence is
// disabled. It silently discards writes and returns empty results.
type NoopStore struct{}

func (s *NoopStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = NewID()
	}
	return nil
}

func (s *NoopStore) Get(ctx context.Context, id string) (*Session, error) {
	return nil, nil
}

func (s *NoopStore) GetByChat(ctx context.Context, chatID int64) (*Session, error) {
	return nil, nil
}

func (s *NoopStore) Update(ctx context.Context, sess *Session) error { return nil }

func (s *NoopStore) Delete(ctx context.Context, id string) error { return nil }

func (s *NoopStore) AddMessage(ctx context.Context, sessionID string, msg *Message) error {
	return nil
}

func (s *NoopStore) GetMessages(ctx context.Context, sessionID string) ([]Message, error) {
	return nil, nil
}

func (s *NoopStore) UpdateMetrics(ctx context.Context, id string, toolCalls, inputTokens, outputTokens int) error {
	return nil
}

func (s *NoopStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	return nil
}

func (s *NoopStore) IncrementUserTurns(ctx context.Context, id string) error { return nil }

func (s *NoopStore) Close() error { return nil }
