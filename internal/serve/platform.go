package serve

import (
	"context"
	"time"

	"llmgram/internal/config"
	"llmgram/internal/llm"
	"llmgram/internal/session"
)

// Settings holds runtime settings derived from CLI flags and config.
type Settings struct {
	SystemPrompt    string
	IdleTimeout     time.Duration
	MessageLimit    int
	EditInterval    time.Duration
	MaxToolCycles   int
	MaxOutputTokens int
	MaxChats        int

	Provider     llm.Provider
	ProviderName string
	ModelName    string
	Tools        *llm.ToolRegistry
	Store        session.Store
}

// Platform is the interface implemented by each messaging platform adapter.
type Platform interface {
	// Name returns the platform identifier (e.g. "telegram").
	Name() string
	// NeedsSetup returns true when required configuration is missing.
	NeedsSetup() bool
	// RunSetup runs an interactive wizard to collect and persist configuration.
	RunSetup(cfg *config.Config) error
	// Run starts the platform's message loop, blocking until ctx is cancelled.
	Run(ctx context.Context, settings Settings) error
}
