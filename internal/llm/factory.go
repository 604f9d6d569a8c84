package llm

import (
	"fmt"
	"strings"

	"llmgram/internal/config"
)

// ParseProviderModel parses "provider:model" or just "provider" from a flag
// value. Model will be empty if not specified.
func ParseProviderModel(s string) (string, string, error) {
	parts := strings.SplitN(s, ":", 2)
	provider := strings.TrimSpace(parts[0])
	if provider == "" {
		return "", "", fmt.Errorf("invalid provider format: %q", s)
	}
	model := ""
	if len(parts) == 2 {
		model = strings.TrimSpace(parts[1])
	}
	switch provider {
	case "anthropic", "openai", "ollama", "openai-compat":
		return provider, model, nil
	}
	return "", "", fmt.Errorf("unknown provider: %s", provider)
}

// NewProvider creates an LLM provider based on the config. Providers are
// wrapped with automatic retry for rate limits (429) and transient errors.
func NewProvider(cfg *config.Config) (Provider, error) {
	provider, err := newProviderInternal(cfg)
	if err != nil {
		return nil, err
	}
	return WrapWithRetry(provider, DefaultRetryConfig()), nil
}

func newProviderInternal(cfg *config.Config) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is not configured (set ANTHROPIC_API_KEY or anthropic.api_key)")
		}
		return NewAnthropicProvider(cfg.Anthropic.APIKey, cfg.Anthropic.Model), nil
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai API key is not configured (set OPENAI_API_KEY or openai.api_key)")
		}
		return NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model), nil
	case "ollama":
		return NewOpenAICompatProvider(cfg.Ollama.BaseURL, cfg.Ollama.APIKey, cfg.Ollama.Model, "Ollama"), nil
	case "openai-compat":
		if cfg.OpenAICompat.BaseURL == "" {
			return nil, fmt.Errorf("openai-compat base_url is required")
		}
		return NewOpenAICompatProvider(cfg.OpenAICompat.BaseURL, cfg.OpenAICompat.APIKey, cfg.OpenAICompat.Model, "OpenAI-compatible"), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
