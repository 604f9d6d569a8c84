package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Provider     string             `mapstructure:"provider"`
	SystemPrompt string             `mapstructure:"system_prompt"`
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	OpenAI       OpenAIConfig       `mapstructure:"openai"`
	Ollama       OllamaConfig       `mapstructure:"ollama"`
	OpenAICompat OpenAICompatConfig `mapstructure:"openai-compat"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Chat         ChatConfig         `mapstructure:"chat"`
	Session      SessionConfig      `mapstructure:"session"`
	Log          LogConfig          `mapstructure:"log"`
}

type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// OllamaConfig configures the Ollama provider (OpenAI-compatible)
type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url"` // Default: http://localhost:11434/v1
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"` // Optional, Ollama ignores it
}

// OpenAICompatConfig configures a generic OpenAI-compatible server
type OpenAICompatConfig struct {
	BaseURL string `mapstructure:"base_url"` // Required - no default
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"` // Optional
}

// TelegramConfig configures the Telegram bridge.
type TelegramConfig struct {
	BotToken         string  `mapstructure:"bot_token"`
	AllowedUserIDs   []int64 `mapstructure:"allowed_user_ids"`
	AllowedUsernames []string `mapstructure:"allowed_usernames"`
}

// ChatConfig tunes the streaming chat behavior.
type ChatConfig struct {
	// MessageLimit is the per-message character budget. Telegram caps
	// messages at 4096; the default leaves headroom for HTML entities
	// added during rendering.
	MessageLimit int `mapstructure:"message_limit"`
	// EditInterval is how often in-flight messages are synced.
	EditInterval time.Duration `mapstructure:"edit_interval"`
	// MaxToolCycles bounds tool invocations within a single turn.
	MaxToolCycles int `mapstructure:"max_tool_cycles"`
	// MaxOutputTokens caps a single model response.
	MaxOutputTokens int `mapstructure:"max_output_tokens"`
}

// SessionConfig configures conversation persistence.
type SessionConfig struct {
	DBPath      string        `mapstructure:"db_path"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// MaxConversations bounds the in-memory conversation cache.
	MaxConversations int `mapstructure:"max_conversations"`
}

type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	JSON  bool   `mapstructure:"json"`
}

func Load() (*Config, error) {
	configPath, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath(".")

	viper.SetDefault("provider", "anthropic")
	viper.SetDefault("anthropic.model", "claude-sonnet-4-5")
	viper.SetDefault("openai.model", "gpt-5.2")
	viper.SetDefault("ollama.base_url", "http://localhost:11434/v1")
	// openai-compat has no base_url default - it's required
	viper.SetDefault("chat.message_limit", 4000)
	viper.SetDefault("chat.edit_interval", 500*time.Millisecond)
	viper.SetDefault("chat.max_tool_cycles", 20)
	viper.SetDefault("chat.max_output_tokens", 8192)
	viper.SetDefault("session.idle_timeout", 30*time.Minute)
	viper.SetDefault("session.max_conversations", 256)
	viper.SetDefault("log.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveAnthropicCredentials(&cfg.Anthropic)
	resolveOpenAICredentials(&cfg.OpenAI)
	resolveOllamaCredentials(&cfg.Ollama)
	resolveOpenAICompatCredentials(&cfg.OpenAICompat)
	resolveTelegramCredentials(&cfg.Telegram)

	if cfg.Session.DBPath == "" {
		cfg.Session.DBPath = defaultDBPath()
	}

	return &cfg, nil
}

// ApplyOverrides applies provider and model overrides to the config.
// If provider is non-empty, it overrides the global provider.
// If model is non-empty, it overrides the model for the active provider.
func (c *Config) ApplyOverrides(provider, model string) {
	if provider != "" {
		c.Provider = provider
	}
	if model != "" {
		switch c.Provider {
		case "anthropic":
			c.Anthropic.Model = model
		case "openai":
			c.OpenAI.Model = model
		case "ollama":
			c.Ollama.Model = model
		case "openai-compat":
			c.OpenAICompat.Model = model
		}
	}
}

func resolveAnthropicCredentials(cfg *AnthropicConfig) {
	cfg.APIKey = expandEnv(cfg.APIKey)
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

func resolveOpenAICredentials(cfg *OpenAIConfig) {
	cfg.APIKey = expandEnv(cfg.APIKey)
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// API key is optional - Ollama ignores it
func resolveOllamaCredentials(cfg *OllamaConfig) {
	cfg.APIKey = expandEnv(cfg.APIKey)
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OLLAMA_API_KEY")
	}
	cfg.BaseURL = expandEnv(cfg.BaseURL)
}

func resolveOpenAICompatCredentials(cfg *OpenAICompatConfig) {
	cfg.APIKey = expandEnv(cfg.APIKey)
	cfg.BaseURL = expandEnv(cfg.BaseURL)
}

func resolveTelegramCredentials(cfg *TelegramConfig) {
	cfg.BotToken = expandEnv(cfg.BotToken)
	if cfg.BotToken == "" {
		cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns the XDG config directory for llmgram.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "llmgram"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "llmgram"), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

func defaultDBPath() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "llmgram", "sessions.db")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "sessions.db")
	}
	return filepath.Join(homeDir, ".local", "share", "llmgram", "sessions.db")
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// NeedsSetup returns true if config file doesn't exist
func NeedsSetup() bool {
	return !Exists()
}

// Save writes the config to disk
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	ids := make([]string, 0, len(cfg.Telegram.AllowedUserIDs))
	for _, id := range cfg.Telegram.AllowedUserIDs {
		ids = append(ids, fmt.Sprintf("%d", id))
	}

	content := fmt.Sprintf(`provider: %s

anthropic:
  model: %s
  # api_key: set here or via ANTHROPIC_API_KEY

openai:
  model: %s
  # api_key: set here or via OPENAI_API_KEY

ollama:
  base_url: http://localhost:11434/v1
  # model: llama3.3

telegram:
  bot_token: %q
  allowed_user_ids: [%s]
  allowed_usernames: [%s]

chat:
  message_limit: %d
  edit_interval: %s
  max_tool_cycles: %d
`, cfg.Provider, cfg.Anthropic.Model, cfg.OpenAI.Model,
		cfg.Telegram.BotToken,
		strings.Join(ids, ", "),
		strings.Join(cfg.Telegram.AllowedUsernames, ", "),
		cfg.Chat.MessageLimit, cfg.Chat.EditInterval, cfg.Chat.MaxToolCycles)

	return os.WriteFile(path, []byte(content), 0600)
}
