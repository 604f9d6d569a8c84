package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"llmgram/internal/config"
	"llmgram/internal/llm"
	"llmgram/internal/serve"
	"llmgram/internal/session"
	"llmgram/internal/signal"
	"llmgram/internal/tools"
)

var (
	serveSetup    bool
	serveProvider string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot",
	Long: `Connect to Telegram and answer messages from allow-listed users,
streaming responses into live-edited messages.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveSetup, "setup", false, "Run interactive Telegram setup")
	serveCmd.Flags().StringVarP(&serveProvider, "provider", "p", "", "Override provider, optionally with model (e.g., openai:gpt-5.2)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if serveProvider != "" {
		provider, model, err := llm.ParseProviderModel(serveProvider)
		if err != nil {
			return err
		}
		cfg.ApplyOverrides(provider, model)
	}

	log := newLogger(cfg.Log)

	platform := serve.NewTelegramPlatform(cfg.Telegram, log)
	if serveSetup || platform.NeedsSetup() {
		if err := platform.RunSetup(cfg); err != nil {
			return err
		}
		if serveSetup {
			return nil
		}
	}

	provider, err := llm.NewProvider(cfg)
	if err != nil {
		return err
	}

	store, err := session.NewStore(session.Config{
		Enabled: cfg.Session.DBPath != "",
		DBPath:  cfg.Session.DBPath,
	})
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	settings := serve.Settings{
		SystemPrompt:    cfg.SystemPrompt,
		IdleTimeout:     cfg.Session.IdleTimeout,
		MessageLimit:    cfg.Chat.MessageLimit,
		EditInterval:    cfg.Chat.EditInterval,
		MaxToolCycles:   cfg.Chat.MaxToolCycles,
		MaxOutputTokens: cfg.Chat.MaxOutputTokens,
		MaxChats:        cfg.Session.MaxConversations,
		Provider:        provider,
		ProviderName:    cfg.Provider,
		ModelName:       modelName(cfg),
		Tools:           tools.DefaultRegistry(),
		Store:           store,
	}

	ctx, stop := signal.NotifyContext()
	defer stop()

	log.WithFields(logrus.Fields{
		"provider": cfg.Provider,
		"model":    settings.ModelName,
	}).Info("starting telegram bridge")

	return platform.Run(ctx, settings)
}

func modelName(cfg *config.Config) string {
	switch cfg.Provider {
	case "anthropic":
		return cfg.Anthropic.Model
	case "openai":
		return cfg.OpenAI.Model
	case "ollama":
		return cfg.Ollama.Model
	case "openai-compat":
		return cfg.OpenAICompat.Model
	}
	return ""
}

func newLogger(cfg config.LogConfig) *logrus.Entry {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logrus.NewEntry(logger)
}
