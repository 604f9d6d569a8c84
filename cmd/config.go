package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"llmgram/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Printf("Config file:  %s", path)
	if !config.Exists() {
		fmt.Print(" (not created yet; run 'llmgram serve --setup')")
	}
	fmt.Println()
	fmt.Printf("Provider:     %s\n", cfg.Provider)
	if model := modelName(cfg); model != "" {
		fmt.Printf("Model:        %s\n", model)
	}
	fmt.Printf("Telegram:     configured=%t allowed_users=%d\n",
		cfg.Telegram.BotToken != "",
		len(cfg.Telegram.AllowedUserIDs)+len(cfg.Telegram.AllowedUsernames))
	fmt.Printf("Sessions DB:  %s\n", cfg.Session.DBPath)
	return nil
}
