package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "llmgram",
	Short: "Telegram bridge for streaming LLM chat",
	Long: `llmgram runs a Telegram bot that streams LLM responses into chat
messages, live-editing them as tokens arrive and executing tool calls the
model requests through an inline protocol.

Examples:
  llmgram serve                         # run the bot
  llmgram serve --setup                 # interactive first-time setup
  llmgram serve -p openai:gpt-5.2      # override the configured provider

  llmgram config                        # show configuration`,
	Version:           Version,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
