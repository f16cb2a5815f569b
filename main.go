package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"agrimate/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "agrimate",
	Short: "AgriMate agricultural education assistant",
	Long: `AgriMate answers farming questions in simple words, looks at crop
pictures and recordings, and keeps each farmer's conversation history.

  agrimate serve                          # run the HTTP API
  agrimate history list --user <email>    # list archived chats
  agrimate history export <id> --format md`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("AGRIMATE_CONFIG"), "config file path (default config.json)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("agrimate: %v", err)
		os.Exit(1)
	}
}
