package cli

import (
	"fmt"

	"github.com/lazypower/newswire/internal/config"
	"github.com/lazypower/newswire/internal/logging"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "newswire",
	Short: "Regional news aggregation and delivery",
	Long: "Newswire ingests articles and social posts, classifies them into categories, " +
		"links related stories, notifies subscribed devices and ranks personalized feeds.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file path")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(taskCmd)
}
