// Package main provides the eventfeed command: it scrapes the event listing
// into a JSON/ICS feed and serves it.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"eventfeed/internal/config"
	appLog "eventfeed/internal/log"
)

const version = "0.1.0"

var (
	configPath string
	logLevel   string
)

// rootEnv holds the EVENTFEED_* variables that back the persistent flags.
type rootEnv struct {
	Config   string `envconfig:"CONFIG"`
	LogLevel string `envconfig:"LOG_LEVEL"`
}

var rootCmd = &cobra.Command{
	Use:           "eventfeed",
	Short:         "Event listing scraper and feed server",
	Long:          "eventfeed walks a paginated event listing in headless Chromium, normalizes each row into dated occurrences and publishes them as JSON and iCalendar feeds.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// .env is loaded after flag defaults are set, so flags left at their
		// defaults are read from the environment here.
		var env rootEnv
		if err := envconfig.Process(config.EnvPrefix, &env); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		if !cmd.Flags().Changed("config") && env.Config != "" {
			configPath = env.Config
		}
		if !cmd.Flags().Changed("log-level") && env.LogLevel != "" {
			logLevel = env.LogLevel
		}
		appLog.SetLevel(appLog.ParseLevel(logLevel))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/eventfeed/config.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
