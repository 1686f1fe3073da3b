package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"campaignflow/internal/config"
	"campaignflow/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "campaignflow",
	Short: "Send personalized WhatsApp messages to a contact list",
	Long: `CampaignFlow drives WhatsApp Web in a local Chrome profile to send one
personalized message, optionally with an attachment, to every contact of a CSV file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger. defaultLogFile is
// used when the config names no output file.
func setup(defaultLogFile string) (*config.Config, *logrus.Logger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Logging.OutputFile == "" {
		cfg.Logging.OutputFile = defaultLogFile
	}

	log, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	cleanup := func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close log file: %v\n", err)
		}
	}
	log.Infof("Loaded configuration from %s", configPath)
	return cfg, log, cleanup, nil
}
