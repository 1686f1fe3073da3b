package main

import (
	"github.com/spf13/cobra"

	"campaignflow/internal/browser"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the WhatsApp Web session by clearing the browser profile",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, cleanup, err := setup("")
		if err != nil {
			return err
		}
		defer cleanup()

		removed, err := browser.ClearProfile(cfg.Browser.ProfileDir)
		if err != nil {
			return err
		}
		if removed {
			log.Infof("Browser profile %s cleared", cfg.Browser.ProfileDir)
		} else {
			log.Infof("Browser profile %s not found, no WhatsApp session to clear", cfg.Browser.ProfileDir)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
