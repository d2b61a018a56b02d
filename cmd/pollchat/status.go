package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		dir, err := dataDir(cfg)
		if err != nil {
			return err
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Base URL:    %s\n", valueOrDefault(cfg.Default.BaseURL, "(not set)"))
		fmt.Printf("  Data dir:    %s\n", dir)
		if cfg.Default.PollIntervalMS > 0 {
			fmt.Printf("  Poll:        %d ms\n", cfg.Default.PollIntervalMS)
		}
		if cfg.Default.PresenceIntervalMS > 0 {
			fmt.Printf("  Presence:    %d ms\n", cfg.Default.PresenceIntervalMS)
		}

		fmt.Println()
		fmt.Println("Session:")
		if cfg.Auth.Token == "" {
			fmt.Println("  (not logged in)")
			return nil
		}
		fmt.Printf("  Nickname:    %s\n", cfg.Auth.Nickname)
		fmt.Printf("  Token:       %s\n", maskToken(cfg.Auth.Token))

		if cfg.Default.BaseURL == "" {
			return nil
		}
		client, closeFn, err := getClient()
		if err != nil {
			return err
		}
		defer closeFn()
		m, err := client.Memberships()
		if err != nil {
			return fmt.Errorf("failed to read memberships: %w", err)
		}
		fmt.Printf("  Chats:       %s\n", valueOrDefault(strings.Join(m.Groups, ", "), "(none)"))
		fmt.Printf("  DMs:         %s\n", valueOrDefault(strings.Join(m.Peers, ", "), "(none)"))
		return nil
	},
}
