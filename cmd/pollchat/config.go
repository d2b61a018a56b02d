package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configShowCmd.Flags().BoolVar(&flagConfigRaw, "raw", false, "print the config file as stored")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage pollchat configuration",
	Long:  "View or modify the pollchat configuration stored in ~/.pollchat/config.toml.",
}

var flagConfigRaw bool

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: "Print the settings the client runs with. Unset fields show the client default,\n" +
		"and the session token is masked. Use --raw to print the file as stored.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Println("No configuration file found. Run 'pollchat init <base-url>' to create one.")
				return nil
			}
			return fmt.Errorf("cannot read config file: %w", err)
		}
		if flagConfigRaw {
			fmt.Print(string(data))
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		settings, err := effectiveSettings(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("# %s\n", path)
		for _, kv := range settings {
			fmt.Printf("%-30s %s\n", kv[0], kv[1])
		}
		return nil
	},
}

// effectiveSettings lists every config key with the value the client will
// use, marking values that come from client defaults.
func effectiveSettings(cfg *Config) ([][2]string, error) {
	dir, err := dataDir(cfg)
	if err != nil {
		return nil, err
	}
	def := func(set bool, v string) string {
		if set {
			return v
		}
		return v + " (default)"
	}
	eff := clientConfig(cfg)
	token := "(none)"
	if cfg.Auth.Token != "" {
		token = maskToken(cfg.Auth.Token)
	}
	return [][2]string{
		{"default.base_url", valueOrDefault(cfg.Default.BaseURL, "(not set)")},
		{"default.data_dir", def(cfg.Default.DataDir != "", dir)},
		{"default.poll_interval_ms", def(cfg.Default.PollIntervalMS > 0, strconv.FormatInt(eff.PollInterval.Milliseconds(), 10))},
		{"default.presence_interval_ms", def(cfg.Default.PresenceIntervalMS > 0, strconv.FormatInt(eff.PresenceInterval.Milliseconds(), 10))},
		{"default.max_message_length", def(cfg.Default.MaxMessageLength > 0, strconv.Itoa(eff.MaxMessageLength))},
		{"auth.nickname", valueOrDefault(cfg.Auth.Nickname, "(not logged in)")},
		{"auth.token", token},
	}, nil
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value using dot notation.\nExample: pollchat config set default.poll_interval_ms 5000",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := setConfigValue(cfg, key, value); err != nil {
			return err
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Printf("Set %s = %s\n", key, value)
		return nil
	},
}
