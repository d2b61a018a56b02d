package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gopota/pollchat"
	"github.com/gopota/pollchat/internal/pebblestore"
)

// configSessions keeps the session in the [auth] section of the config file.
type configSessions struct{}

func (configSessions) LoadSession() (*pollchat.Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Auth.Token == "" {
		return nil, nil
	}
	return &pollchat.Session{Token: cfg.Auth.Token, Nickname: cfg.Auth.Nickname}, nil
}

func (configSessions) SaveSession(s pollchat.Session) error {
	return updateAuth(ConfigAuth{Token: s.Token, Nickname: s.Nickname})
}

func (configSessions) ClearSession() error {
	return updateAuth(ConfigAuth{})
}

func updateAuth(auth ConfigAuth) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Auth = auth
	return saveConfig(cfg)
}

// getClient creates a pollchat client from the config file. The returned
// close function releases the membership database.
func getClient(opts ...pollchat.ClientOption) (*pollchat.Client, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Default.BaseURL == "" {
		return nil, nil, errors.New("no base URL configured; run 'pollchat init <base-url>' first")
	}

	dir, err := dataDir(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := pebblestore.Open(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open membership store: %w", err)
	}

	base := []pollchat.ClientOption{
		pollchat.WithConfig(clientConfig(cfg)),
		pollchat.WithLogger(log.Logger),
		pollchat.WithMembershipStore(store),
		pollchat.WithSessionStore(configSessions{}),
	}
	client := pollchat.NewClient(cfg.Default.BaseURL, append(base, opts...)...)
	closeFn := func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close membership store")
		}
	}
	return client, closeFn, nil
}

// authError formats a login or register failure for display.
func authError(err error) error {
	return errors.New(pollchat.AuthErrorMessage(err))
}

// readPassword returns flagValue if set, otherwise prompts on stdin.
func readPassword(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// maskToken shows the first 4 and last 4 characters of a token.
// clientConfig converts the file settings to client settings, filling unset
// fields with the client defaults.
func clientConfig(cfg *Config) pollchat.Config {
	c := pollchat.Config{
		PollInterval:     time.Duration(cfg.Default.PollIntervalMS) * time.Millisecond,
		PresenceInterval: time.Duration(cfg.Default.PresenceIntervalMS) * time.Millisecond,
		MaxMessageLength: cfg.Default.MaxMessageLength,
	}
	if c.PollInterval <= 0 {
		c.PollInterval = pollchat.DefaultPollInterval
	}
	if c.PresenceInterval <= 0 {
		c.PresenceInterval = pollchat.DefaultPresenceInterval
	}
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = pollchat.DefaultMaxMessageLength
	}
	return c
}

func maskToken(token string) string {
	if len(token) <= 12 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

func formatMessage(m pollchat.Message, s pollchat.Session) string {
	who := m.Nickname
	if m.Own(s) {
		who = "you"
	}
	return fmt.Sprintf("[%s] %s: %s", m.Time().Format("15:04:05"), who, m.Text)
}
