package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gopota/pollchat"
)

var flagPassword string

func init() {
	for _, cmd := range []*cobra.Command{registerCmd, loginCmd} {
		cmd.Flags().StringVar(&flagPassword, "password", "", "password (prompted on stdin if omitted)")
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(logoutCmd)
}

var registerCmd = &cobra.Command{
	Use:   "register <nickname>",
	Short: "Create an account and store its session",
	Long:  "Register a new account with the chat service and store the returned token locally.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return authenticate(args[0], true)
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <nickname>",
	Short: "Log in and store the session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return authenticate(args[0], false)
	},
}

func authenticate(nickname string, register bool) error {
	if err := pollchat.ValidateNickname(nickname); err != nil {
		return err
	}
	password, err := readPassword(flagPassword)
	if err != nil {
		return err
	}

	client, closeFn, err := getClient()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	call := client.Login
	if register {
		call = client.Register
	}
	engine, err := call(ctx, nickname, password)
	if err != nil {
		return authError(err)
	}
	// The session is already persisted; the CLI opens conversations in
	// separate invocations.
	fmt.Printf("Logged in as %s\n", engine.Session().Nickname)
	return nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := (configSessions{}).ClearSession(); err != nil {
			return fmt.Errorf("failed to clear session: %w", err)
		}
		fmt.Println("Logged out.")
		return nil
	},
}
