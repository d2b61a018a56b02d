package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gopota/pollchat"
)

var flagChatsJSON bool

func init() {
	chatsCmd.Flags().BoolVar(&flagChatsJSON, "json", false, "Output raw JSON")
	rootCmd.AddCommand(chatsCmd, joinCmd, dmCmd)
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List known group chats and direct conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closeFn, err := getClient()
		if err != nil {
			return err
		}
		defer closeFn()

		m, err := client.Memberships()
		if err != nil {
			return fmt.Errorf("failed to read memberships: %w", err)
		}

		if flagChatsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		}

		if len(m.Groups) == 0 && len(m.Peers) == 0 {
			fmt.Println("No chats yet. Use 'pollchat join <group>' or 'pollchat dm <nickname>'.")
			return nil
		}
		for _, g := range m.Groups {
			fmt.Println(pollchat.Group(g))
		}
		for _, p := range m.Peers {
			fmt.Println(pollchat.Direct(p))
		}
		return nil
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <group>",
	Short: "Add a group chat to the list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return addMembership(args[0], (*pollchat.Client).JoinGroup)
	},
}

var dmCmd = &cobra.Command{
	Use:   "dm <nickname>",
	Short: "Add a direct conversation to the list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return addMembership(args[0], (*pollchat.Client).AddPeer)
	},
}

func addMembership(name string, add func(c *pollchat.Client, name string) (bool, error)) error {
	client, closeFn, err := getClient()
	if err != nil {
		return err
	}
	defer closeFn()

	added, err := add(client, name)
	if err != nil {
		return err
	}
	if added {
		fmt.Printf("Added %s\n", name)
	} else {
		fmt.Printf("%s is already in the list\n", name)
	}
	return nil
}
