package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentpipe/agentpipe/store"
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List persisted chats, most recent first",
	RunE:  runChats,
}

var chatsDelete string

func init() {
	chatsCmd.Flags().StringVar(&chatsDelete, "delete", "", "Delete the chat with the given ID")
	rootCmd.AddCommand(chatsCmd)
}

func runChats(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	dir, err := cfg.StorageDir()
	if err != nil {
		return err
	}
	st, err := store.New(dir)
	if err != nil {
		return err
	}

	if chatsDelete != "" {
		if err := st.DeleteChat(chatsDelete); err != nil {
			return fmt.Errorf("delete chat: %w", err)
		}
		fmt.Println("deleted", chatsDelete)
		return nil
	}

	chats, err := st.Chats()
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		fmt.Println("no chats")
		return nil
	}
	for _, c := range chats {
		title := c.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %s  %d messages  updated %s\n",
			c.ID, title, len(c.Messages), c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
