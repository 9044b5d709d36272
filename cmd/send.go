package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentpipe/agentpipe/message"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Enqueue a single message and print the results",
	Long: `Enqueue one message, wait for the pipeline to process it, and print
every message the pipeline republishes. Useful for testing tool invocations:

  agentpipe send --text '{"tool":"time.now","input":{}}'
  agentpipe send --text "hello there" --agent a1`,
	RunE: runSend,
}

var (
	sendText    string
	sendAgentID string
	sendWait    time.Duration
)

func init() {
	sendCmd.Flags().StringVar(&sendText, "text", "", "Message text (required)")
	sendCmd.Flags().StringVar(&sendAgentID, "agent", "cli", "Agent ID for the message")
	sendCmd.Flags().DurationVar(&sendWait, "wait", 2*time.Second, "How long to wait for results")
	_ = sendCmd.MarkFlagRequired("text")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	q, _, err := buildQueue(cfg, "send")
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	results := make(chan *message.Message, 16)
	q.Subscribe(func(m *message.Message) {
		select {
		case results <- m:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), sendWait)
	defer cancel()

	q.Start(ctx)
	defer q.Close()

	q.Enqueue(message.New(strings.TrimSpace(sendText), sendAgentID, message.RoleUser))

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-results:
			if m.IsInternal {
				continue
			}
			fmt.Printf("[%s] %s\n", m.Role, m.Content)
		}
	}
}
