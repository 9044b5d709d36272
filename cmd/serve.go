package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentpipe/agentpipe/logger"
	"github.com/agentpipe/agentpipe/message"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the message pipeline interactively",
	Long: `Run the pipeline as a long-lived process reading messages from stdin.

Each line is enqueued as a user message. Lines containing an embedded tool
invocation ({"tool": "...", "input": {...}}) are routed to the matching tool;
everything else is batched per agent and, when a provider is configured,
dispatched to the inference service.`,
	RunE: runServe,
}

var serveAgentID string

func init() {
	serveCmd.Flags().StringVar(&serveAgentID, "agent", "cli", "Agent ID attached to entered messages")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	q, st, err := buildQueue(cfg, "serve session")
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	sweeper, err := buildSweeper(cfg, st)
	if err != nil {
		return fmt.Errorf("failed to build sweeper: %w", err)
	}
	if sweeper != nil {
		sweeper.Start()
		defer sweeper.Stop()
	}

	q.Subscribe(func(m *message.Message) {
		if m.IsInternal {
			return
		}
		fmt.Printf("[%s] %s\n", m.Role, m.Content)
	})
	q.OnStateChange(func(s message.ProcessingState) {
		logger.Debug("queue state changed", "state", s)
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	q.Start(ctx)
	defer q.Close()

	logger.Info("pipeline serving", "tools", strings.Join(q.Registry().Names(), ", "))
	fmt.Println("agentpipe ready. Type a message, Ctrl-D to exit.")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			q.Enqueue(message.New(text, serveAgentID, message.RoleUser))
		}
	}
}
