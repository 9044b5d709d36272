// Package cmd implements the agentpipe CLI.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentpipe/agentpipe/config"
	"github.com/agentpipe/agentpipe/provider"
	"github.com/agentpipe/agentpipe/queue"
	"github.com/agentpipe/agentpipe/store"
	"github.com/agentpipe/agentpipe/tools"
)

var rootCmd = &cobra.Command{
	Use:   "agentpipe",
	Short: "agentpipe mediates agent messages, tools, and inference",
	Long: `agentpipe is a message processing pipeline for conversational agents.

Incoming messages are flow-controlled, collected into time windows, batched
by priority, and dispatched to named tools or to a remote inference service.
Tool results are fed back into the pipeline as new assistant messages.`,
}

var configDirFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", "", "Override config directory (default ~/.agentpipe)")
	cobra.OnInitialize(func() {
		if configDirFlag != "" {
			config.SetConfigDir(configDirFlag)
		}
	})
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads config.yaml, falling back to defaults when absent.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		return config.DefaultConfig()
	}
	return cfg
}

// buildRegistry creates the tool registry with the built-in tools.
func buildRegistry(cfg *config.Config) (*tools.Registry, error) {
	workspace, err := cfg.WorkspacePath()
	if err != nil {
		return nil, err
	}
	reg := tools.NewRegistry()
	tools.RegisterDefaultTools(reg, workspace)
	return reg, nil
}

// buildProvider creates the inference client named by config, or nil when
// none is configured.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	switch cfg.Provider.Kind {
	case "", "none":
		return nil, nil
	case "http":
		if cfg.Provider.Endpoint == "" {
			return nil, nil
		}
		return provider.NewHTTPProvider(cfg.Provider.Endpoint, cfg.APIKey()), nil
	case "openai":
		key := cfg.APIKey()
		if key == "" {
			return nil, fmt.Errorf("openai provider requires an API key (config or OPENAI_API_KEY)")
		}
		return provider.NewOpenAIProvider(
			key,
			cfg.Provider.APIBase,
			cfg.Provider.Model,
			cfg.Provider.MaxTokens,
			cfg.Provider.Temperature,
		), nil
	default:
		return nil, fmt.Errorf("unknown provider kind: %s", cfg.Provider.Kind)
	}
}

// buildQueue wires the full pipeline: registry, provider, store, and queue.
func buildQueue(cfg *config.Config, chatTitle string) (*queue.Queue, *store.Store, error) {
	reg, err := buildRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}

	prov, err := buildProvider(cfg)
	if err != nil {
		return nil, nil, err
	}

	storageDir, err := cfg.StorageDir()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(storageDir)
	if err != nil {
		return nil, nil, err
	}

	chat := store.NewChat(chatTitle)
	if err := st.SaveChat(chat); err != nil {
		return nil, nil, fmt.Errorf("create chat: %w", err)
	}

	q := queue.New(queue.Options{
		Window:        cfg.Queue.Window(),
		MaxConcurrent: cfg.Queue.MaxConcurrent,
		BufferSize:    cfg.Queue.BufferSize,
		Registry:      reg,
		Provider:      prov,
		Store:         st,
		ChatID:        chat.ID,
	})
	return q, st, nil
}

// buildSweeper creates the retention sweeper when retention is configured.
func buildSweeper(cfg *config.Config, st *store.Store) (*store.Sweeper, error) {
	if cfg.Storage.RetentionHours <= 0 {
		return nil, nil
	}
	schedule := cfg.Storage.SweepSchedule
	if schedule == "" {
		schedule = "@hourly"
	}
	ttl := time.Duration(cfg.Storage.RetentionHours) * time.Hour
	return store.NewSweeper(st, schedule, ttl)
}
