// Package config handles configuration loading and saving.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentpipe/agentpipe/logger"
)

const configFileName = "config.yaml"

var configDirOverride string

// SetConfigDir overrides the config directory for the current process.
// Empty value clears the override.
func SetConfigDir(dir string) {
	configDirOverride = strings.TrimSpace(dir)
}

// Config is the root configuration structure.
type Config struct {
	Queue    QueueConfig    `json:"queue" yaml:"queue"`
	Provider ProviderConfig `json:"provider" yaml:"provider"`
	Storage  StorageConfig  `json:"storage,omitempty" yaml:"storage,omitempty"`
	Tools    ToolsConfig    `json:"tools,omitempty" yaml:"tools,omitempty"`
	Logging  LoggingConfig  `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// QueueConfig contains message pipeline settings.
type QueueConfig struct {
	WindowMillis  int `json:"windowMillis,omitempty" yaml:"windowMillis,omitempty"`   // defaults to 500
	MaxConcurrent int `json:"maxConcurrent,omitempty" yaml:"maxConcurrent,omitempty"` // defaults to 3
	BufferSize    int `json:"bufferSize,omitempty" yaml:"bufferSize,omitempty"`       // defaults to 100
}

// Window returns the collection window as a duration.
func (c QueueConfig) Window() time.Duration {
	if c.WindowMillis <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.WindowMillis) * time.Millisecond
}

// ProviderConfig describes the inference service connection.
type ProviderConfig struct {
	Kind        string  `json:"kind" yaml:"kind"` // http, openai
	Endpoint    string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	APIKey      string  `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	APIBase     string  `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	Model       string  `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// StorageConfig contains chat persistence settings.
type StorageConfig struct {
	Dir            string `json:"dir,omitempty" yaml:"dir,omitempty"`                       // defaults to <config>/chats
	RetentionHours int    `json:"retentionHours,omitempty" yaml:"retentionHours,omitempty"` // 0 disables the sweeper
	SweepSchedule  string `json:"sweepSchedule,omitempty" yaml:"sweepSchedule,omitempty"`   // defaults to @hourly
}

// ToolsConfig contains tool-related settings.
type ToolsConfig struct {
	Workspace string `json:"workspace,omitempty" yaml:"workspace,omitempty"` // defaults to <config>/workspace
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Enabled *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Level   string `json:"level,omitempty" yaml:"level,omitempty"` // debug, info, warn, error
	Stdout  bool   `json:"stdout,omitempty" yaml:"stdout,omitempty"`
	File    string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Dir returns the config directory, creating nothing.
func Dir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".agentpipe"), nil
}

// Load reads config.yaml from the config directory.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, configFileName))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Save writes the config to config.yaml in the config directory.
func (c *Config) Save() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, configFileName), data, 0644)
}

// APIKey resolves the provider API key, falling back to environment
// variables when the config does not set one.
func (c *Config) APIKey() string {
	if key := strings.TrimSpace(c.Provider.APIKey); key != "" {
		return key
	}
	for _, env := range []string{"AGENTPIPE_API_KEY", "OPENAI_API_KEY"} {
		if key := strings.TrimSpace(os.Getenv(env)); key != "" {
			return key
		}
	}
	return ""
}

// WorkspacePath resolves the tool workspace directory, creating it if needed.
func (c *Config) WorkspacePath() (string, error) {
	ws := strings.TrimSpace(c.Tools.Workspace)
	if ws == "" {
		dir, err := Dir()
		if err != nil {
			return "", err
		}
		ws = filepath.Join(dir, "workspace")
	}
	if strings.HasPrefix(ws, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		ws = filepath.Join(home, ws[1:])
	}
	if err := os.MkdirAll(ws, 0755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return ws, nil
}

// StorageDir resolves the chat store directory.
func (c *Config) StorageDir() (string, error) {
	if d := strings.TrimSpace(c.Storage.Dir); d != "" {
		return d, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chats"), nil
}

// BuildLoggerConfig converts the logging section into logger settings.
func (c *Config) BuildLoggerConfig() logger.Config {
	enabled := true
	if c.Logging.Enabled != nil {
		enabled = *c.Logging.Enabled
	}
	return logger.Config{
		Enabled: enabled,
		Level:   c.Logging.Level,
		Stdout:  c.Logging.Stdout,
		File:    c.Logging.File,
	}
}
