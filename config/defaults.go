package config

const (
	defaultProviderKind  = "http"
	defaultModel         = "gpt-4.1-mini"
	defaultMaxTokens     = 8192
	defaultTemperature   = 0.7
	defaultWindowMillis  = 500
	defaultMaxConcurrent = 3
	defaultBufferSize    = 100
	defaultSweepSchedule = "@hourly"
	defaultRetention     = 24 * 7 // hours
)

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Queue: QueueConfig{
			WindowMillis:  defaultWindowMillis,
			MaxConcurrent: defaultMaxConcurrent,
			BufferSize:    defaultBufferSize,
		},
		Provider: ProviderConfig{
			Kind:        defaultProviderKind,
			Model:       defaultModel,
			MaxTokens:   defaultMaxTokens,
			Temperature: defaultTemperature,
		},
		Storage: StorageConfig{
			RetentionHours: defaultRetention,
			SweepSchedule:  defaultSweepSchedule,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Stdout: true,
		},
	}
}
