// Package provider defines the inference service client interface and common types.
package provider

import (
	"context"
	"time"

	"github.com/agentpipe/agentpipe/message"
	"github.com/agentpipe/agentpipe/tools"
)

// Provider is the interface to the remote inference service. Retry and
// backoff policy belongs to implementations; callers only observe the final
// success or failure.
type Provider interface {
	// SendMessage sends content (with the available tool definitions) and
	// returns the service's reply as a new message.
	SendMessage(ctx context.Context, req *Request) (*message.Message, error)
}

// Request is a single outbound inference exchange.
type Request struct {
	Content  string
	ThreadID string
	AgentID  string
	Tools    []ToolDef
	Endpoint string // optional per-request endpoint override
}

// ToolDef describes a tool to the inference service.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// DefForTool converts a tool's declared schema into the wire definition.
func DefForTool(t tools.Tool) ToolDef {
	schema := t.InputSchema()
	props := make(map[string]any, len(schema))
	var required []string
	for name, prop := range schema {
		p := map[string]any{
			"type":        "string",
			"description": prop.Description,
		}
		if len(prop.Enum) > 0 {
			p["enum"] = prop.Enum
		}
		props[name] = p
		if !prop.Optional {
			required = append(required, name)
		}
	}
	return ToolDef{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

// DefsFromRegistry builds wire definitions for every registered tool.
func DefsFromRegistry(reg *tools.Registry) []ToolDef {
	names := reg.Names()
	defs := make([]ToolDef, 0, len(names))
	for _, name := range names {
		if t, ok := reg.Get(name); ok {
			defs = append(defs, DefForTool(t))
		}
	}
	return defs
}

// RetryConfig controls the outbound retry policy. The queue core never
// retries on its own; this policy is owned by the provider.
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	Multiplier        float64
	RetryableStatuses []int
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      500 * time.Millisecond,
		Multiplier:        2.0,
		RetryableStatuses: []int{429, 500, 502, 503, 504},
	}
}

func (c RetryConfig) retryableStatus(status int) bool {
	for _, s := range c.RetryableStatuses {
		if s == status {
			return true
		}
	}
	return false
}
