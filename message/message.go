// Package message defines the core message value and processing states.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleAgent     Role = "agent"
	RoleSystem    Role = "system"
)

// ProcessingState is the lifecycle marker attached to the queue and to each
// registered tool. Unknown is the initial state and is never re-entered once
// a first transition has happened.
type ProcessingState string

const (
	StateUnknown    ProcessingState = "unknown"
	StateProcessing ProcessingState = "processing"
	StateSuccess    ProcessingState = "success"
	StateError      ProcessingState = "error"
)

// Message is an immutable conversation message. Producers create it, the
// queue references it while active, and nothing mutates it afterwards.
type Message struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	AgentID    string            `json:"agentId"`
	Role       Role              `json:"role"`
	IsInternal bool              `json:"isInternal,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// New creates a message with a fresh ID and the current timestamp.
func New(content, agentID string, role Role) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Content:   content,
		AgentID:   agentID,
		Role:      role,
		Timestamp: time.Now(),
	}
}

// NewInternal creates a message suppressed from user-facing views.
func NewInternal(content, agentID string, role Role) *Message {
	m := New(content, agentID, role)
	m.IsInternal = true
	return m
}

// WithMetadata returns a copy of the message carrying the given metadata.
func (m *Message) WithMetadata(md map[string]string) *Message {
	cp := *m
	if len(md) > 0 {
		cp.Metadata = make(map[string]string, len(md))
		for k, v := range md {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
