// Package batch groups a window of admitted messages into prioritized batches.
package batch

import (
	"sort"

	"github.com/agentpipe/agentpipe/message"
	"github.com/agentpipe/agentpipe/tools"
)

const (
	// toolUsePriority outranks any conversational batch.
	toolUsePriority = 2
	// basePriority is the floor for regular batches; user-originated groups
	// get one extra.
	basePriority = 1
)

// Batch is a transient group of messages processed together within one
// window. It is consumed by the queue and discarded, never persisted.
type Batch struct {
	Messages []*message.Message
	ToolUses []*message.Message
	Priority int
}

// HasToolUse reports whether the batch carries a tool-invocation message.
func (b *Batch) HasToolUse() bool {
	return len(b.ToolUses) > 0
}

// Processor turns message windows into ordered batches. It is stateless; each
// call is a pure function of its input.
type Processor struct{}

// NewProcessor creates a batch processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// CreateBatches partitions messages into tool-use singletons and per-agent
// groups, assigns priorities, and returns them sorted descending by priority.
// Tool-use batches are fixed at priority 2; regular groups start at 1 and
// gain 1 when any message in the group is user-role. The sort is stable, so
// equal priorities keep concatenation order: tool batches first, then groups
// in first-appearance order.
func (p *Processor) CreateBatches(msgs []*message.Message) []*Batch {
	if len(msgs) == 0 {
		return nil
	}

	var toolUses []*message.Message
	var regular []*message.Message
	for _, m := range msgs {
		if tools.ContainsInvocation(m.Content) {
			toolUses = append(toolUses, m)
		} else {
			regular = append(regular, m)
		}
	}

	batches := make([]*Batch, 0, len(toolUses)+4)
	for _, m := range toolUses {
		batches = append(batches, &Batch{
			Messages: []*message.Message{m},
			ToolUses: []*message.Message{m},
			Priority: toolUsePriority,
		})
	}

	// Group regular messages by agent, preserving each group's relative order
	// and the order in which agents first appear.
	groups := make(map[string][]*message.Message)
	var agentOrder []string
	for _, m := range regular {
		if _, seen := groups[m.AgentID]; !seen {
			agentOrder = append(agentOrder, m.AgentID)
		}
		groups[m.AgentID] = append(groups[m.AgentID], m)
	}

	for _, agentID := range agentOrder {
		group := groups[agentID]
		priority := basePriority
		for _, m := range group {
			if m.Role == message.RoleUser {
				priority++
				break
			}
		}
		batches = append(batches, &Batch{
			Messages: group,
			Priority: priority,
		})
	}

	sort.SliceStable(batches, func(i, j int) bool {
		return batches[i].Priority > batches[j].Priority
	})
	return batches
}
