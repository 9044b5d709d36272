// Package flow implements the bounded-concurrency admission gate in front of
// the message pipeline.
package flow

import (
	"sync"

	"github.com/agentpipe/agentpipe/logger"
	"github.com/agentpipe/agentpipe/message"
)

// DefaultMaxConcurrent is the admission ceiling used when none is configured.
const DefaultMaxConcurrent = 3

// ReleaseFunc re-admits a backlog message into the processing pipeline.
type ReleaseFunc func(*message.Message)

// Controller is a semaphore-style admission gate with a FIFO backlog. It is
// deliberately not priority-aware: fairness here is arrival order, and batch
// priority applies only within an already-admitted window. The controller is
// the single owner of the admission counter.
type Controller struct {
	mu            sync.Mutex
	maxConcurrent int
	active        int
	backlog       []*message.Message
	release       ReleaseFunc
}

// NewController creates a controller with the given ceiling. Zero or negative
// ceilings fall back to DefaultMaxConcurrent. release is invoked for each
// backlog message re-admitted by RequestComplete; it must not call back into
// the controller.
func NewController(maxConcurrent int, release ReleaseFunc) *Controller {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Controller{
		maxConcurrent: maxConcurrent,
		release:       release,
	}
}

// ShouldProcess reports whether the message may be processed now. Admission
// increments the in-flight counter; a false return means the caller must park
// the message via EnqueueForLater.
func (c *Controller) ShouldProcess(msg *message.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active >= c.maxConcurrent {
		return false
	}
	c.active++
	return true
}

// EnqueueForLater appends the message to the FIFO backlog.
func (c *Controller) EnqueueForLater(msg *message.Message) {
	c.mu.Lock()
	c.backlog = append(c.backlog, msg)
	depth := len(c.backlog)
	c.mu.Unlock()

	logger.Debug("message parked in backlog", "messageID", msg.ID, "backlog", depth)
}

// RequestComplete signals that one admitted message finished processing. The
// counter is decremented and backlog entries are released oldest-first while
// capacity remains, each re-entering the pipeline as admitted.
func (c *Controller) RequestComplete() {
	c.mu.Lock()
	if c.active > 0 {
		c.active--
	}

	var released []*message.Message
	for c.active < c.maxConcurrent && len(c.backlog) > 0 {
		msg := c.backlog[0]
		c.backlog = c.backlog[1:]
		c.active++
		released = append(released, msg)
	}
	c.mu.Unlock()

	for _, msg := range released {
		logger.Debug("backlog message released", "messageID", msg.ID)
		if c.release != nil {
			c.release(msg)
		}
	}
}

// Max returns the admission ceiling.
func (c *Controller) Max() int {
	return c.maxConcurrent
}

// Active returns the number of currently admitted messages.
func (c *Controller) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// BacklogLen returns the number of parked messages.
func (c *Controller) BacklogLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.backlog)
}
