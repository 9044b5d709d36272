// Package queue implements the message processing core: ingestion, admission
// control, windowed batching, tool dispatch, and the result feedback loop.
package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agentpipe/agentpipe/batch"
	"github.com/agentpipe/agentpipe/flow"
	"github.com/agentpipe/agentpipe/logger"
	"github.com/agentpipe/agentpipe/message"
	"github.com/agentpipe/agentpipe/provider"
	"github.com/agentpipe/agentpipe/store"
	"github.com/agentpipe/agentpipe/tools"
)

const (
	// DefaultWindow is the collection interval for admitted messages.
	DefaultWindow = 500 * time.Millisecond
	// DefaultBufferSize is the ingestion channel capacity.
	DefaultBufferSize = 100
	// windowQueueSize bounds how many flushed windows may wait for the
	// executor. Collection stays responsive while a tool call is in flight.
	windowQueueSize = 8
)

// Options contains queue construction parameters and collaborators. Registry
// is required; Provider and Store are optional.
type Options struct {
	Window        time.Duration
	MaxConcurrent int
	BufferSize    int

	Registry *tools.Registry
	Provider provider.Provider // inference dispatch for user batches
	Store    *store.Store      // fire-and-forget message recording
	ChatID   string            // chat the store records messages under
}

// Subscriber observes messages republished by the queue.
type Subscriber func(*message.Message)

// StateFunc observes queue state transitions.
type StateFunc func(message.ProcessingState)

// Queue is the top-level orchestrator. Messages enter through Enqueue, pass
// the flow controller's admission gate, are collected per time window, batched
// by priority, executed, and tool results are fed back in as new messages.
type Queue struct {
	opts       Options
	registry   *tools.Registry
	processor  *batch.Processor
	controller *flow.Controller

	incoming chan *message.Message // published, not yet admitted
	admitted chan *message.Message // re-admitted from the backlog
	windows  chan []*message.Message
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu        sync.Mutex
	active    map[string]*message.Message
	state     message.ProcessingState
	subs      []Subscriber
	stateSubs []StateFunc
}

// New creates a queue. Call Start to launch the pipeline.
func New(opts Options) *Queue {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Registry == nil {
		opts.Registry = tools.NewRegistry()
	}

	q := &Queue{
		opts:      opts,
		registry:  opts.Registry,
		processor: batch.NewProcessor(),
		incoming:  make(chan *message.Message, opts.BufferSize),
		admitted:  make(chan *message.Message, opts.BufferSize),
		windows:   make(chan []*message.Message, windowQueueSize),
		done:      make(chan struct{}),
		active:    make(map[string]*message.Message),
		state:     message.StateUnknown,
	}
	q.controller = flow.NewController(opts.MaxConcurrent, q.readmit)
	return q
}

// Start launches the collection and execution loops.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(2)
	go q.collectLoop(ctx)
	go q.execLoop(ctx)
	logger.Info("queue started",
		"window", q.opts.Window,
		"maxConcurrent", q.controller.Max(),
		"buffer", q.opts.BufferSize,
	)
}

// Close shuts the queue down and waits for the loops to exit.
func (q *Queue) Close() {
	q.stopOnce.Do(func() { close(q.done) })
	q.wg.Wait()
}

// Enqueue records the message in the active set and publishes it into the
// ingestion stream. It never fails; malformed content is accepted here and
// surfaces later at parse or validation time. A message the ingestion buffer
// rejects is dropped whole: it leaves the active set and is not persisted.
func (q *Queue) Enqueue(m *message.Message) {
	if m == nil {
		return
	}
	q.record(m)

	select {
	case q.incoming <- m:
	case <-q.done:
		q.unrecord(m)
		logger.Warn("queue closed, message dropped", "messageID", m.ID)
		return
	default:
		q.unrecord(m)
		logger.Warn("ingestion buffer full, message dropped", "messageID", m.ID)
		return
	}
	q.persist(m)
}

// Subscribe registers an observer for republished messages.
func (q *Queue) Subscribe(fn Subscriber) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subs = append(q.subs, fn)
}

// OnStateChange registers an observer for queue state transitions.
func (q *Queue) OnStateChange(fn StateFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stateSubs = append(q.stateSubs, fn)
}

// State returns the queue's current processing state.
func (q *Queue) State() message.ProcessingState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// ActiveCount returns the size of the active message set.
func (q *Queue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// Controller exposes the flow controller (read-only use: health reporting).
func (q *Queue) Controller() *flow.Controller {
	return q.controller
}

// Registry returns the tool registry the queue dispatches against.
func (q *Queue) Registry() *tools.Registry {
	return q.registry
}

// readmit delivers a backlog-released message straight into the admitted
// stream, bypassing the gate it already passed. The controller has already
// counted the released message against the ceiling, so a drop here must hand
// the slot back or capacity leaks for the life of the queue.
func (q *Queue) readmit(m *message.Message) {
	select {
	case q.admitted <- m:
	case <-q.done:
		q.dropReleased(m, "queue closed")
	default:
		q.dropReleased(m, "admitted buffer full")
	}
}

// dropReleased abandons a released message: it leaves the active set and its
// admission slot is returned to the controller.
func (q *Queue) dropReleased(m *message.Message, reason string) {
	q.unrecord(m)
	q.controller.RequestComplete()
	logger.Warn("released message dropped: "+reason, "messageID", m.ID)
}

// collectLoop gates incoming messages and flushes a window of admitted ones
// at every tick. It never blocks on batch execution.
func (q *Queue) collectLoop(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.opts.Window)
	defer ticker.Stop()

	var window []*message.Message
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case m := <-q.incoming:
			if q.controller.ShouldProcess(m) {
				window = append(window, m)
			} else {
				q.controller.EnqueueForLater(m)
			}
		case m := <-q.admitted:
			window = append(window, m)
		case <-ticker.C:
			if len(window) == 0 {
				continue // empty windows are discarded
			}
			select {
			case q.windows <- window:
				window = nil
			default:
				// Executor is saturated; hold the window for the next tick.
				logger.Warn("window queue full, deferring flush", "size", len(window))
			}
		}
	}
}

// execLoop runs flushed windows one at a time.
func (q *Queue) execLoop(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case msgs := <-q.windows:
			q.processWindow(ctx, msgs)
		}
	}
}

// processWindow batches and executes one window. Batches run in priority
// order; the first batch error aborts the remainder of the window and moves
// the queue to the error state. Flow slots are released for every message in
// the window regardless of outcome.
func (q *Queue) processWindow(ctx context.Context, msgs []*message.Message) {
	q.setState(message.StateProcessing)

	batches := q.processor.CreateBatches(msgs)
	logger.Debug("window flushed", "messages", len(msgs), "batches", len(batches))

	for i, b := range batches {
		err := q.executeBatch(ctx, b)
		q.finishBatch(b)
		if err != nil {
			logger.Error("batch failed, aborting window",
				"batch", i, "remaining", len(batches)-i-1, "err", err)
			for _, rest := range batches[i+1:] {
				q.finishBatch(rest)
			}
			q.setState(message.StateError)
			return
		}
	}

	q.setState(message.StateSuccess)
}

// executeBatch runs one batch: tool dispatch for tool batches, republish (and
// optional inference dispatch) for plain ones.
func (q *Queue) executeBatch(ctx context.Context, b *batch.Batch) error {
	if b.HasToolUse() {
		return q.executeToolBatch(ctx, b)
	}

	for _, m := range b.Messages {
		q.record(m)
		q.publish(m)
	}

	if q.opts.Provider != nil && batchHasUserMessage(b) {
		reply, err := q.dispatchInference(ctx, b)
		if err != nil {
			return fmt.Errorf("inference dispatch: %w", err)
		}
		q.Enqueue(reply)
	}
	return nil
}

// executeToolBatch extracts tool uses from the batch's first invocation
// message and feeds every result back into the queue as a new assistant
// message. Per-invocation failures arrive as error-flagged results, so this
// path itself only fails on orchestration bugs, not bad tool calls.
func (q *Queue) executeToolBatch(ctx context.Context, b *batch.Batch) error {
	first := b.ToolUses[0]
	agentID := ""
	if len(b.Messages) > 0 {
		agentID = b.Messages[0].AgentID
	}

	results := q.registry.ProcessToolUses(ctx, first.Content)
	for _, res := range results {
		m := message.New(res.Content, agentID, message.RoleAssistant)
		if len(res.Metadata) > 0 {
			m = m.WithMetadata(res.Metadata)
		}
		q.Enqueue(m)
	}
	logger.Debug("tool batch executed", "messageID", first.ID, "results", len(results))
	return nil
}

// dispatchInference sends a plain user batch to the inference service.
func (q *Queue) dispatchInference(ctx context.Context, b *batch.Batch) (*message.Message, error) {
	var parts []string
	for _, m := range b.Messages {
		if m.IsInternal {
			continue
		}
		parts = append(parts, m.Content)
	}
	if len(parts) == 0 {
		return nil, provider.ErrNoData
	}

	return q.opts.Provider.SendMessage(ctx, &provider.Request{
		Content:  strings.Join(parts, "\n"),
		ThreadID: q.opts.ChatID,
		AgentID:  b.Messages[0].AgentID,
		Tools:    provider.DefsFromRegistry(q.registry),
	})
}

// finishBatch releases flow capacity for the batch's messages and drops them
// from the active set.
func (q *Queue) finishBatch(b *batch.Batch) {
	q.mu.Lock()
	for _, m := range b.Messages {
		delete(q.active, m.ID)
	}
	q.mu.Unlock()

	for range b.Messages {
		q.controller.RequestComplete()
	}
}

// record puts the message in the active set.
func (q *Queue) record(m *message.Message) {
	q.mu.Lock()
	q.active[m.ID] = m
	q.mu.Unlock()
}

// unrecord removes the message from the active set.
func (q *Queue) unrecord(m *message.Message) {
	q.mu.Lock()
	delete(q.active, m.ID)
	q.mu.Unlock()
}

// persist side-records the message; failures are logged, never propagated.
func (q *Queue) persist(m *message.Message) {
	if q.opts.Store == nil || q.opts.ChatID == "" {
		return
	}
	if err := q.opts.Store.SaveMessage(m, q.opts.ChatID); err != nil {
		logger.Warn("message persistence failed", "messageID", m.ID, "err", err)
	}
}

// publish delivers a message to all subscribers.
func (q *Queue) publish(m *message.Message) {
	q.mu.Lock()
	subs := make([]Subscriber, len(q.subs))
	copy(subs, q.subs)
	q.mu.Unlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("subscriber panic", "messageID", m.ID, "panic", r)
				}
			}()
			fn(m)
		}()
	}
}

// setState moves the queue state machine and notifies observers on change.
func (q *Queue) setState(s message.ProcessingState) {
	q.mu.Lock()
	if q.state == s {
		q.mu.Unlock()
		return
	}
	q.state = s
	subs := make([]StateFunc, len(q.stateSubs))
	copy(subs, q.stateSubs)
	q.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

// batchHasUserMessage reports whether any message in the batch is user-role.
func batchHasUserMessage(b *batch.Batch) bool {
	for _, m := range b.Messages {
		if m.Role == message.RoleUser {
			return true
		}
	}
	return false
}
