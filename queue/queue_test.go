package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agentpipe/agentpipe/message"
	"github.com/agentpipe/agentpipe/provider"
	"github.com/agentpipe/agentpipe/tools"
)

const testWindow = 20 * time.Millisecond

// collector is a thread-safe subscriber used by the tests.
type collector struct {
	mu   sync.Mutex
	msgs []*message.Message
}

func (c *collector) add(m *message.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *collector) snapshot() []*message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*message.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// stateRecorder captures queue state transitions.
type stateRecorder struct {
	mu     sync.Mutex
	states []message.ProcessingState
}

func (r *stateRecorder) record(s message.ProcessingState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) snapshot() []message.ProcessingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]message.ProcessingState, len(r.states))
	copy(out, r.states)
	return out
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// echoTool returns fixed content for queue-level tests.
type echoTool struct {
	content string
	err     error
}

func (e *echoTool) Name() string { return "echo" }
func (e *echoTool) Description() string { return "echoes fixed content" }

func (e *echoTool) InputSchema() map[string]tools.Property {
	return map[string]tools.Property{
		"text": {Type: "string", Description: "ignored", Optional: true},
	}
}

func (e *echoTool) Execute(ctx context.Context, input map[string]string) (tools.Result, error) {
	if e.err != nil {
		return tools.Result{}, e.err
	}
	return tools.Result{Content: e.content, Metadata: map[string]string{"source": "echo"}}, nil
}

// stubProvider scripts the inference collaborator.
type stubProvider struct {
	reply *message.Message
	err   error

	mu    sync.Mutex
	calls int
}

func (s *stubProvider) SendMessage(ctx context.Context, req *provider.Request) (*message.Message, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.reply, nil
}

func (s *stubProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func startQueue(t *testing.T, opts Options) *Queue {
	t.Helper()
	if opts.Window == 0 {
		opts.Window = testWindow
	}
	q := New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		q.Close()
	})
	q.Start(ctx)
	return q
}

func TestQueue_InitialStateUnknown(t *testing.T) {
	q := New(Options{})
	if got := q.State(); got != message.StateUnknown {
		t.Errorf("initial state = %s, want unknown", got)
	}
}

func TestQueue_SingleWindowBatchInArrivalOrder(t *testing.T) {
	q := startQueue(t, Options{})

	var col collector
	q.Subscribe(col.add)

	q.Enqueue(message.New("one", "a1", message.RoleUser))
	q.Enqueue(message.New("two", "a1", message.RoleUser))
	q.Enqueue(message.New("three", "a1", message.RoleUser))

	waitFor(t, "three republished messages", func() bool {
		return len(col.snapshot()) >= 3
	})

	got := col.snapshot()
	want := []string{"one", "two", "three"}
	for i := range want {
		if got[i].Content != want[i] {
			t.Fatalf("republish order = %v, want %v", messageContents(got), want)
		}
	}
	waitFor(t, "success state", func() bool {
		return q.State() == message.StateSuccess
	})
}

func TestQueue_ToolInvocationFeedbackLoop(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&echoTool{content: "tool says hi"})

	q := startQueue(t, Options{Registry: reg})

	var rec stateRecorder
	q.OnStateChange(rec.record)

	var col collector
	q.Subscribe(col.add)

	if got := q.State(); got != message.StateUnknown {
		t.Fatalf("pre-enqueue state = %s, want unknown", got)
	}

	q.Enqueue(message.New(`{"tool":"echo","input":{"text":"x"}}`, "a1", message.RoleAgent))

	// The result is synthesized as a new assistant message, fed back through
	// the queue, and republished in a following window.
	waitFor(t, "assistant result message", func() bool {
		for _, m := range col.snapshot() {
			if m.Role == message.RoleAssistant && m.Content == "tool says hi" {
				return true
			}
		}
		return false
	})

	var result *message.Message
	for _, m := range col.snapshot() {
		if m.Role == message.RoleAssistant {
			result = m
			break
		}
	}
	if result.AgentID != "a1" {
		t.Errorf("result agentID = %q, want inherited a1", result.AgentID)
	}
	if result.Metadata["source"] != "echo" {
		t.Errorf("result metadata = %v, want tool metadata carried over", result.Metadata)
	}

	states := rec.snapshot()
	if len(states) == 0 || states[0] != message.StateProcessing {
		t.Fatalf("state transitions = %v, want processing first", states)
	}
	waitFor(t, "success state", func() bool {
		return q.State() == message.StateSuccess
	})
	if got := reg.State("echo"); got != message.StateSuccess {
		t.Errorf("tool state = %s, want success", got)
	}
}

func TestQueue_UnknownToolYieldsErrorResult(t *testing.T) {
	q := startQueue(t, Options{})

	var col collector
	q.Subscribe(col.add)

	q.Enqueue(message.New(`{"tool":"ghost","input":{}}`, "a1", message.RoleAgent))

	// The lookup failure becomes an error-flagged result message; the window
	// itself still succeeds.
	waitFor(t, "error result message", func() bool {
		for _, m := range col.snapshot() {
			if m.Role == message.RoleAssistant {
				return true
			}
		}
		return false
	})
	waitFor(t, "success state", func() bool {
		return q.State() == message.StateSuccess
	})
}

func TestQueue_BacklogReleasePreservesOrder(t *testing.T) {
	q := startQueue(t, Options{MaxConcurrent: 1})

	var col collector
	q.Subscribe(col.add)

	q.Enqueue(message.New("first", "a1", message.RoleAgent))
	q.Enqueue(message.New("second", "a1", message.RoleAgent))
	q.Enqueue(message.New("third", "a1", message.RoleAgent))

	waitFor(t, "all three released and republished", func() bool {
		return len(col.snapshot()) >= 3
	})

	got := messageContents(col.snapshot())
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v (FIFO backlog release)", got, want)
		}
	}
}

func TestQueue_ProviderDispatchForUserBatches(t *testing.T) {
	stub := &stubProvider{reply: message.New("inference reply", "svc", message.RoleAssistant)}
	q := startQueue(t, Options{Provider: stub})

	var col collector
	q.Subscribe(col.add)

	q.Enqueue(message.New("hello model", "a1", message.RoleUser))

	waitFor(t, "inference reply republished", func() bool {
		for _, m := range col.snapshot() {
			if m.Content == "inference reply" {
				return true
			}
		}
		return false
	})
	if stub.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1", stub.callCount())
	}
}

func TestQueue_ProviderFailureFailsWindow(t *testing.T) {
	stub := &stubProvider{err: errors.New("upstream down")}
	q := startQueue(t, Options{Provider: stub})

	q.Enqueue(message.New("hello model", "a1", message.RoleUser))

	waitFor(t, "error state", func() bool {
		return q.State() == message.StateError
	})

	// The next clean window moves the queue back to success.
	q.Enqueue(message.New("agent only", "a2", message.RoleAgent))
	waitFor(t, "recovery to success", func() bool {
		return q.State() == message.StateSuccess
	})
}

func TestQueue_ActiveSetDrains(t *testing.T) {
	q := startQueue(t, Options{})

	q.Enqueue(message.New("transient", "a1", message.RoleAgent))

	waitFor(t, "active set drained", func() bool {
		return q.ActiveCount() == 0 && q.State() == message.StateSuccess
	})
}

func TestQueue_DroppedMessageLeavesActiveSet(t *testing.T) {
	q := New(Options{Window: testWindow, BufferSize: 1})

	// Nothing drains incoming yet, so the second enqueue overflows the buffer
	// and must be dropped without a trace in the active set.
	q.Enqueue(message.New("kept", "a1", message.RoleAgent))
	q.Enqueue(message.New("overflow", "a1", message.RoleAgent))

	if got := q.ActiveCount(); got != 1 {
		t.Fatalf("active after overflow = %d, want 1 (dropped message not tracked)", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		q.Close()
	})
	q.Start(ctx)

	waitFor(t, "pipeline drained", func() bool {
		return q.State() == message.StateSuccess && q.ActiveCount() == 0
	})
}

func TestQueue_DroppedReleaseReturnsAdmissionSlot(t *testing.T) {
	q := New(Options{Window: testWindow, BufferSize: 1, MaxConcurrent: 1})

	// The pipeline is not running, so the admitted buffer never drains.
	// Occupy its single slot to force the next release onto the drop path.
	q.admitted <- message.New("squatter", "a1", message.RoleAgent)

	c := q.Controller()
	if !c.ShouldProcess(message.New("running", "a1", message.RoleAgent)) {
		t.Fatal("first admission denied")
	}
	c.EnqueueForLater(message.New("parked", "a1", message.RoleAgent))

	// Completion releases the parked message; the full buffer rejects it and
	// its slot must come back, or the ceiling is down one forever.
	c.RequestComplete()

	if got := c.Active(); got != 0 {
		t.Errorf("active = %d, want 0 (dropped release returned its slot)", got)
	}
	if got := c.BacklogLen(); got != 0 {
		t.Errorf("backlog = %d, want 0", got)
	}
	if !c.ShouldProcess(message.New("next", "a1", message.RoleAgent)) {
		t.Error("admission denied after dropped release, capacity leaked")
	}
}

func messageContents(msgs []*message.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}
