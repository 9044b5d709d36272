// Package tools provides the tool contract, schema validation, and the
// registry that owns tool execution and per-tool processing state.
package tools

import (
	"context"
	"sync"

	"github.com/agentpipe/agentpipe/logger"
	"github.com/agentpipe/agentpipe/message"
)

// Property describes one named input in a tool's schema. Type is a semantic
// tag for documentation; only Optional and Enum are enforced. Properties are
// required unless Optional is set, so the zero value declares a required
// input.
type Property struct {
	Type        string
	Description string
	Optional    bool
	Enum        []string
}

// Result is the outcome of a single tool call.
type Result struct {
	Success  bool
	Content  string
	IsError  bool
	Metadata map[string]string
	State    message.ProcessingState
}

// Tool is the capability contract implemented by every registered tool.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]Property
	// Execute runs the tool. Input is already validated against InputSchema.
	Execute(ctx context.Context, input map[string]string) (Result, error)
}

// Registry holds registered tools and is the single owner of per-tool
// processing state. Calls for different tools may run concurrently; the
// internal maps are guarded by the mutex.
type Registry struct {
	mu     sync.Mutex
	tools  map[string]Tool
	states map[string]message.ProcessingState
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		states: make(map[string]message.ProcessingState),
	}
}

// Register adds a tool, overwriting any previous registration under the same
// name and resetting its state to unknown. Last write wins.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		logger.Warn("tool re-registered, overwriting", "tool", name)
	}
	r.tools[name] = t
	r.states[name] = message.StateUnknown
	logger.Debug("tool registered", "tool", name)
}

// Unregister removes a tool and its state. Absent names are a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.states, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	return t, ok
}

// State returns the processing state for a tool, or unknown if the name is
// not registered.
func (r *Registry) State(name string) message.ProcessingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[name]; ok {
		return s
	}
	return message.StateUnknown
}

// Names returns all registered tool names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Execute validates input against the named tool's schema and runs it.
// State moves to processing before validation, to the result's declared state
// on success, and to error on any failure. Domain errors propagate unchanged;
// other execution failures are wrapped in ExecError.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]string) (Result, error) {
	r.mu.Lock()
	t, ok := r.tools[name]
	if !ok {
		r.mu.Unlock()
		return Result{}, ErrToolNotFound
	}
	r.states[name] = message.StateProcessing
	r.mu.Unlock()

	if err := validateInput(t.InputSchema(), input); err != nil {
		r.setState(name, message.StateError)
		return Result{}, err
	}

	res, err := t.Execute(ctx, input)
	if err != nil {
		r.setState(name, message.StateError)
		logger.Error("tool execution failed", "tool", name, "err", err)
		if isDomainError(err) {
			return Result{}, err
		}
		return Result{}, &ExecError{Tool: name, Err: err}
	}

	if res.State == "" {
		res.State = message.StateSuccess
	}
	// Success is the tool's own verdict; only default it when the tool left
	// both outcome flags untouched.
	if !res.Success && !res.IsError {
		res.Success = true
	}
	r.setState(name, res.State)
	return res, nil
}

// ProcessToolUses parses every tool invocation embedded in text and executes
// each in order. A failing invocation yields an error-flagged result in place
// instead of aborting the remaining ones.
func (r *Registry) ProcessToolUses(ctx context.Context, text string) []Result {
	invocations := ParseInvocations(text)
	if len(invocations) == 0 {
		return nil
	}

	results := make([]Result, 0, len(invocations))
	for _, inv := range invocations {
		res, err := r.Execute(ctx, inv.Tool, inv.Input)
		if err != nil {
			results = append(results, Result{
				Content: err.Error(),
				IsError: true,
				State:   message.StateError,
			})
			continue
		}
		results = append(results, res)
	}
	return results
}

func (r *Registry) setState(name string, s message.ProcessingState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// The tool may have been unregistered mid-execution; don't resurrect it.
	if _, ok := r.tools[name]; ok {
		r.states[name] = s
	}
}

// validateInput checks required keys and enum membership. Keys absent from
// the schema are accepted so newer callers can pass extra fields.
func validateInput(schema map[string]Property, input map[string]string) error {
	for key, prop := range schema {
		if prop.Optional {
			continue
		}
		if _, ok := input[key]; !ok {
			return &MissingInputError{Key: key}
		}
	}
	for key, value := range input {
		prop, ok := schema[key]
		if !ok || len(prop.Enum) == 0 {
			continue
		}
		allowed := false
		for _, e := range prop.Enum {
			if e == value {
				allowed = true
				break
			}
		}
		if !allowed {
			return &EnumError{Key: key, Value: value, Allowed: prop.Enum}
		}
	}
	return nil
}
