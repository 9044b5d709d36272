package tools

import (
	"errors"
	"fmt"
	"strings"
)

// ErrToolNotFound is returned by Execute when no tool is registered under the
// requested name. The registry's state map is untouched in that case.
var ErrToolNotFound = errors.New("tool not found")

// MissingInputError reports a required schema key absent from the input.
type MissingInputError struct {
	Key string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing required input %q", e.Key)
}

// EnumError reports a value outside a property's allowed enum set.
type EnumError struct {
	Key     string
	Value   string
	Allowed []string
}

func (e *EnumError) Error() string {
	return fmt.Sprintf("invalid value %q for input %q (allowed: %s)",
		e.Value, e.Key, strings.Join(e.Allowed, ", "))
}

// ExecError wraps a failure raised by a tool's own Execute. Domain errors
// (the types in this file) pass through the registry unchanged; anything else
// is wrapped so callers can tell tool logic failures from validation failures.
type ExecError struct {
	Tool string
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("tool %q execution failed: %v", e.Tool, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// isDomainError reports whether err already belongs to the tool error
// taxonomy and must be propagated as-is.
func isDomainError(err error) bool {
	var miss *MissingInputError
	var enum *EnumError
	var exec *ExecError
	return errors.Is(err, ErrToolNotFound) ||
		errors.As(err, &miss) ||
		errors.As(err, &enum) ||
		errors.As(err, &exec)
}
