package provider

import (
	"errors"
	"fmt"
)

// Sentinel failures observable from SendMessage.
var (
	// ErrNoConnection indicates the service could not be reached at all.
	ErrNoConnection = errors.New("no connectivity")
	// ErrNoData indicates a well-formed response carrying no usable content.
	ErrNoData = errors.New("no data in response")
)

// HTTPError is a non-success status from the inference service.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error %d: %s", e.Status, e.Body)
}

// TransportError wraps a network-level failure that is not a connectivity loss.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError wraps a failure to decode the service response.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError wraps a failure to encode the outbound request.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode error: %v", e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// InvalidResponseError indicates a response the service produced but that
// does not follow the expected shape.
type InvalidResponseError struct {
	Reason string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid response: %s", e.Reason)
}

// retryable reports whether a failure is worth another attempt under cfg.
func retryable(err error, cfg RetryConfig) bool {
	if errors.Is(err, ErrNoConnection) {
		return true
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return cfg.retryableStatus(he.Status)
	}
	return false
}
