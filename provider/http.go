package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/tidwall/sjson"

	"github.com/agentpipe/agentpipe/logger"
	"github.com/agentpipe/agentpipe/message"
)

// HTTPProvider talks to an inference service over plain HTTP JSON.
type HTTPProvider struct {
	endpoint   string
	apiKey     string
	retry      RetryConfig
	extraBody  map[string]any
	httpClient *http.Client
}

// HTTPOption customizes an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithRetry overrides the default retry policy.
func WithRetry(cfg RetryConfig) HTTPOption {
	return func(p *HTTPProvider) { p.retry = cfg }
}

// WithExtraBody injects endpoint-specific top-level fields into every request
// body (e.g. vendor knobs the typed request does not model).
func WithExtraBody(fields map[string]any) HTTPOption {
	return func(p *HTTPProvider) { p.extraBody = fields }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) { p.httpClient = c }
}

// NewHTTPProvider creates an HTTP inference client for the given endpoint.
func NewHTTPProvider(endpoint, apiKey string, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		endpoint:   endpoint,
		apiKey:     apiKey,
		retry:      DefaultRetryConfig(),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// inferenceRequest is the outbound wire record.
type inferenceRequest struct {
	Content  string    `json:"content"`
	ThreadID string    `json:"threadId,omitempty"`
	AgentID  string    `json:"agentId,omitempty"`
	Tools    []ToolDef `json:"tools,omitempty"`
}

// inferenceResponse is the inbound wire record.
type inferenceResponse struct {
	ID       string            `json:"id,omitempty"`
	Content  string            `json:"content"`
	AgentID  string            `json:"agentId,omitempty"`
	Role     string            `json:"role,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// SendMessage sends the request, retrying transient failures per the
// configured policy, and returns the reply as an assistant message.
func (p *HTTPProvider) SendMessage(ctx context.Context, req *Request) (*message.Message, error) {
	body, err := p.encode(req)
	if err != nil {
		return nil, err
	}

	endpoint := p.endpoint
	if req.Endpoint != "" {
		endpoint = req.Endpoint
	}

	delay := p.retry.InitialDelay
	attempts := p.retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		msg, err := p.send(ctx, endpoint, body)
		if err == nil {
			return msg, nil
		}
		lastErr = err

		if !retryable(err, p.retry) || attempt == attempts {
			break
		}
		logger.Warn("inference request failed, retrying",
			"attempt", attempt, "delay", delay, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * p.retry.Multiplier)
	}
	return nil, lastErr
}

func (p *HTTPProvider) encode(req *Request) ([]byte, error) {
	body, err := json.Marshal(inferenceRequest{
		Content:  req.Content,
		ThreadID: req.ThreadID,
		AgentID:  req.AgentID,
		Tools:    req.Tools,
	})
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	for key, value := range p.extraBody {
		body, err = sjson.SetBytes(body, key, value)
		if err != nil {
			return nil, &EncodeError{Err: fmt.Errorf("set %s: %w", key, err)}
		}
	}
	return body, nil
}

func (p *HTTPProvider) send(ctx context.Context, endpoint string, body []byte) (*message.Message, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	start := time.Now()
	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifySendError(err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &HTTPError{Status: httpResp.StatusCode, Body: string(respBody)}
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, ErrNoData
	}

	var resp inferenceResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if resp.Error != nil {
		return nil, &InvalidResponseError{Reason: resp.Error.Message}
	}
	if resp.Content == "" {
		return nil, ErrNoData
	}

	logger.Info("inference response",
		"endpoint", endpoint,
		"outputChars", len(resp.Content),
		"latencyMs", time.Since(start).Milliseconds(),
	)

	msg := message.New(resp.Content, resp.AgentID, message.RoleAssistant)
	if len(resp.Metadata) > 0 {
		msg = msg.WithMetadata(resp.Metadata)
	}
	return msg, nil
}

// classifySendError separates connectivity loss from other transport failures.
func classifySendError(err error) error {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) {
		return fmt.Errorf("%w: %v", ErrNoConnection, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrNoConnection, err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", ErrNoConnection, err)
	}
	return &TransportError{Err: err}
}
