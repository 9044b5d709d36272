package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentpipe/agentpipe/message"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		Multiplier:        1.0,
		RetryableStatuses: []int{429, 500, 502, 503, 504},
	}
}

func TestSendMessage_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("auth header = %q, want bearer token", got)
		}
		var req inferenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Content != "hello" {
			t.Errorf("request content = %q, want hello", req.Content)
		}
		json.NewEncoder(w).Encode(inferenceResponse{
			Content:  "hi there",
			AgentID:  "svc",
			Metadata: map[string]string{"model": "test"},
		})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "secret")
	msg, err := p.SendMessage(context.Background(), &Request{Content: "hello", AgentID: "a1"})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if msg.Content != "hi there" {
		t.Errorf("content = %q, want hi there", msg.Content)
	}
	if msg.Role != message.RoleAssistant {
		t.Errorf("role = %s, want assistant", msg.Role)
	}
	if msg.Metadata["model"] != "test" {
		t.Errorf("metadata = %v, want model carried over", msg.Metadata)
	}
}

func TestSendMessage_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(inferenceResponse{Content: "recovered"})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "", WithRetry(fastRetry()))
	msg, err := p.SendMessage(context.Background(), &Request{Content: "hi"})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if msg.Content != "recovered" {
		t.Errorf("content = %q, want recovered", msg.Content)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestSendMessage_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad input"))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "", WithRetry(fastRetry()))
	_, err := p.SendMessage(context.Background(), &Request{Content: "hi"})

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if httpErr.Status != http.StatusBadRequest || httpErr.Body != "bad input" {
		t.Errorf("HTTPError = %+v, want status 400 with body", httpErr)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1 (4xx is terminal)", got)
	}
}

func TestSendMessage_EmptyContentIsNoData(t *testing.T) {
	for name, body := range map[string]string{
		"empty body":    "",
		"empty content": `{"content":""}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			p := NewHTTPProvider(srv.URL, "")
			_, err := p.SendMessage(context.Background(), &Request{Content: "hi"})
			if !errors.Is(err, ErrNoData) {
				t.Errorf("error = %v, want ErrNoData", err)
			}
		})
	}
}

func TestSendMessage_MalformedBodyIsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "")
	_, err := p.SendMessage(context.Background(), &Request{Content: "hi"})

	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Errorf("error = %v, want *DecodeError", err)
	}
}

func TestSendMessage_ServiceErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":"","error":{"message":"model overloaded"}}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "")
	_, err := p.SendMessage(context.Background(), &Request{Content: "hi"})

	var invalidErr *InvalidResponseError
	if !errors.As(err, &invalidErr) {
		t.Fatalf("error = %v, want *InvalidResponseError", err)
	}
	if invalidErr.Reason != "model overloaded" {
		t.Errorf("reason = %q, want service message", invalidErr.Reason)
	}
}

func TestSendMessage_ExtraBodyInjected(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(inferenceResponse{Content: "ok"})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "", WithExtraBody(map[string]any{
		"temperature":      0.2,
		"options.num_ctx":  4096,
	}))
	if _, err := p.SendMessage(context.Background(), &Request{Content: "hi"}); err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}

	if got["temperature"] != 0.2 {
		t.Errorf("temperature = %v, want 0.2", got["temperature"])
	}
	opts, ok := got["options"].(map[string]any)
	if !ok || opts["num_ctx"] != float64(4096) {
		t.Errorf("options = %v, want nested num_ctx from dotted key", got["options"])
	}
}

func TestSendMessage_ConnectionRefused(t *testing.T) {
	// A server that is immediately closed leaves a port nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	cfg := fastRetry()
	cfg.MaxAttempts = 1
	p := NewHTTPProvider(url, "", WithRetry(cfg))
	_, err := p.SendMessage(context.Background(), &Request{Content: "hi"})
	if !errors.Is(err, ErrNoConnection) {
		t.Errorf("error = %v, want ErrNoConnection", err)
	}
}

func TestSendMessage_PerRequestEndpointOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(inferenceResponse{Content: "routed"})
	}))
	defer srv.Close()

	p := NewHTTPProvider("http://unused.invalid", "")
	msg, err := p.SendMessage(context.Background(), &Request{Content: "hi", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if msg.Content != "routed" {
		t.Errorf("content = %q, want routed", msg.Content)
	}
}
