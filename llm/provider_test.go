// ABOUTME: Tests for the ProviderAdapter interface and base adapter utilities.
// ABOUTME: Validates HTTP request building and rate limit header parsing.

package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewBaseAdapter(t *testing.T) {
	timeout := AdapterTimeout{
		Connect:    5 * time.Second,
		Request:    60 * time.Second,
		StreamRead: 15 * time.Second,
	}
	ba := NewBaseAdapter("sk-test-key", "https://api.example.com", timeout)

	if ba.APIKey != "sk-test-key" {
		t.Errorf("APIKey = %q, want %q", ba.APIKey, "sk-test-key")
	}
	if ba.BaseURL != "https://api.example.com" {
		t.Errorf("BaseURL = %q, want %q", ba.BaseURL, "https://api.example.com")
	}
	if ba.Timeout != timeout {
		t.Errorf("Timeout = %v, want %v", ba.Timeout, timeout)
	}
	if ba.HTTPClient == nil {
		t.Error("HTTPClient should not be nil")
	}
	if ba.DefaultHeaders == nil {
		t.Error("DefaultHeaders should not be nil")
	}
}

func TestNewBaseAdapterDefaultTimeout(t *testing.T) {
	ba := NewBaseAdapter("key", "https://api.example.com", AdapterTimeout{})

	if ba.HTTPClient == nil {
		t.Error("HTTPClient should not be nil")
	}
}

func TestBaseAdapterDoRequest(t *testing.T) {
	type reqBody struct {
		Model   string `json:"model"`
		Message string `json:"message"`
	}

	var receivedMethod string
	var receivedPath string
	var receivedBody []byte
	var receivedHeaders http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedPath = r.URL.Path
		receivedHeaders = r.Header
		var err error
		receivedBody, err = io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("reading body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	ba := NewBaseAdapter("sk-test-key-123", server.URL, DefaultAdapterTimeout())
	ba.DefaultHeaders["X-Custom-Default"] = "default-value"

	body := reqBody{Model: "gpt-4", Message: "hello"}
	perRequestHeaders := map[string]string{
		"X-Request-ID": "req-42",
	}

	resp, err := ba.DoRequest(context.Background(), http.MethodPost, "/v1/chat", body, perRequestHeaders)
	if err != nil {
		t.Fatalf("DoRequest error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if receivedMethod != http.MethodPost {
		t.Errorf("method = %q, want %q", receivedMethod, http.MethodPost)
	}
	if receivedPath != "/v1/chat" {
		t.Errorf("path = %q, want %q", receivedPath, "/v1/chat")
	}

	// Check JSON body was encoded correctly
	var decoded reqBody
	if err := json.Unmarshal(receivedBody, &decoded); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if decoded.Model != "gpt-4" || decoded.Message != "hello" {
		t.Errorf("body = %+v, want model=gpt-4, message=hello", decoded)
	}

	// Check Content-Type header
	if ct := receivedHeaders.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	// Check Authorization header
	if auth := receivedHeaders.Get("Authorization"); auth != "Bearer sk-test-key-123" {
		t.Errorf("Authorization = %q, want %q", auth, "Bearer sk-test-key-123")
	}

	// Check default headers are set
	if dh := receivedHeaders.Get("X-Custom-Default"); dh != "default-value" {
		t.Errorf("X-Custom-Default = %q, want %q", dh, "default-value")
	}

	// Check per-request headers are set
	if rh := receivedHeaders.Get("X-Request-ID"); rh != "req-42" {
		t.Errorf("X-Request-ID = %q, want %q", rh, "req-42")
	}
}

func TestBaseAdapterDoRequestPerRequestHeadersOverrideDefaults(t *testing.T) {
	var receivedHeaders http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedHeaders = r.Header
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ba := NewBaseAdapter("key", server.URL, DefaultAdapterTimeout())
	ba.DefaultHeaders["X-Version"] = "v1"

	resp, err := ba.DoRequest(context.Background(), http.MethodGet, "/test", nil, map[string]string{
		"X-Version": "v2-override",
	})
	if err != nil {
		t.Fatalf("DoRequest error: %v", err)
	}
	defer resp.Body.Close()

	if got := receivedHeaders.Get("X-Version"); got != "v2-override" {
		t.Errorf("X-Version = %q, want %q (per-request should override default)", got, "v2-override")
	}
}

func TestBaseAdapterDoRequestNilBody(t *testing.T) {
	var receivedBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		receivedBody, err = io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("reading body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ba := NewBaseAdapter("key", server.URL, DefaultAdapterTimeout())
	resp, err := ba.DoRequest(context.Background(), http.MethodGet, "/test", nil, nil)
	if err != nil {
		t.Fatalf("DoRequest error: %v", err)
	}
	defer resp.Body.Close()

	if len(receivedBody) != 0 {
		t.Errorf("expected empty body for nil input, got %q", string(receivedBody))
	}
}

func TestBaseAdapterDoRequestContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ba := NewBaseAdapter("key", server.URL, DefaultAdapterTimeout())

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := ba.DoRequest(ctx, http.MethodGet, "/slow", nil, nil)
	if err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestParseRateLimitHeadersFull(t *testing.T) {
	ba := NewBaseAdapter("key", "https://api.example.com", DefaultAdapterTimeout())

	headers := http.Header{}
	headers.Set("x-ratelimit-remaining-requests", "95")
	headers.Set("x-ratelimit-limit-requests", "100")
	headers.Set("x-ratelimit-remaining-tokens", "45000")
	headers.Set("x-ratelimit-limit-tokens", "50000")
	headers.Set("retry-after", "30")

	info := ba.ParseRateLimitHeaders(headers)

	if info == nil {
		t.Fatal("expected non-nil RateLimitInfo")
	}
	if info.RequestsRemaining == nil || *info.RequestsRemaining != 95 {
		t.Errorf("RequestsRemaining = %v, want 95", info.RequestsRemaining)
	}
	if info.RequestsLimit == nil || *info.RequestsLimit != 100 {
		t.Errorf("RequestsLimit = %v, want 100", info.RequestsLimit)
	}
	if info.TokensRemaining == nil || *info.TokensRemaining != 45000 {
		t.Errorf("TokensRemaining = %v, want 45000", info.TokensRemaining)
	}
	if info.TokensLimit == nil || *info.TokensLimit != 50000 {
		t.Errorf("TokensLimit = %v, want 50000", info.TokensLimit)
	}
	if info.ResetAt == nil {
		t.Fatal("expected non-nil ResetAt")
	}
}

func TestParseRateLimitHeadersPartial(t *testing.T) {
	ba := NewBaseAdapter("key", "https://api.example.com", DefaultAdapterTimeout())

	headers := http.Header{}
	headers.Set("x-ratelimit-remaining-requests", "10")

	info := ba.ParseRateLimitHeaders(headers)

	if info == nil {
		t.Fatal("expected non-nil RateLimitInfo")
	}
	if info.RequestsRemaining == nil || *info.RequestsRemaining != 10 {
		t.Errorf("RequestsRemaining = %v, want 10", info.RequestsRemaining)
	}
	if info.RequestsLimit != nil {
		t.Errorf("RequestsLimit should be nil, got %v", info.RequestsLimit)
	}
	if info.TokensRemaining != nil {
		t.Errorf("TokensRemaining should be nil, got %v", info.TokensRemaining)
	}
	if info.TokensLimit != nil {
		t.Errorf("TokensLimit should be nil, got %v", info.TokensLimit)
	}
	if info.ResetAt != nil {
		t.Errorf("ResetAt should be nil, got %v", info.ResetAt)
	}
}

func TestParseRateLimitHeadersEmpty(t *testing.T) {
	ba := NewBaseAdapter("key", "https://api.example.com", DefaultAdapterTimeout())

	info := ba.ParseRateLimitHeaders(http.Header{})

	if info != nil {
		t.Errorf("expected nil for empty headers, got %+v", info)
	}
}

func TestParseRateLimitHeadersInvalidValues(t *testing.T) {
	ba := NewBaseAdapter("key", "https://api.example.com", DefaultAdapterTimeout())

	headers := http.Header{}
	headers.Set("x-ratelimit-remaining-requests", "not-a-number")
	headers.Set("x-ratelimit-limit-tokens", "50000")

	info := ba.ParseRateLimitHeaders(headers)

	if info == nil {
		t.Fatal("expected non-nil RateLimitInfo (valid token header present)")
	}
	// Invalid header should be ignored
	if info.RequestsRemaining != nil {
		t.Errorf("RequestsRemaining should be nil for invalid value, got %v", *info.RequestsRemaining)
	}
	// Valid header should still be parsed
	if info.TokensLimit == nil || *info.TokensLimit != 50000 {
		t.Errorf("TokensLimit = %v, want 50000", info.TokensLimit)
	}
}

func TestParseRateLimitHeadersRetryAfterSeconds(t *testing.T) {
	ba := NewBaseAdapter("key", "https://api.example.com", DefaultAdapterTimeout())

	headers := http.Header{}
	headers.Set("retry-after", "60")

	info := ba.ParseRateLimitHeaders(headers)
	if info == nil {
		t.Fatal("expected non-nil RateLimitInfo")
	}
	if info.ResetAt == nil {
		t.Fatal("expected non-nil ResetAt")
	}

	// ResetAt should be approximately now + 60 seconds
	expectedMin := time.Now().Add(59 * time.Second)
	expectedMax := time.Now().Add(61 * time.Second)
	if info.ResetAt.Before(expectedMin) || info.ResetAt.After(expectedMax) {
		t.Errorf("ResetAt = %v, expected between %v and %v", info.ResetAt, expectedMin, expectedMax)
	}
}

func TestBaseAdapterDoRequestResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"success","count":42}`))
	}))
	defer server.Close()

	ba := NewBaseAdapter("key", server.URL, DefaultAdapterTimeout())
	resp, err := ba.DoRequest(context.Background(), http.MethodGet, "/test", nil, nil)
	if err != nil {
		t.Fatalf("DoRequest error: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if result["status"] != "success" {
		t.Errorf("status = %v, want %q", result["status"], "success")
	}
}
