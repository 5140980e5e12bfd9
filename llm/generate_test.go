// ABOUTME: Tests for the high-level Generate and GenerateObject API functions.
// ABOUTME: Validates request building, model alias resolution, retry behavior, and structured output parsing.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
)

// generateTestAdapter extends testAdapter with support for multiple sequential responses
// and errors, so retry behavior can be exercised.
type generateTestAdapter struct {
	name          string
	responses     []*Response
	errors        []error
	callIndex     int
	completeCalls []Request
	closed        bool
	mu            sync.Mutex
}

func newGenerateTestAdapter(name string) *generateTestAdapter {
	return &generateTestAdapter{name: name}
}

func (a *generateTestAdapter) Name() string { return a.name }

func (a *generateTestAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.completeCalls = append(a.completeCalls, req)

	idx := a.callIndex
	a.callIndex++

	if idx < len(a.errors) && a.errors[idx] != nil {
		return nil, a.errors[idx]
	}

	if idx < len(a.responses) {
		return a.responses[idx], nil
	}

	return &Response{
		ID:           fmt.Sprintf("resp-%s-%d", a.name, idx),
		Model:        "test-model",
		Provider:     a.name,
		Text:         "default response",
		FinishReason: FinishReason{Reason: FinishStop},
	}, nil
}

func (a *generateTestAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *generateTestAdapter) getCompleteCalls() []Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	result := make([]Request, len(a.completeCalls))
	copy(result, a.completeCalls)
	return result
}

func makeTextResponse(id, text string, usage Usage) *Response {
	return &Response{
		ID:           id,
		Model:        "test-model",
		Provider:     "test",
		Text:         text,
		FinishReason: FinishReason{Reason: FinishStop},
		Usage:        usage,
	}
}

// TestGenerateSimpleText verifies basic text generation with a simple prompt.
func TestGenerateSimpleText(t *testing.T) {
	adapter := newGenerateTestAdapter("test")
	adapter.responses = []*Response{
		makeTextResponse("resp-1", "Hello, world!", Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}),
	}

	client := NewClient(WithProvider("test", adapter), WithDefaultProvider("test"))

	result, err := Generate(context.Background(), GenerateOptions{
		Client:   client,
		Model:    "test-model",
		Prompt:   "Say hello",
		Provider: "test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Text != "Hello, world!" {
		t.Errorf("expected text 'Hello, world!', got %q", result.Text)
	}
	if result.FinishReason.Reason != FinishStop {
		t.Errorf("expected finish reason 'stop', got %q", result.FinishReason.Reason)
	}
	if result.Usage.InputTokens != 10 {
		t.Errorf("expected 10 input tokens, got %d", result.Usage.InputTokens)
	}
}

// TestGenerateBuildsRequestFromOptions verifies that System and Prompt are carried
// through to the Request sent to the adapter unchanged.
func TestGenerateBuildsRequestFromOptions(t *testing.T) {
	adapter := newGenerateTestAdapter("test")
	adapter.responses = []*Response{
		makeTextResponse("resp-1", "response", Usage{}),
	}

	client := NewClient(WithProvider("test", adapter), WithDefaultProvider("test"))

	_, err := Generate(context.Background(), GenerateOptions{
		Client:   client,
		Model:    "test-model",
		System:   "You are helpful.",
		Prompt:   "test prompt",
		Provider: "test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := adapter.getCompleteCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].System != "You are helpful." {
		t.Errorf("expected system 'You are helpful.', got %q", calls[0].System)
	}
	if calls[0].Prompt != "test prompt" {
		t.Errorf("expected prompt 'test prompt', got %q", calls[0].Prompt)
	}
}

// TestResolveModelByAlias verifies that a short alias resolves to its canonical
// model ID and provider via the default catalog.
func TestResolveModelByAlias(t *testing.T) {
	adapter := newGenerateTestAdapter("anthropic")
	adapter.responses = []*Response{
		makeTextResponse("resp-1", "response", Usage{}),
	}

	client := NewClient(WithProvider("anthropic", adapter), WithDefaultProvider("anthropic"))

	_, err := Generate(context.Background(), GenerateOptions{
		Client: client,
		Model:  "sonnet",
		Prompt: "hello",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := adapter.getCompleteCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Model != "claude-sonnet-4-5" {
		t.Errorf("expected resolved model 'claude-sonnet-4-5', got %q", calls[0].Model)
	}
	if calls[0].Provider != "anthropic" {
		t.Errorf("expected resolved provider 'anthropic', got %q", calls[0].Provider)
	}
}

// TestResolveModelExplicitProviderWins verifies that an explicit Provider option
// overrides the provider implied by the resolved model alias.
func TestResolveModelExplicitProviderWins(t *testing.T) {
	model, provider := resolveModel(GenerateOptions{Model: "sonnet", Provider: "custom-proxy"})
	if model != "claude-sonnet-4-5" {
		t.Errorf("expected model 'claude-sonnet-4-5', got %q", model)
	}
	if provider != "custom-proxy" {
		t.Errorf("expected provider 'custom-proxy', got %q", provider)
	}
}

// TestResolveModelUnknownPassesThrough verifies that a model ID not present in
// the catalog is passed through unchanged.
func TestResolveModelUnknownPassesThrough(t *testing.T) {
	model, provider := resolveModel(GenerateOptions{Model: "custom-finetune-v3", Provider: "openai"})
	if model != "custom-finetune-v3" {
		t.Errorf("expected model passthrough, got %q", model)
	}
	if provider != "openai" {
		t.Errorf("expected provider passthrough, got %q", provider)
	}
}

// TestGenerateRetriesOnRetryableError verifies that Generate retries a retryable
// adapter error before succeeding.
func TestGenerateRetriesOnRetryableError(t *testing.T) {
	adapter := newGenerateTestAdapter("test")
	adapter.errors = []error{
		&RequestTimeoutError{SDKError: SDKError{Message: "timed out"}},
	}
	adapter.responses = []*Response{
		nil,
		makeTextResponse("resp-2", "succeeded after retry", Usage{}),
	}

	client := NewClient(WithProvider("test", adapter), WithDefaultProvider("test"))

	result, err := Generate(context.Background(), GenerateOptions{
		Client:   client,
		Model:    "test-model",
		Prompt:   "hello",
		Provider: "test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "succeeded after retry" {
		t.Errorf("expected 'succeeded after retry', got %q", result.Text)
	}
	if len(adapter.getCompleteCalls()) != 2 {
		t.Errorf("expected 2 calls (1 failure + 1 retry), got %d", len(adapter.getCompleteCalls()))
	}
}

// TestGenerateNonRetryableErrorFailsImmediately verifies that a non-retryable
// error is not retried.
func TestGenerateNonRetryableErrorFailsImmediately(t *testing.T) {
	adapter := newGenerateTestAdapter("test")
	adapter.errors = []error{
		&InvalidRequestError{ProviderError: ProviderError{SDKError: SDKError{Message: "bad request"}}},
	}

	client := NewClient(WithProvider("test", adapter), WithDefaultProvider("test"))

	_, err := Generate(context.Background(), GenerateOptions{
		Client:   client,
		Model:    "test-model",
		Prompt:   "hello",
		Provider: "test",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(adapter.getCompleteCalls()) != 1 {
		t.Errorf("expected exactly 1 call (no retry), got %d", len(adapter.getCompleteCalls()))
	}
}

// TestGenerateDefaultClient verifies that Generate uses GetDefaultClient when no Client is specified.
func TestGenerateDefaultClient(t *testing.T) {
	adapter := newGenerateTestAdapter("test")
	adapter.responses = []*Response{
		makeTextResponse("resp-1", "from default", Usage{}),
	}

	client := NewClient(WithProvider("test", adapter), WithDefaultProvider("test"))
	SetDefaultClient(client)
	defer SetDefaultClient(nil)

	result, err := Generate(context.Background(), GenerateOptions{
		Model:    "test-model",
		Prompt:   "hello",
		Provider: "test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Text != "from default" {
		t.Errorf("expected 'from default', got %q", result.Text)
	}
}

// TestGenerateNoClient verifies that Generate returns an error when no client is available.
func TestGenerateNoClient(t *testing.T) {
	SetDefaultClient(nil)
	defer SetDefaultClient(nil)

	_, err := Generate(context.Background(), GenerateOptions{
		Model:  "test-model",
		Prompt: "hello",
	})
	if err == nil {
		t.Fatal("expected error when no client is available")
	}

	var configErr *ConfigurationError
	if !errorAs(err, &configErr) {
		t.Errorf("expected ConfigurationError, got %T: %v", err, err)
	}
}

func errorAs[T any](err error, target **T) bool {
	e, ok := any(err).(*T)
	if !ok {
		return false
	}
	*target = e
	return true
}

// TestGenerateObject verifies structured output with JSON parsing.
func TestGenerateObject(t *testing.T) {
	adapter := newGenerateTestAdapter("test")

	adapter.responses = []*Response{
		makeTextResponse("resp-1", `{"name":"Alice","age":30}`, Usage{InputTokens: 10, OutputTokens: 15, TotalTokens: 25}),
	}

	client := NewClient(WithProvider("test", adapter), WithDefaultProvider("test"))

	schema := json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"},"age":{"type":"number"}},"required":["name","age"]}`)

	result, err := GenerateObject(context.Background(), GenerateOptions{
		Client:   client,
		Model:    "test-model",
		Prompt:   "Generate a person",
		Provider: "test",
	}, schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output, ok := result.Output.(map[string]any)
	if !ok {
		t.Fatalf("expected Output to be map[string]any, got %T", result.Output)
	}
	if output["name"] != "Alice" {
		t.Errorf("expected name 'Alice', got %v", output["name"])
	}
	if output["age"] != float64(30) {
		t.Errorf("expected age 30, got %v", output["age"])
	}

	calls := adapter.getCompleteCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].ResponseFormat == nil {
		t.Fatal("expected ResponseFormat to be set")
	}
	if calls[0].ResponseFormat.Type != "json_schema" {
		t.Errorf("expected response format type 'json_schema', got %q", calls[0].ResponseFormat.Type)
	}
	if !calls[0].ResponseFormat.Strict {
		t.Error("expected ResponseFormat.Strict to be true")
	}
}

// TestGenerateObjectInvalidJSON verifies that NoObjectGeneratedError is returned on bad JSON.
func TestGenerateObjectInvalidJSON(t *testing.T) {
	adapter := newGenerateTestAdapter("test")

	adapter.responses = []*Response{
		makeTextResponse("resp-1", "this is not json at all", Usage{}),
	}

	client := NewClient(WithProvider("test", adapter), WithDefaultProvider("test"))

	schema := json.RawMessage(`{"type":"object"}`)

	_, err := GenerateObject(context.Background(), GenerateOptions{
		Client:   client,
		Model:    "test-model",
		Prompt:   "Generate something",
		Provider: "test",
	}, schema)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}

	var noObjErr *NoObjectGeneratedError
	if !errorAs(err, &noObjErr) {
		t.Errorf("expected NoObjectGeneratedError, got %T: %v", err, err)
	}
}

// TestGenerateOptionsPassthrough verifies that all GenerateOptions fields are properly
// passed through to the underlying Request.
func TestGenerateOptionsPassthrough(t *testing.T) {
	adapter := newGenerateTestAdapter("test")
	adapter.responses = []*Response{
		makeTextResponse("resp-1", "ok", Usage{}),
	}

	client := NewClient(WithProvider("test", adapter), WithDefaultProvider("test"))

	temp := 0.7
	topP := 0.9
	maxTokens := 100

	_, err := Generate(context.Background(), GenerateOptions{
		Client:          client,
		Model:           "test-model",
		Prompt:          "test",
		Provider:        "test",
		Temperature:     &temp,
		TopP:            &topP,
		MaxTokens:       &maxTokens,
		StopSequences:   []string{"STOP"},
		ProviderOptions: map[string]any{"custom": true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := adapter.getCompleteCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	req := calls[0]

	if req.Model != "test-model" {
		t.Errorf("expected model 'test-model', got %q", req.Model)
	}
	if req.Temperature == nil || *req.Temperature != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", req.Temperature)
	}
	if req.TopP == nil || *req.TopP != 0.9 {
		t.Errorf("expected top_p 0.9, got %v", req.TopP)
	}
	if req.MaxTokens == nil || *req.MaxTokens != 100 {
		t.Errorf("expected max_tokens 100, got %v", req.MaxTokens)
	}
	if len(req.StopSequences) != 1 || req.StopSequences[0] != "STOP" {
		t.Errorf("expected stop sequences [STOP], got %v", req.StopSequences)
	}
	if req.ProviderOptions["custom"] != true {
		t.Errorf("expected provider option custom=true, got %v", req.ProviderOptions)
	}
}
