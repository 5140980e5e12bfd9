// ABOUTME: Tests for the Anthropic provider adapter.
// ABOUTME: Validates request building, schema-instruction injection, response parsing, and error mapping.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewAnthropicAdapterSetsAuthHeaders(t *testing.T) {
	adapter := NewAnthropicAdapter("test-key")

	if adapter.DefaultHeaders["x-api-key"] != "test-key" {
		t.Errorf("x-api-key = %q, want test-key", adapter.DefaultHeaders["x-api-key"])
	}
	if adapter.DefaultHeaders["anthropic-version"] != anthropicDefaultVersion {
		t.Errorf("anthropic-version = %q, want %q", adapter.DefaultHeaders["anthropic-version"], anthropicDefaultVersion)
	}
	if adapter.APIKey != "" {
		t.Error("expected BaseAdapter.APIKey to remain empty; anthropic auth uses x-api-key, not Bearer")
	}
}

func TestNewAnthropicAdapterWithVersionOption(t *testing.T) {
	adapter := NewAnthropicAdapter("test-key", WithAnthropicVersion("2024-01-01"))
	if adapter.DefaultHeaders["anthropic-version"] != "2024-01-01" {
		t.Errorf("anthropic-version = %q, want 2024-01-01", adapter.DefaultHeaders["anthropic-version"])
	}
}

func TestAnthropicName(t *testing.T) {
	adapter := NewAnthropicAdapter("key")
	if adapter.Name() != "anthropic" {
		t.Errorf("Name() = %q, want anthropic", adapter.Name())
	}
}

func TestAnthropicBuildRequestBodyDefaults(t *testing.T) {
	adapter := NewAnthropicAdapter("key")
	body, headers := adapter.buildRequestBody(Request{Model: "claude-opus-4-6", Prompt: "hi"})

	if body["model"] != "claude-opus-4-6" {
		t.Errorf("model = %v", body["model"])
	}
	if body["max_tokens"] != anthropicDefaultMaxToks {
		t.Errorf("max_tokens = %v, want default %d", body["max_tokens"], anthropicDefaultMaxToks)
	}
	if _, ok := body["system"]; ok {
		t.Error("expected no system key when System is empty")
	}
	if len(headers) != 0 {
		t.Errorf("expected no extra headers, got %v", headers)
	}
}

func TestAnthropicBuildRequestBodySamplingParams(t *testing.T) {
	adapter := NewAnthropicAdapter("key")
	temp := 0.3
	topP := 0.8
	maxTokens := 512
	body, _ := adapter.buildRequestBody(Request{
		Model:         "claude-opus-4-6",
		Prompt:        "hi",
		System:        "be terse",
		Temperature:   &temp,
		TopP:          &topP,
		MaxTokens:     &maxTokens,
		StopSequences: []string{"END"},
	})

	if body["system"] != "be terse" {
		t.Errorf("system = %v", body["system"])
	}
	if body["temperature"] != 0.3 {
		t.Errorf("temperature = %v", body["temperature"])
	}
	if body["top_p"] != 0.8 {
		t.Errorf("top_p = %v", body["top_p"])
	}
	if body["max_tokens"] != 512 {
		t.Errorf("max_tokens = %v", body["max_tokens"])
	}
	stops, ok := body["stop_sequences"].([]string)
	if !ok || len(stops) != 1 || stops[0] != "END" {
		t.Errorf("stop_sequences = %v", body["stop_sequences"])
	}
}

func TestAnthropicBuildRequestBodyAppendsSchemaInstruction(t *testing.T) {
	adapter := NewAnthropicAdapter("key")
	schema := json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"}}}`)
	body, _ := adapter.buildRequestBody(Request{
		Model:  "claude-opus-4-6",
		Prompt: "describe a person",
		System: "be helpful",
		ResponseFormat: &ResponseFormat{
			Type:       "json_schema",
			JSONSchema: schema,
		},
	})

	system, ok := body["system"].(string)
	if !ok {
		t.Fatalf("expected system to be a string, got %T", body["system"])
	}
	if !strings.HasPrefix(system, "be helpful\n\n") {
		t.Errorf("expected original system prompt to be preserved, got %q", system)
	}
	if !strings.Contains(system, "Respond with a single JSON object matching this schema") {
		t.Errorf("expected schema instruction to be appended, got %q", system)
	}
	if !strings.Contains(system, `"name"`) {
		t.Errorf("expected schema contents embedded in system prompt, got %q", system)
	}
}

func TestAppendSchemaInstructionEmptySystem(t *testing.T) {
	result := appendSchemaInstruction("", json.RawMessage(`{"type":"object"}`))
	if strings.HasPrefix(result, "\n\n") {
		t.Errorf("expected no leading separator when system is empty, got %q", result)
	}
	if !strings.Contains(result, `{"type":"object"}`) {
		t.Errorf("expected schema text embedded, got %q", result)
	}
}

func TestAnthropicBuildRequestBodyProviderOptionsBeta(t *testing.T) {
	adapter := NewAnthropicAdapter("key")
	body, headers := adapter.buildRequestBody(Request{
		Model:  "claude-opus-4-6",
		Prompt: "hi",
		ProviderOptions: map[string]any{
			"anthropic": map[string]any{
				"beta":          "extended-thinking-2026",
				"thinking_mode": "extended",
			},
		},
	})

	if headers["anthropic-beta"] != "extended-thinking-2026" {
		t.Errorf("anthropic-beta header = %q, want extended-thinking-2026", headers["anthropic-beta"])
	}
	if body["thinking_mode"] != "extended" {
		t.Errorf("expected thinking_mode merged into body, got %v", body["thinking_mode"])
	}
	if _, ok := body["beta"]; ok {
		t.Error("beta should be consumed into a header, not left in the body")
	}
}

func TestAnthropicComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing x-api-key header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"model": "claude-opus-4-6",
			"content": [{"type": "text", "text": "Hello there"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	adapter := NewAnthropicAdapter("test-key", WithAnthropicBaseURL(server.URL))
	resp, err := adapter.Complete(context.Background(), Request{Model: "claude-opus-4-6", Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "Hello there" {
		t.Errorf("Text = %q, want 'Hello there'", resp.Text)
	}
	if resp.FinishReason.Reason != FinishStop {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason.Reason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
}

func TestAnthropicCompleteErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	adapter := NewAnthropicAdapter("test-key", WithAnthropicBaseURL(server.URL))
	_, err := adapter.Complete(context.Background(), Request{Model: "claude-opus-4-6", Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}

	var rlErr *RateLimitError
	if !errorAs(err, &rlErr) {
		t.Errorf("expected RateLimitError, got %T: %v", err, err)
	}
}

func TestAnthropicParseResponseConcatenatesTextBlocksOnly(t *testing.T) {
	adapter := NewAnthropicAdapter("key")
	body := []byte(`{
		"id": "msg_1",
		"model": "claude-opus-4-6",
		"content": [
			{"type": "text", "text": "first "},
			{"type": "text", "text": "second"}
		],
		"stop_reason": "max_tokens",
		"usage": {"input_tokens": 3, "output_tokens": 7, "cache_read_input_tokens": 2}
	}`)
	resp, err := adapter.parseResponse(body, http.Header{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "first second" {
		t.Errorf("Text = %q, want 'first second'", resp.Text)
	}
	if resp.FinishReason.Reason != FinishLength {
		t.Errorf("FinishReason = %q, want length", resp.FinishReason.Reason)
	}
	if resp.Usage.CacheReadTokens == nil || *resp.Usage.CacheReadTokens != 2 {
		t.Errorf("CacheReadTokens = %v, want 2", resp.Usage.CacheReadTokens)
	}
}

func TestAnthropicMapStopReason(t *testing.T) {
	adapter := NewAnthropicAdapter("key")
	tests := []struct {
		raw  string
		want string
	}{
		{"end_turn", FinishStop},
		{"stop_sequence", FinishStop},
		{"max_tokens", FinishLength},
		{"refusal", FinishOther},
	}
	for _, tt := range tests {
		got := adapter.mapStopReason(tt.raw)
		if got.Reason != tt.want {
			t.Errorf("mapStopReason(%q) = %q, want %q", tt.raw, got.Reason, tt.want)
		}
		if got.Raw != tt.raw {
			t.Errorf("mapStopReason(%q).Raw = %q, want %q", tt.raw, got.Raw, tt.raw)
		}
	}
}
