// ABOUTME: Tests for the Gemini provider adapter.
// ABOUTME: Validates request building, structured-output schema wiring, response parsing, and error handling.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewGeminiAdapterLeavesAPIKeyOffBaseAdapter(t *testing.T) {
	adapter := NewGeminiAdapter("test-key")
	if adapter.apiKey != "test-key" {
		t.Errorf("apiKey = %q, want test-key", adapter.apiKey)
	}
	if adapter.base.APIKey != "" {
		t.Error("expected BaseAdapter.APIKey to remain empty; gemini auth uses a query parameter")
	}
}

func TestGeminiName(t *testing.T) {
	adapter := NewGeminiAdapter("key")
	if adapter.Name() != "gemini" {
		t.Errorf("Name() = %q, want gemini", adapter.Name())
	}
}

func TestGeminiBuildRequestBodyBasic(t *testing.T) {
	adapter := NewGeminiAdapter("key")
	body := adapter.buildRequestBody(Request{Prompt: "hi", System: "be terse"})

	sysInstr, ok := body["systemInstruction"].(map[string]any)
	if !ok {
		t.Fatalf("expected systemInstruction, got %v", body["systemInstruction"])
	}
	parts, ok := sysInstr["parts"].([]map[string]any)
	if !ok || len(parts) != 1 || parts[0]["text"] != "be terse" {
		t.Errorf("systemInstruction parts = %v", sysInstr["parts"])
	}

	contents, ok := body["contents"].([]map[string]any)
	if !ok || len(contents) != 1 {
		t.Fatalf("expected 1 content item, got %v", body["contents"])
	}
	if contents[0]["role"] != "user" {
		t.Errorf("content role = %v, want user", contents[0]["role"])
	}
}

func TestGeminiBuildRequestBodyNoSystemInstruction(t *testing.T) {
	adapter := NewGeminiAdapter("key")
	body := adapter.buildRequestBody(Request{Prompt: "hi"})
	if _, ok := body["systemInstruction"]; ok {
		t.Error("expected no systemInstruction when System is empty")
	}
}

func TestGeminiBuildRequestBodySamplingParams(t *testing.T) {
	adapter := NewGeminiAdapter("key")
	temp := 0.4
	topP := 0.85
	maxTokens := 200
	body := adapter.buildRequestBody(Request{
		Prompt:        "hi",
		Temperature:   &temp,
		TopP:          &topP,
		MaxTokens:     &maxTokens,
		StopSequences: []string{"END"},
	})

	genConfig, ok := body["generationConfig"].(map[string]any)
	if !ok {
		t.Fatalf("expected generationConfig, got %v", body["generationConfig"])
	}
	if genConfig["temperature"] != 0.4 {
		t.Errorf("temperature = %v", genConfig["temperature"])
	}
	if genConfig["topP"] != 0.85 {
		t.Errorf("topP = %v", genConfig["topP"])
	}
	if genConfig["maxOutputTokens"] != 200 {
		t.Errorf("maxOutputTokens = %v", genConfig["maxOutputTokens"])
	}
	stops, ok := genConfig["stopSequences"].([]string)
	if !ok || len(stops) != 1 || stops[0] != "END" {
		t.Errorf("stopSequences = %v", genConfig["stopSequences"])
	}
}

func TestGeminiBuildRequestBodyResponseSchema(t *testing.T) {
	adapter := NewGeminiAdapter("key")
	schema := json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"}}}`)
	body := adapter.buildRequestBody(Request{
		Prompt: "describe a person",
		ResponseFormat: &ResponseFormat{
			Type:       "json_schema",
			JSONSchema: schema,
		},
	})

	genConfig, ok := body["generationConfig"].(map[string]any)
	if !ok {
		t.Fatalf("expected generationConfig, got %v", body["generationConfig"])
	}
	if genConfig["responseMimeType"] != "application/json" {
		t.Errorf("responseMimeType = %v, want application/json", genConfig["responseMimeType"])
	}
	schemaMap, ok := genConfig["responseSchema"].(map[string]any)
	if !ok {
		t.Fatalf("expected responseSchema to decode as a map, got %T", genConfig["responseSchema"])
	}
	if schemaMap["type"] != "object" {
		t.Errorf("responseSchema type = %v, want object", schemaMap["type"])
	}
}

func TestGeminiBuildRequestBodyProviderOptions(t *testing.T) {
	adapter := NewGeminiAdapter("key")
	body := adapter.buildRequestBody(Request{
		Prompt: "hi",
		ProviderOptions: map[string]any{
			"gemini": map[string]any{"safetySettings": "custom"},
		},
	})
	if body["safetySettings"] != "custom" {
		t.Errorf("expected safetySettings merged into body, got %v", body["safetySettings"])
	}
}

func TestGeminiComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-3-pro-preview:generateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("expected key query param, got %q", r.URL.Query().Get("key"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [{
				"content": {"parts": [{"text": "Hello there"}], "role": "model"},
				"finishReason": "STOP"
			}],
			"usageMetadata": {"promptTokenCount": 4, "candidatesTokenCount": 3, "totalTokenCount": 7}
		}`))
	}))
	defer server.Close()

	adapter := NewGeminiAdapter("test-key", WithGeminiBaseURL(server.URL))
	resp, err := adapter.Complete(context.Background(), Request{Model: "gemini-3-pro-preview", Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "Hello there" {
		t.Errorf("Text = %q, want 'Hello there'", resp.Text)
	}
	if resp.FinishReason.Reason != FinishStop {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason.Reason)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Errorf("TotalTokens = %d, want 7", resp.Usage.TotalTokens)
	}
}

func TestGeminiCompleteErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"access denied","status":"PERMISSION_DENIED"}}`))
	}))
	defer server.Close()

	adapter := NewGeminiAdapter("test-key", WithGeminiBaseURL(server.URL))
	_, err := adapter.Complete(context.Background(), Request{Model: "gemini-3-pro-preview", Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}

	var accessErr *AccessDeniedError
	if !errorAs(err, &accessErr) {
		t.Errorf("expected AccessDeniedError, got %T: %v", err, err)
	}
}

func TestGeminiMapFinishReason(t *testing.T) {
	adapter := NewGeminiAdapter("key")
	tests := []struct {
		raw  string
		want string
	}{
		{"STOP", FinishStop},
		{"MAX_TOKENS", FinishLength},
		{"SAFETY", FinishContentFilter},
		{"OTHER", FinishOther},
	}
	for _, tt := range tests {
		got := adapter.mapFinishReason(tt.raw)
		if got.Reason != tt.want {
			t.Errorf("mapFinishReason(%q) = %q, want %q", tt.raw, got.Reason, tt.want)
		}
	}
}

func TestGeminiParseResponseConcatenatesParts(t *testing.T) {
	adapter := NewGeminiAdapter("key")
	body := []byte(`{
		"candidates": [{
			"content": {"parts": [{"text": "first "}, {"text": "second"}], "role": "model"},
			"finishReason": "STOP"
		}],
		"usageMetadata": {"promptTokenCount": 1, "candidatesTokenCount": 2, "totalTokenCount": 3, "thoughtsTokenCount": 5}
	}`)
	resp, err := adapter.parseResponse("gemini-3-pro-preview", body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "first second" {
		t.Errorf("Text = %q, want 'first second'", resp.Text)
	}
	if resp.Usage.ReasoningTokens == nil || *resp.Usage.ReasoningTokens != 5 {
		t.Errorf("ReasoningTokens = %v, want 5", resp.Usage.ReasoningTokens)
	}
}
