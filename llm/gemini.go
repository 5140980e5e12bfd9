// ABOUTME: Gemini provider adapter for the unified LLM client SDK using the native Gemini API.
// ABOUTME: Translates between unified Request/Response types and Gemini's generateContent endpoint.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// GeminiAdapter implements ProviderAdapter for Google's Gemini API.
// It uses query-parameter authentication and translates between the unified
// SDK types and Gemini's native generateContent request/response format.
type GeminiAdapter struct {
	apiKey string
	base   *BaseAdapter
}

// GeminiOption is a functional option for configuring a GeminiAdapter.
type GeminiOption func(*GeminiAdapter)

// WithGeminiBaseURL sets the base URL for the Gemini API.
// Default is "https://generativelanguage.googleapis.com".
func WithGeminiBaseURL(url string) GeminiOption {
	return func(a *GeminiAdapter) {
		if url != "" {
			a.base.BaseURL = url
		}
	}
}

// WithGeminiTimeout sets the timeout configuration for the adapter.
func WithGeminiTimeout(timeout AdapterTimeout) GeminiOption {
	return func(a *GeminiAdapter) {
		a.base.Timeout = timeout
		a.base.HTTPClient = &http.Client{
			Timeout: timeout.Request,
		}
	}
}

// NewGeminiAdapter creates a GeminiAdapter with the given API key and options.
// The BaseAdapter APIKey is left empty so DoRequest will not add a Bearer token;
// authentication is handled via query parameter instead.
func NewGeminiAdapter(apiKey string, opts ...GeminiOption) *GeminiAdapter {
	adapter := &GeminiAdapter{
		apiKey: apiKey,
		base:   NewBaseAdapter("", "https://generativelanguage.googleapis.com", DefaultAdapterTimeout()),
	}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter
}

// Name returns the provider name "gemini".
func (a *GeminiAdapter) Name() string {
	return "gemini"
}

// Close releases any resources held by the adapter.
func (a *GeminiAdapter) Close() error {
	return nil
}

// Complete sends a non-streaming completion request to the Gemini API and returns
// a unified Response.
func (a *GeminiAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	body := a.buildRequestBody(req)
	path := fmt.Sprintf("/v1beta/models/%s:generateContent?key=%s", req.Model, a.apiKey)

	httpResp, err := a.base.DoRequest(ctx, http.MethodPost, path, body, nil)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.parseErrorResponse(httpResp.StatusCode, respBody)
	}

	return a.parseResponse(req.Model, respBody)
}

// buildRequestBody translates a unified Request into a Gemini API request body map.
func (a *GeminiAdapter) buildRequestBody(req Request) map[string]any {
	body := make(map[string]any)

	if req.System != "" {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]any{
				{"text": req.System},
			},
		}
	}

	body["contents"] = []map[string]any{
		{
			"role":  "user",
			"parts": []map[string]any{{"text": req.Prompt}},
		},
	}

	genConfig := make(map[string]any)
	hasGenConfig := false

	if req.Temperature != nil {
		genConfig["temperature"] = *req.Temperature
		hasGenConfig = true
	}
	if req.TopP != nil {
		genConfig["topP"] = *req.TopP
		hasGenConfig = true
	}
	if req.MaxTokens != nil {
		genConfig["maxOutputTokens"] = *req.MaxTokens
		hasGenConfig = true
	}
	if len(req.StopSequences) > 0 {
		genConfig["stopSequences"] = req.StopSequences
		hasGenConfig = true
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_schema" {
		genConfig["responseMimeType"] = "application/json"
		var schema any
		if err := json.Unmarshal(req.ResponseFormat.JSONSchema, &schema); err == nil {
			genConfig["responseSchema"] = schema
		}
		hasGenConfig = true
	}

	if hasGenConfig {
		body["generationConfig"] = genConfig
	}

	if opts, ok := req.ProviderOptions["gemini"]; ok {
		if geminiOpts, ok := opts.(map[string]any); ok {
			for k, v := range geminiOpts {
				body[k] = v
			}
		}
	}

	return body
}

// parseResponse translates a Gemini API response into the unified Response type.
func (a *GeminiAdapter) parseResponse(model string, respBody []byte) (*Response, error) {
	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return nil, fmt.Errorf("parsing Gemini response: %w", err)
	}

	resp := &Response{
		Provider: "gemini",
		Model:    model,
		Raw:      json.RawMessage(respBody),
	}

	if geminiResp.ModelVersion != "" {
		resp.Model = geminiResp.ModelVersion
	}

	if len(geminiResp.Candidates) > 0 {
		candidate := geminiResp.Candidates[0]

		var text string
		for _, part := range candidate.Content.Parts {
			text += part.Text
		}
		resp.Text = text

		resp.FinishReason = a.mapFinishReason(candidate.FinishReason)
	}

	if geminiResp.UsageMetadata != nil {
		resp.Usage = Usage{
			InputTokens:  geminiResp.UsageMetadata.PromptTokenCount,
			OutputTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  geminiResp.UsageMetadata.TotalTokenCount,
		}
		if geminiResp.UsageMetadata.ThoughtsTokenCount > 0 {
			resp.Usage.ReasoningTokens = IntPtr(geminiResp.UsageMetadata.ThoughtsTokenCount)
		}
		if geminiResp.UsageMetadata.CachedContentTokenCount > 0 {
			resp.Usage.CacheReadTokens = IntPtr(geminiResp.UsageMetadata.CachedContentTokenCount)
		}
	}

	return resp, nil
}

// mapFinishReason translates a Gemini finish reason string to a unified FinishReason.
func (a *GeminiAdapter) mapFinishReason(geminiReason string) FinishReason {
	var reason string
	switch geminiReason {
	case "STOP":
		reason = FinishStop
	case "MAX_TOKENS":
		reason = FinishLength
	case "SAFETY":
		reason = FinishContentFilter
	default:
		reason = FinishOther
	}

	return FinishReason{Reason: reason, Raw: geminiReason}
}

// parseErrorResponse parses a Gemini error response and returns the appropriate error type.
func (a *GeminiAdapter) parseErrorResponse(statusCode int, respBody []byte) error {
	var errResp geminiErrorResponse
	if err := json.Unmarshal(respBody, &errResp); err != nil {
		return ErrorFromStatusCode(statusCode, fmt.Sprintf("HTTP %d (unparseable body)", statusCode), "gemini", "", json.RawMessage(respBody), nil)
	}

	return ErrorFromStatusCode(
		statusCode,
		errResp.Error.Message,
		"gemini",
		errResp.Error.Status,
		json.RawMessage(respBody),
		nil,
	)
}

// geminiResponse represents the top-level JSON response from the Gemini API.
type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata"`
	ModelVersion  string            `json:"modelVersion"`
}

// geminiCandidate represents a single candidate in the Gemini response.
type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

// geminiContent represents the content of a Gemini message.
type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role"`
}

// geminiPart represents a single part in a Gemini content block.
type geminiPart struct {
	Text string `json:"text,omitempty"`
}

// geminiUsage represents token usage metadata from Gemini.
type geminiUsage struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
	TotalTokenCount         int `json:"totalTokenCount"`
	ThoughtsTokenCount      int `json:"thoughtsTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount"`
}

// geminiErrorResponse represents the error response format from Gemini.
type geminiErrorResponse struct {
	Error geminiErrorDetail `json:"error"`
}

// geminiErrorDetail holds the details of a Gemini API error.
type geminiErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Ensure GeminiAdapter implements ProviderAdapter at compile time.
var _ ProviderAdapter = (*GeminiAdapter)(nil)
