// ABOUTME: OpenAI Responses API provider adapter for the unified LLM client SDK.
// ABOUTME: Translates unified Request/Response types to OpenAI's /v1/responses endpoint format.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// OpenAIAdapter implements ProviderAdapter for the OpenAI Responses API.
type OpenAIAdapter struct {
	*BaseAdapter
	organization string
	project      string
}

// OpenAIOption is a functional option for configuring an OpenAIAdapter.
type OpenAIOption func(*OpenAIAdapter)

// WithOpenAIBaseURL sets the base URL for OpenAI API requests.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(a *OpenAIAdapter) {
		if url != "" {
			a.BaseURL = url
		}
	}
}

// WithOpenAITimeout sets the timeout configuration for OpenAI API requests.
func WithOpenAITimeout(timeout AdapterTimeout) OpenAIOption {
	return func(a *OpenAIAdapter) {
		a.Timeout = timeout
		a.HTTPClient = &http.Client{Timeout: timeout.Request}
	}
}

// WithOpenAIOrganization sets the OpenAI-Organization header for API requests.
func WithOpenAIOrganization(org string) OpenAIOption {
	return func(a *OpenAIAdapter) {
		a.organization = org
	}
}

// WithOpenAIProject sets the OpenAI-Project header for API requests.
func WithOpenAIProject(project string) OpenAIOption {
	return func(a *OpenAIAdapter) {
		a.project = project
	}
}

// NewOpenAIAdapter creates a new OpenAIAdapter with the given API key and options.
func NewOpenAIAdapter(apiKey string, opts ...OpenAIOption) *OpenAIAdapter {
	adapter := &OpenAIAdapter{
		BaseAdapter: NewBaseAdapter(apiKey, "https://api.openai.com", DefaultAdapterTimeout()),
	}
	for _, opt := range opts {
		opt(adapter)
	}

	if adapter.organization != "" {
		adapter.DefaultHeaders["OpenAI-Organization"] = adapter.organization
	}
	if adapter.project != "" {
		adapter.DefaultHeaders["OpenAI-Project"] = adapter.project
	}

	return adapter
}

// Name returns the provider name for this adapter.
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// Close releases resources held by the adapter.
func (a *OpenAIAdapter) Close() error {
	return nil
}

// Complete sends a synchronous completion request to the OpenAI Responses API.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	body := a.buildRequestBody(req)

	resp, err := a.DoRequest(ctx, http.MethodPost, "/v1/responses", body, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(resp)
	}

	return a.parseResponse(resp)
}

// buildRequestBody translates a unified Request into the OpenAI Responses API request format.
func (a *OpenAIAdapter) buildRequestBody(req Request) map[string]any {
	body := map[string]any{
		"model": req.Model,
		"input": []map[string]any{
			{
				"type": "message",
				"role": "user",
				"content": []map[string]any{
					{"type": "input_text", "text": req.Prompt},
				},
			},
		},
	}

	if req.System != "" {
		body["instructions"] = req.System
	}

	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		body["max_output_tokens"] = *req.MaxTokens
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if len(req.StopSequences) > 0 {
		body["stop"] = req.StopSequences
	}

	if req.ResponseFormat != nil {
		body["text"] = map[string]any{
			"format": a.translateResponseFormat(req.ResponseFormat),
		}
	}

	if opts, ok := req.ProviderOptions["openai"]; ok {
		if optsMap, ok := opts.(map[string]any); ok {
			for k, v := range optsMap {
				body[k] = v
			}
		}
	}

	return body
}

// translateResponseFormat converts a unified ResponseFormat into OpenAI format.
func (a *OpenAIAdapter) translateResponseFormat(rf *ResponseFormat) map[string]any {
	result := map[string]any{
		"type": rf.Type,
	}
	if rf.JSONSchema != nil {
		result["json_schema"] = rf.JSONSchema
	}
	return result
}

// openaiResponseBody represents the structure of an OpenAI Responses API response.
type openaiResponseBody struct {
	ID                string             `json:"id"`
	Model             string             `json:"model"`
	Status            string             `json:"status"`
	Output            []openaiOutputItem `json:"output"`
	Usage             openaiUsage        `json:"usage"`
	IncompleteDetails *openaiIncomplete  `json:"incomplete_details,omitempty"`
}

type openaiOutputItem struct {
	Type    string              `json:"type"`
	Content []openaiContentItem `json:"content,omitempty"`
}

type openaiContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type openaiUsage struct {
	InputTokens        int                  `json:"input_tokens"`
	OutputTokens       int                  `json:"output_tokens"`
	TotalTokens        int                  `json:"total_tokens"`
	OutputTokensDetail *openaiOutputDetail  `json:"output_tokens_details,omitempty"`
	PromptTokensDetail *openaiPromptDetail  `json:"prompt_tokens_details,omitempty"`
}

type openaiOutputDetail struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}

type openaiPromptDetail struct {
	CachedTokens int `json:"cached_tokens"`
}

type openaiIncomplete struct {
	Reason string `json:"reason"`
}

// parseResponse converts an HTTP response into a unified Response.
func (a *OpenAIAdapter) parseResponse(httpResp *http.Response) (*Response, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var oaiResp openaiResponseBody
	if err := json.Unmarshal(body, &oaiResp); err != nil {
		return nil, fmt.Errorf("parsing response body: %w", err)
	}

	var text string
	for _, item := range oaiResp.Output {
		if item.Type != "message" {
			continue
		}
		for _, ci := range item.Content {
			if ci.Type == "output_text" {
				text += ci.Text
			}
		}
	}

	resp := &Response{
		ID:           oaiResp.ID,
		Model:        oaiResp.Model,
		Provider:     "openai",
		Text:         text,
		FinishReason: a.mapFinishReason(oaiResp.Status, oaiResp.IncompleteDetails),
		Raw:          json.RawMessage(body),
	}

	resp.Usage = Usage{
		InputTokens:  oaiResp.Usage.InputTokens,
		OutputTokens: oaiResp.Usage.OutputTokens,
		TotalTokens:  oaiResp.Usage.TotalTokens,
	}
	if oaiResp.Usage.OutputTokensDetail != nil && oaiResp.Usage.OutputTokensDetail.ReasoningTokens > 0 {
		resp.Usage.ReasoningTokens = IntPtr(oaiResp.Usage.OutputTokensDetail.ReasoningTokens)
	}
	if oaiResp.Usage.PromptTokensDetail != nil && oaiResp.Usage.PromptTokensDetail.CachedTokens > 0 {
		resp.Usage.CacheReadTokens = IntPtr(oaiResp.Usage.PromptTokensDetail.CachedTokens)
	}

	resp.RateLimit = a.ParseRateLimitHeaders(httpResp.Header)

	return resp, nil
}

// mapFinishReason translates OpenAI response status to a unified FinishReason.
func (a *OpenAIAdapter) mapFinishReason(status string, incomplete *openaiIncomplete) FinishReason {
	if status == "incomplete" && incomplete != nil {
		switch incomplete.Reason {
		case "max_output_tokens":
			return FinishReason{Reason: FinishLength, Raw: "max_output_tokens"}
		case "content_filter":
			return FinishReason{Reason: FinishContentFilter, Raw: "content_filter"}
		default:
			return FinishReason{Reason: FinishOther, Raw: incomplete.Reason}
		}
	}

	switch status {
	case "completed":
		return FinishReason{Reason: FinishStop, Raw: status}
	case "failed":
		return FinishReason{Reason: FinishError, Raw: status}
	default:
		return FinishReason{Reason: FinishOther, Raw: status}
	}
}

// handleErrorResponse parses an HTTP error response and returns an appropriate error type.
func (a *OpenAIAdapter) handleErrorResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading error response: %w", err)
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := fmt.Sprintf("openai API error (status %d)", resp.StatusCode)
	var errorCode string

	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		errorCode = errResp.Error.Code
		if errorCode == "" {
			errorCode = errResp.Error.Type
		}
	}

	return ErrorFromStatusCode(resp.StatusCode, message, "openai", errorCode, json.RawMessage(body), nil)
}
