// ABOUTME: Anthropic provider adapter implementing the ProviderAdapter interface.
// ABOUTME: Translates unified LLM requests to/from the Anthropic Messages API (/v1/messages).

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicDefaultVersion = "2023-06-01"
	anthropicDefaultMaxToks = 4096
)

// AnthropicAdapter implements ProviderAdapter for the Anthropic Messages API.
type AnthropicAdapter struct {
	*BaseAdapter
	version string
}

// AnthropicOption is a functional option for configuring an AnthropicAdapter.
type AnthropicOption func(*AnthropicAdapter)

// WithAnthropicBaseURL overrides the default Anthropic API base URL.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(a *AnthropicAdapter) {
		if url != "" {
			a.BaseURL = url
		}
	}
}

// WithAnthropicTimeout sets custom timeout values for the adapter.
func WithAnthropicTimeout(timeout AdapterTimeout) AnthropicOption {
	return func(a *AnthropicAdapter) {
		a.Timeout = timeout
		a.HTTPClient = &http.Client{Timeout: timeout.Request}
	}
}

// WithAnthropicVersion sets the anthropic-version header value.
func WithAnthropicVersion(version string) AnthropicOption {
	return func(a *AnthropicAdapter) {
		a.version = version
	}
}

// NewAnthropicAdapter creates an AnthropicAdapter with the given API key and options.
// Authentication uses the x-api-key header instead of a Bearer token, so the key
// is stored in DefaultHeaders rather than BaseAdapter.APIKey.
func NewAnthropicAdapter(apiKey string, opts ...AnthropicOption) *AnthropicAdapter {
	adapter := &AnthropicAdapter{
		BaseAdapter: NewBaseAdapter("", anthropicDefaultBaseURL, DefaultAdapterTimeout()),
		version:     anthropicDefaultVersion,
	}

	adapter.DefaultHeaders["x-api-key"] = apiKey
	adapter.DefaultHeaders["anthropic-version"] = anthropicDefaultVersion

	for _, opt := range opts {
		opt(adapter)
	}

	adapter.DefaultHeaders["anthropic-version"] = adapter.version

	return adapter
}

// Name returns the provider name "anthropic".
func (a *AnthropicAdapter) Name() string {
	return "anthropic"
}

// Close releases any resources held by the adapter.
func (a *AnthropicAdapter) Close() error {
	return nil
}

// Complete sends a synchronous completion request to the Anthropic Messages API.
func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	body, headers := a.buildRequestBody(req)

	resp, err := a.DoRequest(ctx, http.MethodPost, "/v1/messages", body, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, a.parseError(resp.StatusCode, respBody)
	}

	return a.parseResponse(respBody, resp.Header)
}

// buildRequestBody translates a unified Request into an Anthropic API request
// body. The Messages API has no native JSON-schema response mode, so a
// requested ResponseFormat is folded into the system prompt as an explicit
// schema instruction instead.
func (a *AnthropicAdapter) buildRequestBody(req Request) (map[string]any, map[string]string) {
	system := req.System
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_schema" {
		system = appendSchemaInstruction(system, req.ResponseFormat.JSONSchema)
	}

	body := map[string]any{
		"model": req.Model,
		"messages": []map[string]any{
			{"role": "user", "content": req.Prompt},
		},
	}
	if system != "" {
		body["system"] = system
	}

	if req.MaxTokens != nil {
		body["max_tokens"] = *req.MaxTokens
	} else {
		body["max_tokens"] = anthropicDefaultMaxToks
	}

	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if len(req.StopSequences) > 0 {
		body["stop_sequences"] = req.StopSequences
	}

	headers := map[string]string{}

	if req.ProviderOptions != nil {
		if anthropicOpts, ok := req.ProviderOptions["anthropic"]; ok {
			if optsMap, ok := anthropicOpts.(map[string]any); ok {
				if beta, ok := optsMap["beta"]; ok {
					headers["anthropic-beta"] = fmt.Sprintf("%v", beta)
					delete(optsMap, "beta")
				}
				for k, v := range optsMap {
					body[k] = v
				}
			}
		}
	}

	return body, headers
}

// appendSchemaInstruction appends an instruction to respond with JSON matching
// schema, for providers whose API has no native structured-output mode.
func appendSchemaInstruction(system string, schema json.RawMessage) string {
	instruction := fmt.Sprintf("Respond with a single JSON object matching this schema, with no surrounding prose:\n%s", string(schema))
	if system == "" {
		return instruction
	}
	return system + "\n\n" + instruction
}

// anthropicResponse represents the raw Anthropic API response.
type anthropicResponse struct {
	ID         string                  `json:"id"`
	Model      string                  `json:"model"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

// anthropicContentBlock represents a content block in the Anthropic response.
type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// anthropicUsage represents token usage in the Anthropic response.
type anthropicUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// parseResponse parses the Anthropic API response into a unified Response.
func (a *AnthropicAdapter) parseResponse(body []byte, headers http.Header) (*Response, error) {
	var raw anthropicResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	var text string
	for _, block := range raw.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	resp := &Response{
		ID:           raw.ID,
		Model:        raw.Model,
		Provider:     "anthropic",
		Text:         text,
		FinishReason: a.mapStopReason(raw.StopReason),
		Usage: Usage{
			InputTokens:  raw.Usage.InputTokens,
			OutputTokens: raw.Usage.OutputTokens,
			TotalTokens:  raw.Usage.InputTokens + raw.Usage.OutputTokens,
		},
		RateLimit: a.ParseRateLimitHeaders(headers),
		Raw:       json.RawMessage(body),
	}

	if raw.Usage.CacheCreationInputTokens > 0 {
		resp.Usage.CacheWriteTokens = IntPtr(raw.Usage.CacheCreationInputTokens)
	}
	if raw.Usage.CacheReadInputTokens > 0 {
		resp.Usage.CacheReadTokens = IntPtr(raw.Usage.CacheReadInputTokens)
	}

	return resp, nil
}

// mapStopReason converts an Anthropic stop_reason to a unified FinishReason.
func (a *AnthropicAdapter) mapStopReason(reason string) FinishReason {
	var unified string
	switch reason {
	case "end_turn", "stop_sequence":
		unified = FinishStop
	case "max_tokens":
		unified = FinishLength
	default:
		unified = FinishOther
	}

	return FinishReason{
		Reason: unified,
		Raw:    reason,
	}
}

// anthropicErrorResponse represents the Anthropic error response format.
type anthropicErrorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// parseError parses an Anthropic error response and returns the appropriate error type.
func (a *AnthropicAdapter) parseError(statusCode int, body []byte) error {
	var errResp anthropicErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return ErrorFromStatusCode(statusCode, fmt.Sprintf("HTTP %d", statusCode), "anthropic", "", json.RawMessage(body), nil)
	}

	return ErrorFromStatusCode(
		statusCode,
		errResp.Error.Message,
		"anthropic",
		errResp.Error.Type,
		json.RawMessage(body),
		nil,
	)
}
