// ABOUTME: Core data model types for the LLM client used by internal/planner.
// ABOUTME: Defines Request, Response, and the supporting usage/rate-limit/timeout types.

package llm

import (
	"encoding/json"
	"time"
)

// FinishReason indicates why generation stopped, with both unified and raw values.
type FinishReason struct {
	Reason string `json:"reason"` // unified: stop, length, content_filter, error, other
	Raw    string `json:"raw,omitempty"`
}

const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishContentFilter = "content_filter"
	FinishError         = "error"
	FinishOther         = "other"
)

// Usage tracks token consumption for a single LLM call.
type Usage struct {
	InputTokens      int              `json:"input_tokens"`
	OutputTokens     int              `json:"output_tokens"`
	TotalTokens      int              `json:"total_tokens"`
	ReasoningTokens  *int             `json:"reasoning_tokens,omitempty"`
	CacheReadTokens  *int             `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens *int             `json:"cache_write_tokens,omitempty"`
	Raw              *json.RawMessage `json:"raw,omitempty"`
}

// IntPtr returns a pointer to an int value.
func IntPtr(v int) *int {
	return &v
}

// Float64Ptr returns a pointer to a float64 value.
func Float64Ptr(v float64) *float64 {
	return &v
}

// Warning represents a non-fatal issue in a response.
type Warning struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// RateLimitInfo contains rate limit metadata from provider response headers.
type RateLimitInfo struct {
	RequestsRemaining *int       `json:"requests_remaining,omitempty"`
	RequestsLimit     *int       `json:"requests_limit,omitempty"`
	TokensRemaining   *int       `json:"tokens_remaining,omitempty"`
	TokensLimit       *int       `json:"tokens_limit,omitempty"`
	ResetAt           *time.Time `json:"reset_at,omitempty"`
}

// ResponseFormat specifies the desired output format.
type ResponseFormat struct {
	Type       string          `json:"type"` // "text" or "json_schema"
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
	Strict     bool            `json:"strict,omitempty"`
}

// Request is the unified input to a provider's Complete call: a system
// prompt plus a single user prompt, with optional structured-output and
// sampling controls. There is no multi-turn history or tool-calling surface
// because the swarm's Planner/Reviewer adapter never needs one.
type Request struct {
	Model           string            `json:"model"`
	System          string            `json:"system,omitempty"`
	Prompt          string            `json:"prompt"`
	Provider        string            `json:"provider,omitempty"`
	ResponseFormat  *ResponseFormat   `json:"response_format,omitempty"`
	Temperature     *float64          `json:"temperature,omitempty"`
	TopP            *float64          `json:"top_p,omitempty"`
	MaxTokens       *int              `json:"max_tokens,omitempty"`
	StopSequences   []string          `json:"stop_sequences,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	ProviderOptions map[string]any    `json:"provider_options,omitempty"`
}

// Response is the unified output from a Complete call.
type Response struct {
	ID           string          `json:"id"`
	Model        string          `json:"model"`
	Provider     string          `json:"provider"`
	Text         string          `json:"text"`
	FinishReason FinishReason    `json:"finish_reason"`
	Usage        Usage           `json:"usage"`
	Raw          json.RawMessage `json:"raw,omitempty"`
	Warnings     []Warning       `json:"warnings,omitempty"`
	RateLimit    *RateLimitInfo  `json:"rate_limit,omitempty"`
}

// AdapterTimeout specifies timeout durations at the adapter level.
type AdapterTimeout struct {
	Connect    time.Duration `json:"connect"`
	Request    time.Duration `json:"request"`
	StreamRead time.Duration `json:"stream_read"`
}

// DefaultAdapterTimeout returns sensible defaults for adapter timeouts.
func DefaultAdapterTimeout() AdapterTimeout {
	return AdapterTimeout{
		Connect:    10 * time.Second,
		Request:    120 * time.Second,
		StreamRead: 30 * time.Second,
	}
}
