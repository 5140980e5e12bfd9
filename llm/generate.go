// ABOUTME: High-level Generate API for the LLM client.
// ABOUTME: Provides Generate and GenerateObject, wrapping a single provider call with retry and structured output.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// GenerateResult is the output of a Generate or GenerateObject call.
type GenerateResult struct {
	Text         string
	FinishReason FinishReason
	Usage        Usage
	Response     *Response
	Output       any // populated by GenerateObject with the parsed structured output
}

// GenerateOptions configures a Generate or GenerateObject call.
type GenerateOptions struct {
	Model           string // canonical model ID, or an alias resolvable via the catalog
	System          string
	Prompt          string
	ResponseFormat  *ResponseFormat
	Temperature     *float64
	TopP            *float64
	MaxTokens       *int
	StopSequences   []string
	Provider        string
	ProviderOptions map[string]any
	MaxRetries      int     // default 2
	Client          *Client // override the default client
}

// resolveClient returns the client to use for the generate call. It prefers
// opts.Client, falls back to GetDefaultClient, and returns an error if neither
// is available.
func resolveClient(opts GenerateOptions) (*Client, error) {
	if opts.Client != nil {
		return opts.Client, nil
	}
	c := GetDefaultClient()
	if c == nil {
		return nil, &ConfigurationError{
			SDKError: SDKError{
				Message: "no client available: set Client in GenerateOptions or call SetDefaultClient",
			},
		}
	}
	return c, nil
}

// resolveModel resolves opts.Model and opts.Provider against the default
// catalog, so callers may pass a short alias ("sonnet", "gpt5") in place of
// a canonical model ID. Explicit values on opts always win.
func resolveModel(opts GenerateOptions) (model, provider string) {
	model, provider = opts.Model, opts.Provider
	info := DefaultCatalog().GetModelInfo(opts.Model)
	if info == nil {
		return model, provider
	}
	if provider == "" {
		provider = info.Provider
	}
	model = info.ID
	return model, provider
}

// buildRequest constructs a Request from GenerateOptions.
func buildRequest(opts GenerateOptions) Request {
	model, provider := resolveModel(opts)
	return Request{
		Model:           model,
		Provider:        provider,
		System:          opts.System,
		Prompt:          opts.Prompt,
		ResponseFormat:  opts.ResponseFormat,
		Temperature:     opts.Temperature,
		TopP:            opts.TopP,
		MaxTokens:       opts.MaxTokens,
		StopSequences:   opts.StopSequences,
		ProviderOptions: opts.ProviderOptions,
	}
}

// Generate sends a single completion request, retrying on retryable errors.
func Generate(ctx context.Context, opts GenerateOptions) (*GenerateResult, error) {
	client, err := resolveClient(opts)
	if err != nil {
		return nil, err
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}

	req := buildRequest(opts)

	var resp *Response
	policy := RetryPolicy{
		MaxRetries:        maxRetries,
		BaseDelay:         0,
		MaxDelay:          0,
		BackoffMultiplier: 2.0,
		Jitter:            false,
	}

	retryErr := Retry(ctx, policy, func() error {
		var completeErr error
		resp, completeErr = client.Complete(ctx, req)
		return completeErr
	})
	if retryErr != nil {
		return nil, retryErr
	}

	return &GenerateResult{
		Text:         resp.Text,
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
		Response:     resp,
	}, nil
}

// GenerateObject calls Generate with the ResponseFormat set to json_schema,
// then parses the response text as JSON. It validates the output by unmarshaling
// into a map and sets result.Output. Returns NoObjectGeneratedError on parse failure.
func GenerateObject(ctx context.Context, opts GenerateOptions, schema json.RawMessage) (*GenerateResult, error) {
	opts.ResponseFormat = &ResponseFormat{
		Type:       "json_schema",
		JSONSchema: schema,
		Strict:     true,
	}

	result, err := Generate(ctx, opts)
	if err != nil {
		return nil, err
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(result.Text), &parsed); err != nil {
		return nil, &NoObjectGeneratedError{
			SDKError: SDKError{
				Message: fmt.Sprintf("failed to parse response as JSON: %s", err.Error()),
				Cause:   err,
			},
		}
	}

	result.Output = parsed
	return result, nil
}
