// ABOUTME: Client infrastructure for the LLM client with provider routing.
// ABOUTME: Provides NewClient with functional options and a module-level default client.

package llm

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Client is the primary entry point for making LLM API calls. It manages
// provider adapters and routes requests to the correct provider.
type Client struct {
	providers       map[string]ProviderAdapter
	defaultProvider string
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*Client)

// WithProvider registers a ProviderAdapter under the given name. If this is
// the first provider registered and no default has been set, it becomes the
// default provider.
func WithProvider(name string, adapter ProviderAdapter) ClientOption {
	return func(c *Client) {
		c.providers[name] = adapter
		if c.defaultProvider == "" {
			c.defaultProvider = name
		}
	}
}

// WithDefaultProvider sets the name of the provider used when a Request does
// not specify a Provider field.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// NewClient creates a new Client with the given options applied.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]ProviderAdapter),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromEnv creates a Client by detecting API keys in the environment. It checks
// ANTHROPIC_API_KEY, OPENAI_API_KEY, and GEMINI_API_KEY. The first detected
// provider becomes the default. Provider-specific base URL env vars
// (ANTHROPIC_BASE_URL, OPENAI_BASE_URL, GEMINI_BASE_URL) are checked and
// used when present. Returns a ConfigurationError if no keys are found.
func FromEnv() (*Client, error) {
	type envProvider struct {
		envVar     string
		name       string
		baseEnvVar string
	}

	providers := []envProvider{
		{envVar: "ANTHROPIC_API_KEY", name: "anthropic", baseEnvVar: "ANTHROPIC_BASE_URL"},
		{envVar: "OPENAI_API_KEY", name: "openai", baseEnvVar: "OPENAI_BASE_URL"},
		{envVar: "GEMINI_API_KEY", name: "gemini", baseEnvVar: "GEMINI_BASE_URL"},
	}

	var opts []ClientOption
	found := false

	for _, p := range providers {
		key := os.Getenv(p.envVar)
		if key != "" {
			baseURL := os.Getenv(p.baseEnvVar)
			adapter := createAdapterForProvider(p.name, key, baseURL)
			opts = append(opts, WithProvider(p.name, adapter))
			found = true
		}
	}

	if !found {
		return nil, &ConfigurationError{
			SDKError: SDKError{
				Message: "no API keys found in environment (checked ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY)",
			},
		}
	}

	return NewClient(opts...), nil
}

// createAdapterForProvider creates a real ProviderAdapter for the given provider,
// honoring a custom base URL when one is configured.
func createAdapterForProvider(name, apiKey, baseURL string) ProviderAdapter {
	switch name {
	case "anthropic":
		return NewAnthropicAdapter(apiKey, WithAnthropicBaseURL(baseURL))
	case "openai":
		return NewOpenAIAdapter(apiKey, WithOpenAIBaseURL(baseURL))
	case "gemini":
		return NewGeminiAdapter(apiKey, WithGeminiBaseURL(baseURL))
	default:
		return NewAnthropicAdapter(apiKey, WithAnthropicBaseURL(baseURL))
	}
}

// resolveProvider determines which ProviderAdapter should handle the request.
// It uses the request's Provider field if set, otherwise falls back to the
// client's default provider. Returns a ConfigurationError if no provider is found.
func (c *Client) resolveProvider(req Request) (ProviderAdapter, error) {
	name := req.Provider
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		return nil, &ConfigurationError{
			SDKError: SDKError{
				Message: "no provider specified and no default provider configured",
			},
		}
	}

	adapter, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{
			SDKError: SDKError{
				Message: fmt.Sprintf("provider %q not registered", name),
			},
		}
	}
	return adapter, nil
}

// Complete sends a completion request to the appropriate provider adapter,
// routing based on req.Provider or the client's default provider.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	adapter, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}
	return adapter.Complete(ctx, req)
}

// Close shuts down all registered provider adapters. Errors from individual
// adapters are collected and returned as a combined error.
func (c *Client) Close() error {
	var errs []error
	for name, adapter := range c.providers {
		if err := adapter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing provider %q: %w", name, err))
		}
	}
	if len(errs) > 0 {
		combined := errs[0]
		for _, e := range errs[1:] {
			combined = fmt.Errorf("%w; %v", combined, e)
		}
		return combined
	}
	return nil
}

// Module-level default client for convenience functions.

var (
	defaultClient   *Client
	defaultClientMu sync.Mutex
)

// SetDefaultClient sets the module-level default client. Pass nil to clear it.
func SetDefaultClient(c *Client) {
	defaultClientMu.Lock()
	defer defaultClientMu.Unlock()
	defaultClient = c
}

// GetDefaultClient returns the module-level default client. If no client has
// been set, it attempts lazy initialization via FromEnv. Returns nil if
// FromEnv fails (no API keys configured).
func GetDefaultClient() *Client {
	defaultClientMu.Lock()
	defer defaultClientMu.Unlock()

	if defaultClient != nil {
		return defaultClient
	}

	// Attempt lazy init from environment
	c, err := FromEnv()
	if err != nil {
		return nil
	}
	defaultClient = c
	return defaultClient
}
