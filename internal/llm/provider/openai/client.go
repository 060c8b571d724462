package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kubilitics/kubilitics-investigator/internal/llm/types"
	"github.com/kubilitics/kubilitics-investigator/internal/metrics"
)

// Package openai provides the OpenAI provider for the LLM adapter.
//
// Responsibilities:
//   - Send chat completions through the go-openai client
//   - Support OpenAI-compatible endpoints via a custom base URL
//   - Record request counts and latency

const (
	ProviderName   = "openai"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 30 * time.Second

	defaultSystemPrompt = "You are a concise technical assistant summarising a troubleshooting investigation."
)

// ErrNoChoices is returned when the API answers without any completion choice.
var ErrNoChoices = errors.New("openai returned no choices")

// Options configures the client.
type Options struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client implements adapter.Provider on top of go-openai.
type Client struct {
	client *goopenai.Client
	model  string
}

// NewClient creates a new OpenAI client with configuration.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	cfg := goopenai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}

	return &Client{
		client: goopenai.NewClientWithConfig(cfg),
		model:  opts.Model,
	}, nil
}

// Name returns the provider identifier.
func (c *Client) Name() string { return ProviderName }

// Model returns the configured model.
func (c *Client) Model() string { return c.model }

// Generate sends a single-prompt chat completion and returns the trimmed text.
func (c *Client) Generate(ctx context.Context, prompt string, opts types.GenerateOptions) (string, error) {
	system := opts.System
	if system == "" {
		system = defaultSystemPrompt
	}

	req := goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if opts.Temperature > 0 {
		req.Temperature = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		req.MaxCompletionTokens = opts.MaxTokens
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	metrics.LLMRequestDuration.WithLabelValues(ProviderName, c.model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(ProviderName, c.model, "error").Inc()
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(ProviderName, c.model, "empty").Inc()
		return "", ErrNoChoices
	}

	metrics.LLMRequestsTotal.WithLabelValues(ProviderName, c.model, "success").Inc()
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
