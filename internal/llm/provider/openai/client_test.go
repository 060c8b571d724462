package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-investigator/internal/llm/types"
	"github.com/kubilitics/kubilitics-investigator/internal/metrics"
)

type capturedRequest struct {
	Model               string  `json:"model"`
	Temperature         float32 `json:"temperature"`
	MaxCompletionTokens int     `json:"max_completion_tokens"`
	Messages            []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestServer(t *testing.T, status int, body string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if captured != nil {
			_ = json.NewDecoder(r.Body).Decode(captured)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [
    {"index": 0, "message": {"role": "assistant", "content": "  Iterations 1-2 narrowed the fault to DNS.  "}, "finish_reason": "stop"}
  ],
  "usage": {"prompt_tokens": 40, "completion_tokens": 10, "total_tokens": 50}
}`

func TestNewClient(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantError bool
		wantModel string
	}{
		{name: "Valid configuration", opts: Options{APIKey: "sk-test123", Model: "gpt-4o"}, wantModel: "gpt-4o"},
		{name: "Empty API key", opts: Options{Model: "gpt-4o"}, wantError: true},
		{name: "Default model", opts: Options{APIKey: "sk-test123"}, wantModel: DefaultModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.opts)
			if tt.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, client.Model())
			assert.Equal(t, ProviderName, client.Name())
		})
	}
}

func TestGenerate(t *testing.T) {
	var captured capturedRequest
	srv := newTestServer(t, http.StatusOK, completionBody, &captured)

	client, err := NewClient(Options{APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	before := testutil.ToFloat64(metrics.LLMRequestsTotal.WithLabelValues(ProviderName, "gpt-4o-mini", "success"))

	out, err := client.Generate(context.Background(), "Summarize iterations 1-2", types.GenerateOptions{
		Temperature: 0.3,
		MaxTokens:   50,
	})
	require.NoError(t, err)
	assert.Equal(t, "Iterations 1-2 narrowed the fault to DNS.", out)

	assert.Equal(t, "gpt-4o-mini", captured.Model)
	assert.InDelta(t, 0.3, captured.Temperature, 1e-6)
	assert.Equal(t, 50, captured.MaxCompletionTokens)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, defaultSystemPrompt, captured.Messages[0].Content)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Equal(t, "Summarize iterations 1-2", captured.Messages[1].Content)

	after := testutil.ToFloat64(metrics.LLMRequestsTotal.WithLabelValues(ProviderName, "gpt-4o-mini", "success"))
	assert.Equal(t, before+1, after)
}

func TestGenerateCustomSystemPrompt(t *testing.T) {
	var captured capturedRequest
	srv := newTestServer(t, http.StatusOK, completionBody, &captured)

	client, err := NewClient(Options{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "p", types.GenerateOptions{System: "be brief"})
	require.NoError(t, err)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "be brief", captured.Messages[0].Content)
	assert.Zero(t, captured.MaxCompletionTokens)
}

func TestGenerateServerError(t *testing.T) {
	srv := newTestServer(t, http.StatusInternalServerError,
		`{"error": {"message": "upstream exploded", "type": "server_error"}}`, nil)

	client, err := NewClient(Options{APIKey: "sk-test", Model: "gpt-err", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	before := testutil.ToFloat64(metrics.LLMRequestsTotal.WithLabelValues(ProviderName, "gpt-err", "error"))
	_, err = client.Generate(context.Background(), "p", types.GenerateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai chat completion failed")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.LLMRequestsTotal.WithLabelValues(ProviderName, "gpt-err", "error")))
}

func TestGenerateNoChoices(t *testing.T) {
	srv := newTestServer(t, http.StatusOK,
		`{"id": "x", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini", "choices": []}`, nil)

	client, err := NewClient(Options{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "p", types.GenerateOptions{})
	assert.True(t, errors.Is(err, ErrNoChoices))
}

func TestGenerateCancelledContext(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, completionBody, nil)

	client, err := NewClient(Options{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Generate(ctx, "p", types.GenerateOptions{})
	require.Error(t, err)
}
