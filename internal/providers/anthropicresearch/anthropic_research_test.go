package anthropicresearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanix-darker/librarium/internal/provider"
)

func newTestProvider(url string) *Provider {
	baseURLOverride = url
	return &Provider{
		apiKey:      "k",
		model:       defaultModel,
		maxTokens:   defaultMaxTokens,
		thinkBudget: defaultThinkTok,
		tasks:       make(map[string]*task),
	}
}

func TestExecute_ParsesContentAndThinkingUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1", "model": "claude-opus-4-20250514",
			"content": [{"type": "text", "text": "thorough research report"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 100, "output_tokens": 500}
		}`))
	}))
	defer server.Close()
	defer func() { baseURLOverride = "" }()

	p := newTestProvider(server.URL)
	result, err := p.Execute(context.Background(), "query", provider.ExecuteOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.False(t, result.Failed())
	assert.Equal(t, "thorough research report", result.Content)
	require.NotNil(t, result.TokenUsage)
	assert.Equal(t, 500, *result.TokenUsage.Output)
}

func TestSubmitPollRetrieve_SyntheticAsyncLifecycle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_2","model":"claude-opus-4-20250514","content":[{"type":"text","text":"done"}],"usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
	defer server.Close()
	defer func() { baseURLOverride = "" }()

	p := newTestProvider(server.URL)
	handle, err := p.Submit(context.Background(), "query", provider.ExecuteOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, provider.StatusRunning, handle.Status)

	require.Eventually(t, func() bool {
		status, err := p.Poll(context.Background(), handle)
		return err == nil && status.Status.Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	result, err := p.Retrieve(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, "done", result.Content)
}

func TestRetrieve_BeforeCompletionErrors(t *testing.T) {
	p := &Provider{tasks: map[string]*task{"t1": {status: provider.StatusRunning}}}
	_, err := p.Retrieve(context.Background(), provider.Handle{TaskID: "t1"})
	assert.Error(t, err)
}
