package openaiwebsearch

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

func TestExecute_ParsesContentAndCitations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"model": "gpt-4o-search-preview",
			"choices": [{"message": {"content": "answer text", "annotations": [
				{"type": "url_citation", "url_citation": {"url": "https://example.com", "title": "Example"}}
			]}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 20}
		}`))
	}))
	defer server.Close()
	baseURLOverride = server.URL
	defer func() { baseURLOverride = "" }()

	p := &Provider{apiKey: "k", model: defaultModel}
	result, err := p.Execute(context.Background(), "query", provider.ExecuteOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.False(t, result.Failed())
	assert.Equal(t, "answer text", result.Content)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "https://example.com", result.Citations[0].URL)
	require.NotNil(t, result.TokenUsage)
	assert.Equal(t, 10, *result.TokenUsage.Input)
}

func TestExecute_MissingAPIKeyFailsResult(t *testing.T) {
	p := &Provider{}
	result, err := p.Execute(context.Background(), "query", provider.ExecuteOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, envVar)
}
