package geminigrounded

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

func TestExecute_ParsesGroundingChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"model": "gemini-2.5-flash",
			"choices": [{"message": {"content": "grounded answer", "grounding_metadata": {
				"groundingChunks": [{"web": {"uri": "https://example.com/x", "title": "X"}}]
			}}}]
		}`))
	}))
	defer server.Close()
	baseURLOverride = server.URL
	defer func() { baseURLOverride = "" }()

	p := &Provider{apiKey: "k", model: defaultModel}
	result, err := p.Execute(context.Background(), "query", provider.ExecuteOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.False(t, result.Failed())
	assert.Equal(t, "grounded answer", result.Content)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "https://example.com/x", result.Citations[0].URL)
}

func TestExecute_MissingAPIKeyFailsResult(t *testing.T) {
	p := &Provider{}
	result, err := p.Execute(context.Background(), "query", provider.ExecuteOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, envVar)
}
