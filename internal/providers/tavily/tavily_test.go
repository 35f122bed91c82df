package tavily

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

func TestExecute_ParsesResultsAndAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"answer": "PostgreSQL uses MVCC for concurrency control.",
			"results": [{"url": "https://postgresql.org/docs", "title": "Docs", "content": "details", "score": 0.9}]
		}`))
	}))
	defer server.Close()

	p := &Provider{apiKey: "test-key", maxResults: 5}
	result := executeAgainst(t, p, server.URL)

	assert.False(t, result.Failed())
	assert.Contains(t, result.Content, "MVCC")
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "https://postgresql.org/docs", result.Citations[0].URL)
	assert.Equal(t, id, result.Citations[0].Provider)
}

func TestExecute_MissingAPIKeyFailsResult(t *testing.T) {
	p := &Provider{}
	result, err := p.Execute(context.Background(), "query", provider.ExecuteOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, envVar)
}

func TestExecute_ClassifiesAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":{"error":"invalid api key"}}`))
	}))
	defer server.Close()

	p := &Provider{apiKey: "bad-key", maxResults: 5}
	result := executeAgainst(t, p, server.URL)
	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, "authentication")
}

// executeAgainst is a small test seam: it points baseURLOverride at the
// test server for the duration of one Execute call and restores the
// previous value afterwards.
func executeAgainst(t *testing.T, p *Provider, url string) provider.Result {
	t.Helper()
	orig := baseURLOverride
	baseURLOverride = url
	defer func() { baseURLOverride = orig }()
	result, err := p.Execute(context.Background(), "postgresql connection pooling", provider.ExecuteOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	return result
}
