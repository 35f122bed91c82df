package perplexitysonar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanix-darker/librarium/internal/provider"
)

func TestSubmitThenPollThenRetrieve(t *testing.T) {
	var polls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == "POST":
			json.NewEncoder(w).Encode(apiSubmitResponse{ID: "task-1", Status: "IN_PROGRESS"})
		case r.Method == "GET":
			polls++
			if polls < 2 {
				json.NewEncoder(w).Encode(apiPollResponse{ID: "task-1", Status: "IN_PROGRESS", Progress: 0.5})
				return
			}
			json.NewEncoder(w).Encode(apiPollResponse{
				ID: "task-1", Status: "COMPLETED", Progress: 1,
				Response: &struct {
					Model     string        `json:"model"`
					Choices   []apiChoice   `json:"choices"`
					Citations []apiCitation `json:"citations"`
					Usage     apiUsage      `json:"usage"`
				}{
					Model:     defaultModel,
					Choices:   []apiChoice{{Message: apiMessage{Role: "assistant", Content: "deep research report"}}},
					Citations: []apiCitation{{URL: "https://example.com", Title: "Example"}},
					Usage:     apiUsage{PromptTokens: 5, CompletionTokens: 50},
				},
			})
		}
	}))
	defer server.Close()
	baseURLOverride = server.URL
	defer func() { baseURLOverride = "" }()

	p := &Provider{apiKey: "k", model: defaultModel}

	handle, err := p.Submit(context.Background(), "query", provider.ExecuteOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "task-1", handle.TaskID)
	assert.Equal(t, provider.StatusRunning, handle.Status)

	status, err := p.Poll(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, provider.StatusRunning, status.Status)

	status, err = p.Poll(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, provider.StatusCompleted, status.Status)

	result, err := p.Retrieve(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, "deep research report", result.Content)
	require.Len(t, result.Citations, 1)
}

func TestSubmit_MissingAPIKeyErrors(t *testing.T) {
	p := &Provider{}
	_, err := p.Submit(context.Background(), "query", provider.ExecuteOptions{Timeout: 5 * time.Second})
	assert.Error(t, err)
}

func TestRemoteStatus_MapsKnownStrings(t *testing.T) {
	assert.Equal(t, provider.StatusCompleted, remoteStatus("COMPLETED"))
	assert.Equal(t, provider.StatusFailed, remoteStatus("failed"))
	assert.Equal(t, provider.StatusRunning, remoteStatus("IN_PROGRESS"))
	assert.Equal(t, provider.StatusPending, remoteStatus("QUEUED"))
}
