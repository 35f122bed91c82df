package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Keep retry backoff fast in tests; production uses InitialRetryDelay.
	retryDelay = 10 * time.Millisecond
}

// TestDo_RetriesOn500ThenSucceeds checks that a [500, 500, 200] sequence
// yields one successful response after three attempts.
func TestDo_RetriesOn500ThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	resp, err := Do(context.Background(), Request{Method: http.MethodGet, URL: server.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestDo_DoesNotRetryOn400(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	resp, err := Do(context.Background(), Request{Method: http.MethodGet, URL: server.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	resp, err := Do(context.Background(), Request{Method: http.MethodGet, URL: server.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.Status)
	assert.EqualValues(t, MaxRetries+1, atomic.LoadInt32(&calls))
}

func TestDo_ExternalCancelAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cancel := make(chan struct{})
	close(cancel)

	_, err := Do(context.Background(), Request{Method: http.MethodGet, URL: server.URL, Timeout: 5 * time.Second, Cancel: cancel})
	assert.ErrorIs(t, err, ErrAborted)
}

func TestDo_ParsesJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":"hello"}`))
	}))
	defer server.Close()

	resp, err := Do(context.Background(), Request{Method: http.MethodGet, URL: server.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	m, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "hello", m["content"])
}
