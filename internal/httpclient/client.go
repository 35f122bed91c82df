// Package httpclient implements the single uniform JSON HTTP client every
// provider adapter uses: retry with exponential backoff on
// 5xx/429/network errors, a response-size cap, per-attempt timeout, and
// external-cancellation support.
//
// Built on go-resty/v2, generalized into one shared call site instead of
// being duplicated per adapter.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// MaxRetries is the maximum number of retry attempts on a retryable
	// failure.
	MaxRetries = 3

	// InitialRetryDelay is the base delay before the first retry; the
	// delay doubles for each subsequent attempt.
	InitialRetryDelay = 1 * time.Second

	// MaxResponseSize caps the terminal response body.
	MaxResponseSize = 10 * 1024 * 1024 // 10 MiB
)

// Request describes one call to Do.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    interface{} // marshaled as JSON when non-nil

	// Timeout bounds a single attempt (not the whole retry sequence).
	Timeout time.Duration

	// Cancel, when non-nil, is closed by the caller to abort the
	// in-flight attempt and any pending retry sleep.
	Cancel <-chan struct{}
}

// Response is the uniform result of a call, successful or not.
type Response struct {
	Status     int
	StatusText string
	// Data holds the parsed JSON body when the response is valid JSON;
	// otherwise it holds the raw body as a string.
	Data       interface{}
	Headers    http.Header
	DurationMs int64
}

// ErrAborted is returned when the caller's Cancel channel closes before or
// during a request.
var ErrAborted = errors.New("httpclient: request aborted")

// ErrResponseTooLarge is returned when the terminal response body exceeds
// MaxResponseSize.
var ErrResponseTooLarge = errors.New("httpclient: response exceeds maximum size")

// client is a package-level resty.Client reused across calls so
// connections are pooled across providers instead of re-dialed per call.
var client = resty.New()

// retryDelay is InitialRetryDelay as a variable so tests can shrink it;
// production code never overrides it.
var retryDelay = InitialRetryDelay

// Do performs req with retry/backoff, honoring both the per-attempt
// timeout and external cancellation. Duration is measured for the
// returned response only, not summed across retries.
func Do(ctx context.Context, req Request) (*Response, error) {
	var lastResp *Response
	var lastErr error

	for attempt := 1; attempt <= MaxRetries+1; attempt++ {
		select {
		case <-req.Cancel:
			return nil, ErrAborted
		default:
		}

		resp, err := doOnce(ctx, req)
		if err != nil {
			if errors.Is(err, ErrAborted) {
				return nil, err
			}
			lastErr = err
			lastResp = nil
		} else if !isRetryableStatus(resp.Status) {
			// Success, or a non-retryable 4xx returned verbatim.
			return resp, nil
		} else {
			lastResp = resp
			lastErr = nil
		}

		if attempt == MaxRetries+1 {
			break
		}

		delay := time.Duration(math.Pow(2, float64(attempt-1))) * retryDelay
		timer := time.NewTimer(delay)
		select {
		case <-req.Cancel:
			timer.Stop()
			return nil, ErrAborted
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return lastResp, nil
}

func doOnce(ctx context.Context, req Request) (*Response, error) {
	select {
	case <-req.Cancel:
		return nil, ErrAborted
	default:
	}

	attemptCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	if req.Cancel != nil {
		var stop context.CancelFunc
		attemptCtx, stop = context.WithCancel(attemptCtx)
		defer stop()
		go func() {
			select {
			case <-req.Cancel:
				stop()
			case <-attemptCtx.Done():
			}
		}()
	}

	start := time.Now()

	r := client.R().SetContext(attemptCtx)
	for k, v := range req.Headers {
		r.SetHeader(k, v)
	}
	if req.Body != nil {
		r.SetHeader("Content-Type", "application/json")
		body, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("httpclient: failed to marshal request body: %w", err)
		}
		r.SetBody(bytes.NewReader(body))
	}
	r.SetDoNotParseResponse(true)

	rawResp, err := r.Execute(req.Method, req.URL)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		select {
		case <-req.Cancel:
			return nil, ErrAborted
		default:
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("httpclient: request to %s timed out: %w", req.URL, err)
		}
		return nil, fmt.Errorf("httpclient: request to %s failed: %w", req.URL, err)
	}
	defer rawResp.RawBody().Close()

	limited := io.LimitReader(rawResp.RawBody(), MaxResponseSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("httpclient: failed to read response body: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, ErrResponseTooLarge
	}

	resp := &Response{
		Status:     rawResp.StatusCode(),
		StatusText: rawResp.Status(),
		Headers:    rawResp.Header(),
		DurationMs: duration,
	}

	var parsed interface{}
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		resp.Data = parsed
	} else {
		resp.Data = string(body)
	}

	return resp, nil
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
