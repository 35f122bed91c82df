// Package perplexitysonar implements the deep-research tier provider for
// Perplexity's Sonar Deep Research API, which is natively asynchronous at
// the wire level: a submit call returns a task id immediately, a poll
// call reports progress, and a retrieve call fetches the finished report
// once poll reports completion. This is the one built-in adapter that
// doesn't need to synthesize async behaviour (contrast
// internal/providers/anthropicresearch, which does).
package perplexitysonar

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sanix-darker/librarium/internal/httpclient"
	"github.com/sanix-darker/librarium/internal/provider"
	"github.com/sanix-darker/librarium/internal/providers"
)

// id is the canonical id; the legacy "perplexity-sonar" alias is resolved
// to this at the registry layer (internal/provider/registry.go).
const (
	id           = "perplexity-sonar-pro"
	envVar       = "PERPLEXITY_API_KEY"
	defaultModel = "sonar-deep-research"
)

// baseURLOverride lets tests point requests at an httptest server;
// production code never assigns it.
var baseURLOverride string

func baseURL() string {
	if baseURLOverride != "" {
		return baseURLOverride
	}
	return "https://api.perplexity.ai"
}

func init() {
	provider.Register(descriptor(), NewProvider)
}

func descriptor() provider.Descriptor {
	return provider.Descriptor{
		ID:             id,
		DisplayName:    "Perplexity Sonar Deep Research",
		Tier:           provider.TierDeepResearch,
		EnvVar:         envVar,
		Source:         provider.SourceBuiltin,
		RequiresAPIKey: true,
		Capabilities:   provider.Capabilities{Submit: true, Poll: true, Retrieve: true, Test: true},
	}
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiSubmitRequest struct {
	Model    string       `json:"model"`
	Messages []apiMessage `json:"messages"`
}

type apiSubmitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type apiCitation struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type apiPollResponse struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Response *struct {
		Model     string        `json:"model"`
		Choices   []apiChoice   `json:"choices"`
		Citations []apiCitation `json:"citations"`
		Usage     apiUsage      `json:"usage"`
	} `json:"response"`
}

type apiChoice struct {
	Message apiMessage `json:"message"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// remoteStatus maps Perplexity's wire-level status strings to the
// provider-agnostic HandleStatus enum.
func remoteStatus(s string) provider.HandleStatus {
	switch strings.ToUpper(s) {
	case "COMPLETED", "SUCCEEDED":
		return provider.StatusCompleted
	case "FAILED", "ERRORED":
		return provider.StatusFailed
	case "CANCELLED":
		return provider.StatusCancelled
	case "RUNNING", "IN_PROGRESS":
		return provider.StatusRunning
	default:
		return provider.StatusPending
	}
}

// Provider implements provider.Provider for Perplexity's async research API.
type Provider struct {
	apiKey string
	model  string
}

// NewProvider is the registry factory for the "perplexity-sonar-pro" provider.
func NewProvider(cfg provider.Entry) (provider.Provider, error) {
	apiKey, _ := provider.ResolveAPIKey(os.Getenv, cfg.APIKey)
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Provider{apiKey: apiKey, model: model}, nil
}

func (p *Provider) Descriptor() provider.Descriptor { return descriptor() }

// Execute submits the task and blocks, polling until it completes or the
// caller's timeout elapses — the synchronous façade over a genuinely
// async provider, used when the dispatcher runs in "sync" mode: dispatch
// mode "sync" forces even natively-async providers to block inline.
func (p *Provider) Execute(ctx context.Context, query string, opts provider.ExecuteOptions) (provider.Result, error) {
	start := time.Now()

	handle, err := p.Submit(ctx, query, opts)
	if err != nil {
		return errorResult(err.Error(), start), nil
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return errorResult("context cancelled while waiting for perplexity task: "+ctx.Err().Error(), start), nil
		case <-ticker.C:
			status, err := p.Poll(ctx, handle)
			if err != nil {
				return errorResult(err.Error(), start), nil
			}
			if !status.Status.Terminal() {
				continue
			}
			if status.Status != provider.StatusCompleted {
				return errorResult(fmt.Sprintf("perplexity task ended with status %s", status.Status), start), nil
			}
			result, err := p.Retrieve(ctx, handle)
			if err != nil {
				return errorResult(err.Error(), start), nil
			}
			result.DurationMs = time.Since(start).Milliseconds()
			return result, nil
		}
	}
}

// Submit starts the async research task and returns its remote task id.
func (p *Provider) Submit(ctx context.Context, query string, opts provider.ExecuteOptions) (provider.Handle, error) {
	if p.apiKey == "" {
		return provider.Handle{}, fmt.Errorf("%s is not set", envVar)
	}

	resp, err := httpclient.Do(ctx, httpclient.Request{
		Method:  "POST",
		URL:     baseURL() + "/async/chat/completions",
		Timeout: opts.Timeout,
		Headers: map[string]string{"Authorization": "Bearer " + p.apiKey},
		Body: apiSubmitRequest{
			Model:    p.model,
			Messages: []apiMessage{{Role: "user", Content: query}},
		},
	})
	if err != nil {
		return provider.Handle{}, err
	}
	if resp.Status != 200 && resp.Status != 201 {
		return provider.Handle{}, classifyBody(resp.Status, resp.Data)
	}

	var parsed apiSubmitResponse
	if err := providers.Remarshal(resp.Data, &parsed); err != nil {
		return provider.Handle{}, fmt.Errorf("perplexity: failed to decode submit response: %w", err)
	}

	return provider.Handle{
		Provider:    id,
		TaskID:      parsed.ID,
		Query:       query,
		SubmittedAt: time.Now().UnixMilli(),
		Status:      remoteStatus(parsed.Status),
	}, nil
}

// Poll checks the remote task's status.
func (p *Provider) Poll(ctx context.Context, h provider.Handle) (provider.PollStatus, error) {
	resp, err := httpclient.Do(ctx, httpclient.Request{
		Method:  "GET",
		URL:     baseURL() + "/async/chat/completions/" + h.TaskID,
		Timeout: 30 * time.Second,
		Headers: map[string]string{"Authorization": "Bearer " + p.apiKey},
	})
	if err != nil {
		return provider.PollStatus{}, err
	}
	if resp.Status != 200 {
		return provider.PollStatus{}, classifyBody(resp.Status, resp.Data)
	}

	var parsed apiPollResponse
	if err := providers.Remarshal(resp.Data, &parsed); err != nil {
		return provider.PollStatus{}, fmt.Errorf("perplexity: failed to decode poll response: %w", err)
	}

	progress := parsed.Progress
	return provider.PollStatus{Status: remoteStatus(parsed.Status), Progress: &progress}, nil
}

// Retrieve fetches the finished report. Callers must only invoke this
// after Poll reports a terminal, successful status.
func (p *Provider) Retrieve(ctx context.Context, h provider.Handle) (provider.Result, error) {
	resp, err := httpclient.Do(ctx, httpclient.Request{
		Method:  "GET",
		URL:     baseURL() + "/async/chat/completions/" + h.TaskID,
		Timeout: 30 * time.Second,
		Headers: map[string]string{"Authorization": "Bearer " + p.apiKey},
	})
	if err != nil {
		return provider.Result{}, err
	}
	if resp.Status != 200 {
		return provider.Result{}, classifyBody(resp.Status, resp.Data)
	}

	var parsed apiPollResponse
	if err := providers.Remarshal(resp.Data, &parsed); err != nil {
		return provider.Result{}, fmt.Errorf("perplexity: failed to decode retrieve response: %w", err)
	}
	if parsed.Response == nil || len(parsed.Response.Choices) == 0 {
		return provider.Result{}, fmt.Errorf("perplexity: task %q has no response payload", h.TaskID)
	}

	citations := make([]provider.Citation, 0, len(parsed.Response.Citations))
	for _, c := range parsed.Response.Citations {
		citations = append(citations, provider.Citation{URL: c.URL, Title: c.Title, Provider: id})
	}

	in, out := parsed.Response.Usage.PromptTokens, parsed.Response.Usage.CompletionTokens

	return provider.Result{
		Provider:   id,
		Tier:       provider.TierDeepResearch,
		Content:    parsed.Response.Choices[0].Message.Content,
		Citations:  citations,
		Model:      parsed.Response.Model,
		TokenUsage: &provider.TokenUsage{Input: &in, Output: &out},
	}, nil
}

// Test submits a minimal probe task to confirm the API key is accepted.
// It neither waits for the task to finish nor cancels it.
func (p *Provider) Test(ctx context.Context) (provider.TestResult, error) {
	if p.apiKey == "" {
		return provider.TestResult{OK: false, Error: fmt.Sprintf("%s is not set", envVar)}, nil
	}
	testCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	_, err := p.Submit(testCtx, "ping", provider.ExecuteOptions{Timeout: 15 * time.Second})
	if err != nil {
		return provider.TestResult{OK: false, Error: err.Error()}, nil
	}
	return provider.TestResult{OK: true}, nil
}

func errorResult(msg string, start time.Time) provider.Result {
	return provider.Result{Provider: id, Tier: provider.TierDeepResearch, Error: msg, DurationMs: time.Since(start).Milliseconds()}
}

func classifyBody(status int, data interface{}) *provider.Error {
	msg := ""
	if m, ok := data.(map[string]interface{}); ok {
		var ae apiError
		if err := providers.Remarshal(m, &ae); err == nil {
			msg = ae.Error.Message
		}
	}
	return providers.ClassifyStatus(id, status, msg)
}
