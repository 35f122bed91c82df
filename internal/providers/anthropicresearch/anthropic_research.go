// Package anthropicresearch implements the deep-research tier provider
// backed by Anthropic's Messages API with extended thinking enabled,
// grounded on this project's prior internal/provider/anthropic/anthropic.go
// adapter (request/response wire shapes, classifyHTTPError, the
// "x-api-key"/"anthropic-version" header pair).
//
// Unlike perplexity, Anthropic has no native submit/poll/retrieve
// endpoint, so this adapter synthesizes one: Submit launches the
// (slow, extended-thinking) blocking call in a goroutine and returns
// immediately with a handle; Poll/Retrieve read from an in-process
// result cache keyed by a generated task id. The cache is per-process,
// which is sufficient because an async handle is never expected to
// survive a process restart for Execute-only providers, only for
// providers genuinely async at the wire level.
package anthropicresearch

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sanix-darker/librarium/internal/httpclient"
	"github.com/sanix-darker/librarium/internal/provider"
	"github.com/sanix-darker/librarium/internal/providers"
)

const (
	id               = "anthropic-research"
	envVar           = "ANTHROPIC_API_KEY"
	anthropicVersion = "2023-06-01"
	defaultModel     = "claude-opus-4-20250514"
	defaultMaxTokens = 8192
	defaultThinkTok  = 4096
)

// baseURLOverride lets tests point run() at an httptest server; production
// code never assigns it.
var baseURLOverride string

func baseURL() string {
	if baseURLOverride != "" {
		return baseURLOverride
	}
	return "https://api.anthropic.com"
}

func init() {
	provider.Register(descriptor(), NewProvider)
}

func descriptor() provider.Descriptor {
	return provider.Descriptor{
		ID:             id,
		DisplayName:    "Anthropic Research (extended thinking)",
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

type apiThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type apiRequest struct {
	Model     string       `json:"model"`
	Messages  []apiMessage `json:"messages"`
	System    string       `json:"system,omitempty"`
	MaxTokens int          `json:"max_tokens"`
	Thinking  *apiThinking `json:"thinking,omitempty"`
}

type apiContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiResponse struct {
	ID         string            `json:"id"`
	Model      string            `json:"model"`
	Content    []apiContentBlock `json:"content"`
	StopReason string            `json:"stop_reason"`
	Usage      apiUsage          `json:"usage"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

const systemPrompt = "You are a thorough research assistant. Investigate the query in depth, reason through the evidence, and produce a well-cited written report."

// task tracks one in-flight or completed synthetic-async execution.
type task struct {
	mu     sync.Mutex
	status provider.HandleStatus
	result provider.Result
}

// Provider implements provider.Provider for Anthropic's extended-thinking
// research calls.
type Provider struct {
	apiKey      string
	model       string
	maxTokens   int
	thinkBudget int

	tasksMu sync.Mutex
	tasks   map[string]*task
}

// NewProvider is the registry factory for the "anthropic-research" provider.
func NewProvider(cfg provider.Entry) (provider.Provider, error) {
	apiKey, _ := provider.ResolveAPIKey(os.Getenv, cfg.APIKey)
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Provider{
		apiKey:      apiKey,
		model:       model,
		maxTokens:   defaultMaxTokens,
		thinkBudget: defaultThinkTok,
		tasks:       make(map[string]*task),
	}, nil
}

func (p *Provider) Descriptor() provider.Descriptor { return descriptor() }

// Execute performs one blocking extended-thinking call.
func (p *Provider) Execute(ctx context.Context, query string, opts provider.ExecuteOptions) (provider.Result, error) {
	return p.run(ctx, query, opts), nil
}

// Submit launches the blocking call in the background and returns
// immediately with a handle that Poll/Retrieve resolve against the
// in-process task cache.
func (p *Provider) Submit(ctx context.Context, query string, opts provider.ExecuteOptions) (provider.Handle, error) {
	if p.apiKey == "" {
		return provider.Handle{}, fmt.Errorf("%s is not set", envVar)
	}

	taskID := uuid.NewString()
	t := &task{status: provider.StatusRunning}

	p.tasksMu.Lock()
	p.tasks[taskID] = t
	p.tasksMu.Unlock()

	bgCtx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		bgCtx, cancel = context.WithTimeout(bgCtx, opts.Timeout)
		go func() {
			<-bgCtx.Done()
			cancel()
		}()
	}

	go func() {
		result := p.run(bgCtx, query, provider.ExecuteOptions{Timeout: opts.Timeout})
		t.mu.Lock()
		t.result = result
		if result.Failed() {
			t.status = provider.StatusFailed
		} else {
			t.status = provider.StatusCompleted
		}
		t.mu.Unlock()
	}()

	return provider.Handle{
		Provider:    id,
		TaskID:      taskID,
		Query:       query,
		SubmittedAt: time.Now().UnixMilli(),
		Status:      provider.StatusRunning,
	}, nil
}

// Poll reports the synthetic task's current status.
func (p *Provider) Poll(ctx context.Context, h provider.Handle) (provider.PollStatus, error) {
	t, ok := p.lookup(h.TaskID)
	if !ok {
		return provider.PollStatus{}, fmt.Errorf("anthropic-research: unknown task %q", h.TaskID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return provider.PollStatus{Status: t.status}, nil
}

// Retrieve returns the completed result, or an error if the task is not
// yet in a terminal state.
func (p *Provider) Retrieve(ctx context.Context, h provider.Handle) (provider.Result, error) {
	t, ok := p.lookup(h.TaskID)
	if !ok {
		return provider.Result{}, fmt.Errorf("anthropic-research: unknown task %q", h.TaskID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.status.Terminal() {
		return provider.Result{}, fmt.Errorf("anthropic-research: task %q is not finished (status %s)", h.TaskID, t.status)
	}
	return t.result, nil
}

func (p *Provider) lookup(taskID string) (*task, bool) {
	p.tasksMu.Lock()
	defer p.tasksMu.Unlock()
	t, ok := p.tasks[taskID]
	return t, ok
}

// Test performs a minimal (low thinking budget) call to confirm the API
// key is accepted.
func (p *Provider) Test(ctx context.Context) (provider.TestResult, error) {
	if p.apiKey == "" {
		return provider.TestResult{OK: false, Error: fmt.Sprintf("%s is not set", envVar)}, nil
	}
	testCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	res := p.run(testCtx, "ping", provider.ExecuteOptions{Timeout: 20 * time.Second})
	if res.Failed() {
		return provider.TestResult{OK: false, Error: res.Error}, nil
	}
	return provider.TestResult{OK: true}, nil
}

func (p *Provider) run(ctx context.Context, query string, opts provider.ExecuteOptions) provider.Result {
	start := time.Now()

	if p.apiKey == "" {
		return p.errorResult(fmt.Sprintf("%s is not set", envVar), start)
	}

	resp, err := httpclient.Do(ctx, httpclient.Request{
		Method:  "POST",
		URL:     baseURL() + "/v1/messages",
		Timeout: opts.Timeout,
		Headers: map[string]string{
			"x-api-key":         p.apiKey,
			"anthropic-version": anthropicVersion,
		},
		Body: apiRequest{
			Model:     p.model,
			System:    systemPrompt,
			Messages:  []apiMessage{{Role: "user", Content: query}},
			MaxTokens: p.maxTokens,
			Thinking:  &apiThinking{Type: "enabled", BudgetTokens: p.thinkBudget},
		},
	})
	if err != nil {
		return p.errorResult(err.Error(), start)
	}
	if resp.Status != 200 {
		return p.errorResult(p.classifyBody(resp.Status, resp.Data).Error(), start)
	}

	var parsed apiResponse
	if err := providers.Remarshal(resp.Data, &parsed); err != nil {
		return p.errorResult("failed to decode anthropic response: "+err.Error(), start)
	}

	var content strings.Builder
	for _, b := range parsed.Content {
		if b.Type == "text" {
			content.WriteString(b.Text)
		}
	}

	in, out := parsed.Usage.InputTokens, parsed.Usage.OutputTokens

	return provider.Result{
		Provider:   id,
		Tier:       provider.TierDeepResearch,
		Content:    content.String(),
		Model:      parsed.Model,
		TokenUsage: &provider.TokenUsage{Input: &in, Output: &out},
		DurationMs: time.Since(start).Milliseconds(),
	}
}

func (p *Provider) errorResult(msg string, start time.Time) provider.Result {
	return provider.Result{Provider: id, Tier: provider.TierDeepResearch, Error: msg, DurationMs: time.Since(start).Milliseconds()}
}

func (p *Provider) classifyBody(status int, data interface{}) *provider.Error {
	msg := ""
	if m, ok := data.(map[string]interface{}); ok {
		var ae apiError
		if err := providers.Remarshal(m, &ae); err == nil {
			msg = ae.Error.Message
		}
	}
	e := providers.ClassifyStatus(id, status, msg)
	if status == 529 {
		e.Code = provider.ErrCodeProviderUnavailable
	}
	return e
}
