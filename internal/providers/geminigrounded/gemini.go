// Package geminigrounded implements the ai-grounded tier provider backed
// by Google's OpenAI-compatible endpoint with Google Search grounding
// enabled, reusing the openai-websearch wire shape since the compat
// endpoint speaks the same Chat Completions schema under a different
// base URL, model set, and tool name.
package geminigrounded

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sanix-darker/librarium/internal/httpclient"
	"github.com/sanix-darker/librarium/internal/provider"
	"github.com/sanix-darker/librarium/internal/providers"
)

const (
	id           = "gemini-grounded"
	envVar       = "GEMINI_API_KEY"
	defaultModel = "gemini-2.5-flash"
)

// baseURLOverride lets tests point Execute at an httptest server; production
// code never assigns it.
var baseURLOverride string

func baseURL() string {
	if baseURLOverride != "" {
		return baseURLOverride
	}
	return "https://generativelanguage.googleapis.com/v1beta/openai"
}

func init() {
	provider.Register(descriptor(), NewProvider)
}

func descriptor() provider.Descriptor {
	return provider.Descriptor{
		ID:             id,
		DisplayName:    "Gemini Grounded Search",
		Tier:           provider.TierAIGrounded,
		EnvVar:         envVar,
		Source:         provider.SourceBuiltin,
		RequiresAPIKey: true,
		Capabilities:   provider.Capabilities{Test: true},
	}
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiTool struct {
	Type string `json:"type"`
}

type apiRequest struct {
	Model    string       `json:"model"`
	Messages []apiMessage `json:"messages"`
	Tools    []apiTool    `json:"tools,omitempty"`
}

type apiGroundingChunk struct {
	Web struct {
		URI   string `json:"uri"`
		Title string `json:"title"`
	} `json:"web"`
}

type apiChoiceMessage struct {
	Content   string `json:"content"`
	Grounding struct {
		Chunks []apiGroundingChunk `json:"groundingChunks"`
	} `json:"grounding_metadata"`
}

type apiChoice struct {
	Message apiChoiceMessage `json:"message"`
}

type apiResponse struct {
	Model   string      `json:"model"`
	Choices []apiChoice `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Provider implements provider.Provider for Gemini's grounded search.
type Provider struct {
	provider.Base
	apiKey string
	model  string
}

// NewProvider is the registry factory for the "gemini-grounded" provider.
func NewProvider(cfg provider.Entry) (provider.Provider, error) {
	apiKey, _ := provider.ResolveAPIKey(os.Getenv, cfg.APIKey)
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Provider{apiKey: apiKey, model: model}, nil
}

func (p *Provider) Descriptor() provider.Descriptor { return descriptor() }

// Execute asks the model to answer the query with Google Search grounding
// enabled, extracting citations from the grounding metadata chunks.
func (p *Provider) Execute(ctx context.Context, query string, opts provider.ExecuteOptions) (provider.Result, error) {
	start := time.Now()

	if p.apiKey == "" {
		return errorResult(fmt.Sprintf("%s is not set", envVar), start), nil
	}

	resp, err := httpclient.Do(ctx, httpclient.Request{
		Method:  "POST",
		URL:     baseURL() + "/chat/completions",
		Timeout: opts.Timeout,
		Headers: map[string]string{"Authorization": "Bearer " + p.apiKey},
		Body: apiRequest{
			Model:    p.model,
			Messages: []apiMessage{{Role: "user", Content: query}},
			Tools:    []apiTool{{Type: "google_search"}},
		},
	})
	if err != nil {
		return errorResult(err.Error(), start), nil
	}
	if resp.Status != 200 {
		return errorResult(classifyBody(resp.Status, resp.Data).Error(), start), nil
	}

	var parsed apiResponse
	if err := providers.Remarshal(resp.Data, &parsed); err != nil {
		return errorResult("failed to decode gemini response: "+err.Error(), start), nil
	}
	if len(parsed.Choices) == 0 {
		return errorResult("gemini returned no choices", start), nil
	}

	msg := parsed.Choices[0].Message
	citations := make([]provider.Citation, 0, len(msg.Grounding.Chunks))
	for _, c := range msg.Grounding.Chunks {
		if c.Web.URI == "" {
			continue
		}
		citations = append(citations, provider.Citation{URL: c.Web.URI, Title: c.Web.Title, Provider: id})
	}

	return provider.Result{
		Provider:   id,
		Tier:       provider.TierAIGrounded,
		Content:    msg.Content,
		Citations:  citations,
		Model:      parsed.Model,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// Test performs a minimal grounded query to confirm the API key is accepted.
func (p *Provider) Test(ctx context.Context) (provider.TestResult, error) {
	if p.apiKey == "" {
		return provider.TestResult{OK: false, Error: fmt.Sprintf("%s is not set", envVar)}, nil
	}
	testCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	res, _ := p.Execute(testCtx, "ping", provider.ExecuteOptions{Timeout: 15 * time.Second})
	if res.Failed() {
		return provider.TestResult{OK: false, Error: res.Error}, nil
	}
	return provider.TestResult{OK: true}, nil
}

func errorResult(msg string, start time.Time) provider.Result {
	return provider.Result{Provider: id, Tier: provider.TierAIGrounded, Error: msg, DurationMs: time.Since(start).Milliseconds()}
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
