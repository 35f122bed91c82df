// Package exa implements the raw-search tier provider for Exa
// (https://exa.ai), a neural/semantic search API that returns ranked
// pages with an optional extracted-text snippet per result.
package exa

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
	id     = "exa"
	envVar = "EXA_API_KEY"
)

// baseURLOverride lets tests point Execute at an httptest server; production
// code never assigns it.
var baseURLOverride string

func baseURL() string {
	if baseURLOverride != "" {
		return baseURLOverride
	}
	return "https://api.exa.ai"
}

func init() {
	provider.Register(descriptor(), NewProvider)
}

func descriptor() provider.Descriptor {
	return provider.Descriptor{
		ID:             id,
		DisplayName:    "Exa Search",
		Tier:           provider.TierRawSearch,
		EnvVar:         envVar,
		Source:         provider.SourceBuiltin,
		RequiresAPIKey: true,
		Capabilities:   provider.Capabilities{Test: true},
	}
}

type apiRequest struct {
	Query      string `json:"query"`
	NumResults int    `json:"numResults,omitempty"`
	Type       string `json:"type,omitempty"`
	Contents   struct {
		Text bool `json:"text"`
	} `json:"contents"`
}

type apiResult struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

type apiResponse struct {
	Results []apiResult `json:"results"`
}

type apiError struct {
	Message string `json:"message"`
}

// Provider implements provider.Provider for Exa.
type Provider struct {
	provider.Base
	apiKey     string
	numResults int
}

// NewProvider is the registry factory for the "exa" provider.
func NewProvider(cfg provider.Entry) (provider.Provider, error) {
	apiKey, _ := provider.ResolveAPIKey(os.Getenv, cfg.APIKey)
	numResults := 8
	if v, ok := cfg.Options["numResults"]; ok {
		if n, ok := v.(float64); ok && n > 0 {
			numResults = int(n)
		}
	}
	return &Provider{apiKey: apiKey, numResults: numResults}, nil
}

func (p *Provider) Descriptor() provider.Descriptor { return descriptor() }

// Execute issues one semantic search request.
func (p *Provider) Execute(ctx context.Context, query string, opts provider.ExecuteOptions) (provider.Result, error) {
	start := time.Now()

	if p.apiKey == "" {
		return errorResult(fmt.Sprintf("%s is not set", envVar), start), nil
	}

	req := apiRequest{Query: query, NumResults: p.numResults, Type: "neural"}
	req.Contents.Text = true

	resp, err := httpclient.Do(ctx, httpclient.Request{
		Method:  "POST",
		URL:     baseURL() + "/search",
		Timeout: opts.Timeout,
		Headers: map[string]string{"x-api-key": p.apiKey},
		Body:    req,
	})
	if err != nil {
		return errorResult(err.Error(), start), nil
	}
	if resp.Status != 200 {
		return errorResult(classifyBody(resp.Status, resp.Data).Error(), start), nil
	}

	var parsed apiResponse
	if err := providers.Remarshal(resp.Data, &parsed); err != nil {
		return errorResult("failed to decode exa response: "+err.Error(), start), nil
	}

	citations := make([]provider.Citation, 0, len(parsed.Results))
	var content string
	for _, r := range parsed.Results {
		citations = append(citations, provider.Citation{URL: r.URL, Title: r.Title, Snippet: r.Text, Provider: id})
		content += r.Text + "\n\n"
	}

	return provider.Result{
		Provider:   id,
		Tier:       provider.TierRawSearch,
		Content:    content,
		Citations:  citations,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// Test performs a minimal query to confirm the API key is accepted.
func (p *Provider) Test(ctx context.Context) (provider.TestResult, error) {
	if p.apiKey == "" {
		return provider.TestResult{OK: false, Error: fmt.Sprintf("%s is not set", envVar)}, nil
	}
	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	res, _ := p.Execute(testCtx, "ping", provider.ExecuteOptions{Timeout: 10 * time.Second})
	if res.Failed() {
		return provider.TestResult{OK: false, Error: res.Error}, nil
	}
	return provider.TestResult{OK: true}, nil
}

func errorResult(msg string, start time.Time) provider.Result {
	return provider.Result{Provider: id, Tier: provider.TierRawSearch, Error: msg, DurationMs: time.Since(start).Milliseconds()}
}

func classifyBody(status int, data interface{}) *provider.Error {
	msg := ""
	if m, ok := data.(map[string]interface{}); ok {
		var ae apiError
		if err := providers.Remarshal(m, &ae); err == nil {
			msg = ae.Message
		}
	}
	return providers.ClassifyStatus(id, status, msg)
}
