// Package tavily implements the raw-search tier provider for the Tavily
// Search API (https://tavily.com), a simple REST search endpoint that
// returns ranked results plus an optional synthesized answer.
package tavily

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
	id     = "tavily"
	envVar = "TAVILY_API_KEY"
)

// baseURLOverride lets tests point Execute at an httptest server; production
// code never assigns it.
var baseURLOverride string

func baseURL() string {
	if baseURLOverride != "" {
		return baseURLOverride
	}
	return "https://api.tavily.com"
}

func init() {
	provider.Register(descriptor(), NewProvider)
}

func descriptor() provider.Descriptor {
	return provider.Descriptor{
		ID:             id,
		DisplayName:    "Tavily Search",
		Tier:           provider.TierRawSearch,
		EnvVar:         envVar,
		Source:         provider.SourceBuiltin,
		RequiresAPIKey: true,
		Capabilities:   provider.Capabilities{Test: true},
	}
}

type apiRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results,omitempty"`
	IncludeAnswer bool   `json:"include_answer"`
	SearchDepth   string `json:"search_depth,omitempty"`
}

type apiResult struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type apiResponse struct {
	Answer  string      `json:"answer"`
	Results []apiResult `json:"results"`
}

type apiError struct {
	Detail struct {
		Error string `json:"error"`
	} `json:"detail"`
}

// Provider implements provider.Provider for Tavily.
type Provider struct {
	provider.Base
	apiKey     string
	maxResults int
}

// NewProvider is the registry factory for the "tavily" provider.
func NewProvider(cfg provider.Entry) (provider.Provider, error) {
	apiKey, ok := provider.ResolveAPIKey(os.Getenv, cfg.APIKey)
	if !ok {
		return &Provider{}, nil
	}
	maxResults := 5
	if v, ok := cfg.Options["maxResults"]; ok {
		if n, ok := v.(float64); ok && n > 0 {
			maxResults = int(n)
		}
	}
	return &Provider{apiKey: apiKey, maxResults: maxResults}, nil
}

func (p *Provider) Descriptor() provider.Descriptor { return descriptor() }

// Execute issues one search request and folds any failure into Result.Error.
func (p *Provider) Execute(ctx context.Context, query string, opts provider.ExecuteOptions) (provider.Result, error) {
	start := time.Now()

	if p.apiKey == "" {
		return errorResult(fmt.Sprintf("%s is not set", envVar), start), nil
	}

	resp, err := httpclient.Do(ctx, httpclient.Request{
		Method:  "POST",
		URL:     baseURL() + "/search",
		Timeout: opts.Timeout,
		Body: apiRequest{
			APIKey:        p.apiKey,
			Query:         query,
			MaxResults:    p.maxResults,
			IncludeAnswer: true,
			SearchDepth:   "basic",
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
		return errorResult("failed to decode tavily response: "+err.Error(), start), nil
	}

	citations := make([]provider.Citation, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		citations = append(citations, provider.Citation{URL: r.URL, Title: r.Title, Snippet: r.Content, Provider: id})
	}

	content := parsed.Answer
	if content == "" {
		for _, r := range parsed.Results {
			content += r.Content + "\n\n"
		}
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
			msg = ae.Detail.Error
		}
	}
	return providers.ClassifyStatus(id, status, msg)
}
