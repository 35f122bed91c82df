// Package provider defines the uniform contract that every remote
// search/research service implements, plus the shared record types that
// flow between the dispatcher, the async manager, the normalizer, and the
// run artifact writer.
//
// Design principles (carried from this project's AI-provider ancestor):
//   - idiomatic Go: context propagation, typed errors, functional options
//   - a small interface surface with capability flags for optional methods
//   - registry/factory pattern for provider discovery
//   - normalized error codes across providers
package provider

import (
	"fmt"
	"time"
)

// Tier categorizes a provider by latency/depth. Only deep-research
// providers may take the async dispatch path.
type Tier string

const (
	TierDeepResearch Tier = "deep-research"
	TierAIGrounded   Tier = "ai-grounded"
	TierRawSearch    Tier = "raw-search"
)

// Source identifies where a provider implementation came from.
type Source string

const (
	SourceBuiltin Source = "builtin"
	SourceNPM     Source = "npm"
	SourceScript  Source = "script"
)

// Capabilities declares which optional operations a provider supports.
// Execute is implicitly mandatory and is not tracked here.
type Capabilities struct {
	Submit   bool `json:"submit"`
	Poll     bool `json:"poll"`
	Retrieve bool `json:"retrieve"`
	Test     bool `json:"test"`
}

// Descriptor is a provider's identity and contract metadata.
type Descriptor struct {
	ID             string       `json:"id"`
	DisplayName    string       `json:"displayName"`
	Tier           Tier         `json:"tier"`
	EnvVar         string       `json:"envVar,omitempty"`
	Source         Source       `json:"source"`
	RequiresAPIKey bool         `json:"requiresApiKey"`
	Capabilities   Capabilities `json:"capabilities"`
}

// Validate checks that envVar is set whenever an API key is required.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("provider: descriptor missing id")
	}
	if d.RequiresAPIKey && d.EnvVar == "" {
		return fmt.Errorf("provider %q: requiresApiKey is true but envVar is empty", d.ID)
	}
	return nil
}

// TokenUsage tracks token accounting reported by a provider, when available.
type TokenUsage struct {
	Input  *int `json:"input,omitempty"`
	Output *int `json:"output,omitempty"`
}

// Citation is one source reference returned by a provider.
type Citation struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
	Provider string `json:"provider"`
}

// Result is the normalized outcome of a single provider execution. Error is
// non-empty if and only if the execution failed; Content/Citations are not
// meaningful in that case.
type Result struct {
	Provider   string      `json:"provider"`
	Tier       Tier        `json:"tier"`
	Content    string      `json:"content"`
	Citations  []Citation  `json:"citations"`
	DurationMs int64       `json:"durationMs"`
	Model      string      `json:"model,omitempty"`
	TokenUsage *TokenUsage `json:"tokenUsage,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Failed reports whether this result represents a failed execution.
func (r Result) Failed() bool { return r.Error != "" }

// HandleStatus is the lifecycle state of an async task handle. Transitions
// are monotonic except pending/running are interchangeable intermediate
// states.
type HandleStatus string

const (
	StatusPending   HandleStatus = "pending"
	StatusRunning   HandleStatus = "running"
	StatusCompleted HandleStatus = "completed"
	StatusFailed    HandleStatus = "failed"
	StatusCancelled HandleStatus = "cancelled"
)

// Terminal reports whether the status is one that a handle store should
// stop polling.
func (s HandleStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Handle is a durable reference to a submitted long-running provider task.
type Handle struct {
	Provider     string       `json:"provider"`
	TaskID       string       `json:"taskId"`
	Query        string       `json:"query"`
	SubmittedAt  int64        `json:"submittedAt"` // epoch ms
	Status       HandleStatus `json:"status"`
	LastPolledAt *int64       `json:"lastPolledAt,omitempty"`
	CompletedAt  *int64       `json:"completedAt,omitempty"`
	OutputDir    string       `json:"outputDir,omitempty"`
}

// PollStatus is the result of one Poll call.
type PollStatus struct {
	Status   HandleStatus `json:"status"`
	Progress *float64     `json:"progress,omitempty"`
	Message  string       `json:"message,omitempty"`
}

// TestResult is the result of a provider's optional connectivity self-test.
type TestResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ReportStatus is the per-provider status recorded in a run manifest.
type ReportStatus string

const (
	ReportSuccess      ReportStatus = "success"
	ReportError        ReportStatus = "error"
	ReportTimeout      ReportStatus = "timeout"
	ReportSkipped      ReportStatus = "skipped"
	ReportAsyncPending ReportStatus = "async-pending"
)

// Report is the per-provider line written into the run manifest.
type Report struct {
	ID            string       `json:"id"`
	Tier          Tier         `json:"tier"`
	Status        ReportStatus `json:"status"`
	DurationMs    int64        `json:"durationMs"`
	WordCount     int          `json:"wordCount"`
	CitationCount int          `json:"citationCount"`
	OutputFile    string       `json:"outputFile,omitempty"`
	MetaFile      string       `json:"metaFile,omitempty"`
	Error         string       `json:"error,omitempty"`
	FallbackFor   string       `json:"fallbackFor,omitempty"`
}

// Succeeded reports whether this report counts as a success for exit-code
// and fallback-accounting purposes.
func (r Report) Succeeded() bool {
	return r.Status == ReportSuccess || r.Status == ReportAsyncPending
}

// DedupedSource is one deduplicated citation bucket.
type DedupedSource struct {
	URL           string   `json:"url"`
	NormalizedURL string   `json:"normalizedUrl"`
	Title         string   `json:"title,omitempty"`
	Providers     []string `json:"providers"`
	CitationCount int      `json:"citationCount"`
}

// SourcesSummary is the manifest's "sources" block.
type SourcesSummary struct {
	Total  int    `json:"total"`
	Unique int    `json:"unique"`
	File   string `json:"file"`
}

// DispatchMode selects how the dispatcher routes deep-research providers.
type DispatchMode string

const (
	ModeSync  DispatchMode = "sync"
	ModeAsync DispatchMode = "async"
	ModeMixed DispatchMode = "mixed"
)

// Manifest is the canonical run record persisted as run.json.
type Manifest struct {
	Version    int            `json:"version"`
	Timestamp  int64          `json:"timestamp"` // epoch seconds
	Slug       string         `json:"slug"`
	Query      string         `json:"query"`
	Mode       DispatchMode   `json:"mode"`
	OutputDir  string         `json:"outputDir"`
	Providers  []Report       `json:"providers"`
	Sources    SourcesSummary `json:"sources"`
	AsyncTasks []Handle       `json:"asyncTasks"`
	ExitCode   int            `json:"exitCode"`
}

// RetryConfig controls exponential-backoff retry behaviour for the HTTP
// client. The zero value disables retries.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns the default retry policy: 3 retries, 1s
// initial delay, doubling each attempt.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     8 * time.Second,
	}
}
