// Package dispatch implements the bounded-parallel fan-out that runs one
// provider task per selected id, writes its artifacts, and folds the
// outcome into a run manifest.
package dispatch

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sanix-darker/librarium/internal/artifact"
	"github.com/sanix-darker/librarium/internal/config"
	"github.com/sanix-darker/librarium/internal/normalize"
	"github.com/sanix-darker/librarium/internal/provider"
	"github.com/sanix-darker/librarium/internal/providers"
)

// EventKind names a dispatcher progress event.
type EventKind string

const (
	EventStarted         EventKind = "started"
	EventCompleted       EventKind = "completed"
	EventError           EventKind = "error"
	EventAsyncSubmitted  EventKind = "async-submitted"
	EventFallbackStarted EventKind = "fallback-started"
)

// Event is one progress notification emitted during a run.
type Event struct {
	Kind       EventKind
	ProviderID string
	Message    string
}

// EventSink receives progress events. Emit must not block; a full or
// uninterested sink should drop the event.
type EventSink interface {
	Emit(Event)
}

// emit forwards e to the sink, if any. The call is synchronous: it returns
// when the sink's Emit returns, so the dispatcher relies on sinks honouring
// the non-blocking EventSink contract.
func emit(sink EventSink, e Event) {
	if sink == nil {
		return
	}
	sink.Emit(e)
}

// Request is the dispatcher's input.
type Request struct {
	Config      *config.Config
	ProviderIDs []string
	Query       string
	OutputDir   string
	Mode        provider.DispatchMode
	Sink        EventSink
}

// Result is the dispatcher's output: the manifest's raw ingredients before
// the artifact writer assembles run.json.
type Result struct {
	Reports    []provider.Report
	AsyncTasks []provider.Handle
	Sources    []provider.DedupedSource
}

// Dispatcher resolves providers from a registry and runs them.
type Dispatcher struct {
	Registry *provider.Registry
}

// New returns a Dispatcher against the given registry.
func New(reg *provider.Registry) *Dispatcher {
	return &Dispatcher{Registry: reg}
}

var sanitizeID = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeID replaces any character outside [A-Za-z0-9._-] with "_" so an
// id is safe to use as a filename.
func SanitizeID(id string) string {
	return sanitizeID.ReplaceAllString(id, "_")
}

type taskOutcome struct {
	reports   []provider.Report
	asyncTask *provider.Handle
	citations []provider.Citation
}

// Run executes every selected provider id, bounded to maxParallel concurrent tasks, and returns once every
// task has settled.
func (d *Dispatcher) Run(ctx context.Context, req Request) (*Result, error) {
	maxParallel := req.Config.Defaults.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}
	sem := semaphore.NewWeighted(int64(maxParallel))

	outcomes := make([]taskOutcome, len(req.ProviderIDs))
	var wg sync.WaitGroup

	for i, id := range req.ProviderIDs {
		i, id := i, id
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = taskOutcome{reports: []provider.Report{{ID: id, Status: provider.ReportError, Error: ctx.Err().Error()}}}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = d.runTask(ctx, req, id)
		}()
	}
	wg.Wait()

	var (
		allReports []provider.Report
		asyncTasks []provider.Handle
		citations  []provider.Citation
	)
	for _, o := range outcomes {
		allReports = append(allReports, o.reports...)
		if o.asyncTask != nil {
			asyncTasks = append(asyncTasks, *o.asyncTask)
		}
		citations = append(citations, o.citations...)
	}

	return &Result{
		Reports:    allReports,
		AsyncTasks: asyncTasks,
		Sources:    normalize.Dedup(citations),
	}, nil
}

func (d *Dispatcher) runTask(ctx context.Context, req Request, id string) taskOutcome {
	// Step 1: resolve provider from registry.
	desc, ok := d.Registry.Descriptor(id)
	if !ok {
		return taskOutcome{reports: []provider.Report{{
			ID: id, Status: provider.ReportError, Error: fmt.Sprintf("Provider %q not found", id),
		}}}
	}

	// Step 2: read provider config entry.
	entry, hasEntry := req.Config.Providers[id]
	if !hasEntry {
		if canon := provider.CanonicalID(id); canon != id {
			entry, hasEntry = req.Config.Providers[canon]
		}
	}
	if !hasEntry || !entry.Enabled {
		return taskOutcome{reports: []provider.Report{{ID: id, Tier: desc.Tier, Status: provider.ReportSkipped}}}
	}

	apiKey, _ := config.ResolveAPIKey(entry.APIKey)
	p, err := d.Registry.Get(id, provider.Entry{ID: id, APIKey: apiKey, Model: entry.Model, Options: entry.Options})
	if err != nil {
		return taskOutcome{reports: []provider.Report{{
			ID: id, Tier: desc.Tier, Status: provider.ReportError, Error: err.Error(),
		}}}
	}

	emit(req.Sink, Event{Kind: EventStarted, ProviderID: id})

	timeout := time.Duration(req.Config.Defaults.Timeout) * time.Second
	opts := provider.ExecuteOptions{Timeout: timeout}

	if req.Mode != provider.ModeSync && desc.Tier == provider.TierDeepResearch && desc.Capabilities.Submit {
		if outcome, handled := d.runAsync(ctx, req, id, desc, p, opts); handled {
			return outcome
		}
		// Submit failed: fall through to synchronous execution.
	}

	return d.runSync(ctx, req, id, desc, p, entry, opts, false)
}

func (d *Dispatcher) runAsync(ctx context.Context, req Request, id string, desc provider.Descriptor, p provider.Provider, opts provider.ExecuteOptions) (taskOutcome, bool) {
	handle, err := p.Submit(ctx, req.Query, opts)
	if err != nil {
		return taskOutcome{}, false
	}
	handle.OutputDir = req.OutputDir

	if handle.Status.Terminal() && desc.Capabilities.Retrieve {
		result, retrErr := p.Retrieve(ctx, handle)
		if retrErr != nil {
			emit(req.Sink, Event{Kind: EventError, ProviderID: id, Message: retrErr.Error()})
			return taskOutcome{reports: []provider.Report{{ID: id, Tier: desc.Tier, Status: provider.ReportError, Error: retrErr.Error()}}}, true
		}
		return d.finishSync(req, id, desc, result), true
	}

	emit(req.Sink, Event{Kind: EventAsyncSubmitted, ProviderID: id})
	h := handle
	return taskOutcome{
		reports:   []provider.Report{{ID: id, Tier: desc.Tier, Status: provider.ReportAsyncPending}},
		asyncTask: &h,
	}, true
}

func (d *Dispatcher) runSync(ctx context.Context, req Request, id string, desc provider.Descriptor, p provider.Provider, entry config.ProviderEntry, opts provider.ExecuteOptions, isFallback bool) taskOutcome {
	result, err := p.Execute(ctx, req.Query, opts)
	if err != nil {
		emit(req.Sink, Event{Kind: EventError, ProviderID: id, Message: err.Error()})
		report := provider.Report{ID: id, Tier: desc.Tier, Status: provider.ReportError, Error: err.Error()}
		outcome := taskOutcome{reports: []provider.Report{report}}

		if isFallback {
			return outcome
		}
		if fb, ok := d.tryFallback(ctx, req, id, entry); ok {
			outcome.reports = append(outcome.reports, fb.reports...)
			outcome.citations = append(outcome.citations, fb.citations...)
		}
		return outcome
	}

	return d.finishSync(req, id, desc, result)
}

func (d *Dispatcher) finishSync(req Request, id string, desc provider.Descriptor, result provider.Result) taskOutcome {
	status := provider.ReportSuccess
	if result.Failed() {
		status = provider.ReportError
	}

	sanitized := SanitizeID(id)
	report := provider.Report{
		ID:            id,
		Tier:          desc.Tier,
		Status:        status,
		DurationMs:    result.DurationMs,
		WordCount:     providers.WordCount(result.Content),
		CitationCount: len(result.Citations),
		Error:         result.Error,
	}
	if status == provider.ReportSuccess {
		report.OutputFile = sanitized + ".md"
		report.MetaFile = sanitized + ".meta.json"
		if err := artifact.WriteProviderFiles(req.OutputDir, sanitized, result); err != nil {
			report.Status = provider.ReportError
			report.Error = err.Error()
		}
	}

	if status == provider.ReportSuccess {
		emit(req.Sink, Event{Kind: EventCompleted, ProviderID: id})
	} else {
		emit(req.Sink, Event{Kind: EventError, ProviderID: id, Message: result.Error})
	}

	return taskOutcome{reports: []provider.Report{report}, citations: result.Citations}
}

// tryFallback is only attempted after a thrown exception from the
// primary's Execute, never after an error-result.
func (d *Dispatcher) tryFallback(ctx context.Context, req Request, originalID string, entry config.ProviderEntry) (taskOutcome, bool) {
	if entry.Fallback == "" {
		return taskOutcome{}, false
	}
	fallbackID := entry.Fallback

	for _, selected := range req.ProviderIDs {
		if selected == fallbackID {
			return taskOutcome{}, false
		}
	}

	desc, ok := d.Registry.Descriptor(fallbackID)
	if !ok {
		return taskOutcome{}, false
	}

	fbEntry, hasFBEntry := req.Config.Providers[fallbackID]
	if !hasFBEntry || !fbEntry.Enabled {
		return taskOutcome{}, false
	}
	apiKey, hasKey := config.ResolveAPIKey(fbEntry.APIKey)
	if !hasKey {
		return taskOutcome{}, false
	}

	p, err := d.Registry.Get(fallbackID, provider.Entry{ID: fallbackID, APIKey: apiKey, Model: fbEntry.Model, Options: fbEntry.Options})
	if err != nil {
		return taskOutcome{}, false
	}

	emit(req.Sink, Event{Kind: EventFallbackStarted, ProviderID: fallbackID})

	timeout := time.Duration(req.Config.Defaults.Timeout) * time.Second
	result, err := p.Execute(ctx, req.Query, provider.ExecuteOptions{Timeout: timeout})
	if err != nil {
		return taskOutcome{reports: []provider.Report{{
			ID: fallbackID, Tier: desc.Tier, Status: provider.ReportError, Error: err.Error(), FallbackFor: originalID,
		}}}, true
	}

	outcome := d.finishSync(req, fallbackID, desc, result)
	for i := range outcome.reports {
		outcome.reports[i].FallbackFor = originalID
	}
	return outcome, true
}
