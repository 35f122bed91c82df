package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sanix-darker/librarium/internal/config"
	"github.com/sanix-darker/librarium/internal/provider"
)

// Run bundles everything WriteRun needs to persist one dispatch's output.
type Run struct {
	Query      string
	Mode       provider.DispatchMode
	Reports    []provider.Report
	Sources    []provider.DedupedSource
	AsyncTasks []provider.Handle
	Timestamp  time.Time
}

// RunDir computes `<baseDir>/<unix-timestamp>-<slug>/` for a query and
// timestamp without touching the filesystem.
func RunDir(baseDir, query string, ts time.Time) string {
	dirName := fmt.Sprintf("%d-%s", ts.Unix(), Slug(query))
	return filepath.Join(baseDir, dirName)
}

// EnsureRunDir computes RunDir and creates it (and any missing parents).
// Callers that need the directory before dispatching provider tasks (so
// per-provider artifacts can land in it) call this first, then pass the
// same path through as the dispatch request's output directory.
func EnsureRunDir(baseDir, query string, ts time.Time) (string, error) {
	runDir := RunDir(baseDir, query, ts)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("artifact: failed to create run directory %s: %w", runDir, err)
	}
	return runDir, nil
}

// WriteRun creates `<baseDir>/<unix-timestamp>-<slug>/` (if not already
// present) and writes prompt.md, sources.json, summary.md, run.json, and
// (iff any async handle exists) async-tasks.json into it. It
// returns the run directory path.
func WriteRun(baseDir string, run Run) (string, error) {
	runDir, err := EnsureRunDir(baseDir, run.Query, run.Timestamp)
	if err != nil {
		return "", err
	}

	if err := writePrompt(runDir, run); err != nil {
		return "", err
	}
	if err := writeSources(runDir, run.Sources); err != nil {
		return "", err
	}
	if err := writeSummary(runDir, run); err != nil {
		return "", err
	}
	if len(run.AsyncTasks) > 0 {
		if err := writeAsyncTasks(runDir, run.AsyncTasks); err != nil {
			return "", err
		}
	}
	if err := writeManifest(runDir, run); err != nil {
		return "", err
	}

	return runDir, nil
}

func writePrompt(runDir string, run Run) error {
	content := fmt.Sprintf("# %s\n\n_%s_\n", run.Query, run.Timestamp.UTC().Format(time.RFC3339))
	return config.AtomicWriteFile(filepath.Join(runDir, "prompt.md"), []byte(content), 0o644)
}

func writeSources(runDir string, sources []provider.DedupedSource) error {
	if sources == nil {
		sources = []provider.DedupedSource{}
	}
	raw, err := json.MarshalIndent(sources, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: failed to marshal sources.json: %w", err)
	}
	return config.AtomicWriteFile(filepath.Join(runDir, "sources.json"), raw, 0o644)
}

func writeAsyncTasks(runDir string, tasks []provider.Handle) error {
	raw, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: failed to marshal async-tasks.json: %w", err)
	}
	return config.AtomicWriteFile(filepath.Join(runDir, "async-tasks.json"), raw, 0o644)
}

func writeManifest(runDir string, run Run) error {
	manifest := provider.Manifest{
		Version:   1,
		Timestamp: run.Timestamp.Unix(),
		Slug:      Slug(run.Query),
		Query:     run.Query,
		Mode:      run.Mode,
		OutputDir: runDir,
		Providers: run.Reports,
		Sources: provider.SourcesSummary{
			Total:  totalCitations(run.Reports),
			Unique: len(run.Sources),
			File:   "sources.json",
		},
		AsyncTasks: run.AsyncTasks,
		ExitCode:   ExitCode(run.Reports),
	}
	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: failed to marshal run.json: %w", err)
	}
	return config.AtomicWriteFile(filepath.Join(runDir, "run.json"), raw, 0o644)
}

func writeSummary(runDir string, run Run) error {
	var b strings.Builder

	success, failed, pending := 0, 0, 0
	var maxDuration int64
	for _, r := range run.Reports {
		switch r.Status {
		case provider.ReportSuccess:
			success++
		case provider.ReportAsyncPending:
			pending++
		default:
			failed++
		}
		if r.DurationMs > maxDuration {
			maxDuration = r.DurationMs
		}
	}

	fmt.Fprintf(&b, "# Research summary\n\n")
	fmt.Fprintf(&b, "**Query:** %s\n\n", run.Query)
	fmt.Fprintf(&b, "- success: %d\n- failed: %d\n- async-pending: %d\n", success, failed, pending)
	fmt.Fprintf(&b, "- elapsed: %dms\n", maxDuration)
	fmt.Fprintf(&b, "- unique sources: %d\n\n", len(run.Sources))

	fmt.Fprintf(&b, "## Providers\n\n")
	sortedReports := append([]provider.Report(nil), run.Reports...)
	sort.Slice(sortedReports, func(i, j int) bool { return sortedReports[i].ID < sortedReports[j].ID })
	for _, r := range sortedReports {
		fmt.Fprintf(&b, "- `%s` [%s] — %d words, %d citations", r.ID, r.Status, r.WordCount, r.CitationCount)
		if r.Error != "" {
			fmt.Fprintf(&b, " (%s)", r.Error)
		}
		b.WriteString("\n")
	}

	if len(run.Sources) > 0 {
		fmt.Fprintf(&b, "\n## Top sources\n\n")
		top := run.Sources
		if len(top) > 20 {
			top = top[:20]
		}
		for _, s := range top {
			fmt.Fprintf(&b, "- [%s](%s) (%d citations, %s)\n", displayTitle(s), s.URL, s.CitationCount, strings.Join(s.Providers, ", "))
		}
	}

	if len(run.AsyncTasks) > 0 {
		fmt.Fprintf(&b, "\n## Pending async tasks\n\n")
		for _, h := range run.AsyncTasks {
			if h.Status.Terminal() {
				continue
			}
			fmt.Fprintf(&b, "- `%s` (%s): %s\n", h.Provider, h.TaskID, h.Status)
		}
	}

	return config.AtomicWriteFile(filepath.Join(runDir, "summary.md"), []byte(b.String()), 0o644)
}

func displayTitle(s provider.DedupedSource) string {
	if s.Title != "" {
		return s.Title
	}
	return s.URL
}

func totalCitations(reports []provider.Report) int {
	total := 0
	for _, r := range reports {
		total += r.CitationCount
	}
	return total
}

// ExitCode derives the process exit code from a run's provider reports
//: first build the "effective" report
// list by removing the primary error report of any provider whose
// fallback succeeded, then: 0 if every effective report succeeded or is
// async-pending, 1 if at least one failed but at least one succeeded, 2
// if every effective report failed (or there were no reports at all).
func ExitCode(reports []provider.Report) int {
	effective := effectiveReports(reports)
	if len(effective) == 0 {
		return 2
	}
	success, failure := 0, 0
	for _, r := range effective {
		if r.Succeeded() {
			success++
		} else {
			failure++
		}
	}
	switch {
	case failure == 0:
		return 0
	case success == 0:
		return 2
	default:
		return 1
	}
}

// effectiveReports drops the primary error report of any provider id whose
// fallback recovered it.
func effectiveReports(reports []provider.Report) []provider.Report {
	recovered := make(map[string]bool)
	for _, r := range reports {
		if r.FallbackFor != "" && r.Succeeded() {
			recovered[r.FallbackFor] = true
		}
	}

	var out []provider.Report
	for _, r := range reports {
		if r.FallbackFor == "" && recovered[r.ID] {
			continue
		}
		out = append(out, r)
	}
	return out
}
