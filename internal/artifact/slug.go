// Package artifact implements the run artifact writer: per-run directory
// creation and the prompt/sources/summary/run manifest files it writes
// into that directory.
package artifact

import (
	"regexp"
	"strings"
)

var (
	disallowedChars = regexp.MustCompile(`[^a-z0-9\s-]`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	dashRun         = regexp.MustCompile(`-+`)
)

// Slug derives a filesystem-safe run-directory component from a query:
// lowercase, drop everything outside [a-z0-9\s-], collapse whitespace to
// a single "-", collapse runs of "-", trim leading/trailing "-", and
// truncate to 40 characters.
func Slug(query string) string {
	s := strings.ToLower(query)
	s = disallowedChars.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, "-")
	s = dashRun.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 40 {
		s = s[:40]
		s = strings.TrimRight(s, "-")
	}
	return s
}
