package normalize

import (
	"sort"

	"github.com/sanix-darker/librarium/internal/provider"
)

// Dedup buckets citations by CanonicalizeURL(citation.URL), skipping
// citations with an empty URL, and returns one DedupedSource per bucket,
// sorted by citationCount descending with ties broken in first-seen
// order.
func Dedup(citations []provider.Citation) []provider.DedupedSource {
	type bucket struct {
		source    provider.DedupedSource
		providers map[string]struct{}
	}

	order := make([]string, 0, len(citations))
	buckets := make(map[string]*bucket, len(citations))

	for _, c := range citations {
		if c.URL == "" {
			continue
		}
		key := CanonicalizeURL(c.URL)

		b, ok := buckets[key]
		if !ok {
			b = &bucket{
				source: provider.DedupedSource{
					URL:           c.URL,
					NormalizedURL: key,
					Title:         c.Title,
				},
				providers: map[string]struct{}{},
			}
			buckets[key] = b
			order = append(order, key)
		}

		b.source.CitationCount++
		if b.source.Title == "" && c.Title != "" {
			b.source.Title = c.Title
		}
		if c.Provider != "" {
			if _, seen := b.providers[c.Provider]; !seen {
				b.providers[c.Provider] = struct{}{}
				b.source.Providers = append(b.source.Providers, c.Provider)
			}
		}
	}

	out := make([]provider.DedupedSource, 0, len(order))
	for _, key := range order {
		out = append(out, buckets[key].source)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CitationCount > out[j].CitationCount
	})

	return out
}
