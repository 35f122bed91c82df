package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanix-darker/librarium/internal/provider"
)

// TestDedup_SortsByCitationCountWithFirstSeenTieBreak: A (p1) once, A/
// (p2) twice -> 3 total for A; B (p1) once.
func TestDedup_SortsByCitationCountWithFirstSeenTieBreak(t *testing.T) {
	citations := []provider.Citation{
		{URL: "https://A/x", Provider: "p1", Title: "Title A"},
		{URL: "https://www.A/x/", Provider: "p2"},
		{URL: "https://www.A/x/", Provider: "p2"},
		{URL: "https://B/y", Provider: "p1"},
	}

	deduped := Dedup(citations)
	require.Len(t, deduped, 2)
	assert.Equal(t, 3, deduped[0].CitationCount)
	assert.Equal(t, "https://A/x", deduped[0].URL)
	assert.Equal(t, "Title A", deduped[0].Title)
	assert.Equal(t, []string{"p1", "p2"}, deduped[0].Providers)
	assert.Equal(t, 1, deduped[1].CitationCount)
}

func TestDedup_SkipsEmptyURLs(t *testing.T) {
	citations := []provider.Citation{{URL: "", Provider: "p1"}}
	assert.Empty(t, Dedup(citations))
}

func TestDedup_IsIdempotentModuloProviderOrder(t *testing.T) {
	citations := []provider.Citation{
		{URL: "https://a.com", Provider: "p1"},
		{URL: "https://a.com", Provider: "p2"},
	}
	first := Dedup(citations)

	var asCitations []provider.Citation
	for _, s := range first {
		for i := 0; i < s.CitationCount; i++ {
			asCitations = append(asCitations, provider.Citation{URL: s.URL, Provider: s.Providers[i%len(s.Providers)]})
		}
	}
	second := Dedup(asCitations)

	require.Len(t, second, 1)
	assert.Equal(t, first[0].CitationCount, second[0].CitationCount)
}

func TestDedup_CountsDuplicateCitationsFromSameProvider(t *testing.T) {
	citations := []provider.Citation{
		{URL: "https://a.com", Provider: "p1"},
		{URL: "https://a.com", Provider: "p1"},
	}
	deduped := Dedup(citations)
	require.Len(t, deduped, 1)
	assert.Equal(t, 2, deduped[0].CitationCount)
	assert.Equal(t, []string{"p1"}, deduped[0].Providers)
}
