// Package normalize implements the citation normalizer and cross-provider
// deduplicator: URL canonicalization as a pure function, and
// dedup/ranking over a batch of citations.
package normalize

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParams are stripped during canonicalization.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"ref":          {},
	"fbclid":       {},
	"gclid":        {},
	"msclkid":      {},
	"mc_cid":       {},
	"mc_eid":       {},
}

// CanonicalizeURL derives a best-effort dedup key for url: lowercase the
// host, strip a leading "www.", drop tracking query parameters, then
// rebuild as host+path[+?query][+#fragment] with trailing slashes
// stripped. On parse failure it falls back to lowercase + trailing-slash
// strip of the raw string.
func CanonicalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(strings.ToLower(raw), "/")
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")

	path := strings.TrimRight(u.Path, "/")

	var kept []string
	if u.RawQuery != "" {
		for _, pair := range strings.Split(u.RawQuery, "&") {
			if pair == "" {
				continue
			}
			key := pair
			if i := strings.IndexByte(pair, '='); i >= 0 {
				key = pair[:i]
			}
			if _, tracked := trackingParams[key]; tracked {
				continue
			}
			kept = append(kept, pair)
		}
	}

	var b strings.Builder
	b.WriteString(host)
	b.WriteString(path)
	if len(kept) > 0 {
		b.WriteByte('?')
		b.WriteString(strings.Join(kept, "&"))
	}
	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(u.Fragment)
	}

	return strings.TrimRight(b.String(), "/")
}
