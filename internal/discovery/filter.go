package discovery

import "strings"

// DefaultExcludedDomains lists URL substrings of government and regional sites
// that rarely host company reports. Matching is plain substring containment.
var DefaultExcludedDomains = []string{
	".gov", ".us", ".ca", ".au", ".nz", ".jp", ".cn", ".kr", ".in", ".br",
}

// DefaultRelevanceKeywords marks results that look like investor material.
var DefaultRelevanceKeywords = []string{
	"investor", "annual report", "financial report", "investor relations",
	"annual-report", "financial", "shareholders", "annual results", "reports",
}

// FilterExcluded drops results whose URL contains any excluded substring.
// Order is preserved.
func FilterExcluded(results []SearchResult, excluded []string) []SearchResult {
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if containsAny(strings.ToLower(r.URL), excluded) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// FilterRelevant keeps results whose title or URL carries a relevance keyword.
// An empty keyword list keeps everything.
func FilterRelevant(results []SearchResult, keywords []string) []SearchResult {
	if len(keywords) == 0 {
		return results
	}
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if containsAny(strings.ToLower(r.Title+" "+r.URL), keywords) {
			out = append(out, r)
		}
	}
	return out
}

// uniqueResults drops repeated URLs and caps the slice at limit entries.
func uniqueResults(results []SearchResult, limit int) []SearchResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
