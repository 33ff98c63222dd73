package discovery

import (
	"net/url"
	"strings"
)

// Score weights.
const (
	DocumentBonus         = 3
	FinancialKeywordBonus = 2
	AnnualKeywordBonus    = 3
	DownloadBonus         = 2
	// ConfirmedScore is the flat score of a probed pattern or template URL.
	ConfirmedScore = 10
)

// ScoringRules configures keyword and document detection.
type ScoringRules struct {
	FinancialKeywords    []string
	AnnualKeywords       []string
	DocumentExtensions   []string
	DocumentPathSegments []string
	// DownloadKeywords earn DownloadBonus for download-control candidates.
	DownloadKeywords []string
}

// DefaultScoringRules returns the stock keyword sets.
func DefaultScoringRules() ScoringRules {
	return ScoringRules{
		FinancialKeywords:    []string{"financial", "finanz", "financier"},
		AnnualKeywords:       []string{"annual", "yearly", "jahresbericht", "annuel", "informe anual"},
		DocumentExtensions:   []string{".pdf"},
		DocumentPathSegments: []string{"/pdf/"},
		DownloadKeywords:     []string{"download"},
	}
}

// Scorer assigns relevance scores to candidates.
type Scorer struct {
	rules ScoringRules
	clock Clock
}

// NewScorer builds a scorer. The clock supplies the reference year for recency.
func NewScorer(rules ScoringRules, clock Clock) *Scorer {
	return &Scorer{rules: rules, clock: clock}
}

// Score computes the keyword score for a link found on a page.
func (s *Scorer) Score(c Candidate) int {
	score := 0
	if c.IsDocument {
		score += DocumentBonus
	}
	haystack := strings.ToLower(c.DisplayText + " " + c.URL)
	if containsAny(haystack, s.rules.FinancialKeywords) {
		score += FinancialKeywordBonus
	}
	if containsAny(haystack, s.rules.AnnualKeywords) {
		score += AnnualKeywordBonus
	}
	if c.Step == StepDownloadControl && containsAny(haystack, s.rules.DownloadKeywords) {
		score += DownloadBonus
	}
	return score + s.RecencyBonus(c.Year)
}

// RecencyBonus rewards recent years: the current year earns 10, the two
// before it 8 and 6, anything else within five years (future years included)
// 4, and older years 2. A missing or malformed year earns nothing.
func (s *Scorer) RecencyBonus(year string) int {
	y := yearValue(year)
	if y == 0 {
		return 0
	}
	current := s.clock.Now().Year()
	switch {
	case y == current:
		return 10
	case y == current-1:
		return 8
	case y == current-2:
		return 6
	case y >= current-5:
		return 4
	default:
		return 2
	}
}

// IsDocument reports whether rawURL points at a downloadable document.
func (s *Scorer) IsDocument(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	path := lower
	if u, err := url.Parse(lower); err == nil && u.Path != "" {
		path = u.Path
	}
	for _, ext := range s.rules.DocumentExtensions {
		if strings.HasSuffix(lower, ext) || strings.HasSuffix(path, ext) {
			return true
		}
	}
	return containsAny(lower, s.rules.DocumentPathSegments)
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
