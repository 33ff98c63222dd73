package discovery

import (
	"strconv"
	"time"
)

// Tier labels an output row as the best candidate or one of the runners-up.
type Tier string

// Output tiers.
const (
	TierPrimary   Tier = "PRIMARY"
	TierSecondary Tier = "SECONDARY"
)

// Entity is a named subject (usually a company) a source document is sought for.
type Entity struct {
	ID   string
	Name string
}

// Key identifies the entity inside an output table. The external ID wins when present.
func (e Entity) Key() string {
	if e.ID != "" {
		return "id:" + e.ID
	}
	return "name:" + e.Name
}

// QueryStrategy tags how a query string was generated.
type QueryStrategy string

// Query strategies in the order the builder emits them.
const (
	StrategyOverride QueryStrategy = "override"
	StrategyStandard QueryStrategy = "standard"
	StrategyRegion   QueryStrategy = "region"
	StrategyRetry    QueryStrategy = "retry"
	StrategyFallback QueryStrategy = "fallback"
)

// Query is a search string derived from an Entity.
type Query struct {
	Text     string
	Strategy QueryStrategy
}

// SearchResult is one hit returned by a search backend, already unwrapped to
// its final destination URL.
type SearchResult struct {
	Title string
	URL   string
}

// Step names the extraction step that produced a Candidate.
type Step string

// Extraction steps, in priority order.
const (
	StepDirectLink      Step = "direct_link"
	StepDownloadControl Step = "download_control"
	StepGuessedPattern  Step = "guessed_pattern"
	StepKnownTemplate   Step = "known_template"
)

// Candidate is one discovered, scored reference to a possible source document.
type Candidate struct {
	URL         string
	DisplayText string
	// Year is a 4-digit string starting with "20", or empty when none was found.
	Year       string
	IsDocument bool
	Score      int
	Step       Step
	// Source is the page the candidate was found on. Empty for direct template probes.
	Source string
}

// YearValue returns the numeric year, or 0 when the year is missing or not numeric.
func (c Candidate) YearValue() int {
	return yearValue(c.Year)
}

// RankedResult is a Candidate annotated with its position for one Entity.
type RankedResult struct {
	Candidate
	Rank int
	Tier Tier
}

// OutputRow is one line of the fixed-width output table.
type OutputRow struct {
	ID    string
	Name  string
	Tier  Tier
	Rank  int
	URL   string
	Year  string
	Score int
}

// Page is a fetched HTML document.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    map[string][]string
	Body       []byte
	Duration   time.Duration
}

// BaseURL returns the URL relative links on the page resolve against.
func (p Page) BaseURL() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

func yearValue(year string) int {
	if year == "" {
		return 0
	}
	n, err := strconv.Atoi(year)
	if err != nil {
		return 0
	}
	return n
}
