package discovery

import (
	"cmp"
	"slices"
)

// DefaultMaxSecondary is the number of SECONDARY slots per entity.
const DefaultMaxSecondary = 5

// SortCandidates returns a copy ordered by score desc, then year desc.
// Equal keys keep their discovery order.
func SortCandidates(candidates []Candidate) []Candidate {
	out := slices.Clone(candidates)
	slices.SortStableFunc(out, func(a, b Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(b.YearValue(), a.YearValue())
	})
	return out
}

// Dedupe keeps the first occurrence of each exact URL.
func Dedupe(candidates []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.URL]; ok {
			continue
		}
		seen[c.URL] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Rank sorts, deduplicates and labels candidates. The best becomes PRIMARY
// and up to maxSecondary more become SECONDARY; the rest are dropped.
func Rank(candidates []Candidate, maxSecondary int) []RankedResult {
	if maxSecondary < 0 {
		maxSecondary = 0
	}
	unique := Dedupe(SortCandidates(candidates))
	if len(unique) > maxSecondary+1 {
		unique = unique[:maxSecondary+1]
	}
	out := make([]RankedResult, 0, len(unique))
	for i, c := range unique {
		tier := TierSecondary
		if i == 0 {
			tier = TierPrimary
		}
		out = append(out, RankedResult{Candidate: c, Rank: i + 1, Tier: tier})
	}
	return out
}

// BuildRows renders the fixed-width row set for one entity: exactly one
// PRIMARY row and maxSecondary SECONDARY rows, padding with empty url/year.
func BuildRows(e Entity, ranked []RankedResult, maxSecondary int) []OutputRow {
	if maxSecondary < 0 {
		maxSecondary = 0
	}
	rows := make([]OutputRow, 0, maxSecondary+1)
	for i := 0; i <= maxSecondary; i++ {
		row := OutputRow{ID: e.ID, Name: e.Name, Tier: TierSecondary, Rank: i + 1}
		if i == 0 {
			row.Tier = TierPrimary
		}
		if i < len(ranked) {
			row.URL = ranked[i].URL
			row.Year = ranked[i].Year
			row.Score = ranked[i].Score
		}
		rows = append(rows, row)
	}
	return rows
}
