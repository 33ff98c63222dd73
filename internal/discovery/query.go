package discovery

import (
	"iter"
	"sort"
	"strings"
	"unicode"
)

// minimalQuery is used when every configured template list is empty.
const minimalQuery = "{name} annual report"

// QueryTemplates holds the query patterns. Templates may reference {name}
// (the raw entity name) and {normalized} (see NormalizeName).
type QueryTemplates struct {
	Standard  []string
	Region    []string
	Retry     []string
	Fallback  string
	Overrides map[string][]string
	// LegalSuffixes are stripped from the end of names during normalization.
	LegalSuffixes []string
}

// DefaultQueryTemplates returns the stock query set.
func DefaultQueryTemplates() QueryTemplates {
	return QueryTemplates{
		Standard: []string{"{name} annual report pdf"},
		Region: []string{
			"{normalized} european financial report",
			"{normalized} europe investor relations annual report",
			"{name} financial statements EU",
		},
		Retry: []string{
			"{name} European Union annual report",
			"{normalized} EU headquarters financial report",
			"{name} consolidated annual report Europe",
		},
		Fallback: "{normalized} europe annual financial report pdf",
		Overrides: map[string][]string{
			"FCC": {
				"FCC Group Spain annual report pdf",
				"Fomento de Construcciones y Contratas annual report",
				"FCC Spain financial report",
				"FCC construction Spain investor relations",
			},
			"ENI S P A": {
				"ENI SpA Italy annual report pdf",
				"ENI energy company Italy financial report",
				"ENI oil and gas financial statements",
				"ENI SpA investor relations report",
			},
		},
		LegalSuffixes: []string{"PLC", "AG", "NV", "AB", "GROUP", "S P A", "SPA", "INC", "LTD", "SE", "SA"},
	}
}

type queryGroup struct {
	templates []string
	strategy  QueryStrategy
}

// QueryBuilder turns an Entity into an ordered, lazy sequence of queries.
type QueryBuilder struct {
	templates QueryTemplates
	suffixes  []string
}

// NewQueryBuilder builds a QueryBuilder over the given templates.
func NewQueryBuilder(templates QueryTemplates) *QueryBuilder {
	suffixes := make([]string, 0, len(templates.LegalSuffixes))
	for _, s := range templates.LegalSuffixes {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			suffixes = append(suffixes, s)
		}
	}
	// Longest first so "GROUP PLC" style suffixes are removed in one pass.
	sort.SliceStable(suffixes, func(i, j int) bool { return len(suffixes[i]) > len(suffixes[j]) })
	return &QueryBuilder{templates: templates, suffixes: suffixes}
}

// Build yields override queries (when the name matches exactly), or the
// standard and region sets, followed by the retry set. Duplicates are skipped
// and at least one query is always produced. Consumers may stop early.
func (b *QueryBuilder) Build(e Entity) iter.Seq[Query] {
	return func(yield func(Query) bool) {
		normalized := b.Normalize(e.Name)
		seen := make(map[string]struct{})
		emitted := 0
		emit := func(tmpl string, strategy QueryStrategy) bool {
			text := expandQuery(tmpl, e.Name, normalized)
			if text == "" {
				return true
			}
			if _, ok := seen[text]; ok {
				return true
			}
			seen[text] = struct{}{}
			emitted++
			return yield(Query{Text: text, Strategy: strategy})
		}

		var groups []queryGroup
		if overrides, ok := b.templates.Overrides[e.Name]; ok && len(overrides) > 0 {
			groups = append(groups, queryGroup{overrides, StrategyOverride})
		} else {
			groups = append(groups,
				queryGroup{b.templates.Standard, StrategyStandard},
				queryGroup{b.templates.Region, StrategyRegion},
			)
		}
		groups = append(groups, queryGroup{b.templates.Retry, StrategyRetry})

		for _, g := range groups {
			for _, tmpl := range g.templates {
				if !emit(tmpl, g.strategy) {
					return
				}
			}
		}
		if emitted == 0 {
			emit(minimalQuery, StrategyStandard)
		}
	}
}

// Fallback returns the last-resort query used when the main sequence finds nothing.
func (b *QueryBuilder) Fallback(e Entity) Query {
	tmpl := b.templates.Fallback
	if strings.TrimSpace(tmpl) == "" {
		tmpl = minimalQuery
	}
	return Query{Text: expandQuery(tmpl, e.Name, b.Normalize(e.Name)), Strategy: StrategyFallback}
}

// Normalize strips trailing legal-entity markers, drops punctuation, lowercases
// and collapses whitespace: "Vodafone Group PLC" becomes "vodafone".
func (b *QueryBuilder) Normalize(name string) string {
	trimmed := strings.TrimSpace(name)
	for stripped := true; stripped; {
		stripped = false
		for _, suffix := range b.suffixes {
			cut := len(trimmed) - len(suffix)
			if cut > 0 && trimmed[cut-1] == ' ' && strings.EqualFold(trimmed[cut:], suffix) {
				trimmed = strings.TrimSpace(trimmed[:cut])
				stripped = true
				break
			}
		}
	}
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, trimmed)
	return strings.Join(strings.Fields(cleaned), " ")
}

func expandQuery(tmpl, name, normalized string) string {
	r := strings.NewReplacer("{name}", strings.TrimSpace(name), "{normalized}", normalized)
	return strings.Join(strings.Fields(r.Replace(tmpl)), " ")
}
