package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterExcluded(t *testing.T) {
	t.Parallel()

	in := []SearchResult{
		{Title: "SEC", URL: "https://www.sec.gov/filing"},
		{Title: "Acme IR", URL: "https://acme.example/investors"},
		{Title: "Canada", URL: "https://acme.ca/reports"},
		{Title: "Acme AR", URL: "https://acme.example/annual-report"},
	}
	out := FilterExcluded(in, DefaultExcludedDomains)
	assert.Equal(t, []SearchResult{in[1], in[3]}, out)
}

func TestFilterRelevant(t *testing.T) {
	t.Parallel()

	in := []SearchResult{
		{Title: "Acme | Home", URL: "https://acme.example/"},
		{Title: "Investor Relations", URL: "https://acme.example/ir"},
		{Title: "Acme", URL: "https://acme.example/annual-report"},
	}
	assert.Equal(t, []SearchResult{in[1], in[2]}, FilterRelevant(in, DefaultRelevanceKeywords))
	assert.Equal(t, in, FilterRelevant(in, nil))
}

func TestUniqueResultsCapsAndDedupes(t *testing.T) {
	t.Parallel()

	in := []SearchResult{
		{URL: "https://a.example"},
		{URL: "https://a.example"},
		{URL: ""},
		{URL: "https://b.example"},
		{URL: "https://c.example"},
		{URL: "https://d.example"},
	}
	out := uniqueResults(in, 3)
	assert.Equal(t, []SearchResult{{URL: "https://a.example"}, {URL: "https://b.example"}, {URL: "https://c.example"}}, out)
}
