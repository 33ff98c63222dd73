package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/JakeFAU/report-discovery/internal/discovery"
)

//go:embed templates.yaml
var defaultTemplates []byte

// TemplateTable is the on-disk shape of the known-entity URL table.
type TemplateTable struct {
	Templates      []discovery.URLTemplate `yaml:"templates"`
	QueryOverrides map[string][]string     `yaml:"query_overrides"`
}

// LoadTemplates reads the URL template table at path, or the built-in table
// when path is empty.
func LoadTemplates(path string) (TemplateTable, error) {
	data := defaultTemplates
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return TemplateTable{}, fmt.Errorf("read templates %s: %w", path, err)
		}
		data = raw
	}
	var table TemplateTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return TemplateTable{}, fmt.Errorf("%w: parse templates: %v", ErrInvalid, err)
	}
	for i, tmpl := range table.Templates {
		if strings.TrimSpace(tmpl.Name) == "" || len(tmpl.URLs) == 0 {
			return TemplateTable{}, fmt.Errorf("%w: template %d needs a name and at least one url", ErrInvalid, i)
		}
	}
	return table, nil
}

// QueryTemplates returns the stock query set with the table's overrides
// merged on top. Override keys match entity names exactly.
func (t TemplateTable) QueryTemplates() discovery.QueryTemplates {
	q := discovery.DefaultQueryTemplates()
	if len(t.QueryOverrides) == 0 {
		return q
	}
	merged := make(map[string][]string, len(q.Overrides)+len(t.QueryOverrides))
	for k, v := range q.Overrides {
		merged[k] = v
	}
	for k, v := range t.QueryOverrides {
		merged[strings.TrimSpace(k)] = v
	}
	q.Overrides = merged
	return q
}
