package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"
)

// placeholderSerpAPIKey marks a credential the operator still has to fill in.
const placeholderSerpAPIKey = "your-serpapi-key"

// TemplatePathFor returns where the template for configPath is written:
// settings.yaml becomes settings.template.yaml in the same directory.
func TemplatePathFor(configPath string) string {
	if strings.TrimSpace(configPath) == "" {
		return "reportfinder.template.yaml"
	}
	ext := filepath.Ext(configPath)
	return strings.TrimSuffix(configPath, ext) + ".template.yaml"
}

// WriteTemplate writes a YAML file holding every key at its default value.
func WriteTemplate(path string) error {
	v := viper.New()
	SetDefaults(v)
	v.Set("search.serpapi.api_key", placeholderSerpAPIKey)

	out, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create template dir: %w", err)
		}
	}
	header := []byte("# reportfinder configuration. Environment variables use the REPORTFINDER_ prefix.\n")
	if err := os.WriteFile(path, append(header, out...), 0o600); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	return nil
}
