// Package config is responsible for bootstrapping the application's Viper
// instance. It wires the config file search paths, environment variables, a
// local .env file, and command-line flags into one source, so that the
// typed loader in internal/config sees a single merged view.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment variable, e.g.
// REPORTFINDER_DAILY_REQUEST_LIMIT or REPORTFINDER_SEARCH_SERPAPI_API_KEY.
const EnvPrefix = "REPORTFINDER"

// FlagKeys maps root persistent flags to the config keys they override.
var FlagKeys = map[string]string{
	"daily-request-limit":     "daily_request_limit",
	"max-results-per-query":   "max_results_per_query",
	"max-secondary-results":   "max_secondary_results",
	"output":                  "output_path",
	"request-timeout-seconds": "request_timeout_seconds",
	"backend":                 "search.backend",
	"log-level":               "logging.level",
	"dev":                     "logging.development",
}

// New returns a Viper instance ready for internal/config.Load.
//
// When cfgFile is empty, a file named "reportfinder" (any supported
// extension) is searched for in the working directory, $HOME/.reportfinder
// and /etc/reportfinder. A missing file there is not an error; the caller
// proceeds with defaults and environment variables.
//
// Precedence, highest first: changed flags, environment, config file,
// defaults. Flags that were not set on the command line do not shadow the
// lower layers.
func New(cfgFile, envFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	// --- .env ---
	// Credentials usually live here. Existing environment variables win.
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	v := viper.New()

	// --- Config file ---
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("reportfinder")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.reportfinder")
		v.AddConfigPath("/etc/reportfinder")
	}

	// --- Environment ---
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// --- Flags ---
	if flags != nil {
		for name, key := range FlagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}
	return v, nil
}

func loadDotEnv(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
