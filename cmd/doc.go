// Package cmd hosts the reportfinder command tree.
//
// Architecture overview:
//   - Bootstrap: the root command builds a Viper instance (pkg/config) from flags, REPORTFINDER_* environment
//     variables, an optional .env file and the YAML config file, loads and validates it (internal/config), builds a
//     zap logger and, for commands that search, the services container (internal/app).
//   - Discovery: internal/app wires the quota ledger, the search backend behind the quota-gated search client, the
//     colly page fetcher with its per-host rate limiter, and the candidate extractor into one sequential
//     discovery.Pipeline. Rows are flushed to the output table (and the optional Postgres mirror) after each company.
//   - Scheduling: "run --schedule" repeats resume passes from a cron schedule (internal/schedule) and serves /metrics,
//     /healthz and /status (internal/server) until every company is written.
//
// Operational notes:
//   - The quota ledger is single-writer. The csv ledger holds a lock file for the life of the process; a crash can
//     leave it behind and it must then be removed by hand.
//   - Interrupting a run writes the in-flight company before exiting. "run --resume" picks up where it stopped.
//   - A config file that fails to parse or validate produces <name>.template.yaml next to it.
package cmd
