// Package cmd defines and implements the CLI commands for the reportfinder executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/report-discovery/internal/app"
	"github.com/JakeFAU/report-discovery/internal/config"
	"github.com/JakeFAU/report-discovery/internal/discovery"
	"github.com/JakeFAU/report-discovery/internal/logging"
	bootstrap "github.com/JakeFAU/report-discovery/pkg/config"
)

// bootstrapAnnotation tells the root hook how much to build for a subcommand.
const bootstrapAnnotation = "bootstrap"

const (
	bootstrapNone   = "none"   // no config, no logger
	bootstrapConfig = "config" // config and logger only
)

// ctxKeyType is the key for storing the runtime in the context.
type ctxKeyType string

const runtimeKey ctxKeyType = "runtime"

// App defines the services commands use. It is an interface so tests can
// inject a mock.
type App interface {
	Run(ctx context.Context, opts app.RunOptions) (app.Result, error)
	Entity(ctx context.Context, e discovery.Entity, archiveDir string) (discovery.EntityResult, error)
	QuotaRemaining(ctx context.Context) (int, error)
	Close() error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// runtime is what the root hook hands to subcommands.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
	app    App
}

type rootOptions struct {
	cfgFile string
	envFile string
	rt      *runtime
}

// close releases whatever bootstrap built. Cobra skips post-run hooks when a
// command fails, so this runs after Execute returns instead.
func (o *rootOptions) close() {
	if o.rt == nil {
		return
	}
	if o.rt.app != nil {
		if err := o.rt.app.Close(); err != nil {
			o.rt.logger.Warn("error closing application services", zap.Error(err))
		}
	}
	_ = o.rt.logger.Sync()
	o.rt = nil
}

// newRootCmd creates and configures the root command.
func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reportfinder",
		Short: "Find published annual reports for a list of companies.",
		Long: `reportfinder searches the web for each company in an input table, visits
the most promising pages, scores every document link it finds and writes the
best candidates to an output table, one fixed-size block of rows per company.

Search requests are counted against a daily quota that persists across runs,
so a long list can be worked through over several days with "run --resume".`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.bootstrap(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.cfgFile, "config", "", "config file (default: reportfinder.yaml in ., $HOME/.reportfinder or /etc/reportfinder)")
	pf.StringVar(&opts.envFile, "env-file", "", "dotenv file with credentials (default: .env if present)")
	pf.Int("daily-request-limit", 0, "search requests allowed per calendar day")
	pf.Int("max-results-per-query", 0, "results requested from the search backend per query")
	pf.Int("max-secondary-results", 0, "SECONDARY rows written per company")
	pf.StringP("output", "o", "", "output table path")
	pf.Int("request-timeout-seconds", 0, "timeout for each HTTP request")
	pf.String("backend", "", "search backend: duckduckgo, serpapi, tavily or bing")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.Bool("dev", false, "human-readable development logging")

	cmd.AddCommand(
		newRunCmd(),
		newEntityCmd(),
		newConvertCmd(),
		newQuotaCmd(),
		newInitConfigCmd(),
	)
	return cmd
}

func (o *rootOptions) bootstrap(cmd *cobra.Command) error {
	level := cmd.Annotations[bootstrapAnnotation]
	if level == bootstrapNone {
		return nil
	}

	v, err := bootstrap.New(o.cfgFile, o.envFile, cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if errors.Is(err, config.ErrInvalid) {
		tmpl := config.TemplatePathFor(v.ConfigFileUsed())
		if werr := config.WriteTemplate(tmpl); werr != nil {
			return errors.Join(err, werr)
		}
		return fmt.Errorf("%w (a fresh template was written to %s)", err, tmpl)
	}
	if err != nil {
		return err
	}

	logger, err := logging.NewWithLevel(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	rt := &runtime{cfg: cfg, logger: logger}
	o.rt = rt

	if level != bootstrapConfig {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize application services: %w", err)
		}
		rt.app = a
	}
	cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, rt))
	return nil
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("application services not initialized")
	}
	return rt, nil
}

// run executes the command line in args and releases services afterwards.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts := &rootOptions{}
	defer opts.close()

	root := newRootCmd(opts)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
