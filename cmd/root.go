// Package cmd defines the linkcheck command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/app"
	"github.com/JakeFAU/linkcheck/internal/config"
	"github.com/JakeFAU/linkcheck/internal/logging"
	pkgconfig "github.com/JakeFAU/linkcheck/pkg/config"
)

// version is stamped at build time with -ldflags "-X .../cmd.version=...".
var version = "dev"

const closeTimeout = 10 * time.Second

// exitError carries a non-zero exit status without an error message; the
// crawl report already told the user what went wrong.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// newRootCmd builds the command tree around v, writing the report to
// stdout and stderr.
func newRootCmd(v *viper.Viper, stdout, stderr io.Writer) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "linkcheck <url>",
		Short: "Crawl a site and report broken or suspicious pages.",
		Long: `linkcheck starts at <url>, follows every link that stays on the same host,
fetches each page once and prints its status and size. It exits non-zero
when any page failed, returned a non-2xx status or looked too small to be real.`,
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			v.Set("seed", args[0])
			return runCrawl(cmd.Context(), v, cfgFile, stdout, stderr)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./linkcheck.yaml or $HOME/.linkcheck/linkcheck.yaml)")
	flags.StringP("exclude-pattern", "e", "", "skip every URL matching this regular expression")
	flags.StringArrayP("request-header", "H", nil, `header sent with every request, as "Name: value" (repeatable)`)
	flags.BoolP("verbose", "b", false, "print every page on its own line, with fetch notices and details")
	flags.IntP("max-concurrent", "m", 1000, "maximum number of requests in flight")
	flags.String("extractor", "regex", "link extractor: regex, html or dom")
	flags.Bool("no-color", false, "disable colored output")
	flags.String("metrics-addr", "", "serve /healthz, /metrics and /v1/status on this address during the crawl")
	flags.String("store-dsn", "", "export run and page results to this Postgres database")
	flags.String("log-level", "warn", "diagnostic log level (debug, info, warn, error)")

	bindings := map[string]string{
		"crawler.exclude_pattern": "exclude-pattern",
		"http.headers":            "request-header",
		"output.verbose":          "verbose",
		"crawler.max_concurrent":  "max-concurrent",
		"crawler.extractor":       "extractor",
		"output.no_color":         "no-color",
		"metrics.addr":            "metrics-addr",
		"store.dsn":               "store-dsn",
		"logging.level":           "log-level",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
	return cmd
}

func runCrawl(ctx context.Context, v *viper.Viper, cfgFile string, stdout, stderr io.Writer) error {
	used, err := pkgconfig.InitConfig(v, cfgFile)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if used != "" {
		logger.Info("loaded config file", zap.String("path", used))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{
		Stdout:  stdout,
		Stderr:  stderr,
		Logger:  logger,
		Version: version,
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if cerr := a.Close(closeCtx); cerr != nil {
			logger.Warn("shutdown incomplete", zap.Error(cerr))
		}
	}()

	summary, err := a.Run(ctx)
	if err != nil && !summary.Interrupted {
		return err
	}
	if code := summary.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// run executes the command line in args and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(viper.New(), stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	logger := logging.NewWriter(stderr)
	logger.Error("linkcheck failed", zap.Error(err))
	_ = logger.Sync()
	return 1
}

// Execute runs linkcheck with the process arguments and exits.
func Execute() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
