// Command csvdownloader downloads historical daily price series for a batch
// of U.S. equity/index symbols and writes one CSV per symbol, consulting a
// local cache so repeated runs only fetch what changed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkabutaro/usstock-csvdownloader/internal/cache"
	"github.com/jkabutaro/usstock-csvdownloader/internal/calendar"
	"github.com/jkabutaro/usstock-csvdownloader/internal/config"
	"github.com/jkabutaro/usstock-csvdownloader/internal/logging"
	"github.com/jkabutaro/usstock-csvdownloader/internal/orchestrator"
	"github.com/jkabutaro/usstock-csvdownloader/internal/retry"
	"github.com/jkabutaro/usstock-csvdownloader/internal/universe"
	"github.com/jkabutaro/usstock-csvdownloader/internal/yfinance"
)

const dateFlagLayout = "2006-01-02"

// flags holds every CLI option, populated by cobra/pflag before run executes.
type flags struct {
	symbols        []string
	symbolsFile    string
	universeToken  string
	startDate      string
	endDate        string
	concurrent     int
	maxRetries     int
	retryDelayMS   int
	rateLimitDelay int
	exponential    bool
	jitter         bool
	outputDir      string
	dataDir        string
	cacheClear     bool
	forceUpdate    bool
	logLevel       string
}

func main() {
	f := &flags{}
	root := newRootCommand(f)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csvdownloader",
		Short: "Download historical daily stock price CSVs with local caching",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}

	fs := cmd.Flags()
	fs.StringSliceVar(&f.symbols, "symbols", nil, "explicit comma-separated symbol list")
	fs.StringVar(&f.symbolsFile, "symbols-file", "", "path to a file with one symbol per line")
	fs.StringVar(&f.universeToken, "universe", "", "curated universe token (e.g. dow30, sp500-sample)")
	fs.StringVar(&f.startDate, "start-date", "", "yyyy-MM-dd, default 1 year before today")
	fs.StringVar(&f.endDate, "end-date", "", "yyyy-MM-dd, default today")
	fs.IntVar(&f.concurrent, "concurrent", 3, "number of symbols fetched concurrently (max 10)")
	fs.IntVar(&f.maxRetries, "max-retries", retry.DefaultConfig.MaxAttempts, "max fetch attempts per sub-range")
	fs.IntVar(&f.retryDelayMS, "retry-delay-ms", int(retry.DefaultConfig.BaseDelay.Milliseconds()), "base retry backoff in milliseconds")
	fs.IntVar(&f.rateLimitDelay, "rate-limit-delay-ms", int(retry.DefaultConfig.RateLimitDelay.Milliseconds()), "rate-limit cool-off in milliseconds")
	fs.BoolVar(&f.exponential, "exponential", retry.DefaultConfig.Exponential, "use exponential backoff between retries")
	fs.BoolVar(&f.jitter, "jitter", retry.DefaultConfig.Jitter, "apply +/-20% jitter to retry delays")
	fs.StringVar(&f.outputDir, "output-dir", "", "directory for CSVs and the failure report (default ./output)")
	fs.StringVar(&f.dataDir, "data-dir", "", "directory for the cache database (default ./data)")
	fs.BoolVar(&f.cacheClear, "cache-clear", false, "wipe the cache before running")
	fs.BoolVar(&f.forceUpdate, "force-update", false, "bypass cache coverage checks and always fetch")
	fs.StringVar(&f.logLevel, "log-level", "", "override the configured log level")

	return cmd
}

func run(f *flags) error {
	cfg, err := config.Load()
	if err != nil {
		logging.Fallback().Fatal().Err(err).Msg("failed to load configuration")
	}
	if f.outputDir != "" {
		cfg.OutputDir = f.outputDir
	}
	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: true})

	symbols, err := resolveSymbols(f)
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve symbol universe")
		return err
	}
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols resolved: provide --symbols, --symbols-file, or --universe")
	}

	start, end, err := resolveWindow(f)
	if err != nil {
		return err
	}

	concurrent := f.concurrent
	if concurrent < 1 {
		concurrent = 1
	}
	if concurrent > 10 {
		concurrent = 10
	}

	cal := calendar.New()
	store, err := cache.Open(cfg.CachePath(), cal, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to open cache")
		return err
	}
	defer store.Close()

	if f.cacheClear {
		if err := store.ClearAll(); err != nil {
			log.Error().Err(err).Msg("failed to clear cache")
			return err
		}
		log.Info().Msg("cache cleared")
	}

	client := yfinance.New(log)

	retryCfg := retry.DefaultConfig
	retryCfg.MaxAttempts = f.maxRetries
	retryCfg.BaseDelay = time.Duration(f.retryDelayMS) * time.Millisecond
	retryCfg.RateLimitDelay = time.Duration(f.rateLimitDelay) * time.Millisecond
	retryCfg.Exponential = f.exponential
	retryCfg.Jitter = f.jitter

	orch := orchestrator.New(store, client, cal, log, orchestrator.Options{
		Concurrency: concurrent,
		Retry:       retryCfg,
		OutputDir:   cfg.OutputDir,
		ForceUpdate: f.forceUpdate,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info().Int("symbols", len(symbols)).Str("start", start.Format(dateFlagLayout)).
		Str("end", end.Format(dateFlagLayout)).Int("concurrent", concurrent).Msg("starting download")

	report, err := orch.Run(ctx, symbols, start, end)
	if err != nil {
		log.Error().Err(err).Msg("run aborted")
		return err
	}

	for status, count := range report.Summary() {
		log.Info().Str("status", string(status)).Int("count", count).Msg("run summary")
	}

	reportPath := filepath.Join(cfg.OutputDir, "failed_symbols_report.txt")
	if err := orchestrator.WriteFailureReport(reportPath, report); err != nil {
		log.Error().Err(err).Msg("failed to write failure report")
		return err
	}

	if len(report.Failed()) > 0 {
		log.Warn().Int("failed", len(report.Failed())).Msg("one or more symbols failed")
		os.Exit(1)
	}
	return nil
}

func resolveSymbols(f *flags) ([]string, error) {
	switch {
	case len(f.symbols) > 0:
		return universe.FromSymbols(f.symbols), nil
	case f.symbolsFile != "":
		return universe.FromFile(f.symbolsFile)
	case f.universeToken != "":
		return universe.FromCuratedToken(f.universeToken)
	default:
		return nil, fmt.Errorf("exactly one of --symbols, --symbols-file, --universe is required")
	}
}

func resolveWindow(f *flags) (start, end time.Time, err error) {
	end = time.Now().UTC()
	if f.endDate != "" {
		end, err = time.Parse(dateFlagLayout, f.endDate)
		if err != nil {
			return start, end, fmt.Errorf("invalid --end-date: %w", err)
		}
	}

	start = end.AddDate(-1, 0, 0)
	if f.startDate != "" {
		start, err = time.Parse(dateFlagLayout, f.startDate)
		if err != nil {
			return start, end, fmt.Errorf("invalid --start-date: %w", err)
		}
	}
	return start, end, nil
}
