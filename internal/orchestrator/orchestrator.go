// Package orchestrator drives the end-to-end pipeline for a batch of
// symbols: consult the cache for what actually needs fetching, fetch it
// through the retry controller, validate it, merge it into the per-symbol
// CSV, and update the cache with the new coverage — bounded to a fixed
// number of concurrent symbols and coordinated through a single shared
// rate-limit cool-off.
package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jkabutaro/usstock-csvdownloader/internal/bar"
	"github.com/jkabutaro/usstock-csvdownloader/internal/cache"
	"github.com/jkabutaro/usstock-csvdownloader/internal/calendar"
	"github.com/jkabutaro/usstock-csvdownloader/internal/csvstore"
	"github.com/jkabutaro/usstock-csvdownloader/internal/retry"
	"github.com/jkabutaro/usstock-csvdownloader/internal/symbol"
	"github.com/jkabutaro/usstock-csvdownloader/internal/validate"
	"github.com/jkabutaro/usstock-csvdownloader/internal/yfinance"
)

// Options configures a Run.
type Options struct {
	Concurrency int
	Retry       retry.Config
	OutputDir   string
	ForceUpdate bool
}

// DefaultOptions matches the component contract's stated defaults.
func DefaultOptions() Options {
	return Options{
		Concurrency: 3,
		Retry:       retry.DefaultConfig,
	}
}

// Fetcher abstracts the upstream client so tests can substitute a fake.
type Fetcher interface {
	FetchBars(ctx context.Context, wireSymbol string, start, end time.Time) ([]bar.DailyBar, error)
}

// Orchestrator owns one run's shared dependencies: a cache store, an
// upstream client, a calendar, and a logger. None of these are
// symbol-specific; per-symbol state lives entirely on the call stack of
// processSymbol.
type Orchestrator struct {
	cache  *cache.Store
	client Fetcher
	cal    *calendar.Calendar
	log    zerolog.Logger
	opts   Options
}

// New builds an Orchestrator ready to Run.
func New(store *cache.Store, client Fetcher, cal *calendar.Calendar, log zerolog.Logger, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Orchestrator{cache: store, client: client, cal: cal, log: log, opts: opts}
}

// Run fetches [start, end] for every symbol, writing one CSV per symbol
// under opts.OutputDir and returning a Report describing every outcome.
// Individual symbol failures never abort the batch. Cancellation of ctx is
// not reported as an error: Run returns the outcomes recorded so far with a
// nil error. Any other context error (such as an expired deadline) is
// returned alongside the partial report.
func (o *Orchestrator) Run(ctx context.Context, symbols []string, start, end time.Time) (*Report, error) {
	report := newReport()
	cooloff := &retry.Cooloff{}
	now := time.Now()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(o.opts.Concurrency)

	for _, sym := range symbols {
		sym := sym
		eg.Go(func() error {
			o.processSymbol(egCtx, sym, start, end, now, cooloff, report)
			if egCtx.Err() != nil {
				return egCtx.Err()
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return report, err
	}
	return report, nil
}

// processSymbol runs one symbol through the full state machine: delisted
// short-circuit, cache consult, fetch (with a special-retry escalation on
// exhaustion), validate, write, and coverage update. It never returns an
// error directly — every outcome, including failure, is recorded onto
// report so one symbol's trouble never interrupts the batch.
func (o *Orchestrator) processSymbol(ctx context.Context, sym string, start, end, now time.Time, cooloff *retry.Cooloff, report *Report) {
	norm := symbol.Normalize(sym)
	path := filepath.Join(o.opts.OutputDir, norm.File+".csv")

	if !o.opts.ForceUpdate {
		if delisted, err := o.cache.IsDelisted(sym); err == nil && delisted {
			report.add(Outcome{Symbol: sym, Status: StatusDelisted})
			return
		}
	}

	existingCov, hadCoverage, err := o.cache.GetCoverage(sym)
	if err != nil {
		report.add(Outcome{Symbol: sym, Status: StatusFailed, ErrorKind: "cache_error", ErrorMessage: err.Error()})
		return
	}

	var subRanges []cache.DateRange
	if o.opts.ForceUpdate {
		effEnd := o.cal.AdjustToLatestTradingDay(end, now)
		subRanges = []cache.DateRange{{Start: start, End: effEnd}}
	} else {
		needsFetch, ranges, err := o.cache.NeedsFetch(sym, start, end, now)
		if err != nil {
			report.add(Outcome{Symbol: sym, Status: StatusFailed, ErrorKind: "cache_error", ErrorMessage: err.Error()})
			return
		}
		if !needsFetch {
			report.add(Outcome{Symbol: sym, Status: StatusCached})
			return
		}
		subRanges = ranges
	}
	if len(subRanges) == 0 {
		report.add(Outcome{Symbol: sym, Status: StatusCached})
		return
	}

	retryCtl := retry.New(o.opts.Retry, o.log)
	specialCtl := retry.New(retry.SpecialConfig(o.opts.Retry), o.log)
	fetch := func(ctx context.Context, wireSymbol string, s, e time.Time) ([]bar.DailyBar, error) {
		return o.client.FetchBars(ctx, wireSymbol, s, e)
	}

	var allBars []bar.DailyBar
	attempts := 0
	var lastErrKind, lastErrMessage string
	delisted := false

	for _, r := range subRanges {
		bars, err := retryCtl.Do(ctx, norm.Wire, fetch, r.Start, r.End, cooloff)
		attempts++
		if err == nil {
			allBars = append(allBars, bars...)
			continue
		}

		var fe *yfinance.FetchError
		if !errors.As(err, &fe) {
			lastErrKind, lastErrMessage = "unknown", err.Error()
			continue
		}

		switch fe.Kind {
		case yfinance.KindDelisted:
			delisted = true
			lastErrKind, lastErrMessage = fe.Kind.String(), fe.Error()
		case yfinance.KindNoData:
			if recErr := o.cache.RecordNoDataRange(sym, r.Start, r.End); recErr != nil {
				o.log.Warn().Err(recErr).Str("symbol", sym).Msg("failed to record no-data interval")
			}
		default:
			if !fe.Kind.Retryable() {
				lastErrKind, lastErrMessage = fe.Kind.String(), fe.Error()
				break
			}
			bars2, err2 := specialCtl.Do(ctx, norm.Wire, fetch, r.Start, r.End, cooloff)
			attempts++
			if err2 == nil {
				allBars = append(allBars, bars2...)
				continue
			}
			var fe2 *yfinance.FetchError
			if errors.As(err2, &fe2) {
				lastErrKind, lastErrMessage = fe2.Kind.String(), fe2.Error()
			} else {
				lastErrKind, lastErrMessage = "unknown", err2.Error()
			}
		}
		if delisted {
			break
		}
	}

	if delisted {
		if err := o.cache.MarkDelisted(sym); err != nil {
			o.log.Warn().Err(err).Str("symbol", sym).Msg("failed to mark symbol delisted")
		}
		if err := csvstore.WriteEmpty(path); err != nil {
			o.log.Warn().Err(err).Str("symbol", sym).Msg("failed to write empty delisted file")
		}
		report.add(Outcome{Symbol: sym, Status: StatusDelisted, Attempts: attempts})
		return
	}

	valid, rejected := validate.Validate(allBars, o.cal)
	if rejected > 0 {
		o.log.Warn().Str("symbol", sym).Int("rejected", rejected).Msg("dropped invalid bars")
	}

	if len(valid) == 0 && len(allBars) == 0 && lastErrKind != "" {
		report.add(Outcome{Symbol: sym, Status: StatusFailed, Attempts: attempts,
			ErrorKind: lastErrKind, ErrorMessage: lastErrMessage})
		return
	}

	if len(valid) > 0 {
		if err := csvstore.MergeAndWrite(path, valid); err != nil {
			report.add(Outcome{Symbol: sym, Status: StatusFailed, Attempts: attempts,
				ErrorKind: "write_error", ErrorMessage: err.Error()})
			return
		}
	}

	cov := mergedCoverage(existingCov, hadCoverage, sym, valid, start, end, o.cal, now)
	cov.Attempts = attempts
	cov.LastErrorKind = lastErrKind
	cov.LastErrorMessage = lastErrMessage
	if err := o.cache.PutCoverage(cov); err != nil {
		o.log.Warn().Err(err).Str("symbol", sym).Msg("failed to persist coverage")
	}

	status := StatusFetched
	if lastErrKind != "" {
		status = StatusPartial
	}
	report.add(Outcome{Symbol: sym, Status: status, BarsWritten: len(valid), Attempts: attempts,
		ErrorKind: lastErrKind, ErrorMessage: lastErrMessage})
}

// mergedCoverage extends existing coverage to encompass the freshly fetched
// bars and the requested window, widening rather than overwriting so a
// partial fetch never forgets previously covered dates.
func mergedCoverage(existing cache.SymbolCoverage, had bool, sym string, fetched []bar.DailyBar, requestedStart, requestedEnd time.Time, cal *calendar.Calendar, now time.Time) cache.SymbolCoverage {
	cov := existing
	cov.Symbol = sym
	cov.LastUpdate = now.UTC()
	cov.LastTradingDayAtUpdate = cal.LastTradingDay(now)

	coveredStart := calendar.DateOnly(requestedStart)
	coveredEnd := cal.AdjustToLatestTradingDay(requestedEnd, now)
	if len(fetched) > 0 {
		first, last := calendar.DateOnly(fetched[0].Date), calendar.DateOnly(fetched[len(fetched)-1].Date)
		if first.Before(coveredStart) {
			coveredStart = first
		}
		if last.After(coveredEnd) {
			coveredEnd = last
		}
	}

	if had {
		if existing.CoveredStart.Before(coveredStart) {
			coveredStart = existing.CoveredStart
		}
		if existing.CoveredEnd.After(coveredEnd) {
			coveredEnd = existing.CoveredEnd
		}
	}

	cov.CoveredStart = coveredStart
	cov.CoveredEnd = coveredEnd
	return cov
}
