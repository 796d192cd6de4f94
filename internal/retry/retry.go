// Package retry wraps a fetch attempt with bounded retries, exponential
// backoff, jitter, and rate-limit-specific longer delays.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"github.com/jkabutaro/usstock-csvdownloader/internal/bar"
	"github.com/jkabutaro/usstock-csvdownloader/internal/yfinance"
)

// Config holds the retry controller's tunable policy parameters.
type Config struct {
	MaxAttempts      int
	BaseDelay        time.Duration
	RateLimitDelay   time.Duration
	MaxDelay         time.Duration
	Exponential      bool
	Jitter           bool
	PerAttemptTimeout time.Duration
}

// DefaultConfig matches the component contract's stated defaults.
var DefaultConfig = Config{
	MaxAttempts:       3,
	BaseDelay:         1 * time.Second,
	RateLimitDelay:    30 * time.Second,
	MaxDelay:          60 * time.Second,
	Exponential:       true,
	Jitter:            true,
	PerAttemptTimeout: 30 * time.Second,
}

// SpecialConfig is the stronger regime applied by the orchestrator to
// symbols that already exhausted the normal budget: up to 5 additional
// attempts with doubled base delay.
func SpecialConfig(base Config) Config {
	special := base
	special.MaxAttempts = 5
	special.BaseDelay = base.BaseDelay * 2
	return special
}

// Fetcher is the single operation the retry controller wraps.
type Fetcher func(ctx context.Context, wireSymbol string, start, end time.Time) ([]bar.DailyBar, error)

// Controller applies Config's policy around a Fetcher call.
type Controller struct {
	cfg Config
	log zerolog.Logger
}

// New builds a Controller. The process-wide rate-limit cool-off shared by
// concurrent workers is not held here; it is passed to each Do call.
func New(cfg Config, log zerolog.Logger) *Controller {
	return &Controller{cfg: cfg, log: log}
}

// Do runs fetch, retrying per the decision table in the component contract:
// Success returns immediately. RateLimited sleeps max(RateLimitDelay,
// server Retry-After) with jitter and retries, still bounded by MaxAttempts.
// Transient/ServerError sleep an exponential-or-fixed backoff and retry.
// Delisted/BadRequest/MalformedResponse/NoData fail immediately with no
// retry — the orchestrator decides what a terminal outcome means.
// cooloff, if non-nil, is waited on before every attempt and set on a
// RateLimited response.
func (c *Controller) Do(ctx context.Context, symbol string, fetch Fetcher, start, end time.Time, cooloff *Cooloff) ([]bar.DailyBar, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if cooloff != nil {
			cooloff.Wait(ctx)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.PerAttemptTimeout)
		bars, err := fetch(attemptCtx, symbol, start, end)
		cancel()

		if err == nil {
			return bars, nil
		}
		lastErr = err

		fe, ok := asFetchError(err)
		if !ok || !fe.Kind.Retryable() {
			return nil, err
		}

		if attempt == c.cfg.MaxAttempts {
			break
		}

		if fe.Kind == yfinance.KindRateLimited {
			delay := c.cfg.RateLimitDelay
			if serverDelay := time.Duration(fe.RetryAfter) * time.Second; serverDelay > delay {
				delay = serverDelay
			}
			if cooloff != nil {
				cooloff.Set(delay)
			}
			delay = c.withJitter(delay)
			c.log.Warn().Str("symbol", symbol).Dur("delay", delay).Msg("rate limited, backing off")
			if !sleepOrDone(ctx, delay) {
				return nil, ctx.Err()
			}
			continue
		}

		delay := c.backoffFor(attempt)
		c.log.Debug().Str("symbol", symbol).Int("attempt", attempt).Dur("delay", delay).
			Str("kind", fe.Kind.String()).Msg("transient fetch error, retrying")
		if !sleepOrDone(ctx, delay) {
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// backoffFor computes base_delay * 2^(attempt-1) when Exponential, else a
// fixed base_delay, capped at MaxDelay, with optional +/-20% jitter.
func (c *Controller) backoffFor(attempt int) time.Duration {
	delay := c.cfg.BaseDelay
	if c.cfg.Exponential {
		delay = time.Duration(float64(c.cfg.BaseDelay) * math.Pow(2, float64(attempt-1)))
	}
	if delay > c.cfg.MaxDelay {
		delay = c.cfg.MaxDelay
	}
	return c.withJitter(delay)
}

// withJitter applies +/-20% uniform jitter using a cryptographically random
// source (matching the teacher's retry client rather than math/rand, since
// this value never needs to be reproducible).
func (c *Controller) withJitter(delay time.Duration) time.Duration {
	if !c.cfg.Jitter || delay <= 0 {
		return delay
	}
	spread := int64(delay) * 2 / 5 // 40% of delay = the +/-20% band width
	if spread <= 0 {
		return delay
	}
	n, err := rand.Int(rand.Reader, big.NewInt(spread))
	if err != nil {
		return delay
	}
	return delay - time.Duration(spread/2) + time.Duration(n.Int64())
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func asFetchError(err error) (*yfinance.FetchError, bool) {
	var fe *yfinance.FetchError
	ok := errors.As(err, &fe)
	return fe, ok
}
