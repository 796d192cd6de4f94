package retry

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkabutaro/usstock-csvdownloader/internal/bar"
	"github.com/jkabutaro/usstock-csvdownloader/internal/yfinance"
)

func fastConfig() Config {
	cfg := DefaultConfig
	cfg.BaseDelay = time.Millisecond
	cfg.RateLimitDelay = 2 * time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	cfg.PerAttemptTimeout = time.Second
	return cfg
}

func TestDoSucceedsAfterTransientRetries(t *testing.T) {
	c := New(fastConfig(), zerolog.Nop())
	calls := 0
	fetch := func(ctx context.Context, symbol string, start, end time.Time) ([]bar.DailyBar, error) {
		calls++
		if calls < 3 {
			return nil, &yfinance.FetchError{Kind: yfinance.KindTransient, Symbol: symbol}
		}
		return []bar.DailyBar{{}}, nil
	}
	bars, err := c.Do(context.Background(), "AAPL", fetch, time.Now(), time.Now(), nil)
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, 3, calls)
}

func TestDoFailsImmediatelyOnTerminalError(t *testing.T) {
	c := New(fastConfig(), zerolog.Nop())
	calls := 0
	fetch := func(ctx context.Context, symbol string, start, end time.Time) ([]bar.DailyBar, error) {
		calls++
		return nil, &yfinance.FetchError{Kind: yfinance.KindBadRequest, Symbol: symbol}
	}
	_, err := c.Do(context.Background(), "AAPL", fetch, time.Now(), time.Now(), nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsMaxAttempts(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 2
	c := New(cfg, zerolog.Nop())
	calls := 0
	fetch := func(ctx context.Context, symbol string, start, end time.Time) ([]bar.DailyBar, error) {
		calls++
		return nil, &yfinance.FetchError{Kind: yfinance.KindServerError, Symbol: symbol}
	}
	_, err := c.Do(context.Background(), "AAPL", fetch, time.Now(), time.Now(), nil)
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoSetsCooloffOnRateLimit(t *testing.T) {
	cfg := fastConfig()
	c := New(cfg, zerolog.Nop())
	cooloff := &Cooloff{}
	calls := 0
	fetch := func(ctx context.Context, symbol string, start, end time.Time) ([]bar.DailyBar, error) {
		calls++
		if calls == 1 {
			return nil, &yfinance.FetchError{Kind: yfinance.KindRateLimited, Symbol: symbol, RetryAfter: 0}
		}
		return []bar.DailyBar{{}}, nil
	}
	_, err := c.Do(context.Background(), "AAPL", fetch, time.Now(), time.Now(), cooloff)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NotZero(t, cooloff.untilUnixNano.Load(), "a rate-limited attempt must set the shared cool-off deadline")
}

func TestSpecialConfigDoublesBaseDelay(t *testing.T) {
	base := DefaultConfig
	special := SpecialConfig(base)
	assert.Equal(t, 5, special.MaxAttempts)
	assert.Equal(t, base.BaseDelay*2, special.BaseDelay)
}
