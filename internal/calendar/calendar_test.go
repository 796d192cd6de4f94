package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEastern(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func TestIsTradingDay(t *testing.T) {
	c := New()
	loc := mustEastern(t)

	cases := []struct {
		name string
		date time.Time
		want bool
	}{
		{"regular tuesday", time.Date(2024, 1, 2, 12, 0, 0, 0, loc), true},
		{"saturday", time.Date(2024, 1, 6, 12, 0, 0, 0, loc), false},
		{"new years day", time.Date(2024, 1, 1, 12, 0, 0, 0, loc), false},
		{"july 4th", time.Date(2024, 7, 4, 12, 0, 0, 0, loc), false},
		{"christmas", time.Date(2024, 12, 25, 12, 0, 0, 0, loc), false},
		{"mlk day 2024", time.Date(2024, 1, 15, 12, 0, 0, 0, loc), false},
		{"thanksgiving 2024", time.Date(2024, 11, 28, 12, 0, 0, 0, loc), false},
		{"memorial day 2024", time.Date(2024, 5, 27, 12, 0, 0, 0, loc), false},
		{"labor day 2024", time.Date(2024, 9, 2, 12, 0, 0, 0, loc), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.IsTradingDay(tc.date))
		})
	}
}

func TestIsMarketOpen(t *testing.T) {
	c := New()
	loc := mustEastern(t)

	assert.True(t, c.IsMarketOpen(time.Date(2024, 1, 2, 10, 0, 0, 0, loc)))
	assert.False(t, c.IsMarketOpen(time.Date(2024, 1, 2, 9, 0, 0, 0, loc)))
	assert.False(t, c.IsMarketOpen(time.Date(2024, 1, 2, 16, 0, 0, 0, loc)))
	assert.False(t, c.IsMarketOpen(time.Date(2024, 1, 6, 10, 0, 0, 0, loc)))
}

// dateUTC builds the canonical UTC-midnight representation every calendar
// function returns for a "date" value, per DateOnly's contract.
func dateUTC(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestLastTradingDay(t *testing.T) {
	c := New()
	loc := mustEastern(t)

	// Tuesday 2024-01-02 at 17:00 -> today qualifies, session closed.
	got := c.LastTradingDay(time.Date(2024, 1, 2, 17, 0, 0, 0, loc))
	assert.True(t, got.Equal(dateUTC(2024, 1, 2)))

	// Tuesday 2024-01-02 at 10:00 -> market still open, walk back to Friday (prior week, Mon 1/1 is a holiday).
	got = c.LastTradingDay(time.Date(2024, 1, 2, 10, 0, 0, 0, loc))
	assert.True(t, got.Equal(dateUTC(2023, 12, 29)))
}

func TestAdjustToLatestTradingDay(t *testing.T) {
	c := New()
	loc := mustEastern(t)
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, loc) // market open

	// Future date collapses to LastTradingDay(now).
	future := time.Date(2024, 6, 1, 0, 0, 0, 0, loc)
	assert.True(t, c.LastTradingDay(now).Equal(c.AdjustToLatestTradingDay(future, now)))

	// Today while market open collapses to previous trading day.
	today := time.Date(2024, 1, 2, 0, 0, 0, 0, loc)
	assert.True(t, c.PreviousTradingDay(today).Equal(c.AdjustToLatestTradingDay(today, now)))

	// Past date passes through unchanged (re-expressed as a canonical date).
	past := time.Date(2023, 12, 20, 0, 0, 0, 0, loc)
	assert.True(t, dateUTC(2023, 12, 20).Equal(c.AdjustToLatestTradingDay(past, now)))
}

func TestPreviousNextTradingDay(t *testing.T) {
	c := New()
	loc := mustEastern(t)

	d := time.Date(2024, 1, 2, 0, 0, 0, 0, loc)
	assert.True(t, c.PreviousTradingDay(d).Equal(dateUTC(2023, 12, 29)))
	assert.True(t, c.NextTradingDay(d).Equal(dateUTC(2024, 1, 3)))
}
