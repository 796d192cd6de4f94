// Package validate filters a bar sequence down to entries that satisfy the
// OHLCV invariants, as a pure, non-fatal transformation: malformed input
// just means fewer bars out, never an error.
package validate

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jkabutaro/usstock-csvdownloader/internal/bar"
	"github.com/jkabutaro/usstock-csvdownloader/internal/calendar"
)

// epsilon absorbs floating-point rounding noise when comparing open/close
// against [low, high].
var epsilon = decimal.NewFromFloat(1e-6)

// Validate drops bars with negative or missing fields, inverted high/low,
// open/close outside [low, high], or a date that is not a trading day. The
// surviving bars are returned in ascending date order with duplicate dates
// collapsed (last write wins). rejected counts how many input bars were
// dropped, for logging.
func Validate(bars []bar.DailyBar, cal *calendar.Calendar) (valid []bar.DailyBar, rejected int) {
	byDate := make(map[int64]bar.DailyBar, len(bars))
	order := make([]int64, 0, len(bars))

	for _, b := range bars {
		if !isSane(b) {
			rejected++
			continue
		}
		if cal != nil && !cal.IsTradingDay(calendar.DateOnly(b.Date)) {
			rejected++
			continue
		}
		key := calendar.DateOnly(b.Date).Unix()
		if _, exists := byDate[key]; !exists {
			order = append(order, key)
		}
		byDate[key] = b
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	valid = make([]bar.DailyBar, 0, len(order))
	for _, key := range order {
		valid = append(valid, byDate[key])
	}
	return valid, rejected
}

func isSane(b bar.DailyBar) bool {
	for _, d := range []decimal.Decimal{b.Open, b.High, b.Low, b.Close, b.AdjClose} {
		if d.IsNegative() {
			return false
		}
	}
	if b.Volume < 0 {
		return false
	}
	if b.High.LessThan(b.Low) {
		return false
	}
	if !within(b.Open, b.Low, b.High) || !within(b.Close, b.Low, b.High) {
		return false
	}
	return true
}

// within reports whether v lies in [low, high], tolerating rounding noise of
// up to epsilon on either side.
func within(v, low, high decimal.Decimal) bool {
	return !v.LessThan(low.Sub(epsilon)) && !v.GreaterThan(high.Add(epsilon))
}
