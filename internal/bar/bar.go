// Package bar defines the shared daily OHLCV record that flows from the
// data source client through validation to CSV persistence.
package bar

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyBar is one daily OHLCV+adjusted-close record for one symbol.
//
// Invariant (enforced by internal/validate, not by this type): 0 <= Low <=
// min(Open, Close) <= max(Open, Close) <= High; Volume >= 0; Date is a U.S.
// trading day.
type DailyBar struct {
	Date     time.Time // canonical calendar date, see internal/calendar
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	AdjClose decimal.Decimal
	Volume   int64
}
