package cache

import (
	"time"

	"github.com/jkabutaro/usstock-csvdownloader/internal/calendar"
)

// DateRange is an inclusive [Start, End] date range.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NeedsFetch implements the cache's central decision function: given a
// symbol and a requested [start, end] window, it reports whether any fetch
// is needed and, if so, the minimal set of sub-ranges to fetch.
func (s *Store) NeedsFetch(symbol string, requestedStart, requestedEnd, now time.Time) (needsFetch bool, subRanges []DateRange, err error) {
	effEnd := s.cal.AdjustToLatestTradingDay(requestedEnd, now)
	ltd := s.cal.LastTradingDay(now)

	delisted, err := s.IsDelisted(symbol)
	if err != nil {
		return false, nil, err
	}
	if delisted {
		return false, nil, nil
	}

	cov, ok, err := s.GetCoverage(symbol)
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return true, []DateRange{{Start: requestedStart, End: effEnd}}, nil
	}

	if s.cal.IsMarketOpen(now) {
		return true, []DateRange{{Start: requestedStart, End: effEnd}}, nil
	}

	// Special-case rule: "today" requested and coverage already reaches the
	// last trading day is treated as subsumed even though effEnd may exceed
	// covered_end calendar-wise (today's bar will not exist until close).
	today := calendar.DateOnly(s.cal.NowEastern())
	if calendar.DateOnly(requestedEnd).Equal(today) && cov.CoveredEnd.Equal(ltd) {
		return false, nil, nil
	}

	if cov.LastTradingDayAtUpdate.Before(ltd) {
		gapStart := s.cal.NextTradingDay(cov.CoveredEnd)
		ranges := []DateRange{{Start: gapStart, End: effEnd}}
		if requestedStart.Before(cov.CoveredStart) {
			headEnd := s.cal.PreviousTradingDay(cov.CoveredStart)
			ranges = append([]DateRange{{Start: requestedStart, End: headEnd}}, ranges...)
		}
		ranges = filterNoData(ranges, cov.NoDataIntervals)
		return len(ranges) > 0, ranges, nil
	}

	if !requestedStart.Before(cov.CoveredStart) && !requestedEnd.After(cov.CoveredEnd) {
		return false, nil, nil
	}

	var ranges []DateRange
	if requestedStart.Before(cov.CoveredStart) {
		headEnd := s.cal.PreviousTradingDay(cov.CoveredStart)
		ranges = append(ranges, DateRange{Start: requestedStart, End: headEnd})
	}
	if effEnd.After(cov.CoveredEnd) {
		tailStart := s.cal.NextTradingDay(cov.CoveredEnd)
		ranges = append(ranges, DateRange{Start: tailStart, End: effEnd})
	}
	ranges = filterNoData(ranges, cov.NoDataIntervals)
	return len(ranges) > 0, ranges, nil
}

// filterNoData drops any sub-range that is fully covered by a no-data
// interval, so the orchestrator does not re-issue a request known to be
// empty. Partially-overlapping ranges are kept as-is (a conservative choice:
// the worst case is one redundant request, never a missed one).
func filterNoData(ranges []DateRange, noData []NoDataInterval) []DateRange {
	var out []DateRange
	for _, r := range ranges {
		if r.Start.After(r.End) {
			continue
		}
		if rangeFullyCovered(noData, r.Start, r.End) {
			continue
		}
		out = append(out, r)
	}
	return out
}
