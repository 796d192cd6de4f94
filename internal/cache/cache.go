// Package cache persists per-symbol date-range coverage, delisted flags,
// no-data intervals, and the latest-trading-day sentinel in a single SQLite
// file. It is the exclusive owner of this state: every read and write goes
// through a Store, which serialises writes behind a mutex and a SQLite
// transaction.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jkabutaro/usstock-csvdownloader/internal/calendar"
)

const dateLayout = "2006-01-02"
const sentinelTTL = 6 * time.Hour
const latestTradingDayKey = "latest_trading_day"

// NoDataInterval is a contiguous inclusive date range known to produce zero
// bars for a symbol.
type NoDataInterval struct {
	Start time.Time
	End   time.Time
}

// SymbolCoverage is the cached state for one symbol.
type SymbolCoverage struct {
	Symbol                 string
	CoveredStart           time.Time
	CoveredEnd             time.Time
	LastUpdate             time.Time
	LastTradingDayAtUpdate time.Time
	Delisted               bool
	Attempts               int
	LastErrorKind          string
	LastErrorMessage       string
	NoDataIntervals        []NoDataInterval
}

// Store is the thread-safe cache handle. Open on startup, Close on shutdown;
// every other component receives a *Store, none retains a static reference.
type Store struct {
	conn *conn
	cal  *calendar.Calendar
	log  zerolog.Logger
	mu   sync.Mutex
}

// Open creates (or reuses) the SQLite file at path and applies the schema.
func Open(path string, cal *calendar.Calendar, log zerolog.Logger) (*Store, error) {
	c, err := openConn(path)
	if err != nil {
		return nil, err
	}
	s := &Store{conn: c, cal: cal, log: log}
	if err := s.migrate(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to migrate cache schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.conn.Close()
}

// GetCoverage returns the cached coverage for symbol, or (SymbolCoverage{}, false)
// if the symbol has never been successfully fetched.
func (s *Store) GetCoverage(symbol string) (SymbolCoverage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cov, ok, err := s.loadCoverage(s.conn.db, symbol)
	if err != nil || !ok {
		return SymbolCoverage{}, false, err
	}
	intervals, err := s.loadNoDataIntervals(s.conn.db, symbol)
	if err != nil {
		return SymbolCoverage{}, false, err
	}
	cov.NoDataIntervals = intervals
	return cov, true, nil
}

func (s *Store) loadCoverage(q queryer, symbol string) (SymbolCoverage, bool, error) {
	row := q.QueryRow(`SELECT symbol, covered_start, covered_end, last_update,
		last_trading_day_at_update, delisted, attempts, last_error_kind, last_error_message
		FROM symbol_coverage WHERE symbol = ?`, symbol)

	var cov SymbolCoverage
	var coveredStart, coveredEnd, lastUpdate, ltd string
	var delisted int
	err := row.Scan(&cov.Symbol, &coveredStart, &coveredEnd, &lastUpdate, &ltd,
		&delisted, &cov.Attempts, &cov.LastErrorKind, &cov.LastErrorMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return SymbolCoverage{}, false, nil
	}
	if err != nil {
		return SymbolCoverage{}, false, fmt.Errorf("failed to load coverage for %s: %w", symbol, err)
	}

	cov.CoveredStart, err = time.Parse(dateLayout, coveredStart)
	if err != nil {
		return SymbolCoverage{}, false, err
	}
	cov.CoveredEnd, err = time.Parse(dateLayout, coveredEnd)
	if err != nil {
		return SymbolCoverage{}, false, err
	}
	cov.LastUpdate, err = time.Parse(time.RFC3339, lastUpdate)
	if err != nil {
		return SymbolCoverage{}, false, err
	}
	cov.LastTradingDayAtUpdate, err = time.Parse(dateLayout, ltd)
	if err != nil {
		return SymbolCoverage{}, false, err
	}
	cov.Delisted = delisted != 0

	return cov, true, nil
}

type queryer interface {
	QueryRow(query string, args ...interface{}) *sql.Row
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

func (s *Store) loadNoDataIntervals(q queryer, symbol string) ([]NoDataInterval, error) {
	rows, err := q.Query(`SELECT start_date, end_date FROM no_data_intervals
		WHERE symbol = ? ORDER BY start_date ASC`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to load no-data intervals for %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []NoDataInterval
	for rows.Next() {
		var startStr, endStr string
		if err := rows.Scan(&startStr, &endStr); err != nil {
			return nil, err
		}
		start, err := time.Parse(dateLayout, startStr)
		if err != nil {
			return nil, err
		}
		end, err := time.Parse(dateLayout, endStr)
		if err != nil {
			return nil, err
		}
		out = append(out, NoDataInterval{Start: start, End: end})
	}
	return out, rows.Err()
}

// PutCoverage upserts cov's coverage fields (not the no-data intervals,
// which are managed separately via RecordNoDataRange).
func (s *Store) PutCoverage(cov SymbolCoverage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conn.withTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO symbol_coverage
			(symbol, covered_start, covered_end, last_update, last_trading_day_at_update,
			 delisted, attempts, last_error_kind, last_error_message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(symbol) DO UPDATE SET
				covered_start=excluded.covered_start,
				covered_end=excluded.covered_end,
				last_update=excluded.last_update,
				last_trading_day_at_update=excluded.last_trading_day_at_update,
				delisted=excluded.delisted,
				attempts=excluded.attempts,
				last_error_kind=excluded.last_error_kind,
				last_error_message=excluded.last_error_message`,
			cov.Symbol,
			cov.CoveredStart.Format(dateLayout),
			cov.CoveredEnd.Format(dateLayout),
			cov.LastUpdate.Format(time.RFC3339),
			cov.LastTradingDayAtUpdate.Format(dateLayout),
			boolToInt(cov.Delisted),
			cov.Attempts,
			cov.LastErrorKind,
			cov.LastErrorMessage,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert coverage for %s: %w", cov.Symbol, err)
		}
		return nil
	})
}

// IsDelisted reports whether symbol is memoised as permanently delisted.
func (s *Store) IsDelisted(symbol string) (bool, error) {
	cov, ok, err := s.GetCoverage(symbol)
	if err != nil || !ok {
		return false, err
	}
	return cov.Delisted, nil
}

// MarkDelisted flags symbol as delisted, creating a coverage row if absent.
func (s *Store) MarkDelisted(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conn.withTransaction(func(tx *sql.Tx) error {
		cov, ok, err := s.loadCoverage(tx, symbol)
		if err != nil {
			return err
		}
		if !ok {
			cov = SymbolCoverage{Symbol: symbol}
		}
		cov.Delisted = true
		cov.LastUpdate = time.Now().UTC()
		_, err = tx.Exec(`INSERT INTO symbol_coverage
			(symbol, covered_start, covered_end, last_update, last_trading_day_at_update,
			 delisted, attempts, last_error_kind, last_error_message)
			VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)
			ON CONFLICT(symbol) DO UPDATE SET delisted=1, last_update=excluded.last_update`,
			symbol,
			zeroDate(cov.CoveredStart).Format(dateLayout),
			zeroDate(cov.CoveredEnd).Format(dateLayout),
			cov.LastUpdate.Format(time.RFC3339),
			zeroDate(cov.LastTradingDayAtUpdate).Format(dateLayout),
			cov.Attempts, cov.LastErrorKind, cov.LastErrorMessage,
		)
		return err
	})
}

// RecordNoDataRange merges [start, end] into symbol's no-data intervals,
// coalescing with any adjacent or overlapping interval so that the stored
// set remains pairwise disjoint and sorted, per the component's invariant.
func (s *Store) RecordNoDataRange(symbol string, start, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conn.withTransaction(func(tx *sql.Tx) error {
		existing, err := s.loadNoDataIntervals(tx, symbol)
		if err != nil {
			return err
		}
		merged := mergeInterval(existing, NoDataInterval{Start: start, End: end})

		if _, err := tx.Exec(`DELETE FROM no_data_intervals WHERE symbol = ?`, symbol); err != nil {
			return err
		}
		for _, iv := range merged {
			if _, err := tx.Exec(`INSERT INTO no_data_intervals (symbol, start_date, end_date) VALUES (?, ?, ?)`,
				symbol, iv.Start.Format(dateLayout), iv.End.Format(dateLayout)); err != nil {
				return err
			}
		}
		return nil
	})
}

// mergeInterval inserts next into intervals (assumed sorted, disjoint) and
// coalesces any overlapping or adjacent (gap of exactly one day) neighbors.
func mergeInterval(intervals []NoDataInterval, next NoDataInterval) []NoDataInterval {
	all := append(append([]NoDataInterval{}, intervals...), next)
	sort.Slice(all, func(i, j int) bool { return all[i].Start.Before(all[j].Start) })

	var merged []NoDataInterval
	for _, iv := range all {
		if len(merged) == 0 {
			merged = append(merged, iv)
			continue
		}
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End.AddDate(0, 0, 1)) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
		} else {
			merged = append(merged, iv)
		}
	}
	return merged
}

// IsRangeEntirelyNoData reports whether [start, end] is fully covered by the
// symbol's recorded no-data intervals.
func (s *Store) IsRangeEntirelyNoData(symbol string, start, end time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intervals, err := s.loadNoDataIntervals(s.conn.db, symbol)
	if err != nil {
		return false, err
	}
	return rangeFullyCovered(intervals, start, end), nil
}

func rangeFullyCovered(intervals []NoDataInterval, start, end time.Time) bool {
	cursor := start
	for _, iv := range intervals {
		if iv.Start.After(cursor) {
			return false
		}
		if iv.End.After(cursor) || iv.End.Equal(cursor) {
			cursor = iv.End.AddDate(0, 0, 1)
		}
		if cursor.After(end) {
			return true
		}
	}
	return !cursor.Before(end.AddDate(0, 0, 1))
}

// GetLatestTradingDaySentinel returns the cached latest-trading-day
// observation and whether it is still fresh (within sentinelTTL).
func (s *Store) GetLatestTradingDaySentinel() (value time.Time, fresh bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var valueStr, fetchedAtStr string
	row := s.conn.db.QueryRow(`SELECT value, fetched_at FROM sentinel WHERE key = ?`, latestTradingDayKey)
	err = row.Scan(&valueStr, &fetchedAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	value, err = time.Parse(dateLayout, valueStr)
	if err != nil {
		return time.Time{}, false, err
	}
	fetchedAt, err := time.Parse(time.RFC3339, fetchedAtStr)
	if err != nil {
		return time.Time{}, false, err
	}
	fresh = time.Since(fetchedAt) < sentinelTTL
	return value, fresh, nil
}

// PutLatestTradingDaySentinel records date as the current observation of the
// exchange's most recent closed session, stamped with the current time.
func (s *Store) PutLatestTradingDaySentinel(date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conn.withTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO sentinel (key, value, fetched_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value=excluded.value, fetched_at=excluded.fetched_at`,
			latestTradingDayKey, date.Format(dateLayout), time.Now().UTC().Format(time.RFC3339))
		return err
	})
}

// ClearAll wipes every cache table. Operator-initiated only (--cache-clear).
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conn.withTransaction(func(tx *sql.Tx) error {
		for _, table := range []string{"symbol_coverage", "no_data_intervals", "sentinel", "preflight"} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func zeroDate(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t
}
