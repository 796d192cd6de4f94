// Package calendar computes U.S. equity market session state: open/closed
// status, holiday detection, and trading-day arithmetic, all in U.S. Eastern
// time. Every function here is pure; none perform I/O.
//
// Two kinds of values flow through this package: instants (a real wall-clock
// moment, e.g. "now") and dates (a calendar day with no time-of-day or zone
// meaning, e.g. "2024-01-05"). Dates are represented canonically as UTC
// midnight — callers should construct them with time.Date(y, m, d, 0, 0, 0,
// 0, time.UTC) or via DateOnly, never by truncating an Eastern instant
// without first re-deriving its Y/M/D, or date comparisons across the
// package boundary will silently be off by one day around the UTC/Eastern
// offset.
package calendar

import "time"

// Calendar evaluates U.S. equity trading sessions in Eastern time.
//
// New loads "America/New_York" from the tz database and falls back to a
// fixed DST rule (2nd Sun Mar 02:00 to 1st Sun Nov 02:00) if the tz database
// is unavailable on the host. The zero value is usable too, but it never
// loads the tz database and always applies the fixed rule.
type Calendar struct {
	loc *time.Location
}

// New constructs a Calendar, attempting to load the IANA Eastern time zone.
func New() *Calendar {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = nil
	}
	return &Calendar{loc: loc}
}

// NowEastern returns the current wall-clock time converted to Eastern.
func (c *Calendar) NowEastern() time.Time {
	return c.toEastern(time.Now())
}

func (c *Calendar) toEastern(t time.Time) time.Time {
	if c.loc != nil {
		return t.In(c.loc)
	}
	return t.In(fixedEastern(t))
}

// fixedEastern approximates America/New_York with the explicit DST rule from
// the component contract when the tz database is not available: DST begins
// the 2nd Sunday of March at 02:00 and ends the 1st Sunday of November at
// 02:00, EST is UTC-5, EDT is UTC-4.
func fixedEastern(t time.Time) *time.Location {
	utc := t.UTC()
	year := utc.Year()
	dstStart := nthWeekdayUTC(year, time.March, time.Sunday, 2).Add(7 * time.Hour)  // 02:00 EST
	dstEnd := nthWeekdayUTC(year, time.November, time.Sunday, 1).Add(6 * time.Hour) // 02:00 EDT
	if !utc.Before(dstStart) && utc.Before(dstEnd) {
		return time.FixedZone("EDT", -4*60*60)
	}
	return time.FixedZone("EST", -5*60*60)
}

// nthWeekdayUTC returns the nth occurrence (1-indexed) of weekday in
// month/year, as a UTC-midnight date value.
func nthWeekdayUTC(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset+7*(n-1))
}

// lastWeekdayUTC returns the last occurrence of weekday in month/year, as a
// UTC-midnight date value.
func lastWeekdayUTC(year int, month time.Month, weekday time.Weekday) time.Time {
	d := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	offset := (int(d.Weekday()) - int(weekday) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

// DateOnly re-expresses t's calendar date (as observed in t's own location)
// as the package's canonical UTC-midnight date value.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsHoliday reports whether date (a canonical calendar date, see DateOnly) is
// one of the fixed or floating market holidays this calendar recognizes.
//
// Open question left unresolved per the component contract: Good Friday and
// observation-shifted holidays (a fixed holiday landing on a weekend) are not
// included. Callers that need authoritative session presence should treat
// this as a conservative filter and verify against actual response data.
func (c *Calendar) IsHoliday(date time.Time) bool {
	d := DateOnly(date)
	year := d.Year()

	fixed := []time.Time{
		time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC),
		time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC),
	}
	for _, h := range fixed {
		if d.Equal(h) {
			return true
		}
	}

	floating := []time.Time{
		nthWeekdayUTC(year, time.January, time.Monday, 3),    // MLK Day
		nthWeekdayUTC(year, time.February, time.Monday, 3),   // Presidents Day
		lastWeekdayUTC(year, time.May, time.Monday),          // Memorial Day
		nthWeekdayUTC(year, time.September, time.Monday, 1),  // Labor Day
		nthWeekdayUTC(year, time.November, time.Thursday, 4), // Thanksgiving
	}
	for _, h := range floating {
		if d.Equal(h) {
			return true
		}
	}

	return false
}

// IsTradingDay reports whether date (a canonical calendar date) is a U.S.
// equity trading day: a weekday that is not a recognized holiday.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	d := DateOnly(date)
	wd := d.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !c.IsHoliday(d)
}

// IsMarketOpen reports whether the regular session is open at the instant
// at: a trading day, between 09:30 and 16:00 Eastern inclusive-exclusive.
// Early-close days are treated as full sessions (a conservative
// simplification: the session is reported open until 16:00).
func (c *Calendar) IsMarketOpen(at time.Time) bool {
	eastern := c.toEastern(at)
	if !c.IsTradingDay(DateOnly(eastern)) {
		return false
	}
	open := time.Date(eastern.Year(), eastern.Month(), eastern.Day(), 9, 30, 0, 0, eastern.Location())
	close := time.Date(eastern.Year(), eastern.Month(), eastern.Day(), 16, 0, 0, 0, eastern.Location())
	return !eastern.Before(open) && eastern.Before(close)
}

// PreviousTradingDay returns the most recent trading day strictly before
// date (a canonical calendar date).
func (c *Calendar) PreviousTradingDay(date time.Time) time.Time {
	d := DateOnly(date).AddDate(0, 0, -1)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// NextTradingDay returns the nearest trading day strictly after date (a
// canonical calendar date).
func (c *Calendar) NextTradingDay(date time.Time) time.Time {
	d := DateOnly(date).AddDate(0, 0, 1)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// LastTradingDay returns the most recent date that has a fully closed
// regular session as of the instant at: if today is a trading day and it is
// past 16:00 Eastern, today qualifies; otherwise the search walks back to
// the prior trading day. The returned value is a canonical calendar date.
func (c *Calendar) LastTradingDay(at time.Time) time.Time {
	eastern := c.toEastern(at)
	today := DateOnly(eastern)
	closeTime := time.Date(eastern.Year(), eastern.Month(), eastern.Day(), 16, 0, 0, 0, eastern.Location())

	if c.IsTradingDay(today) && !eastern.Before(closeTime) {
		return today
	}
	return c.PreviousTradingDay(today)
}

// AdjustToLatestTradingDay clamps d (a canonical calendar date) against now
// (an instant): a future date collapses to LastTradingDay(now); today's date
// collapses to the previous trading day while the market is still open
// (today's bar does not exist yet); any other date passes through unchanged.
func (c *Calendar) AdjustToLatestTradingDay(d time.Time, now time.Time) time.Time {
	eastern := c.toEastern(now)
	today := DateOnly(eastern)
	target := DateOnly(d)

	if target.After(today) {
		return c.LastTradingDay(now)
	}
	if target.Equal(today) && c.IsMarketOpen(now) {
		return c.PreviousTradingDay(today)
	}
	return target
}
