package util

import (
	"context"
	"time"

	"stockdb/internal/domain"
)

// Calendar lists the sessions a market was open.
type Calendar interface {
	// ValidDays returns the trading dates in [start, end], ascending.
	ValidDays(ctx context.Context, start, end time.Time) ([]time.Time, error)
}

// Compile-time interface check.
var _ Calendar = (*TradingCalendar)(nil)

// TradingCalendar is a rule-based calendar for US equity markets: weekdays
// minus NYSE holidays. NASDAQ and NYSE American share the NYSE schedule.
type TradingCalendar struct {
	market domain.Market
}

// NewTradingCalendar creates a TradingCalendar for the given market.
func NewTradingCalendar(market domain.Market) *TradingCalendar {
	return &TradingCalendar{
		market: market,
	}
}

// IsOpen reports whether the market holds a session on date.
func (tc *TradingCalendar) IsOpen(date time.Time) bool {
	d := domain.Day(date)
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	for _, h := range holidays(d.Year()) {
		if h.Equal(d) {
			return false
		}
	}
	return true
}

// ValidDays returns the trading dates in [start, end], ascending.
func (tc *TradingCalendar) ValidDays(_ context.Context, start, end time.Time) ([]time.Time, error) {
	var days []time.Time
	for d := domain.Day(start); !d.After(domain.Day(end)); d = d.AddDate(0, 0, 1) {
		if tc.IsOpen(d) {
			days = append(days, d)
		}
	}
	return days, nil
}

// DateList returns n trading dates starting at from, inclusive of from when
// it is a trading date. A negative n walks backwards and returns the last
// |n| trading dates ending at from, still in ascending order.
func (tc *TradingCalendar) DateList(from time.Time, n int) []time.Time {
	step, want := 1, n
	if n < 0 {
		step, want = -1, -n
	}
	out := make([]time.Time, 0, want)
	for d := domain.Day(from); len(out) < want; d = d.AddDate(0, 0, step) {
		if tc.IsOpen(d) {
			out = append(out, d)
		}
	}
	if step < 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// AddDays moves n trading sessions away from date. date itself need not be
// a trading date.
func (tc *TradingCalendar) AddDays(date time.Time, n int) time.Time {
	step := 1
	if n < 0 {
		step, n = -1, -n
	}
	d := domain.Day(date)
	for n > 0 {
		d = d.AddDate(0, 0, step)
		if tc.IsOpen(d) {
			n--
		}
	}
	return d
}

// holidays returns the full-day NYSE closures in year.
func holidays(year int) []time.Time {
	date := func(m time.Month, d int) time.Time {
		return time.Date(year, m, d, 0, 0, 0, 0, time.UTC)
	}

	out := []time.Time{
		nthWeekday(year, time.January, time.Monday, 3),   // Martin Luther King Jr. Day
		nthWeekday(year, time.February, time.Monday, 3),  // Washington's Birthday
		easter(year).AddDate(0, 0, -2),                   // Good Friday
		lastWeekday(year, time.May, time.Monday),         // Memorial Day
		observed(date(time.July, 4)),                     // Independence Day
		nthWeekday(year, time.September, time.Monday, 1), // Labor Day
		nthWeekday(year, time.November, time.Thursday, 4), // Thanksgiving
		observed(date(time.December, 25)),                // Christmas
	}

	// New Year's Day falling on a Saturday is not observed on the prior
	// Friday.
	if ny := date(time.January, 1); ny.Weekday() != time.Saturday {
		out = append(out, observed(ny))
	}
	if year >= 2022 {
		out = append(out, observed(date(time.June, 19))) // Juneteenth
	}
	return out
}

// observed shifts a Saturday holiday to Friday and a Sunday holiday to
// Monday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) time.Time {
	d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	for d.Weekday() != wd {
		d = d.AddDate(0, 0, 1)
	}
	return d.AddDate(0, 0, 7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	d := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	for d.Weekday() != wd {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// easter returns Easter Sunday using the anonymous Gregorian algorithm.
func easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
