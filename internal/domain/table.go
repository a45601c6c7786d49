// Package domain defines the ticker record model shared by every stockdb
// component: intraday tables, historical series and the record that ties
// them together.
package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// DateLayout is the serialized form of a trading date.
const DateLayout = "2006-01-02"

// ClockLayout is the serialized form of a time-of-day column.
const ClockLayout = "15:04:05"

// Table is a 2-D grid of one intraday field indexed by trading date (rows)
// and time-of-day bucket (columns). Missing values are NaN.
type Table struct {
	Dates  []time.Time
	Times  []time.Duration
	Values [][]float64
}

// NewTable allocates a table of the given index sets with every cell set to
// NaN.
func NewTable(dates []time.Time, times []time.Duration) *Table {
	t := &Table{
		Dates:  append([]time.Time(nil), dates...),
		Times:  append([]time.Duration(nil), times...),
		Values: make([][]float64, len(dates)),
	}
	for i := range t.Values {
		row := make([]float64, len(times))
		for j := range row {
			row[j] = math.NaN()
		}
		t.Values[i] = row
	}
	return t
}

// Rows returns the number of dates.
func (t *Table) Rows() int {
	if t == nil {
		return 0
	}
	return len(t.Dates)
}

// Cols returns the number of time-of-day buckets.
func (t *Table) Cols() int {
	if t == nil {
		return 0
	}
	return len(t.Times)
}

// Empty reports whether the table holds no cells.
func (t *Table) Empty() bool {
	return t.Rows() == 0 || t.Cols() == 0
}

// Row returns the values recorded for date, or nil if the date is absent.
func (t *Table) Row(date time.Time) []float64 {
	if t == nil {
		return nil
	}
	for i, d := range t.Dates {
		if d.Equal(date) {
			return t.Values[i]
		}
	}
	return nil
}

// Valid counts the non-NaN cells.
func (t *Table) Valid() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, row := range t.Values {
		for _, v := range row {
			if !math.IsNaN(v) {
				n++
			}
		}
	}
	return n
}

// NaNRatio is the fraction of cells that are NaN. An empty table has ratio 1.
func (t *Table) NaNRatio() float64 {
	total := t.Rows() * t.Cols()
	if total == 0 {
		return 1
	}
	return float64(total-t.Valid()) / float64(total)
}

// DateSet returns the row index as a set keyed by DateLayout.
func (t *Table) DateSet() map[string]struct{} {
	set := make(map[string]struct{}, t.Rows())
	if t == nil {
		return set
	}
	for _, d := range t.Dates {
		set[d.Format(DateLayout)] = struct{}{}
	}
	return set
}

// FirstDate returns the earliest date, or the zero time for an empty table.
func (t *Table) FirstDate() time.Time {
	if t.Rows() == 0 {
		return time.Time{}
	}
	return t.Dates[0]
}

// LastDate returns the latest date, or the zero time for an empty table.
func (t *Table) LastDate() time.Time {
	if t.Rows() == 0 {
		return time.Time{}
	}
	return t.Dates[len(t.Dates)-1]
}

// Interval is the spacing between the first two time-of-day columns.
func (t *Table) Interval() (time.Duration, error) {
	if t.Cols() < 2 {
		return 0, fmt.Errorf("need at least 2 time columns, have %d", t.Cols())
	}
	iv := t.Times[1] - t.Times[0]
	if iv <= 0 {
		return 0, fmt.Errorf("time columns not increasing: %s, %s", FormatClock(t.Times[0]), FormatClock(t.Times[1]))
	}
	return iv, nil
}

// Merge returns a new table whose index is the union of both tables' dates
// and times. On a duplicate date the receiver's row is kept and the newer
// row dropped. Neither input is modified.
func (t *Table) Merge(newer *Table) *Table {
	if t == nil || t.Rows() == 0 {
		return newer.clone()
	}
	if newer == nil || newer.Rows() == 0 {
		return t.clone()
	}

	times := unionTimes(t.Times, newer.Times)
	seen := make(map[string]struct{}, t.Rows()+newer.Rows())
	var dates []time.Time
	for _, src := range []*Table{t, newer} {
		for _, d := range src.Dates {
			k := d.Format(DateLayout)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := NewTable(dates, times)
	col := make(map[time.Duration]int, len(times))
	for j, tm := range times {
		col[tm] = j
	}
	row := make(map[string]int, len(dates))
	for i, d := range dates {
		row[d.Format(DateLayout)] = i
	}

	filled := make(map[string]struct{}, len(dates))
	for _, src := range []*Table{t, newer} {
		for i, d := range src.Dates {
			k := d.Format(DateLayout)
			if _, done := filled[k]; done {
				continue
			}
			filled[k] = struct{}{}
			dst := out.Values[row[k]]
			for j, tm := range src.Times {
				dst[col[tm]] = src.Values[i][j]
			}
		}
	}
	return out
}

func (t *Table) clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{
		Dates:  append([]time.Time(nil), t.Dates...),
		Times:  append([]time.Duration(nil), t.Times...),
		Values: make([][]float64, len(t.Values)),
	}
	for i, row := range t.Values {
		out.Values[i] = append([]float64(nil), row...)
	}
	return out
}

func unionTimes(a, b []time.Duration) []time.Duration {
	seen := make(map[time.Duration]struct{}, len(a)+len(b))
	var out []time.Duration
	for _, src := range [][]time.Duration{a, b} {
		for _, tm := range src {
			if _, ok := seen[tm]; ok {
				continue
			}
			seen[tm] = struct{}{}
			out = append(out, tm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseDate parses a DateLayout string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// Day truncates t to its calendar date at UTC midnight.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseClock parses an "HH:MM:SS" (or "HH:MM") column label into an offset
// since midnight.
func ParseClock(s string) (time.Duration, error) {
	layout := ClockLayout
	if len(s) == len("15:04") {
		layout = "15:04"
	}
	c, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("parsing time of day %q: %w", s, err)
	}
	return time.Duration(c.Hour())*time.Hour +
		time.Duration(c.Minute())*time.Minute +
		time.Duration(c.Second())*time.Second, nil
}

// FormatClock renders an offset since midnight as "HH:MM:SS".
func FormatClock(d time.Duration) string {
	return time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC).Add(d).Format(ClockLayout)
}
