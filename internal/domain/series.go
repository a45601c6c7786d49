package domain

import (
	"math"
	"sort"
	"time"
)

// Series is a date-indexed run of point-in-time values such as market cap
// or beta. Each fetch appends one observation.
type Series struct {
	Dates  []time.Time
	Values []float64
}

// NewSeries creates a series holding a single observation.
func NewSeries(date time.Time, value float64) *Series {
	return &Series{Dates: []time.Time{Day(date)}, Values: []float64{value}}
}

// Len returns the number of observations.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Dates)
}

// At returns the value recorded on date.
func (s *Series) At(date time.Time) (float64, bool) {
	if s == nil {
		return math.NaN(), false
	}
	for i, d := range s.Dates {
		if d.Equal(date) {
			return s.Values[i], true
		}
	}
	return math.NaN(), false
}

// Append returns a new series holding the receiver's observations followed by
// newer's, keeping the first occurrence of each date, sorted by date.
func (s *Series) Append(newer *Series) *Series {
	out := &Series{}
	seen := make(map[string]struct{}, s.Len()+newer.Len())
	for _, src := range []*Series{s, newer} {
		if src == nil {
			continue
		}
		for i, d := range src.Dates {
			k := d.Format(DateLayout)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out.Dates = append(out.Dates, d)
			out.Values = append(out.Values, src.Values[i])
		}
	}
	sort.Sort(byDate{out})
	return out
}

type byDate struct{ s *Series }

func (b byDate) Len() int           { return len(b.s.Dates) }
func (b byDate) Less(i, j int) bool { return b.s.Dates[i].Before(b.s.Dates[j]) }
func (b byDate) Swap(i, j int) {
	b.s.Dates[i], b.s.Dates[j] = b.s.Dates[j], b.s.Dates[i]
	b.s.Values[i], b.s.Values[j] = b.s.Values[j], b.s.Values[i]
}
