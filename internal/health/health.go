// Package health runs data-quality checks over stored records. Each check
// adds its findings to a shared map; a record with no findings is healthy.
package health

import (
	"context"
	"sort"
	"strings"
	"time"

	"stockdb/internal/domain"
	"stockdb/internal/util"
)

// Finding keys.
const (
	KeyNaNRatio          = "nan_ratio"
	KeyIncoherent        = "incoherent"
	KeyMissingDates      = "missing_dates"
	KeyCalendarError     = "calendar_error"
	KeyStale             = "stale"
	KeyMissingAttributes = "missing_attributes"
)

// Findings maps a check name to what it found.
type Findings map[string]any

// Check inspects one record and records anything wrong in f.
type Check func(rec *domain.Record, f Findings)

// Run applies checks to rec and returns the findings, empty when healthy.
func Run(rec *domain.Record, checks ...Check) Findings {
	f := make(Findings)
	for _, c := range checks {
		c(rec, f)
	}
	return f
}

// Options selects and parameterizes the standard check set.
type Options struct {
	NaNAllowed     float64
	MissingAllowed float64
	Calendar       util.Calendar // nil skips the missing-dates check
	StaleCutoff    time.Time     // zero skips the staleness check
}

// Standard returns the checks enabled by opts.
func Standard(ctx context.Context, opts Options) []Check {
	checks := []Check{
		Attributes(),
		Coherence(),
		NaNRatio(opts.NaNAllowed),
	}
	if opts.Calendar != nil {
		checks = append(checks, MissingDates(ctx, opts.Calendar, opts.MissingAllowed))
	}
	if !opts.StaleCutoff.IsZero() {
		checks = append(checks, Stale(opts.StaleCutoff))
	}
	return checks
}

// NaNRatio flags every intraday field whose missing fraction exceeds
// allowed. Empty tables count as fully missing.
func NaNRatio(allowed float64) Check {
	return func(rec *domain.Record, f Findings) {
		bad := make(map[string]float64)
		for _, field := range domain.Fields {
			if r := rec.Table(field).NaNRatio(); r > allowed {
				bad[string(field)] = r
			}
		}
		if len(bad) > 0 {
			f[KeyNaNRatio] = bad
		}
	}
}

// Coherence flags intraday fields whose date index differs from the one
// shared by most fields. Ties go to the close table's index, then to
// canonical field order.
func Coherence() Check {
	return func(rec *domain.Record, f Findings) {
		keys := make(map[domain.Field]string, len(domain.Fields))
		votes := make(map[string]int)
		for _, field := range domain.Fields {
			k := dateKey(rec.Table(field))
			keys[field] = k
			votes[k]++
		}

		majority := keys[domain.FieldClose]
		for _, field := range domain.Fields {
			if k := keys[field]; votes[k] > votes[majority] {
				majority = k
			}
		}

		var bad []string
		for _, field := range domain.Fields {
			if keys[field] != majority {
				bad = append(bad, string(field))
			}
		}
		if len(bad) > 0 {
			f[KeyIncoherent] = bad
		}
	}
}

func dateKey(t *domain.Table) string {
	set := t.DateSet()
	ds := make([]string, 0, len(set))
	for d := range set {
		ds = append(ds, d)
	}
	sort.Strings(ds)
	return strings.Join(ds, ",")
}

// MissingDates compares the close table's dates against the trading days
// cal reports between its first and last date. It flags only when the
// calendar expects more sessions than were observed and the missing
// fraction exceeds allowed.
func MissingDates(ctx context.Context, cal util.Calendar, allowed float64) Check {
	return func(rec *domain.Record, f Findings) {
		closes := rec.Table(domain.FieldClose)
		if closes.Empty() {
			return
		}
		expected, err := cal.ValidDays(ctx, closes.FirstDate(), closes.LastDate())
		if err != nil {
			f[KeyCalendarError] = err.Error()
			return
		}
		observed := closes.DateSet()
		if len(expected) <= len(observed) {
			return
		}

		var missing []string
		for _, d := range expected {
			s := d.Format(domain.DateLayout)
			if _, ok := observed[s]; !ok {
				missing = append(missing, s)
			}
		}
		if len(missing) > 0 && float64(len(missing))/float64(len(expected)) > allowed {
			f[KeyMissingDates] = missing
		}
	}
}

// Stale flags a record whose latest close date is before cutoff.
func Stale(cutoff time.Time) Check {
	cutoff = domain.Day(cutoff)
	return func(rec *domain.Record, f Findings) {
		closes := rec.Table(domain.FieldClose)
		if closes.Empty() {
			f[KeyStale] = "no data"
			return
		}
		if last := closes.LastDate(); last.Before(cutoff) {
			f[KeyStale] = last.Format(domain.DateLayout)
		}
	}
}

// Attributes lists info fields that are blank and tables or series that are
// absent or empty.
func Attributes() Check {
	return func(rec *domain.Record, f Findings) {
		var missing []string
		for name, v := range map[string]string{
			"ticker":   rec.Ticker,
			"market":   string(rec.Market),
			"sector":   rec.Sector,
			"industry": rec.Industry,
		} {
			if strings.TrimSpace(v) == "" {
				missing = append(missing, name)
			}
		}
		for _, field := range domain.Fields {
			if rec.Table(field).Empty() {
				missing = append(missing, string(field))
			}
		}
		for _, h := range domain.HistoricalFields {
			if rec.Historical[h].Len() == 0 {
				missing = append(missing, h)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			f[KeyMissingAttributes] = missing
		}
	}
}
