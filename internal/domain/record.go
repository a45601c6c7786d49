package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Field names one intraday table.
type Field string

const (
	FieldOpen   Field = "open"
	FieldHigh   Field = "high"
	FieldLow    Field = "low"
	FieldClose  Field = "close"
	FieldVolume Field = "volume"
)

// Fields lists the intraday fields in canonical order.
var Fields = []Field{FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume}

// Historical scalar names tracked per fetch date.
const (
	HistMarketCap = "market_cap"
	HistAvgVolume = "avg_volume"
	HistBeta      = "beta"
	HistDividend  = "dividend"
)

// HistoricalFields lists the historical series in canonical order.
var HistoricalFields = []string{HistMarketCap, HistAvgVolume, HistBeta, HistDividend}

// Intraday is the result of one price-source fetch: five aligned tables and
// the exchange the source reported for the ticker.
type Intraday struct {
	Exchange string
	Tables   map[Field]*Table
}

// Valid counts non-missing values across all five tables.
func (in *Intraday) Valid() int {
	if in == nil {
		return 0
	}
	n := 0
	for _, f := range Fields {
		n += in.Tables[f].Valid()
	}
	return n
}

// Fundamentals is the result of one fundamentals-source fetch.
type Fundamentals struct {
	Sector   string
	Industry string
	AsOf     time.Time
	Activity map[string]float64
}

// Record is everything stored for one ticker.
type Record struct {
	Ticker     string
	Market     Market
	Sector     string
	Industry   string
	Intraday   map[Field]*Table
	Historical map[string]*Series
}

// NewRecord assembles a record from a price fetch and a fundamentals fetch.
// fund may be nil.
func NewRecord(ticker string, in *Intraday, fund *Fundamentals) (*Record, error) {
	if in == nil {
		return nil, fmt.Errorf("%s: no intraday data", ticker)
	}
	market, err := NormalizeMarket(in.Exchange)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ticker, err)
	}
	rec := &Record{
		Ticker:     strings.ToUpper(ticker),
		Market:     market,
		Intraday:   make(map[Field]*Table, len(Fields)),
		Historical: make(map[string]*Series, len(HistoricalFields)),
	}
	for _, f := range Fields {
		rec.Intraday[f] = in.Tables[f]
	}
	if fund != nil {
		rec.Sector = fund.Sector
		rec.Industry = fund.Industry
		asOf := fund.AsOf
		if asOf.IsZero() {
			asOf = time.Now()
		}
		for _, h := range HistoricalFields {
			v, ok := fund.Activity[h]
			if !ok {
				v = math.NaN()
			}
			rec.Historical[h] = NewSeries(asOf, v)
		}
	}
	return rec, nil
}

// Table returns the intraday table for f.
func (r *Record) Table(f Field) *Table {
	if r == nil || r.Intraday == nil {
		return nil
	}
	return r.Intraday[f]
}

// Valid counts non-missing intraday values across all five tables.
func (r *Record) Valid() int {
	n := 0
	for _, f := range Fields {
		n += r.Table(f).Valid()
	}
	return n
}

// Interval is the bar interval derived from the close table's columns.
func (r *Record) Interval() (time.Duration, error) {
	iv, err := r.Table(FieldClose).Interval()
	if err != nil {
		return 0, fmt.Errorf("%s: deriving interval: %w", r.Ticker, err)
	}
	return iv, nil
}

// Dates returns the close table's date index.
func (r *Record) Dates() []time.Time {
	return r.Table(FieldClose).Dates
}

// Merge combines a stored record with a newer fetch. Stored intraday rows
// and historical observations win on duplicate dates; info fields take the
// newer non-empty values.
func (r *Record) Merge(newer *Record) *Record {
	out := &Record{
		Ticker:     r.Ticker,
		Market:     r.Market,
		Sector:     r.Sector,
		Industry:   r.Industry,
		Intraday:   make(map[Field]*Table, len(Fields)),
		Historical: make(map[string]*Series, len(HistoricalFields)),
	}
	if newer.Market != "" {
		out.Market = newer.Market
	}
	if newer.Sector != "" {
		out.Sector = newer.Sector
	}
	if newer.Industry != "" {
		out.Industry = newer.Industry
	}
	for _, f := range Fields {
		out.Intraday[f] = r.Table(f).Merge(newer.Table(f))
	}
	for _, h := range HistoricalFields {
		merged := r.Historical[h].Append(newer.Historical[h])
		if merged.Len() > 0 {
			out.Historical[h] = merged
		}
	}
	return out
}
