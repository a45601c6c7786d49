package store

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"stockdb/internal/domain"
)

// tableDoc is the row-oriented form of an intraday table with explicit
// index and column labels. NaN cells are written as null.
type tableDoc struct {
	Columns []string     `json:"columns"`
	Index   []string     `json:"index"`
	Data    [][]*float64 `json:"data"`
}

// seriesDoc is the serialized form of a historical series.
type seriesDoc struct {
	Index []string   `json:"index"`
	Data  []*float64 `json:"data"`
}

// EncodeRecord serializes a record into its JSON document.
func EncodeRecord(rec *domain.Record) ([]byte, error) {
	doc := map[string]any{
		"ticker":   rec.Ticker,
		"market":   string(rec.Market),
		"sector":   rec.Sector,
		"industry": rec.Industry,
	}
	for _, f := range domain.Fields {
		doc[string(f)] = encodeTable(rec.Table(f))
	}
	for _, h := range domain.HistoricalFields {
		if s := rec.Historical[h]; s != nil {
			doc[h] = encodeSeries(s)
		}
	}
	return json.Marshal(doc)
}

// DecodeRecord parses a JSON document into a record.
func DecodeRecord(data []byte) (*domain.Record, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}

	rec := &domain.Record{
		Intraday:   make(map[domain.Field]*domain.Table, len(domain.Fields)),
		Historical: make(map[string]*domain.Series, len(domain.HistoricalFields)),
	}
	var market string
	for key, dst := range map[string]*string{
		"ticker":   &rec.Ticker,
		"market":   &market,
		"sector":   &rec.Sector,
		"industry": &rec.Industry,
	} {
		if msg, ok := raw[key]; ok {
			if err := json.Unmarshal(msg, dst); err != nil {
				return nil, fmt.Errorf("decoding %s: %w", key, err)
			}
		}
	}
	rec.Market = domain.Market(market)

	for _, f := range domain.Fields {
		msg, ok := raw[string(f)]
		if !ok {
			continue
		}
		var td *tableDoc
		if err := json.Unmarshal(msg, &td); err != nil {
			return nil, fmt.Errorf("decoding %s table: %w", f, err)
		}
		tbl, err := decodeTable(td)
		if err != nil {
			return nil, fmt.Errorf("decoding %s table: %w", f, err)
		}
		rec.Intraday[f] = tbl
	}

	for _, h := range domain.HistoricalFields {
		msg, ok := raw[h]
		if !ok {
			continue
		}
		var sd *seriesDoc
		if err := json.Unmarshal(msg, &sd); err != nil {
			return nil, fmt.Errorf("decoding %s series: %w", h, err)
		}
		s, err := decodeSeries(sd)
		if err != nil {
			return nil, fmt.Errorf("decoding %s series: %w", h, err)
		}
		if s != nil {
			rec.Historical[h] = s
		}
	}
	return rec, nil
}

func encodeTable(t *domain.Table) *tableDoc {
	if t == nil {
		return nil
	}
	td := &tableDoc{
		Columns: make([]string, len(t.Times)),
		Index:   make([]string, len(t.Dates)),
		Data:    make([][]*float64, len(t.Values)),
	}
	for j, tm := range t.Times {
		td.Columns[j] = domain.FormatClock(tm)
	}
	for i, d := range t.Dates {
		td.Index[i] = d.Format(domain.DateLayout)
	}
	for i, row := range t.Values {
		td.Data[i] = make([]*float64, len(row))
		for j, v := range row {
			td.Data[i][j] = nullable(v)
		}
	}
	return td
}

func decodeTable(td *tableDoc) (*domain.Table, error) {
	if td == nil {
		return nil, nil
	}
	dates := make([]time.Time, len(td.Index))
	for i, s := range td.Index {
		d, err := domain.ParseDate(s)
		if err != nil {
			return nil, err
		}
		dates[i] = d
	}
	times := make([]time.Duration, len(td.Columns))
	for j, s := range td.Columns {
		c, err := domain.ParseClock(s)
		if err != nil {
			return nil, err
		}
		times[j] = c
	}
	if len(td.Data) != len(dates) {
		return nil, fmt.Errorf("have %d rows for %d index labels", len(td.Data), len(dates))
	}

	t := domain.NewTable(dates, times)
	for i, row := range td.Data {
		if len(row) != len(times) {
			return nil, fmt.Errorf("row %s has %d cells for %d columns", td.Index[i], len(row), len(times))
		}
		for j, v := range row {
			if v != nil {
				t.Values[i][j] = *v
			}
		}
	}
	return t, nil
}

func encodeSeries(s *domain.Series) *seriesDoc {
	sd := &seriesDoc{
		Index: make([]string, len(s.Dates)),
		Data:  make([]*float64, len(s.Values)),
	}
	for i, d := range s.Dates {
		sd.Index[i] = d.Format(domain.DateLayout)
		sd.Data[i] = nullable(s.Values[i])
	}
	return sd
}

func decodeSeries(sd *seriesDoc) (*domain.Series, error) {
	if sd == nil {
		return nil, nil
	}
	if len(sd.Index) != len(sd.Data) {
		return nil, fmt.Errorf("have %d values for %d index labels", len(sd.Data), len(sd.Index))
	}
	s := &domain.Series{
		Dates:  make([]time.Time, len(sd.Index)),
		Values: make([]float64, len(sd.Data)),
	}
	for i, str := range sd.Index {
		d, err := domain.ParseDate(str)
		if err != nil {
			return nil, err
		}
		s.Dates[i] = d
		s.Values[i] = math.NaN()
		if sd.Data[i] != nil {
			s.Values[i] = *sd.Data[i]
		}
	}
	return s, nil
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
