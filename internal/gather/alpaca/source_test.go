package alpaca

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	tradeapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stockdb/internal/domain"
	"stockdb/internal/gather"
)

type fakeBars struct {
	bars []marketdata.Bar
	err  error
	req  marketdata.GetBarsRequest
}

func (f *fakeBars) GetBars(_ string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.req = req
	return f.bars, f.err
}

type fakeAssets struct {
	asset *tradeapi.Asset
	err   error
}

func (f *fakeAssets) GetAsset(string) (*tradeapi.Asset, error) {
	return f.asset, f.err
}

func newTestSource(t *testing.T, bars *fakeBars, assets *fakeAssets) *Source {
	t.Helper()
	s, err := newSource(bars, assets, "iex", 0, nil)
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	s.now = func() time.Time { return time.Date(2024, 3, 6, 22, 0, 0, 0, time.UTC) }
	return s
}

func TestIntradayKeepsRegularSession(t *testing.T) {
	// 14:30 UTC is 09:30 EST; 13:00 UTC is pre-market.
	bars := &fakeBars{bars: []marketdata.Bar{
		{Timestamp: time.Date(2024, 3, 5, 13, 0, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
		{Timestamp: time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1000},
		{Timestamp: time.Date(2024, 3, 5, 14, 35, 0, 0, time.UTC), Open: 10.5, High: 12, Low: 10, Close: 11, Volume: 800},
	}}
	s := newTestSource(t, bars, &fakeAssets{asset: &tradeapi.Asset{Symbol: "NVDA", Exchange: "NASDAQ"}})

	in, err := s.Intraday(context.Background(), "nvda", 5*time.Minute, 2)
	if err != nil {
		t.Fatalf("Intraday: %v", err)
	}
	if in.Exchange != "NASDAQ" {
		t.Errorf("Exchange = %q, want NASDAQ", in.Exchange)
	}

	closes := in.Tables[domain.FieldClose]
	if closes.Rows() != 1 || closes.Cols() != 2 {
		t.Fatalf("close shape = %dx%d, want 1x2", closes.Rows(), closes.Cols())
	}
	if closes.Times[0] != 9*time.Hour+30*time.Minute {
		t.Errorf("first column = %v, want 9h30m", closes.Times[0])
	}
	if got := in.Tables[domain.FieldVolume].Values[0][1]; got != 800 {
		t.Errorf("volume = %v, want 800", got)
	}

	if bars.req.TimeFrame.N != 5 || bars.req.TimeFrame.Unit != marketdata.Min {
		t.Errorf("timeframe = %+v, want 5Min", bars.req.TimeFrame)
	}
	if want := s.now().AddDate(0, 0, -2); !bars.req.Start.Equal(want) {
		t.Errorf("start = %v, want %v", bars.req.Start, want)
	}
}

func TestIntradayUnknownAsset(t *testing.T) {
	s := newTestSource(t, &fakeBars{}, &fakeAssets{err: &tradeapi.APIError{StatusCode: http.StatusNotFound, Message: "asset not found"}})

	_, err := s.Intraday(context.Background(), "ZZZZ", 5*time.Minute, 2)
	if !errors.Is(err, gather.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestIntradayNoBars(t *testing.T) {
	s := newTestSource(t, &fakeBars{}, &fakeAssets{asset: &tradeapi.Asset{Exchange: "NYSE"}})

	_, err := s.Intraday(context.Background(), "IBM", 5*time.Minute, 2)
	if !errors.Is(err, gather.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestIntradayBarsErrorIsTransient(t *testing.T) {
	s := newTestSource(t, &fakeBars{err: errors.New("connection reset")}, &fakeAssets{asset: &tradeapi.Asset{Exchange: "NYSE"}})

	_, err := s.Intraday(context.Background(), "IBM", 5*time.Minute, 2)
	if err == nil || errors.Is(err, gather.ErrNotFound) {
		t.Fatalf("err = %v, want a transient error", err)
	}
}
