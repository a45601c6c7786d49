package worldtrade

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"stockdb/internal/domain"
	"stockdb/internal/gather"
)

const samplePayload = `{
  "symbol": "NVDA",
  "stock_exchange_short": "NASDAQ",
  "timezone_name": "America/New_York",
  "intraday": {
    "2020-01-02 09:30:00": {"open": "238.75", "close": "239.10", "high": "239.50", "low": "238.60", "volume": "51234"},
    "2020-01-02 09:45:00": {"open": "239.10", "close": "239.40", "high": "239.80", "low": "239.00", "volume": "40111"},
    "2020-01-03 09:30:00": {"open": "235.00", "close": "235.20", "high": "235.90", "low": "234.80", "volume": "61000"}
  }
}`

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *url.URL) {
	t.Helper()
	seen := new(url.URL)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = *r.URL
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestIntradayParsesTables(t *testing.T) {
	srv, u := newTestServer(t, http.StatusOK, samplePayload)
	c := NewClient("secret", WithBaseURL(srv.URL))

	in, err := c.Intraday(context.Background(), "nvda", 15*time.Minute, 5)
	if err != nil {
		t.Fatalf("Intraday: %v", err)
	}

	if u.Path != "/intraday" {
		t.Errorf("path = %q, want /intraday", u.Path)
	}
	q := u.Query()
	if q.Get("symbol") != "NVDA" || q.Get("interval") != "15" || q.Get("range") != "5" || q.Get("api_token") != "secret" {
		t.Errorf("unexpected query %v", q)
	}

	if in.Exchange != "NASDAQ" {
		t.Errorf("Exchange = %q, want NASDAQ", in.Exchange)
	}
	closes := in.Tables[domain.FieldClose]
	if closes.Rows() != 2 || closes.Cols() != 2 {
		t.Fatalf("close shape = %dx%d, want 2x2", closes.Rows(), closes.Cols())
	}
	if closes.Values[0][1] != 239.40 {
		t.Errorf("close[0][1] = %v, want 239.40", closes.Values[0][1])
	}
	if !math.IsNaN(closes.Values[1][1]) {
		t.Errorf("missing slot should be NaN, got %v", closes.Values[1][1])
	}
	if v := in.Tables[domain.FieldVolume].Values[1][0]; v != 61000 {
		t.Errorf("volume[1][0] = %v, want 61000", v)
	}
}

func TestIntradayUnknownTicker(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"message":"Error! The requested stock(s) could not be found."}`)
	c := NewClient("secret", WithBaseURL(srv.URL))

	_, err := c.Intraday(context.Background(), "ZZZZ", 5*time.Minute, 30)
	if !errors.Is(err, gather.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestIntradayServerErrorIsTransient(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusInternalServerError, "boom")
	c := NewClient("secret", WithBaseURL(srv.URL))

	_, err := c.Intraday(context.Background(), "NVDA", 5*time.Minute, 30)
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
	if errors.Is(err, gather.ErrNotFound) {
		t.Error("a server error must not be reported as not found")
	}
}

func TestIntradayRejectsSubMinuteInterval(t *testing.T) {
	c := NewClient("secret", WithBaseURL("http://127.0.0.1:0"))
	if _, err := c.Intraday(context.Background(), "NVDA", 30*time.Second, 1); err == nil {
		t.Fatal("expected an error for a 30s interval")
	}
}

func TestIntradayEmptySectionIsNotFound(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"symbol":"NVDA","stock_exchange_short":"NASDAQ","intraday":{}}`)
	c := NewClient("secret", WithBaseURL(srv.URL))

	in, err := c.Intraday(context.Background(), "NVDA", 15*time.Minute, 5)
	if !errors.Is(err, gather.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if in != nil {
		t.Errorf("Intraday returned %+v with an error", in)
	}
}

func TestIntradayClampsRange(t *testing.T) {
	tests := []struct {
		interval time.Duration
		days     int
		want     string
	}{
		{time.Minute, 30, "7"},
		{time.Minute, 3, "3"},
		{5 * time.Minute, 30, "30"},
		{15 * time.Minute, 90, "30"},
		{15 * time.Minute, 0, "30"},
	}
	for _, tt := range tests {
		srv, u := newTestServer(t, http.StatusOK, samplePayload)
		c := NewClient("secret", WithBaseURL(srv.URL))
		if _, err := c.Intraday(context.Background(), "NVDA", tt.interval, tt.days); err != nil {
			t.Fatalf("Intraday(%v, %d): %v", tt.interval, tt.days, err)
		}
		if got := u.Query().Get("range"); got != tt.want {
			t.Errorf("Intraday(%v, %d) range = %s, want %s", tt.interval, tt.days, got, tt.want)
		}
	}
}
