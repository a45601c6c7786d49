package util

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"stockdb/internal/domain"
)

var _ Calendar = (*AlpacaCalendar)(nil)

// AlpacaCalendar serves trading days from the Alpaca trading calendar API.
type AlpacaCalendar struct {
	client *alpaca.Client
}

// NewAlpacaCalendar creates a calendar backed by the Alpaca trading API.
func NewAlpacaCalendar(apiKey, apiSecret, baseURL string) *AlpacaCalendar {
	return &AlpacaCalendar{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
	}
}

// ValidDays returns the trading dates in [start, end], ascending.
func (ac *AlpacaCalendar) ValidDays(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	calendar, err := ac.client.GetCalendar(alpaca.GetCalendarRequest{
		Start: start,
		End:   end,
	})
	if err != nil {
		return nil, fmt.Errorf("GetCalendar: %w", err)
	}

	days := make([]time.Time, 0, len(calendar))
	for _, day := range calendar {
		d, err := domain.ParseDate(day.Date)
		if err != nil {
			continue
		}
		days = append(days, d)
	}
	return days, nil
}

// LatestFinishedTradingDay returns the most recent trading day whose
// session has ended (after 20:05 ET, once extended-hours data settles).
func (ac *AlpacaCalendar) LatestFinishedTradingDay(ctx context.Context) (time.Time, error) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Time{}, fmt.Errorf("loading ET timezone: %w", err)
	}

	now := time.Now().In(et)
	days, err := ac.ValidDays(ctx, now.AddDate(0, 0, -7), now)
	if err != nil {
		return time.Time{}, err
	}
	if len(days) == 0 {
		return time.Time{}, fmt.Errorf("no trading days returned from calendar")
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 20, 5, 0, 0, et)
	for i := len(days) - 1; i >= 0; i-- {
		if days[i].Equal(today) {
			if now.After(cutoff) {
				return days[i], nil
			}
			continue
		}
		if days[i].Before(today) {
			return days[i], nil
		}
	}
	return time.Time{}, fmt.Errorf("could not determine latest finished trading day")
}
