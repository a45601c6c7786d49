// Package alpaca serves intraday price tables from the Alpaca market-data
// API.
package alpaca

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tradeapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stockdb/internal/domain"
	"stockdb/internal/gather"
	"stockdb/internal/util"
)

const (
	sessionOpen  = 9*time.Hour + 30*time.Minute
	sessionClose = 16 * time.Hour
)

var _ gather.PriceSource = (*Source)(nil)

type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

type assetClient interface {
	GetAsset(symbol string) (*tradeapi.Asset, error)
}

// Source fetches minute-aggregated bars for one ticker at a time and keeps
// the regular session only.
type Source struct {
	bars    barsClient
	assets  assetClient
	feed    string
	limiter *util.RateLimiter
	loc     *time.Location
	now     func() time.Time
	log     *slog.Logger
}

// Options are the Alpaca connection settings.
type Options struct {
	APIKey    string
	APISecret string
	BaseURL   string // trading API, used for asset lookups
	DataURL   string // market-data API
	Feed      string // "iex" or "sip"
	RateLimit int    // requests per minute, 0 disables
}

// NewSource creates a Source from connection settings.
func NewSource(opts Options, logger *slog.Logger) (*Source, error) {
	mdOpts := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.DataURL != "" {
		mdOpts.BaseURL = opts.DataURL
	}
	trOpts := tradeapi.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.BaseURL != "" {
		trOpts.BaseURL = opts.BaseURL
	}

	feed := opts.Feed
	if feed == "" {
		feed = "iex"
	}
	return newSource(marketdata.NewClient(mdOpts), tradeapi.NewClient(trOpts), feed, opts.RateLimit, logger)
}

func newSource(bars barsClient, assets assetClient, feed string, rateLimit int, logger *slog.Logger) (*Source, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("loading ET timezone: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		bars:    bars,
		assets:  assets,
		feed:    feed,
		limiter: util.NewRateLimiter(rateLimit),
		loc:     loc,
		now:     time.Now,
		log:     logger.With("source", "alpaca"),
	}, nil
}

// Intraday fetches the last days calendar days of bars at interval. An
// unknown asset or an empty bar set means the ticker is not found.
func (s *Source) Intraday(ctx context.Context, ticker string, interval time.Duration, days int) (*domain.Intraday, error) {
	minutes := int(interval / time.Minute)
	if minutes < 1 {
		return nil, fmt.Errorf("interval %v is below one minute", interval)
	}
	symbol := strings.ToUpper(ticker)

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	asset, err := s.assets.GetAsset(symbol)
	if err != nil {
		var apiErr *tradeapi.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", symbol, gather.ErrNotFound)
		}
		return nil, fmt.Errorf("GetAsset %s: %w", symbol, err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	end := s.now()
	bars, err := s.bars.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.NewTimeFrame(minutes, marketdata.Min),
		Start:     end.AddDate(0, 0, -days),
		End:       end,
		Feed:      marketdata.Feed(s.feed),
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	out := make([]gather.Bar, 0, len(bars))
	for _, b := range bars {
		local := b.Timestamp.In(s.loc)
		tod := time.Duration(local.Hour())*time.Hour + time.Duration(local.Minute())*time.Minute
		if tod < sessionOpen || tod >= sessionClose {
			continue
		}
		out = append(out, gather.Bar{
			Time:   local,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no bars: %w", symbol, gather.ErrNotFound)
	}

	s.log.Debug("bars fetched", "ticker", symbol, "bars", len(out))
	return gather.BuildIntraday(string(asset.Exchange), out), nil
}
