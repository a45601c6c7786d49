// Package worldtrade fetches intraday price tables from the World Trading
// Data intraday API.
package worldtrade

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stockdb/internal/domain"
	"stockdb/internal/gather"
	"stockdb/internal/util"
)

const (
	// DefaultBaseURL is the intraday API root.
	DefaultBaseURL = "https://intraday.worldtradingdata.com/api/v1"

	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second

	// MaxRangeDays is the longest range the API serves.
	MaxRangeDays = 30

	// MaxMinuteRangeDays is the longest range served for 1-minute bars.
	MaxMinuteRangeDays = 7

	keyLayout = "2006-01-02 15:04:05"
)

var _ gather.PriceSource = (*Client)(nil)

// Client is a World Trading Data intraday client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *util.RateLimiter
	log        *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit caps requests per minute. Zero disables limiting.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) {
		c.limiter = util.NewRateLimiter(perMinute)
	}
}

// WithLogger sets a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.log = logger
	}
}

// NewClient creates a new intraday client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("source", "worldtrade")
	return c
}

// response is the subset of the intraday payload we read. Prices arrive as
// strings.
type response struct {
	Symbol        string                          `json:"symbol"`
	ExchangeShort string                          `json:"stock_exchange_short"`
	Message       string                          `json:"message"`
	Intraday      map[string]map[string]flexFloat `json:"intraday"`
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = flexFloat(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parsing %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

// Intraday downloads the last days of bars at interval for ticker. A
// payload without an intraday section means the ticker is unknown.
func (c *Client) Intraday(ctx context.Context, ticker string, interval time.Duration, days int) (*domain.Intraday, error) {
	minutes := int(interval / time.Minute)
	if minutes < 1 {
		return nil, fmt.Errorf("interval %v is below one minute", interval)
	}
	if days < 1 || days > MaxRangeDays {
		days = MaxRangeDays
	}
	if minutes == 1 && days > MaxMinuteRangeDays {
		days = MaxMinuteRangeDays
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", strings.ToUpper(ticker))
	params.Set("range", strconv.Itoa(days))
	params.Set("interval", strconv.Itoa(minutes))
	params.Set("api_token", c.apiKey)
	reqURL := c.baseURL + "/intraday?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	c.log.Debug("intraday request", "ticker", ticker, "range", days, "interval", minutes)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetching %s: status %d: %s", ticker, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", ticker, err)
	}
	if payload.Intraday == nil {
		return nil, fmt.Errorf("%s: %w: %s", ticker, gather.ErrNotFound, payload.Message)
	}

	bars := make([]gather.Bar, 0, len(payload.Intraday))
	for key, fields := range payload.Intraday {
		ts, err := time.Parse(keyLayout, key)
		if err != nil {
			c.log.Warn("skipping malformed timestamp", "ticker", ticker, "key", key)
			continue
		}
		bars = append(bars, gather.Bar{
			Time:   ts,
			Open:   field(fields, "open"),
			High:   field(fields, "high"),
			Low:    field(fields, "low"),
			Close:  field(fields, "close"),
			Volume: field(fields, "volume"),
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w: no bars in range", ticker, gather.ErrNotFound)
	}
	return gather.BuildIntraday(payload.ExchangeShort, bars), nil
}

func field(fields map[string]flexFloat, name string) float64 {
	v, ok := fields[name]
	if !ok {
		return math.NaN()
	}
	return float64(v)
}
