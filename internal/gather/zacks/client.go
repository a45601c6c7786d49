// Package zacks scrapes sector, industry and stock-activity figures from
// the Zacks quote page.
package zacks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"stockdb/internal/domain"
	"stockdb/internal/gather"
	"stockdb/internal/util"
)

const (
	// DefaultBaseURL is the quote page root; the ticker is appended.
	DefaultBaseURL = "https://www.zacks.com/stock/quote"

	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second

	// The site rejects the default Go user agent.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/79.0.3945.130 Safari/537.36"
)

// activityKeys maps stock-activity row labels to stored names.
var activityKeys = map[string]string{
	"Open":        "open",
	"Day Low":     "day_low",
	"Day High":    "day_high",
	"52 Wk Low":   "52_wk_low",
	"52 Wk High":  "52_wk_high",
	"Avg. Volume": domain.HistAvgVolume,
	"Market Cap":  domain.HistMarketCap,
	"Dividend":    domain.HistDividend,
	"Beta":        domain.HistBeta,
}

var _ gather.FundamentalsSource = (*Client)(nil)

// Client fetches and parses quote pages.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *util.RateLimiter
	log        *slog.Logger
	now        func() time.Time
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

// NewClient creates a new quote page client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: slog.Default(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("source", "zacks")
	return c
}

// Fundamentals fetches the quote page for ticker. A page without a stock
// activity section means the ticker is unknown.
func (c *Client) Fundamentals(ctx context.Context, ticker string) (*domain.Fundamentals, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := c.baseURL + "/" + strings.ToUpper(ticker)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", ticker, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ticker, err)
	}

	fund, err := parse(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ticker, err)
	}
	fund.AsOf = domain.Day(c.now())

	c.log.Debug("fundamentals parsed", "ticker", ticker, "sector", fund.Sector, "fields", len(fund.Activity))
	return fund, nil
}

func parse(doc *goquery.Document) (*domain.Fundamentals, error) {
	activity := doc.Find("section#stock_activity")
	if activity.Length() == 0 {
		return nil, gather.ErrNotFound
	}

	fund := &domain.Fundamentals{Activity: make(map[string]float64)}

	doc.Find("table.abut_top").Each(func(_ int, s *goquery.Selection) {
		links := s.Find("a")
		if links.Length() >= 2 {
			fund.Sector = strings.TrimSpace(links.Eq(0).Text())
			fund.Industry = strings.TrimSpace(links.Eq(1).Text())
		}
	})

	cells := activity.Find("td")
	for i := 0; i+1 < cells.Length(); i += 2 {
		label := strings.TrimSpace(cells.Eq(i).Text())
		key, ok := activityKeys[label]
		if !ok {
			continue
		}
		if v, ok := textToNum(cells.Eq(i + 1).Text()); ok {
			fund.Activity[key] = v
		}
	}
	return fund, nil
}

// textToNum parses activity cells: thousands separators, M and B
// magnitude suffixes, and the dividend form "0.16 ( 0.07%)" from which the
// yield percentage is taken.
func textToNum(text string) (float64, bool) {
	text = strings.TrimSpace(strings.ReplaceAll(text, ",", ""))
	if open := strings.Index(text, "("); open >= 0 && strings.HasSuffix(text, ")") {
		text = strings.TrimSpace(text[open+1 : len(text)-1])
		text = strings.TrimSuffix(text, "%")
	}
	if text == "" {
		return 0, false
	}

	mult := 1.0
	switch text[len(text)-1] {
	case 'M':
		mult, text = 1e6, text[:len(text)-1]
	case 'B':
		mult, text = 1e9, text[:len(text)-1]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, false
	}
	return v * mult, true
}
