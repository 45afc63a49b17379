package finance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"portfolioOptimizer/internal/optimizer"
)

var (
	defaultYahooHosts = []string{"https://query1.finance.yahoo.com", "https://query2.finance.yahoo.com"}
	defaultBackoffs   = []time.Duration{200 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15"

// YahooProvider fetches daily closes from the Yahoo v8 chart API. Each
// attempt walks the hosts in order; between attempts it sleeps for the
// next backoff.
type YahooProvider struct {
	client       *http.Client
	hosts        []string
	backoffs     []time.Duration
	dropOutliers bool
	log          zerolog.Logger
}

type YahooOption func(*YahooProvider)

func WithHTTPClient(c *http.Client) YahooOption {
	return func(p *YahooProvider) { p.client = c }
}

// WithHosts replaces the Yahoo base URLs, e.g. with an httptest server.
func WithHosts(hosts ...string) YahooOption {
	return func(p *YahooProvider) { p.hosts = hosts }
}

func WithBackoffs(b ...time.Duration) YahooOption {
	return func(p *YahooProvider) { p.backoffs = b }
}

// WithOutlierFilter drops closes outside the 1.5×IQR fences.
func WithOutlierFilter() YahooOption {
	return func(p *YahooProvider) { p.dropOutliers = true }
}

func WithLogger(l zerolog.Logger) YahooOption {
	return func(p *YahooProvider) { p.log = l }
}

func NewYahooProvider(opts ...YahooOption) *YahooProvider {
	p := &YahooProvider{
		client:   &http.Client{Timeout: 20 * time.Second},
		hosts:    defaultYahooHosts,
		backoffs: defaultBackoffs,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	p.log = p.log.With().Str("component", "yahoo").Logger()
	return p
}

// errNoRetry wraps failures that another host or attempt cannot fix.
type errNoRetry struct{ err error }

func (e errNoRetry) Error() string { return e.err.Error() }
func (e errNoRetry) Unwrap() error { return e.err }

func (p *YahooProvider) Fetch(ctx context.Context, ticker string, start, end time.Time) ([]optimizer.PricePoint, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, &DataUnavailableError{Ticker: ticker, Reason: "empty ticker"}
	}
	if !end.After(start) {
		return nil, &DataUnavailableError{Ticker: ticker, Reason: "empty window"}
	}

	var yc *yahooChartResp
	var lastErr error
	for attempt := 0; attempt < len(p.backoffs)+1; attempt++ {
		for _, host := range p.hosts {
			yc, lastErr = p.fetchChart(ctx, host, ticker, start, end)
			if lastErr == nil {
				break
			}
			var stop errNoRetry
			if errors.As(lastErr, &stop) {
				return nil, stop.err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.log.Debug().Err(lastErr).Str("ticker", ticker).Str("host", host).Int("attempt", attempt).Msg("yahoo: fetch failed")
		}
		if lastErr == nil {
			break
		}
		if attempt < len(p.backoffs) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.backoffs[attempt]):
			}
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("yahoo: fetch %s: %w", ticker, lastErr)
	}

	points, err := chartPoints(ticker, yc)
	if err != nil {
		return nil, err
	}
	points = lastPerDay(dropNonPositive(points))
	if p.dropOutliers {
		points = filterIQR(points, 1.5, 20)
	}
	if len(points) == 0 {
		return nil, &DataUnavailableError{Ticker: ticker, Reason: "no valid closes in window"}
	}
	p.log.Debug().Str("ticker", ticker).Int("points", len(points)).Msg("yahoo: fetched daily closes")
	return points, nil
}

func (p *YahooProvider) fetchChart(ctx context.Context, host, ticker string, start, end time.Time) (*yahooChartResp, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d&events=div,splits",
		host, url.PathEscape(ticker), start.Unix(), end.Unix())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errNoRetry{err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", fmt.Sprintf("https://finance.yahoo.com/quote/%s/history", ticker))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read yahoo response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || strings.HasPrefix(string(body), "Edge: Too Many Requests") {
		return nil, fmt.Errorf("yahoo %s returned 429: Edge: Too Many Requests", host)
	}
	var yc yahooChartResp
	if resp.StatusCode == http.StatusNotFound {
		reason := "symbol not found"
		if json.Unmarshal(body, &yc) == nil && yc.Chart.Error != nil && yc.Chart.Error.Description != "" {
			reason = yc.Chart.Error.Description
		}
		return nil, errNoRetry{&DataUnavailableError{Ticker: ticker, Reason: reason}}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo %s returned %d: %s", host, resp.StatusCode, preview(body))
	}
	if strings.HasPrefix(string(body), "<") || strings.HasPrefix(string(body), "Edge:") {
		return nil, fmt.Errorf("yahoo returned non-json body: %s", preview(body))
	}
	if err := json.Unmarshal(body, &yc); err != nil {
		return nil, fmt.Errorf("failed to parse yahoo json: %v; body: %s", err, preview(body))
	}
	if yc.Chart.Error != nil {
		return nil, errNoRetry{&DataUnavailableError{Ticker: ticker, Reason: yc.Chart.Error.Description}}
	}
	return &yc, nil
}

// chartPoints pairs trading dates with adjusted closes, falling back to raw
// closes when Yahoo omits the adjclose block. Null closes decode as 0.
// Bars are stamped at the session open of the listing exchange, so each
// timestamp is shifted by the exchange offset and truncated to its local
// calendar day; series from different exchanges then share dates.
func chartPoints(ticker string, yc *yahooChartResp) ([]optimizer.PricePoint, error) {
	if len(yc.Chart.Result) == 0 {
		return nil, &DataUnavailableError{Ticker: ticker, Reason: "no data"}
	}
	res := yc.Chart.Result[0]
	var closes []float64
	switch {
	case len(res.Indicators.AdjClose) > 0 && len(res.Indicators.AdjClose[0].AdjClose) > 0:
		closes = res.Indicators.AdjClose[0].AdjClose
	case len(res.Indicators.Quote) > 0:
		closes = res.Indicators.Quote[0].Close
	}
	if len(res.Timestamp) == 0 || len(closes) == 0 {
		return nil, &DataUnavailableError{Ticker: ticker, Reason: "no data"}
	}
	offset := int64(res.Meta.GmtOffset)
	n := min(len(res.Timestamp), len(closes))
	points := make([]optimizer.PricePoint, n)
	for i := 0; i < n; i++ {
		points[i] = optimizer.PricePoint{Time: tradingDay(res.Timestamp[i], offset), Close: closes[i]}
	}
	return points, nil
}

func tradingDay(ts, gmtOffset int64) time.Time {
	return time.Unix(ts+gmtOffset, 0).UTC().Truncate(24 * time.Hour)
}

func preview(body []byte) string {
	if len(body) > 120 {
		return string(body[:120])
	}
	return string(body)
}
