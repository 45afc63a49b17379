package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"portfolioOptimizer/internal/optimizer"
)

// ErrDataUnavailable matches every DataUnavailableError.
var ErrDataUnavailable = errors.New("price data unavailable")

// DataUnavailableError reports a ticker the provider could not serve:
// unknown symbol, empty window or no valid closes.
type DataUnavailableError struct {
	Ticker string
	Reason string
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("price data unavailable for %s: %s", e.Ticker, e.Reason)
}

func (e *DataUnavailableError) Is(target error) bool { return target == ErrDataUnavailable }

// Provider returns daily closing prices for one ticker over [start, end).
// Points are ordered by time and every close is positive.
type Provider interface {
	Fetch(ctx context.Context, ticker string, start, end time.Time) ([]optimizer.PricePoint, error)
}

// PriceCache stores fetched series keyed by ticker and window.
// A miss is (nil, false, nil). A ttl ≤ 0 on put means the cache's own
// default lifetime.
type PriceCache interface {
	GetPrices(ctx context.Context, key string) ([]optimizer.PricePoint, bool, error)
	PutPrices(ctx context.Context, key string, points []optimizer.PricePoint, ttl time.Duration) error
}

// yahooChartResp mirrors the Yahoo v8 chart response (trimmed to needed fields)
type yahooChartResp struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol    string `json:"symbol"`
				Currency  string `json:"currency"`
				GmtOffset int    `json:"gmtoffset"`
				Timezone  string `json:"timezone"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"chart"`
}

type yahooError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}
