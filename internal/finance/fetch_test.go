package finance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolioOptimizer/internal/optimizer"
)

const chartOK = `{"chart":{"result":[{"meta":{"symbol":"AAPL","currency":"USD"},
"timestamp":[1704205800,1704292200,1704378600,1704465000],
"indicators":{"quote":[{"close":[185.6,184.2,null,181.9]}],
"adjclose":[{"adjclose":[184.9,183.5,null,181.2]}]}}],"error":null}}`

var (
	windowStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
)

func TestYahooProvider_Fetch(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		fmt.Fprint(w, chartOK)
	}))
	defer srv.Close()

	p := NewYahooProvider(WithHosts(srv.URL), WithBackoffs())
	points, err := p.Fetch(context.Background(), "aapl", windowStart, windowEnd)
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/AAPL", gotPath)
	assert.Contains(t, gotQuery, fmt.Sprintf("period1=%d", windowStart.Unix()))
	assert.Contains(t, gotQuery, fmt.Sprintf("period2=%d", windowEnd.Unix()))
	assert.Contains(t, gotQuery, "interval=1d")

	// null session dropped, adjusted closes preferred
	require.Len(t, points, 3)
	assert.Equal(t, 184.9, points[0].Close)
	assert.Equal(t, 181.2, points[2].Close)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), points[0].Time)
}

func TestYahooProvider_FallsBackToRawClose(t *testing.T) {
	body := `{"chart":{"result":[{"timestamp":[86400,172800],"indicators":{"quote":[{"close":[10,11]}]}}]}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	points, err := NewYahooProvider(WithHosts(srv.URL)).Fetch(context.Background(), "X", windowStart, windowEnd)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 11.0, points[1].Close)
}

func TestYahooProvider_NotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)
	}))
	defer srv.Close()

	_, err := NewYahooProvider(WithHosts(srv.URL, srv.URL), WithBackoffs(0, 0)).Fetch(context.Background(), "NOPE", windowStart, windowEnd)
	require.Error(t, err)
	var de *DataUnavailableError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "NOPE", de.Ticker)
	assert.Contains(t, de.Reason, "delisted")
	assert.Equal(t, int32(1), calls.Load(), "not found is not retried")
}

func TestYahooProvider_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, "Edge: Too Many Requests")
			return
		}
		fmt.Fprint(w, chartOK)
	}))
	defer srv.Close()

	points, err := NewYahooProvider(WithHosts(srv.URL), WithBackoffs(0, 0, 0)).Fetch(context.Background(), "AAPL", windowStart, windowEnd)
	require.NoError(t, err)
	assert.Len(t, points, 3)
	assert.Equal(t, int32(3), calls.Load())
}

func TestYahooProvider_GivesUpAfterBackoffs(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewYahooProvider(WithHosts(srv.URL), WithBackoffs(0)).Fetch(context.Background(), "AAPL", windowStart, windowEnd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(2), calls.Load())
}

func TestYahooProvider_HostFallback(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>consent</html>")
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, chartOK)
	}))
	defer good.Close()

	points, err := NewYahooProvider(WithHosts(bad.URL, good.URL), WithBackoffs()).Fetch(context.Background(), "AAPL", windowStart, windowEnd)
	require.NoError(t, err)
	assert.Len(t, points, 3)
}

func TestYahooProvider_ChartError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Bad Request","description":"Invalid input"}}}`)
	}))
	defer srv.Close()

	_, err := NewYahooProvider(WithHosts(srv.URL)).Fetch(context.Background(), "AAPL", windowStart, windowEnd)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestYahooProvider_NoValidCloses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[{"timestamp":[86400,172800],"indicators":{"quote":[{"close":[null,0]}]}}]}}`)
	}))
	defer srv.Close()

	_, err := NewYahooProvider(WithHosts(srv.URL)).Fetch(context.Background(), "AAPL", windowStart, windowEnd)
	assert.ErrorIs(t, err, ErrDataUnavailable)
	assert.True(t, strings.Contains(err.Error(), "no valid closes"))
}

func TestYahooProvider_RejectsBadInput(t *testing.T) {
	p := NewYahooProvider(WithHosts("http://127.0.0.1:0"))
	_, err := p.Fetch(context.Background(), "  ", windowStart, windowEnd)
	assert.ErrorIs(t, err, ErrDataUnavailable)
	_, err = p.Fetch(context.Background(), "AAPL", windowEnd, windowStart)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestYahooProvider_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewYahooProvider(WithHosts(srv.URL), WithBackoffs(time.Hour)).Fetch(ctx, "AAPL", windowStart, windowEnd)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestYahooProvider_AlignsExchangesByTradingDay(t *testing.T) {
	// Same five sessions: New York bars open 14:30 UTC, Xetra bars 08:00 UTC.
	days := []time.Time{
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
	}
	body := func(open time.Duration, offset int, closes string) string {
		ts := make([]string, len(days))
		for i, d := range days {
			ts[i] = fmt.Sprint(d.Add(open).Unix())
		}
		return fmt.Sprintf(`{"chart":{"result":[{"meta":{"gmtoffset":%d},"timestamp":[%s],"indicators":{"quote":[{"close":[%s]}]}}]}}`,
			offset, strings.Join(ts, ","), closes)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v8/finance/chart/AAPL":
			fmt.Fprint(w, body(14*time.Hour+30*time.Minute, -18000, "185,184,182,181,185"))
		case "/v8/finance/chart/SAP.DE":
			fmt.Fprint(w, body(8*time.Hour, 3600, "139,140,141,140,142"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewYahooProvider(WithHosts(srv.URL), WithBackoffs())
	end := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	var series []optimizer.AssetSeries
	for _, ticker := range []string{"AAPL", "SAP.DE"} {
		points, err := p.Fetch(context.Background(), ticker, windowStart, end)
		require.NoError(t, err)
		require.Len(t, points, len(days))
		for i, pt := range points {
			assert.Equal(t, days[i], pt.Time, "%s point %d", ticker, i)
		}
		series = append(series, optimizer.AssetSeries{Symbol: ticker, Points: points})
	}

	r, err := optimizer.ComputeReturns(series)
	require.NoError(t, err)
	periods, assets := r.Dims()
	assert.Equal(t, len(days)-1, periods)
	assert.Equal(t, 2, assets)
}

func TestYahooProvider_LiveBarReplacesSameDay(t *testing.T) {
	body := `{"chart":{"result":[{"meta":{"gmtoffset":-18000},
"timestamp":[1704205800,1704292200,1704306600],
"indicators":{"quote":[{"close":[185.6,184.2,184.9]}]}}]}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	points, err := NewYahooProvider(WithHosts(srv.URL)).Fetch(context.Background(), "AAPL", windowStart, windowEnd)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), points[1].Time)
	assert.Equal(t, 184.9, points[1].Close)
}
