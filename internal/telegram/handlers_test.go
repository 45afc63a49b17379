package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolioOptimizer/internal/config"
	"portfolioOptimizer/internal/finance"
	"portfolioOptimizer/internal/optimizer"
	"portfolioOptimizer/internal/portfolio"
	"portfolioOptimizer/internal/storage"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) texts() []string {
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeSender) photos() []tgbotapi.PhotoConfig {
	var out []tgbotapi.PhotoConfig
	for _, c := range f.sent {
		if p, ok := c.(tgbotapi.PhotoConfig); ok {
			out = append(out, p)
		}
	}
	return out
}

type fakeOptimizer struct {
	req    portfolio.Request
	report *portfolio.Report
	err    error
	runs   []storage.RunRecord
}

func (f *fakeOptimizer) Run(_ context.Context, req portfolio.Request) (*portfolio.Report, error) {
	f.req = req
	return f.report, f.err
}

func (f *fakeOptimizer) History(_ context.Context, _ int64, limit int) ([]storage.RunRecord, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

type fakeExplainer struct{ text string }

func (f fakeExplainer) Explain(context.Context, *portfolio.Report) (string, error) {
	return f.text, nil
}

var now = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func sampleReport() *portfolio.Report {
	return &portfolio.Report{
		ID:           "6f1c1f5e-2b47-4a39-9a51-3f7f1f8e0c11",
		Tickers:      []string{"AAPL", "TLT"},
		Start:        time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC),
		RiskAversion: 0.5,
		Allocation: []portfolio.Allocation{
			{Symbol: "AAPL", Weight: 0.6234, Volatility: 0.015},
			{Symbol: "TLT", Weight: 0.3766, Volatility: 0.009},
		},
		Volatility: 0.0123,
		Status:     "converged",
		Surface: &optimizer.Surface{
			ReturnAxis:     []float64{-0.01, 0, 0.01},
			VolatilityAxis: []float64{0.01, 0.02, 0.03},
			Z:              [][]float64{{1, 2, 3}, {2, 3, 4}, {3, 4, 5}},
		},
	}
}

func newTestHandlers(opt *fakeOptimizer, explain Explainer) (*Handlers, *fakeSender) {
	sender := &fakeSender{}
	h := NewHandlers(sender, opt, explain, config.DefaultRun(now), zerolog.Nop())
	h.now = func() time.Time { return now }
	return h, sender
}

func message(text string) *tgbotapi.Message {
	return &tgbotapi.Message{Text: text, Chat: &tgbotapi.Chat{ID: 77}, From: &tgbotapi.User{ID: 1}}
}

func TestHandleOptimize(t *testing.T) {
	opt := &fakeOptimizer{report: sampleReport()}
	h, sender := newTestHandlers(opt, fakeExplainer{text: "Mostly AAPL."})

	h.HandleMessage(message("/optimize aapl, tlt 1y 0.3"))

	assert.Equal(t, []string{"AAPL", "TLT"}, opt.req.Run.Tickers)
	assert.Equal(t, 0.3, opt.req.Run.RiskAversion)
	assert.Equal(t, int64(77), opt.req.ChatID)
	assert.Equal(t, time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC), opt.req.Run.Start)
	assert.Equal(t, 100, opt.req.Run.GridPoints)

	texts := sender.texts()
	require.Len(t, texts, 3)
	assert.Contains(t, texts[0], "Optimizing AAPL, TLT over 1y")
	assert.Contains(t, texts[1], "AAPL: 62.34%\nTLT: 37.66%\n")
	assert.Contains(t, texts[1], "Portfolio Volatility: 1.23%")
	assert.Equal(t, "Mostly AAPL.", texts[2])

	photos := sender.photos()
	require.Len(t, photos, 2, "allocation and surface")
	assert.Equal(t, finance.SurfaceTitle, photos[1].Caption)
	png := photos[0].File.(tgbotapi.FileBytes)
	assert.True(t, bytes.HasPrefix(png.Bytes, []byte("\x89PNG")))
}

func TestHandleOptimize_MaxStartsAtConfiguredDate(t *testing.T) {
	opt := &fakeOptimizer{report: sampleReport()}
	sender := &fakeSender{}
	defaults := config.DefaultRun(now)
	defaults.Start = time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHandlers(sender, opt, nil, defaults, zerolog.Nop())
	h.now = func() time.Time { return now }

	h.HandleMessage(message("/optimize aapl tlt max"))

	assert.Equal(t, defaults.Start, opt.req.Run.Start)
}

func TestHandleOptimize_DefaultRiskAversion(t *testing.T) {
	opt := &fakeOptimizer{report: sampleReport()}
	h, _ := newTestHandlers(opt, nil)
	h.HandleMessage(message("/optimize SPY TLT"))
	assert.Equal(t, 0.5, opt.req.Run.RiskAversion)
}

func TestHandleOptimize_Errors(t *testing.T) {
	opt := &fakeOptimizer{err: fmt.Errorf("fetch ZZZZ: %w", &finance.DataUnavailableError{Ticker: "ZZZZ", Reason: "symbol not found"})}
	h, sender := newTestHandlers(opt, nil)

	h.HandleMessage(message("/optimize AAPL ZZZZ"))
	texts := sender.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, "Couldn’t fetch ZZZZ: symbol not found", texts[1])

	h2, sender2 := newTestHandlers(&fakeOptimizer{}, nil)
	h2.HandleMessage(message("/optimize"))
	require.Len(t, sender2.texts(), 1)
	assert.True(t, strings.HasPrefix(sender2.texts()[0], "Usage: /optimize"))
}

func TestHandleRuns(t *testing.T) {
	opt := &fakeOptimizer{runs: []storage.RunRecord{
		{CreatedAt: now, Tickers: []string{"AAPL", "TLT"}, RiskAversion: 0.5, Status: "converged", Weights: []float64{0.25, 0.75}},
		{CreatedAt: now.Add(-time.Hour), Tickers: []string{"SPY"}, Status: "converged", Weights: []float64{1}},
	}}
	h, sender := newTestHandlers(opt, nil)

	h.HandleMessage(message("/runs 1"))
	require.Len(t, sender.texts(), 1)
	out := sender.texts()[0]
	assert.Contains(t, out, "AAPL,TLT")
	assert.Contains(t, out, "TLT 75.00%")
	assert.NotContains(t, out, "SPY")

	h2, sender2 := newTestHandlers(&fakeOptimizer{}, nil)
	h2.HandleMessage(message("/runs"))
	assert.Contains(t, sender2.texts()[0], "No runs yet")
}

func TestHandleHelpAndUnknown(t *testing.T) {
	h, sender := newTestHandlers(&fakeOptimizer{}, nil)
	h.HandleMessage(message("/help"))
	h.HandleMessage(message("hello there"))
	h.HandleMessage(message("/optimizeX AAPL"))
	require.Len(t, sender.texts(), 1)
	assert.Contains(t, sender.texts()[0], "/optimize S1,S2")
}

func TestFormatReport_NotConverged(t *testing.T) {
	r := sampleReport()
	r.Status = optimizer.StatusIterationLimit.String()
	r.Stats = &finance.PortfolioStats{TotalReturn: 5, SharpeRatio: 0.8}
	out := FormatReport(r)
	assert.Contains(t, out, "2024-06-11 → 2025-06-10")
	assert.Contains(t, out, "Sharpe: 0.80")
	assert.Contains(t, out, "stopped early (iteration_limit)")
}

func TestUserMessage(t *testing.T) {
	assert.Contains(t, UserMessage(&optimizer.InsufficientDataError{Symbol: "A"}), "Not enough")
	assert.Contains(t, UserMessage(fmt.Errorf("%w: no tickers", config.ErrInvalid)), "Invalid request")
	assert.Contains(t, UserMessage(context.DeadlineExceeded), "timed out")
	assert.Equal(t, "Optimization failed: boom", UserMessage(errors.New("boom")))
}

func TestWebhookHandler(t *testing.T) {
	h, _ := newTestHandlers(&fakeOptimizer{}, nil)
	b := &Bot{h: h, log: zerolog.Nop()}

	rec := httptest.NewRecorder()
	b.WebhookHandler(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	b.WebhookHandler(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(`{"update_id":1}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
}
