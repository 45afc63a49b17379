// Package portfolio runs the end-to-end optimization: fetch prices, build the
// objective, solve, sample the utility surface and persist the run.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"portfolioOptimizer/internal/config"
	"portfolioOptimizer/internal/finance"
	"portfolioOptimizer/internal/metrics"
	"portfolioOptimizer/internal/optimizer"
	"portfolioOptimizer/internal/storage"
)

// InitialValue is the starting value of the performance index.
const InitialValue = 100.0

// RunStore records finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, r storage.RunRecord) error
	ListRuns(ctx context.Context, chatID int64, limit int) ([]storage.RunRecord, error)
	GetRun(ctx context.Context, id string) (storage.RunRecord, error)
}

type Request struct {
	Run    config.Run
	ChatID int64
}

// Allocation is the weight of one asset.
type Allocation struct {
	Symbol     string  `json:"symbol"`
	Weight     float64 `json:"weight"`
	Volatility float64 `json:"volatility"`
}

type Report struct {
	ID           string                  `json:"id"`
	CreatedAt    time.Time               `json:"created_at"`
	Tickers      []string                `json:"tickers"`
	Start        time.Time               `json:"start"`
	End          time.Time               `json:"end"`
	RiskAversion float64                 `json:"risk_aversion"`
	Periods      int                     `json:"periods"`
	Allocation   []Allocation            `json:"allocation"`
	Volatility   float64                 `json:"volatility"`
	Result       *optimizer.Result       `json:"result"`
	Status       string                  `json:"status"`
	Portfolio    *finance.PortfolioData  `json:"portfolio,omitempty"`
	Stats        *finance.PortfolioStats `json:"stats,omitempty"`
	Surface      *optimizer.Surface      `json:"surface,omitempty"`
}

// Weights returns the optimized weights in ticker order.
func (r *Report) Weights() []float64 {
	out := make([]float64, len(r.Allocation))
	for i, a := range r.Allocation {
		out[i] = a.Weight
	}
	return out
}

// ChartKey identifies the rendered charts of a report by content: the same
// tickers, window and risk aversion that produce the same allocation over
// the same sample share their images.
func (r *Report) ChartKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%g|%d", strings.Join(r.Tickers, ","),
		r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"), r.RiskAversion, r.Periods)
	for _, a := range r.Allocation {
		fmt.Fprintf(&b, "|%.6f", a.Weight)
	}
	if r.Surface != nil {
		fmt.Fprintf(&b, "|grid%d", len(r.Surface.ReturnAxis))
	}
	return b.String()
}

type Service struct {
	provider finance.Provider
	store    RunStore
	log      zerolog.Logger
	now      func() time.Time
}

// NewService builds a pipeline over provider. store may be nil.
func NewService(provider finance.Provider, store RunStore, log zerolog.Logger) *Service {
	return &Service{
		provider: provider,
		store:    store,
		log:      log.With().Str("component", "portfolio").Logger(),
		now:      time.Now,
	}
}

func (s *Service) Run(ctx context.Context, req Request) (*Report, error) {
	started := time.Now()
	report, err := s.run(ctx, req)
	status := "error"
	if report != nil {
		status = report.Status
	}
	metrics.RunsTotal.WithLabelValues(status).Inc()
	algorithm := req.Run.Solver.Algorithm
	if algorithm == "" {
		algorithm = optimizer.DefaultSettings().Algorithm
	}
	metrics.RunDuration.WithLabelValues(algorithm).Observe(time.Since(started).Seconds())
	if err != nil {
		s.log.Warn().Err(err).Strs("tickers", req.Run.Tickers).Msg("portfolio: run failed")
	}
	return report, err
}

func (s *Service) run(ctx context.Context, req Request) (*Report, error) {
	run := req.Run
	if err := run.Validate(); err != nil {
		return nil, err
	}

	series := make([]optimizer.AssetSeries, 0, len(run.Tickers))
	for _, ticker := range run.Tickers {
		points, err := s.provider.Fetch(ctx, ticker, run.Start, run.End)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", ticker, err)
		}
		series = append(series, optimizer.AssetSeries{Symbol: ticker, Points: points})
	}

	returns, err := optimizer.ComputeReturns(series)
	if err != nil {
		return nil, err
	}
	cov, err := optimizer.EstimateCovariance(returns)
	if err != nil {
		return nil, err
	}
	obj, err := optimizer.NewObjective(returns, cov, run.RiskAversion)
	if err != nil {
		return nil, err
	}
	solver, err := optimizer.NewSolver(run.Solver)
	if err != nil {
		return nil, err
	}
	result, err := solver.Solve(ctx, optimizer.Problem{Objective: obj, Bounds: run.Bounds()})
	if err != nil {
		return nil, err
	}
	metrics.SolverIterations.WithLabelValues(result.Algorithm).Observe(float64(result.Iterations))

	eval, err := obj.Evaluate(result.Weights)
	if err != nil {
		return nil, err
	}

	periods, _ := returns.Dims()
	report := &Report{
		ID:           uuid.New().String(),
		CreatedAt:    s.now().UTC(),
		Tickers:      returns.Symbols(),
		Start:        run.Start,
		End:          run.End,
		RiskAversion: run.RiskAversion,
		Periods:      periods,
		Volatility:   eval.Volatility,
		Result:       result,
		Status:       result.Status.String(),
	}
	assetVol := cov.Volatility()
	for i, sym := range report.Tickers {
		report.Allocation = append(report.Allocation, Allocation{Symbol: sym, Weight: result.Weights[i], Volatility: assetVol[i]})
	}

	if portfolio, err := finance.BuildPortfolio(returns.Dates(), eval.PeriodReturns, InitialValue); err == nil {
		report.Portfolio = portfolio
		if stats, err := finance.CalculateStats(portfolio); err == nil {
			report.Stats = stats
		} else {
			s.log.Debug().Err(err).Msg("portfolio: stats skipped")
		}
	} else {
		s.log.Debug().Err(err).Msg("portfolio: performance skipped")
	}

	if run.GridPoints > 0 && len(report.Tickers) >= 2 {
		surface, err := optimizer.SampleGrid(ctx, obj, returns, cov, optimizer.GridOptions{Points: run.GridPoints})
		if err != nil {
			return nil, fmt.Errorf("sample grid: %w", err)
		}
		report.Surface = surface
	}

	s.log.Info().
		Str("run_id", report.ID).
		Strs("tickers", report.Tickers).
		Str("status", report.Status).
		Int("iterations", result.Iterations).
		Float64("volatility", report.Volatility).
		Msg("portfolio: optimized")

	s.persist(ctx, req.ChatID, report)
	return report, nil
}

func (s *Service) persist(ctx context.Context, chatID int64, r *Report) {
	if s.store == nil {
		return
	}
	err := s.store.SaveRun(ctx, storage.RunRecord{
		ID:           r.ID,
		CreatedAt:    r.CreatedAt,
		ChatID:       chatID,
		Tickers:      r.Tickers,
		Start:        r.Start,
		End:          r.End,
		RiskAversion: r.RiskAversion,
		Algorithm:    r.Result.Algorithm,
		Status:       r.Status,
		Objective:    r.Result.Value,
		Volatility:   r.Volatility,
		Weights:      r.Weights(),
	})
	if err != nil {
		s.log.Error().Err(err).Str("run_id", r.ID).Msg("portfolio: failed to save run")
	}
}

// ErrNoHistory is returned by History and Lookup without a RunStore.
var ErrNoHistory = errors.New("run history is not configured")

// History lists the latest runs of a chat, or of every chat for 0.
func (s *Service) History(ctx context.Context, chatID int64, limit int) ([]storage.RunRecord, error) {
	if s.store == nil {
		return nil, ErrNoHistory
	}
	return s.store.ListRuns(ctx, chatID, limit)
}

// Lookup returns one persisted run.
func (s *Service) Lookup(ctx context.Context, id string) (storage.RunRecord, error) {
	if s.store == nil {
		return storage.RunRecord{}, ErrNoHistory
	}
	return s.store.GetRun(ctx, id)
}
