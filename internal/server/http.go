// Package server exposes the bot webhook and the JSON API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"portfolioOptimizer/internal/config"
	"portfolioOptimizer/internal/finance"
	"portfolioOptimizer/internal/metrics"
	"portfolioOptimizer/internal/optimizer"
	"portfolioOptimizer/internal/portfolio"
	"portfolioOptimizer/internal/storage"
)

// Optimizer is the pipeline behind the API.
type Optimizer interface {
	Run(ctx context.Context, req portfolio.Request) (*portfolio.Report, error)
	History(ctx context.Context, chatID int64, limit int) ([]storage.RunRecord, error)
	Lookup(ctx context.Context, id string) (storage.RunRecord, error)
}

type Deps struct {
	// Webhook is mounted at /telegram/webhook when set.
	Webhook   http.HandlerFunc
	Optimizer Optimizer
	Defaults  config.Run
	Log       zerolog.Logger
	Timeout   time.Duration
	Now       func() time.Time
}

func NewRouter(d Deps) http.Handler {
	if d.Timeout == 0 {
		d.Timeout = 2 * time.Minute
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	a := &api{opt: d.Optimizer, defaults: d.Defaults, now: d.Now}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Log.With().Str("component", "http").Logger()))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	if d.Webhook != nil {
		r.Post("/telegram/webhook", d.Webhook)
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(d.Timeout))
		r.Post("/optimize", a.optimize)
		r.Get("/runs", a.listRuns)
		r.Get("/runs/{id}", a.getRun)
	})
	return r
}

// ListenAndServe serves h until ctx is cancelled, then drains in-flight
// requests.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, log zerolog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http: listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("http: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Msg("http: request")
		})
	}
}

type api struct {
	opt      Optimizer
	defaults config.Run
	now      func() time.Time
}

// optimizeRequest is the body of POST /api/v1/optimize. Omitted fields take
// the server defaults; start/end are YYYY-MM-DD, or window is a lookback
// like 1y.
type optimizeRequest struct {
	Tickers       []string `json:"tickers"`
	Start         string   `json:"start,omitempty"`
	End           string   `json:"end,omitempty"`
	Window        string   `json:"window,omitempty"`
	RiskAversion  *float64 `json:"risk_aversion,omitempty"`
	GridPoints    *int     `json:"grid_points,omitempty"`
	LowerBound    *float64 `json:"lower_bound,omitempty"`
	UpperBound    *float64 `json:"upper_bound,omitempty"`
	Solver        string   `json:"solver,omitempty"`
	Tolerance     float64  `json:"tolerance,omitempty"`
	MaxIterations int      `json:"max_iterations,omitempty"`
}

func (a *api) buildRun(req optimizeRequest) (config.Run, error) {
	run := a.defaults
	run.Tickers = config.ParseTickers(strings.Join(req.Tickers, ","))

	now := a.now()
	if req.Window != "" {
		start, end, err := finance.ParseWindow(req.Window, now, a.defaults.Start)
		if err != nil {
			return run, err
		}
		run.Start, run.End = start, end
	} else {
		run.End = config.DefaultRun(now).End
	}
	if req.Start != "" {
		t, err := time.Parse("2006-01-02", req.Start)
		if err != nil {
			return run, errors.New("start must be YYYY-MM-DD")
		}
		run.Start = t
	}
	if req.End != "" {
		t, err := time.Parse("2006-01-02", req.End)
		if err != nil {
			return run, errors.New("end must be YYYY-MM-DD")
		}
		run.End = t
	}
	if req.RiskAversion != nil {
		run.RiskAversion = *req.RiskAversion
	}
	if req.GridPoints != nil {
		run.GridPoints = *req.GridPoints
	}
	if req.LowerBound != nil {
		run.LowerBound = *req.LowerBound
	}
	if req.UpperBound != nil {
		run.UpperBound = *req.UpperBound
	}
	if req.Solver != "" {
		run.Solver.Algorithm = req.Solver
	}
	if req.Tolerance > 0 {
		run.Solver.Tolerance = req.Tolerance
	}
	if req.MaxIterations > 0 {
		run.Solver.MaxIterations = req.MaxIterations
	}
	return run, run.Validate()
}

func (a *api) optimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	run, err := a.buildRun(req)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	report, err := a.opt.Run(r.Context(), portfolio.Request{Run: run})
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *api) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 200 {
			writeError(w, "limit must be between 1 and 200", http.StatusBadRequest)
			return
		}
		limit = n
	}
	var chatID int64
	if s := r.URL.Query().Get("chat_id"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, "invalid chat_id", http.StatusBadRequest)
			return
		}
		chatID = n
	}
	runs, err := a.opt.History(r.Context(), chatID, limit)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	if runs == nil {
		runs = []storage.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *api) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.opt.Lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, config.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, finance.ErrDataUnavailable), errors.Is(err, optimizer.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, portfolio.ErrNoHistory):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
