// Command optimize computes a risk-adjusted allocation for a set of tickers
// and prints it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"portfolioOptimizer/internal/config"
	"portfolioOptimizer/internal/finance"
	"portfolioOptimizer/internal/logging"
	"portfolioOptimizer/internal/portfolio"
	"portfolioOptimizer/internal/storage"
)

type options struct {
	run      config.Run
	surface  string
	dbPath   string
	logLevel string
	asJSON   bool
}

func parseFlags(args []string, now time.Time, stderr io.Writer) (options, error) {
	def := config.DefaultRun(now)
	fs := flag.NewFlagSet("optimize", flag.ContinueOnError)
	fs.SetOutput(stderr)

	tickers := fs.String("tickers", "", "comma separated tickers, e.g. AAPL,GOOG,MSFT")
	start := fs.String("start", def.Start.Format("2006-01-02"), "first day of history (YYYY-MM-DD)")
	end := fs.String("end", "", "day after the last day of history (YYYY-MM-DD, default tomorrow)")
	window := fs.String("window", "", "lookback instead of -start, e.g. 6m, 2y, max")
	var o options
	o.run = def
	fs.Float64Var(&o.run.RiskAversion, "risk-aversion", def.RiskAversion, "volatility penalty in [0, 1]")
	fs.IntVar(&o.run.GridPoints, "points", def.GridPoints, "grid points per axis of the utility surface (0 disables)")
	fs.StringVar(&o.run.Solver.Algorithm, "solver", def.Solver.Algorithm, "solver: projected or auglag")
	fs.Float64Var(&o.run.Solver.Tolerance, "tol", def.Solver.Tolerance, "convergence tolerance")
	fs.IntVar(&o.run.Solver.MaxIterations, "max-iter", def.Solver.MaxIterations, "iteration cap")
	fs.Float64Var(&o.run.LowerBound, "lower", def.LowerBound, "lower bound of every weight")
	fs.Float64Var(&o.run.UpperBound, "upper", def.UpperBound, "upper bound of every weight")
	fs.StringVar(&o.surface, "surface", "", "write the utility surface chart to this PNG file")
	fs.StringVar(&o.dbPath, "db", "", "sqlite file for the price cache and run history")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level")
	fs.BoolVar(&o.asJSON, "json", false, "print the full report as JSON")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	o.run.Tickers = config.ParseTickers(*tickers)
	var err error
	if *window != "" {
		if o.run.Start, o.run.End, err = finance.ParseWindow(*window, now, def.Start); err != nil {
			return o, err
		}
	} else if o.run.Start, err = time.Parse("2006-01-02", *start); err != nil {
		return o, fmt.Errorf("-start: %w", err)
	}
	if *end != "" {
		if o.run.End, err = time.Parse("2006-01-02", *end); err != nil {
			return o, fmt.Errorf("-end: %w", err)
		}
	}
	if o.surface != "" && o.run.GridPoints == 0 {
		return o, errors.New("-surface needs -points > 0")
	}
	return o, o.run.Validate()
}

func main() {
	o, err := parseFlags(os.Args[1:], time.Now(), os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "optimize:", err)
		os.Exit(2)
	}
	log := logging.New(o.logLevel, true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, o, os.Stdout, log); err != nil {
		fmt.Fprintln(os.Stderr, "optimize:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, stdout io.Writer, log zerolog.Logger) error {
	var provider finance.Provider = finance.NewYahooProvider(finance.WithLogger(log))
	var store portfolio.RunStore
	if o.dbPath != "" {
		_ = os.MkdirAll(filepath.Dir(o.dbPath), 0o755)
		db, err := storage.OpenSQLite("file:" + o.dbPath + "?_fk=1")
		if err != nil {
			return err
		}
		defer db.Close()
		if err := storage.InitSchema(ctx, db); err != nil {
			return err
		}
		s := storage.NewStore(db, 12*time.Hour)
		provider = finance.NewCachedProvider(provider, log, s)
		store = s
	}
	return report(ctx, portfolio.NewService(provider, store, log), o, stdout)
}

func report(ctx context.Context, svc *portfolio.Service, o options, stdout io.Writer) error {
	r, err := svc.Run(ctx, portfolio.Request{Run: o.run})
	if err != nil {
		return err
	}

	if o.surface != "" && r.Surface != nil {
		img, err := finance.MakeSurfaceChart("", r.Surface, 5)
		if err != nil {
			return err
		}
		if err := os.WriteFile(o.surface, img, 0o644); err != nil {
			return err
		}
	}

	if o.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	fmt.Fprintln(stdout, "Optimal Portfolio Allocation:")
	fmt.Fprint(stdout, finance.FormatAllocation(r.Tickers, r.Weights()))
	fmt.Fprintln(stdout, finance.FormatVolatility(r.Volatility))
	if r.Status != "converged" {
		fmt.Fprintf(stdout, "Solver status: %s after %d iterations\n", r.Status, r.Result.Iterations)
	}
	if s := r.Stats; s != nil {
		fmt.Fprintf(stdout, "Backtest: return %.2f%%, annual %.2f%%, volatility %.2f%%, Sharpe %.2f, max drawdown %.2f%%\n",
			s.TotalReturn, s.AnnualReturn, s.Volatility, s.SharpeRatio, s.MaxDrawdown)
	}
	if o.surface != "" {
		fmt.Fprintln(stdout, "Surface chart written to", o.surface)
	}
	return nil
}
