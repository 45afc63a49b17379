package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"portfolioOptimizer/internal/optimizer"
)

// ErrInvalid marks run parameters rejected by Validate.
var ErrInvalid = errors.New("invalid run")

// DefaultStart is the first day of price history requested by default.
var DefaultStart = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

// Run holds the parameters of one optimization. It is built once and
// passed by value.
type Run struct {
	Tickers      []string           `json:"tickers"`
	Start        time.Time          `json:"start"`
	End          time.Time          `json:"end"`
	RiskAversion float64            `json:"risk_aversion"`
	GridPoints   int                `json:"grid_points"`
	LowerBound   float64            `json:"lower_bound"`
	UpperBound   float64            `json:"upper_bound"`
	Solver       optimizer.Settings `json:"solver"`
}

// DefaultRun is the default configuration with history from DefaultStart
// up to the start of the day after now.
func DefaultRun(now time.Time) Run {
	return Run{
		Start:        DefaultStart,
		End:          time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1),
		RiskAversion: 0.5,
		GridPoints:   100,
		LowerBound:   0,
		UpperBound:   1,
		Solver:       optimizer.DefaultSettings(),
	}
}

func (r Run) Validate() error {
	if len(r.Tickers) == 0 {
		return fmt.Errorf("%w: no tickers", ErrInvalid)
	}
	seen := make(map[string]bool, len(r.Tickers))
	for _, t := range r.Tickers {
		if t == "" {
			return fmt.Errorf("%w: empty ticker", ErrInvalid)
		}
		if seen[t] {
			return fmt.Errorf("%w: duplicate ticker %s", ErrInvalid, t)
		}
		seen[t] = true
	}
	if !r.End.After(r.Start) {
		return fmt.Errorf("%w: end %s is not after start %s", ErrInvalid, r.End.Format("2006-01-02"), r.Start.Format("2006-01-02"))
	}
	if math.IsNaN(r.RiskAversion) || r.RiskAversion < 0 || r.RiskAversion > 1 {
		return fmt.Errorf("%w: risk aversion %v outside [0, 1]", ErrInvalid, r.RiskAversion)
	}
	if r.GridPoints < 0 {
		return fmt.Errorf("%w: negative grid points", ErrInvalid)
	}
	if r.LowerBound > r.UpperBound {
		return fmt.Errorf("%w: lower bound %v above upper bound %v", ErrInvalid, r.LowerBound, r.UpperBound)
	}
	n := float64(len(r.Tickers))
	if n*r.LowerBound > 1+1e-12 || n*r.UpperBound < 1-1e-12 {
		return fmt.Errorf("%w: bounds [%v, %v] cannot hold %d assets fully invested", ErrInvalid, r.LowerBound, r.UpperBound, len(r.Tickers))
	}
	switch r.Solver.Algorithm {
	case "", optimizer.AlgorithmProjected, optimizer.AlgorithmAugLag:
	default:
		return fmt.Errorf("%w: unknown solver %q", ErrInvalid, r.Solver.Algorithm)
	}
	return nil
}

// Bounds expands the uniform weight bounds to every ticker.
func (r Run) Bounds() optimizer.Bounds {
	return optimizer.UniformBounds(len(r.Tickers), r.LowerBound, r.UpperBound)
}

// ParseTickers splits on commas and whitespace, upper-cases, and drops
// empties and duplicates, keeping first-seen order.
func ParseTickers(s string) []string {
	raw := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})
	seen := map[string]struct{}{}
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Config is the environment of the bot/server binary.
type Config struct {
	TelegramToken    string
	WebhookPublicURL string
	OpenAIKey        string
	Port             string
	DBPath           string
	RedisURL         string
	LogLevel         string
	PriceCacheTTL    time.Duration
	Defaults         Run
}

// Load reads Config from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv, time.Now())
}

// LoadFrom reads Config through getenv. TELEGRAM_BOT_TOKEN and
// WEBHOOK_PUBLIC_URL are required; everything else has a default.
func LoadFrom(getenv func(string) string, now time.Time) (Config, error) {
	env := func(k, def string) string {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return v
		}
		return def
	}
	var missing []string
	mustEnv := func(k string) string {
		v := strings.TrimSpace(getenv(k))
		if v == "" {
			missing = append(missing, k)
		}
		return v
	}

	cfg := Config{
		TelegramToken:    mustEnv("TELEGRAM_BOT_TOKEN"),
		WebhookPublicURL: mustEnv("WEBHOOK_PUBLIC_URL"),
		OpenAIKey:        env("OPENAI_API_KEY", ""),
		Port:             env("PORT", "9095"),
		DBPath:           env("DB_PATH", "/app/data/optimizer.db"),
		RedisURL:         env("REDIS_URL", ""),
		LogLevel:         env("LOG_LEVEL", "info"),
		Defaults:         DefaultRun(now),
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing env %s", strings.Join(missing, ", "))
	}

	var err error
	if cfg.PriceCacheTTL, err = time.ParseDuration(env("PRICE_CACHE_TTL", "12h")); err != nil {
		return Config{}, fmt.Errorf("PRICE_CACHE_TTL: %w", err)
	}
	if cfg.Defaults.RiskAversion, err = strconv.ParseFloat(env("RISK_AVERSION", "0.5"), 64); err != nil {
		return Config{}, fmt.Errorf("RISK_AVERSION: %w", err)
	}
	if cfg.Defaults.GridPoints, err = strconv.Atoi(env("GRID_POINTS", "100")); err != nil {
		return Config{}, fmt.Errorf("GRID_POINTS: %w", err)
	}
	if cfg.Defaults.Start, err = time.Parse("2006-01-02", env("START_DATE", DefaultStart.Format("2006-01-02"))); err != nil {
		return Config{}, fmt.Errorf("START_DATE: %w", err)
	}
	cfg.Defaults.Solver.Algorithm = env("SOLVER", optimizer.AlgorithmProjected)
	if cfg.Defaults.Solver.Tolerance, err = strconv.ParseFloat(env("SOLVER_TOLERANCE", "1e-9"), 64); err != nil {
		return Config{}, fmt.Errorf("SOLVER_TOLERANCE: %w", err)
	}
	if cfg.Defaults.Solver.MaxIterations, err = strconv.Atoi(env("SOLVER_MAX_ITER", "1000")); err != nil {
		return Config{}, fmt.Errorf("SOLVER_MAX_ITER: %w", err)
	}
	if cfg.Defaults.RiskAversion < 0 || cfg.Defaults.RiskAversion > 1 {
		return Config{}, fmt.Errorf("RISK_AVERSION %v outside [0, 1]", cfg.Defaults.RiskAversion)
	}
	return cfg, nil
}
