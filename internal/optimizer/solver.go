package optimizer

import (
	"context"
	"fmt"
	"math"
	"time"
)

const (
	AlgorithmProjected = "projected"
	AlgorithmAugLag    = "auglag"
)

// Settings parameterizes a solver. Zero fields fall back to DefaultSettings.
type Settings struct {
	Algorithm     string        `json:"algorithm"`
	Tolerance     float64       `json:"tolerance"`
	MaxIterations int           `json:"max_iterations"`
	MaxDuration   time.Duration `json:"max_duration"`
}

func DefaultSettings() Settings {
	return Settings{
		Algorithm:     AlgorithmProjected,
		Tolerance:     1e-9,
		MaxIterations: 1000,
		MaxDuration:   30 * time.Second,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Algorithm == "" {
		s.Algorithm = d.Algorithm
	}
	if s.Tolerance <= 0 {
		s.Tolerance = d.Tolerance
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = d.MaxIterations
	}
	if s.MaxDuration <= 0 {
		s.MaxDuration = d.MaxDuration
	}
	return s
}

// Bounds are per-asset box constraints on the weights.
type Bounds struct {
	Lower []float64
	Upper []float64
}

// UniformBounds applies [lo, hi] to all n assets.
func UniformBounds(n int, lo, hi float64) Bounds {
	b := Bounds{Lower: make([]float64, n), Upper: make([]float64, n)}
	for i := 0; i < n; i++ {
		b.Lower[i], b.Upper[i] = lo, hi
	}
	return b
}

// UniformWeights is the 1/N allocation.
func UniformWeights(n int) Weights {
	w := make(Weights, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

// Problem is a minimization of Objective over {Σw = 1, Lower ≤ w ≤ Upper}.
// A nil Initial means the uniform allocation.
type Problem struct {
	Objective *Objective
	Bounds    Bounds
	Initial   Weights
}

// Validate checks dimensions and that the feasible set is non-empty.
func (p Problem) Validate() error {
	if p.Objective == nil {
		return fmt.Errorf("problem: nil objective")
	}
	n := p.Objective.Dim()
	if n == 0 {
		return fmt.Errorf("problem: no assets")
	}
	if len(p.Bounds.Lower) != n || len(p.Bounds.Upper) != n {
		return fmt.Errorf("problem: bounds cover %d/%d assets, expected %d", len(p.Bounds.Lower), len(p.Bounds.Upper), n)
	}
	if p.Initial != nil && len(p.Initial) != n {
		return fmt.Errorf("problem: initial guess has %d weights, expected %d", len(p.Initial), n)
	}
	var lo, hi float64
	for i := 0; i < n; i++ {
		if p.Bounds.Lower[i] > p.Bounds.Upper[i] {
			return fmt.Errorf("problem: lower bound %g above upper bound %g for asset %d", p.Bounds.Lower[i], p.Bounds.Upper[i], i)
		}
		lo += p.Bounds.Lower[i]
		hi += p.Bounds.Upper[i]
	}
	if lo > 1+1e-12 || hi < 1-1e-12 {
		return fmt.Errorf("problem: bounds admit no fully invested allocation (sum lower %g, sum upper %g)", lo, hi)
	}
	return nil
}

func (p Problem) start() Weights {
	if p.Initial != nil {
		return Project(p.Initial, p.Bounds)
	}
	return Project(UniformWeights(p.Objective.Dim()), p.Bounds)
}

// Solver finds the weights minimizing a Problem.
type Solver interface {
	Solve(ctx context.Context, p Problem) (*Result, error)
}

// NewSolver returns the solver named by s.Algorithm.
func NewSolver(s Settings) (Solver, error) {
	s = s.withDefaults()
	switch s.Algorithm {
	case AlgorithmProjected:
		return &ProjectedGradient{settings: s}, nil
	case AlgorithmAugLag:
		return &AugmentedLagrangian{settings: s}, nil
	default:
		return nil, fmt.Errorf("unknown solver algorithm %q", s.Algorithm)
	}
}

// solveSingle handles N = 1, where the only feasible point is w = [1].
func solveSingle(p Problem, algorithm string) (*Result, error) {
	w := Weights{1}
	v, err := p.Objective.Value(w)
	if err != nil {
		return nil, err
	}
	return &Result{
		Weights:     w,
		Value:       v,
		Status:      StatusConverged,
		Converged:   true,
		Evaluations: 1,
		Algorithm:   algorithm,
	}, nil
}

// Project returns the point of {Σw = 1, lo ≤ w ≤ hi} closest to v. It finds
// the shift τ with Σ clip(v_i − τ) = 1 by bisection; the bounds are assumed
// feasible.
func Project(v []float64, b Bounds) Weights {
	n := len(v)
	out := make(Weights, n)
	clipSum := func(tau float64) float64 {
		var s float64
		for i := 0; i < n; i++ {
			out[i] = math.Min(b.Upper[i], math.Max(b.Lower[i], v[i]-tau))
			s += out[i]
		}
		return s
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		lo = math.Min(lo, v[i]-b.Upper[i])
		hi = math.Max(hi, v[i]-b.Lower[i])
	}
	for k := 0; k < 200; k++ {
		mid := lo + (hi-lo)/2
		s := clipSum(mid)
		if s == 1 || mid == lo || mid == hi {
			break
		}
		if s > 1 {
			lo = mid
		} else {
			hi = mid
		}
	}
	s := clipSum(lo + (hi-lo)/2)

	// push the remaining round-off onto coordinates with slack
	rem := 1 - s
	for i := 0; i < n && rem != 0; i++ {
		adj := math.Min(b.Upper[i], math.Max(b.Lower[i], out[i]+rem))
		rem -= adj - out[i]
		out[i] = adj
	}
	return out
}

// residual is ‖w − P(w − g)‖∞, zero exactly at a stationary point.
func residual(w, g []float64, b Bounds) float64 {
	trial := make([]float64, len(w))
	for i := range w {
		trial[i] = w[i] - g[i]
	}
	pw := Project(trial, b)
	var r float64
	for i := range w {
		r = math.Max(r, math.Abs(w[i]-pw[i]))
	}
	return r
}
