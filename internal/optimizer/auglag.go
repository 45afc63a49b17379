package optimizer

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

const (
	augLagOuter   = 30
	augLagRho0    = 10.0
	augLagRhoMax  = 1e10
	augLagFeasTol = 1e-8
)

// AugmentedLagrangian handles Σw = 1 and the bounds with a PHR augmented
// Lagrangian whose inner problems are solved by gonum's L-BFGS. The final
// point is projected onto the feasible set; if that scores worse than the
// start, the start is returned.
type AugmentedLagrangian struct {
	settings Settings
}

func (s *AugmentedLagrangian) Solve(ctx context.Context, p Problem) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Objective.Dim() == 1 {
		return solveSingle(p, AlgorithmAugLag)
	}

	started := time.Now()
	obj := p.Objective
	n := obj.Dim()
	lower, upper := p.Bounds.Lower, p.Bounds.Upper

	x0 := p.start()
	f0, err := obj.Value(x0)
	if err != nil {
		return nil, err
	}

	mu := 0.0
	nuLo := make([]float64, n)
	nuHi := make([]float64, n)
	rho := augLagRho0

	var evalErr error
	grad := make([]float64, n)
	lagrangian := optimize.Problem{
		Func: func(x []float64) float64 {
			f, err := obj.Value(x)
			if err != nil {
				if evalErr == nil {
					evalErr = err
				}
				return math.Inf(1)
			}
			h := floats.Sum(x) - 1
			f += mu*h + rho/2*h*h
			for i := 0; i < n; i++ {
				f += phr(nuLo[i], lower[i]-x[i], rho) + phr(nuHi[i], x[i]-upper[i], rho)
			}
			return f
		},
		Grad: func(dst, x []float64) {
			if _, err := obj.Gradient(grad, x); err != nil {
				if evalErr == nil {
					evalErr = err
				}
				for i := range dst {
					dst[i] = 0
				}
				return
			}
			h := floats.Sum(x) - 1
			for i := 0; i < n; i++ {
				dst[i] = grad[i] + mu + rho*h
				dst[i] -= math.Max(0, nuLo[i]+rho*(lower[i]-x[i]))
				dst[i] += math.Max(0, nuHi[i]+rho*(x[i]-upper[i]))
			}
		},
		Status: func() (optimize.Status, error) {
			if evalErr != nil {
				return optimize.Failure, evalErr
			}
			return optimize.NotTerminated, nil
		},
	}

	// The score sums over every period, so its gradient grows with the
	// sample; the inner stopping rule scales with it.
	gradTol := s.settings.Tolerance * math.Max(1, math.Abs(f0))

	x := append([]float64(nil), x0...)
	// running out of outer rounds with iteration budget left is a stall
	res := &Result{Algorithm: AlgorithmAugLag, Status: StatusStalled}
	prevViolation := math.Inf(1)
	for outer := 0; outer < augLagOuter; outer++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		left := s.settings.MaxDuration - time.Since(started)
		if left <= 0 {
			res.Status = StatusTimeLimit
			break
		}
		budget := s.settings.MaxIterations - res.Iterations
		if budget <= 0 {
			res.Status = StatusIterationLimit
			break
		}

		inner, err := optimize.Minimize(lagrangian, x, &optimize.Settings{
			GradientThreshold: gradTol,
			MajorIterations:   budget,
			Runtime:           left,
		}, &optimize.LBFGS{})
		if evalErr != nil {
			return nil, evalErr
		}
		if inner == nil {
			return nil, fmt.Errorf("auglag: inner solve: %w", err)
		}
		res.Iterations += inner.MajorIterations
		res.Evaluations += inner.FuncEvaluations
		copy(x, inner.X)

		violation := math.Abs(floats.Sum(x) - 1)
		for i := 0; i < n; i++ {
			violation = math.Max(violation, math.Max(lower[i]-x[i], x[i]-upper[i]))
		}
		innerDone := err == nil && innerConverged(inner.Status)
		if violation <= augLagFeasTol && innerDone {
			res.Status = StatusConverged
			break
		}

		mu += rho * (floats.Sum(x) - 1)
		for i := 0; i < n; i++ {
			nuLo[i] = math.Max(0, nuLo[i]+rho*(lower[i]-x[i]))
			nuHi[i] = math.Max(0, nuHi[i]+rho*(x[i]-upper[i]))
		}
		if violation > 0.25*prevViolation {
			rho = math.Min(augLagRhoMax, rho*10)
		}
		prevViolation = violation
	}

	w := Project(x, p.Bounds)
	f, err := obj.Value(w)
	if err != nil {
		return nil, err
	}
	if f0 < f {
		w, f = x0, f0
	}
	res.Weights = w
	res.Value = f
	res.Converged = res.Status == StatusConverged
	res.Evaluations++
	res.Runtime = time.Since(started)
	return res, nil
}

// phr is the Powell-Hestenes-Rockafellar term for an inequality g ≤ 0 with
// multiplier nu.
func phr(nu, g, rho float64) float64 {
	m := math.Max(0, nu+rho*g)
	return (m*m - nu*nu) / (2 * rho)
}

func innerConverged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence,
		optimize.StepConvergence, optimize.MethodConverge:
		return true
	}
	return false
}
