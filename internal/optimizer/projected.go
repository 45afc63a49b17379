package optimizer

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

const (
	armijoC      = 1e-4
	minStep      = 1e-16
	maxStep      = 1e16
	maxBacktrack = 60
)

// ProjectedGradient minimizes over the feasible set with projected gradient
// steps, a Barzilai-Borwein step length and Armijo backtracking. Every
// iterate is feasible and the objective never increases.
type ProjectedGradient struct {
	settings Settings
}

func (s *ProjectedGradient) Solve(ctx context.Context, p Problem) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Objective.Dim() == 1 {
		return solveSingle(p, AlgorithmProjected)
	}

	started := time.Now()
	tol := s.settings.Tolerance
	obj := p.Objective

	x := p.start()
	f, err := obj.Value(x)
	if err != nil {
		return nil, err
	}
	evals := 1
	g, err := obj.Gradient(nil, x)
	if err != nil {
		return nil, err
	}

	step := 1 / math.Max(floats.Norm(g, math.Inf(1)), 1)
	y := make([]float64, len(x))
	trial := make([]float64, len(x))
	gNew := make([]float64, len(x))

	res := &Result{Algorithm: AlgorithmProjected, Status: StatusIterationLimit}
	for iter := 1; iter <= s.settings.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if time.Since(started) > s.settings.MaxDuration {
			res.Status = StatusTimeLimit
			break
		}
		res.Iterations = iter

		if residual(x, g, p.Bounds) <= tol {
			res.Status = StatusConverged
			break
		}

		// backtrack along the projection arc
		t := step
		var fNew, decrease float64
		accepted := false
		for k := 0; k < maxBacktrack && t >= minStep; k++ {
			floats.AddScaledTo(trial, x, -t, g)
			copy(y, Project(trial, p.Bounds))
			var dg float64
			for i := range x {
				dg += g[i] * (y[i] - x[i])
			}
			fNew, err = obj.Value(y)
			evals++
			if err != nil {
				return nil, err
			}
			if fNew <= f+armijoC*dg {
				accepted = true
				decrease = f - fNew
				break
			}
			t /= 2
		}
		if !accepted {
			res.Status = StatusStalled
			if residual(x, g, p.Bounds) <= math.Sqrt(tol) {
				res.Status = StatusConverged
			}
			break
		}

		if _, err := obj.Gradient(gNew, y); err != nil {
			return nil, err
		}

		// Barzilai-Borwein length for the next step
		var ss, sy, moved float64
		for i := range x {
			si := y[i] - x[i]
			yi := gNew[i] - g[i]
			ss += si * si
			sy += si * yi
			moved = math.Max(moved, math.Abs(si))
		}
		if sy > 0 {
			step = math.Min(maxStep, math.Max(minStep, ss/sy))
		} else {
			step = math.Min(maxStep, t*2)
		}

		copy(x, y)
		copy(g, gNew)
		prev := f
		f = fNew

		if moved <= tol && decrease <= tol*(1+math.Abs(prev)) {
			res.Status = StatusConverged
			break
		}
	}

	res.Weights = Weights(x)
	res.Value = f
	res.Converged = res.Status == StatusConverged
	res.Evaluations = evals
	res.Runtime = time.Since(started)
	return res, nil
}
