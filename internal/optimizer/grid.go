package optimizer

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// GridOptions controls SampleGrid.
type GridOptions struct {
	Points  int
	Workers int
}

// Surface is the objective sampled over a return × volatility grid.
// Z[i][j] belongs to VolatilityAxis[i] and ReturnAxis[j].
type Surface struct {
	ReturnAxis     []float64   `json:"return_axis"`
	VolatilityAxis []float64   `json:"volatility_axis"`
	Z              [][]float64 `json:"z"`
}

// SampleGrid scores the objective on a Points × Points grid for display.
// Each cell starts from the uniform allocation and overwrites the first two
// weights with the cell's return and volatility coordinates; Z holds the
// utility, i.e. the negated score. The surface is not an allocation and is
// never fed back to a solver.
func SampleGrid(ctx context.Context, obj *Objective, r *ReturnsMatrix, cov *CovarianceMatrix, opts GridOptions) (*Surface, error) {
	n := obj.Dim()
	if n < 2 {
		return nil, ErrGridDimension
	}
	if opts.Points < 1 {
		return nil, fmt.Errorf("grid: %d points per axis", opts.Points)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	all := mat.DenseCopyOf(r.Matrix()).RawMatrix().Data
	vol := cov.Volatility()
	s := &Surface{
		ReturnAxis:     linspace(floats.Min(all), floats.Max(all), opts.Points),
		VolatilityAxis: linspace(floats.Min(vol), floats.Max(vol), opts.Points),
		Z:              make([][]float64, opts.Points),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range s.VolatilityAxis {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			row := make([]float64, opts.Points)
			w := make([]float64, n)
			for j, ret := range s.ReturnAxis {
				copy(w, UniformWeights(n))
				w[0] = ret
				w[1] = s.VolatilityAxis[i]
				v, err := obj.Value(w)
				if err != nil {
					return fmt.Errorf("grid cell (%d,%d): %w", i, j, err)
				}
				if math.IsNaN(v) {
					return fmt.Errorf("grid cell (%d,%d): undefined utility", i, j)
				}
				row[j] = -v
			}
			s.Z[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return s, nil
}

func linspace(lo, hi float64, n int) []float64 {
	if n == 1 {
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}
