// Package optimizer turns aligned price history into a risk-adjusted
// allocation: periodic returns, their sample covariance, a utility objective
// and a constrained solver over the weight box/simplex.
package optimizer

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// PricePoint is a single closing price observation.
type PricePoint struct {
	Time  time.Time `json:"time"`
	Close float64   `json:"close"`
}

// AssetSeries is the ordered price history of one ticker.
type AssetSeries struct {
	Symbol string
	Points []PricePoint
}

// ReturnsMatrix holds periodic fractional returns, one column per asset and
// one row per period. Rows with an undefined entry have already been dropped.
type ReturnsMatrix struct {
	symbols []string
	dates   []time.Time
	data    *mat.Dense
}

// Symbols returns the asset order of the columns.
func (r *ReturnsMatrix) Symbols() []string {
	out := make([]string, len(r.symbols))
	copy(out, r.symbols)
	return out
}

// Dates returns the timestamp of the later observation of each return row.
// It is nil for matrices built with NewReturnsMatrix.
func (r *ReturnsMatrix) Dates() []time.Time {
	if r.dates == nil {
		return nil
	}
	out := make([]time.Time, len(r.dates))
	copy(out, r.dates)
	return out
}

// Dims returns periods × assets.
func (r *ReturnsMatrix) Dims() (periods, assets int) {
	return r.data.Dims()
}

// At returns the return of asset n in period t.
func (r *ReturnsMatrix) At(t, n int) float64 {
	return r.data.At(t, n)
}

// Row returns a copy of period t.
func (r *ReturnsMatrix) Row(t int) []float64 {
	return mat.Row(nil, t, r.data)
}

// Column returns a copy of the return series of asset n.
func (r *ReturnsMatrix) Column(n int) []float64 {
	return mat.Col(nil, n, r.data)
}

// Matrix exposes the returns as a read-only gonum matrix.
func (r *ReturnsMatrix) Matrix() mat.Matrix {
	return r.data
}

// CovarianceMatrix is the N×N sample covariance of a ReturnsMatrix.
type CovarianceMatrix struct {
	sym *mat.SymDense
}

// Dim returns the number of assets.
func (c *CovarianceMatrix) Dim() int {
	n, _ := c.sym.Dims()
	return n
}

// At returns the covariance of assets i and j.
func (c *CovarianceMatrix) At(i, j int) float64 {
	return c.sym.At(i, j)
}

// Matrix exposes the covariance as a read-only symmetric matrix.
func (c *CovarianceMatrix) Matrix() mat.Symmetric {
	return c.sym
}

// Volatility returns the per-asset standard deviation, the square roots of
// the diagonal.
func (c *CovarianceMatrix) Volatility() []float64 {
	n := c.Dim()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := c.sym.At(i, i)
		if v > 0 {
			out[i] = math.Sqrt(v)
		}
	}
	return out
}

// Weights is an allocation in asset order.
type Weights []float64

// Status describes how a solver run terminated.
type Status int

const (
	StatusConverged Status = iota
	StatusIterationLimit
	StatusTimeLimit
	StatusStalled
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusIterationLimit:
		return "iteration_limit"
	case StatusTimeLimit:
		return "time_limit"
	case StatusStalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// Result is the outcome of one optimization run. Non-converged runs still
// carry the best weights found.
type Result struct {
	Weights     Weights       `json:"weights"`
	Value       float64       `json:"value"`
	Status      Status        `json:"-"`
	Converged   bool          `json:"converged"`
	Iterations  int           `json:"iterations"`
	Evaluations int           `json:"evaluations"`
	Algorithm   string        `json:"algorithm"`
	Runtime     time.Duration `json:"runtime"`
}
