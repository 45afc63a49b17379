package optimizer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// varianceTolerance bounds how negative wᵀΣw may get from round-off before
// it is reported instead of clamped.
const varianceTolerance = 1e-12

// Objective is the risk-adjusted utility, negated so that solvers minimize.
//
// For weights w it computes the per-period portfolio return p = R·w, the
// volatility σ = sqrt(wᵀΣw), the per-period utility u_t = p_t − λσ and the
// score −Σ_t u_t. The volatility penalty is subtracted once per period.
type Objective struct {
	returns      *ReturnsMatrix
	cov          *CovarianceMatrix
	riskAversion float64
	colSums      []float64
	periods      int
}

// Evaluation is the full breakdown of one objective evaluation.
type Evaluation struct {
	PeriodReturns []float64
	Volatility    float64
	Utility       []float64
	Score         float64
}

// NewObjective binds returns, covariance and risk aversion (in [0, 1]).
func NewObjective(r *ReturnsMatrix, cov *CovarianceMatrix, riskAversion float64) (*Objective, error) {
	if math.IsNaN(riskAversion) || riskAversion < 0 || riskAversion > 1 {
		return nil, fmt.Errorf("objective: risk aversion %v outside [0, 1]", riskAversion)
	}
	periods, assets := r.Dims()
	if cov.Dim() != assets {
		return nil, fmt.Errorf("objective: covariance is %dx%d, returns have %d assets", cov.Dim(), cov.Dim(), assets)
	}
	colSums := make([]float64, assets)
	for n := 0; n < assets; n++ {
		colSums[n] = floats.Sum(r.Column(n))
	}
	return &Objective{
		returns:      r,
		cov:          cov,
		riskAversion: riskAversion,
		colSums:      colSums,
		periods:      periods,
	}, nil
}

// Dim returns the number of assets.
func (o *Objective) Dim() int { return len(o.colSums) }

// RiskAversion returns λ.
func (o *Objective) RiskAversion() float64 { return o.riskAversion }

// Evaluate computes every intermediate of the objective at w. w does not
// need to be a feasible allocation.
func (o *Objective) Evaluate(w []float64) (*Evaluation, error) {
	if err := o.checkDim(w); err != nil {
		return nil, err
	}
	sigma, err := o.volatility(w)
	if err != nil {
		return nil, err
	}
	var p mat.VecDense
	p.MulVec(o.returns.data, mat.NewVecDense(len(w), w))

	penalty := o.riskAversion * sigma
	ev := &Evaluation{
		PeriodReturns: make([]float64, o.periods),
		Volatility:    sigma,
		Utility:       make([]float64, o.periods),
	}
	var total float64
	for t := 0; t < o.periods; t++ {
		ev.PeriodReturns[t] = p.AtVec(t)
		ev.Utility[t] = ev.PeriodReturns[t] - penalty
		total += ev.Utility[t]
	}
	ev.Score = -total
	return ev, nil
}

// Value returns the score −Σ_t (p_t − λσ) without materializing the
// per-period vectors.
func (o *Objective) Value(w []float64) (float64, error) {
	if err := o.checkDim(w); err != nil {
		return 0, err
	}
	sigma, err := o.volatility(w)
	if err != nil {
		return 0, err
	}
	return -floats.Dot(o.colSums, w) + float64(o.periods)*o.riskAversion*sigma, nil
}

// Gradient writes ∇Value(w) into dst, allocating it when nil. Where σ = 0
// the volatility term contributes zero.
func (o *Objective) Gradient(dst, w []float64) ([]float64, error) {
	if err := o.checkDim(w); err != nil {
		return nil, err
	}
	if dst == nil {
		dst = make([]float64, len(w))
	}
	sigma, err := o.volatility(w)
	if err != nil {
		return nil, err
	}
	for i := range dst {
		dst[i] = -o.colSums[i]
	}
	if sigma == 0 || o.riskAversion == 0 {
		return dst, nil
	}
	var sw mat.VecDense
	sw.MulVec(o.cov.sym, mat.NewVecDense(len(w), w))
	scale := float64(o.periods) * o.riskAversion / sigma
	for i := range dst {
		dst[i] += scale * sw.AtVec(i)
	}
	return dst, nil
}

// Volatility returns sqrt(wᵀΣw).
func (o *Objective) Volatility(w []float64) (float64, error) {
	if err := o.checkDim(w); err != nil {
		return 0, err
	}
	return o.volatility(w)
}

func (o *Objective) volatility(w []float64) (float64, error) {
	v := mat.NewVecDense(len(w), w)
	q := mat.Inner(v, o.cov.sym, v)
	if math.IsNaN(q) {
		return 0, &NumericalDomainError{Variance: q}
	}
	if q < 0 {
		var scale float64
		for i := range w {
			for j := range w {
				scale += math.Abs(w[i] * w[j] * o.cov.sym.At(i, j))
			}
		}
		if q < -varianceTolerance*math.Max(1, scale) {
			return 0, &NumericalDomainError{Variance: q}
		}
		q = 0
	}
	return math.Sqrt(q), nil
}

func (o *Objective) checkDim(w []float64) error {
	if len(w) != len(o.colSums) {
		return fmt.Errorf("objective: got %d weights for %d assets", len(w), len(o.colSums))
	}
	return nil
}
