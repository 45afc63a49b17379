package optimizer

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// EstimateCovariance computes the unbiased sample covariance of the returns.
// The divisor is periods-1, which is T-2 for T price observations. A lone
// asset with a single return has no spread to measure; its variance is 0.
func EstimateCovariance(r *ReturnsMatrix) (*CovarianceMatrix, error) {
	periods, assets := r.Dims()
	if periods < 2 && assets == 1 {
		return &CovarianceMatrix{sym: mat.NewSymDense(1, nil)}, nil
	}
	if periods < 2 {
		return nil, &InsufficientDataError{Observations: periods + 1}
	}
	var sym mat.SymDense
	stat.CovarianceMatrix(&sym, r.data, nil)

	// The two-pass estimate can leave -0 or a last-ulp negative on the
	// diagonal of a constant series.
	n, _ := sym.Dims()
	for i := 0; i < n; i++ {
		if sym.At(i, i) < 0 {
			sym.SetSym(i, i, 0)
		}
	}
	return &CovarianceMatrix{sym: &sym}, nil
}
