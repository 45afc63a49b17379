package optimizer

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestEstimateCovariance_KnownValues(t *testing.T) {
	a := []float64{0.01, 0.02, -0.01}
	b := []float64{0.02, 0.00, 0.01}
	r, err := NewReturnsMatrix([]string{"A", "B"}, [][]float64{{a[0], b[0]}, {a[1], b[1]}, {a[2], b[2]}})
	require.NoError(t, err)

	cov, err := EstimateCovariance(r)
	require.NoError(t, err)

	require.Equal(t, 2, cov.Dim())
	// Σ(d²) = 4.6667e-4 over T-2 = 2 periods of freedom
	assert.InDelta(t, 2.3333333333e-4, cov.At(0, 0), 1e-12)
	assert.InDelta(t, stat.Covariance(a, b, nil), cov.At(0, 1), 1e-15)
	assert.InDeltaSlice(t, []float64{math.Sqrt(cov.At(0, 0)), math.Sqrt(cov.At(1, 1))}, cov.Volatility(), 1e-15)
}

func TestEstimateCovariance_SymmetricNonNegativeDiagonal(t *testing.T) {
	r := syntheticReturns(t, 40, 5)

	cov, err := EstimateCovariance(r)
	require.NoError(t, err)

	for i := 0; i < cov.Dim(); i++ {
		assert.GreaterOrEqual(t, cov.At(i, i), 0.0)
		for j := 0; j < cov.Dim(); j++ {
			assert.Equal(t, cov.At(i, j), cov.At(j, i))
		}
	}
}

func TestEstimateCovariance_ConstantSeries(t *testing.T) {
	r, err := NewReturnsMatrix([]string{"A", "B"}, [][]float64{{0.01, 0}, {0.02, 0}, {-0.01, 0}})
	require.NoError(t, err)

	cov, err := EstimateCovariance(r)
	require.NoError(t, err)

	assert.Equal(t, 0.0, cov.At(1, 1))
	assert.Equal(t, 0.0, cov.Volatility()[1])
}

func TestEstimateCovariance_SingleRow(t *testing.T) {
	r, err := NewReturnsMatrix([]string{"A", "B"}, [][]float64{{0.01, 0.02}})
	require.NoError(t, err)

	_, err = EstimateCovariance(r)
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestEstimateCovariance_SingleAssetSingleRow(t *testing.T) {
	r, err := ComputeReturns([]AssetSeries{series("A", []int{0, 1}, []float64{100, 101})})
	require.NoError(t, err)

	cov, err := EstimateCovariance(r)
	require.NoError(t, err)
	require.Equal(t, 1, cov.Dim())
	assert.Equal(t, 0.0, cov.At(0, 0))
}
