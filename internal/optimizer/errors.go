package optimizer

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrNumericalDomain  = errors.New("numerical domain error")
	ErrGridDimension    = errors.New("grid sampling needs at least two assets")
)

// InsufficientDataError reports that no return could be computed. Symbol is
// empty when the shortfall only appears after aligning all assets.
type InsufficientDataError struct {
	Symbol       string
	Observations int
}

func (e *InsufficientDataError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("insufficient data: %d aligned observations", e.Observations)
	}
	return fmt.Sprintf("insufficient data for %s: %d valid observations", e.Symbol, e.Observations)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// NumericalDomainError is returned when wᵀΣw is negative beyond round-off,
// which means the covariance estimate is not positive semi-definite.
type NumericalDomainError struct {
	Variance float64
}

func (e *NumericalDomainError) Error() string {
	return fmt.Sprintf("numerical domain error: portfolio variance %g is negative", e.Variance)
}

func (e *NumericalDomainError) Is(target error) bool { return target == ErrNumericalDomain }
