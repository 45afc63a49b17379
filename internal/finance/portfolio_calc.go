package finance

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const tradingDaysPerYear = 252.0

// BuildPortfolio compounds per-period portfolio returns into a value path
// starting at initialValue. dates holds the end of each period; the
// starting point is placed one period before the first date.
func BuildPortfolio(dates []time.Time, periodReturns []float64, initialValue float64) (*PortfolioData, error) {
	if len(dates) != len(periodReturns) {
		return nil, fmt.Errorf("dates and returns length mismatch: %d vs %d", len(dates), len(periodReturns))
	}
	if len(periodReturns) == 0 {
		return nil, fmt.Errorf("no returns provided")
	}
	if initialValue <= 0 {
		return nil, fmt.Errorf("initial value %f must be positive", initialValue)
	}

	n := len(periodReturns)
	data := &PortfolioData{
		Timestamps: make([]time.Time, n+1),
		Values:     make([]float64, n+1),
		Returns:    make([]float64, n),
		Cumulative: make([]float64, n),
	}
	data.Timestamps[0] = dates[0].AddDate(0, 0, -1)
	if n > 1 {
		data.Timestamps[0] = dates[0].Add(-dates[1].Sub(dates[0]))
	}
	copy(data.Timestamps[1:], dates)
	copy(data.Returns, periodReturns)
	floats.CumSum(data.Cumulative, periodReturns)

	data.Values[0] = initialValue
	for t, r := range periodReturns {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, fmt.Errorf("invalid return on day %d: %f", t+1, r)
		}
		data.Values[t+1] = data.Values[t] * (1 + r)
	}
	return data, nil
}

// CalculateStats computes portfolio statistics including Sharpe ratio
func CalculateStats(portfolio *PortfolioData) (*PortfolioStats, error) {
	if portfolio == nil || len(portfolio.Values) < 2 {
		return nil, fmt.Errorf("insufficient portfolio data")
	}
	if len(portfolio.Returns) < 2 {
		return nil, fmt.Errorf("need at least 2 return observations for statistics")
	}

	numDays := len(portfolio.Values)
	initialValue := portfolio.Values[0]
	finalValue := portfolio.Values[numDays-1]
	totalReturn := (finalValue - initialValue) / initialValue

	// sample standard deviation, N-1
	dailyVolatility := stat.StdDev(portfolio.Returns, nil)

	yearsInPeriod := float64(len(portfolio.Returns)) / tradingDaysPerYear
	var annualReturn float64
	if yearsInPeriod > 0 && finalValue > 0 && initialValue > 0 {
		// geometric: (1 + total_return)^(1/years) - 1
		annualReturn = math.Pow(finalValue/initialValue, 1.0/yearsInPeriod) - 1.0
	}
	annualVolatility := dailyVolatility * math.Sqrt(tradingDaysPerYear)

	var sharpeRatio float64
	if annualVolatility > 0 {
		sharpeRatio = annualReturn / annualVolatility
	}

	stats := &PortfolioStats{
		InitialValue: initialValue,
		FinalValue:   finalValue,
		TotalReturn:  totalReturn * 100,
		AnnualReturn: annualReturn * 100,
		Volatility:   annualVolatility * 100,
		SharpeRatio:  sharpeRatio,
		MaxDrawdown:  calculateMaxDrawdown(portfolio.Values) * 100,
		NumDays:      numDays,
	}

	for name, v := range map[string]float64{
		"total return":  stats.TotalReturn,
		"annual return": stats.AnnualReturn,
		"volatility":    stats.Volatility,
		"Sharpe ratio":  stats.SharpeRatio,
		"max drawdown":  stats.MaxDrawdown,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid %s: %f", name, v)
		}
	}
	return stats, nil
}

// calculateMaxDrawdown is the largest peak-to-trough decline as a fraction
// of the peak.
func calculateMaxDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0.0
	}

	maxDrawdown := 0.0
	peak := values[0]
	if peak <= 0 {
		// first positive value is the starting peak
		for i := 1; i < len(values); i++ {
			if values[i] > 0 {
				peak = values[i]
				break
			}
		}
		if peak <= 0 {
			return 0.0
		}
	}

	for _, value := range values {
		if value > peak {
			peak = value
		}
		if peak > 0 && value >= 0 {
			if dd := (peak - value) / peak; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}
	return maxDrawdown
}
