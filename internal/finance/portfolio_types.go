package finance

import "time"

// PortfolioData is the value path of a portfolio rebalanced to fixed
// weights every period.
type PortfolioData struct {
	Timestamps []time.Time `json:"timestamps"`
	Values     []float64   `json:"values"`     // Portfolio values starting from InitialValue
	Returns    []float64   `json:"returns"`    // Per-period returns, aligned with Timestamps[1:]
	Cumulative []float64   `json:"cumulative"` // Running sum of Returns
}

// PortfolioStats represents calculated portfolio statistics
type PortfolioStats struct {
	InitialValue float64 `json:"initial_value"`
	FinalValue   float64 `json:"final_value"`
	TotalReturn  float64 `json:"total_return_pct"`  // Total return as percentage
	AnnualReturn float64 `json:"annual_return_pct"` // Annualized return
	Volatility   float64 `json:"volatility_pct"`    // Annualized volatility
	SharpeRatio  float64 `json:"sharpe"`            // Risk-free rate assumed to be 0
	MaxDrawdown  float64 `json:"max_drawdown_pct"`  // Maximum drawdown as percentage
	NumDays      int     `json:"num_days"`          // Number of observations
}
