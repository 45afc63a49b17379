package finance

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Percent renders a fraction as a percentage with two decimals, e.g.
// 0.12345 → "12.35%".
func Percent(fraction float64) string {
	return decimal.NewFromFloat(fraction).Mul(hundred).StringFixed(2) + "%"
}

// FormatAllocation prints one "SYMBOL: 12.34%" line per asset, in input order.
func FormatAllocation(symbols []string, weights []float64) string {
	var b strings.Builder
	for i, sym := range symbols {
		if i >= len(weights) {
			break
		}
		fmt.Fprintf(&b, "%s: %s\n", sym, Percent(weights[i]))
	}
	return b.String()
}

// FormatVolatility prints the portfolio volatility line.
func FormatVolatility(sigma float64) string {
	return "Portfolio Volatility: " + Percent(sigma)
}
