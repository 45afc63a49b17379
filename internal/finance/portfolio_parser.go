package finance

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"portfolioOptimizer/internal/config"
)

var reOptimizePrefix = regexp.MustCompile(`^/optimize(?:@[\w_]+)?`)

// OptimizeCommand is a parsed /optimize request.
type OptimizeCommand struct {
	Tickers      []string
	Window       string
	Start        time.Time
	End          time.Time
	RiskAversion *float64
}

// ParseOptimizeCommand parses a command string
// Format: /optimize AAPL,GOOG [window] [risk_aversion]
// e.g. "/optimize AAPL, GOOG MSFT 2y 0.3". Tickers may be separated by
// commas or spaces; the window defaults to 1y and the risk aversion to
// the caller's default. Windows never reach back before earliest.
func ParseOptimizeCommand(input string, now, earliest time.Time) (*OptimizeCommand, error) {
	input = strings.TrimSpace(input)
	input = strings.TrimSpace(reOptimizePrefix.ReplaceAllString(input, ""))

	parts := strings.Fields(strings.ReplaceAll(input, ",", " "))
	cmd := &OptimizeCommand{}

	// trailing risk aversion, then trailing window
	if n := len(parts); n > 0 {
		if v, err := strconv.ParseFloat(parts[n-1], 64); err == nil {
			if v < 0 || v > 1 {
				return nil, fmt.Errorf("risk aversion %s must be between 0 and 1", parts[n-1])
			}
			cmd.RiskAversion = &v
			parts = parts[:n-1]
		}
	}
	if n := len(parts); n > 0 && IsWindow(parts[n-1]) {
		cmd.Window = strings.ToLower(parts[n-1])
		parts = parts[:n-1]
	}

	cmd.Tickers = config.ParseTickers(strings.Join(parts, ","))
	if len(cmd.Tickers) == 0 {
		return nil, fmt.Errorf("insufficient arguments: need at least one ticker")
	}

	if cmd.Window == "" {
		cmd.Window = "1y"
	}
	start, end, err := ParseWindow(cmd.Window, now, earliest)
	if err != nil {
		return nil, err
	}
	cmd.Start, cmd.End = start, end
	return cmd, nil
}
