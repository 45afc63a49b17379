package finance

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"portfolioOptimizer/internal/config"
)

// ParseWindow turns a lookback such as 30d, 6w, 3m, 2y or max into a
// [start, end) range ending at the start of the day after now. An empty
// window means one year. "max" and longer lookbacks begin at earliest.
func ParseWindow(window string, now, earliest time.Time) (start, end time.Time, err error) {
	end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)

	w := strings.ToLower(strings.TrimSpace(window))
	if w == "" {
		w = "1y"
	}
	if w == "max" {
		return earliest, end, nil
	}
	if len(w) < 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid window format: %s (use format like 30d, 6w, 3m, 1y or max)", window)
	}
	n, convErr := strconv.Atoi(w[:len(w)-1])
	if convErr != nil || n <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid window format: %s (use format like 30d, 6w, 3m, 1y or max)", window)
	}

	switch w[len(w)-1] {
	case 'd':
		start = end.AddDate(0, 0, -n)
	case 'w':
		start = end.AddDate(0, 0, -7*n)
	case 'm':
		start = end.AddDate(0, -n, 0)
	case 'y':
		start = end.AddDate(-n, 0, 0)
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("invalid window format: %s (use format like 30d, 6w, 3m, 1y or max)", window)
	}
	if start.Before(earliest) {
		start = earliest
	}
	return start, end, nil
}

// IsWindow reports whether s parses as a window.
func IsWindow(s string) bool {
	_, _, err := ParseWindow(s, time.Now(), config.DefaultStart)
	return err == nil && strings.TrimSpace(s) != ""
}
