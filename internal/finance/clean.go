package finance

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"portfolioOptimizer/internal/optimizer"
)

// dropNonPositive removes closes that are ≤ 0 or not finite. Yahoo encodes
// missing sessions as null, which decode as 0.
func dropNonPositive(points []optimizer.PricePoint) []optimizer.PricePoint {
	out := make([]optimizer.PricePoint, 0, len(points))
	for _, p := range points {
		if p.Close <= 0 || math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// lastPerDay keeps one point per date. While a session is open Yahoo can
// append a live bar for a day it already reported; the later bar wins.
func lastPerDay(points []optimizer.PricePoint) []optimizer.PricePoint {
	out := make([]optimizer.PricePoint, 0, len(points))
	for _, p := range points {
		if n := len(out); n > 0 && out[n-1].Time.Equal(p.Time) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

// filterIQR removes outliers using the Interquartile Range (IQR) rule.
// Any point with value outside [Q1 - k*IQR, Q3 + k*IQR] is dropped.
// For short series (< minPoints), it returns original data, and it never
// drops more than half of the series.
func filterIQR(points []optimizer.PricePoint, k float64, minPoints int) []optimizer.PricePoint {
	if len(points) < minPoints {
		return points
	}
	vals := make([]float64, len(points))
	for i, p := range points {
		vals[i] = p.Close
	}
	sort.Float64s(vals)
	q1 := stat.Quantile(0.25, stat.LinInterp, vals, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, vals, nil)
	iqr := q3 - q1
	if iqr <= 0 {
		return points
	}
	lower := q1 - k*iqr
	upper := q3 + k*iqr
	out := make([]optimizer.PricePoint, 0, len(points))
	for _, p := range points {
		if p.Close < lower || p.Close > upper {
			continue
		}
		out = append(out, p)
	}
	if len(out) < minPoints/2 {
		return points
	}
	return out
}
