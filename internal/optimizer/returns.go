package optimizer

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
)

// ComputeReturns aligns the series on the union of their timestamps and
// derives simple returns. A timestamp an asset lacks is undefined for that
// asset; rows touching an undefined price are dropped, never filled.
func ComputeReturns(series []AssetSeries) (*ReturnsMatrix, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("compute returns: no assets")
	}

	// union timeline, keyed by unix seconds
	byAsset := make([]map[int64]float64, len(series))
	timeline := map[int64]time.Time{}
	for i, s := range series {
		prices := make(map[int64]float64, len(s.Points))
		valid := 0
		for _, p := range s.Points {
			key := p.Time.Unix()
			if _, dup := prices[key]; dup {
				return nil, fmt.Errorf("compute returns: %s has duplicate observation at %s", s.Symbol, p.Time.Format(time.RFC3339))
			}
			if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) || p.Close <= 0 {
				prices[key] = math.NaN()
			} else {
				prices[key] = p.Close
				valid++
			}
			timeline[key] = p.Time
		}
		if valid < 2 {
			return nil, &InsufficientDataError{Symbol: s.Symbol, Observations: valid}
		}
		byAsset[i] = prices
	}

	keys := make([]int64, 0, len(timeline))
	for k := range timeline {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	price := func(asset int, k int64) float64 {
		if v, ok := byAsset[asset][k]; ok {
			return v
		}
		return math.NaN()
	}

	n := len(series)
	var data []float64
	var dates []time.Time
	row := make([]float64, n)
	for t := 1; t < len(keys); t++ {
		defined := true
		for a := 0; a < n; a++ {
			prev, cur := price(a, keys[t-1]), price(a, keys[t])
			r := (cur - prev) / prev
			if math.IsNaN(r) || math.IsInf(r, 0) {
				defined = false
				break
			}
			row[a] = r
		}
		if !defined {
			continue
		}
		data = append(data, row...)
		dates = append(dates, timeline[keys[t]])
	}
	if len(dates) == 0 {
		return nil, &InsufficientDataError{Observations: len(keys)}
	}

	symbols := make([]string, n)
	for i, s := range series {
		symbols[i] = s.Symbol
	}
	return &ReturnsMatrix{
		symbols: symbols,
		dates:   dates,
		data:    mat.NewDense(len(dates), n, data),
	}, nil
}

// NewReturnsMatrix builds a matrix from return rows that are already aligned.
func NewReturnsMatrix(symbols []string, rows [][]float64) (*ReturnsMatrix, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("returns matrix: no assets")
	}
	if len(rows) == 0 {
		return nil, &InsufficientDataError{}
	}
	n := len(symbols)
	data := make([]float64, 0, len(rows)*n)
	for t, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("returns matrix: row %d has %d values, expected %d", t, len(row), n)
		}
		for a, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("returns matrix: undefined value at row %d asset %s", t, symbols[a])
			}
		}
		data = append(data, row...)
	}
	syms := make([]string, n)
	copy(syms, symbols)
	return &ReturnsMatrix{symbols: syms, data: mat.NewDense(len(rows), n, data)}, nil
}
