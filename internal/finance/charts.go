package finance

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/vicanso/go-charts/v2"

	"portfolioOptimizer/internal/optimizer"
)

// SurfaceTitle is the caption of the objective surface chart.
const SurfaceTitle = "Objective Function (Allocation Attractiveness)"

// MakeSurfaceChart draws the sampled objective as a family of lines, one
// per volatility level, with utility on the y axis and portfolio return on
// the x axis. At most levels lines are drawn, evenly spaced over the
// volatility axis. cacheKey may be empty to skip the chart cache.
func MakeSurfaceChart(cacheKey string, s *optimizer.Surface, levels int) ([]byte, error) {
	if s == nil || len(s.Z) == 0 || len(s.ReturnAxis) == 0 {
		return nil, errors.New("empty surface")
	}
	if cacheKey != "" {
		if img, found := renderedCharts.get(chartKey("surface", cacheKey)); found {
			return img, nil
		}
	}
	if levels < 1 {
		levels = 5
	}

	rows := evenlySpaced(len(s.VolatilityAxis), levels)
	values := make([][]float64, 0, len(rows))
	names := make([]string, 0, len(rows))
	yMin, yMax := math.Inf(1), math.Inf(-1)
	for _, i := range rows {
		values = append(values, s.Z[i])
		names = append(names, "Vol "+Percent(s.VolatilityAxis[i]))
		for _, z := range s.Z[i] {
			yMin = math.Min(yMin, z)
			yMax = math.Max(yMax, z)
		}
	}
	pad := (yMax - yMin) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(yMax)*0.05, 1e-6)
	}
	yMin -= pad
	yMax += pad

	xLabels := make([]string, len(s.ReturnAxis))
	for j, r := range s.ReturnAxis {
		xLabels[j] = Percent(r)
	}
	split := 10
	if len(xLabels) < 30 {
		split = max(len(xLabels)/3, 1)
	}

	p, err := charts.LineRender(
		values,
		charts.TitleTextOptionFunc(SurfaceTitle, "x: Portfolio Returns • lines: Portfolio Volatility • y: Objective Function"),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        xLabels,
			SplitNumber: split,
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		charts.LegendOptionFunc(charts.LegendOption{
			Data: names,
			Top:  charts.PositionBottom,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(1000),
		charts.HeightOptionFunc(600),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}
	if cacheKey != "" {
		renderedCharts.set(chartKey("surface", cacheKey), buf)
	}
	return buf, nil
}

// MakeAllocationChart draws the weights as a pie. Weights that round to
// 0.00% are left out.
func MakeAllocationChart(symbols []string, weights []float64) ([]byte, error) {
	if len(symbols) == 0 || len(symbols) != len(weights) {
		return nil, fmt.Errorf("symbols and weights length mismatch")
	}
	var values []float64
	var labels []string
	for i, sym := range symbols {
		if weights[i] < 0.00005 {
			continue
		}
		values = append(values, weights[i])
		labels = append(labels, fmt.Sprintf("%s (%s)", sym, Percent(weights[i])))
	}
	if len(values) == 0 {
		return nil, errors.New("no positive weights")
	}

	p, err := charts.PieRender(
		values,
		charts.TitleTextOptionFunc("Optimized Allocation"),
		charts.LegendOptionFunc(charts.LegendOption{
			Data: labels,
			Top:  charts.PositionBottom,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(800),
		charts.HeightOptionFunc(600),
	)
	if err != nil {
		return nil, err
	}
	return p.Bytes()
}

// MakePerformanceChart draws the value path of the optimized portfolio with
// its statistics in the subtitle.
func MakePerformanceChart(cacheKey string, symbols []string, weights []float64, portfolio *PortfolioData, stats *PortfolioStats) ([]byte, error) {
	if portfolio == nil || len(portfolio.Values) < 2 {
		return nil, errors.New("not enough data points")
	}
	if cacheKey != "" {
		if img, found := renderedCharts.get(chartKey("performance", cacheKey)); found {
			return img, nil
		}
	}

	// timestamps are trading dates at UTC midnight
	xLabels := make([]string, len(portfolio.Timestamps))
	for i, ts := range portfolio.Timestamps {
		if len(portfolio.Timestamps) <= 60 {
			xLabels[i] = ts.UTC().Format("Jan 02")
		} else {
			xLabels[i] = ts.UTC().Format("Jan '06")
		}
	}

	minVal, maxVal := portfolio.Values[0], portfolio.Values[0]
	for _, v := range portfolio.Values {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	padding := (maxVal - minVal) * 0.05
	if padding == 0 {
		padding = maxVal * 0.05
	}
	yMin := minVal - padding
	yMax := maxVal + padding

	var composition []string
	for i, sym := range symbols {
		if i < len(weights) && weights[i] >= 0.0005 {
			composition = append(composition, fmt.Sprintf("%s %.1f%%", sym, weights[i]*100))
		}
	}
	title := fmt.Sprintf("Optimized Portfolio (%s)", strings.Join(composition, ", "))
	subtitle := ""
	if stats != nil {
		subtitle = fmt.Sprintf("Return: %.2f%% | Sharpe: %.2f | Vol: %.2f%% | MaxDD: %.2f%%",
			stats.TotalReturn, stats.SharpeRatio, stats.Volatility, stats.MaxDrawdown)
	}

	splitNum := 6
	if len(xLabels) <= 30 {
		splitNum = max(len(xLabels)/3, 3)
	}

	p, err := charts.LineRender(
		[][]float64{portfolio.Values},
		charts.TitleTextOptionFunc(title, subtitle),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        xLabels,
			SplitNumber: splitNum,
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}
	if cacheKey != "" {
		renderedCharts.set(chartKey("performance", cacheKey), buf)
	}
	return buf, nil
}

// evenlySpaced picks up to k distinct indices spread over [0, n).
func evenlySpaced(n, k int) []int {
	if n <= 0 {
		return nil
	}
	if k >= n {
		k = n
	}
	if k == 1 {
		return []int{0}
	}
	out := make([]int, 0, k)
	for i := 0; i < k; i++ {
		idx := int(math.Round(float64(i) * float64(n-1) / float64(k-1)))
		if len(out) > 0 && out[len(out)-1] == idx {
			continue
		}
		out = append(out, idx)
	}
	return out
}
