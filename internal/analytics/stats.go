package analytics

import (
	"math"

	"github.com/shopspring/decimal"
)

// Mean returns the arithmetic mean of xs, or false when xs is empty.
func Mean(xs []decimal.Decimal) (decimal.Decimal, bool) {
	if len(xs) == 0 {
		return decimal.Zero, false
	}
	return decimal.Sum(xs[0], xs[1:]...).Div(decimal.NewFromInt(int64(len(xs)))), true
}

// Pearson returns the correlation coefficient of the pairs (x[i], y[i])
// where both values are defined. It is NaN with fewer than two pairs or
// when either side is constant.
func Pearson(x, y []float64) float64 {
	var n, sx, sy float64
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		n++
		sx += x[i]
		sy += y[i]
	}
	if n < 2 {
		return math.NaN()
	}

	mx, my := sx/n, sy/n
	var cov, vx, vy float64
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(vx*vy)
}

// CorrelationMatrix returns the pairwise Pearson matrix of the given series.
func CorrelationMatrix(series [][]float64) [][]float64 {
	m := make([][]float64, len(series))
	for i := range series {
		m[i] = make([]float64, len(series))
		for j := range series {
			if j < i {
				m[i][j] = m[j][i]
				continue
			}
			m[i][j] = Pearson(series[i], series[j])
		}
	}
	return m
}

// PctChange returns the relative change between consecutive values.
// The first element is NaN.
func PctChange(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if i == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = xs[i]/xs[i-1] - 1
	}
	return out
}

// RollingStd returns the sample standard deviation over a trailing window.
// NaN values are skipped; a window with fewer than minPeriods defined values,
// or fewer than two, yields NaN.
func RollingStd(xs []float64, window, minPeriods int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		lo := max(0, i-window+1)

		var n, sum float64
		for _, v := range xs[lo : i+1] {
			if !math.IsNaN(v) {
				n++
				sum += v
			}
		}
		if n < 2 || n < float64(minPeriods) {
			out[i] = math.NaN()
			continue
		}

		mean := sum / n
		var ss float64
		for _, v := range xs[lo : i+1] {
			if !math.IsNaN(v) {
				ss += (v - mean) * (v - mean)
			}
		}
		out[i] = math.Sqrt(ss / (n - 1))
	}
	return out
}
