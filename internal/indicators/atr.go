package indicators

import (
	"math"
	"sort"

	"session-trader/internal/market"
)

// TrueRange returns the true range of a bar given the previous close.
// Pass NaN for prevClose when there is no prior bar; the true range then
// degrades to high minus low.
func TrueRange(bar market.Bar, prevClose float64) float64 {
	hl := bar.High - bar.Low
	if math.IsNaN(prevClose) {
		return hl
	}
	hc := math.Abs(bar.High - prevClose)
	lc := math.Abs(bar.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}

// ATR returns the mean true range over the bar slice. The first bar's
// true range is its high minus low.
func ATR(bars []market.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	prevClose := math.NaN()
	sum := 0.0
	for _, b := range bars {
		sum += TrueRange(b, prevClose)
		prevClose = b.Close
	}
	return sum / float64(len(bars))
}

// Median returns the median of the values, averaging the two middle
// elements for even counts. The input slice is not modified.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
