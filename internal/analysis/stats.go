package analysis

import (
	"math"
	"sort"
)

// dropNaN returns the non-NaN values.
func dropNaN(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// nanMean averages the non-NaN values, NaN when none remain.
func nanMean(vals []float64) float64 {
	var sum float64
	var n int
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// nanStd is the sample standard deviation (ddof=1) over non-NaN values.
func nanStd(vals []float64) float64 {
	clean := dropNaN(vals)
	if len(clean) < 2 {
		return math.NaN()
	}
	m := nanMean(clean)
	var sum float64
	for _, v := range clean {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(clean)-1))
}

// nanMedian is the linearly interpolated median over non-NaN values.
func nanMedian(vals []float64) float64 {
	return nanQuantile(vals, 0.5)
}

// nanQuantile computes a linearly interpolated quantile over non-NaN values.
func nanQuantile(vals []float64, q float64) float64 {
	clean := dropNaN(vals)
	if len(clean) == 0 {
		return math.NaN()
	}
	sort.Float64s(clean)
	return interpQuantile(clean, q)
}

func nanMin(vals []float64) float64 {
	clean := dropNaN(vals)
	if len(clean) == 0 {
		return math.NaN()
	}
	m := clean[0]
	for _, v := range clean[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func nanMax(vals []float64) float64 {
	clean := dropNaN(vals)
	if len(clean) == 0 {
		return math.NaN()
	}
	m := clean[0]
	for _, v := range clean[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func round1(v float64) float64 { return roundTo(v, 1) }
func round2(v float64) float64 { return roundTo(v, 2) }
func round3(v float64) float64 { return roundTo(v, 3) }
func round6(v float64) float64 { return roundTo(v, 6) }

func roundTo(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// pearson returns the Pearson correlation of paired values, dropping pairs
// where either side is NaN. ok is false with fewer than 2 complete pairs or
// zero variance on either side.
func pearson(a, b []float64) (r float64, n int, ok bool) {
	var xs, ys []float64
	for i := range a {
		if i >= len(b) || math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		xs = append(xs, a[i])
		ys = append(ys, b[i])
	}
	n = len(xs)
	if n < 2 {
		return 0, n, false
	}
	mx := nanMean(xs)
	my := nanMean(ys)
	var num, dx2, dy2 float64
	for i := range xs {
		dx := xs[i] - mx
		dy := ys[i] - my
		num += dx * dy
		dx2 += dx * dx
		dy2 += dy * dy
	}
	if dx2 == 0 || dy2 == 0 {
		return 0, n, false
	}
	r = num / math.Sqrt(dx2*dy2)
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return r, n, true
}
