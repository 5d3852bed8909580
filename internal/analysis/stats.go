package analysis

import (
	"math"
	"sort"
)

// mean returns the arithmetic mean, or 0 for an empty slice.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// variancePop returns the population variance around the given mean.
func variancePop(xs []float64, mean float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return sumSq / float64(len(xs))
}

// sortedCopy returns an ascending copy of xs.
func sortedCopy(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}

// percentileSorted returns the p-th percentile (p in [0,1]) of an ascending
// slice, linearly interpolating between the two nearest ranks.
func percentileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := p * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// histogramMode estimates the mode by binning the samples into
// min(20, ceil(sqrt(n))) equal-width bins and taking the midpoint of the
// densest bin. Ties go to the lowest bin. Returns the mode and the bin count.
func histogramMode(sorted []float64) (float64, int) {
	n := len(sorted)
	if n == 0 {
		return 0, 0
	}
	bins := int(math.Ceil(math.Sqrt(float64(n))))
	if bins > 20 {
		bins = 20
	}
	lo, hi := sorted[0], sorted[n-1]
	if hi == lo {
		return lo, bins
	}
	width := (hi - lo) / float64(bins)
	counts := make([]int, bins)
	for _, x := range sorted {
		b := int((x - lo) / width)
		if b >= bins {
			// the maximum lands one past the final bin
			b = bins - 1
		}
		counts[b]++
	}
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return lo + (float64(best)+0.5)*width, bins
}

// skewness returns the moment-based skewness m3/sigma^3. Zero when the
// standard deviation is zero.
func skewness(xs []float64, mean, stdDev float64) float64 {
	if len(xs) == 0 || stdDev == 0 {
		return 0
	}
	var m3 float64
	for _, x := range xs {
		d := x - mean
		m3 += d * d * d
	}
	m3 /= float64(len(xs))
	return m3 / (stdDev * stdDev * stdDev)
}

// kurtosisExcess returns the moment-based excess kurtosis m4/sigma^4 - 3.
// Zero when the standard deviation is zero.
func kurtosisExcess(xs []float64, mean, stdDev float64) float64 {
	if len(xs) == 0 || stdDev == 0 {
		return 0
	}
	var m4 float64
	for _, x := range xs {
		d := x - mean
		m4 += d * d * d * d
	}
	m4 /= float64(len(xs))
	s2 := stdDev * stdDev
	return m4/(s2*s2) - 3
}

// iqrOutliers returns the samples outside [Q1 - 1.5*IQR, Q3 + 1.5*IQR] in
// ascending order. Fewer than four samples yield no outliers.
func iqrOutliers(sorted []float64) []float64 {
	if len(sorted) < 4 {
		return nil
	}
	q1 := percentileSorted(sorted, 0.25)
	q3 := percentileSorted(sorted, 0.75)
	iqr := q3 - q1
	lo := q1 - 1.5*iqr
	hi := q3 + 1.5*iqr
	var out []float64
	for _, x := range sorted {
		if x < lo || x > hi {
			out = append(out, x)
		}
	}
	return out
}

// pearson returns the Pearson correlation coefficient between two equal-length
// series. The second return is false when the series have fewer than two
// points or either has zero variance.
func pearson(xs, ys []float64) (float64, bool) {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return 0, false
	}
	mx := mean(xs)
	my := mean(ys)
	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx := xs[i] - mx
		dy := ys[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0, false
	}
	return sxy / math.Sqrt(sxx*syy), true
}

// rmsConsecutiveDiffs returns the root mean square of differences between
// consecutive samples.
func rmsConsecutiveDiffs(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sumSq float64
	for i := 1; i < len(xs); i++ {
		d := xs[i] - xs[i-1]
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}

// passAtK returns the probability that at least one of k draws from n samples
// with c successes is a success: 1 - C(n-c,k)/C(n,k), computed in product form
// so large n never overflows.
func passAtK(n, c, k int) float64 {
	if k <= 0 || n <= 0 || c <= 0 {
		return 0
	}
	if n-c < k {
		return 1
	}
	prod := 1.0
	for i := 0; i < k; i++ {
		prod *= float64(n-c-i) / float64(n-i)
	}
	return 1 - prod
}

// stabilityScore returns 1 - stdDev/mean clamped to [0,1]. Zero when the mean
// is not positive.
func stabilityScore(mean, stdDev float64) float64 {
	if mean <= 0 {
		return 0
	}
	s := 1 - stdDev/mean
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
