package analysis

import (
	"math"
	"testing"
)

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestPercentileSorted(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}

	tests := []struct {
		name string
		p    float64
		want float64
	}{
		{"p0 is min", 0, 10},
		{"p50 interpolates", 0.5, 25},
		{"p75 interpolates", 0.75, 32.5},
		{"p100 is max", 1, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := percentileSorted(sorted, tt.p)
			if !near(got, tt.want, 1e-9) {
				t.Errorf("percentileSorted(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}

	if got := percentileSorted(nil, 0.5); got != 0 {
		t.Errorf("empty slice: got %v, want 0", got)
	}
	if got := percentileSorted([]float64{42}, 0.99); got != 42 {
		t.Errorf("single sample: got %v, want 42", got)
	}
}

func TestHistogramMode(t *testing.T) {
	// 9 samples, bins = ceil(sqrt(9)) = 3, width (9-1)/3. The first bin
	// [1, 3.67) holds five samples, so the mode is its midpoint.
	sorted := []float64{1, 1, 1, 1, 2, 5, 8, 9, 9}
	mode, bins := histogramMode(sorted)
	if bins != 3 {
		t.Fatalf("bins = %d, want 3", bins)
	}
	want := 1 + 0.5*(8.0/3.0)
	if !near(mode, want, 1e-9) {
		t.Errorf("mode = %v, want %v", mode, want)
	}
}

func TestHistogramModeBinCap(t *testing.T) {
	samples := make([]float64, 500)
	for i := range samples {
		samples[i] = float64(i)
	}
	_, bins := histogramMode(samples)
	if bins != 20 {
		t.Errorf("bins = %d, want 20 for 500 samples", bins)
	}
}

func TestHistogramModeDegenerate(t *testing.T) {
	mode, bins := histogramMode([]float64{7, 7, 7, 7})
	if mode != 7 {
		t.Errorf("all-equal mode = %v, want 7", mode)
	}
	if bins != 2 {
		t.Errorf("bins = %d, want 2", bins)
	}
	if mode, bins := histogramMode(nil); mode != 0 || bins != 0 {
		t.Errorf("empty input: got (%v, %d), want (0, 0)", mode, bins)
	}
}

func TestIQROutliers(t *testing.T) {
	// Q1 and Q3 are both 10, so the IQR collapses and 100 falls outside.
	outliers := iqrOutliers([]float64{10, 10, 10, 10, 100})
	if len(outliers) != 1 || outliers[0] != 100 {
		t.Errorf("outliers = %v, want [100]", outliers)
	}

	if out := iqrOutliers([]float64{10, 20, 30, 40}); out != nil {
		t.Errorf("spread samples: outliers = %v, want none", out)
	}
	if out := iqrOutliers([]float64{10, 1000}); out != nil {
		t.Errorf("short input: outliers = %v, want none", out)
	}
}

func TestVarianceIsPopulation(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	m := mean(xs)
	if m != 5 {
		t.Fatalf("mean = %v, want 5", m)
	}
	// population variance of this classic set is exactly 4
	if v := variancePop(xs, m); !near(v, 4, 1e-9) {
		t.Errorf("variance = %v, want 4", v)
	}
}

func TestSkewness(t *testing.T) {
	sym := []float64{1, 2, 3}
	m := mean(sym)
	sd := math.Sqrt(variancePop(sym, m))
	if got := skewness(sym, m, sd); !near(got, 0, 1e-9) {
		t.Errorf("symmetric skewness = %v, want 0", got)
	}

	right := []float64{1, 1, 1, 10}
	m = mean(right)
	sd = math.Sqrt(variancePop(right, m))
	if got := skewness(right, m, sd); got <= 0 {
		t.Errorf("right-tailed skewness = %v, want > 0", got)
	}

	if got := skewness(right, m, 0); got != 0 {
		t.Errorf("zero stddev skewness = %v, want 0", got)
	}
}

func TestKurtosisExcess(t *testing.T) {
	flat := []float64{1, 2, 3, 4}
	m := mean(flat)
	sd := math.Sqrt(variancePop(flat, m))
	if got := kurtosisExcess(flat, m, sd); got >= 0 {
		t.Errorf("flat distribution excess kurtosis = %v, want < 0", got)
	}

	spiked := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 100}
	m = mean(spiked)
	sd = math.Sqrt(variancePop(spiked, m))
	if got := kurtosisExcess(spiked, m, sd); got <= 0 {
		t.Errorf("heavy-tailed excess kurtosis = %v, want > 0", got)
	}
}

func TestPearson(t *testing.T) {
	if r, ok := pearson([]float64{1, 2, 3}, []float64{2, 4, 6}); !ok || !near(r, 1, 1e-9) {
		t.Errorf("perfect positive: r = %v ok = %v, want 1 true", r, ok)
	}
	if r, ok := pearson([]float64{1, 2, 3}, []float64{6, 4, 2}); !ok || !near(r, -1, 1e-9) {
		t.Errorf("perfect negative: r = %v ok = %v, want -1 true", r, ok)
	}
	if _, ok := pearson([]float64{1, 2, 3}, []float64{5, 5, 5}); ok {
		t.Error("zero variance series should not be valid")
	}
	if _, ok := pearson([]float64{1}, []float64{2}); ok {
		t.Error("single point should not be valid")
	}
	if _, ok := pearson([]float64{1, 2}, []float64{1, 2, 3}); ok {
		t.Error("mismatched lengths should not be valid")
	}
}

func TestRMSConsecutiveDiffs(t *testing.T) {
	// diffs are +10 and -10, so RMS is exactly 10
	if got := rmsConsecutiveDiffs([]float64{10, 20, 10}); !near(got, 10, 1e-9) {
		t.Errorf("jitter = %v, want 10", got)
	}
	if got := rmsConsecutiveDiffs([]float64{5, 5, 5}); got != 0 {
		t.Errorf("constant series jitter = %v, want 0", got)
	}
	if got := rmsConsecutiveDiffs([]float64{5}); got != 0 {
		t.Errorf("single sample jitter = %v, want 0", got)
	}
}

func TestPassAtK(t *testing.T) {
	tests := []struct {
		name    string
		n, c, k int
		want    float64
	}{
		{"all passed", 10, 10, 1, 1},
		{"none passed", 10, 0, 5, 0},
		{"one of ten at k1", 10, 1, 1, 0.1},
		{"failures fewer than k", 10, 5, 10, 1},
		{"two of four at k2", 4, 2, 2, 1 - 1.0/6.0},
		{"three of ten at k5", 10, 3, 5, 1 - 21.0/252.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := passAtK(tt.n, tt.c, tt.k)
			if !near(got, tt.want, 1e-9) {
				t.Errorf("passAtK(%d, %d, %d) = %v, want %v", tt.n, tt.c, tt.k, got, tt.want)
			}
		})
	}
}

func TestStabilityScore(t *testing.T) {
	if got := stabilityScore(100, 20); !near(got, 0.8, 1e-9) {
		t.Errorf("stability = %v, want 0.8", got)
	}
	if got := stabilityScore(100, 150); got != 0 {
		t.Errorf("stddev above mean: stability = %v, want 0", got)
	}
	if got := stabilityScore(0, 5); got != 0 {
		t.Errorf("zero mean: stability = %v, want 0", got)
	}
}
