// Package analysis derives statistical reports from completed benchmark
// sessions. A report is a pure function of its session: it is never stored as
// ground truth and can always be regenerated from the export.
package analysis

import (
	"fmt"
	"math"
	"time"

	"github.com/edgebench/edgebench/pkg/models"
)

// Anomaly thresholds. Warning fires at the base value, critical at the
// escalated one.
const (
	ttftSpikeWarnRatio  = 3.0
	ttftSpikeCritRatio  = 5.0
	degradationWarnFrac = 0.7
	degradationCritFrac = 0.5
	instabilityWarnCV   = 0.5
	instabilityCritCV   = 1.0
)

// positionMinSamples is the minimum number of inter-token samples a result
// needs before its position-vs-latency correlation is trusted.
const positionMinSamples = 5

// passAtKValues are the k values reported when enough iterations exist.
var passAtKValues = []int{1, 5, 10}

// Analyze computes a statistical report over one session. An empty session
// produces a zero-valued report rather than an error.
func Analyze(session *models.Session) *models.StatisticalReport {
	report := &models.StatisticalReport{
		SessionID:    session.ID,
		ModelID:      session.ModelID,
		Mode:         session.Mode,
		GeneratedAt:  time.Now().UTC(),
		ProblemCount: len(session.Problems),
		SuccessCount: session.SuccessCount(),
	}

	interToken := pooledInterToken(session)
	ttft := ttftSamples(session)
	tps := tpsSamples(session)

	report.Distribution = distributionStats(interToken)
	report.TTFT = ttftStats(ttft)
	report.TPS = tpsStats(tps)
	report.InterToken = interTokenStats(interToken)
	report.Anomalies = detectAnomalies(ttft, tps, interToken)
	report.Correlations = correlations(session)
	report.PassAtK = passAtKReport(session)
	return report
}

// pooledInterToken concatenates inter-token samples across all results in run
// order.
func pooledInterToken(session *models.Session) []float64 {
	var out []float64
	for i := range session.Problems {
		out = append(out, session.Problems[i].Metrics.InterTokenMs...)
	}
	return out
}

func ttftSamples(session *models.Session) []float64 {
	var out []float64
	for i := range session.Problems {
		m := &session.Problems[i].Metrics
		if m.TTFTValid {
			out = append(out, m.TTFTMs)
		}
	}
	return out
}

func tpsSamples(session *models.Session) []float64 {
	var out []float64
	for i := range session.Problems {
		m := &session.Problems[i].Metrics
		if m.TPSValid {
			out = append(out, m.TPS)
		}
	}
	return out
}

func distributionStats(samples []float64) models.DistributionStats {
	if len(samples) == 0 {
		return models.DistributionStats{}
	}
	sorted := sortedCopy(samples)
	m := mean(samples)
	variance := variancePop(samples, m)
	stdDev := math.Sqrt(variance)
	mode, bins := histogramMode(sorted)
	return models.DistributionStats{
		Count:          len(samples),
		Mean:           m,
		Median:         percentileSorted(sorted, 0.5),
		Mode:           mode,
		BinCount:       bins,
		Variance:       variance,
		StdDev:         stdDev,
		Skewness:       skewness(samples, m, stdDev),
		KurtosisExcess: kurtosisExcess(samples, m, stdDev),
		Outliers:       iqrOutliers(sorted),
	}
}

func ttftStats(samples []float64) models.TTFTStats {
	if len(samples) == 0 {
		return models.TTFTStats{}
	}
	sorted := sortedCopy(samples)
	return models.TTFTStats{
		Count:    len(samples),
		MeanMs:   mean(samples),
		MedianMs: percentileSorted(sorted, 0.5),
		P95Ms:    percentileSorted(sorted, 0.95),
		P99Ms:    percentileSorted(sorted, 0.99),
	}
}

func tpsStats(samples []float64) models.TPSStats {
	if len(samples) == 0 {
		return models.TPSStats{}
	}
	sorted := sortedCopy(samples)
	m := mean(samples)
	stdDev := math.Sqrt(variancePop(samples, m))
	return models.TPSStats{
		Count:     len(samples),
		Mean:      m,
		Median:    percentileSorted(sorted, 0.5),
		Min:       sorted[0],
		Max:       sorted[len(sorted)-1],
		Stability: stabilityScore(m, stdDev),
	}
}

func interTokenStats(samples []float64) models.InterTokenStats {
	if len(samples) == 0 {
		return models.InterTokenStats{}
	}
	sorted := sortedCopy(samples)
	m := mean(samples)
	stdDev := math.Sqrt(variancePop(samples, m))
	median := percentileSorted(sorted, 0.5)
	p99 := percentileSorted(sorted, 0.99)
	burstiness := 0.0
	if median > 0 {
		burstiness = p99 / median
	}
	return models.InterTokenStats{
		Count:       len(samples),
		P50Ms:       median,
		P75Ms:       percentileSorted(sorted, 0.75),
		P90Ms:       percentileSorted(sorted, 0.90),
		P95Ms:       percentileSorted(sorted, 0.95),
		P99Ms:       p99,
		JitterMs:    rmsConsecutiveDiffs(samples),
		Burstiness:  burstiness,
		Consistency: stabilityScore(m, stdDev),
	}
}

// detectAnomalies runs the three detectors independently. Each needs enough
// samples to be meaningful; sparse sessions produce no flags.
func detectAnomalies(ttft, tps, interToken []float64) []models.Anomaly {
	var anomalies []models.Anomaly
	if a := detectTTFTSpike(ttft); a != nil {
		anomalies = append(anomalies, *a)
	}
	if a := detectDegradation(tps); a != nil {
		anomalies = append(anomalies, *a)
	}
	if a := detectInstability(interToken); a != nil {
		anomalies = append(anomalies, *a)
	}
	return anomalies
}

// detectTTFTSpike flags the largest IQR outlier when it exceeds a multiple of
// the median TTFT.
func detectTTFTSpike(ttft []float64) *models.Anomaly {
	sorted := sortedCopy(ttft)
	outliers := iqrOutliers(sorted)
	if len(outliers) == 0 {
		return nil
	}
	median := percentileSorted(sorted, 0.5)
	if median <= 0 {
		return nil
	}
	// outliers are ascending, so the last one is the largest
	largest := outliers[len(outliers)-1]
	ratio := largest / median
	if ratio <= ttftSpikeWarnRatio {
		return nil
	}
	severity := models.SeverityWarning
	threshold := ttftSpikeWarnRatio * median
	if ratio > ttftSpikeCritRatio {
		severity = models.SeverityCritical
		threshold = ttftSpikeCritRatio * median
	}
	return &models.Anomaly{
		Type:        models.AnomalyTTFTSpike,
		Severity:    severity,
		Value:       largest,
		Threshold:   threshold,
		Description: fmt.Sprintf("Largest TTFT outlier %.0fms is %.1fx the median (%.0fms)", largest, ratio, median),
	}
}

// detectDegradation compares mean decode throughput between the two halves of
// the run. Needs at least two samples per half.
func detectDegradation(tps []float64) *models.Anomaly {
	if len(tps) < 4 {
		return nil
	}
	mid := len(tps) / 2
	first := mean(tps[:mid])
	second := mean(tps[mid:])
	if first <= 0 {
		return nil
	}
	frac := second / first
	if frac >= degradationWarnFrac {
		return nil
	}
	severity := models.SeverityWarning
	threshold := degradationWarnFrac * first
	if frac < degradationCritFrac {
		severity = models.SeverityCritical
		threshold = degradationCritFrac * first
	}
	return &models.Anomaly{
		Type:        models.AnomalyDegradation,
		Severity:    severity,
		Value:       second,
		Threshold:   threshold,
		Description: fmt.Sprintf("Second-half TPS %.1f is %.0f%% of the first half (%.1f)", second, frac*100, first),
	}
}

// detectInstability flags a high coefficient of variation in inter-token
// latency.
func detectInstability(interToken []float64) *models.Anomaly {
	if len(interToken) < 2 {
		return nil
	}
	m := mean(interToken)
	if m <= 0 {
		return nil
	}
	cv := math.Sqrt(variancePop(interToken, m)) / m
	if cv <= instabilityWarnCV {
		return nil
	}
	severity := models.SeverityWarning
	threshold := instabilityWarnCV
	if cv > instabilityCritCV {
		severity = models.SeverityCritical
		threshold = instabilityCritCV
	}
	return &models.Anomaly{
		Type:        models.AnomalyInstability,
		Severity:    severity,
		Value:       cv,
		Threshold:   threshold,
		Description: fmt.Sprintf("Inter-token latency CV %.2f exceeds %.2f", cv, threshold),
	}
}

// correlations computes Pearson correlations between generation length and
// latency. Tokens-vs-latency uses one point per result: token count against
// mean inter-token latency. Position-vs-latency is computed within each
// result that has enough samples and averaged across them, a rough signal of
// whether latency grows as the context fills during a single generation.
func correlations(session *models.Session) models.CorrelationStats {
	var stats models.CorrelationStats

	var tokenCounts, meanLatencies []float64
	var positionSum float64
	for i := range session.Problems {
		m := &session.Problems[i].Metrics
		if len(m.InterTokenMs) == 0 {
			continue
		}
		tokenCounts = append(tokenCounts, float64(m.TokenCount))
		meanLatencies = append(meanLatencies, mean(m.InterTokenMs))

		if len(m.InterTokenMs) > positionMinSamples {
			positions := make([]float64, len(m.InterTokenMs))
			for p := range positions {
				positions[p] = float64(p)
			}
			if r, ok := pearson(positions, m.InterTokenMs); ok {
				positionSum += r
				stats.PositionProblems++
			}
		}
	}

	stats.TokensVsLatency, stats.TokensVsLatencyValid = pearson(tokenCounts, meanLatencies)
	if stats.PositionProblems > 0 {
		stats.PositionVsLatency = positionSum / float64(stats.PositionProblems)
		stats.PositionVsLatencyValid = true
	}
	return stats
}

// passAtKReport estimates pass@k per problem from its iterations and averages
// across problems. A k is reported only when at least one problem ran k or
// more iterations.
func passAtKReport(session *models.Session) map[int]float64 {
	type tally struct{ n, c int }
	byProblem := make(map[int]*tally)
	// first-seen order keeps repeated analyses summing identically
	var order []int
	for i := range session.Problems {
		r := &session.Problems[i]
		t := byProblem[r.ProblemID]
		if t == nil {
			t = &tally{}
			byProblem[r.ProblemID] = t
			order = append(order, r.ProblemID)
		}
		t.n++
		if r.Success {
			t.c++
		}
	}
	if len(byProblem) == 0 {
		return nil
	}

	report := make(map[int]float64)
	for _, k := range passAtKValues {
		var sum float64
		var contributing int
		for _, id := range order {
			t := byProblem[id]
			if t.n < k {
				continue
			}
			sum += passAtK(t.n, t.c, k)
			contributing++
		}
		if contributing > 0 {
			report[k] = sum / float64(contributing)
		}
	}
	return report
}
