package services

import (
	"math"
	"slices"

	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

// iqrFenceMultiplier widens the interquartile range into outlier fences.
const iqrFenceMultiplier = 1.5

func sortedCopy(values []float64) []float64 {
	out := slices.Clone(values)
	slices.Sort(out)
	return out
}

// quantile returns the q-th quantile of sorted values using linear
// interpolation between the closest ranks. NaN when sorted is empty.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	pos := float64(n-1) * q
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdDev is the standard deviation with n-1 degrees of freedom.
// NaN for fewer than two values.
func sampleStdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return math.NaN()
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// histogram buckets values into bins equal-width intervals between their
// min and max. Every bin is half-open except the last, which includes the
// max. A zero-width range is widened to [v-0.5, v+0.5].
func histogram(values []float64, bins int) *models.Histogram {
	if len(values) == 0 || bins <= 0 {
		return nil
	}

	lo, hi := slices.Min(values), slices.Max(values)
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}

	edges := make([]float64, bins+1)
	width := (hi - lo) / float64(bins)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	edges[bins] = hi

	counts := make([]int, bins)
	for _, v := range values {
		idx := int((v - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		// Guard against float rounding putting v on the wrong side of an edge.
		for idx > 0 && v < edges[idx] {
			idx--
		}
		for idx < bins-1 && v >= edges[idx+1] {
			idx++
		}
		counts[idx]++
	}

	return &models.Histogram{Counts: counts, Bins: edges}
}

// iqrFences are the bounds outside of which a value is an outlier.
type iqrFences struct {
	Lower, Upper float64
}

func newIQRFences(values []float64) (iqrFences, bool) {
	if len(values) == 0 {
		return iqrFences{}, false
	}
	sorted := sortedCopy(values)
	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1
	return iqrFences{
		Lower: q1 - iqrFenceMultiplier*iqr,
		Upper: q3 + iqrFenceMultiplier*iqr,
	}, true
}

func (f iqrFences) isOutlier(v float64) bool {
	return v < f.Lower || v > f.Upper
}

// countOutliers counts values outside the IQR fences of the series itself.
func countOutliers(values []float64) int {
	fences, ok := newIQRFences(values)
	if !ok {
		return 0
	}
	n := 0
	for _, v := range values {
		if fences.isOutlier(v) {
			n++
		}
	}
	return n
}
