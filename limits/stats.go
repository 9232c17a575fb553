package limits

import (
	"math"
	"sort"
)

// Distribution summarizes a set of implied ceilings.
type Distribution struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stdDev"`
}

// Analyze computes the distribution of values.
func Analyze(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := sortedCopy(values)
	return Distribution{
		Count:  len(values),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   Mean(values),
		Median: Percentile(values, 50),
		StdDev: StdDev(values),
	}
}

// Percentile returns the p-th percentile using linear interpolation between
// closest ranks. The 50th percentile of an even-sized set is the midpoint of
// the two middle values.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := sortedCopy(values)

	index := (p / 100) * float64(len(sorted)-1)
	lower := math.Floor(index)
	upper := math.Ceil(index)
	if lower == upper {
		return sorted[int(index)]
	}
	return sorted[int(lower)]*(upper-index) + sorted[int(upper)]*(index-lower)
}

// Median is Percentile(values, 50).
func Median(values []float64) float64 {
	return Percentile(values, 50)
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev is the sample standard deviation.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	sumSquares := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}

func sortedCopy(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted
}
