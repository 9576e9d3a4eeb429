// Package numeric provides the statistics routines shared by the analyzers.
//
// Every function accepts an empty slice and never modifies its input.
package numeric

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// degenerateSpread is the x-spread below which a regression is treated as vertical.
const degenerateSpread = 1e-10

// Stats holds descriptive statistics of a sequence.
type Stats struct {
	Count    int
	Min      float64
	Max      float64
	Range    float64
	Sum      float64
	Mean     float64
	Median   float64
	Variance float64 // population variance
	StdDev   float64
}

// Basic computes descriptive statistics. An empty sequence yields the zero Stats.
func Basic(values []float64) Stats {
	n := len(values)
	if n == 0 {
		return Stats{}
	}

	s := Stats{
		Count: n,
		Min:   floats.Min(values),
		Max:   floats.Max(values),
		Sum:   floats.Sum(values),
	}
	s.Range = s.Max - s.Min
	s.Mean, s.Variance = popMeanVariance(values)
	s.StdDev = math.Sqrt(s.Variance)

	// Median sorts a private copy.
	s.Median, _ = stats.Median(stats.Float64Data(values))

	return s
}

// MeanStdDev returns the population mean and standard deviation, or (0, 0)
// for an empty sequence.
func MeanStdDev(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean, variance := popMeanVariance(values)
	return mean, math.Sqrt(variance)
}

func popMeanVariance(values []float64) (mean, variance float64) {
	if len(values) == 1 {
		return values[0], 0
	}
	mean, variance = stat.PopMeanVariance(values, nil)
	if variance < 0 {
		variance = 0
	}
	return mean, variance
}

// LinearRegression fits y = slope*x + intercept by ordinary least squares.
// Mismatched or empty inputs return (0, 0). When x has no spread the fit is
// (0, mean(y)).
func LinearRegression(x, y []float64) (slope, intercept float64) {
	n := len(x)
	if n == 0 || n != len(y) {
		return 0, 0
	}

	sumX := floats.Sum(x)
	sumX2 := floats.Dot(x, x)
	if math.Abs(sumX2-sumX*sumX/float64(n)) < degenerateSpread {
		return 0, stat.Mean(y, nil)
	}

	intercept, slope = stat.LinearRegression(x, y, nil, false)
	return slope, intercept
}

// RSquared returns the coefficient of determination of the line against y.
// A constant y is explained perfectly by the horizontal fit, so it yields 1.
// Mismatched or empty inputs return 0.
func RSquared(x, y []float64, slope, intercept float64) float64 {
	n := len(y)
	if n == 0 || n != len(x) {
		return 0
	}
	if floats.Min(y) == floats.Max(y) {
		return 1
	}
	return stat.RSquared(x, y, nil, intercept, slope)
}

// MovingAverage returns the centered moving average of values. For index i it
// averages values[i-window/2 : i+window/2+1] clamped to the slice bounds, so
// windows shrink near the edges. window is capped at len(values).
func MovingAverage(values []float64, window int) []float64 {
	n := len(values)
	if n == 0 || window <= 0 {
		return []float64{}
	}
	if window > n {
		window = n
	}

	half := window / 2
	out := make([]float64, n)
	for i := range values {
		lo := max(0, i-half)
		hi := min(n-1, i+half)
		out[i] = floats.Sum(values[lo:hi+1]) / float64(hi-lo+1)
	}
	return out
}
