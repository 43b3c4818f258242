// Package stats implements the regression and signal primitives the
// screener and trader are built on: ordinary least squares, the
// mean-reversion half-life of a spread, rolling z-scores, and an
// Engle-Granger cointegration test.
package stats

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrShortSeries indicates the series has too few points to fit.
	ErrShortSeries = errors.New("series too short")
	// ErrDegenerate indicates the AR(1) slope of the spread differences is
	// below machine epsilon, so no half-life can be derived.
	ErrDegenerate = errors.New("half-life undefined: slope too close to zero")
)

// OLS fits y = slope*x + intercept by ordinary least squares.
func OLS(y, x []float64) (slope, intercept float64, err error) {
	if len(y) != len(x) || len(y) < 2 {
		return 0, 0, ErrShortSeries
	}
	intercept, slope = stat.LinearRegression(x, y, nil, false)
	return slope, intercept, nil
}

// Spread returns the residual series y - hedgeRatio*x - intercept.
func Spread(y, x []float64, hedgeRatio, intercept float64) []float64 {
	n := len(y)
	if len(x) < n {
		n = len(x)
	}
	spread := make([]float64, n)
	for i := 0; i < n; i++ {
		spread[i] = y[i] - hedgeRatio*x[i] - intercept
	}
	return spread
}

// HalfLife estimates the mean-reversion half-life of a spread from an
// AR(1) fit: the first difference of the spread is regressed on the lagged
// spread, and the half-life is -ln(2)/slope. It fails with ErrShortSeries
// for series of one point or fewer and with ErrDegenerate when the fitted
// slope's magnitude is below machine epsilon.
func HalfLife(spread []float64) (float64, error) {
	if len(spread) <= 1 {
		return 0, ErrShortSeries
	}
	diff := make([]float64, len(spread)-1)
	for i := range diff {
		diff[i] = spread[i+1] - spread[i]
	}
	lagged := spread[:len(spread)-1]
	_, slope := stat.LinearRegression(lagged, diff, nil, false)
	if math.Abs(slope) < machineEpsilon {
		return 0, ErrDegenerate
	}
	return -math.Ln2 / slope, nil
}

const machineEpsilon = 2.220446049250313e-16

// ZScore computes the rolling standardized spread over a trailing window.
// The returned slice is aligned one-to-one with the input; the first
// window-1 entries are NaN (insufficient history). The rolling standard
// deviation is the sample standard deviation, and the function is pure:
// identical inputs always produce identical outputs.
func ZScore(spread []float64, window int) []float64 {
	z := make([]float64, len(spread))
	for i := range z {
		if i < window-1 {
			z[i] = math.NaN()
			continue
		}
		win := spread[i-window+1 : i+1]
		mean := stat.Mean(win, nil)
		sd := stat.StdDev(win, nil)
		if sd == 0 {
			z[i] = math.NaN()
			continue
		}
		z[i] = (spread[i] - mean) / sd
	}
	return z
}

// LastDefined returns the index of the last non-NaN value in z, or -1.
func LastDefined(z []float64) int {
	for i := len(z) - 1; i >= 0; i-- {
		if !math.IsNaN(z[i]) {
			return i
		}
	}
	return -1
}
