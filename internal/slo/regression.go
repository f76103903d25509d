// Package slo implements the SLO Evaluator (spec §4.8): ordinary
// least-squares burn-rate analysis over historical cost snapshots,
// combined with static and baseline-relative thresholds.
//
// New code (the teacher has no burn-rate or regression logic anywhere
// in the pack); grounded on the teacher's plain stdlib-math style
// elsewhere in decision/billing (VarianceProfile's arithmetic uses only
// float64 and math, never a stats library) — OLS over ≤1000 points is a
// closed-form two-pass sum, well within what stdlib math expresses
// idiomatically, so no third-party regression library is introduced
// (see DESIGN.md).
package slo

import "math"

// Point is one (x, y) observation for the regression: x is seconds since
// the first snapshot, y is the observed cost.
type Point struct {
	X float64
	Y float64
}

// Regression is the result of fitting y = Slope*x + Intercept by OLS.
type Regression struct {
	Slope     float64
	Intercept float64
	RSquared  float64
}

// Fit computes the OLS line through points. Requires at least 3 points
// (spec §4.8: "For each SLO with at least 3 historical snapshots").
func Fit(points []Point) Regression {
	n := float64(len(points))
	if n == 0 {
		return Regression{}
	}

	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
		sumXY += p.X * p.Y
		sumXX += p.X * p.X
	}

	meanX := sumX / n
	meanY := sumY / n

	denom := sumXX - n*meanX*meanX
	var slope float64
	if denom != 0 {
		slope = (sumXY - n*meanX*meanY) / denom
	}
	intercept := meanY - slope*meanX

	var ssTot, ssRes float64
	for _, p := range points {
		predicted := slope*p.X + intercept
		ssRes += (p.Y - predicted) * (p.Y - predicted)
		ssTot += (p.Y - meanY) * (p.Y - meanY)
	}

	rSquared := 1.0
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
	} else if ssRes > 0 {
		rSquared = 0
	}
	if math.IsNaN(rSquared) || math.IsInf(rSquared, 0) {
		rSquared = 0
	}

	return Regression{Slope: slope, Intercept: intercept, RSquared: rSquared}
}

// Predict evaluates the fitted line at x.
func (r Regression) Predict(x float64) float64 {
	return r.Slope*x + r.Intercept
}
