// Package confidence implements CostPilot's confidence-penalty math.
//
// Grounded on the teacher's pkg/confidence/math.go clamp/constant idiom,
// but the aggregation itself is rewritten: the spec resolves the
// stale-heuristic confidence-penalty Open Question in favor of a
// multiplicative combination of independently named factors, not the
// teacher's geometric mean over a flat score list.
package confidence

// Confidence tiers, kept from the teacher's naming for continuity with
// its reporting conventions.
const (
	HighConfidence   = 0.95
	MediumConfidence = 0.80
	LowConfidence    = 0.60
	MinConfidence    = 0.50

	// Floor enforced by spec §4.4: confidence is clamped to [0.01, 1.0],
	// never to zero, so a fully-discounted prediction is still reported.
	Floor = 0.01
	Ceil  = 1.0
)

// Factor is a single named uncertainty penalty applied to a prediction's
// base confidence, e.g. "cold_start" or "heuristic_stale" (spec §4.4).
type Factor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"` // multiplicative, in (0, 1]
}

// Well-known factor names from spec §4.4.
const (
	FactorColdStart          = "cold_start"
	FactorRegionNotSupported = "region_not_supported"
	FactorHeuristicStale     = "heuristic_stale"
	FactorUnresolvedProps    = "unresolved_properties"
	FactorReplacementAction  = "replacement_action"
)

// Well-known factor weights. These are the multiplicative discounts
// applied when the corresponding condition fires; each is independent
// and composes with the others by multiplication (never additively).
const (
	WeightColdStart          = 0.65
	WeightRegionNotSupported = 0.85
	WeightHeuristicStale     = 0.80
	WeightUnresolvedProps    = 0.75
	WeightReplacementAction  = 0.90
)

// Aggregate combines a base confidence with a set of named penalty
// factors: confidence = clamp(base * Π(factor.Weight), Floor, Ceil).
func Aggregate(base float64, factors []Factor) float64 {
	result := base
	for _, f := range factors {
		result *= f.Weight
	}
	return Clamp(result)
}

// Clamp restricts a confidence value to the valid range [Floor, Ceil].
func Clamp(score float64) float64 {
	if score < Floor {
		return Floor
	}
	if score > Ceil {
		return Ceil
	}
	return score
}

// AboveThreshold reports whether a confidence score meets a minimum bar.
func AboveThreshold(score, threshold float64) bool {
	return score >= threshold
}
