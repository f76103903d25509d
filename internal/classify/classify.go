// Package classify implements the Classifier (spec §4.5): it maps an
// old/new prediction pair plus a change action to a RegressionType and
// Severity.
//
// Grounded on decision/billing/engine.go's VarianceProfile comparison
// idiom (old vs. new usage-adjusted cost), generalized to the spec's
// closed regression/severity enums and fixed delta-magnitude table.
package classify

import (
	"github.com/shopspring/decimal"

	"github.com/costpilot/costpilot/internal/artifact"
)

// RegressionType classifies the kind of change a finding represents.
type RegressionType string

const (
	RegressionNewResource        RegressionType = "new_resource"
	RegressionDeletedResource    RegressionType = "deleted_resource"
	RegressionConfigurationChange RegressionType = "configuration_change"
	RegressionCostIncrease       RegressionType = "cost_increase"
	RegressionCostDecrease       RegressionType = "cost_decrease"
	RegressionModifiedResource   RegressionType = "modified_resource"
	RegressionNone               RegressionType = "none"
)

// Severity is the magnitude bucket of a regression (spec §3).
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// tieBreakTolerance is the spec §4.5 "within 0.5% of old.p50" boundary
// for Update/Replace actions with no meaningful cost movement.
const tieBreakTolerance = 0.005

// epsilon guards the delta-percentage denominator against division by
// (near) zero when old.p50 is zero.
const epsilon = 0.01

// Classify determines the (RegressionType, Severity) pair for a change.
// oldPred is nil for newly created resources. propertiesDiffer is only
// consulted for NoOp actions (spec §4.5: "NoOp → ConfigurationChange (if
// properties differ) or no finding").
func Classify(action artifact.ChangeAction, oldPred, newPred *decimal.Decimal, propertiesDiffer bool) (RegressionType, Severity) {
	switch action {
	case artifact.ActionCreate:
		return RegressionNewResource, severityFromAbsolute(newPred)
	case artifact.ActionDelete:
		return RegressionDeletedResource, severityFromAbsolute(oldPred)
	case artifact.ActionNoOp:
		if propertiesDiffer {
			return RegressionConfigurationChange, SeverityInfo
		}
		return RegressionNone, SeverityInfo
	case artifact.ActionUpdate, artifact.ActionReplace:
		if oldPred == nil {
			// No prior-state baseline was supplied (e.g. the caller has no
			// snapshot for this resource yet); fall back to reporting the
			// change by absolute magnitude rather than a delta.
			return RegressionModifiedResource, severityFromAbsolute(newPred)
		}
		return classifyDelta(oldPred, newPred)
	default:
		return RegressionNone, SeverityInfo
	}
}

func classifyDelta(oldPred, newPred *decimal.Decimal) (RegressionType, Severity) {
	oldF, _ := oldPred.Float64()
	newF, _ := newPred.Float64()

	denom := oldF
	if denom < epsilon {
		denom = epsilon
	}
	delta := (newF - oldF) / denom

	var regType RegressionType
	switch {
	case abs(delta) <= tieBreakTolerance:
		regType = RegressionModifiedResource
	case delta > 0:
		regType = RegressionCostIncrease
	default:
		regType = RegressionCostDecrease
	}

	return regType, severityFromDelta(delta)
}

// severityFromDelta applies spec §4.5's fixed magnitude table. Ties
// round toward the lower severity (strict > at each boundary).
func severityFromDelta(delta float64) Severity {
	mag := abs(delta) * 100
	switch {
	case mag < 5:
		return SeverityInfo
	case mag <= 20:
		return SeverityLow
	case mag <= 50:
		return SeverityMedium
	case mag <= 100:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// severityFromAbsolute applies spec §4.5's absolute-p50 tier table used
// for resources with no baseline (new or deleted).
func severityFromAbsolute(p50 *decimal.Decimal) Severity {
	if p50 == nil {
		return SeverityInfo
	}
	v, _ := p50.Float64()
	switch {
	case v < 10:
		return SeverityInfo
	case v < 100:
		return SeverityLow
	case v < 500:
		return SeverityMedium
	case v < 2000:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
