package slo

import (
	"math"
	"time"
)

// Type is the kind of budget an SLO tracks (spec §3).
type Type string

const (
	TypeMonthlyBudget  Type = "monthly_budget"
	TypeModuleBudget   Type = "module_budget"
	TypeServiceBudget  Type = "service_budget"
	TypeResourceCount  Type = "resource_count"
	TypeCostGrowthRate Type = "cost_growth_rate"
)

// Enforcement is how strongly an SLO breach is allowed to influence the
// arbiter (spec §4.8).
type Enforcement string

const (
	EnforceObserve     Enforcement = "observe"
	EnforceWarn        Enforcement = "warn"
	EnforceBlock       Enforcement = "block"
	EnforceStrictBlock Enforcement = "strict_block"
)

// Risk is the burn-rate classification (spec §4.8).
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// Threshold is an SLO's limit, optionally relative to a baseline
// (spec §3).
type Threshold struct {
	MaxValue          float64
	WarningPercent    float64 // 0 means unset
	UseBaseline       bool
	BaselineMultiplier float64
}

// SLO is one budget/growth-rate objective (spec §3).
type SLO struct {
	ID          string
	Type        Type
	TargetScope string // e.g. a module or service selector
	Threshold   Threshold
	Enforcement Enforcement
}

// Snapshot is one historical cost observation (spec §3).
type Snapshot struct {
	Timestamp time.Time
	Scope     string
	Cost      float64
}

// Violation is one SLO found to be breached or at risk.
type Violation struct {
	SLOID       string
	Enforcement Enforcement
	Risk        Risk
	DaysToBreach float64 // NaN if not computable (no positive slope)
	Current     float64
	Threshold   float64
	LowConfidence bool // R² < 0.7
	Reason      string
}

// Result is the SLO Evaluator's output (spec §4.8).
type Result struct {
	Violations []Violation
}

// Evaluate runs burn-rate analysis for each SLO against its snapshot
// history and baseline table, per spec §4.8.
func Evaluate(sloList []SLO, history map[string][]Snapshot, baselines map[string]float64, now time.Time) Result {
	var result Result

	for _, s := range sloList {
		threshold := s.Threshold.MaxValue
		if s.Threshold.UseBaseline {
			if baseline, ok := baselines[s.TargetScope]; ok {
				threshold = baseline * s.Threshold.BaselineMultiplier
			}
		}

		snaps := history[s.TargetScope]
		if len(snaps) < 3 {
			continue // spec §4.8: regression requires at least 3 snapshots
		}

		points := make([]Point, len(snaps))
		first := snaps[0].Timestamp
		var current float64
		for i, snap := range snaps {
			points[i] = Point{X: snap.Timestamp.Sub(first).Hours() / 24, Y: snap.Cost}
			current = snap.Cost // last snapshot in chronological order
		}

		reg := Fit(points)
		lowConfidence := reg.RSquared < 0.7

		var daysToBreach float64
		risk := RiskLow
		breached := current >= threshold

		switch {
		case breached:
			daysToBreach = 0
			risk = RiskCritical
		case reg.Slope > 0:
			daysToBreach = (threshold - current) / reg.Slope
			risk = classifyRisk(daysToBreach)
		default:
			daysToBreach = math.Inf(1)
			risk = RiskLow
		}

		if s.Enforcement == EnforceObserve && risk == RiskLow {
			continue // nothing actionable to report for a pure-observe SLO at low risk
		}

		if risk == RiskLow && !breached {
			continue
		}

		result.Violations = append(result.Violations, Violation{
			SLOID:         s.ID,
			Enforcement:   s.Enforcement,
			Risk:          risk,
			DaysToBreach:  daysToBreach,
			Current:       current,
			Threshold:     threshold,
			LowConfidence: lowConfidence,
			Reason:        reasonFor(s, risk, breached),
		})
	}

	return result
}

// classifyRisk applies the spec §4.8 days-to-breach table.
func classifyRisk(days float64) Risk {
	switch {
	case days < 7:
		return RiskCritical
	case days <= 14:
		return RiskHigh
	case days <= 30:
		return RiskMedium
	default:
		return RiskLow
	}
}

func reasonFor(s SLO, risk Risk, breached bool) string {
	if breached {
		return "slo_already_breached:" + s.ID
	}
	return "slo_burn_rate_risk:" + string(risk) + ":" + s.ID
}
