// Package arbiter implements the Decision Arbiter (spec §4.9): the
// single source of decision authority, combining findings, policy
// violations, and SLO status into exactly one outcome from the
// precedence lattice Silent < SuggestFix < Warn < Block < HardStop.
//
// Grounded on decision/policy/engine.go's Evaluate escalation algorithm
// (Decision starts at Pass, a SeverityError violation forces Deny, any
// other violation raises Pass to Warn, never the reverse) — generalized
// from the teacher's 3-level Pass/Warn/Deny lattice to the spec's
// 5-level lattice, adding the HardStop and SuggestFix tiers the teacher
// never modeled.
package arbiter

import (
	"github.com/shopspring/decimal"

	"github.com/costpilot/costpilot/internal/classify"
	"github.com/costpilot/costpilot/internal/explain"
	"github.com/costpilot/costpilot/internal/policy"
	"github.com/costpilot/costpilot/internal/slo"
)

// Outcome is one cell of the decision lattice (spec §3).
type Outcome string

const (
	OutcomeSilent     Outcome = "silent"
	OutcomeSuggestFix Outcome = "suggest_fix"
	OutcomeWarn       Outcome = "warn"
	OutcomeBlock      Outcome = "block"
	OutcomeHardStop   Outcome = "hard_stop"
)

// rank gives OutcomeX < OutcomeY a total order so the highest-precedence
// outcome observed so far can always be kept with a single max operation.
var rank = map[Outcome]int{
	OutcomeSilent:     0,
	OutcomeSuggestFix: 1,
	OutcomeWarn:       2,
	OutcomeBlock:      3,
	OutcomeHardStop:   4,
}

// Delta is a Finding's old-cost/new-cost/absolute/percentage movement
// (spec §3 Finding.delta). Percentage is 0 for new/deleted resources,
// where an old-vs-new ratio has no meaning.
type Delta struct {
	OldCost    decimal.Decimal
	NewCost    decimal.Decimal
	Absolute   decimal.Decimal
	Percentage float64
}

// Finding is the arbiter's view of one classified, explained resource
// change (spec §3).
type Finding struct {
	ResourceID     string
	RegressionType classify.RegressionType
	Severity       classify.Severity
	Confidence     float64
	AntiPatterns   []explain.AntiPattern
	Delta          Delta
}

// HardStopCause enumerates the spec §4.9 tier-1 triggers that are
// detected upstream (parse/validation errors, interval-invariant
// violations) and simply carried into the arbiter as a precomputed flag,
// since the arbiter itself never re-derives them.
type HardStopCause string

const (
	CauseNone              HardStopCause = ""
	CauseHeuristicsCorrupt HardStopCause = "heuristics_corrupt_or_missing"
	CauseCyclicGraph       HardStopCause = "cyclic_dependency_graph"
	CauseAmbiguousInput    HardStopCause = "ambiguous_or_invalid_input"
	CauseIntervalInverted  HardStopCause = "interval_invariant_violation"
)

// Decision is the arbiter's single output (spec §3).
type Decision struct {
	Outcome    Outcome
	Reason     string
	Findings   []string // contributing finding resource ids
	PolicyRefs []string // contributing policy violation policy ids
	SLORefs    []string // contributing slo violation ids
}

// NoiseThreshold is the spec §4.9 default "cost delta below noise
// threshold" used by the Silent tier's predicate.
const NoiseThreshold = 0.05

// ReportingConfidenceThreshold is the spec §4.9 default confidence floor
// below which a finding is treated as Silent regardless of its delta.
const ReportingConfidenceThreshold = 0.2

// Arbitrate combines findings, policy results, and SLO results into
// exactly one Decision (spec §4.9 invariant (i)).
func Arbitrate(hardStopCause HardStopCause, findings []Finding, policyResult policy.Result, sloResult slo.Result) Decision {
	if hardStopCause != CauseNone {
		return Decision{Outcome: OutcomeHardStop, Reason: string(hardStopCause)}
	}

	for _, v := range sloResult.Violations {
		if v.Enforcement == slo.EnforceStrictBlock {
			return Decision{
				Outcome: OutcomeHardStop,
				Reason:  "strict_block_slo_breach:" + v.SLOID,
				SLORefs: []string{v.SLOID},
			}
		}
	}

	best := Decision{Outcome: OutcomeSilent, Reason: "no_significant_change"}

	for _, v := range policyResult.Violations {
		if v.Blocks() {
			raise(&best, Decision{
				Outcome:    OutcomeBlock,
				Reason:     "policy_violation:" + v.PolicyID,
				PolicyRefs: []string{v.PolicyID},
			})
		} else if !v.Exempted {
			raise(&best, Decision{
				Outcome:    OutcomeWarn,
				Reason:     "policy_violation:" + v.PolicyID,
				PolicyRefs: []string{v.PolicyID},
			})
		}
	}

	for _, v := range sloResult.Violations {
		switch v.Enforcement {
		case slo.EnforceBlock:
			raise(&best, Decision{Outcome: OutcomeBlock, Reason: "slo_block:" + v.SLOID, SLORefs: []string{v.SLOID}})
		case slo.EnforceWarn:
			raise(&best, Decision{Outcome: OutcomeWarn, Reason: "slo_warn:" + v.SLOID, SLORefs: []string{v.SLOID}})
		case slo.EnforceObserve:
			// never influences the arbiter (spec §4.9)
		}
	}

	if best.Outcome == OutcomeSilent || best.Outcome == OutcomeSuggestFix {
		suggestable := false
		for _, f := range findings {
			if len(f.AntiPatterns) > 0 {
				suggestable = true
				raise(&best, Decision{
					Outcome:  OutcomeSuggestFix,
					Reason:   "anti_pattern:" + f.AntiPatterns[0].ID,
					Findings: []string{f.ResourceID},
				})
			}
		}
		_ = suggestable
	}

	if best.Outcome == OutcomeSilent {
		best.Findings = collectFindingIDs(findings)
	}

	return best
}

// raise keeps candidate only if it outranks *best, merging contributing
// references when candidate wins outright and accumulating refs when it
// ties the current rank (so a HardStop or Block can cite every
// contributing rule, not just the first one observed).
func raise(best *Decision, candidate Decision) {
	switch {
	case rank[candidate.Outcome] > rank[best.Outcome]:
		*best = candidate
	case rank[candidate.Outcome] == rank[best.Outcome] && candidate.Outcome != OutcomeSilent:
		best.PolicyRefs = append(best.PolicyRefs, candidate.PolicyRefs...)
		best.SLORefs = append(best.SLORefs, candidate.SLORefs...)
		best.Findings = append(best.Findings, candidate.Findings...)
	}
}

func collectFindingIDs(findings []Finding) []string {
	ids := make([]string, 0, len(findings))
	for _, f := range findings {
		ids = append(ids, f.ResourceID)
	}
	return ids
}
