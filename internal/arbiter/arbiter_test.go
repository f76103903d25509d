package arbiter_test

import (
	"testing"

	"github.com/costpilot/costpilot/internal/arbiter"
	"github.com/costpilot/costpilot/internal/classify"
	"github.com/costpilot/costpilot/internal/explain"
	"github.com/costpilot/costpilot/internal/policy"
	"github.com/costpilot/costpilot/internal/slo"
)

func TestArbitrateHardStopCauseWins(t *testing.T) {
	d := arbiter.Arbitrate(arbiter.CauseCyclicGraph, nil, policy.Result{}, slo.Result{})
	if d.Outcome != arbiter.OutcomeHardStop {
		t.Errorf("Outcome = %v, want hard_stop", d.Outcome)
	}
	if d.Reason != string(arbiter.CauseCyclicGraph) {
		t.Errorf("Reason = %q, want %q", d.Reason, arbiter.CauseCyclicGraph)
	}
}

func TestArbitrateStrictBlockSLOOutranksPolicyBlock(t *testing.T) {
	policyResult := policy.Result{Violations: []policy.Violation{
		{PolicyID: "p1", Severity: policy.SeverityCritical, Action: policy.ActionBlock},
	}}
	sloResult := slo.Result{Violations: []slo.Violation{
		{SLOID: "s1", Enforcement: slo.EnforceStrictBlock},
	}}

	d := arbiter.Arbitrate(arbiter.CauseNone, nil, policyResult, sloResult)
	if d.Outcome != arbiter.OutcomeHardStop {
		t.Errorf("Outcome = %v, want hard_stop (strict_block always outranks Block)", d.Outcome)
	}
}

func TestArbitratePolicyBlockOutranksWarn(t *testing.T) {
	policyResult := policy.Result{Violations: []policy.Violation{
		{PolicyID: "warn-1", Severity: policy.SeverityLow, Action: policy.ActionWarn},
		{PolicyID: "block-1", Severity: policy.SeverityCritical, Action: policy.ActionBlock},
	}}

	d := arbiter.Arbitrate(arbiter.CauseNone, nil, policyResult, slo.Result{})
	if d.Outcome != arbiter.OutcomeBlock {
		t.Errorf("Outcome = %v, want block", d.Outcome)
	}
}

func TestArbitrateExemptedViolationNeverContributes(t *testing.T) {
	policyResult := policy.Result{Violations: []policy.Violation{
		{PolicyID: "p1", Severity: policy.SeverityCritical, Action: policy.ActionBlock, Exempted: true},
	}}

	d := arbiter.Arbitrate(arbiter.CauseNone, nil, policyResult, slo.Result{})
	if d.Outcome != arbiter.OutcomeSilent {
		t.Errorf("Outcome = %v, want silent: an exempted violation must never block", d.Outcome)
	}
}

func TestArbitrateAntiPatternFallsBackToSuggestFix(t *testing.T) {
	findings := []arbiter.Finding{{
		ResourceID:   "r1",
		AntiPatterns: []explain.AntiPattern{{ID: "nat_gateway_overuse"}},
	}}

	d := arbiter.Arbitrate(arbiter.CauseNone, findings, policy.Result{}, slo.Result{})
	if d.Outcome != arbiter.OutcomeSuggestFix {
		t.Errorf("Outcome = %v, want suggest_fix", d.Outcome)
	}
}

func TestArbitrateNoSignalsIsSilentAndReportsAllFindings(t *testing.T) {
	findings := []arbiter.Finding{
		{ResourceID: "r1", RegressionType: classify.RegressionNone, Severity: classify.SeverityInfo},
		{ResourceID: "r2", RegressionType: classify.RegressionNone, Severity: classify.SeverityInfo},
	}

	d := arbiter.Arbitrate(arbiter.CauseNone, findings, policy.Result{}, slo.Result{})
	if d.Outcome != arbiter.OutcomeSilent {
		t.Errorf("Outcome = %v, want silent", d.Outcome)
	}
	if len(d.Findings) != 2 {
		t.Errorf("len(Findings) = %d, want 2 (every finding should still be attached when Silent)", len(d.Findings))
	}
}

func TestArbitrateSLOObserveNeverInfluencesOutcome(t *testing.T) {
	sloResult := slo.Result{Violations: []slo.Violation{
		{SLOID: "s1", Enforcement: slo.EnforceObserve},
	}}
	d := arbiter.Arbitrate(arbiter.CauseNone, nil, policy.Result{}, sloResult)
	if d.Outcome != arbiter.OutcomeSilent {
		t.Errorf("Outcome = %v, want silent: an Observe-enforcement SLO must never raise the outcome", d.Outcome)
	}
}
