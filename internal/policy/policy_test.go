package policy_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/costpilot/costpilot/internal/normalize"
	"github.com/costpilot/costpilot/internal/policy"
	"github.com/costpilot/costpilot/internal/predict"
)

func plan(resources ...normalize.NormalizedResource) *normalize.NormalizedPlan {
	return &normalize.NormalizedPlan{Resources: resources}
}

func TestEvaluateCostGtFires(t *testing.T) {
	p := plan(normalize.NormalizedResource{ID: "r1", NormalizedType: "aws_ec2_instance"})
	preds := map[string]predict.Prediction{"r1": {P50: decimal.NewFromFloat(500)}}
	policies := []*policy.Policy{{
		ID:        "budget-cap",
		Status:    policy.StatusActive,
		Severity:  policy.SeverityCritical,
		Action:    policy.ActionBlock,
		Condition: policy.Condition{Kind: "cost_gt", CostField: "p50", Threshold: 100},
	}}

	result := policy.Evaluate(p, preds, policies, nil, time.Now())
	if len(result.Violations) != 1 {
		t.Fatalf("len(Violations) = %d, want 1", len(result.Violations))
	}
	if !result.Violations[0].Blocks() {
		t.Error("a Critical-severity block-action violation should Blocks()")
	}
}

func TestEvaluateDisabledPolicySkipped(t *testing.T) {
	p := plan(normalize.NormalizedResource{ID: "r1", NormalizedType: "aws_ec2_instance"})
	preds := map[string]predict.Prediction{"r1": {P50: decimal.NewFromFloat(99999)}}
	policies := []*policy.Policy{{
		ID:        "disabled-1",
		Status:    policy.StatusDisabled,
		Condition: policy.Condition{Kind: "cost_gt", CostField: "p50", Threshold: 1},
	}}

	result := policy.Evaluate(p, preds, policies, nil, time.Now())
	if len(result.Violations) != 0 {
		t.Errorf("len(Violations) = %d, want 0 for a disabled policy", len(result.Violations))
	}
}

func TestEvaluateTypeIsAndCondition(t *testing.T) {
	p := plan(
		normalize.NormalizedResource{ID: "bucket1", NormalizedType: "aws_s3_bucket"},
		normalize.NormalizedResource{ID: "inst1", NormalizedType: "aws_ec2_instance"},
	)
	preds := map[string]predict.Prediction{
		"bucket1": {P50: decimal.Zero},
		"inst1":   {P50: decimal.Zero},
	}
	policies := []*policy.Policy{{
		ID:        "buckets-only",
		Status:    policy.StatusActive,
		Condition: policy.Condition{Kind: "type_is", ResourceType: "aws_s3_bucket"},
	}}

	result := policy.Evaluate(p, preds, policies, nil, time.Now())
	if len(result.Violations) != 1 || result.Violations[0].ResourceID != "bucket1" {
		t.Errorf("Violations = %+v, want exactly one violation on bucket1", result.Violations)
	}
}

func TestEvaluateActiveExemptionSuppressesViolation(t *testing.T) {
	p := plan(normalize.NormalizedResource{ID: "r1", NormalizedType: "aws_ec2_instance"})
	preds := map[string]predict.Prediction{"r1": {P50: decimal.NewFromFloat(500)}}
	policies := []*policy.Policy{{
		ID:        "p1",
		Status:    policy.StatusActive,
		Severity:  policy.SeverityCritical,
		Action:    policy.ActionBlock,
		Condition: policy.Condition{Kind: "cost_gt", CostField: "p50", Threshold: 100},
	}}
	exemptions := []*policy.Exemption{{
		ID: "ex1", PolicyID: "p1", ResourcePattern: "r1", ExpiresAt: time.Now().Add(24 * time.Hour),
	}}

	result := policy.Evaluate(p, preds, policies, exemptions, time.Now())
	if len(result.Violations) != 1 {
		t.Fatalf("len(Violations) = %d, want 1", len(result.Violations))
	}
	if !result.Violations[0].Exempted {
		t.Error("Exempted = false, want true for a still-valid exemption")
	}
	if result.Violations[0].Blocks() {
		t.Error("an exempted violation must never Blocks()")
	}
}

func TestEvaluateExpiredExemptionNeverSuppresses(t *testing.T) {
	p := plan(normalize.NormalizedResource{ID: "r1", NormalizedType: "aws_ec2_instance"})
	preds := map[string]predict.Prediction{"r1": {P50: decimal.NewFromFloat(500)}}
	policies := []*policy.Policy{{
		ID:        "p1",
		Status:    policy.StatusActive,
		Severity:  policy.SeverityCritical,
		Action:    policy.ActionBlock,
		Condition: policy.Condition{Kind: "cost_gt", CostField: "p50", Threshold: 100},
	}}
	exemptions := []*policy.Exemption{{
		ID: "ex1", PolicyID: "p1", ResourcePattern: "r1", ExpiresAt: time.Now().Add(-24 * time.Hour),
	}}

	result := policy.Evaluate(p, preds, policies, exemptions, time.Now())
	if result.Violations[0].Exempted {
		t.Error("Exempted = true, want false: an expired exemption must never suppress a violation")
	}
	if !result.Violations[0].Blocks() {
		t.Error("with the exemption expired, the violation should Blocks() again")
	}
}

func TestEvaluateWildcardExemption(t *testing.T) {
	p := plan(normalize.NormalizedResource{ID: "module.a.bucket", NormalizedType: "aws_s3_bucket"})
	preds := map[string]predict.Prediction{"module.a.bucket": {P50: decimal.Zero}}
	policies := []*policy.Policy{{
		ID:        "p1",
		Status:    policy.StatusActive,
		Condition: policy.Condition{Kind: "type_is", ResourceType: "aws_s3_bucket"},
	}}
	exemptions := []*policy.Exemption{{
		ID: "ex1", PolicyID: "p1", ResourcePattern: "module.a.*", ExpiresAt: time.Now().Add(time.Hour),
	}}

	result := policy.Evaluate(p, preds, policies, exemptions, time.Now())
	if !result.Violations[0].Exempted {
		t.Error("wildcard exemption pattern 'module.a.*' should match 'module.a.bucket'")
	}
}

func TestEvaluateAggregateGtScopesPerModule(t *testing.T) {
	p := plan(
		normalize.NormalizedResource{ID: "module.a.bucket1", NormalizedType: "aws_s3_bucket"},
		normalize.NormalizedResource{ID: "module.a.bucket2", NormalizedType: "aws_s3_bucket"},
		normalize.NormalizedResource{ID: "module.b.bucket1", NormalizedType: "aws_s3_bucket"},
	)
	preds := map[string]predict.Prediction{
		"module.a.bucket1": {P50: decimal.NewFromFloat(600)},
		"module.a.bucket2": {P50: decimal.NewFromFloat(600)},
		"module.b.bucket1": {P50: decimal.NewFromFloat(10)},
	}
	policies := []*policy.Policy{{
		ID:        "per-module-budget",
		Status:    policy.StatusActive,
		Severity:  policy.SeverityCritical,
		Action:    policy.ActionBlock,
		Condition: policy.Condition{Kind: "aggregate_gt", Threshold: 1000, AggregateScope: "per_module"},
	}}

	result := policy.Evaluate(p, preds, policies, nil, time.Now())
	var blocked []string
	for _, v := range result.Violations {
		blocked = append(blocked, v.ResourceID)
	}
	if len(blocked) != 2 || blocked[0][:8] != "module.a" {
		t.Errorf("Violations = %+v, want module.a's two resources over its $1000 group total, not module.b", blocked)
	}
}

func TestEvaluateResourceCountGtScopesPerService(t *testing.T) {
	p := plan(
		normalize.NormalizedResource{ID: "i1", NormalizedType: "aws_ec2_instance"},
		normalize.NormalizedResource{ID: "i2", NormalizedType: "aws_ec2_instance"},
		normalize.NormalizedResource{ID: "i3", NormalizedType: "aws_ec2_instance"},
		normalize.NormalizedResource{ID: "b1", NormalizedType: "aws_s3_bucket"},
	)
	preds := map[string]predict.Prediction{
		"i1": {}, "i2": {}, "i3": {}, "b1": {},
	}
	policies := []*policy.Policy{{
		ID:        "ec2-count-cap",
		Status:    policy.StatusActive,
		Condition: policy.Condition{Kind: "resource_count_gt", Threshold: 2, AggregateScope: "per_service"},
	}}

	result := policy.Evaluate(p, preds, policies, nil, time.Now())
	if len(result.Violations) != 3 {
		t.Fatalf("Violations = %+v, want 3 (the ec2 service group of 3 exceeds the cap of 2, the lone bucket does not)", result.Violations)
	}
	for _, v := range result.Violations {
		if v.ResourceID == "b1" {
			t.Error("the s3 service group (1 resource) should never violate a resource-count cap of 2")
		}
	}
}

func TestBlocksRequiresCriticalOrErrorSeverity(t *testing.T) {
	v := policy.Violation{Severity: policy.SeverityLow, Action: policy.ActionBlock}
	if v.Blocks() {
		t.Error("a Low-severity violation should never Blocks(), regardless of action")
	}
}
