// Package policy implements the Policy Evaluator (spec §4.7): a
// declarative condition tree plus built-in checks, evaluated against a
// NormalizedPlan and its Predictions, with expiry-bound exemptions.
//
// Grounded on decision/policy/engine.go's Pass/Warn/Deny escalation
// (Evaluate folds Violations/Warnings into a single Decision, exactly
// the shape this package's Result.Escalate keeps) and its default policy
// table (confidence threshold, incomplete-estimate-in-prod). The
// evaluatePolicy switch's built-in PolicyType cases are kept as the seed
// for the Condition tree's built-in checks; evaluateOPA's remote HTTP
// endpoint is dropped entirely — see DESIGN.md — and replaced by
// internal/policy/rego.go's local-file-only OPA integration.
package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/costpilot/costpilot/internal/normalize"
	"github.com/costpilot/costpilot/internal/predict"
)

// Category is the governance area a policy belongs to (spec §3).
type Category string

const (
	CategoryBudget     Category = "budget"
	CategoryResource   Category = "resource"
	CategorySecurity   Category = "security"
	CategoryGovernance Category = "governance"
	CategorySLO        Category = "slo"
)

// Status is a policy's lifecycle state (spec §3).
type Status string

const (
	StatusDraft      Status = "draft"
	StatusActive     Status = "active"
	StatusDisabled   Status = "disabled"
	StatusDeprecated Status = "deprecated"
	StatusArchived   Status = "archived"
)

// Action is what enforcing a policy does when it fires (spec §3).
type Action string

const (
	ActionWarn            Action = "warn"
	ActionBlock           Action = "block"
	ActionRequireApproval Action = "require_approval"
)

// Severity mirrors classify.Severity's vocabulary plus the policy-only
// "error" tier used for blocking (spec §4.7: "severity Critical or Error").
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Condition is a node in the declarative evaluation tree (spec §4.7).
// Exactly one of the leaf fields is populated for a leaf kind; And/Or/Not
// hold sub-conditions for the logical combinators.
type Condition struct {
	Kind string // "type_is", "property_equals", "property_contains", "property_glob", "cost_gt", "aggregate_gt", "resource_count_gt", "and", "or", "not"

	ResourceType string
	PropertyKey  string
	PropertyVal  string

	CostField string // "p50", "p90", "p99"
	Threshold float64

	AggregateScope string // "total", "per_module", "per_service"

	Sub []Condition
}

// Policy is a declarative governance rule (spec §3).
type Policy struct {
	ID        string
	Name      string
	Category  Category
	Severity  Severity
	Status    Status
	Condition Condition
	Action    Action

	// Metrics are updated per run but never persisted by the core (spec §3).
	EvaluationCount int
	ViolationCount  int
}

// Exemption suppresses a specific (policy_id, resource) match until it
// expires (spec §3).
type Exemption struct {
	ID              string
	PolicyID        string
	ResourcePattern string // exact id, or wildcard "a.b.*"
	Justification   string
	ExpiresAt       time.Time
	ApprovedBy      string
	CreatedAt       time.Time

	matchCount int
}

// Violation is one policy firing against one resource (or an aggregate).
type Violation struct {
	PolicyID   string
	PolicyName string
	Severity   Severity
	Action     Action
	ResourceID string // empty for aggregate/global violations
	Message    string
	Exempted   bool
}

// Result is the Policy Evaluator's output (spec §4.7).
type Result struct {
	Violations       []Violation
	ExemptionMatches map[string]int // exemption id -> match count this run
}

// Evaluate runs every Active policy against the plan and predictions,
// applying exemptions. Deterministic: resources are iterated in the
// order the Normalizer already sorted them.
func Evaluate(plan *normalize.NormalizedPlan, preds map[string]predict.Prediction, policies []*Policy, exemptions []*Exemption, now time.Time) Result {
	result := Result{ExemptionMatches: map[string]int{}}

	for _, p := range policies {
		if p.Status != StatusActive {
			continue
		}
		p.EvaluationCount++

		for _, r := range plan.Resources {
			pred := preds[r.ID]
			if !eval(p.Condition, r, pred, plan, preds) {
				continue
			}
			p.ViolationCount++

			v := Violation{
				PolicyID:   p.ID,
				PolicyName: p.Name,
				Severity:   p.Severity,
				Action:     p.Action,
				ResourceID: r.ID,
				Message:    fmt.Sprintf("policy %q violated by resource %s", p.Name, r.ID),
			}
			if ex := matchExemption(p.ID, r.ID, exemptions, now); ex != nil {
				v.Exempted = true
				ex.matchCount++
				result.ExemptionMatches[ex.ID] = ex.matchCount
			}
			result.Violations = append(result.Violations, v)
		}
	}

	return result
}

// eval walks the Condition tree for one resource. Aggregation conditions
// ("aggregate_gt", "resource_count_gt") ignore the per-resource cost/
// property fields and instead compare the total cost or resource count
// of r's own scope group (spec §4.7: "per-module budget",
// "resource-count caps per service"), as named by c.AggregateScope.
func eval(c Condition, r normalize.NormalizedResource, pred predict.Prediction, plan *normalize.NormalizedPlan, preds map[string]predict.Prediction) bool {
	switch c.Kind {
	case "and":
		for _, sub := range c.Sub {
			if !eval(sub, r, pred, plan, preds) {
				return false
			}
		}
		return true
	case "or":
		for _, sub := range c.Sub {
			if eval(sub, r, pred, plan, preds) {
				return true
			}
		}
		return false
	case "not":
		if len(c.Sub) != 1 {
			return false
		}
		return !eval(c.Sub[0], r, pred, plan, preds)
	case "type_is":
		return r.NormalizedType == c.ResourceType
	case "property_equals":
		return propertyString(r, c.PropertyKey) == c.PropertyVal
	case "property_contains":
		return strings.Contains(propertyString(r, c.PropertyKey), c.PropertyVal)
	case "property_glob":
		return matchGlob(c.PropertyVal, propertyString(r, c.PropertyKey))
	case "cost_gt":
		return costField(pred, c.CostField) > c.Threshold
	case "aggregate_gt":
		group := scopeKey(r, c.AggregateScope)
		total := aggregateCost(plan, preds, c.AggregateScope, group)
		t, _ := total.Float64()
		return t > c.Threshold
	case "resource_count_gt":
		group := scopeKey(r, c.AggregateScope)
		return float64(resourceCount(plan, c.AggregateScope, group)) > c.Threshold
	default:
		return false
	}
}

// scopeKey groups resource r under the given AggregateScope: "total" (or
// unset) puts every resource in one global group; "per_module" groups by
// the Terraform module-qualified address prefix of r.ID (e.g. "module.a"
// for "module.a.bucket", matching the module addressing already used by
// policy exemption patterns); "per_service" groups by the AWS service
// segment of r.NormalizedType (e.g. "ec2" for "aws_ec2_instance").
func scopeKey(r normalize.NormalizedResource, scope string) string {
	switch scope {
	case "per_module":
		return moduleOf(r.ID)
	case "per_service":
		return serviceOf(r.NormalizedType)
	default:
		return ""
	}
}

// moduleOf returns the "module.<name>" prefix of a Terraform-style
// resource address, or "" for a root-module resource (no "module." prefix).
func moduleOf(id string) string {
	if !strings.HasPrefix(id, "module.") {
		return ""
	}
	parts := strings.Split(id, ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// serviceOf extracts the AWS service name from a normalized type of the
// form "aws_<service>_<resource>" (e.g. "aws_ec2_instance" -> "ec2").
func serviceOf(normalizedType string) string {
	parts := strings.SplitN(normalizedType, "_", 3)
	if len(parts) < 2 || parts[0] != "aws" {
		return ""
	}
	return parts[1]
}

func propertyString(r normalize.NormalizedResource, key string) string {
	pv, ok := r.Properties[key]
	if !ok || pv.Scalar == nil {
		return ""
	}
	return fmt.Sprintf("%v", pv.Scalar)
}

func costField(pred predict.Prediction, field string) float64 {
	var d decimal.Decimal
	switch field {
	case "p10":
		d = pred.P10
	case "p90":
		d = pred.P90
	case "p99":
		d = pred.P99
	default:
		d = pred.P50
	}
	f, _ := d.Float64()
	return f
}

// aggregateCost sums the p50 of every resource sharing group under scope.
func aggregateCost(plan *normalize.NormalizedPlan, preds map[string]predict.Prediction, scope, group string) decimal.Decimal {
	total := decimal.Zero
	for _, r := range plan.Resources {
		if scopeKey(r, scope) != group {
			continue
		}
		total = total.Add(preds[r.ID].P50)
	}
	return total
}

// resourceCount counts resources sharing group under scope.
func resourceCount(plan *normalize.NormalizedPlan, scope, group string) int {
	n := 0
	for _, r := range plan.Resources {
		if scopeKey(r, scope) == group {
			n++
		}
	}
	return n
}

// matchGlob supports the single wildcard form the spec requires:
// "a.b.*" matches any string with prefix "a.b.".
func matchGlob(pattern, s string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(s, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == s
}

// matchExemption finds the first Active exemption matching (policyID,
// resourceID). An exemption is Active iff now is strictly before
// ExpiresAt (spec §3).
func matchExemption(policyID, resourceID string, exemptions []*Exemption, now time.Time) *Exemption {
	for _, ex := range exemptions {
		if ex.PolicyID != policyID {
			continue
		}
		if !now.Before(ex.ExpiresAt) {
			continue // expired, never matches
		}
		if matchGlob(ex.ResourcePattern, resourceID) {
			return ex
		}
	}
	return nil
}

// Blocks reports whether violation v should contribute to a Block
// decision at the arbiter (spec §4.7: "severity Critical or Error AND
// action in {block, require_approval}").
func (v Violation) Blocks() bool {
	if v.Exempted {
		return false
	}
	if v.Severity != SeverityCritical && v.Severity != SeverityError {
		return false
	}
	return v.Action == ActionBlock || v.Action == ActionRequireApproval
}
