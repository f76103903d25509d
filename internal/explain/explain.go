// Package explain implements the Explain Engine (spec §4.6): it builds a
// ReasoningChain of ordered, categorized steps for each finding, and
// checks a fixed anti-pattern catalog.
//
// Grounded on decision/billing/mappers/aws/resources.go's per-resource
// narrative descriptions (e.g. "EBS gp3 volume (100 GB)", "Idle Elastic
// IP address") — the Description/Tags fields on each BillingComponent
// are exactly the kind of human sentence a ReasoningChain step carries,
// generalized here into a structured, provenance-tagged step sequence.
package explain

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/costpilot/costpilot/internal/classify"
	"github.com/costpilot/costpilot/internal/normalize"
	"github.com/costpilot/costpilot/internal/predict"
)

// StepCategory is one of the five stages a reasoning step belongs to
// (spec §4.6).
type StepCategory string

const (
	StepInput      StepCategory = "input"
	StepLookup     StepCategory = "lookup"
	StepFormula    StepCategory = "formula"
	StepAdjustment StepCategory = "adjustment"
	StepOutput     StepCategory = "output"
)

// Step is one entry in a ReasoningChain.
type Step struct {
	Category StepCategory
	Sentence string

	// Provenance fields, populated only when this step's value traces to
	// a heuristic row or a cold-start rule (spec §4.6: "Every step that
	// depends on a heuristic row carries that row's hash and version").
	HeuristicHash    string
	HeuristicVersion string
	ColdStartRuleID  string
	FallbackReason   string
}

// ReasoningChain is the ordered sequence of steps explaining one finding.
type ReasoningChain struct {
	Steps []Step
}

// AntiPattern is one entry in the fixed catalog (spec §4.6).
type AntiPattern struct {
	ID          string
	Name        string
	Suggestion  string
	matches     func(r normalize.NormalizedResource) bool
}

// Catalog is the fixed anti-pattern catalog, grounded on the teacher's
// NAT Gateway / Elastic IP / RDS mappers: each entry recognizes a
// resource shape the teacher already special-cases for cost behavior,
// and attaches the rewrite suggestion the spec requires.
var Catalog = []AntiPattern{
	{
		ID:   "nat_gateway_overuse",
		Name: "NAT Gateway overuse",
		Suggestion: "Consider a single shared NAT Gateway per AZ instead of one per subnet, " +
			"or a NAT instance for low-throughput workloads.",
		matches: func(r normalize.NormalizedResource) bool { return r.NormalizedType == "aws_nat_gateway" },
	},
	{
		ID:   "overprovisioned_compute",
		Name: "Overprovisioned compute",
		Suggestion: "Review instance_type against observed CPU/memory utilization; " +
			"consider a smaller instance class or a burstable family.",
		matches: func(r normalize.NormalizedResource) bool {
			if r.NormalizedType != "aws_ec2_instance" {
				return false
			}
			pv, ok := r.Properties["instance_type"]
			if !ok || pv.Scalar == nil {
				return false
			}
			s, _ := pv.Scalar.(string)
			return hasLargeSuffix(s)
		},
	},
	{
		ID:   "missing_storage_lifecycle",
		Name: "Missing storage lifecycle policy",
		Suggestion: "Attach a lifecycle rule to transition or expire objects; " +
			"unmanaged buckets accumulate storage cost indefinitely.",
		matches: func(r normalize.NormalizedResource) bool {
			if r.NormalizedType != "aws_s3_bucket" {
				return false
			}
			_, hasLifecycle := r.Properties["lifecycle_rule"]
			return !hasLifecycle
		},
	},
	{
		ID:   "unbounded_function_concurrency",
		Name: "Unbounded function concurrency",
		Suggestion: "Set reserved_concurrent_executions to cap simultaneous invocations " +
			"and bound worst-case cost.",
		matches: func(r normalize.NormalizedResource) bool {
			if r.NormalizedType != "aws_lambda_function" {
				return false
			}
			_, hasLimit := r.Properties["reserved_concurrent_executions"]
			return !hasLimit
		},
	},
	{
		ID:   "ondemand_database_default",
		Name: "On-demand database billing by default",
		Suggestion: "Evaluate provisioned/reserved capacity against observed read/write traffic; " +
			"on-demand billing carries a premium at steady-state usage.",
		matches: func(r normalize.NormalizedResource) bool {
			if r.NormalizedType != "aws_dynamodb_table" {
				return false
			}
			pv, ok := r.Properties["billing_mode"]
			if !ok || pv.Scalar == nil {
				return false
			}
			s, _ := pv.Scalar.(string)
			return s == "PAY_PER_REQUEST" || s == ""
		},
	},
}

func hasLargeSuffix(instanceType string) bool {
	for _, suffix := range []string{"8xlarge", "12xlarge", "16xlarge", "24xlarge", "metal"} {
		if len(instanceType) >= len(suffix) && instanceType[len(instanceType)-len(suffix):] == suffix {
			return true
		}
	}
	return false
}

// MatchAntiPatterns returns every catalog entry that fires for r.
func MatchAntiPatterns(r normalize.NormalizedResource) []AntiPattern {
	var matched []AntiPattern
	for _, p := range Catalog {
		if p.matches(r) {
			matched = append(matched, p)
		}
	}
	return matched
}

// Build constructs the ReasoningChain for one resource's prediction and
// classification, enforcing spec §4.6's provenance-propagation rules.
func Build(r normalize.NormalizedResource, pred predict.Prediction, regType classify.RegressionType, sev classify.Severity) ReasoningChain {
	var steps []Step

	steps = append(steps, Step{
		Category: StepInput,
		Sentence: fmt.Sprintf("Resource %s (%s) observed with change action derived from the artifact diff.", r.ID, r.NormalizedType),
	})

	lookupStep := Step{Category: StepLookup}
	switch pred.Provenance.Source {
	case predict.SourceHeuristic:
		lookupStep.Sentence = fmt.Sprintf("Matched heuristics row (version %s) for %s.", pred.Provenance.HeuristicVersion, r.NormalizedType)
		lookupStep.HeuristicHash = pred.Provenance.HeuristicHash
		lookupStep.HeuristicVersion = pred.Provenance.HeuristicVersion
	default:
		lookupStep.Sentence = fmt.Sprintf("No heuristics match; applied cold-start rule %s.", pred.Provenance.ColdStartRuleID)
		lookupStep.ColdStartRuleID = pred.Provenance.ColdStartRuleID
	}
	if pred.Provenance.FallbackReason != "" {
		lookupStep.FallbackReason = string(pred.Provenance.FallbackReason)
	}
	steps = append(steps, lookupStep)

	steps = append(steps, Step{
		Category: StepFormula,
		Sentence: fmt.Sprintf("Monthly cost interval p10=%s p50=%s p90=%s p99=%s computed from hourly base × 730 hours with range-factor z-score bands.",
			formatMoney(pred.P10), formatMoney(pred.P50), formatMoney(pred.P90), formatMoney(pred.P99)),
	})

	for _, f := range pred.UncertaintyFactors {
		steps = append(steps, Step{
			Category: StepAdjustment,
			Sentence: fmt.Sprintf("Confidence adjusted by factor %q (weight %.2f).", f.Name, f.Weight),
		})
	}

	steps = append(steps, Step{
		Category: StepOutput,
		Sentence: fmt.Sprintf("Classified as %s with severity %s; confidence %.2f.", regType, sev, pred.Confidence),
	})

	if pred.Confidence < 0.5 {
		hasFallbackStep := false
		for _, s := range steps {
			if s.FallbackReason != "" {
				hasFallbackStep = true
				break
			}
		}
		if !hasFallbackStep {
			steps = append(steps, Step{
				Category:       StepAdjustment,
				Sentence:       "Confidence below 0.5: no specific fallback reason recorded beyond cold-start.",
				FallbackReason: "unspecified",
			})
		}
	}

	for _, ap := range MatchAntiPatterns(r) {
		steps = append(steps, Step{
			Category: StepOutput,
			Sentence: fmt.Sprintf("Anti-pattern %q detected: %s", ap.Name, ap.Suggestion),
		})
	}

	return ReasoningChain{Steps: steps}
}

func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}
