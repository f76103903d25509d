// Package report implements the Serializer (spec §4.10): it renders a
// Report into canonical, byte-stable JSON — sorted keys, fixed float
// formatting, LF-only line endings, no BOM.
//
// Grounded on the teacher's straightforward encoding/json usage
// throughout decision/billing and decision/policy (plain json.Marshal,
// no custom MarshalJSON anywhere in the teacher), generalized here only
// as far as the spec's determinism clause requires: Report is rendered
// through map[string]interface{}, which encoding/json already emits
// with byte-lexicographically sorted keys, rather than a hand-rolled
// ordered-map writer.
package report

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/costpilot/costpilot/internal/arbiter"
	"github.com/costpilot/costpilot/internal/classify"
	"github.com/costpilot/costpilot/internal/explain"
	"github.com/costpilot/costpilot/internal/policy"
	"github.com/costpilot/costpilot/internal/predict"
	"github.com/costpilot/costpilot/internal/slo"
)

// SchemaVersion is bumped on any MAJOR change to the report shape.
const SchemaVersion = "1.0"

// FindingReport is one resource's full finding, ready for serialization.
type FindingReport struct {
	ResourceID     string
	RegressionType classify.RegressionType
	Severity       classify.Severity
	Prediction     predict.Prediction
	Reasoning      explain.ReasoningChain
	Delta          arbiter.Delta
}

// Metadata is the report's provenance header: where the evaluated
// artifact came from (spec §3 Artifact.metadata, spec §6 report
// top-level "metadata" key).
type Metadata struct {
	SourcePath    string
	Format        string
	FormatVersion string
	StackName     string
	Region        string
}

// Report is the Serializer's input: the complete output of one
// evaluation (spec §4.10).
type Report struct {
	Decision arbiter.Decision
	Findings []FindingReport
	Policy   policy.Result
	SLO      slo.Result
	Metadata Metadata
}

// Render produces the canonical JSON encoding of a Report (spec §4.10).
func Render(r Report) (string, error) {
	doc := toDocument(r)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return "", err
	}

	out := buf.Bytes()
	out = bytes.ReplaceAll(out, []byte("\r\n"), []byte("\n"))
	out = bytes.TrimRight(out, "\n")
	out = append(out, '\n')

	return string(out), nil
}

func toDocument(r Report) map[string]interface{} {
	findings := make([]interface{}, 0, len(r.Findings))
	for _, f := range r.Findings {
		findings = append(findings, findingToMap(f))
	}

	violations := make([]interface{}, 0, len(r.Policy.Violations))
	for _, v := range r.Policy.Violations {
		violations = append(violations, map[string]interface{}{
			"policy_id":   v.PolicyID,
			"policy_name": v.PolicyName,
			"severity":    string(v.Severity),
			"action":      string(v.Action),
			"resource_id": v.ResourceID,
			"message":     v.Message,
			"exempted":    v.Exempted,
		})
	}

	sloViolations := make([]interface{}, 0, len(r.SLO.Violations))
	for _, v := range r.SLO.Violations {
		sloViolations = append(sloViolations, map[string]interface{}{
			"slo_id":          v.SLOID,
			"enforcement":     string(v.Enforcement),
			"risk":            string(v.Risk),
			"days_to_breach":  formatRatio(v.DaysToBreach),
			"current":         formatMoney(decimal.NewFromFloat(v.Current)),
			"threshold":       formatMoney(decimal.NewFromFloat(v.Threshold)),
			"low_confidence":  v.LowConfidence,
			"reason":          v.Reason,
		})
	}

	return map[string]interface{}{
		"schema_version": SchemaVersion,
		"decision": map[string]interface{}{
			"outcome":                        string(r.Decision.Outcome),
			"reason":                         r.Decision.Reason,
			"contributing_findings":          r.Decision.Findings,
			"contributing_policy_violations": r.Decision.PolicyRefs,
			"contributing_slo_violations":    r.Decision.SLORefs,
		},
		"findings":          findings,
		"policy_violations": violations,
		"slo_results":       sloViolations,
		"metadata": map[string]interface{}{
			"source_path":    r.Metadata.SourcePath,
			"format":         r.Metadata.Format,
			"format_version": r.Metadata.FormatVersion,
			"stack_name":     r.Metadata.StackName,
			"region":         r.Metadata.Region,
		},
	}
}

func findingToMap(f FindingReport) map[string]interface{} {
	factors := make([]interface{}, 0, len(f.Prediction.UncertaintyFactors))
	for _, uf := range f.Prediction.UncertaintyFactors {
		factors = append(factors, map[string]interface{}{
			"name":   uf.Name,
			"weight": formatRatio(uf.Weight),
		})
	}

	steps := make([]interface{}, 0, len(f.Reasoning.Steps))
	for _, s := range f.Reasoning.Steps {
		step := map[string]interface{}{
			"category": string(s.Category),
			"sentence": s.Sentence,
		}
		if s.HeuristicHash != "" {
			step["heuristic_hash"] = s.HeuristicHash
			step["heuristic_version"] = s.HeuristicVersion
		}
		if s.ColdStartRuleID != "" {
			step["cold_start_rule_id"] = s.ColdStartRuleID
		}
		if s.FallbackReason != "" {
			step["fallback_reason"] = s.FallbackReason
		}
		steps = append(steps, step)
	}

	return map[string]interface{}{
		"resource_id":     f.ResourceID,
		"regression_type": string(f.RegressionType),
		"severity":        string(f.Severity),
		"delta": map[string]interface{}{
			"old_cost":   formatMoney(f.Delta.OldCost),
			"new_cost":   formatMoney(f.Delta.NewCost),
			"absolute":   formatMoney(f.Delta.Absolute),
			"percentage": formatRatio(f.Delta.Percentage),
		},
		"prediction": map[string]interface{}{
			"p10":        formatMoney(f.Prediction.P10),
			"p50":        formatMoney(f.Prediction.P50),
			"p90":        formatMoney(f.Prediction.P90),
			"p99":        formatMoney(f.Prediction.P99),
			"confidence": formatRatio(f.Prediction.Confidence),
			"uncertainty_factors": factors,
		},
		"reasoning_chain": steps,
	}
}

// formatMoney renders a monetary value to 2 decimal places, ASCII
// hyphen-minus only (spec §4.10).
func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// formatRatio renders a ratio/confidence/weight value to 4 decimal
// places using a locale-independent, deterministic routine (spec §4.10).
func formatRatio(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}
