// Package costpilot is CostPilot's pure public entry point: one function,
// Evaluate, taking raw artifact bytes plus loaded boundary configuration
// and returning exactly one Decision and its Report (spec §1: "the core
// exposes a pure function (artifact, config) → (decision, report) with
// no I/O of its own").
//
// Grounded on the teacher's decision/estimation/engine.go top-level
// Engine.Estimate, which is itself the single orchestration point
// chaining parse → decompose → aggregate; this package generalizes that
// shape to the full A-J pipeline and removes every teacher call that
// touched a database, pricing service, or carbon API.
package costpilot

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/costpilot/costpilot/internal/arbiter"
	"github.com/costpilot/costpilot/internal/artifact"
	"github.com/costpilot/costpilot/internal/artifact/cdk"
	"github.com/costpilot/costpilot/internal/artifact/cloudformation"
	"github.com/costpilot/costpilot/internal/artifact/terraform"
	"github.com/costpilot/costpilot/internal/classify"
	"github.com/costpilot/costpilot/internal/coreerr"
	"github.com/costpilot/costpilot/internal/explain"
	"github.com/costpilot/costpilot/internal/heuristics"
	"github.com/costpilot/costpilot/internal/normalize"
	"github.com/costpilot/costpilot/internal/policy"
	"github.com/costpilot/costpilot/internal/predict"
	"github.com/costpilot/costpilot/internal/report"
	"github.com/costpilot/costpilot/internal/slo"
)

// Format identifies the input artifact's source (spec §4.1).
type Format string

const (
	FormatTerraform      Format = "terraform"
	FormatCloudFormation Format = "cloudformation"
	FormatCDK            Format = "cdk"
)

// Config bundles every boundary input the evaluation needs, all already
// loaded and parsed by the caller (cmd/costpilot): the core itself never
// opens a file (spec §5).
type Config struct {
	Heuristics       *heuristics.Table
	Policies         []*policy.Policy
	Exemptions       []*policy.Exemption
	SLOs             []slo.SLO
	SnapshotHistory  map[string][]slo.Snapshot
	Baselines        map[string]float64

	// RegoPolicies are custom policy modules evaluated in addition to
	// Policies' declarative Condition trees (spec §4.7).
	RegoPolicies []policy.RegoPolicy

	// Now pins evaluation time for staleness/exemption/SLO checks,
	// keeping the pure core deterministic across repeated runs of the
	// same input (spec §5: the core has no wall-clock side effects).
	Now time.Time
}

// CDKInput supplies the manifest and a template loader for CDK-format
// artifacts; nil for Terraform/CloudFormation inputs.
type CDKInput struct {
	Manifest       []byte
	LoadTemplate   cdk.TemplateLoader
}

// Result is what Evaluate returns: the arbiter's Decision plus the
// rendered canonical report string (spec §4.10).
type Result struct {
	Decision   arbiter.Decision
	ReportJSON string
}

// Evaluate runs the complete A→J pipeline once, synchronously, with no
// suspension points (spec §5). artifactBytes is nil when format is CDK
// (use cdkInput instead).
func Evaluate(artifactBytes []byte, format Format, cdkInput *CDKInput, cfg Config) (Result, error) {
	a, hardStop, err := parseArtifact(artifactBytes, format, cdkInput)
	if err != nil {
		return Result{}, err
	}
	if hardStop != arbiter.CauseNone {
		decision := arbiter.Decision{Outcome: arbiter.OutcomeHardStop, Reason: string(hardStop)}
		rpt, rerr := report.Render(report.Report{Decision: decision, Metadata: metadataFrom(a)})
		return Result{Decision: decision, ReportJSON: rpt}, rerr
	}

	if err := a.Validate(); err != nil {
		decision := arbiter.Decision{Outcome: arbiter.OutcomeHardStop, Reason: string(validationCause(err))}
		rpt, rerr := report.Render(report.Report{Decision: decision, Metadata: metadataFrom(a)})
		return Result{Decision: decision, ReportJSON: rpt}, rerr
	}

	plan := normalize.Normalize(a)

	now := cfg.Now
	if now.IsZero() {
		now = time.Unix(0, 0).UTC()
	}

	preds := make(map[string]predict.Prediction, len(plan.Resources))
	for _, r := range plan.Resources {
		preds[r.ID] = predict.Predict(r, cfg.Heuristics, plan.Region, now)
	}

	for _, pr := range preds {
		if !intervalMonotonic(pr) {
			decision := arbiter.Decision{Outcome: arbiter.OutcomeHardStop, Reason: string(arbiter.CauseIntervalInverted) + ":" + pr.ResourceID}
			rpt, rerr := report.Render(report.Report{Decision: decision, Metadata: metadataFrom(a)})
			return Result{Decision: decision, ReportJSON: rpt}, rerr
		}
	}

	findings := make([]arbiter.Finding, 0, len(plan.Resources))
	findingReports := make([]report.FindingReport, 0, len(plan.Resources))

	for _, r := range plan.Resources {
		pred := preds[r.ID]
		oldPred, newPred := baselinePair(r, pred, cfg.Baselines)
		regType, sev := classify.Classify(r.ChangeAction, oldPred, newPred, false)
		chain := explain.Build(r, pred, regType, sev)
		antiPatterns := explain.MatchAntiPatterns(r)
		delta := computeDelta(r.ChangeAction, oldPred, newPred)

		findings = append(findings, arbiter.Finding{
			ResourceID:     r.ID,
			RegressionType: regType,
			Severity:       sev,
			Confidence:     pred.Confidence,
			AntiPatterns:   antiPatterns,
			Delta:          delta,
		})
		findingReports = append(findingReports, report.FindingReport{
			ResourceID:     r.ID,
			RegressionType: regType,
			Severity:       sev,
			Prediction:     pred,
			Reasoning:      chain,
			Delta:          delta,
		})
	}

	policyResult := policy.Evaluate(plan, preds, cfg.Policies, cfg.Exemptions, now)
	evaluateRegoPolicies(plan, preds, cfg.RegoPolicies, &policyResult)
	sloResult := slo.Evaluate(cfg.SLOs, cfg.SnapshotHistory, cfg.Baselines, now)

	decision := arbiter.Arbitrate(arbiter.CauseNone, findings, policyResult, sloResult)

	rpt, err := report.Render(report.Report{
		Decision: decision,
		Findings: findingReports,
		Policy:   policyResult,
		SLO:      sloResult,
		Metadata: metadataFrom(a),
	})
	if err != nil {
		return Result{}, fmt.Errorf("costpilot: rendering report: %w", err)
	}

	return Result{Decision: decision, ReportJSON: rpt}, nil
}

// baselinePair derives the (oldPred, newPred) arguments classify.Classify
// expects for one resource's change action. Create has no prior state;
// Delete's "old" cost is the resource's own prediction (computed from its
// pre-deletion properties) and it has no new state; Update/Replace compare
// cfg.Baselines' recorded prior cost, when supplied, against the current
// prediction (spec §3 invariant: "a Replace action implies both a Delete
// cost reduction and a Create cost increase").
func baselinePair(r normalize.NormalizedResource, pred predict.Prediction, baselines map[string]float64) (oldPred, newPred *decimal.Decimal) {
	switch r.ChangeAction {
	case artifact.ActionCreate:
		return nil, &pred.P50
	case artifact.ActionDelete:
		return &pred.P50, nil
	case artifact.ActionUpdate, artifact.ActionReplace:
		if v, ok := baselines[r.ID]; ok {
			d := decimal.NewFromFloat(v)
			return &d, &pred.P50
		}
		return nil, &pred.P50
	default:
		return nil, &pred.P50
	}
}

// computeDelta renders the old/new/absolute/percentage movement for one
// finding (spec §3 Finding.delta). Percentage mirrors classify.go's
// epsilon-floored ratio and is 0 for new/deleted resources, where an
// old-vs-new ratio has no meaning.
func computeDelta(action artifact.ChangeAction, oldPred, newPred *decimal.Decimal) arbiter.Delta {
	old := decimal.Zero
	if oldPred != nil {
		old = *oldPred
	}
	newCost := decimal.Zero
	if newPred != nil {
		newCost = *newPred
	}
	delta := arbiter.Delta{OldCost: old, NewCost: newCost, Absolute: newCost.Sub(old)}

	if action == artifact.ActionUpdate || action == artifact.ActionReplace {
		oldF, _ := old.Float64()
		newF, _ := newCost.Float64()
		denom := oldF
		if denom < 0.01 {
			denom = 0.01
		}
		delta.Percentage = (newF - oldF) / denom
	}
	return delta
}

// metadataFrom carries the parsed Artifact's provenance fields into the
// report (spec §3 Artifact.metadata: "source path, format version, stack
// name, region"). a is nil on the earliest hard-stop paths, before any
// artifact was successfully parsed.
func metadataFrom(a *artifact.Artifact) report.Metadata {
	if a == nil {
		return report.Metadata{}
	}
	return report.Metadata{
		SourcePath:    a.SourcePath,
		Format:        string(a.Format),
		FormatVersion: a.FormatVersion,
		StackName:     a.StackName,
		Region:        a.Region,
	}
}

// validationCause maps an Artifact.Validate failure to the HardStopCause
// that best describes it: a cyclic dependency graph is its own named
// cause (spec §4.9), everything else (duplicate/missing ids, missing
// fields, unresolved depends_on targets) is ambiguous-or-invalid input.
func validationCause(err error) arbiter.HardStopCause {
	if ce, ok := err.(*coreerr.CoreError); ok && ce.Code == coreerr.CodeCyclicDependency {
		return arbiter.CauseCyclicGraph
	}
	return arbiter.CauseAmbiguousInput
}

// evaluateRegoPolicies runs every custom Rego policy module against the
// plan and appends any deny message as a blocking Violation, alongside
// the declarative Condition-tree policies (spec §4.7: "custom" rules not
// expressible in the Condition tree). A module that fails to evaluate is
// skipped rather than aborting the run: a malformed custom policy must
// not take down the built-in checks.
func evaluateRegoPolicies(plan *normalize.NormalizedPlan, preds map[string]predict.Prediction, policies []policy.RegoPolicy, result *policy.Result) {
	if len(policies) == 0 {
		return
	}
	input := regoInput(plan, preds)
	for _, rp := range policies {
		messages, err := policy.EvaluateRego(context.Background(), rp, input)
		if err != nil {
			continue
		}
		for _, msg := range messages {
			result.Violations = append(result.Violations, policy.Violation{
				PolicyID:   rp.Name,
				PolicyName: rp.Name,
				Severity:   policy.SeverityError,
				Action:     policy.ActionBlock,
				Message:    msg,
			})
		}
	}
}

// regoInput builds the JSON-shaped document a Rego module's deny query
// evaluates against: one entry per resource with its normalized type,
// change action, and predicted p50.
func regoInput(plan *normalize.NormalizedPlan, preds map[string]predict.Prediction) map[string]interface{} {
	resources := make([]map[string]interface{}, 0, len(plan.Resources))
	for _, r := range plan.Resources {
		p50, _ := preds[r.ID].P50.Float64()
		resources = append(resources, map[string]interface{}{
			"id":              r.ID,
			"normalized_type": r.NormalizedType,
			"change_action":   string(r.ChangeAction),
			"p50":             p50,
		})
	}
	return map[string]interface{}{"region": plan.Region, "resources": resources}
}

func parseArtifact(data []byte, format Format, cdkInput *CDKInput) (*artifact.Artifact, arbiter.HardStopCause, error) {
	switch format {
	case FormatTerraform:
		a, err := terraform.Parse(data)
		if err != nil {
			return nil, arbiter.CauseAmbiguousInput, err
		}
		return a, arbiter.CauseNone, nil
	case FormatCloudFormation:
		a, err := cloudformation.ParseJSON(data)
		if err != nil {
			a, err = cloudformation.ParseYAML(data)
		}
		if err != nil {
			return nil, arbiter.CauseAmbiguousInput, err
		}
		return a, arbiter.CauseNone, nil
	case FormatCDK:
		if cdkInput == nil {
			return nil, arbiter.CauseAmbiguousInput, fmt.Errorf("costpilot: cdk format requires CDKInput")
		}
		a, err := cdk.Parse(cdkInput.Manifest, cdkInput.LoadTemplate)
		if err != nil {
			return nil, arbiter.CauseAmbiguousInput, err
		}
		return a, arbiter.CauseNone, nil
	default:
		return nil, arbiter.CauseAmbiguousInput, fmt.Errorf("costpilot: unrecognized format %q", format)
	}
}

// intervalMonotonic enforces spec §3's p10 ≤ p50 ≤ p90 ≤ p99 invariant;
// a violation is a bug in the Prediction Engine and must fail as
// HardStop rather than silently passing through to the report.
func intervalMonotonic(p predict.Prediction) bool {
	return p.P10.LessThanOrEqual(p.P50) &&
		p.P50.LessThanOrEqual(p.P90) &&
		p.P90.LessThanOrEqual(p.P99)
}
