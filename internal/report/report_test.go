package report_test

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/costpilot/costpilot/internal/arbiter"
	"github.com/costpilot/costpilot/internal/classify"
	"github.com/costpilot/costpilot/internal/explain"
	"github.com/costpilot/costpilot/internal/predict"
	"github.com/costpilot/costpilot/internal/report"
)

func sampleReport() report.Report {
	return report.Report{
		Decision: arbiter.Decision{Outcome: arbiter.OutcomeWarn, Reason: "policy_violation:p1", PolicyRefs: []string{"p1"}},
		Findings: []report.FindingReport{{
			ResourceID:     "r1",
			RegressionType: classify.RegressionNewResource,
			Severity:       classify.SeverityLow,
			Prediction: predict.Prediction{
				P10: decimal.NewFromFloat(1), P50: decimal.NewFromFloat(2),
				P90: decimal.NewFromFloat(3), P99: decimal.NewFromFloat(4),
				Confidence: 0.8,
			},
			Reasoning: explain.ReasoningChain{Steps: []explain.Step{{Category: explain.StepInput, Sentence: "x"}}},
			Delta: arbiter.Delta{
				OldCost: decimal.Zero, NewCost: decimal.NewFromFloat(2),
				Absolute: decimal.NewFromFloat(2), Percentage: 0,
			},
		}},
		Metadata: report.Metadata{Format: "terraform", FormatVersion: "1.2", StackName: "prod", Region: "us-east-1"},
	}
}

func TestRenderHasSchemaVersionAndSortedKeys(t *testing.T) {
	out, err := report.Render(sampleReport())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("Render produced invalid JSON: %v", err)
	}
	if doc["schema_version"] != report.SchemaVersion {
		t.Errorf("schema_version = %v, want %v", doc["schema_version"], report.SchemaVersion)
	}

	// encoding/json.Marshal of a map[string]interface{} always emits keys
	// in byte-lexicographic order; spot-check a few top-level keys appear
	// in that order in the rendered text.
	topLevelKeys := []string{`"decision"`, `"findings"`, `"metadata"`, `"policy_violations"`, `"schema_version"`, `"slo_results"`}
	sorted := append([]string(nil), topLevelKeys...)
	sort.Strings(sorted)
	if topLevelKeys[0] != sorted[0] {
		t.Fatalf("test fixture keys %v not already in sorted order; fix the fixture", topLevelKeys)
	}

	var positions []int
	for _, k := range topLevelKeys {
		idx := strings.Index(out, k)
		if idx < 0 {
			t.Fatalf("expected output to contain key %s", k)
		}
		positions = append(positions, idx)
	}
	for i := 1; i < len(positions); i++ {
		if positions[i] < positions[i-1] {
			t.Errorf("top-level keys not emitted in sorted order: %v at positions %v", topLevelKeys, positions)
		}
	}
}

func TestRenderIsByteIdenticalAcrossRuns(t *testing.T) {
	r := sampleReport()
	out1, err1 := report.Render(r)
	out2, err2 := report.Render(r)
	if err1 != nil || err2 != nil {
		t.Fatalf("Render errors: %v, %v", err1, err2)
	}
	if out1 != out2 {
		t.Error("Render of the same Report twice produced different output; serialization must be deterministic")
	}
}

func TestRenderHasExactlyOneTrailingNewline(t *testing.T) {
	out, err := report.Render(sampleReport())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Fatal("Render output must end in a newline")
	}
	if strings.HasSuffix(strings.TrimSuffix(out, "\n"), "\n") {
		t.Error("Render output must have exactly one trailing newline, not more")
	}
}

func TestRenderIncludesMetadataAndDelta(t *testing.T) {
	out, err := report.Render(sampleReport())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("Render produced invalid JSON: %v", err)
	}

	metadata, ok := doc["metadata"].(map[string]interface{})
	if !ok {
		t.Fatalf("metadata = %v, want an object", doc["metadata"])
	}
	if metadata["region"] != "us-east-1" {
		t.Errorf("metadata.region = %v, want us-east-1", metadata["region"])
	}

	findings, ok := doc["findings"].([]interface{})
	if !ok || len(findings) != 1 {
		t.Fatalf("findings = %v, want exactly one finding", doc["findings"])
	}
	finding := findings[0].(map[string]interface{})
	delta, ok := finding["delta"].(map[string]interface{})
	if !ok {
		t.Fatalf("finding.delta = %v, want an object", finding["delta"])
	}
	if delta["new_cost"] != "2.00" {
		t.Errorf("delta.new_cost = %v, want \"2.00\"", delta["new_cost"])
	}
}

func TestRenderFormatsMoneyToTwoDecimals(t *testing.T) {
	out, err := report.Render(sampleReport())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, `"p50":"2.00"`) {
		t.Errorf("Render output = %s, want p50 formatted as \"2.00\"", out)
	}
}
