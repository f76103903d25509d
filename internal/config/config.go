// Package config loads the boundary inputs the pure core needs before an
// evaluation begins: heuristics, policies, SLOs, baselines, and
// exemptions (spec §5: "a set of blocking file reads at the boundary...
// performed before the pure pipeline begins").
//
// Grounded on the teacher's pkg/platform/config.go env-var helper idiom
// (kept in internal/platform), generalized here to file loading: every
// Load* function takes raw bytes (never a path), so this package itself
// never touches the filesystem — cmd/costpilot owns that, keeping the
// core's "no I/O of its own" contract (spec §1) intact.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/costpilot/costpilot/internal/coreerr"
	"github.com/costpilot/costpilot/internal/heuristics"
	"github.com/costpilot/costpilot/internal/policy"
	"github.com/costpilot/costpilot/internal/slo"
)

// SchemaVersion is the config document version this build understands.
// A file declaring a different schema_version is a CodeUnsupportedVersion
// hard_stop, never a best-effort parse.
const SchemaVersion = "1.0"

// Encoding identifies the boundary file's serialization.
type Encoding int

const (
	EncodingJSON Encoding = iota
	EncodingYAML
)

// decode dispatches to the right unmarshaler and validates schema_version.
func decode(data []byte, enc Encoding, out interface{}) error {
	var versioned struct {
		SchemaVersion string `json:"schema_version" yaml:"schema_version"`
	}

	unmarshal := json.Unmarshal
	if enc == EncodingYAML {
		unmarshal = yaml.Unmarshal
	}

	if err := unmarshal(data, &versioned); err != nil {
		return coreerr.NewConfigurationError(coreerr.CodeFileUnreadable, "malformed config document: "+err.Error())
	}
	if versioned.SchemaVersion != "" && versioned.SchemaVersion != SchemaVersion {
		return coreerr.NewConfigurationError(coreerr.CodeUnsupportedVersion,
			fmt.Sprintf("unsupported config schema_version %q (expected %q)", versioned.SchemaVersion, SchemaVersion))
	}

	if err := unmarshal(data, out); err != nil {
		return coreerr.NewConfigurationError(coreerr.CodeFileUnreadable, "malformed config document: "+err.Error())
	}
	return nil
}

// PolicyDocument is the on-disk shape of the policy configuration file.
type PolicyDocument struct {
	SchemaVersion string           `json:"schema_version" yaml:"schema_version"`
	Policies      []policyRecord   `json:"policies" yaml:"policies"`
	Exemptions    []exemptionRecord `json:"exemptions" yaml:"exemptions"`
}

type policyRecord struct {
	ID        string          `json:"id" yaml:"id"`
	Name      string          `json:"name" yaml:"name"`
	Category  string          `json:"category" yaml:"category"`
	Severity  string          `json:"severity" yaml:"severity"`
	Status    string          `json:"status" yaml:"status"`
	Action    string          `json:"action" yaml:"action"`
	Condition conditionRecord `json:"condition" yaml:"condition"`
}

type conditionRecord struct {
	Kind           string            `json:"kind" yaml:"kind"`
	ResourceType   string            `json:"resource_type" yaml:"resource_type"`
	PropertyKey    string            `json:"property_key" yaml:"property_key"`
	PropertyVal    string            `json:"property_val" yaml:"property_val"`
	CostField      string            `json:"cost_field" yaml:"cost_field"`
	Threshold      float64           `json:"threshold" yaml:"threshold"`
	AggregateScope string            `json:"aggregate_scope" yaml:"aggregate_scope"`
	Sub            []conditionRecord `json:"sub" yaml:"sub"`
}

type exemptionRecord struct {
	ID              string    `json:"id" yaml:"id"`
	PolicyID        string    `json:"policy_id" yaml:"policy_id"`
	ResourcePattern string    `json:"resource_pattern" yaml:"resource_pattern"`
	Justification   string    `json:"justification" yaml:"justification"`
	ExpiresAt       time.Time `json:"expires_at" yaml:"expires_at"`
	ApprovedBy      string    `json:"approved_by" yaml:"approved_by"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
}

// LoadPolicies parses a policy/exemption configuration file into the
// policy package's runtime types.
func LoadPolicies(data []byte, enc Encoding) ([]*policy.Policy, []*policy.Exemption, error) {
	var doc PolicyDocument
	if err := decode(data, enc, &doc); err != nil {
		return nil, nil, err
	}

	policies := make([]*policy.Policy, 0, len(doc.Policies))
	for _, p := range doc.Policies {
		policies = append(policies, &policy.Policy{
			ID:        p.ID,
			Name:      p.Name,
			Category:  policy.Category(p.Category),
			Severity:  policy.Severity(p.Severity),
			Status:    policy.Status(p.Status),
			Action:    policy.Action(p.Action),
			Condition: toCondition(p.Condition),
		})
	}

	exemptions := make([]*policy.Exemption, 0, len(doc.Exemptions))
	for _, e := range doc.Exemptions {
		exemptions = append(exemptions, &policy.Exemption{
			ID:              e.ID,
			PolicyID:        e.PolicyID,
			ResourcePattern: e.ResourcePattern,
			Justification:   e.Justification,
			ExpiresAt:       e.ExpiresAt,
			ApprovedBy:      e.ApprovedBy,
			CreatedAt:       e.CreatedAt,
		})
	}

	return policies, exemptions, nil
}

func toCondition(c conditionRecord) policy.Condition {
	sub := make([]policy.Condition, 0, len(c.Sub))
	for _, s := range c.Sub {
		sub = append(sub, toCondition(s))
	}
	return policy.Condition{
		Kind:           c.Kind,
		ResourceType:   c.ResourceType,
		PropertyKey:    c.PropertyKey,
		PropertyVal:    c.PropertyVal,
		CostField:      c.CostField,
		Threshold:      c.Threshold,
		AggregateScope: c.AggregateScope,
		Sub:            sub,
	}
}

// SLODocument is the on-disk shape of the SLO configuration file.
type SLODocument struct {
	SchemaVersion string      `json:"schema_version" yaml:"schema_version"`
	SLOs          []sloRecord `json:"slos" yaml:"slos"`
}

type sloRecord struct {
	ID          string  `json:"id" yaml:"id"`
	Type        string  `json:"type" yaml:"type"`
	TargetScope string  `json:"target_scope" yaml:"target_scope"`
	MaxValue    float64 `json:"max_value" yaml:"max_value"`
	UseBaseline bool    `json:"use_baseline" yaml:"use_baseline"`
	BaselineMultiplier float64 `json:"baseline_multiplier" yaml:"baseline_multiplier"`
	Enforcement string  `json:"enforcement" yaml:"enforcement"`
}

// LoadSLOs parses an SLO configuration file.
func LoadSLOs(data []byte, enc Encoding) ([]slo.SLO, error) {
	var doc SLODocument
	if err := decode(data, enc, &doc); err != nil {
		return nil, err
	}

	out := make([]slo.SLO, 0, len(doc.SLOs))
	for _, s := range doc.SLOs {
		out = append(out, slo.SLO{
			ID:          s.ID,
			Type:        slo.Type(s.Type),
			TargetScope: s.TargetScope,
			Threshold: slo.Threshold{
				MaxValue:           s.MaxValue,
				UseBaseline:        s.UseBaseline,
				BaselineMultiplier: s.BaselineMultiplier,
			},
			Enforcement: slo.Enforcement(s.Enforcement),
		})
	}
	return out, nil
}

// BaselinesDocument is the on-disk shape of the baselines table.
type BaselinesDocument struct {
	SchemaVersion string             `json:"schema_version" yaml:"schema_version"`
	Baselines     map[string]float64 `json:"baselines" yaml:"baselines"`
}

// LoadBaselines parses a baselines table file.
func LoadBaselines(data []byte, enc Encoding) (map[string]float64, error) {
	var doc BaselinesDocument
	if err := decode(data, enc, &doc); err != nil {
		return nil, err
	}
	return doc.Baselines, nil
}

// SnapshotHistoryDocument is the on-disk shape of the SLO snapshot
// history file.
type SnapshotHistoryDocument struct {
	SchemaVersion string                   `json:"schema_version" yaml:"schema_version"`
	Snapshots     map[string][]slo.Snapshot `json:"snapshots" yaml:"snapshots"`
}

// LoadSnapshotHistory parses the append-only snapshot history file.
func LoadSnapshotHistory(data []byte, enc Encoding) (map[string][]slo.Snapshot, error) {
	var doc SnapshotHistoryDocument
	if err := decode(data, enc, &doc); err != nil {
		return nil, err
	}
	return doc.Snapshots, nil
}

// RegoDocument is the on-disk shape of the custom-policy (Rego)
// configuration file: each entry is one module evaluated in addition to
// the declarative Condition-tree policies (spec §4.7).
type RegoDocument struct {
	SchemaVersion string       `json:"schema_version" yaml:"schema_version"`
	Policies      []regoRecord `json:"policies" yaml:"policies"`
}

type regoRecord struct {
	Name   string `json:"name" yaml:"name"`
	Module string `json:"module" yaml:"module"`
	Query  string `json:"query" yaml:"query"`
}

// LoadRegoPolicies parses a custom-policy configuration file, failing
// fast (spec §4.7) on any module that does not compile rather than
// surfacing a syntax error mid-evaluation.
func LoadRegoPolicies(data []byte, enc Encoding) ([]policy.RegoPolicy, error) {
	var doc RegoDocument
	if err := decode(data, enc, &doc); err != nil {
		return nil, err
	}

	out := make([]policy.RegoPolicy, 0, len(doc.Policies))
	for _, r := range doc.Policies {
		if err := policy.ValidateRego(context.Background(), r.Name, r.Module); err != nil {
			return nil, err
		}
		out = append(out, policy.RegoPolicy{Name: r.Name, Module: r.Module, Query: r.Query})
	}
	return out, nil
}

// LoadHeuristics parses a heuristics table file and verifies its
// content hash (spec §4.3, §5). JSON-only: the heuristics table is a
// large, build-time-generated artifact and the teacher's own load paths
// never use YAML for generated data files.
func LoadHeuristics(data []byte, declaredHash string) (*heuristics.Table, error) {
	return heuristics.Load(data, declaredHash)
}
