// Package artifact implements the Artifact Parser (spec §4.1): it
// ingests Terraform plan JSON, CloudFormation JSON/YAML, or CDK synth
// output and emits a canonical, validated Artifact.
//
// Grounded on the teacher's decision/iac/parser.go (Terraform path) and
// decision/iac/graph.go (TopologicalSort cycle detection), generalized
// to the three source formats and to the spec's validation rules.
package artifact

import (
	"fmt"
	"sort"

	"github.com/costpilot/costpilot/internal/coreerr"
)

// Format identifies the source IaC artifact type.
type Format string

const (
	FormatTerraform      Format = "terraform"
	FormatCloudFormation Format = "cloudformation"
	FormatCDK            Format = "cdk"
)

// ChangeAction is the planned action on a resource (spec §3).
type ChangeAction string

const (
	ActionCreate  ChangeAction = "Create"
	ActionUpdate  ChangeAction = "Update"
	ActionDelete  ChangeAction = "Delete"
	ActionNoOp    ChangeAction = "NoOp"
	ActionReplace ChangeAction = "Replace"
)

// PropertyValue is a resource property value. Scalars are stored as Go
// literals (string/float64/bool/nil); sequences and mappings are
// []PropertyValue / map[string]PropertyValue; an intrinsic-function
// result that could not be fully resolved is an Unresolved sentinel.
type PropertyValue struct {
	Scalar     interface{}
	Sequence   []PropertyValue
	Mapping    map[string]PropertyValue
	Unresolved bool
	Expression string // placeholder text, e.g. "${aws_vpc.main.id}"
}

// ArtifactResource is one resource entry (spec §3).
type ArtifactResource struct {
	ID             string
	ResourceType   string // raw type from source
	NormalizedType string // populated by the Normalizer; empty at parse time
	Properties     map[string]PropertyValue
	DependsOn      []string // explicit + inferred, deduplicated, sorted
	ChangeAction   ChangeAction

	// Metadata carried through for CDK (aws:cdk:path, asset refs) and
	// region resolution (Terraform).
	Metadata map[string]string
}

// Artifact is the canonical, immutable-after-parse representation of a
// parsed IaC input (spec §3).
type Artifact struct {
	Format     Format
	Resources  []ArtifactResource
	Parameters map[string]Parameter
	Outputs    map[string]string // name -> expression (rendered placeholder)
	SourcePath string
	FormatVersion string
	StackName  string
	Region     string
}

// Parameter is a declared artifact parameter (spec §3).
type Parameter struct {
	Type    string
	Default string
	HasDefault bool
}

// Validate enforces the four parse-time invariants from spec §4.1:
// unique ids, depends_on targets exist, the dependency graph is acyclic,
// required fields present. Violations are HardStop at the arbiter, never
// a silently-repaired default.
func (a *Artifact) Validate() error {
	seen := make(map[string]bool, len(a.Resources))
	for _, r := range a.Resources {
		if r.ID == "" {
			return coreerr.NewValidationError(coreerr.CodeMissingRequiredField, "resource missing id").WithHint("every resource must have a non-empty id")
		}
		if seen[r.ID] {
			return coreerr.NewValidationError(coreerr.CodeDuplicateResourceID, fmt.Sprintf("duplicate resource id: %s", r.ID)).WithResource(r.ID)
		}
		seen[r.ID] = true
		if r.ResourceType == "" {
			return coreerr.NewValidationError(coreerr.CodeMissingRequiredField, "resource missing type").WithResource(r.ID)
		}
	}

	for _, r := range a.Resources {
		for _, dep := range r.DependsOn {
			if !seen[dep] {
				return coreerr.NewValidationError(coreerr.CodeMissingDependency, fmt.Sprintf("depends_on target %q does not exist", dep)).WithResource(r.ID)
			}
		}
	}

	if cycle := findCycle(a.Resources); cycle != "" {
		return coreerr.NewValidationError(coreerr.CodeCyclicDependency, fmt.Sprintf("circular dependency detected at %s", cycle)).WithResource(cycle)
	}

	return nil
}

// findCycle runs the teacher's DFS visited/visiting cycle detector
// (decision/iac/graph.go TopologicalSort) over ArtifactResource.DependsOn,
// returning the id at which a cycle was first observed, or "" if none.
func findCycle(resources []ArtifactResource) string {
	byID := make(map[string]*ArtifactResource, len(resources))
	for i := range resources {
		byID[resources[i].ID] = &resources[i]
	}

	visited := make(map[string]bool)
	visiting := make(map[string]bool)

	var cycleAt string
	var visit func(id string) bool // true if a cycle was found
	visit = func(id string) bool {
		if visited[id] {
			return false
		}
		if visiting[id] {
			cycleAt = id
			return true
		}
		visiting[id] = true
		r := byID[id]
		for _, dep := range r.DependsOn {
			if visit(dep) {
				return true
			}
		}
		visiting[id] = false
		visited[id] = true
		return false
	}

	// Deterministic iteration order: sort ids first so that, among
	// multiple independent cycles, the reported one is stable.
	ids := make([]string, 0, len(resources))
	for _, r := range resources {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if visit(id) {
			return cycleAt
		}
	}
	return ""
}

// TopologicalOrder returns resource ids in dependency order (dependencies
// before dependents), ties broken by byte-lexicographic id order. Callers
// must call Validate first; TopologicalOrder assumes acyclicity.
func (a *Artifact) TopologicalOrder() []string {
	byID := make(map[string]*ArtifactResource, len(a.Resources))
	for i := range a.Resources {
		byID[a.Resources[i].ID] = &a.Resources[i]
	}

	ids := make([]string, 0, len(a.Resources))
	for _, r := range a.Resources {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)

	visited := make(map[string]bool)
	result := make([]string, 0, len(ids))
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		deps := append([]string(nil), byID[id].DependsOn...)
		sort.Strings(deps)
		for _, dep := range deps {
			visit(dep)
		}
		result = append(result, id)
	}
	for _, id := range ids {
		visit(id)
	}
	return result
}
