package artifact_test

import (
	"testing"

	"github.com/costpilot/costpilot/internal/artifact"
)

func TestValidateRejectsDuplicateID(t *testing.T) {
	a := &artifact.Artifact{Resources: []artifact.ArtifactResource{
		{ID: "r1", ResourceType: "aws_s3_bucket"},
		{ID: "r1", ResourceType: "aws_s3_bucket"},
	}}
	if err := a.Validate(); err == nil {
		t.Error("Validate should reject a duplicate resource id")
	}
}

func TestValidateRejectsMissingDependencyTarget(t *testing.T) {
	a := &artifact.Artifact{Resources: []artifact.ArtifactResource{
		{ID: "r1", ResourceType: "aws_s3_bucket", DependsOn: []string{"does_not_exist"}},
	}}
	if err := a.Validate(); err == nil {
		t.Error("Validate should reject a depends_on target that does not exist")
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	a := &artifact.Artifact{Resources: []artifact.ArtifactResource{
		{ID: "a", ResourceType: "aws_s3_bucket", DependsOn: []string{"b"}},
		{ID: "b", ResourceType: "aws_s3_bucket", DependsOn: []string{"a"}},
	}}
	if err := a.Validate(); err == nil {
		t.Error("Validate should reject a cyclic dependency graph")
	}
}

func TestValidateAcceptsAcyclicGraph(t *testing.T) {
	a := &artifact.Artifact{Resources: []artifact.ArtifactResource{
		{ID: "a", ResourceType: "aws_s3_bucket"},
		{ID: "b", ResourceType: "aws_s3_bucket", DependsOn: []string{"a"}},
		{ID: "c", ResourceType: "aws_s3_bucket", DependsOn: []string{"a", "b"}},
	}}
	if err := a.Validate(); err != nil {
		t.Errorf("Validate rejected a valid acyclic graph: %v", err)
	}
}

func TestValidateRejectsMissingResourceType(t *testing.T) {
	a := &artifact.Artifact{Resources: []artifact.ArtifactResource{{ID: "r1"}}}
	if err := a.Validate(); err == nil {
		t.Error("Validate should reject a resource with no type")
	}
}

func TestTopologicalOrderPutsDependenciesFirst(t *testing.T) {
	a := &artifact.Artifact{Resources: []artifact.ArtifactResource{
		{ID: "c", ResourceType: "aws_s3_bucket", DependsOn: []string{"a", "b"}},
		{ID: "a", ResourceType: "aws_s3_bucket"},
		{ID: "b", ResourceType: "aws_s3_bucket", DependsOn: []string{"a"}},
	}}
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	order := a.TopologicalOrder()
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos["a"] > pos["b"] || pos["b"] > pos["c"] {
		t.Errorf("TopologicalOrder() = %v, want a before b before c", order)
	}
}

func TestEmptyArtifactValidatesCleanly(t *testing.T) {
	a := &artifact.Artifact{}
	if err := a.Validate(); err != nil {
		t.Errorf("Validate of an empty artifact should succeed: %v", err)
	}
	if len(a.TopologicalOrder()) != 0 {
		t.Error("TopologicalOrder of an empty artifact should be empty")
	}
}
