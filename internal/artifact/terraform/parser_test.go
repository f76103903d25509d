package terraform_test

import (
	"testing"

	"github.com/costpilot/costpilot/internal/artifact"
	"github.com/costpilot/costpilot/internal/artifact/terraform"
)

func TestParseCreateActionFromCreateOnly(t *testing.T) {
	data := []byte(`{
		"format_version": "1.2",
		"resource_changes": [{
			"address": "aws_s3_bucket.b",
			"mode": "managed",
			"type": "aws_s3_bucket",
			"provider_name": "registry.terraform.io/hashicorp/aws",
			"change": {"actions": ["create"], "before": null, "after": {"bucket": "my-bucket"}}
		}]
	}`)

	a, err := terraform.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(a.Resources) != 1 {
		t.Fatalf("len(Resources) = %d, want 1", len(a.Resources))
	}
	if a.Resources[0].ChangeAction != artifact.ActionCreate {
		t.Errorf("ChangeAction = %v, want create", a.Resources[0].ChangeAction)
	}
}

func TestParseReplaceActionFromDeleteThenCreate(t *testing.T) {
	data := []byte(`{
		"format_version": "1.2",
		"resource_changes": [{
			"address": "aws_instance.i",
			"mode": "managed",
			"type": "aws_instance",
			"provider_name": "registry.terraform.io/hashicorp/aws",
			"change": {"actions": ["delete", "create"], "before": {"ami": "old"}, "after": {"ami": "new"}}
		}]
	}`)

	a, err := terraform.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Resources[0].ChangeAction != artifact.ActionReplace {
		t.Errorf("ChangeAction = %v, want replace", a.Resources[0].ChangeAction)
	}
}

func TestParseDeleteActionUsesBeforeProperties(t *testing.T) {
	data := []byte(`{
		"format_version": "1.2",
		"resource_changes": [{
			"address": "aws_instance.i",
			"mode": "managed",
			"type": "aws_instance",
			"provider_name": "registry.terraform.io/hashicorp/aws",
			"change": {"actions": ["delete"], "before": {"ami": "old"}, "after": null}
		}]
	}`)

	a, err := terraform.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r := a.Resources[0]
	if r.ChangeAction != artifact.ActionDelete {
		t.Fatalf("ChangeAction = %v, want delete", r.ChangeAction)
	}
	if v, ok := r.Properties["ami"]; !ok || v.Scalar != "old" {
		t.Errorf("Properties[ami] = %+v, want scalar \"old\" sourced from before", v)
	}
}

func TestParseDataSourcesAreExcluded(t *testing.T) {
	data := []byte(`{
		"format_version": "1.2",
		"resource_changes": [{
			"address": "data.aws_ami.latest",
			"mode": "data",
			"type": "aws_ami",
			"provider_name": "registry.terraform.io/hashicorp/aws",
			"change": {"actions": ["read"], "before": null, "after": {}}
		}]
	}`)

	a, err := terraform.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(a.Resources) != 0 {
		t.Errorf("len(Resources) = %d, want 0: data sources must be excluded", len(a.Resources))
	}
}

func TestParseRegionResolvedFromAttribute(t *testing.T) {
	data := []byte(`{
		"format_version": "1.2",
		"resource_changes": [{
			"address": "aws_s3_bucket.b",
			"mode": "managed",
			"type": "aws_s3_bucket",
			"provider_name": "registry.terraform.io/hashicorp/aws",
			"change": {"actions": ["create"], "before": null, "after": {"region": "eu-west-1"}}
		}]
	}`)

	a, err := terraform.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Resources[0].Metadata["region"] != "eu-west-1" {
		t.Errorf("Metadata[region] = %q, want eu-west-1", a.Resources[0].Metadata["region"])
	}
}

func TestParseRegionFallsBackToProviderDefault(t *testing.T) {
	data := []byte(`{
		"format_version": "1.2",
		"resource_changes": [{
			"address": "aws_s3_bucket.b",
			"mode": "managed",
			"type": "aws_s3_bucket",
			"provider_name": "registry.terraform.io/hashicorp/aws",
			"change": {"actions": ["create"], "before": null, "after": {}}
		}]
	}`)

	a, err := terraform.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Resources[0].Metadata["region"] != "us-east-1" {
		t.Errorf("Metadata[region] = %q, want default us-east-1 for an aws provider with no explicit region", a.Resources[0].Metadata["region"])
	}
}

func TestParseRegionFromProviderConfig(t *testing.T) {
	data := []byte(`{
		"format_version": "1.2",
		"resource_changes": [{
			"address": "aws_s3_bucket.b",
			"mode": "managed",
			"type": "aws_s3_bucket",
			"provider_name": "registry.terraform.io/hashicorp/aws",
			"change": {"actions": ["create"], "before": null, "after": {}}
		}],
		"configuration": {
			"provider_config": {
				"aws": {"expressions": {"region": {"constant_value": "ap-southeast-2"}}}
			}
		}
	}`)

	a, err := terraform.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Resources[0].Metadata["region"] != "ap-southeast-2" {
		t.Errorf("Metadata[region] = %q, want ap-southeast-2 from provider config", a.Resources[0].Metadata["region"])
	}
}

func TestParseAfterUnknownMarksPropertyUnresolved(t *testing.T) {
	data := []byte(`{
		"format_version": "1.2",
		"resource_changes": [{
			"address": "aws_instance.i",
			"mode": "managed",
			"type": "aws_instance",
			"provider_name": "registry.terraform.io/hashicorp/aws",
			"change": {
				"actions": ["create"],
				"before": null,
				"after": {"ami": "ami-123", "id": null},
				"after_unknown": {"id": true}
			}
		}]
	}`)

	a, err := terraform.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r := a.Resources[0]
	if !r.Properties["id"].Unresolved {
		t.Error("id property should be marked Unresolved via after_unknown")
	}
	if r.Properties["ami"].Unresolved {
		t.Error("ami property should not be marked Unresolved")
	}
	if r.Metadata["unresolved_properties"] != "1" {
		t.Errorf("Metadata[unresolved_properties] = %q, want \"1\"", r.Metadata["unresolved_properties"])
	}
}

func TestParseExplicitDependsOnCarriesThrough(t *testing.T) {
	data := []byte(`{
		"format_version": "1.2",
		"resource_changes": [
			{
				"address": "aws_s3_bucket.b",
				"mode": "managed",
				"type": "aws_s3_bucket",
				"provider_name": "registry.terraform.io/hashicorp/aws",
				"change": {"actions": ["create"], "before": null, "after": {}}
			},
			{
				"address": "aws_s3_bucket_policy.p",
				"mode": "managed",
				"type": "aws_s3_bucket_policy",
				"provider_name": "registry.terraform.io/hashicorp/aws",
				"change": {"actions": ["create"], "before": null, "after": {}}
			}
		],
		"configuration": {
			"root_module": {
				"resources": [
					{"address": "aws_s3_bucket_policy.p", "depends_on": ["aws_s3_bucket.b"]}
				]
			}
		}
	}`)

	a, err := terraform.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var policy *artifact.ArtifactResource
	for i := range a.Resources {
		if a.Resources[i].ID == "aws_s3_bucket_policy.p" {
			policy = &a.Resources[i]
		}
	}
	if policy == nil {
		t.Fatal("expected aws_s3_bucket_policy.p in resources")
	}
	if len(policy.DependsOn) != 1 || policy.DependsOn[0] != "aws_s3_bucket.b" {
		t.Errorf("DependsOn = %v, want [aws_s3_bucket.b]", policy.DependsOn)
	}
}

func TestParseImplicitDependencyFromAttributeReference(t *testing.T) {
	data := []byte(`{
		"format_version": "1.2",
		"resource_changes": [
			{
				"address": "aws_vpc.main",
				"mode": "managed",
				"type": "aws_vpc",
				"provider_name": "registry.terraform.io/hashicorp/aws",
				"change": {"actions": ["create"], "before": null, "after": {"id": "vpc-1"}}
			},
			{
				"address": "aws_subnet.s",
				"mode": "managed",
				"type": "aws_subnet",
				"provider_name": "registry.terraform.io/hashicorp/aws",
				"change": {"actions": ["create"], "before": null, "after": {"vpc_id": "aws_vpc.main"}}
			}
		]
	}`)

	a, err := terraform.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var subnet *artifact.ArtifactResource
	for i := range a.Resources {
		if a.Resources[i].ID == "aws_subnet.s" {
			subnet = &a.Resources[i]
		}
	}
	if subnet == nil {
		t.Fatal("expected aws_subnet.s in resources")
	}
	found := false
	for _, d := range subnet.DependsOn {
		if d == "aws_vpc.main" {
			found = true
		}
	}
	if !found {
		t.Errorf("DependsOn = %v, want to include aws_vpc.main (implicit reference)", subnet.DependsOn)
	}
}

func TestParseResourcesAreSortedByID(t *testing.T) {
	data := []byte(`{
		"format_version": "1.2",
		"resource_changes": [
			{
				"address": "aws_s3_bucket.zeta",
				"mode": "managed", "type": "aws_s3_bucket",
				"provider_name": "registry.terraform.io/hashicorp/aws",
				"change": {"actions": ["create"], "before": null, "after": {}}
			},
			{
				"address": "aws_s3_bucket.alpha",
				"mode": "managed", "type": "aws_s3_bucket",
				"provider_name": "registry.terraform.io/hashicorp/aws",
				"change": {"actions": ["create"], "before": null, "after": {}}
			}
		]
	}`)

	a, err := terraform.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Resources[0].ID != "aws_s3_bucket.alpha" || a.Resources[1].ID != "aws_s3_bucket.zeta" {
		t.Errorf("Resources not sorted by ID: got [%s, %s]", a.Resources[0].ID, a.Resources[1].ID)
	}
}

func TestParseMalformedJSONReturnsError(t *testing.T) {
	_, err := terraform.Parse([]byte(`{not valid json`))
	if err == nil {
		t.Error("Parse of malformed JSON should return an error")
	}
}

func TestParseNoOpActionForUnchangedResource(t *testing.T) {
	data := []byte(`{
		"format_version": "1.2",
		"resource_changes": [{
			"address": "aws_s3_bucket.b",
			"mode": "managed",
			"type": "aws_s3_bucket",
			"provider_name": "registry.terraform.io/hashicorp/aws",
			"change": {"actions": ["no-op"], "before": {"bucket": "x"}, "after": {"bucket": "x"}}
		}]
	}`)

	a, err := terraform.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Resources[0].ChangeAction != artifact.ActionNoOp {
		t.Errorf("ChangeAction = %v, want no-op", a.Resources[0].ChangeAction)
	}
}
