// Package normalize implements the Normalizer (spec §4.2): it collapses
// any parsed Artifact into a single NormalizedPlan with canonical
// resource type names, snake_case property keys, and a resolved
// references field per resource.
//
// Grounded on the teacher's billing/engine.go extraction helpers
// (ExtractAttribute/ExtractNestedAttribute walk a property bag the same
// shape this package normalizes into) and on decision/iac/graph.go's
// deterministic sorted iteration, generalized to the three source
// formats artifact.Parse already unified.
package normalize

import (
	"sort"
	"strings"

	"github.com/costpilot/costpilot/internal/artifact"
)

// NormalizedResource is one resource after type/property canonicalization.
type NormalizedResource struct {
	ID             string
	NormalizedType string
	RawType        string
	Properties     map[string]artifact.PropertyValue
	References     []string // resolved dependency ids, sorted
	ChangeAction   artifact.ChangeAction
	Metadata       map[string]string
	TypeMapped     bool // false if RawType had no entry in the mapping table
}

// NormalizedPlan is the Normalizer's output (spec §3): canonical,
// sorted-by-id resources ready for the Heuristics/Prediction stages.
type NormalizedPlan struct {
	Format    artifact.Format
	Resources []NormalizedResource
	Region    string
}

// Normalize converts a validated Artifact into a NormalizedPlan. Callers
// must call Artifact.Validate first; Normalize does not re-validate.
func Normalize(a *artifact.Artifact) *NormalizedPlan {
	plan := &NormalizedPlan{
		Format: a.Format,
		Region: a.Region,
	}

	for _, r := range a.Resources {
		normType, mapped := normalizeType(r.ResourceType)
		props := normalizeProperties(normType, r.Properties)

		refs := append([]string(nil), r.DependsOn...)
		sort.Strings(refs)

		plan.Resources = append(plan.Resources, NormalizedResource{
			ID:             r.ID,
			NormalizedType: normType,
			RawType:        r.ResourceType,
			Properties:     props,
			References:     refs,
			ChangeAction:   r.ChangeAction,
			Metadata:       r.Metadata,
			TypeMapped:     mapped,
		})
	}

	sort.Slice(plan.Resources, func(i, j int) bool { return plan.Resources[i].ID < plan.Resources[j].ID })

	return plan
}

// typeTable is the exhaustive CloudFormation-type -> normalized-type
// bijection for supported services (spec §4.2). Terraform types are
// already in the target form (aws_ec2_instance) and pass through
// unchanged via the fallback path in normalizeType.
var typeTable = map[string]string{
	"AWS::EC2::Instance":             "aws_ec2_instance",
	"AWS::EC2::Volume":               "aws_ebs_volume",
	"AWS::EC2::VPC":                  "aws_vpc",
	"AWS::EC2::NatGateway":           "aws_nat_gateway",
	"AWS::EC2::EIP":                  "aws_eip",
	"AWS::EC2::SecurityGroup":        "aws_security_group",
	"AWS::S3::Bucket":                "aws_s3_bucket",
	"AWS::RDS::DBInstance":           "aws_db_instance",
	"AWS::RDS::DBCluster":            "aws_rds_cluster",
	"AWS::Lambda::Function":          "aws_lambda_function",
	"AWS::ElasticLoadBalancingV2::LoadBalancer": "aws_lb",
	"AWS::DynamoDB::Table":           "aws_dynamodb_table",
	"AWS::ECS::Service":              "aws_ecs_service",
	"AWS::ECS::Cluster":              "aws_ecs_cluster",
	"AWS::EKS::Cluster":              "aws_eks_cluster",
	"AWS::ElastiCache::CacheCluster": "aws_elasticache_cluster",
	"AWS::CloudFront::Distribution":  "aws_cloudfront_distribution",
	"AWS::ApiGateway::RestApi":       "aws_api_gateway_rest_api",
	"AWS::SQS::Queue":                "aws_sqs_queue",
	"AWS::SNS::Topic":                "aws_sns_topic",
}

// propertyOverrides declares (normalized_type, source_key) -> target_key
// overrides that deviate from plain snake_case conversion (spec §4.2).
var propertyOverrides = map[string]map[string]string{
	"aws_ec2_instance": {
		"image_id":       "ami",
		"instance_type":  "instance_type",
	},
	"aws_ebs_volume": {
		"volume_type": "type",
	},
	"aws_db_instance": {
		"db_instance_class": "instance_class",
		"allocated_storage": "allocated_storage",
		"engine":            "engine",
	},
}

// normalizeType applies the deterministic bijection for recognized
// CloudFormation types; Terraform-style types (already snake_case,
// containing an underscore and no "::") pass through unchanged.
func normalizeType(rawType string) (normalized string, mapped bool) {
	if v, ok := typeTable[rawType]; ok {
		return v, true
	}
	if !strings.Contains(rawType, "::") {
		// Already in target form (Terraform), or an unrecognized bare
		// identifier — either way there is nothing further to transform.
		return rawType, strings.Contains(rawType, "_")
	}
	return camelToSnakeType(rawType), false
}

// camelToSnakeType converts an unmapped "AWS::Service::ThingName" address
// into "aws_service_thing_name": service lowercased, CamelCase split on
// case boundaries, all non-alphanumerics collapsed to underscores. Used
// as the fallback for types absent from the exhaustive table (spec §4.2:
// "unmapped types pass through untransformed and receive a confidence
// penalty" — the penalty is applied by the Prediction Engine keyed off
// NormalizedResource.TypeMapped, not by altering the string here, so the
// fallback still needs a usable lookup key).
func camelToSnakeType(rawType string) string {
	parts := strings.Split(rawType, "::")
	var b strings.Builder
	for i, part := range parts {
		if i > 0 {
			b.WriteByte('_')
		}
		b.WriteString(splitCamel(part))
	}
	return strings.ToLower(b.String())
}

func splitCamel(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && isUpper(r) && !isUpper(rune(s[i-1])) {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }

func normalizeProperties(normType string, props map[string]artifact.PropertyValue) map[string]artifact.PropertyValue {
	overrides := propertyOverrides[normType]
	out := make(map[string]artifact.PropertyValue, len(props))
	for k, v := range props {
		key := pascalToSnake(k)
		if overrides != nil {
			if target, ok := overrides[key]; ok {
				key = target
			}
		}
		out[key] = v
	}
	return out
}

// pascalToSnake converts PascalCase or camelCase keys to snake_case; keys
// already snake_case (Terraform source) pass through unchanged.
func pascalToSnake(s string) string {
	if strings.Contains(s, "_") || s == strings.ToLower(s) {
		return s
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && isUpper(r) && !(i > 0 && isUpper(rune(s[i-1]))) {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
