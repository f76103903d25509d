// Package terraform parses `terraform show -json` plan output into a
// canonical artifact.Artifact (spec §4.1, §6).
//
// Grounded directly on the teacher's decision/iac/parser.go: the raw
// JSON structs and determineAction/resolveRegion logic are carried over
// almost verbatim, since the teacher's Terraform-plan-JSON parsing
// already matches spec §6's consumed field list field-for-field. What
// changes is the output type (artifact.Artifact, not the teacher's
// ParsedPlan/ResourceNode) and the addition of the after_unknown
// sentinel handling spec §4.1 requires.
package terraform

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/costpilot/costpilot/internal/artifact"
)

// Parse decodes Terraform plan JSON bytes into an Artifact.
func Parse(data []byte) (*artifact.Artifact, error) {
	var raw planJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("terraform: malformed plan JSON: %w", err)
	}
	return transform(&raw)
}

func transform(raw *planJSON) (*artifact.Artifact, error) {
	providers := make(map[string]providerConfig, len(raw.Configuration.ProviderConfig))
	for name, cfg := range raw.Configuration.ProviderConfig {
		providers[name] = parseProviderConfig(cfg)
	}

	dependsOnByAddr := make(map[string][]string, len(raw.Configuration.RootModule.Resources))
	for _, cr := range raw.Configuration.RootModule.Resources {
		dependsOnByAddr[cr.Address] = cr.DependsOn
	}

	a := &artifact.Artifact{
		Format:        artifact.FormatTerraform,
		FormatVersion: raw.FormatVersion,
		Resources:     make([]artifact.ArtifactResource, 0, len(raw.ResourceChanges)),
		Parameters:    make(map[string]artifact.Parameter),
		Outputs:       make(map[string]string),
	}

	for name, v := range raw.Variables {
		a.Parameters[name] = artifact.Parameter{
			Type:       "any",
			Default:    fmt.Sprintf("%v", v),
			HasDefault: true,
		}
	}

	addressLookup := buildAddressLookup(raw.ResourceChanges)

	for _, rc := range raw.ResourceChanges {
		if rc.Mode == "data" {
			continue // data sources carry no cost, excluded per teacher's GraphBuilder default
		}

		action := determineAction(rc.Change.Actions)
		props, unresolvedCount := convertProperties(rc.Change.After, rc.Change.AfterUnknown)
		if action == artifact.ActionDelete || props == nil {
			props, unresolvedCount = convertProperties(rc.Change.Before, nil)
		}

		explicit := dependsOnByAddr[rc.Address]
		implicit := findImplicitDependencies(rc.Change.After, addressLookup, rc.Address)
		deps := mergeDeps(explicit, implicit)

		meta := map[string]string{}
		if region := resolveRegion(rc, providers); region != "" {
			meta["region"] = region
			if a.Region == "" {
				a.Region = region
			}
		}
		if unresolvedCount > 0 {
			meta["unresolved_properties"] = fmt.Sprintf("%d", unresolvedCount)
		}

		a.Resources = append(a.Resources, artifact.ArtifactResource{
			ID:           rc.Address,
			ResourceType: rc.Type,
			Properties:   props,
			DependsOn:    deps,
			ChangeAction: action,
			Metadata:     meta,
		})
	}

	for name, out := range raw.PlannedValues.Outputs {
		a.Outputs[name] = fmt.Sprintf("%v", out.Value)
	}

	// Deterministic ordering is the Normalizer's job (spec §4.2), but
	// sorting here too means a pre-normalize consumer (e.g. validation
	// error messages) also sees stable order.
	sort.Slice(a.Resources, func(i, j int) bool { return a.Resources[i].ID < a.Resources[j].ID })

	return a, nil
}

func convertProperties(m map[string]interface{}, unknown map[string]interface{}) (map[string]artifact.PropertyValue, int) {
	if m == nil {
		return nil, 0
	}
	out := make(map[string]artifact.PropertyValue, len(m))
	unresolvedCount := 0
	for k, v := range m {
		if isUnknown(unknown, k) {
			out[k] = artifact.PropertyValue{Unresolved: true, Expression: "${computed}"}
			unresolvedCount++
			continue
		}
		out[k] = toPropertyValue(v)
	}
	return out, unresolvedCount
}

func isUnknown(unknown map[string]interface{}, key string) bool {
	if unknown == nil {
		return false
	}
	v, ok := unknown[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func toPropertyValue(v interface{}) artifact.PropertyValue {
	switch val := v.(type) {
	case map[string]interface{}:
		m := make(map[string]artifact.PropertyValue, len(val))
		for k, vv := range val {
			m[k] = toPropertyValue(vv)
		}
		return artifact.PropertyValue{Mapping: m}
	case []interface{}:
		seq := make([]artifact.PropertyValue, len(val))
		for i, vv := range val {
			seq[i] = toPropertyValue(vv)
		}
		return artifact.PropertyValue{Sequence: seq}
	default:
		return artifact.PropertyValue{Scalar: val}
	}
}

// determineAction maps Terraform's actions array to a ChangeAction,
// carried over verbatim from the teacher's decision/iac/parser.go.
func determineAction(actions []string) artifact.ChangeAction {
	if len(actions) == 0 {
		return artifact.ActionNoOp
	}
	hasCreate := contains(actions, "create")
	hasDelete := contains(actions, "delete")
	hasUpdate := contains(actions, "update")

	switch {
	case hasCreate && hasDelete:
		return artifact.ActionReplace
	case hasCreate:
		return artifact.ActionCreate
	case hasDelete:
		return artifact.ActionDelete
	case hasUpdate:
		return artifact.ActionUpdate
	default:
		return artifact.ActionNoOp
	}
}

func contains(s []string, item string) bool {
	for _, v := range s {
		if v == item {
			return true
		}
	}
	return false
}

type providerConfig struct {
	Region string
}

func parseProviderConfig(cfg rawProviderConfig) providerConfig {
	pc := providerConfig{}
	if expr, ok := cfg.Expressions["region"]; ok {
		if cv, ok := expr["constant_value"]; ok {
			if s, ok := cv.(string); ok {
				pc.Region = s
			}
		}
	}
	return pc
}

// resolveRegion is carried over from the teacher's decision/iac/parser.go
// resolveRegion, generalized to read directly off the raw change's After
// map and provider config.
func resolveRegion(rc rawResourceChange, providers map[string]providerConfig) string {
	attrs := rc.Change.After
	if attrs == nil {
		attrs = rc.Change.Before
	}
	if attrs != nil {
		if region, ok := attrs["region"].(string); ok && region != "" {
			return region
		}
		if az, ok := attrs["availability_zone"].(string); ok && len(az) > 1 {
			return az[:len(az)-1]
		}
		if loc, ok := attrs["location"].(string); ok && loc != "" {
			return loc
		}
	}
	provider := extractProviderFromAddress(rc.ProviderName)
	if pc, ok := providers[provider]; ok && pc.Region != "" {
		return pc.Region
	}
	switch provider {
	case "aws":
		return "us-east-1"
	case "google", "gcp":
		return "us-central1"
	case "azurerm", "azure":
		return "eastus"
	}
	return ""
}

func extractProviderFromAddress(providerName string) string {
	parts := strings.Split(providerName, "/")
	if len(parts) > 0 {
		return parts[len(parts)-1]
	}
	return providerName
}

// buildAddressLookup indexes both full addresses and short type.name
// forms, as the teacher's GraphBuilder.resolveImplicitDependencies does.
func buildAddressLookup(changes []rawResourceChange) map[string]string {
	lookup := make(map[string]string, len(changes)*2)
	for _, rc := range changes {
		lookup[rc.Address] = rc.Address
		parts := strings.Split(rc.Address, ".")
		if len(parts) >= 2 {
			short := parts[len(parts)-2] + "." + parts[len(parts)-1]
			lookup[short] = rc.Address
		}
	}
	return lookup
}

// findImplicitDependencies scans a resource's planned attributes for
// substrings matching another resource's address, the same heuristic
// the teacher's GraphBuilder.findAttributeReferences uses.
func findImplicitDependencies(attrs map[string]interface{}, lookup map[string]string, self string) []string {
	found := make(map[string]bool)
	var scan func(v interface{})
	scan = func(v interface{}) {
		switch val := v.(type) {
		case string:
			for partial, full := range lookup {
				if full != self && strings.Contains(val, partial) {
					found[full] = true
				}
			}
		case map[string]interface{}:
			for _, vv := range val {
				scan(vv)
			}
		case []interface{}:
			for _, vv := range val {
				scan(vv)
			}
		}
	}
	for _, v := range attrs {
		scan(v)
	}
	out := make([]string, 0, len(found))
	for k := range found {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func mergeDeps(explicit, implicit []string) []string {
	set := make(map[string]bool, len(explicit)+len(implicit))
	for _, d := range explicit {
		set[d] = true
	}
	for _, d := range implicit {
		set[d] = true
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// RAW TERRAFORM JSON STRUCTURES — field set matches spec §6 exactly.
// =============================================================================

type planJSON struct {
	FormatVersion    string                 `json:"format_version"`
	TerraformVersion string                 `json:"terraform_version"`
	Variables        map[string]interface{} `json:"variables"`
	PlannedValues    rawPlannedValues       `json:"planned_values"`
	ResourceChanges  []rawResourceChange    `json:"resource_changes"`
	Configuration    rawConfiguration       `json:"configuration"`
}

type rawPlannedValues struct {
	Outputs map[string]rawOutput `json:"outputs"`
}

type rawOutput struct {
	Value     interface{} `json:"value"`
	Sensitive bool        `json:"sensitive"`
}

type rawResourceChange struct {
	Address      string      `json:"address"`
	Mode         string      `json:"mode"`
	Type         string      `json:"type"`
	Name         string      `json:"name"`
	ProviderName string      `json:"provider_name"`
	Change       rawChange   `json:"change"`
}

type rawChange struct {
	Actions      []string               `json:"actions"`
	Before       map[string]interface{} `json:"before"`
	After        map[string]interface{} `json:"after"`
	AfterUnknown map[string]interface{} `json:"after_unknown"`
}

type rawConfiguration struct {
	ProviderConfig map[string]rawProviderConfig `json:"provider_config"`
	RootModule     rawConfigModule              `json:"root_module"`
}

type rawProviderConfig struct {
	Alias       string                             `json:"alias,omitempty"`
	Expressions map[string]map[string]interface{} `json:"expressions"`
}

type rawConfigModule struct {
	Resources []rawConfigResource `json:"resources"`
}

type rawConfigResource struct {
	Address   string   `json:"address"`
	DependsOn []string `json:"depends_on,omitempty"`
}
