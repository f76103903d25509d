// Package cloudformation parses CloudFormation templates (JSON or YAML)
// into a canonical artifact.Artifact (spec §4.1).
//
// New code (the teacher never parses CloudFormation), grounded on the
// teacher's encoding/json-into-tagged-structs idiom for the JSON path and
// on gopkg.in/yaml.v3 (the dominant YAML library across the retrieved
// example pack) for YAML, using yaml.Node to intercept CloudFormation's
// short-form intrinsic tags (!Ref, !GetAtt, !Sub, !Join) during decode —
// see DESIGN.md for why yaml.v3 was chosen over sigs.k8s.io/yaml.
package cloudformation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/costpilot/costpilot/internal/artifact"
	"github.com/costpilot/costpilot/internal/intrinsics"
)

const supportedFormatVersion = "2010-09-09"

// template is the intermediate, format-agnostic representation both the
// JSON and YAML decoders populate. Keeping this separate from
// artifact.Artifact lets JSON and YAML converge on identical output
// before the shared build() step runs, satisfying spec §4.1's "JSON and
// YAML must produce byte-identical normalized artifacts" requirement.
type template struct {
	FormatVersion string
	Parameters    map[string]templateParameter
	Resources     map[string]templateResource
	Outputs       map[string]intrinsics.Value
}

type templateParameter struct {
	Type       string
	Default    string
	HasDefault bool
}

type templateResource struct {
	Type       string
	Properties map[string]intrinsics.Value
	DependsOn  []string
	Condition  string
}

// ParseJSON decodes a CloudFormation JSON template.
func ParseJSON(data []byte) (*artifact.Artifact, error) {
	var raw rawJSONTemplate
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("cloudformation: malformed JSON template: %w", err)
	}
	tpl, err := fromRawJSON(&raw)
	if err != nil {
		return nil, err
	}
	return build(tpl)
}

// ParseYAML decodes a CloudFormation YAML template, resolving short-form
// intrinsic tags during the node walk.
func ParseYAML(data []byte) (*artifact.Artifact, error) {
	var root yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("cloudformation: malformed YAML template: %w", err)
	}
	tpl, err := fromYAMLNode(&root)
	if err != nil {
		return nil, err
	}
	return build(tpl)
}

func build(tpl *template) (*artifact.Artifact, error) {
	if tpl.FormatVersion == "" {
		tpl.FormatVersion = supportedFormatVersion
	}
	if tpl.FormatVersion != supportedFormatVersion {
		return nil, fmt.Errorf("cloudformation: unsupported AWSTemplateFormatVersion %q", tpl.FormatVersion)
	}

	a := &artifact.Artifact{
		Format:        artifact.FormatCloudFormation,
		FormatVersion: tpl.FormatVersion,
		Parameters:    make(map[string]artifact.Parameter, len(tpl.Parameters)),
		Outputs:       make(map[string]string, len(tpl.Outputs)),
	}

	paramDefaults := make(map[string]string)
	for name, p := range tpl.Parameters {
		a.Parameters[name] = artifact.Parameter{Type: p.Type, Default: p.Default, HasDefault: p.HasDefault}
		if p.HasDefault {
			paramDefaults[name] = p.Default
		}
	}

	ids := make([]string, 0, len(tpl.Resources))
	for id := range tpl.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		r := tpl.Resources[id]
		if r.Type == "" {
			return nil, fmt.Errorf("cloudformation: resource %q missing required field Type", id)
		}

		props := make(map[string]artifact.PropertyValue, len(r.Properties))
		depSet := make(map[string]bool)
		for _, d := range r.DependsOn {
			depSet[d] = true
		}

		propKeys := make([]string, 0, len(r.Properties))
		for k := range r.Properties {
			propKeys = append(propKeys, k)
		}
		sort.Strings(propKeys)

		for _, k := range propKeys {
			v := intrinsics.Resolve(r.Properties[k], paramDefaults)
			for _, dep := range v.DependsOn() {
				if dep != id {
					depSet[dep] = true
				}
			}
			props[k] = valueToProperty(v)
		}

		deps := make([]string, 0, len(depSet))
		for d := range depSet {
			deps = append(deps, d)
		}
		sort.Strings(deps)

		meta := map[string]string{}
		if r.Condition != "" {
			meta["condition"] = r.Condition
		}

		a.Resources = append(a.Resources, artifact.ArtifactResource{
			ID:           id,
			ResourceType: r.Type,
			Properties:   props,
			DependsOn:    deps,
			ChangeAction: artifact.ActionCreate, // CloudFormation templates describe desired state, not a diff
			Metadata:     meta,
		})
	}

	for name, v := range tpl.Outputs {
		resolved := intrinsics.Resolve(v, paramDefaults)
		a.Outputs[name] = resolved.Placeholder()
	}

	return a, nil
}

func valueToProperty(v intrinsics.Value) artifact.PropertyValue {
	switch v.Kind {
	case intrinsics.KindLiteral:
		return artifact.PropertyValue{Scalar: v.Literal}
	default:
		return artifact.PropertyValue{Unresolved: !v.IsResolved(), Expression: v.Placeholder()}
	}
}

// =============================================================================
// JSON decoding path
// =============================================================================

type rawJSONTemplate struct {
	AWSTemplateFormatVersion string                        `json:"AWSTemplateFormatVersion"`
	Parameters               map[string]rawJSONParameter   `json:"Parameters"`
	Resources                map[string]rawJSONResource    `json:"Resources"`
	Outputs                  map[string]rawJSONOutput      `json:"Outputs"`
}

type rawJSONParameter struct {
	Type    string      `json:"Type"`
	Default interface{} `json:"Default"`
}

type rawJSONResource struct {
	Type       string                 `json:"Type"`
	Properties map[string]interface{} `json:"Properties"`
	DependsOn  json.RawMessage        `json:"DependsOn"`
	Condition  string                 `json:"Condition"`
}

type rawJSONOutput struct {
	Value interface{} `json:"Value"`
}

func fromRawJSON(raw *rawJSONTemplate) (*template, error) {
	tpl := &template{
		FormatVersion: raw.AWSTemplateFormatVersion,
		Parameters:    make(map[string]templateParameter, len(raw.Parameters)),
		Resources:     make(map[string]templateResource, len(raw.Resources)),
		Outputs:       make(map[string]intrinsics.Value, len(raw.Outputs)),
	}

	for name, p := range raw.Parameters {
		tp := templateParameter{Type: p.Type}
		if p.Default != nil {
			tp.Default = fmt.Sprintf("%v", p.Default)
			tp.HasDefault = true
		}
		tpl.Parameters[name] = tp
	}

	for id, r := range raw.Resources {
		dependsOn, err := decodeDependsOn(r.DependsOn)
		if err != nil {
			return nil, fmt.Errorf("cloudformation: resource %q: %w", id, err)
		}
		props := make(map[string]intrinsics.Value, len(r.Properties))
		for k, v := range r.Properties {
			props[k] = jsonValueToIntrinsic(v)
		}
		tpl.Resources[id] = templateResource{
			Type:       r.Type,
			Properties: props,
			DependsOn:  dependsOn,
			Condition:  r.Condition,
		}
	}

	for name, o := range raw.Outputs {
		tpl.Outputs[name] = jsonValueToIntrinsic(o.Value)
	}

	return tpl, nil
}

func decodeDependsOn(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	return nil, fmt.Errorf("DependsOn must be a string or list of strings")
}

// jsonValueToIntrinsic converts a decoded JSON value, recognizing the
// long-form intrinsic function objects ({"Ref": "X"}, {"Fn::GetAtt":
// [...]}, {"Fn::Sub": ...}, {"Fn::Join": [sep, [...]]}).
func jsonValueToIntrinsic(v interface{}) intrinsics.Value {
	m, ok := v.(map[string]interface{})
	if !ok {
		if v == nil {
			return intrinsics.Lit("")
		}
		return intrinsics.Lit(fmt.Sprintf("%v", v))
	}

	if len(m) == 1 {
		for k, arg := range m {
			switch k {
			case "Ref":
				if s, ok := arg.(string); ok {
					return intrinsics.Ref(s)
				}
			case "Fn::GetAtt":
				if parts := toStringList(arg); len(parts) == 2 {
					return intrinsics.GetAtt(parts[0], parts[1])
				}
				if s, ok := arg.(string); ok {
					if idx := strings.Index(s, "."); idx > 0 {
						return intrinsics.GetAtt(s[:idx], s[idx+1:])
					}
				}
			case "Fn::Join":
				if pair, ok := arg.([]interface{}); ok && len(pair) == 2 {
					sep, _ := pair[0].(string)
					if items, ok := pair[1].([]interface{}); ok {
						parts := make([]intrinsics.Value, len(items))
						for i, it := range items {
							parts[i] = jsonValueToIntrinsic(it)
						}
						return intrinsics.Join(sep, parts...)
					}
				}
			case "Fn::Sub":
				if s, ok := arg.(string); ok {
					return intrinsics.Lit(s) // literal unless it references unresolved vars; conservative
				}
			}
		}
		return intrinsics.Unresolved("unsupported intrinsic function")
	}

	return intrinsics.Unresolved("nested mapping")
}

func toStringList(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// =============================================================================
// YAML decoding path — intercepts short-form tags via yaml.Node
// =============================================================================

func fromYAMLNode(root *yaml.Node) (*template, error) {
	doc := root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("cloudformation: template root is not a mapping")
	}

	tpl := &template{
		Parameters: make(map[string]templateParameter),
		Resources:  make(map[string]templateResource),
		Outputs:    make(map[string]intrinsics.Value),
	}

	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i].Value
		val := doc.Content[i+1]
		switch key {
		case "AWSTemplateFormatVersion":
			tpl.FormatVersion = val.Value
		case "Parameters":
			for j := 0; j+1 < len(val.Content); j += 2 {
				name := val.Content[j].Value
				tpl.Parameters[name] = yamlParameter(val.Content[j+1])
			}
		case "Resources":
			for j := 0; j+1 < len(val.Content); j += 2 {
				id := val.Content[j].Value
				r, err := yamlResource(val.Content[j+1])
				if err != nil {
					return nil, fmt.Errorf("cloudformation: resource %q: %w", id, err)
				}
				tpl.Resources[id] = r
			}
		case "Outputs":
			for j := 0; j+1 < len(val.Content); j += 2 {
				name := val.Content[j].Value
				tpl.Outputs[name] = yamlOutputValue(val.Content[j+1])
			}
		}
	}

	return tpl, nil
}

func yamlParameter(n *yaml.Node) templateParameter {
	p := templateParameter{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		val := n.Content[i+1]
		switch key {
		case "Type":
			p.Type = val.Value
		case "Default":
			p.Default = val.Value
			p.HasDefault = true
		}
	}
	return p
}

func yamlResource(n *yaml.Node) (templateResource, error) {
	r := templateResource{Properties: make(map[string]intrinsics.Value)}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		val := n.Content[i+1]
		switch key {
		case "Type":
			r.Type = val.Value
		case "Condition":
			r.Condition = val.Value
		case "DependsOn":
			switch val.Kind {
			case yaml.ScalarNode:
				r.DependsOn = []string{val.Value}
			case yaml.SequenceNode:
				for _, c := range val.Content {
					r.DependsOn = append(r.DependsOn, c.Value)
				}
			}
		case "Properties":
			for j := 0; j+1 < len(val.Content); j += 2 {
				propName := val.Content[j].Value
				r.Properties[propName] = yamlOutputValue(val.Content[j+1])
			}
		}
	}
	return r, nil
}

// yamlOutputValue converts a yaml.Node into the intrinsic value lattice,
// recognizing both short-form tags (!Ref, !GetAtt, !Sub, !Join) and the
// long-form mapping equivalents.
func yamlOutputValue(n *yaml.Node) intrinsics.Value {
	if n == nil {
		return intrinsics.Lit("")
	}

	switch n.Tag {
	case "!Ref":
		return intrinsics.Ref(n.Value)
	case "!GetAtt":
		s := n.Value
		if n.Kind == yaml.SequenceNode && len(n.Content) == 2 {
			return intrinsics.GetAtt(n.Content[0].Value, n.Content[1].Value)
		}
		if idx := strings.Index(s, "."); idx > 0 {
			return intrinsics.GetAtt(s[:idx], s[idx+1:])
		}
		return intrinsics.Unresolved("malformed !GetAtt")
	case "!Sub":
		return intrinsics.Lit(n.Value)
	case "!Join":
		if n.Kind == yaml.SequenceNode && len(n.Content) == 2 {
			sep := n.Content[0].Value
			items := n.Content[1]
			parts := make([]intrinsics.Value, 0, len(items.Content))
			for _, c := range items.Content {
				parts = append(parts, yamlOutputValue(c))
			}
			return intrinsics.Join(sep, parts...)
		}
		return intrinsics.Unresolved("malformed !Join")
	}

	switch n.Kind {
	case yaml.ScalarNode:
		return intrinsics.Lit(n.Value)
	case yaml.MappingNode:
		// Long-form intrinsic mapping, e.g. Ref:/Fn::GetAtt:
		if len(n.Content) == 2 {
			key := n.Content[0].Value
			val := n.Content[1]
			switch key {
			case "Ref":
				return intrinsics.Ref(val.Value)
			case "Fn::GetAtt":
				if val.Kind == yaml.SequenceNode && len(val.Content) == 2 {
					return intrinsics.GetAtt(val.Content[0].Value, val.Content[1].Value)
				}
			case "Fn::Sub":
				return intrinsics.Lit(val.Value)
			case "Fn::Join":
				if val.Kind == yaml.SequenceNode && len(val.Content) == 2 {
					sep := val.Content[0].Value
					parts := make([]intrinsics.Value, 0, len(val.Content[1].Content))
					for _, c := range val.Content[1].Content {
						parts = append(parts, yamlOutputValue(c))
					}
					return intrinsics.Join(sep, parts...)
				}
			}
		}
		return intrinsics.Unresolved("nested mapping")
	case yaml.SequenceNode:
		return intrinsics.Unresolved("bare sequence value")
	default:
		return intrinsics.Unresolved("unsupported node kind")
	}
}
