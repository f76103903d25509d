// Package cdk parses an AWS CDK cloud assembly (cdk.out/manifest.json
// plus its synthesized per-stack CloudFormation templates) into a
// canonical artifact.Artifact (spec §4.1).
//
// New code (the teacher never handles CDK), grounded on the observation
// that a CDK cloud assembly's artifacts are, per stack, ordinary
// CloudFormation templates — so this package reads manifest.json to find
// the stack template files and then delegates entirely to
// internal/artifact/cloudformation, adding only the CDK-specific
// metadata (aws:cdk:path, construct tree, asset references) the spec
// asks be preserved.
package cdk

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/costpilot/costpilot/internal/artifact"
	"github.com/costpilot/costpilot/internal/artifact/cloudformation"
)

// TemplateLoader fetches the raw bytes of a synthesized template file
// named in the manifest (relative to the cloud assembly directory). The
// artifact package has no filesystem access of its own; cmd/costpilot
// supplies the loader bound to the actual cdk.out directory.
type TemplateLoader func(relPath string) ([]byte, error)

// Parse decodes a cdk.out/manifest.json document, synthesizes one
// Artifact per CloudFormation stack artifact it lists, and merges them
// into a single Artifact (stacks rarely share resource ids, and when
// they do it is a genuine conflict the Validate step will catch).
func Parse(manifest []byte, loadTemplate TemplateLoader) (*artifact.Artifact, error) {
	var raw rawManifest
	if err := json.Unmarshal(manifest, &raw); err != nil {
		return nil, fmt.Errorf("cdk: malformed manifest.json: %w", err)
	}

	names := make([]string, 0, len(raw.Artifacts))
	for name := range raw.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)

	merged := &artifact.Artifact{
		Format:     artifact.FormatCDK,
		Parameters: make(map[string]artifact.Parameter),
		Outputs:    make(map[string]string),
	}

	seenIDs := make(map[string]bool)

	for _, name := range names {
		a := raw.Artifacts[name]
		if a.Type != "aws:cloudformation:stack" {
			continue // asset bundles, nested-stack placeholders, tree.json — not resource-bearing
		}
		if a.Properties.TemplateFile == "" {
			continue
		}

		data, err := loadTemplate(a.Properties.TemplateFile)
		if err != nil {
			return nil, fmt.Errorf("cdk: stack %q: loading template %s: %w", name, a.Properties.TemplateFile, err)
		}

		var stack *artifact.Artifact
		switch filepath.Ext(a.Properties.TemplateFile) {
		case ".yaml", ".yml":
			stack, err = cloudformation.ParseYAML(data)
		default:
			stack, err = cloudformation.ParseJSON(data)
		}
		if err != nil {
			return nil, fmt.Errorf("cdk: stack %q: %w", name, err)
		}

		for _, r := range stack.Resources {
			if r.Metadata == nil {
				r.Metadata = map[string]string{}
			}
			r.Metadata["aws:cdk:stack"] = name
			if path, ok := a.Metadata[r.ID]; ok && len(path) > 0 {
				r.Metadata["aws:cdk:path"] = path[0].Data
			}
			if seenIDs[r.ID] {
				return nil, fmt.Errorf("cdk: resource id %q appears in more than one stack", r.ID)
			}
			seenIDs[r.ID] = true
			merged.Resources = append(merged.Resources, r)
		}
		for k, v := range stack.Parameters {
			merged.Parameters[k] = v
		}
		for k, v := range stack.Outputs {
			merged.Outputs[k] = v
		}
		if merged.FormatVersion == "" {
			merged.FormatVersion = stack.FormatVersion
		}
		if merged.StackName == "" {
			merged.StackName = name
		}
	}

	sort.Slice(merged.Resources, func(i, j int) bool { return merged.Resources[i].ID < merged.Resources[j].ID })

	return merged, nil
}

// =============================================================================
// manifest.json structures — only the fields costpilot consumes.
// =============================================================================

type rawManifest struct {
	Version   string                  `json:"version"`
	Artifacts map[string]rawArtifact `json:"artifacts"`
}

type rawArtifact struct {
	Type       string                        `json:"type"`
	Properties rawArtifactProperties         `json:"properties"`
	Metadata   map[string][]rawMetadataEntry `json:"metadata"`
}

type rawArtifactProperties struct {
	TemplateFile string `json:"templateFile"`
}

type rawMetadataEntry struct {
	Type string `json:"type"`
	Data string `json:"data"`
}
