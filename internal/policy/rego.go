package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// RegoPolicy is one user-supplied custom-policy module, loaded from a
// local file at the config boundary (spec §4.7's "custom" category of
// rule is expressed as Rego rather than the Condition tree when a
// declarative condition cannot express it).
//
// Grounded directly on the teacher's internal/policy/evaluator.go
// Evaluator.evalQuery: rego.New(rego.Query, rego.Module, rego.Input)
// then Eval(ctx), with NO rego.Store or remote bundle service
// configured — this is exactly the local-only invocation shape that
// keeps OPA's dependency inclusion from tripping the zero-network
// discipline (spec §5): the teacher's sibling evaluateOPA, which POSTs
// to a configured opaEndpoint, is not reused — see DESIGN.md.
type RegoPolicy struct {
	Name    string
	Module  string // Rego source
	Query   string // e.g. "data.costpilot.deny"
}

// EvaluateRego runs one Rego module's deny query against a JSON-shaped
// input document and returns the string messages it produced. A query
// that matches nothing yields zero messages, not an error.
func EvaluateRego(ctx context.Context, p RegoPolicy, input map[string]interface{}) ([]string, error) {
	r := rego.New(
		rego.Query(p.Query),
		rego.Module(p.Name+".rego", p.Module),
		rego.Input(input),
	)

	rs, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: rego evaluation failed for %q: %w", p.Name, err)
	}

	var messages []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			values, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, v := range values {
				if s, ok := v.(string); ok {
					messages = append(messages, s)
				}
			}
		}
	}
	return messages, nil
}

// ValidateRego compiles a Rego module without evaluating it, used at
// config-load time to fail fast on a syntax error rather than surfacing
// it mid-evaluation (grounded on the teacher's Evaluator.ValidatePolicies).
func ValidateRego(ctx context.Context, name, module string) error {
	r := rego.New(rego.Module(name+".rego", module))
	if _, err := r.PrepareForEval(ctx); err != nil {
		return fmt.Errorf("policy: invalid rego module %q: %w", name, err)
	}
	return nil
}
