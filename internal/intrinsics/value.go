// Package intrinsics implements the typed value lattice that intrinsic
// functions (Ref, GetAtt, Sub, Join) resolve into during artifact
// parsing (spec §9 redesign flag: "promote [string interpolation] to a
// small evaluator with a typed value lattice").
package intrinsics

import "strings"

// Kind discriminates the value lattice. Exactly one of the typed fields
// on Value is meaningful for a given Kind.
type Kind int

const (
	KindLiteral Kind = iota
	KindRef
	KindGetAtt
	KindJoin
	KindUnresolved
)

// Value is a node in the intrinsic-function value lattice. It is either
// fully resolved (Literal), a reference that depends on another
// resource or parameter (Ref, GetAtt), a composition of sub-values
// (Join), or explicitly Unresolved when it cannot be evaluated at parse
// time (confidence penalty downstream).
type Value struct {
	Kind Kind

	Literal string // KindLiteral

	RefID string // KindRef: parameter or resource id

	GetAttID   string // KindGetAtt: resource id
	GetAttProp string // KindGetAtt: attribute name

	JoinSep   string  // KindJoin
	JoinParts []Value // KindJoin

	UnresolvedReason string // KindUnresolved
}

func Lit(s string) Value { return Value{Kind: KindLiteral, Literal: s} }

func Ref(id string) Value { return Value{Kind: KindRef, RefID: id} }

func GetAtt(id, attr string) Value {
	return Value{Kind: KindGetAtt, GetAttID: id, GetAttProp: attr}
}

func Join(sep string, parts ...Value) Value {
	return Value{Kind: KindJoin, JoinSep: sep, JoinParts: parts}
}

func Unresolved(reason string) Value {
	return Value{Kind: KindUnresolved, UnresolvedReason: reason}
}

// IsResolved reports whether the value is fully known at parse time.
func (v Value) IsResolved() bool {
	switch v.Kind {
	case KindLiteral:
		return true
	case KindJoin:
		for _, p := range v.JoinParts {
			if !p.IsResolved() {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Placeholder renders the value the way the parser embeds it into a
// property when it cannot be fully substituted, e.g. "${aws_vpc.main.id}".
func (v Value) Placeholder() string {
	switch v.Kind {
	case KindLiteral:
		return v.Literal
	case KindRef:
		return "${" + v.RefID + "}"
	case KindGetAtt:
		return "${" + v.GetAttID + "." + v.GetAttProp + "}"
	case KindJoin:
		parts := make([]string, len(v.JoinParts))
		for i, p := range v.JoinParts {
			parts[i] = p.Placeholder()
		}
		return strings.Join(parts, v.JoinSep)
	default:
		return "${unresolved}"
	}
}

// DependsOn returns the set of resource/parameter ids this value
// references, used by the parser to build depends_on edges (e.g. for
// Fn::GetAtt, which implies a dependency edge from the containing
// resource to the referenced one per spec §4.1).
func (v Value) DependsOn() []string {
	switch v.Kind {
	case KindRef:
		return []string{v.RefID}
	case KindGetAtt:
		return []string{v.GetAttID}
	case KindJoin:
		var out []string
		for _, p := range v.JoinParts {
			out = append(out, p.DependsOn()...)
		}
		return out
	default:
		return nil
	}
}

// Resolve attempts full substitution given a parameter-default lookup.
// Literals resolve immediately; Refs resolve if the named parameter has
// a declared default; Join resolves only if every part resolves
// (otherwise the whole expression remains a placeholder, per §4.1).
func Resolve(v Value, paramDefaults map[string]string) Value {
	switch v.Kind {
	case KindLiteral:
		return v
	case KindRef:
		if def, ok := paramDefaults[v.RefID]; ok {
			return Lit(def)
		}
		return v
	case KindJoin:
		resolvedParts := make([]Value, len(v.JoinParts))
		allResolved := true
		for i, p := range v.JoinParts {
			rp := Resolve(p, paramDefaults)
			resolvedParts[i] = rp
			if rp.Kind != KindLiteral {
				allResolved = false
			}
		}
		if allResolved {
			lits := make([]string, len(resolvedParts))
			for i, p := range resolvedParts {
				lits[i] = p.Literal
			}
			return Lit(strings.Join(lits, v.JoinSep))
		}
		return Value{Kind: KindJoin, JoinSep: v.JoinSep, JoinParts: resolvedParts}
	default:
		return v
	}
}
