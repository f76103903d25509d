// Package predict implements the Prediction Engine (spec §4.4): for each
// normalized resource it produces a (p10, p50, p90, p99) monthly cost
// interval with a confidence score and a provenance record.
//
// Grounded on decision/estimation/engine.go's resolution-tier structure
// and decision/billing/engine.go's per-resource dispatch, replaced with
// the closed Family sum type spec §9's redesign flag calls for (in place
// of the teacher's open map[string]ResourceMapper registry).
package predict

import "strings"

// Family is the closed set of resource shapes the cold-start fallback
// understands (spec §4.4 tier 4: "cold-start defaults per family").
type Family int

const (
	FamilyUnknown Family = iota
	FamilyCompute
	FamilyStorage
	FamilyNetwork
	FamilyDatabase
	FamilyFunction
)

func (f Family) String() string {
	switch f {
	case FamilyCompute:
		return "compute"
	case FamilyStorage:
		return "storage"
	case FamilyNetwork:
		return "network"
	case FamilyDatabase:
		return "database"
	case FamilyFunction:
		return "function"
	default:
		return "unknown"
	}
}

// ClassifyFamily maps a normalized_type to its Family via prefix/substring
// matching against the known resource-type vocabulary. This is a closed
// switch, not an open registry: adding a new resource type requires
// editing this function, which is the point — a silently-unmatched type
// degrades to FamilyUnknown rather than silently registering a mapper.
func ClassifyFamily(normalizedType string) Family {
	t := normalizedType
	switch {
	case hasAny(t, "instance", "vm", "compute_engine", "ec2", "droplet", "container_instance"):
		return FamilyCompute
	case hasAny(t, "volume", "bucket", "storage", "disk", "blob", "fsx", "efs"):
		return FamilyStorage
	case hasAny(t, "vpc", "subnet", "nat_gateway", "eip", "load_balancer", "lb", "cloudfront", "distribution",
		"security_group", "route", "gateway", "vpn", "peering"):
		return FamilyNetwork
	case hasAny(t, "db_instance", "rds", "dynamodb", "elasticache", "database", "sql", "cosmosdb", "documentdb"):
		return FamilyDatabase
	case hasAny(t, "lambda_function", "cloud_function", "function_app", "function"):
		return FamilyFunction
	default:
		return FamilyUnknown
	}
}

func hasAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// coldStartDefault is the per-family fallback (hourly_cost, range_factor)
// used when no heuristics row matches at all (spec §4.4 tier 4).
type coldStartDefault struct {
	HourlyCost  float64
	RangeFactor float64
}

var coldStartDefaults = map[Family]coldStartDefault{
	FamilyCompute:  {HourlyCost: 0.05, RangeFactor: 0.45},
	FamilyStorage:  {HourlyCost: 0.01, RangeFactor: 0.30},
	FamilyNetwork:  {HourlyCost: 0.02, RangeFactor: 0.35},
	FamilyDatabase: {HourlyCost: 0.10, RangeFactor: 0.40},
	FamilyFunction: {HourlyCost: 0.002, RangeFactor: 0.60},
	FamilyUnknown:  {HourlyCost: 0.03, RangeFactor: 0.70},
}
