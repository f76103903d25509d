package predict

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/costpilot/costpilot/internal/confidence"
	"github.com/costpilot/costpilot/internal/heuristics"
	"github.com/costpilot/costpilot/internal/normalize"
)

// SourceKind discriminates Provenance.Source.
type SourceKind int

const (
	SourceHeuristic SourceKind = iota
	SourceColdStart
)

// FallbackReason names why a prediction fell back from an exact match
// (spec §3 Prediction.provenance.fallback_reason).
type FallbackReason string

const (
	FallbackNone               FallbackReason = ""
	FallbackRegionUnsupported  FallbackReason = "region_not_supported"
	FallbackShapeUnknown       FallbackReason = "shape_unknown"
	FallbackStale              FallbackReason = "heuristic_stale"
	FallbackTypeUnrecognized   FallbackReason = "type_unrecognized"
	FallbackUnresolvedProperty FallbackReason = "unresolved_properties"
)

// Provenance records which heuristic row or cold-start rule produced a
// prediction (spec §3).
type Provenance struct {
	Source          SourceKind
	HeuristicHash   string
	HeuristicVersion string
	ColdStartRuleID string
	FallbackReason  FallbackReason
}

// Prediction is the per-resource output of the Prediction Engine (spec §3).
type Prediction struct {
	ResourceID string

	P10 decimal.Decimal
	P50 decimal.Decimal
	P90 decimal.Decimal
	P99 decimal.Decimal

	Confidence         float64
	Provenance         Provenance
	UncertaintyFactors []confidence.Factor
}

// eighty and ninetyEight approximate z-scores for 80%/98% symmetric
// intervals around a log-normal assumption (spec §4.4).
const (
	z80 = 1.28
	z98 = 2.33

	hoursPerMonth = 730
)

// Predict computes a Prediction for one normalized resource, following
// the four-tier resolution order from spec §4.4.
func Predict(r normalize.NormalizedResource, table *heuristics.Table, region string, now time.Time) Prediction {
	shape := resourceShape(r)
	family := ClassifyFamily(r.NormalizedType)

	var (
		hourlyCost  float64
		rangeFactor float64
		base        float64
		prov        Provenance
		factors     []confidence.Factor
	)

	switch {
	case table != nil && tryExact(table, r.NormalizedType, region, shape, &hourlyCost, &rangeFactor, &base, &prov):
		if table.IsStale(exactRow(table, r.NormalizedType, region, shape), now) {
			factors = append(factors, confidence.Factor{Name: confidence.FactorHeuristicStale, Weight: confidence.WeightHeuristicStale})
			prov.FallbackReason = FallbackStale
		}
	case table != nil && tryRegionIndependent(table, r.NormalizedType, shape, &hourlyCost, &rangeFactor, &base, &prov):
		factors = append(factors, confidence.Factor{Name: confidence.FactorRegionNotSupported, Weight: confidence.WeightRegionNotSupported})
	case table != nil && tryTypeOnly(table, r.NormalizedType, &hourlyCost, &rangeFactor, &base, &prov):
		factors = append(factors, confidence.Factor{Name: confidence.FactorColdStart, Weight: confidence.WeightColdStart})
	default:
		d := coldStartDefaults[family]
		hourlyCost = d.HourlyCost
		rangeFactor = d.RangeFactor
		base = confidence.MinConfidence
		prov = Provenance{Source: SourceColdStart, ColdStartRuleID: "coldstart." + family.String(), FallbackReason: FallbackTypeUnrecognized}
		factors = append(factors, confidence.Factor{Name: confidence.FactorColdStart, Weight: confidence.WeightColdStart})
	}

	if !r.TypeMapped {
		factors = append(factors, confidence.Factor{Name: "unmapped_type", Weight: confidence.WeightColdStart})
	}
	if unresolvedCount(r) > 0 {
		factors = append(factors, confidence.Factor{Name: confidence.FactorUnresolvedProps, Weight: confidence.WeightUnresolvedProps})
		prov.FallbackReason = FallbackUnresolvedProperty
	}
	if r.ChangeAction == "Replace" {
		factors = append(factors, confidence.Factor{Name: confidence.FactorReplacementAction, Weight: confidence.WeightReplacementAction})
	}

	conf := confidence.Aggregate(base, factors)
	if prov.Source == SourceColdStart && conf >= 0.7 {
		// Invariant (spec §3): "if source = ColdStart, confidence < 0.7".
		conf = 0.69
	}

	monthlyBase := hourlyCost * hoursPerMonth
	p50 := decimal.NewFromFloat(monthlyBase)
	p10 := decimal.NewFromFloat(maxFloat(0, monthlyBase*(1-rangeFactor*z80)))
	p90 := decimal.NewFromFloat(monthlyBase * (1 + rangeFactor*z80))
	p99 := decimal.NewFromFloat(monthlyBase * (1 + rangeFactor*z98))

	return Prediction{
		ResourceID:         r.ID,
		P10:                p10,
		P50:                p50,
		P90:                p90,
		P99:                p99,
		Confidence:         conf,
		Provenance:         prov,
		UncertaintyFactors: factors,
	}
}

func tryExact(t *heuristics.Table, normalizedType, region, shape string, hourlyCost, rangeFactor, base *float64, prov *Provenance) bool {
	row, ok := t.ExactMatch(normalizedType, region, shape)
	if !ok {
		return false
	}
	*hourlyCost = row.HourlyCost
	*rangeFactor = row.RangeFactor
	*base = row.ConfidenceBase
	*prov = Provenance{Source: SourceHeuristic, HeuristicHash: row.Hash, HeuristicVersion: t.Version}
	return true
}

func exactRow(t *heuristics.Table, normalizedType, region, shape string) heuristics.Row {
	row, _ := t.ExactMatch(normalizedType, region, shape)
	return row
}

func tryRegionIndependent(t *heuristics.Table, normalizedType, shape string, hourlyCost, rangeFactor, base *float64, prov *Provenance) bool {
	row, ok := t.RegionIndependentMatch(normalizedType, shape)
	if !ok {
		return false
	}
	*hourlyCost = row.HourlyCost
	*rangeFactor = row.RangeFactor
	*base = row.ConfidenceBase
	*prov = Provenance{Source: SourceHeuristic, HeuristicHash: row.Hash, HeuristicVersion: t.Version, FallbackReason: FallbackRegionUnsupported}
	return true
}

func tryTypeOnly(t *heuristics.Table, normalizedType string, hourlyCost, rangeFactor, base *float64, prov *Provenance) bool {
	row, ok := t.TypeOnlyMatch(normalizedType)
	if !ok {
		return false
	}
	*hourlyCost = row.HourlyCost
	*rangeFactor = row.RangeFactor
	*base = confidence.MinConfidence + (row.ConfidenceBase-confidence.MinConfidence)*0.5
	*prov = Provenance{Source: SourceHeuristic, HeuristicHash: row.Hash, HeuristicVersion: t.Version, FallbackReason: FallbackShapeUnknown}
	return true
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// resourceShape extracts the resource-type-specific discriminator used
// as the heuristics table's shape key (spec §4.3): instance class for
// compute, throughput tier for storage, and so on.
func resourceShape(r normalize.NormalizedResource) string {
	for _, key := range []string{"instance_type", "instance_class", "volume_type", "engine"} {
		if pv, ok := r.Properties[key]; ok && pv.Scalar != nil {
			if s, ok := pv.Scalar.(string); ok && s != "" {
				return s
			}
		}
	}
	return "default"
}

func unresolvedCount(r normalize.NormalizedResource) int {
	n := 0
	for _, pv := range r.Properties {
		if pv.Unresolved {
			n++
		}
	}
	return n
}
