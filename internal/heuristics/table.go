// Package heuristics implements the Heuristics Table (spec §4.3): a
// read-only, content-addressed pricing table keyed by
// (normalized_type, region, shape), loaded once per evaluation from a
// boundary file and held immutable thereafter.
//
// Grounded on the teacher's decision/billing/mappers/aws/registry.go
// (a static, load-once lookup registry keyed by resource type) combined
// with the teacher's use of crypto/sha256-style content addressing
// patterns seen across the example pack for tamper detection.
package heuristics

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/costpilot/costpilot/internal/coreerr"
)

// DefaultStalenessThreshold is the spec §4.3 default: a row older than
// this produces FallbackReason::HeuristicStale.
const DefaultStalenessThreshold = 180 * 24 * time.Hour

// Row is one heuristics table entry.
type Row struct {
	NormalizedType string    `json:"normalized_type"`
	Region         string    `json:"region"`
	Shape          string    `json:"shape"`
	HourlyCost     float64   `json:"hourly_cost"`
	RangeFactor    float64   `json:"range_factor"`
	LastUpdated    time.Time `json:"last_updated"`
	ConfidenceBase float64   `json:"confidence_base"`

	// Hash is computed at load time from the row's canonical
	// serialization (see rowHash) and is never read from the file.
	Hash string `json:"-"`
}

// key is the composite lookup key (normalized_type, region, shape).
type key struct {
	normalizedType string
	region         string
	shape          string
}

// Table is the loaded, immutable heuristics table for one evaluation.
type Table struct {
	Version string
	rows    map[key]Row
	// byTypeRegion indexes rows ignoring shape, for the prediction
	// engine's region-independent-match resolution tier.
	byTypeRegion map[key][]Row
	// byType indexes rows ignoring region and shape, for the type-only
	// resolution tier.
	byType map[string][]Row

	StalenessThreshold time.Duration
}

// document is the on-disk JSON shape of a heuristics file.
type document struct {
	Version string `json:"version"`
	Rows    []Row  `json:"rows"`
}

// Load parses a heuristics table file's bytes, verifies its declared
// manifest hash against the recomputed content hash, and computes each
// row's stable hash. A hash mismatch or malformed file is always
// hard_stop: the core never falls back to a partial or guessed table.
func Load(data []byte, declaredHash string) (*Table, error) {
	actualHash := sha256.Sum256(data)
	actualHashHex := hex.EncodeToString(actualHash[:])
	if declaredHash != "" && declaredHash != actualHashHex {
		return nil, coreerr.NewRuntimeError(coreerr.CodeHeuristicsCorrupt,
			fmt.Sprintf("heuristics file hash mismatch: declared %s, computed %s", declaredHash, actualHashHex))
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, coreerr.NewRuntimeError(coreerr.CodeHeuristicsCorrupt, "malformed heuristics table: "+err.Error())
	}
	if doc.Version == "" || len(doc.Rows) == 0 {
		return nil, coreerr.NewRuntimeError(coreerr.CodeHeuristicsMissing, "heuristics table has no version or rows")
	}

	t := &Table{
		Version:            doc.Version,
		rows:               make(map[key]Row, len(doc.Rows)),
		byTypeRegion:       make(map[key][]Row),
		byType:             make(map[string][]Row),
		StalenessThreshold: DefaultStalenessThreshold,
	}

	for _, r := range doc.Rows {
		r.Hash = rowHash(r)
		k := key{r.NormalizedType, r.Region, r.Shape}
		t.rows[k] = r

		tr := key{normalizedType: r.NormalizedType, region: r.Region}
		t.byTypeRegion[tr] = append(t.byTypeRegion[tr], r)
		t.byType[r.NormalizedType] = append(t.byType[r.NormalizedType], r)
	}

	return t, nil
}

// rowHash computes the stable SHA-256 hash of a row's canonical
// serialization (spec §4.3: "Every row has a stable SHA-256 hash
// computed from its canonical serialization").
func rowHash(r Row) string {
	canonical := fmt.Sprintf("%s|%s|%s|%.6f|%.6f|%s|%.6f",
		r.NormalizedType, r.Region, r.Shape, r.HourlyCost, r.RangeFactor,
		r.LastUpdated.UTC().Format(time.RFC3339), r.ConfidenceBase)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// ExactMatch resolves tier 1: (normalized_type, region, shape).
func (t *Table) ExactMatch(normalizedType, region, shape string) (Row, bool) {
	r, ok := t.rows[key{normalizedType, region, shape}]
	return r, ok
}

// RegionIndependentMatch resolves tier 2: (normalized_type, shape) with
// region ignored, returning the first match in deterministic (sorted by
// region) order.
func (t *Table) RegionIndependentMatch(normalizedType, shape string) (Row, bool) {
	var candidates []Row
	for k, rows := range t.byTypeRegion {
		if k.normalizedType != normalizedType {
			continue
		}
		for _, r := range rows {
			if r.Shape == shape {
				candidates = append(candidates, r)
			}
		}
	}
	if len(candidates) == 0 {
		return Row{}, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Region < candidates[j].Region })
	return candidates[0], true
}

// TypeOnlyMatch resolves tier 3: normalized_type only, returning a
// deterministic representative row (sorted by region, then shape).
func (t *Table) TypeOnlyMatch(normalizedType string) (Row, bool) {
	rows := t.byType[normalizedType]
	if len(rows) == 0 {
		return Row{}, false
	}
	sorted := append([]Row(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Region != sorted[j].Region {
			return sorted[i].Region < sorted[j].Region
		}
		return sorted[i].Shape < sorted[j].Shape
	})
	return sorted[0], true
}

// IsStale reports whether row r is older than the table's staleness
// threshold as of "now" (a parameter, never time.Now(), to keep the
// pure core deterministic — the caller supplies evaluation time at the
// boundary).
func (t *Table) IsStale(r Row, now time.Time) bool {
	return now.Sub(r.LastUpdated) > t.StalenessThreshold
}
