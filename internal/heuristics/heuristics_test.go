package heuristics_test

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/costpilot/costpilot/internal/heuristics"
)

func fixture(t *testing.T) []byte {
	t.Helper()
	doc := map[string]interface{}{
		"version": "2026.1",
		"rows": []map[string]interface{}{
			{
				"normalized_type": "aws_ec2_instance",
				"region":          "us-east-1",
				"shape":           "m5.large",
				"hourly_cost":     0.096,
				"range_factor":    0.15,
				"last_updated":    "2026-01-01T00:00:00Z",
				"confidence_base": 0.95,
			},
			{
				"normalized_type": "aws_ec2_instance",
				"region":          "eu-west-1",
				"shape":           "m5.large",
				"hourly_cost":     0.105,
				"range_factor":    0.15,
				"last_updated":    "2026-01-01T00:00:00Z",
				"confidence_base": 0.95,
			},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return data
}

func TestLoadVerifiesDeclaredHash(t *testing.T) {
	data := fixture(t)
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if _, err := heuristics.Load(data, hash); err != nil {
		t.Errorf("Load with correct declared hash returned error: %v", err)
	}
	if _, err := heuristics.Load(data, "0000000000000000000000000000000000000000000000000000000000000000"); err == nil {
		t.Error("Load with wrong declared hash should return an error")
	}
}

func TestLoadRejectsEmptyTable(t *testing.T) {
	data, _ := json.Marshal(map[string]interface{}{"version": "1.0", "rows": []interface{}{}})
	if _, err := heuristics.Load(data, ""); err == nil {
		t.Error("Load with zero rows should return an error")
	}
}

func TestExactMatchThenRegionIndependentThenTypeOnly(t *testing.T) {
	table, err := heuristics.Load(fixture(t), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, ok := table.ExactMatch("aws_ec2_instance", "us-east-1", "m5.large"); !ok {
		t.Error("ExactMatch should find the us-east-1/m5.large row")
	}
	if _, ok := table.ExactMatch("aws_ec2_instance", "ap-south-1", "m5.large"); ok {
		t.Error("ExactMatch should not find an unlisted region")
	}

	row, ok := table.RegionIndependentMatch("aws_ec2_instance", "m5.large")
	if !ok {
		t.Fatal("RegionIndependentMatch should find a row ignoring region")
	}
	if row.Region != "eu-west-1" {
		t.Errorf("RegionIndependentMatch region = %q, want eu-west-1 (deterministic sorted-first tie-break)", row.Region)
	}

	typeRow, ok := table.TypeOnlyMatch("aws_ec2_instance")
	if !ok {
		t.Fatal("TypeOnlyMatch should find a representative row")
	}
	if typeRow.Region != "eu-west-1" {
		t.Errorf("TypeOnlyMatch region = %q, want eu-west-1 (sorted by region)", typeRow.Region)
	}
}

func TestRowHashIsStableAndUnique(t *testing.T) {
	table, err := heuristics.Load(fixture(t), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	a, _ := table.ExactMatch("aws_ec2_instance", "us-east-1", "m5.large")
	b, _ := table.ExactMatch("aws_ec2_instance", "eu-west-1", "m5.large")
	if a.Hash == "" || b.Hash == "" {
		t.Error("row Hash should never be empty after Load")
	}
	if a.Hash == b.Hash {
		t.Error("distinct rows should not share a hash")
	}
}

func TestIsStale(t *testing.T) {
	table, err := heuristics.Load(fixture(t), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	row, _ := table.ExactMatch("aws_ec2_instance", "us-east-1", "m5.large")

	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	if table.IsStale(row, now) {
		t.Error("a 1-day-old row should not be stale")
	}

	farFuture := now.Add(heuristics.DefaultStalenessThreshold + 24*time.Hour)
	if !table.IsStale(row, farFuture) {
		t.Error("a row older than the staleness threshold should be stale")
	}
}
