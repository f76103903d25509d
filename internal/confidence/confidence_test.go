package confidence_test

import (
	"testing"

	"github.com/costpilot/costpilot/internal/confidence"
)

func TestAggregateMultipliesIndependentFactors(t *testing.T) {
	got := confidence.Aggregate(1.0, []confidence.Factor{
		{Name: "a", Weight: 0.5},
		{Name: "b", Weight: 0.5},
	})
	want := 0.25
	if got != want {
		t.Errorf("Aggregate() = %v, want %v", got, want)
	}
}

func TestAggregateNoFactorsReturnsBase(t *testing.T) {
	got := confidence.Aggregate(0.8, nil)
	if got != 0.8 {
		t.Errorf("Aggregate() with no factors = %v, want 0.8", got)
	}
}

func TestAggregateClampsToFloor(t *testing.T) {
	got := confidence.Aggregate(0.01, []confidence.Factor{
		{Name: "a", Weight: 0.01},
		{Name: "b", Weight: 0.01},
	})
	if got != confidence.Floor {
		t.Errorf("Aggregate() = %v, want floor %v", got, confidence.Floor)
	}
}

func TestClampBounds(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"below floor", -1.0, confidence.Floor},
		{"above ceil", 5.0, confidence.Ceil},
		{"in range", 0.42, 0.42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := confidence.Clamp(tt.in); got != tt.want {
				t.Errorf("Clamp(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAboveThreshold(t *testing.T) {
	if !confidence.AboveThreshold(0.7, 0.7) {
		t.Error("AboveThreshold(0.7, 0.7) should be true (inclusive)")
	}
	if confidence.AboveThreshold(0.69, 0.7) {
		t.Error("AboveThreshold(0.69, 0.7) should be false")
	}
}
