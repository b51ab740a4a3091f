package wire

import (
	"math"
	"testing"

	"github.com/QYUbit/Replica/pkg/geom"
)

func TestRequiredBits(t *testing.T) {
	r := NewBoundedRange(-32, 32, 0.05)
	if r.RequiredBits() != 11 {
		t.Fatalf("expected 11 bits, got %d", r.RequiredBits())
	}
}

// TestQuantizationError tests that every in-range value decodes within one step.
func TestQuantizationError(t *testing.T) {
	r := DefaultRange[0]
	for v := float32(-MaxRange); v <= MaxRange; v += 0.0137 {
		got := r.Dequantize(r.Quantize(v))
		if diff := math.Abs(float64(got - v)); diff > DefaultPrecision {
			t.Fatalf("value %f decoded to %f (error %f)", v, got, diff)
		}
	}
}

func TestQuantizeClamps(t *testing.T) {
	r := DefaultRange[0]
	if got := r.Dequantize(r.Quantize(1000)); got != MaxRange {
		t.Errorf("expected %d, got %f", MaxRange, got)
	}
	if got := r.Dequantize(r.Quantize(-1000)); got != -MaxRange {
		t.Errorf("expected %d, got %f", -MaxRange, got)
	}
}

func TestVector3RoundTrip(t *testing.T) {
	cases := []geom.Vec3{
		geom.NewVec3(0, 0, 0),
		geom.NewVec3(10, 0, 0),
		geom.NewVec3(-31.99, 12.345, 31.99),
	}

	b := NewBitBuffer()
	for _, v := range cases {
		b.AddVector3(v, DefaultRange)
	}

	r := roundTrip(t, b)
	for _, want := range cases {
		got := r.ReadVector3(DefaultRange)
		if got.Distance(want) > DefaultPrecision {
			t.Errorf("vector %v decoded to %v", want, got)
		}
	}
}

func TestInvalidRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for inverted range")
		}
	}()
	NewBoundedRange(1, -1, 0.1)
}
