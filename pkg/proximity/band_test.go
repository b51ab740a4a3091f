package proximity

import (
	"testing"
	"time"
)

func TestBandIntervals(t *testing.T) {
	cases := map[Band]time.Duration{
		BandA: 100 * time.Millisecond,
		BandB: 200 * time.Millisecond,
		BandC: 500 * time.Millisecond,
		BandD: time.Second,
		BandE: 2 * time.Second,
	}
	for b, want := range cases {
		if got := b.Interval(); got != want {
			t.Errorf("%v: got %v want %v", b, got, want)
		}
	}
	if (BandA | BandB).Interval() != 0 {
		t.Error("combined bands have no interval")
	}
}

func TestBandString(t *testing.T) {
	if s := (BandA | BandC | BandE).String(); s != "ACE" {
		t.Errorf("got %q", s)
	}
	if s := Band(0).String(); s != "none" {
		t.Errorf("got %q", s)
	}
}

func TestBandSingle(t *testing.T) {
	if !BandD.Single() {
		t.Error("BandD is a single band")
	}
	if (BandA | BandB).Single() {
		t.Error("two bands are not single")
	}
	if Band(1 << 6).Single() {
		t.Error("unknown bit is not a band")
	}
}

// TestSensorCooldown tests that a sensor fires once per band interval.
func TestSensorCooldown(t *testing.T) {
	s := NewSensor(BandB, 8)
	now := time.Now()

	if !s.SetUpdateFlag(now) {
		t.Fatal("first check should pass")
	}
	if s.SetUpdateFlag(now.Add(50 * time.Millisecond)) {
		t.Fatal("check inside the cooldown should fail")
	}
	if s.CanUpdate() {
		t.Fatal("CanUpdate should reflect the last check")
	}
	if !s.SetUpdateFlag(now.Add(200 * time.Millisecond)) {
		t.Fatal("check after the cooldown should pass")
	}
}

func TestNewSensorRejectsMultipleBands(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewSensor(BandA|BandB, 1)
}

func TestDefaultSensorsNested(t *testing.T) {
	sensors := DefaultSensors()
	if len(sensors) != 5 {
		t.Fatalf("expected 5 sensors, got %d", len(sensors))
	}
	for i := 1; i < len(sensors); i++ {
		if sensors[i].Radius() <= sensors[i-1].Radius() {
			t.Errorf("sensor %v should be wider than %v", sensors[i].Band(), sensors[i-1].Band())
		}
	}
	if OuterRadius(sensors) != 32 {
		t.Errorf("unexpected outer radius %f", OuterRadius(sensors))
	}
}
