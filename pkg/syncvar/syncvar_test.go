package syncvar

import (
	"testing"

	"github.com/QYUbit/Replica/pkg/wire"
)

// TestSetMarksDirtyOnChange tests that only effective changes mark a field dirty.
func TestSetMarksDirtyOnChange(t *testing.T) {
	v := NewInt("Score", 5)

	calls := 0
	v.OnChanged(func(int32) { calls++ })

	v.Set(5)
	if v.Dirty() {
		t.Fatal("setting the same value must not mark dirty")
	}
	if calls != 0 {
		t.Fatalf("callback fired for a no-op set")
	}

	v.Set(6)
	if !v.Dirty() || v.Value() != 6 {
		t.Fatalf("expected dirty field holding 6, got dirty=%v value=%d", v.Dirty(), v.Value())
	}
	if calls != 1 {
		t.Fatalf("expected one callback, got %d", calls)
	}

	v.ResetDirty()
	if v.Dirty() {
		t.Fatal("ResetDirty did not clear the flag")
	}
}

func TestUnpackAppliesWithoutDirty(t *testing.T) {
	src := NewString("PlayerName", "")
	src.Set("alice")

	b := wire.NewBitBuffer()
	src.Pack(b)
	data := make([]byte, b.Length())
	b.ToArray(data)

	var got string
	dst := NewString("PlayerName", "")
	dst.OnChanged(func(s string) { got = s })

	r := wire.NewBitBuffer()
	if err := r.FromArray(data); err != nil {
		t.Fatal(err)
	}
	dst.Unpack(r)

	if dst.Value() != "alice" || got != "alice" {
		t.Fatalf("expected alice, got value=%q callback=%q", dst.Value(), got)
	}
	if dst.Dirty() {
		t.Fatal("received values must not be re-broadcast")
	}
}

func TestUnpackIgnoresTruncatedInput(t *testing.T) {
	v := NewUint("Level", 3)
	v.Unpack(wire.NewBitBuffer())
	if v.Value() != 3 {
		t.Fatalf("truncated input changed the value to %d", v.Value())
	}
}

func TestTypedConstructors(t *testing.T) {
	vars := []Variable{
		NewFloat("Health", 100),
		NewInt("Score", -1),
		NewUint("Level", 1),
		NewString("PlayerName", "npc"),
	}

	b := wire.NewBitBuffer()
	for _, v := range vars {
		v.Pack(b)
	}
	data := make([]byte, b.Length())
	b.ToArray(data)

	r := wire.NewBitBuffer()
	if err := r.FromArray(data); err != nil {
		t.Fatal(err)
	}

	health := NewFloat("Health", 0)
	score := NewInt("Score", 0)
	level := NewUint("Level", 0)
	name := NewString("PlayerName", "")
	for _, v := range []Variable{health, score, level, name} {
		v.Unpack(r)
	}

	if health.Value() != 100 || score.Value() != -1 || level.Value() != 1 || name.Value() != "npc" {
		t.Fatalf("unexpected values %v %v %v %q", health.Value(), score.Value(), level.Value(), name.Value())
	}
}
