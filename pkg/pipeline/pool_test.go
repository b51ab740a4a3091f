package pipeline

import (
	"errors"
	"testing"

	"github.com/QYUbit/Replica/pkg/transport"
)

func TestPoolRecycles(t *testing.T) {
	p := NewCommandPool(2)

	c := p.Get()
	c.Type = CommandSend
	c.Target = 4
	c.TargetGroup = append(c.TargetGroup, 1, 2)
	c.Packet = transport.NewPacket([]byte{1}, transport.FlagReliable)

	if p.InUse() != 1 {
		t.Fatalf("expected one in use, got %d", p.InUse())
	}
	if err := p.Put(c); err != nil {
		t.Fatal(err)
	}
	if c.Type != CommandNone || c.Target != 0 || len(c.TargetGroup) != 0 || c.Packet.IsSet() {
		t.Fatalf("command not reset: %+v", c)
	}
	if p.InUse() != 0 {
		t.Fatalf("expected none in use, got %d", p.InUse())
	}
}

// TestPoolDoubleReturn tests that returning a command twice is reported.
func TestPoolDoubleReturn(t *testing.T) {
	p := NewCommandPool(1)
	c := p.Get()
	if err := p.Put(c); err != nil {
		t.Fatal(err)
	}
	if err := p.Put(c); !errors.Is(err, ErrCommandNotLeased) {
		t.Fatalf("expected ErrCommandNotLeased, got %v", err)
	}
}

// TestPoolStaleRef tests that a ref outliving its command is rejected.
func TestPoolStaleRef(t *testing.T) {
	p := NewCommandPool(1)
	c := p.Get()
	ref := c.Ref()

	if got, err := p.Resolve(ref); err != nil || got != c {
		t.Fatalf("fresh ref should resolve: %v", err)
	}

	p.Put(c)
	reused := p.Get()
	if reused != c {
		t.Fatal("single slot pool should hand out the same command")
	}
	if _, err := p.Resolve(ref); !errors.Is(err, ErrStaleCommand) {
		t.Fatalf("expected ErrStaleCommand, got %v", err)
	}
	if _, err := p.Resolve(reused.Ref()); err != nil {
		t.Fatalf("new ref should resolve: %v", err)
	}
}

func TestPoolForeignCommand(t *testing.T) {
	a := NewCommandPool(1)
	b := NewCommandPool(1)
	if err := b.Put(a.Get()); !errors.Is(err, ErrForeignCommand) {
		t.Fatalf("expected ErrForeignCommand, got %v", err)
	}
}

func TestPoolExhaustionPanics(t *testing.T) {
	p := NewCommandPool(1)
	p.Get()

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrPoolExhausted) {
			t.Fatalf("expected ErrPoolExhausted panic, got %v", r)
		}
	}()
	p.Get()
}
