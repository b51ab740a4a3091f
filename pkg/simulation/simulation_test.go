package simulation

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStepReportsDelta(t *testing.T) {
	var deltas []time.Duration
	s := NewSimulation(time.Millisecond, func(_ time.Time, dt time.Duration) {
		deltas = append(deltas, dt)
	})

	start := time.Now()
	s.Step(start)
	s.Step(start.Add(33 * time.Millisecond))

	if len(deltas) != 2 || deltas[0] != 0 || deltas[1] != 33*time.Millisecond {
		t.Fatalf("unexpected deltas %v", deltas)
	}
	if s.Ticks() != 2 {
		t.Fatalf("expected 2 ticks, got %d", s.Ticks())
	}
}

// TestRunTicksOnCaller tests the loop lifecycle.
func TestRunTicksOnCaller(t *testing.T) {
	ticked := make(chan struct{}, 1)
	s := NewSimulation(time.Millisecond, func(time.Time, time.Duration) {
		select {
		case ticked <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-ticked:
	case <-time.After(time.Second):
		t.Fatal("no tick")
	}

	if err := s.Run(ctx); !errors.Is(err, ErrSimulationRunning) {
		t.Fatalf("expected ErrSimulationRunning, got %v", err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); !errors.Is(err, ErrSimulationNotRunning) {
		t.Fatalf("expected ErrSimulationNotRunning, got %v", err)
	}
}
