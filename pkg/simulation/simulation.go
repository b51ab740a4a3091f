// Package simulation drives a fixed rate tick on the calling goroutine.
package simulation

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var (
	ErrSimulationRunning    = errors.New("simulation is already running")
	ErrSimulationNotRunning = errors.New("simulation is not running")
)

// DefaultTickRate is 30 ticks per second.
const DefaultTickRate = time.Second / 30

// Simulation calls its tick function on the goroutine that called Run, so
// everything reachable from the tick is single threaded.
type Simulation struct {
	tickRate  time.Duration
	lastTick  time.Time
	onTick    func(now time.Time, dt time.Duration)
	cancel    context.CancelFunc
	isRunning atomic.Bool
	ticks     atomic.Uint64
}

func NewSimulation(tickRate time.Duration, onTick func(now time.Time, dt time.Duration)) *Simulation {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	if onTick == nil {
		onTick = func(time.Time, time.Duration) {}
	}
	return &Simulation{
		tickRate: tickRate,
		onTick:   onTick,
	}
}

// Run ticks until ctx ends or Stop is called.
func (s *Simulation) Run(ctx context.Context) error {
	if !s.isRunning.CompareAndSwap(false, true) {
		return ErrSimulationRunning
	}
	defer s.isRunning.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	t := time.NewTicker(s.tickRate)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			s.Step(now)
		}
	}
}

func (s *Simulation) Stop() error {
	if !s.isRunning.Load() || s.cancel == nil {
		return ErrSimulationNotRunning
	}
	s.cancel()
	return nil
}

// Step runs one tick at now. Run calls it from the ticker; tests call it
// directly.
func (s *Simulation) Step(now time.Time) {
	var d time.Duration
	if !s.lastTick.IsZero() {
		d = now.Sub(s.lastTick)
	}
	s.lastTick = now
	s.ticks.Add(1)

	s.onTick(now, d)
}

func (s *Simulation) TickRate() time.Duration { return s.tickRate }

func (s *Simulation) Ticks() uint64 { return s.ticks.Load() }

func (s *Simulation) IsRunning() bool { return s.isRunning.Load() }
