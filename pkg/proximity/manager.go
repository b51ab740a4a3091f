package proximity

import (
	"cmp"
	"iter"
	"slices"
	"time"

	"github.com/QYUbit/Replica/pkg/geom"
)

// DefaultInterval is how often band membership is recomputed.
const DefaultInterval = 100 * time.Millisecond

// Subject is an entity whose visibility is gated by its sensors.
type Subject interface {
	SubjectID() uint32
	Position() geom.Vec3
	Sensors() []*Sensor
	Observers() *Observers
	SensorEnter(band Band, w Watcher)
	SensorExit(band Band, w Watcher)
}

// Manager recomputes band membership on a fixed interval. It is driven by
// the simulation goroutine and holds no locks.
type Manager struct {
	interval time.Duration
	next     time.Time
	index    Index

	snapshot   []Watcher
	candidates []Watcher
	seen       map[uint32]struct{}
}

func NewManager(interval time.Duration) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Manager{
		interval: interval,
		seen:     make(map[uint32]struct{}),
	}
}

// Evaluate runs a pass when the interval has elapsed and reports whether it
// did.
func (m *Manager) Evaluate(now time.Time, subjects iter.Seq[Subject], ws iter.Seq[Watcher]) bool {
	if now.Before(m.next) {
		return false
	}
	m.next = now.Add(m.interval)

	m.snapshot = m.snapshot[:0]
	for w := range ws {
		m.snapshot = append(m.snapshot, w)
	}
	m.index.Rebuild(m.snapshot)

	for s := range subjects {
		m.Reconcile(s)
	}
	return true
}

// Reconcile brings one subject's observers in line with the current index.
func (m *Manager) Reconcile(s Subject) {
	sensors := s.Sensors()
	if len(sensors) == 0 {
		return
	}

	pos := s.Position()
	self := s.SubjectID()
	obs := s.Observers()
	clear(m.seen)

	m.candidates = m.index.WithinRadius(pos, OuterRadius(sensors), m.candidates[:0])
	slices.SortFunc(m.candidates, func(a, b Watcher) int { return cmp.Compare(a.ID, b.ID) })

	for _, w := range m.candidates {
		if w.ID == self {
			continue
		}
		m.seen[w.ID] = struct{}{}

		d2 := pos.DistanceSquared(w.Position)
		var bands Band
		for _, sensor := range sensors {
			if d2 <= sensor.radius*sensor.radius {
				bands |= sensor.band
			}
		}

		have := obs.Bands(w.ID)
		// enters first so a band hop never passes through empty
		(bands &^ have).Each(func(b Band) { s.SensorEnter(b, w) })
		(have &^ bands).Each(func(b Band) { s.SensorExit(b, w) })
	}

	for _, id := range obs.Watchers() {
		if _, ok := m.seen[id]; ok {
			continue
		}
		o, _ := obs.Get(id)
		w := Watcher{ID: id, Peer: o.Peer}
		o.Bands.Each(func(b Band) { s.SensorExit(b, w) })
	}
}
