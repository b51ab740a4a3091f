package proximity

import (
	"slices"

	"github.com/QYUbit/Replica/pkg/transport"
)

type Observer struct {
	Peer  transport.PeerID
	Bands Band
}

// Observers maps watcher network ids to the bands they currently occupy.
type Observers struct {
	m map[uint32]Observer
}

func NewObservers() *Observers {
	return &Observers{m: make(map[uint32]Observer)}
}

func (o *Observers) Len() int { return len(o.m) }

func (o *Observers) Get(watcher uint32) (Observer, bool) {
	obs, ok := o.m[watcher]
	return obs, ok
}

func (o *Observers) Bands(watcher uint32) Band {
	return o.m[watcher].Bands
}

// Enter adds band to the watcher and reports whether this made the watcher
// an observer.
func (o *Observers) Enter(watcher uint32, peer transport.PeerID, band Band) bool {
	obs, ok := o.m[watcher]
	obs.Peer = peer
	obs.Bands |= band
	o.m[watcher] = obs
	return !ok
}

// Exit removes band from the watcher and reports whether the watcher left
// every band.
func (o *Observers) Exit(watcher uint32, band Band) bool {
	obs, ok := o.m[watcher]
	if !ok {
		return false
	}
	obs.Bands &^= band
	if obs.Bands == 0 {
		delete(o.m, watcher)
		return true
	}
	o.m[watcher] = obs
	return false
}

// Forget drops the watcher without reporting an exit.
func (o *Observers) Forget(watcher uint32) bool {
	_, ok := o.m[watcher]
	delete(o.m, watcher)
	return ok
}

// Watchers returns the watcher ids in ascending order.
func (o *Observers) Watchers() []uint32 {
	ids := make([]uint32, 0, len(o.m))
	for id := range o.m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Peers appends the peers whose bands intersect any sensor flagged by
// SetUpdateFlag. Each peer appears once, ordered by watcher id.
func (o *Observers) Peers(sensors []*Sensor, dst []transport.PeerID) []transport.PeerID {
	var eligible Band
	for _, s := range sensors {
		if s.CanUpdate() {
			eligible |= s.band
		}
	}
	if eligible == 0 {
		return dst
	}

	for _, id := range o.Watchers() {
		if obs := o.m[id]; obs.Bands&eligible != 0 {
			dst = append(dst, obs.Peer)
		}
	}
	return dst
}

// AllPeers appends every observing peer ordered by watcher id.
func (o *Observers) AllPeers(dst []transport.PeerID) []transport.PeerID {
	for _, id := range o.Watchers() {
		dst = append(dst, o.m[id].Peer)
	}
	return dst
}
