package entity

import (
	"iter"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/QYUbit/Replica/pkg/transport"
)

// Registry indexes the live entities of one machine in spawn order, with a
// secondary index from owning peer to entity. It belongs to the simulation
// goroutine.
type Registry struct {
	entities *orderedmap.OrderedMap[uint32, *Entity]
	byPeer   map[transport.PeerID]uint32
}

func NewRegistry() *Registry {
	return &Registry{
		entities: orderedmap.New[uint32, *Entity](),
		byPeer:   make(map[transport.PeerID]uint32),
	}
}

// Register adds e, replacing any entity with the same id.
func (r *Registry) Register(e *Entity) {
	id := e.ID()
	if old, ok := r.entities.Get(id.Value); ok && old != e && old.ID().HasPeer() {
		delete(r.byPeer, old.ID().Peer)
	}
	r.entities.Set(id.Value, e)
	if id.HasPeer() {
		r.byPeer[id.Peer] = id.Value
	}
}

// Deregister removes e if it is the registered entity for its id.
func (r *Registry) Deregister(e *Entity) bool {
	id := e.ID()
	cur, ok := r.entities.Get(id.Value)
	if !ok || cur != e {
		return false
	}
	r.entities.Delete(id.Value)
	if id.HasPeer() && r.byPeer[id.Peer] == id.Value {
		delete(r.byPeer, id.Peer)
	}
	return true
}

func (r *Registry) Get(id uint32) (*Entity, bool) {
	return r.entities.Get(id)
}

// ByPeer returns the entity owned by peer.
func (r *Registry) ByPeer(peer transport.PeerID) (*Entity, bool) {
	id, ok := r.byPeer[peer]
	if !ok {
		return nil, false
	}
	return r.entities.Get(id)
}

func (r *Registry) Len() int { return r.entities.Len() }

// PlayerCount is the number of peer owned entities.
func (r *Registry) PlayerCount() int { return len(r.byPeer) }

// All yields entities in spawn order. The entity being visited may be
// deregistered during iteration.
func (r *Registry) All() iter.Seq[*Entity] {
	return func(yield func(*Entity) bool) {
		for p := r.entities.Oldest(); p != nil; {
			next := p.Next()
			if !yield(p.Value) {
				return
			}
			p = next
		}
	}
}

// Players yields peer owned entities in spawn order.
func (r *Registry) Players() iter.Seq[*Entity] {
	return func(yield func(*Entity) bool) {
		for e := range r.All() {
			if e.ID().HasPeer() && !yield(e) {
				return
			}
		}
	}
}

// Snapshot appends every entity in spawn order.
func (r *Registry) Snapshot(dst []*Entity) []*Entity {
	for e := range r.All() {
		dst = append(dst, e)
	}
	return dst
}
