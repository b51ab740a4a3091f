// Package replication tracks an entity's synchronized fields and encodes
// them as full snapshots or dirty-bit deltas.
package replication

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/QYUbit/Replica/pkg/syncvar"
	"github.com/QYUbit/Replica/pkg/wire"
)

// MaxSyncs is the number of bits in the dirty mask.
const MaxSyncs = 32

var (
	ErrTooManySyncs  = errors.New("entity declares more than 32 synchronized fields")
	ErrDuplicateSync = errors.New("duplicate synchronized field name")
	ErrUnknownSync   = errors.New("dirty mask references an unregistered field")
)

type Layer struct {
	syncs      []syncvar.Variable
	updateRate time.Duration
	nextUpdate time.Time
	isServer   bool
}

// NewLayer registers vars; see RegisterSyncs.
func NewLayer(vars ...syncvar.Variable) (*Layer, error) {
	l := &Layer{}
	if err := l.RegisterSyncs(vars...); err != nil {
		return nil, err
	}
	return l, nil
}

// RegisterSyncs orders the fields by name and assigns bit i to the i-th
// field. Declaration order does not matter, both ends derive the same flags
// from the same field list.
func (l *Layer) RegisterSyncs(vars ...syncvar.Variable) error {
	if len(vars) > MaxSyncs {
		return fmt.Errorf("%w: %d", ErrTooManySyncs, len(vars))
	}

	sorted := make([]syncvar.Variable, len(vars))
	copy(sorted, vars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })

	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Name() == sorted[i].Name() {
			return fmt.Errorf("%w: %s", ErrDuplicateSync, sorted[i].Name())
		}
	}
	for i, v := range sorted {
		v.SetBitFlag(1 << i)
	}

	l.syncs = sorted
	return nil
}

func (l *Layer) Syncs() []syncvar.Variable { return l.syncs }

// ServerInit enables outgoing deltas, sent at most once per updateRate.
func (l *Layer) ServerInit(updateRate time.Duration, now time.Time) {
	l.isServer = true
	l.updateRate = updateRate
	l.nextUpdate = now
}

func (l *Layer) ClientInit() {
	l.isServer = false
}

func (l *Layer) IsServer() bool { return l.isServer }

// DirtyBits is the union of the flags of every dirty field.
func (l *Layer) DirtyBits() uint32 {
	var bits uint32
	for _, s := range l.syncs {
		if s.Dirty() {
			bits |= s.BitFlag()
		}
	}
	return bits
}

// UpdateSyncs writes a SyncUpdate message for entity id into b when the
// update interval has elapsed and at least one field is dirty. It returns
// the mask that was written, zero meaning b was left untouched.
func (l *Layer) UpdateSyncs(now time.Time, id uint32, b *wire.BitBuffer) uint32 {
	if !l.isServer || now.Before(l.nextUpdate) {
		return 0
	}
	l.nextUpdate = now.Add(l.updateRate)

	dirtyBits := l.DirtyBits()
	if dirtyBits == 0 {
		return 0
	}

	b.AddEntityHeader(id, wire.OpSyncUpdate)
	b.AddInt(int32(dirtyBits))

	for _, s := range l.syncs {
		if dirtyBits&s.BitFlag() != 0 {
			s.Pack(b)
			s.ResetDirty()
		}
	}
	return dirtyBits
}

// ProcessSyncUpdate applies a delta. The header has already been consumed.
func (l *Layer) ProcessSyncUpdate(b *wire.BitBuffer) error {
	dirtyBits := uint32(b.ReadInt())
	if err := b.Err(); err != nil {
		return err
	}
	if len(l.syncs) < MaxSyncs && dirtyBits>>len(l.syncs) != 0 {
		return fmt.Errorf("%w: mask %#x", ErrUnknownSync, dirtyBits)
	}

	for _, s := range l.syncs {
		if dirtyBits&s.BitFlag() != 0 {
			s.Unpack(b)
		}
	}
	return b.Err()
}

// WriteAllSyncData writes every field regardless of dirty state.
func (l *Layer) WriteAllSyncData(b *wire.BitBuffer) {
	for _, s := range l.syncs {
		s.Pack(b)
	}
}

func (l *Layer) ReadAllSyncData(b *wire.BitBuffer) error {
	for _, s := range l.syncs {
		s.Unpack(b)
	}
	return b.Err()
}
