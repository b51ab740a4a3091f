package entity

import (
	"fmt"

	"github.com/QYUbit/Replica/pkg/transport"
)

// NetworkId names an entity on every machine. Two ids are equal when their
// values are; the peer is bookkeeping for player entities.
type NetworkId struct {
	Value   uint32
	Peer    transport.PeerID
	hasPeer bool
}

func NewNetworkId(value uint32) NetworkId {
	return NetworkId{Value: value}
}

// NewPeerNetworkId ties the id to the peer that owns the entity.
func NewPeerNetworkId(value uint32, peer transport.PeerID) NetworkId {
	return NetworkId{Value: value, Peer: peer, hasPeer: true}
}

func (id NetworkId) HasPeer() bool         { return id.hasPeer }
func (id NetworkId) IsEmpty() bool         { return id.Value == 0 }
func (id NetworkId) Equal(o NetworkId) bool { return id.Value == o.Value }

func (id NetworkId) String() string {
	if id.hasPeer {
		return fmt.Sprintf("%d@peer%d", id.Value, id.Peer)
	}
	return fmt.Sprintf("%d", id.Value)
}

// IdAllocator hands out ids starting at 1. Each server owns one; ids are
// never reused within its lifetime.
type IdAllocator struct {
	last uint32
}

func (a *IdAllocator) Next() uint32 {
	a.last++
	if a.last == 0 {
		panic("entity: network id space exhausted")
	}
	return a.last
}

type SpawnType int32

const (
	SpawnNone SpawnType = iota
	SpawnCube
	SpawnPlayer
	SpawnNPC
)

func (s SpawnType) String() string {
	switch s {
	case SpawnNone:
		return "None"
	case SpawnCube:
		return "Cube"
	case SpawnPlayer:
		return "Player"
	case SpawnNPC:
		return "NPC"
	}
	return fmt.Sprintf("SpawnType(%d)", int32(s))
}
