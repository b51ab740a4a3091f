// Package transport abstracts a reliable-UDP style host: peers, numbered
// channels and per-packet reliability. The pipeline's network stage is the
// only goroutine that may touch a Host.
package transport

//go:generate mockgen -destination=mock/host.go -package=mock . Host

import (
	"errors"
	"fmt"
	"time"
)

// PeerID identifies a connected peer on one Host. Zero is never assigned.
type PeerID uint32

type EventType uint8

const (
	EventNone EventType = iota
	EventConnect
	EventDisconnect
	EventTimeout
	EventReceive
)

func (t EventType) String() string {
	switch t {
	case EventNone:
		return "none"
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventTimeout:
		return "timeout"
	case EventReceive:
		return "receive"
	}
	return fmt.Sprintf("event(%d)", uint8(t))
}

type Event struct {
	Type    EventType
	Peer    PeerID
	Channel uint8
	// Data carries the disconnect reason for Disconnect events.
	Data   uint32
	Packet Packet
}

type Flags uint8

const (
	FlagNone     Flags = 0
	FlagReliable Flags = 1
)

// Packet owns its bytes. Hosts never retain a packet after Send returns.
type Packet struct {
	data  []byte
	flags Flags
}

// NewPacket copies data.
func NewPacket(data []byte, flags Flags) Packet {
	b := make([]byte, len(data))
	copy(b, data)
	return Packet{data: b, flags: flags}
}

func (p Packet) Data() []byte   { return p.data }
func (p Packet) Len() int       { return len(p.data) }
func (p Packet) Flags() Flags   { return p.flags }
func (p Packet) Reliable() bool { return p.flags&FlagReliable != 0 }
func (p Packet) IsSet() bool    { return p.data != nil }

// Dispose releases the payload. Calling it twice is harmless.
func (p *Packet) Dispose() {
	p.data = nil
	p.flags = FlagNone
}

// Stats is a snapshot of host traffic counters.
type Stats struct {
	Peers           int
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
}

type Host interface {
	// Listen binds a server host. peerLimit caps concurrent peers.
	Listen(address string, peerLimit int, channelCount int) error
	// Connect dials a server and returns the local id of the server peer.
	// The Connect event is delivered through Service once the link is ready.
	Connect(address string, channelCount int) (PeerID, error)
	Send(peer PeerID, channel uint8, packet Packet) error
	Broadcast(channel uint8, packet Packet) error
	BroadcastGroup(peers []PeerID, channel uint8, packet Packet) error
	// Service waits up to timeout for the next event. An EventNone result
	// means nothing happened.
	Service(timeout time.Duration) (Event, error)
	Disconnect(peer PeerID, data uint32) error
	Peers() []PeerID
	Flush() error
	Stats() Stats
	Close() error
}

type ErrPeerNotFound struct {
	Peer PeerID
}

func (e ErrPeerNotFound) Error() string {
	return fmt.Sprintf("peer %d not found", e.Peer)
}

var (
	ErrHostClosed     = errors.New("host is closed")
	ErrHostNotStarted = errors.New("host is not listening or connected")
	ErrHostStarted    = errors.New("host already started")
	ErrInvalidChannel = errors.New("channel out of range")
	ErrSendQueueFull  = errors.New("peer send queue is full")
	ErrPacketEmpty    = errors.New("packet has no data")
)
