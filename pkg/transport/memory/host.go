// Package memory is an in-process transport.Host. Hosts created from the
// same Network can listen on and connect to string addresses. Delivery is
// ordered and lossless regardless of packet flags.
package memory

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/QYUbit/Replica/pkg/transport"
)

var (
	ErrAddressNotFound = errors.New("no host listening on address")
	ErrAddressInUse    = errors.New("address already in use")
	ErrServerFull      = errors.New("server peer limit reached")
)

const eventBuffer = 4096

// Network is a registry of listening hosts.
type Network struct {
	mu        sync.Mutex
	listeners map[string]*Host
}

func NewNetwork() *Network {
	return &Network{listeners: make(map[string]*Host)}
}

func (n *Network) NewHost() *Host {
	return &Host{
		network: n,
		events:  make(chan transport.Event, eventBuffer),
		peers:   make(map[transport.PeerID]link),
	}
}

type link struct {
	remote   *Host
	remoteID transport.PeerID
}

type Host struct {
	network *Network

	mu           sync.Mutex
	peers        map[transport.PeerID]link
	nextPeer     transport.PeerID
	address      string
	peerLimit    int
	channelCount int
	started      bool
	closed       bool

	events chan transport.Event

	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
}

func (h *Host) Listen(address string, peerLimit int, channelCount int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return transport.ErrHostClosed
	}
	if h.started {
		return transport.ErrHostStarted
	}

	h.network.mu.Lock()
	defer h.network.mu.Unlock()
	if _, ok := h.network.listeners[address]; ok {
		return ErrAddressInUse
	}
	h.network.listeners[address] = h

	h.address = address
	h.peerLimit = peerLimit
	h.channelCount = channelCount
	h.started = true
	return nil
}

func (h *Host) Connect(address string, channelCount int) (transport.PeerID, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0, transport.ErrHostClosed
	}
	h.channelCount = channelCount
	h.started = true
	h.mu.Unlock()

	h.network.mu.Lock()
	server, ok := h.network.listeners[address]
	h.network.mu.Unlock()
	if !ok {
		return 0, ErrAddressNotFound
	}

	local := h.reserve()
	remote, err := server.accept(h, local)
	if err != nil {
		h.mu.Lock()
		delete(h.peers, local)
		h.mu.Unlock()
		return 0, err
	}

	h.mu.Lock()
	h.peers[local] = link{remote: server, remoteID: remote}
	h.mu.Unlock()

	h.push(transport.Event{Type: transport.EventConnect, Peer: local})
	return local, nil
}

func (h *Host) reserve() transport.PeerID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextPeer++
	h.peers[h.nextPeer] = link{}
	return h.nextPeer
}

func (h *Host) accept(client *Host, clientID transport.PeerID) (transport.PeerID, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0, ErrAddressNotFound
	}
	if h.peerLimit > 0 && len(h.peers) >= h.peerLimit {
		h.mu.Unlock()
		return 0, ErrServerFull
	}
	h.nextPeer++
	id := h.nextPeer
	h.peers[id] = link{remote: client, remoteID: clientID}
	h.mu.Unlock()

	h.push(transport.Event{Type: transport.EventConnect, Peer: id})
	return id, nil
}

func (h *Host) push(ev transport.Event) bool {
	select {
	case h.events <- ev:
		return true
	default:
		return false
	}
}

func (h *Host) lookup(peer transport.PeerID) (link, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return link{}, transport.ErrHostClosed
	}
	l, ok := h.peers[peer]
	if !ok || l.remote == nil {
		return link{}, transport.ErrPeerNotFound{Peer: peer}
	}
	return l, nil
}

func (h *Host) deliver(l link, channel uint8, packet transport.Packet) error {
	if !packet.IsSet() {
		return transport.ErrPacketEmpty
	}
	if h.channelCount > 0 && int(channel) >= h.channelCount {
		return transport.ErrInvalidChannel
	}

	ev := transport.Event{
		Type:    transport.EventReceive,
		Peer:    l.remoteID,
		Channel: channel,
		Packet:  transport.NewPacket(packet.Data(), packet.Flags()),
	}
	if !l.remote.push(ev) {
		return transport.ErrSendQueueFull
	}

	n := uint64(packet.Len())
	h.packetsSent.Add(1)
	h.bytesSent.Add(n)
	l.remote.packetsReceived.Add(1)
	l.remote.bytesReceived.Add(n)
	return nil
}

func (h *Host) Send(peer transport.PeerID, channel uint8, packet transport.Packet) error {
	l, err := h.lookup(peer)
	if err != nil {
		return err
	}
	return h.deliver(l, channel, packet)
}

func (h *Host) Broadcast(channel uint8, packet transport.Packet) error {
	return h.BroadcastGroup(h.Peers(), channel, packet)
}

func (h *Host) BroadcastGroup(peers []transport.PeerID, channel uint8, packet transport.Packet) error {
	var errs []error
	for _, peer := range peers {
		if err := h.Send(peer, channel, packet); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Host) Service(timeout time.Duration) (transport.Event, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return transport.Event{}, transport.ErrHostClosed
	}

	select {
	case ev := <-h.events:
		return ev, nil
	default:
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case ev := <-h.events:
		return ev, nil
	case <-t.C:
		return transport.Event{}, nil
	}
}

// Disconnect drops the link on both ends. Each end sees a Disconnect event.
func (h *Host) Disconnect(peer transport.PeerID, data uint32) error {
	h.mu.Lock()
	l, ok := h.peers[peer]
	if ok {
		delete(h.peers, peer)
	}
	h.mu.Unlock()
	if !ok {
		return transport.ErrPeerNotFound{Peer: peer}
	}

	h.push(transport.Event{Type: transport.EventDisconnect, Peer: peer, Data: data})
	if l.remote != nil {
		l.remote.dropped(l.remoteID, data)
	}
	return nil
}

func (h *Host) dropped(peer transport.PeerID, data uint32) {
	h.mu.Lock()
	_, ok := h.peers[peer]
	delete(h.peers, peer)
	h.mu.Unlock()
	if ok {
		h.push(transport.Event{Type: transport.EventDisconnect, Peer: peer, Data: data})
	}
}

// Timeout drops the link as if the remote end had gone silent. Only this
// end sees an event, of type Timeout.
func (h *Host) Timeout(peer transport.PeerID) error {
	h.mu.Lock()
	l, ok := h.peers[peer]
	delete(h.peers, peer)
	h.mu.Unlock()
	if !ok {
		return transport.ErrPeerNotFound{Peer: peer}
	}

	if l.remote != nil {
		l.remote.mu.Lock()
		delete(l.remote.peers, l.remoteID)
		l.remote.mu.Unlock()
	}
	h.push(transport.Event{Type: transport.EventTimeout, Peer: peer})
	return nil
}

func (h *Host) Peers() []transport.PeerID {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]transport.PeerID, 0, len(h.peers))
	for id, l := range h.peers {
		if l.remote != nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (h *Host) Flush() error { return nil }

func (h *Host) Stats() transport.Stats {
	h.mu.Lock()
	peers := len(h.peers)
	h.mu.Unlock()

	return transport.Stats{
		Peers:           peers,
		PacketsSent:     h.packetsSent.Load(),
		PacketsReceived: h.packetsReceived.Load(),
		BytesSent:       h.bytesSent.Load(),
		BytesReceived:   h.bytesReceived.Load(),
	}
}

// Close disconnects every peer and releases the address.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return transport.ErrHostClosed
	}
	h.closed = true
	links := h.peers
	h.peers = make(map[transport.PeerID]link)
	address := h.address
	h.mu.Unlock()

	for _, l := range links {
		if l.remote != nil {
			l.remote.dropped(l.remoteID, 0)
		}
	}

	if address != "" {
		h.network.mu.Lock()
		if h.network.listeners[address] == h {
			delete(h.network.listeners, address)
		}
		h.network.mu.Unlock()
	}
	return nil
}
