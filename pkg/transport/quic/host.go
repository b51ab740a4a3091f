// Package quic implements transport.Host on top of quic-go. Reliable packets
// travel as length prefixed frames on a single bidirectional stream opened by
// the dialing side. Unreliable packets travel as datagrams and fall back to
// the stream when they do not fit.
package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/QYUbit/Replica/pkg/transport"
	"github.com/quic-go/quic-go"
)

const (
	eventBuffer      = 4096
	handshakeTimeout = 5 * time.Second
)

// Host implements transport.Host.
type Host struct {
	tlsConf  *tls.Config
	quicConf *quic.Config

	listener     *quic.Listener
	peerLimit    int
	channelCount int

	peers    map[transport.PeerID]*peer
	peerMu   sync.RWMutex
	nextPeer atomic.Uint32

	events chan transport.Event

	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
}

// NewHost creates an idle host. Datagrams are always enabled on quicConf.
func NewHost(tlsConf *tls.Config, quicConf *quic.Config) *Host {
	if quicConf == nil {
		quicConf = &quic.Config{}
	} else {
		quicConf = quicConf.Clone()
	}
	quicConf.EnableDatagrams = true

	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		tlsConf:  tlsConf,
		quicConf: quicConf,
		peers:    make(map[transport.PeerID]*peer),
		events:   make(chan transport.Event, eventBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (h *Host) Listen(address string, peerLimit int, channelCount int) error {
	if h.closed.Load() {
		return transport.ErrHostClosed
	}
	if !h.started.CompareAndSwap(false, true) {
		return transport.ErrHostStarted
	}

	l, err := quic.ListenAddr(address, h.tlsConf, h.quicConf)
	if err != nil {
		h.started.Store(false)
		return err
	}
	h.listener = l
	h.peerLimit = peerLimit
	h.channelCount = channelCount

	h.wg.Add(1)
	go h.acceptConnections()
	return nil
}

// Addr is the bound listen address, or nil before Listen.
func (h *Host) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

func (h *Host) acceptConnections() {
	defer h.wg.Done()

	for {
		conn, err := h.listener.Accept(h.ctx)
		if err != nil {
			return
		}

		if h.peerLimit > 0 && h.peerCount() >= h.peerLimit {
			conn.CloseWithError(codeServerFull, "server full")
			continue
		}

		h.wg.Add(1)
		go h.handshake(conn)
	}
}

func (h *Host) handshake(conn *quic.Conn) {
	defer h.wg.Done()

	ctx, cancel := context.WithTimeout(h.ctx, handshakeTimeout)
	defer cancel()

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		conn.CloseWithError(codeProtocol, err.Error())
		return
	}

	var preamble [2]byte
	stream.SetReadDeadline(time.Now().Add(handshakeTimeout))
	if _, err := io.ReadFull(stream, preamble[:]); err != nil || preamble[0] != preambleMagic {
		conn.CloseWithError(codeProtocol, ErrBadPreamble.Error())
		return
	}
	stream.SetReadDeadline(time.Time{})

	if int(preamble[1]) != h.channelCount {
		conn.CloseWithError(codeProtocol, transport.ErrInvalidChannel.Error())
		return
	}

	h.register(conn, stream)
}

func (h *Host) Connect(address string, channelCount int) (transport.PeerID, error) {
	if h.closed.Load() {
		return 0, transport.ErrHostClosed
	}
	h.started.Store(true)
	h.channelCount = channelCount

	ctx, cancel := context.WithTimeout(h.ctx, handshakeTimeout)
	defer cancel()

	conn, err := quic.DialAddr(ctx, address, h.tlsConf, h.quicConf)
	if err != nil {
		return 0, err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(codeProtocol, err.Error())
		return 0, err
	}

	if _, err := stream.Write([]byte{preambleMagic, byte(channelCount)}); err != nil {
		conn.CloseWithError(codeProtocol, err.Error())
		return 0, err
	}

	return h.register(conn, stream), nil
}

func (h *Host) register(conn *quic.Conn, stream *quic.Stream) transport.PeerID {
	id := transport.PeerID(h.nextPeer.Add(1))
	p := newPeer(id, conn, stream)

	h.peerMu.Lock()
	h.peers[id] = p
	h.peerMu.Unlock()

	h.wg.Add(3)
	go p.writePump(h, h.ctx)
	go p.readPump(h, h.ctx)
	go p.datagramPump(h, h.ctx)

	h.push(transport.Event{Type: transport.EventConnect, Peer: id})
	return id
}

func (h *Host) push(ev transport.Event) {
	select {
	case h.events <- ev:
	case <-h.ctx.Done():
	}
}

// pushLocal never blocks. It is used for events raised on the goroutine
// that calls Service.
func (h *Host) pushLocal(ev transport.Event) {
	select {
	case h.events <- ev:
	default:
	}
}

func (h *Host) receive(ctx context.Context, p *peer, channel uint8, payload []byte, flags transport.Flags) {
	if h.channelCount > 0 && int(channel) >= h.channelCount {
		return
	}

	h.packetsReceived.Add(1)
	h.bytesReceived.Add(uint64(len(payload)))

	h.push(transport.Event{
		Type:    transport.EventReceive,
		Peer:    p.id,
		Channel: channel,
		Packet:  transport.NewPacket(payload, flags),
	})
}

func (h *Host) countSent(n int) {
	h.packetsSent.Add(1)
	h.bytesSent.Add(uint64(n))
}

// drop forgets a peer whose connection ended and reports it once.
func (h *Host) drop(p *peer, err error) {
	if !p.reported.CompareAndSwap(false, true) {
		return
	}
	p.closed.Store(true)
	h.remove(p.id)

	ev := transport.Event{Type: transport.EventDisconnect, Peer: p.id, Data: p.data.Load()}

	var idle *quic.IdleTimeoutError
	var appErr *quic.ApplicationError
	switch {
	case errors.As(err, &idle):
		ev.Type = transport.EventTimeout
	case errors.As(err, &appErr) && appErr.Remote && ev.Data == 0:
		ev.Data = uint32(appErr.ErrorCode)
	}

	p.conn.CloseWithError(codeNormal, "")
	h.push(ev)
}

func (h *Host) remove(id transport.PeerID) *peer {
	h.peerMu.Lock()
	defer h.peerMu.Unlock()
	p := h.peers[id]
	delete(h.peers, id)
	return p
}

func (h *Host) peer(id transport.PeerID) (*peer, error) {
	if h.closed.Load() {
		return nil, transport.ErrHostClosed
	}
	h.peerMu.RLock()
	p, ok := h.peers[id]
	h.peerMu.RUnlock()
	if !ok {
		return nil, transport.ErrPeerNotFound{Peer: id}
	}
	return p, nil
}

func (h *Host) peerCount() int {
	h.peerMu.RLock()
	defer h.peerMu.RUnlock()
	return len(h.peers)
}

func (h *Host) Send(peer transport.PeerID, channel uint8, packet transport.Packet) error {
	if !packet.IsSet() {
		return transport.ErrPacketEmpty
	}
	if h.channelCount > 0 && int(channel) >= h.channelCount {
		return transport.ErrInvalidChannel
	}

	p, err := h.peer(peer)
	if err != nil {
		return err
	}

	return p.enqueue(outgoing{
		channel:  channel,
		data:     packet.Data(),
		reliable: packet.Reliable(),
	})
}

func (h *Host) Broadcast(channel uint8, packet transport.Packet) error {
	return h.BroadcastGroup(h.Peers(), channel, packet)
}

func (h *Host) BroadcastGroup(peers []transport.PeerID, channel uint8, packet transport.Packet) error {
	var errs []error
	for _, id := range peers {
		if err := h.Send(id, channel, packet); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Host) Service(timeout time.Duration) (transport.Event, error) {
	if h.closed.Load() {
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
	case <-h.ctx.Done():
		return transport.Event{}, transport.ErrHostClosed
	}
}

// Disconnect flushes queued packets to the peer, then closes the connection.
// The remote end receives data with its Disconnect event.
func (h *Host) Disconnect(peer transport.PeerID, data uint32) error {
	p, err := h.peer(peer)
	if err != nil {
		return err
	}
	if !p.reported.CompareAndSwap(false, true) {
		return transport.ErrPeerNotFound{Peer: peer}
	}

	h.remove(peer)
	p.shutdown(data)
	h.pushLocal(transport.Event{Type: transport.EventDisconnect, Peer: peer, Data: data})
	return nil
}

func (h *Host) Peers() []transport.PeerID {
	h.peerMu.RLock()
	ids := make([]transport.PeerID, 0, len(h.peers))
	for id := range h.peers {
		ids = append(ids, id)
	}
	h.peerMu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Flush is a no-op. Each peer's write pump sends as soon as packets are queued.
func (h *Host) Flush() error {
	return nil
}

func (h *Host) Stats() transport.Stats {
	return transport.Stats{
		Peers:           h.peerCount(),
		PacketsSent:     h.packetsSent.Load(),
		PacketsReceived: h.packetsReceived.Load(),
		BytesSent:       h.bytesSent.Load(),
		BytesReceived:   h.bytesReceived.Load(),
	}
}

func (h *Host) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return transport.ErrHostClosed
	}

	var err error
	h.closeOnce.Do(func() {
		h.peerMu.Lock()
		peers := h.peers
		h.peers = make(map[transport.PeerID]*peer)
		h.peerMu.Unlock()

		for _, p := range peers {
			p.reported.Store(true)
			p.conn.CloseWithError(codeNormal, "host closed")
		}

		h.cancel()
		if h.listener != nil {
			err = h.listener.Close()
		}
		h.wg.Wait()
	})
	return err
}
