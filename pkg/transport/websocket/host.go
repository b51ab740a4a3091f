// Package websocket implements transport.Host with gorilla/websocket. Every
// packet is a binary message whose first byte is the channel. The underlying
// TCP connection makes all delivery reliable and ordered.
package websockets

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/QYUbit/Replica/pkg/transport"
	"github.com/gorilla/websocket"
)

const (
	// Path is where the host accepts upgrades.
	Path = "/replica"

	eventBuffer   = 4096
	sendQueueSize = 256
	maxMessage    = 1<<16 + 1

	writeWait  = 2 * time.Second
	pongWait   = 10 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var ErrServerFull = errors.New("websocket: server full")

type outgoing struct {
	kind int
	data []byte
}

type peer struct {
	id       transport.PeerID
	conn     *websocket.Conn
	send     chan outgoing
	done     chan struct{}
	once     sync.Once
	reported atomic.Bool
}

func (p *peer) stop() {
	p.once.Do(func() { close(p.done) })
}

// Host implements transport.Host.
type Host struct {
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer

	server       *http.Server
	listener     net.Listener
	peerLimit    int
	channelCount int

	peers    map[transport.PeerID]*peer
	peerMu   sync.RWMutex
	nextPeer atomic.Uint32

	events chan transport.Event

	started atomic.Bool
	closed  atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
}

func NewHost() *Host {
	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		dialer: websocket.DefaultDialer,
		peers:  make(map[transport.PeerID]*peer),
		events: make(chan transport.Event, eventBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (h *Host) Listen(address string, peerLimit int, channelCount int) error {
	if h.closed.Load() {
		return transport.ErrHostClosed
	}
	if !h.started.CompareAndSwap(false, true) {
		return transport.ErrHostStarted
	}

	ln, err := net.Listen("tcp", address)
	if err != nil {
		h.started.Store(false)
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, h.handleUpgrade)

	h.listener = ln
	h.peerLimit = peerLimit
	h.channelCount = channelCount
	h.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.server.Serve(ln)
	}()
	return nil
}

// Addr is the bound listen address, or nil before Listen.
func (h *Host) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

func (h *Host) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if h.peerLimit > 0 && h.peerCount() >= h.peerLimit {
		http.Error(w, ErrServerFull.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.register(conn)
}

func (h *Host) Connect(address string, channelCount int) (transport.PeerID, error) {
	if h.closed.Load() {
		return 0, transport.ErrHostClosed
	}
	h.started.Store(true)
	h.channelCount = channelCount

	conn, _, err := h.dialer.DialContext(h.ctx, "ws://"+address+Path, nil)
	if err != nil {
		return 0, err
	}
	return h.register(conn), nil
}

func (h *Host) register(conn *websocket.Conn) transport.PeerID {
	p := &peer{
		id:   transport.PeerID(h.nextPeer.Add(1)),
		conn: conn,
		send: make(chan outgoing, sendQueueSize),
		done: make(chan struct{}),
	}

	h.peerMu.Lock()
	h.peers[p.id] = p
	h.peerMu.Unlock()

	h.wg.Add(2)
	go h.writePump(p)
	go h.readPump(p)

	h.push(transport.Event{Type: transport.EventConnect, Peer: p.id})
	return p.id
}

func (h *Host) push(ev transport.Event) {
	select {
	case h.events <- ev:
	case <-h.ctx.Done():
	}
}

func (h *Host) readPump(p *peer) {
	defer h.wg.Done()

	p.conn.SetReadLimit(maxMessage)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, msg, err := p.conn.ReadMessage()
		if err != nil {
			h.drop(p, err)
			return
		}
		p.conn.SetReadDeadline(time.Now().Add(pongWait))

		if kind != websocket.BinaryMessage || len(msg) == 0 {
			continue
		}
		channel := msg[0]
		if h.channelCount > 0 && int(channel) >= h.channelCount {
			continue
		}

		h.packetsReceived.Add(1)
		h.bytesReceived.Add(uint64(len(msg) - 1))
		h.push(transport.Event{
			Type:    transport.EventReceive,
			Peer:    p.id,
			Channel: channel,
			Packet:  transport.NewPacket(msg[1:], transport.FlagReliable),
		})
	}
}

func (h *Host) writePump(p *peer) {
	defer h.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-p.done:
			for {
				select {
				case msg := <-p.send:
					if !h.write(p, msg) {
						return
					}
					if msg.kind == websocket.CloseMessage {
						p.conn.SetReadDeadline(time.Now().Add(writeWait))
						return
					}
				default:
					return
				}
			}

		case msg := <-p.send:
			if !h.write(p, msg) {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Host) write(p *peer, msg outgoing) bool {
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if msg.kind == websocket.CloseMessage {
		return p.conn.WriteMessage(websocket.CloseMessage, msg.data) == nil
	}
	if err := p.conn.WriteMessage(websocket.BinaryMessage, msg.data); err != nil {
		return false
	}
	h.packetsSent.Add(1)
	h.bytesSent.Add(uint64(len(msg.data) - 1))
	return true
}

// drop forgets a peer whose connection ended and reports it once.
func (h *Host) drop(p *peer, err error) {
	if !p.reported.CompareAndSwap(false, true) {
		return
	}
	h.remove(p.id)
	p.stop()

	ev := transport.Event{Type: transport.EventDisconnect, Peer: p.id}

	var closeErr *websocket.CloseError
	var netErr net.Error
	switch {
	case errors.As(err, &closeErr):
		if v, perr := strconv.ParseUint(closeErr.Text, 10, 32); perr == nil {
			ev.Data = uint32(v)
		}
	case errors.As(err, &netErr) && netErr.Timeout():
		ev.Type = transport.EventTimeout
	}
	h.push(ev)
}

func (h *Host) remove(id transport.PeerID) {
	h.peerMu.Lock()
	delete(h.peers, id)
	h.peerMu.Unlock()
}

func (h *Host) lookup(id transport.PeerID) (*peer, error) {
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

	p, err := h.lookup(peer)
	if err != nil {
		return err
	}

	data := make([]byte, 1+packet.Len())
	data[0] = channel
	copy(data[1:], packet.Data())

	select {
	case p.send <- outgoing{kind: websocket.BinaryMessage, data: data}:
		return nil
	default:
		return transport.ErrSendQueueFull
	}
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

// Disconnect flushes queued messages and sends a close frame carrying data.
func (h *Host) Disconnect(peer transport.PeerID, data uint32) error {
	p, err := h.lookup(peer)
	if err != nil {
		return err
	}
	if !p.reported.CompareAndSwap(false, true) {
		return transport.ErrPeerNotFound{Peer: peer}
	}
	h.remove(peer)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, strconv.FormatUint(uint64(data), 10))
	select {
	case p.send <- outgoing{kind: websocket.CloseMessage, data: msg}:
	default:
	}
	p.stop()

	select {
	case h.events <- transport.Event{Type: transport.EventDisconnect, Peer: peer, Data: data}:
	default:
	}
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

	h.peerMu.Lock()
	peers := h.peers
	h.peers = make(map[transport.PeerID]*peer)
	h.peerMu.Unlock()

	for _, p := range peers {
		p.reported.Store(true)
		p.conn.Close()
	}

	h.cancel()

	var err error
	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		err = h.server.Shutdown(ctx)
		cancel()
	}
	h.wg.Wait()
	return err
}
