package quic

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/QYUbit/Replica/pkg/transport"
	"github.com/quic-go/quic-go"
)

const (
	maxFrameSize  = 1 << 16
	frameHeader   = 5
	sendQueueSize = 256

	// controlChannel carries the disconnect notice on the stream.
	controlChannel = 0xff

	preambleMagic = 'R'
	lingerTimeout = 250 * time.Millisecond
)

var bufferPool = &sync.Pool{
	New: func() any {
		buf := make([]byte, maxFrameSize+frameHeader)
		return &buf
	},
}

type outgoing struct {
	channel  uint8
	data     []byte
	reliable bool
}

type peer struct {
	id     transport.PeerID
	conn   *quic.Conn
	stream *quic.Stream

	send chan outgoing
	quit chan uint32

	closed    atomic.Bool
	reported  atomic.Bool
	closeOnce sync.Once
	data      atomic.Uint32
}

func newPeer(id transport.PeerID, conn *quic.Conn, stream *quic.Stream) *peer {
	return &peer{
		id:     id,
		conn:   conn,
		stream: stream,
		send:   make(chan outgoing, sendQueueSize),
		quit:   make(chan uint32, 1),
	}
}

func (p *peer) enqueue(msg outgoing) error {
	if p.closed.Load() {
		return transport.ErrPeerNotFound{Peer: p.id}
	}
	select {
	case p.send <- msg:
		return nil
	default:
		return transport.ErrSendQueueFull
	}
}

// shutdown asks the write pump to flush, send a disconnect notice and close.
func (p *peer) shutdown(data uint32) {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.quit <- data
	})
}

func writeFrame(w io.Writer, channel uint8, payload []byte) error {
	bp := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bp)

	buf := (*bp)[:frameHeader+len(payload)]
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	buf[4] = channel
	copy(buf[frameHeader:], payload)

	_, err := w.Write(buf)
	return err
}

func (p *peer) write(h *Host, msg outgoing) {
	if !msg.reliable && len(msg.data) < maxFrameSize {
		buf := make([]byte, 1+len(msg.data))
		buf[0] = msg.channel
		copy(buf[1:], msg.data)

		err := p.conn.SendDatagram(buf)
		if err == nil {
			h.countSent(len(msg.data))
			return
		}
		var tooLarge *quic.DatagramTooLargeError
		if !errors.As(err, &tooLarge) {
			return
		}
	}

	if err := writeFrame(p.stream, msg.channel, msg.data); err == nil {
		h.countSent(len(msg.data))
	}
}

func (p *peer) writePump(h *Host, ctx context.Context) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case <-p.conn.Context().Done():
			return

		case data := <-p.quit:
			p.drain(h)
			p.linger(data)
			return

		case msg := <-p.send:
			p.write(h, msg)
		}
	}
}

func (p *peer) drain(h *Host) {
	for {
		select {
		case msg := <-p.send:
			p.write(h, msg)
		default:
			return
		}
	}
}

// linger sends the notice and gives the remote end a moment to close first
// so queued stream data is delivered.
func (p *peer) linger(data uint32) {
	var notice [4]byte
	binary.BigEndian.PutUint32(notice[:], data)
	if err := writeFrame(p.stream, controlChannel, notice[:]); err == nil {
		p.stream.Close()
		select {
		case <-p.conn.Context().Done():
		case <-time.After(lingerTimeout):
		}
	}
	p.conn.CloseWithError(codeNormal, "disconnect")
}

func (p *peer) readPump(h *Host, ctx context.Context) {
	defer h.wg.Done()

	bp := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bp)
	buf := *bp

	for {
		if _, err := io.ReadFull(p.stream, buf[:frameHeader]); err != nil {
			h.drop(p, err)
			return
		}

		n := binary.BigEndian.Uint32(buf)
		channel := buf[4]
		if n > maxFrameSize {
			p.conn.CloseWithError(codeProtocol, ErrFrameTooLong.Error())
			h.drop(p, ErrFrameTooLong)
			return
		}

		payload := buf[frameHeader : frameHeader+int(n)]
		if _, err := io.ReadFull(p.stream, payload); err != nil {
			h.drop(p, err)
			return
		}

		if channel == controlChannel {
			if n == 4 {
				p.data.Store(binary.BigEndian.Uint32(payload))
			}
			h.drop(p, io.EOF)
			p.conn.CloseWithError(codeNormal, "disconnect")
			return
		}

		h.receive(ctx, p, channel, payload, transport.FlagReliable)
	}
}

func (p *peer) datagramPump(h *Host, ctx context.Context) {
	defer h.wg.Done()

	for {
		msg, err := p.conn.ReceiveDatagram(ctx)
		if err != nil {
			h.drop(p, err)
			return
		}
		if len(msg) == 0 {
			continue
		}
		h.receive(ctx, p, msg[0], msg[1:], transport.FlagNone)
	}
}
