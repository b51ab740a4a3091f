package wire

import (
	"math/bits"
	"sync"

	"github.com/QYUbit/Replica/pkg/transport"
)

const (
	minClassShift = 6
	maxClassShift = 17
)

// BytePool recycles scratch arrays in power of two size classes.
type BytePool struct {
	classes [maxClassShift - minClassShift + 1]sync.Pool
}

func NewBytePool() *BytePool {
	p := &BytePool{}
	for i := range p.classes {
		size := 1 << (i + minClassShift)
		p.classes[i].New = func() any {
			buf := make([]byte, size)
			return &buf
		}
	}
	return p
}

func classOf(size int) int {
	if size <= 1<<minClassShift {
		return 0
	}
	return bits.Len(uint(size-1)) - minClassShift
}

// Get returns an array of at least size bytes.
func (p *BytePool) Get(size int) *[]byte {
	c := classOf(size)
	if c >= len(p.classes) {
		buf := make([]byte, size)
		return &buf
	}
	buf := p.classes[c].Get().(*[]byte)
	*buf = (*buf)[:cap(*buf)]
	return buf
}

// Put returns an array obtained from Get.
func (p *BytePool) Put(buf *[]byte) {
	c := classOf(cap(*buf))
	if c >= len(p.classes) || cap(*buf) != 1<<(c+minClassShift) {
		return
	}
	p.classes[c].Put(buf)
}

var scratchPool = NewBytePool()

// Packet snapshots the buffer into a transport packet.
func (b *BitBuffer) Packet(flags transport.Flags) transport.Packet {
	n := b.Length()
	scratch := scratchPool.Get(n + 4)
	defer scratchPool.Put(scratch)

	b.ToArray(*scratch)
	return transport.NewPacket((*scratch)[:n], flags)
}

// LoadPacket clears the buffer and loads a received packet for reading.
func (b *BitBuffer) LoadPacket(p transport.Packet) error {
	return b.FromArray(p.Data())
}
