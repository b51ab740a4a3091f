// Package wire implements the bit-packed message encoding shared by server
// and client.
package wire

import (
	"math"
)

const (
	// MaxPacketSize bounds a single encoded message in bytes.
	MaxPacketSize   = 1 << 16
	MaxStringLength = 512

	defaultChunks = 64
)

// BitBuffer is a growable stream of bits stored in 32-bit chunks. Writes
// append at the write cursor, reads consume from the read cursor. The first
// failed read latches an error that Err reports; later reads return zero.
// A BitBuffer is not safe for concurrent use.
type BitBuffer struct {
	chunks  []uint32
	nextPos int
	readPos int
	err     error
}

func NewBitBuffer() *BitBuffer {
	return &BitBuffer{chunks: make([]uint32, 0, defaultChunks)}
}

// Clear resets both cursors and the latched error.
func (b *BitBuffer) Clear() {
	b.chunks = b.chunks[:0]
	b.nextPos = 0
	b.readPos = 0
	b.err = nil
}

// Length is the encoded size in bytes.
func (b *BitBuffer) Length() int {
	return (b.nextPos + 7) >> 3
}

// Bits is the number of bits written.
func (b *BitBuffer) Bits() int {
	return b.nextPos
}

// Remaining is the number of unread bits.
func (b *BitBuffer) Remaining() int {
	return b.nextPos - b.readPos
}

func (b *BitBuffer) Err() error {
	return b.err
}

func (b *BitBuffer) grow(n int) {
	for len(b.chunks) < n {
		b.chunks = append(b.chunks, 0)
	}
}

func mask(numBits int) uint32 {
	if numBits >= 32 {
		return math.MaxUint32
	}
	return (1 << numBits) - 1
}

// Add writes the low numBits of value. numBits must be in [1, 32].
func (b *BitBuffer) Add(numBits int, value uint32) *BitBuffer {
	if numBits < 1 || numBits > 32 {
		panic("wire: bit count out of range")
	}
	if b.nextPos+numBits > MaxPacketSize*8 {
		panic(ErrBufferOverflow)
	}

	value &= mask(numBits)
	index := b.nextPos >> 5
	used := b.nextPos & 31

	b.grow(index + 1)
	b.chunks[index] |= value << used

	if used+numBits > 32 {
		b.grow(index + 2)
		b.chunks[index+1] |= value >> (32 - used)
	}

	b.nextPos += numBits
	return b
}

// Read consumes numBits and returns them right aligned.
func (b *BitBuffer) Read(numBits int) uint32 {
	if numBits < 1 || numBits > 32 {
		panic("wire: bit count out of range")
	}
	if b.err != nil {
		return 0
	}
	if b.readPos+numBits > b.nextPos {
		b.err = ErrBufferUnderflow
		return 0
	}

	index := b.readPos >> 5
	used := b.readPos & 31

	value := b.chunks[index] >> used
	if used+numBits > 32 {
		value |= b.chunks[index+1] << (32 - used)
	}

	b.readPos += numBits
	return value & mask(numBits)
}

func (b *BitBuffer) AddBool(v bool) *BitBuffer {
	if v {
		return b.Add(1, 1)
	}
	return b.Add(1, 0)
}

func (b *BitBuffer) ReadBool() bool {
	return b.Read(1) == 1
}

func (b *BitBuffer) AddUint8(v uint8) *BitBuffer {
	return b.Add(8, uint32(v))
}

func (b *BitBuffer) ReadUint8() uint8 {
	return uint8(b.Read(8))
}

// AddUint writes v as a little endian base-128 varint.
func (b *BitBuffer) AddUint(v uint32) *BitBuffer {
	for v >= 0x80 {
		b.Add(8, v&0x7f|0x80)
		v >>= 7
	}
	return b.Add(8, v)
}

func (b *BitBuffer) ReadUint() uint32 {
	var v uint32
	for shift := 0; shift < 35; shift += 7 {
		chunk := b.Read(8)
		if b.err != nil {
			return 0
		}
		v |= (chunk & 0x7f) << shift
		if chunk&0x80 == 0 {
			return v
		}
	}
	b.err = ErrMalformedVarint
	return 0
}

// AddInt zigzag encodes v so small negative values stay short.
func (b *BitBuffer) AddInt(v int32) *BitBuffer {
	return b.AddUint(uint32((v << 1) ^ (v >> 31)))
}

func (b *BitBuffer) ReadInt() int32 {
	u := b.ReadUint()
	return int32(u>>1) ^ -int32(u&1)
}

func (b *BitBuffer) AddUshort(v uint16) *BitBuffer {
	return b.AddUint(uint32(v))
}

func (b *BitBuffer) ReadUshort() uint16 {
	return uint16(b.ReadUint())
}

// AddFloat sends the IEEE 754 bit pattern of f.
func (b *BitBuffer) AddFloat(f float32) *BitBuffer {
	return b.AddUint(math.Float32bits(f))
}

func (b *BitBuffer) ReadFloat() float32 {
	return math.Float32frombits(b.ReadUint())
}

// AddString writes the byte length followed by the raw bytes.
func (b *BitBuffer) AddString(s string) *BitBuffer {
	if len(s) > MaxStringLength {
		panic(ErrStringTooLong)
	}
	b.AddUint(uint32(len(s)))
	for i := 0; i < len(s); i++ {
		b.Add(8, uint32(s[i]))
	}
	return b
}

func (b *BitBuffer) ReadString() string {
	n := b.ReadUint()
	if b.err != nil {
		return ""
	}
	if n > MaxStringLength {
		b.err = ErrStringTooLong
		return ""
	}
	if int(n)*8 > b.Remaining() {
		b.err = ErrBufferUnderflow
		return ""
	}

	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(b.Read(8))
	}
	return string(buf)
}

// ToArray copies the written bytes into data and returns the count.
func (b *BitBuffer) ToArray(data []byte) int {
	n := b.Length()
	if len(data) < n {
		panic(ErrShortArray)
	}
	for i := 0; i < n; i++ {
		data[i] = byte(b.chunks[i>>2] >> ((i & 3) << 3))
	}
	return n
}

// FromArray clears the buffer and loads data for reading.
func (b *BitBuffer) FromArray(data []byte) error {
	b.Clear()
	if len(data) > MaxPacketSize {
		return ErrPacketTooLarge
	}

	b.grow((len(data) + 3) >> 2)
	for i, v := range data {
		b.chunks[i>>2] |= uint32(v) << ((i & 3) << 3)
	}
	b.nextPos = len(data) * 8
	return nil
}
