package wire

import (
	"math"

	"github.com/QYUbit/Replica/pkg/geom"
)

const (
	// MaxRange is the half extent of the playable area on every axis.
	MaxRange = 32
	// DefaultPrecision is the quantization step for positions.
	DefaultPrecision = 0.05
)

// BoundedRange maps floats in [min, max] to integers of a fixed bit width.
type BoundedRange struct {
	minValue     float32
	maxValue     float32
	precision    float32
	requiredBits int
	mask         uint32
}

func NewBoundedRange(minValue, maxValue, precision float32) BoundedRange {
	if maxValue <= minValue || precision <= 0 {
		panic("wire: invalid bounded range")
	}

	bits := int(math.Log2(float64((maxValue-minValue)/precision)+0.5)) + 1
	if bits > 32 {
		panic("wire: bounded range needs more than 32 bits")
	}

	return BoundedRange{
		minValue:     minValue,
		maxValue:     maxValue,
		precision:    precision,
		requiredBits: bits,
		mask:         mask(bits),
	}
}

func (r BoundedRange) Min() float32       { return r.minValue }
func (r BoundedRange) Max() float32       { return r.maxValue }
func (r BoundedRange) Precision() float32 { return r.precision }
func (r BoundedRange) RequiredBits() int  { return r.requiredBits }

// Quantize clamps value into the range before scaling.
func (r BoundedRange) Quantize(value float32) uint32 {
	value = geom.Clamp(value, r.minValue, r.maxValue)
	return uint32((value-r.minValue)/r.precision+0.5) & r.mask
}

func (r BoundedRange) Dequantize(data uint32) float32 {
	return geom.Clamp(float32(data)*r.precision+r.minValue, r.minValue, r.maxValue)
}

// Range3 holds one bounded range per axis.
type Range3 [3]BoundedRange

func UniformRange(minValue, maxValue, precision float32) Range3 {
	r := NewBoundedRange(minValue, maxValue, precision)
	return Range3{r, r, r}
}

var DefaultRange = UniformRange(-MaxRange, MaxRange, DefaultPrecision)

type CompressedVec3 struct {
	X, Y, Z uint32
}

func (r Range3) Compress(v geom.Vec3) CompressedVec3 {
	return CompressedVec3{r[0].Quantize(v.X), r[1].Quantize(v.Y), r[2].Quantize(v.Z)}
}

func (r Range3) Decompress(c CompressedVec3) geom.Vec3 {
	return geom.NewVec3(r[0].Dequantize(c.X), r[1].Dequantize(c.Y), r[2].Dequantize(c.Z))
}

func (b *BitBuffer) AddVector3(v geom.Vec3, r Range3) *BitBuffer {
	c := r.Compress(v)
	return b.AddUint(c.X).AddUint(c.Y).AddUint(c.Z)
}

func (b *BitBuffer) ReadVector3(r Range3) geom.Vec3 {
	c := CompressedVec3{X: b.ReadUint(), Y: b.ReadUint(), Z: b.ReadUint()}
	return r.Decompress(c)
}
