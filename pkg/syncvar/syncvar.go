// Package syncvar provides the dirty tracked fields an entity replicates.
package syncvar

import "github.com/QYUbit/Replica/pkg/wire"

// Variable is the type erased view the replication layer works with.
type Variable interface {
	Name() string
	Dirty() bool
	ResetDirty()
	BitFlag() uint32
	SetBitFlag(flag uint32)
	// Pack writes the current value.
	Pack(b *wire.BitBuffer)
	// Unpack reads a value and applies it as if Set had been called.
	Unpack(b *wire.BitBuffer)
}

type codec[T comparable] struct {
	pack   func(b *wire.BitBuffer, v T)
	unpack func(b *wire.BitBuffer) T
}

// Var is a single synchronized field. It is owned by the simulation
// goroutine and must not be shared.
type Var[T comparable] struct {
	name      string
	value     T
	dirty     bool
	bitFlag   uint32
	onChanged func(T)
	codec     codec[T]
}

type (
	Float  = Var[float32]
	Int    = Var[int32]
	Uint   = Var[uint32]
	String = Var[string]
)

var (
	floatCodec = codec[float32]{
		pack:   func(b *wire.BitBuffer, v float32) { b.AddFloat(v) },
		unpack: func(b *wire.BitBuffer) float32 { return b.ReadFloat() },
	}
	intCodec = codec[int32]{
		pack:   func(b *wire.BitBuffer, v int32) { b.AddInt(v) },
		unpack: func(b *wire.BitBuffer) int32 { return b.ReadInt() },
	}
	uintCodec = codec[uint32]{
		pack:   func(b *wire.BitBuffer, v uint32) { b.AddUint(v) },
		unpack: func(b *wire.BitBuffer) uint32 { return b.ReadUint() },
	}
	stringCodec = codec[string]{
		pack:   func(b *wire.BitBuffer, v string) { b.AddString(v) },
		unpack: func(b *wire.BitBuffer) string { return b.ReadString() },
	}
)

func NewFloat(name string, initial float32) *Float {
	return &Float{name: name, value: initial, codec: floatCodec}
}

func NewInt(name string, initial int32) *Int {
	return &Int{name: name, value: initial, codec: intCodec}
}

func NewUint(name string, initial uint32) *Uint {
	return &Uint{name: name, value: initial, codec: uintCodec}
}

func NewString(name string, initial string) *String {
	return &String{name: name, value: initial, codec: stringCodec}
}

func (v *Var[T]) Name() string { return v.name }

func (v *Var[T]) Value() T { return v.value }

// Set marks the field dirty and fires the change callback only when value
// differs from the current one.
func (v *Var[T]) Set(value T) {
	if value == v.value {
		return
	}
	v.value = value
	v.dirty = true
	if v.onChanged != nil {
		v.onChanged(value)
	}
}

// OnChanged registers the callback invoked after every effective change.
func (v *Var[T]) OnChanged(fn func(T)) { v.onChanged = fn }

func (v *Var[T]) Dirty() bool { return v.dirty }

func (v *Var[T]) ResetDirty() { v.dirty = false }

func (v *Var[T]) BitFlag() uint32 { return v.bitFlag }

func (v *Var[T]) SetBitFlag(flag uint32) { v.bitFlag = flag }

func (v *Var[T]) Pack(b *wire.BitBuffer) {
	v.codec.pack(b, v.value)
}

func (v *Var[T]) Unpack(b *wire.BitBuffer) {
	value := v.codec.unpack(b)
	if b.Err() != nil {
		return
	}
	v.Set(value)
	v.dirty = false
}
