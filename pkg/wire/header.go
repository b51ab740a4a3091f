package wire

import "fmt"

type OpCode uint16

const (
	OpNone OpCode = iota
	OpConnectionEvent
	OpOk
	OpSpawn
	OpBulkSpawn
	OpDestroy
	OpStateUpdate
	OpSyncUpdate
)

func (o OpCode) String() string {
	switch o {
	case OpNone:
		return "None"
	case OpConnectionEvent:
		return "ConnectionEvent"
	case OpOk:
		return "Ok"
	case OpSpawn:
		return "Spawn"
	case OpBulkSpawn:
		return "BulkSpawn"
	case OpDestroy:
		return "Destroy"
	case OpStateUpdate:
		return "StateUpdate"
	case OpSyncUpdate:
		return "SyncUpdate"
	}
	return fmt.Sprintf("OpCode(%d)", uint16(o))
}

// Channel conventions.
const (
	// ChannelSelf carries self-authoritative state, spawn requests and the
	// spawn of a client's own entity.
	ChannelSelf uint8 = iota
	// ChannelSpawn carries spawn, destroy and bulk spawn notifications.
	ChannelSpawn
	// ChannelReplication carries proximity gated position updates.
	ChannelReplication

	ChannelCount = 3
)

type Header struct {
	Op OpCode
	ID uint32
}

// AddEntityHeader clears the buffer and starts a new message.
func (b *BitBuffer) AddEntityHeader(id uint32, op OpCode) *BitBuffer {
	b.Clear()
	return b.AppendEntityHeader(id, op)
}

// AppendEntityHeader writes a header at the current position, used for the
// nested entries of a bulk spawn.
func (b *BitBuffer) AppendEntityHeader(id uint32, op OpCode) *BitBuffer {
	return b.Add(16, uint32(op)).Add(32, id)
}

func (b *BitBuffer) ReadEntityHeader() Header {
	op := OpCode(b.Read(16))
	id := b.Read(32)
	return Header{Op: op, ID: id}
}
