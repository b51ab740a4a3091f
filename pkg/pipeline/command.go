package pipeline

import (
	"fmt"
	"time"

	"github.com/QYUbit/Replica/pkg/transport"
)

type CommandType uint8

const (
	CommandNone CommandType = iota
	CommandStartHost
	CommandStopHost
	CommandSend
	CommandBroadcastAll
	CommandBroadcastOthers
	CommandBroadcastGroup
)

func (t CommandType) String() string {
	switch t {
	case CommandNone:
		return "None"
	case CommandStartHost:
		return "StartHost"
	case CommandStopHost:
		return "StopHost"
	case CommandSend:
		return "Send"
	case CommandBroadcastAll:
		return "BroadcastAll"
	case CommandBroadcastOthers:
		return "BroadcastOthers"
	case CommandBroadcastGroup:
		return "BroadcastGroup"
	}
	return fmt.Sprintf("CommandType(%d)", uint8(t))
}

// Command is an instruction for the network stage. Commands come from a
// CommandPool and are returned to it by the network stage once executed.
type Command struct {
	Type        CommandType
	Source      transport.PeerID
	Target      transport.PeerID
	TargetGroup []transport.PeerID
	Channel     uint8
	Packet      transport.Packet

	// StartHost parameters.
	Address      string
	PeerLimit    int
	ChannelCount int
	UpdateTime   time.Duration

	pool *CommandPool
	slot uint32
	gen  uint32
}

// Generation changes every time the command is returned to its pool.
func (c *Command) Generation() uint32 { return c.gen }

func (c *Command) reset() {
	c.Type = CommandNone
	c.Source = 0
	c.Target = 0
	c.TargetGroup = c.TargetGroup[:0]
	c.Channel = 0
	c.Packet.Dispose()
	c.Address = ""
	c.PeerLimit = 0
	c.ChannelCount = 0
	c.UpdateTime = 0
}

// Ref is a queued reference to a command, pinned to its generation.
type Ref struct {
	cmd *Command
	gen uint32
}

func (c *Command) Ref() Ref {
	return Ref{cmd: c, gen: c.gen}
}
