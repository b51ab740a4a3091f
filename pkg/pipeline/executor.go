package pipeline

import (
	"errors"
	"fmt"

	"github.com/QYUbit/Replica/pkg/transport"
)

// Executor carries out commands against the host. It is only ever called
// from the network stage.
type Executor interface {
	StartHost(host transport.Host, cmd *Command) error
	StopHost(host transport.Host, cmd *Command) error
	Send(host transport.Host, cmd *Command) error
	BroadcastAll(host transport.Host, cmd *Command) error
	BroadcastOthers(host transport.Host, cmd *Command) error
	BroadcastGroup(host transport.Host, cmd *Command) error
}

func execute(ex Executor, host transport.Host, cmd *Command) error {
	switch cmd.Type {
	case CommandStartHost:
		return ex.StartHost(host, cmd)
	case CommandStopHost:
		return ex.StopHost(host, cmd)
	case CommandSend:
		return ex.Send(host, cmd)
	case CommandBroadcastAll:
		return ex.BroadcastAll(host, cmd)
	case CommandBroadcastOthers:
		return ex.BroadcastOthers(host, cmd)
	case CommandBroadcastGroup:
		return ex.BroadcastGroup(host, cmd)
	}
	return fmt.Errorf("%w: %v", ErrUnknownCommand, cmd.Type)
}

// ServerExecutor listens for peers and addresses them individually.
type ServerExecutor struct{}

func (ServerExecutor) StartHost(host transport.Host, cmd *Command) error {
	return host.Listen(cmd.Address, cmd.PeerLimit, cmd.ChannelCount)
}

// StopHost disconnects every peer and flushes before the host is disposed.
func (ServerExecutor) StopHost(host transport.Host, cmd *Command) error {
	var errs []error
	for _, peer := range host.Peers() {
		if err := host.Disconnect(peer, 0); err != nil {
			errs = append(errs, err)
		}
	}
	if err := host.Flush(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (ServerExecutor) Send(host transport.Host, cmd *Command) error {
	return host.Send(cmd.Target, cmd.Channel, cmd.Packet)
}

func (ServerExecutor) BroadcastAll(host transport.Host, cmd *Command) error {
	return host.Broadcast(cmd.Channel, cmd.Packet)
}

// BroadcastOthers skips the command's source peer.
func (ServerExecutor) BroadcastOthers(host transport.Host, cmd *Command) error {
	var errs []error
	for _, peer := range host.Peers() {
		if peer == cmd.Source {
			continue
		}
		if err := host.Send(peer, cmd.Channel, cmd.Packet); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (ServerExecutor) BroadcastGroup(host transport.Host, cmd *Command) error {
	if len(cmd.TargetGroup) == 0 {
		return nil
	}
	return host.BroadcastGroup(cmd.TargetGroup, cmd.Channel, cmd.Packet)
}

// ClientExecutor talks to a single server peer. Broadcasts are meaningless
// on a client and are dropped.
type ClientExecutor struct {
	server    transport.PeerID
	connected bool
}

func (c *ClientExecutor) StartHost(host transport.Host, cmd *Command) error {
	peer, err := host.Connect(cmd.Address, cmd.ChannelCount)
	if err != nil {
		return err
	}
	c.server = peer
	c.connected = true
	return nil
}

func (c *ClientExecutor) StopHost(host transport.Host, cmd *Command) error {
	if !c.connected {
		return nil
	}
	c.connected = false
	err := host.Disconnect(c.server, 0)
	return errors.Join(err, host.Flush())
}

// Send ignores the target and always addresses the server.
func (c *ClientExecutor) Send(host transport.Host, cmd *Command) error {
	if !c.connected {
		return ErrHostNotRunning
	}
	return host.Send(c.server, cmd.Channel, cmd.Packet)
}

func (c *ClientExecutor) BroadcastAll(transport.Host, *Command) error    { return nil }
func (c *ClientExecutor) BroadcastOthers(transport.Host, *Command) error { return nil }
func (c *ClientExecutor) BroadcastGroup(transport.Host, *Command) error  { return nil }
