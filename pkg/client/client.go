// Package client is the non-authoritative side of replication. It mirrors
// what the server spawns, interpolates remote entities and sends the
// transform of the one entity it owns.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/QYUbit/Replica/pkg/axlog"
	"github.com/QYUbit/Replica/pkg/entity"
	"github.com/QYUbit/Replica/pkg/pipeline"
	"github.com/QYUbit/Replica/pkg/simulation"
	"github.com/QYUbit/Replica/pkg/transport"
	"github.com/QYUbit/Replica/pkg/wire"
)

var (
	ErrNoHostFactory  = errors.New("client config has no host factory")
	ErrAlreadyStarted = errors.New("client has already started")
)

// Client implements entity.Network and pipeline.EventHandler. Apart from
// Start, Run and Stop, its methods must be called on the simulation
// goroutine.
type Client struct {
	cfg      Config
	logger   axlog.Logger
	pipeline *pipeline.Pipeline
	sim      *simulation.Simulation
	registry *entity.Registry

	scratch *wire.BitBuffer
	reader  *wire.BitBuffer

	local     *entity.Entity
	peerID    uint32
	connected bool

	now     time.Time
	started atomic.Bool
}

func New(cfg Config) (*Client, error) {
	if cfg.HostFactory == nil {
		return nil, ErrNoHostFactory
	}
	cfg.fill()

	c := &Client{
		cfg:      cfg,
		logger:   cfg.Logger,
		registry: entity.NewRegistry(),
		scratch:  wire.NewBitBuffer(),
		reader:   wire.NewBitBuffer(),
	}

	c.pipeline = pipeline.New(pipeline.Config{
		QueueCapacity:  cfg.QueueCapacity,
		PoolCapacity:   cfg.PoolCapacity,
		ServiceTimeout: cfg.TickRate,
		NewHost:        cfg.HostFactory,
		Executor:       &pipeline.ClientExecutor{},
		Logger:         cfg.Logger,
	})
	c.sim = simulation.NewSimulation(cfg.TickRate, c.Tick)
	return c, nil
}

func (c *Client) Registry() *entity.Registry   { return c.registry }
func (c *Client) Pipeline() *pipeline.Pipeline { return c.pipeline }

// Local is the entity this client owns, or nil before its spawn arrived.
func (c *Client) Local() *entity.Entity { return c.local }

// PeerID is the id the server assigned to this connection.
func (c *Client) PeerID() uint32 { return c.peerID }

// Connected reports whether the server acknowledged the connection.
func (c *Client) Connected() bool { return c.connected }

// Start launches the pipeline and queues the connection attempt.
func (c *Client) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if err := c.pipeline.Start(ctx); err != nil {
		return err
	}
	c.logger.Info("Connecting", "address", c.cfg.Address)
	c.pipeline.StartHost(c.cfg.Address, 1, c.cfg.ChannelCount, c.cfg.TickRate)
	return nil
}

// Run starts the client and ticks on the calling goroutine until ctx ends,
// Stop is called or the network stage fails.
func (c *Client) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.pipeline.Wait()
		cancel()
	}()

	if err := c.sim.Run(ctx); err != nil {
		return err
	}

	err := c.pipeline.Shutdown(c.cfg.ShutdownTimeout)
	if errors.Is(err, pipeline.ErrPipelineStopped) {
		err = <-done
	}
	return err
}

func (c *Client) Stop() error {
	return c.sim.Stop()
}

// Tick handles received packets, advances behaviors and sends the local
// entity's transform.
func (c *Client) Tick(now time.Time, dt time.Duration) {
	c.now = now
	c.pipeline.Poll(c)

	for e := range c.registry.All() {
		e.Tick(now, dt)
	}
	if c.cfg.OnTick != nil {
		c.cfg.OnTick(now, dt)
	}
	if c.local != nil {
		c.local.UpdateState(now)
	}
}

func (c *Client) clock() time.Time {
	if c.now.IsZero() {
		return time.Now()
	}
	return c.now
}

// Scratch implements entity.Network.
func (c *Client) Scratch() *wire.BitBuffer { return c.scratch }

func (c *Client) Send(peer transport.PeerID, channel uint8, packet transport.Packet) {
	c.pipeline.Send(peer, channel, packet)
}

func (c *Client) BroadcastAll(channel uint8, packet transport.Packet) {
	c.pipeline.BroadcastAll(channel, packet)
}

func (c *Client) BroadcastOthers(source transport.PeerID, channel uint8, packet transport.Packet) {
	c.pipeline.BroadcastOthers(source, channel, packet)
}

func (c *Client) BroadcastGroup(peers []transport.PeerID, channel uint8, packet transport.Packet) {
	c.pipeline.BroadcastGroup(peers, channel, packet)
}

func (c *Client) Register(e *entity.Entity)   { c.registry.Register(e) }
func (c *Client) Deregister(e *entity.Entity) { c.registry.Deregister(e) }

// Connect implements pipeline.EventHandler. The server speaks first.
func (c *Client) Connect(ev transport.Event) {
	c.logger.Info("Transport connected", "peer", ev.Peer)
}

// Disconnect implements pipeline.EventHandler. Every copy is destroyed
// before OnDisconnect runs.
func (c *Client) Disconnect(ev transport.Event) {
	c.logger.Warn("Disconnected from server", "reason", ev.Type, "data", ev.Data)
	c.connected = false

	for e := range c.registry.All() {
		e.Despawn()
	}
	c.local = nil

	if c.cfg.OnDisconnect != nil {
		c.cfg.OnDisconnect(ev)
	}
}

// ProcessPacket implements pipeline.EventHandler.
func (c *Client) ProcessPacket(ev transport.Event) {
	r := c.reader
	if err := r.LoadPacket(ev.Packet); err != nil {
		c.logger.Warn("Dropping packet", "error", err)
		return
	}

	h := r.ReadEntityHeader()
	if err := r.Err(); err != nil {
		c.logger.Warn("Dropping packet", "error", err)
		return
	}

	var err error
	switch h.Op {
	case wire.OpConnectionEvent:
		err = c.handleConnectionEvent(h.ID, r)

	case wire.OpSpawn:
		err = c.spawn(h.ID, ev.Channel, r)

	case wire.OpBulkSpawn:
		err = c.bulkSpawn(r)

	case wire.OpDestroy:
		if e, ok := c.registry.Get(h.ID); ok {
			c.destroy(e)
		}

	case wire.OpStateUpdate, wire.OpSyncUpdate:
		e, ok := c.registry.Get(h.ID)
		if !ok {
			// can trail a Destroy on another channel
			c.logger.Debug("Update for unknown entity", "network_id", h.ID, "opcode", h.Op)
			return
		}
		err = e.ProcessPacket(h.Op, r)

	default:
		err = fmt.Errorf("unexpected opcode %v", h.Op)
	}

	if err != nil {
		c.logger.Warn("Dropping packet", "opcode", h.Op, "network_id", h.ID, "channel", ev.Channel, "error", err)
	}
}

func (c *Client) handleConnectionEvent(peer uint32, r *wire.BitBuffer) error {
	status := wire.OpCode(r.ReadUint())
	if err := r.Err(); err != nil {
		return err
	}
	if status != wire.OpOk {
		return fmt.Errorf("connection refused with status %v", status)
	}

	c.peerID = peer
	c.connected = true
	c.logger.Info("Connected", "peer", peer)

	if c.cfg.SpawnType == entity.SpawnNone {
		return nil
	}
	b := c.scratch
	wire.EncodeSpawnRequest(b, int32(c.cfg.SpawnType))
	c.pipeline.Send(0, wire.ChannelSelf, b.Packet(transport.FlagReliable))
	return nil
}

func (c *Client) spawn(id uint32, channel uint8, r *wire.BitBuffer) error {
	spawnType := entity.SpawnType(r.ReadInt())
	if err := r.Err(); err != nil {
		return err
	}

	e, err := c.cfg.Factory.Create(spawnType)
	if err != nil {
		return err
	}
	if old, ok := c.registry.Get(id); ok {
		c.destroy(old)
	}
	if err := e.ClientInit(c, id, channel, r, c.clock()); err != nil {
		return err
	}

	if e.IsLocal() {
		c.local = e
	}
	c.logger.Debug("Spawned copy", "network_id", id, "spawn_type", spawnType, "local", e.IsLocal())
	return nil
}

func (c *Client) bulkSpawn(r *wire.BitBuffer) error {
	count := r.ReadInt()
	if err := r.Err(); err != nil {
		return err
	}
	for i := int32(0); i < count; i++ {
		h := r.ReadEntityHeader()
		if err := r.Err(); err != nil {
			return err
		}
		if err := c.spawn(h.ID, wire.ChannelSpawn, r); err != nil {
			return fmt.Errorf("bulk entry %d: %w", i, err)
		}
	}
	return nil
}

func (c *Client) destroy(e *entity.Entity) {
	e.Despawn()
	if e == c.local {
		c.local = nil
	}
}
