// Package server is the authoritative side of replication. It owns every
// entity id, decides who sees what through the interest manager and runs the
// spawn and destroy choreography for connecting and leaving peers.
package server

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/QYUbit/Replica/pkg/axlog"
	"github.com/QYUbit/Replica/pkg/entity"
	"github.com/QYUbit/Replica/pkg/geom"
	"github.com/QYUbit/Replica/pkg/pipeline"
	"github.com/QYUbit/Replica/pkg/proximity"
	"github.com/QYUbit/Replica/pkg/simulation"
	"github.com/QYUbit/Replica/pkg/transport"
	"github.com/QYUbit/Replica/pkg/wire"
)

// bulkBatch bounds the entries of one bulk spawn message.
const bulkBatch = 64

// Server implements entity.Network and pipeline.EventHandler. Apart from
// Start, Run and Stop, its methods must be called on the simulation
// goroutine.
type Server struct {
	cfg      Config
	id       string
	logger   axlog.Logger
	pipeline *pipeline.Pipeline
	sim      *simulation.Simulation
	registry *entity.Registry
	interest *proximity.Manager
	ids      entity.IdAllocator

	scratch *wire.BitBuffer
	reader  *wire.BitBuffer
	batch   []*entity.Entity

	now       time.Time
	nextStats time.Time
	started   atomic.Bool
}

func New(cfg Config) (*Server, error) {
	if cfg.HostFactory == nil {
		return nil, ErrNoHostFactory
	}
	cfg.fill()

	id := uuid.NewString()
	logger := cfg.Logger

	s := &Server{
		cfg:      cfg,
		id:       id,
		logger:   logger,
		registry: entity.NewRegistry(),
		interest: proximity.NewManager(cfg.InterestInterval),
		scratch:  wire.NewBitBuffer(),
		reader:   wire.NewBitBuffer(),
	}

	s.pipeline = pipeline.New(pipeline.Config{
		QueueCapacity:  cfg.QueueCapacity,
		PoolCapacity:   cfg.PoolCapacity,
		ServiceTimeout: cfg.TickRate,
		NewHost:        cfg.HostFactory,
		Executor:       pipeline.ServerExecutor{},
		Logger:         logger,
	})
	s.sim = simulation.NewSimulation(cfg.TickRate, s.Tick)
	return s, nil
}

func (s *Server) Registry() *entity.Registry   { return s.registry }
func (s *Server) Pipeline() *pipeline.Pipeline { return s.pipeline }
func (s *Server) Config() Config               { return s.cfg }

// Start launches the pipeline and queues the host start. It does not tick.
func (s *Server) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if err := s.pipeline.Start(ctx); err != nil {
		return err
	}
	s.logger.Info("Starting server", "server", s.id, "address", s.cfg.Address, "tick_rate", s.cfg.TickRate)
	s.pipeline.StartHost(s.cfg.Address, s.cfg.PeerLimit, s.cfg.ChannelCount, s.cfg.TickRate)
	return nil
}

// Run starts the server and ticks on the calling goroutine until ctx ends,
// Stop is called or the network stage fails. A host that cannot start is
// reported as an error wrapping pipeline.ErrHostStart.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.pipeline.Wait()
		cancel()
	}()

	if err := s.sim.Run(ctx); err != nil {
		return err
	}

	s.logger.Info("Stopping server", "server", s.id)
	err := s.pipeline.Shutdown(s.cfg.ShutdownTimeout)
	if errors.Is(err, pipeline.ErrPipelineStopped) {
		err = <-done
	}
	return err
}

// Stop ends a Run.
func (s *Server) Stop() error {
	return s.sim.Stop()
}

// Tick runs one simulation step: events, interest, behaviors, then outgoing
// state and sync updates.
func (s *Server) Tick(now time.Time, dt time.Duration) {
	s.now = now

	s.pipeline.Poll(s)
	s.interest.Evaluate(now, s.subjects(), s.watchers())

	for e := range s.registry.All() {
		e.Tick(now, dt)
	}
	for e := range s.registry.All() {
		e.UpdateState(now)
		e.UpdateSyncs(now)
	}

	s.logStats(now)
}

func (s *Server) clock() time.Time {
	if s.now.IsZero() {
		return time.Now()
	}
	return s.now
}

func (s *Server) subjects() iter.Seq[proximity.Subject] {
	return func(yield func(proximity.Subject) bool) {
		for e := range s.registry.All() {
			if e.UseProximity() && !yield(e) {
				return
			}
		}
	}
}

func (s *Server) watchers() iter.Seq[proximity.Watcher] {
	return func(yield func(proximity.Watcher) bool) {
		for e := range s.registry.Players() {
			w := proximity.Watcher{ID: e.ID().Value, Peer: e.ID().Peer, Position: e.Position()}
			if !yield(w) {
				return
			}
		}
	}
}

// Spawn creates a server owned entity. Entities without sensors are
// announced to every peer at once, the others reach peers through the
// interest manager.
func (s *Server) Spawn(spawnType entity.SpawnType, pos geom.Vec3, heading float32) (*entity.Entity, error) {
	e, err := s.cfg.Factory.Create(spawnType)
	if err != nil {
		return nil, err
	}
	e.SetTransform(pos, heading)
	e.ServerInit(s, entity.NewNetworkId(s.ids.Next()), s.clock())

	if !e.UseProximity() {
		b := s.scratch
		e.WriteSpawn(b)
		s.pipeline.BroadcastAll(wire.ChannelSpawn, b.Packet(transport.FlagReliable))
	}

	s.logger.Debug("Spawned entity", "network_id", e.ID().Value, "spawn_type", spawnType)
	return e, nil
}

// Despawn destroys e on the server and every peer.
func (s *Server) Despawn(e *entity.Entity) {
	for o := range s.registry.All() {
		o.ForgetWatcher(e.ID().Value)
	}
	e.Despawn()
}

// Scratch implements entity.Network.
func (s *Server) Scratch() *wire.BitBuffer { return s.scratch }

func (s *Server) Send(peer transport.PeerID, channel uint8, packet transport.Packet) {
	s.pipeline.Send(peer, channel, packet)
}

func (s *Server) BroadcastAll(channel uint8, packet transport.Packet) {
	s.pipeline.BroadcastAll(channel, packet)
}

func (s *Server) BroadcastOthers(source transport.PeerID, channel uint8, packet transport.Packet) {
	s.pipeline.BroadcastOthers(source, channel, packet)
}

func (s *Server) BroadcastGroup(peers []transport.PeerID, channel uint8, packet transport.Packet) {
	s.pipeline.BroadcastGroup(peers, channel, packet)
}

func (s *Server) Register(e *entity.Entity)   { s.registry.Register(e) }
func (s *Server) Deregister(e *entity.Entity) { s.registry.Deregister(e) }

// Connect implements pipeline.EventHandler. The peer must answer the
// acknowledgement with a spawn request before it takes part.
func (s *Server) Connect(ev transport.Event) {
	s.logger.Info("Peer connected", "peer", ev.Peer)

	b := s.scratch
	wire.EncodeConnectionEvent(b, uint32(ev.Peer))
	s.pipeline.Send(ev.Peer, wire.ChannelSelf, b.Packet(transport.FlagReliable))
}

// Disconnect implements pipeline.EventHandler.
func (s *Server) Disconnect(ev transport.Event) {
	s.logger.Info("Peer disconnected", "peer", ev.Peer, "reason", ev.Type, "data", ev.Data)

	e, ok := s.registry.ByPeer(ev.Peer)
	if !ok {
		return
	}
	s.Despawn(e)
}

// ProcessPacket implements pipeline.EventHandler. Malformed or mismatched
// packets are logged and dropped.
func (s *Server) ProcessPacket(ev transport.Event) {
	r := s.reader
	if err := r.LoadPacket(ev.Packet); err != nil {
		s.logger.Warn("Dropping packet", "peer", ev.Peer, "error", err)
		return
	}

	h := r.ReadEntityHeader()
	if err := r.Err(); err != nil {
		s.logger.Warn("Dropping packet", "peer", ev.Peer, "error", err)
		return
	}

	var err error
	switch h.Op {
	case wire.OpSpawn:
		err = s.handleSpawnRequest(ev.Peer, r)

	case wire.OpStateUpdate:
		e, ok := s.registry.ByPeer(ev.Peer)
		if !ok || e.ID().Value != h.ID {
			err = fmt.Errorf("%w: %d", ErrIdMismatch, h.ID)
			break
		}
		err = e.ProcessPacket(h.Op, r)

	default:
		err = fmt.Errorf("unexpected opcode %v", h.Op)
	}

	if err != nil {
		s.logger.Warn("Dropping packet", "peer", ev.Peer, "opcode", h.Op, "network_id", h.ID, "error", err)
	}
}

func (s *Server) handleSpawnRequest(peer transport.PeerID, r *wire.BitBuffer) error {
	spawnType := entity.SpawnType(r.ReadInt())
	if err := r.Err(); err != nil {
		return err
	}
	if _, ok := s.registry.ByPeer(peer); ok {
		return ErrAlreadySpawned
	}

	e, err := s.cfg.Factory.Create(spawnType)
	if err != nil {
		return err
	}
	e.ServerInit(s, entity.NewPeerNetworkId(s.ids.Next(), peer), s.clock())

	b := s.scratch
	e.WriteSpawn(b)
	s.pipeline.Send(peer, wire.ChannelSelf, b.Packet(transport.FlagReliable))

	if !e.UseProximity() {
		e.WriteSpawn(b)
		s.pipeline.BroadcastOthers(peer, wire.ChannelSpawn, b.Packet(transport.FlagReliable))
	}

	s.sendExisting(peer, e)
	s.logger.Info("Spawned peer entity", "peer", peer, "network_id", e.ID().Value, "spawn_type", spawnType)
	return nil
}

// sendExisting bulk spawns every entity the newcomer can see without sensor
// gating. Gated entities follow on the next interest pass.
func (s *Server) sendExisting(peer transport.PeerID, self *entity.Entity) {
	s.batch = s.batch[:0]
	for e := range s.registry.All() {
		if e != self && !e.UseProximity() {
			s.batch = append(s.batch, e)
		}
	}

	for start := 0; start < len(s.batch); start += bulkBatch {
		end := min(start+bulkBatch, len(s.batch))

		b := s.scratch
		b.AddEntityHeader(0, wire.OpBulkSpawn)
		b.AddInt(int32(end - start))
		for _, e := range s.batch[start:end] {
			e.AppendSpawn(b)
		}
		s.pipeline.Send(peer, wire.ChannelSpawn, b.Packet(transport.FlagReliable))
	}
	clear(s.batch)
}
