// Package entity defines replicated entities, their behaviors and the
// registry that owns them on each machine.
package entity

import (
	"fmt"
	"time"

	"github.com/QYUbit/Replica/pkg/geom"
	"github.com/QYUbit/Replica/pkg/proximity"
	"github.com/QYUbit/Replica/pkg/replication"
	"github.com/QYUbit/Replica/pkg/transport"
	"github.com/QYUbit/Replica/pkg/wire"
)

// DefaultUpdateRate is the minimum spacing of state and sync updates for
// entities that are not gated by sensors.
const DefaultUpdateRate = 50 * time.Millisecond

// Network is the slice of a network system an entity talks to. Every method
// is called from the simulation goroutine.
type Network interface {
	// Scratch is a shared encode buffer. Encoders clear it before use.
	Scratch() *wire.BitBuffer
	Send(peer transport.PeerID, channel uint8, packet transport.Packet)
	BroadcastAll(channel uint8, packet transport.Packet)
	BroadcastOthers(source transport.PeerID, channel uint8, packet transport.Packet)
	BroadcastGroup(peers []transport.PeerID, channel uint8, packet transport.Packet)
	Register(e *Entity)
	Deregister(e *Entity)
}

// Hooks are optional lifecycle callbacks.
type Hooks struct {
	OnStartServer      func(e *Entity)
	OnStartClient      func(e *Entity)
	OnStartLocalClient func(e *Entity)
	OnDestroy          func(e *Entity)
}

type Options struct {
	// Sensors make the entity proximity gated. Server side only.
	Sensors    []*proximity.Sensor
	UpdateRate time.Duration
	Range      wire.Range3
	Hooks      Hooks
}

type Entity struct {
	id        NetworkId
	spawnType SpawnType
	behavior  Behavior
	hooks     Hooks
	net       Network
	layer     *replication.Layer
	posRange  wire.Range3

	isServer    bool
	isClient    bool
	isLocal     bool
	initialized bool
	destroyed   bool

	position geom.Vec3
	heading  float32

	// last transform seen by UpdateState and its version
	cachedPosition geom.Vec3
	cachedHeading  float32
	version        uint64
	sentVersion    uint64

	updateRate time.Duration
	nextState  time.Time

	sensors     []*proximity.Sensor
	sensorSent  []uint64
	observers   *proximity.Observers
	eligible    []*proximity.Sensor
	peerScratch []transport.PeerID
}

// New builds an uninitialized entity and registers the behavior's fields.
func New(spawnType SpawnType, behavior Behavior, opts Options) (*Entity, error) {
	layer, err := replication.NewLayer(behavior.Syncs()...)
	if err != nil {
		return nil, fmt.Errorf("spawn type %v: %w", spawnType, err)
	}

	if opts.UpdateRate <= 0 {
		opts.UpdateRate = DefaultUpdateRate
	}
	if opts.Range == (wire.Range3{}) {
		opts.Range = wire.DefaultRange
	}

	return &Entity{
		spawnType:  spawnType,
		behavior:   behavior,
		hooks:      opts.Hooks,
		layer:      layer,
		posRange:   opts.Range,
		updateRate: opts.UpdateRate,
		sensors:    opts.Sensors,
		sensorSent: make([]uint64, len(opts.Sensors)),
	}, nil
}

func (e *Entity) ID() NetworkId                { return e.id }
func (e *Entity) SpawnType() SpawnType         { return e.spawnType }
func (e *Entity) Kind() Kind                   { return e.behavior.Kind() }
func (e *Entity) Behavior() Behavior           { return e.behavior }
func (e *Entity) Layer() *replication.Layer    { return e.layer }
func (e *Entity) IsServer() bool               { return e.isServer }
func (e *Entity) IsClient() bool               { return e.isClient }
func (e *Entity) IsLocal() bool                { return e.isLocal }
func (e *Entity) IsDestroyed() bool            { return e.destroyed }
func (e *Entity) Heading() float32             { return e.heading }
func (e *Entity) Sensors() []*proximity.Sensor { return e.sensors }

func (e *Entity) String() string {
	return fmt.Sprintf("%v#%v", e.spawnType, e.id)
}

// Position implements proximity.Subject.
func (e *Entity) Position() geom.Vec3 { return e.position }

// SubjectID implements proximity.Subject.
func (e *Entity) SubjectID() uint32 { return e.id.Value }

// Observers is nil on client copies.
func (e *Entity) Observers() *proximity.Observers { return e.observers }

func (e *Entity) UseProximity() bool { return e.isServer && len(e.sensors) > 0 }

// SetTransform places the entity. Positions outside the quantization range
// are clamped.
func (e *Entity) SetTransform(pos geom.Vec3, heading float32) {
	e.position = geom.NewVec3(
		geom.Clamp(pos.X, e.posRange[0].Min(), e.posRange[0].Max()),
		geom.Clamp(pos.Y, e.posRange[1].Min(), e.posRange[1].Max()),
		geom.Clamp(pos.Z, e.posRange[2].Min(), e.posRange[2].Max()),
	)
	e.heading = geom.NormalizeHeading(heading)
}

// Move offsets the transform.
func (e *Entity) Move(delta geom.Vec3, turn float32) {
	e.SetTransform(e.position.Add(delta), e.heading+turn)
}

// ServerInit makes this process the authority for the entity and registers
// it with net.
func (e *Entity) ServerInit(net Network, id NetworkId, now time.Time) {
	e.id = id
	e.net = net
	e.isServer = true
	e.initialized = true
	e.observers = proximity.NewObservers()
	e.layer.ServerInit(e.updateRate, now)
	e.markSent()

	net.Register(e)
	if e.hooks.OnStartServer != nil {
		e.hooks.OnStartServer(e)
	}
}

// ClientInit builds a copy from a spawn message whose header and spawn type
// have been consumed. Spawns received on the self channel belong to this
// client.
func (e *Entity) ClientInit(net Network, id uint32, channel uint8, r *wire.BitBuffer, now time.Time) error {
	e.id = NewNetworkId(id)
	e.net = net
	e.isClient = true
	e.isLocal = channel == wire.ChannelSelf
	e.layer.ClientInit()

	if err := e.ReadInitialState(r); err != nil {
		return fmt.Errorf("entity %d initial state: %w", id, err)
	}
	e.initialized = true
	e.nextState = now
	e.markSent()

	net.Register(e)
	if e.hooks.OnStartClient != nil {
		e.hooks.OnStartClient(e)
	}
	if e.isLocal && e.hooks.OnStartLocalClient != nil {
		e.hooks.OnStartLocalClient(e)
	}
	return nil
}

// WriteInitialState writes the full sync snapshot followed by the transform.
func (e *Entity) WriteInitialState(b *wire.BitBuffer) {
	e.layer.WriteAllSyncData(b)
	e.writeTransform(b)
}

func (e *Entity) ReadInitialState(r *wire.BitBuffer) error {
	if err := e.layer.ReadAllSyncData(r); err != nil {
		return err
	}
	pos, heading, err := e.readTransform(r)
	if err != nil {
		return err
	}
	e.SetTransform(pos, heading)
	if d, ok := e.behavior.(interpolated); ok {
		d.snap(e.position, e.heading)
	}
	return nil
}

// WriteSpawn starts a new Spawn message in b.
func (e *Entity) WriteSpawn(b *wire.BitBuffer) {
	b.AddEntityHeader(e.id.Value, wire.OpSpawn)
	b.AddInt(int32(e.spawnType))
	e.WriteInitialState(b)
}

// AppendSpawn writes a nested Spawn entry for a bulk spawn.
func (e *Entity) AppendSpawn(b *wire.BitBuffer) {
	b.AppendEntityHeader(e.id.Value, wire.OpSpawn)
	b.AddInt(int32(e.spawnType))
	e.WriteInitialState(b)
}

func (e *Entity) writeTransform(b *wire.BitBuffer) {
	b.AddVector3(e.position, e.posRange)
	b.AddFloat(e.heading)
}

func (e *Entity) readTransform(r *wire.BitBuffer) (geom.Vec3, float32, error) {
	pos := r.ReadVector3(e.posRange)
	heading := r.ReadFloat()
	return pos, heading, r.Err()
}

func (e *Entity) transformChanged() bool {
	return e.position != e.cachedPosition || e.heading != e.cachedHeading
}

func (e *Entity) markSent() {
	e.cachedPosition = e.position
	e.cachedHeading = e.heading
	e.sentVersion = e.version
	for i := range e.sensorSent {
		e.sensorSent[i] = e.version
	}
}

// HasStateUpdate reports whether a transform update is pending for anyone.
func (e *Entity) HasStateUpdate() bool {
	if !e.initialized || e.destroyed || e.Kind() == KindStatic {
		return false
	}
	if e.isClient && !e.isLocal {
		return false
	}
	if e.UseProximity() && e.observers.Len() == 0 {
		return false
	}
	if e.transformChanged() {
		return true
	}
	if e.UseProximity() {
		for _, v := range e.sensorSent {
			if v != e.version {
				return true
			}
		}
		return false
	}
	return e.sentVersion != e.version
}

// UpdateState sends the transform when it changed. Server copies send
// unreliably on the replication channel to observers or every other peer,
// the local client copy sends to the server on the self channel.
func (e *Entity) UpdateState(now time.Time) {
	if !e.HasStateUpdate() {
		return
	}
	if e.transformChanged() {
		e.cachedPosition = e.position
		e.cachedHeading = e.heading
		e.version++
	}

	if e.UseProximity() {
		e.updateObservers(now)
		return
	}
	if now.Before(e.nextState) {
		return
	}
	e.nextState = now.Add(e.updateRate)
	e.sentVersion = e.version

	b := e.net.Scratch()
	b.AddEntityHeader(e.id.Value, wire.OpStateUpdate)
	e.writeTransform(b)
	packet := b.Packet(transport.FlagNone)

	if e.isLocal {
		e.net.Send(0, wire.ChannelSelf, packet)
		return
	}
	e.net.BroadcastOthers(e.id.Peer, wire.ChannelReplication, packet)
}

// updateObservers sends to the peers in bands whose cooldown elapsed and
// that have not seen the current version yet.
func (e *Entity) updateObservers(now time.Time) {
	e.eligible = e.eligible[:0]
	for i, s := range e.sensors {
		if s.SetUpdateFlag(now) && e.sensorSent[i] != e.version {
			e.eligible = append(e.eligible, s)
			e.sensorSent[i] = e.version
		}
	}
	if len(e.eligible) == 0 {
		return
	}

	e.peerScratch = e.observers.Peers(e.eligible, e.peerScratch[:0])
	if len(e.peerScratch) == 0 {
		return
	}

	b := e.net.Scratch()
	b.AddEntityHeader(e.id.Value, wire.OpStateUpdate)
	e.writeTransform(b)
	e.net.BroadcastGroup(e.peerScratch, wire.ChannelReplication, b.Packet(transport.FlagNone))
}

// ObservingPeers flags every sensor whose cooldown elapsed at now and
// returns the observers in any of those bands.
func (e *Entity) ObservingPeers(now time.Time, dst []transport.PeerID) []transport.PeerID {
	if !e.UseProximity() {
		return dst
	}
	for _, s := range e.sensors {
		s.SetUpdateFlag(now)
	}
	return e.observers.Peers(e.sensors, dst)
}

// UpdateSyncs flushes dirty synchronized fields as one reliable message.
func (e *Entity) UpdateSyncs(now time.Time) {
	if !e.isServer || e.destroyed {
		return
	}
	if e.UseProximity() && e.observers.Len() == 0 {
		return
	}

	b := e.net.Scratch()
	if e.layer.UpdateSyncs(now, e.id.Value, b) == 0 {
		return
	}
	packet := b.Packet(transport.FlagReliable)

	if e.UseProximity() {
		e.peerScratch = e.observers.AllPeers(e.peerScratch[:0])
		e.net.BroadcastGroup(e.peerScratch, wire.ChannelSelf, packet)
		return
	}
	e.net.BroadcastOthers(e.id.Peer, wire.ChannelSelf, packet)
}

// ProcessPacket applies a state or sync update whose header was consumed.
func (e *Entity) ProcessPacket(op wire.OpCode, r *wire.BitBuffer) error {
	if !e.initialized {
		return ErrNotInitialized
	}

	switch op {
	case wire.OpSyncUpdate:
		if !e.isClient {
			return ErrNotClient
		}
		return e.layer.ProcessSyncUpdate(r)

	case wire.OpStateUpdate:
		pos, heading, err := e.readTransform(r)
		if err != nil {
			return err
		}
		switch {
		case e.isServer:
			e.SetTransform(pos, heading)
		case e.isLocal:
			// the owner is authoritative for its own transform
		default:
			if d, ok := e.behavior.(interpolated); ok {
				d.setTarget(pos, heading)
			} else {
				e.SetTransform(pos, heading)
			}
		}
		return nil
	}
	return fmt.Errorf("entity %v: unexpected opcode %v", e.id, op)
}

// SensorEnter implements proximity.Subject. The first band a watcher enters
// spawns the entity on that watcher's peer.
func (e *Entity) SensorEnter(band proximity.Band, w proximity.Watcher) {
	if !e.observers.Enter(w.ID, w.Peer, band) {
		return
	}
	b := e.net.Scratch()
	e.WriteSpawn(b)
	e.net.Send(w.Peer, wire.ChannelSpawn, b.Packet(transport.FlagReliable))
}

// SensorExit implements proximity.Subject. Leaving the last band destroys
// the entity on that watcher's peer.
func (e *Entity) SensorExit(band proximity.Band, w proximity.Watcher) {
	if !e.observers.Exit(w.ID, band) {
		return
	}
	b := e.net.Scratch()
	wire.EncodeDestroy(b, e.id.Value)
	e.net.Send(w.Peer, wire.ChannelSpawn, b.Packet(transport.FlagReliable))
}

// ForgetWatcher drops a disconnected watcher without notifying it.
func (e *Entity) ForgetWatcher(watcher uint32) {
	if e.observers != nil {
		e.observers.Forget(watcher)
	}
}

// Tick advances the behavior.
func (e *Entity) Tick(now time.Time, dt time.Duration) {
	if e.initialized && !e.destroyed {
		e.behavior.Tick(e, now, dt)
	}
}

// Despawn deregisters the entity and, on the server, tells every peer to
// destroy it. Later calls do nothing.
func (e *Entity) Despawn() {
	if e.destroyed {
		return
	}
	e.destroyed = true

	if e.net == nil {
		return
	}
	e.net.Deregister(e)
	if e.hooks.OnDestroy != nil {
		e.hooks.OnDestroy(e)
	}

	if e.isServer {
		b := e.net.Scratch()
		wire.EncodeDestroy(b, e.id.Value)
		e.net.BroadcastAll(wire.ChannelSpawn, b.Packet(transport.FlagReliable))
	}
}
