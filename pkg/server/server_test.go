package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/QYUbit/Replica/pkg/axlog"
	"github.com/QYUbit/Replica/pkg/entity"
	"github.com/QYUbit/Replica/pkg/geom"
	"github.com/QYUbit/Replica/pkg/pipeline"
	"github.com/QYUbit/Replica/pkg/proximity"
	"github.com/QYUbit/Replica/pkg/transport"
	"github.com/QYUbit/Replica/pkg/transport/memory"
	"github.com/QYUbit/Replica/pkg/wire"
)

const testAddr = "mem:server"

type message struct {
	channel uint8
	header  wire.Header
	packet  transport.Packet
}

// peerConn is a hand driven client that records what the server sends.
type peerConn struct {
	host *memory.Host
	peer transport.PeerID
	msgs []message
	gone bool
}

func (p *peerConn) drain(t *testing.T) {
	t.Helper()
	for {
		ev, err := p.host.Service(time.Millisecond)
		if err != nil {
			t.Fatalf("client service: %v", err)
		}
		switch ev.Type {
		case transport.EventNone:
			return
		case transport.EventDisconnect, transport.EventTimeout:
			p.gone = true
		case transport.EventReceive:
			b := wire.NewBitBuffer()
			if err := b.LoadPacket(ev.Packet); err != nil {
				t.Fatalf("load: %v", err)
			}
			p.msgs = append(p.msgs, message{channel: ev.Channel, header: b.ReadEntityHeader(), packet: ev.Packet})
		}
	}
}

func (p *peerConn) find(op wire.OpCode, id uint32) []message {
	var out []message
	for _, m := range p.msgs {
		if m.header.Op == op && m.header.ID == id {
			out = append(out, m)
		}
	}
	return out
}

func (p *peerConn) send(t *testing.T, channel uint8, b *wire.BitBuffer, flags transport.Flags) {
	t.Helper()
	if err := p.host.Send(p.peer, channel, b.Packet(flags)); err != nil {
		t.Fatalf("client send: %v", err)
	}
}

type harness struct {
	t      *testing.T
	net    *memory.Network
	server *Server
	now    time.Time
}

func testFactory() entity.Factory {
	return entity.FactoryFunc(func(st entity.SpawnType) (*entity.Entity, error) {
		switch st {
		case entity.SpawnCube:
			return entity.New(st, &entity.Dynamic{}, entity.Options{
				Sensors: []*proximity.Sensor{proximity.NewSensor(proximity.BandA, 5)},
			})
		case entity.SpawnPlayer:
			return entity.New(st, entity.NewPlayer(), entity.Options{})
		}
		return nil, entity.ErrUnknownSpawnType
	})
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	n := memory.NewNetwork()

	cfg := DefaultConfig()
	cfg.Address = testAddr
	// Ticks are driven by hand, so TickRate only bounds Host.Service.
	cfg.TickRate = 2 * time.Millisecond
	cfg.InterestInterval = 100 * time.Millisecond
	cfg.StatsInterval = 0
	cfg.Factory = testFactory()
	cfg.HostFactory = func() (transport.Host, error) { return n.NewHost(), nil }

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		s.Pipeline().Stop()
		s.Pipeline().Wait()
	})

	h := &harness{t: t, net: n, server: s, now: time.Now()}
	h.until(s.Pipeline().HostRunning)
	return h
}

func (h *harness) tick() {
	h.now = h.now.Add(200 * time.Millisecond)
	h.server.Tick(h.now, 200*time.Millisecond)
}

// until ticks the server until cond holds.
func (h *harness) until(cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			h.t.Fatal("condition not met before deadline")
		}
		h.tick()
		time.Sleep(2 * time.Millisecond)
	}
}

// settle ticks a few times and lets every client drain. It only suits
// checks that something did not arrive; use await for arrivals.
func (h *harness) settle(peers ...*peerConn) {
	h.t.Helper()
	for i := 0; i < 10; i++ {
		h.tick()
		time.Sleep(5 * time.Millisecond)
		for _, p := range peers {
			p.drain(h.t)
		}
	}
}

// await ticks and drains p until it has received at least n messages with
// the given opcode and id.
func (h *harness) await(p *peerConn, op wire.OpCode, id uint32, n int) {
	h.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for len(p.find(op, id)) < n {
		if time.Now().After(deadline) {
			h.t.Fatalf("got %d messages %v for entity %d, want %d", len(p.find(op, id)), op, id, n)
		}
		h.tick()
		time.Sleep(2 * time.Millisecond)
		p.drain(h.t)
	}
}

// join connects a client, completes the handshake and requests a player.
func (h *harness) join() *peerConn {
	h.t.Helper()
	host := h.net.NewHost()
	peer, err := host.Connect(testAddr, wire.ChannelCount)
	if err != nil {
		h.t.Fatalf("connect: %v", err)
	}
	p := &peerConn{host: host, peer: peer}

	h.until(func() bool {
		p.drain(h.t)
		for _, m := range p.msgs {
			if m.header.Op == wire.OpConnectionEvent {
				return true
			}
		}
		return false
	})

	b := wire.NewBitBuffer()
	wire.EncodeSpawnRequest(b, int32(entity.SpawnPlayer))
	p.send(h.t, wire.ChannelSelf, b, transport.FlagReliable)

	h.until(func() bool {
		p.drain(h.t)
		for _, m := range p.msgs {
			if m.header.Op == wire.OpSpawn && m.channel == wire.ChannelSelf {
				return true
			}
		}
		return false
	})
	return p
}

func (p *peerConn) ownID(t *testing.T) uint32 {
	t.Helper()
	for _, m := range p.msgs {
		if m.header.Op == wire.OpSpawn && m.channel == wire.ChannelSelf {
			return m.header.ID
		}
	}
	t.Fatal("no own spawn received")
	return 0
}

func decodeCube(t *testing.T, m message) geom.Vec3 {
	t.Helper()
	b := wire.NewBitBuffer()
	if err := b.LoadPacket(m.packet); err != nil {
		t.Fatal(err)
	}
	b.ReadEntityHeader()
	if st := entity.SpawnType(b.ReadInt()); st != entity.SpawnCube {
		t.Fatalf("spawn type = %v", st)
	}
	e, err := entity.New(entity.SpawnCube, &entity.Dynamic{}, entity.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.ReadInitialState(b); err != nil {
		t.Fatalf("initial state: %v", err)
	}
	return e.Position()
}

// TestHandshake tests that a connecting peer is acknowledged and gets its
// own entity on the self channel.
func TestHandshake(t *testing.T) {
	h := newHarness(t)
	p := h.join()

	id := p.ownID(t)
	e, ok := h.server.Registry().ByPeer(1)
	if !ok || e.ID().Value != id {
		t.Fatalf("registry entity = %v, client saw id %d", e, id)
	}
	if e.SpawnType() != entity.SpawnPlayer {
		t.Errorf("spawn type = %v", e.SpawnType())
	}
}

// TestProximitySpawnAndDestroy tests that a gated entity is spawned once for
// a nearby peer and destroyed once when it leaves the sensor radius.
func TestProximitySpawnAndDestroy(t *testing.T) {
	h := newHarness(t)

	cube, err := h.server.Spawn(entity.SpawnCube, geom.Vec3{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if cube.ID().Value != 1 {
		t.Fatalf("cube id = %d, want 1", cube.ID().Value)
	}

	p := h.join()
	h.await(p, wire.OpSpawn, 1, 1)
	h.settle(p)

	spawns := p.find(wire.OpSpawn, 1)
	if len(spawns) != 1 {
		t.Fatalf("got %d spawns of entity 1, want 1", len(spawns))
	}
	if spawns[0].channel != wire.ChannelSpawn {
		t.Errorf("spawn channel = %d", spawns[0].channel)
	}
	if pos := decodeCube(t, spawns[0]); pos.Length() > wire.DefaultPrecision {
		t.Errorf("spawn position = %v, want origin", pos)
	}

	cube.SetTransform(geom.NewVec3(10, 0, 0), 0)
	h.await(p, wire.OpDestroy, 1, 1)
	h.settle(p)

	if n := len(p.find(wire.OpDestroy, 1)); n != 1 {
		t.Fatalf("got %d destroys of entity 1, want 1", n)
	}
	before := len(p.find(wire.OpStateUpdate, 1))

	cube.SetTransform(geom.NewVec3(11, 0, 0), 0)
	h.settle(p)

	if n := len(p.find(wire.OpStateUpdate, 1)); n != before {
		t.Errorf("state updates after destroy: %d, before %d", n, before)
	}
	if n := len(p.find(wire.OpDestroy, 1)); n != 1 {
		t.Errorf("destroys after moving further = %d, want 1", n)
	}
	if n := len(p.find(wire.OpSpawn, 1)); n != 1 {
		t.Errorf("spawns = %d, want 1", n)
	}
}

// TestInBandMoveKeepsSpawn tests that moving inside the radius streams state
// without another spawn.
func TestInBandMoveKeepsSpawn(t *testing.T) {
	h := newHarness(t)
	cube, _ := h.server.Spawn(entity.SpawnCube, geom.Vec3{}, 0)
	p := h.join()
	h.await(p, wire.OpSpawn, cube.ID().Value, 1)
	before := len(p.find(wire.OpStateUpdate, cube.ID().Value))

	cube.SetTransform(geom.NewVec3(2, 0, 0), 0)
	h.await(p, wire.OpStateUpdate, cube.ID().Value, before+1)
	h.settle(p)

	if n := len(p.find(wire.OpSpawn, cube.ID().Value)); n != 1 {
		t.Errorf("spawns = %d, want 1", n)
	}
	if n := len(p.find(wire.OpStateUpdate, cube.ID().Value)); n == 0 {
		t.Error("expected a state update while in range")
	}
	if n := len(p.find(wire.OpDestroy, cube.ID().Value)); n != 0 {
		t.Errorf("destroys = %d, want 0", n)
	}
}

// TestLateJoinerBulkSpawn tests that players present before a peer joined
// arrive in a bulk spawn, and later ones as single spawns.
func TestLateJoinerBulkSpawn(t *testing.T) {
	h := newHarness(t)
	a := h.join()
	b := h.join()
	h.await(a, wire.OpSpawn, b.ownID(t), 1)
	h.await(b, wire.OpBulkSpawn, 0, 1)

	var bulk *message
	for i := range b.msgs {
		if b.msgs[i].header.Op == wire.OpBulkSpawn {
			bulk = &b.msgs[i]
		}
	}
	if bulk == nil {
		t.Fatal("late joiner got no bulk spawn")
	}

	r := wire.NewBitBuffer()
	r.LoadPacket(bulk.packet)
	r.ReadEntityHeader()
	if n := r.ReadInt(); n != 1 {
		t.Fatalf("bulk count = %d, want 1", n)
	}
	if nested := r.ReadEntityHeader(); nested.Op != wire.OpSpawn || nested.ID != a.ownID(t) {
		t.Errorf("nested header = %+v", nested)
	}

	if n := len(a.find(wire.OpSpawn, b.ownID(t))); n != 1 {
		t.Errorf("first player saw %d spawns of the second, want 1", n)
	}
}

// TestDisconnectDestroysPlayer tests that a leaving peer's entity is
// destroyed for everyone else.
func TestDisconnectDestroysPlayer(t *testing.T) {
	h := newHarness(t)
	a := h.join()
	b := h.join()
	h.settle(a, b)

	id := a.ownID(t)
	if err := a.host.Disconnect(a.peer, 0); err != nil {
		t.Fatal(err)
	}
	h.until(func() bool {
		b.drain(t)
		return len(b.find(wire.OpDestroy, id)) == 1
	})

	if _, ok := h.server.Registry().Get(id); ok {
		t.Error("entity still registered")
	}
	if h.server.Registry().PlayerCount() != 1 {
		t.Errorf("player count = %d", h.server.Registry().PlayerCount())
	}
}

// TestStateUpdateIdMismatch tests that a peer cannot move an entity it does
// not own.
func TestStateUpdateIdMismatch(t *testing.T) {
	h := newHarness(t)
	p := h.join()
	id := p.ownID(t)
	e, _ := h.server.Registry().Get(id)

	b := wire.NewBitBuffer()
	b.AddEntityHeader(id+100, wire.OpStateUpdate)
	b.AddVector3(geom.NewVec3(5, 0, 0), wire.DefaultRange)
	b.AddFloat(0)
	p.send(t, wire.ChannelSelf, b, transport.FlagNone)
	h.settle(p)

	if e.Position() != (geom.Vec3{}) {
		t.Fatalf("mismatched update moved the entity to %v", e.Position())
	}

	b.AddEntityHeader(id, wire.OpStateUpdate)
	b.AddVector3(geom.NewVec3(5, 0, 0), wire.DefaultRange)
	b.AddFloat(0)
	p.send(t, wire.ChannelSelf, b, transport.FlagNone)
	h.until(func() bool { return e.Position().X > 4.9 })
}

// TestDuplicateSpawnRequest tests that a peer owns at most one entity.
func TestDuplicateSpawnRequest(t *testing.T) {
	h := newHarness(t)
	p := h.join()

	b := wire.NewBitBuffer()
	wire.EncodeSpawnRequest(b, int32(entity.SpawnPlayer))
	p.send(t, wire.ChannelSelf, b, transport.FlagReliable)
	h.settle(p)

	if n := h.server.Registry().Len(); n != 1 {
		t.Errorf("registry holds %d entities, want 1", n)
	}
}

// TestRunHostStartFailure tests that a host that cannot listen ends Run with
// a visible error.
func TestRunHostStartFailure(t *testing.T) {
	n := memory.NewNetwork()
	if err := n.NewHost().Listen(testAddr, 1, 3); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Address = testAddr
	cfg.HostFactory = func() (transport.Host, error) { return n.NewHost(), nil }
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = s.Run(ctx)
	if !errors.Is(err, pipeline.ErrHostStart) {
		t.Errorf("err = %v, want ErrHostStart", err)
	}
}

// TestNewRequiresHostFactory tests config validation.
func TestNewRequiresHostFactory(t *testing.T) {
	if _, err := New(DefaultConfig()); !errors.Is(err, ErrNoHostFactory) {
		t.Errorf("err = %v", err)
	}
}

// TestFormatBytes tests the units used in stats logs.
type record struct {
	msg string
	kv  []any
}

type recordLogger struct {
	axlog.Logger
	records []record
}

func (l *recordLogger) Info(msg string, kv ...any) {
	l.records = append(l.records, record{msg: msg, kv: kv})
}

func (r record) value(key string) any {
	for i := 0; i+1 < len(r.kv); i += 2 {
		if r.kv[i] == key {
			return r.kv[i+1]
		}
	}
	return nil
}

// TestLogStats tests that stats are logged once per interval with byte
// counters in human readable units.
func TestLogStats(t *testing.T) {
	logger := &recordLogger{Logger: axlog.Discard}
	cfg := DefaultConfig()
	cfg.StatsInterval = time.Second
	cfg.Logger = logger
	cfg.HostFactory = func() (transport.Host, error) { return memory.NewNetwork().NewHost(), nil }
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	s.logStats(now)
	s.logStats(now.Add(500 * time.Millisecond))
	s.logStats(now.Add(time.Second))

	var stats []record
	for _, r := range logger.records {
		if r.msg == "Network stats" {
			stats = append(stats, r)
		}
	}
	if len(stats) != 2 {
		t.Fatalf("got %d stats records, want 2", len(stats))
	}
	if got := stats[0].value("sent"); got != "0 B" {
		t.Errorf("sent = %v, want %q", got, "0 B")
	}
	if got := stats[0].value("entities"); got != 0 {
		t.Errorf("entities = %v, want 0", got)
	}
}
