package entity

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/QYUbit/Replica/pkg/geom"
	"github.com/QYUbit/Replica/pkg/syncvar"
	"github.com/QYUbit/Replica/pkg/wire"
)

type Kind uint8

const (
	KindStatic Kind = iota
	KindDynamic
	KindPlayer
	KindNPC
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindDynamic:
		return "dynamic"
	case KindPlayer:
		return "player"
	case KindNPC:
		return "npc"
	}
	return "unknown"
}

// Behavior is the per-kind part of an entity. Syncs must return the same
// fields on every call.
type Behavior interface {
	Kind() Kind
	Syncs() []syncvar.Variable
	Tick(e *Entity, now time.Time, dt time.Duration)
}

// interpolated is implemented by behaviors that smooth remote transforms.
type interpolated interface {
	setTarget(pos geom.Vec3, heading float32)
	snap(pos geom.Vec3, heading float32)
}

// Static entities never move after spawning.
type Static struct {
	Fields []syncvar.Variable
}

func (s *Static) Kind() Kind                             { return KindStatic }
func (s *Static) Syncs() []syncvar.Variable              { return s.Fields }
func (s *Static) Tick(*Entity, time.Time, time.Duration) {}

// DefaultSmoothing is the fraction of the remaining distance a client copy
// covers per second.
const DefaultSmoothing = 10

// Dynamic entities stream their transform. Client copies move towards the
// last received transform instead of jumping.
type Dynamic struct {
	Fields    []syncvar.Variable
	Smoothing float32

	target        geom.Vec3
	targetHeading float32
	hasTarget     bool
}

func (d *Dynamic) Kind() Kind                { return KindDynamic }
func (d *Dynamic) Syncs() []syncvar.Variable { return d.Fields }

func (d *Dynamic) setTarget(pos geom.Vec3, heading float32) {
	d.target = pos
	d.targetHeading = heading
	d.hasTarget = true
}

func (d *Dynamic) snap(pos geom.Vec3, heading float32) {
	d.setTarget(pos, heading)
}

// Target is the last transform received from the authority.
func (d *Dynamic) Target() (geom.Vec3, float32, bool) {
	return d.target, d.targetHeading, d.hasTarget
}

func (d *Dynamic) Tick(e *Entity, _ time.Time, dt time.Duration) {
	if !e.IsClient() || e.IsLocal() || !d.hasTarget {
		return
	}

	smoothing := d.Smoothing
	if smoothing <= 0 {
		smoothing = DefaultSmoothing
	}
	t := float32(dt.Seconds()) * smoothing

	e.SetTransform(e.Position().Lerp(d.target, t), geom.LerpHeading(e.Heading(), d.targetHeading, t))
}

// Player is a peer owned entity. The owning client is authoritative for its
// transform, the server for its synchronized fields.
type Player struct {
	Dynamic
	Name  *syncvar.String
	Score *syncvar.Int
}

func NewPlayer() *Player {
	p := &Player{
		Name:  syncvar.NewString("PlayerName", ""),
		Score: syncvar.NewInt("Score", 0),
	}
	p.Fields = []syncvar.Variable{p.Name, p.Score}
	return p
}

func (p *Player) Kind() Kind { return KindPlayer }

// NPC wanders between random waypoints inside the playable area.
type NPC struct {
	Dynamic
	Name  *syncvar.String
	Speed float32

	rng      *rand.Rand
	waypoint geom.Vec3
	moving   bool
}

// DefaultNPCSpeed is in units per second.
const DefaultNPCSpeed = 2

func NewNPC(rng *rand.Rand) *NPC {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	n := &NPC{
		Name:  syncvar.NewString("Name", ""),
		Speed: DefaultNPCSpeed,
		rng:   rng,
	}
	n.Fields = []syncvar.Variable{n.Name}
	return n
}

func (n *NPC) Kind() Kind { return KindNPC }

// RandomizeName gives the NPC a unique name.
func (n *NPC) RandomizeName() {
	n.Name.Set("npc-" + uuid.NewString())
}

// Waypoint is the point the NPC is walking to.
func (n *NPC) Waypoint() (geom.Vec3, bool) {
	return n.waypoint, n.moving
}

func (n *NPC) Tick(e *Entity, now time.Time, dt time.Duration) {
	if !e.IsServer() {
		n.Dynamic.Tick(e, now, dt)
		return
	}

	if !n.moving {
		n.waypoint = geom.NewVec3(n.randomCoord(), 0, n.randomCoord())
		n.moving = true
	}

	pos := e.Position()
	toward := n.waypoint.Sub(pos)
	dist := toward.Length()
	step := n.Speed * float32(dt.Seconds())

	if dist <= step || dist == 0 {
		e.SetTransform(n.waypoint, e.Heading())
		n.moving = false
		return
	}

	e.SetTransform(pos.Add(toward.Scale(step/dist)), geom.HeadingOf(toward))
}

func (n *NPC) randomCoord() float32 {
	return (n.rng.Float32()*2 - 1) * wire.MaxRange
}
