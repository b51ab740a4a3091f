package entity

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/QYUbit/Replica/pkg/proximity"
	"github.com/QYUbit/Replica/pkg/syncvar"
	"github.com/QYUbit/Replica/pkg/wire"
)

// Factory instantiates entities by spawn type. Server and client must use
// factories that agree on the synchronized fields of every type.
type Factory interface {
	Create(spawnType SpawnType) (*Entity, error)
}

type FactoryFunc func(spawnType SpawnType) (*Entity, error)

func (f FactoryFunc) Create(spawnType SpawnType) (*Entity, error) {
	return f(spawnType)
}

type FactoryConfig struct {
	UpdateRate time.Duration
	Range      wire.Range3
	// NPCSensors builds the sensors of each NPC. Nil means DefaultSensors.
	NPCSensors func() []*proximity.Sensor
	// Server enables sensors. Client copies never carry any.
	Server bool
	Rand   *rand.Rand
	Hooks  map[SpawnType]Hooks
}

// DefaultFactory knows cubes, players and NPCs. Only NPCs are proximity
// gated.
func DefaultFactory(cfg FactoryConfig) Factory {
	return FactoryFunc(func(spawnType SpawnType) (*Entity, error) {
		opts := Options{
			UpdateRate: cfg.UpdateRate,
			Range:      cfg.Range,
			Hooks:      cfg.Hooks[spawnType],
		}

		var b Behavior
		switch spawnType {
		case SpawnCube:
			b = &Dynamic{Fields: []syncvar.Variable{
				syncvar.NewUint("Color", 0),
				syncvar.NewFloat("Value", 0),
			}}
		case SpawnPlayer:
			b = NewPlayer()
		case SpawnNPC:
			npc := NewNPC(cfg.Rand)
			if cfg.Server {
				npc.RandomizeName()
				if cfg.NPCSensors != nil {
					opts.Sensors = cfg.NPCSensors()
				} else {
					opts.Sensors = proximity.DefaultSensors()
				}
			}
			b = npc
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnknownSpawnType, spawnType)
		}

		return New(spawnType, b, opts)
	})
}
