package client

import (
	"time"

	"github.com/QYUbit/Replica/pkg/axlog"
	"github.com/QYUbit/Replica/pkg/entity"
	"github.com/QYUbit/Replica/pkg/simulation"
	"github.com/QYUbit/Replica/pkg/transport"
	"github.com/QYUbit/Replica/pkg/wire"
)

type Config struct {
	Address      string
	ChannelCount int
	// SpawnType is requested once the server acknowledged the connection.
	// SpawnNone joins without an entity of its own.
	SpawnType entity.SpawnType

	TickRate        time.Duration
	UpdateRate      time.Duration
	QueueCapacity   int
	PoolCapacity    int
	ShutdownTimeout time.Duration

	Range wire.Range3

	HostFactory func() (transport.Host, error)
	// Factory must agree with the server's on every spawn type's fields.
	Factory entity.Factory
	Logger  axlog.Logger

	// OnDisconnect runs on the simulation goroutine when the connection to
	// the server is lost.
	OnDisconnect func(ev transport.Event)
	// OnTick runs every tick after received packets were applied and before
	// the local transform is sent.
	OnTick func(now time.Time, dt time.Duration)
}

func DefaultConfig() Config {
	return Config{
		Address:         "localhost:7777",
		ChannelCount:    wire.ChannelCount,
		SpawnType:       entity.SpawnPlayer,
		TickRate:        simulation.DefaultTickRate,
		UpdateRate:      entity.DefaultUpdateRate,
		QueueCapacity:   1024,
		PoolCapacity:    1024,
		ShutdownTimeout: time.Second,
		Range:           wire.DefaultRange,
		Logger:          axlog.Discard,
	}
}

func (c *Config) fill() {
	def := DefaultConfig()
	if c.Address == "" {
		c.Address = def.Address
	}
	if c.ChannelCount <= 0 {
		c.ChannelCount = def.ChannelCount
	}
	if c.TickRate <= 0 {
		c.TickRate = def.TickRate
	}
	if c.UpdateRate <= 0 {
		c.UpdateRate = def.UpdateRate
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = def.QueueCapacity
	}
	if c.PoolCapacity <= 0 {
		c.PoolCapacity = def.PoolCapacity
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.Range == (wire.Range3{}) {
		c.Range = def.Range
	}
	c.Logger = axlog.OrDiscard(c.Logger)
	if c.Factory == nil {
		c.Factory = entity.DefaultFactory(entity.FactoryConfig{
			UpdateRate: c.UpdateRate,
			Range:      c.Range,
		})
	}
}
