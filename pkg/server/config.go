package server

import (
	"time"

	"github.com/QYUbit/Replica/pkg/axlog"
	"github.com/QYUbit/Replica/pkg/entity"
	"github.com/QYUbit/Replica/pkg/proximity"
	"github.com/QYUbit/Replica/pkg/simulation"
	"github.com/QYUbit/Replica/pkg/transport"
	"github.com/QYUbit/Replica/pkg/wire"
)

type Config struct {
	Address      string
	PeerLimit    int
	ChannelCount int

	TickRate         time.Duration
	UpdateRate       time.Duration
	InterestInterval time.Duration

	QueueCapacity int
	PoolCapacity  int
	// StatsInterval controls how often transport counters are logged.
	// Zero disables stats logging.
	StatsInterval   time.Duration
	ShutdownTimeout time.Duration

	Range wire.Range3

	HostFactory func() (transport.Host, error)
	// Factory defaults to entity.DefaultFactory with server sensors.
	Factory entity.Factory
	Logger  axlog.Logger
}

func DefaultConfig() Config {
	return Config{
		Address:          ":7777",
		PeerLimit:        64,
		ChannelCount:     wire.ChannelCount,
		TickRate:         simulation.DefaultTickRate,
		UpdateRate:       entity.DefaultUpdateRate,
		InterestInterval: proximity.DefaultInterval,
		QueueCapacity:    1024,
		PoolCapacity:     4096,
		StatsInterval:    5 * time.Second,
		ShutdownTimeout:  time.Second,
		Range:            wire.DefaultRange,
		Logger:           axlog.Discard,
	}
}

func (c *Config) fill() {
	def := DefaultConfig()
	if c.Address == "" {
		c.Address = def.Address
	}
	if c.PeerLimit <= 0 {
		c.PeerLimit = def.PeerLimit
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
	if c.InterestInterval <= 0 {
		c.InterestInterval = def.InterestInterval
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
			Server:     true,
		})
	}
}
