// Package pipeline moves commands from the simulation to the network and
// transport events back, across three goroutines joined by bounded queues:
//
//	simulation --commands--> logic --functions--> network (owns the Host)
//	simulation <--logic events-- logic <--transport events-- network
//
// The simulation side never blocks. The logic stage only relays. The network
// stage is the only code that touches the Host.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/QYUbit/Replica/pkg/axlog"
	"github.com/QYUbit/Replica/pkg/transport"
)

type Config struct {
	QueueCapacity int
	PoolCapacity  int
	// ServiceTimeout bounds each Host.Service call, usually one tick.
	ServiceTimeout time.Duration
	// RelayIdle is how long the logic stage sleeps when it found no work.
	RelayIdle time.Duration
	// StatsInterval controls how often host counters are sampled.
	StatsInterval time.Duration

	NewHost  func() (transport.Host, error)
	Executor Executor
	Logger   axlog.Logger
}

func DefaultConfig() Config {
	return Config{
		QueueCapacity:  1024,
		PoolCapacity:   4096,
		ServiceTimeout: time.Second / 30,
		RelayIdle:      time.Millisecond,
		StatsInterval:  250 * time.Millisecond,
		Logger:         axlog.Discard,
	}
}

// EventHandler receives transport events on the simulation goroutine.
type EventHandler interface {
	Connect(ev transport.Event)
	// Disconnect covers both orderly disconnects and timeouts.
	Disconnect(ev transport.Event)
	ProcessPacket(ev transport.Event)
}

type Pipeline struct {
	cfg    Config
	logger axlog.Logger
	pool   *CommandPool

	commands        *Queue[Ref]
	functions       *Queue[Ref]
	transportEvents *Queue[transport.Event]
	logicEvents     *Queue[transport.Event]

	running       atomic.Bool
	logicActive   atomic.Bool
	networkActive atomic.Bool
	hostStarted   atomic.Bool

	cancel context.CancelFunc
	group  *errgroup.Group

	statsMu   sync.Mutex
	hostStats transport.Stats
	executed  atomic.Uint64
	dropped   atomic.Uint64
}

func New(cfg Config) *Pipeline {
	def := DefaultConfig()
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = def.QueueCapacity
	}
	if cfg.PoolCapacity <= 0 {
		cfg.PoolCapacity = def.PoolCapacity
	}
	if cfg.ServiceTimeout <= 0 {
		cfg.ServiceTimeout = def.ServiceTimeout
	}
	if cfg.RelayIdle <= 0 {
		cfg.RelayIdle = def.RelayIdle
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = def.StatsInterval
	}
	cfg.Logger = axlog.OrDiscard(cfg.Logger)

	return &Pipeline{
		cfg:             cfg,
		logger:          cfg.Logger,
		pool:            NewCommandPool(cfg.PoolCapacity),
		commands:        NewQueue[Ref](cfg.QueueCapacity),
		functions:       NewQueue[Ref](cfg.QueueCapacity),
		transportEvents: NewQueue[transport.Event](cfg.QueueCapacity),
		logicEvents:     NewQueue[transport.Event](cfg.QueueCapacity),
	}
}

// Start launches the logic and network stages. They stop when ctx ends,
// when Stop is called, or when the host fails to start.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.cfg.NewHost == nil {
		return ErrNoHostFactory
	}
	if p.cfg.Executor == nil {
		return ErrNoExecutor
	}
	if !p.running.CompareAndSwap(false, true) {
		return ErrPipelineRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.logicActive.Store(true)
	p.networkActive.Store(true)

	g, ctx := errgroup.WithContext(ctx)
	p.group = g
	g.Go(func() error { return p.runLogic(ctx) })
	g.Go(func() error { return p.runNetwork(ctx) })
	return nil
}

// Stop clears the active flags and cancels both stages without waiting.
func (p *Pipeline) Stop() {
	p.logicActive.Store(false)
	p.networkActive.Store(false)
	if p.cancel != nil {
		p.cancel()
	}
}

// Wait blocks until both stages returned and reports the first error.
func (p *Pipeline) Wait() error {
	if p.group == nil {
		return ErrPipelineStopped
	}
	err := p.group.Wait()
	p.running.Store(false)
	return err
}

// Shutdown queues a StopHost, gives the network stage up to timeout to
// execute it, then stops both stages.
func (p *Pipeline) Shutdown(timeout time.Duration) error {
	if !p.running.Load() {
		return ErrPipelineStopped
	}
	p.StopHost()

	deadline := time.Now().Add(timeout)
	for p.hostStarted.Load() && time.Now().Before(deadline) {
		time.Sleep(p.cfg.RelayIdle)
	}
	p.Stop()
	return p.Wait()
}

// HostRunning reports whether a StartHost succeeded and no StopHost ran yet.
func (p *Pipeline) HostRunning() bool { return p.hostStarted.Load() }

// NewCommand leases a command. Pass it to AddCommand when filled in.
func (p *Pipeline) NewCommand() *Command {
	return p.pool.Get()
}

// AddCommand queues cmd for the network stage. It panics when the command
// queue is full, which means the queues are undersized for the load.
func (p *Pipeline) AddCommand(cmd *Command) {
	if !p.commands.TryEnqueue(cmd.Ref()) {
		panic(fmt.Errorf("%w: command queue holds %d", ErrQueueFull, p.commands.Cap()))
	}
}

// Poll hands every pending event to h and returns how many there were.
func (p *Pipeline) Poll(h EventHandler) int {
	n := 0
	for {
		ev, ok := p.logicEvents.TryDequeue()
		if !ok {
			return n
		}
		n++

		switch ev.Type {
		case transport.EventConnect:
			h.Connect(ev)
		case transport.EventDisconnect, transport.EventTimeout:
			h.Disconnect(ev)
		case transport.EventReceive:
			h.ProcessPacket(ev)
		}
	}
}

func (p *Pipeline) StartHost(address string, peerLimit, channelCount int, updateTime time.Duration) {
	cmd := p.NewCommand()
	cmd.Type = CommandStartHost
	cmd.Address = address
	cmd.PeerLimit = peerLimit
	cmd.ChannelCount = channelCount
	cmd.UpdateTime = updateTime
	p.AddCommand(cmd)
}

func (p *Pipeline) StopHost() {
	cmd := p.NewCommand()
	cmd.Type = CommandStopHost
	p.AddCommand(cmd)
}

func (p *Pipeline) Send(peer transport.PeerID, channel uint8, packet transport.Packet) {
	cmd := p.NewCommand()
	cmd.Type = CommandSend
	cmd.Target = peer
	cmd.Channel = channel
	cmd.Packet = packet
	p.AddCommand(cmd)
}

func (p *Pipeline) BroadcastAll(channel uint8, packet transport.Packet) {
	cmd := p.NewCommand()
	cmd.Type = CommandBroadcastAll
	cmd.Channel = channel
	cmd.Packet = packet
	p.AddCommand(cmd)
}

func (p *Pipeline) BroadcastOthers(source transport.PeerID, channel uint8, packet transport.Packet) {
	cmd := p.NewCommand()
	cmd.Type = CommandBroadcastOthers
	cmd.Source = source
	cmd.Channel = channel
	cmd.Packet = packet
	p.AddCommand(cmd)
}

// BroadcastGroup copies peers, the caller may reuse the slice.
func (p *Pipeline) BroadcastGroup(peers []transport.PeerID, channel uint8, packet transport.Packet) {
	cmd := p.NewCommand()
	cmd.Type = CommandBroadcastGroup
	cmd.TargetGroup = append(cmd.TargetGroup[:0], peers...)
	cmd.Channel = channel
	cmd.Packet = packet
	p.AddCommand(cmd)
}

type Stats struct {
	Host             transport.Stats
	CommandsExecuted uint64
	CommandsDropped  uint64
	CommandsInFlight int
	QueuedCommands   int
	QueuedEvents     int
}

// Stats may be called from any goroutine.
func (p *Pipeline) Stats() Stats {
	p.statsMu.Lock()
	host := p.hostStats
	p.statsMu.Unlock()

	return Stats{
		Host:             host,
		CommandsExecuted: p.executed.Load(),
		CommandsDropped:  p.dropped.Load(),
		CommandsInFlight: p.pool.InUse(),
		QueuedCommands:   p.commands.Len() + p.functions.Len(),
		QueuedEvents:     p.transportEvents.Len() + p.logicEvents.Len(),
	}
}

func (p *Pipeline) runLogic(ctx context.Context) error {
	idle := time.NewTimer(p.cfg.RelayIdle)
	defer idle.Stop()

	for p.logicActive.Load() {
		moved := false

		if ref, ok := p.commands.TryDequeue(); ok {
			if err := p.functions.Enqueue(ctx, ref); err != nil {
				return nil
			}
			moved = true
		}

		if ev, ok := p.transportEvents.TryDequeue(); ok {
			if ev.Type != transport.EventNone {
				if err := p.logicEvents.Enqueue(ctx, ev); err != nil {
					return nil
				}
			}
			moved = true
		}

		if moved {
			continue
		}

		idle.Reset(p.cfg.RelayIdle)
		select {
		case <-ctx.Done():
			return nil
		case <-idle.C:
		}
	}
	return nil
}

func (p *Pipeline) runNetwork(ctx context.Context) (err error) {
	host, err := p.cfg.NewHost()
	if err != nil {
		p.logger.Error("Failed creating host", "error", err)
		return fmt.Errorf("%w: %v", ErrHostStart, err)
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Network stage panicked", "panic", r)
			p.disposeHost(host)
			panic(r)
		}
		p.disposeHost(host)
	}()

	idle := time.NewTimer(p.cfg.ServiceTimeout)
	defer idle.Stop()
	var nextStats time.Time

	for p.networkActive.Load() {
		if ctx.Err() != nil {
			return nil
		}

		if err := p.drainFunctions(host); err != nil {
			return err
		}

		if !p.hostStarted.Load() {
			idle.Reset(p.cfg.ServiceTimeout)
			select {
			case <-ctx.Done():
				return nil
			case <-idle.C:
			}
			continue
		}

		ev, err := host.Service(p.cfg.ServiceTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrHostClosed) {
				p.hostStarted.Store(false)
				continue
			}
			p.logger.Warn("Host service failed", "error", err)
			continue
		}

		if now := time.Now(); now.After(nextStats) {
			nextStats = now.Add(p.cfg.StatsInterval)
			stats := host.Stats()
			p.statsMu.Lock()
			p.hostStats = stats
			p.statsMu.Unlock()
		}

		if ev.Type == transport.EventNone {
			continue
		}
		if err := p.transportEvents.Enqueue(ctx, ev); err != nil {
			return nil
		}
	}
	return nil
}

func (p *Pipeline) drainFunctions(host transport.Host) error {
	for {
		ref, ok := p.functions.TryDequeue()
		if !ok {
			return nil
		}

		cmd, err := p.pool.Resolve(ref)
		if err != nil {
			p.dropped.Add(1)
			p.logger.Error("Dropping queued command", "error", err)
			continue
		}

		typ := cmd.Type
		err = p.executeCommand(host, cmd)

		cmd.Packet.Dispose()
		if perr := p.pool.Put(cmd); perr != nil {
			p.logger.Error("Failed returning command", "error", perr)
		}

		if err != nil && typ == CommandStartHost {
			return err
		}
	}
}

func (p *Pipeline) executeCommand(host transport.Host, cmd *Command) error {
	switch cmd.Type {
	case CommandStartHost:
		if p.hostStarted.Load() {
			p.logger.Warn("Host already started", "address", cmd.Address)
			return nil
		}
		if err := execute(p.cfg.Executor, host, cmd); err != nil {
			p.logger.Error("Failed starting host", "address", cmd.Address, "error", err)
			return fmt.Errorf("%w: %s: %v", ErrHostStart, cmd.Address, err)
		}
		p.hostStarted.Store(true)
		p.logger.Info("Host started", "address", cmd.Address, "peer_limit", cmd.PeerLimit, "channels", cmd.ChannelCount)
		p.executed.Add(1)
		return nil

	case CommandStopHost:
		if !p.hostStarted.Load() {
			return nil
		}
		if err := execute(p.cfg.Executor, host, cmd); err != nil {
			p.logger.Warn("Errors while stopping host", "error", err)
		}
		p.hostStarted.Store(false)
		p.logger.Info("Host stopped")
		p.executed.Add(1)
		return nil
	}

	if !p.hostStarted.Load() {
		p.dropped.Add(1)
		p.logger.Debug("Dropping command, host not running", "command", cmd.Type)
		return nil
	}
	if err := execute(p.cfg.Executor, host, cmd); err != nil {
		p.dropped.Add(1)
		p.logger.Warn("Command failed", "command", cmd.Type, "error", err)
		return nil
	}
	p.executed.Add(1)
	return nil
}

func (p *Pipeline) disposeHost(host transport.Host) {
	if err := host.Flush(); err != nil && !errors.Is(err, transport.ErrHostClosed) {
		p.logger.Warn("Failed flushing host", "error", err)
	}
	if err := host.Close(); err != nil && !errors.Is(err, transport.ErrHostClosed) {
		p.logger.Warn("Failed closing host", "error", err)
	}
	p.hostStarted.Store(false)
}
