package pipeline

import (
	"fmt"
	"sync"
)

// CommandPool is a fixed set of reusable commands. Get panics when every
// command is in flight, which means the pool is undersized.
type CommandPool struct {
	mu     sync.Mutex
	slots  []Command
	leased []bool
	free   []uint32
}

func NewCommandPool(capacity int) *CommandPool {
	if capacity <= 0 {
		panic("pipeline: command pool capacity must be positive")
	}
	p := &CommandPool{
		slots:  make([]Command, capacity),
		leased: make([]bool, capacity),
		free:   make([]uint32, capacity),
	}
	for i := range p.slots {
		p.slots[i].pool = p
		p.slots[i].slot = uint32(i)
		p.free[i] = uint32(capacity - 1 - i)
	}
	return p
}

func (p *CommandPool) Get() *Command {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.free)
	if n == 0 {
		panic(fmt.Errorf("%w: %d commands in flight", ErrPoolExhausted, len(p.slots)))
	}
	i := p.free[n-1]
	p.free = p.free[:n-1]
	p.leased[i] = true
	return &p.slots[i]
}

// Put recycles c and invalidates every Ref taken from it.
func (p *CommandPool) Put(c *Command) error {
	if c == nil || c.pool != p {
		return ErrForeignCommand
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.leased[c.slot] {
		return fmt.Errorf("%w: slot %d", ErrCommandNotLeased, c.slot)
	}
	p.leased[c.slot] = false
	c.gen++
	c.reset()
	p.free = append(p.free, c.slot)
	return nil
}

// Resolve returns the command behind ref if it has not been recycled.
func (p *CommandPool) Resolve(ref Ref) (*Command, error) {
	c := ref.cmd
	if c == nil || c.pool != p {
		return nil, ErrForeignCommand
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.leased[c.slot] || c.gen != ref.gen {
		return nil, fmt.Errorf("%w: slot %d generation %d, now %d", ErrStaleCommand, c.slot, ref.gen, c.gen)
	}
	return c, nil
}

// InUse is the number of leased commands.
func (p *CommandPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots) - len(p.free)
}

func (p *CommandPool) Cap() int { return len(p.slots) }
