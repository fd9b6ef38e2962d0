// Package counter implements a shared integer mutated by concurrent workers,
// in an unsynchronized variant that loses updates and a mutex-guarded variant
// that does not.
package counter

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
)

// Locking selects how a Counter guards its read-modify-write sequence.
type Locking int

const (
	// Unsynchronized performs the read, compute and write steps with no
	// mutual exclusion. Concurrent workers overwrite each other's results.
	Unsynchronized Locking = iota
	// Mutex holds a sync.Mutex across the whole read-modify-write sequence.
	Mutex
)

func (l Locking) String() string {
	switch l {
	case Unsynchronized:
		return "unsynchronized"
	case Mutex:
		return "mutex"
	default:
		return fmt.Sprintf("locking(%d)", int(l))
	}
}

// ParseLocking converts a config value ("none", "unsynchronized", "mutex") to a Locking.
func ParseLocking(s string) (Locking, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "unsynchronized":
		return Unsynchronized, nil
	case "mutex":
		return Mutex, nil
	}
	return 0, fmt.Errorf("unknown locking mode %q", s)
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

// Counter is a shared integer. The individual load and store are atomic so the
// unsynchronized variant exhibits lost updates without a memory-model data race.
type Counter struct {
	locking Locking
	mu      sync.Locker
	value   atomic.Int64
	yield   func()
}

// Option configures a Counter.
type Option func(*Counter)

// WithYield replaces the scheduling hint executed between the steps of an
// update. Pass a no-op to run without it.
func WithYield(yield func()) Option {
	return func(c *Counter) {
		if yield != nil {
			c.yield = yield
		}
	}
}

// WithInitial sets the starting value.
func WithInitial(v int64) Option {
	return func(c *Counter) { c.value.Store(v) }
}

// New creates a counter guarded according to locking.
func New(locking Locking, opts ...Option) *Counter {
	c := &Counter{
		locking: locking,
		yield:   runtime.Gosched,
	}
	switch locking {
	case Mutex:
		c.mu = &sync.Mutex{}
	default:
		c.mu = noLock{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Locking reports the guard strategy of the counter.
func (c *Counter) Locking() Locking { return c.locking }

// ApplyDelta adds amount to the counter repeats times. Each application copies
// the value, yields, computes the new value, yields, and writes it back.
func (c *Counter) ApplyDelta(amount int64, repeats int) {
	for i := 0; i < repeats; i++ {
		c.mu.Lock()
		tmp := c.value.Load()
		c.yield()
		tmp += amount
		c.yield()
		c.value.Store(tmp)
		c.mu.Unlock()
	}
}

// Value returns the current value.
func (c *Counter) Value() int64 {
	return c.value.Load()
}
