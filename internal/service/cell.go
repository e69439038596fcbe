package service

import "sync"

// Cell is a versioned value. Writers replace the value; readers get a copy of the
// current value together with the version it was stored at.
type Cell[T any] struct {
	mu      sync.RWMutex
	val     T
	version uint64
}

// Load returns the current value and its version.
func (c *Cell[T]) Load() (T, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.val, c.version
}

// Store replaces the value and returns the new version.
func (c *Cell[T]) Store(v T) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.val = v
	c.version++
	return c.version
}

// Swap replaces the value and returns the previous one.
func (c *Cell[T]) Swap(v T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.val
	c.val = v
	c.version++
	return old
}

// Version returns the current version.
func (c *Cell[T]) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Signal is a coalescing wake-up: any number of Notify calls before the waiter
// reads C collapse into one wake.
type Signal struct {
	ch chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

func (s *Signal) Notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *Signal) C() <-chan struct{} {
	return s.ch
}
