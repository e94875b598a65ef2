// SPDX-License-Identifier: MIT
package analysis

import (
	"sync"
	"time"
)

// Coalescer throttles delivery of values produced faster than a consumer
// wants them. It holds at most one pending value; Offer replaces it in
// place, and every tick delivers whatever is pending. Values offered between
// ticks are never queued.
type Coalescer[T any] struct {
	interval time.Duration
	deliver  func(T)

	mu      sync.Mutex
	pending T
	has     bool
	running bool

	ticker   *time.Ticker
	doneChan chan struct{}
	wg       sync.WaitGroup
}

// NewCoalescer creates a coalescer that calls deliver at most once per
// interval. deliver runs on the coalescer's own goroutine.
func NewCoalescer[T any](interval time.Duration, deliver func(T)) *Coalescer[T] {
	return &Coalescer[T]{interval: interval, deliver: deliver}
}

// Offer stores v as the pending value, replacing any undelivered one.
func (c *Coalescer[T]) Offer(v T) {
	c.mu.Lock()
	c.pending = v
	c.has = true
	c.mu.Unlock()
}

// Pending reports whether a value is waiting for the next tick.
func (c *Coalescer[T]) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.has
}

// Flush delivers the pending value on the caller's goroutine. It reports
// whether anything was delivered.
func (c *Coalescer[T]) Flush() bool {
	c.mu.Lock()
	v, ok := c.pending, c.has
	var zero T
	c.pending, c.has = zero, false
	c.mu.Unlock()
	if ok {
		c.deliver(v)
	}
	return ok
}

// Discard drops the pending value without delivering it.
func (c *Coalescer[T]) Discard() {
	c.mu.Lock()
	var zero T
	c.pending, c.has = zero, false
	c.mu.Unlock()
}

// Start begins ticking. Values offered while stopped are dropped. Calling
// Start on a running coalescer does nothing.
func (c *Coalescer[T]) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	var zero T
	c.pending, c.has = zero, false
	c.running = true
	c.ticker = time.NewTicker(c.interval)
	c.doneChan = make(chan struct{})
	c.wg.Add(1)
	go c.loop(c.ticker, c.doneChan)
}

func (c *Coalescer[T]) loop(ticker *time.Ticker, done <-chan struct{}) {
	defer c.wg.Done()
	for {
		select {
		case <-ticker.C:
			c.Flush()
		case <-done:
			return
		}
	}
}

// Stop halts ticking and discards the pending value. It is safe to call on
// a coalescer that was never started, and more than once.
func (c *Coalescer[T]) Stop() {
	c.mu.Lock()
	if !c.running {
		var zero T
		c.pending, c.has = zero, false
		c.mu.Unlock()
		return
	}
	c.running = false
	c.ticker.Stop()
	close(c.doneChan)
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	var zero T
	c.pending, c.has = zero, false
	c.mu.Unlock()
}
