package testutil

import (
	"sync"
	"time"
)

// Clock is a manually advanced clock for deterministic timing tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock set to start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Epoch is a fixed reference instant used by timing tests.
var Epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Ticker is a manually fired ticker. Tick blocks until the consumer has
// received the tick or the timeout passes.
type Ticker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

// NewTicker returns an idle manual ticker.
func NewTicker() *Ticker {
	return &Ticker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

// C returns the tick channel.
func (t *Ticker) C() <-chan time.Time { return t.ch }

// Stop marks the ticker stopped; pending and later Tick calls return false.
func (t *Ticker) Stop() { t.once.Do(func() { close(t.stopped) }) }

// Tick delivers at and reports whether it was received.
func (t *Ticker) Tick(at time.Time) bool {
	select {
	case t.ch <- at:
		return true
	case <-t.stopped:
		return false
	case <-time.After(ShortTestTimeout):
		return false
	}
}
