package events

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/lensnet-go/internal/logger"
)

// DefaultBufferSize is the per consumer queue length.
const DefaultBufferSize = 256

// Config holds bus configuration.
type Config struct {
	BufferSize int
	// DedupTTL suppresses identical error events seen within the window;
	// zero disables suppression.
	DedupTTL time.Duration
}

// Bus delivers events to consumers without ever blocking the publisher.
// A consumer whose queue is full loses the event; other consumers still
// receive it.
type Bus struct {
	bufferSize int
	dedup      *Deduplicator
	log        logger.Logger

	mu     sync.RWMutex
	subs   []*subscription
	closed bool
	wg     sync.WaitGroup

	published  atomic.Uint64
	delivered  atomic.Uint64
	dropped    atomic.Uint64
	suppressed atomic.Uint64
	errors     atomic.Uint64
}

type subscription struct {
	consumer Consumer
	kinds    []Kind // empty means all
	queue    chan Event
}

func (s *subscription) wants(k Kind) bool {
	return len(s.kinds) == 0 || slices.Contains(s.kinds, k)
}

// New creates a bus.
func New(cfg Config) *Bus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	b := &Bus{
		bufferSize: cfg.BufferSize,
		log:        logger.Global().Module("events"),
	}
	if cfg.DedupTTL > 0 {
		b.dedup = NewDeduplicator(cfg.DedupTTL)
	}
	return b
}

// Subscribe registers c for the given kinds, or all kinds when none are given.
func (b *Bus) Subscribe(c Consumer, kinds ...Kind) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("event bus closed")
	}
	for _, s := range b.subs {
		if s.consumer.Name() == c.Name() {
			return fmt.Errorf("consumer %s already registered", c.Name())
		}
	}
	s := &subscription{consumer: c, kinds: kinds, queue: make(chan Event, b.bufferSize)}
	b.subs = append(b.subs, s)
	b.wg.Go(func() { b.run(s) })
	b.log.Info("registered event consumer", logger.String("consumer", c.Name()))
	return nil
}

// TryPublish queues e for every interested consumer and reports whether at
// least one accepted it.
func (b *Bus) TryPublish(e Event) bool {
	if b == nil {
		return false
	}
	if ee, ok := e.(ErrorEvent); ok && !b.dedup.Allow(ee) {
		b.suppressed.Add(1)
		return false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	b.published.Add(1)
	accepted := false
	for _, s := range b.subs {
		if !s.wants(e.Kind()) {
			continue
		}
		select {
		case s.queue <- e:
			accepted = true
		default:
			b.dropped.Add(1)
			b.log.Debug("event dropped, consumer queue full",
				logger.String("consumer", s.consumer.Name()),
				logger.String("kind", string(e.Kind())))
		}
	}
	return accepted
}

func (b *Bus) run(s *subscription) {
	for e := range s.queue {
		b.deliver(s.consumer, e)
	}
}

func (b *Bus) deliver(c Consumer, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.errors.Add(1)
			b.log.Error("event consumer panicked",
				logger.String("consumer", c.Name()),
				logger.String("kind", string(e.Kind())),
				logger.Any("panic", r))
		}
	}()
	if err := c.Consume(e); err != nil {
		b.errors.Add(1)
		b.log.Warn("event consumer failed",
			logger.String("consumer", c.Name()),
			logger.String("kind", string(e.Kind())),
			logger.Error(err))
		return
	}
	b.delivered.Add(1)
}

// Close stops accepting events and waits up to timeout for consumers to
// drain their queues.
func (b *Bus) Close(timeout time.Duration) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.queue)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		b.log.Warn("event bus shutdown timed out", logger.Duration("timeout", timeout))
		return fmt.Errorf("event bus shutdown timed out after %s", timeout)
	}
}

// Stats returns counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Published:  b.published.Load(),
		Delivered:  b.delivered.Load(),
		Dropped:    b.dropped.Load(),
		Suppressed: b.suppressed.Load(),
		Errors:     b.errors.Load(),
	}
}
