package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/logger"
	"github.com/tphakala/lensnet-go/internal/observability/metrics"
)

// DefaultMinInterval is the default minimum spacing between submissions.
const DefaultMinInterval = 500 * time.Millisecond

// Classifier is the inference stage seen by the dispatcher.
type Classifier interface {
	Classify(ctx context.Context, buf *detection.PixelBuffer, o detection.Orientation) ([]detection.ClassificationResult, error)
	// IsSwapping reports a model swap in progress; submissions are suppressed meanwhile.
	IsSwapping() bool
}

// ResultHandler receives the results of a successful inference. Calls are
// sequential and in submission order.
type ResultHandler func(frame detection.Frame, results []detection.ClassificationResult)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces time.Now for interval decisions.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithMetrics records decisions and state on m.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger sets the dispatcher logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// Dispatcher is the backpressure gate between capture and inference.
type Dispatcher struct {
	classifier Classifier
	onResult   ResultHandler
	now        func() time.Time
	metrics    *metrics.PipelineMetrics
	log        logger.Logger

	mu          sync.Mutex
	state       State
	minInterval time.Duration
	lastSubmit  time.Time
	ctx         context.Context
	cancel      context.CancelFunc
	stats       Stats

	inflight sync.WaitGroup
}

// New creates a stopped dispatcher.
func New(classifier Classifier, minInterval time.Duration, onResult ResultHandler, opts ...Option) *Dispatcher {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	d := &Dispatcher{
		classifier:  classifier,
		onResult:    onResult,
		minInterval: minInterval,
		now:         time.Now,
		log:         logger.Global().Module("throttle"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.metrics.SetThrottleInterval(minInterval.Seconds())
	d.metrics.SetThrottleState(StateIdle.String(), stateNames)
	return d
}

// Start moves the dispatcher from Idle to Ready. It is a no-op when running.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateIdle {
		return
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.lastSubmit = time.Time{}
	d.setStateLocked(StateReady)
}

// Stop moves the dispatcher to Idle and waits for the in-flight inference
// to finish. Its results are discarded.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.state == StateIdle {
		d.mu.Unlock()
		return
	}
	d.cancel()
	d.setStateLocked(StateIdle)
	d.mu.Unlock()

	d.inflight.Wait()
}

// Offer evaluates one delivered frame. It never blocks on inference.
func (d *Dispatcher) Offer(frame detection.Frame) Decision {
	now := d.now()

	d.mu.Lock()
	decision := d.decideLocked(now)
	d.stats.Offered++
	var ctx context.Context
	switch decision {
	case Submitted:
		d.stats.Submitted++
		d.lastSubmit = now
		d.setStateLocked(StateBusy)
		ctx = d.ctx
		d.inflight.Add(1)
	case DroppedInterval:
		d.stats.DroppedInterval++
	case DroppedBusy:
		d.stats.DroppedBusy++
	case DroppedSwapping:
		d.stats.DroppedSwapping++
	case DroppedStopped:
		d.stats.DroppedStopped++
	}
	d.mu.Unlock()

	d.metrics.RecordFrame(decision.String())
	if decision == Submitted {
		d.log.Trace("frame submitted", logger.Uint64("seq", frame.Seq))
		go d.run(ctx, frame)
	}
	return decision
}

// decideLocked applies the gate rules in order: stopped, interval, busy, swapping.
func (d *Dispatcher) decideLocked(now time.Time) Decision {
	switch {
	case d.state == StateIdle:
		return DroppedStopped
	case !d.lastSubmit.IsZero() && now.Sub(d.lastSubmit) < d.minInterval:
		return DroppedInterval
	case d.state == StateBusy:
		return DroppedBusy
	case d.classifier.IsSwapping():
		return DroppedSwapping
	default:
		return Submitted
	}
}

func (d *Dispatcher) run(ctx context.Context, frame detection.Frame) {
	defer d.inflight.Done()
	// Busy -> Ready on every path, panics included
	defer d.complete()

	results, err := d.classify(ctx, frame)
	if err != nil {
		d.mu.Lock()
		d.stats.Failed++
		d.mu.Unlock()
		if ctx.Err() == nil {
			d.log.Debug("inference failed, frame skipped",
				logger.Uint64("seq", frame.Seq),
				logger.Error(err))
		}
		return
	}

	d.mu.Lock()
	d.stats.Completed++
	d.mu.Unlock()
	if ctx.Err() != nil || d.onResult == nil {
		return
	}
	d.onResult(frame, results)
}

func (d *Dispatcher) classify(ctx context.Context, frame detection.Frame) (results []detection.ClassificationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()
	return d.classifier.Classify(ctx, frame.Pixels, frame.Orientation)
}

func (d *Dispatcher) complete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateBusy {
		d.setStateLocked(StateReady)
	}
}

func (d *Dispatcher) setStateLocked(s State) {
	if d.state == s {
		return
	}
	d.state = s
	d.metrics.SetThrottleState(s.String(), stateNames)
}

// State returns the current state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Stats returns a copy of the counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// MinInterval returns the current minimum submission spacing.
func (d *Dispatcher) MinInterval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.minInterval
}

// SetMinInterval changes the minimum submission spacing at runtime.
func (d *Dispatcher) SetMinInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	d.mu.Lock()
	changed := d.minInterval != interval
	d.minInterval = interval
	d.mu.Unlock()
	if changed {
		d.metrics.SetThrottleInterval(interval.Seconds())
		d.log.Debug("throttle interval changed", logger.Duration("interval", interval))
	}
}
