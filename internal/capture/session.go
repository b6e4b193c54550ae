package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/logger"
)

// FrameHandler consumes delivered frames. It runs on the delivery goroutine
// and must return quickly.
type FrameHandler func(detection.Frame)

// Session owns one camera input and its frame delivery.
//
// Reconfiguration happens inside a BeginConfiguration / Commit bracket. A
// commit bumps the input generation before the new input starts, and frames
// tagged with an older generation are discarded, so a half applied change is
// never delivered.
type Session struct {
	driver Driver
	now    func() time.Time
	log    logger.Logger

	mu         sync.Mutex // held for the whole configuration bracket
	devices    []Device
	running    bool
	cancel     context.CancelFunc
	streamDone chan struct{}

	active     atomic.Pointer[Device]
	generation atomic.Uint64
	seq        atomic.Uint64
	handler    atomic.Pointer[FrameHandler]
	photoBusy  atomic.Bool
	delivered  atomic.Uint64
	discarded  atomic.Uint64
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithClock replaces time.Now for frame timestamps.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// NewSession creates a session on driver.
func NewSession(driver Driver, opts ...SessionOption) *Session {
	s := &Session{
		driver: driver,
		now:    time.Now,
		log:    GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Setup discovers devices and selects the initial input. Hardware problems
// are returned as setup errors and the session stays unusable.
func (s *Session) Setup(ctx context.Context, pos Position, lens string) error {
	devices, err := s.driver.Devices(ctx)
	if err == nil && len(devices) == 0 {
		err = ErrNoCamera
	}
	if err != nil {
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryCaptureDevice).
			Priority(errors.PriorityHigh).
			Build()
	}

	dev, ok := pickDevice(devices, pos, lens)
	if !ok {
		// any camera beats none
		dev = devices[0]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = devices
	s.active.Store(&dev)
	s.generation.Add(1)
	s.log.Info("capture session configured",
		logger.String("device", dev.ID),
		logger.String("position", string(dev.Position)),
		logger.String("lens", dev.Lens),
		logger.Int("devices", len(devices)))
	return nil
}

// Subscribe registers the frame handler, replacing any previous one.
func (s *Session) Subscribe(h FrameHandler) {
	if h == nil {
		s.handler.Store(nil)
		return
	}
	s.handler.Store(&h)
}

// Devices returns the discovered inputs.
func (s *Session) Devices() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Device(nil), s.devices...)
}

// ActiveDevice returns the current input.
func (s *Session) ActiveDevice() (Device, bool) {
	d := s.active.Load()
	if d == nil {
		return Device{}, false
	}
	return *d, true
}

// Generation returns the current input generation. It changes whenever the
// input is reconfigured or the session stops.
func (s *Session) Generation() uint64 {
	return s.generation.Load()
}

// Running reports whether frames are being delivered.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start begins frame delivery. Starting a running session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active.Load() == nil {
		return ErrNotSetUp
	}
	if s.running {
		return nil
	}
	s.startStreamLocked(ctx)
	s.running = true
	return nil
}

// Stop halts frame delivery and returns once the driver has stopped
// delivering. Frames already in the handler complete normally.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.generation.Add(1)
	s.stopStreamLocked()
	s.log.Info("capture session stopped",
		logger.Uint64("delivered", s.delivered.Load()),
		logger.Uint64("discarded", s.discarded.Load()))
}

func (s *Session) startStreamLocked(parent context.Context) {
	dev := *s.active.Load()
	gen := s.generation.Load()
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	done := make(chan struct{})
	s.cancel = cancel
	s.streamDone = done

	go func() {
		defer close(done)
		err := s.driver.Stream(ctx, dev, func(buf *detection.PixelBuffer, o detection.Orientation) {
			s.deliver(gen, dev.ID, buf, o)
		})
		if err != nil && ctx.Err() == nil {
			s.log.Error("frame stream ended",
				logger.String("device", dev.ID),
				logger.Error(err))
		}
	}()
}

func (s *Session) stopStreamLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.streamDone
	s.cancel = nil
	s.streamDone = nil
}

func (s *Session) deliver(gen uint64, deviceID string, buf *detection.PixelBuffer, o detection.Orientation) {
	if gen != s.generation.Load() {
		s.discarded.Add(1)
		return
	}
	h := s.handler.Load()
	if h == nil {
		return
	}
	s.delivered.Add(1)
	(*h)(detection.Frame{
		Seq:         s.seq.Add(1),
		DeviceID:    deviceID,
		Generation:  gen,
		Pixels:      buf,
		Orientation: o,
		CapturedAt:  s.now(),
	})
}

// Configuration is an open reconfiguration bracket. Nothing changes until
// Commit; Abort releases the bracket without changes.
type Configuration struct {
	s      *Session
	device *Device
	done   bool
}

// BeginConfiguration opens a configuration bracket. Other configuration
// calls block until it is committed or aborted.
func (s *Session) BeginConfiguration() *Configuration {
	s.mu.Lock()
	return &Configuration{s: s}
}

// SelectDevice stages the input with id.
func (c *Configuration) SelectDevice(id string) error {
	if c.done {
		return ErrConfiguring
	}
	for i := range c.s.devices {
		if c.s.devices[i].ID == id {
			d := c.s.devices[i]
			c.device = &d
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownDevice, id)
}

// SelectPosition stages the default input at pos.
func (c *Configuration) SelectPosition(pos Position, lens string) error {
	if c.done {
		return ErrConfiguring
	}
	d, ok := pickDevice(c.s.devices, pos, lens)
	if !ok {
		return fmt.Errorf("%w: no %s camera", ErrUnknownDevice, pos)
	}
	c.device = &d
	return nil
}

// Commit applies the staged change atomically with respect to frame delivery.
func (c *Configuration) Commit() error {
	if c.done {
		return ErrConfiguring
	}
	c.done = true
	s := c.s
	defer s.mu.Unlock()

	if c.device == nil {
		return nil
	}
	if cur := s.active.Load(); cur != nil && cur.ID == c.device.ID {
		return nil
	}

	s.generation.Add(1)
	s.active.Store(c.device)
	if s.running {
		s.stopStreamLocked()
		s.startStreamLocked(context.Background())
	}
	s.log.Info("capture input switched",
		logger.String("device", c.device.ID),
		logger.String("position", string(c.device.Position)),
		logger.String("lens", c.device.Lens))
	return nil
}

// Abort releases the bracket without applying anything.
func (c *Configuration) Abort() {
	if c.done {
		return
	}
	c.done = true
	c.s.mu.Unlock()
}

// SwitchLens selects the input with id while keeping the session running.
func (s *Session) SwitchLens(id string) error {
	if s.active.Load() == nil {
		return ErrNotSetUp
	}
	c := s.BeginConfiguration()
	if err := c.SelectDevice(id); err != nil {
		c.Abort()
		return err
	}
	return c.Commit()
}

// SwitchFrontBack selects the default input on the other side.
func (s *Session) SwitchFrontBack() error {
	cur := s.active.Load()
	if cur == nil {
		return ErrNotSetUp
	}
	c := s.BeginConfiguration()
	if err := c.SelectPosition(cur.Position.Opposite(), ""); err != nil {
		c.Abort()
		return err
	}
	return c.Commit()
}

// CapturePhoto takes a full resolution still from the active input. Only one
// capture may be in flight; a concurrent call fails with ErrCaptureInProgress.
func (s *Session) CapturePhoto(ctx context.Context) ([]byte, error) {
	dev := s.active.Load()
	if dev == nil {
		return nil, ErrNotSetUp
	}
	if !s.photoBusy.CompareAndSwap(false, true) {
		return nil, ErrCaptureInProgress
	}
	defer s.photoBusy.Store(false)

	start := time.Now()
	data, err := s.driver.CapturePhoto(ctx, *dev)
	if err == nil && len(data) == 0 {
		err = fmt.Errorf("driver returned an empty photo")
	}
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryCapturePhoto).
			DeviceContext(dev.ID, string(dev.Position)).
			Timing("capture-photo", time.Since(start)).
			Build()
	}
	return data, nil
}

// Stats returns delivered and discarded frame counts.
func (s *Session) Stats() (delivered, discarded uint64) {
	return s.delivered.Load(), s.discarded.Load()
}
