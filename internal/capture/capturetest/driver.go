// Package capturetest provides a manually driven capture.Driver for tests.
package capturetest

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"github.com/tphakala/lensnet-go/internal/capture"
	"github.com/tphakala/lensnet-go/internal/detection"
)

// DefaultDevices is a back wide, back ultrawide and front camera.
func DefaultDevices() []capture.Device {
	return []capture.Device{
		{ID: "back-wide", Position: capture.PositionBack, Lens: "wide", Default: true},
		{ID: "back-ultrawide", Position: capture.PositionBack, Lens: "ultrawide"},
		{ID: "front", Position: capture.PositionFront, Lens: "wide", Default: true},
	}
}

// Driver delivers frames only when Push is called.
type Driver struct {
	mu         sync.Mutex
	devices    []capture.Device
	devicesErr error
	deliver    capture.DeliverFunc
	history    []capture.DeliverFunc // every stream's callback, oldest first
	streaming  string
	photo      []byte
	photoErr   error
	photoGate  chan struct{}
	photos     atomic.Int64
	streams    atomic.Int64
}

// NewDriver returns a driver exposing devices.
func NewDriver(devices ...capture.Device) *Driver {
	if len(devices) == 0 {
		devices = DefaultDevices()
	}
	return &Driver{devices: devices, photo: []byte{0xff, 0xd8, 0xff, 0xd9}}
}

// FailDevices makes Devices return err.
func (d *Driver) FailDevices(err error) {
	d.mu.Lock()
	d.devicesErr = err
	d.mu.Unlock()
}

// SetPhoto sets the bytes or error returned by CapturePhoto.
func (d *Driver) SetPhoto(data []byte, err error) {
	d.mu.Lock()
	d.photo, d.photoErr = data, err
	d.mu.Unlock()
}

// HoldPhotos makes CapturePhoto wait for ReleasePhoto.
func (d *Driver) HoldPhotos() {
	d.mu.Lock()
	d.photoGate = make(chan struct{})
	d.mu.Unlock()
}

// ReleasePhoto lets one held capture finish.
func (d *Driver) ReleasePhoto() {
	d.mu.Lock()
	gate := d.photoGate
	d.mu.Unlock()
	if gate != nil {
		gate <- struct{}{}
	}
}

// Photos returns the number of CapturePhoto calls.
func (d *Driver) Photos() int64 { return d.photos.Load() }

// Streams returns the number of Stream calls.
func (d *Driver) Streams() int64 { return d.streams.Load() }

// Streaming returns the device currently streaming, or "".
func (d *Driver) Streaming() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streaming
}

// Push delivers one frame to the active stream. It reports false when no
// stream is running.
func (d *Driver) Push(buf *detection.PixelBuffer) bool {
	d.mu.Lock()
	deliver := d.deliver
	d.mu.Unlock()
	if deliver == nil {
		return false
	}
	if buf == nil {
		buf = Frame()
	}
	deliver(buf, detection.OrientationUp)
	return true
}

// PushStale delivers a frame through the callback of stream i, even if that
// stream has ended. It simulates a late frame from a replaced input.
func (d *Driver) PushStale(i int) {
	d.mu.Lock()
	deliver := d.history[i]
	d.mu.Unlock()
	deliver(Frame(), detection.OrientationUp)
}

// Frame returns a small blank pixel buffer.
func Frame() *detection.PixelBuffer {
	return detection.BufferFromImage(image.NewRGBA(image.Rect(0, 0, 2, 2)))
}

// Devices implements capture.Driver.
func (d *Driver) Devices(context.Context) ([]capture.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.devicesErr != nil {
		return nil, d.devicesErr
	}
	return append([]capture.Device(nil), d.devices...), nil
}

// Stream implements capture.Driver.
func (d *Driver) Stream(ctx context.Context, dev capture.Device, deliver capture.DeliverFunc) error {
	d.streams.Add(1)
	d.mu.Lock()
	d.deliver = deliver
	d.history = append(d.history, deliver)
	d.streaming = dev.ID
	d.mu.Unlock()

	<-ctx.Done()

	d.mu.Lock()
	d.deliver = nil
	d.streaming = ""
	d.mu.Unlock()
	return nil
}

// CapturePhoto implements capture.Driver.
func (d *Driver) CapturePhoto(ctx context.Context, _ capture.Device) ([]byte, error) {
	d.photos.Add(1)
	d.mu.Lock()
	data, err, gate := d.photo, d.photoErr, d.photoGate
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}
