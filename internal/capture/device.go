// Package capture owns the camera session: device selection, lens switching,
// continuous frame delivery and on-demand photo capture.
package capture

import (
	"context"
	"fmt"
	"strings"

	"github.com/tphakala/lensnet-go/internal/detection"
)

// Position is the side of the device a camera faces.
type Position string

const (
	PositionBack  Position = "back"
	PositionFront Position = "front"
)

// Opposite returns the other camera position.
func (p Position) Opposite() Position {
	if p == PositionFront {
		return PositionBack
	}
	return PositionFront
}

// ParsePosition accepts "back" and "front" in any case.
func ParsePosition(s string) (Position, error) {
	switch Position(strings.ToLower(strings.TrimSpace(s))) {
	case PositionBack:
		return PositionBack, nil
	case PositionFront:
		return PositionFront, nil
	default:
		return "", fmt.Errorf("invalid camera position %q", s)
	}
}

// Device is a selectable camera input.
type Device struct {
	ID       string
	Name     string
	Position Position
	Lens     string // e.g. "wide", "ultrawide", "telephoto"
	Default  bool   // default lens for its position
}

// DeliverFunc receives one preview frame from a driver.
type DeliverFunc func(buf *detection.PixelBuffer, o detection.Orientation)

// Driver is the hardware boundary of the capture session.
type Driver interface {
	// Devices lists the available inputs. It fails with ErrNoCamera or
	// ErrPermissionDenied when no camera can be used.
	Devices(ctx context.Context) ([]Device, error)

	// Stream delivers preview frames from dev until ctx is cancelled. It must
	// not call deliver after it returns.
	Stream(ctx context.Context, dev Device, deliver DeliverFunc) error

	// CapturePhoto takes one full resolution still and returns it encoded.
	CapturePhoto(ctx context.Context, dev Device) ([]byte, error)
}

// pickDevice returns the device at pos matching lens, falling back to the
// default lens for pos and then to any device at pos.
func pickDevice(devices []Device, pos Position, lens string) (Device, bool) {
	var fallback *Device
	for i := range devices {
		d := &devices[i]
		if d.Position != pos {
			continue
		}
		if lens != "" && strings.EqualFold(d.Lens, lens) {
			return *d, true
		}
		if fallback == nil || (d.Default && !fallback.Default) {
			fallback = d
		}
	}
	if fallback == nil {
		return Device{}, false
	}
	return *fallback, true
}
