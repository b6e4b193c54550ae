// Package events fans pipeline events out to slow consumers such as MQTT,
// notifications and storage without blocking the pipeline.
package events

import (
	"time"

	"github.com/tphakala/lensnet-go/internal/bestshot"
	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/highlight"
)

// Kind identifies an event type.
type Kind string

const (
	KindLiveUpdate     Kind = "live_update"
	KindBestShotEnded  Kind = "bestshot_ended"
	KindModelChanged   Kind = "model_changed"
	KindCaptureChanged Kind = "capture_changed"
	KindPhotoCaptured  Kind = "photo_captured"
	KindError          Kind = "error"
	KindResource       Kind = "resource"
)

// Event is anything published on the bus.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// LiveUpdate carries a published live snapshot and the highlight decision
// computed from it.
type LiveUpdate struct {
	Snapshot  *detection.LiveSnapshot
	Highlight highlight.Result
}

func (e LiveUpdate) Kind() Kind           { return KindLiveUpdate }
func (e LiveUpdate) Timestamp() time.Time { return e.Snapshot.UpdatedAt }

// BestShotEnded carries a finished best shot session.
type BestShotEnded struct {
	bestshot.Completion
}

func (e BestShotEnded) Kind() Kind           { return KindBestShotEnded }
func (e BestShotEnded) Timestamp() time.Time { return e.EndedAt }

// ModelChanged reports the outcome of a model switch.
type ModelChanged struct {
	Model    string
	Previous string
	Err      error // nil on success
	At       time.Time
}

func (e ModelChanged) Kind() Kind           { return KindModelChanged }
func (e ModelChanged) Timestamp() time.Time { return e.At }

// CaptureChanged reports a new active camera input.
type CaptureChanged struct {
	DeviceID string
	Position string
	Lens     string
	At       time.Time
}

func (e CaptureChanged) Kind() Kind           { return KindCaptureChanged }
func (e CaptureChanged) Timestamp() time.Time { return e.At }

// PhotoCaptured reports a manual capture.
type PhotoCaptured struct {
	ID           string
	Data         []byte
	FacesBlurred int
	At           time.Time
}

func (e PhotoCaptured) Kind() Kind           { return KindPhotoCaptured }
func (e PhotoCaptured) Timestamp() time.Time { return e.At }

// ErrorEvent carries an error that needs user attention, such as a failed
// model load.
type ErrorEvent struct {
	Err *errors.EnhancedError
	At  time.Time
}

// NewErrorEvent wraps err, building an enhanced error when needed.
func NewErrorEvent(component string, err error, at time.Time) ErrorEvent {
	var ee *errors.EnhancedError
	if !errors.As(err, &ee) {
		ee = errors.New(err).Component(component).Build()
	}
	return ErrorEvent{Err: ee, At: at}
}

func (e ErrorEvent) Kind() Kind           { return KindError }
func (e ErrorEvent) Timestamp() time.Time { return e.At }

// ResourceEvent reports a host resource threshold crossing.
type ResourceEvent struct {
	Resource  string  // ResourceCPU or ResourceDisk
	Path      string  // mount point for disk events
	Value     float64 // current usage percent
	Threshold float64
	Severity  string // SeverityWarning or SeverityRecovery
	At        time.Time
}

const (
	ResourceCPU  = "cpu"
	ResourceDisk = "disk"

	SeverityWarning  = "warning"
	SeverityRecovery = "recovery"
)

func (e ResourceEvent) Kind() Kind           { return KindResource }
func (e ResourceEvent) Timestamp() time.Time { return e.At }

// Consumer processes events. Each consumer receives events in publish order
// on its own goroutine.
type Consumer interface {
	Name() string
	Consume(e Event) error
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc struct {
	ID string
	Fn func(Event) error
}

func (c ConsumerFunc) Name() string          { return c.ID }
func (c ConsumerFunc) Consume(e Event) error { return c.Fn(e) }

// Stats holds bus counters.
type Stats struct {
	Published  uint64
	Delivered  uint64
	Dropped    uint64
	Suppressed uint64
	Errors     uint64
}
