package capture

import "github.com/tphakala/lensnet-go/internal/errors"

// Sentinel errors
var (
	ErrNoCamera          = errors.NewStd("no camera available")
	ErrPermissionDenied  = errors.NewStd("camera permission denied")
	ErrNotSetUp          = errors.NewStd("capture session not set up")
	ErrUnknownDevice     = errors.NewStd("unknown capture device")
	ErrCaptureInProgress = errors.NewStd("photo capture already in progress")
	ErrConfiguring       = errors.NewStd("configuration already committed")
)
