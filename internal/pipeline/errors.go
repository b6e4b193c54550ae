package pipeline

import "github.com/tphakala/lensnet-go/internal/errors"

var (
	ErrNotRunning   = errors.NewStd("live camera is not running")
	ErrNotSetUp     = errors.NewStd("live camera is not set up")
	ErrCaptureGated = errors.NewStd("assisted capture: no highlighted object in view")
	ErrClosed       = errors.NewStd("live camera closed")
)
