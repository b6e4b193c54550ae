package inference

import "github.com/tphakala/lensnet-go/internal/errors"

// Sentinel errors
var (
	ErrUnknownModel       = errors.NewStd("unknown model type")
	ErrModelAssetMissing  = errors.NewStd("model asset missing")
	ErrNotReady           = errors.NewStd("no model loaded")
	ErrLabelMismatch      = errors.NewStd("label count does not match model output")
	ErrInferenceFailed    = errors.NewStd("inference failed")
	ErrAdapterClosed      = errors.NewStd("inference adapter closed")
	ErrCannotUnloadActive = errors.NewStd("cannot unload the active model")
	ErrModelSuperseded    = errors.NewStd("model selection superseded by a later request")
)
