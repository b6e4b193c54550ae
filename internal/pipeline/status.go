package pipeline

import (
	"github.com/tphakala/lensnet-go/internal/bestshot"
	"github.com/tphakala/lensnet-go/internal/capture"
	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/highlight"
	"github.com/tphakala/lensnet-go/internal/inference"
	"github.com/tphakala/lensnet-go/internal/throttle"
)

// Status is a point in time view of the whole pipeline.
type Status struct {
	Running         bool                    `json:"running"`
	Model           inference.ModelType     `json:"model,omitempty"`
	ModelInfo       *inference.Info         `json:"model_info,omitempty"`
	Swapping        bool                    `json:"swapping"`
	Device          *capture.Device         `json:"device,omitempty"`
	Throttle        string                  `json:"throttle_state"`
	MinInterval     string                  `json:"min_interval"`
	Frames          throttle.Stats          `json:"frames"`
	Highlight       highlight.Result        `json:"highlight"`
	AssistedCapture bool                    `json:"assisted_capture"`
	FaceBlur        bool                    `json:"face_blur"`
	BestShot        bestshot.Progress       `json:"best_shot"`
	Live            *detection.LiveSnapshot `json:"live"`
}

// Snapshot returns the latest live results with expired entries removed.
func (lc *LiveCamera) Snapshot() *detection.LiveSnapshot {
	return lc.aggregator.Snapshot()
}

// Highlight returns the evaluation of the most recent snapshot.
func (lc *LiveCamera) Highlight() highlight.Result {
	return *lc.lastHighlight.Load()
}

// ActiveModel returns the active model type.
func (lc *LiveCamera) ActiveModel() (inference.ModelType, bool) {
	return lc.adapter.Active()
}

// ThrottleStats returns the frame dispatcher counters.
func (lc *LiveCamera) ThrottleStats() throttle.Stats {
	return lc.dispatcher.Stats()
}

// Status collects the current pipeline state.
func (lc *LiveCamera) Status() Status {
	st := Status{
		Running:         lc.Running(),
		Swapping:        lc.adapter.IsSwapping(),
		Throttle:        lc.dispatcher.State().String(),
		MinInterval:     lc.dispatcher.MinInterval().String(),
		Frames:          lc.dispatcher.Stats(),
		Highlight:       lc.Highlight(),
		AssistedCapture: lc.assistedCapture.Load(),
		FaceBlur:        lc.faceBlur.Load(),
		BestShot:        lc.sequencer.Progress(),
		Live:            lc.aggregator.Snapshot(),
	}
	if t, ok := lc.adapter.Active(); ok {
		st.Model = t
	}
	if info, ok := lc.adapter.ActiveInfo(); ok {
		st.ModelInfo = &info
	}
	if dev, ok := lc.session.ActiveDevice(); ok {
		st.Device = &dev
	}
	return st
}
