package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/lensnet-go/internal/bestshot"
	"github.com/tphakala/lensnet-go/internal/capture"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/events"
	"github.com/tphakala/lensnet-go/internal/highlight"
	"github.com/tphakala/lensnet-go/internal/inference"
	"github.com/tphakala/lensnet-go/internal/logger"
	"github.com/tphakala/lensnet-go/internal/privacy/faceblur"
)

// SwitchModel loads t in the background and makes it active once ready.
// Frames offered while the load runs are dropped by the throttle. The
// outcome is published as a ModelChanged event; on failure the previous
// model stays active. When switches overlap the last request wins.
func (lc *LiveCamera) SwitchModel(t inference.ModelType) error {
	if _, ok := t.Spec(); !ok {
		return errors.New(inference.ErrUnknownModel).
			Component("pipeline").
			Category(errors.CategoryValidation).
			Context("model", string(t)).
			Build()
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.closed {
		return ErrClosed
	}
	prev, _ := lc.adapter.Active()
	lc.swaps.Go(func() {
		_, err := lc.adapter.LoadModel(lc.life, t)
		if errors.Is(err, inference.ErrModelSuperseded) {
			// a later selection owns the outcome and the persisted setting
			lc.log.Debug("model switch superseded", logger.String("model", string(t)))
			return
		}
		lc.bus.TryPublish(events.ModelChanged{
			Model:    string(t),
			Previous: string(prev),
			Err:      err,
			At:       lc.now(),
		})
		if err != nil {
			lc.publishError("inference", err)
			return
		}
		if lc.store != nil {
			lc.store.SetSelectedModel(string(t))
			if err := lc.store.Save(); err != nil {
				lc.log.Warn("failed to persist model selection", logger.Error(err))
			}
		}
	})
	return nil
}

// WaitModelSwitches blocks until background model switches have finished.
func (lc *LiveCamera) WaitModelSwitches() {
	lc.swaps.Wait()
}

// SwitchLens selects another input on the same side. Live results from the
// old input are cleared.
func (lc *LiveCamera) SwitchLens(id string) error {
	if err := lc.session.SwitchLens(id); err != nil {
		return err
	}
	lc.afterInputChange()
	return nil
}

// SwitchFrontBack flips between the front and back cameras.
func (lc *LiveCamera) SwitchFrontBack() error {
	if err := lc.session.SwitchFrontBack(); err != nil {
		return err
	}
	lc.afterInputChange()
	return nil
}

func (lc *LiveCamera) afterInputChange() {
	lc.resetLive()
	if dev, ok := lc.session.ActiveDevice(); ok {
		lc.publishCaptureChanged(dev)
	}
}

// Devices lists the available camera inputs.
func (lc *LiveCamera) Devices() []capture.Device {
	return lc.session.Devices()
}

// SetMinInterval changes the inference rate limit.
func (lc *LiveCamera) SetMinInterval(d time.Duration) {
	lc.dispatcher.SetMinInterval(d)
}

// MinInterval returns the current inference rate limit.
func (lc *LiveCamera) MinInterval() time.Duration {
	return lc.dispatcher.MinInterval()
}

// SetHighlightRules replaces the highlight rules. The new rules apply from
// the next published snapshot.
func (lc *LiveCamera) SetHighlightRules(rules map[string]float64) {
	rs := highlight.NewRuleSet(rules)
	lc.rules.Store(&rs)
	lc.persist(func() { lc.store.SetHighlightRules(rs) })
}

// HighlightRules returns a copy of the active rules.
func (lc *LiveCamera) HighlightRules() highlight.RuleSet {
	return lc.rules.Load().Clone()
}

// SetAssistedCapture gates manual photos on a highlighted object.
func (lc *LiveCamera) SetAssistedCapture(enabled bool) {
	lc.assistedCapture.Store(enabled)
	lc.persist(func() { lc.store.SetAssistedCapture(enabled) })
}

func (lc *LiveCamera) AssistedCapture() bool { return lc.assistedCapture.Load() }

// SetFaceBlur toggles face blurring on captured photos.
func (lc *LiveCamera) SetFaceBlur(enabled bool) {
	lc.faceBlur.Store(enabled)
	lc.persist(func() { lc.store.SetFaceBlur(enabled) })
}

func (lc *LiveCamera) FaceBlur() bool { return lc.faceBlur.Load() }

// SetBlurStyle selects how faces are obscured.
func (lc *LiveCamera) SetBlurStyle(style faceblur.Style) {
	lc.blurStyle.Store(style)
}

func (lc *LiveCamera) persist(apply func()) {
	if lc.store == nil {
		return
	}
	apply()
	if err := lc.store.Save(); err != nil {
		lc.log.Warn("failed to persist settings", logger.Error(err))
	}
}

// Photo is a manually captured still.
type Photo struct {
	ID           string
	Data         []byte
	FacesBlurred int
	At           time.Time
}

// CapturePhoto takes a still from the active input. With assisted capture
// enabled it fails with ErrCaptureGated unless an object is highlighted.
func (lc *LiveCamera) CapturePhoto(ctx context.Context) (Photo, error) {
	if !lc.Running() {
		return Photo{}, ErrNotRunning
	}
	if lc.assistedCapture.Load() && !lc.Highlight().ShouldHighlight {
		return Photo{}, errors.New(ErrCaptureGated).
			Component("pipeline").
			Category(errors.CategoryState).
			Build()
	}

	data, err := lc.session.CapturePhoto(ctx)
	if err != nil {
		return Photo{}, err
	}
	data, blurred, err := lc.protectPhoto(ctx, data)
	if err != nil {
		// never hand out an unblurred photo when blur was requested
		return Photo{}, errors.New(err).
			Component("pipeline").
			Category(errors.CategoryImageProcess).
			Build()
	}

	p := Photo{ID: uuid.NewString(), Data: data, FacesBlurred: blurred, At: lc.now()}
	lc.bus.TryPublish(events.PhotoCaptured{ID: p.ID, Data: p.Data, FacesBlurred: p.FacesBlurred, At: p.At})
	return p, nil
}

// StartBestShot begins a timed best shot session on the live stream.
func (lc *LiveCamera) StartBestShot(ctx context.Context, p bestshot.Params) (string, error) {
	if !lc.Running() {
		return "", ErrNotRunning
	}
	id, err := lc.sequencer.Start(ctx, p)
	if err != nil {
		return "", err
	}
	lc.persist(func() { lc.store.SetBestShot(p.Duration, p.TargetLabel, float64(p.Threshold)) })
	return id, nil
}

// StopBestShot ends the active session early. With finalize the candidates
// captured so far are ranked and returned; without it they are discarded.
func (lc *LiveCamera) StopBestShot(finalize bool) ([]bestshot.Candidate, error) {
	return lc.sequencer.Stop(finalize)
}

// BestShotProgress reports the current best shot session.
func (lc *LiveCamera) BestShotProgress() bestshot.Progress {
	return lc.sequencer.Progress()
}
