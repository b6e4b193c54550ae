package pipeline

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lensnet-go/internal/aggregator"
	"github.com/tphakala/lensnet-go/internal/bestshot"
	"github.com/tphakala/lensnet-go/internal/capture"
	"github.com/tphakala/lensnet-go/internal/capture/capturetest"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/events"
	"github.com/tphakala/lensnet-go/internal/inference"
	"github.com/tphakala/lensnet-go/internal/inference/inferencetest"
	"github.com/tphakala/lensnet-go/internal/observability/metrics"
	"github.com/tphakala/lensnet-go/internal/testutil"
	"github.com/tphakala/lensnet-go/internal/throttle"
)

type harness struct {
	lc     *LiveCamera
	clock  *testutil.Clock
	driver *capturetest.Driver
	loader *inferencetest.Loader
	mobile *inferencetest.Model
	effnet *inferencetest.Model
	bus    *events.Bus
	events chan events.Event
	ticker *testutil.Ticker
}

func testPhoto(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 48)), nil))
	return buf.Bytes()
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		clock:  testutil.NewClock(testutil.Epoch),
		driver: capturetest.NewDriver(),
		mobile: inferencetest.NewModel(inference.MobileNetV2,
			inference.Prediction{Label: "tabby, tabby cat", Confidence: 0.9},
			inference.Prediction{Label: "laptop", Confidence: 0.4}),
		effnet: inferencetest.NewModel(inference.EfficientNetLite0,
			inference.Prediction{Label: "golden retriever", Confidence: 0.8}),
		bus:    events.New(events.Config{}),
		events: make(chan events.Event, 256),
		ticker: testutil.NewTicker(),
	}
	h.driver.SetPhoto(testPhoto(t), nil)
	h.loader = inferencetest.NewLoader(h.mobile, h.effnet)
	require.NoError(t, h.bus.Subscribe(events.ConsumerFunc{ID: "test", Fn: func(e events.Event) error {
		h.events <- e
		return nil
	}}))

	cfg := Config{
		Model:          inference.MobileNetV2,
		Position:       capture.PositionBack,
		MinInterval:    100 * time.Millisecond,
		Live:           aggregator.Config{ExpiryWindow: 3 * time.Second, Policy: aggregator.PolicyOnRaise},
		HighlightRules: map[string]float64{"tabby cat": 0.8},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	session := capture.NewSession(h.driver, capture.WithClock(h.clock.Now))
	adapter := inference.NewAdapter(h.loader, inference.Config{}, inference.WithClock(h.clock.Now))
	h.lc = New(cfg, session, adapter,
		WithClock(h.clock.Now),
		WithBus(h.bus),
		WithBestShotTicker(func(time.Duration) bestshot.Ticker { return h.ticker }))
	t.Cleanup(func() {
		assert.NoError(t, h.lc.Close())
		assert.NoError(t, h.bus.Close(testutil.ShortTestTimeout))
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.lc.Setup(t.Context()))
	require.NoError(t, h.lc.Start(t.Context()))
	require.Eventually(t, func() bool { return h.driver.Streaming() != "" }, testutil.ShortTestTimeout, time.Millisecond)
}

// frame advances the clock past the throttle interval and pushes a frame.
func (h *harness) frame(t *testing.T) {
	t.Helper()
	h.clock.Advance(200 * time.Millisecond)
	require.True(t, h.driver.Push(nil))
}

func (h *harness) waitEvent(t *testing.T, kind events.Kind) events.Event {
	t.Helper()
	deadline := time.After(testutil.DefaultTestTimeout)
	for {
		select {
		case e := <-h.events:
			if e.Kind() == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("no %s event", kind)
			return nil
		}
	}
}

func TestLiveResultsAndHighlight(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.start(t)

	h.frame(t)
	require.Eventually(t, func() bool { return !h.lc.Snapshot().Empty() }, testutil.DefaultTestTimeout, time.Millisecond)

	snap := h.lc.Snapshot()
	require.Len(t, snap.Results, 2)
	assert.Equal(t, "Tabby", snap.Results[0].Display)
	assert.Equal(t, "Laptop", snap.Results[1].Display)

	hl := h.lc.Highlight()
	assert.True(t, hl.ShouldHighlight)
	assert.Equal(t, "tabby cat", hl.Term)

	update := h.waitEvent(t, events.KindLiveUpdate).(events.LiveUpdate)
	assert.True(t, update.Highlight.ShouldHighlight)

	st := h.lc.Status()
	assert.True(t, st.Running)
	assert.Equal(t, inference.MobileNetV2, st.Model)
	require.NotNil(t, st.Device)
	assert.Equal(t, "back-wide", st.Device.ID)
}

func TestHighlightRulesUpdate(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.start(t)

	h.lc.SetHighlightRules(map[string]float64{"Tabby Cat": 0.95})
	h.frame(t)
	require.Eventually(t, func() bool { return !h.lc.Snapshot().Empty() }, testutil.DefaultTestTimeout, time.Millisecond)
	assert.False(t, h.lc.Highlight().ShouldHighlight)
	assert.InDelta(t, 0.95, h.lc.HighlightRules()["tabby cat"], 1e-9)
}

func TestAssistedCaptureGate(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *Config) {
		c.AssistedCapture = true
		c.HighlightRules = map[string]float64{"dog": 0.5}
	})
	h.start(t)

	_, err := h.lc.CapturePhoto(t.Context())
	require.ErrorIs(t, err, ErrCaptureGated)
	assert.Equal(t, int64(0), h.driver.Photos())

	h.lc.SetHighlightRules(map[string]float64{"tabby": 0.5})
	h.frame(t)
	require.Eventually(t, func() bool { return h.lc.Highlight().ShouldHighlight }, testutil.DefaultTestTimeout, time.Millisecond)

	photo, err := h.lc.CapturePhoto(t.Context())
	require.NoError(t, err)
	assert.NotEmpty(t, photo.ID)
	assert.NotEmpty(t, photo.Data)

	captured := h.waitEvent(t, events.KindPhotoCaptured).(events.PhotoCaptured)
	assert.Equal(t, photo.ID, captured.ID)
}

func TestCapturePhotoWithoutGate(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	_, err := h.lc.CapturePhoto(t.Context())
	require.ErrorIs(t, err, ErrNotRunning)

	h.start(t)
	_, err = h.lc.CapturePhoto(t.Context())
	require.NoError(t, err)
}

func TestSwitchModelDropsFramesWhileSwapping(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.start(t)

	h.loader.Hold()
	require.NoError(t, h.lc.SwitchModel(inference.EfficientNetLite0))
	require.Eventually(t, func() bool { return h.lc.Status().Swapping }, testutil.ShortTestTimeout, time.Millisecond)

	h.frame(t)
	h.frame(t)
	assert.Equal(t, int64(0), h.mobile.Calls()+h.effnet.Calls())
	assert.GreaterOrEqual(t, h.lc.ThrottleStats().DroppedSwapping, uint64(2))

	h.loader.Proceed()
	changed := h.waitEvent(t, events.KindModelChanged).(events.ModelChanged)
	require.NoError(t, changed.Err)
	assert.Equal(t, string(inference.EfficientNetLite0), changed.Model)
	assert.Equal(t, string(inference.MobileNetV2), changed.Previous)

	active, _ := h.lc.ActiveModel()
	assert.Equal(t, inference.EfficientNetLite0, active)

	h.frame(t)
	require.Eventually(t, func() bool {
		_, ok := h.lc.Snapshot().Find("golden retriever")
		return ok
	}, testutil.DefaultTestTimeout, time.Millisecond)
}

func TestSwitchModelFailureKeepsPrevious(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.start(t)

	require.NoError(t, h.lc.SwitchModel(inference.ResNet50))
	changed := h.waitEvent(t, events.KindModelChanged).(events.ModelChanged)
	require.ErrorIs(t, changed.Err, inference.ErrModelAssetMissing)

	h.lc.WaitModelSwitches()
	active, _ := h.lc.ActiveModel()
	assert.Equal(t, inference.MobileNetV2, active)

	require.Error(t, h.lc.SwitchModel("nope"))
}

func TestSwitchModelLastRequestWins(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.start(t)

	h.loader.Hold()
	require.NoError(t, h.lc.SwitchModel(inference.EfficientNetLite0))
	require.Eventually(t, func() bool { return h.lc.Status().Swapping }, testutil.ShortTestTimeout, time.Millisecond)

	// back to the cached model before the slow load completes
	require.NoError(t, h.lc.SwitchModel(inference.MobileNetV2))
	changed := h.waitEvent(t, events.KindModelChanged).(events.ModelChanged)
	require.NoError(t, changed.Err)
	assert.Equal(t, string(inference.MobileNetV2), changed.Model)

	h.loader.Proceed()
	h.lc.WaitModelSwitches()

	active, _ := h.lc.ActiveModel()
	assert.Equal(t, inference.MobileNetV2, active)
	assert.False(t, h.lc.Status().Swapping)
}

func TestSetupMissingModelIsHardError(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *Config) { c.Model = inference.ResNet50 })

	err := h.lc.Setup(t.Context())
	require.ErrorIs(t, err, inference.ErrModelAssetMissing)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))

	require.ErrorIs(t, h.lc.Start(t.Context()), ErrNotSetUp)
}

func TestSwitchLensClearsResults(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.start(t)

	h.frame(t)
	require.Eventually(t, func() bool { return !h.lc.Snapshot().Empty() }, testutil.DefaultTestTimeout, time.Millisecond)

	require.NoError(t, h.lc.SwitchFrontBack())
	assert.True(t, h.lc.Snapshot().Empty())

	for {
		e := h.waitEvent(t, events.KindCaptureChanged).(events.CaptureChanged)
		if e.DeviceID == "front" {
			assert.Equal(t, string(capture.PositionFront), e.Position)
			break
		}
	}
	require.Eventually(t, func() bool { return h.driver.Streaming() == "front" }, testutil.ShortTestTimeout, time.Millisecond)
}

func TestSwitchLensDiscardsInFlightResults(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.start(t)

	h.mobile.Block()
	h.frame(t)
	require.Eventually(t, func() bool { return h.mobile.Calls() == 1 }, testutil.DefaultTestTimeout, time.Millisecond)

	require.NoError(t, h.lc.SwitchFrontBack())
	h.mobile.Release()
	require.Eventually(t, func() bool {
		return h.lc.dispatcher.State() != throttle.StateBusy
	}, testutil.DefaultTestTimeout, time.Millisecond)

	assert.Equal(t, uint64(1), h.lc.ThrottleStats().Completed)
	assert.True(t, h.lc.Snapshot().Empty())
}

func TestBestShotThroughPipeline(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	_, err := h.lc.StartBestShot(t.Context(), bestshot.Params{Duration: 2 * time.Second, TargetLabel: "tabby cat", Threshold: 0.8})
	require.ErrorIs(t, err, ErrNotRunning)

	h.start(t)
	id, err := h.lc.StartBestShot(t.Context(), bestshot.Params{Duration: 2 * time.Second, TargetLabel: "tabby cat", Threshold: 0.8})
	require.NoError(t, err)

	h.frame(t)
	require.Eventually(t, func() bool { return h.lc.BestShotProgress().Candidates == 1 }, testutil.DefaultTestTimeout, time.Millisecond)

	h.clock.Advance(time.Second)
	require.True(t, h.ticker.Tick(h.clock.Now()))
	h.clock.Advance(time.Second)
	require.True(t, h.ticker.Tick(h.clock.Now()))

	ended := h.waitEvent(t, events.KindBestShotEnded).(events.BestShotEnded)
	assert.Equal(t, id, ended.SessionID)
	require.Len(t, ended.Candidates, 1)
	assert.NotEmpty(t, ended.Candidates[0].Thumbnail)
}

func TestStopCancelsBestShotAndClearsLive(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.start(t)

	_, err := h.lc.StartBestShot(t.Context(), bestshot.Params{Duration: 10 * time.Second, TargetLabel: "tabby cat", Threshold: 0.8})
	require.NoError(t, err)
	h.frame(t)
	require.Eventually(t, func() bool { return !h.lc.Snapshot().Empty() }, testutil.DefaultTestTimeout, time.Millisecond)

	h.lc.Stop()
	assert.False(t, h.lc.Running())
	assert.True(t, h.lc.Snapshot().Empty())
	assert.Equal(t, bestshot.StateInactive, h.lc.BestShotProgress().State)

	ended := h.waitEvent(t, events.KindBestShotEnded).(events.BestShotEnded)
	assert.Equal(t, metrics.OutcomeCancelled, ended.Outcome)
	assert.Empty(t, ended.Candidates)

	// restart works after a stop
	require.NoError(t, h.lc.Start(t.Context()))
	assert.True(t, h.lc.Running())
}
