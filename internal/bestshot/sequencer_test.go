package bestshot

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/location"
	"github.com/tphakala/lensnet-go/internal/testutil"
)

type fakeCamera struct {
	mu    sync.Mutex
	photo []byte
	err   error
	calls []time.Time
	clock *testutil.Clock
}

func newFakeCamera(t *testing.T, clock *testutil.Clock) *fakeCamera {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 640, 480)), nil))
	return &fakeCamera{photo: buf.Bytes(), clock: clock}
}

func (c *fakeCamera) CapturePhoto(context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, c.clock.Now())
	if c.err != nil {
		return nil, c.err
	}
	return c.photo, nil
}

func (c *fakeCamera) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *fakeCamera) callTimes() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Time(nil), c.calls...)
}

type harness struct {
	seq       *Sequencer
	clock     *testutil.Clock
	ticker    *testutil.Ticker
	camera    *fakeCamera
	completed chan Completion
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock:     testutil.NewClock(testutil.Epoch),
		ticker:    testutil.NewTicker(),
		completed: make(chan Completion, 4),
	}
	h.camera = newFakeCamera(t, h.clock)
	base := []Option{
		WithClock(h.clock.Now),
		WithTicker(func(time.Duration) Ticker { return h.ticker }),
		OnComplete(func(c Completion) { h.completed <- c }),
	}
	h.seq = New(h.camera, append(base, opts...)...)
	t.Cleanup(h.seq.Close)
	return h
}

func snapshot(label string, conf float32, at time.Time) *detection.LiveSnapshot {
	r := detection.NewResult(label, conf, at)
	return &detection.LiveSnapshot{Results: []detection.LiveResult{{ClassificationResult: r, Display: r.DisplayLabel(), Opacity: 1}}}
}

func (h *harness) waitCandidates(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.seq.Progress().Candidates == n }, testutil.ShortTestTimeout, time.Millisecond)
}

// Target "cat" at 0.8 for 5s with qualifying detections at t=1..4.
func TestSessionCapturesAndAutoFinalizes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.seq.Start(t.Context(), Params{Duration: 5 * time.Second, TargetLabel: "cat", Threshold: 0.8})
	require.NoError(t, err)

	confidences := []float32{0.85, 0.97, 0.82, 0.91}
	for i, c := range confidences {
		h.clock.Set(testutil.Epoch.Add(time.Duration(i+1) * time.Second))
		require.True(t, h.ticker.Tick(h.clock.Now()))
		h.seq.Observe(snapshot("tabby, cat", c, h.clock.Now()))
		h.waitCandidates(t, i+1)
		assert.Equal(t, StateActive, h.seq.State())
	}
	require.Eventually(t, func() bool { return h.seq.Progress().Remaining == time.Second }, testutil.ShortTestTimeout, time.Millisecond)

	h.clock.Set(testutil.Epoch.Add(5 * time.Second))
	require.True(t, h.ticker.Tick(h.clock.Now()))

	done := testutil.Receive(t, h.completed, testutil.ShortTestTimeout, "session did not finalize")
	assert.Equal(t, "completed", done.Outcome)
	assert.Equal(t, 4, done.Captured)
	require.Len(t, done.Candidates, DefaultKeepTop)
	got := []float32{}
	for _, c := range done.Candidates {
		got = append(got, c.TriggeringResult.Confidence)
		assert.Equal(t, done.SessionID, c.SessionID)
		assert.NotEmpty(t, c.ImageData)
		assert.NotEmpty(t, c.Thumbnail)
	}
	assert.Equal(t, []float32{0.97, 0.91, 0.85}, got)
	assert.Equal(t, StateInactive, h.seq.State())
	assert.Zero(t, h.seq.Progress().Candidates)
}

func TestCapturesAreSpacedByInterval(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	_, err := h.seq.Start(t.Context(), Params{Duration: time.Minute, TargetLabel: "cat", Threshold: 0.5})
	require.NoError(t, err)

	for range 35 {
		h.seq.Observe(snapshot("cat", 0.9, h.clock.Now()))
		h.clock.Advance(100 * time.Millisecond)
	}
	h.waitCandidates(t, 4)

	calls := h.camera.callTimes()
	require.Len(t, calls, 4)
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i].Sub(calls[i-1]), time.Second)
	}
}

func TestObserveIgnoresNonQualifying(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.seq.Observe(snapshot("cat", 0.99, h.clock.Now()))
	assert.Empty(t, h.camera.callTimes(), "inactive sequencer must not capture")

	_, err := h.seq.Start(t.Context(), Params{Duration: time.Minute, TargetLabel: "cat", Threshold: 0.8})
	require.NoError(t, err)
	h.seq.Observe(snapshot("cat", 0.79, h.clock.Now()))
	h.seq.Observe(snapshot("dog", 0.99, h.clock.Now()))
	h.seq.Observe(nil)
	assert.Empty(t, h.camera.callTimes())
}

func TestRank(t *testing.T) {
	t.Parallel()
	var cands []Candidate
	for _, c := range []float32{0.81, 0.95, 0.83, 0.99} {
		cands = append(cands, Candidate{TriggeringResult: detection.NewResult("cat", c, testutil.Epoch)})
	}
	ranked := Rank(cands, 3)
	require.Len(t, ranked, 3)
	assert.Equal(t, []float32{0.99, 0.95, 0.83}, []float32{
		ranked[0].TriggeringResult.Confidence,
		ranked[1].TriggeringResult.Confidence,
		ranked[2].TriggeringResult.Confidence,
	})
	assert.InDelta(t, 0.81, cands[0].TriggeringResult.Confidence, 1e-6, "input must not be reordered")
}

func TestStartRejectsWhileActive(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	p := Params{Duration: time.Minute, TargetLabel: "cat", Threshold: 0.8}

	_, err := h.seq.Start(t.Context(), p)
	require.NoError(t, err)
	_, err = h.seq.Start(t.Context(), p)
	require.ErrorIs(t, err, ErrSessionActive)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))
}

func TestStartValidatesParams(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	for name, p := range map[string]Params{
		"zero duration":       {TargetLabel: "cat", Threshold: 0.5},
		"fractional duration": {Duration: 2500 * time.Millisecond, TargetLabel: "cat", Threshold: 0.5},
		"empty label":         {Duration: time.Second, TargetLabel: "  ", Threshold: 0.5},
		"threshold high":      {Duration: time.Second, TargetLabel: "cat", Threshold: 1.5},
	} {
		_, err := h.seq.Start(t.Context(), p)
		require.ErrorIs(t, err, ErrInvalidParams, name)
	}
	assert.Equal(t, StateInactive, h.seq.State())
}

func TestFailedCaptureIsSkipped(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	_, err := h.seq.Start(t.Context(), Params{Duration: time.Minute, TargetLabel: "cat", Threshold: 0.5})
	require.NoError(t, err)

	h.camera.setErr(errors.NewStd("sensor timeout"))
	h.seq.Observe(snapshot("cat", 0.9, h.clock.Now()))
	require.Eventually(t, func() bool { return len(h.camera.callTimes()) == 1 }, testutil.ShortTestTimeout, time.Millisecond)

	h.camera.setErr(nil)
	h.clock.Advance(time.Second)
	h.seq.Observe(snapshot("cat", 0.9, h.clock.Now()))
	h.waitCandidates(t, 1)
	assert.Equal(t, StateActive, h.seq.State())

	ranked, err := h.seq.Stop(true)
	require.NoError(t, err)
	assert.Len(t, ranked, 1)
	done := testutil.Receive(t, h.completed, testutil.ShortTestTimeout, "no completion")
	assert.Equal(t, 1, done.Failed)
}

func TestStopWithoutFinalizeDiscards(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	_, err := h.seq.Start(t.Context(), Params{Duration: time.Minute, TargetLabel: "cat", Threshold: 0.5})
	require.NoError(t, err)
	h.seq.Observe(snapshot("cat", 0.9, h.clock.Now()))
	h.waitCandidates(t, 1)

	ranked, err := h.seq.Stop(false)
	require.NoError(t, err)
	assert.Empty(t, ranked)
	done := testutil.Receive(t, h.completed, testutil.ShortTestTimeout, "no completion")
	assert.Equal(t, "cancelled", done.Outcome)
	assert.Empty(t, done.Candidates)
	assert.False(t, h.ticker.Tick(h.clock.Now()), "countdown must be stopped")

	_, err = h.seq.Stop(false)
	require.ErrorIs(t, err, ErrNotActive)

	_, err = h.seq.Start(t.Context(), Params{Duration: time.Second, TargetLabel: "cat", Threshold: 0.5})
	require.NoError(t, err, "a new session can start after stop")
}

func TestStopWithFinalizeRanks(t *testing.T) {
	t.Parallel()
	h := newHarness(t, WithKeepTop(2))
	_, err := h.seq.Start(t.Context(), Params{Duration: time.Minute, TargetLabel: "cat", Threshold: 0.5})
	require.NoError(t, err)
	for i, c := range []float32{0.6, 0.9, 0.7} {
		h.seq.Observe(snapshot("cat", c, h.clock.Now()))
		h.waitCandidates(t, i+1)
		h.clock.Advance(time.Second)
	}
	ranked, err := h.seq.Stop(true)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.InDelta(t, 0.9, ranked[0].TriggeringResult.Confidence, 1e-6)
	assert.InDelta(t, 0.7, ranked[1].TriggeringResult.Confidence, 1e-6)
}

func TestContextCancelEndsSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx, cancel := context.WithCancel(t.Context())
	_, err := h.seq.Start(ctx, Params{Duration: time.Minute, TargetLabel: "cat", Threshold: 0.5})
	require.NoError(t, err)

	cancel()
	done := testutil.Receive(t, h.completed, testutil.ShortTestTimeout, "no completion")
	assert.Equal(t, "cancelled", done.Outcome)
	assert.Equal(t, StateInactive, h.seq.State())
}

func TestCandidateEnrichment(t *testing.T) {
	t.Parallel()
	var transformed int
	h := newHarness(t,
		WithLocation(location.NewStatic(40, 0)),
		WithSunCalc(location.NewSunCalc(location.Coordinate{Latitude: 40})),
		WithThumbnailSize(64),
		WithTransform(func(_ context.Context, data []byte) ([]byte, int, error) {
			transformed++
			return data, 2, nil
		}),
	)
	_, err := h.seq.Start(t.Context(), Params{Duration: time.Minute, TargetLabel: "cat", Threshold: 0.5})
	require.NoError(t, err)
	h.seq.Observe(snapshot("cat", 0.9, h.clock.Now()))
	h.waitCandidates(t, 1)

	ranked, err := h.seq.Stop(true)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	c := ranked[0]
	assert.Equal(t, 1, transformed)
	assert.Equal(t, 2, c.FacesBlurred)
	require.NotNil(t, c.Location)
	assert.InDelta(t, 40, c.Location.Latitude, 1e-9)
	assert.Equal(t, location.LightDay, c.Light)

	thumb, err := jpeg.Decode(bytes.NewReader(c.Thumbnail))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), thumb.Bounds())
}

func TestFailedTransformDropsCandidate(t *testing.T) {
	t.Parallel()
	h := newHarness(t, WithTransform(func(context.Context, []byte) ([]byte, int, error) {
		return nil, 0, errors.NewStd("detector offline")
	}))
	_, err := h.seq.Start(t.Context(), Params{Duration: time.Minute, TargetLabel: "cat", Threshold: 0.5})
	require.NoError(t, err)
	h.seq.Observe(snapshot("cat", 0.9, h.clock.Now()))
	require.Eventually(t, func() bool { return len(h.camera.callTimes()) == 1 }, testutil.ShortTestTimeout, time.Millisecond)

	ranked, err := h.seq.Stop(true)
	require.NoError(t, err)
	assert.Empty(t, ranked)
}
