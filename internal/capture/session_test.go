package capture_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lensnet-go/internal/capture"
	"github.com/tphakala/lensnet-go/internal/capture/capturetest"
	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/testutil"
)

func startedSession(t *testing.T, driver *capturetest.Driver) *capture.Session {
	t.Helper()
	s := capture.NewSession(driver)
	require.NoError(t, s.Setup(t.Context(), capture.PositionBack, ""))
	require.NoError(t, s.Start(t.Context()))
	t.Cleanup(s.Stop)
	require.Eventually(t, func() bool { return driver.Streaming() != "" }, testutil.ShortTestTimeout, time.Millisecond)
	return s
}

func TestSetupErrors(t *testing.T) {
	t.Parallel()
	for _, sentinel := range []error{capture.ErrNoCamera, capture.ErrPermissionDenied} {
		driver := capturetest.NewDriver()
		driver.FailDevices(sentinel)
		s := capture.NewSession(driver)

		err := s.Setup(t.Context(), capture.PositionBack, "")
		require.ErrorIs(t, err, sentinel)
		assert.True(t, errors.IsCategory(err, errors.CategoryCaptureDevice))
		require.ErrorIs(t, s.Start(t.Context()), capture.ErrNotSetUp)
	}
}

func TestSetupSelectsRequestedLens(t *testing.T) {
	t.Parallel()
	s := capture.NewSession(capturetest.NewDriver())
	require.NoError(t, s.Setup(t.Context(), capture.PositionBack, "ultrawide"))
	dev, ok := s.ActiveDevice()
	require.True(t, ok)
	assert.Equal(t, "back-ultrawide", dev.ID)
}

func TestFramesDeliveredWithIncreasingSeq(t *testing.T) {
	t.Parallel()
	driver := capturetest.NewDriver()
	s := startedSession(t, driver)

	var seqs []uint64
	var mu sync.Mutex
	s.Subscribe(func(f detection.Frame) {
		mu.Lock()
		seqs = append(seqs, f.Seq)
		mu.Unlock()
		assert.Equal(t, "back-wide", f.DeviceID)
	})
	for range 3 {
		require.True(t, driver.Push(nil))
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestStopHaltsDelivery(t *testing.T) {
	t.Parallel()
	driver := capturetest.NewDriver()
	s := startedSession(t, driver)

	var frames atomic.Int64
	s.Subscribe(func(detection.Frame) { frames.Add(1) })
	driver.Push(nil)
	s.Stop()

	assert.False(t, s.Running())
	assert.Empty(t, driver.Streaming())
	assert.False(t, driver.Push(nil))
	assert.Equal(t, int64(1), frames.Load())

	// restart resumes delivery
	require.NoError(t, s.Start(t.Context()))
	require.Eventually(t, func() bool { return driver.Push(nil) }, testutil.ShortTestTimeout, time.Millisecond)
	assert.Equal(t, int64(2), frames.Load())
}

func TestSwitchLensWhileRunning(t *testing.T) {
	t.Parallel()
	driver := capturetest.NewDriver()
	s := startedSession(t, driver)

	devices := make(chan string, 4)
	s.Subscribe(func(f detection.Frame) { devices <- f.DeviceID })

	require.NoError(t, s.SwitchLens("back-ultrawide"))
	assert.True(t, s.Running())
	require.Eventually(t, func() bool { return driver.Streaming() == "back-ultrawide" }, testutil.ShortTestTimeout, time.Millisecond)
	driver.Push(nil)
	assert.Equal(t, "back-ultrawide", testutil.Receive(t, devices, testutil.ShortTestTimeout, "no frame"))

	require.ErrorIs(t, s.SwitchLens("tele"), capture.ErrUnknownDevice)
	dev, _ := s.ActiveDevice()
	assert.Equal(t, "back-ultrawide", dev.ID)
}

func TestSwitchFrontBack(t *testing.T) {
	t.Parallel()
	s := startedSession(t, capturetest.NewDriver())

	require.NoError(t, s.SwitchFrontBack())
	dev, _ := s.ActiveDevice()
	assert.Equal(t, capture.PositionFront, dev.Position)

	require.NoError(t, s.SwitchFrontBack())
	dev, _ = s.ActiveDevice()
	assert.Equal(t, "back-wide", dev.ID)
}

func TestConfigurationBracketDiscardsStaleFrames(t *testing.T) {
	t.Parallel()
	driver := capturetest.NewDriver()
	s := startedSession(t, driver)

	var frames atomic.Int64
	s.Subscribe(func(detection.Frame) { frames.Add(1) })

	c := s.BeginConfiguration()
	require.NoError(t, c.SelectDevice("front"))
	require.NoError(t, c.Commit())
	require.ErrorIs(t, c.Commit(), capture.ErrConfiguring)

	// a frame from the previous stream arriving late is dropped
	driver.PushStale(0)
	_, discarded := s.Stats()
	assert.Equal(t, uint64(1), discarded)
	assert.Zero(t, frames.Load())

	aborted := s.BeginConfiguration()
	require.NoError(t, aborted.SelectDevice("back-wide"))
	aborted.Abort()
	dev, _ := s.ActiveDevice()
	assert.Equal(t, "front", dev.ID)
}

func TestCapturePhotoSingleInFlight(t *testing.T) {
	t.Parallel()
	driver := capturetest.NewDriver()
	s := startedSession(t, driver)
	driver.HoldPhotos()

	first := make(chan error, 1)
	go func() {
		_, err := s.CapturePhoto(context.Background())
		first <- err
	}()
	require.Eventually(t, func() bool { return driver.Photos() == 1 }, testutil.ShortTestTimeout, time.Millisecond)

	_, err := s.CapturePhoto(t.Context())
	require.ErrorIs(t, err, capture.ErrCaptureInProgress)

	driver.ReleasePhoto()
	require.NoError(t, testutil.Receive(t, first, testutil.DefaultTestTimeout, "capture did not finish"))
}

func TestCapturePhotoFailure(t *testing.T) {
	t.Parallel()
	driver := capturetest.NewDriver()
	s := startedSession(t, driver)
	driver.SetPhoto(nil, errors.NewStd("sensor error"))

	data, err := s.CapturePhoto(t.Context())
	require.Error(t, err)
	assert.Nil(t, data)
	assert.True(t, errors.IsCategory(err, errors.CategoryCapturePhoto))

	driver.SetPhoto([]byte("jpeg"), nil)
	data, err = s.CapturePhoto(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)
}
