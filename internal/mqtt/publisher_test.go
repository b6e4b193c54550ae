package mqtt

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lensnet-go/internal/bestshot"
	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/events"
	"github.com/tphakala/lensnet-go/internal/highlight"
	"github.com/tphakala/lensnet-go/internal/location"
	"github.com/tphakala/lensnet-go/internal/testutil"
)

func testSettings(interval time.Duration) *conf.Settings {
	s := conf.Defaults()
	s.MQTT.Topic = "lensnet"
	s.MQTT.PublishInterval = interval
	return s
}

func liveUpdate(seq uint64, highlighted bool) events.LiveUpdate {
	r := detection.NewResult("n02123045 tabby, tabby cat", 0.9, testutil.Epoch)
	return events.LiveUpdate{
		Snapshot: &detection.LiveSnapshot{
			Seq:       seq,
			UpdatedAt: testutil.Epoch,
			Results:   []detection.LiveResult{{ClassificationResult: r, Display: r.DisplayLabel(), Opacity: 1}},
		},
		Highlight: highlight.Result{ShouldHighlight: highlighted, Label: r.DisplayLabel()},
	}
}

func TestPublisherStartAnnouncesOnline(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{}
	p := NewPublisher(fc, testSettings(time.Second), nil)

	require.NoError(t, p.Start(t.Context()))
	status := fc.published("lensnet/status")
	require.Len(t, status, 1)
	assert.Equal(t, StatusOnline, string(status[0].payload))
	assert.True(t, status[0].retain)

	p.Close()
	status = fc.published("lensnet/status")
	require.Len(t, status, 2)
	assert.Equal(t, StatusOffline, string(status[1].payload))
	assert.Equal(t, 1, fc.disconnect)
}

func TestPublisherStartConnectError(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{connectErr: fmt.Errorf("refused")}
	p := NewPublisher(fc, testSettings(time.Second), nil)
	require.Error(t, p.Start(t.Context()))
	assert.Equal(t, 0, fc.count())
}

func TestPublisherRateLimitsLiveUpdates(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{connected: true}
	p := NewPublisher(fc, testSettings(time.Hour), nil)

	for i := range 5 {
		require.NoError(t, p.Consume(liveUpdate(uint64(i), false)))
	}
	live := fc.published("lensnet/live")
	require.Len(t, live, 1, "burst of one within the interval")

	var dto LiveDTO
	require.NoError(t, json.Unmarshal(live[0].payload, &dto))
	assert.Equal(t, uint64(0), dto.Seq)
	assert.Equal(t, "Tabby", dto.Top)
	require.Len(t, dto.Results, 1)
	assert.Equal(t, "Tabby", dto.Results[0].Display)
}

func TestPublisherHighlightChangeBypassesLimit(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{connected: true}
	p := NewPublisher(fc, testSettings(time.Hour), nil)

	require.NoError(t, p.Consume(liveUpdate(1, false)))
	require.NoError(t, p.Consume(liveUpdate(2, true)))
	require.NoError(t, p.Consume(liveUpdate(3, true)))
	require.NoError(t, p.Consume(liveUpdate(4, false)))

	live := fc.published("lensnet/live")
	require.Len(t, live, 3)
	var dto LiveDTO
	require.NoError(t, json.Unmarshal(live[1].payload, &dto))
	assert.True(t, dto.Highlighted)
	assert.Equal(t, "Tabby", dto.Highlight)
}

func TestPublisherBestShot(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{connected: true}
	p := NewPublisher(fc, testSettings(time.Second), nil)

	cand := bestshot.Candidate{
		ID:               "c1",
		TriggeringResult: detection.NewResult("tabby, tabby cat", 0.97, testutil.Epoch),
		ImageData:        []byte{1, 2, 3},
		Light:            location.LightDay,
		Location:         &location.Coordinate{Latitude: 60.1, Longitude: 24.9},
		CapturedAt:       testutil.Epoch,
	}
	require.NoError(t, p.Consume(events.BestShotEnded{Completion: bestshot.Completion{
		SessionID:  "s1",
		Params:     bestshot.Params{Duration: 5 * time.Second, TargetLabel: "tabby cat", Threshold: 0.8},
		Outcome:    "completed",
		Candidates: []bestshot.Candidate{cand},
		Captured:   4,
		StartedAt:  testutil.Epoch,
		EndedAt:    testutil.Epoch.Add(5 * time.Second),
	}}))

	msgs := fc.published("lensnet/bestshot")
	require.Len(t, msgs, 1)
	assert.NotContains(t, string(msgs[0].payload), "imageData", "image bytes are not published")

	var dto BestShotDTO
	require.NoError(t, json.Unmarshal(msgs[0].payload, &dto))
	assert.Equal(t, "s1", dto.SessionID)
	assert.Equal(t, 4, dto.Captured)
	require.Len(t, dto.Candidates, 1)
	assert.Equal(t, "Tabby", dto.Candidates[0].Label)
	assert.Equal(t, "daylight", dto.Candidates[0].Light)
	require.NotNil(t, dto.Candidates[0].Latitude)
	assert.InDelta(t, 60.1, *dto.Candidates[0].Latitude, 1e-9)
}

func TestPublisherModelAndErrors(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{connected: true}
	p := NewPublisher(fc, testSettings(time.Second), nil)

	require.NoError(t, p.Consume(events.ModelChanged{Model: "resnet50", Previous: "mobilenet_v2", Err: fmt.Errorf("asset missing"), At: testutil.Epoch}))
	var model ModelDTO
	msgs := fc.published("lensnet/model")
	require.Len(t, msgs, 1)
	require.NoError(t, json.Unmarshal(msgs[0].payload, &model))
	assert.False(t, model.Success)
	assert.Equal(t, "asset missing", model.Error)

	ev := events.NewErrorEvent("capture", fmt.Errorf("stream failed at rtsp://user:pw@10.0.0.5/live"), testutil.Epoch)
	require.NoError(t, p.Consume(ev))
	msgs = fc.published("lensnet/error")
	require.Len(t, msgs, 1)
	assert.NotContains(t, string(msgs[0].payload), "user:pw")
}

func TestPublisherSkipsWhileDisconnected(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{}
	p := NewPublisher(fc, testSettings(0), nil)
	require.NoError(t, p.Consume(liveUpdate(1, false)))
	assert.Equal(t, 0, fc.count())
}
