package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/testutil"
)

type recorder struct {
	name string
	mu   sync.Mutex
	got  []Event
	gate chan struct{}
	err  error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Consume(e Event) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
	return r.err
}

func (r *recorder) events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.got...)
}

func live(seq uint64) LiveUpdate {
	return LiveUpdate{Snapshot: &detection.LiveSnapshot{Seq: seq, UpdatedAt: testutil.Epoch}}
}

func newBus(t *testing.T, cfg Config) *Bus {
	t.Helper()
	b := New(cfg)
	t.Cleanup(func() { _ = b.Close(testutil.ShortTestTimeout) })
	return b
}

func TestDeliversInOrder(t *testing.T) {
	t.Parallel()
	b := newBus(t, Config{})
	r := &recorder{name: "rec"}
	require.NoError(t, b.Subscribe(r))

	for i := range 50 {
		require.True(t, b.TryPublish(live(uint64(i))))
	}
	require.NoError(t, b.Close(testutil.ShortTestTimeout))

	got := r.events()
	require.Len(t, got, 50)
	for i, e := range got {
		assert.Equal(t, uint64(i), e.(LiveUpdate).Snapshot.Seq)
	}
	assert.Equal(t, uint64(50), b.Stats().Delivered)
}

func TestKindFilter(t *testing.T) {
	t.Parallel()
	b := newBus(t, Config{})
	models := &recorder{name: "models"}
	all := &recorder{name: "all"}
	require.NoError(t, b.Subscribe(models, KindModelChanged))
	require.NoError(t, b.Subscribe(all))

	b.TryPublish(live(1))
	b.TryPublish(ModelChanged{Model: "resnet50", At: testutil.Epoch})
	require.NoError(t, b.Close(testutil.ShortTestTimeout))

	require.Len(t, models.events(), 1)
	assert.Equal(t, KindModelChanged, models.events()[0].Kind())
	assert.Len(t, all.events(), 2)
}

func TestSlowConsumerDropsWithoutBlocking(t *testing.T) {
	t.Parallel()
	b := newBus(t, Config{BufferSize: 2})
	slow := &recorder{name: "slow", gate: make(chan struct{})}
	fast := &recorder{name: "fast"}
	require.NoError(t, b.Subscribe(slow))
	require.NoError(t, b.Subscribe(fast))

	for i := range 10 {
		b.TryPublish(live(uint64(i)))
		require.Eventually(t, func() bool { return len(fast.events()) == i+1 }, testutil.ShortTestTimeout, time.Millisecond)
	}

	close(slow.gate)
	require.NoError(t, b.Close(testutil.ShortTestTimeout))
	assert.Len(t, fast.events(), 10)
	assert.Less(t, len(slow.events()), 10)
	assert.Positive(t, b.Stats().Dropped)
}

func TestConsumerFailuresAreContained(t *testing.T) {
	t.Parallel()
	b := newBus(t, Config{})
	require.NoError(t, b.Subscribe(ConsumerFunc{ID: "panics", Fn: func(Event) error { panic("boom") }}))
	require.NoError(t, b.Subscribe(&recorder{name: "fails", err: errors.NewStd("broker down")}))
	ok := &recorder{name: "ok"}
	require.NoError(t, b.Subscribe(ok))

	b.TryPublish(live(1))
	require.NoError(t, b.Close(testutil.ShortTestTimeout))

	assert.Len(t, ok.events(), 1)
	assert.Equal(t, uint64(2), b.Stats().Errors)
}

func TestSubscribeRules(t *testing.T) {
	t.Parallel()
	b := newBus(t, Config{})
	require.NoError(t, b.Subscribe(&recorder{name: "a"}))
	require.Error(t, b.Subscribe(&recorder{name: "a"}))

	require.NoError(t, b.Close(testutil.ShortTestTimeout))
	require.Error(t, b.Subscribe(&recorder{name: "b"}))
	assert.False(t, b.TryPublish(live(1)))

	var nilBus *Bus
	assert.False(t, nilBus.TryPublish(live(1)))
}

func TestErrorEventsAreDeduplicated(t *testing.T) {
	t.Parallel()
	b := newBus(t, Config{DedupTTL: time.Minute})
	r := &recorder{name: "errors"}
	require.NoError(t, b.Subscribe(r, KindError))

	loadErr := errors.New(errors.NewStd("model file missing")).
		Component("inference").
		Category(errors.CategoryModelLoad).
		Build()
	assert.True(t, b.TryPublish(NewErrorEvent("inference", loadErr, testutil.Epoch)))
	assert.False(t, b.TryPublish(NewErrorEvent("inference", loadErr, testutil.Epoch)))
	assert.True(t, b.TryPublish(NewErrorEvent("capture", errors.NewStd("no camera"), testutil.Epoch)))

	require.NoError(t, b.Close(testutil.ShortTestTimeout))
	assert.Len(t, r.events(), 2)
	assert.Equal(t, uint64(1), b.Stats().Suppressed)
}

func TestDeduplicatorExpiry(t *testing.T) {
	t.Parallel()
	d := NewDeduplicator(20 * time.Millisecond)
	e := NewErrorEvent("capture", errors.NewStd("permission denied"), testutil.Epoch)

	assert.True(t, d.Allow(e))
	assert.False(t, d.Allow(e))
	assert.Eventually(t, func() bool { return d.Allow(e) }, testutil.ShortTestTimeout, 5*time.Millisecond)

	var disabled *Deduplicator
	assert.True(t, disabled.Allow(e))
}
