package datastore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lensnet-go/internal/bestshot"
	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/events"
	"github.com/tphakala/lensnet-go/internal/location"
	"github.com/tphakala/lensnet-go/internal/observability/metrics"
	"github.com/tphakala/lensnet-go/internal/testutil"
)

func openTestStore(t *testing.T) (*DataStore, string) {
	t.Helper()
	dir := t.TempDir()
	m, err := metrics.NewDatastoreMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	ds := NewSQLite(filepath.Join(dir, "lensnet.db"), filepath.Join(dir, "captures"), m)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })
	return ds, filepath.Join(dir, "captures")
}

func completion(id string, confs ...float32) bestshot.Completion {
	c := bestshot.Completion{
		SessionID: id,
		Params:    bestshot.Params{Duration: 5 * time.Second, TargetLabel: "tabby cat", Threshold: 0.8},
		Outcome:   metrics.OutcomeCompleted,
		Captured:  len(confs),
		StartedAt: testutil.Epoch,
		EndedAt:   testutil.Epoch.Add(5 * time.Second),
	}
	for i, conf := range confs {
		c.Candidates = append(c.Candidates, bestshot.Candidate{
			ID:               fmt.Sprintf("%s-c%d", id, i),
			SessionID:        id,
			ImageData:        []byte{0xFF, 0xD8, byte(i)},
			Thumbnail:        []byte{0xFF, 0xD8},
			TriggeringResult: detection.NewResult("tabby, tabby cat", conf, testutil.Epoch),
			Light:            location.LightGolden,
			Location:         &location.Coordinate{Latitude: 60.1699, Longitude: 24.9384},
			CapturedAt:       testutil.Epoch.Add(time.Duration(i) * time.Second),
		})
	}
	return c
}

func TestSaveSessionStoresRankedCaptures(t *testing.T) {
	t.Parallel()
	ds, root := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, ds.SaveSession(ctx, completion("s1", 0.97, 0.91, 0.85)))

	sess, err := ds.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "tabby cat", sess.TargetLabel)
	assert.Equal(t, int64(5000), sess.DurationMs)
	require.Len(t, sess.Captures, 3)
	for i, c := range sess.Captures {
		assert.Equal(t, i+1, c.Rank)
		assert.Equal(t, SourceBestShot, c.Source)
		assert.Equal(t, "Tabby", c.Display)
		assert.Equal(t, string(location.LightGolden), c.Light)
		require.NotNil(t, c.Latitude)
		assert.InDelta(t, 60.1699, *c.Latitude, 1e-9)
	}

	first := sess.Captures[0]
	assert.Equal(t, filepath.Join("2025", "06", "01", "s1-c0.jpg"), first.ImagePath)
	_, err = os.Stat(filepath.Join(root, first.ImagePath))
	require.NoError(t, err)

	img, err := ds.ReadImage(&first, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0}, img)
	thumb, err := ds.ReadImage(&first, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, thumb)

	n, err := ds.CountCaptures(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSaveSessionDuplicateRollsBackFiles(t *testing.T) {
	t.Parallel()
	ds, root := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, ds.SaveSession(ctx, completion("s1", 0.9)))
	dup := completion("s1", 0.95)
	dup.Candidates[0].ID = "other"
	require.Error(t, ds.SaveSession(ctx, dup))

	_, err := os.Stat(filepath.Join(root, "2025", "06", "01", "other.jpg"))
	assert.True(t, os.IsNotExist(err))
	n, err := ds.CountCaptures(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestListCapturesFilters(t *testing.T) {
	t.Parallel()
	ds, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, ds.SaveSession(ctx, completion("s1", 0.9, 0.85)))
	require.NoError(t, ds.SavePhoto(ctx, Photo{ID: "p1", Data: []byte{1}, CapturedAt: testutil.Epoch.Add(time.Hour)}))

	all, err := ds.ListCaptures(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "p1", all[0].PublicID, "newest first")

	manual, err := ds.ListCaptures(ctx, Filter{Source: SourceManual})
	require.NoError(t, err)
	require.Len(t, manual, 1)
	assert.Nil(t, manual[0].SessionID)

	byLabel, err := ds.ListCaptures(ctx, Filter{Label: "tabby"})
	require.NoError(t, err)
	assert.Len(t, byLabel, 2)

	paged, err := ds.ListCaptures(ctx, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "s1-c1", paged[0].PublicID)
}

func TestDeleteCaptureRemovesFiles(t *testing.T) {
	t.Parallel()
	ds, root := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, ds.SaveSession(ctx, completion("s1", 0.9)))
	c, err := ds.GetCapture(ctx, "s1-c0")
	require.NoError(t, err)

	require.NoError(t, ds.DeleteCapture(ctx, "s1-c0"))
	_, err = os.Stat(filepath.Join(root, c.ImagePath))
	assert.True(t, os.IsNotExist(err))

	_, err = ds.GetCapture(ctx, "s1-c0")
	require.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, ds.DeleteCapture(ctx, "s1-c0"), ErrNotFound)
}

func TestClosedStoreErrors(t *testing.T) {
	t.Parallel()
	ds := NewSQLite(filepath.Join(t.TempDir(), "x.db"), t.TempDir(), nil)
	_, err := ds.GetCapture(context.Background(), "x")
	require.ErrorIs(t, err, ErrNotOpen)
	require.ErrorIs(t, ds.Close(), ErrNotOpen)
}

func TestNewSelectsBackend(t *testing.T) {
	t.Parallel()
	s := conf.Defaults()
	s.Output.SQLite.Enabled = false
	s.Output.MySQL.Enabled = false
	_, err := New(s, nil)
	require.ErrorIs(t, err, ErrNoBackend)

	s.Output.MySQL.Enabled = true
	ds, err := New(s, nil)
	require.NoError(t, err)
	assert.Equal(t, "MySQL", ds.dbType)
}

func TestImageFilesRejectsEscapes(t *testing.T) {
	t.Parallel()
	f := imageFiles{root: t.TempDir()}
	for _, p := range []string{"../x.jpg", "/etc/passwd", "a/../../x"} {
		_, err := f.abs(p)
		assert.Error(t, err, p)
	}
	_, err := f.abs("2025/06/01/x.jpg")
	assert.NoError(t, err)
}

type recordingStore struct {
	Interface
	sessions []bestshot.Completion
	photos   []Photo
	err      error
}

func (r *recordingStore) SaveSession(_ context.Context, c bestshot.Completion) error {
	r.sessions = append(r.sessions, c)
	return r.err
}

func (r *recordingStore) SavePhoto(_ context.Context, p Photo) error {
	r.photos = append(r.photos, p)
	return r.err
}

func TestConsumer(t *testing.T) {
	t.Parallel()

	t.Run("saves sessions and photos", func(t *testing.T) {
		t.Parallel()
		rs := &recordingStore{}
		c := NewConsumer(rs, true, true)
		require.NoError(t, c.Consume(events.BestShotEnded{Completion: completion("s1", 0.9)}))
		require.NoError(t, c.Consume(events.PhotoCaptured{ID: "p1", Data: []byte{1}, At: testutil.Epoch}))
		require.NoError(t, c.Consume(events.CaptureChanged{}))
		assert.Len(t, rs.sessions, 1)
		require.Len(t, rs.photos, 1)
		assert.Equal(t, testutil.Epoch, rs.photos[0].CapturedAt)
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		rs := &recordingStore{}
		c := NewConsumer(rs, false, false)
		require.NoError(t, c.Consume(events.BestShotEnded{Completion: completion("s1", 0.9)}))
		require.NoError(t, c.Consume(events.PhotoCaptured{ID: "p1"}))
		assert.Empty(t, rs.sessions)
		assert.Empty(t, rs.photos)
	})

	t.Run("propagates errors", func(t *testing.T) {
		t.Parallel()
		boom := errors.NewStd("boom")
		c := NewConsumer(&recordingStore{err: boom}, true, true)
		assert.ErrorIs(t, c.Consume(events.BestShotEnded{Completion: completion("s1")}), boom)
	})
}
