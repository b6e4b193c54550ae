package conf

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreGetSet(t *testing.T) {
	t.Parallel()

	store := NewStore(Defaults(), "")

	store.SetSelectedModel("efficientnet_lite0")
	store.SetHighlightRules(map[string]float64{" Laptop ": 0.7})
	store.SetAssistedCapture(true)
	store.SetFaceBlur(true)
	store.SetBestShot(5*time.Second, "cat", 0.9)

	assert.Equal(t, "efficientnet_lite0", store.SelectedModel())
	assert.Equal(t, map[string]float64{"laptop": 0.7}, store.HighlightRules())
	assert.True(t, store.AssistedCapture())
	assert.True(t, store.FaceBlur())
	bs := store.BestShot()
	assert.Equal(t, 5*time.Second, bs.Duration)
	assert.Equal(t, "cat", bs.TargetLabel)
	assert.InDelta(t, 0.9, bs.Threshold, 1e-9)

	require.NoError(t, store.Save(), "saving without a path is a no-op")
}

func TestStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	store := NewStore(Defaults(), "")
	store.SetHighlightRules(map[string]float64{"cat": 0.5})

	rules := store.HighlightRules()
	rules["cat"] = 0.1
	snap := store.Snapshot()
	snap.Highlight.Rules["dog"] = 0.2

	assert.Equal(t, map[string]float64{"cat": 0.5}, store.HighlightRules())
}

func TestStoreSave(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	store := NewStore(Defaults(), path)
	store.SetSelectedModel("resnet50")
	require.NoError(t, store.Save())

	v := viper.New()
	require.NoError(t, initViper(v, path))
	loaded, err := unmarshalSettings(v)
	require.NoError(t, err)
	assert.Equal(t, "resnet50", loaded.Model.Type)
}
