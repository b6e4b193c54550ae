package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lensnet-go/internal/detection"
)

func writePNG(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func TestParseDeviceName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		pos  Position
		lens string
	}{
		{"back-wide", PositionBack, "wide"},
		{"back-ultrawide", PositionBack, "ultrawide"},
		{"front", PositionFront, "wide"},
		{"Front-Tele", PositionFront, "tele"},
		{"usb0", PositionBack, "wide"},
	}
	for _, tt := range tests {
		pos, lens := parseDeviceName(tt.name)
		assert.Equal(t, tt.pos, pos, tt.name)
		assert.Equal(t, tt.lens, lens, tt.name)
	}
}

func TestReplayDriverDevices(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "back-wide", "0001.png"), 4, 4, color.RGBA{R: 255, A: 255})
	writePNG(t, filepath.Join(root, "front", "0001.png"), 4, 4, color.RGBA{G: 255, A: 255})

	d := NewReplayDriver(root, 100)
	devices, err := d.Devices(t.Context())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.True(t, devices[0].Default)

	_, err = NewReplayDriver(filepath.Join(root, "missing"), 30).Devices(t.Context())
	require.ErrorIs(t, err, ErrNoCamera)
}

func TestReplayDriverStreamAndPhoto(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "back-wide", "0001.png"), 1280, 960, color.RGBA{R: 200, G: 10, B: 10, A: 255})
	d := NewReplayDriver(root, 200)
	dev := Device{ID: "back-wide", Position: PositionBack, Lens: "wide"}

	ctx, cancel := context.WithCancel(t.Context())
	got := make(chan *detection.PixelBuffer, 1)
	done := make(chan error, 1)
	go func() {
		done <- d.Stream(ctx, dev, func(buf *detection.PixelBuffer, o detection.Orientation) {
			assert.Equal(t, detection.OrientationUp, o)
			select {
			case got <- buf:
			default:
			}
		})
	}()

	var buf *detection.PixelBuffer
	select {
	case buf = <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("no frame streamed")
	}
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, previewMaxEdge, buf.Width)
	assert.Equal(t, 480, buf.Height)

	photo, err := d.CapturePhoto(t.Context(), dev)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(photo))
	require.NoError(t, err)
	assert.Equal(t, 1280, img.Bounds().Dx())
}
