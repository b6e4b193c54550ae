package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoding
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"

	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/logger"
)

const (
	// previewMaxEdge bounds the longest edge of streamed preview frames.
	previewMaxEdge = 640
	photoQuality   = 92
)

// ReplayDriver serves still images from disk as a camera. Every
// subdirectory of the source is a device named <position>[-<lens>], for
// example "back-wide", "back-ultrawide" or "front". Images in a device
// directory are looped at the configured frame rate.
type ReplayDriver struct {
	root      string
	frameRate float64
	log       logger.Logger

	mu     sync.Mutex
	frames map[string]*replayFrames // device id -> decoded frames
}

type replayFrames struct {
	full    []image.Image
	preview []*detection.PixelBuffer
	current atomic.Int64 // index of the most recently delivered frame
}

// NewReplayDriver creates a replay driver over root.
func NewReplayDriver(root string, frameRate float64) *ReplayDriver {
	if frameRate <= 0 {
		frameRate = 30
	}
	return &ReplayDriver{
		root:      root,
		frameRate: frameRate,
		log:       GetLogger().Module("replay"),
		frames:    make(map[string]*replayFrames),
	}
}

// Devices implements Driver.
func (d *ReplayDriver) Devices(_ context.Context) ([]Device, error) {
	entries, err := os.ReadDir(d.root)
	switch {
	case err != nil && os.IsPermission(err):
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, d.root)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrNoCamera, err)
	}

	var devices []Device
	seenDefault := map[Position]bool{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pos, lens := parseDeviceName(e.Name())
		dev := Device{
			ID:       e.Name(),
			Name:     fmt.Sprintf("%s %s camera", strings.ToUpper(lens[:1])+lens[1:], pos),
			Position: pos,
			Lens:     lens,
		}
		if lens == "wide" && !seenDefault[pos] {
			dev.Default = true
			seenDefault[pos] = true
		}
		devices = append(devices, dev)
	}
	if len(devices) == 0 {
		return nil, ErrNoCamera
	}
	return devices, nil
}

// parseDeviceName splits "back-ultrawide" into its position and lens.
func parseDeviceName(name string) (Position, string) {
	head, lens, found := strings.Cut(strings.ToLower(name), "-")
	pos := PositionBack
	if head == string(PositionFront) {
		pos = PositionFront
	}
	if !found || lens == "" {
		lens = "wide"
	}
	return pos, lens
}

func (d *ReplayDriver) load(dev Device) (*replayFrames, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.frames[dev.ID]; ok {
		return f, nil
	}

	dir := filepath.Join(d.root, dev.ID)
	var paths []string
	err := filepath.WalkDir(dir, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jpg", ".jpeg", ".png":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s holds no images", ErrNoCamera, dir)
	}
	slices.Sort(paths)

	f := &replayFrames{}
	for _, p := range paths {
		img, err := decodeFile(p)
		if err != nil {
			d.log.Warn("skipping unreadable frame", logger.String("path", p), logger.Error(err))
			continue
		}
		f.full = append(f.full, img)
		f.preview = append(f.preview, detection.BufferFromImage(downscale(img, previewMaxEdge)))
	}
	if len(f.full) == 0 {
		return nil, fmt.Errorf("%w: no decodable images in %s", ErrNoCamera, dir)
	}
	d.frames[dev.ID] = f
	return f, nil
}

func decodeFile(path string) (image.Image, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	img, _, err := image.Decode(fh)
	return img, err
}

// downscale fits img inside a maxEdge square, keeping the aspect ratio.
func downscale(img image.Image, maxEdge int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxEdge && h <= maxEdge {
		return img
	}
	if w >= h {
		h = max(1, h*maxEdge/w)
		w = maxEdge
	} else {
		w = max(1, w*maxEdge/h)
		h = maxEdge
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Stream implements Driver.
func (d *ReplayDriver) Stream(ctx context.Context, dev Device, deliver DeliverFunc) error {
	frames, err := d.load(dev)
	if err != nil {
		return err
	}

	orientation := detection.OrientationUp
	if dev.Position == PositionFront {
		orientation = detection.OrientationUpMirrored
	}

	ticker := time.NewTicker(time.Duration(float64(time.Second) / d.frameRate))
	defer ticker.Stop()

	var i int64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			idx := i % int64(len(frames.preview))
			frames.current.Store(idx)
			deliver(frames.preview[idx], orientation)
			i++
		}
	}
}

// CapturePhoto implements Driver. It returns the full resolution source of
// the most recently streamed frame as JPEG.
func (d *ReplayDriver) CapturePhoto(ctx context.Context, dev Device) ([]byte, error) {
	frames, err := d.load(dev)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img := frames.full[frames.current.Load()]
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: photoQuality}); err != nil {
		return nil, fmt.Errorf("encode photo: %w", err)
	}
	return buf.Bytes(), nil
}
