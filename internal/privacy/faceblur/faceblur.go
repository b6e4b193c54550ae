// Package faceblur obscures faces in captured photos.
//
// Face detection itself is an external collaborator behind Detector; this
// package only turns detected regions into pixelated or blurred patches.
package faceblur

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoding

	"golang.org/x/image/draw"

	"github.com/tphakala/lensnet-go/internal/errors"
)

// ErrUnknownStyle is returned by ParseStyle.
var ErrUnknownStyle = errors.NewStd("unknown face blur style")

// Style selects how a face region is obscured.
type Style string

const (
	StylePixelate Style = "pixelate"
	StyleBlur     Style = "blur"
)

// ParseStyle maps a configuration value to a Style.
func ParseStyle(s string) (Style, error) {
	switch st := Style(s); st {
	case StylePixelate, StyleBlur:
		return st, nil
	case "":
		return StylePixelate, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownStyle, s)
}

// DefaultBlockSize is the pixelation block edge and blur radius in pixels.
const DefaultBlockSize = 16

// margin grows each detected region so hairlines and chins are covered.
const margin = 0.15

// Detector finds faces in an image and returns their bounds.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, img image.Image) ([]image.Rectangle, error)

func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	return f(ctx, img)
}

// Transform applies a style to every detected face.
type Transform struct {
	detector  Detector
	blockSize int
	quality   int
}

// New creates a transform. blockSize <= 0 uses DefaultBlockSize.
func New(detector Detector, blockSize int) *Transform {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Transform{detector: detector, blockSize: blockSize, quality: 92}
}

// Apply returns a copy of img with faces obscured and the number of faces.
// An image without faces is returned unchanged.
func (t *Transform) Apply(ctx context.Context, img image.Image, style Style) (image.Image, int, error) {
	if t.detector == nil {
		return img, 0, nil
	}
	faces, err := t.detector.Detect(ctx, img)
	if err != nil {
		return nil, 0, fmt.Errorf("face detection: %w", err)
	}
	if len(faces) == 0 {
		return img, 0, nil
	}

	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)

	n := 0
	for _, f := range faces {
		r := grow(f, margin).Intersect(b)
		if r.Empty() {
			continue
		}
		switch style {
		case StyleBlur:
			t.blur(out, r)
		default:
			t.pixelate(out, r)
		}
		n++
	}
	return out, n, nil
}

// ApplyJPEG decodes data, obscures faces and re-encodes as JPEG. Data
// without faces is returned as is.
func (t *Transform) ApplyJPEG(ctx context.Context, data []byte, style Style) ([]byte, int, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("decode photo: %w", err)
	}
	out, n, err := t.Apply(ctx, img, style)
	if err != nil || n == 0 {
		return data, n, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: t.quality}); err != nil {
		return nil, 0, fmt.Errorf("encode photo: %w", err)
	}
	return buf.Bytes(), n, nil
}

// pixelate shrinks the region to one pixel per block and scales it back up
// without interpolation.
func (t *Transform) pixelate(dst *image.RGBA, r image.Rectangle) {
	w := max(1, r.Dx()/t.blockSize)
	h := max(1, r.Dy()/t.blockSize)
	small := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(small, small.Bounds(), dst, r, draw.Src, nil)
	draw.NearestNeighbor.Scale(dst, r, small, small.Bounds(), draw.Src, nil)
}

// blur approximates a box blur by a bilinear round trip through a reduced
// image, done twice to soften block edges.
func (t *Transform) blur(dst *image.RGBA, r image.Rectangle) {
	w := max(1, r.Dx()*2/t.blockSize)
	h := max(1, r.Dy()*2/t.blockSize)
	small := image.NewRGBA(image.Rect(0, 0, w, h))
	for range 2 {
		draw.CatmullRom.Scale(small, small.Bounds(), dst, r, draw.Src, nil)
		draw.BiLinear.Scale(dst, r, small, small.Bounds(), draw.Src, nil)
	}
}

func grow(r image.Rectangle, frac float64) image.Rectangle {
	dx := int(float64(r.Dx()) * frac)
	dy := int(float64(r.Dy()) * frac)
	return image.Rect(r.Min.X-dx, r.Min.Y-dy, r.Max.X+dx, r.Max.Y+dy)
}

// Regions is a Detector returning fixed regions, useful for privacy masks
// that do not move, such as a neighbour's window.
type Regions []image.Rectangle

func (rs Regions) Detect(_ context.Context, img image.Image) ([]image.Rectangle, error) {
	b := img.Bounds()
	out := make([]image.Rectangle, 0, len(rs))
	for _, r := range rs {
		if r = r.Add(b.Min).Intersect(b); !r.Empty() {
			out = append(out, r)
		}
	}
	return out, nil
}
