package detection

import (
	"fmt"
	"image"
	"image/color"
	"time"
)

// PixelFormat describes the byte layout of a PixelBuffer.
type PixelFormat int

const (
	PixelFormatRGBA PixelFormat = iota
	PixelFormatBGRA
)

// Orientation is the EXIF style orientation of a frame relative to the sensor.
type Orientation int

const (
	OrientationUp Orientation = iota + 1
	OrientationUpMirrored
	OrientationDown
	OrientationDownMirrored
	OrientationLeftMirrored
	OrientationRight
	OrientationRightMirrored
	OrientationLeft
)

func (o Orientation) String() string {
	switch o {
	case OrientationUp:
		return "up"
	case OrientationUpMirrored:
		return "up-mirrored"
	case OrientationDown:
		return "down"
	case OrientationDownMirrored:
		return "down-mirrored"
	case OrientationLeftMirrored:
		return "left-mirrored"
	case OrientationRight:
		return "right"
	case OrientationRightMirrored:
		return "right-mirrored"
	case OrientationLeft:
		return "left"
	default:
		return fmt.Sprintf("orientation(%d)", int(o))
	}
}

// swapsAxes reports whether the oriented image is transposed.
func (o Orientation) swapsAxes() bool {
	return o >= OrientationLeftMirrored && o <= OrientationLeft
}

// PixelBuffer is a raw 8-bit four channel frame.
type PixelBuffer struct {
	Width  int
	Height int
	Stride int // bytes per row
	Format PixelFormat
	Pix    []byte
}

// Validate checks the buffer dimensions against its backing slice.
func (b *PixelBuffer) Validate() error {
	if b == nil {
		return fmt.Errorf("nil pixel buffer")
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("invalid pixel buffer size %dx%d", b.Width, b.Height)
	}
	if b.Stride < b.Width*4 {
		return fmt.Errorf("stride %d too small for width %d", b.Stride, b.Width)
	}
	if need := b.Stride*(b.Height-1) + b.Width*4; len(b.Pix) < need {
		return fmt.Errorf("pixel buffer holds %d bytes, need %d", len(b.Pix), need)
	}
	return nil
}

// At returns the color at sensor coordinates x, y.
func (b *PixelBuffer) At(x, y int) color.RGBA {
	i := y*b.Stride + x*4
	p := b.Pix[i : i+4 : i+4]
	if b.Format == PixelFormatBGRA {
		return color.RGBA{R: p[2], G: p[1], B: p[0], A: p[3]}
	}
	return color.RGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
}

// Image returns an upright RGBA copy of the buffer.
func (b *PixelBuffer) Image(o Orientation) (*image.RGBA, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if o < OrientationUp || o > OrientationLeft {
		o = OrientationUp
	}

	w, h := b.Width, b.Height
	if o.swapsAxes() {
		w, h = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range b.Height {
		for x := range b.Width {
			dx, dy := orient(o, x, y, b.Width, b.Height)
			dst.SetRGBA(dx, dy, b.At(x, y))
		}
	}
	return dst, nil
}

// orient maps sensor coordinates to upright coordinates.
func orient(o Orientation, x, y, w, h int) (dx, dy int) {
	switch o {
	case OrientationUpMirrored:
		return w - 1 - x, y
	case OrientationDown:
		return w - 1 - x, h - 1 - y
	case OrientationDownMirrored:
		return x, h - 1 - y
	case OrientationLeftMirrored:
		return y, x
	case OrientationRight:
		return h - 1 - y, x
	case OrientationRightMirrored:
		return h - 1 - y, w - 1 - x
	case OrientationLeft:
		return y, w - 1 - x
	default:
		return x, y
	}
}

// BufferFromImage copies img into an RGBA PixelBuffer.
func BufferFromImage(img image.Image) *PixelBuffer {
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			rgba.Set(x-bounds.Min.X, y-bounds.Min.Y, img.At(x, y))
		}
	}
	return &PixelBuffer{
		Width:  rgba.Rect.Dx(),
		Height: rgba.Rect.Dy(),
		Stride: rgba.Stride,
		Format: PixelFormatRGBA,
		Pix:    rgba.Pix,
	}
}

// Frame is one delivery from the capture source.
type Frame struct {
	Seq         uint64
	DeviceID    string
	Generation  uint64 // capture configuration generation the frame belongs to
	Pixels      *PixelBuffer
	Orientation Orientation
	CapturedAt  time.Time
}
