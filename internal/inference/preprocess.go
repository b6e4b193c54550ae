package inference

import (
	"image"

	"golang.org/x/image/draw"
)

// resizeRGBA scales img to w x h.
func resizeRGBA(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// fillUint8 writes packed RGB bytes into a quantized input tensor.
func fillUint8(dst []uint8, img *image.RGBA) {
	i := 0
	for p := 0; p+3 < len(img.Pix) && i+2 < len(dst); p += 4 {
		dst[i], dst[i+1], dst[i+2] = img.Pix[p], img.Pix[p+1], img.Pix[p+2]
		i += 3
	}
}

// fillFloat32 writes normalized RGB values (v - mean) / std into a float input tensor.
func fillFloat32(dst []float32, img *image.RGBA, mean, std float32) {
	if std == 0 {
		std = 1
	}
	i := 0
	for p := 0; p+3 < len(img.Pix) && i+2 < len(dst); p += 4 {
		dst[i] = (float32(img.Pix[p]) - mean) / std
		dst[i+1] = (float32(img.Pix[p+1]) - mean) / std
		dst[i+2] = (float32(img.Pix[p+2]) - mean) / std
		i += 3
	}
}
