package frame

import (
	"image"

	"golang.org/x/image/draw"
)

// ToRGBA returns img as an *image.RGBA with its origin at (0,0). Images that
// already are RGBA at the origin are returned as is; everything else is copied.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Rotate180 returns a new image rotated by 180 degrees
func Rotate180(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		srcRow := src.Pix[y*src.Stride : y*src.Stride+w*4]
		dstRow := dst.Pix[(h-1-y)*dst.Stride : (h-1-y)*dst.Stride+w*4]
		for x := 0; x < w; x++ {
			copy(dstRow[(w-1-x)*4:(w-1-x)*4+4], srcRow[x*4:x*4+4])
		}
	}
	return dst
}
