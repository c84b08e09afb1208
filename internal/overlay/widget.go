package overlay

import (
	"image"
	"image/color"
	"time"
)

// Widget draws onto a captured frame before it is published
type Widget interface {
	// Name identifies the widget in logs
	Name() string

	// Render draws the widget onto img. at is the capture time of the frame.
	Render(img *image.RGBA, at time.Time) error
}

// BaseWidget holds the placement shared by all widgets
type BaseWidget struct {
	name    string
	x       int
	y       int
	opacity float64 // 0.0 to 1.0
}

// NewBaseWidget creates a new base widget
func NewBaseWidget(name string, x, y int, opacity float64) *BaseWidget {
	w := &BaseWidget{name: name, x: x, y: y}
	w.SetOpacity(opacity)
	return w
}

// Name returns the widget's name
func (w *BaseWidget) Name() string {
	return w.name
}

// Position returns the widget's top-left corner
func (w *BaseWidget) Position() (int, int) {
	return w.x, w.y
}

// SetPosition sets the widget's top-left corner
func (w *BaseWidget) SetPosition(x, y int) {
	w.x = x
	w.y = y
}

// Opacity returns the widget's opacity
func (w *BaseWidget) Opacity() float64 {
	return w.opacity
}

// SetOpacity sets the widget's opacity, clamped to 0.0..1.0
func (w *BaseWidget) SetOpacity(opacity float64) {
	if opacity < 0.0 {
		opacity = 0.0
	}
	if opacity > 1.0 {
		opacity = 1.0
	}
	w.opacity = opacity
}

// BlendImage blends src onto dst with its top-left corner at (x, y),
// clipping to dst and scaling source alpha by opacity
func BlendImage(dst *image.RGBA, src image.Image, x, y int, opacity float64) {
	srcBounds := src.Bounds()
	dstBounds := dst.Bounds()

	for sy := srcBounds.Min.Y; sy < srcBounds.Max.Y; sy++ {
		dy := y + (sy - srcBounds.Min.Y)
		if dy < dstBounds.Min.Y || dy >= dstBounds.Max.Y {
			continue
		}

		for sx := srcBounds.Min.X; sx < srcBounds.Max.X; sx++ {
			dx := x + (sx - srcBounds.Min.X)
			if dx < dstBounds.Min.X || dx >= dstBounds.Max.X {
				continue
			}

			sr, sg, sb, sa := src.At(sx, sy).RGBA()
			alpha := float64(sa) * opacity / 65535.0
			if alpha <= 0 {
				continue
			}

			d := dst.RGBAAt(dx, dy)
			da := float64(d.A) / 255.0
			outAlpha := alpha + da*(1-alpha)
			if outAlpha <= 0 {
				continue
			}

			// src channels are alpha-premultiplied 16-bit values
			blend := func(s uint32, dc uint8) uint8 {
				v := (float64(s)/65535.0*opacity + float64(dc)/255.0*da*(1-alpha)) / outAlpha
				if v > 1 {
					v = 1
				}
				return uint8(v * 255)
			}

			dst.SetRGBA(dx, dy, color.RGBA{
				R: blend(sr, d.R),
				G: blend(sg, d.G),
				B: blend(sb, d.B),
				A: uint8(outAlpha * 255),
			})
		}
	}
}
