package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DefaultTimestampLayout is the time layout drawn by NewTimestampWidget
const DefaultTimestampLayout = "2006-01-02 15:04:05.000"

// TimestampWidget stamps the capture time onto each frame
type TimestampWidget struct {
	*BaseWidget
	layout    string
	textColor color.RGBA
	bgColor   *color.RGBA // Optional background color
	padding   int
}

// NewTimestampWidget creates a white-on-black timestamp in the top-left corner
func NewTimestampWidget(layout string) *TimestampWidget {
	if layout == "" {
		layout = DefaultTimestampLayout
	}
	return &TimestampWidget{
		BaseWidget: NewBaseWidget("timestamp", 4, 4, 1.0),
		layout:     layout,
		textColor:  color.RGBA{255, 255, 255, 255},
		bgColor:    &color.RGBA{0, 0, 0, 160},
		padding:    3,
	}
}

// Render draws the formatted capture time
func (w *TimestampWidget) Render(img *image.RGBA, at time.Time) error {
	if img == nil {
		return fmt.Errorf("no image to render onto")
	}
	text := at.Format(w.layout)
	if text == "" {
		return nil
	}

	face := basicfont.Face7x13
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	lineHeight := metrics.Height.Ceil()

	textWidthPx := font.MeasureString(face, text).Ceil()
	boxWidth := textWidthPx + w.padding*2
	boxHeight := lineHeight + w.padding*2

	if w.bgColor != nil {
		bgImg := image.NewRGBA(image.Rect(0, 0, boxWidth, boxHeight))
		draw.Draw(bgImg, bgImg.Bounds(), &image.Uniform{*w.bgColor}, image.Point{}, draw.Src)
		BlendImage(img, bgImg, w.x, w.y, w.opacity)
	}

	textImg := image.NewRGBA(image.Rect(0, 0, textWidthPx, lineHeight))
	d := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(w.textColor),
		Face: face,
		Dot:  fixed.P(0, ascent),
	}
	d.DrawString(text)

	BlendImage(img, textImg, w.x+w.padding, w.y+w.padding, w.opacity)
	return nil
}

// SetColor sets the text color
func (w *TimestampWidget) SetColor(c color.RGBA) {
	w.textColor = c
}

// SetBackground sets the background color (nil for transparent)
func (w *TimestampWidget) SetBackground(c *color.RGBA) {
	w.bgColor = c
}

// Layout returns the time layout
func (w *TimestampWidget) Layout() string {
	return w.layout
}
