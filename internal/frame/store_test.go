package frame

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
)

func newImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestNewStoreIsCapturingWithoutFrame(t *testing.T) {
	s := NewStore()
	if !s.IsCapturing() {
		t.Error("new store should be capturing")
	}
	if f, ok := s.Latest(); ok || f != nil {
		t.Errorf("Latest() = %v, %v; want nil, false", f, ok)
	}
}

func TestPublishReplacesLatest(t *testing.T) {
	s := NewStore()
	a := newImage(4, 4, color.RGBA{R: 255, A: 255})
	b := newImage(8, 2, color.RGBA{G: 255, A: 255})

	s.Publish(a)
	s.Publish(b)

	f, ok := s.Latest()
	if !ok {
		t.Fatal("expected a frame")
	}
	if f.Image != b {
		t.Error("Latest() should return the last published image")
	}
	if f.Seq != 2 {
		t.Errorf("Seq = %d, want 2", f.Seq)
	}
	if f.Width() != 8 || f.Height() != 2 {
		t.Errorf("dimensions = %dx%d, want 8x2", f.Width(), f.Height())
	}
}

func TestStopIsIdempotentAndTerminal(t *testing.T) {
	s := NewStore()
	s.Stop()
	s.Stop()
	if s.IsCapturing() {
		t.Fatal("IsCapturing() should be false after Stop")
	}

	// Publishing after stop does not revive capturing
	s.Publish(newImage(1, 1, color.RGBA{A: 255}))
	if s.IsCapturing() {
		t.Error("IsCapturing() became true again")
	}
}

// Readers only ever observe nothing or an image that was actually published.
func TestConcurrentPublishAndLatest(t *testing.T) {
	const (
		frames  = 500
		readers = 8
	)

	s := NewStore()
	published := make([]*image.RGBA, frames)
	for i := range published {
		published[i] = newImage(2, 2, color.RGBA{R: uint8(i), G: uint8(i >> 8), A: 255})
	}
	known := make(map[*image.RGBA]uint64, frames)
	for i, img := range published {
		known[img] = uint64(i + 1)
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	errs := make(chan string, readers)

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var lastSeq uint64
			for {
				select {
				case <-done:
					return
				default:
				}
				f, ok := s.Latest()
				if !ok {
					continue
				}
				seq, exists := known[f.Image]
				if !exists {
					errs <- "reader observed an image that was never published"
					return
				}
				if seq != f.Seq {
					errs <- "frame sequence does not match its image"
					return
				}
				if f.Seq < lastSeq {
					errs <- "reader observed sequence going backwards"
					return
				}
				lastSeq = f.Seq
			}
		}()
	}

	for _, img := range published {
		s.Publish(img)
	}
	close(done)
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
}

func TestStats(t *testing.T) {
	s := NewStore()
	if st := s.Stats(); st.HasFrame || st.Published != 0 || !st.Capturing {
		t.Errorf("initial stats = %+v", st)
	}

	s.Publish(newImage(3, 5, color.RGBA{A: 255}))
	s.Stop()

	st := s.Stats()
	if !st.HasFrame || st.Published != 1 || st.Capturing {
		t.Errorf("stats = %+v", st)
	}
	if st.LastWidth != 3 || st.LastHeight != 5 {
		t.Errorf("last size = %dx%d, want 3x5", st.LastWidth, st.LastHeight)
	}
}

func TestRotate180MovesTopLeftToBottomRight(t *testing.T) {
	marker := color.RGBA{R: 255, A: 255}
	img := newImage(5, 3, color.RGBA{A: 255})
	img.SetRGBA(0, 0, marker)

	rotated := Rotate180(img)

	if got := rotated.RGBAAt(4, 2); got != marker {
		t.Errorf("bottom-right = %v, want marker %v", got, marker)
	}
	if got := rotated.RGBAAt(0, 0); got == marker {
		t.Error("marker still at top-left after rotation")
	}
	if img.RGBAAt(0, 0) != marker {
		t.Error("Rotate180 modified its source")
	}
}

func TestToRGBA(t *testing.T) {
	rgba := newImage(2, 2, color.RGBA{B: 255, A: 255})
	if ToRGBA(rgba) != rgba {
		t.Error("RGBA at origin should be returned as is")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, newImage(16, 8, color.RGBA{R: 200, G: 100, B: 50, A: 255}), nil); err != nil {
		t.Fatal(err)
	}
	decoded, err := jpeg.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	out := ToRGBA(decoded)
	if out.Bounds() != image.Rect(0, 0, 16, 8) {
		t.Errorf("bounds = %v", out.Bounds())
	}

	sub := newImage(10, 10, color.RGBA{A: 255}).SubImage(image.Rect(2, 3, 6, 9))
	if got := ToRGBA(sub).Bounds(); got != image.Rect(0, 0, 4, 6) {
		t.Errorf("sub-image bounds = %v, want origin-based 4x6", got)
	}
}
