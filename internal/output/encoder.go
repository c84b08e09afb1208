package output

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"sync"
	"sync/atomic"

	"github.com/mjpegsw/mjpegsw/internal/frame"
)

// DefaultQuality is the JPEG quality used when none is configured
const DefaultQuality = 90

// ErrNoFrame is returned when there is nothing to encode
var ErrNoFrame = errors.New("no frame available")

// Encoder turns published frames into JPEG bytes. The last encoding is cached
// by frame sequence so every viewer of the same frame shares one encode.
type Encoder struct {
	quality int

	mu       sync.Mutex
	lastSeq  uint64
	lastJPEG []byte

	encodes atomic.Uint64
}

// NewEncoder creates an encoder; quality outside 1..100 falls back to DefaultQuality
func NewEncoder(quality int) *Encoder {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &Encoder{quality: quality}
}

// Encode returns the JPEG encoding of f. The returned slice is shared and
// must not be modified.
func (e *Encoder) Encode(f *frame.Frame) ([]byte, error) {
	if f == nil || f.Image == nil {
		return nil, ErrNoFrame
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastJPEG != nil && e.lastSeq == f.Seq {
		return e.lastJPEG, nil
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, f.Image, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	e.encodes.Add(1)

	e.lastSeq = f.Seq
	e.lastJPEG = buf.Bytes()
	return e.lastJPEG, nil
}

// Quality returns the configured JPEG quality
func (e *Encoder) Quality() int {
	return e.quality
}

// Encodes returns how many frames were actually encoded
func (e *Encoder) Encodes() uint64 {
	return e.encodes.Load()
}
