package output

import (
	"context"
	"iter"
	"time"

	"github.com/mjpegsw/mjpegsw/internal/frame"
	"github.com/mjpegsw/mjpegsw/internal/logger"
)

// Boundary separates parts of the multipart stream
const Boundary = "frame"

// DefaultPollInterval is how often a viewer checks the store for a frame
const DefaultPollInterval = 100 * time.Millisecond

// Producer turns the frame store into per-viewer frame sequences
type Producer struct {
	store    *frame.Store
	encoder  *Encoder
	interval time.Duration
}

// NewProducer creates a producer polling store every interval
func NewProducer(store *frame.Store, encoder *Encoder, interval time.Duration) *Producer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Producer{
		store:    store,
		encoder:  encoder,
		interval: interval,
	}
}

// Frames yields the JPEG encoding of the latest frame once per poll interval.
// Nothing is yielded while the store is empty. Once capture has stopped the
// last frame is yielded at most one more time, after which the sequence stalls
// until ctx is done. Frames never ends on its own.
func (p *Producer) Frames(ctx context.Context) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		log := logger.WithComponent("stream")
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		flushedAfterStop := false
		for {
			capturing := p.store.IsCapturing()
			if capturing || !flushedAfterStop {
				if !capturing {
					flushedAfterStop = true
				}
				if f, ok := p.store.Latest(); ok {
					data, err := p.encoder.Encode(f)
					if err != nil {
						log.Warn().Err(err).Uint64("seq", f.Seq).Msg("Failed to encode frame")
					} else if !yield(data) {
						return
					}
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}

// Chunks is Frames wrapped in multipart parts ready to be written to the
// response body
func (p *Producer) Chunks(ctx context.Context) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for data := range p.Frames(ctx) {
			if !yield(Part(data)) {
				return
			}
		}
	}
}

// Part frames one JPEG as a multipart part
func Part(jpegData []byte) []byte {
	const header = "--" + Boundary + "\r\nContent-Type: image/jpeg\r\n\r\n"
	part := make([]byte, 0, len(header)+len(jpegData)+2)
	part = append(part, header...)
	part = append(part, jpegData...)
	part = append(part, "\r\n"...)
	return part
}
