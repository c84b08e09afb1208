// Package output serves frames from the store to HTTP viewers: the multipart
// MJPEG stream, single snapshots and a WebSocket push.
package output

import (
	"sync/atomic"
	"time"

	"github.com/mjpegsw/mjpegsw/internal/frame"
)

// Config holds settings shared by all outputs
type Config struct {
	PollInterval time.Duration
	JPEGQuality  int
}

// Outputs bundles the handlers serving one frame store. They share a single
// encoder and viewer counter.
type Outputs struct {
	Encoder   *Encoder
	Producer  *Producer
	Stream    *StreamHandler
	Snapshot  *SnapshotHandler
	WebSocket *WebSocketHandler

	viewers atomic.Int64
}

// New wires the outputs for store
func New(store *frame.Store, cfg Config) *Outputs {
	o := &Outputs{}
	o.Encoder = NewEncoder(cfg.JPEGQuality)
	o.Producer = NewProducer(store, o.Encoder, cfg.PollInterval)
	o.Stream = NewStreamHandler(o.Producer, &o.viewers)
	o.Snapshot = NewSnapshotHandler(store, o.Encoder)
	o.WebSocket = NewWebSocketHandler(o.Producer, &o.viewers)
	return o
}

// Viewers returns the number of connected stream and WebSocket viewers
func (o *Outputs) Viewers() int64 {
	return o.viewers.Load()
}
