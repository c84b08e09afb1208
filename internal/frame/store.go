package frame

import (
	"image"
	"sync"
	"time"
)

// Frame is one published capture. A Frame is immutable once it has been
// handed to Store.Publish; readers may hold it for as long as they like.
type Frame struct {
	Image      *image.RGBA
	Seq        uint64
	CapturedAt time.Time
}

// Width returns the frame width in pixels
func (f *Frame) Width() int {
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels
func (f *Frame) Height() int {
	return f.Image.Bounds().Dy()
}

// Stats is a point-in-time view of the store counters
type Stats struct {
	Published  uint64    `json:"published"`
	LastFrame  time.Time `json:"last_frame"`
	Capturing  bool      `json:"capturing"`
	HasFrame   bool      `json:"has_frame"`
	LastWidth  int       `json:"last_width"`
	LastHeight int       `json:"last_height"`
}

// Store holds the most recent frame and the capturing flag.
//
// It is a latest-value slot: Publish overwrites, nothing is queued, and
// readers may skip or repeat frames. The lock only guards pointer and flag
// assignments; no encoding or I/O happens while it is held. Any number of
// readers may call Latest concurrently with a single writer at a time.
type Store struct {
	mu        sync.Mutex
	latest    *Frame
	capturing bool
	seq       uint64
}

// NewStore creates a store in the capturing state with no frame
func NewStore() *Store {
	return &Store{capturing: true}
}

// Publish replaces the latest frame. The caller must not modify img afterwards.
func (s *Store) Publish(img *image.RGBA) {
	f := &Frame{Image: img, CapturedAt: time.Now()}

	s.mu.Lock()
	s.seq++
	f.Seq = s.seq
	s.latest = f
	s.mu.Unlock()
}

// Latest returns the most recently published frame, or false if none has
// been published yet
func (s *Store) Latest() (*Frame, bool) {
	s.mu.Lock()
	f := s.latest
	s.mu.Unlock()
	return f, f != nil
}

// Stop marks capturing as finished. Stopping is terminal and idempotent.
func (s *Store) Stop() {
	s.mu.Lock()
	s.capturing = false
	s.mu.Unlock()
}

// IsCapturing reports whether Stop has not yet been called
func (s *Store) IsCapturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturing
}

// Stats returns the store counters
func (s *Store) Stats() Stats {
	s.mu.Lock()
	f := s.latest
	st := Stats{Published: s.seq, Capturing: s.capturing}
	s.mu.Unlock()

	if f != nil {
		st.HasFrame = true
		st.LastFrame = f.CapturedAt
		st.LastWidth = f.Width()
		st.LastHeight = f.Height()
	}
	return st
}
