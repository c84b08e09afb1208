package device

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"
)

var (
	// ErrDeviceClosed is returned by Read once the underlying handle is gone
	ErrDeviceClosed = errors.New("capture device closed")

	// ErrUnknownDriver is returned when no opener is registered for a driver name
	ErrUnknownDriver = errors.New("unknown camera driver")
)

// Settings describes the capture format of a device
type Settings struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
}

// Request is what the capture loop asks a driver to open
type Request struct {
	Index   int
	Backend Backend
	FourCC  string // pixel format to force, "MJPG" for MJPEG-capable mode
	Width   int    // 0 keeps the device default
	Height  int
	FPS     float64 // <= 0 keeps the device default
}

// Device is an opened camera. It is owned by a single goroutine; none of
// its methods need to be safe for concurrent use.
type Device interface {
	// Read blocks until the next frame is available. A nil image with a nil
	// error means no frame was ready this time; a non-nil error is fatal.
	Read(ctx context.Context) (*image.RGBA, error)

	// Negotiated returns the format the device actually accepted
	Negotiated() Settings

	// Close releases the device
	Close() error
}

// Opener opens a camera device
type Opener interface {
	Open(ctx context.Context, req Request) (Device, error)
}

// OpenerFunc adapts a function to the Opener interface
type OpenerFunc func(ctx context.Context, req Request) (Device, error)

// Open calls f(ctx, req)
func (f OpenerFunc) Open(ctx context.Context, req Request) (Device, error) {
	return f(ctx, req)
}

// Registry maps driver names to openers
type Registry struct {
	mu      sync.RWMutex
	openers map[string]Opener
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{openers: make(map[string]Opener)}
}

// Register adds or replaces the opener for a driver name
func (r *Registry) Register(name string, opener Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[name] = opener
}

// Opener returns the opener registered for name
func (r *Registry) Opener(name string) (Opener, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	opener, ok := r.openers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	return opener, nil
}

// Drivers returns the registered driver names in sorted order
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.openers))
	for name := range r.openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
