// Package capture runs the single camera capture loop that feeds the frame store.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mjpegsw/mjpegsw/internal/device"
	"github.com/mjpegsw/mjpegsw/internal/frame"
	"github.com/mjpegsw/mjpegsw/internal/logger"
	"github.com/mjpegsw/mjpegsw/internal/overlay"
	"github.com/rs/zerolog"
)

// FourCCMJPG is the pixel format requested from every driver
const FourCCMJPG = "MJPG"

// missBackoff is the wait after an empty read when pacing is disabled
const missBackoff = 5 * time.Millisecond

var (
	// ErrAlreadyStarted is returned by Run on a loop that has already run
	ErrAlreadyStarted = errors.New("capture loop already started")

	// ErrTooManyMissedReads is returned when the device stops delivering frames
	ErrTooManyMissedReads = errors.New("too many consecutive missed reads")
)

// Config is the immutable capture configuration
type Config struct {
	Index          int
	Backend        string // capture API hint, e.g. "CAP_V4L2"
	Width          int    // 0 keeps the device default
	Height         int
	FPS            float64 // <= 0 disables pacing
	Rotate         bool    // rotate every frame by 180 degrees
	MaxMissedReads int     // consecutive empty reads before faulting, 0 disables
}

// Interval returns the pacing interval, 0 when pacing is disabled
func (c Config) Interval() time.Duration {
	if c.FPS <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.FPS)
}

// Stats is a point-in-time view of the loop for the status API
type Stats struct {
	State       string          `json:"state"`
	Backend     string          `json:"backend"`
	Requested   device.Settings `json:"requested"`
	Negotiated  device.Settings `json:"negotiated"`
	Captured    uint64          `json:"frames_captured"`
	MissedReads uint64          `json:"missed_reads"`
	StartedAt   time.Time       `json:"started_at"`
	Error       string          `json:"error,omitempty"`
}

// Option configures a Loop
type Option func(*Loop)

// WithOverlay draws the manager's widgets onto every frame before publishing
func WithOverlay(m *overlay.Manager) Option {
	return func(l *Loop) {
		l.overlay = m
	}
}

// WithLogger replaces the component logger
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loop) {
		l.log = log
	}
}

// Loop owns the camera device and publishes frames into a store
type Loop struct {
	cfg     Config
	opener  device.Opener
	store   *frame.Store
	overlay *overlay.Manager
	log     zerolog.Logger

	started atomic.Bool
	state   atomic.Int32

	captured atomic.Uint64
	missed   atomic.Uint64

	mu         sync.RWMutex
	backend    device.Backend
	negotiated device.Settings
	startedAt  time.Time
	err        error

	releaseOnce sync.Once
}

// New creates a capture loop. It does not touch the device until Run.
func New(cfg Config, opener device.Opener, store *frame.Store, opts ...Option) *Loop {
	l := &Loop{
		cfg:    cfg,
		opener: opener,
		store:  store,
		log:    *logger.WithComponent("capture"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run opens the device and captures until the store is stopped, ctx is
// cancelled or the device fails. It returns nil on a requested stop and the
// fault otherwise. Run may only be called once.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	l.setState(StateInitializing)

	backend, ok := device.ResolveBackend(l.cfg.Backend)
	if !ok {
		l.log.Warn().Str("hint", l.cfg.Backend).Msg("Unknown capture API, using default backend")
	}
	req := device.Request{
		Index:   l.cfg.Index,
		Backend: backend,
		FourCC:  FourCCMJPG,
		Width:   l.cfg.Width,
		Height:  l.cfg.Height,
		FPS:     l.cfg.FPS,
	}

	l.mu.Lock()
	l.backend = backend
	l.startedAt = time.Now()
	l.mu.Unlock()

	dev, err := l.opener.Open(ctx, req)
	if err != nil {
		err = fmt.Errorf("failed to open camera %d: %w", l.cfg.Index, err)
		l.fault(err)
		l.setState(StateReleased)
		return err
	}
	defer l.release(dev)

	l.checkNegotiated(req, dev.Negotiated())
	l.setState(StateRunning)

	return l.capture(ctx, dev)
}

func (l *Loop) capture(ctx context.Context, dev device.Device) error {
	var tick <-chan time.Time
	if interval := l.cfg.Interval(); interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	missed := 0
	for {
		if !l.store.IsCapturing() {
			l.setState(StateStopping)
			l.log.Info().Msg("Capture stopped")
			return nil
		}
		if ctx.Err() != nil {
			l.stopping()
			return nil
		}

		img, err := dev.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.stopping()
				return nil
			}
			err = fmt.Errorf("failed to read frame: %w", err)
			l.fault(err)
			return err
		}

		if img == nil {
			missed++
			l.missed.Add(1)
			if l.cfg.MaxMissedReads > 0 && missed >= l.cfg.MaxMissedReads {
				err := fmt.Errorf("%w: %d", ErrTooManyMissedReads, missed)
				l.fault(err)
				return err
			}
		} else {
			missed = 0
			if l.cfg.Rotate {
				img = frame.Rotate180(img)
			}
			if l.overlay != nil {
				l.overlay.Render(img, time.Now())
			}
			l.store.Publish(img)
			l.captured.Add(1)
		}

		if tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
			}
		} else if img == nil {
			select {
			case <-time.After(missBackoff):
			case <-ctx.Done():
			}
		}
	}
}

func (l *Loop) checkNegotiated(req device.Request, got device.Settings) {
	l.mu.Lock()
	l.negotiated = got
	l.mu.Unlock()

	if (req.Width > 0 && got.Width != req.Width) || (req.Height > 0 && got.Height != req.Height) {
		l.log.Warn().
			Int("requested_width", req.Width).
			Int("requested_height", req.Height).
			Int("width", got.Width).
			Int("height", got.Height).
			Msg("Unable to set requested resolution, using device resolution")
	} else {
		l.log.Info().Int("width", got.Width).Int("height", got.Height).Msg("Resolution set")
	}
	if req.FPS > 0 && got.FPS > 0 && got.FPS != req.FPS {
		l.log.Warn().
			Float64("requested_fps", req.FPS).
			Float64("fps", got.FPS).
			Msg("Unable to set requested frame rate, using device frame rate")
	}
	l.log.Info().Float64("fps", got.FPS).Str("backend", l.backend.String()).Msg("Camera opened")
}

func (l *Loop) stopping() {
	l.setState(StateStopping)
	l.store.Stop()
	l.log.Info().Msg("Capture cancelled")
}

func (l *Loop) fault(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()

	l.setState(StateFaulted)
	l.store.Stop()
	l.log.Error().Err(err).Msg("Capture failed")
}

func (l *Loop) release(dev device.Device) {
	l.releaseOnce.Do(func() {
		if err := dev.Close(); err != nil {
			l.log.Warn().Err(err).Msg("Failed to release camera")
		} else {
			l.log.Info().Msg("Camera released")
		}
		l.setState(StateReleased)
	})
}

// Stop asks the loop to finish its current iteration and release the device
func (l *Loop) Stop() {
	l.store.Stop()
}

// State returns the current state
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Err returns the fault that ended the loop, nil if none
func (l *Loop) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Stats returns counters and the negotiated format
func (l *Loop) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Stats{
		State:   l.State().String(),
		Backend: l.backend.String(),
		Requested: device.Settings{
			Width:  l.cfg.Width,
			Height: l.cfg.Height,
			FPS:    l.cfg.FPS,
		},
		Negotiated:  l.negotiated,
		Captured:    l.captured.Load(),
		MissedReads: l.missed.Load(),
		StartedAt:   l.startedAt,
	}
	if l.err != nil {
		s.Error = l.err.Error()
	}
	return s
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}
