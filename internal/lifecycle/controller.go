// Package lifecycle ties the capture loop and the HTTP server together and
// decides how the process ends.
//
// Exit policy: an interrupt stops capture, waits briefly for the device to be
// released, shuts the server down and returns 0. If capture ends on its own
// the process exits immediately, 1 after a fault and 0 after a clean stop, so
// a supervisor can restart it with a fresh device handle. A capture goroutine
// that cannot be joined also forces exit 1.
package lifecycle

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/mjpegsw/mjpegsw/internal/logger"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// Capture is the capture loop as seen by the controller
type Capture interface {
	Run(ctx context.Context) error
	Stop()
}

// Server is the HTTP server as seen by the controller
type Server interface {
	Listen() (net.Listener, error)
	Serve(ln net.Listener) error
	Shutdown(ctx context.Context) error
}

// Config holds the shutdown timings
type Config struct {
	// Grace is how long to wait for capture to release the device after an interrupt
	Grace time.Duration

	// JoinTimeout bounds the final wait for the capture goroutine
	JoinTimeout time.Duration

	// ShutdownTimeout bounds the HTTP server shutdown
	ShutdownTimeout time.Duration
}

// Option configures a Controller
type Option func(*Controller)

// WithExit replaces os.Exit
func WithExit(exit func(code int)) Option {
	return func(c *Controller) {
		c.exit = exit
	}
}

// Controller runs capture and serving until one of them ends or ctx is cancelled
type Controller struct {
	cfg     Config
	capture Capture
	server  Server
	exit    func(code int)
	log     *zerolog.Logger
}

// New creates a controller
func New(cfg Config, capture Capture, server Server, opts ...Option) *Controller {
	c := &Controller{
		cfg:     cfg,
		capture: capture,
		server:  server,
		exit:    os.Exit,
		log:     logger.WithComponent("lifecycle"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run binds the server, starts capture and serves until ctx is cancelled,
// capture ends or the server fails. It returns the process exit code; on the
// paths that require a hard exit the exit function is called first.
func (c *Controller) Run(ctx context.Context) int {
	ln, err := c.server.Listen()
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to start server")
		return 1
	}

	// Capture is not tied to ctx: an interrupt stops it through Stop so the
	// device can be released before reads are cancelled.
	captureCtx, cancelCapture := context.WithCancel(context.Background())
	defer cancelCapture()

	var wg conc.WaitGroup
	var captureErr error
	captureExited := make(chan struct{})
	wg.Go(func() {
		defer close(captureExited)
		captureErr = c.capture.Run(captureCtx)
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- c.server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		c.log.Info().Msg("Stopping camera")
		c.capture.Stop()

		select {
		case <-captureExited:
		case <-time.After(c.cfg.Grace):
			c.log.Warn().Dur("grace", c.cfg.Grace).Msg("Camera still busy after grace period")
		}

		c.shutdownServer()
		cancelCapture()

		if err := c.join(&wg); err != nil {
			c.log.Error().Err(err).Msg("Capture did not exit cleanly")
			return c.hardExit(1)
		}
		c.log.Info().Msg("Stopped")
		return 0

	case <-captureExited:
		c.shutdownServer()
		code := 0
		if err := c.join(&wg); err != nil {
			c.log.Error().Err(err).Msg("Capture did not exit cleanly")
			code = 1
		}
		if captureErr != nil {
			c.log.Error().Err(captureErr).Msg("Capture faulted, exiting")
			code = 1
		} else if code == 0 {
			c.log.Info().Msg("Capture stopped, exiting")
		}
		return c.hardExit(code)

	case err := <-serveErr:
		c.log.Error().Err(err).Msg("Server stopped unexpectedly")
		c.capture.Stop()
		cancelCapture()
		if err := c.join(&wg); err != nil {
			c.log.Error().Err(err).Msg("Capture did not exit cleanly")
			return c.hardExit(1)
		}
		return 1
	}
}

func (c *Controller) shutdownServer() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
	defer cancel()
	if err := c.server.Shutdown(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Server shutdown failed")
	}
}

// join waits up to JoinTimeout for the capture goroutine. A panic inside
// capture is returned as an error.
func (c *Controller) join(wg *conc.WaitGroup) error {
	done := make(chan error, 1)
	go func() {
		if r := wg.WaitAndRecover(); r != nil {
			done <- r.AsError()
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(c.cfg.JoinTimeout):
		return ErrJoinTimeout
	}
}

func (c *Controller) hardExit(code int) int {
	c.exit(code)
	return code
}
