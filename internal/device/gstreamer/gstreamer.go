// Package gstreamer captures from a camera by running a gst-launch-1.0
// pipeline as a subprocess and reading raw RGBA frames from its stdout.
// It needs GStreamer installed but no cgo.
package gstreamer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/mjpegsw/mjpegsw/internal/device"
	"github.com/mjpegsw/mjpegsw/internal/logger"
)

// Driver is the registry name of this package's opener
const Driver = "gstreamer"

// LaunchCommand is the gst-launch binary to run
var LaunchCommand = "gst-launch-1.0"

// ErrInvalidFrameSize is returned by Open when no usable frame size is known
var ErrInvalidFrameSize = errors.New("invalid frame size")

// Camera is a running gst-launch-1.0 pipeline
type Camera struct {
	cmd        *exec.Cmd
	reader     *bufio.Reader
	width      int
	height     int
	negotiated device.Settings
	stopKill   func() bool

	closeOnce sync.Once
	closeErr  error
}

// Opener returns a device.Opener backed by a GStreamer subprocess
func Opener() device.Opener {
	return device.OpenerFunc(Open)
}

// Open starts the capture pipeline. When no resolution is requested the
// camera's default is probed first. The pipeline is killed when ctx is done.
func Open(ctx context.Context, req device.Request) (device.Device, error) {
	log := logger.WithComponent("device")
	src := Source(req)

	negotiated := device.Settings{Width: req.Width, Height: req.Height, FPS: req.FPS}
	if req.Width == 0 || req.Height == 0 {
		probed, err := probe(ctx, src, req.FourCC)
		if err != nil {
			return nil, err
		}
		negotiated.Width, negotiated.Height = probed.Width, probed.Height
		if negotiated.FPS <= 0 {
			negotiated.FPS = probed.FPS
		}
	}

	// Read sizes its buffer from these, a zero would yield empty frames forever
	if negotiated.Width <= 0 || negotiated.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidFrameSize, negotiated.Width, negotiated.Height)
	}

	pipeline := Pipeline(src, req.FourCC, negotiated.Width, negotiated.Height, req.FPS)
	log.Debug().Str("pipeline", pipeline).Msg("Starting GStreamer pipeline")

	cmd := exec.Command(LaunchCommand, append([]string{"-q"}, strings.Fields(pipeline)...)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", LaunchCommand, err)
	}
	go logStderr(stderr)

	frameSize := negotiated.Width * negotiated.Height * 4
	c := &Camera{
		cmd:        cmd,
		reader:     bufio.NewReaderSize(stdout, frameSize),
		width:      negotiated.Width,
		height:     negotiated.Height,
		negotiated: negotiated,
	}
	// Unblocks a Read stuck on a stalled camera
	c.stopKill = context.AfterFunc(ctx, func() {
		cmd.Process.Kill()
	})

	log.Info().Int("pid", cmd.Process.Pid).Str("source", src).Msg("GStreamer pipeline started")
	return c, nil
}

// Read blocks until one whole frame has been read from the pipeline
func (c *Camera) Read(_ context.Context) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	if _, err := io.ReadFull(c.reader, img.Pix); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("gstreamer pipeline ended: %w", device.ErrDeviceClosed)
		}
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	return img, nil
}

// Negotiated returns the frame size the pipeline produces
func (c *Camera) Negotiated() device.Settings {
	return c.negotiated
}

// Close kills the pipeline and waits for it to exit
func (c *Camera) Close() error {
	c.closeOnce.Do(func() {
		if c.stopKill != nil {
			c.stopKill()
		}
		if c.cmd == nil || c.cmd.Process == nil {
			return
		}
		logger.WithComponent("device").Debug().Int("pid", c.cmd.Process.Pid).Msg("Killing GStreamer pipeline")
		c.cmd.Process.Kill()

		// A killed pipeline always exits non-zero
		var exitErr *exec.ExitError
		if err := c.cmd.Wait(); err != nil && !errors.As(err, &exitErr) {
			c.closeErr = err
		}
	})
	return c.closeErr
}

// logStderr logs any output from the subprocess
func logStderr(r io.Reader) {
	log := logger.WithComponent("device")
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "ERROR") || strings.Contains(line, "WARN") {
			log.Warn().Str("gst", line).Msg("GStreamer message")
		} else {
			log.Debug().Str("gst", line).Msg("GStreamer output")
		}
	}
}
