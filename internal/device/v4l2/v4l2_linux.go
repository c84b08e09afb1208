//go:build linux

// Package v4l2 opens cameras directly through Video4Linux2 without cgo.
package v4l2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sort"
	"sync"

	"github.com/blackjack/webcam"
	"github.com/mjpegsw/mjpegsw/internal/device"
	"github.com/mjpegsw/mjpegsw/internal/frame"
	"github.com/mjpegsw/mjpegsw/internal/logger"
)

// Camera is an opened V4L2 device streaming MJPEG
type Camera struct {
	cam        *webcam.Webcam
	path       string
	negotiated device.Settings
	closeOnce  sync.Once
	closeErr   error
}

// Opener returns a device.Opener backed by V4L2
func Opener() device.Opener {
	return device.OpenerFunc(Open)
}

// Open opens /dev/video<req.Index>, selects the MJPEG pixel format and starts
// streaming. The backend hint is ignored; this driver is V4L2 by definition.
func Open(_ context.Context, req device.Request) (device.Device, error) {
	log := logger.WithComponent("device")
	path := DevicePath(req.Index)

	cam, err := webcam.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	if _, ok := cam.GetSupportedFormats()[FormatMJPG]; !ok {
		cam.Close()
		return nil, fmt.Errorf("%s does not support MJPG", path)
	}

	width, height := uint32(req.Width), uint32(req.Height)
	if width == 0 || height == 0 {
		width, height = largestFrameSize(cam.GetSupportedFrameSizes(FormatMJPG))
	}

	format, w, h, err := cam.SetImageFormat(FormatMJPG, width, height)
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("failed to set image format on %s: %w", path, err)
	}
	if format != FormatMJPG {
		cam.Close()
		return nil, fmt.Errorf("%s refused MJPG format", path)
	}

	negotiated := device.Settings{Width: int(w), Height: int(h)}
	if req.FPS > 0 {
		if err := cam.SetFramerate(float32(req.FPS)); err != nil {
			log.Warn().Err(err).Str("device", path).Float64("fps", req.FPS).Msg("Failed to set frame rate")
		}
	}
	if fps, err := cam.GetFramerate(); err == nil {
		negotiated.FPS = float64(fps)
	}

	if err := cam.SetBufferCount(1); err != nil {
		log.Warn().Err(err).Str("device", path).Msg("Failed to set buffer count")
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("failed to start streaming on %s: %w", path, err)
	}

	log.Debug().
		Str("device", path).
		Int("width", negotiated.Width).
		Int("height", negotiated.Height).
		Float64("fps", negotiated.FPS).
		Msg("V4L2 device streaming")

	return &Camera{cam: cam, path: path, negotiated: negotiated}, nil
}

// Read waits for the next MJPEG buffer and decodes it. A wait timeout or an
// undecodable buffer is reported as a missed read.
func (c *Camera) Read(_ context.Context) (*image.RGBA, error) {
	if c.cam == nil {
		return nil, device.ErrDeviceClosed
	}

	if err := c.cam.WaitForFrame(waitTimeoutSeconds); err != nil {
		var timeout *webcam.Timeout
		if errors.As(err, &timeout) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to wait for frame on %s: %w", c.path, err)
	}

	buf, err := c.cam.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("failed to read frame from %s: %w", c.path, err)
	}
	if len(buf) == 0 {
		return nil, nil
	}

	img, err := jpeg.Decode(bytes.NewReader(buf))
	if err != nil {
		logger.WithComponent("device").Debug().Err(err).Str("device", c.path).Msg("Dropping corrupt frame")
		return nil, nil
	}
	return frame.ToRGBA(img), nil
}

// Negotiated returns the format the device accepted
func (c *Camera) Negotiated() device.Settings {
	return c.negotiated
}

// Close stops streaming and releases the device
func (c *Camera) Close() error {
	c.closeOnce.Do(func() {
		if err := c.cam.StopStreaming(); err != nil {
			logger.WithComponent("device").Debug().Err(err).Str("device", c.path).Msg("Failed to stop streaming")
		}
		c.closeErr = c.cam.Close()
		c.cam = nil
	})
	return c.closeErr
}

// Probe lists the pixel formats and frame sizes a device advertises
func Probe(index int) (*ProbeResult, error) {
	path := DevicePath(index)
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer cam.Close()

	result := &ProbeResult{Path: path}
	for pf, desc := range cam.GetSupportedFormats() {
		f := Format{Code: uint32(pf), Description: desc, MJPEG: pf == FormatMJPG}
		for _, size := range cam.GetSupportedFrameSizes(pf) {
			f.Sizes = append(f.Sizes, size.GetString())
		}
		result.Formats = append(result.Formats, f)
	}
	sort.Slice(result.Formats, func(i, j int) bool {
		return result.Formats[i].Code < result.Formats[j].Code
	})
	return result, nil
}

func largestFrameSize(sizes []webcam.FrameSize) (uint32, uint32) {
	var w, h uint32
	for _, s := range sizes {
		if s.MaxWidth*s.MaxHeight > w*h {
			w, h = s.MaxWidth, s.MaxHeight
		}
	}
	return w, h
}
