// Package opencv opens cameras through OpenCV's VideoCapture via gocv.
package opencv

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/mjpegsw/mjpegsw/internal/device"
	"github.com/mjpegsw/mjpegsw/internal/frame"
	"gocv.io/x/gocv"
)

// Driver is the registry name of this package's opener
const Driver = "opencv"

// Capture wraps a gocv.VideoCapture
type Capture struct {
	webcam     *gocv.VideoCapture
	mat        gocv.Mat
	negotiated device.Settings
	closeOnce  sync.Once
	closeErr   error
}

// Opener returns a device.Opener backed by OpenCV
func Opener() device.Opener {
	return device.OpenerFunc(Open)
}

// Open opens camera req.Index with the requested backend and applies the
// requested pixel format, resolution and frame rate
func Open(_ context.Context, req device.Request) (device.Device, error) {
	webcam, err := gocv.OpenVideoCaptureWithAPI(req.Index, gocv.VideoCaptureAPI(req.Backend))
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d (%s): %w", req.Index, req.Backend, err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return nil, fmt.Errorf("failed to open camera %d (%s)", req.Index, req.Backend)
	}

	if req.FourCC != "" {
		webcam.Set(gocv.VideoCaptureFOURCC, webcam.ToCodec(req.FourCC))
	}
	if req.Width > 0 {
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(req.Width))
	}
	if req.Height > 0 {
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(req.Height))
	}
	if req.FPS > 0 {
		webcam.Set(gocv.VideoCaptureFPS, req.FPS)
	}

	// Read back what the driver accepted
	negotiated := device.Settings{
		Width:  int(webcam.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(webcam.Get(gocv.VideoCaptureFrameHeight)),
		FPS:    webcam.Get(gocv.VideoCaptureFPS),
	}

	return &Capture{
		webcam:     webcam,
		mat:        gocv.NewMat(),
		negotiated: negotiated,
	}, nil
}

// Read grabs one frame and converts it from BGR to RGBA
func (c *Capture) Read(_ context.Context) (*image.RGBA, error) {
	if c.webcam == nil {
		return nil, device.ErrDeviceClosed
	}

	if ok := c.webcam.Read(&c.mat); !ok || c.mat.Empty() {
		if !c.webcam.IsOpened() {
			return nil, device.ErrDeviceClosed
		}
		return nil, nil
	}

	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return frame.ToRGBA(img), nil
}

// Negotiated returns the settings read back after opening
func (c *Capture) Negotiated() device.Settings {
	return c.negotiated
}

// Close releases the camera
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		c.mat.Close()
		c.closeErr = c.webcam.Close()
		c.webcam = nil
	})
	return c.closeErr
}
