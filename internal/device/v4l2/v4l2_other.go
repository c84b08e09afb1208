//go:build !linux

package v4l2

import (
	"context"
	"errors"

	"github.com/mjpegsw/mjpegsw/internal/device"
)

// ErrUnsupported is returned on platforms without Video4Linux2
var ErrUnsupported = errors.New("v4l2 driver is only available on linux")

// Opener returns an opener that always fails on this platform
func Opener() device.Opener {
	return device.OpenerFunc(func(context.Context, device.Request) (device.Device, error) {
		return nil, ErrUnsupported
	})
}

// Probe is unavailable on this platform
func Probe(int) (*ProbeResult, error) {
	return nil, ErrUnsupported
}
