package gstreamer

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/mjpegsw/mjpegsw/internal/device"
	"github.com/mjpegsw/mjpegsw/internal/logger"
)

// probeTimeout bounds the pipeline run used to discover the camera format
const probeTimeout = 10 * time.Second

// Source returns the GStreamer source element for the requested camera.
// The backend hint picks the platform element; BackendAny picks by OS.
func Source(req device.Request) string {
	switch req.Backend {
	case device.BackendV4L2:
		return fmt.Sprintf("v4l2src device=/dev/video%d", req.Index)
	case device.BackendAVFoundation:
		return fmt.Sprintf("avfvideosrc device-index=%d", req.Index)
	case device.BackendDShow:
		return fmt.Sprintf("ksvideosrc device-index=%d", req.Index)
	case device.BackendMSMF, device.BackendWinRT:
		return fmt.Sprintf("mfvideosrc device-index=%d", req.Index)
	}

	switch runtime.GOOS {
	case "darwin":
		return fmt.Sprintf("avfvideosrc device-index=%d", req.Index)
	case "windows":
		return fmt.Sprintf("mfvideosrc device-index=%d", req.Index)
	default:
		return fmt.Sprintf("v4l2src device=/dev/video%d", req.Index)
	}
}

// Pipeline builds the gst-launch pipeline that turns the source into raw
// RGBA frames of width x height on stdout
func Pipeline(src, fourcc string, width, height int, fps float64) string {
	var b strings.Builder
	b.WriteString(src)

	caps := "video/x-raw"
	if fourcc == "MJPG" {
		caps = "image/jpeg"
	}
	b.WriteString(" ! " + caps)
	if width > 0 && height > 0 {
		fmt.Fprintf(&b, ",width=%d,height=%d", width, height)
	}
	if fps > 0 {
		fmt.Fprintf(&b, ",framerate=%s", Fraction(fps))
	}
	if fourcc == "MJPG" {
		b.WriteString(" ! jpegdec")
	}

	fmt.Fprintf(&b, " ! videoconvert ! videoscale ! video/x-raw,format=RGBA,width=%d,height=%d", width, height)
	b.WriteString(" ! fdsink fd=1 sync=false")
	return b.String()
}

// Fraction formats a frame rate as a GStreamer fraction
func Fraction(fps float64) string {
	if fps == float64(int(fps)) {
		return fmt.Sprintf("%d/1", int(fps))
	}
	return fmt.Sprintf("%d/1000", int(fps*1000+0.5))
}

// probe runs the source for a single buffer and reads the negotiated caps
func probe(ctx context.Context, src, fourcc string) (device.Settings, error) {
	log := logger.WithComponent("device")

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	caps := "video/x-raw"
	if fourcc == "MJPG" {
		caps = "image/jpeg"
	}
	args := append([]string{"-v"}, strings.Fields(src+" num-buffers=1 ! "+caps+" ! fakesink")...)
	output, err := exec.CommandContext(ctx, LaunchCommand, args...).CombinedOutput()
	if err != nil {
		// Caps are often printed before the error
		log.Debug().Err(err).Str("output", string(output)).Msg("Probe command output")
	}

	if s, ok := ParseCaps(string(output)); ok {
		return s, nil
	}
	return device.Settings{}, fmt.Errorf("could not determine camera resolution from %q", src)
}

// ParseCaps finds the first caps line of gst-launch -v output that carries
// a frame size, e.g.
// caps = image/jpeg, width=(int)1280, height=(int)720, framerate=(fraction)30/1
func ParseCaps(output string) (device.Settings, bool) {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "width=") {
			continue
		}
		if !strings.Contains(line, "video/x-raw") && !strings.Contains(line, "image/jpeg") {
			continue
		}
		width := extractIntFromCaps(line, "width")
		height := extractIntFromCaps(line, "height")
		if width > 0 && height > 0 {
			return device.Settings{
				Width:  width,
				Height: height,
				FPS:    extractFractionFromCaps(line, "framerate"),
			}, true
		}
	}
	return device.Settings{}, false
}

// extractIntFromCaps extracts an integer value from a GStreamer caps string
func extractIntFromCaps(caps, key string) int {
	// Look for patterns like "width=(int)1920" or "width=1920"
	for _, pattern := range []string{key + "=(int)", key + "="} {
		idx := strings.Index(caps, pattern)
		if idx < 0 {
			continue
		}
		start := idx + len(pattern)
		end := start
		for end < len(caps) && caps[end] >= '0' && caps[end] <= '9' {
			end++
		}
		if end > start {
			if val, err := strconv.Atoi(caps[start:end]); err == nil {
				return val
			}
		}
	}
	return 0
}

// extractFractionFromCaps extracts "framerate=(fraction)30000/1001" as 29.97
func extractFractionFromCaps(caps, key string) float64 {
	for _, pattern := range []string{key + "=(fraction)", key + "="} {
		idx := strings.Index(caps, pattern)
		if idx < 0 {
			continue
		}
		rest := caps[idx+len(pattern):]
		if end := strings.IndexAny(rest, ", ;"); end >= 0 {
			rest = rest[:end]
		}
		num, den, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		n, err1 := strconv.Atoi(num)
		d, err2 := strconv.Atoi(den)
		if err1 == nil && err2 == nil && d > 0 {
			return float64(n) / float64(d)
		}
	}
	return 0
}
