package gstreamer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"math"
	"runtime"
	"strings"
	"testing"

	"github.com/mjpegsw/mjpegsw/internal/device"
)

func TestSource(t *testing.T) {
	tests := []struct {
		backend device.Backend
		want    string
	}{
		{device.BackendV4L2, "v4l2src device=/dev/video2"},
		{device.BackendAVFoundation, "avfvideosrc device-index=2"},
		{device.BackendDShow, "ksvideosrc device-index=2"},
		{device.BackendMSMF, "mfvideosrc device-index=2"},
	}
	for _, tt := range tests {
		if got := Source(device.Request{Index: 2, Backend: tt.backend}); got != tt.want {
			t.Errorf("Source(%v) = %q, want %q", tt.backend, got, tt.want)
		}
	}

	def := Source(device.Request{Index: 0})
	if runtime.GOOS == "linux" && def != "v4l2src device=/dev/video0" {
		t.Errorf("Source(BackendAny) on linux = %q", def)
	}
}

func TestPipeline(t *testing.T) {
	got := Pipeline("v4l2src device=/dev/video0", "MJPG", 640, 480, 30)
	want := "v4l2src device=/dev/video0 ! image/jpeg,width=640,height=480,framerate=30/1 ! jpegdec" +
		" ! videoconvert ! videoscale ! video/x-raw,format=RGBA,width=640,height=480 ! fdsink fd=1 sync=false"
	if got != want {
		t.Errorf("Pipeline() =\n%s\nwant\n%s", got, want)
	}

	raw := Pipeline("avfvideosrc device-index=0", "", 320, 240, 0)
	if strings.Contains(raw, "jpegdec") || strings.Contains(raw, "framerate") {
		t.Errorf("raw pipeline = %q", raw)
	}
	if !strings.HasPrefix(raw, "avfvideosrc device-index=0 ! video/x-raw,width=320,height=240 ! videoconvert") {
		t.Errorf("raw pipeline = %q", raw)
	}
}

func TestFraction(t *testing.T) {
	tests := map[float64]string{30: "30/1", 7.5: "7500/1000", 29.97: "29970/1000"}
	for fps, want := range tests {
		if got := Fraction(fps); got != want {
			t.Errorf("Fraction(%v) = %q, want %q", fps, got, want)
		}
	}
}

func TestParseCaps(t *testing.T) {
	output := `Setting pipeline to PAUSED ...
/GstPipeline:pipeline0/GstV4l2Src:v4l2src0.GstPad:src: caps = image/jpeg, width=(int)1280, height=(int)720, pixel-aspect-ratio=(fraction)1/1, framerate=(fraction)30000/1001
/GstPipeline:pipeline0/GstCapsFilter:capsfilter0.GstPad:src: caps = image/jpeg, width=(int)1280, height=(int)720
Got EOS from element "pipeline0".`

	s, ok := ParseCaps(output)
	if !ok {
		t.Fatal("ParseCaps() found nothing")
	}
	if s.Width != 1280 || s.Height != 720 {
		t.Errorf("size = %dx%d, want 1280x720", s.Width, s.Height)
	}
	if math.Abs(s.FPS-29.97) > 0.01 {
		t.Errorf("fps = %v, want 29.97", s.FPS)
	}

	if _, ok := ParseCaps("ERROR: pipeline doesn't want to preroll."); ok {
		t.Error("ParseCaps() matched output without caps")
	}
}

func TestReadWholeFrames(t *testing.T) {
	frame := []byte{
		1, 2, 3, 255, 4, 5, 6, 255,
		7, 8, 9, 255, 10, 11, 12, 255,
	}
	c := &Camera{
		reader: bufio.NewReader(bytes.NewReader(append(frame, frame[:5]...))),
		width:  2,
		height: 2,
	}

	img, err := c.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if !bytes.Equal(img.Pix, frame) {
		t.Errorf("pixels = %v, want %v", img.Pix, frame)
	}

	// The trailing partial frame means the pipeline died mid-frame
	if _, err := c.Read(context.Background()); !errors.Is(err, device.ErrDeviceClosed) {
		t.Errorf("Read() after truncated frame error = %v, want ErrDeviceClosed", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestOpenRejectsUnusableFrameSize(t *testing.T) {
	// Fails the test with a start error if Open ever gets as far as launching
	saved := LaunchCommand
	LaunchCommand = "/nonexistent/gst-launch-1.0"
	defer func() { LaunchCommand = saved }()

	for _, req := range []device.Request{
		{Width: -640, Height: 480},
		{Width: 640, Height: -1},
	} {
		dev, err := Open(context.Background(), req)
		if !errors.Is(err, ErrInvalidFrameSize) {
			t.Errorf("Open(%dx%d) error = %v, want ErrInvalidFrameSize", req.Width, req.Height, err)
		}
		if dev != nil {
			t.Errorf("Open(%dx%d) returned a device", req.Width, req.Height)
		}
	}
}
