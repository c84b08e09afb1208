package v4l2

import "testing"

func TestFourCC(t *testing.T) {
	if got := FourCC(FormatMJPG); got != "MJPG" {
		t.Errorf("FourCC(FormatMJPG) = %q, want MJPG", got)
	}
	if got := FourCC('Y' | 'U'<<8 | 'Y'<<16 | 'V'<<24); got != "YUYV" {
		t.Errorf("FourCC(YUYV) = %q", got)
	}
}

func TestDevicePath(t *testing.T) {
	if got := DevicePath(2); got != "/dev/video2" {
		t.Errorf("DevicePath(2) = %q", got)
	}
}

func TestProbeResultSupportsMJPEG(t *testing.T) {
	r := &ProbeResult{Formats: []Format{{Code: 1, Description: "YUYV"}}}
	if r.SupportsMJPEG() {
		t.Error("expected no MJPEG support")
	}
	r.Formats = append(r.Formats, Format{Code: FormatMJPG, Description: "Motion-JPEG", MJPEG: true})
	if !r.SupportsMJPEG() {
		t.Error("expected MJPEG support")
	}
	if r.Formats[1].FourCC() != "MJPG" {
		t.Errorf("FourCC() = %q", r.Formats[1].FourCC())
	}
}
