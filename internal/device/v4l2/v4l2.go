package v4l2

import (
	"fmt"
	"strings"
)

// Driver is the registry name of this package's opener
const Driver = "v4l2"

// waitTimeoutSeconds bounds a single WaitForFrame call
const waitTimeoutSeconds = 1

// FormatMJPG is the V4L2 fourcc for Motion-JPEG
const FormatMJPG = 'M' | 'J'<<8 | 'P'<<16 | 'G'<<24

// Format is one pixel format reported by Probe
type Format struct {
	Code        uint32   `json:"code"`
	Description string   `json:"description"`
	MJPEG       bool     `json:"mjpeg"`
	Sizes       []string `json:"sizes,omitempty"`
}

// FourCC returns the four character code of the format
func (f Format) FourCC() string {
	return FourCC(f.Code)
}

// ProbeResult describes what a device advertises
type ProbeResult struct {
	Path    string   `json:"path"`
	Formats []Format `json:"formats"`
}

// SupportsMJPEG reports whether any advertised format is MJPEG
func (r *ProbeResult) SupportsMJPEG() bool {
	for _, f := range r.Formats {
		if f.MJPEG {
			return true
		}
	}
	return false
}

// DevicePath maps a camera index to its device node
func DevicePath(index int) string {
	return fmt.Sprintf("/dev/video%d", index)
}

// FourCC decodes a little-endian fourcc code
func FourCC(code uint32) string {
	b := []byte{byte(code), byte(code >> 8), byte(code >> 16), byte(code >> 24)}
	return strings.TrimRight(string(b), "\x00 ")
}
