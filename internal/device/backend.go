package device

import (
	"sort"
	"strings"
)

// Backend selects the platform video subsystem used to open a camera.
// Values match OpenCV's cv::VideoCaptureAPIs so drivers can pass them through.
type Backend int

const (
	BackendAny          Backend = 0
	BackendV4L2         Backend = 200
	BackendFirewire     Backend = 300
	BackendQT           Backend = 500
	BackendUnicap       Backend = 600
	BackendDShow        Backend = 700
	BackendPvAPI        Backend = 800
	BackendOpenNI       Backend = 900
	BackendAndroid      Backend = 1000
	BackendXIAPI        Backend = 1100
	BackendAVFoundation Backend = 1200
	BackendGiganetix    Backend = 1300
	BackendMSMF         Backend = 1400
	BackendWinRT        Backend = 1410
	BackendIntelPerc    Backend = 1500
	BackendOpenNI2      Backend = 1600
	BackendGPhoto2      Backend = 1700
	BackendGStreamer    Backend = 1800
	BackendFFmpeg       Backend = 1900
	BackendImages       Backend = 2000
	BackendAravis       Backend = 2100
	BackendOpenCVMJPEG  Backend = 2200
	BackendIntelMFX     Backend = 2300
	BackendXINE         Backend = 2400
	BackendUEye         Backend = 2500
	BackendOBSensor     Backend = 2600
)

var backendNames = map[string]Backend{
	"ANY":          BackendAny,
	"VFW":          BackendV4L2,
	"V4L":          BackendV4L2,
	"V4L2":         BackendV4L2,
	"FIREWIRE":     BackendFirewire,
	"FIREWARE":     BackendFirewire,
	"IEEE1394":     BackendFirewire,
	"DC1394":       BackendFirewire,
	"CMU1394":      BackendFirewire,
	"QT":           BackendQT,
	"UNICAP":       BackendUnicap,
	"DSHOW":        BackendDShow,
	"PVAPI":        BackendPvAPI,
	"OPENNI":       BackendOpenNI,
	"ANDROID":      BackendAndroid,
	"XIAPI":        BackendXIAPI,
	"AVFOUNDATION": BackendAVFoundation,
	"GIGANETIX":    BackendGiganetix,
	"MSMF":         BackendMSMF,
	"WINRT":        BackendWinRT,
	"INTELPERC":    BackendIntelPerc,
	"REALSENSE":    BackendIntelPerc,
	"OPENNI2":      BackendOpenNI2,
	"GPHOTO2":      BackendGPhoto2,
	"GSTREAMER":    BackendGStreamer,
	"FFMPEG":       BackendFFmpeg,
	"IMAGES":       BackendImages,
	"ARAVIS":       BackendAravis,
	"OPENCV_MJPEG": BackendOpenCVMJPEG,
	"INTEL_MFX":    BackendIntelMFX,
	"XINE":         BackendXINE,
	"UEYE":         BackendUEye,
	"OBSENSOR":     BackendOBSensor,
}

// ResolveBackend maps a capture API hint such as "CAP_V4L2", "v4l2" or
// "avfoundation" to a Backend. An empty hint resolves to BackendAny with ok
// true; an unrecognized hint resolves to BackendAny with ok false.
func ResolveBackend(hint string) (Backend, bool) {
	name := strings.ToUpper(strings.TrimSpace(hint))
	if name == "" {
		return BackendAny, true
	}
	name = strings.TrimPrefix(name, "CAP_")
	name = strings.ReplaceAll(name, "-", "_")

	b, ok := backendNames[name]
	if !ok {
		return BackendAny, false
	}
	return b, true
}

// String returns the OpenCV-style constant name
func (b Backend) String() string {
	switch b {
	case BackendAny:
		return "CAP_ANY"
	case BackendV4L2:
		return "CAP_V4L2"
	case BackendDShow:
		return "CAP_DSHOW"
	case BackendAVFoundation:
		return "CAP_AVFOUNDATION"
	case BackendMSMF:
		return "CAP_MSMF"
	case BackendGStreamer:
		return "CAP_GSTREAMER"
	case BackendFFmpeg:
		return "CAP_FFMPEG"
	}
	names := make([]string, 0, len(backendNames))
	for name, v := range backendNames {
		if v == b {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "CAP_UNKNOWN"
	}
	sort.Strings(names)
	return "CAP_" + names[0]
}
