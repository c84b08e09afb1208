package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/mjpegsw/mjpegsw/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "mjpegsw",
		Short: "mjpegsw - Motion JPEG streaming server for a local camera",
		Long: `mjpegsw captures frames from a local camera and serves them over HTTP
as a Motion JPEG stream that any browser or video player can open.

Endpoints:
  • /cam.mjpg  live multipart MJPEG stream
  • /snap.jpg  latest frame as a single JPEG
  • /cam.ws    frames pushed over a WebSocket
  • /api/status, /api/health

Running mjpegsw without a subcommand is the same as "mjpegsw serve".`,
		Example: `  # Serve camera 0 on http://127.0.0.1:5001/cam.mjpg
  mjpegsw

  # Camera 2 on all interfaces, port 8080
  mjpegsw -c 2 -i 0.0.0.0 -p 8080

  # 1280x720 through V4L2, rotated, 15 frames per second
  mjpegsw -w 1280 -x 720 -a CAP_V4L2 -r --fps 15`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
)

// exitError carries a process exit code out of a command without printing
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func init() {
	d := config.Defaults()
	flags := rootCmd.PersistentFlags()

	// Global flags
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/mjpegsw/config.yaml)")
	flags.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	flags.Bool("log-pretty", d.LogPretty, "human readable console logs")

	// Capture and server flags, named after the original command line
	flags.IntP("port", "p", d.Server.Port, "http listening port")
	flags.StringP("ipaddress", "i", d.Server.Host, "listening ip address")
	flags.IntP("camera", "c", d.Camera.Index, "camera number, ex. -c 1")
	flags.IntP("width", "w", d.Camera.Width, "capture resolution width")
	flags.IntP("height", "x", d.Camera.Height, "capture resolution height")
	flags.BoolP("rotate", "r", d.Camera.Rotate, "rotate image 180 degrees")
	flags.StringP("capture-api", "a", d.Camera.Backend, "specific api for capture, ex. CAP_V4L2")
	flags.Float64("fps", d.Camera.FPS, "frames per second to capture, 0 for unpaced")
	flags.String("driver", d.Camera.Driver, "camera driver (opencv, v4l2 or gstreamer)")
	flags.Bool("timestamp", d.Camera.Timestamp, "draw the capture time onto each frame")

	// Bind flags to viper
	bindings := map[string]string{
		"log_level":        "log-level",
		"log_pretty":       "log-pretty",
		"server.port":      "port",
		"server.host":      "ipaddress",
		"camera.index":     "camera",
		"camera.width":     "width",
		"camera.height":    "height",
		"camera.rotate":    "rotate",
		"camera.backend":   "capture-api",
		"camera.fps":       "fps",
		"camera.driver":    "driver",
		"camera.timestamp": "timestamp",
	}
	for key, flag := range bindings {
		viper.BindPFlag(key, flags.Lookup(flag))
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

func loadConfig() (*config.Manager, error) {
	configMgr, err := config.NewManager(viper.GetViper(), GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return configMgr, nil
}
