package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mjpegsw/mjpegsw/internal/api"
	"github.com/mjpegsw/mjpegsw/internal/capture"
	"github.com/mjpegsw/mjpegsw/internal/config"
	"github.com/mjpegsw/mjpegsw/internal/device"
	"github.com/mjpegsw/mjpegsw/internal/device/gstreamer"
	"github.com/mjpegsw/mjpegsw/internal/device/opencv"
	"github.com/mjpegsw/mjpegsw/internal/device/v4l2"
	"github.com/mjpegsw/mjpegsw/internal/frame"
	"github.com/mjpegsw/mjpegsw/internal/lifecycle"
	"github.com/mjpegsw/mjpegsw/internal/logger"
	"github.com/mjpegsw/mjpegsw/internal/output"
	"github.com/mjpegsw/mjpegsw/internal/overlay"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Capture from the camera and serve the MJPEG stream",
	Long: `Open the camera, capture frames in the background and serve them over HTTP.

Ctrl+C stops the camera and shuts down cleanly. If the camera fails or stops
on its own the process exits immediately (status 1 after a failure) so that a
supervisor can restart it with a fresh device handle.`,
	Example: `  # Start on the default address (127.0.0.1:5001)
  mjpegsw serve

  # Use a config file
  mjpegsw serve --config /path/to/config.yaml

  # Debug logging with readable output
  mjpegsw serve --log-level debug --log-pretty`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func newRegistry() *device.Registry {
	r := device.NewRegistry()
	r.Register(opencv.Driver, opencv.Opener())
	r.Register(v4l2.Driver, v4l2.Opener())
	r.Register(gstreamer.Driver, gstreamer.Opener())
	return r
}

// captureConfig derives the capture loop's settings from the loaded config
func captureConfig(cfg *config.Config) capture.Config {
	return capture.Config{
		Index:          cfg.Camera.Index,
		Backend:        cfg.Camera.Backend,
		Width:          cfg.Camera.Width,
		Height:         cfg.Camera.Height,
		FPS:            cfg.Camera.FPS,
		Rotate:         cfg.Camera.Rotate,
		MaxMissedReads: cfg.Camera.MaxMissedReads,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()

	logger.Init(cfg.LogLevel, cfg.LogPretty)
	log := logger.WithComponent("serve")
	log.Info().Str("path", configMgr.GetConfigPath()).Str("log_level", cfg.LogLevel).Msg("Configuration loaded")

	if cfg.Camera.Width > 0 {
		log.Info().Int("width", cfg.Camera.Width).Msg("Image width set")
	}
	if cfg.Camera.Height > 0 {
		log.Info().Int("height", cfg.Camera.Height).Msg("Image height set")
	}
	if cfg.Camera.Rotate {
		log.Info().Msg("Image will be rotated 180 degrees")
	}
	if cfg.Camera.Backend != "" {
		log.Info().Str("capture_api", cfg.Camera.Backend).Msg("Capture API requested")
	}

	opener, err := newRegistry().Opener(cfg.Camera.Driver)
	if err != nil {
		return err
	}

	store := frame.NewStore()

	var opts []capture.Option
	if cfg.Camera.Timestamp {
		opts = append(opts, capture.WithOverlay(overlay.NewManager(overlay.NewTimestampWidget(""))))
	}
	loop := capture.New(captureConfig(cfg), opener, store, opts...)

	outs := output.New(store, output.Config{
		PollInterval: cfg.Stream.PollInterval,
		JPEGQuality:  cfg.Stream.JPEGQuality,
	})
	server := api.NewServer(cfg, store, outs, loop)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("driver", cfg.Camera.Driver).
		Int("camera", cfg.Camera.Index).
		Str("stream", fmt.Sprintf("http://%s%s", server.Addr(), api.StreamPath)).
		Msg("Starting")

	controller := lifecycle.New(lifecycle.Config{
		Grace:           cfg.Shutdown.Grace,
		JoinTimeout:     cfg.Shutdown.JoinTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, loop, server)

	if code := controller.Run(ctx); code != 0 {
		return &exitError{code: code}
	}
	return nil
}
