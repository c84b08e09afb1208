package config

import (
	"fmt"
	"time"
)

// Supported camera drivers
const (
	DriverOpenCV    = "opencv"
	DriverV4L2      = "v4l2"
	DriverGStreamer = "gstreamer"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig   `json:"server" yaml:"server" mapstructure:"server"`
	Camera    CameraConfig   `json:"camera" yaml:"camera" mapstructure:"camera"`
	Stream    StreamConfig   `json:"stream" yaml:"stream" mapstructure:"stream"`
	Shutdown  ShutdownConfig `json:"shutdown" yaml:"shutdown" mapstructure:"shutdown"`
	LogLevel  string         `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty bool           `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`
}

// ServerConfig represents the HTTP listener configuration
type ServerConfig struct {
	Host            string        `json:"host" yaml:"host" mapstructure:"host"`
	Port            int           `json:"port" yaml:"port" mapstructure:"port"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// CameraConfig represents the capture device configuration
type CameraConfig struct {
	Index          int     `json:"index" yaml:"index" mapstructure:"index"`
	Driver         string  `json:"driver" yaml:"driver" mapstructure:"driver"`
	Backend        string  `json:"backend" yaml:"backend" mapstructure:"backend"` // capture API hint, e.g. CAP_V4L2
	Width          int     `json:"width" yaml:"width" mapstructure:"width"`       // 0 keeps the device default
	Height         int     `json:"height" yaml:"height" mapstructure:"height"`
	Rotate         bool    `json:"rotate" yaml:"rotate" mapstructure:"rotate"`
	FPS            float64 `json:"fps" yaml:"fps" mapstructure:"fps"` // <= 0 disables pacing
	MaxMissedReads int     `json:"max_missed_reads" yaml:"max_missed_reads" mapstructure:"max_missed_reads"`
	Timestamp      bool    `json:"timestamp" yaml:"timestamp" mapstructure:"timestamp"`
}

// StreamConfig represents viewer-side settings
type StreamConfig struct {
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`
	JPEGQuality  int           `json:"jpeg_quality" yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
}

// ShutdownConfig bounds the interrupt path
type ShutdownConfig struct {
	Grace       time.Duration `json:"grace" yaml:"grace" mapstructure:"grace"`
	JoinTimeout time.Duration `json:"join_timeout" yaml:"join_timeout" mapstructure:"join_timeout"`
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            5001,
			ShutdownTimeout: 5 * time.Second,
		},
		Camera: CameraConfig{
			Index:          0,
			Driver:         DriverOpenCV,
			FPS:            30,
			MaxMissedReads: 0,
		},
		Stream: StreamConfig{
			PollInterval: 100 * time.Millisecond,
			JPEGQuality:  90,
		},
		Shutdown: ShutdownConfig{
			Grace:       500 * time.Millisecond,
			JoinTimeout: 3 * time.Second,
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for values the program cannot run with
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Camera.Index < 0 {
		return fmt.Errorf("invalid camera index: %d", c.Camera.Index)
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		return fmt.Errorf("invalid resolution: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	switch c.Camera.Driver {
	case DriverOpenCV, DriverV4L2, DriverGStreamer:
	default:
		return fmt.Errorf("unsupported camera driver: %q (use %s, %s or %s)", c.Camera.Driver, DriverOpenCV, DriverV4L2, DriverGStreamer)
	}
	if c.Camera.MaxMissedReads < 0 {
		return fmt.Errorf("invalid max_missed_reads: %d", c.Camera.MaxMissedReads)
	}
	if c.Stream.PollInterval <= 0 {
		return fmt.Errorf("invalid stream poll interval: %v", c.Stream.PollInterval)
	}
	if c.Stream.JPEGQuality < 1 || c.Stream.JPEGQuality > 100 {
		return fmt.Errorf("invalid jpeg quality: %d (must be 1-100)", c.Stream.JPEGQuality)
	}
	if c.Shutdown.Grace < 0 {
		return fmt.Errorf("invalid shutdown grace: %v", c.Shutdown.Grace)
	}
	if c.Shutdown.JoinTimeout <= 0 {
		return fmt.Errorf("invalid shutdown join timeout: %v (must be positive)", c.Shutdown.JoinTimeout)
	}
	return nil
}

// ServerAddress returns the listen address
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
