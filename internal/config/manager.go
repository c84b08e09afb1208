package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mjpegsw/mjpegsw/internal/logger"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. MJPEGSW_SERVER_PORT
const EnvPrefix = "MJPEGSW"

// SetDefaults registers every configuration key on v so that flags, env and
// files all resolve against the same tree
func SetDefaults(v *viper.Viper) {
	d := Defaults()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("camera.index", d.Camera.Index)
	v.SetDefault("camera.driver", d.Camera.Driver)
	v.SetDefault("camera.backend", d.Camera.Backend)
	v.SetDefault("camera.width", d.Camera.Width)
	v.SetDefault("camera.height", d.Camera.Height)
	v.SetDefault("camera.rotate", d.Camera.Rotate)
	v.SetDefault("camera.fps", d.Camera.FPS)
	v.SetDefault("camera.max_missed_reads", d.Camera.MaxMissedReads)
	v.SetDefault("camera.timestamp", d.Camera.Timestamp)

	v.SetDefault("stream.poll_interval", d.Stream.PollInterval)
	v.SetDefault("stream.jpeg_quality", d.Stream.JPEGQuality)

	v.SetDefault("shutdown.grace", d.Shutdown.Grace)
	v.SetDefault("shutdown.join_timeout", d.Shutdown.JoinTimeout)

	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_pretty", d.LogPretty)
}

// Load unmarshals and validates the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Manager handles configuration
type Manager struct {
	v          *viper.Viper
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultConfigPath returns $HOME/.config/mjpegsw/config.yaml
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "mjpegsw", "config.yaml"), nil
}

// NewManager reads configuration into v. An explicit configFile must exist;
// the default path is optional.
func NewManager(v *viper.Viper, configFile string) (*Manager, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m := &Manager{v: v}

	if configFile != "" {
		m.configPath = configFile
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	} else {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		m.configPath = defaultPath
		v.SetConfigFile(defaultPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", defaultPath, err)
			}
			logger.WithComponent("config").Debug().
				Str("path", defaultPath).
				Msg("No config file, using defaults")
		}
	}

	if err := m.Reload(); err != nil {
		return nil, err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config loaded")

	return m, nil
}

// Reload re-reads the viper state into the typed config
func (m *Manager) Reload() error {
	cfg, err := Load(m.v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	return &cfg
}

// GetViper exposes the underlying viper instance for key-level access
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// Save validates the viper state and writes it to the config path as YAML
func (m *Manager) Save() error {
	if err := m.Reload(); err != nil {
		return err
	}
	cfg := m.Get()

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}
