package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bryanchriswhite/FrameRelay/internal/logger"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrUnknownKey is returned for keys that are not part of Config.
var ErrUnknownKey = errors.New("unknown configuration key")

type keyKind int

const (
	kindInt keyKind = iota
	kindUint
	kindString
)

// keys lists every settable key and how its value is parsed.
var keys = map[string]keyKind{
	"server_port":                kindInt,
	"log_level":                  kindString,
	"stream.framerate":           kindInt,
	"stream.resx":                kindInt,
	"stream.resy":                kindInt,
	"stream.tick_hz":             kindInt,
	"stream.jpeg_quality":        kindInt,
	"stream.max_buffered_frames": kindInt,
	"source.kind":                kindString,
	"source.window_id":           kindUint,
	"source.width":               kindInt,
	"source.height":              kindInt,
}

// Keys returns the settable configuration keys, sorted.
func Keys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Manager handles configuration
type Manager struct {
	configPath string
	v          *viper.Viper
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/framerelay/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "framerelay", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when empty. A missing
// file is created with defaults. FRAMERELAY_* environment variables
// override file values (stream.tick_hz -> FRAMERELAY_STREAM_TICK_HZ).
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(actualConfigPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FRAMERELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m := &Manager{
		configPath: actualConfigPath,
		v:          v,
	}

	if _, err := os.Stat(actualConfigPath); os.IsNotExist(err) {
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := m.Get()
	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Int("port", cfg.ServerPort).
		Str("source", string(cfg.Source.Kind)).
		Msg("Config loaded")

	return m, nil
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("server_port", d.ServerPort)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("stream.framerate", d.Stream.Framerate)
	v.SetDefault("stream.resx", d.Stream.ResX)
	v.SetDefault("stream.resy", d.Stream.ResY)
	v.SetDefault("stream.tick_hz", d.Stream.TickHz)
	v.SetDefault("stream.jpeg_quality", d.Stream.JPEGQuality)
	v.SetDefault("stream.max_buffered_frames", d.Stream.MaxBufferedFrames)
	v.SetDefault("source.kind", string(d.Source.Kind))
	v.SetDefault("source.window_id", d.Source.WindowID)
	v.SetDefault("source.width", d.Source.Width)
	v.SetDefault("source.height", d.Source.Height)
}

// Get returns the effective configuration
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		logger.WithComponent("config").Warn().Err(err).Msg("Failed to decode config, using defaults")
		return Defaults()
	}
	return cfg
}

// GetViper exposes the underlying viper instance
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// BindFlags lets command-line flags take precedence over the file.
// Only flags that were explicitly set override.
func (m *Manager) BindFlags(flags *pflag.FlagSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, name := range map[string]string{
		"server_port": "port",
		"log_level":   "log-level",
	} {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := m.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Lookup returns the effective value of key
func (m *Manager) Lookup(key string) (interface{}, error) {
	if _, ok := keys[key]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.Get(key), nil
}

// SetValue parses raw for key, validates the result and saves it.
func (m *Manager) SetValue(key, raw string) error {
	kind, ok := keys[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	var value interface{}
	switch kind {
	case kindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid number for %s: %s", key, raw)
		}
		value = n
	case kindUint:
		n, err := strconv.ParseUint(raw, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid window id for %s: %s", key, raw)
		}
		value = uint32(n)
	default:
		value = raw
	}

	m.mu.Lock()
	prev := m.v.Get(key)
	m.v.Set(key, value)
	m.mu.Unlock()

	if err := m.Get().Validate(); err != nil {
		m.mu.Lock()
		m.v.Set(key, prev)
		m.mu.Unlock()
		return err
	}
	return m.Save()
}

// Save writes the effective configuration to disk as YAML
func (m *Manager) Save() error {
	cfg := m.Get()

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Msg("Failed to marshal config")
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
