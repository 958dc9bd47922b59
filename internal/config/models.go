package config

import (
	"fmt"
)

// SourceKind selects where the served viewport comes from
type SourceKind string

const (
	SourceX11     SourceKind = "x11"     // An X11 window, by id or the focused one
	SourcePattern SourceKind = "pattern" // The synthetic test card
)

// StreamConfig holds the frame provider settings. Values <= 0 leave the
// matching runtime variable unset.
type StreamConfig struct {
	Framerate         int `json:"framerate" yaml:"framerate" mapstructure:"framerate"`
	ResX              int `json:"resx" yaml:"resx" mapstructure:"resx"`
	ResY              int `json:"resy" yaml:"resy" mapstructure:"resy"`
	TickHz            int `json:"tick_hz" yaml:"tick_hz" mapstructure:"tick_hz"`
	JPEGQuality       int `json:"jpeg_quality" yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
	MaxBufferedFrames int `json:"max_buffered_frames" yaml:"max_buffered_frames" mapstructure:"max_buffered_frames"`
}

// SourceConfig describes the viewport to attach at startup
type SourceConfig struct {
	Kind     SourceKind `json:"kind" yaml:"kind" mapstructure:"kind"`
	WindowID uint32     `json:"window_id" yaml:"window_id" mapstructure:"window_id"`
	Width    int        `json:"width" yaml:"width" mapstructure:"width"`
	Height   int        `json:"height" yaml:"height" mapstructure:"height"`
}

// Config represents the application configuration
type Config struct {
	ServerPort int          `json:"server_port" yaml:"server_port" mapstructure:"server_port"`
	LogLevel   string       `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	Stream     StreamConfig `json:"stream" yaml:"stream" mapstructure:"stream"`
	Source     SourceConfig `json:"source" yaml:"source" mapstructure:"source"`
}

// Defaults returns the configuration written when no file exists
func Defaults() Config {
	return Config{
		ServerPort: 8080,
		LogLevel:   "info",
		Stream: StreamConfig{
			TickHz:            60,
			JPEGQuality:       85,
			MaxBufferedFrames: 3,
		},
		Source: SourceConfig{
			Kind:   SourcePattern,
			Width:  1280,
			Height: 720,
		},
	}
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate reports the first setting that cannot be used
func (c Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server_port: %d", c.ServerPort)
	}
	if c.LogLevel != "" && !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (use: trace, debug, info, warn, error)", c.LogLevel)
	}
	switch c.Source.Kind {
	case SourceX11:
	case SourcePattern:
		if c.Source.Width <= 0 || c.Source.Height <= 0 {
			return fmt.Errorf("invalid pattern size: %dx%d", c.Source.Width, c.Source.Height)
		}
	default:
		return fmt.Errorf("invalid source.kind: %q (use: x11, pattern)", c.Source.Kind)
	}
	if c.Stream.JPEGQuality < 0 || c.Stream.JPEGQuality > 100 {
		return fmt.Errorf("invalid stream.jpeg_quality: %d", c.Stream.JPEGQuality)
	}
	if c.Stream.TickHz < 0 {
		return fmt.Errorf("invalid stream.tick_hz: %d", c.Stream.TickHz)
	}
	return nil
}
