package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	return m, path
}

func TestNewManager_CreatesDefaults(t *testing.T) {
	m, path := newTestManager(t)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if !strings.Contains(string(data), "server_port: 8080") {
		t.Errorf("default file missing server_port:\n%s", data)
	}

	cfg := m.Get()
	if cfg != Defaults() {
		t.Errorf("Get() = %+v, want defaults %+v", cfg, Defaults())
	}
	if m.GetConfigPath() != path {
		t.Errorf("GetConfigPath() = %q", m.GetConfigPath())
	}
}

func TestNewManager_ReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "server_port: 9090\nstream:\n  framerate: 24\n  resx: 1280\nsource:\n  kind: x11\n  window_id: 4194311\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	cfg := m.Get()
	if cfg.ServerPort != 9090 || cfg.Stream.Framerate != 24 || cfg.Stream.ResX != 1280 {
		t.Errorf("Get() = %+v", cfg)
	}
	if cfg.Source.Kind != SourceX11 || cfg.Source.WindowID != 4194311 {
		t.Errorf("source = %+v", cfg.Source)
	}
	// keys absent from the file keep their defaults
	if cfg.Stream.TickHz != 60 || cfg.LogLevel != "info" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestNewManager_EnvOverride(t *testing.T) {
	t.Setenv("FRAMERELAY_STREAM_TICK_HZ", "120")
	m, _ := newTestManager(t)

	if got := m.Get().Stream.TickHz; got != 120 {
		t.Errorf("tick_hz = %d, want 120", got)
	}
}

func TestSetValue_PersistsAndValidates(t *testing.T) {
	m, path := newTestManager(t)

	if err := m.SetValue("stream.framerate", "15"); err != nil {
		t.Fatalf("SetValue() error: %v", err)
	}
	if err := m.SetValue("source.window_id", "0x400007"); err != nil {
		t.Fatalf("SetValue(window_id) error: %v", err)
	}

	reloaded, err := NewManager(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	cfg := reloaded.Get()
	if cfg.Stream.Framerate != 15 {
		t.Errorf("framerate = %d after reload", cfg.Stream.Framerate)
	}
	if cfg.Source.WindowID != 0x400007 {
		t.Errorf("window_id = %#x after reload", cfg.Source.WindowID)
	}

	if err := m.SetValue("server_port", "abc"); err == nil {
		t.Errorf("non-numeric port accepted")
	}
	if err := m.SetValue("source.kind", "wayland"); err == nil {
		t.Errorf("invalid source kind accepted")
	}
	if got := m.Get().Source.Kind; got != SourcePattern {
		t.Errorf("rejected value kept: %q", got)
	}
	if err := m.SetValue("nope", "1"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("SetValue(unknown) = %v, want ErrUnknownKey", err)
	}
}

func TestLookup(t *testing.T) {
	m, _ := newTestManager(t)

	v, err := m.Lookup("server_port")
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if v != 8080 {
		t.Errorf("server_port = %v", v)
	}
	if _, err := m.Lookup("missing"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Lookup(missing) = %v", err)
	}
}

func TestBindFlags_OnlyExplicitFlagsOverride(t *testing.T) {
	m, _ := newTestManager(t)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	flags.String("log-level", "", "")
	if err := flags.Parse([]string{"--port", "9999"}); err != nil {
		t.Fatal(err)
	}
	if err := m.BindFlags(flags); err != nil {
		t.Fatalf("BindFlags() error: %v", err)
	}

	cfg := m.Get()
	if cfg.ServerPort != 9999 {
		t.Errorf("port = %d, want 9999", cfg.ServerPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log_level = %q, want default", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad port", func(c *Config) { c.ServerPort = 70000 }, false},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, false},
		{"bad kind", func(c *Config) { c.Source.Kind = "" }, false},
		{"bad quality", func(c *Config) { c.Stream.JPEGQuality = 101 }, false},
		{"x11", func(c *Config) { c.Source.Kind = SourceX11 }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			if err := cfg.Validate(); (err == nil) != tc.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}
