// SPDX-License-Identifier: MIT
package config

import (
	"bbbtune/internal/errs"
	"bbbtune/internal/log"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Server.Address != ":3000" || cfg.Client.DisplaySize != 2048 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
log_level: warn
audio:
  source: wav
  file: fish.wav
client:
  server_address: 192.168.1.20:3000
  smoothing: 0.5
discovery:
  interval: 2s
mqtt:
  enabled: true
  broker: tcp://localhost:1883
  qos: 1
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Audio.Source != SourceWAV || cfg.Audio.File != "fish.wav" {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("unset sample_rate lost its default: %v", cfg.Audio.SampleRate)
	}
	if cfg.Client.ServerAddress != "192.168.1.20:3000" || cfg.Client.Smoothing != 0.5 {
		t.Errorf("client = %+v", cfg.Client)
	}
	if cfg.Discovery.Interval != 2*time.Second {
		t.Errorf("interval = %s", cfg.Discovery.Interval)
	}
	if cfg.Level() != log.LevelWarn {
		t.Errorf("Level() = %s", cfg.Level())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENV_DEBUG", "true")
	t.Setenv("ENV_SERVER_ADDRESS", "10.0.0.5:3000")
	t.Setenv("ENV_DISCOVERY_INTERVAL", "750ms")
	t.Setenv("ENV_MQTT_BROKER", "tcp://broker:1883")

	cfg, err := LoadConfig(writeTempConfig(t, "log_level: error\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Level() != log.LevelDebug {
		t.Errorf("ENV_DEBUG did not win over log_level")
	}
	if cfg.Client.ServerAddress != "10.0.0.5:3000" {
		t.Errorf("server address = %q", cfg.Client.ServerAddress)
	}
	if cfg.Discovery.Interval != 750*time.Millisecond {
		t.Errorf("interval = %s", cfg.Discovery.Interval)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"source", func(c *Config) { c.Audio.Source = "mp3" }},
		{"wav without file", func(c *Config) { c.Audio.Source = SourceWAV }},
		{"sample rate", func(c *Config) { c.Audio.SampleRate = 4000 }},
		{"frames", func(c *Config) { c.Audio.FramesPerBuffer = 0 }},
		{"gate", func(c *Config) { c.Audio.GateThreshold = 2 }},
		{"server address", func(c *Config) { c.Server.Address = "3000" }},
		{"client address", func(c *Config) { c.Client.ServerAddress = "fish" }},
		{"display size", func(c *Config) { c.Client.DisplaySize = 1000 }},
		{"smoothing zero", func(c *Config) { c.Client.Smoothing = 0 }},
		{"smoothing above one", func(c *Config) { c.Client.Smoothing = 1.5 }},
		{"render interval", func(c *Config) { c.Client.RenderInterval = 0 }},
		{"unicast group", func(c *Config) { c.Discovery.Group = "192.168.1.1" }},
		{"port", func(c *Config) { c.Discovery.Port = 70000 }},
		{"ttl", func(c *Config) { c.Discovery.TTL = 0 }},
		{"interval", func(c *Config) { c.Discovery.Interval = -time.Second }},
		{"mqtt broker", func(c *Config) { c.MQTT.Enabled = true }},
		{"mqtt qos", func(c *Config) { c.MQTT.QoS = 3 }},
	}

	def := Default()
	if err := def.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			if err := cfg.Validate(); !errors.Is(err, errs.ErrInvalidArgument) {
				t.Errorf("Validate() = %v, want ErrInvalidArgument", err)
			}
		})
	}
}
