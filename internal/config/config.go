// SPDX-License-Identifier: MIT
//
// Package config loads the YAML configuration shared by the server and
// client commands. Values come from built-in defaults, then the file, then
// ENV_* overrides; command line flags are applied last by the caller.
package config

import (
	"bbbtune/internal/analysis"
	"bbbtune/internal/discovery"
	"bbbtune/internal/errs"
	"bbbtune/internal/log"
	"bbbtune/pkg/bitint"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Audio source kinds.
const (
	SourceTone    = "tone"
	SourceWAV     = "wav"
	SourceCapture = "capture"
)

// Hardware and processing limits.
const (
	MinSampleRate   = 8000
	MaxSampleRate   = 192000
	MaxBufferFrames = 8192
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug logging regardless of log_level.
	LogLevel  string          `yaml:"log_level"` // Logging level ("debug", "info", "warn", "error").
	Audio     AudioConfig     `yaml:"audio"`     // Server audio source.
	Server    ServerConfig    `yaml:"server"`    // Server HTTP/WebSocket endpoint and motor pipeline.
	Client    ClientConfig    `yaml:"client"`    // Client connection and display.
	Discovery DiscoveryConfig `yaml:"discovery"` // Multicast advertisement and listening.
	MQTT      MQTTConfig      `yaml:"mqtt"`      // Optional MQTT mirror (server).
}

// AudioConfig holds settings for the stream the server analyses and sends.
type AudioConfig struct {
	Source          string  `yaml:"source"`            // "tone", "wav" or "capture".
	File            string  `yaml:"file"`              // WAV file for the "wav" source, played in a loop.
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for capture (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz for tone and capture sources.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Samples per streamed chunk.
	ToneFrequency   float64 `yaml:"tone_frequency"`    // Carrier of the synthetic tone in Hz.
	ToneModulation  float64 `yaml:"tone_modulation"`   // Envelope rate of the synthetic tone in Hz.
	GateEnabled     bool    `yaml:"gate_enabled"`      // Silence chunks below gate_threshold.
	GateThreshold   float64 `yaml:"gate_threshold"`    // Gate threshold, 0..1 of full scale.
}

// ServerConfig holds settings for the device side.
type ServerConfig struct {
	Address    string `yaml:"address"`     // Listen address for /params, /ws and /metrics.
	SendBuffer int    `yaml:"send_buffer"` // Per-peer queue length before messages are dropped.
	Motor      bool   `yaml:"motor"`       // Run the mouth/body trigger pipeline.
	Advertise  bool   `yaml:"advertise"`   // Send discovery beacons.
}

// ClientConfig holds settings for the tuning side.
type ClientConfig struct {
	ServerAddress  string        `yaml:"server_address"`  // host:port of the server; empty waits for a beacon.
	Discover       bool          `yaml:"discover"`        // Listen for beacons while disconnected.
	DisplaySize    int           `yaml:"display_size"`    // Spectrum analysis window in samples (power of two).
	Smoothing      float64       `yaml:"smoothing"`       // Exponential smoothing factor in (0, 1].
	RenderInterval time.Duration `yaml:"render_interval"` // Minimum time between spectrum updates.
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`   // Timeout of the GET /params snapshot request.
	FeedAddress    string        `yaml:"feed_address"`    // Listen address of the /spectrum feed; empty disables it.
	RecordFile     string        `yaml:"record_file"`     // Record the received stream to this WAV file.
}

// DiscoveryConfig holds the multicast beacon settings.
type DiscoveryConfig struct {
	Group    string        `yaml:"group"`    // IPv4 multicast group.
	Port     int           `yaml:"port"`     // UDP port of the group.
	TTL      int           `yaml:"ttl"`      // Multicast TTL of beacons.
	Interval time.Duration `yaml:"interval"` // Time between beacons.
}

// MQTTConfig holds the broker settings of the parameter mirror.
type MQTTConfig struct {
	Enabled        bool          `yaml:"enabled"`         // Enable/disable the mirror.
	Broker         string        `yaml:"broker"`          // Broker URL (e.g., tcp://mqtt.local:1883).
	Username       string        `yaml:"username"`        // Authentication username.
	Password       string        `yaml:"password"`        // Authentication password.
	TopicPrefix    string        `yaml:"topic_prefix"`    // Topic prefix for params and levels.
	QoS            byte          `yaml:"qos"`             // Quality of Service level (0, 1, or 2).
	LevelsInterval time.Duration `yaml:"levels_interval"` // Minimum time between levels messages.
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			Source:          SourceTone,
			InputDevice:     -1, // -1 for default device.
			SampleRate:      44100,
			FramesPerBuffer: 1024,
			ToneFrequency:   220,
			ToneModulation:  0.5,
			GateThreshold:   0.001,
		},
		Server: ServerConfig{
			Address:    ":3000",
			SendBuffer: 64,
			Motor:      true,
			Advertise:  true,
		},
		Client: ClientConfig{
			Discover:       true,
			DisplaySize:    analysis.DefaultDisplaySize,
			Smoothing:      analysis.DefaultSmoothing,
			RenderInterval: 50 * time.Millisecond,
			FetchTimeout:   5 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Group:    discovery.DefaultGroup,
			Port:     discovery.DefaultPort,
			TTL:      discovery.DefaultTTL,
			Interval: discovery.DefaultInterval,
		},
		MQTT: MQTTConfig{
			TopicPrefix:    "bbbtune",
			LevelsInterval: time.Second,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml", "bbbtune.yaml"). If no file is found, it
// uses built-in defaults. After loading defaults or from file, it applies environment
// variable overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range []string{"config.yaml", "bbbtune.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		log.Debugf("configuration: loaded %s", path)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func invalid(format string, v ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, v...), errs.ErrInvalidArgument)
}

// Validate checks every section. Sections that are disabled are still
// checked so a bad value is reported before it is switched on.
func (c *Config) Validate() error {
	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return invalid("log_level %q unknown", c.LogLevel)
	}

	// Audio
	a := c.Audio
	switch a.Source {
	case SourceTone, SourceCapture:
	case SourceWAV:
		if a.File == "" {
			return invalid("audio.file must be set for the wav source")
		}
	default:
		return invalid("audio.source %q must be tone, wav or capture", a.Source)
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return invalid("audio.sample_rate %.0f outside %d..%d", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		return invalid("audio.frames_per_buffer %d outside 1..%d", a.FramesPerBuffer, MaxBufferFrames)
	}
	if a.GateThreshold < 0 || a.GateThreshold > 1 {
		return invalid("audio.gate_threshold %v outside 0..1", a.GateThreshold)
	}

	// Server
	if _, _, err := net.SplitHostPort(c.Server.Address); err != nil {
		return invalid("server.address %q: %v", c.Server.Address, err)
	}
	if c.Server.SendBuffer <= 0 {
		return invalid("server.send_buffer must be positive")
	}

	// Client
	cl := c.Client
	if cl.ServerAddress != "" {
		if _, _, err := net.SplitHostPort(cl.ServerAddress); err != nil {
			return invalid("client.server_address %q: %v", cl.ServerAddress, err)
		}
	}
	if !bitint.IsPowerOfTwo(cl.DisplaySize) {
		return invalid("client.display_size %d must be a power of two", cl.DisplaySize)
	}
	if !(cl.Smoothing > 0 && cl.Smoothing <= 1) {
		return invalid("client.smoothing %v outside (0, 1]", cl.Smoothing)
	}
	if cl.RenderInterval <= 0 || cl.FetchTimeout <= 0 {
		return invalid("client intervals must be positive")
	}

	// Discovery
	d := c.Discovery
	if ip := net.ParseIP(d.Group); ip == nil || ip.To4() == nil || !ip.IsMulticast() {
		return invalid("discovery.group %q is not an IPv4 multicast address", d.Group)
	}
	if d.Port <= 0 || d.Port > 65535 {
		return invalid("discovery.port %d outside 1..65535", d.Port)
	}
	if d.TTL < 1 || d.TTL > 255 {
		return invalid("discovery.ttl %d outside 1..255", d.TTL)
	}
	if d.Interval <= 0 {
		return invalid("discovery.interval must be positive")
	}

	// MQTT
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return invalid("mqtt.broker must be set when MQTT is enabled")
	}
	if c.MQTT.QoS > 2 {
		return invalid("mqtt.qos %d outside 0..2", c.MQTT.QoS)
	}
	return nil
}

// Level resolves the effective log level; debug wins over log_level.
func (c *Config) Level() log.LogLevel {
	if c.Debug {
		return log.LevelDebug
	}
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}

// applyEnvOverrides reads the ENV_* variables. Unparseable values are
// ignored with a warning.
func (c *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
			log.Infof("configuration: overriding debug from env: %v", bVal)
		} else {
			log.Warnf("configuration: ignoring ENV_DEBUG=%q", val)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		log.Infof("configuration: overriding log_level from env: %s", val)
	}
	// ENV_SERVER_ADDRESS
	if val, ok := os.LookupEnv("ENV_SERVER_ADDRESS"); ok {
		c.Client.ServerAddress = val
		log.Infof("configuration: overriding client.server_address from env: %s", val)
	}
	// ENV_DISCOVERY_INTERVAL
	if val, ok := os.LookupEnv("ENV_DISCOVERY_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Discovery.Interval = dur
			log.Infof("configuration: overriding discovery.interval from env: %s", dur)
		} else {
			log.Warnf("configuration: ignoring ENV_DISCOVERY_INTERVAL=%q", val)
		}
	}
	// ENV_MQTT_BROKER
	if val, ok := os.LookupEnv("ENV_MQTT_BROKER"); ok {
		c.MQTT.Broker = val
		c.MQTT.Enabled = val != ""
		log.Infof("configuration: overriding mqtt.broker from env: %s", val)
	}
}
