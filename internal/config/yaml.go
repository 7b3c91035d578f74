// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`             // Enable debug logging.
	LogLevel  string          `yaml:"log_level"`         // Logging level (e.g., "debug", "info", "warn", "error").
	Command   string          `yaml:"command,omitempty"` // A one-off command to run instead of the scope (e.g., "list").
	Logging   LoggingConfig   `yaml:"logging"`           // Log file settings.
	Audio     AudioConfig     `yaml:"audio"`             // Capture and pipeline settings.
	Recording RecordingConfig `yaml:"recording"`         // Raw stream recording settings.
	Transport TransportConfig `yaml:"transport"`         // Live frame export settings.
	Metrics   MetricsConfig   `yaml:"metrics"`           // Prometheus metrics settings.
}

// LoggingConfig controls where log output goes. An empty File keeps stderr.
type LoggingConfig struct {
	File       string `yaml:"file"`         // Log file path, rotated by size.
	MaxSizeMB  int    `yaml:"max_size_mb"`  // Size in megabytes before rotation.
	MaxBackups int    `yaml:"max_backups"`  // Rotated files to keep.
	MaxAgeDays int    `yaml:"max_age_days"` // Days to keep rotated files.
}

// AudioConfig holds the device and pipeline settings. Sample rate, channel
// count and chunk size are fixed constants and cannot be set here.
type AudioConfig struct {
	InputDevice int  `yaml:"input_device"` // PortAudio device index (-1 for default).
	LowLatency  bool `yaml:"low_latency"`  // Request low latency settings from PortAudio.
	Pipelined   bool `yaml:"pipelined"`    // Run capture on its own goroutine.
	Headless    bool `yaml:"headless"`     // No terminal surface; stop with SIGINT/SIGTERM.
}

// RecordingConfig holds settings for recording the raw capture stream.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Record the capture stream to a WAV file.
	OutputDir string `yaml:"output_dir"` // Directory for recorded files.
}

// TransportConfig holds settings for sending processed frames over the network.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Broadcast frames to websocket clients.
	WebSocketAddress string        `yaml:"websocket_address"`  // Listen address for the websocket server.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Send spectrum packets over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address for UDP packets.
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
	LogFrames        bool          `yaml:"log_frames"`         // Log a summary of each frame at debug level.
}

// MetricsConfig enables the /metrics endpoint on the websocket HTTP server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoadConfig loads configuration from a YAML file specified by path. If path is
// empty it looks for "config.yaml" in the working directory and falls back to
// built-in defaults. Environment overrides are applied last, then the result is
// validated.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		if _, err := os.Stat("config.yaml"); err != nil {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks settings that would otherwise fail late, after the device
// has been opened.
func (c *Config) Validate() error {
	if c.Audio.InputDevice < MinDeviceID {
		return fmt.Errorf("audio.input_device must be >= %d, got %d", MinDeviceID, c.Audio.InputDevice)
	}
	if c.Recording.Enabled && c.Recording.OutputDir == "" {
		return errors.New("recording.output_dir must be set when recording is enabled")
	}
	if c.Transport.WebSocketEnabled || c.Metrics.Enabled {
		if c.Transport.WebSocketAddress == "" {
			return errors.New("transport.websocket_address must be set when websocket or metrics are enabled")
		}
	}
	if c.Transport.UDPEnabled {
		if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			return fmt.Errorf("transport.udp_target_address '%s' appears invalid (missing port?)", c.Transport.UDPTargetAddress)
		}
		if c.Transport.UDPSendInterval <= 0 {
			return errors.New("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if c.Logging.File != "" && c.Logging.MaxSizeMB <= 0 {
		return errors.New("logging.max_size_mb must be positive when logging.file is set")
	}
	return nil
}

// applyEnvOverrides reads ENV_* variables on top of file values.
func (c *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok && val != "" {
		c.LogLevel = val
	}
	// ENV_LOG_FILE
	if val, ok := os.LookupEnv("ENV_LOG_FILE"); ok {
		c.Logging.File = val
	}

	// ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = bVal
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
		}
	}
	// ENV_WS_ADDRESS
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		c.Transport.WebSocketAddress = val
	}
}

// EffectiveLogLevel returns "debug" when Debug is set, otherwise LogLevel.
func (c *Config) EffectiveLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}
