// SPDX-License-Identifier: MIT
package config

import (
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
	if cfg.Audio.InputDevice != DefaultDeviceID {
		t.Errorf("InputDevice = %d, want %d", cfg.Audio.InputDevice, DefaultDeviceID)
	}
	if cfg.Transport.UDPSendInterval != DefaultUDPSendInterval {
		t.Errorf("UDPSendInterval = %s, want %s", cfg.Transport.UDPSendInterval, DefaultUDPSendInterval)
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

func TestLoadConfig_FileValues(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: warn
audio:
  input_device: 3
  pipelined: true
transport:
  udp_enabled: true
  udp_target_address: "10.0.0.2:7000"
  udp_send_interval: 50ms
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.Audio.InputDevice != 3 || !cfg.Audio.Pipelined {
		t.Errorf("Audio = %+v, want device 3 pipelined", cfg.Audio)
	}
	if cfg.Transport.UDPSendInterval != 50*time.Millisecond {
		t.Errorf("UDPSendInterval = %s, want 50ms", cfg.Transport.UDPSendInterval)
	}
	// Unset sections keep their defaults.
	if cfg.Recording.OutputDir != DefaultOutputDir {
		t.Errorf("OutputDir = %q, want %q", cfg.Recording.OutputDir, DefaultOutputDir)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeTempConfig(t, "transport:\n  udp_enabled: false\n")
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "192.168.1.5:9999")
	t.Setenv("ENV_DEBUG", "true")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Transport.UDPEnabled {
		t.Error("expected ENV_UDP_ENABLED to enable UDP")
	}
	if cfg.Transport.UDPTargetAddress != "192.168.1.5:9999" {
		t.Errorf("UDPTargetAddress = %q", cfg.Transport.UDPTargetAddress)
	}
	if cfg.EffectiveLogLevel() != "debug" {
		t.Errorf("EffectiveLogLevel = %q, want debug", cfg.EffectiveLogLevel())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		desc          string
		mutate        func(*Config)
		errorContains string
	}{
		{"defaults", func(*Config) {}, ""},
		{"device below default", func(c *Config) { c.Audio.InputDevice = -2 }, "input_device"},
		{"recording without dir", func(c *Config) {
			c.Recording.Enabled = true
			c.Recording.OutputDir = ""
		}, "output_dir"},
		{"udp without port", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = "localhost"
		}, "missing port"},
		{"udp zero interval", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPSendInterval = 0
		}, "udp_send_interval"},
		{"metrics without address", func(c *Config) {
			c.Metrics.Enabled = true
			c.Transport.WebSocketAddress = ""
		}, "websocket_address"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorContains == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("error %v does not contain %q", err, tt.errorContains)
			}
		})
	}
}
