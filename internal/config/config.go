package config

import "time"

// Stream constants. These are fixed for the lifetime of a stream and are not
// exposed through the YAML file or the command line.
const (
	SampleRate     = 44100 // Samples per second
	Channels       = 1     // Mono microphone input
	ChunkSize      = 2048  // Frames per read (power of 2)
	BytesPerSample = 2     // int16 capture format
)

// Defaults applied before a config file, environment or flags are read.
const (
	DefaultDeviceID          = MinDeviceID // System default input device
	DefaultLogLevel          = "info"
	DefaultLowLatency        = false
	DefaultPipelined         = false // Single goroutine read/transform/render loop
	DefaultHeadless          = false
	DefaultRecordInputStream = false
	DefaultOutputDir         = "./recordings"
	DefaultWebSocketAddress  = ":8080"
	DefaultUDPTargetAddress  = "127.0.0.1:9090"
	DefaultUDPSendInterval   = 33 * time.Millisecond // ~30Hz
	DefaultWebSocketInterval = 33 * time.Millisecond // Broadcast at most ~30Hz
	DefaultLogMaxSizeMB      = 10
	DefaultLogMaxBackups     = 3
	DefaultLogMaxAgeDays     = 28

	MinDeviceID = -1 // -1 represents system default device
)

// NewConfig returns a Config populated with the built-in defaults.
func NewConfig() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Logging: LoggingConfig{
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
		},
		Audio: AudioConfig{
			InputDevice: DefaultDeviceID,
			LowLatency:  DefaultLowLatency,
			Pipelined:   DefaultPipelined,
			Headless:    DefaultHeadless,
		},
		Recording: RecordingConfig{
			Enabled:   DefaultRecordInputStream,
			OutputDir: DefaultOutputDir,
		},
		Transport: TransportConfig{
			WebSocketAddress: DefaultWebSocketAddress,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
	}
}
