package cmd

import (
	"micscope/internal/config"
	"micscope/pkg/build"

	"github.com/spf13/cobra"
)

// One-off commands reported through config.Config.Command.
const (
	CommandList      = "list"       // Interactive device browser
	CommandListPlain = "list-plain" // Plain text device list
)

// ParseArgs builds the configuration from the config file, the environment
// and the command line, in that order of precedence (flags win). It returns a
// nil config when nothing should run (--help, --version).
func ParseArgs(args []string) (*config.Config, error) {
	buildInfo := build.GetBuildFlags()

	var (
		options    *config.Config
		configPath string
		plain      bool
		flagValues = config.NewConfig()
	)

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Long:          buildInfo.Description + ".\n\nClick anywhere on the scope to stop and print the average frame rate.",
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, flagValues)
			if err := cfg.Validate(); err != nil {
				return err
			}
			options = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Browse available input devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandList
			if plain {
				options.Command = CommandListPlain
			}
			return nil
		},
	}
	listCmd.Flags().BoolVar(&plain, "plain", false, "Print the device list instead of opening the browser")
	rootCmd.AddCommand(listCmd)

	flags := rootCmd.PersistentFlags()

	// Configuration file
	flags.StringVar(&configPath, "config", "",
		"Path to a YAML config file (default: ./config.yaml if present)")

	// Audio Device Configuration
	flags.IntVarP(&flagValues.Audio.InputDevice, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	flags.BoolVarP(&flagValues.Audio.LowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use the device's low input latency")
	flags.BoolVarP(&flagValues.Audio.Pipelined, "pipelined", "p", config.DefaultPipelined,
		"Capture on a separate goroutine, rendering only the newest chunk")
	flags.BoolVar(&flagValues.Audio.Headless, "headless", config.DefaultHeadless,
		"Run without the terminal scope; stop with Ctrl+C")

	// Recording Configuration
	flags.BoolVarP(&flagValues.Recording.Enabled, "record", "r", config.DefaultRecordInputStream,
		"Record the capture stream to a WAV file")
	flags.StringVarP(&flagValues.Recording.OutputDir, "output-dir", "o", config.DefaultOutputDir,
		"Directory for recordings (recording-DD-MM-YYYY-HHMMSS.wav)")

	// Transport Configuration
	flags.BoolVar(&flagValues.Transport.WebSocketEnabled, "ws", false,
		"Broadcast frames to websocket clients on /ws")
	flags.StringVar(&flagValues.Transport.WebSocketAddress, "ws-addr", config.DefaultWebSocketAddress,
		"Listen address for the websocket and metrics server")
	flags.BoolVar(&flagValues.Transport.UDPEnabled, "udp", false,
		"Send spectrum packets over UDP")
	flags.StringVar(&flagValues.Transport.UDPTargetAddress, "udp-target", config.DefaultUDPTargetAddress,
		"Target address for UDP spectrum packets")
	flags.BoolVar(&flagValues.Metrics.Enabled, "metrics", false,
		"Serve Prometheus metrics on /metrics")

	// Debug Configuration
	flags.BoolVarP(&flagValues.Debug, "verbose", "v", false,
		"Show verbose output")
	flags.StringVar(&flagValues.Logging.File, "log-file", "",
		"Write logs to a rotated file instead of stderr")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return options, nil
}

// applyFlags copies every flag the user set explicitly onto cfg.
func applyFlags(cmd *cobra.Command, cfg, values *config.Config) {
	changed := cmd.Flags().Changed
	set := func(name string, apply func()) {
		if changed(name) {
			apply()
		}
	}

	set("device", func() { cfg.Audio.InputDevice = values.Audio.InputDevice })
	set("low-latency", func() { cfg.Audio.LowLatency = values.Audio.LowLatency })
	set("pipelined", func() { cfg.Audio.Pipelined = values.Audio.Pipelined })
	set("headless", func() { cfg.Audio.Headless = values.Audio.Headless })
	set("record", func() { cfg.Recording.Enabled = values.Recording.Enabled })
	set("output-dir", func() { cfg.Recording.OutputDir = values.Recording.OutputDir })
	set("ws", func() { cfg.Transport.WebSocketEnabled = values.Transport.WebSocketEnabled })
	set("ws-addr", func() { cfg.Transport.WebSocketAddress = values.Transport.WebSocketAddress })
	set("udp", func() { cfg.Transport.UDPEnabled = values.Transport.UDPEnabled })
	set("udp-target", func() { cfg.Transport.UDPTargetAddress = values.Transport.UDPTargetAddress })
	set("metrics", func() { cfg.Metrics.Enabled = values.Metrics.Enabled })
	set("verbose", func() { cfg.Debug = values.Debug })
	set("log-file", func() { cfg.Logging.File = values.Logging.File })
}
