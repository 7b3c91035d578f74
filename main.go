package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"micscope/cmd"
	"micscope/internal/audio"
	"micscope/internal/config"
	"micscope/internal/dsp"
	applog "micscope/internal/log"
	"micscope/internal/metrics"
	"micscope/internal/render"
	"micscope/internal/scope"
	"micscope/internal/transport"
	"micscope/internal/transport/udp"
	"micscope/internal/tui"
	"micscope/pkg/build"

	"github.com/gdamore/tcell/v2"
)

// main is the entry point for the scope.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and configuration
//   - Initialize PortAudio
//   - Execute one-off commands if requested
//   - Open the capture stream (fatal on failure)
//
// 2. Loop Phase (Hot Path):
//   - Read, transform and render one chunk per iteration
//   - Forward frames to the enabled transports and recorder
//   - Stop on a click (or a signal in headless mode)
//
// 3. Shutdown Phase (Cold Path):
//   - Report the average frame rate
//   - Close the stream, recording and transports
func main() {
	if err := run(); err != nil {
		applog.Fatalf("%v", err)
	}
}

func run() error {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds lack ldflags; the defaults are fine.
	if err := build.Initialize(); err != nil {
		applog.Debugf("Build: %v", err)
	}

	// One goroutine for the loop, one for I/O (transports, event polling).
	runtime.GOMAXPROCS(2)

	cfg, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		return err
	}
	if cfg == nil {
		return nil // --help or --version
	}

	if level, ok := applog.ParseLevel(cfg.EffectiveLogLevel()); ok {
		applog.SetLevel(level)
	} else {
		applog.Warnf("Unknown log level %q, using %s", cfg.EffectiveLogLevel(), applog.GetLevel())
	}
	if cfg.Logging.File != "" {
		logFile := applog.OpenFile(applog.FileOptions{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		})
		defer logFile.Close()
	}

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	// Handle one-off commands that don't open the stream
	if cfg.Command != "" {
		return executeCommand(cfg.Command)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics()
	}

	streamCfg := audio.DefaultStreamConfig()
	streamCfg.DeviceID = cfg.Audio.InputDevice
	streamCfg.LowLatency = cfg.Audio.LowLatency
	stream, err := audio.OpenStream(streamCfg, func(err error, total uint64) {
		m.RecordOverflow()
	})
	if err != nil {
		return err
	}

	proc, err := dsp.NewProcessor(config.ChunkSize, config.SampleRate)
	if err != nil {
		stream.Close()
		return err
	}

	sinks, closeSinks, err := openSinks(cfg, proc, m)
	if err != nil {
		stream.Close()
		return err
	}
	defer closeSinks()

	var recorder *audio.Recorder
	if cfg.Recording.Enabled {
		path := audio.RecordingPath(cfg.Recording.OutputDir, time.Now())
		recorder, err = audio.NewRecorder(path, config.SampleRate, config.Channels, config.ChunkSize)
		if err != nil {
			stream.Close()
			return err
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				applog.Errorf("Error closing recording: %v", err)
				return
			}
			fmt.Printf("Recording saved to: %s\n", recorder.Path())
		}()
	}

	// ==================== LOOP PHASE (Hot Path) ====================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl := scope.NewController()
	opts := scope.Options{
		Source:     stream,
		Processor:  proc,
		Controller: ctrl,
		Sinks:      sinks,
		Metrics:    m,
		Pipelined:  cfg.Audio.Pipelined,
	}
	if recorder != nil {
		opts.Recorder = recorder
	}

	// The terminal belongs to the scope while it runs; console notices and
	// log lines are held back and written once it is released.
	var console, logs lockedBuffer
	var surface *render.Scope
	if cfg.Audio.Headless {
		opts.Renderer = &render.Headless{}
		opts.Output = os.Stdout
		applog.Infof("Headless mode, press Ctrl+C to stop")
	} else {
		screen, err := tcell.NewScreen()
		if err == nil {
			surface, err = render.NewScope(screen, proc.SampleAxis(), proc.FrequencyAxis(), ctrl.OnClick)
		}
		if err != nil {
			stream.Close()
			return fmt.Errorf("failed to open terminal surface: %w", err)
		}
		opts.Renderer = surface
		opts.Output = &console
		if cfg.Logging.File == "" {
			restore := applog.Writer()
			applog.SetOutput(&logs)
			defer func() {
				applog.SetOutput(restore)
				logs.WriteTo(restore)
			}()
		}
	}

	driver, err := scope.NewDriver(opts)
	if err != nil {
		if surface != nil {
			surface.Close()
		}
		stream.Close()
		return err
	}

	report, runErr := driver.Run(ctx)

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if surface != nil {
		surface.Close()
		console.WriteTo(os.Stdout)
	}

	applog.Infof("Scope: %d frames in %s (%.1f FPS), %d overflows, %d dropped, %d sink errors",
		report.Frames, report.Elapsed.Round(time.Millisecond), report.Rate,
		report.Overflows, report.Dropped, report.SinkErrors)
	return runErr
}

// executeCommand handles one-off commands that don't require the capture
// stream, such as listing available audio devices.
func executeCommand(command string) error {
	switch command {
	case cmd.CommandListPlain:
		devices, err := audio.HostDevices()
		if err != nil {
			return err
		}
		audio.ListDevices(os.Stdout, devices)
		return nil

	case cmd.CommandList:
		id, ok, err := tui.SelectDevice(audio.HostDevices)
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("Selected device %d. Start the scope with --device %d\n", id, id)
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// openSinks creates the enabled frame transports. The returned func closes
// everything that was opened.
func openSinks(cfg *config.Config, proc *dsp.Processor, m *metrics.Metrics) ([]scope.Sink, func(), error) {
	var (
		sinks   []scope.Sink
		closers []func() error
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				applog.Warnf("Error closing transport: %v", err)
			}
		}
	}

	if cfg.Transport.WebSocketEnabled || cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		if m != nil {
			mux.Handle("/metrics", m.Handler())
		}
		ws, err := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress, mux, config.DefaultWebSocketInterval)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to start websocket server: %w", err)
		}
		closers = append(closers, ws.Close)
		if cfg.Transport.WebSocketEnabled {
			sinks = append(sinks, scope.Sink{Name: "websocket", Transport: ws})
		}
	}

	if cfg.Transport.LogFrames {
		sinks = append(sinks, scope.Sink{Name: "log", Transport: transport.NewLoggingTransport()})
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, sender.Close)

		publisher, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender, proc, proc.FrequencyForBin(1))
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		publisher.Start()
		closers = append(closers, publisher.Close)
	}

	return sinks, closeAll, nil
}

// lockedBuffer collects output from several goroutines while the terminal is
// in use.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) WriteTo(w io.Writer) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.WriteTo(w)
}
