// SPDX-License-Identifier: MIT
/*
Package scope runs the capture loop: read a chunk, transform it, draw it and
check the stop flag, until a click (or a signal) stops the run.

By default everything happens on the calling goroutine. The renderer
dispatches clicks from inside Present, so the flag is set and read on that
goroutine and a stop is seen at most one cycle after the click. Pipelined mode
moves the blocking read onto its own goroutine; the two sides share a
single-slot Handoff that always holds the newest chunk.
*/
package scope

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"micscope/internal/audio"
	"micscope/internal/dsp"
	applog "micscope/internal/log"
	"micscope/internal/metrics"
	"micscope/internal/transport"

	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Run on a driver that has already run.
var ErrClosed = errors.New("scope: driver closed")

// State is the driver lifecycle stage.
type State int32

const (
	StateReady State = iota
	StateRunning
	StateStopping
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Renderer draws one frame per Present. Click handling happens inside Present.
type Renderer interface {
	Update(waveform []uint8, spectrum []float64)
	Present()
}

// Processor transforms raw chunks.
type Processor interface {
	Process(raw []byte) dsp.Frame
	ChunkSize() int
}

// ChunkWriter receives every raw chunk read from the source.
type ChunkWriter interface {
	WriteChunk(raw []byte) error
}

// Sink is a named frame transport. Send failures are logged and counted.
type Sink struct {
	Name      string
	Transport transport.Transport
}

// Options wires a Driver.
type Options struct {
	Source     audio.Source // Already open; closed by Run
	Processor  Processor
	Renderer   Renderer
	Controller *Controller

	Sinks    []Sink
	Recorder ChunkWriter // Optional; write errors end the run
	Metrics  *metrics.Metrics

	Pipelined bool
	Output    io.Writer        // Console notices; defaults to stdout
	Now       func() time.Time // Defaults to time.Now
}

// Report summarises a finished run.
type Report struct {
	Frames     uint64
	Elapsed    time.Duration
	Rate       float64 // frames per second
	Overflows  uint64
	Dropped    uint64
	SinkErrors uint64
}

// Driver owns the source for the duration of a run and closes it exactly once.
type Driver struct {
	opts  Options
	state State

	frames     uint64
	sinkErrors uint64
	dropped    uint64
	lastFrame  time.Time
	frame      transport.Frame
}

// NewDriver validates opts and returns a driver ready to Run.
func NewDriver(opts Options) (*Driver, error) {
	switch {
	case opts.Source == nil:
		return nil, errors.New("scope: source cannot be nil")
	case opts.Processor == nil:
		return nil, errors.New("scope: processor cannot be nil")
	case opts.Renderer == nil:
		return nil, errors.New("scope: renderer cannot be nil")
	case opts.Controller == nil:
		return nil, errors.New("scope: controller cannot be nil")
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Driver{opts: opts}, nil
}

// State returns the current lifecycle stage.
func (d *Driver) State() State {
	return d.state
}

// FrameRate returns frames per second over elapsed, or 0 when elapsed is not
// positive.
func FrameRate(frames uint64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(frames) / elapsed.Seconds()
}

// Run loops until the controller is cancelled or ctx is done, then reports the
// average frame rate and closes the source. A read or record failure ends
// the loop early: the error is returned, the rate report is skipped and
// the source is still closed.
func (d *Driver) Run(ctx context.Context) (Report, error) {
	if d.state != StateReady {
		return Report{}, ErrClosed
	}
	d.state = StateRunning

	fmt.Fprintln(d.opts.Output, "Stream Started")
	start := d.opts.Now()
	d.lastFrame = start

	var err error
	if d.opts.Pipelined {
		err = d.runPipelined(ctx)
	} else {
		err = d.runSequential(ctx)
	}

	report := Report{
		Frames:     d.frames,
		Dropped:    d.dropped,
		SinkErrors: d.sinkErrors,
	}
	if oc, ok := d.opts.Source.(interface{ Overflows() uint64 }); ok {
		report.Overflows = oc.Overflows()
	}

	if err == nil {
		d.state = StateStopping
		report.Elapsed = d.opts.Now().Sub(start)
		report.Rate = FrameRate(report.Frames, report.Elapsed)
		fmt.Fprintf(d.opts.Output, "average frame rate = %.0f FPS\n", report.Rate)
	} else {
		applog.Errorf("Scope: Stopped after %d frames: %v", d.frames, err)
	}

	d.state = StateClosed
	closeErr := d.opts.Source.Close()
	fmt.Fprintln(d.opts.Output, "Stream Closed")
	if closeErr != nil {
		closeErr = fmt.Errorf("failed to close audio source: %w", closeErr)
	}

	return report, errors.Join(err, closeErr)
}

func (d *Driver) runSequential(ctx context.Context) error {
	raw := make([]byte, 2*d.opts.Processor.ChunkSize())
	for ctx.Err() == nil {
		if err := d.capture(raw); err != nil {
			return err
		}
		d.renderFrame(raw)
		if d.opts.Controller.Cancelled() {
			break
		}
	}
	return nil
}

// runPipelined reads on one goroutine and renders on the other. The source is
// only closed by Run after both have returned.
func (d *Driver) runPipelined(ctx context.Context) error {
	size := 2 * d.opts.Processor.ChunkSize()
	handoff := NewHandoff(size)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer handoff.Close()
		raw := make([]byte, size)
		for !d.opts.Controller.Cancelled() && gctx.Err() == nil {
			if err := d.capture(raw); err != nil {
				return err
			}
			handoff.Put(raw)
		}
		return nil
	})

	g.Go(func() error {
		raw := make([]byte, size)
		for {
			if err := handoff.Take(gctx, raw); err != nil {
				if errors.Is(err, ErrHandoffClosed) || gctx.Err() != nil {
					return nil
				}
				return err
			}
			if dropped := handoff.Dropped(); dropped > d.dropped {
				d.opts.Metrics.RecordDropped(dropped - d.dropped)
				d.dropped = dropped
			}
			d.renderFrame(raw)
			if d.opts.Controller.Cancelled() {
				return nil
			}
		}
	})

	err := g.Wait()
	if dropped := handoff.Dropped(); dropped > d.dropped {
		d.opts.Metrics.RecordDropped(dropped - d.dropped)
		d.dropped = dropped
	}
	return err
}

// capture reads one chunk and hands it to the recorder.
func (d *Driver) capture(raw []byte) error {
	if err := d.opts.Source.ReadChunk(raw); err != nil {
		return fmt.Errorf("failed to read chunk: %w", err)
	}
	if d.opts.Recorder != nil {
		if err := d.opts.Recorder.WriteChunk(raw); err != nil {
			return fmt.Errorf("failed to record chunk: %w", err)
		}
		d.opts.Metrics.RecordChunkWritten()
	}
	return nil
}

// renderFrame transforms, draws and forwards one chunk.
func (d *Driver) renderFrame(raw []byte) {
	t0 := d.opts.Now()
	frame := d.opts.Processor.Process(raw)
	processed := d.opts.Now()

	d.opts.Renderer.Update(frame.Waveform, frame.Spectrum)
	d.opts.Renderer.Present()
	d.frames++

	if len(d.opts.Sinks) > 0 {
		d.frame.Seq = d.frames
		d.frame.Timestamp = processed
		d.frame.Waveform = frame.Waveform
		d.frame.Spectrum = frame.Spectrum
		for _, sink := range d.opts.Sinks {
			if err := sink.Transport.Send(&d.frame); err != nil {
				d.sinkErrors++
				d.opts.Metrics.RecordSinkError(sink.Name)
				applog.Warnf("Scope: %s sink failed on frame %d: %v", sink.Name, d.frames, err)
			}
		}
	}

	now := d.opts.Now()
	d.opts.Metrics.RecordFrame(now.Sub(d.lastFrame).Seconds(), processed.Sub(t0).Seconds())
	d.lastFrame = now
}
