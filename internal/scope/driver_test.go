package scope

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"micscope/internal/dsp"
	"micscope/internal/metrics"
	"micscope/internal/transport"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

const testChunk = 256

var errDevice = errors.New("device unplugged")

// fakeSource returns all-zero chunks.
type fakeSource struct {
	reads     atomic.Int64
	closes    atomic.Int64
	reading   atomic.Bool
	failAt    int64         // 1-based read that fails; 0 never
	delay     time.Duration // per read
	overflows uint64

	readDuringClose atomic.Bool
	readAfterClose  atomic.Bool
}

func (f *fakeSource) ReadChunk(dst []byte) error {
	f.reading.Store(true)
	defer f.reading.Store(false)
	if f.closes.Load() > 0 {
		f.readAfterClose.Store(true)
	}
	n := f.reads.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if n == f.failAt {
		return errDevice
	}
	clear(dst)
	return nil
}

func (f *fakeSource) Close() error {
	if f.reading.Load() {
		f.readDuringClose.Store(true)
	}
	f.closes.Add(1)
	return nil
}

func (f *fakeSource) Overflows() uint64 { return f.overflows }

// fakeRenderer clicks on the clickAt-th Present, the way a real surface
// dispatches a queued press.
type fakeRenderer struct {
	ctrl     *Controller
	clickAt  int
	updates  int
	presents int
}

func (r *fakeRenderer) Update(waveform []uint8, spectrum []float64) {
	if len(waveform) != testChunk || len(spectrum) != testChunk {
		panic("unexpected frame size")
	}
	r.updates++
}

func (r *fakeRenderer) Present() {
	r.presents++
	if r.presents == r.clickAt {
		r.ctrl.OnClick()
	}
}

type fakeTransport struct {
	seqs []uint64
	err  error
}

func (t *fakeTransport) Send(frame *transport.Frame) error {
	t.seqs = append(t.seqs, frame.Seq)
	return t.err
}

func (t *fakeTransport) Close() error { return nil }

type fakeRecorder struct {
	chunks int
	failAt int
}

func (r *fakeRecorder) WriteChunk(raw []byte) error {
	r.chunks++
	if r.chunks == r.failAt {
		return errors.New("disk full")
	}
	return nil
}

// stepClock advances by step on every call.
func stepClock(step time.Duration) func() time.Time {
	t := time.Unix(0, 0)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

type fixture struct {
	source   *fakeSource
	renderer *fakeRenderer
	ctrl     *Controller
	out      *bytes.Buffer
	opts     Options
}

func newFixture(t *testing.T, clickAt int) *fixture {
	t.Helper()
	proc, err := dsp.NewProcessor(testChunk, 44100)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	ctrl := NewController()
	f := &fixture{
		source:   &fakeSource{},
		renderer: &fakeRenderer{ctrl: ctrl, clickAt: clickAt},
		ctrl:     ctrl,
		out:      &bytes.Buffer{},
	}
	f.opts = Options{
		Source:     f.source,
		Processor:  proc,
		Renderer:   f.renderer,
		Controller: ctrl,
		Output:     f.out,
		Now:        stepClock(time.Millisecond),
	}
	return f
}

func (f *fixture) run(t *testing.T) (Report, error) {
	t.Helper()
	d, err := NewDriver(f.opts)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	report, err := d.Run(context.Background())
	if d.State() != StateClosed {
		t.Errorf("State() = %v, want Closed", d.State())
	}
	return report, err
}

func TestFrameRate(t *testing.T) {
	tests := []struct {
		frames  uint64
		elapsed time.Duration
		want    float64
	}{
		{100, 10 * time.Second, 10},
		{0, time.Second, 0},
		{30, 500 * time.Millisecond, 60},
		{5, 0, 0},
		{5, -time.Second, 0},
	}
	for _, tt := range tests {
		got := FrameRate(tt.frames, tt.elapsed)
		if got != tt.want {
			t.Errorf("FrameRate(%d, %v) = %v, want %v", tt.frames, tt.elapsed, got, tt.want)
		}
		if got < 0 {
			t.Errorf("FrameRate(%d, %v) is negative", tt.frames, tt.elapsed)
		}
	}
}

func TestDriverEndToEnd(t *testing.T) {
	f := newFixture(t, 5)
	report, err := f.run(t)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Frames < 5 || report.Frames > 6 {
		t.Errorf("Frames = %d, want 5 or 6", report.Frames)
	}
	if reads := f.source.reads.Load(); reads > 6 {
		t.Errorf("reads = %d, want at most 6", reads)
	}
	if closes := f.source.closes.Load(); closes != 1 {
		t.Errorf("closes = %d, want 1", closes)
	}
	if report.Elapsed <= 0 || report.Rate <= 0 {
		t.Errorf("Elapsed = %v, Rate = %v", report.Elapsed, report.Rate)
	}

	want := regexp.MustCompile(`^Stream Started\naverage frame rate = \d+ FPS\nStream Closed\n$`)
	if !want.MatchString(f.out.String()) {
		t.Errorf("output = %q", f.out.String())
	}
}

func TestCancellationLatency(t *testing.T) {
	for _, clickAt := range []int{1, 2, 7, 20} {
		f := newFixture(t, clickAt)
		report, err := f.run(t)
		if err != nil {
			t.Fatalf("clickAt %d: Run: %v", clickAt, err)
		}
		if reads := f.source.reads.Load(); reads > int64(clickAt)+1 {
			t.Errorf("clickAt %d: %d reads, want at most %d", clickAt, reads, clickAt+1)
		}
		if report.Frames < uint64(clickAt) {
			t.Errorf("clickAt %d: %d frames", clickAt, report.Frames)
		}
	}
}

func TestDriverReadFailure(t *testing.T) {
	f := newFixture(t, 100)
	f.source.failAt = 3

	report, err := f.run(t)
	if !errors.Is(err, errDevice) {
		t.Fatalf("err = %v, want %v", err, errDevice)
	}
	if report.Frames != 2 {
		t.Errorf("Frames = %d, want 2", report.Frames)
	}
	if f.source.closes.Load() != 1 {
		t.Errorf("closes = %d, want 1", f.source.closes.Load())
	}
	out := f.out.String()
	if strings.Contains(out, "average frame rate") {
		t.Errorf("rate reported after failure: %q", out)
	}
	if !strings.HasSuffix(out, "Stream Closed\n") {
		t.Errorf("output = %q", out)
	}
}

func TestDriverRecorder(t *testing.T) {
	t.Run("records every chunk", func(t *testing.T) {
		f := newFixture(t, 4)
		rec := &fakeRecorder{}
		f.opts.Recorder = rec
		report, err := f.run(t)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if uint64(rec.chunks) != report.Frames {
			t.Errorf("recorded %d chunks for %d frames", rec.chunks, report.Frames)
		}
	})

	t.Run("write failure ends the run", func(t *testing.T) {
		f := newFixture(t, 100)
		f.opts.Recorder = &fakeRecorder{failAt: 2}
		_, err := f.run(t)
		if err == nil || !strings.Contains(err.Error(), "disk full") {
			t.Fatalf("err = %v", err)
		}
		if f.source.closes.Load() != 1 {
			t.Errorf("closes = %d, want 1", f.source.closes.Load())
		}
	})
}

func TestDriverSinks(t *testing.T) {
	f := newFixture(t, 3)
	good := &fakeTransport{}
	bad := &fakeTransport{err: errors.New("no route")}
	f.opts.Sinks = []Sink{{Name: "good", Transport: good}, {Name: "bad", Transport: bad}}
	m := metrics.NewMetrics()
	f.opts.Metrics = m

	report, err := f.run(t)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(good.seqs) != 3 || good.seqs[0] != 1 || good.seqs[2] != 3 {
		t.Errorf("good sink seqs = %v, want [1 2 3]", good.seqs)
	}
	if len(bad.seqs) != 3 {
		t.Errorf("failing sink stopped receiving: %v", bad.seqs)
	}
	if report.SinkErrors != 3 {
		t.Errorf("SinkErrors = %d, want 3", report.SinkErrors)
	}
	if got := testutil.ToFloat64(m.SinkErrors.WithLabelValues("bad")); got != 3 {
		t.Errorf("bad sink metric = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.FramesProcessed); got != float64(report.Frames) {
		t.Errorf("frames metric = %v, want %d", got, report.Frames)
	}
}

func TestDriverRunTwice(t *testing.T) {
	f := newFixture(t, 1)
	d, err := NewDriver(f.opts)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := d.Run(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("second Run err = %v, want ErrClosed", err)
	}
	if f.source.closes.Load() != 1 {
		t.Errorf("closes = %d, want 1", f.source.closes.Load())
	}
}

func TestDriverContextCancelled(t *testing.T) {
	f := newFixture(t, 0)
	f.source.overflows = 4
	d, err := NewDriver(f.opts)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Frames != 0 || report.Rate != 0 {
		t.Errorf("report = %+v, want no frames", report)
	}
	if report.Overflows != 4 {
		t.Errorf("Overflows = %d, want 4", report.Overflows)
	}
	if f.source.closes.Load() != 1 {
		t.Errorf("closes = %d, want 1", f.source.closes.Load())
	}
}

func TestNewDriverValidation(t *testing.T) {
	f := newFixture(t, 1)
	tests := []struct {
		name   string
		mutate func(o *Options)
	}{
		{"no source", func(o *Options) { o.Source = nil }},
		{"no processor", func(o *Options) { o.Processor = nil }},
		{"no renderer", func(o *Options) { o.Renderer = nil }},
		{"no controller", func(o *Options) { o.Controller = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := f.opts
			tt.mutate(&opts)
			if _, err := NewDriver(opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDriverPipelined(t *testing.T) {
	f := newFixture(t, 5)
	f.opts.Pipelined = true
	f.opts.Now = time.Now
	f.source.delay = time.Millisecond

	report, err := f.run(t)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Frames != 5 {
		t.Errorf("Frames = %d, want 5", report.Frames)
	}
	if f.source.closes.Load() != 1 {
		t.Errorf("closes = %d, want 1", f.source.closes.Load())
	}
	if f.source.readDuringClose.Load() || f.source.readAfterClose.Load() {
		t.Error("source closed while the capture goroutine was still reading")
	}
	if !strings.Contains(f.out.String(), "average frame rate") {
		t.Errorf("output = %q", f.out.String())
	}
}

func TestDriverPipelinedReadFailure(t *testing.T) {
	f := newFixture(t, 1000)
	f.opts.Pipelined = true
	f.source.failAt = 4

	_, err := f.run(t)
	if !errors.Is(err, errDevice) {
		t.Fatalf("err = %v, want %v", err, errDevice)
	}
	if f.source.closes.Load() != 1 {
		t.Errorf("closes = %d, want 1", f.source.closes.Load())
	}
}

func TestControllerTransitionsOnce(t *testing.T) {
	c := NewController()
	if c.Cancelled() {
		t.Fatal("new controller is cancelled")
	}
	c.OnClick()
	c.OnClick()
	c.Cancel()
	if !c.Cancelled() {
		t.Error("controller not cancelled after click")
	}
}
