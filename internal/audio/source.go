// SPDX-License-Identifier: MIT
/*
Package audio owns the capture device. A Stream is a blocking PortAudio input
stream that hands out fixed-size chunks of raw little-endian int16 bytes.

Input overflows are not read failures: the chunk is still delivered and the
overflow is counted and reported as ErrInputOverflowed to an optional handler.
*/
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"micscope/internal/config"
	applog "micscope/internal/log"

	"github.com/gordonklaus/portaudio"
)

var (
	// ErrInputOverflowed marks a read during which the device dropped input
	// because the previous chunk was not collected in time.
	ErrInputOverflowed = errors.New("audio: input overflowed")

	// ErrStreamClosed is returned by ReadChunk after Close.
	ErrStreamClosed = errors.New("audio: stream closed")
)

// Source produces fixed-size chunks of raw capture bytes.
type Source interface {
	// ReadChunk blocks until a full chunk is available and writes it to dst,
	// which must hold ChunkBytes bytes.
	ReadChunk(dst []byte) error
	Close() error
}

// StreamConfig describes the capture stream. The zero value of DeviceID is
// device 0; use config.MinDeviceID for the system default.
type StreamConfig struct {
	DeviceID       int
	SampleRate     float64
	Channels       int
	FramesPerChunk int
	LowLatency     bool
}

// DefaultStreamConfig returns the fixed scope stream parameters on the
// default input device.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		DeviceID:       config.MinDeviceID,
		SampleRate:     config.SampleRate,
		Channels:       config.Channels,
		FramesPerChunk: config.ChunkSize,
	}
}

// ChunkBytes returns the size in bytes of one chunk.
func (c StreamConfig) ChunkBytes() int {
	return c.FramesPerChunk * c.Channels * config.BytesPerSample
}

// OverflowHandler is called on the reading goroutine after a suppressed
// overflow with ErrInputOverflowed and the running overflow count.
type OverflowHandler func(err error, total uint64)

// paStream is the part of *portaudio.Stream a Stream uses.
type paStream interface {
	Start() error
	Read() error
	Stop() error
	Close() error
}

// openPAStream opens a blocking stream reading into buf; replaced in tests.
var openPAStream = func(params portaudio.StreamParameters, buf []int16) (paStream, error) {
	return portaudio.OpenStream(params, buf)
}

// Stream is a started blocking input stream.
type Stream struct {
	cfg        StreamConfig
	stream     paStream
	samples    []int16
	overflows  atomic.Uint64
	onOverflow OverflowHandler

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

// OpenStream opens and starts the capture stream. Any failure here is fatal to
// the caller; nothing is retried.
func OpenStream(cfg StreamConfig, onOverflow OverflowHandler) (*Stream, error) {
	if cfg.FramesPerChunk <= 0 || cfg.Channels <= 0 || cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid stream config: %+v", cfg)
	}

	device, err := InputDevice(cfg.DeviceID)
	if err != nil {
		return nil, err
	}

	latency := device.DefaultHighInputLatency
	if cfg.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	samples := make([]int16, cfg.FramesPerChunk*cfg.Channels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: cfg.Channels,
			Latency:  latency,
		},
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FramesPerChunk,
	}

	stream, err := openPAStream(params, samples)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream on %q: %w", device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start input stream on %q: %w", device.Name, err)
	}

	applog.Infof("Audio: Opened %q (%.0f Hz, %d ch, %d frames/chunk, latency %s)",
		device.Name, cfg.SampleRate, cfg.Channels, cfg.FramesPerChunk, latency.Round(time.Microsecond))

	return &Stream{
		cfg:        cfg,
		stream:     stream,
		samples:    samples,
		onOverflow: onOverflow,
	}, nil
}

// Config returns the stream parameters.
func (s *Stream) Config() StreamConfig {
	return s.cfg
}

// ReadChunk blocks until FramesPerChunk frames have been captured and writes
// them to dst as little-endian int16 bytes. An input overflow still yields a
// full chunk and a nil error.
func (s *Stream) ReadChunk(dst []byte) error {
	if s.closed.Load() {
		return ErrStreamClosed
	}
	if len(dst) != 2*len(s.samples) {
		return fmt.Errorf("chunk buffer has %d bytes, want %d", len(dst), 2*len(s.samples))
	}

	if err := s.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return fmt.Errorf("failed to read input stream: %w", err)
		}
		total := s.overflows.Add(1)
		applog.Debugf("Audio: %v (total %d)", ErrInputOverflowed, total)
		if s.onOverflow != nil {
			s.onOverflow(ErrInputOverflowed, total)
		}
	}

	for i, sample := range s.samples {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(sample))
	}
	return nil
}

// Overflows returns the number of suppressed input overflows.
func (s *Stream) Overflows() uint64 {
	return s.overflows.Load()
}

// Close stops and closes the device stream. Later calls return the first
// result without touching the device again.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		stopErr := s.stream.Stop()
		closeErr := s.stream.Close()
		s.closeErr = errors.Join(stopErr, closeErr)
		applog.Infof("Audio: Closed input stream (%d overflows suppressed)", s.overflows.Load())
	})
	return s.closeErr
}

var _ Source = (*Stream)(nil)
