// Package transport forwards processed scope frames to consumers outside the
// process: websocket clients, UDP listeners and the debug log.
package transport

import "time"

// Frame is one processed chunk as handed to a transport. The slices belong to
// the caller and are reused after Send returns; transports that keep data must
// copy it.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Waveform  []uint8
	Spectrum  []float64
}

// Transport sends frames somewhere. Send must not block the render loop.
type Transport interface {
	Send(frame *Frame) error
	Close() error
}

// SpectrumProvider is implemented by processors that expose their latest
// spectrum to readers on other goroutines.
type SpectrumProvider interface {
	SpectrumInto(dst []float64) error
	Bins() int
}
