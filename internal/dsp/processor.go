// SPDX-License-Identifier: MIT
/*
Package dsp turns one raw capture chunk into the two per-frame views drawn by
the scope: a decimated 8-bit waveform and a magnitude spectrum.

Decoding works on bytes, not on reconstructed samples. The waveform keeps the
byte at every even index (the low byte of each little-endian int16 sample),
reads it as int8 and recentres it to [0,255]. The spectrum is a real FFT over
all 2×chunk bytes read as unsigned values, so the byte stream runs at twice the
sample rate and bin k sits at k×sampleRate/chunk Hz.
*/
package dsp

import (
	"fmt"
	"math/cmplx"
	"sync"

	"micscope/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Frame is the processed output for one chunk.
type Frame struct {
	Waveform []uint8   // chunk values in [0,255]
	Spectrum []float64 // chunk non-negative magnitudes
}

type workspace struct {
	input    []float64    // raw bytes as reals, 2×chunk
	coeffs   []complex128 // FFT output, chunk+1
	waveform []uint8
	spectrum []float64
	mu       sync.RWMutex // guards spectrum for concurrent readers
}

// Processor holds the FFT plan and pre-allocated buffers for a fixed chunk size.
type Processor struct {
	chunk      int
	sampleRate float64
	norm       float64
	fft        *fourier.FFT
	workspace  workspace
}

// NewProcessor creates a processor for chunks of the given number of frames.
// chunk must be a power of 2.
func NewProcessor(chunk int, sampleRate float64) (*Processor, error) {
	if !bitint.IsPowerOfTwo(chunk) {
		return nil, fmt.Errorf("chunk size must be a power of 2, got %d", chunk)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	n := 2 * chunk
	return &Processor{
		chunk:      chunk,
		sampleRate: sampleRate,
		norm:       1.0 / float64(128*chunk),
		fft:        fourier.NewFFT(n),
		workspace: workspace{
			input:    make([]float64, n),
			coeffs:   make([]complex128, n/2+1),
			waveform: make([]uint8, chunk),
			spectrum: make([]float64, chunk),
		},
	}, nil
}

// Process decodes raw (2×chunk bytes) into a Frame. The returned slices are
// owned by the processor and overwritten by the next call. A raw slice of the
// wrong length is a programming error and panics.
func (p *Processor) Process(raw []byte) Frame {
	if len(raw) != 2*p.chunk {
		panic(fmt.Sprintf("dsp: raw chunk has %d bytes, want %d", len(raw), 2*p.chunk))
	}

	ws := &p.workspace
	for i := range p.chunk {
		ws.waveform[i] = uint8(int(int8(raw[2*i])) + 128)
	}
	for i, b := range raw {
		ws.input[i] = float64(b)
	}

	ws.mu.Lock()
	p.fft.Coefficients(ws.coeffs, ws.input)
	for k := range p.chunk {
		ws.spectrum[k] = cmplx.Abs(ws.coeffs[k]) * p.norm
	}
	ws.mu.Unlock()

	return Frame{Waveform: ws.waveform, Spectrum: ws.spectrum}
}

// SpectrumInto copies the latest spectrum into dst, which must hold Bins()
// values. Safe to call from another goroutine while Process runs.
func (p *Processor) SpectrumInto(dst []float64) error {
	p.workspace.mu.RLock()
	defer p.workspace.mu.RUnlock()

	if len(dst) != len(p.workspace.spectrum) {
		return fmt.Errorf("destination slice length %d does not match required length %d", len(dst), len(p.workspace.spectrum))
	}
	copy(dst, p.workspace.spectrum)
	return nil
}

// Bins returns the number of spectrum values per frame.
func (p *Processor) Bins() int {
	return p.chunk
}

// ChunkSize returns the number of frames per chunk.
func (p *Processor) ChunkSize() int {
	return p.chunk
}

// SampleRate returns the configured sample rate in Hz.
func (p *Processor) SampleRate() float64 {
	return p.sampleRate
}

// FrequencyForBin returns the frequency in Hz of spectrum bin k, or 0 when k
// is out of range.
func (p *Processor) FrequencyForBin(k int) float64 {
	if k < 0 || k >= p.chunk {
		return 0
	}
	return float64(k) * p.sampleRate / float64(p.chunk)
}

// SampleAxis returns the waveform x values 0, 2, ..., 2×chunk-2: the byte
// offsets of the decoded samples.
func (p *Processor) SampleAxis() []float64 {
	axis := make([]float64, p.chunk)
	for i := range axis {
		axis[i] = float64(2 * i)
	}
	return axis
}

// FrequencyAxis returns chunk points evenly spaced over [0, sampleRate].
func (p *Processor) FrequencyAxis() []float64 {
	axis := make([]float64, p.chunk)
	step := p.sampleRate / float64(p.chunk-1)
	for i := range axis {
		axis[i] = float64(i) * step
	}
	axis[p.chunk-1] = p.sampleRate
	return axis
}
