package transport

import (
	applog "micscope/internal/log"
)

// LoggingTransport writes a one-line summary of each frame at debug level.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the frame's waveform range and strongest non-DC bin.
func (lt *LoggingTransport) Send(frame *Frame) error {
	if applog.GetLevel() > applog.LevelDebug {
		return nil
	}

	var lo, hi uint8 = 255, 0
	for _, v := range frame.Waveform {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	peak := 0
	for k := 1; k < len(frame.Spectrum); k++ {
		if frame.Spectrum[k] > frame.Spectrum[peak] || peak == 0 {
			peak = k
		}
	}
	var peakMag float64
	if peak < len(frame.Spectrum) {
		peakMag = frame.Spectrum[peak]
	}

	applog.Debugf("LOG_TRANSPORT: frame %d waveform [%d,%d] peak bin %d (%.4f)", frame.Seq, lo, hi, peak, peakMag)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("LOG_TRANSPORT: Close called.")
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
