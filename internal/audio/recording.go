package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrRecorderClosed is returned by WriteChunk after Close.
var ErrRecorderClosed = errors.New("audio: recorder closed")

// Recorder writes raw capture chunks to a 16-bit PCM WAV file.
type Recorder struct {
	path       string
	outputFile *os.File
	wavEncoder *wav.Encoder
	sampleBuf  *audio.IntBuffer // Reused for each chunk
	frames     int64
}

// RecordingPath returns the default file name for a recording started at now.
func RecordingPath(dir string, now time.Time) string {
	return filepath.Join(dir, "recording-"+now.UTC().Format("02-01-2006-150405")+".wav")
}

// NewRecorder creates path (and its directory) and prepares a WAV encoder for
// chunks of framesPerChunk frames.
func NewRecorder(path string, sampleRate, channels, framesPerChunk int) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		path:       path,
		outputFile: file,
		wavEncoder: wav.NewEncoder(file, sampleRate, 16, channels, 1),
		sampleBuf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
			Data:           make([]int, framesPerChunk*channels),
			SourceBitDepth: 16,
		},
	}, nil
}

// Path returns the output file path.
func (r *Recorder) Path() string {
	return r.path
}

// Frames returns the number of frames written so far.
func (r *Recorder) Frames() int64 {
	return r.frames
}

// WriteChunk decodes raw little-endian int16 bytes and appends them to the file.
func (r *Recorder) WriteChunk(raw []byte) error {
	if r.wavEncoder == nil {
		return ErrRecorderClosed
	}
	n := len(raw) / 2
	if n > cap(r.sampleBuf.Data) {
		return fmt.Errorf("chunk of %d samples exceeds recorder buffer of %d", n, cap(r.sampleBuf.Data))
	}

	r.sampleBuf.Data = r.sampleBuf.Data[:n]
	for i := range n {
		r.sampleBuf.Data[i] = int(int16(binary.LittleEndian.Uint16(raw[2*i:])))
	}

	if err := r.wavEncoder.Write(r.sampleBuf); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	r.frames += int64(n / r.sampleBuf.Format.NumChannels)
	return nil
}

// Close finalises the WAV header and closes the file. Safe to call twice.
func (r *Recorder) Close() error {
	if r.wavEncoder == nil {
		return nil
	}

	encErr := r.wavEncoder.Close()
	r.wavEncoder = nil
	fileErr := r.outputFile.Close()
	r.outputFile = nil

	return errors.Join(encErr, fileErr)
}
