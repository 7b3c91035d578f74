// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"micscope/pkg/utils"

	"github.com/go-audio/wav"
)

const (
	testSampleRate = 44100
	testFrameSize  = 2048
)

func TestRecordingPath(t *testing.T) {
	now := time.Date(2025, 3, 7, 14, 5, 9, 0, time.UTC)
	got := RecordingPath("out", now)
	want := filepath.Join("out", "recording-07-03-2025-140509.wav")
	if got != want {
		t.Errorf("RecordingPath() = %q, want %q", got, want)
	}
}

func TestRecorderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "take.wav")
	rec, err := NewRecorder(path, testSampleRate, 1, testFrameSize)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if rec.Path() != path {
		t.Errorf("Path() = %q, want %q", rec.Path(), path)
	}

	samples := utils.GenerateSineSamples(testFrameSize, testSampleRate, 440)
	raw := utils.EncodePCM16(samples)
	for i := 0; i < 3; i++ {
		if err := rec.WriteChunk(raw); err != nil {
			t.Fatalf("WriteChunk %d: %v", i, err)
		}
	}
	if rec.Frames() != 3*testFrameSize {
		t.Errorf("Frames() = %d, want %d", rec.Frames(), 3*testFrameSize)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open recording: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("recording is not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer: %v", err)
	}
	if dec.SampleRate != testSampleRate || dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Errorf("format = %d Hz, %d ch, %d bit", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	if len(buf.Data) != 3*testFrameSize {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), 3*testFrameSize)
	}
	for _, i := range []int{0, 1, 100, testFrameSize - 1} {
		if buf.Data[testFrameSize+i] != int(samples[i]) {
			t.Errorf("sample %d = %d, want %d", i, buf.Data[testFrameSize+i], samples[i])
		}
	}
}

func TestRecorderErrors(t *testing.T) {
	tests := []struct {
		desc string
		run  func(t *testing.T, rec *Recorder) error
		want error
	}{
		{
			desc: "oversized chunk",
			run: func(t *testing.T, rec *Recorder) error {
				return rec.WriteChunk(make([]byte, 4*testFrameSize+2))
			},
		},
		{
			desc: "write after close",
			run: func(t *testing.T, rec *Recorder) error {
				if err := rec.Close(); err != nil {
					t.Fatalf("Close: %v", err)
				}
				return rec.WriteChunk(make([]byte, 2*testFrameSize))
			},
			want: ErrRecorderClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			rec, err := NewRecorder(filepath.Join(t.TempDir(), "err.wav"), testSampleRate, 1, testFrameSize)
			if err != nil {
				t.Fatalf("NewRecorder: %v", err)
			}
			defer rec.Close()

			err = tt.run(t, rec)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRecorderCloseTwice(t *testing.T) {
	rec, err := NewRecorder(filepath.Join(t.TempDir(), "twice.wav"), testSampleRate, 1, testFrameSize)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestNewRecorderInvalidPath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewRecorder(filepath.Join(blocker, "sub", "x.wav"), testSampleRate, 1, testFrameSize); err == nil {
		t.Error("expected error when directory cannot be created")
	}
}

func BenchmarkRecorderWriteChunk(b *testing.B) {
	rec, err := NewRecorder(filepath.Join(b.TempDir(), "bench.wav"), testSampleRate, 1, testFrameSize)
	if err != nil {
		b.Fatalf("NewRecorder: %v", err)
	}
	defer rec.Close()
	raw := utils.EncodePCM16(utils.GenerateSineSamples(testFrameSize, testSampleRate, 440))

	b.ReportAllocs()
	b.ResetTimer()

	for b.Loop() {
		_ = rec.WriteChunk(raw)
	}
}
