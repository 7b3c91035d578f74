// Package utils holds signal generators and spectrum helpers shared by tests.
package utils

import (
	"encoding/binary"
	"math"
)

// GenerateSineSamples returns size int16 samples of a sine at frequency Hz,
// scaled to 90% of full range.
func GenerateSineSamples(size int, sampleRate, frequency float64) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = int16(math.Sin(2*math.Pi*frequency*t) * math.MaxInt16 * 0.9)
	}
	return buffer
}

// EncodePCM16 serialises samples little-endian, two bytes per sample, as the
// capture device delivers them.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// GenerateByteSine returns size unsigned bytes following a sine of the given
// frequency, where byteRate is the number of bytes per second. Values are
// centred on 128 with the given amplitude (at most 127).
func GenerateByteSine(size int, byteRate, frequency, amplitude float64) []byte {
	out := make([]byte, size)
	for i := range out {
		t := float64(i) / byteRate
		out[i] = uint8(math.Round(128 + amplitude*math.Sin(2*math.Pi*frequency*t)))
	}
	return out
}

// Fill returns size bytes all equal to v.
func Fill(size int, v byte) []byte {
	out := make([]byte, size)
	for i := range out {
		out[i] = v
	}
	return out
}

// FindPeakBin returns the index of the largest magnitude in [startBin, endBin].
// The range is clamped to the slice.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
