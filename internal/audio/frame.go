package audio

import (
	"encoding/binary"
	"math"
)

// RMS computes the root-mean-square amplitude of PCM16LE mono audio.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// Peak returns the maximum absolute sample value of PCM16LE mono audio.
func Peak(pcm []byte) int {
	n := len(pcm) / 2
	peak := 0
	for i := 0; i < n; i++ {
		s := int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

const (
	loudnessFloor = 2000
	maxGainFactor = 3.0
)

// NormalizeGain boosts quiet audio before recognition. Segments whose peak
// already clears the loudness floor pass through unchanged; quieter ones
// get a bounded gain with samples clamped to the int16 range.
func NormalizeGain(pcm []byte) []byte {
	peak := Peak(pcm)
	if peak == 0 || peak >= loudnessFloor {
		return pcm
	}
	gain := math.Min(maxGainFactor, float64(loudnessFloor)/float64(peak))

	out := make([]byte, len(pcm))
	n := len(pcm) / 2
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) * gain
		if s > math.MaxInt16 {
			s = math.MaxInt16
		}
		if s < math.MinInt16 {
			s = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(s)))
	}
	return out
}
