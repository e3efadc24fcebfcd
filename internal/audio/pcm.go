package audio

import (
	"fmt"
	"math"
)

// Int16ToBytes converts samples to little-endian 16-bit PCM
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// BytesToInt16 converts little-endian 16-bit PCM to samples
func BytesToInt16(pcm []byte) ([]int16, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples), got %d", len(pcm))
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return samples, nil
}

// CalculateRMS calculates the root mean square (RMS) of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
