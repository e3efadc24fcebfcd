package audio

import (
	"time"
)

// Blob is a finalized recording: signed 16-bit samples at a fixed rate.
// It must not be modified after Capture returns it.
type Blob struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Duration returns the playing time of the samples
func (b *Blob) Duration() time.Duration {
	return samplesDuration(len(b.Samples), b.SampleRate, b.Channels)
}

// PCM returns the samples as little-endian 16-bit bytes
func (b *Blob) PCM() []byte {
	return Int16ToBytes(b.Samples)
}

// WAV returns the samples wrapped in a RIFF/WAVE container
func (b *Blob) WAV() ([]byte, error) {
	return EncodeWAV(b.Samples, b.SampleRate, b.Channels)
}

func samplesDuration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	if channels <= 0 {
		channels = 1
	}
	frames := n / channels
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}
