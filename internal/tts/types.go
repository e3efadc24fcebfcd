package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Synthesizer is the interface for text-to-speech adapters.
// Each call performs exactly one outbound request and returns only after every chunk arrived.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Audio, error)
	Name() string
}

// Encoding of synthesized audio
type Encoding string

const (
	EncodingMP3 Encoding = "mp3"
	EncodingWAV Encoding = "wav"
	EncodingPCM Encoding = "pcm" // signed 16-bit little-endian mono
)

// Format describes synthesized audio. SampleRate is required for PCM and informational otherwise.
type Format struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
}

// Audio is a synthesized utterance, kept as the chunks it was delivered in
type Audio struct {
	Chunks [][]byte
	Format Format
}

// Len returns the total number of bytes
func (a *Audio) Len() int {
	n := 0
	for _, c := range a.Chunks {
		n += len(c)
	}
	return n
}

// Reader returns a reader over all chunks in order
func (a *Audio) Reader() io.Reader {
	readers := make([]io.Reader, len(a.Chunks))
	for i, c := range a.Chunks {
		readers[i] = bytes.NewReader(c)
	}
	return io.MultiReader(readers...)
}

// VoiceSettings are the voice/style knobs, each within [0, 1]
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

// Validate checks the numeric ranges
func (v VoiceSettings) Validate() error {
	for name, val := range map[string]float64{
		"stability":        v.Stability,
		"similarity_boost": v.SimilarityBoost,
		"style":            v.Style,
	} {
		if val < 0 || val > 1 {
			return fmt.Errorf("voice setting %s must be within [0, 1], got %v", name, val)
		}
	}
	return nil
}

// ParseOutputFormat reads ElevenLabs output_format names such as "mp3_22050_32" or "pcm_16000"
func ParseOutputFormat(s string) (Format, error) {
	parts := strings.Split(s, "_")
	if len(parts) < 2 {
		return Format{}, fmt.Errorf("malformed output format %q", s)
	}
	rate, err := strconv.Atoi(parts[1])
	if err != nil {
		return Format{}, fmt.Errorf("malformed sample rate in output format %q", s)
	}
	switch parts[0] {
	case "mp3":
		return Format{Encoding: EncodingMP3, SampleRate: rate, Channels: 1}, nil
	case "pcm":
		return Format{Encoding: EncodingPCM, SampleRate: rate, Channels: 1}, nil
	default:
		return Format{}, fmt.Errorf("unsupported output format %q", s)
	}
}

// readChunks drains r, keeping each read as its own chunk
func readChunks(r io.Reader, size int) ([][]byte, error) {
	var chunks [][]byte
	buf := make([]byte, size)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			chunks = append(chunks, chunk)
		}
		if err == io.EOF {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
	}
}
