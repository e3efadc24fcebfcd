package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"

	"github.com/lexiqai/voice-button/internal/apperr"
	"github.com/lexiqai/voice-button/internal/audio"
	"github.com/lexiqai/voice-button/internal/tts"
)

const decodeOp = "playback.decode"

// resampleQuality is the beep interpolation quality used when rates differ
const resampleQuality = 4

// Player plays one synthesized utterance and returns when playback has finished.
type Player interface {
	Play(ctx context.Context, a *tts.Audio) error
	Close() error
}

// Decode turns synthesized audio into a beep stream. Undecodable audio is a service
// response problem, not a device fault.
func Decode(a *tts.Audio) (beep.StreamCloser, beep.Format, error) {
	if a == nil || a.Len() == 0 {
		return nil, beep.Format{}, apperr.Response(decodeOp, 0, errors.New("no audio to play"))
	}
	data, err := io.ReadAll(a.Reader())
	if err != nil {
		return nil, beep.Format{}, apperr.Response(decodeOp, 0, err)
	}

	switch a.Format.Encoding {
	case tts.EncodingMP3:
		s, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
		if err != nil {
			return nil, beep.Format{}, apperr.Response(decodeOp, 0, fmt.Errorf("failed to decode mp3: %w", err))
		}
		return s, format, nil

	case tts.EncodingWAV:
		s, format, err := wav.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, beep.Format{}, apperr.Response(decodeOp, 0, fmt.Errorf("failed to decode wav: %w", err))
		}
		return s, format, nil

	case tts.EncodingPCM:
		if a.Format.SampleRate <= 0 {
			return nil, beep.Format{}, apperr.Response(decodeOp, 0, errors.New("pcm audio without sample rate"))
		}
		samples, err := audio.BytesToInt16(data)
		if err != nil {
			return nil, beep.Format{}, apperr.Response(decodeOp, 0, err)
		}
		format := beep.Format{SampleRate: beep.SampleRate(a.Format.SampleRate), NumChannels: 1, Precision: 2}
		return &pcmStreamer{samples: samples}, format, nil

	default:
		return nil, beep.Format{}, apperr.Response(decodeOp, 0, fmt.Errorf("unsupported encoding %q", a.Format.Encoding))
	}
}

// pcmStreamer streams mono samples to both channels
type pcmStreamer struct {
	samples []int16
	pos     int
}

func (s *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) && s.pos < len(s.samples) {
		v := float64(s.samples[s.pos]) / 32768
		samples[n][0], samples[n][1] = v, v
		s.pos++
		n++
	}
	return n, n > 0
}

func (s *pcmStreamer) Err() error   { return nil }
func (s *pcmStreamer) Close() error { return nil }

// resampled converts src to the target rate when the rates differ
func resampled(src beep.Streamer, from, to beep.SampleRate) beep.Streamer {
	if from == to || to == 0 {
		return src
	}
	return beep.Resample(resampleQuality, from, to, src)
}
