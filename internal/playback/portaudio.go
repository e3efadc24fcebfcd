package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/faiface/beep"
	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-button/internal/apperr"
	"github.com/lexiqai/voice-button/internal/audio"
	"github.com/lexiqai/voice-button/internal/tts"
)

const portAudioOp = "playback.portaudio"

// PortAudioPlayer writes decoded audio to a blocking PortAudio output stream on a
// selectable device. The PortAudio runtime must be initialized by the caller.
type PortAudioPlayer struct {
	deviceIndex int
	frames      int
	timeout     time.Duration
	logger      zerolog.Logger
}

// NewPortAudioPlayer creates a player for the output device index (-1 for the default output)
func NewPortAudioPlayer(deviceIndex, framesPerBuffer int, timeout time.Duration, logger zerolog.Logger) *PortAudioPlayer {
	if framesPerBuffer <= 0 {
		framesPerBuffer = 1024
	}
	return &PortAudioPlayer{
		deviceIndex: deviceIndex,
		frames:      framesPerBuffer,
		timeout:     timeout,
		logger:      logger.With().Str("component", portAudioOp).Logger(),
	}
}

// Play opens the output device at its default rate, streams the utterance and drains it
func (p *PortAudioPlayer) Play(ctx context.Context, a *tts.Audio) error {
	src, format, err := Decode(a)
	if err != nil {
		return err
	}
	defer src.Close()

	dev, err := audio.OutputDevice(p.deviceIndex)
	if err != nil {
		return apperr.Device(portAudioOp, fmt.Errorf("failed to resolve output device: %w", err))
	}

	rate := beep.SampleRate(int(dev.DefaultSampleRate))
	if rate <= 0 {
		rate = format.SampleRate
	}

	out := make([]float32, p.frames)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultHighOutputLatency,
		},
		SampleRate:      float64(rate),
		FramesPerBuffer: p.frames,
	}, out)
	if err != nil {
		return apperr.Device(portAudioOp, fmt.Errorf("failed to open output stream on %s: %w", dev.Name, err))
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return apperr.Device(portAudioOp, fmt.Errorf("failed to start output stream: %w", err))
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, func() { stream.Abort() })
	defer stop()

	start := time.Now()
	n, err := pump(resampled(src, format.SampleRate, rate), out, stream.Write)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return apperr.Device(portAudioOp, fmt.Errorf("playback interrupted: %w", ctxErr))
	}
	if err != nil {
		return apperr.Device(portAudioOp, err)
	}
	if err := src.Err(); err != nil {
		return apperr.Response(decodeOp, 0, err)
	}

	// Stop returns once buffered output has been played
	if err := stream.Stop(); err != nil {
		return apperr.Device(portAudioOp, fmt.Errorf("failed to drain output stream: %w", err))
	}

	p.logger.Debug().
		Str("device", dev.Name).
		Int("sample_rate", int(rate)).
		Int("frames", n).
		Dur("elapsed", time.Since(start)).
		Msg("Playback finished")
	return nil
}

// Close is a no-op; streams are closed after every utterance
func (p *PortAudioPlayer) Close() error {
	return nil
}

// pump mixes src down to mono into out and calls write for every filled buffer,
// zero-padding the last one. It returns the number of frames produced.
func pump(src beep.Streamer, out []float32, write func() error) (int, error) {
	buf := make([][2]float64, len(out))
	total := 0
	for {
		n, ok := src.Stream(buf)
		if !ok {
			return total, nil
		}
		for i := 0; i < n; i++ {
			out[i] = float32((buf[i][0] + buf[i][1]) / 2)
		}
		for i := n; i < len(out); i++ {
			out[i] = 0
		}
		total += n

		if err := write(); err != nil {
			if errors.Is(err, portaudio.OutputUnderflowed) {
				continue
			}
			return total, fmt.Errorf("failed to write output stream: %w", err)
		}
	}
}
