package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-button/internal/apperr"
	"github.com/lexiqai/voice-button/internal/tts"
)

const speakerOp = "playback.speaker"

// SpeakerPlayer plays through the beep speaker on the system default output.
// The speaker is initialized once at a fixed rate; other rates are resampled.
type SpeakerPlayer struct {
	rate    beep.SampleRate
	timeout time.Duration
	logger  zerolog.Logger

	mu          sync.Mutex
	initialized bool
}

// NewSpeakerPlayer creates a speaker player. timeout bounds a single playback (0 disables it).
func NewSpeakerPlayer(sampleRate int, timeout time.Duration, logger zerolog.Logger) *SpeakerPlayer {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &SpeakerPlayer{
		rate:    beep.SampleRate(sampleRate),
		timeout: timeout,
		logger:  logger.With().Str("component", speakerOp).Logger(),
	}
}

// Play blocks until the utterance has been played, the timeout expires or ctx ends
func (p *SpeakerPlayer) Play(ctx context.Context, a *tts.Audio) error {
	stream, format, err := Decode(a)
	if err != nil {
		return err
	}
	defer stream.Close()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		if err := speaker.Init(p.rate, p.rate.N(time.Second/10)); err != nil {
			return apperr.Device(speakerOp, fmt.Errorf("failed to initialize speaker: %w", err))
		}
		p.initialized = true
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	done := make(chan struct{})
	start := time.Now()
	speaker.Play(beep.Seq(resampled(stream, format.SampleRate, p.rate), beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
	case <-ctx.Done():
		speaker.Clear()
		return apperr.Device(speakerOp, fmt.Errorf("playback interrupted: %w", ctx.Err()))
	}

	if err := stream.Err(); err != nil {
		return apperr.Response(decodeOp, 0, err)
	}
	p.logger.Debug().Dur("elapsed", time.Since(start)).Msg("Playback finished")
	return nil
}

// Close releases the speaker
func (p *SpeakerPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		speaker.Close()
		p.initialized = false
	}
	return nil
}
