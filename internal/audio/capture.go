package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-button/internal/apperr"
)

// SampleSource delivers fixed-size chunks of mono int16 samples from an input device.
type SampleSource interface {
	Start() error
	// Read blocks for the next chunk and must return once ctx is done.
	Read(ctx context.Context) ([]int16, error)
	Stop() error
	SampleRate() int
}

// Trigger reports whether the user is still holding the button.
type Trigger interface {
	Pressed() bool
}

// CaptureConfig bounds a recording.
type CaptureConfig struct {
	MinDuration time.Duration // recording continues at least this long after release
	MaxDuration time.Duration // 0 means no cap while held
	ReadTimeout time.Duration // longest wait for the device to deliver data
}

// Recorder captures one utterance per Capture call.
type Recorder struct {
	source SampleSource
	config CaptureConfig
	logger zerolog.Logger
}

// NewRecorder creates a recorder over source
func NewRecorder(source SampleSource, config CaptureConfig, logger zerolog.Logger) *Recorder {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 2 * time.Second
	}
	return &Recorder{
		source: source,
		config: config,
		logger: logger.With().Str("component", "audio.capture").Logger(),
	}
}

// Capture reads chunks while the trigger is held or less than MinDuration has been
// captured, and stops as soon as both are false. Elapsed time is measured in captured
// samples, so the blob always spans at least MinDuration.
func (r *Recorder) Capture(ctx context.Context, trigger Trigger) (*Blob, error) {
	if err := r.source.Start(); err != nil {
		return nil, apperr.Device("audio.capture", fmt.Errorf("failed to start input stream: %w", err))
	}
	defer func() {
		if err := r.source.Stop(); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to stop input stream")
		}
	}()

	rate := r.source.SampleRate()
	var samples []int16
	lastData := time.Now()

	for {
		captured := samplesDuration(len(samples), rate, 1)
		if !trigger.Pressed() && captured >= r.config.MinDuration {
			break
		}
		if r.config.MaxDuration > 0 && captured >= r.config.MaxDuration {
			r.logger.Warn().Dur("max_duration", r.config.MaxDuration).Msg("Recording cap reached while button still held")
			break
		}

		readCtx, cancel := context.WithTimeout(ctx, r.config.ReadTimeout)
		chunk, err := r.source.Read(readCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				err = fmt.Errorf("no audio from input device within %s: %w", r.config.ReadTimeout, err)
			}
			return nil, apperr.Device("audio.capture", err)
		}

		if len(chunk) == 0 {
			if time.Since(lastData) > r.config.ReadTimeout {
				return nil, apperr.Device("audio.capture",
					fmt.Errorf("input device returned no samples for %s", r.config.ReadTimeout))
			}
			continue
		}
		lastData = time.Now()
		samples = append(samples, chunk...)
	}

	blob := &Blob{Samples: samples, SampleRate: rate, Channels: 1}
	r.logger.Debug().
		Int("samples", len(samples)).
		Dur("duration", blob.Duration()).
		Msg("Capture finished")
	return blob, nil
}
