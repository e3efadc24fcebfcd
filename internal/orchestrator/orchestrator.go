// Package orchestrator drives one press-to-playback session at a time.
//
// A session moves IDLE -> CAPTURING -> TRANSCRIBING -> TRANSFORMING -> SYNTHESIZING -> PLAYING -> IDLE.
// The session gate is closed for the whole run and reopened on every exit path, so the
// gate is open exactly when the state is IDLE. Presses that arrive while it is closed are dropped.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-button/internal/apperr"
	"github.com/lexiqai/voice-button/internal/audio"
	"github.com/lexiqai/voice-button/internal/llm"
	"github.com/lexiqai/voice-button/internal/observability"
	"github.com/lexiqai/voice-button/internal/playback"
	"github.com/lexiqai/voice-button/internal/resilience"
	"github.com/lexiqai/voice-button/internal/stt"
	"github.com/lexiqai/voice-button/internal/trigger"
	"github.com/lexiqai/voice-button/internal/tts"
)

// Trigger is the debounced push button
type Trigger interface {
	Poll() trigger.State
	Pressed() bool
}

// Recorder captures one utterance while the trigger is held
type Recorder interface {
	Capture(ctx context.Context, trig audio.Trigger) (*audio.Blob, error)
}

// Dependencies are the devices and adapters a session runs through
type Dependencies struct {
	Trigger     Trigger
	Recorder    Recorder
	Transcriber stt.Transcriber
	Transformer llm.Transformer
	Synthesizer tts.Synthesizer
	Player      playback.Player
}

// Config tunes the idle loop and the service stages
type Config struct {
	PollInterval time.Duration          // idle poll period, 100ms by default
	StageTimeout time.Duration          // bounds each service call; 0 leaves it to the adapter
	Retry        *resilience.RetryConfig // nil or MaxAttempts <= 1 disables retries
	VAD          *audio.VADConfig       // nil skips the silence pre-check
	Logger       zerolog.Logger

	// BreakerFailures consecutive transient failures of a service stage make that
	// stage fail fast for BreakerReset. 0 disables the breakers.
	BreakerFailures int
	BreakerReset    time.Duration
	Clock           clockwork.Clock // breaker clock, real time when nil
}

// Orchestrator owns the pipeline state and the session gate
type Orchestrator struct {
	config   Config
	deps     Dependencies
	logger   zerolog.Logger
	breakers map[State]*resilience.CircuitBreaker

	mu       sync.Mutex
	state    State
	gateOpen bool
}

// New validates the dependencies and returns an idle orchestrator with the gate open
func New(cfg Config, deps Dependencies) (*Orchestrator, error) {
	missing := map[string]bool{
		"trigger":     deps.Trigger == nil,
		"recorder":    deps.Recorder == nil,
		"transcriber": deps.Transcriber == nil,
		"transformer": deps.Transformer == nil,
		"synthesizer": deps.Synthesizer == nil,
		"player":      deps.Player == nil,
	}
	for name, isMissing := range missing {
		if isMissing {
			return nil, apperr.Configuration("orchestrator", fmt.Errorf("%s is required", name))
		}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	breakers := make(map[State]*resilience.CircuitBreaker)
	if cfg.BreakerFailures > 0 {
		for _, st := range []State{StateTranscribing, StateTransforming, StateSynthesizing} {
			breakers[st] = resilience.NewCircuitBreaker(st.String(), cfg.BreakerFailures, cfg.BreakerReset, apperr.Retryable, cfg.Clock)
		}
	}

	return &Orchestrator{
		config:   cfg,
		deps:     deps,
		logger:   cfg.Logger.With().Str("component", "orchestrator").Logger(),
		breakers: breakers,
		state:    StateIdle,
		gateOpen: true,
	}, nil
}

// State returns the current pipeline state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// GateOpen reports whether a new session may start
func (o *Orchestrator) GateOpen() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gateOpen
}

// Snapshot returns state and gate read together, plus the stage breakers when enabled
func (o *Orchestrator) Snapshot() observability.PipelineStatus {
	o.mu.Lock()
	status := observability.PipelineStatus{State: o.state.String(), GateOpen: o.gateOpen}
	o.mu.Unlock()

	if len(o.breakers) > 0 {
		status.Breakers = make(map[string]observability.BreakerStatus, len(o.breakers))
		for _, cb := range o.breakers {
			state, requests, failures, rate := cb.GetStats()
			status.Breakers[cb.Name()] = observability.BreakerStatus{
				State:       state.String(),
				Requests:    requests,
				Failures:    failures,
				FailureRate: rate,
			}
		}
	}
	return status
}

// Run polls the trigger every PollInterval and starts a session on each press, that is
// a PRESSED reading that follows a RELEASED one. Sessions run in the background so the
// loop keeps observing the button; presses during a session are ignored. Run returns
// after ctx is cancelled and any in-flight session has unwound.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	o.logger.Info().Dur("poll_interval", o.config.PollInterval).Msg("Waiting for button presses")

	// A button held at startup must be released before it counts.
	armed := false
	for {
		select {
		case <-ctx.Done():
			o.logger.Info().Msg("Stopping, waiting for the current session")
			return nil
		case <-ticker.C:
		}

		if o.deps.Trigger.Poll() == trigger.Released {
			armed = true
			continue
		}
		if !armed {
			continue
		}
		armed = false

		if !o.acquire() {
			observability.RecordIgnoredPress()
			o.logger.Debug().Str("state", o.State().String()).Msg("Press ignored, session in progress")
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer o.release()
			o.runSession(ctx)
		}()
	}
}

// TryStartSession runs one session in the caller's goroutine if the gate is open.
// It returns false without touching any device or adapter when the gate is closed.
func (o *Orchestrator) TryStartSession(ctx context.Context) (bool, *PipelineError) {
	if !o.acquire() {
		observability.RecordIgnoredPress()
		return false, nil
	}
	defer o.release()
	return true, o.runSession(ctx)
}

// acquire closes the gate and enters CAPTURING in one step
func (o *Orchestrator) acquire() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.gateOpen {
		return false
	}
	o.gateOpen = false
	o.state = StateCapturing
	return true
}

// release returns to IDLE and reopens the gate in one step
func (o *Orchestrator) release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = StateIdle
	o.gateOpen = true
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = s
}

// session carries the per-run logger and metrics
type session struct {
	logger  zerolog.Logger
	metrics *observability.SessionMetrics
}

func (o *Orchestrator) runSession(ctx context.Context) *PipelineError {
	s := &session{
		logger:  observability.WithSessionID(o.logger, observability.NewSessionID()),
		metrics: observability.NewSessionMetrics(),
	}
	start := time.Now()
	s.logger.Info().Msg("Session started")

	// CAPTURING
	s.metrics.StageStart(StateCapturing.String())
	blob, err := o.deps.Recorder.Capture(ctx, o.deps.Trigger)
	s.metrics.StageEnd()
	if err != nil {
		return o.fail(ctx, s, StateCapturing, err)
	}
	s.metrics.RecordAudioBytes("in", len(blob.Samples)*2)
	s.logger.Info().Dur("duration", blob.Duration()).Msg("Recording finished")

	// TRANSCRIBING
	o.setState(StateTranscribing)
	if o.config.VAD != nil && !audio.SpeechDetected(blob, o.config.VAD) {
		o.empty(s, "capture below energy threshold")
		return nil
	}
	var transcript string
	err = o.stage(ctx, s, StateTranscribing, func(ctx context.Context) error {
		var err error
		transcript, err = o.deps.Transcriber.Transcribe(ctx, blob)
		return err
	})
	if apperr.Is(err, apperr.KindEmptyResult) {
		o.empty(s, "transcript is empty")
		return nil
	}
	if err != nil {
		return o.fail(ctx, s, StateTranscribing, err)
	}
	s.logger.Info().Str("transcript", transcript).Msg("Transcribed")

	// TRANSFORMING
	o.setState(StateTransforming)
	var transformed string
	err = o.stage(ctx, s, StateTransforming, func(ctx context.Context) error {
		var err error
		transformed, err = o.deps.Transformer.Transform(ctx, transcript)
		return err
	})
	if err != nil {
		return o.fail(ctx, s, StateTransforming, err)
	}
	s.logger.Info().Str("text", transformed).Msg("Transformed")

	// SYNTHESIZING
	o.setState(StateSynthesizing)
	var speech *tts.Audio
	err = o.stage(ctx, s, StateSynthesizing, func(ctx context.Context) error {
		var err error
		speech, err = o.deps.Synthesizer.Synthesize(ctx, transformed)
		return err
	})
	if err != nil {
		return o.fail(ctx, s, StateSynthesizing, err)
	}
	s.metrics.RecordAudioBytes("out", speech.Len())

	// PLAYING
	o.setState(StatePlaying)
	s.metrics.StageStart(StatePlaying.String())
	err = o.deps.Player.Play(ctx, speech)
	s.metrics.StageEnd()
	if err != nil {
		return o.fail(ctx, s, StatePlaying, err)
	}

	s.metrics.End("completed")
	s.logger.Info().Dur("elapsed", time.Since(start)).Msg("Session completed")
	return nil
}

// stage runs one service call with the stage timeout and, when enabled, retries
// behind the stage's circuit breaker
func (o *Orchestrator) stage(ctx context.Context, s *session, st State, fn func(ctx context.Context) error) error {
	call := func(ctx context.Context) error {
		if o.config.StageTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, o.config.StageTimeout)
			defer cancel()
		}
		return fn(ctx)
	}

	attempt := call
	if o.config.Retry != nil && o.config.Retry.MaxAttempts > 1 {
		attempt = func(ctx context.Context) error {
			return resilience.Retry(ctx, call, o.config.Retry, apperr.Retryable, func(n int, err error, wait time.Duration) {
				s.logger.Warn().
					Err(err).
					Str("stage", st.String()).
					Int("attempt", n).
					Dur("backoff", wait).
					Msg("Retrying stage")
			})
		}
	}

	s.metrics.StageStart(st.String())
	defer s.metrics.StageEnd()

	breaker, ok := o.breakers[st]
	if !ok {
		return attempt(ctx)
	}
	err := breaker.Call(ctx, attempt)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return apperr.Service("orchestrator."+strings.ToLower(st.String()), err)
	}
	if err != nil && breaker.GetState() == resilience.StateOpen {
		s.logger.Warn().
			Str("stage", st.String()).
			Dur("reset_after", o.config.BreakerReset).
			Msg("Stage circuit opened")
	}
	return err
}

// empty ends a session that produced nothing to say
func (o *Orchestrator) empty(s *session, reason string) {
	s.metrics.End("empty")
	s.logger.Info().Str("reason", reason).Msg("No speech detected")
}

// fail is the single place a session failure is logged
func (o *Orchestrator) fail(ctx context.Context, s *session, st State, err error) *PipelineError {
	perr := newPipelineError(st, err)
	s.metrics.RecordStageError(st.String(), perr.Kind.String())

	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		s.metrics.End("cancelled")
		s.logger.Warn().Str("stage", st.String()).Msg("Session cancelled")
		return perr
	}

	s.metrics.End("failed")
	s.logger.Error().
		Err(err).
		Str("stage", st.String()).
		Str("kind", perr.Kind.String()).
		Msg("Pipeline failed")
	return perr
}
