package orchestrator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-button/internal/apperr"
	"github.com/lexiqai/voice-button/internal/audio"
	"github.com/lexiqai/voice-button/internal/observability"
	"github.com/lexiqai/voice-button/internal/resilience"
	"github.com/lexiqai/voice-button/internal/trigger"
	"github.com/lexiqai/voice-button/internal/tts"
)

// scriptedTrigger replays Poll readings, then reports RELEASED forever.
type scriptedTrigger struct {
	mu    sync.Mutex
	polls []trigger.State
	n     int
}

func (t *scriptedTrigger) Poll() trigger.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.n++
	if len(t.polls) == 0 {
		return trigger.Released
	}
	s := t.polls[0]
	t.polls = t.polls[1:]
	return s
}

func (t *scriptedTrigger) Pressed() bool { return t.Poll() == trigger.Pressed }

func (t *scriptedTrigger) pollCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}

// chunkSource delivers 20ms chunks of a quiet tone as fast as they are read.
type chunkSource struct {
	mu        sync.Mutex
	rate      int
	delivered int
}

func (s *chunkSource) Start() error    { return nil }
func (s *chunkSource) Stop() error     { return nil }
func (s *chunkSource) SampleRate() int { return s.rate }

func (s *chunkSource) Read(ctx context.Context) ([]int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunk := make([]int16, s.rate/50)
	for i := range chunk {
		chunk[i] = 2000
	}
	s.delivered += len(chunk)
	return chunk, nil
}

func (s *chunkSource) capturedDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.delivered) * time.Second / time.Duration(s.rate)
}

// heldTrigger is pressed until the source has delivered the hold duration.
type heldTrigger struct {
	source *chunkSource
	hold   time.Duration
}

func (h *heldTrigger) Pressed() bool { return h.source.capturedDuration() < h.hold }

func (h *heldTrigger) Poll() trigger.State {
	if h.Pressed() {
		return trigger.Pressed
	}
	return trigger.Released
}

// fakeRecorder returns a fixed blob or error
type fakeRecorder struct {
	mu    sync.Mutex
	blob  *audio.Blob
	err   error
	calls int
	check func()
}

func (r *fakeRecorder) Capture(ctx context.Context, trig audio.Trigger) (*audio.Blob, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.check != nil {
		r.check()
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.blob, nil
}

func (r *fakeRecorder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeTranscriber struct {
	text    string
	err     error
	calls   int
	check   func(*audio.Blob)
	entered chan struct{}
	unblock chan struct{}
}

func (f *fakeTranscriber) Name() string { return "fake" }

func (f *fakeTranscriber) Transcribe(ctx context.Context, blob *audio.Blob) (string, error) {
	f.calls++
	if f.check != nil {
		f.check(blob)
	}
	if f.entered != nil {
		close(f.entered)
	}
	if f.unblock != nil {
		<-f.unblock
	}
	return f.text, f.err
}

type fakeTransformer struct {
	replies map[string]string
	calls   int
	check   func()
}

func (f *fakeTransformer) Name() string { return "fake" }

func (f *fakeTransformer) Transform(ctx context.Context, text string) (string, error) {
	f.calls++
	if f.check != nil {
		f.check()
	}
	if reply, ok := f.replies[text]; ok {
		return reply, nil
	}
	return text, nil
}

type fakeSynthesizer struct {
	chunks [][]byte
	errs   []error
	calls  int
	got    string
	check  func()
}

func (f *fakeSynthesizer) Name() string { return "fake" }

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string) (*tts.Audio, error) {
	f.calls++
	f.got = text
	if f.check != nil {
		f.check()
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		if len(f.errs) > 1 {
			f.errs = f.errs[1:]
		}
		if err != nil {
			return nil, err
		}
	}
	return &tts.Audio{Chunks: f.chunks, Format: tts.Format{Encoding: tts.EncodingMP3, SampleRate: 22050, Channels: 1}}, nil
}

type fakePlayer struct {
	played [][]byte
	calls  int
	err    error
	check  func()
}

func (p *fakePlayer) Play(ctx context.Context, a *tts.Audio) error {
	p.calls++
	if p.check != nil {
		p.check()
	}
	if p.err != nil {
		return p.err
	}
	p.played = append(p.played, a.Chunks...)
	return nil
}

func (p *fakePlayer) Close() error { return nil }

type fixture struct {
	trigger     *scriptedTrigger
	recorder    *fakeRecorder
	transcriber *fakeTranscriber
	transformer *fakeTransformer
	synthesizer *fakeSynthesizer
	player      *fakePlayer
	logs        *bytes.Buffer
}

func newFixture() *fixture {
	return &fixture{
		trigger:     &scriptedTrigger{},
		recorder:    &fakeRecorder{blob: &audio.Blob{Samples: make([]int16, 48000*3), SampleRate: 48000, Channels: 1}},
		transcriber: &fakeTranscriber{text: "hello"},
		transformer: &fakeTransformer{replies: map[string]string{"hello": "greetings"}},
		synthesizer: &fakeSynthesizer{chunks: [][]byte{[]byte("chunk-1"), []byte("chunk-2")}},
		player:      &fakePlayer{},
		logs:        &bytes.Buffer{},
	}
}

func (f *fixture) deps() Dependencies {
	return Dependencies{
		Trigger:     f.trigger,
		Recorder:    f.recorder,
		Transcriber: f.transcriber,
		Transformer: f.transformer,
		Synthesizer: f.synthesizer,
		Player:      f.player,
	}
}

func (f *fixture) build(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	cfg.Logger = zerolog.New(zerolog.SyncWriter(f.logs))
	o, err := New(cfg, f.deps())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return o
}

// errorLines returns the parsed error-level log lines
func (f *fixture) errorLines(t *testing.T) []map[string]any {
	t.Helper()
	var lines []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(f.logs.Bytes()))
	for sc.Scan() {
		var line map[string]any
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("Invalid log line %q: %v", sc.Text(), err)
		}
		if line["level"] == "error" {
			lines = append(lines, line)
		}
	}
	return lines
}

func assertIdle(t *testing.T, o *Orchestrator) {
	t.Helper()
	if o.State() != StateIdle {
		t.Errorf("Expected IDLE, got %s", o.State())
	}
	if !o.GateOpen() {
		t.Error("Expected gate to be open")
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	f := newFixture()
	deps := f.deps()
	deps.Synthesizer = nil

	_, err := New(Config{}, deps)
	if !apperr.Is(err, apperr.KindConfiguration) {
		t.Errorf("Expected ConfigurationError, got %v", err)
	}
}

func TestNew_StartsIdleWithGateOpen(t *testing.T) {
	o := newFixture().build(t, Config{})
	assertIdle(t, o)

	snap := o.Snapshot()
	if snap.State != "IDLE" || !snap.GateOpen || snap.Breakers != nil {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
}

func TestSession_EndToEnd(t *testing.T) {
	f := newFixture()
	source := &chunkSource{rate: 48000}
	held := &heldTrigger{source: source, hold: 5 * time.Second}
	recorder := audio.NewRecorder(source, audio.CaptureConfig{MinDuration: 3 * time.Second, ReadTimeout: time.Second}, zerolog.Nop())

	var blobDuration time.Duration
	f.transcriber.check = func(b *audio.Blob) { blobDuration = b.Duration() }

	o, err := New(Config{Logger: zerolog.New(f.logs)}, Dependencies{
		Trigger:     held,
		Recorder:    recorder,
		Transcriber: f.transcriber,
		Transformer: f.transformer,
		Synthesizer: f.synthesizer,
		Player:      f.player,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	started, perr := o.TryStartSession(context.Background())
	if !started || perr != nil {
		t.Fatalf("Expected a completed session, got started=%v err=%v", started, perr)
	}

	if blobDuration != 5*time.Second {
		t.Errorf("Expected a 5s recording, got %v", blobDuration)
	}
	if f.synthesizer.got != "greetings" {
		t.Errorf("Expected synthesis of %q, got %q", "greetings", f.synthesizer.got)
	}
	if len(f.player.played) != 2 || string(f.player.played[0]) != "chunk-1" || string(f.player.played[1]) != "chunk-2" {
		t.Errorf("Expected both chunks played in order, got %q", f.player.played)
	}
	if lines := f.errorLines(t); len(lines) != 0 {
		t.Errorf("Expected no error logs, got %v", lines)
	}
	assertIdle(t, o)
}

func TestSession_MinDurationWhenReleasedEarly(t *testing.T) {
	f := newFixture()
	source := &chunkSource{rate: 16000}
	held := &heldTrigger{source: source, hold: 500 * time.Millisecond}
	recorder := audio.NewRecorder(source, audio.CaptureConfig{MinDuration: 3 * time.Second, ReadTimeout: time.Second}, zerolog.Nop())

	var blobDuration time.Duration
	f.transcriber.check = func(b *audio.Blob) { blobDuration = b.Duration() }

	deps := f.deps()
	deps.Trigger = held
	deps.Recorder = recorder
	o, _ := New(Config{Logger: zerolog.Nop()}, deps)

	if _, perr := o.TryStartSession(context.Background()); perr != nil {
		t.Fatalf("Unexpected error: %v", perr)
	}
	if blobDuration < 3*time.Second {
		t.Errorf("Expected at least 3s of audio, got %v", blobDuration)
	}
}

func TestSession_GateClosedInEveryStage(t *testing.T) {
	f := newFixture()
	var o *Orchestrator
	var seen []State
	observe := func() {
		seen = append(seen, o.State())
		if o.GateOpen() {
			t.Errorf("Gate open during %s", o.State())
		}
	}
	f.recorder.check = observe
	f.transcriber.check = func(*audio.Blob) { observe() }
	f.transformer.check = observe
	f.synthesizer.check = observe
	f.player.check = observe

	o = f.build(t, Config{})
	o.TryStartSession(context.Background())

	want := []State{StateCapturing, StateTranscribing, StateTransforming, StateSynthesizing, StatePlaying}
	if len(seen) != len(want) {
		t.Fatalf("Expected states %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("Stage %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
	assertIdle(t, o)
}

func TestSession_GateReopensAfterEveryFailure(t *testing.T) {
	deviceErr := apperr.Device("audio.capture", errors.New("no input device"))
	serviceErr := apperr.Response("fake", 500, errors.New("internal error"))

	tests := []struct {
		name  string
		setup func(f *fixture)
		stage State
		kind  apperr.Kind
	}{
		{"capture", func(f *fixture) { f.recorder.err = deviceErr }, StateCapturing, apperr.KindDevice},
		{"transcription", func(f *fixture) { f.transcriber.err = serviceErr }, StateTranscribing, apperr.KindService},
		{"synthesis", func(f *fixture) { f.synthesizer.errs = []error{serviceErr} }, StateSynthesizing, apperr.KindService},
		{"playback", func(f *fixture) { f.player.err = errors.New("stream closed") }, StatePlaying, apperr.KindDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)
			o := f.build(t, Config{})

			started, perr := o.TryStartSession(context.Background())
			if !started || perr == nil {
				t.Fatalf("Expected a failed session, got started=%v err=%v", started, perr)
			}
			if perr.Stage != tt.stage || perr.Kind != tt.kind {
				t.Errorf("Expected %s/%s, got %s/%s", tt.stage, tt.kind, perr.Stage, perr.Kind)
			}
			assertIdle(t, o)
		})
	}
}

func TestSession_PressWhileClosedIsIgnored(t *testing.T) {
	f := newFixture()
	f.transcriber.entered = make(chan struct{})
	f.transcriber.unblock = make(chan struct{})
	o := f.build(t, Config{})

	done := make(chan *PipelineError, 1)
	go func() {
		_, perr := o.TryStartSession(context.Background())
		done <- perr
	}()
	<-f.transcriber.entered

	before := testutil.ToFloat64(observability.IgnoredPressCount())
	started, perr := o.TryStartSession(context.Background())
	if started || perr != nil {
		t.Errorf("Expected press to be ignored, got started=%v err=%v", started, perr)
	}
	if got := testutil.ToFloat64(observability.IgnoredPressCount()) - before; got != 1 {
		t.Errorf("Expected one ignored press recorded, got %v", got)
	}
	if f.recorder.callCount() != 1 {
		t.Errorf("Expected a single capture, got %d", f.recorder.callCount())
	}
	if o.GateOpen() || o.State() != StateTranscribing {
		t.Errorf("Expected gate closed in TRANSCRIBING, got %s open=%v", o.State(), o.GateOpen())
	}

	close(f.transcriber.unblock)
	if perr := <-done; perr != nil {
		t.Fatalf("First session failed: %v", perr)
	}
	if f.transcriber.calls != 1 || f.player.calls != 1 {
		t.Errorf("Expected one transcription and one playback, got %d and %d", f.transcriber.calls, f.player.calls)
	}
	assertIdle(t, o)
}

func TestSession_EmptyTranscriptSkipsRemainingStages(t *testing.T) {
	f := newFixture()
	f.transcriber.err = apperr.Empty("stt.fake", errors.New("no speech detected"))
	o := f.build(t, Config{})

	before := testutil.ToFloat64(observability.SessionCount("empty"))
	started, perr := o.TryStartSession(context.Background())
	if !started || perr != nil {
		t.Fatalf("Expected a clean session, got started=%v err=%v", started, perr)
	}

	if f.transformer.calls+f.synthesizer.calls+f.player.calls != 0 {
		t.Errorf("Expected no adapters after an empty transcript, got transform=%d synth=%d play=%d",
			f.transformer.calls, f.synthesizer.calls, f.player.calls)
	}
	if got := testutil.ToFloat64(observability.SessionCount("empty")) - before; got != 1 {
		t.Errorf("Expected one empty session recorded, got %v", got)
	}
	if lines := f.errorLines(t); len(lines) != 0 {
		t.Errorf("Expected no error logs, got %v", lines)
	}
	assertIdle(t, o)
}

func TestSession_SilentCaptureSkipsTranscription(t *testing.T) {
	f := newFixture()
	vad := audio.DefaultVADConfig()
	vad.EnergyThreshold = 500
	o := f.build(t, Config{VAD: vad})

	if _, perr := o.TryStartSession(context.Background()); perr != nil {
		t.Fatalf("Unexpected error: %v", perr)
	}
	if f.transcriber.calls != 0 {
		t.Errorf("Expected no transcription for silence, got %d calls", f.transcriber.calls)
	}
	assertIdle(t, o)
}

func TestSession_SynthesisNetworkFailure(t *testing.T) {
	f := newFixture()
	f.synthesizer.errs = []error{apperr.Service("tts.fake", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})}
	o := f.build(t, Config{})

	_, perr := o.TryStartSession(context.Background())
	if perr == nil {
		t.Fatal("Expected a pipeline error")
	}
	if perr.Stage != StateSynthesizing || perr.Kind != apperr.KindService {
		t.Errorf("Expected SYNTHESIZING/ServiceError, got %s/%s", perr.Stage, perr.Kind)
	}
	if apperr.CauseOf(perr) != apperr.CauseNetwork {
		t.Errorf("Expected network cause, got %s", apperr.CauseOf(perr))
	}

	lines := f.errorLines(t)
	if len(lines) != 1 {
		t.Fatalf("Expected exactly one error log, got %d", len(lines))
	}
	if lines[0]["stage"] != "SYNTHESIZING" || lines[0]["kind"] != "ServiceError" {
		t.Errorf("Unexpected error log %v", lines[0])
	}
	if id, _ := lines[0]["session_id"].(string); id == "" {
		t.Error("Expected session_id on the error log")
	}
	if f.player.calls != 0 {
		t.Errorf("Expected no playback, got %d calls", f.player.calls)
	}
	assertIdle(t, o)
}

func TestSession_RetriesTransientFailures(t *testing.T) {
	netErr := apperr.Service("tts.fake", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection reset")})
	retry := &resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}

	t.Run("recovers", func(t *testing.T) {
		f := newFixture()
		f.synthesizer.errs = []error{netErr, nil}
		o := f.build(t, Config{Retry: retry})

		if _, perr := o.TryStartSession(context.Background()); perr != nil {
			t.Fatalf("Expected recovery, got %v", perr)
		}
		if f.synthesizer.calls != 2 || f.player.calls != 1 {
			t.Errorf("Expected 2 synth calls and a playback, got %d and %d", f.synthesizer.calls, f.player.calls)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		f := newFixture()
		f.synthesizer.errs = []error{netErr}
		o := f.build(t, Config{Retry: retry})

		_, perr := o.TryStartSession(context.Background())
		if perr == nil || f.synthesizer.calls != 3 {
			t.Errorf("Expected failure after 3 calls, got err=%v calls=%d", perr, f.synthesizer.calls)
		}
		if lines := f.errorLines(t); len(lines) != 1 {
			t.Errorf("Expected exactly one error log, got %d", len(lines))
		}
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		f := newFixture()
		f.synthesizer.errs = []error{apperr.Response("tts.fake", 401, errors.New("unauthorized"))}
		o := f.build(t, Config{Retry: retry})

		o.TryStartSession(context.Background())
		if f.synthesizer.calls != 1 {
			t.Errorf("Expected a single call, got %d", f.synthesizer.calls)
		}
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRun_StartsOnRisingEdgeOnly(t *testing.T) {
	f := newFixture()
	// Held at startup, released, then pressed twice without a release in between.
	f.trigger.polls = []trigger.State{
		trigger.Pressed, trigger.Pressed,
		trigger.Released,
		trigger.Pressed, trigger.Pressed, trigger.Pressed,
	}
	o := f.build(t, Config{PollInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- o.Run(ctx) }()

	waitFor(t, func() bool { return f.trigger.pollCount() > 10 })
	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("Run() returned %v", err)
	}

	if f.recorder.callCount() != 1 {
		t.Errorf("Expected exactly one session, got %d", f.recorder.callCount())
	}
	assertIdle(t, o)
}

func TestRun_IgnoresPressDuringSession(t *testing.T) {
	f := newFixture()
	f.transcriber.entered = make(chan struct{})
	f.transcriber.unblock = make(chan struct{})
	o := f.build(t, Config{PollInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- o.Run(ctx) }()

	f.trigger.mu.Lock()
	f.trigger.polls = []trigger.State{trigger.Released, trigger.Pressed}
	f.trigger.mu.Unlock()
	<-f.transcriber.entered

	// Release and press again while the first session holds the gate.
	f.trigger.mu.Lock()
	start := f.trigger.n
	f.trigger.polls = []trigger.State{trigger.Released, trigger.Pressed, trigger.Released}
	f.trigger.mu.Unlock()
	waitFor(t, func() bool { return f.trigger.pollCount() > start+5 })

	close(f.transcriber.unblock)
	waitFor(t, o.GateOpen)
	cancel()
	<-errCh

	if f.recorder.callCount() != 1 {
		t.Errorf("Expected the second press to be dropped, got %d captures", f.recorder.callCount())
	}
	if f.player.calls != 1 {
		t.Errorf("Expected one playback, got %d", f.player.calls)
	}
	assertIdle(t, o)
}

func TestRun_CancelAbortsSession(t *testing.T) {
	f := newFixture()
	f.trigger.polls = []trigger.State{trigger.Released, trigger.Pressed}
	f.player.err = context.Canceled
	o := f.build(t, Config{PollInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	f.synthesizer.check = cancel
	cancelled := testutil.ToFloat64(observability.SessionCount("cancelled"))

	if err := o.Run(ctx); err != nil {
		t.Errorf("Run() returned %v", err)
	}
	if lines := f.errorLines(t); len(lines) != 0 {
		t.Errorf("Expected cancellation to be logged as a warning, got %v", lines)
	}
	if got := testutil.ToFloat64(observability.SessionCount("cancelled")) - cancelled; got != 1 {
		t.Errorf("Expected one cancelled session recorded, got %v", got)
	}
	assertIdle(t, o)
}

func TestPipelineError(t *testing.T) {
	cause := apperr.Response("tts.fake", 503, errors.New("unavailable"))
	perr := newPipelineError(StateSynthesizing, cause)

	if !errors.Is(perr, cause) {
		t.Error("Expected PipelineError to unwrap to its cause")
	}
	if perr.Error() != "SYNTHESIZING failed with ServiceError: "+cause.Error() {
		t.Errorf("Unexpected message %q", perr.Error())
	}

	unclassified := newPipelineError(StatePlaying, errors.New("boom"))
	if unclassified.Kind != apperr.KindDevice {
		t.Errorf("Expected playback failures to default to DeviceError, got %s", unclassified.Kind)
	}
}

func TestSession_BreakerFailsFastAfterRepeatedOutages(t *testing.T) {
	f := newFixture()
	f.synthesizer.errs = []error{apperr.Service("tts.fake", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("no route to host")})}
	clock := clockwork.NewFakeClock()
	o := f.build(t, Config{BreakerFailures: 2, BreakerReset: time.Minute, Clock: clock})

	for i := 0; i < 2; i++ {
		o.TryStartSession(context.Background())
	}
	if f.synthesizer.calls != 2 {
		t.Fatalf("Expected 2 synth calls before the breaker opens, got %d", f.synthesizer.calls)
	}
	if !bytes.Contains(f.logs.Bytes(), []byte("Stage circuit opened")) {
		t.Error("Expected a warning when the synthesis breaker opens")
	}

	_, perr := o.TryStartSession(context.Background())
	if perr == nil || perr.Stage != StateSynthesizing || perr.Kind != apperr.KindService {
		t.Fatalf("Expected a SYNTHESIZING ServiceError, got %v", perr)
	}
	if !errors.Is(perr, resilience.ErrCircuitOpen) {
		t.Errorf("Expected the open breaker as cause, got %v", perr)
	}
	if f.synthesizer.calls != 2 {
		t.Errorf("Expected no synth call while open, got %d", f.synthesizer.calls)
	}
	assertIdle(t, o)

	status := o.Snapshot()
	if got := status.Breakers["SYNTHESIZING"].State; got != "open" {
		t.Errorf("Expected the synthesis breaker reported open, got %q", got)
	}
	if got := status.Breakers["TRANSCRIBING"]; got.State != "closed" || got.Requests != 3 {
		t.Errorf("Expected a closed transcription breaker with 3 requests, got %+v", got)
	}

	// After the reset timeout a probe goes through and closes the breaker.
	f.synthesizer.errs = nil
	clock.Advance(time.Minute)
	if _, perr := o.TryStartSession(context.Background()); perr != nil {
		t.Errorf("Expected the probe session to succeed, got %v", perr)
	}
	if f.synthesizer.calls != 3 {
		t.Errorf("Expected the probe to call through, got %d calls", f.synthesizer.calls)
	}
}
