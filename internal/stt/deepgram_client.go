package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-button/internal/apperr"
	"github.com/lexiqai/voice-button/internal/audio"
)

const deepgramOp = "stt.deepgram"

// writeChunkBytes is how much PCM is sent per websocket frame (~100ms at 48kHz mono)
const writeChunkBytes = 9600

// endTolerance is how close, in seconds, a final result must reach the end of the audio
const endTolerance = 0.05

// messageCallbackHandler implements the LiveMessageCallback interface
// It embeds the default handler and overrides only the methods we need to customize
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	handler      func(*msginterfaces.MessageResponse)
	errorHandler func(*msginterfaces.ErrorResponse) error
	closeHandler func()
}

// Message forwards transcription results to the session
func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.handler(message)
	return nil
}

// Error forwards server-side errors to the session
func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	return m.errorHandler(errorResponse)
}

// Close ends the session with whatever results arrived
func (m *messageCallbackHandler) Close(*msginterfaces.CloseResponse) error {
	m.closeHandler()
	return nil
}

// deepgramSession collects final results for one recording
type deepgramSession struct {
	audioEnd float64
	logger   zerolog.Logger

	mu    sync.Mutex
	parts []string
	err   error
	once  sync.Once
	done  chan struct{}
}

func newDeepgramSession(audioEnd float64, logger zerolog.Logger) *deepgramSession {
	return &deepgramSession{audioEnd: audioEnd, logger: logger, done: make(chan struct{})}
}

func (s *deepgramSession) finish() {
	s.once.Do(func() { close(s.done) })
}

// handle processes messages from Deepgram
func (s *deepgramSession) handle(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case "Results", "Message":
		if !msg.IsFinal {
			return
		}
		s.mu.Lock()
		if len(msg.Channel.Alternatives) > 0 {
			if text := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript); text != "" {
				s.parts = append(s.parts, text)
				s.logger.Debug().
					Str("text", text).
					Float64("confidence", msg.Channel.Alternatives[0].Confidence).
					Msg("Deepgram final result")
			}
		}
		s.mu.Unlock()

		// Final results arrive in order; once one reaches the end of the audio nothing is left.
		if msg.Start+msg.Duration >= s.audioEnd-endTolerance {
			s.finish()
		}

	default:
		s.logger.Debug().Str("type", msg.Type).Msg("Deepgram message ignored")
	}
}

func (s *deepgramSession) fail(resp *msginterfaces.ErrorResponse) error {
	s.mu.Lock()
	if s.err == nil {
		s.err = fmt.Errorf("deepgram error: %+v", resp)
	}
	s.mu.Unlock()
	s.finish()
	return nil
}

func (s *deepgramSession) result() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.parts, " "), s.err
}

// DeepgramClient transcribes recordings over Deepgram's live WebSocket API,
// opening one connection per recording.
type DeepgramClient struct {
	apiKey   string
	host     string
	model    string
	language string
	logger   zerolog.Logger
}

// NewDeepgramClient creates a Deepgram transcriber. An empty host uses Deepgram's endpoint.
func NewDeepgramClient(apiKey, host, model, language string, logger zerolog.Logger) *DeepgramClient {
	return &DeepgramClient{
		apiKey:   apiKey,
		host:     host,
		model:    model,
		language: language,
		logger:   logger.With().Str("component", deepgramOp).Logger(),
	}
}

// Name returns the backend name
func (d *DeepgramClient) Name() string {
	return "deepgram"
}

// Transcribe streams the recording as linear16, asks Deepgram to flush, and waits for
// final results covering it or for the server to close the stream
func (d *DeepgramClient) Transcribe(ctx context.Context, blob *audio.Blob) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	session := newDeepgramSession(blob.Duration().Seconds(), d.logger)
	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		handler:                session.handle,
		errorHandler:           session.fail,
		closeHandler:           session.finish,
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:      d.model,
		Language:   d.language,
		Punctuate:  true,
		Encoding:   "linear16",
		Channels:   blob.Channels,
		SampleRate: blob.SampleRate,
	}

	cOptions := &interfaces.ClientOptions{Host: d.host}
	client, err := listenClient.NewWSUsingCallback(ctx, d.apiKey, cOptions, tOptions, callback)
	if err != nil {
		return "", apperr.Service(deepgramOp, fmt.Errorf("failed to create Deepgram client: %w", err))
	}
	if !client.Connect() {
		return "", apperr.Service(deepgramOp, errors.New("failed to connect to Deepgram"))
	}
	defer client.Stop()

	pcm := blob.PCM()
	for offset := 0; offset < len(pcm); offset += writeChunkBytes {
		end := offset + writeChunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if _, err := client.Write(pcm[offset:end]); err != nil {
			return "", apperr.Service(deepgramOp, fmt.Errorf("failed to send audio to Deepgram: %w", err))
		}
	}
	if err := client.Finalize(); err != nil {
		return "", apperr.Service(deepgramOp, fmt.Errorf("failed to finalize Deepgram stream: %w", err))
	}

	select {
	case <-session.done:
	case <-ctx.Done():
		return "", apperr.Service(deepgramOp, fmt.Errorf("waiting for final transcript: %w", ctx.Err()))
	}

	text, err := session.result()
	if err != nil {
		return "", apperr.Response(deepgramOp, 0, err)
	}
	return checkText(deepgramOp, text)
}
