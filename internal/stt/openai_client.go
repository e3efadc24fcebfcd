package stt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/lexiqai/voice-button/internal/apperr"
	"github.com/lexiqai/voice-button/internal/audio"
	"github.com/lexiqai/voice-button/internal/oaiclient"
)

const openAIOp = "stt.openai"

// uploadName is the file name sent with the multipart upload; the API infers the format from it.
const uploadName = "recorded_audio.wav"

// OpenAIClient transcribes recordings with the Whisper transcription endpoint
type OpenAIClient struct {
	client   *openai.Client
	model    string
	language string
	logger   zerolog.Logger
}

// NewOpenAIClient creates a transcriber over an OpenAI client
func NewOpenAIClient(client *openai.Client, model, language string, logger zerolog.Logger) *OpenAIClient {
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIClient{
		client:   client,
		model:    model,
		language: language,
		logger:   logger.With().Str("component", openAIOp).Logger(),
	}
}

// Name returns the backend name
func (c *OpenAIClient) Name() string {
	return "openai"
}

// Transcribe uploads the recording as WAV and returns the trimmed text
func (c *OpenAIClient) Transcribe(ctx context.Context, blob *audio.Blob) (string, error) {
	wav, err := blob.WAV()
	if err != nil {
		return "", apperr.Device(openAIOp, fmt.Errorf("failed to encode recording: %w", err))
	}

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: uploadName,
		Reader:   bytes.NewReader(wav),
		Language: c.language,
	})
	if err != nil {
		return "", oaiclient.ClassifyError(openAIOp, err)
	}

	c.logger.Debug().
		Int("wav_bytes", len(wav)).
		Dur("audio", blob.Duration()).
		Str("text", resp.Text).
		Msg("Transcription received")
	return checkText(openAIOp, resp.Text)
}
