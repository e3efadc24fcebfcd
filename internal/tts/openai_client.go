package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/lexiqai/voice-button/internal/apperr"
	"github.com/lexiqai/voice-button/internal/oaiclient"
)

const openAIOp = "tts.openai"

// OpenAIClient synthesizes speech with the OpenAI speech endpoint (mp3)
type OpenAIClient struct {
	client *openai.Client
	model  string
	voice  string
	logger zerolog.Logger
}

// NewOpenAIClient creates an OpenAI speech synthesizer
func NewOpenAIClient(client *openai.Client, model, voice string, logger zerolog.Logger) *OpenAIClient {
	if model == "" {
		model = string(openai.TTSModel1)
	}
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &OpenAIClient{
		client: client,
		model:  model,
		voice:  voice,
		logger: logger.With().Str("component", openAIOp).Logger(),
	}
}

// Name returns the backend name
func (c *OpenAIClient) Name() string {
	return "openai"
}

// Synthesize requests mp3 speech and collects the streamed body
func (c *OpenAIClient) Synthesize(ctx context.Context, text string) (*Audio, error) {
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.model),
		Input:          text,
		Voice:          openai.SpeechVoice(c.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, oaiclient.ClassifyError(openAIOp, err)
	}
	defer resp.Close()

	chunks, err := readChunks(resp, 8192)
	if err != nil {
		return nil, apperr.Service(openAIOp, fmt.Errorf("failed to read speech stream: %w", err))
	}
	audio := &Audio{Chunks: chunks, Format: Format{Encoding: EncodingMP3, SampleRate: 24000, Channels: 1}}
	if audio.Len() == 0 {
		return nil, apperr.Response(openAIOp, 200, errors.New("speech response is empty"))
	}

	c.logger.Debug().
		Int("chars", len(text)).
		Int("bytes", audio.Len()).
		Int("chunks", len(chunks)).
		Msg("Speech received")
	return audio, nil
}
