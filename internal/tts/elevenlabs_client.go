package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-button/internal/apperr"
)

const (
	elevenLabsOp      = "tts.elevenlabs"
	elevenLabsBaseURL = "https://api.elevenlabs.io/v1"
)

// ElevenLabsConfig configures both ElevenLabs synthesizers
type ElevenLabsConfig struct {
	APIKey                   string
	VoiceID                  string
	ModelID                  string
	OutputFormat             string // e.g. mp3_22050_32
	OptimizeStreamingLatency int
	Settings                 VoiceSettings
	BaseURL                  string // defaults to the public API; ws URLs are derived from it
	Timeout                  time.Duration
}

func (c *ElevenLabsConfig) validate() (Format, error) {
	if c.APIKey == "" {
		return Format{}, apperr.Configuration(elevenLabsOp, errors.New("ElevenLabs API key is required"))
	}
	if c.VoiceID == "" {
		return Format{}, apperr.Configuration(elevenLabsOp, errors.New("ElevenLabs voice id is required"))
	}
	if err := c.Settings.Validate(); err != nil {
		return Format{}, apperr.Configuration(elevenLabsOp, err)
	}
	format, err := ParseOutputFormat(c.OutputFormat)
	if err != nil {
		return Format{}, apperr.Configuration(elevenLabsOp, err)
	}
	if c.BaseURL == "" {
		c.BaseURL = elevenLabsBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return format, nil
}

// elevenLabsRequest is the request payload for the text-to-speech endpoints
type elevenLabsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id,omitempty"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// ElevenLabsClient synthesizes over the HTTP streaming endpoint, accumulating chunks as they arrive
type ElevenLabsClient struct {
	config     ElevenLabsConfig
	format     Format
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewElevenLabsClient creates a new ElevenLabs HTTP synthesizer
func NewElevenLabsClient(cfg ElevenLabsConfig, logger zerolog.Logger) (*ElevenLabsClient, error) {
	format, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	return &ElevenLabsClient{
		config:     cfg,
		format:     format,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With().Str("component", elevenLabsOp).Logger(),
	}, nil
}

// Name returns the backend name
func (c *ElevenLabsClient) Name() string {
	return "elevenlabs"
}

// Synthesize posts text to /text-to-speech/{voice}/stream and reads the chunked reply
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string) (*Audio, error) {
	body, err := json.Marshal(elevenLabsRequest{
		Text:          text,
		ModelID:       c.config.ModelID,
		VoiceSettings: c.config.Settings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	q := url.Values{}
	q.Set("output_format", c.config.OutputFormat)
	q.Set("optimize_streaming_latency", strconv.Itoa(c.config.OptimizeStreamingLatency))
	endpoint := fmt.Sprintf("%s/text-to-speech/%s/stream?%s", c.config.BaseURL, url.PathEscape(c.config.VoiceID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Service(elevenLabsOp, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseElevenLabsError(resp)
	}

	chunks, err := readChunks(resp.Body, 4096)
	if err != nil {
		return nil, apperr.Service(elevenLabsOp, fmt.Errorf("failed to read audio stream: %w", err))
	}
	audio := &Audio{Chunks: chunks, Format: c.format}
	if audio.Len() == 0 {
		return nil, apperr.Response(elevenLabsOp, resp.StatusCode, errors.New("audio stream is empty"))
	}

	c.logger.Debug().
		Int("chars", len(text)).
		Int("bytes", audio.Len()).
		Int("chunks", len(chunks)).
		Str("model", c.config.ModelID).
		Msg("Synthesized audio")
	return audio, nil
}

// Model is an entry of the ElevenLabs model catalogue
type Model struct {
	ModelID           string `json:"model_id"`
	Name              string `json:"name"`
	CanDoTextToSpeech bool   `json:"can_do_text_to_speech"`
	Description       string `json:"description,omitempty"`
}

// Models lists the models available to the API key
func (c *ElevenLabsClient) Models(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("xi-api-key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Service(elevenLabsOp, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseElevenLabsError(resp)
	}

	var models []Model
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return nil, apperr.Response(elevenLabsOp, resp.StatusCode, fmt.Errorf("failed to decode models: %w", err))
	}
	return models, nil
}

// parseElevenLabsError extracts detail.message from an error reply when present
func parseElevenLabsError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &payload) == nil && len(payload.Detail) > 0 {
		var detail struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}
		var text string
		if json.Unmarshal(payload.Detail, &detail) == nil && detail.Message != "" {
			msg = detail.Message
		} else if json.Unmarshal(payload.Detail, &text) == nil && text != "" {
			msg = text
		}
	}
	return apperr.FromHTTPStatus(elevenLabsOp, resp.StatusCode, msg)
}
