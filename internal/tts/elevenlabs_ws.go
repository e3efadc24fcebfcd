package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-button/internal/apperr"
)

const elevenLabsWSOp = "tts.elevenlabs_ws"

// wsMessage is one server frame on the stream-input socket
type wsMessage struct {
	Audio   *string `json:"audio"`
	IsFinal bool    `json:"isFinal"`
	Message string  `json:"message,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// ElevenLabsWSClient synthesizes over the stream-input WebSocket, one connection per utterance
type ElevenLabsWSClient struct {
	config ElevenLabsConfig
	format Format
	wsURL  string
	dialer websocket.Dialer
	logger zerolog.Logger
}

// NewElevenLabsWSClient creates a WebSocket synthesizer
func NewElevenLabsWSClient(cfg ElevenLabsConfig, logger zerolog.Logger) (*ElevenLabsWSClient, error) {
	format, err := cfg.validate()
	if err != nil {
		return nil, err
	}

	base := cfg.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	q := url.Values{}
	q.Set("model_id", cfg.ModelID)
	q.Set("output_format", cfg.OutputFormat)

	return &ElevenLabsWSClient{
		config: cfg,
		format: format,
		wsURL:  fmt.Sprintf("%s/text-to-speech/%s/stream-input?%s", base, url.PathEscape(cfg.VoiceID), q.Encode()),
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger.With().Str("component", elevenLabsWSOp).Logger(),
	}, nil
}

// Name returns the backend name
func (c *ElevenLabsWSClient) Name() string {
	return "elevenlabs-ws"
}

// Synthesize sends BOS, the text and EOS, then collects audio frames until isFinal or close
func (c *ElevenLabsWSClient) Synthesize(ctx context.Context, text string) (*Audio, error) {
	headers := http.Header{}
	headers.Set("xi-api-key", c.config.APIKey)

	conn, resp, err := c.dialer.DialContext(ctx, c.wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, apperr.FromHTTPStatus(elevenLabsWSOp, resp.StatusCode, err.Error())
		}
		return nil, apperr.Service(elevenLabsWSOp, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, c.transportError(ctx, fmt.Errorf("failed to set read deadline: %w", err))
		}
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return nil, c.transportError(ctx, fmt.Errorf("failed to set write deadline: %w", err))
		}
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	messages := []map[string]any{
		{"text": " ", "voice_settings": c.config.Settings},
		{"text": text + " ", "try_trigger_generation": true},
		{"text": ""},
	}
	for _, msg := range messages {
		if err := conn.WriteJSON(msg); err != nil {
			return nil, c.transportError(ctx, fmt.Errorf("failed to send message: %w", err))
		}
	}

	audio := &Audio{Format: c.format}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && audio.Len() > 0 {
				break
			}
			return nil, c.transportError(ctx, fmt.Errorf("failed to read audio: %w", err))
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to parse frame")
			continue
		}
		if msg.Error != "" {
			return nil, apperr.Response(elevenLabsWSOp, 0, fmt.Errorf("%s: %s", msg.Error, msg.Message))
		}
		if msg.Audio != nil && *msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(*msg.Audio)
			if err != nil {
				return nil, apperr.Response(elevenLabsWSOp, 0, fmt.Errorf("failed to decode audio: %w", err))
			}
			audio.Chunks = append(audio.Chunks, chunk)
		}
		if msg.IsFinal {
			break
		}
	}

	if audio.Len() == 0 {
		return nil, apperr.Response(elevenLabsWSOp, 0, errors.New("no audio received"))
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	c.logger.Debug().
		Int("chars", len(text)).
		Int("bytes", audio.Len()).
		Int("chunks", len(audio.Chunks)).
		Msg("Synthesized audio")
	return audio, nil
}

// transportError prefers the context error so deadlines surface as timeouts
func (c *ElevenLabsWSClient) transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return apperr.Service(elevenLabsWSOp, fmt.Errorf("%w: %v", ctxErr, err))
	}
	return apperr.Service(elevenLabsWSOp, err)
}
