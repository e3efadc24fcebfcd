// Package llm rewrites transcripts through a text-generation service under a persona.
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/lexiqai/voice-button/internal/apperr"
	"github.com/lexiqai/voice-button/internal/oaiclient"
)

// Transformer turns a transcript into the text that will be spoken back
type Transformer interface {
	Transform(ctx context.Context, text string) (string, error)
	Name() string
}

const openAIOp = "llm.openai"

// OpenAITransformer sends the persona as the system message and the transcript as the user message
type OpenAITransformer struct {
	client  *openai.Client
	model   string
	persona string
	logger  zerolog.Logger
}

// NewOpenAITransformer creates a chat-completions transformer
func NewOpenAITransformer(client *openai.Client, model, persona string, logger zerolog.Logger) *OpenAITransformer {
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	return &OpenAITransformer{
		client:  client,
		model:   model,
		persona: persona,
		logger:  logger.With().Str("component", openAIOp).Logger(),
	}
}

// Name returns the backend name
func (t *OpenAITransformer) Name() string {
	return "openai"
}

// Transform returns the first completion choice
func (t *OpenAITransformer) Transform(ctx context.Context, text string) (string, error) {
	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: t.persona},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", oaiclient.ClassifyError(openAIOp, err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.Response(openAIOp, 200, errors.New("completion has no choices"))
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", apperr.Response(openAIOp, 200, errors.New("completion is empty"))
	}

	t.logger.Debug().
		Str("model", t.model).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("Completion received")
	return out, nil
}

// Passthrough speaks the transcript back unchanged
type Passthrough struct{}

// Name returns the backend name
func (Passthrough) Name() string {
	return "passthrough"
}

// Transform returns text as is
func (Passthrough) Transform(ctx context.Context, text string) (string, error) {
	return text, nil
}
