package stt

import (
	"context"
	"errors"
	"strings"

	"github.com/lexiqai/voice-button/internal/apperr"
	"github.com/lexiqai/voice-button/internal/audio"
)

// Transcriber is the interface for speech-to-text adapters.
// Each call performs exactly one outbound request.
type Transcriber interface {
	// Transcribe returns the text spoken in blob. Blank results are EmptyResultErrors.
	Transcribe(ctx context.Context, blob *audio.Blob) (string, error)

	// Name identifies the backend in logs
	Name() string
}

// ErrNoSpeech is wrapped by the EmptyResultError returned for blank transcripts
var ErrNoSpeech = errors.New("no speech detected")

// checkText trims the transcript and rejects empty or whitespace-only text.
func checkText(op, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.Empty(op, ErrNoSpeech)
	}
	return text, nil
}
