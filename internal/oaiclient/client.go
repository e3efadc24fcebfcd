// Package oaiclient builds the OpenAI API client shared by the transcription,
// transformation and speech adapters, and maps its errors onto apperr kinds.
package oaiclient

import (
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lexiqai/voice-button/internal/apperr"
)

// New creates a client. baseURL may be empty for the public API.
func New(apiKey, baseURL string, timeout time.Duration) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(cfg)
}

// ClassifyError turns a go-openai error into a ServiceError whose cause separates
// error replies from the API (with status) from timeouts and network failures.
func ClassifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apperr.Response(op, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return apperr.Response(op, reqErr.HTTPStatusCode, err)
	}
	return apperr.Service(op, err)
}
