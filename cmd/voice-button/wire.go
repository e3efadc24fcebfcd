package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/lexiqai/voice-button/internal/apperr"
	"github.com/lexiqai/voice-button/internal/audio"
	"github.com/lexiqai/voice-button/internal/config"
	"github.com/lexiqai/voice-button/internal/llm"
	"github.com/lexiqai/voice-button/internal/oaiclient"
	"github.com/lexiqai/voice-button/internal/observability"
	"github.com/lexiqai/voice-button/internal/orchestrator"
	"github.com/lexiqai/voice-button/internal/playback"
	"github.com/lexiqai/voice-button/internal/resilience"
	"github.com/lexiqai/voice-button/internal/stt"
	"github.com/lexiqai/voice-button/internal/tts"
)

// buildDependencies creates the recorder, adapters and player selected by cfg
func buildDependencies(cfg *config.Config, button orchestrator.Trigger, logger zerolog.Logger) (orchestrator.Dependencies, error) {
	var oai *openai.Client
	if cfg.OpenAIAPIKey != "" {
		oai = oaiclient.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.RequestTimeout())
	}

	transcriber, err := newTranscriber(cfg, oai, logger)
	if err != nil {
		return orchestrator.Dependencies{}, err
	}
	synthesizer, err := newSynthesizer(cfg, oai, logger)
	if err != nil {
		return orchestrator.Dependencies{}, err
	}

	source := audio.NewPortAudioSource(cfg.InputDeviceIndex, cfg.CaptureSampleRate, cfg.FramesPerBuffer, logger)
	recorder := audio.NewRecorder(source, audio.CaptureConfig{
		MinDuration: time.Duration(cfg.MinRecordSeconds) * time.Second,
		MaxDuration: time.Duration(cfg.MaxRecordSeconds) * time.Second,
		ReadTimeout: time.Duration(cfg.DeviceReadTimeoutMs) * time.Millisecond,
	}, logger)

	return orchestrator.Dependencies{
		Trigger:     button,
		Recorder:    recorder,
		Transcriber: transcriber,
		Transformer: newTransformer(cfg, oai, logger),
		Synthesizer: synthesizer,
		Player:      newPlayer(cfg, logger),
	}, nil
}

func newTranscriber(cfg *config.Config, oai *openai.Client, logger zerolog.Logger) (stt.Transcriber, error) {
	switch cfg.STTBackend {
	case config.BackendOpenAI:
		return stt.NewOpenAIClient(oai, cfg.STTModel, cfg.STTLanguage, logger), nil
	case config.BackendDeepgram:
		return stt.NewDeepgramClient(cfg.DeepgramAPIKey, cfg.DeepgramHost, cfg.DeepgramModel, cfg.DeepgramLanguage, logger), nil
	default:
		return nil, apperr.Configuration("stt", fmt.Errorf("unsupported backend %q", cfg.STTBackend))
	}
}

func newTransformer(cfg *config.Config, oai *openai.Client, logger zerolog.Logger) llm.Transformer {
	if cfg.TransformBackend == config.BackendPassthrough {
		return llm.Passthrough{}
	}
	return llm.NewOpenAITransformer(oai, cfg.TransformModel, cfg.Profile.SystemPrompt, logger)
}

func newSynthesizer(cfg *config.Config, oai *openai.Client, logger zerolog.Logger) (tts.Synthesizer, error) {
	switch cfg.TTSBackend {
	case config.BackendOpenAI:
		return tts.NewOpenAIClient(oai, cfg.OpenAITTSModel, cfg.OpenAITTSVoice, logger), nil
	case config.BackendElevenLabs:
		return tts.NewElevenLabsClient(elevenLabsConfig(cfg), logger)
	case config.BackendElevenLabsWS:
		return tts.NewElevenLabsWSClient(elevenLabsConfig(cfg), logger)
	default:
		return nil, apperr.Configuration("tts", fmt.Errorf("unsupported backend %q", cfg.TTSBackend))
	}
}

func elevenLabsConfig(cfg *config.Config) tts.ElevenLabsConfig {
	return tts.ElevenLabsConfig{
		APIKey:                   cfg.ElevenLabsAPIKey,
		VoiceID:                  cfg.ElevenLabsVoiceID,
		ModelID:                  cfg.ElevenLabsModelID,
		OutputFormat:             cfg.ElevenLabsOutputFormat,
		OptimizeStreamingLatency: cfg.ElevenLabsOptimizeStreamingLatency,
		Settings: tts.VoiceSettings{
			Stability:       cfg.VoiceStability,
			SimilarityBoost: cfg.VoiceSimilarityBoost,
			Style:           cfg.VoiceStyle,
			SpeakerBoost:    cfg.VoiceSpeakerBoost,
		},
		Timeout: cfg.RequestTimeout(),
	}
}

func newPlayer(cfg *config.Config, logger zerolog.Logger) playback.Player {
	timeout := time.Duration(cfg.PlaybackTimeoutSeconds) * time.Second
	if cfg.PlaybackBackend == config.BackendSpeaker {
		return playback.NewSpeakerPlayer(44100, timeout, logger)
	}
	return playback.NewPortAudioPlayer(cfg.OutputDeviceIndex, cfg.FramesPerBuffer, timeout, logger)
}

// orchestratorConfig maps the loop, retry and silence-check settings
func orchestratorConfig(cfg *config.Config, logger zerolog.Logger) orchestrator.Config {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.RetryMaxAttempts
	retry.InitialBackoff = time.Duration(cfg.RetryInitialBackoff) * time.Millisecond

	var vad *audio.VADConfig
	if cfg.VADEnergyThreshold > 0 {
		vad = audio.DefaultVADConfig()
		vad.EnergyThreshold = cfg.VADEnergyThreshold
		vad.FrameSize = cfg.CaptureSampleRate / 50
	}

	return orchestrator.Config{
		PollInterval: cfg.PollInterval(),
		StageTimeout: cfg.RequestTimeout(),
		Retry:        retry,
		VAD:          vad,
		Logger:       logger,

		BreakerFailures: cfg.BreakerMaxFailures,
		BreakerReset:    time.Duration(cfg.BreakerResetSeconds) * time.Second,
	}
}

// readinessChecks verify that the configured audio devices resolve
func readinessChecks(cfg *config.Config) map[string]observability.HealthCheckFunc {
	checks := map[string]observability.HealthCheckFunc{
		"input_device": func(ctx context.Context) (bool, error) {
			if _, err := audio.InputDevice(cfg.InputDeviceIndex); err != nil {
				return false, err
			}
			return true, nil
		},
	}
	if cfg.PlaybackBackend == config.BackendPortAudio {
		checks["output_device"] = func(ctx context.Context) (bool, error) {
			if _, err := audio.OutputDevice(cfg.OutputDeviceIndex); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return checks
}
