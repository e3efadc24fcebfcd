package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/lexiqai/voice-button/internal/apperr"
)

// Backend names accepted by the *_BACKEND settings
const (
	BackendOpenAI       = "openai"
	BackendDeepgram     = "deepgram"
	BackendPassthrough  = "passthrough"
	BackendElevenLabs   = "elevenlabs"
	BackendElevenLabsWS = "elevenlabs-ws"
	BackendPortAudio    = "portaudio"
	BackendSpeaker      = "speaker"
)

const defaultTransformModel = "gpt-3.5-turbo"

// Config holds all configuration for the voice button appliance
type Config struct {
	// Trigger (GPIO button, active-low with pull-up)
	ButtonPin        string `envconfig:"BUTTON_PIN" default:"GPIO16"`
	ButtonDebounceMs int    `envconfig:"BUTTON_DEBOUNCE_MS" default:"30"` // Minimum contiguous LOW before PRESSED
	PollIntervalMs   int    `envconfig:"POLL_INTERVAL_MS" default:"100"`  // Idle loop poll interval

	// Audio capture
	InputDeviceIndex    int `envconfig:"INPUT_DEVICE_INDEX" default:"-1"` // -1 uses the default input device
	CaptureSampleRate   int `envconfig:"CAPTURE_SAMPLE_RATE" default:"48000"`
	FramesPerBuffer     int `envconfig:"FRAMES_PER_BUFFER" default:"1024"`
	MinRecordSeconds    int `envconfig:"MIN_RECORD_SECONDS" default:"3"`
	MaxRecordSeconds    int `envconfig:"MAX_RECORD_SECONDS" default:"0"` // 0 means no cap while the button is held
	DeviceReadTimeoutMs int `envconfig:"DEVICE_READ_TIMEOUT_MS" default:"2000"`

	// Silence check before transcription; 0 disables it
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"0"`

	// Audio playback
	PlaybackBackend        string `envconfig:"PLAYBACK_BACKEND" default:"portaudio"` // portaudio, speaker
	OutputDeviceIndex      int    `envconfig:"OUTPUT_DEVICE_INDEX" default:"-1"`
	PlaybackTimeoutSeconds int    `envconfig:"PLAYBACK_TIMEOUT_SECONDS" default:"120"`

	// Shared service settings
	RequestTimeoutSeconds int `envconfig:"REQUEST_TIMEOUT_SECONDS" default:"30"`

	// OpenAI (whisper, chat completions, speech)
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:""` // Optional, for compatible gateways

	// Transcription
	STTBackend  string `envconfig:"STT_BACKEND" default:"openai"` // openai, deepgram
	STTModel    string `envconfig:"STT_MODEL" default:"whisper-1"`
	STTLanguage string `envconfig:"STT_LANGUAGE" default:""`

	// Deepgram STT API configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramHost     string `envconfig:"DEEPGRAM_HOST"`                   // empty uses api.deepgram.com
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// Transformation
	TransformBackend string `envconfig:"TRANSFORM_BACKEND" default:"openai"` // openai, passthrough
	TransformModel   string `envconfig:"TRANSFORM_MODEL"`                     // persona model, then gpt-3.5-turbo
	Persona          string `envconfig:"PERSONA" default:"polite"`
	SystemPrompt     string `envconfig:"SYSTEM_PROMPT" default:""` // Overrides the persona's prompt when set
	ProfilesFile     string `envconfig:"PROFILES_FILE" default:""`

	// Synthesis
	TTSBackend     string `envconfig:"TTS_BACKEND"`                 // openai, elevenlabs, elevenlabs-ws; persona backend, then openai
	OpenAITTSModel string `envconfig:"OPENAI_TTS_MODEL" default:"tts-1"`
	OpenAITTSVoice string `envconfig:"OPENAI_TTS_VOICE" default:"alloy"`

	// ElevenLabs TTS API configuration
	ElevenLabsAPIKey                   string  `envconfig:"ELEVENLABS_API_KEY"`
	ElevenLabsVoiceID                  string  `envconfig:"ELEVENLABS_VOICE_ID" default:"fxO7BD0lOiWADH5LwvFr"`
	ElevenLabsModelID                  string  `envconfig:"ELEVENLABS_MODEL_ID" default:"eleven_turbo_v2_5"`
	ElevenLabsOutputFormat             string  `envconfig:"ELEVENLABS_OUTPUT_FORMAT" default:"mp3_22050_32"`
	ElevenLabsOptimizeStreamingLatency int     `envconfig:"ELEVENLABS_OPTIMIZE_STREAMING_LATENCY" default:"0"`
	VoiceStability                     float64 `envconfig:"VOICE_STABILITY" default:"0.2"`
	VoiceSimilarityBoost               float64 `envconfig:"VOICE_SIMILARITY_BOOST" default:"0.9"`
	VoiceStyle                         float64 `envconfig:"VOICE_STYLE" default:"0.4"`
	VoiceSpeakerBoost                  bool    `envconfig:"VOICE_SPEAKER_BOOST" default:"true"`

	// Resilience configuration
	RetryMaxAttempts    int `envconfig:"RETRY_MAX_ATTEMPTS" default:"1"`      // 1 disables retries
	RetryInitialBackoff int `envconfig:"RETRY_INITIAL_BACKOFF" default:"250"` // Initial backoff in milliseconds
	BreakerMaxFailures  int `envconfig:"BREAKER_MAX_FAILURES" default:"0"`    // Consecutive transient failures before a stage fails fast; 0 disables
	BreakerResetSeconds int `envconfig:"BREAKER_RESET_SECONDS" default:"30"`

	// Observability configuration
	StatusPort     string `envconfig:"STATUS_PORT" default:"9090"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Serve /health, /ready, /status, /metrics

	// Resolved persona, filled by Load
	Profile Profile `ignored:"true"`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments).
// Every failure is a ConfigurationError.
func LoadFromEnv() (*Config, error) {
	cfg, err := loadFromEnv()
	if err != nil {
		return nil, apperr.Configuration("config", err)
	}
	return cfg, nil
}

func loadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	profiles := BuiltinProfiles()
	if cfg.ProfilesFile != "" {
		loaded, err := LoadProfiles(cfg.ProfilesFile)
		if err != nil {
			return nil, err
		}
		for name, p := range loaded {
			profiles[name] = p
		}
	}
	profile, ok := profiles[cfg.Persona]
	if !ok {
		return nil, fmt.Errorf("unknown persona %q", cfg.Persona)
	}
	cfg.applyProfile(profile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyProfile resolves the persona. Explicit settings win over the profile,
// which wins over the built-in defaults.
func (c *Config) applyProfile(p Profile) {
	c.TransformModel = firstNonEmpty(c.TransformModel, p.Model, defaultTransformModel)
	c.TTSBackend = firstNonEmpty(c.TTSBackend, p.TTSBackend, BackendOpenAI)
	p.SystemPrompt = firstNonEmpty(c.SystemPrompt, p.SystemPrompt)
	c.Profile = p
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Validate checks backend selections, the credentials they need, and numeric ranges.
func (c *Config) Validate() error {
	switch c.STTBackend {
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for STT_BACKEND=%s", c.STTBackend)
		}
	case BackendDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required for STT_BACKEND=%s", c.STTBackend)
		}
	default:
		return fmt.Errorf("unsupported STT_BACKEND %q", c.STTBackend)
	}

	switch c.TransformBackend {
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for TRANSFORM_BACKEND=%s", c.TransformBackend)
		}
		if c.Profile.SystemPrompt == "" {
			return fmt.Errorf("persona %q has no system prompt", c.Persona)
		}
	case BackendPassthrough:
	default:
		return fmt.Errorf("unsupported TRANSFORM_BACKEND %q", c.TransformBackend)
	}

	switch c.TTSBackend {
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for TTS_BACKEND=%s", c.TTSBackend)
		}
	case BackendElevenLabs, BackendElevenLabsWS:
		if c.ElevenLabsAPIKey == "" {
			return fmt.Errorf("ELEVENLABS_API_KEY is required for TTS_BACKEND=%s", c.TTSBackend)
		}
	default:
		return fmt.Errorf("unsupported TTS_BACKEND %q", c.TTSBackend)
	}

	switch c.PlaybackBackend {
	case BackendPortAudio, BackendSpeaker:
	default:
		return fmt.Errorf("unsupported PLAYBACK_BACKEND %q", c.PlaybackBackend)
	}

	for name, v := range map[string]float64{
		"VOICE_STABILITY":        c.VoiceStability,
		"VOICE_SIMILARITY_BOOST": c.VoiceSimilarityBoost,
		"VOICE_STYLE":            c.VoiceStyle,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", name, v)
		}
	}

	if c.ButtonDebounceMs < 0 {
		return fmt.Errorf("BUTTON_DEBOUNCE_MS must not be negative")
	}
	if c.PollIntervalMs <= 0 {
		return fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	if c.CaptureSampleRate <= 0 || c.FramesPerBuffer <= 0 {
		return fmt.Errorf("CAPTURE_SAMPLE_RATE and FRAMES_PER_BUFFER must be positive")
	}
	if c.MinRecordSeconds < 0 || c.MaxRecordSeconds < 0 {
		return fmt.Errorf("record durations must not be negative")
	}
	if c.MaxRecordSeconds > 0 && c.MaxRecordSeconds < c.MinRecordSeconds {
		return fmt.Errorf("MAX_RECORD_SECONDS must be at least MIN_RECORD_SECONDS")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.BreakerMaxFailures < 0 {
		return fmt.Errorf("BREAKER_MAX_FAILURES must not be negative")
	}
	if c.BreakerMaxFailures > 0 && c.BreakerResetSeconds <= 0 {
		return fmt.Errorf("BREAKER_RESET_SECONDS must be positive when the breaker is enabled")
	}
	return nil
}

// Debounce returns the trigger debounce threshold
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.ButtonDebounceMs) * time.Millisecond
}

// PollInterval returns the idle loop interval
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// RequestTimeout bounds a single outbound service call
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
