package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-button/internal/apperr"
	"github.com/lexiqai/voice-button/internal/audio"
	"github.com/lexiqai/voice-button/internal/config"
	"github.com/lexiqai/voice-button/internal/observability"
	"github.com/lexiqai/voice-button/internal/orchestrator"
	"github.com/lexiqai/voice-button/internal/trigger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("button_pin", cfg.ButtonPin).
		Str("persona", cfg.Persona).
		Str("stt_backend", cfg.STTBackend).
		Str("transform_backend", cfg.TransformBackend).
		Str("tts_backend", cfg.TTSBackend).
		Str("playback_backend", cfg.PlaybackBackend).
		Str("log_level", cfg.LogLevel).
		Msg("Voice button starting")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Str("kind", apperr.KindOf(err).String()).Msg("Voice button failed")
	}
	logger.Info().Msg("Voice button exited gracefully")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	button, err := trigger.Open(cfg.ButtonPin, cfg.Debounce())
	if err != nil {
		return err
	}
	defer func() {
		if err := button.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to release button pin")
		}
	}()

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	deps, err := buildDependencies(cfg, button, logger)
	if err != nil {
		return err
	}
	defer deps.Player.Close()

	orch, err := orchestrator.New(orchestratorConfig(cfg, logger), deps)
	if err != nil {
		return err
	}

	var server *http.Server
	if cfg.MetricsEnabled {
		server = startStatusServer(cfg, orch, logger)
	}

	runErr := orch.Run(ctx)
	logger.Info().Msg("Shutting down...")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Status server forced to shutdown")
		}
	}
	return runErr
}

// startStatusServer serves /health, /ready, /status and /metrics
func startStatusServer(cfg *config.Config, orch *orchestrator.Orchestrator, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(readinessChecks(cfg)))
	mux.HandleFunc("/status", observability.StatusHandler(orch.Snapshot))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.StatusPort),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.StatusPort).Msg("Status server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Status server failed")
		}
	}()
	return server
}
