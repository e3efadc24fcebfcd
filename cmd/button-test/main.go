// Command button-test prints debounced press and release transitions of the
// trigger button until interrupted.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexiqai/voice-button/internal/observability"
	"github.com/lexiqai/voice-button/internal/trigger"
)

func main() {
	pin := flag.String("pin", "GPIO16", "Button pin name")
	debounce := flag.Duration("debounce", 30*time.Millisecond, "Minimum contiguous LOW before a press counts")
	interval := flag.Duration("interval", 10*time.Millisecond, "Poll interval")
	flag.Parse()

	observability.InitLogger("info", true)
	logger := observability.Component("button-test")

	button, err := trigger.Open(*pin, *debounce)
	if err != nil {
		logger.Error().Err(err).Str("pin", *pin).Msg("Failed to open button")
		os.Exit(1)
	}
	defer button.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	logger.Info().Str("pin", button.Name()).Msg("Watching button, Ctrl+C to stop")
	last := trigger.Released
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if state := button.Poll(); state != last {
			logger.Info().Str("state", state.String()).Msg("Button changed")
			last = state
		}
	}
}
