package observability

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	globalLogger zerolog.Logger
	initOnce     sync.Once
)

// InitLogger initializes the global structured logger
func InitLogger(level string, pretty bool) {
	initOnce.Do(func() {
		var out io.Writer = os.Stdout
		if pretty {
			// Pretty console output for development
			out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		}
		globalLogger = NewLogger(out, level)

		// Set as global logger
		log.Logger = globalLogger
	})
}

// NewLogger builds a logger writing JSON lines to out at the given level.
// Unknown levels fall back to info.
func NewLogger(out io.Writer, level string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(logLevel).With().Timestamp().Logger()
}

// GetLogger returns the global logger
func GetLogger() zerolog.Logger {
	// Initialize with defaults if not already initialized
	InitLogger("info", false)
	return globalLogger
}

// Component returns a child of the global logger tagged with a component name
func Component(name string) zerolog.Logger {
	return GetLogger().With().Str("component", name).Logger()
}

// WithSessionID tags a logger with a session correlation ID, generating one when empty
func WithSessionID(logger zerolog.Logger, sessionID string) zerolog.Logger {
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	return logger.With().Str("session_id", sessionID).Logger()
}

// NewSessionID generates a new session correlation ID
func NewSessionID() string {
	return uuid.New().String()
}
