package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger constructs a zerolog.Logger with sane defaults for the service.
func NewLogger(appEnv string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", "metapro").
		Logger()

	if appEnv == "development" || appEnv == "cli" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return logger
}

// Logger aliases the zerolog.Logger so callers outside the infra package can
// depend on the logging contract without importing the third-party module
// directly.
type Logger = zerolog.Logger

// OrDiscard returns l, or a logger that drops everything when l is nil.
func OrDiscard(l *Logger) *Logger {
	if l != nil {
		return l
	}
	discard := zerolog.New(io.Discard)
	return &discard
}
