package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New constructs the service logger. Development environments get a console
// writer and debug level unless level says otherwise.
func New(service, appEnv, level string) zerolog.Logger {
	return NewWithWriter(os.Stdout, service, appEnv, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(out io.Writer, service, appEnv, level string) zerolog.Logger {
	lvl := parseLevel(level)
	if appEnv == "development" && strings.TrimSpace(level) == "" {
		lvl = zerolog.DebugLevel
	}

	if appEnv == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

func parseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}
