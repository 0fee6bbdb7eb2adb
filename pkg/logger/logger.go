// Package logger configures the zerolog instance shared by every component
// of the service.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger embeds zerolog.Logger so call sites use the zerolog API directly.
type Logger struct {
	zerolog.Logger
}

// New builds the service-wide logger. Development output goes through the
// console writer for readability; every other environment emits JSON lines
// for the log pipeline. ATTENDLY_LOG_LEVEL overrides the default info level.
func New(service, environment string) *Logger {
	var out io.Writer = os.Stdout
	if environment == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	level := zerolog.InfoLevel
	if raw := os.Getenv("ATTENDLY_LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(raw)); err == nil {
			level = parsed
		}
	}

	l := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()

	return &Logger{Logger: l}
}

// WithField returns a child logger carrying one extra string field.
func (l *Logger) WithField(key, value string) *Logger {
	return &Logger{Logger: l.Logger.With().Str(key, value).Logger()}
}

// WithComponent names the component emitting subsequent lines.
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithField("component", component)
}
