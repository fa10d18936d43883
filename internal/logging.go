package internal

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

var logOutput io.Writer = os.Stdout

// SetLogLevel sets the global level from a name such as "debug" or "warn".
// Unknown names select info.
func SetLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

// SetLogOutput redirects every logger created afterwards.
func SetLogOutput(w io.Writer) {
	if w != nil {
		logOutput = w
	}
}

// NewLogger returns a logger tagged with the hooktrigger component.
func NewLogger(component string) zerolog.Logger {
	name := "hooktrigger"
	if component != "" {
		name = name + "/" + component
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(logOutput).With().Timestamp().Str("component", name).Logger()
}

// WithRequestID returns a child logger carrying the request id.
func WithRequestID(logger zerolog.Logger, requestID string) zerolog.Logger {
	if requestID == "" {
		return logger
	}
	return logger.With().Str("request_id", requestID).Logger()
}

// watermillLogger adapts zerolog to watermill.LoggerAdapter.
type watermillLogger struct {
	logger zerolog.Logger
}

func newWatermillLogger(component string) watermill.LoggerAdapter {
	return watermillLogger{logger: NewLogger(component)}
}

func (l watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.logger.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.logger.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{logger: l.logger.With().Fields(map[string]interface{}(fields)).Logger()}
}
