// Package logging defines the Logger collaborator that telemetry forwards
// events to, plus the sinks and the non-blocking dispatcher that sit behind it.
package logging

//go:generate mockgen -source=logging.go -destination=mocks/mocks.go -package=mocks Logger

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Logger accepts one structured log record. Implementations may block or fail;
// callers that must not block wrap them in a Dispatcher.
type Logger interface {
	Log(ctx context.Context, level slog.Level, source, message string, fields map[string]any) error
}

// Record is a log call captured for asynchronous delivery or encoding by a sink.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Source    string         `json:"source"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`

	level     slog.Level
	requestID string
}

// NewRecord captures a log call at the current time.
func NewRecord(level slog.Level, source, message string, fields map[string]any) Record {
	return Record{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Source:    source,
		Message:   message,
		Fields:    fields,
		level:     level,
	}
}

// SlogLogger writes records to a *slog.Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps logger. A nil logger uses slog.Default().
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

func (l *SlogLogger) Log(ctx context.Context, level slog.Level, source, message string, fields map[string]any) error {
	attrs := make([]slog.Attr, 0, len(fields)+1)
	attrs = append(attrs, slog.String("source", source))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.LogAttrs(ctx, level, message, attrs...)
	return nil
}

// Fanout delivers each record to every sink in order. All sinks are attempted
// even when one fails; the failures are joined.
type Fanout []Logger

func (f Fanout) Log(ctx context.Context, level slog.Level, source, message string, fields map[string]any) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Log(ctx, level, source, message, fields); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
