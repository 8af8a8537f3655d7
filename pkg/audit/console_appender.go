package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ruslano69/ezsearch/pkg/diag"
)

// ConsoleAppender - запись через zerolog (консоль или общий лог процесса)
type ConsoleAppender struct {
	logger zerolog.Logger
	level  Level
}

// NewConsoleAppender - создать console appender поверх логгера
func NewConsoleAppender(logger zerolog.Logger, level Level) *ConsoleAppender {
	return &ConsoleAppender{
		logger: logger.With().Str("component", "audit").Logger(),
		level:  level,
	}
}

// Append - одно событие лога на entry; failure = error, partial = warn
func (ca *ConsoleAppender) Append(ctx context.Context, entry *Entry) error {
	e := entry.FilterByLevel(ca.level)

	var event *zerolog.Event
	switch e.Status {
	case diag.StatusFailure:
		event = ca.logger.Error()
	case diag.StatusPartial:
		event = ca.logger.Warn()
	default:
		event = ca.logger.Info()
	}

	event = event.
		Str("audit_id", e.ID).
		Str("request_id", e.RequestID).
		Str("operation", string(e.Operation)).
		Str("status", string(e.Status)).
		Str("table", e.Table).
		Int("rows", e.Rows).
		Int("visible", e.Visible).
		Dur("duration", e.Duration)

	if e.User != "" {
		event = event.Str("user", e.User)
	}
	if e.Key != "" {
		event = event.Str("key", e.Key)
	}
	if e.Kind != "" {
		event = event.Str("kind", e.Kind)
	}
	if e.Failed > 0 {
		event = event.Int("sources", e.Sources).Int("failed", e.Failed)
	}
	if e.Path != "" {
		event = event.Str("path", e.Path)
	}
	if len(e.Diagnostics) > 0 {
		event = event.Strs("diagnostics", e.Diagnostics)
	}
	if e.ErrorMessage != "" {
		event = event.Str("error", e.ErrorMessage)
	}

	event.Msg("audit")
	return nil
}

// Close - noop
func (ca *ConsoleAppender) Close() error {
	return nil
}
