package logging

import (
	"context"
	"log/slog"
	"time"
)

// Attr field name constants shared across components so log output stays
// greppable.
const (
	FieldComponent = "component"
	FieldEvent     = "event"
	FieldError     = "error"
	FieldErrorHint = "error_hint"

	FieldSegmentID = "segment_id"
	FieldBatchID   = "batch_id"
	FieldCardID    = "card_id"
	FieldPeriod    = "period"
	FieldDigestDay = "digest_day"
	FieldDuration  = "duration"
	FieldCount     = "count"
	FieldPath      = "path"
	FieldStatus    = "status"
)

// String builds a string attribute.
func String(key, value string) slog.Attr { return slog.String(key, value) }

// Int builds an int attribute.
func Int(key string, value int) slog.Attr { return slog.Int(key, value) }

// Int64 builds an int64 attribute.
func Int64(key string, value int64) slog.Attr { return slog.Int64(key, value) }

// Float64 builds a float64 attribute.
func Float64(key string, value float64) slog.Attr { return slog.Float64(key, value) }

// Bool builds a bool attribute.
func Bool(key string, value bool) slog.Attr { return slog.Bool(key, value) }

// Duration builds a duration attribute.
func Duration(key string, value time.Duration) slog.Attr { return slog.Duration(key, value) }

// Time builds a time attribute.
func Time(key string, value time.Time) slog.Attr { return slog.Time(key, value) }

// Error builds the conventional error attribute. A nil error yields an empty
// string value so call sites do not need to branch.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// Args flattens attrs into the variadic ...any form expected by the slog
// convenience methods.
func Args(attrs ...slog.Attr) []any {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return args
}

// WithComponent tags a logger with a component name. A nil logger returns the
// no-op logger so callers can chain without nil checks.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// NewNop returns a logger that discards all records.
func NewNop() *slog.Logger {
	return slog.New(noopHandler{})
}

type noopHandler struct{}

func (noopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (noopHandler) Handle(context.Context, slog.Record) error { return nil }
func (noopHandler) WithAttrs([]slog.Attr) slog.Handler        { return noopHandler{} }
func (noopHandler) WithGroup(string) slog.Handler             { return noopHandler{} }
