package logger

import (
	"context"

	"go.uber.org/zap"
)

type loggerContextKey struct{}

// NewContextWithLogger returns a copy of ctx carrying log.
func NewContextWithLogger(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, log)
}

// FromContext returns the logger carried by ctx, or nil.
func FromContext(ctx context.Context) *zap.Logger {
	l, _ := ctx.Value(loggerContextKey{}).(*zap.Logger)
	return l
}

// FromContextOr returns the logger of ctx, or fallback with fields if ctx
// has none. Stores use it to log under the run that called them; a run's
// logger already carries the fields a store would add.
func FromContextOr(ctx context.Context, fallback *zap.Logger, fields ...zap.Field) *zap.Logger {
	if l := FromContext(ctx); l != nil {
		return l
	}
	if len(fields) == 0 {
		return fallback
	}
	return fallback.With(fields...)
}
