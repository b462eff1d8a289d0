package tracing

import (
	"context"
	"fmt"
	"runtime"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"
)

// LogError marks span as failed, logs err on it and returns err unchanged:
//
//	return 0, tracing.LogError(span, err)
func LogError(span opentracing.Span, err error) error {
	if err == nil {
		return nil
	}
	ext.Error.Set(span, true)
	span.LogFields(log.Error(err))
	return err
}

// StartSpanFromContext starts a span named after the calling function and
// logs the caller's file:line on it.
func StartSpanFromContext(ctx context.Context, opts ...opentracing.StartSpanOption) (opentracing.Span, context.Context) {
	if ctx == nil {
		panic("StartSpanFromContext called with nil context")
	}

	name, location := caller(2)
	span, ctx := opentracing.StartSpanFromContext(ctx, name, opts...)
	if location != "" {
		span.LogFields(log.String("location", location))
	}
	return span, ctx
}

// caller returns the function name and file:line skip frames up the stack.
func caller(skip int) (string, string) {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return "unknown", ""
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	return frame.Function, fmt.Sprintf("%s:%d", frame.File, frame.Line)
}
