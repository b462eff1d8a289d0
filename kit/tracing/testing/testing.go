package testing

import (
	stdtesting "testing"

	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go"
)

// SetupInMemoryTracing installs an always-sampling Jaeger tracer as the
// global tracer for the duration of t. Finished spans are collected by the
// returned reporter.
func SetupInMemoryTracing(t stdtesting.TB, service string) *jaeger.InMemoryReporter {
	t.Helper()

	reporter := jaeger.NewInMemoryReporter()
	tracer, closer := jaeger.NewTracer(service, jaeger.NewConstSampler(true), reporter)

	old := opentracing.GlobalTracer()
	opentracing.SetGlobalTracer(tracer)
	t.Cleanup(func() {
		_ = closer.Close()
		opentracing.SetGlobalTracer(old)
	})
	return reporter
}

// FinishedSpans returns the spans collected by reporter as Jaeger spans.
func FinishedSpans(reporter *jaeger.InMemoryReporter) []*jaeger.Span {
	spans := make([]*jaeger.Span, 0, reporter.SpansSubmitted())
	for _, s := range reporter.GetSpans() {
		if js, ok := s.(*jaeger.Span); ok {
			spans = append(spans, js)
		}
	}
	return spans
}
