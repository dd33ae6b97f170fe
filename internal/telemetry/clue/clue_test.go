package clue

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/codes"

	"github.com/stretchr/testify/require"
)

// These are smoke tests: clue/log and the global OTEL providers fall back to
// safe no-op behavior when unconfigured, so the adapters can be exercised
// directly against context.Background() without a running collector.

func TestLoggerMethodsDoNotPanicWithoutConfiguredContext(t *testing.T) {
	t.Parallel()

	logger := NewLogger()
	ctx := context.Background()

	require.NotPanics(t, func() {
		logger.Debug(ctx, "debug message", "key", "value")
		logger.Info(ctx, "info message", "count", 3)
		logger.Warn(ctx, "warn message")
		logger.Error(ctx, "error message", "reason", "timeout")
	})
}

func TestKvToFieldersSkipsNonStringKeysAndHandlesDanglingValue(t *testing.T) {
	t.Parallel()

	fs := kvToFielders([]any{"a", 1, 42, "skipped because key isn't a string", "b"})
	require.Len(t, fs, 2)
}

func TestMetricsMethodsDoNotPanicWithoutConfiguredProvider(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	require.NotPanics(t, func() {
		m.IncCounter("tool_calls_total", 1, "tool", "search_data_catalog")
		m.RecordTimer("tool_call_duration", 0, "tool", "create_metrics")
		m.RecordGauge("active_conversations", 4, "mode", "analysis_execution")
	})
}

func TestTagsToAttrsHandlesOddTagCountAndEmptyInput(t *testing.T) {
	t.Parallel()

	require.Empty(t, tagsToAttrs(nil))

	attrs := tagsToAttrs([]string{"tool", "create_metrics", "dangling"})
	require.Len(t, attrs, 2)
	require.Equal(t, "", attrs[1].Value.AsString())
}

func TestTracerStartAndSpanMethodsDoNotPanicWithoutConfiguredProvider(t *testing.T) {
	t.Parallel()

	tracer := NewTracer()
	ctx, span := tracer.Start(context.Background(), "create_metrics")

	require.NotPanics(t, func() {
		span.AddEvent("validated", "kind", "sqlsafety")
		span.SetStatus(codes.Ok, "")
		span.RecordError(nil)
		span.End()
	})

	require.NotNil(t, tracer.Span(ctx))
}

func TestKvToAttrsMapsEachSupportedGoType(t *testing.T) {
	t.Parallel()

	attrs := kvToAttrs([]any{
		"s", "text",
		"b", true,
		"i", 7,
		"i64", int64(8),
		"f", 1.5,
		"other", struct{}{},
	})
	require.Len(t, attrs, 6)
}
