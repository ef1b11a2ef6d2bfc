package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "metricboard"

// StartApplySpan starts a span for applying one table mutation.
func StartApplySpan(ctx context.Context, metricID, op string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "apply",
		trace.WithAttributes(
			attribute.String("metric.id", metricID),
			attribute.String("op", op),
		),
	)
}
