package sensor

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var sensorTracer = otel.Tracer("yahoo-matchup/internal/sensor")
var sensorNoopSpan = trace.SpanFromContext(context.Background())

func startSensorSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if strings.TrimSpace(name) == "" {
		return ctx, sensorNoopSpan
	}
	return sensorTracer.Start(ctx, name)
}
