package proxy

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("airgate")

// startSpan opens one span per forwarded request, tagged with the
// routing decision the Forwarder already made.
func startSpan(ctx context.Context, runID, path, provider, apiFormat string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "proxy.forward",
		trace.WithAttributes(
			attribute.String("airgate.run_id", runID),
			attribute.String("airgate.path", path),
			attribute.String("gen_ai.system", provider),
			attribute.String("airgate.api_format", apiFormat),
		),
	)
}
