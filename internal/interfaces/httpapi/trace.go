package httpapi

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const handlerSpanPrefix = "httpapi.Handler."

var tracer = otel.Tracer("github.com/potatocaustic/real-karma-league/internal/interfaces/httpapi")

// startSpan opens a child span for handler methods only. Requests that were
// not traced (health probes) get a non-recording span.
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if !isHandlerSpan(name) || !trace.SpanContextFromContext(ctx).IsValid() {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func isHandlerSpan(name string) bool {
	return strings.HasPrefix(name, handlerSpanPrefix) && len(name) > len(handlerSpanPrefix)
}
