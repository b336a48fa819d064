package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// fieldsFor turns alternating key/value args into zap fields. A zap.Field in
// key position is passed through as is. Errors keep their message under the
// given key, and a trailing key without a value logs as null.
func fieldsFor(args []any) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2+3)
	for i := 0; i < len(args); i++ {
		if field, ok := args[i].(zap.Field); ok {
			fields = append(fields, field)
			continue
		}

		key, _ := args[i].(string)
		if key == "" {
			key = "arg"
		}
		if i+1 == len(args) {
			fields = append(fields, zap.Any(key, nil))
			break
		}

		i++
		switch value := args[i].(type) {
		case error:
			fields = append(fields, zap.NamedError(key, value))
		default:
			fields = append(fields, zap.Any(key, value))
		}
	}
	return fields
}

func appendTraceFields(fields []zap.Field, ctx context.Context) []zap.Field {
	if ctx == nil {
		return fields
	}
	span := trace.SpanContextFromContext(ctx)
	if !span.IsValid() {
		return fields
	}
	return append(fields,
		zap.String("trace_id", span.TraceID().String()),
		zap.String("span_id", span.SpanID().String()),
	)
}
