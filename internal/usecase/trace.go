package usecase

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/potatocaustic/real-karma-league/internal/domain/league"
)

var tracer = otel.Tracer("github.com/potatocaustic/real-karma-league/internal/usecase")

// startUsecaseSpan opens a child span. Background work with no span in ctx,
// such as cron ticks, stays untraced.
func startUsecaseSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if name == "" || !trace.SpanContextFromContext(ctx).IsValid() {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func leagueAttr(l league.League) attribute.KeyValue {
	return attribute.String("rkl.league", string(l))
}

func gameAttr(gameID string) attribute.KeyValue {
	return attribute.String("rkl.game_id", gameID)
}

func seasonAttr(seasonID string) attribute.KeyValue {
	return attribute.String("rkl.season_id", seasonID)
}
