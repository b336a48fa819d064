package usecase

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var usecaseMeter = otel.Meter("real-karma-league/internal/usecase")

type engineMetrics struct {
	scoreLookups   metric.Int64Counter
	fullUpdates    metric.Int64Counter
	gamesFinalized metric.Int64Counter
	bracketWrites  metric.Int64Counter
}

// newEngineMetrics falls back to no-op instruments when the global meter
// provider rejects an instrument.
func newEngineMetrics() engineMetrics {
	var m engineMetrics
	var err error
	if m.scoreLookups, err = usecaseMeter.Int64Counter("rkl.score_lookups",
		metric.WithDescription("Score lookups by caller and outcome")); err != nil {
		m.scoreLookups = noopCounter()
	}
	if m.fullUpdates, err = usecaseMeter.Int64Counter("rkl.live_scoring.full_updates",
		metric.WithDescription("Full live score refreshes")); err != nil {
		m.fullUpdates = noopCounter()
	}
	if m.gamesFinalized, err = usecaseMeter.Int64Counter("rkl.games.finalized",
		metric.WithDescription("Games finalized")); err != nil {
		m.gamesFinalized = noopCounter()
	}
	if m.bracketWrites, err = usecaseMeter.Int64Counter("rkl.bracket.writes",
		metric.WithDescription("Bracket slot updates and pruned games")); err != nil {
		m.bracketWrites = noopCounter()
	}
	return m
}

func noopCounter() metric.Int64Counter {
	return noop.Int64Counter{}
}

func (m engineMetrics) addLookups(ctx context.Context, caller string, ok, failed int) {
	if ok > 0 {
		m.scoreLookups.Add(ctx, int64(ok), metric.WithAttributes(attribute.String("caller", caller), attribute.String("outcome", "ok")))
	}
	if failed > 0 {
		m.scoreLookups.Add(ctx, int64(failed), metric.WithAttributes(attribute.String("caller", caller), attribute.String("outcome", "failed")))
	}
}
