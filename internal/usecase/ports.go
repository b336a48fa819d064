package usecase

import (
	"context"
	"time"
)

// GameCompletedEvent is emitted after a relegation-tagged exhibition game is finalized.
type GameCompletedEvent struct {
	SeasonID    string    `json:"season_id" validate:"required"`
	GameID      string    `json:"game_id" validate:"required"`
	CompletedAt time.Time `json:"completed_at"`
}

// GameCompletionPublisher delivers GameCompletedEvent to the relegation orchestrator.
type GameCompletionPublisher interface {
	PublishGameCompleted(ctx context.Context, event GameCompletedEvent) error
}

// GameCompletionHandler is implemented by the relegation orchestrator.
type GameCompletionHandler interface {
	HandleGameCompleted(ctx context.Context, event GameCompletedEvent) error
}

// InProcessGameCompletion hands events straight to the handler; used when no queue is configured.
type InProcessGameCompletion struct {
	Handler GameCompletionHandler
}

func (p InProcessGameCompletion) PublishGameCompleted(ctx context.Context, event GameCompletedEvent) error {
	if p.Handler == nil {
		return nil
	}
	return p.Handler.HandleGameCompleted(ctx, event)
}
