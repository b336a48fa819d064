package docstore

import (
	"context"
	"fmt"

	"github.com/potatocaustic/real-karma-league/internal/domain/document"
	"github.com/potatocaustic/real-karma-league/internal/domain/league"
	"github.com/potatocaustic/real-karma-league/internal/domain/user"
)

type UserRepository struct {
	store document.Store
}

func NewUserRepository(store document.Store) *UserRepository {
	return &UserRepository{store: store}
}

func (r *UserRepository) GetRoles(ctx context.Context, userID string) (user.Roles, bool, error) {
	roles, ok, err := document.GetAs[user.Roles](ctx, r.store, league.UsersCollection, userID)
	if err != nil {
		return user.Roles{}, false, fmt.Errorf("get user roles user_id=%s: %w", userID, err)
	}
	return roles, ok, nil
}
