package usecase

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/potatocaustic/real-karma-league/internal/domain/league"
	"github.com/potatocaustic/real-karma-league/internal/domain/user"
)

// Role sets required by the callable surface.
var (
	AdminOnly          = []user.Role{user.RoleAdmin}
	AdminOrScorekeeper = []user.Role{user.RoleAdmin, user.RoleScorekeeper}
)

type AccessService struct {
	users user.Repository
}

func NewAccessService(users user.Repository) *AccessService {
	return &AccessService{users: users}
}

func (s *AccessService) RoleFor(ctx context.Context, userID string, l league.League) (user.Role, error) {
	roles, exists, err := s.users.GetRoles(ctx, userID)
	if err != nil {
		return user.RoleNone, fmt.Errorf("load roles: %w", err)
	}
	if !exists {
		return user.RoleNone, nil
	}
	return roles.For(l), nil
}

// Require fails with ErrUnauthorized when principal is empty and ErrPermissionDenied
// when the caller's role in l is not one of allowed.
func (s *AccessService) Require(ctx context.Context, principal user.Principal, l league.League, allowed []user.Role) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.AccessService.Require")
	defer span.End()

	if strings.TrimSpace(principal.UserID) == "" {
		return fmt.Errorf("%w: caller identity is required", ErrUnauthorized)
	}
	role, err := s.RoleFor(ctx, principal.UserID, l)
	if err != nil {
		return err
	}
	if !slices.Contains(allowed, role) {
		return fmt.Errorf("%w: role %q cannot perform this operation in league %s", ErrPermissionDenied, role, l)
	}
	return nil
}
