package user

import "context"

type Repository interface {
	GetRoles(ctx context.Context, userID string) (Roles, bool, error)
}
