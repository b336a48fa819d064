package cache

import (
	"context"
	"maps"
	"time"

	"github.com/potatocaustic/real-karma-league/internal/domain/league"
	"github.com/potatocaustic/real-karma-league/internal/domain/roster"
	"github.com/potatocaustic/real-karma-league/internal/domain/user"
	basecache "github.com/potatocaustic/real-karma-league/internal/platform/cache"
)

// TeamDirectory caches team names per league. Callers get their own copy of the map.
type TeamDirectory struct {
	next  roster.Directory
	cache *basecache.Store[map[string]string]
}

func NewTeamDirectory(next roster.Directory, ttl time.Duration) *TeamDirectory {
	return &TeamDirectory{next: next, cache: basecache.NewStore[map[string]string](ttl)}
}

func (d *TeamDirectory) TeamNames(ctx context.Context, l league.League) (map[string]string, error) {
	names, err := d.cache.GetOrLoad(ctx, "team:names:"+string(l), func(ctx context.Context) (map[string]string, error) {
		return d.next.TeamNames(ctx, l)
	})
	if err != nil {
		return nil, err
	}
	return maps.Clone(names), nil
}

// Invalidate drops cached names, e.g. after a promotion moved teams between leagues.
func (d *TeamDirectory) Invalidate(ctx context.Context) {
	d.cache.DeletePrefix(ctx, "team:names:")
}

type UserRepository struct {
	next  user.Repository
	cache *basecache.Store[cachedRoles]
}

type cachedRoles struct {
	value  user.Roles
	exists bool
}

func NewUserRepository(next user.Repository, ttl time.Duration) *UserRepository {
	return &UserRepository{next: next, cache: basecache.NewStore[cachedRoles](ttl)}
}

func (r *UserRepository) GetRoles(ctx context.Context, userID string) (user.Roles, bool, error) {
	cached, err := r.cache.GetOrLoad(ctx, "user:roles:"+userID, func(ctx context.Context) (cachedRoles, error) {
		roles, exists, err := r.next.GetRoles(ctx, userID)
		if err != nil {
			return cachedRoles{}, err
		}
		return cachedRoles{value: roles, exists: exists}, nil
	})
	if err != nil {
		return user.Roles{}, false, err
	}
	return cached.value, cached.exists, nil
}
