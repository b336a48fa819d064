package usecase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/potatocaustic/real-karma-league/internal/domain/league"
	"github.com/potatocaustic/real-karma-league/internal/domain/user"
	usermock "github.com/potatocaustic/real-karma-league/internal/mocks/domain/user"
)

func TestAccessService_Require(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		userID  string
		roles   *user.Roles
		league  league.League
		allowed []user.Role
		wantErr error
	}{
		{
			name:    "global admin",
			userID:  "u1",
			roles:   &user.Roles{Role: user.RoleAdmin},
			league:  league.Minor,
			allowed: AdminOnly,
		},
		{
			name:    "league scorekeeper",
			userID:  "u2",
			roles:   &user.Roles{Leagues: map[string]user.Role{"major": user.RoleScorekeeper}},
			league:  league.Major,
			allowed: AdminOrScorekeeper,
		},
		{
			name:    "scorekeeper role does not carry to the other league",
			userID:  "u2",
			roles:   &user.Roles{Leagues: map[string]user.Role{"major": user.RoleScorekeeper}},
			league:  league.Minor,
			allowed: AdminOrScorekeeper,
			wantErr: ErrPermissionDenied,
		},
		{
			name:    "gm cannot administer",
			userID:  "u3",
			roles:   &user.Roles{Role: user.RoleGM},
			league:  league.Major,
			allowed: AdminOnly,
			wantErr: ErrPermissionDenied,
		},
		{
			name:    "unknown user",
			userID:  "u4",
			league:  league.Major,
			allowed: AdminOrScorekeeper,
			wantErr: ErrPermissionDenied,
		},
		{
			name:    "anonymous caller",
			league:  league.Major,
			allowed: AdminOnly,
			wantErr: ErrUnauthorized,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := usermock.NewRepository(t)
			if tc.userID != "" {
				roles, exists := user.Roles{}, false
				if tc.roles != nil {
					roles, exists = *tc.roles, true
				}
				repo.On("GetRoles", mock.Anything, tc.userID).Return(roles, exists, nil).Once()
			}

			err := NewAccessService(repo).Require(t.Context(), user.Principal{UserID: tc.userID}, tc.league, tc.allowed)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("expected access, got %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestAccessService_RepositoryFailure(t *testing.T) {
	t.Parallel()

	repo := usermock.NewRepository(t)
	repo.On("GetRoles", mock.Anything, "u1").Return(user.Roles{}, false, errors.New("store offline")).Once()

	err := NewAccessService(repo).Require(t.Context(), user.Principal{UserID: "u1"}, league.Major, AdminOnly)
	if err == nil || errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected a lookup error, got %v", err)
	}
}
