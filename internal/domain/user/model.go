package user

import "github.com/potatocaustic/real-karma-league/internal/domain/league"

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
}

type Role string

const (
	RoleNone        Role = ""
	RoleAdmin       Role = "admin"
	RoleScorekeeper Role = "scorekeeper"
	RoleGM          Role = "gm"
)

// Roles is the users/{uid} document. A per-league entry overrides the global role.
type Roles struct {
	Role    Role            `json:"role"`
	Leagues map[string]Role `json:"roles,omitempty"`
}

func (r Roles) For(l league.League) Role {
	if role, ok := r.Leagues[string(l)]; ok && role != RoleNone {
		return role
	}
	return r.Role
}
