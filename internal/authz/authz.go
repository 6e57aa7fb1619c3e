package authz

import (
	"context"
	"errors"
	"fmt"
)

// Role is the access level assigned to a user account.
type Role string

// Roles ordered from least to most privileged.
const (
	RoleUser     Role = "User"
	RoleTeamLead Role = "Team Lead"
	RoleManager  Role = "Manager"
	RoleAdmin    Role = "Admin"
)

// ErrUnknownRole is returned when a role string is outside the fixed vocabulary.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole validates a role string against the fixed vocabulary.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleTeamLead, RoleManager, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Actor is an authenticated user as seen by the authorization policy.
// DepartmentID and TeamID are nil for users not yet placed in the hierarchy.
type Actor struct {
	UserID       int64
	Username     string
	Role         Role
	DepartmentID *int64
	TeamID       *int64
}

// OKRRef carries the ownership and placement of an OKR, which is all the
// policy needs to decide who may change it.
type OKRRef struct {
	AssignedUserID int64
	CreatedBy      int64
	TeamID         int64
	DepartmentID   int64
}

// IsAdmin returns true if the actor holds the Admin role.
func (a *Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanManageHierarchy returns true if the actor may create organizations,
// departments and teams.
func (a *Actor) CanManageHierarchy() bool {
	return a.IsAdmin()
}

// CanMutateOKR decides whether the actor may update or delete the given OKR.
// Admins may touch anything, and every user may touch OKRs they are assigned
// to or created themselves. Beyond that, managers cover OKRs in their own
// department and team leads OKRs in their own team.
func (a *Actor) CanMutateOKR(ref OKRRef) bool {
	if a.IsAdmin() {
		return true
	}
	if ref.AssignedUserID == a.UserID || ref.CreatedBy == a.UserID {
		return true
	}
	switch a.Role {
	case RoleManager:
		return a.DepartmentID != nil && *a.DepartmentID == ref.DepartmentID
	case RoleTeamLead:
		return a.TeamID != nil && *a.TeamID == ref.TeamID
	}
	return false
}

// SessionLookup resolves a plaintext session token to the actor it belongs to.
type SessionLookup interface {
	LookupSession(ctx context.Context, token string) (*Actor, error)
}
