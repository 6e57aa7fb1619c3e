package identity

import (
	"context"

	"github.com/mlaroche/boussole/internal/authz"
)

// AuthAdapter adapts identity.Store to the authz.SessionLookup interface.
type AuthAdapter struct {
	store *Store
}

// NewAuthAdapter creates a new AuthAdapter wrapping the given store.
func NewAuthAdapter(store *Store) *AuthAdapter {
	return &AuthAdapter{store: store}
}

// LookupSession resolves a session token to the actor the policy works with.
func (a *AuthAdapter) LookupSession(ctx context.Context, token string) (*authz.Actor, error) {
	u, err := a.store.GetSessionUser(ctx, token)
	if err != nil {
		return nil, err
	}
	return &authz.Actor{
		UserID:       u.ID,
		Username:     u.Username,
		Role:         u.Role,
		DepartmentID: u.DepartmentID,
		TeamID:       u.TeamID,
	}, nil
}
