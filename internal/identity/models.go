package identity

import (
	"time"

	"github.com/mlaroche/boussole/internal/authz"
)

// User represents a registered account. DepartmentID and TeamID are nil
// until the user is placed in the hierarchy.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         authz.Role `json:"role"`
	DepartmentID *int64     `json:"department_id,omitempty"`
	TeamID       *int64     `json:"team_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Member is the reduced view of a user exposed in team member listings.
// The credential hash never leaves the store through this type.
type Member struct {
	ID       int64      `json:"id"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Role     authz.Role `json:"role"`
}

// RegisterInput holds the fields required to create a new account.
type RegisterInput struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Role         string `json:"role"`
	DepartmentID *int64 `json:"department_id,omitempty"`
	TeamID       *int64 `json:"team_id,omitempty"`
}

// Session represents an active login session.
type Session struct {
	TokenHash string    `json:"-"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
