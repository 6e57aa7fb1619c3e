package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mlaroche/boussole/internal/authz"
	"github.com/mlaroche/boussole/internal/crypto"
)

// Errors returned by the Service layer.
var (
	ErrUsernameRequired   = errors.New("username is required")
	ErrEmailRequired      = errors.New("email is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrDepartmentNotFound = errors.New("department does not exist")
	ErrTeamNotFound       = errors.New("team does not exist")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// dummyHash is a structurally valid Argon2id hash verified when the
// username is unknown, so both authentication failure paths cost one key
// derivation and the response does not reveal which field was wrong.
const dummyHash = "$argon2id$v=19$m=65536,t=1,p=4$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g"

// AccountStore is the set of store operations the Service relies on.
type AccountStore interface {
	Create(ctx context.Context, in RegisterInput, passwordHash string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	ListByTeam(ctx context.Context, teamID int64) ([]*Member, error)
	CreateSession(ctx context.Context, userID int64) (string, *Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// Service provides validated account and session logic over a store.
type Service struct {
	store AccountStore
}

// NewService creates a new Service wrapping the given store.
func NewService(store AccountStore) *Service {
	return &Service{store: store}
}

// Register validates the input, hashes the password and creates the
// account. An empty role defaults to the least privileged one.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if in.Username == "" {
		return nil, ErrUsernameRequired
	}
	if in.Email == "" {
		return nil, ErrEmailRequired
	}
	if in.Password == "" {
		return nil, ErrPasswordRequired
	}
	if in.Role == "" {
		in.Role = string(authz.RoleUser)
	}
	role, err := authz.ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	in.Role = string(role)

	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	return s.store.Create(ctx, in, hash)
}

// Authenticate verifies the credentials and opens a session, returning the
// user and the plaintext session token. Unknown usernames and wrong
// passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, string, error) {
	u, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn one verification so unknown users cost the same as a
			// wrong password.
			_, _ = crypto.VerifyPassword(password, dummyHash)
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	ok, err := crypto.VerifyPassword(password, u.PasswordHash)
	if err != nil {
		return nil, "", fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, "", ErrInvalidCredentials
	}

	token, _, err := s.store.CreateSession(ctx, u.ID)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Logout invalidates the session for the given token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.store.DeleteSession(ctx, token)
}

// GetByID retrieves an account by id.
func (s *Service) GetByID(ctx context.Context, id int64) (*User, error) {
	return s.store.GetByID(ctx, id)
}

// ListTeamMembers returns the members of the given team.
func (s *Service) ListTeamMembers(ctx context.Context, teamID int64) ([]*Member, error) {
	return s.store.ListByTeam(ctx, teamID)
}
