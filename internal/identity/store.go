package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres error codes we map to domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Store provides database operations for accounts and sessions.
type Store struct {
	pool       *pgxpool.Pool
	sessionTTL time.Duration
}

// NewStore creates a new account store backed by the given connection pool.
// sessionTTL bounds the lifetime of sessions issued by CreateSession.
func NewStore(pool *pgxpool.Pool, sessionTTL time.Duration) *Store {
	return &Store{pool: pool, sessionTTL: sessionTTL}
}

func scanUser(scan func(dest ...any) error) (*User, error) {
	u := &User{}
	err := scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.DepartmentID, &u.TeamID, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Create inserts a new account with an already-hashed password. Unique and
// foreign key violations are translated to their domain sentinels; the
// single INSERT means two concurrent registrations with the same username
// cannot both succeed.
func (s *Store) Create(ctx context.Context, in RegisterInput, passwordHash string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO users (username, email, password_hash, role, department_id, team_id)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id, username, email, password_hash, role, department_id, team_id, created_at`,
			in.Username, in.Email, passwordHash, in.Role, in.DepartmentID, in.TeamID,
		).Scan(dest...)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "users_email_key":
				return nil, ErrEmailTaken
			case pgErr.Code == pgUniqueViolation:
				return nil, ErrUsernameTaken
			case pgErr.Code == pgForeignKeyViolation && pgErr.ConstraintName == "users_department_id_fkey":
				return nil, ErrDepartmentNotFound
			case pgErr.Code == pgForeignKeyViolation && pgErr.ConstraintName == "users_team_id_fkey":
				return nil, ErrTeamNotFound
			}
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// GetByID retrieves an account by primary key.
func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT id, username, email, password_hash, role, department_id, team_id, created_at
			 FROM users WHERE id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user by id: %w", err)
	}
	return u, nil
}

// GetByUsername retrieves an account by username.
func (s *Store) GetByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT id, username, email, password_hash, role, department_id, team_id, created_at
			 FROM users WHERE username = $1`, username,
		).Scan(dest...)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// ListByTeam returns the members of a team ordered by username.
func (s *Store) ListByTeam(ctx context.Context, teamID int64) ([]*Member, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, email, role
		 FROM users WHERE team_id = $1 ORDER BY username`, teamID)
	if err != nil {
		return nil, fmt.Errorf("listing team members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(&m.ID, &m.Username, &m.Email, &m.Role); err != nil {
			return nil, fmt.Errorf("scanning member row: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// CreateSession creates a new session for the given user. It returns the
// opaque plaintext token (to be sent to the client) and the stored session.
func (s *Store) CreateSession(ctx context.Context, userID int64) (string, *Session, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", nil, fmt.Errorf("generating session token: %w", err)
	}
	plaintext := hex.EncodeToString(b)
	tokenHash := hashToken(plaintext)

	now := time.Now()
	expiresAt := now.Add(s.sessionTTL)

	sess := &Session{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (token_hash, user_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING token_hash, user_id, created_at, expires_at`,
		tokenHash, userID, now, expiresAt,
	).Scan(&sess.TokenHash, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		return "", nil, fmt.Errorf("creating session: %w", err)
	}

	return plaintext, sess, nil
}

// GetSessionUser looks up a session by its plaintext token and returns the
// associated user. Expired and unknown tokens both come back as an error.
func (s *Store) GetSessionUser(ctx context.Context, plaintext string) (*User, error) {
	tokenHash := hashToken(plaintext)

	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT u.id, u.username, u.email, u.password_hash, u.role, u.department_id, u.team_id, u.created_at
			 FROM sessions s JOIN users u ON s.user_id = u.id
			 WHERE s.token_hash = $1 AND s.expires_at > now()`,
			tokenHash,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting session user: %w", err)
	}
	return u, nil
}

// DeleteSession removes a session by its plaintext token.
func (s *Store) DeleteSession(ctx context.Context, plaintext string) error {
	tokenHash := hashToken(plaintext)
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// CleanExpiredSessions deletes all sessions that have expired.
func (s *Store) CleanExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("cleaning expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func hashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
