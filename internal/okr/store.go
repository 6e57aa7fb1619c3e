package okr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for OKRs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// okrColumns is the full joined column list used in SELECT statements.
const okrColumns = `o.id, o.title, o.description, o.objective, o.key_results,
	o.progress, o.status, o.team_id, t.name, t.department_id,
	o.assigned_user_id, au.username, o.created_by, cu.username,
	o.start_date, o.end_date, o.created_at`

const okrFrom = ` FROM okrs o
	JOIN teams t ON o.team_id = t.id
	JOIN users au ON o.assigned_user_id = au.id
	JOIN users cu ON o.created_by = cu.id`

// scanOKR scans a single joined OKR row, decoding the key_results JSONB
// column into an ordered string slice.
func scanOKR(row pgx.Row) (*OKR, error) {
	var o OKR
	var keyResultsJSON []byte
	err := row.Scan(
		&o.ID, &o.Title, &o.Description, &o.Objective, &keyResultsJSON,
		&o.Progress, &o.Status, &o.TeamID, &o.TeamName, &o.DepartmentID,
		&o.AssignedUserID, &o.AssignedUsername, &o.CreatedBy, &o.CreatorUsername,
		&o.StartDate, &o.EndDate, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.KeyResults, err = unmarshalKeyResults(keyResultsJSON)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// marshalKeyResults converts key results to JSON for storage.
func marshalKeyResults(keyResults []string) ([]byte, error) {
	if keyResults == nil {
		keyResults = []string{}
	}
	return json.Marshal(keyResults)
}

// unmarshalKeyResults restores the ordered list from the JSONB column.
func unmarshalKeyResults(data []byte) ([]string, error) {
	var keyResults []string
	if len(data) > 0 {
		if err := json.Unmarshal(data, &keyResults); err != nil {
			return nil, fmt.Errorf("unmarshaling key_results: %w", err)
		}
	}
	if keyResults == nil {
		keyResults = []string{}
	}
	return keyResults, nil
}

// Create inserts a new OKR and returns the joined read model.
func (s *Store) Create(ctx context.Context, rec CreateRecord) (*OKR, error) {
	keyResultsJSON, err := marshalKeyResults(rec.KeyResults)
	if err != nil {
		return nil, fmt.Errorf("marshaling key_results: %w", err)
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO okrs (title, description, objective, key_results, progress, status,
		                   team_id, assigned_user_id, created_by, start_date, end_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		rec.Title, rec.Description, rec.Objective, keyResultsJSON, rec.Progress, rec.Status,
		rec.TeamID, rec.AssignedUserID, rec.CreatedBy, rec.StartDate, rec.EndDate,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("creating okr: %w", err)
	}

	return s.Get(ctx, id)
}

// Get retrieves a single OKR by id.
func (s *Store) Get(ctx context.Context, id int64) (*OKR, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+okrColumns+okrFrom+` WHERE o.id = $1`, id)
	o, err := scanOKR(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting okr: %w", err)
	}
	return o, nil
}

func (s *Store) list(ctx context.Context, where string, args ...any) ([]*OKR, error) {
	query := `SELECT ` + okrColumns + okrFrom + where + ` ORDER BY o.created_at DESC, o.id DESC`
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing okrs: %w", err)
	}
	defer rows.Close()

	var okrs []*OKR
	for rows.Next() {
		o, err := scanOKR(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning okr row: %w", err)
		}
		okrs = append(okrs, o)
	}
	return okrs, rows.Err()
}

// ListAll returns every OKR, newest first.
func (s *Store) ListAll(ctx context.Context) ([]*OKR, error) {
	return s.list(ctx, "")
}

// ListForTeam returns the OKRs of one team, newest first. The result is
// exactly ListAll filtered by team.
func (s *Store) ListForTeam(ctx context.Context, teamID int64) ([]*OKR, error) {
	return s.list(ctx, ` WHERE o.team_id = $1`, teamID)
}

// ListForUser returns the OKRs assigned to one user, newest first.
func (s *Store) ListForUser(ctx context.Context, userID int64) ([]*OKR, error) {
	return s.list(ctx, ` WHERE o.assigned_user_id = $1`, userID)
}

// UpdateProgress overwrites progress and status in a single UPDATE and
// returns the refreshed read model.
func (s *Store) UpdateProgress(ctx context.Context, id int64, progress float64, status Status) (*OKR, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE okrs SET progress = $1, status = $2 WHERE id = $3`,
		progress, status, id)
	if err != nil {
		return nil, fmt.Errorf("updating okr progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes an OKR by id.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM okrs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting okr: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
