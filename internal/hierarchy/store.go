package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgForeignKeyViolation = "23503"

// Store provides database operations for the organizational hierarchy.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateOrganization inserts a new organization and returns the full row.
func (s *Store) CreateOrganization(ctx context.Context, input CreateOrganizationInput) (*Organization, error) {
	o := &Organization{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO organizations (name, description)
		 VALUES ($1, $2)
		 RETURNING id, name, description, created_at`,
		input.Name, input.Description,
	).Scan(&o.ID, &o.Name, &o.Description, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating organization: %w", err)
	}
	return o, nil
}

// CreateDepartment inserts a new department. A foreign key violation on the
// organization reference maps to ErrOrganizationNotFound.
func (s *Store) CreateDepartment(ctx context.Context, input CreateDepartmentInput) (*Department, error) {
	d := &Department{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO departments (name, description, organization_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, name, description, organization_id, created_at`,
		input.Name, input.Description, input.OrganizationID,
	).Scan(&d.ID, &d.Name, &d.Description, &d.OrganizationID, &d.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("creating department: %w", err)
	}
	return d, nil
}

// CreateTeam inserts a new team. A foreign key violation on the department
// reference maps to ErrDepartmentNotFound.
func (s *Store) CreateTeam(ctx context.Context, input CreateTeamInput) (*Team, error) {
	t := &Team{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO teams (name, description, department_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, name, description, department_id, created_at`,
		input.Name, input.Description, input.DepartmentID,
	).Scan(&t.ID, &t.Name, &t.Description, &t.DepartmentID, &t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, ErrDepartmentNotFound
		}
		return nil, fmt.Errorf("creating team: %w", err)
	}
	return t, nil
}

// ListOrganizations returns all organizations ordered by name.
func (s *Store) ListOrganizations(ctx context.Context) ([]*Organization, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, created_at FROM organizations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*Organization
	for rows.Next() {
		o := &Organization{}
		if err := rows.Scan(&o.ID, &o.Name, &o.Description, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning organization row: %w", err)
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

// ListDepartments returns departments ordered by name, optionally filtered
// by organization.
func (s *Store) ListDepartments(ctx context.Context, organizationID *int64) ([]*Department, error) {
	query := `SELECT id, name, description, organization_id, created_at
	          FROM departments ORDER BY name`
	var args []any
	if organizationID != nil {
		query = `SELECT id, name, description, organization_id, created_at
		         FROM departments WHERE organization_id = $1 ORDER BY name`
		args = append(args, *organizationID)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing departments: %w", err)
	}
	defer rows.Close()

	var departments []*Department
	for rows.Next() {
		d := &Department{}
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.OrganizationID, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning department row: %w", err)
		}
		departments = append(departments, d)
	}
	return departments, rows.Err()
}

// ListTeams returns teams ordered by name, optionally filtered by department.
func (s *Store) ListTeams(ctx context.Context, departmentID *int64) ([]*Team, error) {
	query := `SELECT id, name, description, department_id, created_at
	          FROM teams ORDER BY name`
	var args []any
	if departmentID != nil {
		query = `SELECT id, name, description, department_id, created_at
		         FROM teams WHERE department_id = $1 ORDER BY name`
		args = append(args, *departmentID)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	defer rows.Close()

	var teams []*Team
	for rows.Next() {
		t := &Team{}
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.DepartmentID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning team row: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// GetTeam retrieves a team by id.
func (s *Store) GetTeam(ctx context.Context, id int64) (*Team, error) {
	t := &Team{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, department_id, created_at
		 FROM teams WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Description, &t.DepartmentID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("getting team: %w", err)
	}
	return t, nil
}
