package hierarchy

import (
	"context"
	"errors"
	"strings"
)

// Errors returned by the Service layer.
var (
	ErrNameRequired         = errors.New("name is required")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrDepartmentNotFound   = errors.New("department not found")
	ErrTeamNotFound         = errors.New("team not found")
)

// UnitStore is the set of store operations the Service relies on.
type UnitStore interface {
	CreateOrganization(ctx context.Context, input CreateOrganizationInput) (*Organization, error)
	CreateDepartment(ctx context.Context, input CreateDepartmentInput) (*Department, error)
	CreateTeam(ctx context.Context, input CreateTeamInput) (*Team, error)
	ListOrganizations(ctx context.Context) ([]*Organization, error)
	ListDepartments(ctx context.Context, organizationID *int64) ([]*Department, error)
	ListTeams(ctx context.Context, departmentID *int64) ([]*Team, error)
	GetTeam(ctx context.Context, id int64) (*Team, error)
}

// Service provides validated hierarchy logic over a store. Admin gating for
// the create operations happens in middleware before any store access.
type Service struct {
	store UnitStore
}

// NewService creates a new Service wrapping the given store.
func NewService(store UnitStore) *Service {
	return &Service{store: store}
}

// CreateOrganization validates the input and creates the organization.
func (s *Service) CreateOrganization(ctx context.Context, input CreateOrganizationInput) (*Organization, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, ErrNameRequired
	}
	return s.store.CreateOrganization(ctx, input)
}

// CreateDepartment validates the input and creates the department under an
// existing organization.
func (s *Service) CreateDepartment(ctx context.Context, input CreateDepartmentInput) (*Department, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, ErrNameRequired
	}
	return s.store.CreateDepartment(ctx, input)
}

// CreateTeam validates the input and creates the team under an existing
// department.
func (s *Service) CreateTeam(ctx context.Context, input CreateTeamInput) (*Team, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, ErrNameRequired
	}
	return s.store.CreateTeam(ctx, input)
}

// ListOrganizations returns all organizations.
func (s *Service) ListOrganizations(ctx context.Context) ([]*Organization, error) {
	return s.store.ListOrganizations(ctx)
}

// ListDepartments returns departments, optionally scoped to one organization.
func (s *Service) ListDepartments(ctx context.Context, organizationID *int64) ([]*Department, error) {
	return s.store.ListDepartments(ctx, organizationID)
}

// ListTeams returns teams, optionally scoped to one department.
func (s *Service) ListTeams(ctx context.Context, departmentID *int64) ([]*Team, error) {
	return s.store.ListTeams(ctx, departmentID)
}

// GetTeam retrieves a team by id.
func (s *Service) GetTeam(ctx context.Context, id int64) (*Team, error) {
	return s.store.GetTeam(ctx, id)
}
