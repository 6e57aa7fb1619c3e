package okr

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mlaroche/boussole/internal/authz"
	"github.com/mlaroche/boussole/internal/hierarchy"
	"github.com/mlaroche/boussole/internal/identity"
)

// Errors returned by the Service layer.
var (
	ErrTitleRequired      = errors.New("title is required")
	ErrObjectiveRequired  = errors.New("objective is required")
	ErrKeyResultsRequired = errors.New("at least one key result is required")
	ErrKeyResultBlank     = errors.New("key results must not be blank")
	ErrDatesRequired      = errors.New("start and end dates are required")
	ErrDateFormat         = errors.New("dates must be in YYYY-MM-DD form")
	ErrDateOrder          = errors.New("end date must not be before start date")
	ErrInvalidStatus      = errors.New("status must be one of: Not Started, In Progress, Completed, On Hold")
	ErrAssigneeNotInTeam  = errors.New("assigned user is not a member of the team")
	ErrNotFound           = errors.New("okr not found")
	ErrNotAllowed         = errors.New("not allowed to modify this okr")
)

const dateLayout = "2006-01-02"

// RecordStore is the set of store operations the Service relies on.
type RecordStore interface {
	Create(ctx context.Context, rec CreateRecord) (*OKR, error)
	Get(ctx context.Context, id int64) (*OKR, error)
	ListAll(ctx context.Context) ([]*OKR, error)
	ListForTeam(ctx context.Context, teamID int64) ([]*OKR, error)
	ListForUser(ctx context.Context, userID int64) ([]*OKR, error)
	UpdateProgress(ctx context.Context, id int64, progress float64, status Status) (*OKR, error)
	Delete(ctx context.Context, id int64) error
}

// TeamDirectory resolves teams during OKR creation.
type TeamDirectory interface {
	GetTeam(ctx context.Context, id int64) (*hierarchy.Team, error)
}

// MemberDirectory resolves users during OKR creation.
type MemberDirectory interface {
	GetByID(ctx context.Context, id int64) (*identity.User, error)
}

// Service provides validated, policy-checked OKR logic over a store.
type Service struct {
	store   RecordStore
	teams   TeamDirectory
	members MemberDirectory
}

// NewService creates a new Service over the given store and directories.
func NewService(store RecordStore, teams TeamDirectory, members MemberDirectory) *Service {
	return &Service{store: store, teams: teams, members: members}
}

// Create validates the input and inserts the OKR with the actor recorded as
// creator. The assigned user must belong to the target team.
func (s *Service) Create(ctx context.Context, actor *authz.Actor, in CreateInput) (*OKR, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Objective = strings.TrimSpace(in.Objective)
	if in.Title == "" {
		return nil, ErrTitleRequired
	}
	if in.Objective == "" {
		return nil, ErrObjectiveRequired
	}

	keyResults, err := normalizeKeyResults(in.KeyResults)
	if err != nil {
		return nil, err
	}

	start, end, err := parseDateRange(in.StartDate, in.EndDate)
	if err != nil {
		return nil, err
	}

	progress := 0.0
	if in.Progress != nil {
		progress = clampProgress(*in.Progress)
	}
	status := StatusNotStarted
	if in.Status != nil {
		status, err = ParseStatus(*in.Status)
		if err != nil {
			return nil, err
		}
	}

	team, err := s.teams.GetTeam(ctx, in.TeamID)
	if err != nil {
		return nil, err
	}

	assignee, err := s.members.GetByID(ctx, in.AssignedUserID)
	if err != nil {
		return nil, err
	}
	if assignee.TeamID == nil || *assignee.TeamID != team.ID {
		return nil, ErrAssigneeNotInTeam
	}

	return s.store.Create(ctx, CreateRecord{
		Title:          in.Title,
		Description:    strings.TrimSpace(in.Description),
		Objective:      in.Objective,
		KeyResults:     keyResults,
		Progress:       progress,
		Status:         status,
		TeamID:         team.ID,
		AssignedUserID: assignee.ID,
		CreatedBy:      actor.UserID,
		StartDate:      start,
		EndDate:        end,
	})
}

// Get retrieves a single OKR.
func (s *Service) Get(ctx context.Context, id int64) (*OKR, error) {
	return s.store.Get(ctx, id)
}

// ListAll returns every OKR, newest first.
func (s *Service) ListAll(ctx context.Context) ([]*OKR, error) {
	return s.store.ListAll(ctx)
}

// ListForTeam returns the OKRs of one team.
func (s *Service) ListForTeam(ctx context.Context, teamID int64) ([]*OKR, error) {
	return s.store.ListForTeam(ctx, teamID)
}

// ListForUser returns the OKRs assigned to one user.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]*OKR, error) {
	return s.store.ListForUser(ctx, userID)
}

// UpdateProgress overwrites progress and status on an OKR the actor is
// allowed to mutate. Progress is clamped to [0,100] before persisting.
func (s *Service) UpdateProgress(ctx context.Context, actor *authz.Actor, id int64, progress float64, status string) (*OKR, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanMutateOKR(existing.Ref()) {
		return nil, ErrNotAllowed
	}

	st, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}

	return s.store.UpdateProgress(ctx, id, clampProgress(progress), st)
}

// Delete removes an OKR the actor is allowed to mutate. The permission
// contract is identical to UpdateProgress.
func (s *Service) Delete(ctx context.Context, actor *authz.Actor, id int64) error {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanMutateOKR(existing.Ref()) {
		return ErrNotAllowed
	}
	return s.store.Delete(ctx, id)
}

func normalizeKeyResults(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, ErrKeyResultsRequired
	}
	out := make([]string, 0, len(raw))
	for _, kr := range raw {
		kr = strings.TrimSpace(kr)
		if kr == "" {
			return nil, ErrKeyResultBlank
		}
		out = append(out, kr)
	}
	return out, nil
}

func parseDateRange(startRaw, endRaw string) (time.Time, time.Time, error) {
	if strings.TrimSpace(startRaw) == "" || strings.TrimSpace(endRaw) == "" {
		return time.Time{}, time.Time{}, ErrDatesRequired
	}
	start, err := time.Parse(dateLayout, startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, ErrDateFormat
	}
	end, err := time.Parse(dateLayout, endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, ErrDateFormat
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, ErrDateOrder
	}
	return start, end, nil
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
