package okr

import (
	"time"

	"github.com/mlaroche/boussole/internal/authz"
)

// Status is the lifecycle state of an OKR.
type Status string

const (
	StatusNotStarted Status = "Not Started"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
	StatusOnHold     Status = "On Hold"
)

// ParseStatus validates a status string against the fixed vocabulary.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusOnHold:
		return Status(s), nil
	}
	return "", ErrInvalidStatus
}

// OKR is the read model returned by the repository. Team and user names are
// joined at read time, never stored; DepartmentID is the department of the
// OKR's team, which is what the authorization policy keys on.
type OKR struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Objective        string    `json:"objective"`
	KeyResults       []string  `json:"key_results"`
	Progress         float64   `json:"progress"`
	Status           Status    `json:"status"`
	TeamID           int64     `json:"team_id"`
	TeamName         string    `json:"team_name"`
	DepartmentID     int64     `json:"department_id"`
	AssignedUserID   int64     `json:"assigned_user_id"`
	AssignedUsername string    `json:"assigned_username"`
	CreatedBy        int64     `json:"created_by"`
	CreatorUsername  string    `json:"creator_username"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	CreatedAt        time.Time `json:"created_at"`
}

// Ref reduces the OKR to what the authorization policy needs.
func (o *OKR) Ref() authz.OKRRef {
	return authz.OKRRef{
		AssignedUserID: o.AssignedUserID,
		CreatedBy:      o.CreatedBy,
		TeamID:         o.TeamID,
		DepartmentID:   o.DepartmentID,
	}
}

// CreateInput holds the fields accepted when creating an OKR. Dates are
// YYYY-MM-DD strings; Progress and Status are optional and default to 0 and
// Not Started.
type CreateInput struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Objective      string   `json:"objective"`
	KeyResults     []string `json:"key_results"`
	TeamID         int64    `json:"team_id"`
	AssignedUserID int64    `json:"assigned_user_id"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
	Progress       *float64 `json:"progress,omitempty"`
	Status         *string  `json:"status,omitempty"`
}

// CreateRecord is the validated, normalized form the store persists.
type CreateRecord struct {
	Title          string
	Description    string
	Objective      string
	KeyResults     []string
	Progress       float64
	Status         Status
	TeamID         int64
	AssignedUserID int64
	CreatedBy      int64
	StartDate      time.Time
	EndDate        time.Time
}
