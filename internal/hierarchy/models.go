package hierarchy

import "time"

// Organization is the root of the reporting hierarchy.
type Organization struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Department belongs to exactly one organization.
type Department struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	OrganizationID int64     `json:"organization_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Team belongs to exactly one department.
type Team struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	DepartmentID int64     `json:"department_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateOrganizationInput holds the fields for a new organization.
type CreateOrganizationInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateDepartmentInput holds the fields for a new department.
type CreateDepartmentInput struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	OrganizationID int64  `json:"organization_id"`
}

// CreateTeamInput holds the fields for a new team.
type CreateTeamInput struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	DepartmentID int64  `json:"department_id"`
}
