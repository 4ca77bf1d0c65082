package individuals

import (
	"errors"
	"time"
)

// Individual is a person in the directory. It may be an independent
// participant or an employee of an organization branch.
type Individual struct {
	ID          int64     `json:"id"`
	RegionID    *int64    `json:"region_id,omitempty"`
	OrgBranchID *int64    `json:"org_branch_id,omitempty"`
	FullName    string    `json:"full_name"`
	NationalID  string    `json:"national_id,omitempty"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone,omitempty"`
	EmployeeID  string    `json:"employee_id,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

var (
	ErrNotFound  = errors.New("individuals: not found")
	ErrDuplicate = errors.New("individuals: duplicate")
)
