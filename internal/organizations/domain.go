package organizations

import (
	"errors"
	"time"
)

// BranchStatus tracks the approval state of an organization branch.
type BranchStatus string

const (
	StatusPending   BranchStatus = "pending"
	StatusApproved  BranchStatus = "approved"
	StatusRejected  BranchStatus = "rejected"
	StatusSuspended BranchStatus = "suspended"
)

// OrganizationMaster is the parent entity, e.g. a ministry.
type OrganizationMaster struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	NationalID string    `json:"national_id,omitempty"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// OrganizationBranch is the master's presence in one region. A master has at
// most one branch per region.
type OrganizationBranch struct {
	ID         int64        `json:"id"`
	MasterID   int64        `json:"master_id"`
	MasterName string       `json:"master_name,omitempty"`
	RegionID   int64        `json:"region_id"`
	BranchName string       `json:"branch_name,omitempty"`
	Address    string       `json:"address,omitempty"`
	Phone      string       `json:"phone,omitempty"`
	Status     BranchStatus `json:"status"`
	ApprovedBy *int64       `json:"approved_by,omitempty"`
	ApprovedAt *time.Time   `json:"approved_at,omitempty"`
	Notes      string       `json:"notes,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Representative links a user account to the branch it speaks for.
type Representative struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	BranchID  int64     `json:"branch_id"`
	IsPrimary bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrNotFound       = errors.New("organizations: not found")
	ErrDuplicate      = errors.New("organizations: already exists")
	ErrAlreadyDecided = errors.New("organizations: branch already decided")
)
