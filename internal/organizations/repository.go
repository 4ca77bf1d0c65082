package organizations

import "context"

// BranchFilter narrows branch listings.
type BranchFilter struct {
	RegionID int64
	Status   BranchStatus
}

// Repository defines persistence operations for organizations.
type Repository interface {
	EnsureMaster(ctx context.Context, name, nationalID string) (OrganizationMaster, error)
	GetMaster(ctx context.Context, id int64) (OrganizationMaster, error)
	ListMasters(ctx context.Context) ([]OrganizationMaster, error)

	CreateBranch(ctx context.Context, branch OrganizationBranch) (OrganizationBranch, error)
	GetBranch(ctx context.Context, id int64) (OrganizationBranch, error)
	ListBranches(ctx context.Context, filter BranchFilter) ([]OrganizationBranch, error)
	DecideBranch(ctx context.Context, id int64, status BranchStatus, decidedBy int64, notes string) (bool, error)
	SetBranchStatus(ctx context.Context, id int64, status BranchStatus) error

	AddRepresentative(ctx context.Context, userID, branchID int64, primary bool) (Representative, error)
	ListRepresentatives(ctx context.Context, branchID int64) ([]Representative, error)
	CountBranchesByStatus(ctx context.Context) (map[BranchStatus]int64, error)
}
