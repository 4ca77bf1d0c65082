package organizations

import (
	"context"
	"log/slog"

	"github.com/taleem-platform/taleem/internal/iam"
)

// RegisterBranchInput carries the details a representative submits when
// requesting a new branch.
type RegisterBranchInput struct {
	OrganizationName string
	NationalID       string
	RegionID         int64
	BranchName       string
	Address          string
	Phone            string
	Notes            string
}

// Service coordinates branch registration and the approval workflow.
type Service struct {
	repo   Repository
	audit  *iam.Recorder
	logger *slog.Logger
}

func NewService(repo Repository, audit *iam.Recorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// RegisterBranch creates a pending branch under the named organization,
// creating the parent organization when it does not exist yet.
func (s *Service) RegisterBranch(ctx context.Context, in RegisterBranchInput) (OrganizationBranch, error) {
	master, err := s.repo.EnsureMaster(ctx, in.OrganizationName, in.NationalID)
	if err != nil {
		return OrganizationBranch{}, err
	}
	branch, err := s.repo.CreateBranch(ctx, OrganizationBranch{
		MasterID:   master.ID,
		RegionID:   in.RegionID,
		BranchName: in.BranchName,
		Address:    in.Address,
		Phone:      in.Phone,
		Notes:      in.Notes,
	})
	if err != nil {
		return OrganizationBranch{}, err
	}
	s.logger.Info("organization branch registered",
		"branch_id", branch.ID, "master", master.Name, "region_id", branch.RegionID)
	return branch, nil
}

// Approve marks a pending branch approved. A branch that has already been
// decided is returned unchanged with ErrAlreadyDecided.
func (s *Service) Approve(ctx context.Context, actor iam.Actor, branchID int64, notes string) (OrganizationBranch, error) {
	return s.decide(ctx, actor, branchID, StatusApproved, notes, "orgbranch.approve")
}

// Reject marks a pending branch rejected.
func (s *Service) Reject(ctx context.Context, actor iam.Actor, branchID int64, notes string) (OrganizationBranch, error) {
	return s.decide(ctx, actor, branchID, StatusRejected, notes, "orgbranch.reject")
}

func (s *Service) decide(ctx context.Context, actor iam.Actor, branchID int64, status BranchStatus, notes, action string) (OrganizationBranch, error) {
	branch, err := s.repo.GetBranch(ctx, branchID)
	if err != nil {
		return OrganizationBranch{}, err
	}
	ok, err := s.repo.DecideBranch(ctx, branchID, status, actor.UserID, notes)
	if err != nil {
		return OrganizationBranch{}, err
	}
	if !ok {
		return branch, ErrAlreadyDecided
	}
	s.audit.Record(ctx, iam.AuditEvent{
		ActorID: &actor.UserID,
		Action:  action,
		Meta: map[string]any{
			"branch_id": branchID,
			"branch":    branch.BranchName,
			"master":    branch.MasterName,
			"notes":     notes,
		},
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
	})
	return s.repo.GetBranch(ctx, branchID)
}

// Suspend takes an approved branch out of service without deleting it.
func (s *Service) Suspend(ctx context.Context, actor iam.Actor, branchID int64) (OrganizationBranch, error) {
	branch, err := s.repo.GetBranch(ctx, branchID)
	if err != nil {
		return OrganizationBranch{}, err
	}
	if err := s.repo.SetBranchStatus(ctx, branchID, StatusSuspended); err != nil {
		return OrganizationBranch{}, err
	}
	s.audit.Record(ctx, iam.AuditEvent{
		ActorID:   &actor.UserID,
		Action:    "orgbranch.suspend",
		Meta:      map[string]any{"branch_id": branchID, "branch": branch.BranchName},
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
	})
	return s.repo.GetBranch(ctx, branchID)
}

func (s *Service) GetBranch(ctx context.Context, id int64) (OrganizationBranch, error) {
	return s.repo.GetBranch(ctx, id)
}

func (s *Service) ListBranches(ctx context.Context, filter BranchFilter) ([]OrganizationBranch, error) {
	return s.repo.ListBranches(ctx, filter)
}

func (s *Service) ListMasters(ctx context.Context) ([]OrganizationMaster, error) {
	return s.repo.ListMasters(ctx)
}

// Roster returns the representatives attached to a branch.
func (s *Service) Roster(ctx context.Context, branchID int64) ([]Representative, error) {
	if _, err := s.repo.GetBranch(ctx, branchID); err != nil {
		return nil, err
	}
	return s.repo.ListRepresentatives(ctx, branchID)
}

// AttachRepresentative links a representative account to a branch.
func (s *Service) AttachRepresentative(ctx context.Context, userID, branchID int64, primary bool) (Representative, error) {
	return s.repo.AddRepresentative(ctx, userID, branchID, primary)
}

func (s *Service) CountBranchesByStatus(ctx context.Context) (map[BranchStatus]int64, error) {
	return s.repo.CountBranchesByStatus(ctx)
}
