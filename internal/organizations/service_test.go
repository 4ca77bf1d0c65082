package organizations

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleem-platform/taleem/internal/iam"
)

// ==== MOCK REPOSITORY ====

type mockRepository struct {
	masters      map[int64]OrganizationMaster
	branches     map[int64]OrganizationBranch
	reps         map[int64][]Representative
	nextMasterID int64
	nextBranchID int64
	nextRepID    int64

	createErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		masters:  make(map[int64]OrganizationMaster),
		branches: make(map[int64]OrganizationBranch),
		reps:     make(map[int64][]Representative),
	}
}

func (m *mockRepository) EnsureMaster(_ context.Context, name, nationalID string) (OrganizationMaster, error) {
	for _, master := range m.masters {
		if master.Name == name {
			return master, nil
		}
	}
	m.nextMasterID++
	master := OrganizationMaster{
		ID:         m.nextMasterID,
		Name:       name,
		NationalID: nationalID,
		IsActive:   true,
		CreatedAt:  time.Now(),
	}
	m.masters[master.ID] = master
	return master, nil
}

func (m *mockRepository) GetMaster(_ context.Context, id int64) (OrganizationMaster, error) {
	master, ok := m.masters[id]
	if !ok {
		return OrganizationMaster{}, ErrNotFound
	}
	return master, nil
}

func (m *mockRepository) ListMasters(_ context.Context) ([]OrganizationMaster, error) {
	var out []OrganizationMaster
	for _, master := range m.masters {
		out = append(out, master)
	}
	return out, nil
}

func (m *mockRepository) CreateBranch(_ context.Context, branch OrganizationBranch) (OrganizationBranch, error) {
	if m.createErr != nil {
		return OrganizationBranch{}, m.createErr
	}
	for _, existing := range m.branches {
		if existing.MasterID == branch.MasterID && existing.RegionID == branch.RegionID {
			return OrganizationBranch{}, ErrDuplicate
		}
	}
	m.nextBranchID++
	branch.ID = m.nextBranchID
	branch.Status = StatusPending
	branch.MasterName = m.masters[branch.MasterID].Name
	branch.CreatedAt = time.Now()
	m.branches[branch.ID] = branch
	return branch, nil
}

func (m *mockRepository) GetBranch(_ context.Context, id int64) (OrganizationBranch, error) {
	branch, ok := m.branches[id]
	if !ok {
		return OrganizationBranch{}, ErrNotFound
	}
	return branch, nil
}

func (m *mockRepository) ListBranches(_ context.Context, filter BranchFilter) ([]OrganizationBranch, error) {
	var out []OrganizationBranch
	for _, branch := range m.branches {
		if filter.RegionID != 0 && branch.RegionID != filter.RegionID {
			continue
		}
		if filter.Status != "" && branch.Status != filter.Status {
			continue
		}
		out = append(out, branch)
	}
	return out, nil
}

func (m *mockRepository) DecideBranch(_ context.Context, id int64, status BranchStatus, decidedBy int64, notes string) (bool, error) {
	branch, ok := m.branches[id]
	if !ok || branch.Status != StatusPending {
		return false, nil
	}
	now := time.Now()
	branch.Status = status
	branch.ApprovedBy = &decidedBy
	branch.ApprovedAt = &now
	branch.Notes = notes
	m.branches[id] = branch
	return true, nil
}

func (m *mockRepository) SetBranchStatus(_ context.Context, id int64, status BranchStatus) error {
	branch, ok := m.branches[id]
	if !ok {
		return ErrNotFound
	}
	branch.Status = status
	m.branches[id] = branch
	return nil
}

func (m *mockRepository) AddRepresentative(_ context.Context, userID, branchID int64, primary bool) (Representative, error) {
	m.nextRepID++
	rep := Representative{ID: m.nextRepID, UserID: userID, BranchID: branchID, IsPrimary: primary, CreatedAt: time.Now()}
	m.reps[branchID] = append(m.reps[branchID], rep)
	return rep, nil
}

func (m *mockRepository) ListRepresentatives(_ context.Context, branchID int64) ([]Representative, error) {
	return m.reps[branchID], nil
}

func (m *mockRepository) CountBranchesByStatus(_ context.Context) (map[BranchStatus]int64, error) {
	counts := make(map[BranchStatus]int64)
	for _, branch := range m.branches {
		counts[branch.Status]++
	}
	return counts, nil
}

// ==== AUDIT CAPTURE ====

type iamEventCapture struct {
	events []iam.AuditEvent
}

func newIAMEventCapture() *iamEventCapture {
	return &iamEventCapture{}
}

func (c *iamEventCapture) InsertAuditEvent(_ context.Context, event iam.AuditEvent) error {
	c.events = append(c.events, event)
	return nil
}

func (c *iamEventCapture) ListAuditEvents(_ context.Context, _ iam.AuditFilter) ([]iam.AuditEvent, error) {
	return c.events, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*Service, *mockRepository, *iamEventCapture) {
	t.Helper()
	repo := newMockRepository()
	capture := newIAMEventCapture()
	audit := iam.NewRecorder(capture, testLogger(), nil)
	return NewService(repo, audit, testLogger()), repo, capture
}

var admin = iam.Actor{UserID: 9, Email: "admin@example.com", IPAddress: "10.0.0.1"}

func registerBranch(t *testing.T, svc *Service) OrganizationBranch {
	t.Helper()
	branch, err := svc.RegisterBranch(context.Background(), RegisterBranchInput{
		OrganizationName: "Falcon Academy",
		NationalID:       "700112233",
		RegionID:         1,
		BranchName:       "Riyadh North",
		Address:          "King Fahd Rd",
		Phone:            "+966500000000",
	})
	require.NoError(t, err)
	return branch
}

func TestRegisterBranchCreatesPending(t *testing.T) {
	svc, repo, _ := newTestService(t)

	branch := registerBranch(t, svc)

	assert.Equal(t, StatusPending, branch.Status)
	assert.Equal(t, "Falcon Academy", branch.MasterName)
	assert.Len(t, repo.masters, 1)
}

func TestRegisterBranchReusesMaster(t *testing.T) {
	svc, repo, _ := newTestService(t)
	registerBranch(t, svc)

	second, err := svc.RegisterBranch(context.Background(), RegisterBranchInput{
		OrganizationName: "Falcon Academy",
		NationalID:       "700112233",
		RegionID:         2,
		BranchName:       "Jeddah",
		Address:          "Corniche Rd",
		Phone:            "+966500000001",
	})
	require.NoError(t, err)

	assert.Len(t, repo.masters, 1)
	assert.Equal(t, int64(1), second.MasterID)
}

func TestRegisterBranchDuplicateRegion(t *testing.T) {
	svc, _, _ := newTestService(t)
	registerBranch(t, svc)

	_, err := svc.RegisterBranch(context.Background(), RegisterBranchInput{
		OrganizationName: "Falcon Academy",
		NationalID:       "700112233",
		RegionID:         1,
		BranchName:       "Riyadh South",
		Address:          "Olaya St",
		Phone:            "+966500000002",
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestApproveBranchAudits(t *testing.T) {
	svc, _, capture := newTestService(t)
	branch := registerBranch(t, svc)

	approved, err := svc.Approve(context.Background(), admin, branch.ID, "looks good")
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, admin.UserID, *approved.ApprovedBy)
	assert.Equal(t, "looks good", approved.Notes)

	require.Len(t, capture.events, 1)
	assert.Equal(t, "orgbranch.approve", capture.events[0].Action)
	assert.Equal(t, "Riyadh North", capture.events[0].Meta["branch"])
}

func TestRejectBranch(t *testing.T) {
	svc, _, capture := newTestService(t)
	branch := registerBranch(t, svc)

	rejected, err := svc.Reject(context.Background(), admin, branch.ID, "incomplete papers")
	require.NoError(t, err)

	assert.Equal(t, StatusRejected, rejected.Status)
	require.Len(t, capture.events, 1)
	assert.Equal(t, "orgbranch.reject", capture.events[0].Action)
}

func TestDecideTwiceIsNoOp(t *testing.T) {
	svc, _, capture := newTestService(t)
	branch := registerBranch(t, svc)

	_, err := svc.Approve(context.Background(), admin, branch.ID, "ok")
	require.NoError(t, err)

	again, err := svc.Reject(context.Background(), admin, branch.ID, "changed my mind")
	assert.ErrorIs(t, err, ErrAlreadyDecided)
	assert.Equal(t, StatusApproved, again.Status)
	assert.Len(t, capture.events, 1)
}

func TestSuspendBranch(t *testing.T) {
	svc, _, capture := newTestService(t)
	branch := registerBranch(t, svc)
	_, err := svc.Approve(context.Background(), admin, branch.ID, "")
	require.NoError(t, err)

	suspended, err := svc.Suspend(context.Background(), admin, branch.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, suspended.Status)
	assert.Equal(t, "orgbranch.suspend", capture.events[1].Action)
}

func TestRosterListsRepresentatives(t *testing.T) {
	svc, repo, _ := newTestService(t)
	branch := registerBranch(t, svc)
	_, err := repo.AddRepresentative(context.Background(), 31, branch.ID, true)
	require.NoError(t, err)
	_, err = repo.AddRepresentative(context.Background(), 32, branch.ID, false)
	require.NoError(t, err)

	reps, err := svc.Roster(context.Background(), branch.ID)
	require.NoError(t, err)
	assert.Len(t, reps, 2)

	_, err = svc.Roster(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}
