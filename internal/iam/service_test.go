package iam

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopMetrics struct{ auditFailures int }

func (m *noopMetrics) AuditWriteFailed() { m.auditFailures++ }

func newTestService(repo *mockRepository) *Service {
	logger := testLogger()
	registry := NewRegistry(repo, logger)
	resolver := NewResolver(repo, &LocalGeneration{}, logger)
	audit := NewRecorder(repo, logger, &noopMetrics{})
	return NewService(repo, registry, resolver, audit, logger)
}

var admin = Actor{UserID: 1, Email: "admin@taleem.example", IPAddress: "10.0.0.1", UserAgent: "test"}

func TestSetRolePolicyAppliesAndAudits(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	perm := repo.addPermission("courses.access", true)

	require.NoError(t, svc.SetRolePolicy(context.Background(), admin, RoleCoordinator, perm.ID, true))

	subject := staffSubject(42, RoleCoordinator)
	ok, err := svc.Resolver().HasPermission(context.Background(), subject, "courses.access")
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, repo.audits, 1)
	event := repo.audits[0]
	assert.Equal(t, "roleperm.set", event.Action)
	assert.Equal(t, "courses.access", event.Meta["permission"])
	assert.Equal(t, true, event.Meta["allow"])
	assert.Nil(t, event.Meta["before"])
	assert.Equal(t, "10.0.0.1", event.IPAddress)
}

func TestSetRolePolicyRecordsPreviousValue(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	perm := repo.addPermission("courses.access", true)
	repo.setRolePolicy(RoleCoordinator, perm.ID, true)

	require.NoError(t, svc.SetRolePolicy(context.Background(), admin, RoleCoordinator, perm.ID, false))
	assert.Equal(t, true, repo.audits[0].Meta["before"])
}

func TestSetRolePolicyInvalidRole(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	perm := repo.addPermission("courses.access", true)

	err := svc.SetRolePolicy(context.Background(), admin, Role("ghost"), perm.ID, true)
	require.ErrorIs(t, err, ErrInvalidRole)
	assert.Empty(t, repo.audits)
}

func TestSetRolePolicyUnknownPermission(t *testing.T) {
	svc := newTestService(newMockRepository())
	err := svc.SetRolePolicy(context.Background(), admin, RoleCoordinator, 99, true)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetUserOverrideInvalidatesCache(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	perm := repo.addPermission("support.index", true)
	repo.setRolePolicy(RoleSupervisor, perm.ID, true)
	subject := staffSubject(8, RoleSupervisor)

	ok, err := svc.Resolver().HasPermission(context.Background(), subject, "support.index")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, svc.SetUserOverride(context.Background(), admin, 8, perm.ID, false))

	ok, err = svc.Resolver().HasPermission(context.Background(), subject, "support.index")
	require.NoError(t, err)
	assert.False(t, ok, "deny override visible immediately after the write")

	require.Len(t, repo.audits, 1)
	assert.Equal(t, "userperm.set", repo.audits[0].Action)
	require.NotNil(t, repo.audits[0].TargetID)
	assert.Equal(t, int64(8), *repo.audits[0].TargetID)
}

func TestRemoveUserOverrideRestoresRoleDefault(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	perm := repo.addPermission("support.index", true)
	repo.setRolePolicy(RoleSupervisor, perm.ID, true)
	repo.setOverride(8, perm.ID, false)
	subject := staffSubject(8, RoleSupervisor)

	ok, err := svc.Resolver().HasPermission(context.Background(), subject, "support.index")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, svc.RemoveUserOverride(context.Background(), admin, 8, perm.ID))

	ok, err = svc.Resolver().HasPermission(context.Background(), subject, "support.index")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, true, repo.audits[0].Meta["removed"])
}

func TestRequestApproveAppliesOverride(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	perm := repo.addPermission("courses.publish", true)
	requester := Actor{UserID: 5}

	req, err := svc.SubmitRequest(context.Background(), requester, 30, perm.ID, true, "coordinator needs publish")
	require.NoError(t, err)
	assert.Equal(t, RequestPending, req.Status)

	decided, err := svc.DecideRequest(context.Background(), admin, req.ID, true, "ok for this term")
	require.NoError(t, err)
	assert.Equal(t, RequestApproved, decided.Status)
	require.NotNil(t, decided.DecidedBy)
	assert.Equal(t, admin.UserID, *decided.DecidedBy)
	assert.NotNil(t, decided.DecidedAt)
	assert.Contains(t, decided.Reason, "coordinator needs publish")
	assert.Contains(t, decided.Reason, "ok for this term")

	override, err := repo.GetUserOverride(context.Background(), 30, perm.ID)
	require.NoError(t, err)
	require.NotNil(t, override)
	assert.True(t, override.Allow)

	subject := staffSubject(30, RoleCoordinator)
	ok, err := svc.Resolver().HasPermission(context.Background(), subject, "courses.publish")
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, repo.audits, 1)
	assert.Equal(t, "permrequest.approve", repo.audits[0].Action)
}

func TestRequestRejectLeavesNoOverride(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	perm := repo.addPermission("courses.publish", true)

	req, err := svc.SubmitRequest(context.Background(), Actor{UserID: 5}, 30, perm.ID, true, "please")
	require.NoError(t, err)

	decided, err := svc.DecideRequest(context.Background(), admin, req.ID, false, "not this term")
	require.NoError(t, err)
	assert.Equal(t, RequestRejected, decided.Status)

	override, err := repo.GetUserOverride(context.Background(), 30, perm.ID)
	require.NoError(t, err)
	assert.Nil(t, override)
	assert.Equal(t, "permrequest.reject", repo.audits[0].Action)
}

func TestRequestDecideTwiceIsNoOp(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	perm := repo.addPermission("courses.publish", true)

	req, err := svc.SubmitRequest(context.Background(), Actor{UserID: 5}, 30, perm.ID, true, "please")
	require.NoError(t, err)
	_, err = svc.DecideRequest(context.Background(), admin, req.ID, true, "ok")
	require.NoError(t, err)

	again, err := svc.DecideRequest(context.Background(), admin, req.ID, false, "changed my mind")
	require.ErrorIs(t, err, ErrAlreadyDecided)
	assert.Equal(t, RequestApproved, again.Status, "first decision stands")

	override, err := repo.GetUserOverride(context.Background(), 30, perm.ID)
	require.NoError(t, err)
	require.NotNil(t, override)
	assert.True(t, override.Allow)
	assert.Len(t, repo.audits, 1, "no second audit event")
}

func TestAuditRecordSwallowsWriteFailure(t *testing.T) {
	repo := newMockRepository()
	repo.auditError = assert.AnError
	metrics := &noopMetrics{}
	recorder := NewRecorder(repo, testLogger(), metrics)

	recorder.Record(context.Background(), AuditEvent{Action: "user.update"})
	assert.Equal(t, 1, metrics.auditFailures)
}

func TestSeedBaselineOnlyOnEmptyTable(t *testing.T) {
	repo := newMockRepository()
	registry := NewRegistry(repo, testLogger())

	require.NoError(t, SeedBaseline(context.Background(), repo, registry, testLogger()))
	seeded := len(repo.rolePolicies)
	require.NotZero(t, seeded)

	// verify one representative grant
	perm, err := repo.GetPermissionByCode(context.Background(), "attendance.access")
	require.NoError(t, err)
	policy, err := repo.GetRolePolicy(context.Background(), RoleCoordinator, perm.ID)
	require.NoError(t, err)
	require.NotNil(t, policy)
	assert.True(t, policy.Allow)

	// a non-empty table blocks reseeding
	require.NoError(t, SeedBaseline(context.Background(), repo, registry, testLogger()))
	assert.Len(t, repo.rolePolicies, seeded)
}

func TestSeedBaselineCoversEveryRole(t *testing.T) {
	for _, role := range Roles() {
		if role == RoleSuperAdmin {
			assert.NotContains(t, baselinePolicies, role, "super admins bypass policy")
			continue
		}
		codes, ok := baselinePolicies[role]
		assert.True(t, ok, "role %s has no baseline", role)
		assert.Contains(t, codes, "core.access")
	}
}
