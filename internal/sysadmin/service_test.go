package sysadmin

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleem-platform/taleem/internal/accounts"
	"github.com/taleem-platform/taleem/internal/courses"
	"github.com/taleem-platform/taleem/internal/iam"
	"github.com/taleem-platform/taleem/internal/organizations"
	"github.com/taleem-platform/taleem/internal/support"
)

// ==== MOCK SERVICES ====

type mockAccounts struct {
	users map[int64]*accounts.User
}

func newMockAccounts() *mockAccounts {
	return &mockAccounts{users: map[int64]*accounts.User{}}
}

func (m *mockAccounts) GetUser(_ context.Context, id int64) (*accounts.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (m *mockAccounts) ListUsers(_ context.Context, filter accounts.UserFilter) ([]accounts.User, int64, error) {
	var out []accounts.User
	for _, u := range m.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		out = append(out, *u)
	}
	return out, int64(len(out)), nil
}

func (m *mockAccounts) CountUsersByRole(_ context.Context) (map[iam.Role]int64, error) {
	counts := make(map[iam.Role]int64)
	for _, u := range m.users {
		counts[u.Role]++
	}
	return counts, nil
}

func (m *mockAccounts) UpdateUser(_ context.Context, user *accounts.User) error {
	if !user.Role.Valid() {
		return iam.ErrInvalidRole
	}
	if _, ok := m.users[user.ID]; !ok {
		return accounts.ErrNotFound
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

type overrideKey struct {
	userID int64
	permID int64
}

type mockPerms struct {
	overrides map[overrideKey]bool
	policies  map[string]bool
	requests  map[int64]*iam.PermissionRequest
	pending   int64
}

func newMockPerms() *mockPerms {
	return &mockPerms{
		overrides: map[overrideKey]bool{},
		policies:  map[string]bool{},
		requests:  map[int64]*iam.PermissionRequest{},
	}
}

func (m *mockPerms) SetUserOverride(_ context.Context, _ iam.Actor, userID, permissionID int64, allow bool) error {
	m.overrides[overrideKey{userID, permissionID}] = allow
	return nil
}

func (m *mockPerms) RemoveUserOverride(_ context.Context, _ iam.Actor, userID, permissionID int64) error {
	delete(m.overrides, overrideKey{userID, permissionID})
	return nil
}

func (m *mockPerms) SetRolePolicy(_ context.Context, _ iam.Actor, role iam.Role, permissionID int64, allow bool) error {
	m.policies[string(role)] = allow
	_ = permissionID
	return nil
}

func (m *mockPerms) RemoveRolePolicy(_ context.Context, _ iam.Actor, role iam.Role, _ int64) error {
	delete(m.policies, string(role))
	return nil
}

func (m *mockPerms) RoleMatrix(_ context.Context) ([]iam.Permission, []iam.RolePolicy, error) {
	return nil, nil, nil
}

func (m *mockPerms) UserOverrides(_ context.Context, userID int64) ([]iam.UserOverride, error) {
	var out []iam.UserOverride
	for key, allow := range m.overrides {
		if key.userID == userID {
			out = append(out, iam.UserOverride{UserID: key.userID, PermissionID: key.permID, Allow: allow})
		}
	}
	return out, nil
}

func (m *mockPerms) ListRequests(_ context.Context, status iam.RequestStatus, _ int) ([]iam.PermissionRequest, error) {
	var out []iam.PermissionRequest
	for _, req := range m.requests {
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, *req)
	}
	return out, nil
}

func (m *mockPerms) DecideRequest(_ context.Context, actor iam.Actor, requestID int64, approve bool, _ string) (iam.PermissionRequest, error) {
	req, ok := m.requests[requestID]
	if !ok {
		return iam.PermissionRequest{}, iam.ErrNotFound
	}
	if req.Status != iam.RequestPending {
		return *req, iam.ErrAlreadyDecided
	}
	req.Status = iam.RequestRejected
	if approve {
		req.Status = iam.RequestApproved
		m.overrides[overrideKey{req.TargetUserID, req.PermissionID}] = req.Allow
	}
	req.DecidedBy = &actor.UserID
	return *req, nil
}

func (m *mockPerms) CountPendingRequests(_ context.Context) (int64, error) {
	return m.pending, nil
}

type auditCapture struct {
	events []iam.AuditEvent
}

func (c *auditCapture) InsertAuditEvent(_ context.Context, event iam.AuditEvent) error {
	c.events = append(c.events, event)
	return nil
}

func (c *auditCapture) ListAuditEvents(_ context.Context, _ iam.AuditFilter) ([]iam.AuditEvent, error) {
	out := make([]iam.AuditEvent, len(c.events))
	copy(out, c.events)
	return out, nil
}

type staticBranchStats map[organizations.BranchStatus]int64

func (s staticBranchStats) CountBranchesByStatus(_ context.Context) (map[organizations.BranchStatus]int64, error) {
	return s, nil
}

type staticCourseStats struct {
	courses     int64
	enrollments map[courses.EnrollmentStatus]int64
}

func (s staticCourseStats) CountCourses(_ context.Context) (int64, error) { return s.courses, nil }

func (s staticCourseStats) CountEnrollmentsByStatus(_ context.Context) (map[courses.EnrollmentStatus]int64, error) {
	return s.enrollments, nil
}

type staticTicketStats map[support.Status]int64

func (s staticTicketStats) CountByStatus(_ context.Context) (map[support.Status]int64, error) {
	return s, nil
}

type staticCount int64

func (s staticCount) Count(_ context.Context) (int64, error) { return int64(s), nil }

// ==== TESTS ====

var admin = iam.Actor{UserID: 1, Email: "admin@example.com", IPAddress: "10.0.0.1"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*Service, *mockAccounts, *mockPerms, *auditCapture) {
	t.Helper()
	accts := newMockAccounts()
	perms := newMockPerms()
	capture := &auditCapture{}
	recorder := iam.NewRecorder(capture, testLogger(), nil)
	svc := NewService(accts, perms, recorder, Stats{}, testLogger())
	return svc, accts, perms, capture
}

func TestDashboardAggregatesCounters(t *testing.T) {
	accts := newMockAccounts()
	accts.users[1] = &accounts.User{ID: 1, Role: iam.RoleSuperAdmin}
	accts.users[2] = &accounts.User{ID: 2, Role: iam.RoleIndividual}
	accts.users[3] = &accounts.User{ID: 3, Role: iam.RoleIndividual}
	perms := newMockPerms()
	perms.pending = 4
	recorder := iam.NewRecorder(&auditCapture{}, testLogger(), nil)
	svc := NewService(accts, perms, recorder, Stats{
		Branches:     staticBranchStats{organizations.StatusPending: 2, organizations.StatusApproved: 5},
		Courses:      staticCourseStats{courses: 7, enrollments: map[courses.EnrollmentStatus]int64{courses.EnrollAccepted: 12}},
		Tickets:      staticTicketStats{support.StatusOpen: 3},
		Certificates: staticCount(9),
		Attendance:   staticCount(11),
	}, testLogger())

	stats := svc.Dashboard(context.Background())
	assert.Equal(t, int64(2), stats.UsersByRole[iam.RoleIndividual])
	assert.Equal(t, int64(4), stats.PendingRequests)
	assert.Equal(t, int64(2), stats.BranchesByStatus[organizations.StatusPending])
	assert.Equal(t, int64(7), stats.Courses)
	assert.Equal(t, int64(12), stats.EnrollmentsByStatus[courses.EnrollAccepted])
	assert.Equal(t, int64(3), stats.TicketsByStatus[support.StatusOpen])
	assert.Equal(t, int64(9), stats.Certificates)
	assert.Equal(t, int64(11), stats.Confirmations)
}

func TestDashboardSkipsUnwiredCounters(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	stats := svc.Dashboard(context.Background())
	assert.Zero(t, stats.Courses)
	assert.Nil(t, stats.BranchesByStatus)
}

func TestEditUserRecordsChanges(t *testing.T) {
	svc, accts, _, capture := newTestService(t)
	accts.users[7] = &accounts.User{ID: 7, Email: "x@example.com", Role: iam.RoleIndividual, IsActive: true}

	role := iam.RoleCoordinator
	phone := "+100200300"
	user, err := svc.EditUser(context.Background(), admin, 7, UserEditInput{Role: &role, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, iam.RoleCoordinator, user.Role)
	assert.Equal(t, phone, user.Phone)
	assert.Equal(t, iam.RoleCoordinator, accts.users[7].Role)

	require.Len(t, capture.events, 1)
	event := capture.events[0]
	assert.Equal(t, "user.update", event.Action)
	require.NotNil(t, event.TargetID)
	assert.Equal(t, int64(7), *event.TargetID)
	assert.Contains(t, event.Meta, "role")
	assert.Contains(t, event.Meta, "phone")
	assert.NotContains(t, event.Meta, "is_active")
}

func TestEditUserNoChanges(t *testing.T) {
	svc, accts, _, capture := newTestService(t)
	accts.users[7] = &accounts.User{ID: 7, Role: iam.RoleIndividual, IsActive: true}

	role := iam.RoleIndividual
	user, err := svc.EditUser(context.Background(), admin, 7, UserEditInput{Role: &role})
	assert.ErrorIs(t, err, ErrNoChanges)
	assert.NotNil(t, user)
	assert.Empty(t, capture.events, "no audit event without changes")
}

func TestEditUserRejectsUnknownRole(t *testing.T) {
	svc, accts, _, _ := newTestService(t)
	accts.users[7] = &accounts.User{ID: 7, Role: iam.RoleIndividual}

	role := iam.Role("warlord")
	_, err := svc.EditUser(context.Background(), admin, 7, UserEditInput{Role: &role})
	assert.ErrorIs(t, err, iam.ErrInvalidRole)
}

func TestEditUserUnknownAccount(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	active := false
	_, err := svc.EditUser(context.Background(), admin, 99, UserEditInput{IsActive: &active})
	assert.ErrorIs(t, err, accounts.ErrNotFound)
}

func TestUserDetailIncludesOverrides(t *testing.T) {
	svc, accts, perms, _ := newTestService(t)
	accts.users[7] = &accounts.User{ID: 7, Role: iam.RoleCoordinator}
	require.NoError(t, perms.SetUserOverride(context.Background(), admin, 7, 31, true))

	user, overrides, err := svc.UserDetail(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
	require.Len(t, overrides, 1)
	assert.Equal(t, int64(31), overrides[0].PermissionID)
	assert.True(t, overrides[0].Allow)
}

func TestRolePolicyRejectsUnknownRole(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	err := svc.SetRolePolicy(context.Background(), admin, iam.Role("warlord"), 1, true)
	assert.ErrorIs(t, err, iam.ErrInvalidRole)
	err = svc.RemoveRolePolicy(context.Background(), admin, iam.Role("warlord"), 1)
	assert.ErrorIs(t, err, iam.ErrInvalidRole)
}

func TestDecideRequestGrantsOverride(t *testing.T) {
	svc, _, perms, _ := newTestService(t)
	perms.requests[5] = &iam.PermissionRequest{
		ID: 5, TargetUserID: 7, PermissionID: 31, Allow: true, Status: iam.RequestPending,
	}

	req, err := svc.Decide(context.Background(), admin, 5, true, "granted for the pilot")
	require.NoError(t, err)
	assert.Equal(t, iam.RequestApproved, req.Status)
	assert.True(t, perms.overrides[overrideKey{7, 31}])

	_, err = svc.Decide(context.Background(), admin, 5, false, "")
	assert.ErrorIs(t, err, iam.ErrAlreadyDecided)
}

func TestAuditLogReadsRecorder(t *testing.T) {
	svc, accts, _, _ := newTestService(t)
	accts.users[7] = &accounts.User{ID: 7, Role: iam.RoleIndividual}
	active := false
	_, err := svc.EditUser(context.Background(), admin, 7, UserEditInput{IsActive: &active})
	require.NoError(t, err)

	events, err := svc.AuditLog(context.Background(), iam.AuditFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "user.update", events[0].Action)
}
