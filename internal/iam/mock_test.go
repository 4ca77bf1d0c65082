package iam

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	perms       map[int64]*Permission
	permsByCode map[string]*Permission
	nextPermID  int64
	ensureCalls map[string]int

	rolePolicies map[string]*RolePolicy
	overrides    map[string]*UserOverride
	nextPolicyID int64

	audits []AuditEvent

	requests  map[int64]*PermissionRequest
	nextReqID int64

	lookupCalls int

	txError     error
	lookupError error
	auditError  error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		perms:        make(map[int64]*Permission),
		permsByCode:  make(map[string]*Permission),
		ensureCalls:  make(map[string]int),
		rolePolicies: make(map[string]*RolePolicy),
		overrides:    make(map[string]*UserOverride),
		requests:     make(map[int64]*PermissionRequest),
		nextPermID:   1,
		nextPolicyID: 1,
		nextReqID:    1,
	}
}

func policyKey(role Role, permID int64) string { return fmt.Sprintf("%s|%d", role, permID) }
func overrideKey(userID, permID int64) string  { return fmt.Sprintf("%d|%d", userID, permID) }

func (m *mockRepository) addPermission(code string, active bool) *Permission {
	p := &Permission{
		ID:       m.nextPermID,
		Code:     code,
		Name:     code,
		Module:   ModuleOf(code),
		IsActive: active,
		Created:  time.Now(),
	}
	m.nextPermID++
	m.perms[p.ID] = p
	m.permsByCode[p.Code] = p
	return p
}

func (m *mockRepository) setRolePolicy(role Role, permID int64, allow bool) {
	m.rolePolicies[policyKey(role, permID)] = &RolePolicy{
		ID: m.nextPolicyID, Role: role, PermissionID: permID,
		Code: m.perms[permID].Code, Allow: allow,
	}
	m.nextPolicyID++
}

func (m *mockRepository) setOverride(userID, permID int64, allow bool) {
	m.overrides[overrideKey(userID, permID)] = &UserOverride{
		ID: m.nextPolicyID, UserID: userID, PermissionID: permID,
		Code: m.perms[permID].Code, Allow: allow,
	}
	m.nextPolicyID++
}

func (m *mockRepository) EnsurePermission(ctx context.Context, code, name, module string) (Permission, error) {
	m.ensureCalls[code]++
	if p, ok := m.permsByCode[code]; ok {
		return *p, nil
	}
	if name == "" {
		name = code
	}
	if module == "" {
		module = ModuleOf(code)
	}
	p := m.addPermission(code, true)
	p.Name = name
	p.Module = module
	return *p, nil
}

func (m *mockRepository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	if p, ok := m.perms[id]; ok {
		return *p, nil
	}
	return Permission{}, ErrNotFound
}

func (m *mockRepository) GetPermissionByCode(ctx context.Context, code string) (Permission, error) {
	if p, ok := m.permsByCode[code]; ok {
		return *p, nil
	}
	return Permission{}, ErrNotFound
}

func (m *mockRepository) ListPermissions(ctx context.Context, activeOnly bool) ([]Permission, error) {
	var out []Permission
	for _, p := range m.perms {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockRepository) SetPermissionActive(ctx context.Context, id int64, active bool) error {
	p, ok := m.perms[id]
	if !ok {
		return ErrNotFound
	}
	p.IsActive = active
	return nil
}

func (m *mockRepository) LookupUserOverride(ctx context.Context, userID int64, code string) (Decision, error) {
	m.lookupCalls++
	if m.lookupError != nil {
		return DecisionAbsent, m.lookupError
	}
	p, ok := m.permsByCode[code]
	if !ok || !p.IsActive {
		return DecisionAbsent, nil
	}
	o, ok := m.overrides[overrideKey(userID, p.ID)]
	if !ok {
		return DecisionAbsent, nil
	}
	if o.Allow {
		return DecisionAllow, nil
	}
	return DecisionDeny, nil
}

func (m *mockRepository) LookupRolePolicy(ctx context.Context, role Role, code string) (Decision, error) {
	m.lookupCalls++
	if m.lookupError != nil {
		return DecisionAbsent, m.lookupError
	}
	p, ok := m.permsByCode[code]
	if !ok || !p.IsActive {
		return DecisionAbsent, nil
	}
	rp, ok := m.rolePolicies[policyKey(role, p.ID)]
	if !ok {
		return DecisionAbsent, nil
	}
	if rp.Allow {
		return DecisionAllow, nil
	}
	return DecisionDeny, nil
}

func (m *mockRepository) ListRolePolicies(ctx context.Context) ([]RolePolicy, error) {
	var out []RolePolicy
	for _, rp := range m.rolePolicies {
		out = append(out, *rp)
	}
	return out, nil
}

func (m *mockRepository) ListUserOverrides(ctx context.Context, userID int64) ([]UserOverride, error) {
	var out []UserOverride
	for key, o := range m.overrides {
		if strings.HasPrefix(key, fmt.Sprintf("%d|", userID)) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockRepository) CountRolePolicies(ctx context.Context) (int64, error) {
	return int64(len(m.rolePolicies)), nil
}

func (m *mockRepository) GetRolePolicy(ctx context.Context, role Role, permissionID int64) (*RolePolicy, error) {
	if rp, ok := m.rolePolicies[policyKey(role, permissionID)]; ok {
		cp := *rp
		return &cp, nil
	}
	return nil, nil
}

func (m *mockRepository) GetUserOverride(ctx context.Context, userID, permissionID int64) (*UserOverride, error) {
	if o, ok := m.overrides[overrideKey(userID, permissionID)]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, nil
}

func (m *mockRepository) InsertAuditEvent(ctx context.Context, event AuditEvent) error {
	if m.auditError != nil {
		return m.auditError
	}
	event.ID = int64(len(m.audits) + 1)
	event.CreatedAt = time.Now()
	m.audits = append(m.audits, event)
	return nil
}

func (m *mockRepository) ListAuditEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	var out []AuditEvent
	for i := len(m.audits) - 1; i >= 0; i-- {
		e := m.audits[i]
		if filter.Query != "" && !strings.Contains(e.Action, filter.Query) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *mockRepository) InsertRequest(ctx context.Context, req PermissionRequest) (PermissionRequest, error) {
	req.ID = m.nextReqID
	m.nextReqID++
	req.Status = RequestPending
	req.CreatedAt = time.Now()
	if p, ok := m.perms[req.PermissionID]; ok {
		req.Code = p.Code
	}
	cp := req
	m.requests[req.ID] = &cp
	return req, nil
}

func (m *mockRepository) GetRequest(ctx context.Context, id int64) (PermissionRequest, error) {
	if req, ok := m.requests[id]; ok {
		return *req, nil
	}
	return PermissionRequest{}, ErrNotFound
}

func (m *mockRepository) ListRequests(ctx context.Context, status RequestStatus, limit int) ([]PermissionRequest, error) {
	var out []PermissionRequest
	for _, req := range m.requests {
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, *req)
	}
	return out, nil
}

func (m *mockRepository) CountPendingRequests(ctx context.Context) (int64, error) {
	var n int64
	for _, req := range m.requests {
		if req.Status == RequestPending {
			n++
		}
	}
	return n, nil
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, &mockTxRepo{mock: m})
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) UpsertRolePolicy(ctx context.Context, role Role, permissionID int64, allow bool) error {
	t.mock.setRolePolicy(role, permissionID, allow)
	return nil
}

func (t *mockTxRepo) DeleteRolePolicy(ctx context.Context, role Role, permissionID int64) error {
	delete(t.mock.rolePolicies, policyKey(role, permissionID))
	return nil
}

func (t *mockTxRepo) UpsertUserOverride(ctx context.Context, userID, permissionID int64, allow bool) error {
	t.mock.setOverride(userID, permissionID, allow)
	return nil
}

func (t *mockTxRepo) DeleteUserOverride(ctx context.Context, userID, permissionID int64) error {
	delete(t.mock.overrides, overrideKey(userID, permissionID))
	return nil
}

func (t *mockTxRepo) MarkRequestDecided(ctx context.Context, id int64, status RequestStatus, decidedBy int64, reason string) (bool, error) {
	req, ok := t.mock.requests[id]
	if !ok || req.Status != RequestPending {
		return false, nil
	}
	now := time.Now()
	req.Status = status
	req.DecidedBy = &decidedBy
	req.DecidedAt = &now
	req.Reason = reason
	return true, nil
}
