package iam

import (
	"context"
)

// Decision is a tri-state lookup result. The distinction between an explicit
// deny and no row at all matters: an absent override falls through to the
// role default, an absent role default falls through to deny.
type Decision int8

const (
	// DecisionAbsent means no row exists for the lookup key.
	DecisionAbsent Decision = iota
	// DecisionAllow means a row exists with allow=true.
	DecisionAllow
	// DecisionDeny means a row exists with allow=false.
	DecisionDeny
)

// Allowed reports whether the decision is an explicit allow.
func (d Decision) Allowed() bool { return d == DecisionAllow }

// Repository defines persistence for the IAM tables.
type Repository interface {
	// Permissions
	EnsurePermission(ctx context.Context, code, name, module string) (Permission, error)
	GetPermission(ctx context.Context, id int64) (Permission, error)
	GetPermissionByCode(ctx context.Context, code string) (Permission, error)
	ListPermissions(ctx context.Context, activeOnly bool) ([]Permission, error)
	SetPermissionActive(ctx context.Context, id int64, active bool) error

	// Lookups used by the resolver. Only rows whose permission is active
	// are visible; a deactivated permission reads as DecisionAbsent.
	LookupUserOverride(ctx context.Context, userID int64, code string) (Decision, error)
	LookupRolePolicy(ctx context.Context, role Role, code string) (Decision, error)

	ListRolePolicies(ctx context.Context) ([]RolePolicy, error)
	ListUserOverrides(ctx context.Context, userID int64) ([]UserOverride, error)
	CountRolePolicies(ctx context.Context) (int64, error)
	GetRolePolicy(ctx context.Context, role Role, permissionID int64) (*RolePolicy, error)
	GetUserOverride(ctx context.Context, userID, permissionID int64) (*UserOverride, error)

	// Audit
	InsertAuditEvent(ctx context.Context, event AuditEvent) error
	ListAuditEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)

	// Permission requests
	InsertRequest(ctx context.Context, req PermissionRequest) (PermissionRequest, error)
	GetRequest(ctx context.Context, id int64) (PermissionRequest, error)
	ListRequests(ctx context.Context, status RequestStatus, limit int) ([]PermissionRequest, error)
	CountPendingRequests(ctx context.Context) (int64, error)

	// WithTx runs fn inside one transaction so a policy mutation and the
	// request status change it belongs to commit or roll back together.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the mutations that must run transactionally.
type TxRepository interface {
	UpsertRolePolicy(ctx context.Context, role Role, permissionID int64, allow bool) error
	DeleteRolePolicy(ctx context.Context, role Role, permissionID int64) error
	UpsertUserOverride(ctx context.Context, userID, permissionID int64, allow bool) error
	DeleteUserOverride(ctx context.Context, userID, permissionID int64) error
	MarkRequestDecided(ctx context.Context, id int64, status RequestStatus, decidedBy int64, reason string) (bool, error)
}

// AuditFilter narrows audit event listings. Query matches action names and
// actor/target emails case-insensitively.
type AuditFilter struct {
	Query string
	Limit int
}
