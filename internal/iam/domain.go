package iam

import (
	"errors"
	"strings"
	"time"
)

// Role is the coarse-grained category assigned to a user account. Role
// defaults drive permission resolution unless a per-user override exists.
type Role string

const (
	RoleSuperAdmin    Role = "super_admin"
	RoleRegionManager Role = "region_manager"
	RoleSupervisor    Role = "supervisor"
	RoleCoordinator   Role = "coordinator"
	RoleTrainer       Role = "trainer"
	RoleOrgRep        Role = "org_rep"
	RoleIndividual    Role = "individual"
)

// Roles lists every assignable role.
func Roles() []Role {
	return []Role{
		RoleSuperAdmin,
		RoleRegionManager,
		RoleSupervisor,
		RoleCoordinator,
		RoleTrainer,
		RoleOrgRep,
		RoleIndividual,
	}
}

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleRegionManager, RoleSupervisor, RoleCoordinator,
		RoleTrainer, RoleOrgRep, RoleIndividual:
		return true
	}
	return false
}

// Subject is the resolver's view of the requester.
type Subject struct {
	UserID        int64
	Role          Role
	Authenticated bool
}

// Permission is a protected capability identified by a dotted code,
// e.g. "courses.access" or "sysadmin.users". Codes are immutable once
// created; permissions are deactivated instead of deleted.
type Permission struct {
	ID       int64     `json:"id"`
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	Module   string    `json:"module"`
	IsActive bool      `json:"is_active"`
	Created  time.Time `json:"created_at"`
}

// RolePolicy is the default decision for every member of a role.
type RolePolicy struct {
	ID           int64  `json:"id"`
	Role         Role   `json:"role"`
	PermissionID int64  `json:"permission_id"`
	Code         string `json:"code"`
	Allow        bool   `json:"allow"`
}

// UserOverride is a per-user exception; its presence always wins over the
// role default, whether granting or revoking.
type UserOverride struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id"`
	PermissionID int64  `json:"permission_id"`
	Code         string `json:"code"`
	Allow        bool   `json:"allow"`
}

// AuditEvent is an immutable record of a security-relevant action.
type AuditEvent struct {
	ID          int64          `json:"id"`
	ActorID     *int64         `json:"actor_id,omitempty"`
	ActorEmail  string         `json:"actor_email,omitempty"`
	TargetID    *int64         `json:"target_user_id,omitempty"`
	TargetEmail string         `json:"target_email,omitempty"`
	Action      string         `json:"action"`
	Meta        map[string]any `json:"meta,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// RequestStatus enumerates permission request states.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// PermissionRequest asks a privileged actor to set an override for a user.
// Transitions are one-way: pending -> approved or pending -> rejected.
type PermissionRequest struct {
	ID           int64         `json:"id"`
	RequestedBy  int64         `json:"requested_by"`
	TargetUserID int64         `json:"target_user_id"`
	PermissionID int64         `json:"permission_id"`
	Code         string        `json:"code"`
	Allow        bool          `json:"allow"`
	Reason       string        `json:"reason"`
	Status       RequestStatus `json:"status"`
	DecidedBy    *int64        `json:"decided_by,omitempty"`
	DecidedAt    *time.Time    `json:"decided_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("iam: not found")
	// ErrAlreadyDecided indicates a permission request left pending state.
	ErrAlreadyDecided = errors.New("iam: request already decided")
	// ErrInvalidRole indicates an unknown role value.
	ErrInvalidRole = errors.New("iam: invalid role")
)

// ModuleOf returns the grouping module for a permission code: the text
// before the first dot, or the whole code when undotted.
func ModuleOf(code string) string {
	if module, _, found := strings.Cut(code, "."); found {
		return module
	}
	return code
}
