package sysadmin

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/taleem-platform/taleem/internal/accounts"
	"github.com/taleem-platform/taleem/internal/courses"
	"github.com/taleem-platform/taleem/internal/iam"
	"github.com/taleem-platform/taleem/internal/organizations"
	"github.com/taleem-platform/taleem/internal/support"
)

var ErrNoChanges = errors.New("sysadmin: nothing to change")

// Accounts is the slice of the accounts service the admin surface uses.
type Accounts interface {
	GetUser(ctx context.Context, id int64) (*accounts.User, error)
	ListUsers(ctx context.Context, filter accounts.UserFilter) ([]accounts.User, int64, error)
	CountUsersByRole(ctx context.Context) (map[iam.Role]int64, error)
	UpdateUser(ctx context.Context, user *accounts.User) error
}

// PermissionAdmin is the slice of the permission engine exposed to
// administrators. *iam.Service satisfies it.
type PermissionAdmin interface {
	SetUserOverride(ctx context.Context, actor iam.Actor, userID, permissionID int64, allow bool) error
	RemoveUserOverride(ctx context.Context, actor iam.Actor, userID, permissionID int64) error
	SetRolePolicy(ctx context.Context, actor iam.Actor, role iam.Role, permissionID int64, allow bool) error
	RemoveRolePolicy(ctx context.Context, actor iam.Actor, role iam.Role, permissionID int64) error
	RoleMatrix(ctx context.Context) ([]iam.Permission, []iam.RolePolicy, error)
	UserOverrides(ctx context.Context, userID int64) ([]iam.UserOverride, error)
	ListRequests(ctx context.Context, status iam.RequestStatus, limit int) ([]iam.PermissionRequest, error)
	DecideRequest(ctx context.Context, actor iam.Actor, requestID int64, approve bool, note string) (iam.PermissionRequest, error)
	CountPendingRequests(ctx context.Context) (int64, error)
}

// Counter reports a single headline total.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// BranchStats counts organization branches per approval status.
type BranchStats interface {
	CountBranchesByStatus(ctx context.Context) (map[organizations.BranchStatus]int64, error)
}

// CourseStats counts the training catalog and its enrollments.
type CourseStats interface {
	CountCourses(ctx context.Context) (int64, error)
	CountEnrollmentsByStatus(ctx context.Context) (map[courses.EnrollmentStatus]int64, error)
}

// TicketStats counts support tickets per lifecycle status.
type TicketStats interface {
	CountByStatus(ctx context.Context) (map[support.Status]int64, error)
}

// Stats bundles the per-module counters behind the dashboard. Nil fields
// are skipped, so the dashboard degrades instead of breaking when a
// module is not wired.
type Stats struct {
	Branches     BranchStats
	Courses      CourseStats
	Tickets      TicketStats
	Certificates Counter
	Attendance   Counter
}

// DashboardStats is the headline view rendered on the admin landing page.
type DashboardStats struct {
	UsersByRole         map[iam.Role]int64                     `json:"users_by_role"`
	PendingRequests     int64                                  `json:"pending_requests"`
	BranchesByStatus    map[organizations.BranchStatus]int64   `json:"branches_by_status"`
	Courses             int64                                  `json:"courses"`
	EnrollmentsByStatus map[courses.EnrollmentStatus]int64     `json:"enrollments_by_status"`
	TicketsByStatus     map[support.Status]int64               `json:"tickets_by_status"`
	Certificates        int64                                  `json:"certificates"`
	Confirmations       int64                                  `json:"confirmations"`
}

// Service backs the platform administration surface. Everything here is
// orchestration over the module services; the authorization decisions
// themselves live in the permission engine.
type Service struct {
	accounts Accounts
	perms    PermissionAdmin
	audit    *iam.Recorder
	stats    Stats
	logger   *slog.Logger
}

func NewService(accts Accounts, perms PermissionAdmin, audit *iam.Recorder, stats Stats, logger *slog.Logger) *Service {
	return &Service{accounts: accts, perms: perms, audit: audit, stats: stats, logger: logger}
}

// Dashboard aggregates the headline counters. The counters hit different
// tables, so they run concurrently. A failing counter logs and leaves its
// zero value in place rather than blanking the whole page.
func (s *Service) Dashboard(ctx context.Context) DashboardStats {
	var stats DashboardStats
	g, ctx := errgroup.WithContext(ctx)

	count := func(name string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				s.logger.Error("dashboard counter failed", "counter", name, "error", err)
			}
			return nil
		})
	}

	count("users", func() (err error) {
		stats.UsersByRole, err = s.accounts.CountUsersByRole(ctx)
		return err
	})
	count("requests", func() (err error) {
		stats.PendingRequests, err = s.perms.CountPendingRequests(ctx)
		return err
	})
	if s.stats.Branches != nil {
		count("branches", func() (err error) {
			stats.BranchesByStatus, err = s.stats.Branches.CountBranchesByStatus(ctx)
			return err
		})
	}
	if s.stats.Courses != nil {
		count("courses", func() (err error) {
			stats.Courses, err = s.stats.Courses.CountCourses(ctx)
			return err
		})
		count("enrollments", func() (err error) {
			stats.EnrollmentsByStatus, err = s.stats.Courses.CountEnrollmentsByStatus(ctx)
			return err
		})
	}
	if s.stats.Tickets != nil {
		count("tickets", func() (err error) {
			stats.TicketsByStatus, err = s.stats.Tickets.CountByStatus(ctx)
			return err
		})
	}
	if s.stats.Certificates != nil {
		count("certificates", func() (err error) {
			stats.Certificates, err = s.stats.Certificates.Count(ctx)
			return err
		})
	}
	if s.stats.Attendance != nil {
		count("confirmations", func() (err error) {
			stats.Confirmations, err = s.stats.Attendance.Count(ctx)
			return err
		})
	}
	_ = g.Wait()
	return stats
}

// Users pages accounts for the administration list.
func (s *Service) Users(ctx context.Context, filter accounts.UserFilter) ([]accounts.User, int64, error) {
	return s.accounts.ListUsers(ctx, filter)
}

// UserDetail loads one account together with its permission overrides.
func (s *Service) UserDetail(ctx context.Context, id int64) (*accounts.User, []iam.UserOverride, error) {
	user, err := s.accounts.GetUser(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	overrides, err := s.perms.UserOverrides(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return user, overrides, nil
}

// UserEditInput patches an account; nil fields stay untouched.
type UserEditInput struct {
	Role     *iam.Role
	Phone    *string
	RegionID *int64
	IsActive *bool
}

// EditUser applies administrative changes to an account and records the
// before and after values in the audit trail.
func (s *Service) EditUser(ctx context.Context, actor iam.Actor, userID int64, in UserEditInput) (*accounts.User, error) {
	user, err := s.accounts.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if in.Role != nil && *in.Role != user.Role {
		if !in.Role.Valid() {
			return nil, iam.ErrInvalidRole
		}
		changes["role"] = map[string]any{"from": user.Role, "to": *in.Role}
		user.Role = *in.Role
	}
	if in.Phone != nil && *in.Phone != user.Phone {
		changes["phone"] = map[string]any{"from": user.Phone, "to": *in.Phone}
		user.Phone = *in.Phone
	}
	if in.RegionID != nil {
		changes["region_id"] = map[string]any{"from": user.RegionID, "to": *in.RegionID}
		user.RegionID = in.RegionID
	}
	if in.IsActive != nil && *in.IsActive != user.IsActive {
		changes["is_active"] = map[string]any{"from": user.IsActive, "to": *in.IsActive}
		user.IsActive = *in.IsActive
	}
	if len(changes) == 0 {
		return user, ErrNoChanges
	}

	if err := s.accounts.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, iam.AuditEvent{
		ActorID:   &actor.UserID,
		TargetID:  &userID,
		Action:    "user.update",
		Meta:      changes,
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
	})
	return user, nil
}

// SetOverride grants or revokes one permission for one user; Remove
// drops the override so the role default applies again.
func (s *Service) SetOverride(ctx context.Context, actor iam.Actor, userID, permissionID int64, allow bool) error {
	return s.perms.SetUserOverride(ctx, actor, userID, permissionID, allow)
}

func (s *Service) RemoveOverride(ctx context.Context, actor iam.Actor, userID, permissionID int64) error {
	return s.perms.RemoveUserOverride(ctx, actor, userID, permissionID)
}

// RoleMatrix returns every active permission plus the role defaults.
func (s *Service) RoleMatrix(ctx context.Context) ([]iam.Permission, []iam.RolePolicy, error) {
	return s.perms.RoleMatrix(ctx)
}

func (s *Service) SetRolePolicy(ctx context.Context, actor iam.Actor, role iam.Role, permissionID int64, allow bool) error {
	if !role.Valid() {
		return iam.ErrInvalidRole
	}
	return s.perms.SetRolePolicy(ctx, actor, role, permissionID, allow)
}

func (s *Service) RemoveRolePolicy(ctx context.Context, actor iam.Actor, role iam.Role, permissionID int64) error {
	if !role.Valid() {
		return iam.ErrInvalidRole
	}
	return s.perms.RemoveRolePolicy(ctx, actor, role, permissionID)
}

// Requests lists permission requests, pending first by convention of the
// underlying store.
func (s *Service) Requests(ctx context.Context, status iam.RequestStatus, limit int) ([]iam.PermissionRequest, error) {
	return s.perms.ListRequests(ctx, status, limit)
}

// Decide approves or rejects a pending permission request.
func (s *Service) Decide(ctx context.Context, actor iam.Actor, requestID int64, approve bool, note string) (iam.PermissionRequest, error) {
	return s.perms.DecideRequest(ctx, actor, requestID, approve, note)
}

// AuditLog returns recent security events, newest first.
func (s *Service) AuditLog(ctx context.Context, filter iam.AuditFilter) ([]iam.AuditEvent, error) {
	return s.audit.List(ctx, filter)
}
