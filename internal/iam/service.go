package iam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Actor identifies who performs an administrative IAM operation, together
// with the request metadata recorded in the audit trail.
type Actor struct {
	UserID    int64
	Email     string
	IPAddress string
	UserAgent string
}

// Service bundles the IAM mutations behind a single entry point so every
// policy or override change runs its transaction, cache invalidation, and
// audit write in one place.
type Service struct {
	repo     Repository
	registry *Registry
	resolver *Resolver
	audit    *Recorder
	logger   *slog.Logger
}

func NewService(repo Repository, registry *Registry, resolver *Resolver, audit *Recorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, registry: registry, resolver: resolver, audit: audit, logger: logger}
}

func (s *Service) Registry() *Registry { return s.registry }
func (s *Service) Resolver() *Resolver { return s.resolver }
func (s *Service) Audit() *Recorder    { return s.audit }

// SetRolePolicy writes the role default for one permission and applies it
// fleet-wide through cache invalidation.
func (s *Service) SetRolePolicy(ctx context.Context, actor Actor, role Role, permissionID int64, allow bool) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	perm, err := s.repo.GetPermission(ctx, permissionID)
	if err != nil {
		return err
	}
	before, err := s.repo.GetRolePolicy(ctx, role, permissionID)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpsertRolePolicy(ctx, role, permissionID, allow)
	})
	if err != nil {
		return fmt.Errorf("iam: set role policy: %w", err)
	}
	s.invalidate(ctx)
	s.audit.Record(ctx, AuditEvent{
		ActorID: &actor.UserID,
		Action:  "roleperm.set",
		Meta: map[string]any{
			"role":       string(role),
			"permission": perm.Code,
			"allow":      allow,
			"before":     beforeAllow(before == nil, before != nil && before.Allow),
		},
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
	})
	return nil
}

// RemoveRolePolicy deletes the role default so the role falls back to the
// implicit deny.
func (s *Service) RemoveRolePolicy(ctx context.Context, actor Actor, role Role, permissionID int64) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	perm, err := s.repo.GetPermission(ctx, permissionID)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteRolePolicy(ctx, role, permissionID)
	})
	if err != nil {
		return fmt.Errorf("iam: remove role policy: %w", err)
	}
	s.invalidate(ctx)
	s.audit.Record(ctx, AuditEvent{
		ActorID:   &actor.UserID,
		Action:    "roleperm.set",
		Meta:      map[string]any{"role": string(role), "permission": perm.Code, "removed": true},
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
	})
	return nil
}

// SetUserOverride writes a per-user exception that wins over the role default.
func (s *Service) SetUserOverride(ctx context.Context, actor Actor, userID, permissionID int64, allow bool) error {
	perm, err := s.repo.GetPermission(ctx, permissionID)
	if err != nil {
		return err
	}
	before, err := s.repo.GetUserOverride(ctx, userID, permissionID)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpsertUserOverride(ctx, userID, permissionID, allow)
	})
	if err != nil {
		return fmt.Errorf("iam: set user override: %w", err)
	}
	s.invalidate(ctx)
	s.audit.Record(ctx, AuditEvent{
		ActorID:  &actor.UserID,
		TargetID: &userID,
		Action:   "userperm.set",
		Meta: map[string]any{
			"permission": perm.Code,
			"allow":      allow,
			"before":     beforeAllow(before == nil, before != nil && before.Allow),
		},
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
	})
	return nil
}

// RemoveUserOverride deletes the exception so the user falls back to the
// role default.
func (s *Service) RemoveUserOverride(ctx context.Context, actor Actor, userID, permissionID int64) error {
	perm, err := s.repo.GetPermission(ctx, permissionID)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteUserOverride(ctx, userID, permissionID)
	})
	if err != nil {
		return fmt.Errorf("iam: remove user override: %w", err)
	}
	s.invalidate(ctx)
	s.audit.Record(ctx, AuditEvent{
		ActorID:   &actor.UserID,
		TargetID:  &userID,
		Action:    "userperm.set",
		Meta:      map[string]any{"permission": perm.Code, "removed": true},
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
	})
	return nil
}

// SubmitRequest files a pending request to grant or revoke a permission for
// a user. Decisions are made through DecideRequest.
func (s *Service) SubmitRequest(ctx context.Context, requester Actor, targetUserID, permissionID int64, allow bool, reason string) (PermissionRequest, error) {
	if _, err := s.repo.GetPermission(ctx, permissionID); err != nil {
		return PermissionRequest{}, err
	}
	req, err := s.repo.InsertRequest(ctx, PermissionRequest{
		RequestedBy:  requester.UserID,
		TargetUserID: targetUserID,
		PermissionID: permissionID,
		Allow:        allow,
		Reason:       reason,
	})
	if err != nil {
		return PermissionRequest{}, fmt.Errorf("iam: submit request: %w", err)
	}
	return req, nil
}

// DecideRequest approves or rejects a pending request. Approval applies the
// requested override inside the same transaction that flips the status, so a
// request can never be approved without taking effect. Deciding an already
// decided request returns ErrAlreadyDecided and changes nothing.
func (s *Service) DecideRequest(ctx context.Context, actor Actor, requestID int64, approve bool, note string) (PermissionRequest, error) {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return PermissionRequest{}, err
	}
	if req.Status != RequestPending {
		return req, ErrAlreadyDecided
	}

	status := RequestRejected
	if approve {
		status = RequestApproved
	}
	reason := req.Reason
	if note != "" {
		reason = reason + "\n\n[decision]: " + note
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.MarkRequestDecided(ctx, requestID, status, actor.UserID, reason)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyDecided
		}
		if approve {
			return tx.UpsertUserOverride(ctx, req.TargetUserID, req.PermissionID, req.Allow)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyDecided) {
			return req, err
		}
		return PermissionRequest{}, fmt.Errorf("iam: decide request: %w", err)
	}

	action := "permrequest.reject"
	if approve {
		s.invalidate(ctx)
		action = "permrequest.approve"
	}
	s.audit.Record(ctx, AuditEvent{
		ActorID:   &actor.UserID,
		TargetID:  &req.TargetUserID,
		Action:    action,
		Meta:      map[string]any{"permission": req.Code, "allow": req.Allow, "note": note},
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
	})
	return s.repo.GetRequest(ctx, requestID)
}

// ListRequests returns requests by status, newest first.
func (s *Service) ListRequests(ctx context.Context, status RequestStatus, limit int) ([]PermissionRequest, error) {
	return s.repo.ListRequests(ctx, status, limit)
}

// RoleMatrix returns the active permission catalog and every role default,
// the raw material of the role administration screen.
func (s *Service) RoleMatrix(ctx context.Context) ([]Permission, []RolePolicy, error) {
	perms, err := s.repo.ListPermissions(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	policies, err := s.repo.ListRolePolicies(ctx)
	if err != nil {
		return nil, nil, err
	}
	return perms, policies, nil
}

// UserOverrides returns the exception rows for one user.
func (s *Service) UserOverrides(ctx context.Context, userID int64) ([]UserOverride, error) {
	return s.repo.ListUserOverrides(ctx, userID)
}

// CountPendingRequests supports the sysadmin dashboard.
func (s *Service) CountPendingRequests(ctx context.Context) (int64, error) {
	return s.repo.CountPendingRequests(ctx)
}

// invalidate applies a committed policy change to every resolver cache. A
// failed bump leaves remote resolvers unable to read the generation, which
// makes them bypass their caches, so access stays correct either way.
func (s *Service) invalidate(ctx context.Context) {
	if err := s.resolver.Invalidate(ctx); err != nil {
		s.logger.Warn("permission cache invalidation failed", "error", err)
	}
}

func beforeAllow(absent bool, allow bool) any {
	if absent {
		return nil
	}
	return allow
}
