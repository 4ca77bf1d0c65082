package iam

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taleem-platform/taleem/internal/platform/db"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

const permissionColumns = `id, code, name, module, is_active, created_at`

// EnsurePermission inserts the permission if its code is unknown and returns
// the stored row either way. A concurrent insert of the same code is safe:
// ON CONFLICT DO NOTHING followed by a read-back never duplicates.
func (r *PGRepository) EnsurePermission(ctx context.Context, code, name, module string) (Permission, error) {
	code = strings.TrimSpace(code)
	if name == "" {
		name = code
	}
	if module == "" {
		module = ModuleOf(code)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO permissions (code, name, module, is_active, created_at)
		VALUES ($1, $2, $3, TRUE, NOW())
		ON CONFLICT (code) DO NOTHING`, code, name, module)
	if err != nil {
		return Permission{}, err
	}
	return r.GetPermissionByCode(ctx, code)
}

// GetPermission fetches a permission by ID.
func (r *PGRepository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id)
	return scanPermission(row)
}

// GetPermissionByCode fetches a permission by its unique code.
func (r *PGRepository) GetPermissionByCode(ctx context.Context, code string) (Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE code = $1`, code)
	return scanPermission(row)
}

// ListPermissions returns permissions ordered by module then code.
func (r *PGRepository) ListPermissions(ctx context.Context, activeOnly bool) ([]Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY module, code`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// SetPermissionActive flips the active flag. Deactivated permissions resolve
// as if no policy or override rows exist for them.
func (r *PGRepository) SetPermissionActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE permissions SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LookupUserOverride returns the override decision for (user, code).
func (r *PGRepository) LookupUserOverride(ctx context.Context, userID int64, code string) (Decision, error) {
	var allow bool
	err := r.pool.QueryRow(ctx, `
		SELECT uo.allow
		FROM user_overrides uo
		JOIN permissions p ON p.id = uo.permission_id
		WHERE uo.user_id = $1 AND p.code = $2 AND p.is_active`, userID, code).Scan(&allow)
	return scanDecision(allow, err)
}

// LookupRolePolicy returns the role default decision for (role, code).
func (r *PGRepository) LookupRolePolicy(ctx context.Context, role Role, code string) (Decision, error) {
	var allow bool
	err := r.pool.QueryRow(ctx, `
		SELECT rp.allow
		FROM role_policies rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role = $1 AND p.code = $2 AND p.is_active`, string(role), code).Scan(&allow)
	return scanDecision(allow, err)
}

// WithTx runs fn inside a read-committed transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

var _ TxRepository = (*txRepo)(nil)

func (r *txRepo) UpsertRolePolicy(ctx context.Context, role Role, permissionID int64, allow bool) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO role_policies (role, permission_id, allow)
		VALUES ($1, $2, $3)
		ON CONFLICT (role, permission_id) DO UPDATE SET allow = EXCLUDED.allow`,
		string(role), permissionID, allow)
	return err
}

func (r *txRepo) DeleteRolePolicy(ctx context.Context, role Role, permissionID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM role_policies WHERE role = $1 AND permission_id = $2`,
		string(role), permissionID)
	return err
}

func (r *txRepo) UpsertUserOverride(ctx context.Context, userID, permissionID int64, allow bool) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO user_overrides (user_id, permission_id, allow)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, permission_id) DO UPDATE SET allow = EXCLUDED.allow`,
		userID, permissionID, allow)
	return err
}

func (r *txRepo) DeleteUserOverride(ctx context.Context, userID, permissionID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM user_overrides WHERE user_id = $1 AND permission_id = $2`,
		userID, permissionID)
	return err
}

// MarkRequestDecided transitions a pending request to its terminal status.
// The WHERE clause enforces the one-way transition: it reports false when
// the request had already left pending state.
func (r *txRepo) MarkRequestDecided(ctx context.Context, id int64, status RequestStatus, decidedBy int64, reason string) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
		UPDATE permission_requests
		SET status = $2, decided_by = $3, decided_at = NOW(), reason = $4
		WHERE id = $1 AND status = 'pending'`,
		id, string(status), decidedBy, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListRolePolicies returns every role default with its permission code.
func (r *PGRepository) ListRolePolicies(ctx context.Context) ([]RolePolicy, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rp.id, rp.role, rp.permission_id, p.code, rp.allow
		FROM role_policies rp
		JOIN permissions p ON p.id = rp.permission_id
		ORDER BY rp.role, p.code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var policies []RolePolicy
	for rows.Next() {
		var policy RolePolicy
		var role string
		if err := rows.Scan(&policy.ID, &role, &policy.PermissionID, &policy.Code, &policy.Allow); err != nil {
			return nil, err
		}
		policy.Role = Role(role)
		policies = append(policies, policy)
	}
	return policies, rows.Err()
}

// ListUserOverrides returns the overrides for one user.
func (r *PGRepository) ListUserOverrides(ctx context.Context, userID int64) ([]UserOverride, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT uo.id, uo.user_id, uo.permission_id, p.code, uo.allow
		FROM user_overrides uo
		JOIN permissions p ON p.id = uo.permission_id
		WHERE uo.user_id = $1
		ORDER BY p.code`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var overrides []UserOverride
	for rows.Next() {
		var o UserOverride
		if err := rows.Scan(&o.ID, &o.UserID, &o.PermissionID, &o.Code, &o.Allow); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

// CountRolePolicies reports how many role defaults exist. Baseline seeding
// runs only when this is zero.
func (r *PGRepository) CountRolePolicies(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM role_policies`).Scan(&n)
	return n, err
}

// GetRolePolicy returns the role default row, or nil when absent.
func (r *PGRepository) GetRolePolicy(ctx context.Context, role Role, permissionID int64) (*RolePolicy, error) {
	var policy RolePolicy
	var roleStr string
	err := r.pool.QueryRow(ctx, `
		SELECT rp.id, rp.role, rp.permission_id, p.code, rp.allow
		FROM role_policies rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role = $1 AND rp.permission_id = $2`,
		string(role), permissionID).Scan(&policy.ID, &roleStr, &policy.PermissionID, &policy.Code, &policy.Allow)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	policy.Role = Role(roleStr)
	return &policy, nil
}

// GetUserOverride returns the override row, or nil when absent.
func (r *PGRepository) GetUserOverride(ctx context.Context, userID, permissionID int64) (*UserOverride, error) {
	var o UserOverride
	err := r.pool.QueryRow(ctx, `
		SELECT uo.id, uo.user_id, uo.permission_id, p.code, uo.allow
		FROM user_overrides uo
		JOIN permissions p ON p.id = uo.permission_id
		WHERE uo.user_id = $1 AND uo.permission_id = $2`,
		userID, permissionID).Scan(&o.ID, &o.UserID, &o.PermissionID, &o.Code, &o.Allow)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// InsertAuditEvent appends one audit row. Rows are never updated or deleted
// by the application.
func (r *PGRepository) InsertAuditEvent(ctx context.Context, event AuditEvent) error {
	meta, err := json.Marshal(event.Meta)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_events (actor_id, target_user_id, action, meta, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NOW())`,
		event.ActorID, event.TargetID, event.Action, meta, event.IPAddress, event.UserAgent)
	return err
}

// ListAuditEvents returns events most recent first, optionally filtered by a
// free-text match over action, actor email, or target email.
func (r *PGRepository) ListAuditEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	query := `
		SELECT e.id, e.actor_id, COALESCE(actor.email, ''), e.target_user_id, COALESCE(target.email, ''),
		       e.action, e.meta, COALESCE(e.ip_address::text, ''), e.user_agent, e.created_at
		FROM audit_events e
		LEFT JOIN users actor ON actor.id = e.actor_id
		LEFT JOIN users target ON target.id = e.target_user_id`
	args := []any{}
	if q := strings.TrimSpace(filter.Query); q != "" {
		query += ` WHERE e.action ILIKE $1 OR actor.email ILIKE $1 OR target.email ILIKE $1`
		args = append(args, "%"+q+"%")
	}
	query += ` ORDER BY e.created_at DESC LIMIT ` + strconv.Itoa(limit)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var meta []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorEmail, &e.TargetID, &e.TargetEmail,
			&e.Action, &meta, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Meta)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

const requestColumns = `
	pr.id, pr.requested_by, pr.target_user_id, pr.permission_id, p.code, pr.allow,
	pr.reason, pr.status, pr.decided_by, pr.decided_at, pr.created_at`

// InsertRequest stores a new pending permission request.
func (r *PGRepository) InsertRequest(ctx context.Context, req PermissionRequest) (PermissionRequest, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permission_requests (requested_by, target_user_id, permission_id, allow, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', NOW())
		RETURNING id`,
		req.RequestedBy, req.TargetUserID, req.PermissionID, req.Allow, req.Reason).Scan(&id)
	if err != nil {
		return PermissionRequest{}, err
	}
	return r.GetRequest(ctx, id)
}

// GetRequest fetches one request by ID.
func (r *PGRepository) GetRequest(ctx context.Context, id int64) (PermissionRequest, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM permission_requests pr
		JOIN permissions p ON p.id = pr.permission_id
		WHERE pr.id = $1`, id)
	return scanRequest(row)
}

// ListRequests returns requests most recent first, optionally by status.
func (r *PGRepository) ListRequests(ctx context.Context, status RequestStatus, limit int) ([]PermissionRequest, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	query := `
		SELECT ` + requestColumns + `
		FROM permission_requests pr
		JOIN permissions p ON p.id = pr.permission_id`
	args := []any{}
	if status != "" {
		query += ` WHERE pr.status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY pr.created_at DESC LIMIT ` + strconv.Itoa(limit)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var requests []PermissionRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// CountPendingRequests reports how many requests await a decision.
func (r *PGRepository) CountPendingRequests(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM permission_requests WHERE status = 'pending'`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPermission(row rowScanner) (Permission, error) {
	var perm Permission
	err := row.Scan(&perm.ID, &perm.Code, &perm.Name, &perm.Module, &perm.IsActive, &perm.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, ErrNotFound
	}
	if err != nil {
		return Permission{}, err
	}
	return perm, nil
}

func scanRequest(row rowScanner) (PermissionRequest, error) {
	var req PermissionRequest
	var status string
	err := row.Scan(&req.ID, &req.RequestedBy, &req.TargetUserID, &req.PermissionID, &req.Code,
		&req.Allow, &req.Reason, &status, &req.DecidedBy, &req.DecidedAt, &req.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PermissionRequest{}, ErrNotFound
	}
	if err != nil {
		return PermissionRequest{}, err
	}
	req.Status = RequestStatus(status)
	return req, nil
}

func scanDecision(allow bool, err error) (Decision, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return DecisionAbsent, nil
	}
	if err != nil {
		return DecisionAbsent, err
	}
	if allow {
		return DecisionAllow, nil
	}
	return DecisionDeny, nil
}

