package organizations

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
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

// EnsureMaster finds or creates the parent organization by name.
func (r *PGRepository) EnsureMaster(ctx context.Context, name, nationalID string) (OrganizationMaster, error) {
	name = strings.TrimSpace(name)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO organization_masters (name, national_id, is_active, created_at)
		VALUES ($1, $2, TRUE, NOW())
		ON CONFLICT (name) DO NOTHING`, name, nationalID)
	if err != nil {
		return OrganizationMaster{}, err
	}
	var m OrganizationMaster
	err = r.pool.QueryRow(ctx, `
		SELECT id, name, national_id, is_active, created_at
		FROM organization_masters WHERE name = $1`, name).
		Scan(&m.ID, &m.Name, &m.NationalID, &m.IsActive, &m.CreatedAt)
	return m, err
}

func (r *PGRepository) GetMaster(ctx context.Context, id int64) (OrganizationMaster, error) {
	var m OrganizationMaster
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, national_id, is_active, created_at
		FROM organization_masters WHERE id = $1`, id).
		Scan(&m.ID, &m.Name, &m.NationalID, &m.IsActive, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrganizationMaster{}, ErrNotFound
	}
	return m, err
}

func (r *PGRepository) ListMasters(ctx context.Context) ([]OrganizationMaster, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, national_id, is_active, created_at
		FROM organization_masters ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var masters []OrganizationMaster
	for rows.Next() {
		var m OrganizationMaster
		if err := rows.Scan(&m.ID, &m.Name, &m.NationalID, &m.IsActive, &m.CreatedAt); err != nil {
			return nil, err
		}
		masters = append(masters, m)
	}
	return masters, rows.Err()
}

const branchColumns = `
	b.id, b.master_id, m.name, b.region_id, b.branch_name, b.address, b.phone,
	b.status, b.approved_by, b.approved_at, b.notes, b.created_at`

func (r *PGRepository) CreateBranch(ctx context.Context, branch OrganizationBranch) (OrganizationBranch, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO organization_branches (master_id, region_id, branch_name, address, phone, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id`,
		branch.MasterID, branch.RegionID, branch.BranchName, branch.Address,
		branch.Phone, string(StatusPending), branch.Notes).Scan(&id)
	if isUniqueViolation(err) {
		return OrganizationBranch{}, ErrDuplicate
	}
	if err != nil {
		return OrganizationBranch{}, err
	}
	return r.GetBranch(ctx, id)
}

func (r *PGRepository) GetBranch(ctx context.Context, id int64) (OrganizationBranch, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+branchColumns+`
		FROM organization_branches b
		JOIN organization_masters m ON m.id = b.master_id
		WHERE b.id = $1`, id)
	return scanBranch(row)
}

func (r *PGRepository) ListBranches(ctx context.Context, filter BranchFilter) ([]OrganizationBranch, error) {
	query := `
		SELECT ` + branchColumns + `
		FROM organization_branches b
		JOIN organization_masters m ON m.id = b.master_id
		WHERE TRUE`
	args := []any{}
	if filter.RegionID != 0 {
		args = append(args, filter.RegionID)
		query += ` AND b.region_id = $1`
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		if len(args) == 1 {
			query += ` AND b.status = $1`
		} else {
			query += ` AND b.status = $2`
		}
	}
	query += ` ORDER BY b.created_at DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var branches []OrganizationBranch
	for rows.Next() {
		branch, err := scanBranch(rows)
		if err != nil {
			return nil, err
		}
		branches = append(branches, branch)
	}
	return branches, rows.Err()
}

// DecideBranch moves a pending branch to approved or rejected. It reports
// false when the branch had already been decided.
func (r *PGRepository) DecideBranch(ctx context.Context, id int64, status BranchStatus, decidedBy int64, notes string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE organization_branches
		SET status = $2, approved_by = $3, approved_at = NOW(), notes = $4
		WHERE id = $1 AND status = 'pending'`,
		id, string(status), decidedBy, notes)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PGRepository) SetBranchStatus(ctx context.Context, id int64, status BranchStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE organization_branches SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) AddRepresentative(ctx context.Context, userID, branchID int64, primary bool) (Representative, error) {
	var rep Representative
	err := r.pool.QueryRow(ctx, `
		INSERT INTO organization_representatives (user_id, org_branch_id, is_primary, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, user_id, org_branch_id, is_primary, created_at`,
		userID, branchID, primary).
		Scan(&rep.ID, &rep.UserID, &rep.BranchID, &rep.IsPrimary, &rep.CreatedAt)
	if isUniqueViolation(err) {
		return Representative{}, ErrDuplicate
	}
	return rep, err
}

func (r *PGRepository) ListRepresentatives(ctx context.Context, branchID int64) ([]Representative, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, org_branch_id, is_primary, created_at
		FROM organization_representatives
		WHERE org_branch_id = $1
		ORDER BY is_primary DESC, created_at`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reps []Representative
	for rows.Next() {
		var rep Representative
		if err := rows.Scan(&rep.ID, &rep.UserID, &rep.BranchID, &rep.IsPrimary, &rep.CreatedAt); err != nil {
			return nil, err
		}
		reps = append(reps, rep)
	}
	return reps, rows.Err()
}

func (r *PGRepository) CountBranchesByStatus(ctx context.Context) (map[BranchStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM organization_branches GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[BranchStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[BranchStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanBranch(row pgx.Row) (OrganizationBranch, error) {
	var b OrganizationBranch
	var status string
	err := row.Scan(&b.ID, &b.MasterID, &b.MasterName, &b.RegionID, &b.BranchName,
		&b.Address, &b.Phone, &status, &b.ApprovedBy, &b.ApprovedAt, &b.Notes, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrganizationBranch{}, ErrNotFound
	}
	if err != nil {
		return OrganizationBranch{}, err
	}
	b.Status = BranchStatus(status)
	return b, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
