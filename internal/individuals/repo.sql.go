package individuals

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Filter narrows directory listings.
type Filter struct {
	Query       string
	RegionID    int64
	OrgBranchID int64
	Limit       int
	Offset      int
}

// Repository provides PostgreSQL access to the individuals directory.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const individualColumns = `
	id, region_id, org_branch_id, full_name, national_id, email, phone,
	employee_id, is_active, created_at`

func (r *Repository) Create(ctx context.Context, ind Individual) (Individual, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO individuals (region_id, org_branch_id, full_name, national_id, email, phone, employee_id, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, NOW())
		RETURNING id`,
		ind.RegionID, ind.OrgBranchID, ind.FullName, ind.NationalID,
		strings.ToLower(ind.Email), ind.Phone, ind.EmployeeID).Scan(&id)
	if isUniqueViolation(err) {
		return Individual{}, ErrDuplicate
	}
	if err != nil {
		return Individual{}, err
	}
	return r.Get(ctx, id)
}

func (r *Repository) Get(ctx context.Context, id int64) (Individual, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+individualColumns+` FROM individuals WHERE id = $1`, id)
	return scanIndividual(row)
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (Individual, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+individualColumns+` FROM individuals WHERE email = $1`,
		strings.ToLower(email))
	return scanIndividual(row)
}

func (r *Repository) List(ctx context.Context, filter Filter) ([]Individual, int64, error) {
	where := ` WHERE TRUE`
	args := []any{}
	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (full_name ILIKE $` + n + ` OR email ILIKE $` + n + ` OR national_id ILIKE $` + n + `)`
	}
	if filter.RegionID != 0 {
		args = append(args, filter.RegionID)
		where += ` AND region_id = $` + strconv.Itoa(len(args))
	}
	if filter.OrgBranchID != 0 {
		args = append(args, filter.OrgBranchID)
		where += ` AND org_branch_id = $` + strconv.Itoa(len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM individuals`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	args = append(args, limit, filter.Offset)
	query := `SELECT ` + individualColumns + ` FROM individuals` + where +
		` ORDER BY full_name LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Individual
	for rows.Next() {
		ind, err := scanIndividual(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ind)
	}
	return out, total, rows.Err()
}

func (r *Repository) Update(ctx context.Context, ind Individual) (Individual, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE individuals
		SET region_id = $2, org_branch_id = $3, full_name = $4, national_id = $5,
		    phone = $6, employee_id = $7, is_active = $8
		WHERE id = $1`,
		ind.ID, ind.RegionID, ind.OrgBranchID, ind.FullName, ind.NationalID,
		ind.Phone, ind.EmployeeID, ind.IsActive)
	if err != nil {
		return Individual{}, err
	}
	if tag.RowsAffected() == 0 {
		return Individual{}, ErrNotFound
	}
	return r.Get(ctx, ind.ID)
}

func scanIndividual(row pgx.Row) (Individual, error) {
	var ind Individual
	err := row.Scan(&ind.ID, &ind.RegionID, &ind.OrgBranchID, &ind.FullName,
		&ind.NationalID, &ind.Email, &ind.Phone, &ind.EmployeeID, &ind.IsActive, &ind.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Individual{}, ErrNotFound
	}
	return ind, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
