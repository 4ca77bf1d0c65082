package regions

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = `id, name, code, is_active, created_at, updated_at`

// List returns regions ordered by name, optionally only active ones.
func (r *Repository) List(ctx context.Context, activeOnly bool) ([]Region, error) {
	query := `SELECT ` + columns + ` FROM regions`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var regions []Region
	for rows.Next() {
		var region Region
		if err := rows.Scan(&region.ID, &region.Name, &region.Code, &region.IsActive,
			&region.CreatedAt, &region.UpdatedAt); err != nil {
			return nil, err
		}
		regions = append(regions, region)
	}
	return regions, rows.Err()
}

// Get fetches a region by ID.
func (r *Repository) Get(ctx context.Context, id int64) (*Region, error) {
	var region Region
	err := r.pool.QueryRow(ctx, `SELECT `+columns+` FROM regions WHERE id = $1`, id).
		Scan(&region.ID, &region.Name, &region.Code, &region.IsActive,
			&region.CreatedAt, &region.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &region, nil
}

// Create inserts a region. Codes are stored uppercase.
func (r *Repository) Create(ctx context.Context, name, code string) (*Region, error) {
	var region Region
	err := r.pool.QueryRow(ctx, `
		INSERT INTO regions (name, code, is_active, created_at, updated_at)
		VALUES ($1, $2, TRUE, NOW(), NOW())
		RETURNING `+columns,
		strings.TrimSpace(name), strings.ToUpper(strings.TrimSpace(code))).
		Scan(&region.ID, &region.Name, &region.Code, &region.IsActive,
			&region.CreatedAt, &region.UpdatedAt)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, err
	}
	return &region, nil
}

// Update renames a region or changes its code.
func (r *Repository) Update(ctx context.Context, id int64, name, code string) (*Region, error) {
	var region Region
	err := r.pool.QueryRow(ctx, `
		UPDATE regions SET name = $2, code = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+columns,
		id, strings.TrimSpace(name), strings.ToUpper(strings.TrimSpace(code))).
		Scan(&region.ID, &region.Name, &region.Code, &region.IsActive,
			&region.CreatedAt, &region.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, err
	}
	return &region, nil
}

// SetActive flips the active flag. Deactivated regions stay referenced by
// their users and branches but disappear from registration choices.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE regions SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
