package attendance

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

func (r *PGRepository) GetByEnrollment(ctx context.Context, enrollmentID int64) (*Confirmation, error) {
	var c Confirmation
	var method string
	err := r.pool.QueryRow(ctx, `
		SELECT id, enrollment_id, method, confirmed_at, note, confirmation_code, created_at
		FROM attendance_confirmations WHERE enrollment_id = $1`, enrollmentID).
		Scan(&c.ID, &c.EnrollmentID, &method, &c.ConfirmedAt, &c.Note, &c.ConfirmationCode, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Method = Method(method)
	return &c, nil
}

func (r *PGRepository) Insert(ctx context.Context, c Confirmation) (Confirmation, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO attendance_confirmations (enrollment_id, method, confirmed_at, note, confirmation_code, created_at)
		VALUES ($1, $2, NOW(), $3, $4, NOW())
		RETURNING id, confirmed_at, created_at`,
		c.EnrollmentID, string(c.Method), c.Note, c.ConfirmationCode).
		Scan(&c.ID, &c.ConfirmedAt, &c.CreatedAt)
	if isUniqueViolation(err) {
		return Confirmation{}, ErrDuplicate
	}
	return c, err
}

func (r *PGRepository) CountConfirmations(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM attendance_confirmations`).Scan(&n)
	return n, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
