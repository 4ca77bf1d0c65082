package accounts

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taleem-platform/taleem/internal/iam"
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

const userColumns = `
	id, email, password_hash, role, phone, region_id, org_branch_id,
	individual_id, is_active, created_at, updated_at`

func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

func (r *PGRepository) GetUser(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// ListUsers pages through accounts with an optional free-text and role filter.
func (r *PGRepository) ListUsers(ctx context.Context, filter UserFilter) ([]User, int64, error) {
	where := []string{"TRUE"}
	args := []any{}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		where = append(where, `(email ILIKE $1 OR phone ILIKE $1)`)
	}
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		where = append(where, `role = $`+itoa(len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + cond +
		` ORDER BY created_at DESC LIMIT $` + itoa(len(args)-1) + ` OFFSET $` + itoa(len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *user)
	}
	return users, total, rows.Err()
}

func (r *PGRepository) CountUsersByRole(ctx context.Context) (map[iam.Role]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[iam.Role]int64)
	for rows.Next() {
		var role string
		var n int64
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		counts[iam.Role(role)] = n
	}
	return counts, rows.Err()
}

func (r *PGRepository) UpdateUser(ctx context.Context, user *User) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET role = $2, phone = $3, region_id = $4, org_branch_id = $5,
		    individual_id = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1`,
		user.ID, string(user.Role), user.Phone, user.RegionID, user.OrgBranchID,
		user.IndividualID, user.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) ActivateUser(ctx context.Context, email string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET is_active = TRUE, updated_at = NOW() WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) GetIndividualProfile(ctx context.Context, userID int64) (*IndividualProfile, error) {
	var p IndividualProfile
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, full_name, national_id, is_affiliated, org_branch_id
		FROM individual_profiles WHERE user_id = $1`, userID).
		Scan(&p.ID, &p.UserID, &p.FullName, &p.NationalID, &p.IsAffiliated, &p.OrgBranchID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PGRepository) GetOrganizationProfile(ctx context.Context, userID int64) (*OrganizationProfile, error) {
	var p OrganizationProfile
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, organization_name, representative_name, latitude, longitude, landmark
		FROM organization_profiles WHERE user_id = $1`, userID).
		Scan(&p.ID, &p.UserID, &p.OrganizationName, &p.RepresentativeName, &p.Latitude, &p.Longitude, &p.Landmark)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PGRepository) CreateOTP(ctx context.Context, otp EmailOTP) (EmailOTP, error) {
	return insertOTP(ctx, r.pool, otp)
}

func (r *PGRepository) LatestOTP(ctx context.Context, email string, purpose OTPPurpose) (*EmailOTP, error) {
	var otp EmailOTP
	var purposeStr string
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, purpose, code, expires_at, is_used, attempts, created_at
		FROM email_otps
		WHERE email = $1 AND purpose = $2 AND NOT is_used
		ORDER BY created_at DESC
		LIMIT 1`,
		strings.ToLower(strings.TrimSpace(email)), string(purpose)).
		Scan(&otp.ID, &otp.Email, &purposeStr, &otp.Code, &otp.ExpiresAt, &otp.IsUsed, &otp.Attempts, &otp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	otp.Purpose = OTPPurpose(purposeStr)
	return &otp, nil
}

func (r *PGRepository) IncrementOTPAttempts(ctx context.Context, id int64) (int, error) {
	var attempts int
	err := r.pool.QueryRow(ctx, `
		UPDATE email_otps SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`, id).
		Scan(&attempts)
	return attempts, err
}

func (r *PGRepository) MarkOTPUsed(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE email_otps SET is_used = TRUE WHERE id = $1`, id)
	return err
}

// WithTx runs fn inside a read-committed transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txRepo struct {
	tx pgx.Tx
}

var _ TxRepository = (*txRepo)(nil)

func (t *txRepo) CreateUser(ctx context.Context, user User) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, role, phone, region_id, org_branch_id, individual_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id`,
		strings.ToLower(strings.TrimSpace(user.Email)), user.PasswordHash, string(user.Role),
		user.Phone, user.RegionID, user.OrgBranchID, user.IndividualID, user.IsActive).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrEmailTaken
	}
	return id, err
}

func (t *txRepo) CreateIndividualProfile(ctx context.Context, profile IndividualProfile) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO individual_profiles (user_id, full_name, national_id, is_affiliated, org_branch_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		profile.UserID, profile.FullName, profile.NationalID, profile.IsAffiliated, profile.OrgBranchID).Scan(&id)
	return id, err
}

func (t *txRepo) CreateOrganizationProfile(ctx context.Context, profile OrganizationProfile) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO organization_profiles (user_id, organization_name, representative_name, latitude, longitude, landmark)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		profile.UserID, profile.OrganizationName, profile.RepresentativeName,
		profile.Latitude, profile.Longitude, profile.Landmark).Scan(&id)
	return id, err
}

func (t *txRepo) CreateOTP(ctx context.Context, otp EmailOTP) (EmailOTP, error) {
	return insertOTP(ctx, t.tx, otp)
}

type execQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertOTP(ctx context.Context, q execQuerier, otp EmailOTP) (EmailOTP, error) {
	err := q.QueryRow(ctx, `
		INSERT INTO email_otps (email, purpose, code, expires_at, is_used, attempts, created_at)
		VALUES ($1, $2, $3, $4, FALSE, 0, NOW())
		RETURNING id, created_at`,
		strings.ToLower(strings.TrimSpace(otp.Email)), string(otp.Purpose), otp.Code, otp.ExpiresAt).
		Scan(&otp.ID, &otp.CreatedAt)
	return otp, err
}

func scanUser(row pgx.Row) (*User, error) {
	var user User
	var role string
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &role, &user.Phone,
		&user.RegionID, &user.OrgBranchID, &user.IndividualID, &user.IsActive,
		&user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.Role = iam.Role(role)
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func itoa(n int) string { return strconv.Itoa(n) }
