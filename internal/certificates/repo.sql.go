package certificates

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

func (r *PGRepository) CreateTemplate(ctx context.Context, tpl CertificateTemplate) (CertificateTemplate, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO certificate_templates (name, region_id, is_active, created_at)
		VALUES ($1, $2, TRUE, NOW())
		RETURNING id, is_active, created_at`,
		tpl.Name, tpl.RegionID).Scan(&tpl.ID, &tpl.IsActive, &tpl.CreatedAt)
	return tpl, err
}

func (r *PGRepository) ListTemplates(ctx context.Context, activeOnly bool) ([]CertificateTemplate, error) {
	query := `SELECT id, name, region_id, is_active, created_at FROM certificate_templates`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var templates []CertificateTemplate
	for rows.Next() {
		var tpl CertificateTemplate
		if err := rows.Scan(&tpl.ID, &tpl.Name, &tpl.RegionID, &tpl.IsActive, &tpl.CreatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

const certColumns = `
	c.id, c.enrollment_id, c.template_id, c.serial_number, c.issued_by,
	c.issued_at, c.created_at, COALESCE(i.full_name, ''), COALESCE(co.title, '')`

const certJoins = `
	FROM certificates c
	JOIN enrollments e ON e.id = c.enrollment_id
	JOIN individuals i ON i.id = e.individual_id
	JOIN courses co ON co.id = e.course_id`

func (r *PGRepository) GetByEnrollment(ctx context.Context, enrollmentID int64) (*Certificate, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+certColumns+certJoins+` WHERE c.enrollment_id = $1`, enrollmentID)
	cert, err := scanCertificate(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *PGRepository) GetCertificate(ctx context.Context, id int64) (Certificate, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+certColumns+certJoins+` WHERE c.id = $1`, id)
	return scanCertificate(row)
}

func (r *PGRepository) InsertCertificate(ctx context.Context, cert Certificate, token string) (Certificate, Verification, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Certificate{}, Verification{}, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO certificates (enrollment_id, template_id, serial_number, issued_by, issued_at, created_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, issued_at, created_at`,
		cert.EnrollmentID, cert.TemplateID, cert.SerialNumber, cert.IssuedBy).
		Scan(&cert.ID, &cert.IssuedAt, &cert.CreatedAt)
	if isUniqueViolation(err) {
		return Certificate{}, Verification{}, ErrDuplicate
	}
	if err != nil {
		return Certificate{}, Verification{}, err
	}

	var verification Verification
	err = tx.QueryRow(ctx, `
		INSERT INTO certificate_verifications (certificate_id, token, public_lookup_enabled, created_at)
		VALUES ($1, $2, TRUE, NOW())
		RETURNING id, certificate_id, token, public_lookup_enabled, created_at`,
		cert.ID, token).
		Scan(&verification.ID, &verification.CertificateID, &verification.Token,
			&verification.PublicLookupEnabled, &verification.CreatedAt)
	if err != nil {
		return Certificate{}, Verification{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Certificate{}, Verification{}, err
	}
	return cert, verification, nil
}

func (r *PGRepository) ListByIndividual(ctx context.Context, individualID int64) ([]Certificate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+certColumns+certJoins+`
		WHERE e.individual_id = $1
		ORDER BY c.issued_at DESC`, individualID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCertificates(rows)
}

func (r *PGRepository) ListCertificates(ctx context.Context, limit, offset int) ([]Certificate, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM certificates`).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+certColumns+certJoins+`
		ORDER BY c.issued_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	certs, err := collectCertificates(rows)
	return certs, total, err
}

func (r *PGRepository) GetVerification(ctx context.Context, certificateID int64) (Verification, error) {
	var v Verification
	err := r.pool.QueryRow(ctx, `
		SELECT id, certificate_id, token, public_lookup_enabled, created_at
		FROM certificate_verifications WHERE certificate_id = $1`, certificateID).
		Scan(&v.ID, &v.CertificateID, &v.Token, &v.PublicLookupEnabled, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Verification{}, ErrNotFound
	}
	return v, err
}

func (r *PGRepository) SetPublicLookup(ctx context.Context, certificateID int64, enabled bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE certificate_verifications SET public_lookup_enabled = $2
		WHERE certificate_id = $1`, certificateID, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) FindByToken(ctx context.Context, token string) (VerifiedCertificate, bool, error) {
	var (
		out     VerifiedCertificate
		enabled bool
	)
	err := r.pool.QueryRow(ctx, `
		SELECT c.serial_number, COALESCE(i.full_name, ''), COALESCE(co.title, ''),
		       c.issued_at, v.public_lookup_enabled
		FROM certificate_verifications v
		JOIN certificates c ON c.id = v.certificate_id
		JOIN enrollments e ON e.id = c.enrollment_id
		JOIN individuals i ON i.id = e.individual_id
		JOIN courses co ON co.id = e.course_id
		WHERE v.token = $1`, token).
		Scan(&out.SerialNumber, &out.HolderName, &out.CourseTitle, &out.IssuedAt, &enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return VerifiedCertificate{}, false, ErrNotFound
	}
	if err != nil {
		return VerifiedCertificate{}, false, err
	}
	return out, enabled, nil
}

func (r *PGRepository) CountCertificates(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM certificates`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCertificate(row rowScanner) (Certificate, error) {
	var c Certificate
	err := row.Scan(&c.ID, &c.EnrollmentID, &c.TemplateID, &c.SerialNumber,
		&c.IssuedBy, &c.IssuedAt, &c.CreatedAt, &c.HolderName, &c.CourseTitle)
	if errors.Is(err, pgx.ErrNoRows) {
		return Certificate{}, ErrNotFound
	}
	return c, err
}

func collectCertificates(rows pgx.Rows) ([]Certificate, error) {
	var certs []Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
