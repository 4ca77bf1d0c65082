package courses

import (
	"context"
	"errors"
	"strconv"

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

const courseColumns = `
	id, region_id, created_by, title, description, delivery_mode, start_at,
	end_at, capacity, allow_individuals, allow_organizations, is_published,
	is_active, created_at`

func (r *PGRepository) CreateCourse(ctx context.Context, course Course) (Course, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO courses (region_id, created_by, title, description, delivery_mode,
			start_at, end_at, capacity, allow_individuals, allow_organizations,
			is_published, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, TRUE, NOW())
		RETURNING id`,
		course.RegionID, course.CreatedBy, course.Title, course.Description,
		string(course.DeliveryMode), course.StartAt, course.EndAt, course.Capacity,
		course.AllowIndividuals, course.AllowOrganizations).Scan(&id)
	if err != nil {
		return Course{}, err
	}
	return r.GetCourse(ctx, id)
}

func (r *PGRepository) GetCourse(ctx context.Context, id int64) (Course, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id)
	return scanCourse(row)
}

func (r *PGRepository) UpdateCourse(ctx context.Context, course Course) (Course, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE courses
		SET title = $2, description = $3, delivery_mode = $4, start_at = $5,
		    end_at = $6, capacity = $7, allow_individuals = $8,
		    allow_organizations = $9, is_active = $10
		WHERE id = $1`,
		course.ID, course.Title, course.Description, string(course.DeliveryMode),
		course.StartAt, course.EndAt, course.Capacity, course.AllowIndividuals,
		course.AllowOrganizations, course.IsActive)
	if err != nil {
		return Course{}, err
	}
	if tag.RowsAffected() == 0 {
		return Course{}, ErrNotFound
	}
	return r.GetCourse(ctx, course.ID)
}

func (r *PGRepository) ListCourses(ctx context.Context, filter CatalogFilter) ([]Course, int64, error) {
	where := ` WHERE is_active`
	args := []any{}
	if filter.PublishedOnly {
		where += ` AND is_published`
	}
	if filter.Upcoming {
		where += ` AND end_at > NOW()`
	}
	if filter.RegionID != 0 {
		args = append(args, filter.RegionID)
		where += ` AND region_id = $` + strconv.Itoa(len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM courses`+where, args...).Scan(&total); err != nil {
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
	query := `SELECT ` + courseColumns + ` FROM courses` + where +
		` ORDER BY start_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Course
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, course)
	}
	return out, total, rows.Err()
}

func (r *PGRepository) SetPublished(ctx context.Context, id int64, published bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE courses SET is_published = $2 WHERE id = $1`, id, published)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) AddSession(ctx context.Context, session CourseSession) (CourseSession, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO course_sessions (course_id, title, start_at, end_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		session.CourseID, session.Title, session.StartAt, session.EndAt).Scan(&session.ID)
	return session, err
}

func (r *PGRepository) ListSessions(ctx context.Context, courseID int64) ([]CourseSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, course_id, title, start_at, end_at
		FROM course_sessions WHERE course_id = $1 ORDER BY start_at`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []CourseSession
	for rows.Next() {
		var s CourseSession
		if err := rows.Scan(&s.ID, &s.CourseID, &s.Title, &s.StartAt, &s.EndAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

const enrollmentColumns = `
	e.id, e.course_id, c.title, e.individual_id, e.source, e.status, e.created_at`

const enrollmentJoins = `
	FROM enrollments e
	JOIN courses c ON c.id = e.course_id`

func (r *PGRepository) GetEnrollment(ctx context.Context, id int64) (Enrollment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+enrollmentColumns+enrollmentJoins+` WHERE e.id = $1`, id)
	return scanEnrollment(row)
}

func (r *PGRepository) FindEnrollment(ctx context.Context, courseID, individualID int64) (*Enrollment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+enrollmentColumns+enrollmentJoins+`
		WHERE e.course_id = $1 AND e.individual_id = $2`, courseID, individualID)
	e, err := scanEnrollment(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *PGRepository) ListEnrollments(ctx context.Context, filter EnrollmentFilter) ([]Enrollment, error) {
	where := ` WHERE TRUE`
	args := []any{}
	if filter.CourseID != 0 {
		args = append(args, filter.CourseID)
		where += ` AND e.course_id = $` + strconv.Itoa(len(args))
	}
	if filter.IndividualID != 0 {
		args = append(args, filter.IndividualID)
		where += ` AND e.individual_id = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += ` AND e.status = $` + strconv.Itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, `SELECT `+enrollmentColumns+enrollmentJoins+where+` ORDER BY e.created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PGRepository) GetOrgRequest(ctx context.Context, id int64) (OrgCourseRequest, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, org_branch_id, course_id, requested_by, status, created_at
		FROM org_course_requests WHERE id = $1`, id)
	req, err := scanOrgRequest(row)
	if err != nil {
		return OrgCourseRequest{}, err
	}
	items, err := r.listItems(ctx, id)
	if err != nil {
		return OrgCourseRequest{}, err
	}
	req.Items = items
	return req, nil
}

func (r *PGRepository) ListOrgRequests(ctx context.Context, branchID int64, status OrgRequestStatus) ([]OrgCourseRequest, error) {
	where := ` WHERE TRUE`
	args := []any{}
	if branchID != 0 {
		args = append(args, branchID)
		where += ` AND org_branch_id = $` + strconv.Itoa(len(args))
	}
	if status != "" {
		args = append(args, string(status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, org_branch_id, course_id, requested_by, status, created_at
		FROM org_course_requests`+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrgCourseRequest
	for rows.Next() {
		req, err := scanOrgRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *PGRepository) listItems(ctx context.Context, requestID int64) ([]OrgRequestItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, request_id, individual_id, enrollment_id
		FROM org_course_request_items WHERE request_id = $1 ORDER BY id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrgRequestItem
	for rows.Next() {
		var item OrgRequestItem
		if err := rows.Scan(&item.ID, &item.RequestID, &item.IndividualID, &item.EnrollmentID); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *PGRepository) CountCourses(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM courses WHERE is_active`).Scan(&n)
	return n, err
}

func (r *PGRepository) CountEnrollmentsByStatus(ctx context.Context) (map[EnrollmentStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM enrollments GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[EnrollmentStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[EnrollmentStatus(status)] = n
	}
	return counts, rows.Err()
}

func (r *PGRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txRepo struct {
	tx pgx.Tx
}

var _ TxRepository = (*txRepo)(nil)

func (t *txRepo) GetCourseForUpdate(ctx context.Context, id int64) (Course, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1 FOR UPDATE`, id)
	return scanCourse(row)
}

// CountSeated counts enrollments that hold a seat.
func (t *txRepo) CountSeated(ctx context.Context, courseID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM enrollments
		WHERE course_id = $1 AND status IN ('pending', 'accepted')`, courseID).Scan(&n)
	return n, err
}

func (t *txRepo) CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO enrollments (course_id, individual_id, source, status, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`,
		e.CourseID, e.IndividualID, string(e.Source), string(e.Status)).
		Scan(&e.ID, &e.CreatedAt)
	if isUniqueViolation(err) {
		return Enrollment{}, ErrAlreadyEnrolled
	}
	return e, err
}

func (t *txRepo) SetEnrollmentStatus(ctx context.Context, id int64, status EnrollmentStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE enrollments SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NextWaitlisted picks the longest-waiting waitlist enrollment, locking it so
// two cancellations cannot promote the same row.
func (t *txRepo) NextWaitlisted(ctx context.Context, courseID int64) (*Enrollment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+enrollmentColumns+enrollmentJoins+`
		WHERE e.course_id = $1 AND e.status = 'waitlist'
		ORDER BY e.created_at
		LIMIT 1
		FOR UPDATE OF e SKIP LOCKED`, courseID)
	e, err := scanEnrollment(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (t *txRepo) CreateOrgRequest(ctx context.Context, req OrgCourseRequest) (OrgCourseRequest, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO org_course_requests (org_branch_id, course_id, requested_by, status, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`,
		req.OrgBranchID, req.CourseID, req.RequestedBy, string(req.Status)).
		Scan(&req.ID, &req.CreatedAt)
	return req, err
}

func (t *txRepo) CreateOrgRequestItem(ctx context.Context, item OrgRequestItem) (OrgRequestItem, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO org_course_request_items (request_id, individual_id)
		VALUES ($1, $2)
		RETURNING id`,
		item.RequestID, item.IndividualID).Scan(&item.ID)
	if isUniqueViolation(err) {
		return OrgRequestItem{}, ErrAlreadyEnrolled
	}
	return item, err
}

func (t *txRepo) LinkItemEnrollment(ctx context.Context, itemID, enrollmentID int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE org_course_request_items SET enrollment_id = $2 WHERE id = $1`,
		itemID, enrollmentID)
	return err
}

func (t *txRepo) MarkOrgRequestProcessed(ctx context.Context, id int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE org_course_requests SET status = 'processed'
		WHERE id = $1 AND status = 'new'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourse(row rowScanner) (Course, error) {
	var c Course
	var mode string
	err := row.Scan(&c.ID, &c.RegionID, &c.CreatedBy, &c.Title, &c.Description,
		&mode, &c.StartAt, &c.EndAt, &c.Capacity, &c.AllowIndividuals,
		&c.AllowOrganizations, &c.IsPublished, &c.IsActive, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Course{}, ErrNotFound
	}
	if err != nil {
		return Course{}, err
	}
	c.DeliveryMode = DeliveryMode(mode)
	return c, nil
}

func scanEnrollment(row rowScanner) (Enrollment, error) {
	var e Enrollment
	var source, status string
	err := row.Scan(&e.ID, &e.CourseID, &e.CourseTitle, &e.IndividualID, &source, &status, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Enrollment{}, ErrNotFound
	}
	if err != nil {
		return Enrollment{}, err
	}
	e.Source = EnrollmentSource(source)
	e.Status = EnrollmentStatus(status)
	return e, nil
}

func scanOrgRequest(row rowScanner) (OrgCourseRequest, error) {
	var req OrgCourseRequest
	var status string
	err := row.Scan(&req.ID, &req.OrgBranchID, &req.CourseID, &req.RequestedBy, &status, &req.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrgCourseRequest{}, ErrNotFound
	}
	if err != nil {
		return OrgCourseRequest{}, err
	}
	req.Status = OrgRequestStatus(status)
	return req, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
