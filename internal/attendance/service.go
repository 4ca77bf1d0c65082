package attendance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/taleem-platform/taleem/internal/certificates"
	"github.com/taleem-platform/taleem/internal/courses"
)

// Courses is the slice of the course module confirmation needs.
type Courses interface {
	FindEnrollment(ctx context.Context, courseID, individualID int64) (*courses.Enrollment, error)
	GetCourse(ctx context.Context, id int64) (courses.Course, error)
	CompleteEnrollment(ctx context.Context, enrollmentID int64) error
}

// Issuer hands out the certificate once attendance is confirmed.
type Issuer interface {
	Issue(ctx context.Context, enrollmentID, individualID int64, issuedBy, templateID *int64) (certificates.Certificate, error)
}

// ConfirmResult bundles what a confirmation produced.
type ConfirmResult struct {
	Confirmation Confirmation             `json:"confirmation"`
	Certificate  certificates.Certificate `json:"certificate"`
	AlreadyDone  bool                     `json:"already_done"`
}

// Service applies the confirmation rules: only after the course ends, only
// for accepted enrollments, once per enrollment.
type Service struct {
	repo    Repository
	courses Courses
	issuer  Issuer
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(repo Repository, coursesSvc Courses, issuer Issuer, logger *slog.Logger) *Service {
	return &Service{repo: repo, courses: coursesSvc, issuer: issuer, logger: logger, now: time.Now}
}

// Confirm records the individual's attendance on a course, marks the
// enrollment completed and issues the certificate. Confirming twice returns
// the original confirmation and certificate.
func (s *Service) Confirm(ctx context.Context, courseID, individualID int64, method Method, note string) (ConfirmResult, error) {
	if !method.Valid() {
		method = MethodSelfConfirm
	}
	enrollment, err := s.courses.FindEnrollment(ctx, courseID, individualID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if enrollment == nil {
		return ConfirmResult{}, ErrNotFound
	}

	if existing, err := s.repo.GetByEnrollment(ctx, enrollment.ID); err != nil {
		return ConfirmResult{}, err
	} else if existing != nil {
		return s.alreadyConfirmed(ctx, *existing, enrollment.IndividualID)
	}

	if enrollment.Status != courses.EnrollAccepted {
		return ConfirmResult{}, ErrNotAccepted
	}
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if !course.Finished(s.now()) {
		return ConfirmResult{}, ErrCourseNotEnded
	}

	confirmation, err := s.repo.Insert(ctx, Confirmation{
		EnrollmentID: enrollment.ID,
		Method:       method,
		Note:         note,
	})
	if errors.Is(err, ErrDuplicate) {
		existing, err := s.repo.GetByEnrollment(ctx, enrollment.ID)
		if err != nil || existing == nil {
			return ConfirmResult{}, ErrDuplicate
		}
		return s.alreadyConfirmed(ctx, *existing, enrollment.IndividualID)
	}
	if err != nil {
		return ConfirmResult{}, err
	}

	if err := s.courses.CompleteEnrollment(ctx, enrollment.ID); err != nil {
		return ConfirmResult{}, err
	}
	cert, err := s.issuer.Issue(ctx, enrollment.ID, enrollment.IndividualID, nil, nil)
	if err != nil {
		// The confirmation stands; issuance can be retried by confirming
		// again because Issue is idempotent.
		s.logger.Error("certificate issuance after confirmation failed",
			"enrollment_id", enrollment.ID, "error", err)
		return ConfirmResult{Confirmation: confirmation}, nil
	}
	return ConfirmResult{Confirmation: confirmation, Certificate: cert}, nil
}

func (s *Service) alreadyConfirmed(ctx context.Context, confirmation Confirmation, individualID int64) (ConfirmResult, error) {
	cert, err := s.issuer.Issue(ctx, confirmation.EnrollmentID, individualID, nil, nil)
	if err != nil {
		return ConfirmResult{Confirmation: confirmation, AlreadyDone: true}, nil
	}
	return ConfirmResult{Confirmation: confirmation, Certificate: cert, AlreadyDone: true}, nil
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.CountConfirmations(ctx)
}
