package courses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taleem-platform/taleem/internal/individuals"
)

// Directory resolves individuals for notification and eligibility checks.
type Directory interface {
	Get(ctx context.Context, id int64) (individuals.Individual, error)
}

// Notifier delivers enrollment status mail. Implementations queue rather
// than send inline.
type Notifier interface {
	SendEnrollmentStatus(ctx context.Context, email, fullName, courseTitle string, status EnrollmentStatus) error
}

// CourseInput carries the fields a coordinator sets on a course.
type CourseInput struct {
	RegionID           int64
	Title              string
	Description        string
	DeliveryMode       DeliveryMode
	StartAt            time.Time
	EndAt              time.Time
	Capacity           int
	AllowIndividuals   bool
	AllowOrganizations bool
}

// Service owns the catalog and enrollment rules.
type Service struct {
	repo      Repository
	directory Directory
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo Repository, directory Directory, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{repo: repo, directory: directory, notifier: notifier, logger: logger, now: time.Now}
}

func (s *Service) CreateCourse(ctx context.Context, createdBy int64, in CourseInput) (Course, error) {
	if !in.EndAt.After(in.StartAt) {
		return Course{}, ErrInvalidSchedule
	}
	mode := in.DeliveryMode
	if mode == "" {
		mode = DeliveryInPerson
	}
	if !mode.Valid() {
		return Course{}, fmt.Errorf("courses: unknown delivery mode %q", in.DeliveryMode)
	}
	return s.repo.CreateCourse(ctx, Course{
		RegionID:           in.RegionID,
		CreatedBy:          createdBy,
		Title:              in.Title,
		Description:        in.Description,
		DeliveryMode:       mode,
		StartAt:            in.StartAt,
		EndAt:              in.EndAt,
		Capacity:           in.Capacity,
		AllowIndividuals:   in.AllowIndividuals,
		AllowOrganizations: in.AllowOrganizations,
	})
}

func (s *Service) UpdateCourse(ctx context.Context, id int64, in CourseInput) (Course, error) {
	if !in.EndAt.After(in.StartAt) {
		return Course{}, ErrInvalidSchedule
	}
	course, err := s.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	course.Title = in.Title
	course.Description = in.Description
	if in.DeliveryMode.Valid() {
		course.DeliveryMode = in.DeliveryMode
	}
	course.StartAt = in.StartAt
	course.EndAt = in.EndAt
	course.Capacity = in.Capacity
	course.AllowIndividuals = in.AllowIndividuals
	course.AllowOrganizations = in.AllowOrganizations
	return s.repo.UpdateCourse(ctx, course)
}

func (s *Service) Publish(ctx context.Context, id int64) error {
	return s.repo.SetPublished(ctx, id, true)
}

func (s *Service) Unpublish(ctx context.Context, id int64) error {
	return s.repo.SetPublished(ctx, id, false)
}

func (s *Service) GetCourse(ctx context.Context, id int64) (Course, error) {
	return s.repo.GetCourse(ctx, id)
}

// Catalog lists published active courses for browsing.
func (s *Service) Catalog(ctx context.Context, filter CatalogFilter) ([]Course, int64, error) {
	filter.PublishedOnly = true
	return s.repo.ListCourses(ctx, filter)
}

func (s *Service) ListCourses(ctx context.Context, filter CatalogFilter) ([]Course, int64, error) {
	return s.repo.ListCourses(ctx, filter)
}

func (s *Service) CountCourses(ctx context.Context) (int64, error) {
	return s.repo.CountCourses(ctx)
}

func (s *Service) CountEnrollmentsByStatus(ctx context.Context) (map[EnrollmentStatus]int64, error) {
	return s.repo.CountEnrollmentsByStatus(ctx)
}

func (s *Service) AddSession(ctx context.Context, session CourseSession) (CourseSession, error) {
	if !session.EndAt.After(session.StartAt) {
		return CourseSession{}, ErrInvalidSchedule
	}
	if _, err := s.repo.GetCourse(ctx, session.CourseID); err != nil {
		return CourseSession{}, err
	}
	return s.repo.AddSession(ctx, session)
}

func (s *Service) Sessions(ctx context.Context, courseID int64) ([]CourseSession, error) {
	return s.repo.ListSessions(ctx, courseID)
}

// Enroll books a seat for the individual. When the course is full the
// enrollment lands on the waitlist instead of failing.
func (s *Service) Enroll(ctx context.Context, courseID, individualID int64, source EnrollmentSource) (Enrollment, error) {
	var enrollment Enrollment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		course, err := tx.GetCourseForUpdate(ctx, courseID)
		if err != nil {
			return err
		}
		if err := s.checkOpen(course, source); err != nil {
			return err
		}
		status, err := s.seatStatus(ctx, tx, course)
		if err != nil {
			return err
		}
		enrollment, err = tx.CreateEnrollment(ctx, Enrollment{
			CourseID:     courseID,
			IndividualID: individualID,
			Source:       source,
			Status:       status,
		})
		if err != nil {
			return err
		}
		enrollment.CourseTitle = course.Title
		return nil
	})
	if err != nil {
		return Enrollment{}, err
	}
	s.notifyStatus(ctx, enrollment)
	return enrollment, nil
}

// Cancel releases the individual's seat on a course and promotes the first
// waitlisted enrollment when one exists.
func (s *Service) Cancel(ctx context.Context, courseID, individualID int64) (Enrollment, error) {
	existing, err := s.repo.FindEnrollment(ctx, courseID, individualID)
	if err != nil {
		return Enrollment{}, err
	}
	if existing == nil {
		return Enrollment{}, ErrNotFound
	}
	if !existing.Active() {
		return *existing, ErrNotCancellable
	}
	var promoted *Enrollment
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetCourseForUpdate(ctx, courseID); err != nil {
			return err
		}
		if err := tx.SetEnrollmentStatus(ctx, existing.ID, EnrollCancelled); err != nil {
			return err
		}
		if existing.Status != EnrollAccepted {
			return nil
		}
		next, err := tx.NextWaitlisted(ctx, courseID)
		if err != nil || next == nil {
			return err
		}
		if err := tx.SetEnrollmentStatus(ctx, next.ID, EnrollAccepted); err != nil {
			return err
		}
		next.Status = EnrollAccepted
		promoted = next
		return nil
	})
	if err != nil {
		return Enrollment{}, err
	}
	existing.Status = EnrollCancelled
	if promoted != nil {
		s.notifyStatus(ctx, *promoted)
	}
	return *existing, nil
}

// SubmitOrgRequest records a branch batch request with one item per
// individual. Seats are not taken until the request is processed.
func (s *Service) SubmitOrgRequest(ctx context.Context, branchID, courseID, requestedBy int64, individualIDs []int64) (OrgCourseRequest, error) {
	course, err := s.repo.GetCourse(ctx, courseID)
	if err != nil {
		return OrgCourseRequest{}, err
	}
	if err := s.checkOpen(course, SourceOrgRequest); err != nil {
		return OrgCourseRequest{}, err
	}
	var request OrgCourseRequest
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		request, err = tx.CreateOrgRequest(ctx, OrgCourseRequest{
			OrgBranchID: branchID,
			CourseID:    courseID,
			RequestedBy: requestedBy,
			Status:      OrgRequestNew,
		})
		if err != nil {
			return err
		}
		for _, indID := range individualIDs {
			item, err := tx.CreateOrgRequestItem(ctx, OrgRequestItem{
				RequestID:    request.ID,
				IndividualID: indID,
			})
			if err != nil {
				return err
			}
			request.Items = append(request.Items, item)
		}
		return nil
	})
	if err != nil {
		return OrgCourseRequest{}, err
	}
	return request, nil
}

// ProcessOrgRequest turns each item of a new request into an enrollment,
// honoring capacity the same way individual enrollment does. An individual
// already enrolled keeps the existing enrollment and the item stays unlinked.
func (s *Service) ProcessOrgRequest(ctx context.Context, requestID int64) (OrgCourseRequest, error) {
	request, err := s.repo.GetOrgRequest(ctx, requestID)
	if err != nil {
		return OrgCourseRequest{}, err
	}
	var created []Enrollment
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.MarkOrgRequestProcessed(ctx, requestID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyProcessed
		}
		course, err := tx.GetCourseForUpdate(ctx, request.CourseID)
		if err != nil {
			return err
		}
		for _, item := range request.Items {
			status, err := s.seatStatus(ctx, tx, course)
			if err != nil {
				return err
			}
			enrollment, err := tx.CreateEnrollment(ctx, Enrollment{
				CourseID:     request.CourseID,
				IndividualID: item.IndividualID,
				Source:       SourceOrgRequest,
				Status:       status,
			})
			if errors.Is(err, ErrAlreadyEnrolled) {
				continue
			}
			if err != nil {
				return err
			}
			if err := tx.LinkItemEnrollment(ctx, item.ID, enrollment.ID); err != nil {
				return err
			}
			enrollment.CourseTitle = course.Title
			created = append(created, enrollment)
		}
		return nil
	})
	if err != nil {
		return request, err
	}
	for _, enrollment := range created {
		s.notifyStatus(ctx, enrollment)
	}
	return s.repo.GetOrgRequest(ctx, requestID)
}

func (s *Service) GetOrgRequest(ctx context.Context, id int64) (OrgCourseRequest, error) {
	return s.repo.GetOrgRequest(ctx, id)
}

func (s *Service) ListOrgRequests(ctx context.Context, branchID int64, status OrgRequestStatus) ([]OrgCourseRequest, error) {
	return s.repo.ListOrgRequests(ctx, branchID, status)
}

// GetEnrollment returns one enrollment by id.
func (s *Service) GetEnrollment(ctx context.Context, id int64) (Enrollment, error) {
	return s.repo.GetEnrollment(ctx, id)
}

// FindEnrollment returns the individual's enrollment on a course, or nil.
func (s *Service) FindEnrollment(ctx context.Context, courseID, individualID int64) (*Enrollment, error) {
	return s.repo.FindEnrollment(ctx, courseID, individualID)
}

// CompleteEnrollment marks an enrollment completed after confirmed
// attendance.
func (s *Service) CompleteEnrollment(ctx context.Context, enrollmentID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetEnrollmentStatus(ctx, enrollmentID, EnrollCompleted)
	})
}

// MyEnrollments lists every enrollment of one individual, newest first.
func (s *Service) MyEnrollments(ctx context.Context, individualID int64) ([]Enrollment, error) {
	return s.repo.ListEnrollments(ctx, EnrollmentFilter{IndividualID: individualID})
}

func (s *Service) ListEnrollments(ctx context.Context, filter EnrollmentFilter) ([]Enrollment, error) {
	return s.repo.ListEnrollments(ctx, filter)
}

func (s *Service) checkOpen(course Course, source EnrollmentSource) error {
	if !course.IsPublished || !course.IsActive {
		return ErrNotPublished
	}
	if course.Finished(s.now()) {
		return ErrCourseFinished
	}
	if source == SourceIndividualSelf && !course.AllowIndividuals {
		return ErrNotEligible
	}
	if source == SourceOrgRequest && !course.AllowOrganizations {
		return ErrNotEligible
	}
	return nil
}

// seatStatus decides accepted versus waitlist under the course row lock.
func (s *Service) seatStatus(ctx context.Context, tx TxRepository, course Course) (EnrollmentStatus, error) {
	if course.Capacity == 0 {
		return EnrollAccepted, nil
	}
	seated, err := tx.CountSeated(ctx, course.ID)
	if err != nil {
		return "", err
	}
	if seated < course.Capacity {
		return EnrollAccepted, nil
	}
	return EnrollWaitlist, nil
}

func (s *Service) notifyStatus(ctx context.Context, enrollment Enrollment) {
	if s.notifier == nil {
		return
	}
	ind, err := s.directory.Get(ctx, enrollment.IndividualID)
	if err != nil {
		s.logger.Warn("enrollment notification skipped",
			"enrollment_id", enrollment.ID, "error", err)
		return
	}
	if err := s.notifier.SendEnrollmentStatus(ctx, ind.Email, ind.FullName, enrollment.CourseTitle, enrollment.Status); err != nil {
		s.logger.Error("enrollment notification failed",
			"enrollment_id", enrollment.ID, "email", ind.Email, "error", err)
	}
}
