package courses

import (
	"errors"
	"time"
)

// DeliveryMode tells how a course is held.
type DeliveryMode string

const (
	DeliveryInPerson DeliveryMode = "in_person"
	DeliveryOnline   DeliveryMode = "online"
	DeliveryHybrid   DeliveryMode = "hybrid"
)

func (m DeliveryMode) Valid() bool {
	switch m {
	case DeliveryInPerson, DeliveryOnline, DeliveryHybrid:
		return true
	}
	return false
}

// Course is a scheduled training offering within a region. Capacity zero
// means unlimited seats.
type Course struct {
	ID                 int64        `json:"id"`
	RegionID           int64        `json:"region_id"`
	CreatedBy          int64        `json:"created_by"`
	Title              string       `json:"title"`
	Description        string       `json:"description,omitempty"`
	DeliveryMode       DeliveryMode `json:"delivery_mode"`
	StartAt            time.Time    `json:"start_at"`
	EndAt              time.Time    `json:"end_at"`
	Capacity           int          `json:"capacity"`
	AllowIndividuals   bool         `json:"allow_individuals"`
	AllowOrganizations bool         `json:"allow_organizations"`
	IsPublished        bool         `json:"is_published"`
	IsActive           bool         `json:"is_active"`
	CreatedAt          time.Time    `json:"created_at"`
}

// Finished reports whether the course has ended as of now.
func (c Course) Finished(now time.Time) bool {
	return !now.Before(c.EndAt)
}

// CourseSession is an optional sub-slot inside a course schedule.
type CourseSession struct {
	ID       int64     `json:"id"`
	CourseID int64     `json:"course_id"`
	Title    string    `json:"title,omitempty"`
	StartAt  time.Time `json:"start_at"`
	EndAt    time.Time `json:"end_at"`
}

// EnrollmentStatus is the lifecycle state of one individual's seat.
type EnrollmentStatus string

const (
	EnrollPending   EnrollmentStatus = "pending"
	EnrollAccepted  EnrollmentStatus = "accepted"
	EnrollWaitlist  EnrollmentStatus = "waitlist"
	EnrollRejected  EnrollmentStatus = "rejected"
	EnrollCancelled EnrollmentStatus = "cancelled"
	EnrollCompleted EnrollmentStatus = "completed"
)

// EnrollmentSource records how the seat came to exist.
type EnrollmentSource string

const (
	SourceIndividualSelf EnrollmentSource = "individual_self"
	SourceOrgRequest     EnrollmentSource = "org_request"
)

// Enrollment links one individual to one course. At most one row per pair.
type Enrollment struct {
	ID           int64            `json:"id"`
	CourseID     int64            `json:"course_id"`
	CourseTitle  string           `json:"course_title,omitempty"`
	IndividualID int64            `json:"individual_id"`
	Source       EnrollmentSource `json:"source"`
	Status       EnrollmentStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Active reports whether the enrollment still holds or contends for a seat.
func (e Enrollment) Active() bool {
	switch e.Status {
	case EnrollPending, EnrollAccepted, EnrollWaitlist:
		return true
	}
	return false
}

// OrgRequestStatus is the state of an organization batch request.
type OrgRequestStatus string

const (
	OrgRequestNew       OrgRequestStatus = "new"
	OrgRequestProcessed OrgRequestStatus = "processed"
	OrgRequestCancelled OrgRequestStatus = "cancelled"
)

// OrgCourseRequest is a branch's batch enrollment request for one course.
type OrgCourseRequest struct {
	ID          int64            `json:"id"`
	OrgBranchID int64            `json:"org_branch_id"`
	CourseID    int64            `json:"course_id"`
	RequestedBy int64            `json:"requested_by"`
	Status      OrgRequestStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	Items       []OrgRequestItem `json:"items,omitempty"`
}

// OrgRequestItem names one individual inside a batch request. Once processed
// it points at the enrollment it produced.
type OrgRequestItem struct {
	ID           int64  `json:"id"`
	RequestID    int64  `json:"request_id"`
	IndividualID int64  `json:"individual_id"`
	EnrollmentID *int64 `json:"enrollment_id,omitempty"`
}

var (
	ErrNotFound         = errors.New("courses: not found")
	ErrNotPublished     = errors.New("courses: course not open for enrollment")
	ErrCourseFinished   = errors.New("courses: course already finished")
	ErrAlreadyEnrolled  = errors.New("courses: already enrolled")
	ErrNotEligible      = errors.New("courses: enrollment path not allowed for this course")
	ErrNotCancellable   = errors.New("courses: enrollment cannot be cancelled")
	ErrAlreadyProcessed = errors.New("courses: request already processed")
	ErrInvalidSchedule  = errors.New("courses: end must be after start")
)
