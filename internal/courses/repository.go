package courses

import "context"

// CatalogFilter narrows course listings.
type CatalogFilter struct {
	RegionID      int64
	PublishedOnly bool
	Upcoming      bool
	Limit         int
	Offset        int
}

// EnrollmentFilter narrows enrollment listings.
type EnrollmentFilter struct {
	CourseID     int64
	IndividualID int64
	Status       EnrollmentStatus
}

// Repository is the storage surface for the course catalog, enrollments and
// organization batch requests.
type Repository interface {
	CreateCourse(ctx context.Context, course Course) (Course, error)
	GetCourse(ctx context.Context, id int64) (Course, error)
	UpdateCourse(ctx context.Context, course Course) (Course, error)
	ListCourses(ctx context.Context, filter CatalogFilter) ([]Course, int64, error)
	SetPublished(ctx context.Context, id int64, published bool) error

	AddSession(ctx context.Context, session CourseSession) (CourseSession, error)
	ListSessions(ctx context.Context, courseID int64) ([]CourseSession, error)

	GetEnrollment(ctx context.Context, id int64) (Enrollment, error)
	FindEnrollment(ctx context.Context, courseID, individualID int64) (*Enrollment, error)
	ListEnrollments(ctx context.Context, filter EnrollmentFilter) ([]Enrollment, error)

	GetOrgRequest(ctx context.Context, id int64) (OrgCourseRequest, error)
	ListOrgRequests(ctx context.Context, branchID int64, status OrgRequestStatus) ([]OrgCourseRequest, error)

	CountCourses(ctx context.Context) (int64, error)
	CountEnrollmentsByStatus(ctx context.Context) (map[EnrollmentStatus]int64, error)

	// WithTx runs fn inside one transaction; seat accounting and batch
	// processing go through it.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
}

// TxRepository is the transactional slice of the repository.
type TxRepository interface {
	// GetCourseForUpdate locks the course row so concurrent enrollments
	// serialize their capacity checks.
	GetCourseForUpdate(ctx context.Context, id int64) (Course, error)
	CountSeated(ctx context.Context, courseID int64) (int, error)
	CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
	SetEnrollmentStatus(ctx context.Context, id int64, status EnrollmentStatus) error
	NextWaitlisted(ctx context.Context, courseID int64) (*Enrollment, error)

	CreateOrgRequest(ctx context.Context, req OrgCourseRequest) (OrgCourseRequest, error)
	CreateOrgRequestItem(ctx context.Context, item OrgRequestItem) (OrgRequestItem, error)
	LinkItemEnrollment(ctx context.Context, itemID, enrollmentID int64) error
	// MarkOrgRequestProcessed reports false when the request was not new.
	MarkOrgRequestProcessed(ctx context.Context, id int64) (bool, error)
}
