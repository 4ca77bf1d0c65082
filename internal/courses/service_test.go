package courses

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleem-platform/taleem/internal/individuals"
)

// ==== MOCK REPOSITORY ====

type mockRepository struct {
	courses     map[int64]Course
	sessions    map[int64][]CourseSession
	enrollments map[int64]Enrollment
	requests    map[int64]OrgCourseRequest
	items       map[int64]OrgRequestItem

	nextCourseID     int64
	nextEnrollmentID int64
	nextRequestID    int64
	nextItemID       int64

	txError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		courses:     make(map[int64]Course),
		sessions:    make(map[int64][]CourseSession),
		enrollments: make(map[int64]Enrollment),
		requests:    make(map[int64]OrgCourseRequest),
		items:       make(map[int64]OrgRequestItem),
	}
}

func (m *mockRepository) CreateCourse(_ context.Context, course Course) (Course, error) {
	m.nextCourseID++
	course.ID = m.nextCourseID
	course.IsActive = true
	course.CreatedAt = time.Now()
	m.courses[course.ID] = course
	return course, nil
}

func (m *mockRepository) GetCourse(_ context.Context, id int64) (Course, error) {
	course, ok := m.courses[id]
	if !ok {
		return Course{}, ErrNotFound
	}
	return course, nil
}

func (m *mockRepository) UpdateCourse(_ context.Context, course Course) (Course, error) {
	if _, ok := m.courses[course.ID]; !ok {
		return Course{}, ErrNotFound
	}
	m.courses[course.ID] = course
	return course, nil
}

func (m *mockRepository) ListCourses(_ context.Context, filter CatalogFilter) ([]Course, int64, error) {
	var out []Course
	for _, course := range m.courses {
		if !course.IsActive {
			continue
		}
		if filter.PublishedOnly && !course.IsPublished {
			continue
		}
		if filter.RegionID != 0 && course.RegionID != filter.RegionID {
			continue
		}
		out = append(out, course)
	}
	return out, int64(len(out)), nil
}

func (m *mockRepository) SetPublished(_ context.Context, id int64, published bool) error {
	course, ok := m.courses[id]
	if !ok {
		return ErrNotFound
	}
	course.IsPublished = published
	m.courses[id] = course
	return nil
}

func (m *mockRepository) AddSession(_ context.Context, session CourseSession) (CourseSession, error) {
	session.ID = int64(len(m.sessions[session.CourseID]) + 1)
	m.sessions[session.CourseID] = append(m.sessions[session.CourseID], session)
	return session, nil
}

func (m *mockRepository) ListSessions(_ context.Context, courseID int64) ([]CourseSession, error) {
	return m.sessions[courseID], nil
}

func (m *mockRepository) GetEnrollment(_ context.Context, id int64) (Enrollment, error) {
	e, ok := m.enrollments[id]
	if !ok {
		return Enrollment{}, ErrNotFound
	}
	return e, nil
}

func (m *mockRepository) FindEnrollment(_ context.Context, courseID, individualID int64) (*Enrollment, error) {
	for _, e := range m.enrollments {
		if e.CourseID == courseID && e.IndividualID == individualID {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (m *mockRepository) ListEnrollments(_ context.Context, filter EnrollmentFilter) ([]Enrollment, error) {
	var out []Enrollment
	for _, e := range m.enrollments {
		if filter.CourseID != 0 && e.CourseID != filter.CourseID {
			continue
		}
		if filter.IndividualID != 0 && e.IndividualID != filter.IndividualID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockRepository) GetOrgRequest(_ context.Context, id int64) (OrgCourseRequest, error) {
	req, ok := m.requests[id]
	if !ok {
		return OrgCourseRequest{}, ErrNotFound
	}
	req.Items = nil
	for _, item := range m.items {
		if item.RequestID == id {
			req.Items = append(req.Items, item)
		}
	}
	sort.Slice(req.Items, func(i, j int) bool { return req.Items[i].ID < req.Items[j].ID })
	return req, nil
}

func (m *mockRepository) ListOrgRequests(_ context.Context, branchID int64, status OrgRequestStatus) ([]OrgCourseRequest, error) {
	var out []OrgCourseRequest
	for _, req := range m.requests {
		if branchID != 0 && req.OrgBranchID != branchID {
			continue
		}
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

func (m *mockRepository) CountCourses(_ context.Context) (int64, error) {
	return int64(len(m.courses)), nil
}

func (m *mockRepository) CountEnrollmentsByStatus(_ context.Context) (map[EnrollmentStatus]int64, error) {
	counts := make(map[EnrollmentStatus]int64)
	for _, e := range m.enrollments {
		counts[e.Status]++
	}
	return counts, nil
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, &mockTxRepo{repo: m})
}

type mockTxRepo struct {
	repo *mockRepository
}

func (t *mockTxRepo) GetCourseForUpdate(ctx context.Context, id int64) (Course, error) {
	return t.repo.GetCourse(ctx, id)
}

func (t *mockTxRepo) CountSeated(_ context.Context, courseID int64) (int, error) {
	n := 0
	for _, e := range t.repo.enrollments {
		if e.CourseID == courseID && (e.Status == EnrollPending || e.Status == EnrollAccepted) {
			n++
		}
	}
	return n, nil
}

func (t *mockTxRepo) CreateEnrollment(_ context.Context, e Enrollment) (Enrollment, error) {
	for _, existing := range t.repo.enrollments {
		if existing.CourseID == e.CourseID && existing.IndividualID == e.IndividualID {
			return Enrollment{}, ErrAlreadyEnrolled
		}
	}
	t.repo.nextEnrollmentID++
	e.ID = t.repo.nextEnrollmentID
	e.CreatedAt = time.Now()
	t.repo.enrollments[e.ID] = e
	return e, nil
}

func (t *mockTxRepo) SetEnrollmentStatus(_ context.Context, id int64, status EnrollmentStatus) error {
	e, ok := t.repo.enrollments[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = status
	t.repo.enrollments[id] = e
	return nil
}

func (t *mockTxRepo) NextWaitlisted(_ context.Context, courseID int64) (*Enrollment, error) {
	var next *Enrollment
	for _, e := range t.repo.enrollments {
		if e.CourseID != courseID || e.Status != EnrollWaitlist {
			continue
		}
		candidate := e
		if next == nil || candidate.ID < next.ID {
			next = &candidate
		}
	}
	return next, nil
}

func (t *mockTxRepo) CreateOrgRequest(_ context.Context, req OrgCourseRequest) (OrgCourseRequest, error) {
	t.repo.nextRequestID++
	req.ID = t.repo.nextRequestID
	req.CreatedAt = time.Now()
	t.repo.requests[req.ID] = req
	return req, nil
}

func (t *mockTxRepo) CreateOrgRequestItem(_ context.Context, item OrgRequestItem) (OrgRequestItem, error) {
	t.repo.nextItemID++
	item.ID = t.repo.nextItemID
	t.repo.items[item.ID] = item
	return item, nil
}

func (t *mockTxRepo) LinkItemEnrollment(_ context.Context, itemID, enrollmentID int64) error {
	item, ok := t.repo.items[itemID]
	if !ok {
		return ErrNotFound
	}
	item.EnrollmentID = &enrollmentID
	t.repo.items[itemID] = item
	return nil
}

func (t *mockTxRepo) MarkOrgRequestProcessed(_ context.Context, id int64) (bool, error) {
	req, ok := t.repo.requests[id]
	if !ok || req.Status != OrgRequestNew {
		return false, nil
	}
	req.Status = OrgRequestProcessed
	t.repo.requests[id] = req
	return true, nil
}

// ==== SUPPORT DOUBLES ====

type mockDirectory struct{}

func (mockDirectory) Get(_ context.Context, id int64) (individuals.Individual, error) {
	return individuals.Individual{
		ID:       id,
		FullName: fmt.Sprintf("Individual %d", id),
		Email:    fmt.Sprintf("ind%d@example.com", id),
	}, nil
}

type sentMail struct {
	email  string
	status EnrollmentStatus
}

type mockNotifier struct {
	sent []sentMail
}

func (m *mockNotifier) SendEnrollmentStatus(_ context.Context, email, _, _ string, status EnrollmentStatus) error {
	m.sent = append(m.sent, sentMail{email: email, status: status})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*Service, *mockRepository, *mockNotifier) {
	t.Helper()
	repo := newMockRepository()
	notifier := &mockNotifier{}
	svc := NewService(repo, mockDirectory{}, notifier, testLogger())
	return svc, repo, notifier
}

func publishedCourse(t *testing.T, svc *Service, capacity int) Course {
	t.Helper()
	course, err := svc.CreateCourse(context.Background(), 1, CourseInput{
		RegionID:           1,
		Title:              "Intro to First Aid",
		DeliveryMode:       DeliveryInPerson,
		StartAt:            time.Now().Add(24 * time.Hour),
		EndAt:              time.Now().Add(48 * time.Hour),
		Capacity:           capacity,
		AllowIndividuals:   true,
		AllowOrganizations: true,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Publish(context.Background(), course.ID))
	return course
}

// ==== TESTS ====

func TestCreateCourseRejectsBadSchedule(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CreateCourse(context.Background(), 1, CourseInput{
		RegionID: 1,
		Title:    "Backwards",
		StartAt:  time.Now().Add(2 * time.Hour),
		EndAt:    time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestEnrollAcceptsUnderCapacity(t *testing.T) {
	svc, _, notifier := newTestService(t)
	course := publishedCourse(t, svc, 2)

	enrollment, err := svc.Enroll(context.Background(), course.ID, 10, SourceIndividualSelf)
	require.NoError(t, err)

	assert.Equal(t, EnrollAccepted, enrollment.Status)
	assert.Equal(t, "Intro to First Aid", enrollment.CourseTitle)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "ind10@example.com", notifier.sent[0].email)
}

func TestEnrollWaitlistsWhenFull(t *testing.T) {
	svc, _, notifier := newTestService(t)
	course := publishedCourse(t, svc, 2)

	for _, id := range []int64{10, 11} {
		e, err := svc.Enroll(context.Background(), course.ID, id, SourceIndividualSelf)
		require.NoError(t, err)
		assert.Equal(t, EnrollAccepted, e.Status)
	}

	third, err := svc.Enroll(context.Background(), course.ID, 12, SourceIndividualSelf)
	require.NoError(t, err)
	assert.Equal(t, EnrollWaitlist, third.Status)
	assert.Equal(t, EnrollWaitlist, notifier.sent[2].status)
}

func TestEnrollUnlimitedCapacity(t *testing.T) {
	svc, _, _ := newTestService(t)
	course := publishedCourse(t, svc, 0)

	for id := int64(1); id <= 25; id++ {
		e, err := svc.Enroll(context.Background(), course.ID, id, SourceIndividualSelf)
		require.NoError(t, err)
		assert.Equal(t, EnrollAccepted, e.Status)
	}
}

func TestEnrollRejectsUnpublished(t *testing.T) {
	svc, _, _ := newTestService(t)
	course, err := svc.CreateCourse(context.Background(), 1, CourseInput{
		RegionID:         1,
		Title:            "Draft",
		StartAt:          time.Now().Add(time.Hour),
		EndAt:            time.Now().Add(2 * time.Hour),
		AllowIndividuals: true,
	})
	require.NoError(t, err)

	_, err = svc.Enroll(context.Background(), course.ID, 10, SourceIndividualSelf)
	assert.ErrorIs(t, err, ErrNotPublished)
}

func TestEnrollRejectsFinishedCourse(t *testing.T) {
	svc, _, _ := newTestService(t)
	course := publishedCourse(t, svc, 0)
	svc.now = func() time.Time { return time.Now().Add(72 * time.Hour) }

	_, err := svc.Enroll(context.Background(), course.ID, 10, SourceIndividualSelf)
	assert.ErrorIs(t, err, ErrCourseFinished)
}

func TestEnrollHonorsEligibility(t *testing.T) {
	svc, _, _ := newTestService(t)
	course, err := svc.CreateCourse(context.Background(), 1, CourseInput{
		RegionID:           1,
		Title:              "Org Only",
		StartAt:            time.Now().Add(time.Hour),
		EndAt:              time.Now().Add(2 * time.Hour),
		AllowOrganizations: true,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Publish(context.Background(), course.ID))

	_, err = svc.Enroll(context.Background(), course.ID, 10, SourceIndividualSelf)
	assert.ErrorIs(t, err, ErrNotEligible)

	_, err = svc.Enroll(context.Background(), course.ID, 10, SourceOrgRequest)
	assert.NoError(t, err)
}

func TestEnrollTwiceFails(t *testing.T) {
	svc, _, _ := newTestService(t)
	course := publishedCourse(t, svc, 0)

	_, err := svc.Enroll(context.Background(), course.ID, 10, SourceIndividualSelf)
	require.NoError(t, err)
	_, err = svc.Enroll(context.Background(), course.ID, 10, SourceIndividualSelf)
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
}

func TestCancelPromotesWaitlist(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	course := publishedCourse(t, svc, 1)

	first, err := svc.Enroll(context.Background(), course.ID, 10, SourceIndividualSelf)
	require.NoError(t, err)
	require.Equal(t, EnrollAccepted, first.Status)
	second, err := svc.Enroll(context.Background(), course.ID, 11, SourceIndividualSelf)
	require.NoError(t, err)
	require.Equal(t, EnrollWaitlist, second.Status)

	cancelled, err := svc.Cancel(context.Background(), course.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, EnrollCancelled, cancelled.Status)

	promoted := repo.enrollments[second.ID]
	assert.Equal(t, EnrollAccepted, promoted.Status)

	last := notifier.sent[len(notifier.sent)-1]
	assert.Equal(t, "ind11@example.com", last.email)
	assert.Equal(t, EnrollAccepted, last.status)
}

func TestCancelWaitlistDoesNotPromote(t *testing.T) {
	svc, repo, _ := newTestService(t)
	course := publishedCourse(t, svc, 1)

	_, err := svc.Enroll(context.Background(), course.ID, 10, SourceIndividualSelf)
	require.NoError(t, err)
	waitlisted, err := svc.Enroll(context.Background(), course.ID, 11, SourceIndividualSelf)
	require.NoError(t, err)
	extra, err := svc.Enroll(context.Background(), course.ID, 12, SourceIndividualSelf)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), course.ID, 11)
	require.NoError(t, err)

	assert.Equal(t, EnrollWaitlist, repo.enrollments[extra.ID].Status)
	assert.Equal(t, EnrollCancelled, repo.enrollments[waitlisted.ID].Status)
}

func TestCancelCompletedEnrollmentRefused(t *testing.T) {
	svc, repo, _ := newTestService(t)
	course := publishedCourse(t, svc, 0)
	e, err := svc.Enroll(context.Background(), course.ID, 10, SourceIndividualSelf)
	require.NoError(t, err)

	done := repo.enrollments[e.ID]
	done.Status = EnrollCompleted
	repo.enrollments[e.ID] = done

	_, err = svc.Cancel(context.Background(), course.ID, 10)
	assert.ErrorIs(t, err, ErrNotCancellable)
}

func TestOrgRequestLifecycle(t *testing.T) {
	svc, _, notifier := newTestService(t)
	course := publishedCourse(t, svc, 2)

	request, err := svc.SubmitOrgRequest(context.Background(), 5, course.ID, 99, []int64{20, 21, 22})
	require.NoError(t, err)
	assert.Equal(t, OrgRequestNew, request.Status)
	assert.Len(t, request.Items, 3)

	processed, err := svc.ProcessOrgRequest(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, OrgRequestProcessed, processed.Status)

	statuses := map[EnrollmentStatus]int{}
	for _, mail := range notifier.sent {
		statuses[mail.status]++
	}
	assert.Equal(t, 2, statuses[EnrollAccepted])
	assert.Equal(t, 1, statuses[EnrollWaitlist])

	for _, item := range processed.Items {
		assert.NotNil(t, item.EnrollmentID)
	}
}

func TestProcessOrgRequestTwiceIsNoOp(t *testing.T) {
	svc, _, notifier := newTestService(t)
	course := publishedCourse(t, svc, 0)

	request, err := svc.SubmitOrgRequest(context.Background(), 5, course.ID, 99, []int64{20})
	require.NoError(t, err)
	_, err = svc.ProcessOrgRequest(context.Background(), request.ID)
	require.NoError(t, err)
	sentBefore := len(notifier.sent)

	_, err = svc.ProcessOrgRequest(context.Background(), request.ID)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Len(t, notifier.sent, sentBefore)
}

func TestProcessOrgRequestSkipsAlreadyEnrolled(t *testing.T) {
	svc, _, _ := newTestService(t)
	course := publishedCourse(t, svc, 0)

	_, err := svc.Enroll(context.Background(), course.ID, 20, SourceIndividualSelf)
	require.NoError(t, err)

	request, err := svc.SubmitOrgRequest(context.Background(), 5, course.ID, 99, []int64{20, 21})
	require.NoError(t, err)
	processed, err := svc.ProcessOrgRequest(context.Background(), request.ID)
	require.NoError(t, err)

	var linked int
	for _, item := range processed.Items {
		if item.EnrollmentID != nil {
			linked++
		}
	}
	assert.Equal(t, 1, linked)

	enrollments, err := svc.ListEnrollments(context.Background(), EnrollmentFilter{CourseID: course.ID})
	require.NoError(t, err)
	assert.Len(t, enrollments, 2)
}

func TestSubmitOrgRequestRequiresOrgAccess(t *testing.T) {
	svc, _, _ := newTestService(t)
	course, err := svc.CreateCourse(context.Background(), 1, CourseInput{
		RegionID:         1,
		Title:            "Individuals Only",
		StartAt:          time.Now().Add(time.Hour),
		EndAt:            time.Now().Add(2 * time.Hour),
		AllowIndividuals: true,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Publish(context.Background(), course.ID))

	_, err = svc.SubmitOrgRequest(context.Background(), 5, course.ID, 99, []int64{20})
	assert.ErrorIs(t, err, ErrNotEligible)
}
