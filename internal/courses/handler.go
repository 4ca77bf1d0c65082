package courses

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taleem-platform/taleem/internal/accounts"
	"github.com/taleem-platform/taleem/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the catalog and enrollment flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers course routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/create", h.handleCreate)
	r.Get("/org_request", h.handleListOrgRequests)
	r.Post("/org_request/{id}/process", h.handleProcessOrgRequest)
	r.Get("/{id}", h.handleDetail)
	r.Post("/{id}/update", h.handleUpdate)
	r.Post("/{id}/publish", h.handlePublish)
	r.Post("/{id}/enroll", h.handleEnroll)
	r.Post("/{id}/cancel", h.handleCancel)
	r.Post("/{id}/org_request", h.handleSubmitOrgRequest)
}

type courseForm struct {
	RegionID           int64     `json:"region_id" validate:"required"`
	Title              string    `json:"title" validate:"required,max=220"`
	Description        string    `json:"description"`
	DeliveryMode       string    `json:"delivery_mode" validate:"omitempty,oneof=in_person online hybrid"`
	StartAt            time.Time `json:"start_at" validate:"required"`
	EndAt              time.Time `json:"end_at" validate:"required"`
	Capacity           int       `json:"capacity" validate:"min=0"`
	AllowIndividuals   *bool     `json:"allow_individuals"`
	AllowOrganizations *bool     `json:"allow_organizations"`
}

func (f courseForm) input() CourseInput {
	in := CourseInput{
		RegionID:           f.RegionID,
		Title:              f.Title,
		Description:        f.Description,
		DeliveryMode:       DeliveryMode(f.DeliveryMode),
		StartAt:            f.StartAt,
		EndAt:              f.EndAt,
		Capacity:           f.Capacity,
		AllowIndividuals:   true,
		AllowOrganizations: true,
	}
	if f.AllowIndividuals != nil {
		in.AllowIndividuals = *f.AllowIndividuals
	}
	if f.AllowOrganizations != nil {
		in.AllowOrganizations = *f.AllowOrganizations
	}
	return in
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := CatalogFilter{Upcoming: q.Get("past") != "1"}
	filter.RegionID, _ = strconv.ParseInt(q.Get("region"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	var (
		list  []Course
		total int64
		err   error
	)
	if q.Get("all") == "1" {
		list, total, err = h.service.ListCourses(r.Context(), filter)
	} else {
		list, total, err = h.service.Catalog(r.Context(), filter)
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"courses": list, "total": total})
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	course, err := h.service.GetCourse(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	sessions, err := h.service.Sessions(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	payload := map[string]any{"course": course, "sessions": sessions}
	if r.URL.Query().Get("enrollments") == "1" {
		enrollments, err := h.service.ListEnrollments(r.Context(), EnrollmentFilter{CourseID: id})
		if err != nil {
			h.respondError(w, err)
			return
		}
		payload["enrollments"] = enrollments
	}
	httpx.JSON(w, http.StatusOK, payload)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user := accounts.UserFromContext(r.Context())
	if user == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var in courseForm
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "Request body is not valid JSON.")
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Region, title and schedule are required.")
		return
	}
	course, err := h.service.CreateCourse(r.Context(), user.ID, in.input())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, course)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var in courseForm
	if err := httpx.DecodeJSON(r, &in); err != nil || h.validator.Struct(in) != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Region, title and schedule are required.")
		return
	}
	course, err := h.service.UpdateCourse(r.Context(), pathID(r), in.input())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, course)
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Published *bool `json:"published"`
	}
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "Request body is not valid JSON.")
			return
		}
	}
	publish := in.Published == nil || *in.Published
	var err error
	if publish {
		err = h.service.Publish(r.Context(), pathID(r))
	} else {
		err = h.service.Unpublish(r.Context(), pathID(r))
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	if publish {
		httpx.Info(w, "Course published.")
		return
	}
	httpx.Info(w, "Course unpublished.")
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	individualID, ok := h.individualID(w, r)
	if !ok {
		return
	}
	enrollment, err := h.service.Enroll(r.Context(), pathID(r), individualID, SourceIndividualSelf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, enrollment)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	individualID, ok := h.individualID(w, r)
	if !ok {
		return
	}
	enrollment, err := h.service.Cancel(r.Context(), pathID(r), individualID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, enrollment)
}

type orgRequestForm struct {
	IndividualIDs []int64 `json:"individual_ids" validate:"required,min=1,dive,required"`
}

func (h *Handler) handleSubmitOrgRequest(w http.ResponseWriter, r *http.Request) {
	user := accounts.UserFromContext(r.Context())
	if user == nil || user.OrgBranchID == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "Only organization representatives can submit batch requests.")
		return
	}
	var in orgRequestForm
	if err := httpx.DecodeJSON(r, &in); err != nil || h.validator.Struct(in) != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "At least one individual is required.")
		return
	}
	request, err := h.service.SubmitOrgRequest(r.Context(), *user.OrgBranchID, pathID(r), user.ID, in.IndividualIDs)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, request)
}

func (h *Handler) handleListOrgRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	branchID, _ := strconv.ParseInt(q.Get("branch"), 10, 64)
	if user := accounts.UserFromContext(r.Context()); user != nil && user.OrgBranchID != nil {
		branchID = *user.OrgBranchID
	}
	requests, err := h.service.ListOrgRequests(r.Context(), branchID, OrgRequestStatus(q.Get("status")))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (h *Handler) handleProcessOrgRequest(w http.ResponseWriter, r *http.Request) {
	request, err := h.service.ProcessOrgRequest(r.Context(), pathID(r))
	if errors.Is(err, ErrAlreadyProcessed) {
		httpx.JSON(w, http.StatusOK, map[string]any{
			"message": "This request has already been processed.",
			"request": request,
		})
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, request)
}

// individualID resolves the caller's individual profile link.
func (h *Handler) individualID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	user := accounts.UserFromContext(r.Context())
	if user == nil || user.IndividualID == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "Your account is not linked to an individual profile.")
		return 0, false
	}
	return *user.IndividualID, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "Course not found.")
	case errors.Is(err, ErrNotPublished):
		httpx.Problem(w, http.StatusConflict, "Not Open", "This course is not open for enrollment.")
	case errors.Is(err, ErrCourseFinished):
		httpx.Problem(w, http.StatusConflict, "Course Finished", "This course has already ended.")
	case errors.Is(err, ErrAlreadyEnrolled):
		httpx.Problem(w, http.StatusConflict, "Already Enrolled", "An enrollment for this course already exists.")
	case errors.Is(err, ErrNotEligible):
		httpx.Problem(w, http.StatusForbidden, "Not Eligible", "This enrollment path is not allowed for this course.")
	case errors.Is(err, ErrNotCancellable):
		httpx.Problem(w, http.StatusConflict, "Not Cancellable", "This enrollment can no longer be cancelled.")
	case errors.Is(err, ErrInvalidSchedule):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Schedule", "The end time must be after the start time.")
	default:
		h.logger.Error("courses request failed", "error", err)
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}
