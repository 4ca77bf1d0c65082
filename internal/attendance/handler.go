package attendance

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taleem-platform/taleem/internal/accounts"
	"github.com/taleem-platform/taleem/internal/platform/httpx"
)

// Handler wires the attendance confirmation endpoint.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers attendance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/confirm", h.handleConfirm)
}

type confirmForm struct {
	CourseID int64  `json:"course_id" validate:"required"`
	Method   string `json:"method" validate:"omitempty,oneof=self_confirm code qr"`
	Note     string `json:"note" validate:"max=255"`
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	user := accounts.UserFromContext(r.Context())
	if user == nil || user.IndividualID == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "Your account is not linked to an individual profile.")
		return
	}
	var in confirmForm
	if err := httpx.DecodeJSON(r, &in); err != nil || h.validator.Struct(in) != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "A course_id is required.")
		return
	}
	result, err := h.service.Confirm(r.Context(), in.CourseID, *user.IndividualID, Method(in.Method), in.Note)
	if err != nil {
		h.respondError(w, err)
		return
	}
	status := http.StatusCreated
	if result.AlreadyDone {
		status = http.StatusOK
	}
	httpx.JSON(w, status, result)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "No enrollment found for this course.")
	case errors.Is(err, ErrCourseNotEnded):
		httpx.Problem(w, http.StatusConflict, "Course In Progress", "Attendance can be confirmed only after the course ends.")
	case errors.Is(err, ErrNotAccepted):
		httpx.Problem(w, http.StatusConflict, "Not Accepted", "Only accepted enrollments can confirm attendance.")
	default:
		h.logger.Error("attendance request failed", "error", err)
		httpx.RespondError(w, err)
	}
}
