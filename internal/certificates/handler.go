package certificates

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taleem-platform/taleem/internal/accounts"
	"github.com/taleem-platform/taleem/internal/courses"
	"github.com/taleem-platform/taleem/internal/platform/httpx"
)

// Enrollments is the slice of the course module the issue endpoint needs.
type Enrollments interface {
	GetEnrollment(ctx context.Context, id int64) (courses.Enrollment, error)
}

// Handler wires HTTP endpoints for certificates.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	enrollments Enrollments
	validator   *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, enrollments Enrollments) *Handler {
	return &Handler{logger: logger, service: service, enrollments: enrollments, validator: validator.New()}
}

// MountRoutes registers the authenticated certificate routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/issue", h.handleIssue)
	r.Get("/{id}", h.handleDetail)
	r.Get("/{id}/download", h.handleDownload)
}

// MountVerifyRoutes registers the public token lookup, served without
// authentication.
func (h *Handler) MountVerifyRoutes(r chi.Router) {
	r.Get("/{token}", h.handleVerify)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user := accounts.UserFromContext(r.Context())
	if r.URL.Query().Get("all") == "1" || user == nil || user.IndividualID == nil {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		certs, total, err := h.service.List(r.Context(), limit, offset)
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"certificates": certs, "total": total})
		return
	}
	certs, err := h.service.Mine(r.Context(), *user.IndividualID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"certificates": certs})
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	cert, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	verification, err := h.service.Verification(r.Context(), id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"certificate":  cert,
		"verification": verification,
	})
}

type issueForm struct {
	EnrollmentID int64  `json:"enrollment_id" validate:"required"`
	TemplateID   *int64 `json:"template_id"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var in issueForm
	if err := httpx.DecodeJSON(r, &in); err != nil || h.validator.Struct(in) != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "An enrollment_id is required.")
		return
	}
	enrollment, err := h.enrollments.GetEnrollment(r.Context(), in.EnrollmentID)
	if err != nil {
		if errors.Is(err, courses.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "Enrollment not found.")
			return
		}
		h.respondError(w, err)
		return
	}
	var issuedBy *int64
	if user := accounts.UserFromContext(r.Context()); user != nil {
		issuedBy = &user.ID
	}
	cert, err := h.service.Issue(r.Context(), enrollment.ID, enrollment.IndividualID, issuedBy, in.TemplateID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, cert)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	pdf, cert, err := h.service.Download(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrRenderUnavailable) {
			httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "PDF downloads are not enabled on this server.")
			return
		}
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=certificate-"+cert.SerialNumber+".pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	view, err := h.service.VerifyByToken(r.Context(), token)
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "No certificate matches this verification code.")
	case errors.Is(err, ErrLookupDisabled):
		httpx.Problem(w, http.StatusForbidden, "Lookup Disabled", "Public verification is disabled for this certificate.")
	case err != nil:
		h.respondError(w, err)
	default:
		httpx.JSON(w, http.StatusOK, map[string]any{"valid": true, "certificate": view})
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "Certificate not found.")
	default:
		h.logger.Error("certificates request failed", "error", err)
		httpx.RespondError(w, err)
	}
}
