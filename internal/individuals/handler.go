package individuals

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taleem-platform/taleem/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the individuals directory.
type Handler struct {
	logger    *slog.Logger
	repo      *Repository
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo, validator: validator.New()}
}

// MountRoutes registers directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/create", h.handleCreate)
	r.Get("/{id}", h.handleDetail)
	r.Post("/{id}/update", h.handleUpdate)
}

type individualForm struct {
	RegionID    *int64 `json:"region_id"`
	OrgBranchID *int64 `json:"org_branch_id"`
	FullName    string `json:"full_name" validate:"required,max=200"`
	NationalID  string `json:"national_id" validate:"max=30"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone" validate:"max=20"`
	EmployeeID  string `json:"employee_id" validate:"max=50"`
	IsActive    *bool  `json:"is_active"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{Query: q.Get("q")}
	filter.RegionID, _ = strconv.ParseInt(q.Get("region"), 10, 64)
	filter.OrgBranchID, _ = strconv.ParseInt(q.Get("branch"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	individuals, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"individuals": individuals, "total": total})
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	ind, err := h.repo.Get(r.Context(), pathID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ind)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	ind, err := h.repo.Create(r.Context(), Individual{
		RegionID:    in.RegionID,
		OrgBranchID: in.OrgBranchID,
		FullName:    in.FullName,
		NationalID:  in.NationalID,
		Email:       in.Email,
		Phone:       in.Phone,
		EmployeeID:  in.EmployeeID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ind)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	existing, err := h.repo.Get(r.Context(), pathID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	existing.RegionID = in.RegionID
	existing.OrgBranchID = in.OrgBranchID
	existing.FullName = in.FullName
	existing.NationalID = in.NationalID
	existing.Phone = in.Phone
	existing.EmployeeID = in.EmployeeID
	if in.IsActive != nil {
		existing.IsActive = *in.IsActive
	}
	updated, err := h.repo.Update(r.Context(), existing)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) decodeForm(w http.ResponseWriter, r *http.Request) (individualForm, bool) {
	var in individualForm
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "Request body is not valid JSON.")
		return in, false
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Full name and a valid email are required.")
		return in, false
	}
	return in, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "Individual not found.")
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "An individual with this email already exists.")
	default:
		h.logger.Error("individuals request failed", "error", err)
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}
