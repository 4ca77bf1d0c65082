package regions

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taleem-platform/taleem/internal/platform/httpx"
)

// Handler wires HTTP endpoints for region administration.
type Handler struct {
	logger    *slog.Logger
	repo      *Repository
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo, validator: validator.New()}
}

// MountRoutes registers region routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/create", h.handleCreate)
	r.Post("/{id}/update", h.handleUpdate)
	r.Post("/{id}/deactivate", h.handleDeactivate)
	r.Post("/{id}/activate", h.handleActivate)
}

type regionForm struct {
	Name string `json:"name" validate:"required,max=120"`
	Code string `json:"code" validate:"required,max=20,alphanum"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "1"
	regions, err := h.repo.List(r.Context(), activeOnly)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"regions": regions})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in regionForm
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "Request body is not valid JSON.")
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Name and code are required.")
		return
	}
	region, err := h.repo.Create(r.Context(), in.Name, in.Code)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, region)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	var in regionForm
	if err := httpx.DecodeJSON(r, &in); err != nil || h.validator.Struct(in) != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Name and code are required.")
		return
	}
	region, err := h.repo.Update(r.Context(), id, in.Name, in.Code)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, region)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.SetActive(r.Context(), pathID(r), false); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.Info(w, "Region deactivated.")
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.SetActive(r.Context(), pathID(r), true); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.Info(w, "Region activated.")
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "Region not found.")
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "A region with this name or code already exists.")
	default:
		h.logger.Error("regions request failed", "error", err)
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}
