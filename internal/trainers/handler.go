package trainers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taleem-platform/taleem/internal/accounts"
	"github.com/taleem-platform/taleem/internal/iam"
	"github.com/taleem-platform/taleem/internal/platform/httpx"
)

// Handler wires HTTP endpoints for trainer management.
type Handler struct {
	logger    *slog.Logger
	repo      *Repository
	accounts  *accounts.Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, repo *Repository, accountsSvc *accounts.Service) *Handler {
	return &Handler{logger: logger, repo: repo, accounts: accountsSvc, validator: validator.New()}
}

// MountRoutes registers trainer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/assign", h.handleAssign)
}

type assignForm struct {
	UserID int64 `json:"user_id" validate:"required"`
	Remove bool  `json:"remove"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") != "0"
	trainers, err := h.repo.List(r.Context(), activeOnly)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"trainers": trainers})
}

// handleAssign turns a user into a trainer, or removes the assignment. The
// profile row follows the user's role.
func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var in assignForm
	if err := httpx.DecodeJSON(r, &in); err != nil || h.validator.Struct(in) != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "A user_id is required.")
		return
	}
	user, err := h.accounts.GetUser(r.Context(), in.UserID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if in.Remove {
		if user.Role == iam.RoleTrainer {
			user.Role = iam.RoleIndividual
			if err := h.accounts.UpdateUser(r.Context(), user); err != nil {
				h.respondError(w, err)
				return
			}
		}
		if err := h.repo.Remove(r.Context(), in.UserID); err != nil {
			h.respondError(w, err)
			return
		}
		httpx.Info(w, "Trainer assignment removed.")
		return
	}
	if user.Role != iam.RoleTrainer {
		user.Role = iam.RoleTrainer
		if err := h.accounts.UpdateUser(r.Context(), user); err != nil {
			h.respondError(w, err)
			return
		}
	}
	profile, err := h.repo.Ensure(r.Context(), in.UserID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, accounts.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "Trainer not found.")
	default:
		h.logger.Error("trainers request failed", "error", err)
		httpx.RespondError(w, err)
	}
}
