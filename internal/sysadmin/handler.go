package sysadmin

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taleem-platform/taleem/internal/accounts"
	"github.com/taleem-platform/taleem/internal/iam"
	"github.com/taleem-platform/taleem/internal/platform/httpx"
)

// Handler wires the platform administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers the admin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dashboard", h.handleDashboard)
	r.Get("/users", h.handleUsers)
	r.Get("/users/{id}", h.handleUserDetail)
	r.Post("/users/{id}/edit", h.handleUserEdit)
	r.Post("/users/{id}/perm", h.handleUserPerm)
	r.Get("/roles", h.handleRoles)
	r.Post("/roles/toggle", h.handleRoleToggle)
	r.Get("/requests", h.handleRequests)
	r.Post("/requests/{id}/decide", h.handleRequestDecide)
	r.Get("/audit", h.handleAudit)
}

type editUserForm struct {
	Role     *string `json:"role" validate:"omitempty,oneof=super_admin region_manager supervisor coordinator trainer org_rep individual"`
	Phone    *string `json:"phone" validate:"omitempty,max=32"`
	RegionID *int64  `json:"region_id"`
	IsActive *bool   `json:"is_active"`
}

type permForm struct {
	PermissionID int64 `json:"permission_id" validate:"required"`
	Allow        *bool `json:"allow"`
	Remove       bool  `json:"remove"`
}

type rolePolicyForm struct {
	Role         string `json:"role" validate:"required"`
	PermissionID int64  `json:"permission_id" validate:"required"`
	Allow        *bool  `json:"allow"`
	Remove       bool   `json:"remove"`
}

type decideForm struct {
	Approve *bool  `json:"approve" validate:"required"`
	Note    string `json:"note" validate:"omitempty,max=2000"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.Dashboard(r.Context()))
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := accounts.UserFilter{
		Query: q.Get("q"),
		Role:  iam.Role(q.Get("role")),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	users, total, err := h.service.Users(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": users, "total": total})
}

func (h *Handler) handleUserDetail(w http.ResponseWriter, r *http.Request) {
	user, overrides, err := h.service.UserDetail(r.Context(), pathID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user, "overrides": overrides})
}

func (h *Handler) handleUserEdit(w http.ResponseWriter, r *http.Request) {
	var in editUserForm
	if err := httpx.DecodeJSON(r, &in); err != nil || h.validator.Struct(in) != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "The edit payload is not valid.")
		return
	}
	input := UserEditInput{Phone: in.Phone, RegionID: in.RegionID, IsActive: in.IsActive}
	if in.Role != nil {
		role := iam.Role(*in.Role)
		input.Role = &role
	}
	user, err := h.service.EditUser(r.Context(), accounts.ActorFromRequest(r), pathID(r), input)
	if errors.Is(err, ErrNoChanges) {
		httpx.JSON(w, http.StatusOK, map[string]any{
			"message": "No changes to apply.",
			"user":    user,
		})
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) handleUserPerm(w http.ResponseWriter, r *http.Request) {
	var in permForm
	if err := httpx.DecodeJSON(r, &in); err != nil || h.validator.Struct(in) != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "A permission id is required.")
		return
	}
	actor := accounts.ActorFromRequest(r)
	userID := pathID(r)
	var err error
	switch {
	case in.Remove:
		err = h.service.RemoveOverride(r.Context(), actor, userID, in.PermissionID)
	case in.Allow != nil:
		err = h.service.SetOverride(r.Context(), actor, userID, in.PermissionID, *in.Allow)
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Either allow or remove must be set.")
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.Info(w, "Permission override updated.")
}

func (h *Handler) handleRoles(w http.ResponseWriter, r *http.Request) {
	permissions, policies, err := h.service.RoleMatrix(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"permissions": permissions,
		"policies":    policies,
	})
}

func (h *Handler) handleRoleToggle(w http.ResponseWriter, r *http.Request) {
	var in rolePolicyForm
	if err := httpx.DecodeJSON(r, &in); err != nil || h.validator.Struct(in) != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "A role and permission id are required.")
		return
	}
	actor := accounts.ActorFromRequest(r)
	role := iam.Role(in.Role)
	var err error
	switch {
	case in.Remove:
		err = h.service.RemoveRolePolicy(r.Context(), actor, role, in.PermissionID)
	case in.Allow != nil:
		err = h.service.SetRolePolicy(r.Context(), actor, role, in.PermissionID, *in.Allow)
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Either allow or remove must be set.")
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.Info(w, "Role policy updated.")
}

func (h *Handler) handleRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	requests, err := h.service.Requests(r.Context(), iam.RequestStatus(q.Get("status")), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (h *Handler) handleRequestDecide(w http.ResponseWriter, r *http.Request) {
	var in decideForm
	if err := httpx.DecodeJSON(r, &in); err != nil || h.validator.Struct(in) != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "An approve flag is required.")
		return
	}
	req, err := h.service.Decide(r.Context(), accounts.ActorFromRequest(r), pathID(r), *in.Approve, in.Note)
	if errors.Is(err, iam.ErrAlreadyDecided) {
		httpx.JSON(w, http.StatusOK, map[string]any{
			"message": "This request has already been decided.",
			"request": req,
		})
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := iam.AuditFilter{Query: q.Get("q")}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	events, err := h.service.AuditLog(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, accounts.ErrNotFound), errors.Is(err, iam.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "The requested record does not exist.")
	case errors.Is(err, iam.ErrInvalidRole):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Role", "The requested role is not recognized.")
	default:
		h.logger.Error("sysadmin request failed", "error", err)
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}
