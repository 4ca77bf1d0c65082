package organizations

import (
	"context"
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

// Handler wires HTTP endpoints for the branch approval workflow.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers branch administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleDetail)
	r.Post("/{id}/approve", h.handleApprove)
	r.Post("/{id}/reject", h.handleReject)
	r.Post("/{id}/suspend", h.handleSuspend)
	r.Get("/{id}/roster", h.handleRoster)
}

// MountPublicRoutes registers the unauthenticated branch registration
// endpoint, served from the auth surface.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/branch", h.handleRegisterBranch)
}

type decisionForm struct {
	Notes string `json:"notes" validate:"max=2000"`
}

type registerBranchForm struct {
	OrganizationName string `json:"organization_name" validate:"required,max=200"`
	NationalID       string `json:"national_id" validate:"required,max=30"`
	RegionID         int64  `json:"region_id" validate:"required"`
	BranchName       string `json:"branch_name" validate:"required,max=200"`
	Address          string `json:"address" validate:"required,max=500"`
	Phone            string `json:"phone" validate:"required,max=20"`
	Notes            string `json:"notes" validate:"max=2000"`
}

func (h *Handler) handleRegisterBranch(w http.ResponseWriter, r *http.Request) {
	var in registerBranchForm
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "Request body is not valid JSON.")
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Organization, region, branch name, address and phone are required.")
		return
	}
	branch, err := h.service.RegisterBranch(r.Context(), RegisterBranchInput{
		OrganizationName: in.OrganizationName,
		NationalID:       in.NationalID,
		RegionID:         in.RegionID,
		BranchName:       in.BranchName,
		Address:          in.Address,
		Phone:            in.Phone,
		Notes:            in.Notes,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"message": "Branch registration received and awaiting approval.",
		"branch":  branch,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := BranchFilter{Status: BranchStatus(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("region"); raw != "" {
		filter.RegionID, _ = strconv.ParseInt(raw, 10, 64)
	}
	branches, err := h.service.ListBranches(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"branches": branches})
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	branch, err := h.service.GetBranch(r.Context(), pathID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, branch)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Approve)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Reject)
}

type decideFunc func(ctx context.Context, actor iam.Actor, branchID int64, notes string) (OrganizationBranch, error)

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, apply decideFunc) {
	var in decisionForm
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &in); err != nil || h.validator.Struct(in) != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "Decision notes must be at most 2000 characters.")
			return
		}
	}
	branch, err := apply(r.Context(), accounts.ActorFromRequest(r), pathID(r), in.Notes)
	if errors.Is(err, ErrAlreadyDecided) {
		httpx.JSON(w, http.StatusOK, map[string]any{
			"message": "This branch has already been decided.",
			"branch":  branch,
		})
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, branch)
}

func (h *Handler) handleSuspend(w http.ResponseWriter, r *http.Request) {
	branch, err := h.service.Suspend(r.Context(), accounts.ActorFromRequest(r), pathID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, branch)
}

func (h *Handler) handleRoster(w http.ResponseWriter, r *http.Request) {
	reps, err := h.service.Roster(r.Context(), pathID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"representatives": reps})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "Organization branch not found.")
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "A branch for this organization already exists in the region.")
	default:
		h.logger.Error("organizations request failed", "error", err)
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}
