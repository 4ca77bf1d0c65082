package support

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taleem-platform/taleem/internal/accounts"
	"github.com/taleem-platform/taleem/internal/platform/httpx"
)

// Handler wires HTTP endpoints for support tickets.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers support routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/create", h.handleCreate)
	r.Get("/{id}", h.handleDetail)
	r.Post("/{id}/reply", h.handleReply)
	r.Post("/{id}/assign", h.handleAssign)
	r.Post("/{id}/status", h.handleStatus)
	r.Post("/{id}/escalate", h.handleEscalate)
}

type createForm struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"required"`
	Category    string `json:"category" validate:"omitempty,oneof=account courses certificates organizations technical other"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	RegionID    *int64 `json:"region_id"`
}

type replyForm struct {
	Body string `json:"body" validate:"required"`
}

type assignForm struct {
	UserID *int64 `json:"user_id"`
}

type statusForm struct {
	Status string `json:"status" validate:"required,oneof=open in_progress waiting_user escalated resolved closed"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := TicketFilter{
		Status:   Status(q.Get("status")),
		Category: Category(q.Get("category")),
		Priority: Priority(q.Get("priority")),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	if q.Get("all") != "1" {
		if user := accounts.UserFromContext(r.Context()); user != nil {
			filter.CreatedBy = user.ID
		}
	}
	tickets, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tickets": tickets, "total": total})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user := accounts.UserFromContext(r.Context())
	if user == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var in createForm
	if err := httpx.DecodeJSON(r, &in); err != nil || h.validator.Struct(in) != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Title and description are required.")
		return
	}
	regionID := in.RegionID
	if regionID == nil {
		regionID = user.RegionID
	}
	ticket, err := h.service.Create(r.Context(), user.ID, CreateTicketInput{
		Title:       in.Title,
		Description: in.Description,
		Category:    Category(in.Category),
		Priority:    Priority(in.Priority),
		RegionID:    regionID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ticket)
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	ticket, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	messages, attachments, err := h.service.Thread(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"ticket":      ticket,
		"messages":    messages,
		"attachments": attachments,
	})
}

func (h *Handler) handleReply(w http.ResponseWriter, r *http.Request) {
	user := accounts.UserFromContext(r.Context())
	if user == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var in replyForm
	if err := httpx.DecodeJSON(r, &in); err != nil || h.validator.Struct(in) != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "A message body is required.")
		return
	}
	msg, err := h.service.Reply(r.Context(), pathID(r), user.ID, in.Body)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, msg)
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var in assignForm
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "Request body is not valid JSON.")
		return
	}
	ticket, err := h.service.Assign(r.Context(), pathID(r), in.UserID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	var in statusForm
	if err := httpx.DecodeJSON(r, &in); err != nil || h.validator.Struct(in) != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "A valid status is required.")
		return
	}
	ticket, err := h.service.Transition(r.Context(), pathID(r), Status(in.Status))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleEscalate(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.service.Escalate(r.Context(), pathID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ticket)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "Ticket not found.")
	case errors.Is(err, ErrTicketTerminal):
		httpx.Problem(w, http.StatusConflict, "Ticket Closed", "This ticket is closed and cannot be changed.")
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", "The ticket cannot move to the requested status.")
	default:
		h.logger.Error("support request failed", "error", err)
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}
