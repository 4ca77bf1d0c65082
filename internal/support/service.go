package support

import (
	"context"
	"log/slog"
)

// transitions lists the reachable statuses from each state. Closed is final.
var transitions = map[Status][]Status{
	StatusOpen:        {StatusInProgress, StatusWaitingUser, StatusEscalated, StatusResolved, StatusClosed},
	StatusInProgress:  {StatusWaitingUser, StatusEscalated, StatusResolved, StatusClosed},
	StatusWaitingUser: {StatusInProgress, StatusEscalated, StatusResolved, StatusClosed},
	StatusEscalated:   {StatusInProgress, StatusResolved, StatusClosed},
	StatusResolved:    {StatusInProgress, StatusClosed},
	StatusClosed:      {},
}

func canTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CreateTicketInput carries the fields a user submits with a new ticket.
type CreateTicketInput struct {
	Title       string
	Description string
	Category    Category
	Priority    Priority
	RegionID    *int64
}

// Service owns the ticket lifecycle.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Create opens a ticket; the description doubles as the first thread message.
func (s *Service) Create(ctx context.Context, createdBy int64, in CreateTicketInput) (Ticket, error) {
	category := in.Category
	if !category.Valid() {
		category = CategoryTechnical
	}
	priority := in.Priority
	if !priority.Valid() {
		priority = PriorityMedium
	}
	ticket, err := s.repo.CreateTicket(ctx, Ticket{
		CreatedBy:   createdBy,
		RegionID:    in.RegionID,
		Title:       in.Title,
		Description: in.Description,
		Category:    category,
		Priority:    priority,
	})
	if err != nil {
		return Ticket{}, err
	}
	if _, err := s.repo.AddMessage(ctx, Message{
		TicketID: ticket.ID,
		AuthorID: createdBy,
		Body:     in.Description,
	}); err != nil {
		s.logger.Error("initial ticket message write failed", "ticket_id", ticket.ID, "error", err)
	}
	return ticket, nil
}

// Reply appends a message to the thread. When the ticket creator replies to a
// ticket waiting on them, the ticket moves back to in_progress.
func (s *Service) Reply(ctx context.Context, ticketID, authorID int64, body string) (Message, error) {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return Message{}, err
	}
	if ticket.Status.Terminal() {
		return Message{}, ErrTicketTerminal
	}
	msg, err := s.repo.AddMessage(ctx, Message{TicketID: ticketID, AuthorID: authorID, Body: body})
	if err != nil {
		return Message{}, err
	}
	if ticket.Status == StatusWaitingUser && authorID == ticket.CreatedBy {
		if err := s.repo.SetStatus(ctx, ticketID, StatusInProgress); err != nil {
			return Message{}, err
		}
	}
	return msg, nil
}

// Assign hands the ticket to a staff member and starts work on fresh tickets.
func (s *Service) Assign(ctx context.Context, ticketID int64, userID *int64) (Ticket, error) {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	if ticket.Status.Terminal() {
		return Ticket{}, ErrTicketTerminal
	}
	if err := s.repo.SetAssignee(ctx, ticketID, userID); err != nil {
		return Ticket{}, err
	}
	if ticket.Status == StatusOpen && userID != nil {
		if err := s.repo.SetStatus(ctx, ticketID, StatusInProgress); err != nil {
			return Ticket{}, err
		}
	}
	return s.repo.GetTicket(ctx, ticketID)
}

// Transition moves the ticket to a new status, refusing jumps the lifecycle
// does not allow.
func (s *Service) Transition(ctx context.Context, ticketID int64, to Status) (Ticket, error) {
	if !to.Valid() {
		return Ticket{}, ErrInvalidTransition
	}
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	if ticket.Status == to {
		return ticket, nil
	}
	if !canTransition(ticket.Status, to) {
		return ticket, ErrInvalidTransition
	}
	if err := s.repo.SetStatus(ctx, ticketID, to); err != nil {
		return Ticket{}, err
	}
	return s.repo.GetTicket(ctx, ticketID)
}

// Escalate bumps the escalation level and flags the ticket.
func (s *Service) Escalate(ctx context.Context, ticketID int64) (Ticket, error) {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	if ticket.Status.Terminal() {
		return Ticket{}, ErrTicketTerminal
	}
	if _, err := s.repo.Escalate(ctx, ticketID); err != nil {
		return Ticket{}, err
	}
	return s.repo.GetTicket(ctx, ticketID)
}

func (s *Service) Get(ctx context.Context, id int64) (Ticket, error) {
	return s.repo.GetTicket(ctx, id)
}

func (s *Service) List(ctx context.Context, filter TicketFilter) ([]Ticket, int64, error) {
	return s.repo.ListTickets(ctx, filter)
}

func (s *Service) Thread(ctx context.Context, ticketID int64) ([]Message, []Attachment, error) {
	messages, err := s.repo.ListMessages(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	attachments, err := s.repo.ListAttachments(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	return messages, attachments, nil
}

// AttachFile records attachment metadata on a live ticket.
func (s *Service) AttachFile(ctx context.Context, ticketID, uploadedBy int64, fileName, filePath string) (Attachment, error) {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return Attachment{}, err
	}
	if ticket.Status.Terminal() {
		return Attachment{}, ErrTicketTerminal
	}
	return s.repo.AddAttachment(ctx, Attachment{
		TicketID:   ticketID,
		UploadedBy: uploadedBy,
		FileName:   fileName,
		FilePath:   filePath,
	})
}

func (s *Service) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	return s.repo.CountTicketsByStatus(ctx)
}
