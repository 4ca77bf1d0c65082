package support

import "context"

// TicketFilter narrows ticket listings.
type TicketFilter struct {
	CreatedBy  int64
	AssignedTo int64
	Status     Status
	Category   Category
	Priority   Priority
	Limit      int
	Offset     int
}

// Repository is the storage surface for tickets, messages and attachment
// metadata.
type Repository interface {
	CreateTicket(ctx context.Context, ticket Ticket) (Ticket, error)
	GetTicket(ctx context.Context, id int64) (Ticket, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]Ticket, int64, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	SetAssignee(ctx context.Context, id int64, userID *int64) error
	Escalate(ctx context.Context, id int64) (int, error)

	AddMessage(ctx context.Context, msg Message) (Message, error)
	ListMessages(ctx context.Context, ticketID int64) ([]Message, error)

	AddAttachment(ctx context.Context, att Attachment) (Attachment, error)
	ListAttachments(ctx context.Context, ticketID int64) ([]Attachment, error)

	CountTicketsByStatus(ctx context.Context) (map[Status]int64, error)
}
