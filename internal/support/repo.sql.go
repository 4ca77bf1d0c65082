package support

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

const ticketColumns = `
	id, created_by, region_id, title, description, category, priority, status,
	assigned_to, escalation_level, created_at, updated_at`

func (r *PGRepository) CreateTicket(ctx context.Context, ticket Ticket) (Ticket, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO support_tickets (created_by, region_id, title, description,
			category, priority, status, escalation_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'open', 0, NOW(), NOW())
		RETURNING id`,
		ticket.CreatedBy, ticket.RegionID, ticket.Title, ticket.Description,
		string(ticket.Category), string(ticket.Priority)).Scan(&id)
	if err != nil {
		return Ticket{}, err
	}
	return r.GetTicket(ctx, id)
}

func (r *PGRepository) GetTicket(ctx context.Context, id int64) (Ticket, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM support_tickets WHERE id = $1`, id)
	return scanTicket(row)
}

func (r *PGRepository) ListTickets(ctx context.Context, filter TicketFilter) ([]Ticket, int64, error) {
	where := ` WHERE TRUE`
	args := []any{}
	add := func(clause string, value any) {
		args = append(args, value)
		where += ` AND ` + clause + ` $` + strconv.Itoa(len(args))
	}
	if filter.CreatedBy != 0 {
		add(`created_by =`, filter.CreatedBy)
	}
	if filter.AssignedTo != 0 {
		add(`assigned_to =`, filter.AssignedTo)
	}
	if filter.Status != "" {
		add(`status =`, string(filter.Status))
	}
	if filter.Category != "" {
		add(`category =`, string(filter.Category))
	}
	if filter.Priority != "" {
		add(`priority =`, string(filter.Priority))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM support_tickets`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+ticketColumns+` FROM support_tickets`+where+`
		ORDER BY updated_at DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var tickets []Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		tickets = append(tickets, ticket)
	}
	return tickets, total, rows.Err()
}

func (r *PGRepository) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE support_tickets SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) SetAssignee(ctx context.Context, id int64, userID *int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE support_tickets SET assigned_to = $2, updated_at = NOW() WHERE id = $1`,
		id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) Escalate(ctx context.Context, id int64) (int, error) {
	var level int
	err := r.pool.QueryRow(ctx, `
		UPDATE support_tickets
		SET escalation_level = escalation_level + 1, status = 'escalated', updated_at = NOW()
		WHERE id = $1
		RETURNING escalation_level`, id).Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return level, err
}

func (r *PGRepository) AddMessage(ctx context.Context, msg Message) (Message, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO ticket_messages (ticket_id, author_id, body, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at`,
		msg.TicketID, msg.AuthorID, msg.Body).Scan(&msg.ID, &msg.CreatedAt)
	return msg, err
}

func (r *PGRepository) ListMessages(ctx context.Context, ticketID int64) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, ticket_id, author_id, body, created_at
		FROM ticket_messages WHERE ticket_id = $1 ORDER BY created_at`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.TicketID, &msg.AuthorID, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *PGRepository) AddAttachment(ctx context.Context, att Attachment) (Attachment, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO ticket_attachments (ticket_id, uploaded_by, file_name, file_path, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`,
		att.TicketID, att.UploadedBy, att.FileName, att.FilePath).
		Scan(&att.ID, &att.CreatedAt)
	return att, err
}

func (r *PGRepository) ListAttachments(ctx context.Context, ticketID int64) ([]Attachment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, ticket_id, uploaded_by, file_name, file_path, created_at
		FROM ticket_attachments WHERE ticket_id = $1 ORDER BY created_at`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attachments []Attachment
	for rows.Next() {
		var att Attachment
		if err := rows.Scan(&att.ID, &att.TicketID, &att.UploadedBy, &att.FileName, &att.FilePath, &att.CreatedAt); err != nil {
			return nil, err
		}
		attachments = append(attachments, att)
	}
	return attachments, rows.Err()
}

func (r *PGRepository) CountTicketsByStatus(ctx context.Context) (map[Status]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM support_tickets GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

func scanTicket(row pgx.Row) (Ticket, error) {
	var t Ticket
	var category, priority, status string
	err := row.Scan(&t.ID, &t.CreatedBy, &t.RegionID, &t.Title, &t.Description,
		&category, &priority, &status, &t.AssignedTo, &t.EscalationLevel,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Ticket{}, ErrNotFound
	}
	if err != nil {
		return Ticket{}, err
	}
	t.Category = Category(category)
	t.Priority = Priority(priority)
	t.Status = Status(status)
	return t, nil
}
