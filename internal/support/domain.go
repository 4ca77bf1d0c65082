package support

import (
	"errors"
	"time"
)

// Priority orders tickets in the queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Status is the ticket lifecycle state.
type Status string

const (
	StatusOpen        Status = "open"
	StatusInProgress  Status = "in_progress"
	StatusWaitingUser Status = "waiting_user"
	StatusEscalated   Status = "escalated"
	StatusResolved    Status = "resolved"
	StatusClosed      Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusWaitingUser, StatusEscalated, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Terminal reports whether no further work is expected on the ticket.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusClosed
}

// Category routes the ticket to the right staff.
type Category string

const (
	CategoryAccount       Category = "account"
	CategoryCourses       Category = "courses"
	CategoryCertificates  Category = "certificates"
	CategoryOrganizations Category = "organizations"
	CategoryTechnical     Category = "technical"
	CategoryOther         Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryAccount, CategoryCourses, CategoryCertificates, CategoryOrganizations, CategoryTechnical, CategoryOther:
		return true
	}
	return false
}

// Ticket is one support case.
type Ticket struct {
	ID              int64     `json:"id"`
	CreatedBy       int64     `json:"created_by"`
	RegionID        *int64    `json:"region_id,omitempty"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Category        Category  `json:"category"`
	Priority        Priority  `json:"priority"`
	Status          Status    `json:"status"`
	AssignedTo      *int64    `json:"assigned_to,omitempty"`
	EscalationLevel int       `json:"escalation_level"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Message is one entry in a ticket's thread.
type Message struct {
	ID        int64     `json:"id"`
	TicketID  int64     `json:"ticket_id"`
	AuthorID  int64     `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment stores file metadata only; the bytes live elsewhere.
type Attachment struct {
	ID         int64     `json:"id"`
	TicketID   int64     `json:"ticket_id"`
	UploadedBy int64     `json:"uploaded_by"`
	FileName   string    `json:"file_name"`
	FilePath   string    `json:"file_path"`
	CreatedAt  time.Time `json:"created_at"`
}

var (
	ErrNotFound          = errors.New("support: not found")
	ErrTicketTerminal    = errors.New("support: ticket is closed")
	ErrInvalidTransition = errors.New("support: invalid status transition")
)
