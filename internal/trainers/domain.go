package trainers

import (
	"errors"
	"time"
)

// TrainerProfile marks a user as a trainer. One profile per user.
type TrainerProfile struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	RegionID  *int64    `json:"region_id,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

var ErrNotFound = errors.New("trainers: not found")
