package regions

import (
	"errors"
	"time"
)

// Region is a geographic administration area, e.g. HAIL or RIYADH.
type Region struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrNotFound  = errors.New("regions: not found")
	ErrDuplicate = errors.New("regions: name or code already exists")
)
