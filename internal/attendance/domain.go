package attendance

import (
	"errors"
	"time"
)

// Method tells how attendance was confirmed.
type Method string

const (
	MethodSelfConfirm Method = "self_confirm"
	MethodCode        Method = "code"
	MethodQR          Method = "qr"
)

func (m Method) Valid() bool {
	switch m {
	case MethodSelfConfirm, MethodCode, MethodQR:
		return true
	}
	return false
}

// Confirmation records that the participant attended. One per enrollment.
type Confirmation struct {
	ID               int64     `json:"id"`
	EnrollmentID     int64     `json:"enrollment_id"`
	Method           Method    `json:"method"`
	ConfirmedAt      time.Time `json:"confirmed_at"`
	Note             string    `json:"note,omitempty"`
	ConfirmationCode string    `json:"confirmation_code,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

var (
	ErrNotFound       = errors.New("attendance: not found")
	ErrCourseNotEnded = errors.New("attendance: course has not ended yet")
	ErrNotAccepted    = errors.New("attendance: enrollment is not accepted")
	ErrDuplicate      = errors.New("attendance: already confirmed")
)
