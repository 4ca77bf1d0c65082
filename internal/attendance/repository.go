package attendance

import "context"

// Repository is the storage surface for attendance confirmations.
type Repository interface {
	// GetByEnrollment returns nil when the enrollment has no confirmation.
	GetByEnrollment(ctx context.Context, enrollmentID int64) (*Confirmation, error)
	Insert(ctx context.Context, c Confirmation) (Confirmation, error)
	CountConfirmations(ctx context.Context) (int64, error)
}
