package accounts

import (
	"context"

	"github.com/taleem-platform/taleem/internal/iam"
)

// UserFilter narrows user listings for administration screens.
type UserFilter struct {
	Query  string
	Role   iam.Role
	Limit  int
	Offset int
}

// Repository defines persistence operations for accounts.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]User, int64, error)
	CountUsersByRole(ctx context.Context) (map[iam.Role]int64, error)
	UpdateUser(ctx context.Context, user *User) error
	ActivateUser(ctx context.Context, email string) error

	GetIndividualProfile(ctx context.Context, userID int64) (*IndividualProfile, error)
	GetOrganizationProfile(ctx context.Context, userID int64) (*OrganizationProfile, error)

	CreateOTP(ctx context.Context, otp EmailOTP) (EmailOTP, error)
	LatestOTP(ctx context.Context, email string, purpose OTPPurpose) (*EmailOTP, error)
	IncrementOTPAttempts(ctx context.Context, id int64) (int, error)
	MarkOTPUsed(ctx context.Context, id int64) error

	// WithTx groups registration writes so a user row never exists
	// without its profile and activation code.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the transactional registration writes.
type TxRepository interface {
	CreateUser(ctx context.Context, user User) (int64, error)
	CreateIndividualProfile(ctx context.Context, profile IndividualProfile) (int64, error)
	CreateOrganizationProfile(ctx context.Context, profile OrganizationProfile) (int64, error)
	CreateOTP(ctx context.Context, otp EmailOTP) (EmailOTP, error)
}
