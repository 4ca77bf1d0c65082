package accounts

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/taleem-platform/taleem/internal/iam"
	"github.com/taleem-platform/taleem/internal/platform/httpx"
	"github.com/taleem-platform/taleem/internal/shared"
)

// OTPMailer delivers verification codes. The production implementation
// enqueues the email on the job queue; handlers never wait on SMTP.
type OTPMailer interface {
	SendVerifyOTP(ctx context.Context, email, code string) error
	SendLoginOTP(ctx context.Context, email, code string) error
}

// AccountType selects the registration path.
type AccountType string

const (
	AccountIndividual   AccountType = "individual"
	AccountOrganization AccountType = "org"
)

// RegisterInput carries the public registration form.
type RegisterInput struct {
	AccountType AccountType `validate:"required,oneof=individual org"`
	Email       string      `validate:"required,email"`
	Phone       string      `validate:"required,intlphone"`
	Password    string      `validate:"required,min=8"`

	// individual path
	FullName     string `validate:"required_if=AccountType individual"`
	NationalID   string `validate:"omitempty,len=10,numeric"`
	RegionID     int64  `validate:"required"`
	IsAffiliated bool
	OrgBranchID  *int64

	// org path
	OrganizationName   string `validate:"required_if=AccountType org"`
	RepresentativeName string `validate:"required_if=AccountType org"`
	Latitude           *float64
	Longitude          *float64
	Landmark           string
}

// Service implements registration, activation, and the two-step login.
type Service struct {
	repo   Repository
	mailer OTPMailer
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, mailer OTPMailer, logger *slog.Logger) *Service {
	return &Service{repo: repo, mailer: mailer, logger: logger, now: time.Now}
}

// Register creates an inactive account with its profile and emails the
// activation code. The caller validates the input first.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if in.AccountType == AccountIndividual {
		if in.NationalID == "" {
			return nil, fmt.Errorf("accounts: register: %w", httpx.ErrValidation)
		}
		if in.IsAffiliated && in.OrgBranchID == nil {
			return nil, fmt.Errorf("accounts: register: %w", httpx.ErrValidation)
		}
	}
	if in.AccountType == AccountOrganization && (in.Latitude == nil || in.Longitude == nil) {
		return nil, fmt.Errorf("accounts: register: %w", httpx.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("accounts: hash password: %w", err)
	}

	role := iam.RoleIndividual
	if in.AccountType == AccountOrganization {
		role = iam.RoleOrgRep
	}
	user := User{
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Phone:        strings.TrimSpace(in.Phone),
		RegionID:     &in.RegionID,
		IsActive:     false,
	}
	if in.AccountType == AccountIndividual && in.IsAffiliated {
		user.OrgBranchID = in.OrgBranchID
	}

	code := generateOTPCode()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateUser(ctx, user)
		if err != nil {
			return err
		}
		user.ID = id
		if in.AccountType == AccountIndividual {
			_, err = tx.CreateIndividualProfile(ctx, IndividualProfile{
				UserID:       id,
				FullName:     strings.TrimSpace(in.FullName),
				NationalID:   in.NationalID,
				IsAffiliated: in.IsAffiliated,
				OrgBranchID:  in.OrgBranchID,
			})
		} else {
			_, err = tx.CreateOrganizationProfile(ctx, OrganizationProfile{
				UserID:             id,
				OrganizationName:   strings.TrimSpace(in.OrganizationName),
				RepresentativeName: strings.TrimSpace(in.RepresentativeName),
				Latitude:           in.Latitude,
				Longitude:          in.Longitude,
				Landmark:           strings.TrimSpace(in.Landmark),
			})
		}
		if err != nil {
			return err
		}
		_, err = tx.CreateOTP(ctx, EmailOTP{
			Email:     email,
			Purpose:   PurposeVerifyEmail,
			Code:      code,
			ExpiresAt: s.now().Add(otpTTL),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.mailer.SendVerifyOTP(ctx, email, code); err != nil {
		s.logger.Error("queue verify email failed", "email", email, "error", err)
	}
	return &user, nil
}

// VerifyEmail consumes an activation code and activates the account.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) error {
	if err := s.consumeOTP(ctx, email, PurposeVerifyEmail, code); err != nil {
		return err
	}
	return s.repo.ActivateUser(ctx, email)
}

// ResendVerifyOTP issues a fresh activation code for a pending account.
// Session-level resend throttling is enforced by the handler.
func (s *Service) ResendVerifyOTP(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.IsActive {
		return ErrAlreadyActive
	}
	return s.issueOTP(ctx, user.Email, PurposeVerifyEmail, s.mailer.SendVerifyOTP)
}

// StartLogin checks credentials and emails the login code. The session keeps
// the pending user until CompleteLogin verifies the code.
func (s *Service) StartLogin(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return user, ErrAccountInactive
	}
	if !PortalRole(user.Role) {
		return nil, ErrRoleNotAllowed
	}
	if err := s.issueOTP(ctx, user.Email, PurposeLogin, s.mailer.SendLoginOTP); err != nil {
		return nil, err
	}
	return user, nil
}

// CompleteLogin consumes the login code and returns the authenticated user.
func (s *Service) CompleteLogin(ctx context.Context, userID int64, email, code string) (*User, error) {
	if err := s.consumeOTP(ctx, email, PurposeLogin, code); err != nil {
		return nil, err
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(user.Email, email) || !PortalRole(user.Role) {
		return nil, ErrRoleNotAllowed
	}
	return user, nil
}

// ResendLoginOTP issues a fresh login code for a pending login.
func (s *Service) ResendLoginOTP(ctx context.Context, userID int64, email string) error {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(user.Email, email) || !PortalRole(user.Role) {
		return ErrRoleNotAllowed
	}
	return s.issueOTP(ctx, user.Email, PurposeLogin, s.mailer.SendLoginOTP)
}

// DisplayName resolves what to greet the user with after login.
func (s *Service) DisplayName(ctx context.Context, user *User) string {
	switch user.Role {
	case iam.RoleIndividual:
		if p, err := s.repo.GetIndividualProfile(ctx, user.ID); err == nil && p.FullName != "" {
			return p.FullName
		}
	case iam.RoleOrgRep:
		if p, err := s.repo.GetOrganizationProfile(ctx, user.ID); err == nil && p.RepresentativeName != "" {
			return p.RepresentativeName
		}
	}
	return user.Email
}

// GetUser fetches one account.
func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetUser(ctx, id)
}

// FindByEmail fetches one account by email.
func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.FindByEmail(ctx, email)
}

// ListUsers pages accounts for administration screens.
func (s *Service) ListUsers(ctx context.Context, filter UserFilter) ([]User, int64, error) {
	return s.repo.ListUsers(ctx, filter)
}

// CountUsersByRole supports the sysadmin dashboard.
func (s *Service) CountUsersByRole(ctx context.Context) (map[iam.Role]int64, error) {
	return s.repo.CountUsersByRole(ctx)
}

// UpdateUser applies administrative edits to an account.
func (s *Service) UpdateUser(ctx context.Context, user *User) error {
	if !user.Role.Valid() {
		return iam.ErrInvalidRole
	}
	return s.repo.UpdateUser(ctx, user)
}

func (s *Service) issueOTP(ctx context.Context, email string, purpose OTPPurpose, send func(context.Context, string, string) error) error {
	code := generateOTPCode()
	_, err := s.repo.CreateOTP(ctx, EmailOTP{
		Email:     email,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: s.now().Add(otpTTL),
	})
	if err != nil {
		return fmt.Errorf("accounts: issue otp: %w", err)
	}
	if err := send(ctx, email, code); err != nil {
		s.logger.Error("queue otp email failed", "email", email, "purpose", purpose, "error", err)
	}
	return nil
}

// consumeOTP checks the latest unused code of the given purpose. Every check
// counts as an attempt; a code that collects too many attempts dies even if
// the right code arrives later.
func (s *Service) consumeOTP(ctx context.Context, email string, purpose OTPPurpose, code string) error {
	otp, err := s.repo.LatestOTP(ctx, email, purpose)
	if err != nil {
		return err
	}
	if otp == nil {
		return ErrOTPInvalid
	}
	if otp.Expired(s.now()) {
		return ErrOTPExpired
	}
	attempts, err := s.repo.IncrementOTPAttempts(ctx, otp.ID)
	if err != nil {
		return err
	}
	if attempts > otpMaxAttempts {
		return ErrOTPAttempts
	}
	if otp.Code != strings.TrimSpace(code) {
		return ErrOTPInvalid
	}
	return s.repo.MarkOTPUsed(ctx, otp.ID)
}

// generateOTPCode returns a 6-digit numeric code.
func generateOTPCode() string {
	const digits = "0123456789"
	buf := make([]byte, 6)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			panic(err)
		}
		buf[i] = digits[n.Int64()]
	}
	return string(buf)
}
