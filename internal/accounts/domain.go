package accounts

import (
	"errors"
	"time"

	"github.com/taleem-platform/taleem/internal/iam"
)

// User is a portal account. Email is the login identifier; the optional
// scope references narrow what the account sees after login.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         iam.Role  `json:"role"`
	Phone        string    `json:"phone"`
	RegionID     *int64    `json:"region_id,omitempty"`
	OrgBranchID  *int64    `json:"org_branch_id,omitempty"`
	IndividualID *int64    `json:"individual_id,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IndividualProfile carries the registration data of a self-registered
// individual account.
type IndividualProfile struct {
	ID           int64
	UserID       int64
	FullName     string
	NationalID   string
	IsAffiliated bool
	OrgBranchID  *int64
}

// OrganizationProfile carries the registration data of an organization
// representative account.
type OrganizationProfile struct {
	ID                 int64
	UserID             int64
	OrganizationName   string
	RepresentativeName string
	Latitude           *float64
	Longitude          *float64
	Landmark           string
}

// OTPPurpose distinguishes what an emailed code unlocks.
type OTPPurpose string

const (
	PurposeLogin         OTPPurpose = "login"
	PurposeVerifyEmail   OTPPurpose = "verify_email"
	PurposeResetPassword OTPPurpose = "reset_password"
)

// EmailOTP is a single-use emailed verification code.
type EmailOTP struct {
	ID        int64
	Email     string
	Purpose   OTPPurpose
	Code      string
	ExpiresAt time.Time
	IsUsed    bool
	Attempts  int
	CreatedAt time.Time
}

// Expired reports whether the code's validity window has passed.
func (o EmailOTP) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

const (
	// OTP parameters shared by every purpose.
	otpTTL         = 10 * time.Minute
	otpMaxAttempts = 6

	// ResendCooldown is the minimum wait between consecutive OTP emails
	// for one session.
	ResendCooldown = 60 * time.Second
)

var (
	ErrEmailTaken      = errors.New("accounts: email already registered")
	ErrAccountInactive = errors.New("accounts: account not activated")
	ErrAlreadyActive   = errors.New("accounts: account already active")
	ErrRoleNotAllowed  = errors.New("accounts: role not allowed on the portal")
	ErrOTPInvalid      = errors.New("accounts: code invalid or already used")
	ErrOTPExpired      = errors.New("accounts: code expired")
	ErrOTPAttempts     = errors.New("accounts: too many attempts")
	ErrNotFound        = errors.New("accounts: not found")
)

// portalRoles may use the public login gate. Trainer accounts are managed
// by coordinators and have no portal surface of their own.
var portalRoles = map[iam.Role]bool{
	iam.RoleSuperAdmin:    true,
	iam.RoleRegionManager: true,
	iam.RoleSupervisor:    true,
	iam.RoleCoordinator:   true,
	iam.RoleOrgRep:        true,
	iam.RoleIndividual:    true,
}

// PortalRole reports whether the role may log in through the public gate.
func PortalRole(role iam.Role) bool { return portalRoles[role] }

// LandingPath maps a role to its post-login destination.
func LandingPath(role iam.Role) string {
	switch role {
	case iam.RoleSuperAdmin, iam.RoleRegionManager, iam.RoleSupervisor, iam.RoleCoordinator:
		return "/sysadmin/dashboard"
	case iam.RoleOrgRep:
		return "/organizations"
	default:
		return "/courses"
	}
}
