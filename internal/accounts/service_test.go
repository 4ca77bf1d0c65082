package accounts

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taleem-platform/taleem/internal/iam"
	"github.com/taleem-platform/taleem/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	users        map[int64]*User
	usersByEmail map[string]*User
	nextUserID   int64

	individualProfiles   map[int64]*IndividualProfile
	organizationProfiles map[int64]*OrganizationProfile
	nextProfileID        int64

	otps      []*EmailOTP
	nextOTPID int64

	txError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users:                make(map[int64]*User),
		usersByEmail:         make(map[string]*User),
		individualProfiles:   make(map[int64]*IndividualProfile),
		organizationProfiles: make(map[int64]*OrganizationProfile),
		nextUserID:           1,
		nextProfileID:        1,
		nextOTPID:            1,
	}
}

func (m *mockRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	if u, ok := m.usersByEmail[strings.ToLower(email)]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *mockRepository) GetUser(ctx context.Context, id int64) (*User, error) {
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *mockRepository) ListUsers(ctx context.Context, filter UserFilter) ([]User, int64, error) {
	var out []User
	for _, u := range m.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Query != "" && !strings.Contains(u.Email, strings.ToLower(filter.Query)) {
			continue
		}
		out = append(out, *u)
	}
	return out, int64(len(out)), nil
}

func (m *mockRepository) CountUsersByRole(ctx context.Context) (map[iam.Role]int64, error) {
	counts := make(map[iam.Role]int64)
	for _, u := range m.users {
		counts[u.Role]++
	}
	return counts, nil
}

func (m *mockRepository) UpdateUser(ctx context.Context, user *User) error {
	stored, ok := m.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	*stored = *user
	return nil
}

func (m *mockRepository) ActivateUser(ctx context.Context, email string) error {
	u, ok := m.usersByEmail[strings.ToLower(email)]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = true
	return nil
}

func (m *mockRepository) GetIndividualProfile(ctx context.Context, userID int64) (*IndividualProfile, error) {
	if p, ok := m.individualProfiles[userID]; ok {
		return p, nil
	}
	return nil, ErrNotFound
}

func (m *mockRepository) GetOrganizationProfile(ctx context.Context, userID int64) (*OrganizationProfile, error) {
	if p, ok := m.organizationProfiles[userID]; ok {
		return p, nil
	}
	return nil, ErrNotFound
}

func (m *mockRepository) CreateOTP(ctx context.Context, otp EmailOTP) (EmailOTP, error) {
	otp.ID = m.nextOTPID
	m.nextOTPID++
	otp.Email = strings.ToLower(otp.Email)
	otp.CreatedAt = time.Now()
	cp := otp
	m.otps = append(m.otps, &cp)
	return otp, nil
}

func (m *mockRepository) LatestOTP(ctx context.Context, email string, purpose OTPPurpose) (*EmailOTP, error) {
	email = strings.ToLower(email)
	for i := len(m.otps) - 1; i >= 0; i-- {
		o := m.otps[i]
		if o.Email == email && o.Purpose == purpose && !o.IsUsed {
			return o, nil
		}
	}
	return nil, nil
}

func (m *mockRepository) IncrementOTPAttempts(ctx context.Context, id int64) (int, error) {
	for _, o := range m.otps {
		if o.ID == id {
			o.Attempts++
			return o.Attempts, nil
		}
	}
	return 0, ErrNotFound
}

func (m *mockRepository) MarkOTPUsed(ctx context.Context, id int64) error {
	for _, o := range m.otps {
		if o.ID == id {
			o.IsUsed = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, &mockTxRepo{mock: m})
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) CreateUser(ctx context.Context, user User) (int64, error) {
	email := strings.ToLower(user.Email)
	if _, exists := t.mock.usersByEmail[email]; exists {
		return 0, ErrEmailTaken
	}
	user.ID = t.mock.nextUserID
	t.mock.nextUserID++
	user.Email = email
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := user
	t.mock.users[user.ID] = &cp
	t.mock.usersByEmail[email] = &cp
	return user.ID, nil
}

func (t *mockTxRepo) CreateIndividualProfile(ctx context.Context, profile IndividualProfile) (int64, error) {
	profile.ID = t.mock.nextProfileID
	t.mock.nextProfileID++
	t.mock.individualProfiles[profile.UserID] = &profile
	return profile.ID, nil
}

func (t *mockTxRepo) CreateOrganizationProfile(ctx context.Context, profile OrganizationProfile) (int64, error) {
	profile.ID = t.mock.nextProfileID
	t.mock.nextProfileID++
	t.mock.organizationProfiles[profile.UserID] = &profile
	return profile.ID, nil
}

func (t *mockTxRepo) CreateOTP(ctx context.Context, otp EmailOTP) (EmailOTP, error) {
	return t.mock.CreateOTP(ctx, otp)
}

type mockMailer struct {
	verifySent []string
	loginSent  []string
	lastCode   string
}

func (m *mockMailer) SendVerifyOTP(ctx context.Context, email, code string) error {
	m.verifySent = append(m.verifySent, email)
	m.lastCode = code
	return nil
}

func (m *mockMailer) SendLoginOTP(ctx context.Context, email, code string) error {
	m.loginSent = append(m.loginSent, email)
	m.lastCode = code
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService() (*Service, *mockRepository, *mockMailer) {
	repo := newMockRepository()
	mailer := &mockMailer{}
	return NewService(repo, mailer, testLogger()), repo, mailer
}

func individualInput() RegisterInput {
	return RegisterInput{
		AccountType: AccountIndividual,
		Email:       "Sara@Example.com",
		Phone:       "+966512345678",
		Password:    "s3cret-pass",
		FullName:    "Sara Alem",
		NationalID:  "1234567890",
		RegionID:    1,
	}
}

// ============================================================================
// TESTS
// ============================================================================

func TestRegisterIndividual(t *testing.T) {
	svc, repo, mailer := newTestService()

	user, err := svc.Register(context.Background(), individualInput())
	require.NoError(t, err)
	assert.Equal(t, "sara@example.com", user.Email)
	assert.Equal(t, iam.RoleIndividual, user.Role)
	assert.False(t, user.IsActive)
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)

	profile, err := repo.GetIndividualProfile(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sara Alem", profile.FullName)

	require.Len(t, mailer.verifySent, 1)
	assert.Len(t, mailer.lastCode, 6)

	otp, err := repo.LatestOTP(context.Background(), user.Email, PurposeVerifyEmail)
	require.NoError(t, err)
	require.NotNil(t, otp)
	assert.Equal(t, mailer.lastCode, otp.Code)
}

func TestRegisterOrganization(t *testing.T) {
	svc, repo, _ := newTestService()
	lat, lng := 24.7136, 46.6753

	user, err := svc.Register(context.Background(), RegisterInput{
		AccountType:        AccountOrganization,
		Email:              "rep@org.example",
		Phone:              "+966501112222",
		Password:           "s3cret-pass",
		RegionID:           2,
		OrganizationName:   "Knowledge House",
		RepresentativeName: "Omar",
		Latitude:           &lat,
		Longitude:          &lng,
	})
	require.NoError(t, err)
	assert.Equal(t, iam.RoleOrgRep, user.Role)

	profile, err := repo.GetOrganizationProfile(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Knowledge House", profile.OrganizationName)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Register(context.Background(), individualInput())
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), individualInput())
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterOrganizationNeedsLocation(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Register(context.Background(), RegisterInput{
		AccountType:        AccountOrganization,
		Email:              "rep@org.example",
		Phone:              "+966501112222",
		Password:           "s3cret-pass",
		RegionID:           2,
		OrganizationName:   "Knowledge House",
		RepresentativeName: "Omar",
	})
	require.Error(t, err)
}

func TestVerifyEmailActivatesAccount(t *testing.T) {
	svc, repo, mailer := newTestService()
	user, err := svc.Register(context.Background(), individualInput())
	require.NoError(t, err)

	require.NoError(t, svc.VerifyEmail(context.Background(), user.Email, mailer.lastCode))

	stored, err := repo.FindByEmail(context.Background(), user.Email)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)

	// the code is single use
	err = svc.VerifyEmail(context.Background(), user.Email, mailer.lastCode)
	require.ErrorIs(t, err, ErrOTPInvalid)
}

func TestVerifyEmailWrongCode(t *testing.T) {
	svc, _, _ := newTestService()
	user, err := svc.Register(context.Background(), individualInput())
	require.NoError(t, err)

	err = svc.VerifyEmail(context.Background(), user.Email, "000000")
	require.ErrorIs(t, err, ErrOTPInvalid)
}

func TestVerifyEmailExpiredCode(t *testing.T) {
	svc, _, mailer := newTestService()
	user, err := svc.Register(context.Background(), individualInput())
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	err = svc.VerifyEmail(context.Background(), user.Email, mailer.lastCode)
	require.ErrorIs(t, err, ErrOTPExpired)
}

func TestVerifyEmailAttemptLimit(t *testing.T) {
	svc, _, mailer := newTestService()
	user, err := svc.Register(context.Background(), individualInput())
	require.NoError(t, err)

	for i := 0; i < otpMaxAttempts; i++ {
		err = svc.VerifyEmail(context.Background(), user.Email, "999999")
		require.ErrorIs(t, err, ErrOTPInvalid)
	}
	// the correct code no longer works once attempts ran out
	err = svc.VerifyEmail(context.Background(), user.Email, mailer.lastCode)
	require.ErrorIs(t, err, ErrOTPAttempts)
}

func TestResendVerifyOTPAlreadyActive(t *testing.T) {
	svc, _, mailer := newTestService()
	user, err := svc.Register(context.Background(), individualInput())
	require.NoError(t, err)
	require.NoError(t, svc.VerifyEmail(context.Background(), user.Email, mailer.lastCode))

	err = svc.ResendVerifyOTP(context.Background(), user.Email)
	require.ErrorIs(t, err, ErrAlreadyActive)
}

func registerActiveUser(t *testing.T, svc *Service, mailer *mockMailer) *User {
	t.Helper()
	user, err := svc.Register(context.Background(), individualInput())
	require.NoError(t, err)
	require.NoError(t, svc.VerifyEmail(context.Background(), user.Email, mailer.lastCode))
	return user
}

func TestLoginFlow(t *testing.T) {
	svc, _, mailer := newTestService()
	user := registerActiveUser(t, svc, mailer)

	pending, err := svc.StartLogin(context.Background(), user.Email, "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, user.ID, pending.ID)
	require.Len(t, mailer.loginSent, 1)

	logged, err := svc.CompleteLogin(context.Background(), user.ID, user.Email, mailer.lastCode)
	require.NoError(t, err)
	assert.Equal(t, user.Email, logged.Email)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, mailer := newTestService()
	user := registerActiveUser(t, svc, mailer)

	_, err := svc.StartLogin(context.Background(), user.Email, "wrong-pass")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.StartLogin(context.Background(), "nobody@example.com", "whatever")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, _, _ := newTestService()
	user, err := svc.Register(context.Background(), individualInput())
	require.NoError(t, err)

	_, err = svc.StartLogin(context.Background(), user.Email, "s3cret-pass")
	require.ErrorIs(t, err, ErrAccountInactive)
}

func TestLoginTrainerRoleRefused(t *testing.T) {
	svc, repo, mailer := newTestService()
	user := registerActiveUser(t, svc, mailer)
	repo.users[user.ID].Role = iam.RoleTrainer
	repo.usersByEmail[user.Email].Role = iam.RoleTrainer

	_, err := svc.StartLogin(context.Background(), user.Email, "s3cret-pass")
	require.ErrorIs(t, err, ErrRoleNotAllowed)
}

func TestCompleteLoginEmailMismatch(t *testing.T) {
	svc, _, mailer := newTestService()
	user := registerActiveUser(t, svc, mailer)
	_, err := svc.StartLogin(context.Background(), user.Email, "s3cret-pass")
	require.NoError(t, err)

	// a login code for another mailbox must not unlock this user
	_, err = svc.repo.CreateOTP(context.Background(), EmailOTP{
		Email: "other@example.com", Purpose: PurposeLogin, Code: "111111",
		ExpiresAt: time.Now().Add(otpTTL),
	})
	require.NoError(t, err)
	_, err = svc.CompleteLogin(context.Background(), user.ID, "other@example.com", "111111")
	require.ErrorIs(t, err, ErrRoleNotAllowed)
}

func TestDisplayNameFallsBackToEmail(t *testing.T) {
	svc, repo, mailer := newTestService()
	user := registerActiveUser(t, svc, mailer)

	assert.Equal(t, "Sara Alem", svc.DisplayName(context.Background(), user))

	delete(repo.individualProfiles, user.ID)
	assert.Equal(t, user.Email, svc.DisplayName(context.Background(), user))
}

func TestPasswordHashRoundTrip(t *testing.T) {
	svc, _, _ := newTestService()
	user, err := svc.Register(context.Background(), individualInput())
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret-pass")))
}
