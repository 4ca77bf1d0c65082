package certificates

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleem-platform/taleem/internal/individuals"
)

// ==== MOCK REPOSITORY ====

type mockRepository struct {
	templates     map[int64]CertificateTemplate
	certs         map[int64]Certificate
	verifications map[int64]Verification

	nextTemplateID int64
	nextCertID     int64
	nextVerifID    int64

	insertErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		templates:     make(map[int64]CertificateTemplate),
		certs:         make(map[int64]Certificate),
		verifications: make(map[int64]Verification),
	}
}

func (m *mockRepository) CreateTemplate(_ context.Context, tpl CertificateTemplate) (CertificateTemplate, error) {
	m.nextTemplateID++
	tpl.ID = m.nextTemplateID
	tpl.IsActive = true
	tpl.CreatedAt = time.Now()
	m.templates[tpl.ID] = tpl
	return tpl, nil
}

func (m *mockRepository) ListTemplates(_ context.Context, activeOnly bool) ([]CertificateTemplate, error) {
	var out []CertificateTemplate
	for _, tpl := range m.templates {
		if activeOnly && !tpl.IsActive {
			continue
		}
		out = append(out, tpl)
	}
	return out, nil
}

func (m *mockRepository) GetByEnrollment(_ context.Context, enrollmentID int64) (*Certificate, error) {
	for _, cert := range m.certs {
		if cert.EnrollmentID == enrollmentID {
			found := cert
			return &found, nil
		}
	}
	return nil, nil
}

func (m *mockRepository) GetCertificate(_ context.Context, id int64) (Certificate, error) {
	cert, ok := m.certs[id]
	if !ok {
		return Certificate{}, ErrNotFound
	}
	return cert, nil
}

func (m *mockRepository) InsertCertificate(_ context.Context, cert Certificate, token string) (Certificate, Verification, error) {
	if m.insertErr != nil {
		return Certificate{}, Verification{}, m.insertErr
	}
	for _, existing := range m.certs {
		if existing.EnrollmentID == cert.EnrollmentID {
			return Certificate{}, Verification{}, ErrDuplicate
		}
	}
	m.nextCertID++
	cert.ID = m.nextCertID
	cert.IssuedAt = time.Now()
	cert.CreatedAt = cert.IssuedAt
	cert.CourseTitle = fmt.Sprintf("Course for enrollment %d", cert.EnrollmentID)
	cert.HolderName = "Holder"
	m.certs[cert.ID] = cert

	m.nextVerifID++
	verification := Verification{
		ID:                  m.nextVerifID,
		CertificateID:       cert.ID,
		Token:               token,
		PublicLookupEnabled: true,
		CreatedAt:           time.Now(),
	}
	m.verifications[verification.ID] = verification
	return cert, verification, nil
}

func (m *mockRepository) ListByIndividual(_ context.Context, _ int64) ([]Certificate, error) {
	var out []Certificate
	for _, cert := range m.certs {
		out = append(out, cert)
	}
	return out, nil
}

func (m *mockRepository) ListCertificates(_ context.Context, _, _ int) ([]Certificate, int64, error) {
	var out []Certificate
	for _, cert := range m.certs {
		out = append(out, cert)
	}
	return out, int64(len(out)), nil
}

func (m *mockRepository) GetVerification(_ context.Context, certificateID int64) (Verification, error) {
	for _, v := range m.verifications {
		if v.CertificateID == certificateID {
			return v, nil
		}
	}
	return Verification{}, ErrNotFound
}

func (m *mockRepository) SetPublicLookup(_ context.Context, certificateID int64, enabled bool) error {
	for id, v := range m.verifications {
		if v.CertificateID == certificateID {
			v.PublicLookupEnabled = enabled
			m.verifications[id] = v
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockRepository) FindByToken(_ context.Context, token string) (VerifiedCertificate, bool, error) {
	for _, v := range m.verifications {
		if v.Token != token {
			continue
		}
		cert := m.certs[v.CertificateID]
		return VerifiedCertificate{
			SerialNumber: cert.SerialNumber,
			HolderName:   cert.HolderName,
			CourseTitle:  cert.CourseTitle,
			IssuedAt:     cert.IssuedAt,
		}, v.PublicLookupEnabled, nil
	}
	return VerifiedCertificate{}, false, ErrNotFound
}

func (m *mockRepository) CountCertificates(_ context.Context) (int64, error) {
	return int64(len(m.certs)), nil
}

// ==== SUPPORT DOUBLES ====

type mockDirectory struct{}

func (mockDirectory) Get(_ context.Context, id int64) (individuals.Individual, error) {
	return individuals.Individual{
		ID:       id,
		FullName: fmt.Sprintf("Individual %d", id),
		Email:    fmt.Sprintf("ind%d@example.com", id),
	}, nil
}

type mockNotifier struct {
	sent []string
}

func (m *mockNotifier) SendCertificateIssued(_ context.Context, email, _, _, _ string) error {
	m.sent = append(m.sent, email)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*Service, *mockRepository, *mockNotifier) {
	t.Helper()
	repo := newMockRepository()
	notifier := &mockNotifier{}
	return NewService(repo, mockDirectory{}, notifier, testLogger()), repo, notifier
}

// ==== TESTS ====

func TestIssueCreatesCertificateWithToken(t *testing.T) {
	svc, repo, notifier := newTestService(t)

	cert, err := svc.Issue(context.Background(), 7, 42, nil, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, cert.SerialNumber)
	assert.Equal(t, int64(7), cert.EnrollmentID)

	verification, err := svc.Verification(context.Background(), cert.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, verification.Token)
	assert.True(t, verification.PublicLookupEnabled)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "ind42@example.com", notifier.sent[0])
	assert.Len(t, repo.certs, 1)
}

func TestIssueTwiceReturnsExisting(t *testing.T) {
	svc, repo, notifier := newTestService(t)

	first, err := svc.Issue(context.Background(), 7, 42, nil, nil)
	require.NoError(t, err)
	second, err := svc.Issue(context.Background(), 7, 42, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.SerialNumber, second.SerialNumber)
	assert.Len(t, repo.certs, 1)
	assert.Len(t, notifier.sent, 1)
}

func TestSerialsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		serial := GenerateSerial()
		assert.False(t, seen[serial])
		seen[serial] = true
	}
}

func TestVerifyByToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	cert, err := svc.Issue(context.Background(), 7, 42, nil, nil)
	require.NoError(t, err)
	verification, err := svc.Verification(context.Background(), cert.ID)
	require.NoError(t, err)

	view, err := svc.VerifyByToken(context.Background(), verification.Token)
	require.NoError(t, err)
	assert.Equal(t, cert.SerialNumber, view.SerialNumber)
	assert.Equal(t, "Holder", view.HolderName)
}

func TestVerifyByTokenUnknown(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.VerifyByToken(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyByTokenDisabled(t *testing.T) {
	svc, _, _ := newTestService(t)

	cert, err := svc.Issue(context.Background(), 7, 42, nil, nil)
	require.NoError(t, err)
	require.NoError(t, svc.SetPublicLookup(context.Background(), cert.ID, false))

	verification, err := svc.Verification(context.Background(), cert.ID)
	require.NoError(t, err)

	_, err = svc.VerifyByToken(context.Background(), verification.Token)
	assert.ErrorIs(t, err, ErrLookupDisabled)
}

type stubRenderer struct {
	lastToken string
}

func (r *stubRenderer) RenderCertificate(_ context.Context, cert Certificate, verifyToken string) ([]byte, error) {
	r.lastToken = verifyToken
	return []byte("%PDF " + cert.SerialNumber), nil
}

func TestDownloadWithoutRenderer(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, _, err := svc.Download(context.Background(), 1)
	assert.ErrorIs(t, err, ErrRenderUnavailable)
}

func TestDownloadEmbedsVerifyToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	renderer := &stubRenderer{}
	svc.SetRenderer(renderer)

	cert, err := svc.Issue(context.Background(), 7, 42, nil, nil)
	require.NoError(t, err)
	verification, err := svc.Verification(context.Background(), cert.ID)
	require.NoError(t, err)

	pdf, got, err := svc.Download(context.Background(), cert.ID)
	require.NoError(t, err)
	assert.Equal(t, cert.ID, got.ID)
	assert.Contains(t, string(pdf), cert.SerialNumber)
	assert.Equal(t, verification.Token, renderer.lastToken)
}

func TestDownloadOmitsTokenWhenLookupDisabled(t *testing.T) {
	svc, _, _ := newTestService(t)
	renderer := &stubRenderer{lastToken: "sentinel"}
	svc.SetRenderer(renderer)

	cert, err := svc.Issue(context.Background(), 7, 42, nil, nil)
	require.NoError(t, err)
	require.NoError(t, svc.SetPublicLookup(context.Background(), cert.ID, false))

	_, _, err = svc.Download(context.Background(), cert.ID)
	require.NoError(t, err)
	assert.Empty(t, renderer.lastToken)
}
