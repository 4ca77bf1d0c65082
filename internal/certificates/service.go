package certificates

import (
	"context"
	"errors"
	"log/slog"

	"github.com/taleem-platform/taleem/internal/individuals"
)

// Directory resolves individuals for notification mail.
type Directory interface {
	Get(ctx context.Context, id int64) (individuals.Individual, error)
}

// Notifier queues certificate mail.
type Notifier interface {
	SendCertificateIssued(ctx context.Context, email, fullName, courseTitle, serial string) error
}

// Renderer produces the printable PDF for an issued certificate.
type Renderer interface {
	RenderCertificate(ctx context.Context, cert Certificate, verifyToken string) ([]byte, error)
}

// Service owns issuance and public verification.
type Service struct {
	repo      Repository
	directory Directory
	notifier  Notifier
	renderer  Renderer
	logger    *slog.Logger
}

func NewService(repo Repository, directory Directory, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{repo: repo, directory: directory, notifier: notifier, logger: logger}
}

// SetRenderer enables PDF downloads. Without a renderer Download returns
// ErrRenderUnavailable.
func (s *Service) SetRenderer(r Renderer) {
	s.renderer = r
}

// Issue creates the certificate for an enrollment. Issuing twice returns the
// existing certificate unchanged, so attendance confirmation can call it
// without checking first.
func (s *Service) Issue(ctx context.Context, enrollmentID, individualID int64, issuedBy *int64, templateID *int64) (Certificate, error) {
	if existing, err := s.repo.GetByEnrollment(ctx, enrollmentID); err != nil {
		return Certificate{}, err
	} else if existing != nil {
		return *existing, nil
	}

	cert, _, err := s.repo.InsertCertificate(ctx, Certificate{
		EnrollmentID: enrollmentID,
		TemplateID:   templateID,
		SerialNumber: GenerateSerial(),
		IssuedBy:     issuedBy,
	}, GenerateToken())
	if errors.Is(err, ErrDuplicate) {
		// Lost the race against a concurrent issue for the same enrollment.
		existing, err := s.repo.GetByEnrollment(ctx, enrollmentID)
		if err != nil {
			return Certificate{}, err
		}
		if existing == nil {
			return Certificate{}, ErrNotFound
		}
		return *existing, nil
	}
	if err != nil {
		return Certificate{}, err
	}
	issued, err := s.repo.GetCertificate(ctx, cert.ID)
	if err != nil {
		return Certificate{}, err
	}
	s.notifyIssued(ctx, issued, individualID)
	return issued, nil
}

// Mine lists the certificates of one individual, newest first.
func (s *Service) Mine(ctx context.Context, individualID int64) ([]Certificate, error) {
	return s.repo.ListByIndividual(ctx, individualID)
}

func (s *Service) Get(ctx context.Context, id int64) (Certificate, error) {
	return s.repo.GetCertificate(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]Certificate, int64, error) {
	return s.repo.ListCertificates(ctx, limit, offset)
}

// Verification returns the lookup token record for a certificate.
func (s *Service) Verification(ctx context.Context, certificateID int64) (Verification, error) {
	return s.repo.GetVerification(ctx, certificateID)
}

func (s *Service) SetPublicLookup(ctx context.Context, certificateID int64, enabled bool) error {
	return s.repo.SetPublicLookup(ctx, certificateID, enabled)
}

// VerifyByToken resolves the public certificate view. A token whose holder
// disabled public lookup reads as ErrLookupDisabled, not as missing.
func (s *Service) VerifyByToken(ctx context.Context, token string) (VerifiedCertificate, error) {
	view, enabled, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		return VerifiedCertificate{}, err
	}
	if !enabled {
		return VerifiedCertificate{}, ErrLookupDisabled
	}
	return view, nil
}

func (s *Service) CreateTemplate(ctx context.Context, tpl CertificateTemplate) (CertificateTemplate, error) {
	return s.repo.CreateTemplate(ctx, tpl)
}

func (s *Service) ListTemplates(ctx context.Context, activeOnly bool) ([]CertificateTemplate, error) {
	return s.repo.ListTemplates(ctx, activeOnly)
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.CountCertificates(ctx)
}

// Download renders the certificate as a PDF. The verification link is only
// embedded while the holder keeps public lookup enabled.
func (s *Service) Download(ctx context.Context, id int64) ([]byte, Certificate, error) {
	if s.renderer == nil {
		return nil, Certificate{}, ErrRenderUnavailable
	}
	cert, err := s.repo.GetCertificate(ctx, id)
	if err != nil {
		return nil, Certificate{}, err
	}
	token := ""
	verification, err := s.repo.GetVerification(ctx, cert.ID)
	switch {
	case err == nil && verification.PublicLookupEnabled:
		token = verification.Token
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, Certificate{}, err
	}
	pdf, err := s.renderer.RenderCertificate(ctx, cert, token)
	if err != nil {
		return nil, Certificate{}, err
	}
	return pdf, cert, nil
}

func (s *Service) notifyIssued(ctx context.Context, cert Certificate, individualID int64) {
	if s.notifier == nil {
		return
	}
	ind, err := s.directory.Get(ctx, individualID)
	if err != nil {
		s.logger.Warn("certificate notification skipped",
			"certificate_id", cert.ID, "error", err)
		return
	}
	if err := s.notifier.SendCertificateIssued(ctx, ind.Email, ind.FullName, cert.CourseTitle, cert.SerialNumber); err != nil {
		s.logger.Error("certificate notification failed",
			"certificate_id", cert.ID, "email", ind.Email, "error", err)
	}
}
