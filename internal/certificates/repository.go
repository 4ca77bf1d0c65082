package certificates

import "context"

// Repository is the storage surface for certificate issuance and lookup.
type Repository interface {
	CreateTemplate(ctx context.Context, tpl CertificateTemplate) (CertificateTemplate, error)
	ListTemplates(ctx context.Context, activeOnly bool) ([]CertificateTemplate, error)

	// GetByEnrollment returns nil when the enrollment has no certificate yet.
	GetByEnrollment(ctx context.Context, enrollmentID int64) (*Certificate, error)
	GetCertificate(ctx context.Context, id int64) (Certificate, error)
	// InsertCertificate stores the certificate and its verification token in
	// one transaction.
	InsertCertificate(ctx context.Context, cert Certificate, token string) (Certificate, Verification, error)
	ListByIndividual(ctx context.Context, individualID int64) ([]Certificate, error)
	ListCertificates(ctx context.Context, limit, offset int) ([]Certificate, int64, error)

	GetVerification(ctx context.Context, certificateID int64) (Verification, error)
	SetPublicLookup(ctx context.Context, certificateID int64, enabled bool) error
	// FindByToken resolves the public view for a verification token.
	FindByToken(ctx context.Context, token string) (VerifiedCertificate, bool, error)

	CountCertificates(ctx context.Context) (int64, error)
}
