package certificates

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

// CertificateTemplate is an optional layout identity for printed output.
type CertificateTemplate struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	RegionID  *int64    `json:"region_id,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Certificate is issued once per completed enrollment.
type Certificate struct {
	ID           int64     `json:"id"`
	EnrollmentID int64     `json:"enrollment_id"`
	TemplateID   *int64    `json:"template_id,omitempty"`
	SerialNumber string    `json:"serial_number"`
	IssuedBy     *int64    `json:"issued_by,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
	CreatedAt    time.Time `json:"created_at"`

	HolderName  string `json:"holder_name,omitempty"`
	CourseTitle string `json:"course_title,omitempty"`
}

// Verification carries the public lookup token for one certificate.
type Verification struct {
	ID                  int64     `json:"id"`
	CertificateID       int64     `json:"certificate_id"`
	Token               string    `json:"token"`
	PublicLookupEnabled bool      `json:"public_lookup_enabled"`
	CreatedAt           time.Time `json:"created_at"`
}

// VerifiedCertificate is the public view returned by token lookup.
type VerifiedCertificate struct {
	SerialNumber string    `json:"serial_number"`
	HolderName   string    `json:"holder_name"`
	CourseTitle  string    `json:"course_title"`
	IssuedAt     time.Time `json:"issued_at"`
}

var (
	ErrNotFound          = errors.New("certificates: not found")
	ErrDuplicate         = errors.New("certificates: duplicate")
	ErrLookupDisabled    = errors.New("certificates: public lookup disabled")
	ErrRenderUnavailable = errors.New("certificates: pdf rendering not configured")
)

// GenerateSerial returns a URL-safe unique serial.
func GenerateSerial() string {
	return randomToken(16)
}

// GenerateToken returns a URL-safe verification token.
func GenerateToken() string {
	return randomToken(24)
}

func randomToken(bytes int) string {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
