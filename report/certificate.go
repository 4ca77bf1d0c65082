package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/taleem-platform/taleem/internal/certificates"
	"github.com/taleem-platform/taleem/internal/view"
)

// CertificateRenderer turns an issued certificate into a printable PDF by
// rendering the HTML layout and converting it through Gotenberg.
type CertificateRenderer struct {
	engine  *view.Engine
	client  *Client
	issuer  string
	baseURL string
}

// NewCertificateRenderer wires the template engine and the conversion client.
// baseURL is the public address used to build verification links.
func NewCertificateRenderer(engine *view.Engine, client *Client, issuer, baseURL string) *CertificateRenderer {
	return &CertificateRenderer{engine: engine, client: client, issuer: issuer, baseURL: baseURL}
}

// RenderCertificate satisfies certificates.Renderer.
func (r *CertificateRenderer) RenderCertificate(ctx context.Context, cert certificates.Certificate, verifyToken string) ([]byte, error) {
	verifyURL := ""
	if verifyToken != "" && r.baseURL != "" {
		verifyURL = strings.TrimRight(r.baseURL, "/") + "/verify/" + verifyToken
	}
	html, err := r.engine.RenderCertificate(view.CertificateData{
		IssuerName:   r.issuer,
		HolderName:   cert.HolderName,
		CourseTitle:  cert.CourseTitle,
		SerialNumber: cert.SerialNumber,
		IssuedAt:     cert.IssuedAt,
		VerifyURL:    verifyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("render certificate html: %w", err)
	}
	pdf, err := r.client.RenderHTML(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("convert certificate pdf: %w", err)
	}
	return pdf, nil
}
