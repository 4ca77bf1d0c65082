package view

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/taleem-platform/taleem/web"
)

// Engine renders the printable document templates.
type Engine struct {
	templates *template.Template
}

// CertificateData feeds the certificate print layout.
type CertificateData struct {
	IssuerName   string
	HolderName   string
	CourseTitle  string
	SerialNumber string
	IssuedAt     time.Time
	VerifyURL    string
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006")
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// RenderCertificate executes the certificate template into HTML ready for
// PDF conversion.
func (e *Engine) RenderCertificate(data CertificateData) (string, error) {
	if e == nil {
		return "", fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, "certificate.html", data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
