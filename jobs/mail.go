package jobs

import (
	"context"

	"github.com/taleem-platform/taleem/internal/courses"
	"github.com/taleem-platform/taleem/internal/mailer"
)

// MailEnqueuer renders portal mail and pushes it onto the queue. It is
// the production implementation of the per-module notifier interfaces;
// request handlers never touch SMTP.
type MailEnqueuer struct {
	client *Client
}

func NewMailEnqueuer(client *Client) *MailEnqueuer {
	return &MailEnqueuer{client: client}
}

func (e *MailEnqueuer) SendVerifyOTP(ctx context.Context, email, code string) error {
	subject, body := mailer.VerifyOTPEmail(code)
	return e.enqueue(ctx, email, subject, body)
}

func (e *MailEnqueuer) SendLoginOTP(ctx context.Context, email, code string) error {
	subject, body := mailer.LoginOTPEmail(code)
	return e.enqueue(ctx, email, subject, body)
}

func (e *MailEnqueuer) SendEnrollmentStatus(ctx context.Context, email, fullName, courseTitle string, status courses.EnrollmentStatus) error {
	subject, body := mailer.EnrollmentStatusEmail(fullName, courseTitle, string(status))
	return e.enqueue(ctx, email, subject, body)
}

func (e *MailEnqueuer) SendCertificateIssued(ctx context.Context, email, fullName, courseTitle, serial string) error {
	subject, body := mailer.CertificateIssuedEmail(fullName, courseTitle, serial)
	return e.enqueue(ctx, email, subject, body)
}

func (e *MailEnqueuer) enqueue(ctx context.Context, to, subject, body string) error {
	_, err := e.client.EnqueueSendEmail(ctx, SendEmailPayload{To: to, Subject: subject, Body: body})
	return err
}
