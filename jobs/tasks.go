package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/taleem-platform/taleem/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeOTPCleanup purges dead one-time codes.
	TaskTypeOTPCleanup = "accounts:otp_cleanup"
	// TaskTypeWaitlistSweep promotes waitlisted enrollments into freed seats.
	TaskTypeWaitlistSweep = "courses:waitlist_sweep"
)

// SendEmailPayload is the fully rendered message; workers only transmit.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// MailSender is the transport behind the mail task. *mailer.Mailer
// satisfies it.
type MailSender interface {
	Send(to, subject, body string) error
}

// NewSendEmailHandler returns the worker-side handler for TaskTypeSendEmail.
func NewSendEmailHandler(sender MailSender, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track("send_email")
		if err := sender.Send(payload.To, payload.Subject, payload.Body); err != nil {
			logger.Error("send email failed",
				slog.String("to", payload.To), slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("email sent",
			slog.String("to", payload.To), slog.String("subject", payload.Subject))
		return tracker.End(nil)
	}
}

// NewOTPCleanupTask constructs the periodic OTP purge task.
func NewOTPCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeOTPCleanup, nil)
}

// NewWaitlistSweepTask constructs the periodic waitlist promotion task.
func NewWaitlistSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeWaitlistSweep, nil)
}
