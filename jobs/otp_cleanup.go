package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/taleem-platform/taleem/internal/jobs"
)

// OTPCleanupJob purges one-time codes that can never be redeemed again.
// Used codes go immediately; expired ones are kept a day so support can
// answer "the code did not arrive" tickets with timestamps.
type OTPCleanupJob struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

func NewOTPCleanupJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *OTPCleanupJob {
	return &OTPCleanupJob{pool: pool, logger: logger, metrics: metrics}
}

func (j *OTPCleanupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j.pool == nil {
		return nil
	}
	tracker := j.metrics.Track("otp_cleanup")
	tag, err := j.pool.Exec(ctx, `
		DELETE FROM email_otps
		WHERE is_used OR expires_at < NOW() - INTERVAL '1 day'`)
	if err != nil {
		j.logger.Error("otp cleanup", slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger.Info("otp cleanup done",
		slog.String("job", "otp_cleanup"), slog.Int64("deleted", tag.RowsAffected()))
	return tracker.End(nil)
}
