package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/taleem-platform/taleem/internal/jobs"
)

// WaitlistSweepJob backstops the inline promotion that runs when an
// accepted seat is cancelled. Seats can also free up through processing
// paths that do not promote, so the sweep moves the earliest waitlisted
// enrollment of each underfilled course forward. One promotion per
// course per run keeps the fill order strict.
type WaitlistSweepJob struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

func NewWaitlistSweepJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *WaitlistSweepJob {
	return &WaitlistSweepJob{pool: pool, logger: logger, metrics: metrics}
}

func (j *WaitlistSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j.pool == nil {
		return nil
	}
	tracker := j.metrics.Track("waitlist_sweep")
	tag, err := j.pool.Exec(ctx, `
		UPDATE enrollments SET status = 'accepted'
		WHERE id IN (
			SELECT DISTINCT ON (e.course_id) e.id
			FROM enrollments e
			JOIN courses c ON c.id = e.course_id
			WHERE e.status = 'waitlist'
			  AND c.is_published AND c.is_active
			  AND c.capacity > 0
			  AND c.end_at > NOW()
			  AND (SELECT COUNT(*) FROM enrollments s
			       WHERE s.course_id = c.id
			         AND s.status IN ('pending', 'accepted')) < c.capacity
			ORDER BY e.course_id, e.created_at
		)`)
	if err != nil {
		j.logger.Error("waitlist sweep", slog.Any("error", err))
		return tracker.End(err)
	}
	if n := tag.RowsAffected(); n > 0 {
		j.metrics.AddPromotions(n)
		j.logger.Info("waitlist sweep promoted seats",
			slog.String("job", "waitlist_sweep"), slog.Int64("promoted", n))
	}
	return tracker.End(nil)
}
