package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/taleem-platform/taleem/internal/app"
	jobmetrics "github.com/taleem-platform/taleem/internal/jobs"
	"github.com/taleem-platform/taleem/internal/mailer"
	"github.com/taleem-platform/taleem/internal/platform/db"
	"github.com/taleem-platform/taleem/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	sender := mailer.New(mailer.Config{
		Enabled:  cfg.MailEnabled,
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		UseSSL:   cfg.SMTPUseSSL,
		UseTLS:   cfg.SMTPUseTLS,
	})

	metrics := jobmetrics.NewMetrics(nil)
	otpCleanup := jobs.NewOTPCleanupJob(pool, logger, metrics)
	waitlistSweep := jobs.NewWaitlistSweepJob(pool, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: jobs.NewSendEmailHandler(sender, logger, metrics)},
			{Type: jobs.TaskTypeOTPCleanup, Handler: otpCleanup.Handle},
			{Type: jobs.TaskTypeWaitlistSweep, Handler: waitlistSweep.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 2 * * *", Task: jobs.NewOTPCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "*/15 * * * *", Task: jobs.NewWaitlistSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
