package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/taleem-platform/taleem/internal/accounts"
	"github.com/taleem-platform/taleem/internal/app"
	"github.com/taleem-platform/taleem/internal/attendance"
	"github.com/taleem-platform/taleem/internal/certificates"
	"github.com/taleem-platform/taleem/internal/courses"
	"github.com/taleem-platform/taleem/internal/iam"
	"github.com/taleem-platform/taleem/internal/individuals"
	"github.com/taleem-platform/taleem/internal/observability"
	"github.com/taleem-platform/taleem/internal/organizations"
	"github.com/taleem-platform/taleem/internal/platform/cache"
	"github.com/taleem-platform/taleem/internal/platform/db"
	"github.com/taleem-platform/taleem/internal/regions"
	"github.com/taleem-platform/taleem/internal/shared"
	"github.com/taleem-platform/taleem/internal/support"
	"github.com/taleem-platform/taleem/internal/sysadmin"
	"github.com/taleem-platform/taleem/internal/trainers"
	"github.com/taleem-platform/taleem/internal/view"
	"github.com/taleem-platform/taleem/jobs"
	"github.com/taleem-platform/taleem/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "taleem_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	mailClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := mailClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	mail := jobs.NewMailEnqueuer(mailClient)

	iamRepo := iam.NewRepository(dbpool)
	registry := iam.NewRegistry(iamRepo, logger)
	resolver := iam.NewResolver(iamRepo, iam.NewRedisGeneration(redisClient), logger)
	recorder := iam.NewRecorder(iamRepo, logger, metrics)
	iamService := iam.NewService(iamRepo, registry, resolver, recorder, logger)

	if err := registry.Reconcile(ctx); err != nil {
		logger.Error("reconcile permission manifest", slog.Any("error", err))
		os.Exit(1)
	}
	if err := iam.SeedBaseline(ctx, iamRepo, registry, logger); err != nil {
		logger.Error("seed baseline policies", slog.Any("error", err))
		os.Exit(1)
	}

	accountsRepo := accounts.NewRepository(dbpool)
	accountsService := accounts.NewService(accountsRepo, mail, logger)
	accountsHandler := accounts.NewHandler(logger, accountsService, sessionManager)

	regionsRepo := regions.NewRepository(dbpool)
	regionsHandler := regions.NewHandler(logger, regionsRepo)

	orgRepo := organizations.NewRepository(dbpool)
	orgService := organizations.NewService(orgRepo, recorder, logger)
	orgHandler := organizations.NewHandler(logger, orgService)

	individualsRepo := individuals.NewRepository(dbpool)
	individualsHandler := individuals.NewHandler(logger, individualsRepo)

	trainersRepo := trainers.NewRepository(dbpool)
	trainersHandler := trainers.NewHandler(logger, trainersRepo, accountsService)

	coursesRepo := courses.NewRepository(dbpool)
	coursesService := courses.NewService(coursesRepo, individualsRepo, mail, logger)
	coursesHandler := courses.NewHandler(logger, coursesService)

	certRepo := certificates.NewRepository(dbpool)
	certService := certificates.NewService(certRepo, individualsRepo, mail, logger)
	if cfg.GotenbergURL != "" {
		engine, err := view.NewEngine()
		if err != nil {
			logger.Error("parse templates", slog.Any("error", err))
			os.Exit(1)
		}
		gotenberg := report.NewClient(cfg.GotenbergURL)
		if err := gotenberg.Ping(ctx); err != nil {
			logger.Warn("gotenberg unreachable, pdf downloads may fail", slog.Any("error", err))
		}
		certService.SetRenderer(report.NewCertificateRenderer(engine, gotenberg, "Taleem Portal", cfg.AppBaseURL))
	}
	certHandler := certificates.NewHandler(logger, certService, coursesService)

	attendanceRepo := attendance.NewRepository(dbpool)
	attendanceService := attendance.NewService(attendanceRepo, coursesService, certService, logger)
	attendanceHandler := attendance.NewHandler(logger, attendanceService)

	supportRepo := support.NewRepository(dbpool)
	supportService := support.NewService(supportRepo, logger)
	supportHandler := support.NewHandler(logger, supportService)

	sysadminService := sysadmin.NewService(accountsService, iamService, recorder, sysadmin.Stats{
		Branches:     orgService,
		Courses:      coursesService,
		Tickets:      supportService,
		Certificates: certService,
		Attendance:   attendanceService,
	}, logger)
	sysadminHandler := sysadmin.NewHandler(logger, sysadminService)

	enforcer := iam.NewEnforcer(registry, resolver, accounts.Subject, logger, metrics)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		SessionManager:       sessionManager,
		CSRFManager:          csrfManager,
		AccountsService:      accountsService,
		Enforcer:             enforcer,
		AccountsHandler:      accountsHandler,
		RegionsHandler:       regionsHandler,
		OrganizationsHandler: orgHandler,
		IndividualsHandler:   individualsHandler,
		TrainersHandler:      trainersHandler,
		CoursesHandler:       coursesHandler,
		AttendanceHandler:    attendanceHandler,
		CertificatesHandler:  certHandler,
		SupportHandler:       supportHandler,
		SysadminHandler:      sysadminHandler,
		JobHandler:           jobHandler,
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
