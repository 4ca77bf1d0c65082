package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taleem-platform/taleem/internal/accounts"
	"github.com/taleem-platform/taleem/internal/attendance"
	"github.com/taleem-platform/taleem/internal/certificates"
	"github.com/taleem-platform/taleem/internal/courses"
	"github.com/taleem-platform/taleem/internal/iam"
	"github.com/taleem-platform/taleem/internal/individuals"
	"github.com/taleem-platform/taleem/internal/observability"
	"github.com/taleem-platform/taleem/internal/organizations"
	"github.com/taleem-platform/taleem/internal/platform/httpx"
	"github.com/taleem-platform/taleem/internal/regions"
	"github.com/taleem-platform/taleem/internal/shared"
	"github.com/taleem-platform/taleem/internal/support"
	"github.com/taleem-platform/taleem/internal/sysadmin"
	"github.com/taleem-platform/taleem/internal/trainers"
	"github.com/taleem-platform/taleem/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	AccountsService *accounts.Service
	Enforcer        *iam.Enforcer

	AccountsHandler      *accounts.Handler
	RegionsHandler       *regions.Handler
	OrganizationsHandler *organizations.Handler
	IndividualsHandler   *individuals.Handler
	TrainersHandler      *trainers.Handler
	CoursesHandler       *courses.Handler
	AttendanceHandler    *attendance.Handler
	CertificatesHandler  *certificates.Handler
	SupportHandler       *support.Handler
	SysadminHandler      *sysadmin.Handler
	JobHandler           *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router. The permission enforcer sits after
// session and user resolution; every protected namespace below relies on
// it rather than per-handler checks.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(accounts.CurrentUser(params.AccountsService))
	if params.Enforcer != nil {
		r.Use(params.Enforcer.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if user := accounts.UserFromContext(r.Context()); user != nil {
			http.Redirect(w, r, accounts.LandingPath(user.Role), http.StatusSeeOther)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{
			"name":   "Taleem Portal",
			"login":  "/auth/login",
			"verify": "/verify/{token}",
		})
	})

	r.Route("/auth", func(r chi.Router) {
		params.AccountsHandler.MountRoutes(r)
		if params.OrganizationsHandler != nil {
			params.OrganizationsHandler.MountPublicRoutes(r)
		}
	})
	if params.CertificatesHandler != nil {
		r.Route("/verify", params.CertificatesHandler.MountVerifyRoutes)
	}

	if params.RegionsHandler != nil {
		r.Route("/regions", params.RegionsHandler.MountRoutes)
	}
	if params.OrganizationsHandler != nil {
		r.Route("/organizations", params.OrganizationsHandler.MountRoutes)
	}
	if params.IndividualsHandler != nil {
		r.Route("/individuals", params.IndividualsHandler.MountRoutes)
	}
	if params.TrainersHandler != nil {
		r.Route("/trainers", params.TrainersHandler.MountRoutes)
	}
	if params.CoursesHandler != nil {
		r.Route("/courses", params.CoursesHandler.MountRoutes)
	}
	if params.AttendanceHandler != nil {
		r.Route("/attendance", params.AttendanceHandler.MountRoutes)
	}
	if params.CertificatesHandler != nil {
		r.Route("/certificates", params.CertificatesHandler.MountRoutes)
	}
	if params.SupportHandler != nil {
		r.Route("/support", params.SupportHandler.MountRoutes)
	}
	if params.SysadminHandler != nil {
		r.Route("/sysadmin", params.SysadminHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.Enforcer != nil {
		params.Enforcer.SetMatcher(r)
	}
	return r
}
