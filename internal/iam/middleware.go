package iam

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taleem-platform/taleem/internal/platform/httpx"
)

// SubjectSource extracts the authenticated subject from a request. An
// anonymous request yields a Subject with Authenticated=false.
type SubjectSource func(r *http.Request) Subject

// DenialMetrics counts refused requests by permission code.
type DenialMetrics interface {
	AuthzDenied(code string)
}

// allowlist holds paths that bypass enforcement entirely. Everything under
// /auth must stay reachable or nobody could ever log in; /verify serves the
// public certificate lookup.
var allowExact = map[string]bool{
	"/":            true,
	"/favicon.ico": true,
	"/healthz":     true,
	"/metrics":     true,
}

var allowPrefixes = []string{
	"/auth/",
	"/static/",
	"/verify/",
}

// Enforcer guards every route with a coarse namespace access check followed
// by a fine-grained endpoint check. Permission codes are registered lazily
// the first time a route is hit, so a freshly added route is immediately
// governable from the role matrix.
type Enforcer struct {
	registry *Registry
	resolver *Resolver
	subject  SubjectSource
	logger   *slog.Logger
	metrics  DenialMetrics

	routes     chi.Routes
	coarseOnly map[string]bool
}

func NewEnforcer(registry *Registry, resolver *Resolver, subject SubjectSource, logger *slog.Logger, metrics DenialMetrics) *Enforcer {
	return &Enforcer{
		registry:   registry,
		resolver:   resolver,
		subject:    subject,
		logger:     logger,
		metrics:    metrics,
		coarseOnly: coarseOnlyNamespaces(),
	}
}

// SetMatcher hands the finished router to the enforcer. The middleware runs
// before chi dispatches, so it matches the request against the route tree
// itself to learn the route pattern.
func (e *Enforcer) SetMatcher(routes chi.Routes) {
	e.routes = routes
}

func (e *Enforcer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "" {
			path = "/"
		}
		if allowExact[path] || e.allowlisted(path) {
			next.ServeHTTP(w, r)
			return
		}

		subject := e.subject(r)
		if !subject.Authenticated {
			target := "/auth/login?next=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}

		namespace, endpoint := e.classify(r)
		if namespace == "" {
			namespace = "core"
		}

		if !e.require(w, r, subject, namespace+".access", namespace) {
			return
		}
		if endpoint == "" {
			if e.coarseOnly[namespace] {
				next.ServeHTTP(w, r)
				return
			}
			e.deny(w, r, subject, namespace+".?")
			return
		}
		if !e.require(w, r, subject, namespace+"."+endpoint, namespace) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// require lazily registers the code and checks it, writing the refusal when
// the subject lacks it.
func (e *Enforcer) require(w http.ResponseWriter, r *http.Request, subject Subject, code, module string) bool {
	ctx := r.Context()
	if _, err := e.registry.Ensure(ctx, code, code, module); err != nil {
		e.logger.Error("permission registration failed", "code", code, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Authorization Unavailable",
			"The request could not be authorized.")
		return false
	}
	ok, err := e.resolver.HasPermission(ctx, subject, code)
	if err != nil {
		e.logger.Error("permission resolution failed", "code", code, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Authorization Unavailable",
			"The request could not be authorized.")
		return false
	}
	if !ok {
		e.deny(w, r, subject, code)
		return false
	}
	return true
}

func (e *Enforcer) deny(w http.ResponseWriter, r *http.Request, subject Subject, code string) {
	if e.metrics != nil {
		e.metrics.AuthzDenied(code)
	}
	e.logger.Info("request denied",
		"code", code, "user_id", subject.UserID, "role", subject.Role, "path", r.URL.Path)
	httpx.Problem(w, http.StatusForbidden, "Forbidden",
		"You do not have permission to access this resource.")
}

// classify resolves the chi route pattern for the request and derives the
// permission namespace and endpoint name from it.
func (e *Enforcer) classify(r *http.Request) (namespace, endpoint string) {
	pattern := ""
	if e.routes != nil {
		rctx := chi.NewRouteContext()
		if e.routes.Match(rctx, r.Method, r.URL.Path) {
			pattern = rctx.RoutePattern()
		}
	}
	if pattern == "" {
		// Unroutable paths 404 later; classify by the first raw segment
		// so the access check still applies on the way there.
		seg := strings.SplitN(strings.Trim(r.URL.Path, "/"), "/", 2)[0]
		return seg, ""
	}
	return splitPattern(pattern)
}

// splitPattern turns a chi route pattern into (namespace, endpoint). The
// first concrete segment names the namespace; the remaining concrete
// segments joined by underscores name the endpoint. A pattern with only
// parameter segments after the namespace reads as the detail endpoint, and
// a bare namespace reads as its index.
func splitPattern(pattern string) (namespace, endpoint string) {
	segments := strings.Split(strings.Trim(pattern, "/"), "/")
	var concrete []string
	hadParams := false
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, "{") || seg == "*" {
			hadParams = true
			continue
		}
		concrete = append(concrete, seg)
	}
	if len(concrete) == 0 {
		return "", ""
	}
	namespace = concrete[0]
	rest := concrete[1:]
	if len(rest) == 0 {
		if hadParams {
			return namespace, "detail"
		}
		return namespace, "index"
	}
	return namespace, strings.Join(rest, "_")
}

func (e *Enforcer) allowlisted(path string) bool {
	for _, prefix := range allowPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
