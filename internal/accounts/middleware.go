package accounts

import (
	"context"
	"net/http"
	"strconv"

	"github.com/taleem-platform/taleem/internal/iam"
	"github.com/taleem-platform/taleem/internal/shared"
)

type contextKey string

const userContextKey contextKey = "accounts.user"

// ContextWithUser stores the authenticated user on the context.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey).(*User)
	return user
}

// CurrentUser resolves the session's user once per request and stores it on
// the context for handlers and the permission enforcer. An unknown or
// deactivated user is treated as anonymous.
func CurrentUser(service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.User() == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := strconv.ParseInt(sess.User(), 10, 64)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			user, err := service.GetUser(r.Context(), id)
			if err != nil || !user.IsActive {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// ActorFromRequest builds the audit actor for the authenticated user.
func ActorFromRequest(r *http.Request) iam.Actor {
	actor := iam.Actor{
		IPAddress: shared.ClientIP(r),
		UserAgent: shared.UserAgent(r),
	}
	if user := UserFromContext(r.Context()); user != nil {
		actor.UserID = user.ID
		actor.Email = user.Email
	}
	return actor
}

// Subject adapts the context user for permission checks.
func Subject(r *http.Request) iam.Subject {
	user := UserFromContext(r.Context())
	if user == nil {
		return iam.Subject{}
	}
	return iam.Subject{UserID: user.ID, Role: user.Role, Authenticated: true}
}
