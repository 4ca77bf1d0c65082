package shared

import "context"

type sessionCtxKey struct{}

// ContextWithSession attaches the loaded session so handlers down the chain
// can read and mutate it before the commit wrapper flushes it.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, sess)
}

// SessionFromContext returns the request session, or nil outside the
// session middleware.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionCtxKey{}).(*Session)
	return sess
}
