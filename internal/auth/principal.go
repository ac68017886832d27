package auth

import (
	"context"
	"strconv"
)

// Principal is the authenticated caller, as established by RequireAuth.
// Services take it explicitly instead of trusting ids in request bodies.
type Principal struct {
	UserID int64
}

// Valid reports whether the principal identifies a user.
func (p Principal) Valid() bool {
	return p.UserID > 0
}

func (p Principal) String() string {
	return "user:" + strconv.FormatInt(p.UserID, 10)
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the caller stored by RequireAuth or
// OptionalAuth. ok is false for anonymous requests.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p.Valid()
}
