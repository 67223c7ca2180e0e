package auth

import (
	"context"
)

// Role represents the resolved caller role for a request.
type Role int

const (
	RoleUnauth Role = iota
	RoleUser
	RoleFrontend
	RoleBackend
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleFrontend:
		return "frontend"
	case RoleBackend:
		return "backend"
	default:
		return "unauth"
	}
}

// SecConfig mirrors the security-related configuration used to drive
// authentication, CORS and rate limiting behavior. Put here so limiter.go
// and gateway.go can reference the shared type.
type SecConfig struct {
	JWTSecret      string
	AllowedOrigins []string
	RPS            float64
	Burst          int
	BackendKeys    map[string]struct{}
	FrontendKeys   map[string]struct{}
}

// Identity is the resolved caller attached to the request context.
type Identity struct {
	Role   Role
	UserID string
}

type ctxIdentityKey struct{}

// WithIdentity returns a context carrying the resolved identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey{}, id)
}

// IdentityFromContext returns the resolved identity, or a zero Identity
// when the request never passed the gateway.
func IdentityFromContext(ctx context.Context) Identity {
	if v := ctx.Value(ctxIdentityKey{}); v != nil {
		if id, ok := v.(Identity); ok {
			return id
		}
	}
	return Identity{}
}

// Unlocked reports whether the caller authenticated with a backend key.
// Unlocked requests bypass reserved-collection protection; the capability
// is never granted to jwt or frontend-key callers.
func Unlocked(ctx context.Context) bool {
	return IdentityFromContext(ctx).Role == RoleBackend
}

// UserIDFromContext returns the authenticated user id or empty string.
func UserIDFromContext(ctx context.Context) string {
	return IdentityFromContext(ctx).UserID
}
