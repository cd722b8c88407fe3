package auth

import (
	"context"

	"github.com/go-kratos/kratos/v2/errors"
)

type contextKey string

const (
	// RoleKey caller role context key
	RoleKey contextKey = "caller_role"
)

// Role caller role
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleAdmin     Role = "admin"
)

// WithRole returns a context carrying the caller role.
func WithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, RoleKey, role)
}

// GetRoleFromContext returns the caller role set by the transport layer.
func GetRoleFromContext(ctx context.Context) (Role, bool) {
	role, ok := ctx.Value(RoleKey).(Role)
	return role, ok
}

// IsAdmin reports whether the caller authenticated with the admin token.
func IsAdmin(ctx context.Context) bool {
	role, ok := GetRoleFromContext(ctx)
	return ok && role == RoleAdmin
}

// RequireAdmin rejects callers that did not present the admin token.
func RequireAdmin(ctx context.Context) error {
	if !IsAdmin(ctx) {
		return errors.Unauthorized("UNAUTHORIZED", "admin token required")
	}
	return nil
}
