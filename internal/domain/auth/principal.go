// Package auth resolves the authenticated Principal of a request from a
// bearer token or a session cookie.
package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrInvalidRole     = errors.New("invalid role")
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleBroker Role = "broker"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleBroker:
		return r, nil
	}
	return "", ErrInvalidRole
}

// Principal is the caller identity handed to every ingestion operation.
type Principal struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

// HasRole reports whether the principal holds any of roles.
func (p Principal) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal set by Middleware.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
