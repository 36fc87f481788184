package auth

import (
	"context"
	"strings"
)

// Roles carried in the "role" custom claim of Firebase ID tokens.
const (
	RoleStudent        = "student"
	RoleDepartmentHead = "department_head"
	RoleDistributor    = "distributor"
	RoleAdmin          = "admin"
)

var knownRoles = map[string]struct{}{
	RoleStudent:        {},
	RoleDepartmentHead: {},
	RoleDistributor:    {},
	RoleAdmin:          {},
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	_, ok := knownRoles[role]
	return ok
}

// Identity is the authenticated end user.
type Identity struct {
	UID        string
	Email      string
	Role       string
	Department string
}

// IsAdmin reports whether the identity administers the store.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// IsStaff reports whether the identity may act on orders it does not own.
func (i *Identity) IsStaff() bool {
	return i != nil && (i.Role == RoleAdmin || i.Role == RoleDistributor)
}

type identityKey struct{}

// WithIdentity stores the identity on the context.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity stored by the authentication middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return nil, false
	}
	return identity, true
}
