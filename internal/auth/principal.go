// Package auth turns bearer tokens into the caller identity used by the
// orchestrator.
package auth

import (
	"context"
	"strings"
)

// Role is the caller's role within the tenant.
type Role string

// Known roles.
const (
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleLawyer     Role = "ADVOGADO"
	RoleAssistant  Role = "ASSISTENTE"
)

// DefaultAllowedRoles may start and follow captures.
var DefaultAllowedRoles = []Role{RoleAdmin, RoleSuperAdmin, RoleLawyer}

// Principal identifies the caller of an orchestrator operation.
type Principal struct {
	TenantID  string
	UsuarioID string
	Role      Role
}

// Authenticated reports whether both scope identifiers are present.
func (p Principal) Authenticated() bool {
	return strings.TrimSpace(p.TenantID) != "" && strings.TrimSpace(p.UsuarioID) != ""
}

// RoleSet is an allow-list of roles.
type RoleSet map[Role]struct{}

// NewRoleSet builds a RoleSet. Names are upper-cased; an empty list yields
// DefaultAllowedRoles.
func NewRoleSet(names ...string) RoleSet {
	set := make(RoleSet)
	for _, n := range names {
		if v := strings.ToUpper(strings.TrimSpace(n)); v != "" {
			set[Role(v)] = struct{}{}
		}
	}
	if len(set) == 0 {
		for _, r := range DefaultAllowedRoles {
			set[r] = struct{}{}
		}
	}
	return set
}

// Allows reports whether r is in the set.
func (s RoleSet) Allows(r Role) bool {
	_, ok := s[Role(strings.ToUpper(string(r)))]
	return ok
}

type principalKey struct{}

// WithPrincipal stores p on the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by the middleware.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
