package auth

import (
	"slices"
	"time"
)

// AuthMethod indicates how authentication was performed.
type AuthMethod string

const (
	AuthMethodNone  AuthMethod = "none"
	AuthMethodJWT   AuthMethod = "jwt"
	AuthMethodLocal AuthMethod = "local"
)

// Identity represents an authenticated principal.
type Identity struct {
	// Principal is the unique identifier, e.g. the controller name.
	Principal string

	// Roles are the roles assigned to this identity.
	Roles []string

	// Permissions are explicit permissions granted to this identity.
	Permissions []string

	// Method indicates how authentication was performed.
	Method AuthMethod

	// Claims contains the raw claims from the token.
	Claims map[string]any

	ExpiresAt time.Time
	IssuedAt  time.Time
}

// HasRole checks if the identity has a specific role.
func (id *Identity) HasRole(role string) bool {
	return slices.Contains(id.Roles, role)
}

// HasPermission checks if the identity has a specific permission.
func (id *Identity) HasPermission(perm string) bool {
	return slices.Contains(id.Permissions, perm)
}

// IsExpired checks if the identity has expired.
func (id *Identity) IsExpired() bool {
	if id.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(id.ExpiresAt)
}

// LocalIdentity returns the identity of an operator running nodediag on the
// controller itself.
func LocalIdentity(principal string, roles ...string) *Identity {
	return &Identity{
		Principal: principal,
		Roles:     roles,
		Method:    AuthMethodLocal,
		IssuedAt:  time.Now(),
	}
}
