package auth

import (
	"context"
	"slices"
	"strings"
)

// RBACConfig configures the simple RBAC authorizer.
type RBACConfig struct {
	Roles map[string]RoleConfig

	// DefaultRole is assigned to identities without explicit roles.
	DefaultRole string
}

// RoleConfig defines permissions for a role.
type RoleConfig struct {
	// Permissions are explicit permission strings (e.g. "probe:*:run").
	Permissions []string

	// Inherits lists roles this role inherits from.
	Inherits []string

	// AllowedProbes restricts the probe kinds this role may run.
	AllowedProbes []string

	// DeniedProbes lists probe kinds this role may never run.
	DeniedProbes []string
}

// DefaultRBACConfig returns the roles nodediag uses out of the box:
// "controller" may run any probe, "admin" may do anything.
func DefaultRBACConfig() RBACConfig {
	return RBACConfig{
		Roles: map[string]RoleConfig{
			"controller": {Permissions: []string{"probe:*:run"}},
			"admin":      {Permissions: []string{"*"}, Inherits: []string{"controller"}},
		},
	}
}

// SimpleRBACAuthorizer provides simple role-based access control.
type SimpleRBACAuthorizer struct {
	config RBACConfig
}

// NewSimpleRBACAuthorizer creates a new simple RBAC authorizer.
func NewSimpleRBACAuthorizer(config RBACConfig) *SimpleRBACAuthorizer {
	return &SimpleRBACAuthorizer{config: config}
}

// Name returns "simple_rbac".
func (a *SimpleRBACAuthorizer) Name() string {
	return "simple_rbac"
}

// Authorize checks if the identity is allowed to perform the action.
// Permissions granted directly on the identity are honored as well as roles.
func (a *SimpleRBACAuthorizer) Authorize(_ context.Context, req *AuthzRequest) error {
	if req.Subject == nil {
		return &AuthzError{
			Resource: req.Resource,
			Action:   req.Action,
			Reason:   "no identity provided",
		}
	}

	for _, perm := range req.Subject.Permissions {
		if matchPermission(perm, req) {
			return nil
		}
	}

	for _, roleName := range a.collectRoles(req.Subject) {
		role, ok := a.config.Roles[roleName]
		if !ok {
			continue
		}
		if rolePermits(role, req) {
			return nil
		}
	}

	return &AuthzError{
		Subject:  req.Subject.Principal,
		Resource: req.Resource,
		Action:   req.Action,
		Reason:   "no role permits this action",
	}
}

func (a *SimpleRBACAuthorizer) collectRoles(subject *Identity) []string {
	seen := make(map[string]bool)
	var result []string

	queue := append([]string{}, subject.Roles...)
	if len(queue) == 0 && a.config.DefaultRole != "" {
		queue = append(queue, a.config.DefaultRole)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if seen[current] {
			continue
		}
		seen[current] = true
		result = append(result, current)

		if role, ok := a.config.Roles[current]; ok {
			for _, inherited := range role.Inherits {
				if !seen[inherited] {
					queue = append(queue, inherited)
				}
			}
		}
	}

	return result
}

func rolePermits(role RoleConfig, req *AuthzRequest) bool {
	if req.ResourceType == "probe" {
		// Deny takes precedence.
		for _, denied := range role.DeniedProbes {
			if matchPattern(denied, req.Resource) {
				return false
			}
		}
		if len(role.AllowedProbes) > 0 {
			allowed := slices.ContainsFunc(role.AllowedProbes, func(p string) bool {
				return matchPattern(p, req.Resource)
			})
			if !allowed {
				return false
			}
			if req.Action == "run" {
				return true
			}
		}
	}

	for _, perm := range role.Permissions {
		if matchPermission(perm, req) {
			return true
		}
	}
	return false
}

// matchPattern matches a pattern against a value.
// Supports "*" alone or as a trailing wildcard.
func matchPattern(pattern, value string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(value, prefix)
	}
	return pattern == value
}

// matchPermission checks if a permission string matches a request.
// Format: <resource_type>:<resource>:<action>, <resource>:<action> or <action>.
func matchPermission(perm string, req *AuthzRequest) bool {
	parts := strings.Split(perm, ":")

	switch len(parts) {
	case 1:
		return parts[0] == "*" || parts[0] == req.Action
	case 2:
		return matchPattern(parts[0], req.Resource) &&
			(parts[1] == "*" || parts[1] == req.Action)
	case 3:
		return (parts[0] == "*" || parts[0] == req.ResourceType) &&
			matchPattern(parts[1], req.Resource) &&
			(parts[2] == "*" || parts[2] == req.Action)
	default:
		return false
	}
}

var _ Authorizer = (*SimpleRBACAuthorizer)(nil)
