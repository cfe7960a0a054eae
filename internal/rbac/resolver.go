package rbac

import (
	"context"
	"sort"
	"strings"
)

// Access is a user's effective permission set at a point in time. It is
// computed on demand and never cached across requests, so a role edit takes
// effect on the subject's next request without re-login.
type Access struct {
	RoleName string
	IsAdmin  bool
	granted  map[string]struct{}
}

// NewAccess builds an Access from already-resolved data.
func NewAccess(roleName string, isAdmin bool, permissions []string) Access {
	granted := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		granted[p] = struct{}{}
	}
	return Access{RoleName: roleName, IsAdmin: isAdmin, granted: granted}
}

// PermissionNames returns the granted permission names, sorted and
// deduplicated. The admin flag is not expanded into names.
func (a Access) PermissionNames() []string {
	names := make([]string, 0, len(a.granted))
	for name := range a.granted {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasPermission reports whether the access grants the named permission.
func (a Access) HasPermission(name string) bool {
	return a.evaluate([]string{name}, true)
}

// HasAny reports whether the access grants at least one of the names.
func (a Access) HasAny(names ...string) bool {
	return a.evaluate(names, false)
}

// HasAll reports whether the access grants every one of the names.
func (a Access) HasAll(names ...string) bool {
	return a.evaluate(names, true)
}

// evaluate is the single policy decision point. The admin override is checked
// here once rather than sprinkled through each predicate: super-admins are
// never blocked by an incomplete role assignment, everyone else is denied on
// absence of data.
func (a Access) evaluate(required []string, all bool) bool {
	if a.IsAdmin {
		return true
	}
	matched := 0
	for _, name := range required {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		if _, ok := a.granted[name]; ok {
			if !all {
				return true
			}
			matched++
		} else if all {
			return false
		}
	}
	if all {
		return true
	}
	return matched > 0
}

// Resolver computes effective permission sets from the credential store.
type Resolver struct {
	repo Repository
}

// NewResolver constructs a Resolver.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve loads the user's role and flattens its permissions. A user with no
// role and no admin flag resolves to an empty set; that is a valid no-access
// state, not an error.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (Access, error) {
	grant, err := r.repo.UserGrant(ctx, userID)
	if err != nil {
		return Access{}, err
	}
	return NewAccess(grant.RoleName, grant.IsAdmin, grant.Permissions), nil
}
