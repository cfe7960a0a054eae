package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/recycleops/recycleops/internal/platform/httpx"
)

// Service orchestrates role and permission management.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role after validating its name.
func (s *Service) CreateRole(ctx context.Context, name, description string, isActive bool) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", httpx.ErrValidation)
	}
	return s.repo.CreateRole(ctx, Role{
		Name:        name,
		Description: strings.TrimSpace(description),
		IsActive:    isActive,
	})
}

// UpdateRole updates an existing role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string, isActive bool) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", httpx.ErrValidation)
	}
	return s.repo.UpdateRole(ctx, Role{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		IsActive:    isActive,
	})
}

// DeleteRole removes a role. Deletion is blocked while users still reference
// the role so no account is left with a dangling assignment.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	count, err := s.repo.CountRoleUsers(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: role is assigned to %d user(s)", httpx.ErrConflict, count)
	}
	return s.repo.DeleteRole(ctx, id)
}

// RolePermissionIDs returns the permission ids currently granted to a role.
func (s *Service) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.RolePermissionIDs(ctx, roleID)
}

// ListPermissions returns the whole permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// GetPermission fetches a catalog entry by id.
func (s *Service) GetPermission(ctx context.Context, id int64) (Permission, error) {
	return s.repo.GetPermission(ctx, id)
}

// CreatePermission inserts a new catalog entry.
func (s *Service) CreatePermission(ctx context.Context, name, description, module string) (Permission, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	description = strings.TrimSpace(description)
	module = strings.TrimSpace(module)
	if name == "" || description == "" || module == "" {
		return Permission{}, fmt.Errorf("%w: name, description, and module are required", httpx.ErrValidation)
	}
	return s.repo.CreatePermission(ctx, Permission{
		Name:        name,
		Description: description,
		Module:      module,
		IsActive:    true,
	})
}

// UpdatePermission updates an existing catalog entry.
func (s *Service) UpdatePermission(ctx context.Context, id int64, name, description, module string, isActive bool) (Permission, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return Permission{}, fmt.Errorf("%w: permission name required", httpx.ErrValidation)
	}
	return s.repo.UpdatePermission(ctx, Permission{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		Module:      strings.TrimSpace(module),
		IsActive:    isActive,
	})
}

// DeletePermission removes a catalog entry. Deletion is blocked while roles
// still hold the permission, mirroring the role deletion policy.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	count, err := s.repo.CountPermissionRoles(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: permission is granted to %d role(s)", httpx.ErrConflict, count)
	}
	return s.repo.DeletePermission(ctx, id)
}

// SetRolePermissions replaces a role's grant set with exactly the given
// permission ids. Unknown ids fail the whole batch; the catalog is a closed
// set at write time.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	ids := dedupeIDs(permissionIDs)
	if err := s.validatePermissionIDs(ctx, ids); err != nil {
		return err
	}
	return s.repo.ReplaceRolePermissions(ctx, roleID, ids)
}

func (s *Service) validatePermissionIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	count, err := s.repo.CountPermissionsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if count != int64(len(ids)) {
		return fmt.Errorf("%w: grant references unknown permission id", httpx.ErrValidation)
	}
	return nil
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
