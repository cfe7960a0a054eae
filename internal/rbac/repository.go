package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recycleops/recycleops/internal/platform/db"
	"github.com/recycleops/recycleops/internal/platform/httpx"
)

// UserGrant is the raw resolution result for one user: role name, admin flag
// and the role's permission names.
type UserGrant struct {
	RoleName    string
	IsAdmin     bool
	Permissions []string
}

// Repository defines persistence operations for roles, permissions and
// grants.
type Repository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	CountRoleUsers(ctx context.Context, roleID int64) (int64, error)

	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermission(ctx context.Context, id int64) (Permission, error)
	CreatePermission(ctx context.Context, perm Permission) (Permission, error)
	UpdatePermission(ctx context.Context, perm Permission) (Permission, error)
	DeletePermission(ctx context.Context, id int64) error
	CountPermissionRoles(ctx context.Context, permissionID int64) (int64, error)
	CountPermissionsByIDs(ctx context.Context, ids []int64) (int64, error)

	ListGrants(ctx context.Context) (map[int64][]int64, error)
	RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error

	UserGrant(ctx context.Context, userID int64) (UserGrant, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const uniqueViolation = "23505"

func mapUniqueViolation(err error, field string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s already exists", httpx.ErrDuplicate, field)
	}
	return err
}

const roleColumns = `id, name, description, is_active, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, httpx.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns all roles ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by id.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

// CreateRole inserts a new role.
func (r *PGRepository) CreateRole(ctx context.Context, role Role) (Role, error) {
	created, err := scanRole(r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING `+roleColumns, role.Name, role.Description, role.IsActive))
	if err != nil {
		return Role{}, mapUniqueViolation(err, "role name")
	}
	return created, nil
}

// UpdateRole updates an existing role.
func (r *PGRepository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	updated, err := scanRole(r.pool.QueryRow(ctx, `
		UPDATE roles SET name = $2, description = $3, is_active = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+roleColumns, role.ID, role.Name, role.Description, role.IsActive))
	if err != nil {
		return Role{}, mapUniqueViolation(err, "role name")
	}
	return updated, nil
}

// DeleteRole removes a role and its grants. Returns httpx.ErrNotFound when
// nothing was deleted.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return httpx.ErrNotFound
		}
		return nil
	})
}

// CountRoleUsers reports how many users reference the role.
func (r *PGRepository) CountRoleUsers(ctx context.Context, roleID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role_id = $1`, roleID).Scan(&count)
	return count, err
}

const permissionColumns = `id, name, description, module, is_active, created_at, updated_at`

func scanPermission(row pgx.Row) (Permission, error) {
	var perm Permission
	err := row.Scan(&perm.ID, &perm.Name, &perm.Description, &perm.Module, &perm.IsActive, &perm.CreatedAt, &perm.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, httpx.ErrNotFound
		}
		return Permission{}, err
	}
	return perm, nil
}

// ListPermissions returns the whole catalog ordered by module then name.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY module, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// GetPermission fetches a permission by id.
func (r *PGRepository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	return scanPermission(r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id))
}

// CreatePermission inserts a new permission.
func (r *PGRepository) CreatePermission(ctx context.Context, perm Permission) (Permission, error) {
	created, err := scanPermission(r.pool.QueryRow(ctx, `
		INSERT INTO permissions (name, description, module, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING `+permissionColumns, perm.Name, perm.Description, perm.Module, perm.IsActive))
	if err != nil {
		return Permission{}, mapUniqueViolation(err, "permission name")
	}
	return created, nil
}

// UpdatePermission updates an existing permission.
func (r *PGRepository) UpdatePermission(ctx context.Context, perm Permission) (Permission, error) {
	updated, err := scanPermission(r.pool.QueryRow(ctx, `
		UPDATE permissions SET name = $2, description = $3, module = $4, is_active = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING `+permissionColumns, perm.ID, perm.Name, perm.Description, perm.Module, perm.IsActive))
	if err != nil {
		return Permission{}, mapUniqueViolation(err, "permission name")
	}
	return updated, nil
}

// DeletePermission removes a permission by id.
func (r *PGRepository) DeletePermission(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// CountPermissionRoles reports how many roles reference the permission.
func (r *PGRepository) CountPermissionRoles(ctx context.Context, permissionID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM role_permissions WHERE permission_id = $1`, permissionID).Scan(&count)
	return count, err
}

// CountPermissionsByIDs reports how many of the given ids exist in the
// catalog. Used to reject grants naming unknown permissions.
func (r *PGRepository) CountPermissionsByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM permissions WHERE id = ANY($1)`, ids).Scan(&count)
	return count, err
}

// ListGrants returns every role's permission id set.
func (r *PGRepository) ListGrants(ctx context.Context) (map[int64][]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT role_id, permission_id FROM role_permissions ORDER BY role_id, permission_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	grants := make(map[int64][]int64)
	for rows.Next() {
		var roleID, permID int64
		if err := rows.Scan(&roleID, &permID); err != nil {
			return nil, err
		}
		grants[roleID] = append(grants[roleID], permID)
	}
	return grants, rows.Err()
}

// RolePermissionIDs returns the permission ids attached to one role.
func (r *PGRepository) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1 ORDER BY permission_id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReplaceRolePermissions swaps the role's grant set for exactly the given
// ids in a single transaction. The role row itself must exist.
func (r *PGRepository) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return httpx.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, permID := range permissionIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO role_permissions (role_id, permission_id, created_at)
				VALUES ($1, $2, NOW())
				ON CONFLICT DO NOTHING`, roleID, permID); err != nil {
				return err
			}
		}
		return nil
	})
}

// UserGrant resolves the user's role name, admin flag and permission names.
func (r *PGRepository) UserGrant(ctx context.Context, userID int64) (UserGrant, error) {
	var grant UserGrant
	var roleID *int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(r.name, ''), u.is_admin, u.role_id
		FROM users u
		LEFT JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1`, userID).Scan(&grant.RoleName, &grant.IsAdmin, &roleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserGrant{}, httpx.ErrNotFound
		}
		return UserGrant{}, err
	}
	if roleID == nil {
		return grant, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT p.name
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1`, *roleID)
	if err != nil {
		return UserGrant{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return UserGrant{}, err
		}
		grant.Permissions = append(grant.Permissions, name)
	}
	return grant, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
