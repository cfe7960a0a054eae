package rbac

import "time"

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission represents an atomic capability. Module is a free-form grouping
// label used by the admin UI, not a foreign key.
type Permission struct {
	ID          int64
	Name        string
	Description string
	Module      string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Matrix is the Role x Permission grid projected for bulk editing. Grants
// maps a role id to the set of permission ids currently attached to it.
type Matrix struct {
	Roles       []Role
	Permissions []Permission
	Grants      map[int64][]int64
}

// RoleResult reports the outcome of a matrix commit for a single role.
// Commits are independent per role; a failed role leaves the others
// committed.
type RoleResult struct {
	RoleID int64
	Err    error
}
