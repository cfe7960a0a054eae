package auth

import "time"

// User represents an authenticated user account. RoleID is nil for accounts
// that have not been assigned a role; such accounts hold no permissions
// unless IsAdmin is set.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	RoleID       *int64
	RoleName     string
	IsAdmin      bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
