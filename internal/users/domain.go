package users

import "time"

// User represents a user account for management. The password hash never
// leaves this package.
type User struct {
	ID        int64
	Name      string
	Email     string
	RoleID    *int64
	RoleName  string
	IsAdmin   bool
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
