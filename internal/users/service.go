package users

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/recycleops/recycleops/internal/platform/httpx"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, name, email, passwordHash string, roleID *int64, isAdmin bool) (User, error)
	AssignRole(ctx context.Context, userID int64, roleID *int64) (User, error)
}

// Service handles user business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser fetches one account.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser registers a new account. The email is stored lower-cased so
// lookups stay case-insensitive; the password is hashed before it reaches
// the repository and is never persisted in plaintext.
func (s *Service) CreateUser(ctx context.Context, name, email, password string, roleID *int64, isAdmin bool) (User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return User{}, fmt.Errorf("%w: name and email required", httpx.ErrValidation)
	}
	if len(password) < 8 {
		return User{}, fmt.Errorf("%w: password must be at least 8 characters", httpx.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	return s.repo.CreateUser(ctx, name, email, string(hash), roleID, isAdmin)
}

// AssignRole reassigns (or clears) the user's role.
func (s *Service) AssignRole(ctx context.Context, userID int64, roleID *int64) (User, error) {
	return s.repo.AssignRole(ctx, userID, roleID)
}
