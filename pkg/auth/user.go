// Package auth provides user identity, credential verification, token
// issuance, and role-checked administration.
package auth

import (
	"context"
	"errors"
	"time"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

var roleLevels = map[Role]int{
	RoleUser:       1,
	RoleAdmin:      2,
	RoleSuperAdmin: 3,
}

// AtLeast reports whether r grants at least the privileges of other.
func (r Role) AtLeast(other Role) bool {
	return roleLevels[r] >= roleLevels[other]
}

func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// User is the stored identity. PasswordHash never leaves the process
// boundary.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	LastLogin    time.Time `json:"last_login,omitempty"`
}

var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInactiveUser       = errors.New("account is deactivated")
	ErrForbidden          = errors.New("insufficient role")
	ErrSelfTarget         = errors.New("operation cannot target the acting user")
	ErrLastSuperAdmin     = errors.New("cannot demote or delete the sole super admin")
)

// UserStore persists users. Email lookups are case-insensitive;
// implementations store emails lowercased.
type UserStore interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*User, error)
	CountByRole(ctx context.Context, role Role) (int, error)
	Close() error
}
