package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AdminOp is a role-checked administrative operation on a target user.
type AdminOp string

const (
	OpActivate    AdminOp = "activate"
	OpDeactivate  AdminOp = "deactivate"
	OpGrantAdmin  AdminOp = "grant_admin"
	OpRevokeAdmin AdminOp = "revoke_admin"
	OpDelete      AdminOp = "delete"
)

// destructive ops cannot target the acting user.
func (op AdminOp) destructive() bool {
	switch op {
	case OpDeactivate, OpRevokeAdmin, OpDelete:
		return true
	}
	return false
}

// Service implements registration, login, token verification, and
// administration over a UserStore.
type Service struct {
	store  UserStore
	issuer *TokenIssuer
	now    func() time.Time
}

func NewService(store UserStore, issuer *TokenIssuer) *Service {
	return &Service{store: store, issuer: issuer, now: time.Now}
}

// Register creates a user with the default role. Duplicate emails are
// rejected case-insensitively.
func (s *Service) Register(ctx context.Context, email, password, fullName string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("a valid email address is required")
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(fullName),
		Role:         RoleUser,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks credentials and returns a signed token. The
// same error covers unknown email and wrong password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, *User, error) {
	user, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if !CheckPassword(user.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", nil, ErrInactiveUser
	}

	user.LastLogin = s.now().UTC()
	if err := s.store.Update(ctx, user); err != nil {
		return "", nil, fmt.Errorf("failed to record login: %w", err)
	}

	token, err := s.issuer.Issue(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Token signs a fresh token for an already-verified user.
func (s *Service) Token(user *User) (string, error) {
	return s.issuer.Issue(user)
}

// Verify checks the token signature and expiry and confirms the
// subject still exists and is active.
func (s *Service) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := s.issuer.Verify(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid token: unknown subject")
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return claims, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.store.List(ctx)
}

// Administer applies op to the target user on behalf of the actor.
// The actor needs at least the admin role; ops against a super admin
// need the super admin role; destructive ops cannot be self-targeted.
func (s *Service) Administer(ctx context.Context, actor *Claims, targetID string, op AdminOp) (*User, error) {
	if actor == nil || !actor.Role.AtLeast(RoleAdmin) {
		return nil, ErrForbidden
	}
	if op.destructive() && actor.Subject == targetID {
		return nil, ErrSelfTarget
	}

	target, err := s.store.GetByID(ctx, targetID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	if target.Role == RoleSuperAdmin && actor.Role != RoleSuperAdmin {
		return nil, ErrForbidden
	}

	switch op {
	case OpActivate:
		target.IsActive = true
	case OpDeactivate:
		if err := s.guardLastSuperAdmin(ctx, target); err != nil {
			return nil, err
		}
		target.IsActive = false
	case OpGrantAdmin:
		if target.Role != RoleSuperAdmin {
			target.Role = RoleAdmin
		}
	case OpRevokeAdmin:
		if err := s.guardLastSuperAdmin(ctx, target); err != nil {
			return nil, err
		}
		target.Role = RoleUser
	case OpDelete:
		if err := s.guardLastSuperAdmin(ctx, target); err != nil {
			return nil, err
		}
		if err := s.store.Delete(ctx, targetID); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown admin operation: %s", op)
	}

	if err := s.store.Update(ctx, target); err != nil {
		return nil, err
	}
	return target, nil
}

func (s *Service) guardLastSuperAdmin(ctx context.Context, target *User) error {
	if target.Role != RoleSuperAdmin {
		return nil
	}
	count, err := s.store.CountByRole(ctx, RoleSuperAdmin)
	if err != nil {
		return err
	}
	if count <= 1 {
		return ErrLastSuperAdmin
	}
	return nil
}

// EnsureSuperAdmin provisions the super admin on cold start. An
// existing user with the email is promoted rather than duplicated.
func (s *Service) EnsureSuperAdmin(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)

	if existing, err := s.store.GetByEmail(ctx, email); err == nil {
		if existing.Role != RoleSuperAdmin {
			existing.Role = RoleSuperAdmin
			if err := s.store.Update(ctx, existing); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}

	if err := ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("super admin password: %w", err)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FullName:     "Administrator",
		Role:         RoleSuperAdmin,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}
	slog.Info("Provisioned super admin account", "email", email)
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
