package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"forgeboard.dev/internal/ids"
)

// dummyPasswordHash is compared against whenever the identifier is unknown,
// so the unknown-user and wrong-password paths perform comparable work.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// UserService covers registration, credential verification and account state.
type UserService struct {
	users UserStore
	now   func() time.Time
}

// UserOption configures UserService.
type UserOption func(*UserService)

// WithUserClock overrides the time source (useful for tests).
func WithUserClock(fn func() time.Time) UserOption {
	return func(s *UserService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewUserService constructs a UserService.
func NewUserService(users UserStore, opts ...UserOption) *UserService {
	svc := &UserService{users: users, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Register creates an active account with the USER system role.
func (s *UserService) Register(ctx context.Context, username, email, password string) (*User, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// VerifyCredential resolves a username-or-email identifier and checks the
// password. Unknown identifiers and mismatched passwords both fail with
// ErrInvalidCredential; the unknown path still burns a bcrypt compare.
func (s *UserService) VerifyCredential(ctx context.Context, identifier, password string) (*User, error) {
	identifier = strings.TrimSpace(strings.ToLower(identifier))
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredential
	}
	user, err := s.users.FindByLogin(ctx, identifier)
	if err != nil {
		_ = VerifyPassword(dummyPasswordHash, password)
		return nil, ErrInvalidCredential
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredential
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}
	return user, nil
}

// Find returns a user by id.
func (s *UserService) Find(ctx context.Context, userID string) (*User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	return s.users.Find(ctx, userID)
}

// SetActive activates or deactivates an account. Accounts are never deleted;
// deactivation is the terminal admin action, and every open session of a
// deactivated user fails validation from that point on.
func (s *UserService) SetActive(ctx context.Context, userID string, active bool) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	return s.users.SetActive(ctx, userID, active)
}

// SetRole changes an account's system role.
func (s *UserService) SetRole(ctx context.Context, userID string, role SystemRole) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	if _, ok := ParseSystemRole(string(role)); !ok {
		return fmt.Errorf("%w: unsupported role %s", ErrInvalidInput, role)
	}
	return s.users.SetRole(ctx, userID, role)
}
