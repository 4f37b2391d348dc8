package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"forgeboard.dev/internal/ids"
)

const (
	// DefaultSessionTTL is the lifetime of a freshly created session.
	DefaultSessionTTL = 24 * time.Hour
	// slidingThreshold is how close to expiry a validated session must be
	// before its window is extended.
	slidingThreshold = time.Hour
	// sessionTokenBytes yields a 256-bit hex-encoded bearer token.
	sessionTokenBytes = 32
)

// SessionService owns session issuance, validity and sliding expiration.
type SessionService struct {
	sessions SessionStore
	users    UserStore
	now      func() time.Time
}

// SessionOption configures SessionService.
type SessionOption func(*SessionService)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) SessionOption {
	return func(s *SessionService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewSessionService constructs a SessionService.
func NewSessionService(sessions SessionStore, users UserStore, opts ...SessionOption) *SessionService {
	svc := &SessionService{
		sessions: sessions,
		users:    users,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// ValidationResult is the outcome of Validate. Reason carries the taxonomy
// sentinel (ErrNotFound, ErrExpired, ErrUserDisabled) when Valid is false so
// callers can log and count each failure kind separately instead of collapsing
// them into one "unauthorized" signal.
type ValidationResult struct {
	Valid   bool
	Session *Session
	Reason  error
}

// Create issues a new session for userID. The token carries at least 256 bits
// of entropy; collisions are treated as impossible. Creation also stamps the
// user's last login time.
func (s *SessionService) Create(ctx context.Context, userID, ip, userAgent string, ttl time.Duration) (*Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	token, err := ids.NewSecret(sessionTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	now := s.now().UTC()
	session := &Session{
		ID:        ids.New(),
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		IPAddress: strings.TrimSpace(ip),
		UserAgent: strings.TrimSpace(userAgent),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	if err := s.users.TouchLastLogin(ctx, userID, now); err != nil {
		// The caller sees an error and never learns the token; remove the
		// row so it does not linger until sweep.
		_ = s.sessions.DeleteByToken(ctx, session.Token)
		return nil, err
	}
	return session, nil
}

// GetByToken resolves a token to its session. Fails ErrNotFound when no row
// exists, ErrExpired when the window has passed and ErrUserDisabled when the
// owning user is inactive. The three kinds stay distinguishable for callers.
func (s *SessionService) GetByToken(ctx context.Context, token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrInvalidInput)
	}
	session, err := s.sessions.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !s.now().Before(session.ExpiresAt) {
		return nil, ErrExpired
	}
	user, err := s.users.Find(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}
	return session, nil
}

// Validate wraps GetByToken and slides the expiration window: a session seen
// with less than an hour remaining is extended to now+24h before returning.
// The extension is best-effort and last-write-wins; two concurrent validations
// inside the threshold may both extend, which is a redundant write, not a bug.
func (s *SessionService) Validate(ctx context.Context, token string) (ValidationResult, error) {
	session, err := s.GetByToken(ctx, token)
	if err != nil {
		switch {
		case isValidationFailure(err):
			return ValidationResult{Valid: false, Reason: err}, nil
		default:
			return ValidationResult{}, err
		}
	}
	now := s.now().UTC()
	if session.ExpiresAt.Sub(now) < slidingThreshold {
		extended := now.Add(DefaultSessionTTL)
		if err := s.sessions.UpdateExpiry(ctx, session.ID, extended); err == nil {
			session.ExpiresAt = extended
		}
		// A failed extension (e.g. raced with revocation) does not
		// invalidate a session that was valid at read time.
	}
	return ValidationResult{Valid: true, Session: session}, nil
}

// Extend pushes a session's expiry to now+by. Fails ErrNotFound when the
// session raced with deletion.
func (s *SessionService) Extend(ctx context.Context, sessionID string, by time.Duration) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("%w: sessionID is required", ErrInvalidInput)
	}
	if by <= 0 {
		by = DefaultSessionTTL
	}
	return s.sessions.UpdateExpiry(ctx, sessionID, s.now().UTC().Add(by))
}

// Revoke deletes the session holding token. Revoking an absent token succeeds
// silently: delete-then-confirm semantics.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidInput)
	}
	return s.sessions.DeleteByToken(ctx, token)
}

// RevokeAll deletes every session owned by userID and returns the count.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	return s.sessions.DeleteByUser(ctx, userID)
}

// ListForUser returns the user's concurrent sessions.
func (s *SessionService) ListForUser(ctx context.Context, userID string) ([]Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	return s.sessions.ListByUser(ctx, userID)
}

// SweepExpired deletes all sessions past their expiry and returns the count.
// Intended for a periodic trigger, never the request path.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.now().UTC())
}

// Stats returns aggregate counts over the session table.
func (s *SessionService) Stats(ctx context.Context) (SessionStats, error) {
	return s.sessions.Stats(ctx, s.now().UTC())
}

func isValidationFailure(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrUserDisabled)
}
