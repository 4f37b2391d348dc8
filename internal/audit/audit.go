// Package audit keeps an append-only record of privileged actions. Entries
// are never mutated; the only write besides append is age-based retention.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"forgeboard.dev/internal/ids"
)

// ErrInvalidInput marks a malformed entry (empty action or resource).
var ErrInvalidInput = errors.New("audit: invalid input")

// Entry is one append-only record of who did what to which resource.
type Entry struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ActorCount ranks a user by entry count within a window.
type ActorCount struct {
	UserID string `json:"user_id"`
	Count  int64  `json:"count"`
}

// UserStats aggregates one user's recent activity.
type UserStats struct {
	UserID     string           `json:"user_id"`
	Days       int              `json:"days"`
	Total      int64            `json:"total"`
	ByAction   map[string]int64 `json:"by_action"`
	ByResource map[string]int64 `json:"by_resource"`
	ByDay      map[string]int64 `json:"by_day"`
}

// SystemStats aggregates service-wide activity over a bounded recent window.
type SystemStats struct {
	Days       int              `json:"days"`
	Total      int64            `json:"total"`
	ByAction   map[string]int64 `json:"by_action"`
	ByResource map[string]int64 `json:"by_resource"`
	ByDay      map[string]int64 `json:"by_day"`
	ByHour     map[int]int64    `json:"by_hour"`
	TopActors  []ActorCount     `json:"top_actors"`
}

// Store persists audit entries.
type Store interface {
	Insert(ctx context.Context, e *Entry) error
	// InsertBatch writes entries and returns how many landed. The batch is
	// not required to be atomic: partial application on storage failure is
	// acceptable and must be visible via the count.
	InsertBatch(ctx context.Context, entries []Entry) (int, error)
	StatsForUser(ctx context.Context, userID string, since time.Time) (UserStats, error)
	SystemStats(ctx context.Context, since time.Time) (SystemStats, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Publisher receives entries after a successful write, e.g. a live SSE feed.
type Publisher interface {
	Publish(e Entry)
}

// Logger is the audit service. Writes are a side channel: callers treat a
// failed write as reportable, never as grounds to fail the primary operation.
type Logger struct {
	store Store
	pub   Publisher
	now   func() time.Time
}

// Option configures Logger.
type Option func(*Logger)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Logger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// WithPublisher forwards successfully written entries to pub.
func WithPublisher(pub Publisher) Option {
	return func(l *Logger) {
		l.pub = pub
	}
}

// NewLogger constructs a Logger.
func NewLogger(store Store, opts ...Option) *Logger {
	l := &Logger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends one entry. Action and resource are required.
func (l *Logger) Record(ctx context.Context, e Entry) (*Entry, error) {
	if err := validate(&e); err != nil {
		return nil, err
	}
	e.ID = ids.New()
	e.CreatedAt = l.now().UTC()
	if err := l.store.Insert(ctx, &e); err != nil {
		return nil, err
	}
	if l.pub != nil {
		l.pub.Publish(e)
	}
	return &e, nil
}

// RecordBatch appends entries with all-or-nothing validation: any invalid
// entry rejects the whole batch before a single write. The returned count is
// how many entries actually landed, which may trail len(entries) when the
// store fails partway through.
func (l *Logger) RecordBatch(ctx context.Context, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	for i := range entries {
		if err := validate(&entries[i]); err != nil {
			return 0, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	now := l.now().UTC()
	for i := range entries {
		entries[i].ID = ids.New()
		entries[i].CreatedAt = now
	}
	written, err := l.store.InsertBatch(ctx, entries)
	if l.pub != nil {
		for i := 0; i < written && i < len(entries); i++ {
			l.pub.Publish(entries[i])
		}
	}
	return written, err
}

// StatsForUser aggregates one user's entries over the last days days.
func (l *Logger) StatsForUser(ctx context.Context, userID string, days int) (UserStats, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserStats{}, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	if days <= 0 {
		days = 30
	}
	stats, err := l.store.StatsForUser(ctx, userID, l.windowStart(days))
	if err != nil {
		return UserStats{}, err
	}
	stats.UserID = userID
	stats.Days = days
	return stats, nil
}

// SystemStats aggregates service-wide entries over the last days days.
func (l *Logger) SystemStats(ctx context.Context, days int) (SystemStats, error) {
	if days <= 0 {
		days = 30
	}
	stats, err := l.store.SystemStats(ctx, l.windowStart(days))
	if err != nil {
		return SystemStats{}, err
	}
	stats.Days = days
	return stats, nil
}

// PurgeOlderThan irreversibly deletes entries older than days days and returns
// the count. Destructive maintenance: gate separately from request-path code.
func (l *Logger) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("%w: days must be positive", ErrInvalidInput)
	}
	return l.store.DeleteOlderThan(ctx, l.windowStart(days))
}

func (l *Logger) windowStart(days int) time.Time {
	return l.now().UTC().AddDate(0, 0, -days)
}

func validate(e *Entry) error {
	e.Action = strings.TrimSpace(e.Action)
	e.Resource = strings.TrimSpace(e.Resource)
	if e.Action == "" {
		return fmt.Errorf("%w: action is required", ErrInvalidInput)
	}
	if e.Resource == "" {
		return fmt.Errorf("%w: resource is required", ErrInvalidInput)
	}
	e.UserID = strings.TrimSpace(e.UserID)
	e.ResourceID = strings.TrimSpace(e.ResourceID)
	return nil
}
