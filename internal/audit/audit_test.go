package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	entries []Entry

	insertErr     error
	failAfter     int // InsertBatch fails once this many entries landed (-1 disables)
	lastUserSince time.Time
	lastSysSince  time.Time
	deleteCutoff  time.Time
	deleted       int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{failAfter: -1}
}

func (f *fakeStore) Insert(ctx context.Context, e *Entry) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeStore) InsertBatch(ctx context.Context, entries []Entry) (int, error) {
	written := 0
	for i := range entries {
		if f.failAfter >= 0 && written == f.failAfter {
			return written, errors.New("storage failure")
		}
		f.entries = append(f.entries, entries[i])
		written++
	}
	return written, nil
}

func (f *fakeStore) StatsForUser(ctx context.Context, userID string, since time.Time) (UserStats, error) {
	f.lastUserSince = since
	return UserStats{Total: int64(len(f.entries))}, nil
}

func (f *fakeStore) SystemStats(ctx context.Context, since time.Time) (SystemStats, error) {
	f.lastSysSince = since
	return SystemStats{Total: int64(len(f.entries))}, nil
}

func (f *fakeStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.deleteCutoff = cutoff
	return f.deleted, nil
}

type capturingPublisher struct {
	published []Entry
}

func (p *capturingPublisher) Publish(e Entry) { p.published = append(p.published, e) }

func TestRecordStampsEntry(t *testing.T) {
	store := newFakeStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	logger := NewLogger(store, WithClock(func() time.Time { return base }))

	entry, err := logger.Record(context.Background(), Entry{
		UserID:   "u1",
		Action:   " auth.login ",
		Resource: "session",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if entry.ID == "" {
		t.Fatal("expected an id")
	}
	if !entry.CreatedAt.Equal(base) {
		t.Fatalf("created_at %v, want %v", entry.CreatedAt, base)
	}
	if entry.Action != "auth.login" {
		t.Fatalf("action not trimmed: %q", entry.Action)
	}
	if len(store.entries) != 1 {
		t.Fatalf("stored %d entries, want 1", len(store.entries))
	}
}

func TestRecordValidation(t *testing.T) {
	logger := NewLogger(newFakeStore())
	if _, err := logger.Record(context.Background(), Entry{Resource: "session"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing action: %v", err)
	}
	if _, err := logger.Record(context.Background(), Entry{Action: "auth.login"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing resource: %v", err)
	}
}

func TestRecordPublishes(t *testing.T) {
	store := newFakeStore()
	pub := &capturingPublisher{}
	logger := NewLogger(store, WithPublisher(pub))

	if _, err := logger.Record(context.Background(), Entry{Action: "a", Resource: "r"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("published %d entries, want 1", len(pub.published))
	}

	// A failed write publishes nothing.
	store.insertErr = errors.New("down")
	if _, err := logger.Record(context.Background(), Entry{Action: "a", Resource: "r"}); err == nil {
		t.Fatal("expected store error")
	}
	if len(pub.published) != 1 {
		t.Fatalf("failed write still published: %d", len(pub.published))
	}
}

func TestRecordBatchAllOrNothingValidation(t *testing.T) {
	store := newFakeStore()
	logger := NewLogger(store)

	written, err := logger.RecordBatch(context.Background(), []Entry{
		{Action: "a", Resource: "r"},
		{Action: "", Resource: "r"},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if written != 0 {
		t.Fatalf("invalid batch wrote %d entries", written)
	}
	if len(store.entries) != 0 {
		t.Fatal("invalid batch must not touch storage")
	}
}

func TestRecordBatchPartialWriteIsVisible(t *testing.T) {
	store := newFakeStore()
	store.failAfter = 2
	pub := &capturingPublisher{}
	logger := NewLogger(store, WithPublisher(pub))

	written, err := logger.RecordBatch(context.Background(), []Entry{
		{Action: "a", Resource: "r"},
		{Action: "b", Resource: "r"},
		{Action: "c", Resource: "r"},
	})
	if err == nil {
		t.Fatal("expected storage failure")
	}
	if written != 2 {
		t.Fatalf("written %d, want 2", written)
	}
	// Only the landed prefix is published.
	if len(pub.published) != 2 {
		t.Fatalf("published %d, want 2", len(pub.published))
	}
}

func TestRecordBatchEmpty(t *testing.T) {
	logger := NewLogger(newFakeStore())
	written, err := logger.RecordBatch(context.Background(), nil)
	if err != nil || written != 0 {
		t.Fatalf("empty batch: written=%d err=%v", written, err)
	}
}

func TestStatsWindowDefaults(t *testing.T) {
	store := newFakeStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	logger := NewLogger(store, WithClock(func() time.Time { return base }))

	stats, err := logger.StatsForUser(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("StatsForUser: %v", err)
	}
	if stats.Days != 30 {
		t.Fatalf("days %d, want default 30", stats.Days)
	}
	if !store.lastUserSince.Equal(base.AddDate(0, 0, -30)) {
		t.Fatalf("window start %v", store.lastUserSince)
	}

	sys, err := logger.SystemStats(context.Background(), 7)
	if err != nil {
		t.Fatalf("SystemStats: %v", err)
	}
	if sys.Days != 7 {
		t.Fatalf("days %d, want 7", sys.Days)
	}
	if !store.lastSysSince.Equal(base.AddDate(0, 0, -7)) {
		t.Fatalf("window start %v", store.lastSysSince)
	}

	if _, err := logger.StatsForUser(context.Background(), " ", 7); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank user: %v", err)
	}
}

func TestPurgeOlderThan(t *testing.T) {
	store := newFakeStore()
	store.deleted = 12
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	logger := NewLogger(store, WithClock(func() time.Time { return base }))

	purged, err := logger.PurgeOlderThan(context.Background(), 90)
	if err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if purged != 12 {
		t.Fatalf("purged %d, want 12", purged)
	}
	if !store.deleteCutoff.Equal(base.AddDate(0, 0, -90)) {
		t.Fatalf("cutoff %v", store.deleteCutoff)
	}

	if _, err := logger.PurgeOlderThan(context.Background(), 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero days: %v", err)
	}
}
