package auth

import (
	"context"
	"sort"
	"time"
)

// In-memory store fakes shared across the package tests.

type fakeUserStore struct {
	users map[string]*User

	findErr   error
	touchErr  error
	touchedAt map[string]time.Time
	createErr error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:     make(map[string]*User),
		touchedAt: make(map[string]time.Time),
	}
}

func (f *fakeUserStore) Create(ctx context.Context, u *User) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return ErrConflict
		}
	}
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

func (f *fakeUserStore) Find(ctx context.Context, id string) (*User, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserStore) FindByLogin(ctx context.Context, identifier string) (*User, error) {
	for _, u := range f.users {
		if u.Username == identifier || u.Email == identifier {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeUserStore) SetActive(ctx context.Context, id string, active bool) error {
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (f *fakeUserStore) SetRole(ctx context.Context, id string, role SystemRole) error {
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	return nil
}

func (f *fakeUserStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	if f.touchErr != nil {
		return f.touchErr
	}
	if _, ok := f.users[id]; !ok {
		return ErrNotFound
	}
	f.touchedAt[id] = at
	return nil
}

type fakeSessionStore struct {
	sessions map[string]*Session // keyed by token

	updateExpiryErr error
	createErr       error
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*Session)}
}

func (f *fakeSessionStore) Create(ctx context.Context, s *Session) error {
	if f.createErr != nil {
		return f.createErr
	}
	copied := *s
	f.sessions[s.Token] = &copied
	return nil
}

func (f *fakeSessionStore) FindByToken(ctx context.Context, token string) (*Session, error) {
	s, ok := f.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSessionStore) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	if f.updateExpiryErr != nil {
		return f.updateExpiryErr
	}
	for _, s := range f.sessions {
		if s.ID == id {
			s.ExpiresAt = expiresAt
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeSessionStore) DeleteByToken(ctx context.Context, token string) error {
	delete(f.sessions, token)
	return nil
}

func (f *fakeSessionStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	for token, s := range f.sessions {
		if s.UserID == userID {
			delete(f.sessions, token)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for token, s := range f.sessions {
		if s.ExpiresAt.Before(now) {
			delete(f.sessions, token)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessionStore) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	var out []Session
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeSessionStore) Stats(ctx context.Context, now time.Time) (SessionStats, error) {
	var stats SessionStats
	for _, s := range f.sessions {
		stats.Total++
		if s.ExpiresAt.Before(now) {
			stats.Expired++
		} else {
			stats.Active++
		}
		if s.CreatedAt.After(now.Add(-24 * time.Hour)) {
			stats.Recent24++
		}
	}
	return stats, nil
}

type membershipKey struct {
	projectID string
	userID    string
}

type fakeMembershipStore struct {
	memberships map[membershipKey]*ProjectMembership
}

func newFakeMembershipStore() *fakeMembershipStore {
	return &fakeMembershipStore{memberships: make(map[membershipKey]*ProjectMembership)}
}

func (f *fakeMembershipStore) Create(ctx context.Context, m *ProjectMembership) error {
	key := membershipKey{m.ProjectID, m.UserID}
	if _, ok := f.memberships[key]; ok {
		return ErrConflict
	}
	copied := *m
	f.memberships[key] = &copied
	return nil
}

func (f *fakeMembershipStore) Find(ctx context.Context, projectID, userID string) (*ProjectMembership, error) {
	m, ok := f.memberships[membershipKey{projectID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *m
	return &copied, nil
}

func (f *fakeMembershipStore) UpdateRole(ctx context.Context, projectID, userID string, role ProjectRole) error {
	m, ok := f.memberships[membershipKey{projectID, userID}]
	if !ok {
		return ErrNotFound
	}
	m.Role = role
	return nil
}

func (f *fakeMembershipStore) SetPermissions(ctx context.Context, projectID, userID string, perms []Permission) error {
	m, ok := f.memberships[membershipKey{projectID, userID}]
	if !ok {
		return ErrNotFound
	}
	m.Permissions = perms
	return nil
}

func (f *fakeMembershipStore) Delete(ctx context.Context, projectID, userID string) error {
	key := membershipKey{projectID, userID}
	if _, ok := f.memberships[key]; !ok {
		return ErrNotFound
	}
	delete(f.memberships, key)
	return nil
}

func (f *fakeMembershipStore) ListByProject(ctx context.Context, projectID string) ([]ProjectMembership, error) {
	var out []ProjectMembership
	for key, m := range f.memberships {
		if key.projectID == projectID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *fakeMembershipStore) CountOwners(ctx context.Context, projectID string) (int, error) {
	count := 0
	for key, m := range f.memberships {
		if key.projectID == projectID && m.Role == ProjectRoleOwner {
			count++
		}
	}
	return count, nil
}

func seedUser(store *fakeUserStore, id, username string, role SystemRole, active bool) *User {
	hash, _ := HashPassword("correct horse battery staple")
	u := &User{
		ID:           id,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		IsActive:     active,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	store.users[id] = u
	return u
}
