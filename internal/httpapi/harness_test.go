package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"forgeboard.dev/internal/audit"
	"forgeboard.dev/internal/auth"
	"forgeboard.dev/internal/stream"
)

// In-memory stores backing the real services under test.

type memUsers struct {
	users map[string]*auth.User
}

func (m *memUsers) Create(ctx context.Context, u *auth.User) error {
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return auth.ErrConflict
		}
	}
	copied := *u
	m.users[u.ID] = &copied
	return nil
}

func (m *memUsers) Find(ctx context.Context, id string) (*auth.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memUsers) FindByLogin(ctx context.Context, identifier string) (*auth.User, error) {
	for _, u := range m.users {
		if u.Username == identifier || u.Email == identifier {
			copied := *u
			return &copied, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memUsers) SetActive(ctx context.Context, id string, active bool) error {
	u, ok := m.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (m *memUsers) SetRole(ctx context.Context, id string, role auth.SystemRole) error {
	u, ok := m.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.Role = role
	return nil
}

func (m *memUsers) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

type memSessions struct {
	sessions map[string]*auth.Session
}

func (m *memSessions) Create(ctx context.Context, s *auth.Session) error {
	copied := *s
	m.sessions[s.Token] = &copied
	return nil
}

func (m *memSessions) FindByToken(ctx context.Context, token string) (*auth.Session, error) {
	s, ok := m.sessions[token]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *memSessions) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	for _, s := range m.sessions {
		if s.ID == id {
			s.ExpiresAt = expiresAt
			return nil
		}
	}
	return auth.ErrNotFound
}

func (m *memSessions) DeleteByToken(ctx context.Context, token string) error {
	delete(m.sessions, token)
	return nil
}

func (m *memSessions) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	for token, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for token, s := range m.sessions {
		if s.ExpiresAt.Before(now) {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) ListByUser(ctx context.Context, userID string) ([]auth.Session, error) {
	var out []auth.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSessions) Stats(ctx context.Context, now time.Time) (auth.SessionStats, error) {
	var stats auth.SessionStats
	for _, s := range m.sessions {
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

type memKey struct{ projectID, userID string }

type memMemberships struct {
	memberships map[memKey]*auth.ProjectMembership
}

func (m *memMemberships) Create(ctx context.Context, mem *auth.ProjectMembership) error {
	key := memKey{mem.ProjectID, mem.UserID}
	if _, ok := m.memberships[key]; ok {
		return auth.ErrConflict
	}
	copied := *mem
	m.memberships[key] = &copied
	return nil
}

func (m *memMemberships) Find(ctx context.Context, projectID, userID string) (*auth.ProjectMembership, error) {
	mem, ok := m.memberships[memKey{projectID, userID}]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copied := *mem
	return &copied, nil
}

func (m *memMemberships) UpdateRole(ctx context.Context, projectID, userID string, role auth.ProjectRole) error {
	mem, ok := m.memberships[memKey{projectID, userID}]
	if !ok {
		return auth.ErrNotFound
	}
	mem.Role = role
	return nil
}

func (m *memMemberships) SetPermissions(ctx context.Context, projectID, userID string, perms []auth.Permission) error {
	mem, ok := m.memberships[memKey{projectID, userID}]
	if !ok {
		return auth.ErrNotFound
	}
	mem.Permissions = perms
	return nil
}

func (m *memMemberships) Delete(ctx context.Context, projectID, userID string) error {
	key := memKey{projectID, userID}
	if _, ok := m.memberships[key]; !ok {
		return auth.ErrNotFound
	}
	delete(m.memberships, key)
	return nil
}

func (m *memMemberships) ListByProject(ctx context.Context, projectID string) ([]auth.ProjectMembership, error) {
	var out []auth.ProjectMembership
	for key, mem := range m.memberships {
		if key.projectID == projectID {
			out = append(out, *mem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memMemberships) CountOwners(ctx context.Context, projectID string) (int, error) {
	count := 0
	for key, mem := range m.memberships {
		if key.projectID == projectID && mem.Role == auth.ProjectRoleOwner {
			count++
		}
	}
	return count, nil
}

type memAudit struct {
	entries []audit.Entry
}

func (m *memAudit) Insert(ctx context.Context, e *audit.Entry) error {
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memAudit) InsertBatch(ctx context.Context, entries []audit.Entry) (int, error) {
	m.entries = append(m.entries, entries...)
	return len(entries), nil
}

func (m *memAudit) StatsForUser(ctx context.Context, userID string, since time.Time) (audit.UserStats, error) {
	stats := audit.UserStats{
		ByAction:   map[string]int64{},
		ByResource: map[string]int64{},
		ByDay:      map[string]int64{},
	}
	for _, e := range m.entries {
		if e.UserID == userID && !e.CreatedAt.Before(since) {
			stats.Total++
			stats.ByAction[e.Action]++
			stats.ByResource[e.Resource]++
		}
	}
	return stats, nil
}

func (m *memAudit) SystemStats(ctx context.Context, since time.Time) (audit.SystemStats, error) {
	stats := audit.SystemStats{
		ByAction:   map[string]int64{},
		ByResource: map[string]int64{},
		ByDay:      map[string]int64{},
		ByHour:     map[int]int64{},
	}
	for _, e := range m.entries {
		if !e.CreatedAt.Before(since) {
			stats.Total++
			stats.ByAction[e.Action]++
		}
	}
	return stats, nil
}

func (m *memAudit) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var kept []audit.Entry
	var n int64
	for _, e := range m.entries {
		if e.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return n, nil
}

// testEnv bundles the API under test with direct handles on its state.
type testEnv struct {
	api         *API
	users       *memUsers
	sessions    *memSessions
	memberships *memMemberships
	audit       *memAudit
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		users:       &memUsers{users: make(map[string]*auth.User)},
		sessions:    &memSessions{sessions: make(map[string]*auth.Session)},
		memberships: &memMemberships{memberships: make(map[memKey]*auth.ProjectMembership)},
		audit:       &memAudit{},
	}
	env.api = New(ReadyProbe{}, "test", Services{
		Sessions:    auth.NewSessionService(env.sessions, env.users),
		Users:       auth.NewUserService(env.users),
		Memberships: auth.NewMembershipService(env.memberships),
		Resolver:    auth.NewResolver(env.users, env.memberships),
		Audit:       audit.NewLogger(env.audit),
		Stream:      stream.New(),
	})
	return env
}

func (e *testEnv) addUser(t *testing.T, id, username string, role auth.SystemRole, active bool) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	now := time.Now().UTC()
	u := &auth.User{
		ID: id, Username: username, Email: username + "@example.com",
		PasswordHash: hash, Role: role, IsActive: active,
		CreatedAt: now, UpdatedAt: now,
	}
	e.users.users[id] = u
	return u
}

func (e *testEnv) addSession(t *testing.T, userID, token string, expiresAt time.Time) *auth.Session {
	t.Helper()
	s := &auth.Session{
		ID: "sess-" + token, Token: token, UserID: userID,
		ExpiresAt: expiresAt, CreatedAt: time.Now().UTC(),
	}
	e.sessions.sessions[token] = s
	return s
}

// do routes a request through the full authenticated handler stack, skipping
// only the outer rate limiter so tests never trip it.
func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler := RequestID(e.api.withAuth(e.api.mux))
	handler.ServeHTTP(rr, req)
	return rr
}
