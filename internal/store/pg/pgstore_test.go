package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"forgeboard.dev/internal/audit"
	"forgeboard.dev/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func expectMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUsersCreateMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("insert into users").
		WithArgs("u1", "alice", "alice@example.com", "hash", "user", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Users().Create(context.Background(), &auth.User{
		ID: "u1", Username: "alice", Email: "alice@example.com",
		PasswordHash: "hash", Role: auth.RoleUser, IsActive: true,
	})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	expectMet(t, mock)
}

func TestUsersFindNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select id, username, email, password_hash, role, is_active, last_login_at.*from users").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := store.Users().Find(context.Background(), "ghost"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestUsersFindScansNullableLastLogin(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "role", "is_active", "last_login_at", "created_at", "updated_at"}).
		AddRow("u1", "alice", "alice@example.com", "hash", "admin", true, nil, now, now)
	mock.ExpectQuery("select id, username, email, password_hash, role, is_active, last_login_at.*from users").
		WithArgs("u1").
		WillReturnRows(rows)

	user, err := store.Users().Find(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if user.LastLoginAt != nil {
		t.Fatalf("expected nil last login, got %v", user.LastLoginAt)
	}
	if user.Role != auth.RoleAdmin {
		t.Fatalf("role %s, want admin", user.Role)
	}
	expectMet(t, mock)
}

func TestUsersSetActiveNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("update users set is_active").
		WithArgs("ghost", false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Users().SetActive(context.Background(), "ghost", false); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestSessionsCreateMapsForeignKeyToNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("insert into sessions").
		WithArgs("s1", "tok", "ghost", sqlmock.AnyArg(), "", "", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	err := store.Sessions().Create(context.Background(), &auth.Session{
		ID: "s1", Token: "tok", UserID: "ghost",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestSessionsDeleteByTokenIsIdempotent(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("delete from sessions where token").
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Sessions().DeleteByToken(context.Background(), "gone"); err != nil {
		t.Fatalf("deleting an absent token must succeed: %v", err)
	}
	expectMet(t, mock)
}

func TestSessionsDeleteExpiredCounts(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("delete from sessions where expires_at").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := store.Sessions().DeleteExpired(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 7 {
		t.Fatalf("deleted %d, want 7", n)
	}
	expectMet(t, mock)
}

func TestSessionsStats(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"total", "active", "expired", "recent"}).AddRow(10, 6, 4, 3)
	mock.ExpectQuery("select.*count.*from sessions").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	stats, err := store.Sessions().Stats(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 10 || stats.Active != 6 || stats.Expired != 4 || stats.Recent24 != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	expectMet(t, mock)
}

func TestMembershipsPermissionsRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectExec("insert into project_memberships").
		WithArgs("p1", "u1", "viewer", []byte(`["task:delete"]`), now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Memberships().Create(context.Background(), &auth.ProjectMembership{
		ProjectID: "p1", UserID: "u1", Role: auth.ProjectRoleViewer,
		Permissions: []auth.Permission{auth.PermTaskDelete},
		CreatedAt:   now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rows := sqlmock.NewRows([]string{"project_id", "user_id", "role", "permissions", "created_at", "updated_at"}).
		AddRow("p1", "u1", "viewer", []byte(`["task:delete"]`), now, now)
	mock.ExpectQuery("select project_id, user_id, role, permissions.*from project_memberships").
		WithArgs("p1", "u1").
		WillReturnRows(rows)

	m, err := store.Memberships().Find(context.Background(), "p1", "u1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(m.Permissions) != 1 || m.Permissions[0] != auth.PermTaskDelete {
		t.Fatalf("permissions not decoded: %v", m.Permissions)
	}
	expectMet(t, mock)
}

func TestMembershipsCountOwners(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select count.*from project_memberships").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := store.Memberships().CountOwners(context.Background(), "p1")
	if err != nil {
		t.Fatalf("CountOwners: %v", err)
	}
	if n != 2 {
		t.Fatalf("owners %d, want 2", n)
	}
	expectMet(t, mock)
}

func TestAuditInsertBatchReportsPartialWrite(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	entries := []audit.Entry{
		{ID: "e1", Action: "a", Resource: "r", CreatedAt: now},
		{ID: "e2", Action: "b", Resource: "r", CreatedAt: now},
		{ID: "e3", Action: "c", Resource: "r", CreatedAt: now},
	}
	mock.ExpectExec("insert into audit_logs").
		WithArgs("e1", "", "a", "r", "", []byte("{}"), "", "", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into audit_logs").
		WithArgs("e2", "", "b", "r", "", []byte("{}"), "", "", now).
		WillReturnError(errors.New("connection reset"))

	written, err := store.Audit().InsertBatch(context.Background(), entries)
	if err == nil {
		t.Fatal("expected storage failure")
	}
	if written != 1 {
		t.Fatalf("written %d, want 1", written)
	}
	expectMet(t, mock)
}

func TestAuditDeleteOlderThan(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Now().UTC().AddDate(0, 0, -90)
	mock.ExpectExec("delete from audit_logs where created_at").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 41))

	n, err := store.Audit().DeleteOlderThan(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if n != 41 {
		t.Fatalf("deleted %d, want 41", n)
	}
	expectMet(t, mock)
}
