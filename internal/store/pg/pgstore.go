// Package pg implements the auth and audit repositories on PostgreSQL.
// Row-level atomicity of the store resolves read-modify-write races; services
// hold no in-process locks.
package pg

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store bundles one repository per auth concern over a shared pool.
type Store struct {
	db          *sql.DB
	users       *Users
	sessions    *Sessions
	memberships *Memberships
	audit       *AuditLog
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewWithDB(db), nil
}

// NewWithDB wraps an existing handle (tests use sqlmock through this).
func NewWithDB(db *sql.DB) *Store {
	return &Store{
		db:          db,
		users:       &Users{db: db},
		sessions:    &Sessions{db: db},
		memberships: &Memberships{db: db},
		audit:       &AuditLog{db: db},
	}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users() *Users             { return s.users }
func (s *Store) Sessions() *Sessions       { return s.sessions }
func (s *Store) Memberships() *Memberships { return s.memberships }
func (s *Store) Audit() *AuditLog          { return s.audit }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
