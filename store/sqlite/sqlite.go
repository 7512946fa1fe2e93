/*
Package sqlite provides the normalized-table implementation of floor.Store.

PURPOSE:
  Persists every collection in its own typed table. This is the embedded,
  single-file backend used for local deployments and tests.

REPLACE SEMANTICS:
  ReplaceAll runs in ONE transaction:
    1. DELETE FROM <table>
    2. INSERT every row through a prepared statement
  Any failure rolls the whole thing back, so readers see either the old
  collection or the new one. A primary-key violation is reported as
  floor.ErrDuplicateRow after the rollback.

ENCODING:
  booleans:   INTEGER 0/1
  timestamps: TEXT, UTC, fixed nine-digit fraction (sorts lexically)
  nullable:   NULL for absent cpa/cvr/resolvedAt/resolutionTs
  scalars:    app_meta(key, value) with JSON values

ORDERING:
  Agents are read ORDER BY created_at, rowid. Every other table is read in
  rowid order, which is insertion order after a replace.

CONCURRENCY:
  The pool is pinned to one connection. SQLite allows a single writer and
  ":memory:" databases are per-connection, so one connection keeps both
  cases correct. A mutex serializes writers in-process; reads never take it.

MIGRATION:
  Schema lives in migrations/*.sql and is applied by goose on New().

USAGE:
  store, err := sqlite.New(ctx, "./data/vc_dash.sqlite")
  if err != nil {
      return err
  }
  defer store.Close()

SEE ALSO:
  - floor/store.go: the contract
  - store/postgres: the key/JSON-blob backend
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/nbleicher/vc-dash-sub000/floor"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements floor.Store on SQLite.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex

	agents                *table[floor.Agent]
	snapshots             *table[floor.Snapshot]
	perfHistory           *table[floor.PerfHistory]
	qaRecords             *table[floor.QaRecord]
	auditRecords          *table[floor.AuditRecord]
	attendance            *table[floor.AttendanceRecord]
	spiffRecords          *table[floor.SpiffRecord]
	attendanceSubmissions *table[floor.AttendanceSubmission]
	intraSubmissions      *table[floor.IntraSubmission]
	weeklyTargets         *table[floor.WeeklyTarget]
	vaultMeetings         *table[floor.VaultMeeting]
	vaultDocs             *table[floor.VaultDoc]
}

var _ floor.Store = (*Store)(nil)
var _ floor.StateReader = (*Store)(nil)

// New opens (creating if needed) the database at dbPath and applies
// migrations. Use ":memory:" for a throwaway database.
func New(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	s := &Store{db: db}
	s.initTables()
	return s, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reads one row from agents to prove the database answers queries.
func (s *Store) Ping(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM (SELECT id FROM agents LIMIT 1)`).Scan(&n); err != nil {
		return floor.NewStoreError("ping", "", err)
	}
	return nil
}

// =============================================================================
// REPOSITORIES
// =============================================================================

func (s *Store) Meta() floor.MetaStore { return metaStore{s: s, q: s.db} }

// State reads every collection inside one transaction so the result is a
// single consistent snapshot.
func (s *Store) State(ctx context.Context) (floor.State, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return floor.State{}, floor.NewStoreError("state", "", err)
	}
	defer tx.Rollback()

	return floor.ReadState(ctx, txView{s: s, q: tx})
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}

// =============================================================================
// META
// =============================================================================

type metaStore struct {
	s *Store
	q querier
}

func (m metaStore) LastPoliciesBotRun(ctx context.Context) (*string, error) {
	var ts *string
	if err := m.get(ctx, floor.MetaLastPoliciesBotRun, &ts); err != nil {
		return nil, err
	}
	return ts, nil
}

func (m metaStore) SetLastPoliciesBotRun(ctx context.Context, ts *string) error {
	return m.set(ctx, floor.MetaLastPoliciesBotRun, ts, ts == nil)
}

func (m metaStore) HouseMarketing(ctx context.Context) (*floor.HouseMarketing, error) {
	var hm *floor.HouseMarketing
	if err := m.get(ctx, floor.MetaHouseMarketing, &hm); err != nil {
		return nil, err
	}
	return hm, nil
}

func (m metaStore) SetHouseMarketing(ctx context.Context, hm *floor.HouseMarketing) error {
	return m.set(ctx, floor.MetaHouseMarketing, hm, hm == nil)
}

func (m metaStore) get(ctx context.Context, key string, dest any) error {
	var raw string
	err := m.q.QueryRowContext(ctx, `SELECT value FROM app_meta WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return floor.NewStoreError("get meta "+key, "", err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return floor.NewStoreError("decode meta "+key, "", err)
	}
	return nil
}

func (m metaStore) set(ctx context.Context, key string, value any, clear bool) error {
	m.s.writeMu.Lock()
	defer m.s.writeMu.Unlock()

	if clear {
		_, err := m.s.db.ExecContext(ctx, `DELETE FROM app_meta WHERE key = ?`, key)
		return floor.NewStoreError("clear meta "+key, "", err)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode meta %s: %w", key, err)
	}
	_, err = m.s.db.ExecContext(ctx, `
		INSERT INTO app_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, string(raw))
	return floor.NewStoreError("set meta "+key, "", err)
}

// =============================================================================
// HELPERS
// =============================================================================

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func scanNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func scanNullFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
