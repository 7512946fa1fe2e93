/*
Package postgres provides the key/JSON-blob implementation of floor.Store.

PURPOSE:
  Persists each collection as one JSON array under its collection key in a
  single app_state table. Used for hosted deployments where the database is
  shared and schema churn should stay at zero.

SCHEMA:
  app_state(key TEXT PRIMARY KEY, payload JSONB, updated_at TIMESTAMPTZ)

REPLACE SEMANTICS:
  ReplaceAll is one upsert statement, so it is atomic on its own:
    INSERT ... ON CONFLICT (key) DO UPDATE SET payload = excluded.payload
  Duplicate row keys are rejected before the statement runs.

READ SEMANTICS:
  A missing key reads as an empty list. State() fetches every key with one
  SELECT so the result is a single consistent snapshot.

SCALARS:
  lastPoliciesBotRun and houseMarketing share the key space. Older writers
  stored lastPoliciesBotRun in several shapes; decodeBotRun accepts all of
  them.

SEE ALSO:
  - floor/store.go: the contract
  - store/sqlite: the normalized backend
*/
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/lib/pq"
	"github.com/nbleicher/vc-dash-sub000/floor"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// Options tunes the connection pool. Zero values keep database/sql defaults.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Store implements floor.Store on a single key/payload table.
type Store struct {
	db *sql.DB
}

var _ floor.Store = (*Store)(nil)
var _ floor.StateReader = (*Store)(nil)

// New connects to dsn with lib/pq and applies migrations.
func New(ctx context.Context, dsn string, opts Options) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}
	applyPoolSettings(db, opts)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s, err := newWithDB(ctx, db, goose.DialectPostgres)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// newWithDB migrates db with the migration set for dialect and wraps it.
// Tests use it with an in-memory sqlite3 handle.
func newWithDB(ctx context.Context, db *sql.DB, dialect goose.Dialect) (*Store, error) {
	dir := "migrations/postgres"
	if dialect == goose.DialectSQLite3 {
		dir = "migrations/sqlite"
	}
	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("creating migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

func applyPoolSettings(db *sql.DB, opts Options) {
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
}

// Close shuts down the pooled connections.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping runs a trivial read against app_state.
func (s *Store) Ping(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM (SELECT key FROM app_state LIMIT 1) t`).Scan(&n); err != nil {
		return floor.NewStoreError("ping", "", err)
	}
	return nil
}

// =============================================================================
// PAYLOAD ACCESS
// =============================================================================

// load returns the raw payload for key, or nil when the key is absent.
func (s *Store) load(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM app_state WHERE key = $1`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *Store) save(ctx context.Context, key string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_state (key, payload, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, key, string(payload), time.Now().UTC())
	return err
}

func (s *Store) remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM app_state WHERE key = $1`, key)
	return err
}

// =============================================================================
// REPOSITORIES
// =============================================================================

type repo[T floor.Row] struct {
	s *Store
	c floor.Collection
}

func (r repo[T]) Get(ctx context.Context) ([]T, error) {
	payload, err := r.s.load(ctx, string(r.c))
	if err != nil {
		return nil, floor.NewStoreError("get", r.c, err)
	}
	return decodeRows[T](r.c, payload)
}

func (r repo[T]) ReplaceAll(ctx context.Context, rows []T) ([]T, error) {
	if err := floor.CheckUnique(r.c, rows); err != nil {
		return nil, err
	}
	rows = floor.UTCRows(rows)
	if rows == nil {
		rows = []T{}
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, floor.NewStoreError("encode", r.c, err)
	}
	if err := r.s.save(ctx, string(r.c), payload); err != nil {
		return nil, floor.NewStoreError("replace", r.c, err)
	}
	return rows, nil
}

func decodeRows[T floor.Row](c floor.Collection, payload []byte) ([]T, error) {
	rows := []T{}
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, &rows); err != nil {
			return nil, floor.NewStoreError("decode", c, err)
		}
	}
	if agents, ok := any(rows).([]floor.Agent); ok {
		floor.SortAgents(agents)
	}
	return rows, nil
}

func (s *Store) Agents() floor.Repository[floor.Agent] {
	return repo[floor.Agent]{s, floor.CollectionAgents}
}

func (s *Store) Snapshots() floor.Repository[floor.Snapshot] {
	return repo[floor.Snapshot]{s, floor.CollectionSnapshots}
}

func (s *Store) PerfHistory() floor.Repository[floor.PerfHistory] {
	return repo[floor.PerfHistory]{s, floor.CollectionPerfHistory}
}

func (s *Store) QaRecords() floor.Repository[floor.QaRecord] {
	return repo[floor.QaRecord]{s, floor.CollectionQaRecords}
}

func (s *Store) AuditRecords() floor.Repository[floor.AuditRecord] {
	return repo[floor.AuditRecord]{s, floor.CollectionAuditRecords}
}

func (s *Store) Attendance() floor.Repository[floor.AttendanceRecord] {
	return repo[floor.AttendanceRecord]{s, floor.CollectionAttendance}
}

func (s *Store) SpiffRecords() floor.Repository[floor.SpiffRecord] {
	return repo[floor.SpiffRecord]{s, floor.CollectionSpiffRecords}
}

func (s *Store) AttendanceSubmissions() floor.Repository[floor.AttendanceSubmission] {
	return repo[floor.AttendanceSubmission]{s, floor.CollectionAttendanceSubmissions}
}

func (s *Store) IntraSubmissions() floor.Repository[floor.IntraSubmission] {
	return repo[floor.IntraSubmission]{s, floor.CollectionIntraSubmissions}
}

func (s *Store) WeeklyTargets() floor.Repository[floor.WeeklyTarget] {
	return repo[floor.WeeklyTarget]{s, floor.CollectionWeeklyTargets}
}

func (s *Store) VaultMeetings() floor.Repository[floor.VaultMeeting] {
	return repo[floor.VaultMeeting]{s, floor.CollectionVaultMeetings}
}

func (s *Store) VaultDocs() floor.Repository[floor.VaultDoc] {
	return repo[floor.VaultDoc]{s, floor.CollectionVaultDocs}
}

// =============================================================================
// STATE
// =============================================================================

// State reads every key with a single statement.
func (s *Store) State(ctx context.Context) (floor.State, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, payload FROM app_state`)
	if err != nil {
		return floor.State{}, floor.NewStoreError("state", "", err)
	}
	defer rows.Close()

	payloads := make(map[string][]byte)
	for rows.Next() {
		var key string
		var payload []byte
		if err := rows.Scan(&key, &payload); err != nil {
			return floor.State{}, floor.NewStoreError("state", "", err)
		}
		payloads[key] = payload
	}
	if err := rows.Err(); err != nil {
		return floor.State{}, floor.NewStoreError("state", "", err)
	}

	return floor.ReadState(ctx, payloadView{s: s, payloads: payloads})
}

// =============================================================================
// META
// =============================================================================

func (s *Store) Meta() floor.MetaStore {
	return metaStore{s: s, load: s.load}
}

type metaStore struct {
	s    *Store
	load func(ctx context.Context, key string) ([]byte, error)
}

func (m metaStore) LastPoliciesBotRun(ctx context.Context) (*string, error) {
	payload, err := m.load(ctx, floor.MetaLastPoliciesBotRun)
	if err != nil {
		return nil, floor.NewStoreError("get meta", "", err)
	}
	return decodeBotRun(payload)
}

func (m metaStore) SetLastPoliciesBotRun(ctx context.Context, ts *string) error {
	if ts == nil {
		return floor.NewStoreError("clear meta", "", m.s.remove(ctx, floor.MetaLastPoliciesBotRun))
	}
	payload, err := json.Marshal(*ts)
	if err != nil {
		return err
	}
	return floor.NewStoreError("set meta", "", m.s.save(ctx, floor.MetaLastPoliciesBotRun, payload))
}

func (m metaStore) HouseMarketing(ctx context.Context) (*floor.HouseMarketing, error) {
	payload, err := m.load(ctx, floor.MetaHouseMarketing)
	if err != nil {
		return nil, floor.NewStoreError("get meta", "", err)
	}
	if len(payload) == 0 || string(payload) == "null" {
		return nil, nil
	}
	var hm floor.HouseMarketing
	if err := json.Unmarshal(payload, &hm); err != nil {
		return nil, floor.NewStoreError("decode meta", "", err)
	}
	return &hm, nil
}

func (m metaStore) SetHouseMarketing(ctx context.Context, hm *floor.HouseMarketing) error {
	if hm == nil {
		return floor.NewStoreError("clear meta", "", m.s.remove(ctx, floor.MetaHouseMarketing))
	}
	payload, err := json.Marshal(hm)
	if err != nil {
		return err
	}
	return floor.NewStoreError("set meta", "", m.s.save(ctx, floor.MetaHouseMarketing, payload))
}

// decodeBotRun accepts a JSON string, a JSON string holding another encoded
// string, or an object {"value": "..."}.
func decodeBotRun(payload []byte) (*string, error) {
	if len(payload) == 0 || string(payload) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		var inner string
		if json.Unmarshal([]byte(s), &inner) == nil {
			return &inner, nil
		}
		return &s, nil
	}
	var wrapped struct {
		Value *string `json:"value"`
	}
	if err := json.Unmarshal(payload, &wrapped); err != nil {
		return nil, floor.NewStoreError("decode meta", "", err)
	}
	return wrapped.Value, nil
}

// =============================================================================
// PAYLOAD VIEW - read-only Store over prefetched payloads
// =============================================================================

type viewRepo[T floor.Row] struct {
	c        floor.Collection
	payloads map[string][]byte
}

func (r viewRepo[T]) Get(context.Context) ([]T, error) {
	return decodeRows[T](r.c, r.payloads[string(r.c)])
}

func (r viewRepo[T]) ReplaceAll(context.Context, []T) ([]T, error) {
	return nil, errors.New("read-only state view")
}

type payloadView struct {
	s        *Store
	payloads map[string][]byte
}

func (v payloadView) Agents() floor.Repository[floor.Agent] {
	return viewRepo[floor.Agent]{floor.CollectionAgents, v.payloads}
}

func (v payloadView) Snapshots() floor.Repository[floor.Snapshot] {
	return viewRepo[floor.Snapshot]{floor.CollectionSnapshots, v.payloads}
}

func (v payloadView) PerfHistory() floor.Repository[floor.PerfHistory] {
	return viewRepo[floor.PerfHistory]{floor.CollectionPerfHistory, v.payloads}
}

func (v payloadView) QaRecords() floor.Repository[floor.QaRecord] {
	return viewRepo[floor.QaRecord]{floor.CollectionQaRecords, v.payloads}
}

func (v payloadView) AuditRecords() floor.Repository[floor.AuditRecord] {
	return viewRepo[floor.AuditRecord]{floor.CollectionAuditRecords, v.payloads}
}

func (v payloadView) Attendance() floor.Repository[floor.AttendanceRecord] {
	return viewRepo[floor.AttendanceRecord]{floor.CollectionAttendance, v.payloads}
}

func (v payloadView) SpiffRecords() floor.Repository[floor.SpiffRecord] {
	return viewRepo[floor.SpiffRecord]{floor.CollectionSpiffRecords, v.payloads}
}

func (v payloadView) AttendanceSubmissions() floor.Repository[floor.AttendanceSubmission] {
	return viewRepo[floor.AttendanceSubmission]{floor.CollectionAttendanceSubmissions, v.payloads}
}

func (v payloadView) IntraSubmissions() floor.Repository[floor.IntraSubmission] {
	return viewRepo[floor.IntraSubmission]{floor.CollectionIntraSubmissions, v.payloads}
}

func (v payloadView) WeeklyTargets() floor.Repository[floor.WeeklyTarget] {
	return viewRepo[floor.WeeklyTarget]{floor.CollectionWeeklyTargets, v.payloads}
}

func (v payloadView) VaultMeetings() floor.Repository[floor.VaultMeeting] {
	return viewRepo[floor.VaultMeeting]{floor.CollectionVaultMeetings, v.payloads}
}

func (v payloadView) VaultDocs() floor.Repository[floor.VaultDoc] {
	return viewRepo[floor.VaultDoc]{floor.CollectionVaultDocs, v.payloads}
}

func (v payloadView) Meta() floor.MetaStore {
	return metaStore{s: v.s, load: func(_ context.Context, key string) ([]byte, error) {
		return v.payloads[key], nil
	}}
}

func (v payloadView) Ping(context.Context) error { return nil }

func (v payloadView) Close() error { return nil }
