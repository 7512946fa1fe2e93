/*
store.go - Collection store contract

PURPOSE:
  Defines the boundary between the engine and persistence. Every entity type
  lives in exactly one named collection, and collections are only ever read
  or written whole.

KEY INTERFACES:
  Repository[T]: typed access to one collection (Get, ReplaceAll)
  Store:         the fixed set of twelve repositories plus scalar metadata
  MetaStore:     lastPoliciesBotRun and houseMarketing
  StateReader:   optional consistent read of everything at once

REPLACE CONTRACT:
  ReplaceAll discards the current collection and installs the given rows in
  one atomic step. Last write wins at collection granularity. There is no
  merge and no concurrency token. A failed write leaves the previous
  collection fully visible. Row keys must be unique within the list.

READ CONTRACT:
  A collection that was never written reads as an empty list. Agents come
  back ordered by createdAt ascending. Other collections keep the order they
  were written in.

IMPLEMENTATIONS:
  - store/sqlite:   one normalized table per collection
  - store/postgres: one JSON payload row per collection
  - store/memory:   in-process, for tests and throwaway runs

SEE ALSO:
  - store/storetest: conformance suite every implementation runs
*/
package floor

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"
)

// =============================================================================
// COLLECTIONS - closed set of keys
// =============================================================================

type Collection string

const (
	CollectionAgents                Collection = "agents"
	CollectionSnapshots             Collection = "snapshots"
	CollectionPerfHistory           Collection = "perfHistory"
	CollectionQaRecords             Collection = "qaRecords"
	CollectionAuditRecords          Collection = "auditRecords"
	CollectionAttendance            Collection = "attendance"
	CollectionSpiffRecords          Collection = "spiffRecords"
	CollectionAttendanceSubmissions Collection = "attendanceSubmissions"
	CollectionIntraSubmissions      Collection = "intraSubmissions"
	CollectionWeeklyTargets         Collection = "weeklyTargets"
	CollectionVaultMeetings         Collection = "vaultMeetings"
	CollectionVaultDocs             Collection = "vaultDocs"
)

// Collections lists every collection in a stable order.
var Collections = []Collection{
	CollectionAgents,
	CollectionSnapshots,
	CollectionPerfHistory,
	CollectionQaRecords,
	CollectionAuditRecords,
	CollectionAttendance,
	CollectionSpiffRecords,
	CollectionAttendanceSubmissions,
	CollectionIntraSubmissions,
	CollectionWeeklyTargets,
	CollectionVaultMeetings,
	CollectionVaultDocs,
}

// ParseCollection validates a collection key.
func ParseCollection(key string) (Collection, error) {
	for _, c := range Collections {
		if string(c) == key {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCollection, key)
}

// IDField is the JSON field holding the collection's row key.
func (c Collection) IDField() string {
	if c == CollectionWeeklyTargets {
		return "weekKey"
	}
	return "id"
}

// Meta keys share the key space of collections in key/value backends.
const (
	MetaLastPoliciesBotRun = "lastPoliciesBotRun"
	MetaHouseMarketing     = "houseMarketing"
)

// =============================================================================
// INTERFACES
// =============================================================================

// Repository gives typed whole-list access to one collection.
type Repository[T Row] interface {
	Get(ctx context.Context) ([]T, error)
	ReplaceAll(ctx context.Context, rows []T) ([]T, error)
}

// MetaStore holds the scalar values that sit beside the collections.
type MetaStore interface {
	LastPoliciesBotRun(ctx context.Context) (*string, error)
	SetLastPoliciesBotRun(ctx context.Context, ts *string) error
	HouseMarketing(ctx context.Context) (*HouseMarketing, error)
	SetHouseMarketing(ctx context.Context, hm *HouseMarketing) error
}

// Store is the full persistence surface.
type Store interface {
	Agents() Repository[Agent]
	Snapshots() Repository[Snapshot]
	PerfHistory() Repository[PerfHistory]
	QaRecords() Repository[QaRecord]
	AuditRecords() Repository[AuditRecord]
	Attendance() Repository[AttendanceRecord]
	SpiffRecords() Repository[SpiffRecord]
	AttendanceSubmissions() Repository[AttendanceSubmission]
	IntraSubmissions() Repository[IntraSubmission]
	WeeklyTargets() Repository[WeeklyTarget]
	VaultMeetings() Repository[VaultMeeting]
	VaultDocs() Repository[VaultDoc]

	Meta() MetaStore

	// Ping performs a trivial read to prove the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// StateReader is implemented by backends that can read every collection
// under one snapshot.
type StateReader interface {
	State(ctx context.Context) (State, error)
}

// =============================================================================
// STATE
// =============================================================================

// LoadState reads all collections and scalars.
func LoadState(ctx context.Context, s Store) (State, error) {
	if sr, ok := s.(StateReader); ok {
		return sr.State(ctx)
	}
	return ReadState(ctx, s)
}

// ReadState reads every collection one at a time. Backends implementing
// StateReader call this inside their own read transaction.
func ReadState(ctx context.Context, s Store) (State, error) {
	var st State
	var err error
	if st.Agents, err = s.Agents().Get(ctx); err != nil {
		return State{}, err
	}
	if st.Snapshots, err = s.Snapshots().Get(ctx); err != nil {
		return State{}, err
	}
	if st.PerfHistory, err = s.PerfHistory().Get(ctx); err != nil {
		return State{}, err
	}
	if st.QaRecords, err = s.QaRecords().Get(ctx); err != nil {
		return State{}, err
	}
	if st.AuditRecords, err = s.AuditRecords().Get(ctx); err != nil {
		return State{}, err
	}
	if st.Attendance, err = s.Attendance().Get(ctx); err != nil {
		return State{}, err
	}
	if st.SpiffRecords, err = s.SpiffRecords().Get(ctx); err != nil {
		return State{}, err
	}
	if st.AttendanceSubmissions, err = s.AttendanceSubmissions().Get(ctx); err != nil {
		return State{}, err
	}
	if st.IntraSubmissions, err = s.IntraSubmissions().Get(ctx); err != nil {
		return State{}, err
	}
	if st.WeeklyTargets, err = s.WeeklyTargets().Get(ctx); err != nil {
		return State{}, err
	}
	if st.VaultMeetings, err = s.VaultMeetings().Get(ctx); err != nil {
		return State{}, err
	}
	if st.VaultDocs, err = s.VaultDocs().Get(ctx); err != nil {
		return State{}, err
	}
	if st.LastPoliciesBotRun, err = s.Meta().LastPoliciesBotRun(ctx); err != nil {
		return State{}, err
	}
	if st.HouseMarketing, err = s.Meta().HouseMarketing(ctx); err != nil {
		return State{}, err
	}
	return st, nil
}

// CopyState writes every collection and scalar of from into to.
func CopyState(ctx context.Context, from, to Store) error {
	for _, c := range Collections {
		rows, err := GetCollection(ctx, from, c)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(rows)
		if err != nil {
			return fmt.Errorf("encode %s: %w", c, err)
		}
		if _, err := ReplaceCollection(ctx, to, c, raw); err != nil {
			return err
		}
	}
	ts, err := from.Meta().LastPoliciesBotRun(ctx)
	if err != nil {
		return err
	}
	if err := to.Meta().SetLastPoliciesBotRun(ctx, ts); err != nil {
		return err
	}
	hm, err := from.Meta().HouseMarketing(ctx)
	if err != nil {
		return err
	}
	return to.Meta().SetHouseMarketing(ctx, hm)
}

// =============================================================================
// DISPATCH - collection key to typed repository
// =============================================================================

// GetCollection returns the rows of the named collection.
func GetCollection(ctx context.Context, s Store, c Collection) (any, error) {
	switch c {
	case CollectionAgents:
		return s.Agents().Get(ctx)
	case CollectionSnapshots:
		return s.Snapshots().Get(ctx)
	case CollectionPerfHistory:
		return s.PerfHistory().Get(ctx)
	case CollectionQaRecords:
		return s.QaRecords().Get(ctx)
	case CollectionAuditRecords:
		return s.AuditRecords().Get(ctx)
	case CollectionAttendance:
		return s.Attendance().Get(ctx)
	case CollectionSpiffRecords:
		return s.SpiffRecords().Get(ctx)
	case CollectionAttendanceSubmissions:
		return s.AttendanceSubmissions().Get(ctx)
	case CollectionIntraSubmissions:
		return s.IntraSubmissions().Get(ctx)
	case CollectionWeeklyTargets:
		return s.WeeklyTargets().Get(ctx)
	case CollectionVaultMeetings:
		return s.VaultMeetings().Get(ctx)
	case CollectionVaultDocs:
		return s.VaultDocs().Get(ctx)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
}

// ReplaceCollection decodes raw as the collection's row type, validates it
// and installs it in place of the current rows.
func ReplaceCollection(ctx context.Context, s Store, c Collection, raw json.RawMessage) (any, error) {
	switch c {
	case CollectionAgents:
		return replaceRaw(ctx, c, s.Agents(), raw)
	case CollectionSnapshots:
		return replaceRaw(ctx, c, s.Snapshots(), raw)
	case CollectionPerfHistory:
		return replaceRaw(ctx, c, s.PerfHistory(), raw)
	case CollectionQaRecords:
		return replaceRaw(ctx, c, s.QaRecords(), raw)
	case CollectionAuditRecords:
		return replaceRaw(ctx, c, s.AuditRecords(), raw)
	case CollectionAttendance:
		return replaceRaw(ctx, c, s.Attendance(), raw)
	case CollectionSpiffRecords:
		return replaceRaw(ctx, c, s.SpiffRecords(), raw)
	case CollectionAttendanceSubmissions:
		return replaceRaw(ctx, c, s.AttendanceSubmissions(), raw)
	case CollectionIntraSubmissions:
		return replaceRaw(ctx, c, s.IntraSubmissions(), raw)
	case CollectionWeeklyTargets:
		return replaceRaw(ctx, c, s.WeeklyTargets(), raw)
	case CollectionVaultMeetings:
		return replaceRaw(ctx, c, s.VaultMeetings(), raw)
	case CollectionVaultDocs:
		return replaceRaw(ctx, c, s.VaultDocs(), raw)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
}

// PatchCollectionRow shallow-merges patch onto the row whose id field equals id.
func PatchCollectionRow(ctx context.Context, s Store, c Collection, id string, patch map[string]any) (any, error) {
	switch c {
	case CollectionAgents:
		return PatchRow(ctx, c, s.Agents(), id, patch)
	case CollectionSnapshots:
		return PatchRow(ctx, c, s.Snapshots(), id, patch)
	case CollectionPerfHistory:
		return PatchRow(ctx, c, s.PerfHistory(), id, patch)
	case CollectionQaRecords:
		return PatchRow(ctx, c, s.QaRecords(), id, patch)
	case CollectionAuditRecords:
		return PatchRow(ctx, c, s.AuditRecords(), id, patch)
	case CollectionAttendance:
		return PatchRow(ctx, c, s.Attendance(), id, patch)
	case CollectionSpiffRecords:
		return PatchRow(ctx, c, s.SpiffRecords(), id, patch)
	case CollectionAttendanceSubmissions:
		return PatchRow(ctx, c, s.AttendanceSubmissions(), id, patch)
	case CollectionIntraSubmissions:
		return PatchRow(ctx, c, s.IntraSubmissions(), id, patch)
	case CollectionWeeklyTargets:
		return PatchRow(ctx, c, s.WeeklyTargets(), id, patch)
	case CollectionVaultMeetings:
		return PatchRow(ctx, c, s.VaultMeetings(), id, patch)
	case CollectionVaultDocs:
		return PatchRow(ctx, c, s.VaultDocs(), id, patch)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
}

func replaceRaw[T Row](ctx context.Context, c Collection, repo Repository[T], raw json.RawMessage) ([]T, error) {
	var rows []T
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: %s body must be an array of rows: %v", ErrInvalidInput, c, err)
	}
	if rows == nil {
		rows = []T{}
	}
	if err := ValidateRows(rows); err != nil {
		return nil, err
	}
	if err := CheckUnique(c, rows); err != nil {
		return nil, err
	}
	return repo.ReplaceAll(ctx, UTCRows(rows))
}

// PatchRow reads the collection, merges patch onto the matching row and
// writes the collection back. Nothing is written when no row matches.
func PatchRow[T Row](ctx context.Context, c Collection, repo Repository[T], id string, patch map[string]any) (T, error) {
	var zero T
	rows, err := repo.Get(ctx)
	if err != nil {
		return zero, err
	}
	idx := -1
	for i, r := range rows {
		if r.RowKey() == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return zero, &RowNotFoundError{Collection: c, ID: id}
	}

	merged, err := mergeRow(rows[idx], patch)
	if err != nil {
		return zero, err
	}
	if merged.RowKey() != id {
		return zero, fmt.Errorf("%w: %s cannot be changed by a patch", ErrInvalidInput, c.IDField())
	}
	if err := Validate(merged); err != nil {
		return zero, err
	}

	rows[idx] = merged
	if _, err := repo.ReplaceAll(ctx, rows); err != nil {
		return zero, err
	}
	return merged, nil
}

func mergeRow[T Row](row T, patch map[string]any) (T, error) {
	var zero T
	raw, err := json.Marshal(row)
	if err != nil {
		return zero, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return zero, err
	}
	for k, v := range patch {
		fields[k] = v
	}
	raw, err = json.Marshal(fields)
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return out, nil
}

// UTCRows returns a copy of rows with every timestamp field converted to UTC.
// Adapters call it before encoding so all backends persist the same instant
// text. The caller's rows are not modified.
func UTCRows[T Row](rows []T) []T {
	if rows == nil {
		return nil
	}
	out := make([]T, len(rows))
	for i := range rows {
		out[i] = rows[i]
		toUTC(reflect.ValueOf(&out[i]).Elem())
	}
	return out
}

var timeType = reflect.TypeOf(time.Time{})

func toUTC(v reflect.Value) {
	switch {
	case v.Type() == timeType:
		v.Set(reflect.ValueOf(v.Interface().(time.Time).UTC()))
	case v.Kind() == reflect.Pointer && v.Type().Elem() == timeType:
		if !v.IsNil() {
			t := v.Elem().Interface().(time.Time).UTC()
			v.Set(reflect.ValueOf(&t))
		}
	case v.Kind() == reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if f := v.Field(i); f.CanSet() {
				toUTC(f)
			}
		}
	}
}

// CheckUnique rejects lists that repeat a row key.
func CheckUnique[T Row](c Collection, rows []T) error {
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		k := r.RowKey()
		if _, dup := seen[k]; dup {
			return &DuplicateRowError{Collection: c, Key: k}
		}
		seen[k] = struct{}{}
	}
	return nil
}

// SortAgents orders agents by createdAt ascending, keeping stored order on ties.
func SortAgents(agents []Agent) {
	sort.SliceStable(agents, func(i, j int) bool {
		return agents[i].CreatedAt.Before(agents[j].CreatedAt)
	})
}
