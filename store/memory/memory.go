// Package memory provides an in-process floor.Store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nbleicher/vc-dash-sub000/floor"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store keeps every collection as an encoded JSON list so callers can never
// alias stored rows.
type Store struct {
	mu       sync.RWMutex
	data     map[floor.Collection][]byte
	meta     map[string][]byte
	failNext map[floor.Collection]error
	closed   bool
}

var _ floor.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		data:     make(map[floor.Collection][]byte),
		meta:     make(map[string][]byte),
		failNext: make(map[floor.Collection]error),
	}
}

// FailNextWrite makes the next ReplaceAll on c fail with err and leave the
// collection untouched.
func (m *Store) FailNextWrite(c floor.Collection, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[c] = err
}

func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Store) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return floor.NewStoreError("ping", "", fmt.Errorf("store closed"))
	}
	return nil
}

// =============================================================================
// REPOSITORIES
// =============================================================================

type repo[T floor.Row] struct {
	m *Store
	c floor.Collection
}

func (r repo[T]) Get(context.Context) ([]T, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	if r.m.closed {
		return nil, floor.NewStoreError("get", r.c, fmt.Errorf("store closed"))
	}

	rows := []T{}
	if raw, ok := r.m.data[r.c]; ok {
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, floor.NewStoreError("decode", r.c, err)
		}
	}
	if agents, ok := any(rows).([]floor.Agent); ok {
		floor.SortAgents(agents)
	}
	return rows, nil
}

func (r repo[T]) ReplaceAll(_ context.Context, rows []T) ([]T, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.closed {
		return nil, floor.NewStoreError("replace", r.c, fmt.Errorf("store closed"))
	}
	if err, ok := r.m.failNext[r.c]; ok {
		delete(r.m.failNext, r.c)
		return nil, floor.NewStoreError("replace", r.c, err)
	}
	if err := floor.CheckUnique(r.c, rows); err != nil {
		return nil, err
	}
	rows = floor.UTCRows(rows)
	if rows == nil {
		rows = []T{}
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, floor.NewStoreError("encode", r.c, err)
	}
	r.m.data[r.c] = raw
	return rows, nil
}

func (m *Store) Agents() floor.Repository[floor.Agent] {
	return repo[floor.Agent]{m, floor.CollectionAgents}
}

func (m *Store) Snapshots() floor.Repository[floor.Snapshot] {
	return repo[floor.Snapshot]{m, floor.CollectionSnapshots}
}

func (m *Store) PerfHistory() floor.Repository[floor.PerfHistory] {
	return repo[floor.PerfHistory]{m, floor.CollectionPerfHistory}
}

func (m *Store) QaRecords() floor.Repository[floor.QaRecord] {
	return repo[floor.QaRecord]{m, floor.CollectionQaRecords}
}

func (m *Store) AuditRecords() floor.Repository[floor.AuditRecord] {
	return repo[floor.AuditRecord]{m, floor.CollectionAuditRecords}
}

func (m *Store) Attendance() floor.Repository[floor.AttendanceRecord] {
	return repo[floor.AttendanceRecord]{m, floor.CollectionAttendance}
}

func (m *Store) SpiffRecords() floor.Repository[floor.SpiffRecord] {
	return repo[floor.SpiffRecord]{m, floor.CollectionSpiffRecords}
}

func (m *Store) AttendanceSubmissions() floor.Repository[floor.AttendanceSubmission] {
	return repo[floor.AttendanceSubmission]{m, floor.CollectionAttendanceSubmissions}
}

func (m *Store) IntraSubmissions() floor.Repository[floor.IntraSubmission] {
	return repo[floor.IntraSubmission]{m, floor.CollectionIntraSubmissions}
}

func (m *Store) WeeklyTargets() floor.Repository[floor.WeeklyTarget] {
	return repo[floor.WeeklyTarget]{m, floor.CollectionWeeklyTargets}
}

func (m *Store) VaultMeetings() floor.Repository[floor.VaultMeeting] {
	return repo[floor.VaultMeeting]{m, floor.CollectionVaultMeetings}
}

func (m *Store) VaultDocs() floor.Repository[floor.VaultDoc] {
	return repo[floor.VaultDoc]{m, floor.CollectionVaultDocs}
}

// =============================================================================
// META
// =============================================================================

func (m *Store) Meta() floor.MetaStore { return meta{m} }

type meta struct{ m *Store }

func (mt meta) LastPoliciesBotRun(context.Context) (*string, error) {
	var ts *string
	return ts, mt.load(floor.MetaLastPoliciesBotRun, &ts)
}

func (mt meta) SetLastPoliciesBotRun(_ context.Context, ts *string) error {
	return mt.store(floor.MetaLastPoliciesBotRun, ts, ts == nil)
}

func (mt meta) HouseMarketing(context.Context) (*floor.HouseMarketing, error) {
	var hm *floor.HouseMarketing
	return hm, mt.load(floor.MetaHouseMarketing, &hm)
}

func (mt meta) SetHouseMarketing(_ context.Context, hm *floor.HouseMarketing) error {
	return mt.store(floor.MetaHouseMarketing, hm, hm == nil)
}

func (mt meta) load(key string, dest any) error {
	mt.m.mu.RLock()
	defer mt.m.mu.RUnlock()
	if mt.m.closed {
		return floor.NewStoreError("get meta "+key, "", fmt.Errorf("store closed"))
	}
	raw, ok := mt.m.meta[key]
	if !ok {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

func (mt meta) store(key string, value any, clear bool) error {
	mt.m.mu.Lock()
	defer mt.m.mu.Unlock()
	if mt.m.closed {
		return floor.NewStoreError("set meta "+key, "", fmt.Errorf("store closed"))
	}
	if clear {
		delete(mt.m.meta, key)
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	mt.m.meta[key] = raw
	return nil
}
