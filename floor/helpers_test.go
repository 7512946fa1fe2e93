package floor_test

import (
	"context"
	"testing"
	"time"

	"github.com/nbleicher/vc-dash-sub000/floor"
	"github.com/nbleicher/vc-dash-sub000/store/memory"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var newYork = floor.MustCalendar(floor.DefaultZone).Zone

// at parses "2006-01-02 15:04" as New York local time.
func at(t *testing.T, v string) time.Time {
	t.Helper()
	tm, err := time.ParseInLocation("2006-01-02 15:04", v, newYork)
	require.NoError(t, err)
	return tm
}

type testEnv struct {
	ctx      context.Context
	store    *memory.Store
	clock    *floor.FixedClock
	settings floor.Settings
}

// newEnv returns an empty memory store with the clock pinned at now.
func newEnv(t *testing.T, now string) *testEnv {
	t.Helper()
	clock := floor.NewFixedClock(at(t, now))
	settings := floor.DefaultSettings()
	settings.Clock = clock
	return &testEnv{
		ctx:      context.Background(),
		store:    memory.New(),
		clock:    clock,
		settings: settings,
	}
}

func (e *testEnv) setNow(t *testing.T, v string) {
	e.clock.Set(at(t, v))
}

func (e *testEnv) withAgents(t *testing.T, agents ...floor.Agent) {
	t.Helper()
	_, err := e.store.Agents().ReplaceAll(e.ctx, agents)
	require.NoError(t, err)
}

func (e *testEnv) withSnapshots(t *testing.T, snaps ...floor.Snapshot) {
	t.Helper()
	_, err := e.store.Snapshots().ReplaceAll(e.ctx, snaps)
	require.NoError(t, err)
}

func (e *testEnv) withHistory(t *testing.T, rows ...floor.PerfHistory) {
	t.Helper()
	_, err := e.store.PerfHistory().ReplaceAll(e.ctx, rows)
	require.NoError(t, err)
}

func (e *testEnv) withAttendance(t *testing.T, rows ...floor.AttendanceRecord) {
	t.Helper()
	_, err := e.store.Attendance().ReplaceAll(e.ctx, rows)
	require.NoError(t, err)
}

func agent(id string, active bool, createdDay int) floor.Agent {
	return floor.Agent{
		ID:        id,
		Name:      "Agent " + id,
		Active:    active,
		CreatedAt: time.Date(2026, time.January, createdDay, 14, 0, 0, 0, time.UTC),
	}
}

func snapshot(date, slot, agentID string, calls, sales int, updated time.Time) floor.Snapshot {
	return floor.Snapshot{
		ID:            "snap_" + date + "_" + slot + "_" + agentID,
		DateKey:       date,
		Slot:          slot,
		AgentID:       agentID,
		BillableCalls: calls,
		Sales:         sales,
		UpdatedAt:     updated.UTC(),
	}
}

func history(date, agentID string, calls, sales int) floor.PerfHistory {
	m := floor.ComputeMetrics(calls, sales, floor.DefaultCostPerCall)
	return floor.PerfHistory{
		ID:            "perf_" + date + "_" + agentID,
		DateKey:       date,
		AgentID:       agentID,
		BillableCalls: calls,
		Sales:         sales,
		Marketing:     m.Marketing,
		CPA:           m.CPA,
		CVR:           m.CVR,
		FrozenAt:      time.Date(2026, time.March, 1, 4, 50, 0, 0, time.UTC),
	}
}

func attendance(date, agentID string, percent int) floor.AttendanceRecord {
	week, _ := floor.WeekKeyForDate(date)
	return floor.AttendanceRecord{
		ID:      "att_" + date + "_" + agentID,
		WeekKey: week,
		DateKey: date,
		AgentID: agentID,
		Percent: percent,
	}
}
