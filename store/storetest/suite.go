// Package storetest holds the conformance suite every floor.Store backend runs.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nbleicher/vc-dash-sub000/floor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Opener returns a fresh, empty store. It should register its own cleanup.
type Opener func(t *testing.T) floor.Store

// Run executes the suite against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Run("EmptyCollectionsReadAsEmptyLists", func(t *testing.T) { testEmpty(t, open(t)) })
	t.Run("RoundTripEveryCollection", func(t *testing.T) { testRoundTrip(t, open(t)) })
	t.Run("ReplaceIsIdempotent", func(t *testing.T) { testReplaceTwice(t, open(t)) })
	t.Run("AgentsOrderedByCreatedAt", func(t *testing.T) { testAgentOrder(t, open(t)) })
	t.Run("BooleansSurvive", func(t *testing.T) { testBooleans(t, open(t)) })
	t.Run("ReplaceDiscardsPreviousRows", func(t *testing.T) { testReplaceDiscards(t, open(t)) })
	t.Run("DuplicateKeysLeaveCollectionUntouched", func(t *testing.T) { testDuplicate(t, open(t)) })
	t.Run("MetaScalars", func(t *testing.T) { testMeta(t, open(t)) })
	t.Run("LoadStateMatchesCollections", func(t *testing.T) { testLoadState(t, open(t)) })
	t.Run("TimestampsReadBackInUTC", func(t *testing.T) { testTimestampsUTC(t, open(t)) })
	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, open(t).Ping(context.Background()))
	})
}

// =============================================================================
// FIXTURES
// =============================================================================

func ts(day, hour, minute int) time.Time {
	return time.Date(2026, time.March, day, hour, minute, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

// Fixture returns a state with at least one row in every collection,
// covering both set and absent optional fields.
func Fixture() floor.State {
	return floor.State{
		Agents: []floor.Agent{
			{ID: "agent_1", Name: "Alex", Active: true, CreatedAt: ts(2, 9, 0)},
			{ID: "agent_2", Name: "Jordan", Active: false, CreatedAt: ts(3, 9, 0)},
		},
		Snapshots: []floor.Snapshot{
			{ID: "snap_1", DateKey: "2026-03-09", Slot: "11:00", SlotLabel: "11:00 AM", AgentID: "agent_1", BillableCalls: 4, Sales: 1, UpdatedAt: ts(9, 15, 2)},
			{ID: "snap_2", DateKey: "2026-03-09", Slot: "17:00", SlotLabel: "5:00 PM", AgentID: "agent_1", BillableCalls: 10, Sales: 2, UpdatedAt: ts(9, 21, 5)},
		},
		PerfHistory: []floor.PerfHistory{
			{ID: "perf_1", DateKey: "2026-03-06", AgentID: "agent_1", BillableCalls: 10, Sales: 2, Marketing: 150, CPA: ptr(75.0), CVR: ptr(0.2), FrozenAt: ts(7, 4, 50)},
			{ID: "perf_2", DateKey: "2026-03-06", AgentID: "agent_2", BillableCalls: 0, Sales: 0, Marketing: 0, FrozenAt: ts(7, 4, 50)},
		},
		QaRecords: []floor.QaRecord{
			{ID: "qa_1", DateKey: "2026-03-09", AgentID: "agent_1", ClientName: "Pat", Decision: floor.DecisionGoodSale, CallID: "c-1", Status: floor.QaStatusGood, CreatedAt: ts(9, 16, 0)},
			{ID: "qa_2", DateKey: "2026-03-09", AgentID: "agent_1", ClientName: "Sam", Decision: floor.DecisionCheckRecording, Notes: "long hold", Status: floor.QaStatusResolved, CreatedAt: ts(9, 16, 30), ResolvedAt: ptr(ts(9, 18, 0))},
		},
		AuditRecords: []floor.AuditRecord{
			{ID: "audit_1", AgentID: "agent_1", Carrier: "Acme", ClientName: "Pat", Reason: "lapse", CurrentStatus: "pending", DiscoveryTs: ts(5, 14, 0), MgmtNotified: true},
			{ID: "audit_2", AgentID: "agent_2", Carrier: "Acme", DiscoveryTs: ts(5, 15, 0), MgmtNotified: true, OutreachMade: true, ResolutionTs: ptr(ts(6, 15, 0)), Notes: "done"},
		},
		Attendance: []floor.AttendanceRecord{
			{ID: "att_1", WeekKey: "2026-03-09", DateKey: "2026-03-09", AgentID: "agent_1", Percent: 100},
			{ID: "att_2", WeekKey: "2026-03-09", DateKey: "2026-03-10", AgentID: "agent_1", Percent: 75, Notes: "left early"},
		},
		SpiffRecords: []floor.SpiffRecord{
			{ID: "spiff_1", WeekKey: "2026-03-09", DateKey: "2026-03-09", AgentID: "agent_1", Amount: 25.5},
		},
		AttendanceSubmissions: []floor.AttendanceSubmission{
			{ID: "att_submit_1", DateKey: "2026-03-09", SubmittedAt: ts(9, 14, 0), UpdatedAt: ts(9, 14, 0), SubmittedBy: "lead", Signature: "agent_1:100"},
		},
		IntraSubmissions: []floor.IntraSubmission{
			{ID: "intra_sub_1", DateKey: "2026-03-09", Slot: "11:00", SubmittedAt: ts(9, 15, 5), UpdatedAt: ts(9, 15, 6), SubmittedBy: "lead", Signature: "agent_1:4:1"},
		},
		WeeklyTargets: []floor.WeeklyTarget{
			{WeekKey: "2026-03-02", TargetSales: 40, TargetCPA: 80, SetAt: ts(2, 13, 0)},
			{WeekKey: "2026-03-09", TargetSales: 45, TargetCPA: 72.5, SetAt: ts(9, 13, 0)},
		},
		VaultMeetings: []floor.VaultMeeting{
			{ID: "meet_1", AgentID: "agent_1", DateKey: "2026-03-09", MeetingType: "1:1", Notes: "pace", ActionItems: "shadow", CreatedAt: ts(9, 19, 0)},
		},
		VaultDocs: []floor.VaultDoc{
			{ID: "doc_1", AgentID: "agent_1", FileName: "review.pdf", FileSize: 20480, UploadedAt: ts(9, 19, 5)},
		},
	}
}

// Seed writes every collection of st into s.
func Seed(t *testing.T, s floor.Store, st floor.State) {
	t.Helper()
	ctx := context.Background()
	for _, c := range floor.Collections {
		raw, err := json.Marshal(collectionOf(st, c))
		require.NoError(t, err)
		_, err = floor.ReplaceCollection(ctx, s, c, raw)
		require.NoError(t, err, "seeding %s", c)
	}
}

func collectionOf(st floor.State, c floor.Collection) any {
	switch c {
	case floor.CollectionAgents:
		return st.Agents
	case floor.CollectionSnapshots:
		return st.Snapshots
	case floor.CollectionPerfHistory:
		return st.PerfHistory
	case floor.CollectionQaRecords:
		return st.QaRecords
	case floor.CollectionAuditRecords:
		return st.AuditRecords
	case floor.CollectionAttendance:
		return st.Attendance
	case floor.CollectionSpiffRecords:
		return st.SpiffRecords
	case floor.CollectionAttendanceSubmissions:
		return st.AttendanceSubmissions
	case floor.CollectionIntraSubmissions:
		return st.IntraSubmissions
	case floor.CollectionWeeklyTargets:
		return st.WeeklyTargets
	case floor.CollectionVaultMeetings:
		return st.VaultMeetings
	case floor.CollectionVaultDocs:
		return st.VaultDocs
	}
	return nil
}

// =============================================================================
// CASES
// =============================================================================

func testEmpty(t *testing.T, s floor.Store) {
	ctx := context.Background()
	for _, c := range floor.Collections {
		rows, err := floor.GetCollection(ctx, s, c)
		require.NoError(t, err, c)

		raw, err := json.Marshal(rows)
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(raw), "collection %s", c)
	}

	run, err := s.Meta().LastPoliciesBotRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, run)
	hm, err := s.Meta().HouseMarketing(ctx)
	require.NoError(t, err)
	assert.Nil(t, hm)
}

func testRoundTrip(t *testing.T, s floor.Store) {
	ctx := context.Background()
	want := Fixture()

	// GIVEN: every collection written once
	Seed(t, s, want)

	// THEN: each reads back field for field
	for _, c := range floor.Collections {
		got, err := floor.GetCollection(ctx, s, c)
		require.NoError(t, err)
		assert.Equal(t, collectionOf(want, c), got, "collection %s", c)
	}
}

func testReplaceTwice(t *testing.T, s floor.Store) {
	ctx := context.Background()
	agents := Fixture().Agents
	raw, err := json.Marshal(agents)
	require.NoError(t, err)

	// WHEN: the same list is written twice
	_, err = floor.ReplaceCollection(ctx, s, floor.CollectionAgents, raw)
	require.NoError(t, err)
	first, err := s.Agents().Get(ctx)
	require.NoError(t, err)

	_, err = floor.ReplaceCollection(ctx, s, floor.CollectionAgents, raw)
	require.NoError(t, err)
	second, err := s.Agents().Get(ctx)
	require.NoError(t, err)

	// THEN: both reads equal the input
	assert.Equal(t, agents, first)
	assert.Equal(t, first, second)
}

func testAgentOrder(t *testing.T, s floor.Store) {
	ctx := context.Background()

	// GIVEN: agents written newest first
	_, err := s.Agents().ReplaceAll(ctx, []floor.Agent{
		{ID: "c", Name: "C", Active: true, CreatedAt: ts(20, 9, 0)},
		{ID: "a", Name: "A", Active: true, CreatedAt: ts(1, 9, 0)},
		{ID: "b", Name: "B", Active: true, CreatedAt: ts(10, 9, 0)},
	})
	require.NoError(t, err)

	// THEN: reads come back oldest first
	got, err := s.Agents().Get(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
}

func testBooleans(t *testing.T, s floor.Store) {
	ctx := context.Background()
	rows := []floor.AuditRecord{
		{ID: "tt", AgentID: "a", DiscoveryTs: ts(1, 1, 0), MgmtNotified: true, OutreachMade: true},
		{ID: "tf", AgentID: "a", DiscoveryTs: ts(1, 1, 0), MgmtNotified: true, OutreachMade: false},
		{ID: "ft", AgentID: "a", DiscoveryTs: ts(1, 1, 0), MgmtNotified: false, OutreachMade: true},
		{ID: "ff", AgentID: "a", DiscoveryTs: ts(1, 1, 0)},
	}
	_, err := s.AuditRecords().ReplaceAll(ctx, rows)
	require.NoError(t, err)

	got, err := s.AuditRecords().Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
	assert.True(t, got[0].Worked())
	assert.False(t, got[1].Worked())
}

func testReplaceDiscards(t *testing.T, s floor.Store) {
	ctx := context.Background()
	Seed(t, s, Fixture())

	// WHEN: snapshots are replaced with a single row
	only := Fixture().Snapshots[1:]
	_, err := s.Snapshots().ReplaceAll(ctx, only)
	require.NoError(t, err)

	// THEN: nothing of the old list survives and other collections are untouched
	got, err := s.Snapshots().Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, only, got)

	agents, err := s.Agents().Get(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 2)

	// WHEN: replaced with an empty list
	_, err = s.Snapshots().ReplaceAll(ctx, nil)
	require.NoError(t, err)
	got, err = s.Snapshots().Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func testDuplicate(t *testing.T, s floor.Store) {
	ctx := context.Background()
	before := Fixture().Snapshots
	_, err := s.Snapshots().ReplaceAll(ctx, before)
	require.NoError(t, err)

	// WHEN: a list repeating a row key is written directly to the repository
	dup := []floor.Snapshot{
		{ID: "snap_x", DateKey: "2026-03-10", Slot: "11:00", AgentID: "agent_1", UpdatedAt: ts(10, 15, 0)},
		{ID: "snap_x", DateKey: "2026-03-10", Slot: "13:00", AgentID: "agent_1", UpdatedAt: ts(10, 17, 0)},
	}
	_, err = s.Snapshots().ReplaceAll(ctx, dup)

	// THEN: the write fails and the previous rows are still there
	require.ErrorIs(t, err, floor.ErrDuplicateRow)
	got, err := s.Snapshots().Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, got)
}

func testMeta(t *testing.T, s floor.Store) {
	ctx := context.Background()
	m := s.Meta()

	require.NoError(t, m.SetLastPoliciesBotRun(ctx, ptr("2026-03-09T14:00:00.000Z")))
	got, err := m.LastPoliciesBotRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2026-03-09T14:00:00.000Z", *got)

	require.NoError(t, m.SetHouseMarketing(ctx, &floor.HouseMarketing{DateKey: "2026-03-09", Amount: 310.5}))
	hm, err := m.HouseMarketing(ctx)
	require.NoError(t, err)
	require.NotNil(t, hm)
	assert.Equal(t, floor.HouseMarketing{DateKey: "2026-03-09", Amount: 310.5}, *hm)

	// WHEN: cleared
	require.NoError(t, m.SetLastPoliciesBotRun(ctx, nil))
	got, err = m.LastPoliciesBotRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	// THEN: the other scalar is untouched
	hm, err = m.HouseMarketing(ctx)
	require.NoError(t, err)
	assert.NotNil(t, hm)
}

func testLoadState(t *testing.T, s floor.Store) {
	ctx := context.Background()
	want := Fixture()
	Seed(t, s, want)
	require.NoError(t, s.Meta().SetHouseMarketing(ctx, &floor.HouseMarketing{DateKey: "2026-03-09", Amount: 99}))

	st, err := floor.LoadState(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, want.Agents, st.Agents)
	assert.Equal(t, want.PerfHistory, st.PerfHistory)
	assert.Equal(t, want.WeeklyTargets, st.WeeklyTargets)
	assert.Equal(t, want.VaultDocs, st.VaultDocs)
	assert.Nil(t, st.LastPoliciesBotRun)
	require.NotNil(t, st.HouseMarketing)
	assert.Equal(t, 99.0, st.HouseMarketing.Amount)
}

func testTimestampsUTC(t *testing.T, s floor.Store) {
	ctx := context.Background()
	eastern := time.FixedZone("EST", -5*60*60)
	discovered := time.Date(2026, time.March, 2, 9, 0, 0, 0, eastern)
	resolved := time.Date(2026, time.March, 2, 16, 30, 0, 0, eastern)

	// GIVEN: rows written with a non-UTC offset, through both write paths
	raw := json.RawMessage(`[{"id":"agent_1","name":"Alex","active":true,"createdAt":"2026-03-02T09:00:00-05:00"}]`)
	_, err := floor.ReplaceCollection(ctx, s, floor.CollectionAgents, raw)
	require.NoError(t, err)

	input := []floor.AuditRecord{{
		ID: "audit_1", AgentID: "agent_1", CurrentStatus: "issued",
		DiscoveryTs: discovered, ResolutionTs: &resolved,
	}}
	_, err = s.AuditRecords().ReplaceAll(ctx, input)
	require.NoError(t, err)

	// THEN: every backend reads the same UTC instants back
	agents, err := s.Agents().Get(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "2026-03-02T14:00:00Z", agents[0].CreatedAt.Format(time.RFC3339))

	audits, err := s.AuditRecords().Get(ctx)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, "2026-03-02T14:00:00Z", audits[0].DiscoveryTs.Format(time.RFC3339))
	require.NotNil(t, audits[0].ResolutionTs)
	assert.Equal(t, "2026-03-02T21:30:00Z", audits[0].ResolutionTs.Format(time.RFC3339))

	// AND: the caller's rows are untouched
	assert.Equal(t, eastern, input[0].DiscoveryTs.Location())
	assert.Equal(t, eastern, input[0].ResolutionTs.Location())
}
