package floor_test

import (
	"testing"
	"time"

	"github.com/nbleicher/vc-dash-sub000/floor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHouseLive(t *testing.T) {
	env := weekFixture(t)
	r := floor.NewReports(env.store, env.settings)

	v, err := r.HouseLive(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, v.Calls)
	assert.Equal(t, 2, v.Sales)
	assert.Equal(t, 135.0, v.Marketing)
	assert.False(t, v.MarketingOverride)
	assert.Equal(t, 67.5, *v.CPA)

	// WHEN: a marketing override exists for today
	require.NoError(t, env.store.Meta().SetHouseMarketing(env.ctx, &floor.HouseMarketing{DateKey: "2026-03-11", Amount: 300}))
	v, err = r.HouseLive(env.ctx)
	require.NoError(t, err)
	assert.True(t, v.MarketingOverride)
	assert.Equal(t, 300.0, v.Marketing)
	assert.Equal(t, 150.0, *v.CPA)

	// WHEN: the override is for another day it is ignored
	require.NoError(t, env.store.Meta().SetHouseMarketing(env.ctx, &floor.HouseMarketing{DateKey: "2026-03-10", Amount: 300}))
	v, err = r.HouseLive(env.ctx)
	require.NoError(t, err)
	assert.False(t, v.MarketingOverride)
}

func TestHouseLiveWithoutSalesHasNoCPA(t *testing.T) {
	env := newEnv(t, "2026-03-11 11:30")
	env.withAgents(t, agent("a1", true, 1))
	env.withSnapshots(t, snapshot("2026-03-11", "11:00", "a1", 4, 0, at(t, "2026-03-11 11:20")))

	v, err := floor.NewReports(env.store, env.settings).HouseLive(env.ctx)
	require.NoError(t, err)
	assert.Nil(t, v.CPA)
	assert.Equal(t, 0.0, *v.CVR)
}

func TestAgentPerformance(t *testing.T) {
	env := weekFixture(t)
	rows, err := floor.NewReports(env.store, env.settings).AgentPerformance(env.ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a1", rows[0].AgentID)
	assert.Equal(t, floor.SourceLive, rows[0].Source)
	assert.Equal(t, 6, rows[0].Metrics.Calls)
}

func TestWeekTrend(t *testing.T) {
	env := weekFixture(t)
	_, err := env.store.WeeklyTargets().ReplaceAll(env.ctx, []floor.WeeklyTarget{
		{WeekKey: "2026-03-02", TargetSales: 1, TargetCPA: 10},
		{WeekKey: "2026-03-09", TargetSales: 4, TargetCPA: 80},
	})
	require.NoError(t, err)

	v, err := floor.NewReports(env.store, env.settings).WeekTrend(env.ctx)
	require.NoError(t, err)

	// 33 calls, 6 sales -> marketing 495, cpa 82.5
	assert.Equal(t, "2026-03-09", v.WeekKey)
	require.NotNil(t, v.Target)
	assert.Equal(t, 4, v.Target.TargetSales)
	assert.Equal(t, 100.0, *v.SalesProgress, "progress is capped")
	assert.Equal(t, 2.5, *v.CPADelta)
}

func TestWeekTrendWithoutTarget(t *testing.T) {
	env := weekFixture(t)
	v, err := floor.NewReports(env.store, env.settings).WeekTrend(env.ctx)
	require.NoError(t, err)
	assert.Nil(t, v.Target)
	assert.Nil(t, v.SalesProgress)
	assert.Equal(t, 33, v.Metrics.Calls)
}

func TestEODWeek(t *testing.T) {
	env := weekFixture(t)
	r := floor.NewReports(env.store, env.settings)

	v, err := r.EODWeek(env.ctx, "")
	require.NoError(t, err)
	require.Len(t, v.Rows, 5)
	assert.Equal(t, "2026-03-09", v.WeekKey)
	assert.Equal(t, 16, v.Rows[0].Calls)
	assert.Equal(t, 3, v.Rows[0].Deals)
	assert.Equal(t, 8, v.Rows[1].Calls)
	assert.Nil(t, v.Rows[1].UpdatedAt)
	assert.Equal(t, 9, v.Rows[2].Calls)
	require.NotNil(t, v.Rows[2].UpdatedAt)
	assert.Nil(t, v.Rows[4].CPA)
	assert.Equal(t, 33, v.Calls)
	assert.Equal(t, 6, v.Deals)
	assert.False(t, v.Finalized)

	// WHEN: asking for any day of a past week
	past, err := r.EODWeek(env.ctx, "2026-03-04")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", past.WeekKey)
	assert.Equal(t, 5, past.Calls)
	assert.True(t, past.Finalized)

	_, err = r.EODWeek(env.ctx, "soon")
	assert.ErrorIs(t, err, floor.ErrInvalidInput)
}

func TestEODWeekFinalizesFridayEvening(t *testing.T) {
	env := newEnv(t, "2026-03-13 18:14")
	r := floor.NewReports(env.store, env.settings)

	v, err := r.EODWeek(env.ctx, "")
	require.NoError(t, err)
	assert.False(t, v.Finalized)

	env.setNow(t, "2026-03-13 18:15")
	v, err = r.EODWeek(env.ctx, "")
	require.NoError(t, err)
	assert.True(t, v.Finalized)
}

func TestTargetHistory(t *testing.T) {
	env := weekFixture(t)
	_, err := env.store.WeeklyTargets().ReplaceAll(env.ctx, []floor.WeeklyTarget{
		{WeekKey: "2026-03-02", TargetSales: 2, TargetCPA: 100},
		{WeekKey: "2026-03-09", TargetSales: 10, TargetCPA: 80},
	})
	require.NoError(t, err)

	rows, err := floor.NewReports(env.store, env.settings).TargetHistory(env.ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// newest first
	assert.Equal(t, "2026-03-09", rows[0].WeekKey)
	assert.Equal(t, 6, rows[0].ActualSales)
	assert.False(t, rows[0].SalesHit)
	assert.False(t, rows[0].CPAHit)
	assert.Equal(t, -40.0, *rows[0].SalesDeltaPct)

	assert.Equal(t, "2026-03-02", rows[1].WeekKey)
	assert.Equal(t, 1, rows[1].ActualSales)
	assert.Equal(t, 75.0, *rows[1].ActualCPA)
	assert.True(t, rows[1].CPAHit)
	assert.Equal(t, -25.0, *rows[1].CPADeltaPct)
}

func TestKPIs(t *testing.T) {
	env := newEnv(t, "2026-03-11 14:00")
	env.withAgents(t, agent("a1", true, 1), agent("a2", true, 2))
	_, err := env.store.QaRecords().ReplaceAll(env.ctx, []floor.QaRecord{
		{ID: "q1", DateKey: "2026-03-11", AgentID: "a1", Decision: floor.DecisionGoodSale, Status: floor.QaStatusGood},
		{ID: "q2", DateKey: "2026-03-10", AgentID: "a1", Decision: floor.DecisionCheckRecording, Status: floor.QaStatusCheckRecording},
		{ID: "q3", DateKey: "2026-03-02", AgentID: "a1", Decision: floor.DecisionGoodSale, Status: floor.QaStatusGood},
	})
	require.NoError(t, err)
	resolved := at(t, "2026-03-10 18:00")
	_, err = env.store.AuditRecords().ReplaceAll(env.ctx, []floor.AuditRecord{
		{ID: "x1", AgentID: "a1", DiscoveryTs: at(t, "2026-03-10 12:00"), MgmtNotified: true, OutreachMade: true, ResolutionTs: &resolved},
		{ID: "x2", AgentID: "a2", DiscoveryTs: at(t, "2026-03-11 09:00")},
	})
	require.NoError(t, err)
	r := floor.NewReports(env.store, env.settings)

	week, err := r.KPIs(env.ctx, floor.HouseScope(), floor.PeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, 2, week.QaCount)
	assert.Equal(t, 0.5, *week.QaPassRate)
	assert.Equal(t, 6.0, *week.AuditRecoveryHours)
	assert.Equal(t, 1, week.ActiveAuditCount)

	month, err := r.KPIs(env.ctx, floor.HouseScope(), floor.PeriodMonth)
	require.NoError(t, err)
	assert.Equal(t, 3, month.QaCount)

	env.setNow(t, "2026-03-12 09:00")
	day, err := r.KPIs(env.ctx, floor.HouseScope(), floor.PeriodDay)
	require.NoError(t, err)
	assert.Equal(t, 0, day.QaCount)
	assert.Nil(t, day.QaPassRate)
	assert.Nil(t, day.AuditRecoveryHours)
}

func TestKPIsSkipInactiveAgentsAndSettledAudits(t *testing.T) {
	// GIVEN: an active and an inactive agent with QA today, and an audit
	// that needs no action
	env := newEnv(t, "2026-03-11 14:00")
	env.withAgents(t, agent("a1", true, 1), agent("a9", false, 2))
	_, err := env.store.QaRecords().ReplaceAll(env.ctx, []floor.QaRecord{
		{ID: "q1", DateKey: "2026-03-11", AgentID: "a1", Decision: floor.DecisionGoodSale, Status: floor.QaStatusGood},
		{ID: "q2", DateKey: "2026-03-11", AgentID: "a9", Decision: floor.DecisionCheckRecording, Status: floor.QaStatusCheckRecording},
	})
	require.NoError(t, err)
	_, err = env.store.AuditRecords().ReplaceAll(env.ctx, []floor.AuditRecord{
		{ID: "x1", AgentID: "a1", CurrentStatus: floor.AuditStatusNoActionNeeded, DiscoveryTs: at(t, "2026-03-11 09:00")},
		{ID: "x2", AgentID: "a9", CurrentStatus: "issued", DiscoveryTs: at(t, "2026-03-11 10:00")},
	})
	require.NoError(t, err)

	// WHEN
	v, err := floor.NewReports(env.store, env.settings).KPIs(env.ctx, floor.HouseScope(), floor.PeriodDay)
	require.NoError(t, err)

	// THEN: only the active agent's rows count
	assert.Equal(t, 1, v.QaCount)
	require.NotNil(t, v.QaPassRate)
	assert.Equal(t, 1.0, *v.QaPassRate)
	assert.Equal(t, 0, v.ActiveAuditCount)
}

func TestKPIsAgentScope(t *testing.T) {
	env := newEnv(t, "2026-03-11 14:00")
	env.withAgents(t, agent("a1", true, 1), agent("a2", true, 2), agent("a9", false, 3))
	_, err := env.store.QaRecords().ReplaceAll(env.ctx, []floor.QaRecord{
		{ID: "q1", DateKey: "2026-03-11", AgentID: "a1", Decision: floor.DecisionGoodSale, Status: floor.QaStatusGood},
		{ID: "q2", DateKey: "2026-03-11", AgentID: "a2", Decision: floor.DecisionCheckRecording, Status: floor.QaStatusCheckRecording},
		{ID: "q3", DateKey: "2026-03-11", AgentID: "a2", Decision: floor.DecisionGoodSale, Status: floor.QaStatusGood},
	})
	require.NoError(t, err)
	discovered := at(t, "2026-03-11 12:00")
	early := at(t, "2026-03-11 11:00")
	_, err = env.store.AuditRecords().ReplaceAll(env.ctx, []floor.AuditRecord{
		{ID: "x1", AgentID: "a1", CurrentStatus: "issued", DiscoveryTs: discovered},
		{ID: "x2", AgentID: "a2", CurrentStatus: "issued", DiscoveryTs: discovered, ResolutionTs: &early},
	})
	require.NoError(t, err)
	r := floor.NewReports(env.store, env.settings)

	v, err := r.KPIs(env.ctx, floor.AgentScope("a2"), floor.PeriodDay)
	require.NoError(t, err)
	assert.Equal(t, floor.AgentScope("a2"), v.Scope)
	assert.Equal(t, 2, v.QaCount)
	assert.Equal(t, 0.5, *v.QaPassRate)
	assert.Equal(t, 1, v.ActiveAuditCount)
	require.NotNil(t, v.AuditRecoveryHours)
	assert.Equal(t, 0.0, *v.AuditRecoveryHours, "resolution before discovery clamps to zero")

	house, err := r.KPIs(env.ctx, floor.HouseScope(), floor.PeriodDay)
	require.NoError(t, err)
	assert.Equal(t, 3, house.QaCount)
	assert.Equal(t, 2, house.ActiveAuditCount)

	_, err = r.KPIs(env.ctx, floor.AgentScope("a9"), floor.PeriodDay)
	assert.ErrorIs(t, err, floor.ErrAgentNotFound)
}

func TestAuditFollowUpPredicates(t *testing.T) {
	tests := []struct {
		name        string
		rec         floor.AuditRecord
		active      bool
		needsAction bool
	}{
		{"issued", floor.AuditRecord{CurrentStatus: "issued"}, true, true},
		{"worked", floor.AuditRecord{CurrentStatus: "issued", MgmtNotified: true, OutreachMade: true}, false, false},
		{"half worked", floor.AuditRecord{CurrentStatus: "issued", MgmtNotified: true}, true, true},
		{"pending cms", floor.AuditRecord{CurrentStatus: floor.AuditStatusPendingCMS}, true, false},
		{"accepted", floor.AuditRecord{CurrentStatus: floor.AuditStatusAccepted}, true, false},
		{"no action needed", floor.AuditRecord{CurrentStatus: floor.AuditStatusNoActionNeeded}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.active, tt.rec.Active())
			assert.Equal(t, tt.needsAction, tt.rec.NeedsAction())
		})
	}
}

func TestFloorCapacity(t *testing.T) {
	env := newEnv(t, "2026-03-11 14:00")
	env.withAgents(t, agent("a1", true, 1), agent("a2", true, 2), agent("a3", false, 3))
	env.withAttendance(t,
		attendance("2026-03-09", "a1", 100),
		attendance("2026-03-09", "a2", 50),
		attendance("2026-03-10", "a1", 75),
		attendance("2026-03-10", "a3", 100),
		attendance("2026-03-06", "a1", 100),
	)

	v, err := floor.NewReports(env.store, env.settings).FloorCapacity(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.5, v.ByDate["2026-03-09"])
	assert.Equal(t, 0.75, v.ByDate["2026-03-10"])
	assert.Equal(t, 0.0, v.ByDate["2026-03-13"])
	assert.Len(t, v.ByDate, 5)
	assert.Equal(t, 2.25, v.Total)
}

func TestAlerts(t *testing.T) {
	env := newEnv(t, "2026-03-11 17:29")
	env.withAgents(t, agent("a1", true, 1), agent("a2", true, 2))
	_, err := env.store.QaRecords().ReplaceAll(env.ctx, []floor.QaRecord{
		{ID: "q1", DateKey: "2026-03-11", AgentID: "a1", Decision: floor.DecisionGoodSale, Status: floor.QaStatusGood},
	})
	require.NoError(t, err)
	_, err = env.store.AuditRecords().ReplaceAll(env.ctx, []floor.AuditRecord{
		{ID: "x1", AgentID: "a2", DiscoveryTs: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), MgmtNotified: true},
	})
	require.NoError(t, err)
	r := floor.NewReports(env.store, env.settings)

	v, err := r.Alerts(env.ctx)
	require.NoError(t, err)
	assert.False(t, v.AttendanceMissing, "not due before the alert time")
	assert.Equal(t, []string{"a2"}, v.MissingQaAgents)
	assert.Equal(t, []string{"a2"}, v.OpenAuditAgents)

	env.setNow(t, "2026-03-11 17:30")
	v, err = r.Alerts(env.ctx)
	require.NoError(t, err)
	assert.True(t, v.AttendanceMissing)

	_, err = floor.NewTracker(env.store, env.settings).SubmitAttendance(env.ctx, "2026-03-11", "lead", false)
	require.NoError(t, err)
	v, err = r.Alerts(env.ctx)
	require.NoError(t, err)
	assert.False(t, v.AttendanceMissing)
}

func TestStateSummary(t *testing.T) {
	env := weekFixture(t)
	v, err := floor.NewReports(env.store, env.settings).Summary(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 78, v.TotalCalls)
	assert.Equal(t, 16, v.TotalSales)
	assert.Nil(t, v.QaPassRate)
}

func TestAlertsSkipSettledAuditStatuses(t *testing.T) {
	env := newEnv(t, "2026-03-11 12:00")
	env.withAgents(t, agent("a1", true, 1), agent("a2", true, 2), agent("a3", true, 3), agent("a4", true, 4), agent("a5", false, 5))
	found := at(t, "2026-03-10 12:00")
	_, err := env.store.AuditRecords().ReplaceAll(env.ctx, []floor.AuditRecord{
		{ID: "x1", AgentID: "a1", CurrentStatus: floor.AuditStatusPendingCMS, DiscoveryTs: found},
		{ID: "x2", AgentID: "a2", CurrentStatus: floor.AuditStatusNoActionNeeded, DiscoveryTs: found},
		{ID: "x3", AgentID: "a3", CurrentStatus: floor.AuditStatusAccepted, DiscoveryTs: found},
		{ID: "x4", AgentID: "a4", CurrentStatus: "issued", DiscoveryTs: found},
		{ID: "x5", AgentID: "a5", CurrentStatus: "issued", DiscoveryTs: found},
	})
	require.NoError(t, err)

	v, err := floor.NewReports(env.store, env.settings).Alerts(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a4"}, v.OpenAuditAgents)

	// The lifetime summary still counts every audit that was not worked.
	summary, err := floor.NewReports(env.store, env.settings).Summary(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.OpenAuditCount)
}
