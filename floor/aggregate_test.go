package floor_test

import (
	"testing"

	"github.com/nbleicher/vc-dash-sub000/floor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// weekFixture seeds a week where today is Wednesday 2026-03-11 14:00:
//
//	Mon 03-09  a1 close snapshot 10/2 AND frozen 10/2 (must count once)
//	           a2 frozen only 6/1
//	Tue 03-10  a1 frozen only 8/1
//	Wed 03-11  a1 live 11:00 4/1 then 13:00 6/2, a2 live 11:00 3/0
//	Mon 03-02  a1 frozen 5/1 (same month, previous week)
//	Fri 02-27  a1 frozen 9/3 (previous month)
//	           a3 is inactive and has data everywhere
func weekFixture(t *testing.T) *testEnv {
	env := newEnv(t, "2026-03-11 14:00")
	env.withAgents(t, agent("a1", true, 1), agent("a2", true, 2), agent("a3", false, 3))
	env.withSnapshots(t,
		snapshot("2026-03-09", "17:00", "a1", 10, 2, at(t, "2026-03-09 17:05")),
		snapshot("2026-03-11", "11:00", "a1", 4, 1, at(t, "2026-03-11 11:05")),
		snapshot("2026-03-11", "13:00", "a1", 6, 2, at(t, "2026-03-11 13:05")),
		snapshot("2026-03-11", "11:00", "a2", 3, 0, at(t, "2026-03-11 11:07")),
		snapshot("2026-03-11", "11:00", "a3", 50, 10, at(t, "2026-03-11 11:07")),
	)
	env.withHistory(t,
		history("2026-03-09", "a1", 10, 2),
		history("2026-03-09", "a2", 6, 1),
		history("2026-03-10", "a1", 8, 1),
		history("2026-03-02", "a1", 5, 1),
		history("2026-02-27", "a1", 9, 3),
		history("2026-03-10", "a3", 40, 8),
	)
	return env
}

func TestResolutionRule(t *testing.T) {
	env := weekFixture(t)
	d, _, err := floor.NewAggregator(env.store, env.settings).Load(env.ctx)
	require.NoError(t, err)

	tests := []struct {
		date, agent string
		calls       int
		sales       int
		source      floor.Source
	}{
		{"2026-03-11", "a1", 6, 2, floor.SourceLive},
		{"2026-03-09", "a1", 10, 2, floor.SourceClose},
		{"2026-03-10", "a1", 8, 1, floor.SourceFrozen},
		{"2026-03-09", "a2", 6, 1, floor.SourceFrozen},
		{"2026-03-12", "a1", 0, 0, floor.SourceNone},
	}
	for _, tt := range tests {
		t.Run(tt.date+"/"+tt.agent, func(t *testing.T) {
			r := d.Resolve(tt.date, tt.agent)
			assert.Equal(t, tt.source, r.Source)
			assert.Equal(t, tt.calls, r.Calls)
			assert.Equal(t, tt.sales, r.Sales)
		})
	}
}

func TestAggregateAgentWeek(t *testing.T) {
	env := weekFixture(t)
	agg := floor.NewAggregator(env.store, env.settings)

	// THEN: Mon close 10/2 + Tue frozen 8/1 + Wed live 6/2, with Monday counted once
	m, err := agg.Aggregate(env.ctx, floor.AgentScope("a1"), floor.PeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, 24, m.Calls)
	assert.Equal(t, 5, m.Sales)
	assert.Equal(t, 360.0, m.Marketing)
	assert.Equal(t, 72.0, *m.CPA)
}

func TestAggregateHouseEqualsSumOfAgents(t *testing.T) {
	env := weekFixture(t)
	agg := floor.NewAggregator(env.store, env.settings)

	for _, p := range []floor.Period{floor.PeriodDay, floor.PeriodWeek, floor.PeriodMonth} {
		t.Run(string(p), func(t *testing.T) {
			house, err := agg.Aggregate(env.ctx, floor.HouseScope(), p)
			require.NoError(t, err)

			var calls, sales int
			for _, id := range []string{"a1", "a2"} {
				m, err := agg.Aggregate(env.ctx, floor.AgentScope(id), p)
				require.NoError(t, err)
				calls += m.Calls
				sales += m.Sales
			}
			assert.Equal(t, calls, house.Calls)
			assert.Equal(t, sales, house.Sales)
		})
	}
}

func TestAggregatePeriods(t *testing.T) {
	env := weekFixture(t)
	agg := floor.NewAggregator(env.store, env.settings)

	day, err := agg.Aggregate(env.ctx, floor.HouseScope(), floor.PeriodDay)
	require.NoError(t, err)
	assert.Equal(t, 9, day.Calls)
	assert.Equal(t, 2, day.Sales)

	// THEN: month includes 03-02 but not 02-27, and never the inactive agent
	month, err := agg.Aggregate(env.ctx, floor.AgentScope("a1"), floor.PeriodMonth)
	require.NoError(t, err)
	assert.Equal(t, 29, month.Calls)
	assert.Equal(t, 6, month.Sales)

	house, err := agg.Aggregate(env.ctx, floor.HouseScope(), floor.PeriodMonth)
	require.NoError(t, err)
	assert.Equal(t, 38, house.Calls)
	assert.Equal(t, 7, house.Sales)
}

func TestAggregateRejectsInactiveAgentScope(t *testing.T) {
	env := weekFixture(t)
	agg := floor.NewAggregator(env.store, env.settings)

	_, err := agg.Aggregate(env.ctx, floor.AgentScope("a3"), floor.PeriodDay)
	assert.ErrorIs(t, err, floor.ErrAgentNotFound)

	_, err = agg.Aggregate(env.ctx, floor.AgentScope("ghost"), floor.PeriodDay)
	assert.ErrorIs(t, err, floor.ErrAgentNotFound)
}

func TestSummary(t *testing.T) {
	env := weekFixture(t)
	s, err := floor.NewAggregator(env.store, env.settings).Summary(env.ctx, floor.HouseScope())
	require.NoError(t, err)

	assert.Equal(t, "2026-03-11", s.DateKey)
	assert.Equal(t, "2026-03-09", s.WeekKey)
	assert.Equal(t, 9, s.Day.Calls)
	assert.Equal(t, 33, s.Week.Calls)
	assert.Equal(t, 38, s.Month.Calls)
}

func TestParseScopeAndPeriod(t *testing.T) {
	s, err := floor.ParseScope("", "")
	require.NoError(t, err)
	assert.Equal(t, floor.HouseScope(), s)

	s, err = floor.ParseScope("agent", "a1")
	require.NoError(t, err)
	assert.Equal(t, floor.AgentScope("a1"), s)

	_, err = floor.ParseScope("agent", "")
	assert.ErrorIs(t, err, floor.ErrInvalidInput)
	_, err = floor.ParseScope("team", "")
	assert.ErrorIs(t, err, floor.ErrInvalidInput)

	p, err := floor.ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, floor.PeriodDay, p)
	_, err = floor.ParsePeriod("year")
	assert.ErrorIs(t, err, floor.ErrInvalidInput)
}

// =============================================================================
// RANKING
// =============================================================================

func TestRankBySales(t *testing.T) {
	env := weekFixture(t)
	env.withAgents(t, agent("a1", true, 1), agent("a2", true, 2), agent("a4", true, 4))

	rows, err := floor.NewAggregator(env.store, env.settings).Rank(env.ctx, floor.RankSales, floor.PeriodWeek)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "a1", rows[0].AgentID)
	assert.Equal(t, 1, rows[0].Rank)
	assert.Equal(t, "a2", rows[1].AgentID)
	assert.Equal(t, "a4", rows[2].AgentID)
	assert.Equal(t, 3, rows[2].Rank)
}

func TestRankByCPAPutsAgentsWithoutDataLast(t *testing.T) {
	env := weekFixture(t)
	env.withAgents(t, agent("a4", true, 0), agent("a1", true, 1), agent("a2", true, 2))

	rows, err := floor.NewAggregator(env.store, env.settings).Rank(env.ctx, floor.RankCPA, floor.PeriodWeek)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// a1: 360/5 = 72, a2: (90+45)/1 = 135, a4: no rows
	assert.Equal(t, "a1", rows[0].AgentID)
	assert.Equal(t, "a2", rows[1].AgentID)
	assert.Equal(t, "a4", rows[2].AgentID)
	assert.Nil(t, rows[2].Metrics.CPA)
}

func TestRankByCVR(t *testing.T) {
	env := weekFixture(t)
	rows, err := floor.NewAggregator(env.store, env.settings).Rank(env.ctx, floor.RankCVR, floor.PeriodWeek)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// a1: 5/24, a2: 1/9
	assert.Equal(t, "a1", rows[0].AgentID)
	assert.Equal(t, "a2", rows[1].AgentID)
}

func TestSortRankingsIsStableForTies(t *testing.T) {
	mk := func(id string, sales int) floor.Ranking {
		return floor.Ranking{AgentID: id, Metrics: floor.Metrics{Sales: sales}}
	}
	rows := []floor.Ranking{mk("x", 3), mk("b", 5), mk("y", 3), mk("a", 5), mk("z", 3)}

	floor.SortRankings(rows, floor.RankSales)

	got := make([]string, len(rows))
	for i, r := range rows {
		got[i] = r.AgentID
	}
	assert.Equal(t, []string{"b", "a", "x", "y", "z"}, got)
}

func TestParseRankMetric(t *testing.T) {
	m, err := floor.ParseRankMetric("")
	require.NoError(t, err)
	assert.Equal(t, floor.RankSales, m)

	_, err = floor.ParseRankMetric("calls")
	assert.ErrorIs(t, err, floor.ErrInvalidInput)
}
