package floor_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/nbleicher/vc-dash-sub000/floor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreezeNothingWhenNoSnapshots(t *testing.T) {
	// GIVEN: active agents but zero snapshots for today
	env := newEnv(t, "2026-03-09 23:55")
	env.withAgents(t, agent("a1", true, 1), agent("a2", true, 2))

	// WHEN: freezing
	res, err := floor.NewFreezer(env.store, env.settings).Run(env.ctx)
	require.NoError(t, err)

	// THEN: zero history rows
	assert.Equal(t, floor.FreezeNothingToFreeze, res.Status)
	assert.Empty(t, res.Rows)
	hist, err := env.store.PerfHistory().Get(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestFreezeComputesKPIs(t *testing.T) {
	// GIVEN: agent a1 closed the day at 10 calls, 2 sales
	env := newEnv(t, "2026-03-09 23:55")
	env.withAgents(t, agent("a1", true, 1))
	env.withSnapshots(t, snapshot("2026-03-09", "17:00", "a1", 10, 2, at(t, "2026-03-09 17:05")))

	// WHEN: freezing after the cutoff
	res, err := floor.NewFreezer(env.store, env.settings).Run(env.ctx)
	require.NoError(t, err)

	// THEN: one row with marketing 150, cpa 75, cvr 0.2
	require.Equal(t, floor.FreezeFrozen, res.Status)
	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	assert.True(t, strings.HasPrefix(row.ID, "perf_"))
	assert.Equal(t, "2026-03-09", row.DateKey)
	assert.Equal(t, "a1", row.AgentID)
	assert.Equal(t, 10, row.BillableCalls)
	assert.Equal(t, 2, row.Sales)
	assert.Equal(t, 150.0, row.Marketing)
	assert.Equal(t, 75.0, *row.CPA)
	assert.Equal(t, 0.2, *row.CVR)
	assert.True(t, row.FrozenAt.Equal(env.clock.Now()))

	hist, err := env.store.PerfHistory().Get(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, res.Rows, hist)
}

func TestFreezeIsIdempotent(t *testing.T) {
	env := newEnv(t, "2026-03-09 23:51")
	env.withAgents(t, agent("a1", true, 1))
	env.withSnapshots(t, snapshot("2026-03-09", "17:00", "a1", 10, 2, at(t, "2026-03-09 17:05")))
	f := floor.NewFreezer(env.store, env.settings)

	first, err := f.Run(env.ctx)
	require.NoError(t, err)
	require.Equal(t, floor.FreezeFrozen, first.Status)

	// WHEN: the timer fires again, even after late snapshot edits
	env.setNow(t, "2026-03-09 23:56")
	env.withSnapshots(t, snapshot("2026-03-09", "17:00", "a1", 50, 9, at(t, "2026-03-09 23:52")))
	second, err := f.Run(env.ctx)
	require.NoError(t, err)

	// THEN: nothing new is written
	assert.Equal(t, floor.FreezeAlreadyFrozen, second.Status)
	hist, err := env.store.PerfHistory().Get(env.ctx)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 10, hist[0].BillableCalls)
}

func TestFreezeWaitsForCutoff(t *testing.T) {
	env := newEnv(t, "2026-03-09 23:49")
	env.withAgents(t, agent("a1", true, 1))
	env.withSnapshots(t, snapshot("2026-03-09", "17:00", "a1", 10, 2, at(t, "2026-03-09 17:05")))

	res, err := floor.NewFreezer(env.store, env.settings).Run(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, floor.FreezeBeforeCutoff, res.Status)

	hist, err := env.store.PerfHistory().Get(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestFreezePicksClosingSnapshot(t *testing.T) {
	env := newEnv(t, "2026-03-09 23:55")
	env.withAgents(t,
		agent("a1", true, 1),
		agent("a2", true, 2),
		agent("a3", false, 3),
	)
	env.withSnapshots(t,
		// a1: close slot wins even though 11:00 was edited later
		snapshot("2026-03-09", "17:00", "a1", 10, 2, at(t, "2026-03-09 17:05")),
		snapshot("2026-03-09", "11:00", "a1", 3, 1, at(t, "2026-03-09 18:00")),
		// a2: no close snapshot, latest slot by schedule order wins
		snapshot("2026-03-09", "15:00", "a2", 8, 1, at(t, "2026-03-09 15:05")),
		snapshot("2026-03-09", "11:00", "a2", 4, 0, at(t, "2026-03-09 16:00")),
		// a3: inactive
		snapshot("2026-03-09", "17:00", "a3", 20, 5, at(t, "2026-03-09 17:05")),
		// yesterday is ignored
		snapshot("2026-03-08", "17:00", "a1", 99, 9, at(t, "2026-03-08 17:05")),
	)

	res, err := floor.NewFreezer(env.store, env.settings).Run(env.ctx)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	byAgent := map[string]floor.PerfHistory{}
	for _, r := range res.Rows {
		byAgent[r.AgentID] = r
	}
	assert.Equal(t, 10, byAgent["a1"].BillableCalls)
	assert.Equal(t, 8, byAgent["a2"].BillableCalls)
	assert.NotContains(t, byAgent, "a3")
}

func TestFreezeKeepsEarlierHistory(t *testing.T) {
	env := newEnv(t, "2026-03-09 23:55")
	env.withAgents(t, agent("a1", true, 1))
	env.withHistory(t, history("2026-03-06", "a1", 12, 3))
	env.withSnapshots(t, snapshot("2026-03-09", "17:00", "a1", 10, 2, at(t, "2026-03-09 17:05")))

	_, err := floor.NewFreezer(env.store, env.settings).Run(env.ctx)
	require.NoError(t, err)

	hist, err := env.store.PerfHistory().Get(env.ctx)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "2026-03-06", hist[0].DateKey)
	assert.Equal(t, "2026-03-09", hist[1].DateKey)
}

func TestFreezeFailedWriteIsRetried(t *testing.T) {
	env := newEnv(t, "2026-03-09 23:55")
	env.withAgents(t, agent("a1", true, 1), agent("a2", true, 2))
	env.withSnapshots(t,
		snapshot("2026-03-09", "17:00", "a1", 10, 2, at(t, "2026-03-09 17:05")),
		snapshot("2026-03-09", "17:00", "a2", 6, 1, at(t, "2026-03-09 17:06")),
	)
	f := floor.NewFreezer(env.store, env.settings)

	// GIVEN: the history write fails
	env.store.FailNextWrite(floor.CollectionPerfHistory, errors.New("connection reset"))
	_, err := f.Run(env.ctx)
	require.ErrorIs(t, err, floor.ErrStoreUnavailable)

	// THEN: no partial rows were left behind
	hist, err := env.store.PerfHistory().Get(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, hist)

	// WHEN: the next tick runs
	res, err := f.Run(env.ctx)
	require.NoError(t, err)

	// THEN: every agent is frozen
	assert.Equal(t, floor.FreezeFrozen, res.Status)
	assert.Len(t, res.Rows, 2)
}

func TestIsFrozen(t *testing.T) {
	rows := []floor.PerfHistory{history("2026-03-06", "a1", 1, 0)}
	assert.True(t, floor.IsFrozen(rows, "2026-03-06"))
	assert.False(t, floor.IsFrozen(rows, "2026-03-09"))
	assert.False(t, floor.IsFrozen(nil, "2026-03-09"))
}
