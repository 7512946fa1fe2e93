package floor_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nbleicher/vc-dash-sub000/floor"
	"github.com/nbleicher/vc-dash-sub000/store/memory"
	"github.com/nbleicher/vc-dash-sub000/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCollection(t *testing.T) {
	c, err := floor.ParseCollection("perfHistory")
	require.NoError(t, err)
	assert.Equal(t, floor.CollectionPerfHistory, c)

	_, err = floor.ParseCollection("users")
	assert.ErrorIs(t, err, floor.ErrUnknownCollection)
	assert.True(t, floor.IsClientError(err))
}

func TestReplaceCollectionValidation(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	tests := []struct {
		name string
		c    floor.Collection
		body string
		want error
	}{
		{"not an array", floor.CollectionAgents, `{"id":"a1"}`, floor.ErrInvalidInput},
		{"missing id", floor.CollectionAgents, `[{"name":"Alex"}]`, floor.ErrInvalidInput},
		{"bad percent", floor.CollectionAttendance, `[{"id":"x","weekKey":"2026-03-09","dateKey":"2026-03-09","agentId":"a1","percent":30}]`, floor.ErrInvalidInput},
		{"duplicate ids", floor.CollectionSpiffRecords, `[
			{"id":"s","weekKey":"2026-03-09","dateKey":"2026-03-09","agentId":"a1","amount":1},
			{"id":"s","weekKey":"2026-03-09","dateKey":"2026-03-10","agentId":"a1","amount":2}
		]`, floor.ErrDuplicateRow},
		{"unknown collection", floor.Collection("users"), `[]`, floor.ErrUnknownCollection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := floor.ReplaceCollection(ctx, s, tt.c, json.RawMessage(tt.body))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReplaceCollectionReportsFieldPaths(t *testing.T) {
	body := `[
		{"id":"a","weekKey":"2026-03-09","dateKey":"2026-03-09","agentId":"a1","percent":100},
		{"id":"b","weekKey":"2026-03-09","dateKey":"2026-03-09","agentId":"a2","percent":10}
	]`
	_, err := floor.ReplaceCollection(context.Background(), memory.New(), floor.CollectionAttendance, json.RawMessage(body))

	var verr *floor.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{"[1].percent": "must be one of 0 25 50 75 100"}, verr.Fields)
}

func TestReplaceCollectionNullMeansEmpty(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	storetest.Seed(t, s, storetest.Fixture())

	out, err := floor.ReplaceCollection(ctx, s, floor.CollectionVaultDocs, json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Equal(t, []floor.VaultDoc{}, out)

	docs, err := s.VaultDocs().Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestPatchRow(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	storetest.Seed(t, s, storetest.Fixture())

	// WHEN: deactivating an agent
	out, err := floor.PatchCollectionRow(ctx, s, floor.CollectionAgents, "agent_1", map[string]any{"active": false})
	require.NoError(t, err)

	// THEN: only that field changes
	a := out.(floor.Agent)
	assert.False(t, a.Active)
	assert.Equal(t, "Alex", a.Name)

	agents, err := s.Agents().Get(ctx)
	require.NoError(t, err)
	assert.False(t, agents[0].Active)
	assert.Len(t, agents, 2)
}

func TestPatchRowByWeekKey(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	storetest.Seed(t, s, storetest.Fixture())

	out, err := floor.PatchCollectionRow(ctx, s, floor.CollectionWeeklyTargets, "2026-03-09", map[string]any{"targetSales": 50})
	require.NoError(t, err)
	assert.Equal(t, 50, out.(floor.WeeklyTarget).TargetSales)
}

func TestPatchRowRejections(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	storetest.Seed(t, s, storetest.Fixture())
	before, err := s.QaRecords().Get(ctx)
	require.NoError(t, err)

	_, err = floor.PatchCollectionRow(ctx, s, floor.CollectionQaRecords, "missing", map[string]any{"notes": "x"})
	var nf *floor.RowNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.True(t, floor.IsNotFound(err))

	_, err = floor.PatchCollectionRow(ctx, s, floor.CollectionQaRecords, "qa_1", map[string]any{"id": "qa_9"})
	assert.ErrorIs(t, err, floor.ErrInvalidInput)

	_, err = floor.PatchCollectionRow(ctx, s, floor.CollectionQaRecords, "qa_1", map[string]any{"status": "Maybe"})
	assert.ErrorIs(t, err, floor.ErrInvalidInput)

	_, err = floor.PatchCollectionRow(ctx, s, floor.CollectionQaRecords, "qa_1", map[string]any{"createdAt": 12})
	assert.ErrorIs(t, err, floor.ErrInvalidInput)

	// THEN: nothing was written
	after, err := s.QaRecords().Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCopyState(t *testing.T) {
	ctx := context.Background()
	from, to := memory.New(), memory.New()
	storetest.Seed(t, from, storetest.Fixture())
	ts := "2026-03-09T14:00:00Z"
	require.NoError(t, from.Meta().SetLastPoliciesBotRun(ctx, &ts))

	require.NoError(t, floor.CopyState(ctx, from, to))

	want, err := floor.LoadState(ctx, from)
	require.NoError(t, err)
	got, err := floor.LoadState(ctx, to)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStoreErrorWrapping(t *testing.T) {
	err := floor.NewStoreError("get", floor.CollectionAgents, assert.AnError)
	assert.ErrorIs(t, err, floor.ErrStoreUnavailable)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "agents")

	assert.NoError(t, floor.NewStoreError("get", floor.CollectionAgents, nil))

	dup := &floor.DuplicateRowError{Collection: floor.CollectionAgents, Key: "a"}
	assert.Same(t, dup, floor.NewStoreError("replace", floor.CollectionAgents, dup))
}
