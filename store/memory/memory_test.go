package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/nbleicher/vc-dash-sub000/floor"
	"github.com/nbleicher/vc-dash-sub000/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) floor.Store {
		s := New()
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestReturnedRowsDoNotAliasStore(t *testing.T) {
	ctx := context.Background()
	s := New()
	storetest.Seed(t, s, storetest.Fixture())

	// WHEN: a caller mutates a row it read
	agents, err := s.Agents().Get(ctx)
	require.NoError(t, err)
	agents[0].Name = "changed"

	// THEN: the stored copy is unaffected
	again, err := s.Agents().Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alex", again[0].Name)
}

func TestFailNextWrite(t *testing.T) {
	ctx := context.Background()
	s := New()
	storetest.Seed(t, s, storetest.Fixture())
	boom := errors.New("disk full")

	s.FailNextWrite(floor.CollectionSnapshots, boom)
	_, err := s.Snapshots().ReplaceAll(ctx, nil)
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, floor.ErrStoreUnavailable)

	snaps, err := s.Snapshots().Get(ctx)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	// THEN: only one write fails
	_, err = s.Snapshots().ReplaceAll(ctx, nil)
	require.NoError(t, err)
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ping(ctx), floor.ErrStoreUnavailable)
	_, err := s.Agents().Get(ctx)
	assert.ErrorIs(t, err, floor.ErrStoreUnavailable)
}
