/*
freeze.go - End-of-day snapshot freezing

PURPOSE:
  Converts today's mutable intraday snapshots into immutable perfHistory
  rows once the day is closed. Runs on a periodic timer; every run is gated
  by the local clock and by what is already persisted.

STATE PER DATE:
  open -> frozen, exactly once. A date is frozen when perfHistory holds any
  row for it.

ALGORITHM:
  1. Skip unless local time >= cutoff (23:50).
  2. Skip if perfHistory already has a row for today.
  3. For each active agent pick today's close-slot snapshot, else the latest
     snapshot by slot order, else skip the agent.
  4. Compute marketing/CPA/CVR.
  5. Append every row for the date in ONE ReplaceAll.

ALL-OR-NOTHING:
  Because step 5 is a single atomic collection write, a date is either fully
  frozen or not frozen at all. That makes the per-date guard in step 2
  exact: an interrupted run leaves no rows behind, and the next tick retries
  the whole date. Runs are serialized so two ticks cannot both pass step 2.
*/
package floor

import (
	"context"
	"sync"
)

type FreezeStatus string

const (
	FreezeBeforeCutoff    FreezeStatus = "before_cutoff"
	FreezeAlreadyFrozen   FreezeStatus = "already_frozen"
	FreezeNothingToFreeze FreezeStatus = "nothing_to_freeze"
	FreezeFrozen          FreezeStatus = "frozen"
)

// FreezeResult reports what a freeze pass did.
type FreezeResult struct {
	DateKey string        `json:"dateKey"`
	Status  FreezeStatus  `json:"status"`
	Rows    []PerfHistory `json:"rows"`
}

// Freezer promotes live snapshots into perfHistory.
type Freezer struct {
	store    Store
	settings Settings
	mu       sync.Mutex
}

func NewFreezer(store Store, settings Settings) *Freezer {
	return &Freezer{store: store, settings: settings}
}

// Run performs one gated freeze pass for today.
func (f *Freezer) Run(ctx context.Context) (FreezeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now, today := f.settings.now()
	res := FreezeResult{DateKey: today, Rows: []PerfHistory{}}

	if f.settings.Calendar.MinuteOfDay(now) < f.settings.FreezeCutoff {
		res.Status = FreezeBeforeCutoff
		return res, nil
	}

	history, err := f.store.PerfHistory().Get(ctx)
	if err != nil {
		return res, err
	}
	if IsFrozen(history, today) {
		res.Status = FreezeAlreadyFrozen
		return res, nil
	}

	agents, err := f.store.Agents().Get(ctx)
	if err != nil {
		return res, err
	}
	snaps, err := f.store.Snapshots().Get(ctx)
	if err != nil {
		return res, err
	}

	frozenAt := now.UTC()
	for _, ag := range ActiveAgents(agents) {
		snap, ok := f.closingSnapshot(snaps, today, ag.ID)
		if !ok {
			continue
		}
		m := ComputeMetrics(snap.BillableCalls, snap.Sales, f.settings.CostPerCall)
		res.Rows = append(res.Rows, PerfHistory{
			ID:            NewID("perf"),
			DateKey:       today,
			AgentID:       ag.ID,
			BillableCalls: m.Calls,
			Sales:         m.Sales,
			Marketing:     m.Marketing,
			CPA:           m.CPA,
			CVR:           m.CVR,
			FrozenAt:      frozenAt,
		})
	}

	if len(res.Rows) == 0 {
		res.Status = FreezeNothingToFreeze
		return res, nil
	}

	next := make([]PerfHistory, 0, len(history)+len(res.Rows))
	next = append(next, history...)
	next = append(next, res.Rows...)
	if _, err := f.store.PerfHistory().ReplaceAll(ctx, next); err != nil {
		return FreezeResult{DateKey: today, Rows: []PerfHistory{}}, err
	}

	res.Status = FreezeFrozen
	return res, nil
}

// closingSnapshot picks the close-slot snapshot, else the latest by slot order.
func (f *Freezer) closingSnapshot(snaps []Snapshot, dateKey, agentID string) (Snapshot, bool) {
	var best Snapshot
	bestIdx := -1
	for _, s := range snaps {
		if s.DateKey != dateKey || s.AgentID != agentID {
			continue
		}
		if s.Slot == f.settings.CloseSlot {
			return s, true
		}
		if i := f.settings.Slots.Index(s.Slot); i > bestIdx {
			best, bestIdx = s, i
		}
	}
	return best, bestIdx >= 0
}

// IsFrozen reports whether history already holds a row for dateKey.
func IsFrozen(history []PerfHistory, dateKey string) bool {
	for _, h := range history {
		if h.DateKey == dateKey {
			return true
		}
	}
	return false
}
