package floor

import (
	"context"
	"fmt"
)

// Entries applies single-row edits as read-modify-replace on whole collections.
type Entries struct {
	store    Store
	settings Settings
}

func NewEntries(store Store, settings Settings) *Entries {
	return &Entries{store: store, settings: settings}
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

type SnapshotEntry struct {
	AgentID       string `json:"agentId" validate:"required"`
	Slot          string `json:"slot" validate:"required"`
	BillableCalls int    `json:"billableCalls" validate:"min=0"`
	Sales         int    `json:"sales" validate:"min=0"`
}

// RecordSnapshot upserts today's snapshot for (slot, agent). The slot must be
// open and the agent active.
func (e *Entries) RecordSnapshot(ctx context.Context, in SnapshotEntry) (Snapshot, error) {
	if err := Validate(in); err != nil {
		return Snapshot{}, err
	}
	now, today := e.settings.now()
	if err := e.settings.checkWindow(today, in.Slot); err != nil {
		return Snapshot{}, err
	}
	if err := e.requireActive(ctx, in.AgentID); err != nil {
		return Snapshot{}, err
	}

	snaps, err := e.store.Snapshots().Get(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	slot, _ := e.settings.Slots.Lookup(in.Slot)
	row := Snapshot{
		ID:            NewID("snap"),
		DateKey:       today,
		Slot:          slot.Key,
		SlotLabel:     slot.Label,
		AgentID:       in.AgentID,
		BillableCalls: in.BillableCalls,
		Sales:         in.Sales,
		UpdatedAt:     now.UTC(),
	}
	replaced := false
	for i, s := range snaps {
		if s.DateKey == today && s.Slot == slot.Key && s.AgentID == in.AgentID {
			row.ID = s.ID
			snaps[i] = row
			replaced = true
			break
		}
	}
	if !replaced {
		snaps = append(snaps, row)
	}
	if _, err := e.store.Snapshots().ReplaceAll(ctx, snaps); err != nil {
		return Snapshot{}, err
	}
	return row, nil
}

func (e *Entries) requireActive(ctx context.Context, agentID string) error {
	agents, err := e.store.Agents().Get(ctx)
	if err != nil {
		return err
	}
	for _, a := range agents {
		if a.ID == agentID && a.Active {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrAgentNotFound, agentID)
}

// =============================================================================
// ATTENDANCE
// =============================================================================

type AttendanceEntry struct {
	AgentID string  `json:"agentId" validate:"required"`
	DateKey string  `json:"dateKey" validate:"required,datetime=2006-01-02"`
	Percent int     `json:"percent" validate:"oneof=0 25 50 75 100"`
	Notes   *string `json:"notes"`
}

type AttendanceEntryResult struct {
	Status SubmitStatus     `json:"status"`
	Record AttendanceRecord `json:"record"`
}

// SetAttendance upserts one agent's attendance for a day. Changing an
// existing, different percent needs confirm; without it nothing is written.
func (e *Entries) SetAttendance(ctx context.Context, in AttendanceEntry, confirm bool) (AttendanceEntryResult, error) {
	if err := Validate(in); err != nil {
		return AttendanceEntryResult{}, err
	}
	weekKey, err := WeekKeyForDate(in.DateKey)
	if err != nil {
		return AttendanceEntryResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	rows, err := e.store.Attendance().Get(ctx)
	if err != nil {
		return AttendanceEntryResult{}, err
	}

	idx := -1
	for i, r := range rows {
		if r.AgentID == in.AgentID && r.DateKey == in.DateKey {
			idx = i
			break
		}
	}

	var res AttendanceEntryResult
	if idx < 0 {
		rec := AttendanceRecord{
			ID:      NewID("att"),
			WeekKey: weekKey,
			DateKey: in.DateKey,
			AgentID: in.AgentID,
			Percent: in.Percent,
		}
		if in.Notes != nil {
			rec.Notes = *in.Notes
		}
		rows = append(rows, rec)
		res = AttendanceEntryResult{Status: SubmitCreated, Record: rec}
	} else {
		cur := rows[idx]
		if cur.Percent != in.Percent && !confirm {
			return AttendanceEntryResult{Status: SubmitNeedsConfirmation, Record: cur}, nil
		}
		next := cur
		next.Percent = in.Percent
		next.WeekKey = weekKey
		if in.Notes != nil {
			next.Notes = *in.Notes
		}
		if next == cur {
			return AttendanceEntryResult{Status: SubmitUnchanged, Record: cur}, nil
		}
		rows[idx] = next
		res = AttendanceEntryResult{Status: SubmitUpdated, Record: next}
	}

	if _, err := e.store.Attendance().ReplaceAll(ctx, rows); err != nil {
		return AttendanceEntryResult{}, err
	}
	return res, nil
}

// =============================================================================
// WEEKLY TARGET AND SCALARS
// =============================================================================

type WeeklyTargetEntry struct {
	TargetSales int     `json:"targetSales" validate:"min=0"`
	TargetCPA   float64 `json:"targetCpa" validate:"min=0"`
}

// SetWeeklyTarget upserts the current week's target.
func (e *Entries) SetWeeklyTarget(ctx context.Context, in WeeklyTargetEntry) (WeeklyTarget, error) {
	if err := Validate(in); err != nil {
		return WeeklyTarget{}, err
	}
	now := e.settings.Clock.Now()
	target := WeeklyTarget{
		WeekKey:     e.settings.Calendar.WeekKey(now),
		TargetSales: in.TargetSales,
		TargetCPA:   in.TargetCPA,
		SetAt:       now.UTC(),
	}
	rows, err := e.store.WeeklyTargets().Get(ctx)
	if err != nil {
		return WeeklyTarget{}, err
	}
	replaced := false
	for i, r := range rows {
		if r.WeekKey == target.WeekKey {
			rows[i] = target
			replaced = true
			break
		}
	}
	if !replaced {
		rows = append(rows, target)
	}
	if _, err := e.store.WeeklyTargets().ReplaceAll(ctx, rows); err != nil {
		return WeeklyTarget{}, err
	}
	return target, nil
}

// SetHouseMarketing stores the house marketing override.
func (e *Entries) SetHouseMarketing(ctx context.Context, hm HouseMarketing) (HouseMarketing, error) {
	if err := Validate(hm); err != nil {
		return HouseMarketing{}, err
	}
	if err := e.store.Meta().SetHouseMarketing(ctx, &hm); err != nil {
		return HouseMarketing{}, err
	}
	return hm, nil
}

// SetLastPoliciesBotRun stores the last policies bot timestamp; nil clears it.
func (e *Entries) SetLastPoliciesBotRun(ctx context.Context, ts *string) error {
	return e.store.Meta().SetLastPoliciesBotRun(ctx, ts)
}
