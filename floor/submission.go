/*
submission.go - Signature-based submission tracking

PURPOSE:
  Records that attendance for a day, or intraday numbers for a slot, were
  submitted, and detects when the underlying rows have changed since.

SIGNATURES:
  day:  active agents sorted by id, "<agentId>:<percent|NA>", joined by "|"
  slot: snapshots for (date, slot) sorted by agentId,
        "<agentId>:<calls>:<sales>", joined by "|"
  Both are independent of row order.

SUBMIT:
  no submission yet           -> create one              (SubmitCreated)
  same signature              -> nothing to do           (SubmitUnchanged)
  different, not confirmed    -> no write                (SubmitNeedsConfirmation)
  different, confirmed        -> update the row in place (SubmitUpdated)

  A conflict is a result state, not an error. The caller decides whether to
  prompt, auto-confirm or give up.

INTRADAY WINDOW:
  Slot submissions are rejected with ErrOutsideWindow, before any signature
  work, unless the date is today and the local minute falls inside the
  slot's window.
*/
package floor

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const signatureSeparator = "|"

// DaySignature digests the attendance state of active agents for dateKey.
func DaySignature(dateKey string, agents []Agent, rows []AttendanceRecord) string {
	active := ActiveAgents(agents)
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	percent := make(map[string]int, len(rows))
	for _, r := range rows {
		if r.DateKey == dateKey {
			percent[r.AgentID] = r.Percent
		}
	}

	parts := make([]string, len(active))
	for i, a := range active {
		if p, ok := percent[a.ID]; ok {
			parts[i] = a.ID + ":" + strconv.Itoa(p)
		} else {
			parts[i] = a.ID + ":NA"
		}
	}
	return strings.Join(parts, signatureSeparator)
}

// SlotSignature digests the snapshots recorded for (dateKey, slot).
func SlotSignature(dateKey, slot string, snaps []Snapshot) string {
	var match []Snapshot
	for _, s := range snaps {
		if s.DateKey == dateKey && s.Slot == slot {
			match = append(match, s)
		}
	}
	sort.Slice(match, func(i, j int) bool { return match[i].AgentID < match[j].AgentID })

	parts := make([]string, len(match))
	for i, s := range match {
		parts[i] = fmt.Sprintf("%s:%d:%d", s.AgentID, s.BillableCalls, s.Sales)
	}
	return strings.Join(parts, signatureSeparator)
}

// =============================================================================
// TRACKER
// =============================================================================

type SubmitStatus string

const (
	SubmitCreated           SubmitStatus = "created"
	SubmitUpdated           SubmitStatus = "updated"
	SubmitUnchanged         SubmitStatus = "unchanged"
	SubmitNeedsConfirmation SubmitStatus = "needs_confirmation"
)

// SubmissionCheck describes the current submission state without writing.
type SubmissionCheck struct {
	DateKey   string `json:"dateKey"`
	Slot      string `json:"slot,omitempty"`
	Submitted bool   `json:"submitted"`
	Conflict  bool   `json:"conflict"`
	Signature string `json:"signature"`
	Existing  string `json:"existingSignature,omitempty"`
}

type AttendanceSubmitResult struct {
	Status     SubmitStatus          `json:"status"`
	Check      SubmissionCheck       `json:"check"`
	Submission *AttendanceSubmission `json:"submission,omitempty"`
}

type IntraSubmitResult struct {
	Status     SubmitStatus     `json:"status"`
	Check      SubmissionCheck  `json:"check"`
	Submission *IntraSubmission `json:"submission,omitempty"`
}

// Tracker records attendance and intraday submissions.
type Tracker struct {
	store    Store
	settings Settings
}

func NewTracker(store Store, settings Settings) *Tracker {
	return &Tracker{store: store, settings: settings}
}

// CheckAttendance compares the stored attendance submission for dateKey with
// the current signature.
func (t *Tracker) CheckAttendance(ctx context.Context, dateKey string) (SubmissionCheck, error) {
	check, _, _, err := t.attendanceState(ctx, dateKey)
	return check, err
}

func (t *Tracker) attendanceState(ctx context.Context, dateKey string) (SubmissionCheck, []AttendanceSubmission, int, error) {
	if _, err := ParseDateKey(dateKey); err != nil {
		return SubmissionCheck{}, nil, -1, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	agents, err := t.store.Agents().Get(ctx)
	if err != nil {
		return SubmissionCheck{}, nil, -1, err
	}
	rows, err := t.store.Attendance().Get(ctx)
	if err != nil {
		return SubmissionCheck{}, nil, -1, err
	}
	subs, err := t.store.AttendanceSubmissions().Get(ctx)
	if err != nil {
		return SubmissionCheck{}, nil, -1, err
	}

	check := SubmissionCheck{DateKey: dateKey, Signature: DaySignature(dateKey, agents, rows)}
	idx := -1
	for i, s := range subs {
		if s.DateKey == dateKey {
			idx = i
			break
		}
	}
	if idx >= 0 {
		check.Submitted = true
		check.Existing = subs[idx].Signature
		check.Conflict = subs[idx].Signature != check.Signature
	}
	return check, subs, idx, nil
}

// SubmitAttendance records the day's attendance submission.
func (t *Tracker) SubmitAttendance(ctx context.Context, dateKey, submittedBy string, confirm bool) (AttendanceSubmitResult, error) {
	check, subs, idx, err := t.attendanceState(ctx, dateKey)
	if err != nil {
		return AttendanceSubmitResult{}, err
	}
	res := AttendanceSubmitResult{Check: check}
	now := t.settings.Clock.Now().UTC()

	switch {
	case idx < 0:
		sub := AttendanceSubmission{
			ID:          NewID("att_submit"),
			DateKey:     dateKey,
			SubmittedAt: now,
			UpdatedAt:   now,
			SubmittedBy: submittedBy,
			Signature:   check.Signature,
		}
		subs = append(subs, sub)
		res.Status, res.Submission = SubmitCreated, &sub
	case !check.Conflict:
		sub := subs[idx]
		res.Status, res.Submission = SubmitUnchanged, &sub
		return res, nil
	case !confirm:
		sub := subs[idx]
		res.Status, res.Submission = SubmitNeedsConfirmation, &sub
		return res, nil
	default:
		subs[idx].UpdatedAt = now
		subs[idx].SubmittedAt = now
		subs[idx].SubmittedBy = submittedBy
		subs[idx].Signature = check.Signature
		sub := subs[idx]
		res.Status, res.Submission = SubmitUpdated, &sub
	}

	if _, err := t.store.AttendanceSubmissions().ReplaceAll(ctx, subs); err != nil {
		return AttendanceSubmitResult{}, err
	}
	return res, nil
}

// CheckIntraSlot compares the stored slot submission with the current
// signature. It does not apply the window check.
func (t *Tracker) CheckIntraSlot(ctx context.Context, dateKey, slot string) (SubmissionCheck, error) {
	if _, ok := t.settings.Slots.Lookup(slot); !ok {
		return SubmissionCheck{}, fmt.Errorf("%w: %q", ErrUnknownSlot, slot)
	}
	check, _, _, err := t.slotState(ctx, dateKey, slot)
	return check, err
}

func (t *Tracker) slotState(ctx context.Context, dateKey, slot string) (SubmissionCheck, []IntraSubmission, int, error) {
	snaps, err := t.store.Snapshots().Get(ctx)
	if err != nil {
		return SubmissionCheck{}, nil, -1, err
	}
	subs, err := t.store.IntraSubmissions().Get(ctx)
	if err != nil {
		return SubmissionCheck{}, nil, -1, err
	}

	check := SubmissionCheck{DateKey: dateKey, Slot: slot, Signature: SlotSignature(dateKey, slot, snaps)}
	idx := -1
	for i, s := range subs {
		if s.DateKey == dateKey && s.Slot == slot {
			idx = i
			break
		}
	}
	if idx >= 0 {
		check.Submitted = true
		check.Existing = subs[idx].Signature
		check.Conflict = subs[idx].Signature != check.Signature
	}
	return check, subs, idx, nil
}

// CheckWindow rejects writes for slots that are not currently open.
func (t *Tracker) CheckWindow(dateKey, slot string) error {
	return t.settings.checkWindow(dateKey, slot)
}

func (s Settings) checkWindow(dateKey, slot string) error {
	if _, ok := s.Slots.Lookup(slot); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSlot, slot)
	}
	now, today := s.now()
	minute := s.Calendar.MinuteOfDay(now)
	if dateKey != today || !s.Slots.IsOpen(slot, minute) {
		return &WindowError{DateKey: dateKey, Slot: slot, Today: today, Minute: minute}
	}
	return nil
}

// SubmitIntraSlot records an intraday submission for an open slot.
func (t *Tracker) SubmitIntraSlot(ctx context.Context, dateKey, slot, submittedBy string, confirm bool) (IntraSubmitResult, error) {
	if err := t.CheckWindow(dateKey, slot); err != nil {
		return IntraSubmitResult{}, err
	}
	check, subs, idx, err := t.slotState(ctx, dateKey, slot)
	if err != nil {
		return IntraSubmitResult{}, err
	}
	res := IntraSubmitResult{Check: check}
	now := t.settings.Clock.Now().UTC()

	switch {
	case idx < 0:
		sub := IntraSubmission{
			ID:          NewID("intra_sub"),
			DateKey:     dateKey,
			Slot:        slot,
			SubmittedAt: now,
			UpdatedAt:   now,
			SubmittedBy: submittedBy,
			Signature:   check.Signature,
		}
		subs = append(subs, sub)
		res.Status, res.Submission = SubmitCreated, &sub
	case !check.Conflict:
		sub := subs[idx]
		res.Status, res.Submission = SubmitUnchanged, &sub
		return res, nil
	case !confirm:
		sub := subs[idx]
		res.Status, res.Submission = SubmitNeedsConfirmation, &sub
		return res, nil
	default:
		subs[idx].UpdatedAt = now
		subs[idx].SubmittedAt = now
		subs[idx].SubmittedBy = submittedBy
		subs[idx].Signature = check.Signature
		sub := subs[idx]
		res.Status, res.Submission = SubmitUpdated, &sub
	}

	if _, err := t.store.IntraSubmissions().ReplaceAll(ctx, subs); err != nil {
		return IntraSubmitResult{}, err
	}
	return res, nil
}
