package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nbleicher/vc-dash-sub000/floor"
)

type scanner interface {
	Scan(dest ...any) error
}

// table maps one collection onto one SQL table.
type table[T floor.Row] struct {
	s       *Store
	c       floor.Collection
	name    string
	columns []string
	orderBy string
	scan    func(scanner) (T, error)
	values  func(T) []any
}

func (t *table[T]) selectSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(t.columns, ", "), t.name, t.orderBy)
}

func (t *table[T]) insertSQL() string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(t.columns, ", "), marks)
}

// Get returns every row of the collection.
func (t *table[T]) Get(ctx context.Context) ([]T, error) {
	return t.get(ctx, t.s.db)
}

func (t *table[T]) get(ctx context.Context, q querier) ([]T, error) {
	rows, err := q.QueryContext(ctx, t.selectSQL())
	if err != nil {
		return nil, floor.NewStoreError("get", t.c, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := t.scan(rows)
		if err != nil {
			return nil, floor.NewStoreError("scan", t.c, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, floor.NewStoreError("get", t.c, err)
	}
	return out, nil
}

// ReplaceAll deletes every row and inserts rows in one transaction.
func (t *table[T]) ReplaceAll(ctx context.Context, rows []T) ([]T, error) {
	t.s.writeMu.Lock()
	defer t.s.writeMu.Unlock()

	err := t.s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+t.name); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, t.insertSQL())
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, t.values(r)...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isConstraint(err) {
			if dup := floor.CheckUnique(t.c, rows); dup != nil {
				return nil, dup
			}
		}
		return nil, floor.NewStoreError("replace", t.c, err)
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

// =============================================================================
// TABLE DEFINITIONS
// =============================================================================

func (s *Store) initTables() {
	s.agents = &table[floor.Agent]{
		s: s, c: floor.CollectionAgents, name: "agents",
		columns: []string{"id", "name", "active", "created_at"},
		orderBy: "created_at ASC, rowid ASC",
		scan: func(sc scanner) (floor.Agent, error) {
			var a floor.Agent
			var active int
			var created string
			if err := sc.Scan(&a.ID, &a.Name, &active, &created); err != nil {
				return a, err
			}
			a.Active = active != 0
			var err error
			a.CreatedAt, err = parseTime(created)
			return a, err
		},
		values: func(a floor.Agent) []any {
			return []any{a.ID, a.Name, boolInt(a.Active), formatTime(a.CreatedAt)}
		},
	}

	s.snapshots = &table[floor.Snapshot]{
		s: s, c: floor.CollectionSnapshots, name: "snapshots",
		columns: []string{"id", "date_key", "slot", "slot_label", "agent_id", "billable_calls", "sales", "updated_at"},
		orderBy: "rowid ASC",
		scan: func(sc scanner) (floor.Snapshot, error) {
			var v floor.Snapshot
			var updated string
			if err := sc.Scan(&v.ID, &v.DateKey, &v.Slot, &v.SlotLabel, &v.AgentID, &v.BillableCalls, &v.Sales, &updated); err != nil {
				return v, err
			}
			var err error
			v.UpdatedAt, err = parseTime(updated)
			return v, err
		},
		values: func(v floor.Snapshot) []any {
			return []any{v.ID, v.DateKey, v.Slot, v.SlotLabel, v.AgentID, v.BillableCalls, v.Sales, formatTime(v.UpdatedAt)}
		},
	}

	s.perfHistory = &table[floor.PerfHistory]{
		s: s, c: floor.CollectionPerfHistory, name: "perf_history",
		columns: []string{"id", "date_key", "agent_id", "billable_calls", "sales", "marketing", "cpa", "cvr", "frozen_at"},
		orderBy: "rowid ASC",
		scan: func(sc scanner) (floor.PerfHistory, error) {
			var v floor.PerfHistory
			var cpa, cvr sql.NullFloat64
			var frozen string
			if err := sc.Scan(&v.ID, &v.DateKey, &v.AgentID, &v.BillableCalls, &v.Sales, &v.Marketing, &cpa, &cvr, &frozen); err != nil {
				return v, err
			}
			v.CPA, v.CVR = scanNullFloat(cpa), scanNullFloat(cvr)
			var err error
			v.FrozenAt, err = parseTime(frozen)
			return v, err
		},
		values: func(v floor.PerfHistory) []any {
			return []any{v.ID, v.DateKey, v.AgentID, v.BillableCalls, v.Sales, v.Marketing, nullFloat(v.CPA), nullFloat(v.CVR), formatTime(v.FrozenAt)}
		},
	}

	s.qaRecords = &table[floor.QaRecord]{
		s: s, c: floor.CollectionQaRecords, name: "qa_records",
		columns: []string{"id", "date_key", "agent_id", "client_name", "decision", "call_id", "notes", "status", "created_at", "resolved_at"},
		orderBy: "rowid ASC",
		scan: func(sc scanner) (floor.QaRecord, error) {
			var v floor.QaRecord
			var created string
			var resolved sql.NullString
			if err := sc.Scan(&v.ID, &v.DateKey, &v.AgentID, &v.ClientName, &v.Decision, &v.CallID, &v.Notes, &v.Status, &created, &resolved); err != nil {
				return v, err
			}
			var err error
			if v.CreatedAt, err = parseTime(created); err != nil {
				return v, err
			}
			v.ResolvedAt, err = scanNullTime(resolved)
			return v, err
		},
		values: func(v floor.QaRecord) []any {
			return []any{v.ID, v.DateKey, v.AgentID, v.ClientName, v.Decision, v.CallID, v.Notes, v.Status, formatTime(v.CreatedAt), nullTime(v.ResolvedAt)}
		},
	}

	s.auditRecords = &table[floor.AuditRecord]{
		s: s, c: floor.CollectionAuditRecords, name: "audit_records",
		columns: []string{"id", "agent_id", "carrier", "client_name", "reason", "current_status", "discovery_ts", "mgmt_notified", "outreach_made", "resolution_ts", "notes"},
		orderBy: "rowid ASC",
		scan: func(sc scanner) (floor.AuditRecord, error) {
			var v floor.AuditRecord
			var discovery string
			var notified, outreach int
			var resolution sql.NullString
			if err := sc.Scan(&v.ID, &v.AgentID, &v.Carrier, &v.ClientName, &v.Reason, &v.CurrentStatus, &discovery, &notified, &outreach, &resolution, &v.Notes); err != nil {
				return v, err
			}
			v.MgmtNotified = notified != 0
			v.OutreachMade = outreach != 0
			var err error
			if v.DiscoveryTs, err = parseTime(discovery); err != nil {
				return v, err
			}
			v.ResolutionTs, err = scanNullTime(resolution)
			return v, err
		},
		values: func(v floor.AuditRecord) []any {
			return []any{v.ID, v.AgentID, v.Carrier, v.ClientName, v.Reason, v.CurrentStatus, formatTime(v.DiscoveryTs),
				boolInt(v.MgmtNotified), boolInt(v.OutreachMade), nullTime(v.ResolutionTs), v.Notes}
		},
	}

	s.attendance = &table[floor.AttendanceRecord]{
		s: s, c: floor.CollectionAttendance, name: "attendance",
		columns: []string{"id", "week_key", "date_key", "agent_id", "percent", "notes"},
		orderBy: "rowid ASC",
		scan: func(sc scanner) (floor.AttendanceRecord, error) {
			var v floor.AttendanceRecord
			err := sc.Scan(&v.ID, &v.WeekKey, &v.DateKey, &v.AgentID, &v.Percent, &v.Notes)
			return v, err
		},
		values: func(v floor.AttendanceRecord) []any {
			return []any{v.ID, v.WeekKey, v.DateKey, v.AgentID, v.Percent, v.Notes}
		},
	}

	s.spiffRecords = &table[floor.SpiffRecord]{
		s: s, c: floor.CollectionSpiffRecords, name: "spiff_records",
		columns: []string{"id", "week_key", "date_key", "agent_id", "amount"},
		orderBy: "rowid ASC",
		scan: func(sc scanner) (floor.SpiffRecord, error) {
			var v floor.SpiffRecord
			err := sc.Scan(&v.ID, &v.WeekKey, &v.DateKey, &v.AgentID, &v.Amount)
			return v, err
		},
		values: func(v floor.SpiffRecord) []any {
			return []any{v.ID, v.WeekKey, v.DateKey, v.AgentID, v.Amount}
		},
	}

	s.attendanceSubmissions = &table[floor.AttendanceSubmission]{
		s: s, c: floor.CollectionAttendanceSubmissions, name: "attendance_submissions",
		columns: []string{"id", "date_key", "submitted_at", "updated_at", "submitted_by", "day_signature"},
		orderBy: "rowid ASC",
		scan: func(sc scanner) (floor.AttendanceSubmission, error) {
			var v floor.AttendanceSubmission
			var submitted, updated string
			if err := sc.Scan(&v.ID, &v.DateKey, &submitted, &updated, &v.SubmittedBy, &v.Signature); err != nil {
				return v, err
			}
			return v, parseTimes(&submitted, &v.SubmittedAt, &updated, &v.UpdatedAt)
		},
		values: func(v floor.AttendanceSubmission) []any {
			return []any{v.ID, v.DateKey, formatTime(v.SubmittedAt), formatTime(v.UpdatedAt), v.SubmittedBy, v.Signature}
		},
	}

	s.intraSubmissions = &table[floor.IntraSubmission]{
		s: s, c: floor.CollectionIntraSubmissions, name: "intra_submissions",
		columns: []string{"id", "date_key", "slot", "submitted_at", "updated_at", "submitted_by", "slot_signature"},
		orderBy: "rowid ASC",
		scan: func(sc scanner) (floor.IntraSubmission, error) {
			var v floor.IntraSubmission
			var submitted, updated string
			if err := sc.Scan(&v.ID, &v.DateKey, &v.Slot, &submitted, &updated, &v.SubmittedBy, &v.Signature); err != nil {
				return v, err
			}
			return v, parseTimes(&submitted, &v.SubmittedAt, &updated, &v.UpdatedAt)
		},
		values: func(v floor.IntraSubmission) []any {
			return []any{v.ID, v.DateKey, v.Slot, formatTime(v.SubmittedAt), formatTime(v.UpdatedAt), v.SubmittedBy, v.Signature}
		},
	}

	s.weeklyTargets = &table[floor.WeeklyTarget]{
		s: s, c: floor.CollectionWeeklyTargets, name: "weekly_targets",
		columns: []string{"week_key", "target_sales", "target_cpa", "set_at"},
		orderBy: "rowid ASC",
		scan: func(sc scanner) (floor.WeeklyTarget, error) {
			var v floor.WeeklyTarget
			var set string
			if err := sc.Scan(&v.WeekKey, &v.TargetSales, &v.TargetCPA, &set); err != nil {
				return v, err
			}
			var err error
			v.SetAt, err = parseTime(set)
			return v, err
		},
		values: func(v floor.WeeklyTarget) []any {
			return []any{v.WeekKey, v.TargetSales, v.TargetCPA, formatTime(v.SetAt)}
		},
	}

	s.vaultMeetings = &table[floor.VaultMeeting]{
		s: s, c: floor.CollectionVaultMeetings, name: "vault_meetings",
		columns: []string{"id", "agent_id", "date_key", "meeting_type", "notes", "action_items", "created_at"},
		orderBy: "rowid ASC",
		scan: func(sc scanner) (floor.VaultMeeting, error) {
			var v floor.VaultMeeting
			var created string
			if err := sc.Scan(&v.ID, &v.AgentID, &v.DateKey, &v.MeetingType, &v.Notes, &v.ActionItems, &created); err != nil {
				return v, err
			}
			var err error
			v.CreatedAt, err = parseTime(created)
			return v, err
		},
		values: func(v floor.VaultMeeting) []any {
			return []any{v.ID, v.AgentID, v.DateKey, v.MeetingType, v.Notes, v.ActionItems, formatTime(v.CreatedAt)}
		},
	}

	s.vaultDocs = &table[floor.VaultDoc]{
		s: s, c: floor.CollectionVaultDocs, name: "vault_docs",
		columns: []string{"id", "agent_id", "file_name", "file_size", "uploaded_at"},
		orderBy: "rowid ASC",
		scan: func(sc scanner) (floor.VaultDoc, error) {
			var v floor.VaultDoc
			var uploaded string
			if err := sc.Scan(&v.ID, &v.AgentID, &v.FileName, &v.FileSize, &uploaded); err != nil {
				return v, err
			}
			var err error
			v.UploadedAt, err = parseTime(uploaded)
			return v, err
		},
		values: func(v floor.VaultDoc) []any {
			return []any{v.ID, v.AgentID, v.FileName, v.FileSize, formatTime(v.UploadedAt)}
		},
	}
}

// parseTimes parses pairs of (text, destination).
func parseTimes(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		raw := pairs[i].(*string)
		dst := pairs[i+1].(*time.Time)
		t, err := parseTime(*raw)
		if err != nil {
			return err
		}
		*dst = t
	}
	return nil
}

// =============================================================================
// REPOSITORY ACCESSORS
// =============================================================================

func (s *Store) Agents() floor.Repository[floor.Agent] { return s.agents }

func (s *Store) Snapshots() floor.Repository[floor.Snapshot] { return s.snapshots }

func (s *Store) PerfHistory() floor.Repository[floor.PerfHistory] { return s.perfHistory }

func (s *Store) QaRecords() floor.Repository[floor.QaRecord] { return s.qaRecords }

func (s *Store) AuditRecords() floor.Repository[floor.AuditRecord] { return s.auditRecords }

func (s *Store) Attendance() floor.Repository[floor.AttendanceRecord] { return s.attendance }

func (s *Store) SpiffRecords() floor.Repository[floor.SpiffRecord] { return s.spiffRecords }

func (s *Store) AttendanceSubmissions() floor.Repository[floor.AttendanceSubmission] {
	return s.attendanceSubmissions
}

func (s *Store) IntraSubmissions() floor.Repository[floor.IntraSubmission] {
	return s.intraSubmissions
}

func (s *Store) WeeklyTargets() floor.Repository[floor.WeeklyTarget] { return s.weeklyTargets }

func (s *Store) VaultMeetings() floor.Repository[floor.VaultMeeting] { return s.vaultMeetings }

func (s *Store) VaultDocs() floor.Repository[floor.VaultDoc] { return s.vaultDocs }

// =============================================================================
// TX VIEW - read-only Store bound to one transaction
// =============================================================================

var errReadOnly = errors.New("read-only transaction view")

type txRepo[T floor.Row] struct {
	t *table[T]
	q querier
}

func (r txRepo[T]) Get(ctx context.Context) ([]T, error) { return r.t.get(ctx, r.q) }

func (r txRepo[T]) ReplaceAll(context.Context, []T) ([]T, error) { return nil, errReadOnly }

type txView struct {
	s *Store
	q querier
}

func (v txView) Agents() floor.Repository[floor.Agent] {
	return txRepo[floor.Agent]{v.s.agents, v.q}
}

func (v txView) Snapshots() floor.Repository[floor.Snapshot] {
	return txRepo[floor.Snapshot]{v.s.snapshots, v.q}
}

func (v txView) PerfHistory() floor.Repository[floor.PerfHistory] {
	return txRepo[floor.PerfHistory]{v.s.perfHistory, v.q}
}

func (v txView) QaRecords() floor.Repository[floor.QaRecord] {
	return txRepo[floor.QaRecord]{v.s.qaRecords, v.q}
}

func (v txView) AuditRecords() floor.Repository[floor.AuditRecord] {
	return txRepo[floor.AuditRecord]{v.s.auditRecords, v.q}
}

func (v txView) Attendance() floor.Repository[floor.AttendanceRecord] {
	return txRepo[floor.AttendanceRecord]{v.s.attendance, v.q}
}

func (v txView) SpiffRecords() floor.Repository[floor.SpiffRecord] {
	return txRepo[floor.SpiffRecord]{v.s.spiffRecords, v.q}
}

func (v txView) AttendanceSubmissions() floor.Repository[floor.AttendanceSubmission] {
	return txRepo[floor.AttendanceSubmission]{v.s.attendanceSubmissions, v.q}
}

func (v txView) IntraSubmissions() floor.Repository[floor.IntraSubmission] {
	return txRepo[floor.IntraSubmission]{v.s.intraSubmissions, v.q}
}

func (v txView) WeeklyTargets() floor.Repository[floor.WeeklyTarget] {
	return txRepo[floor.WeeklyTarget]{v.s.weeklyTargets, v.q}
}

func (v txView) VaultMeetings() floor.Repository[floor.VaultMeeting] {
	return txRepo[floor.VaultMeeting]{v.s.vaultMeetings, v.q}
}

func (v txView) VaultDocs() floor.Repository[floor.VaultDoc] {
	return txRepo[floor.VaultDoc]{v.s.vaultDocs, v.q}
}

func (v txView) Meta() floor.MetaStore { return metaStore{s: v.s, q: v.q} }

func (v txView) Ping(context.Context) error { return nil }

func (v txView) Close() error { return nil }
