/*
Package floor is the sales-floor metrics engine.

PURPOSE:
  Holds the entities persisted by the collection store and the temporal logic
  built on top of them: day/week keying, end-of-day freezing of intraday
  snapshots, submission signatures, and scoped metric rollups and rankings.

KEY TYPES:
  Agent, Snapshot, PerfHistory:    the measurement chain (live -> frozen)
  AttendanceRecord, Submissions:   attendance and intraday entry tracking
  QaRecord, AuditRecord:           quality and compliance records
  WeeklyTarget, SpiffRecord:       weekly goals and bonuses
  VaultMeeting, VaultDoc:          per-agent journal

OWNERSHIP:
  The store is the single source of truth. Every value returned from a
  Repository is a disposable copy; callers mutate and write back whole lists.

SEE ALSO:
  - store.go: Repository and Store contracts
  - time.go: Calendar and Clock
  - freeze.go, submission.go, aggregate.go: the engines
*/
package floor

import "time"

// =============================================================================
// ROW CONTRACT
// =============================================================================

// Row is implemented by every persisted entity. RowKey is the value of the
// entity's id field and must be unique within its collection.
type Row interface {
	RowKey() string
}

// =============================================================================
// ENTITIES
// =============================================================================

type Agent struct {
	ID        string    `json:"id" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

func (a Agent) RowKey() string { return a.ID }

// Snapshot is a provisional intraday measurement for one agent at one slot.
// At most one row exists per (DateKey, Slot, AgentID).
type Snapshot struct {
	ID            string    `json:"id" validate:"required"`
	DateKey       string    `json:"dateKey" validate:"required,datetime=2006-01-02"`
	Slot          string    `json:"slot" validate:"required"`
	SlotLabel     string    `json:"slotLabel"`
	AgentID       string    `json:"agentId" validate:"required"`
	BillableCalls int       `json:"billableCalls" validate:"min=0"`
	Sales         int       `json:"sales" validate:"min=0"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (s Snapshot) RowKey() string { return s.ID }

// PerfHistory is the frozen, permanent form of an agent's day.
type PerfHistory struct {
	ID            string    `json:"id" validate:"required"`
	DateKey       string    `json:"dateKey" validate:"required,datetime=2006-01-02"`
	AgentID       string    `json:"agentId" validate:"required"`
	BillableCalls int       `json:"billableCalls" validate:"min=0"`
	Sales         int       `json:"sales" validate:"min=0"`
	Marketing     float64   `json:"marketing" validate:"min=0"`
	CPA           *float64  `json:"cpa"`
	CVR           *float64  `json:"cvr"`
	FrozenAt      time.Time `json:"frozenAt"`
}

func (p PerfHistory) RowKey() string { return p.ID }

// QA decisions and statuses.
const (
	DecisionGoodSale       = "Good Sale"
	DecisionCheckRecording = "Check Recording"

	QaStatusGood           = "Good"
	QaStatusCheckRecording = "Check Recording"
	QaStatusResolved       = "Resolved"
)

type QaRecord struct {
	ID         string     `json:"id" validate:"required"`
	DateKey    string     `json:"dateKey" validate:"required,datetime=2006-01-02"`
	AgentID    string     `json:"agentId" validate:"required"`
	ClientName string     `json:"clientName"`
	Decision   string     `json:"decision" validate:"oneof='Good Sale' 'Check Recording'"`
	CallID     string     `json:"callId"`
	Notes      string     `json:"notes"`
	Status     string     `json:"status" validate:"oneof='Good' 'Check Recording' 'Resolved'"`
	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt"`
}

func (q QaRecord) RowKey() string { return q.ID }

type AuditRecord struct {
	ID            string     `json:"id" validate:"required"`
	AgentID       string     `json:"agentId" validate:"required"`
	Carrier       string     `json:"carrier"`
	ClientName    string     `json:"clientName"`
	Reason        string     `json:"reason"`
	CurrentStatus string     `json:"currentStatus"`
	DiscoveryTs   time.Time  `json:"discoveryTs"`
	MgmtNotified  bool       `json:"mgmtNotified"`
	OutreachMade  bool       `json:"outreachMade"`
	ResolutionTs  *time.Time `json:"resolutionTs"`
	Notes         string     `json:"notes"`
}

func (a AuditRecord) RowKey() string { return a.ID }

// Audit statuses that take a record off the follow-up lists.
const (
	AuditStatusPendingCMS     = "pending_cms"
	AuditStatusNoActionNeeded = "no_action_needed"
	AuditStatusAccepted       = "accepted"
)

// Worked reports whether management was notified and outreach was made.
func (a AuditRecord) Worked() bool { return a.MgmtNotified && a.OutreachMade }

// Active reports whether the audit counts as an active audit in KPIs.
func (a AuditRecord) Active() bool {
	return a.CurrentStatus != AuditStatusNoActionNeeded && !a.Worked()
}

// NeedsAction reports whether the audit belongs on the action list. Records
// waiting on CMS, accepted, or needing no action are left off.
func (a AuditRecord) NeedsAction() bool {
	switch a.CurrentStatus {
	case AuditStatusPendingCMS, AuditStatusNoActionNeeded, AuditStatusAccepted:
		return false
	}
	return !a.Worked()
}

type AttendanceRecord struct {
	ID      string `json:"id" validate:"required"`
	WeekKey string `json:"weekKey" validate:"required,datetime=2006-01-02"`
	DateKey string `json:"dateKey" validate:"required,datetime=2006-01-02"`
	AgentID string `json:"agentId" validate:"required"`
	Percent int    `json:"percent" validate:"oneof=0 25 50 75 100"`
	Notes   string `json:"notes,omitempty"`
}

func (a AttendanceRecord) RowKey() string { return a.ID }

type SpiffRecord struct {
	ID      string  `json:"id" validate:"required"`
	WeekKey string  `json:"weekKey" validate:"required,datetime=2006-01-02"`
	DateKey string  `json:"dateKey" validate:"required,datetime=2006-01-02"`
	AgentID string  `json:"agentId" validate:"required"`
	Amount  float64 `json:"amount"`
}

func (s SpiffRecord) RowKey() string { return s.ID }

type AttendanceSubmission struct {
	ID          string    `json:"id" validate:"required"`
	DateKey     string    `json:"dateKey" validate:"required,datetime=2006-01-02"`
	SubmittedAt time.Time `json:"submittedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	SubmittedBy string    `json:"submittedBy"`
	Signature   string    `json:"daySignature"`
}

func (a AttendanceSubmission) RowKey() string { return a.ID }

type IntraSubmission struct {
	ID          string    `json:"id" validate:"required"`
	DateKey     string    `json:"dateKey" validate:"required,datetime=2006-01-02"`
	Slot        string    `json:"slot" validate:"required"`
	SubmittedAt time.Time `json:"submittedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	SubmittedBy string    `json:"submittedBy"`
	Signature   string    `json:"slotSignature"`
}

func (i IntraSubmission) RowKey() string { return i.ID }

// WeeklyTarget is keyed by its week, not by a generated id.
type WeeklyTarget struct {
	WeekKey     string    `json:"weekKey" validate:"required,datetime=2006-01-02"`
	TargetSales int       `json:"targetSales" validate:"min=0"`
	TargetCPA   float64   `json:"targetCpa" validate:"min=0"`
	SetAt       time.Time `json:"setAt"`
}

func (w WeeklyTarget) RowKey() string { return w.WeekKey }

type VaultMeeting struct {
	ID          string    `json:"id" validate:"required"`
	AgentID     string    `json:"agentId" validate:"required"`
	DateKey     string    `json:"dateKey" validate:"required,datetime=2006-01-02"`
	MeetingType string    `json:"meetingType"`
	Notes       string    `json:"notes"`
	ActionItems string    `json:"actionItems"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (v VaultMeeting) RowKey() string { return v.ID }

type VaultDoc struct {
	ID         string    `json:"id" validate:"required"`
	AgentID    string    `json:"agentId" validate:"required"`
	FileName   string    `json:"fileName" validate:"required"`
	FileSize   int64     `json:"fileSize" validate:"min=0"`
	UploadedAt time.Time `json:"uploadedAt"`
}

func (v VaultDoc) RowKey() string { return v.ID }

// HouseMarketing overrides the computed house marketing spend for one day.
type HouseMarketing struct {
	DateKey string  `json:"dateKey" validate:"required,datetime=2006-01-02"`
	Amount  float64 `json:"amount" validate:"min=0"`
}

// =============================================================================
// STATE - every collection plus scalar metadata
// =============================================================================

type State struct {
	Agents                []Agent                `json:"agents"`
	Snapshots             []Snapshot             `json:"snapshots"`
	PerfHistory           []PerfHistory          `json:"perfHistory"`
	QaRecords             []QaRecord             `json:"qaRecords"`
	AuditRecords          []AuditRecord          `json:"auditRecords"`
	Attendance            []AttendanceRecord     `json:"attendance"`
	SpiffRecords          []SpiffRecord          `json:"spiffRecords"`
	AttendanceSubmissions []AttendanceSubmission `json:"attendanceSubmissions"`
	IntraSubmissions      []IntraSubmission      `json:"intraSubmissions"`
	WeeklyTargets         []WeeklyTarget         `json:"weeklyTargets"`
	VaultMeetings         []VaultMeeting         `json:"vaultMeetings"`
	VaultDocs             []VaultDoc             `json:"vaultDocs"`
	LastPoliciesBotRun    *string                `json:"lastPoliciesBotRun"`
	HouseMarketing        *HouseMarketing        `json:"houseMarketing"`
}

// ActiveAgents filters agents to those with Active set, preserving order.
func ActiveAgents(agents []Agent) []Agent {
	out := make([]Agent, 0, len(agents))
	for _, a := range agents {
		if a.Active {
			out = append(out, a)
		}
	}
	return out
}
