/*
reports.go - Read-only views over the full state

PURPOSE:
  The dashboard, end-of-day and KPI screens each need a slightly different
  cut of the same data. All of them resolve (date, agent) values with the
  Dataset rule from aggregate.go so the numbers agree with each other.

VIEWS:
  HouseLive         today's live house totals, with the marketing override
  AgentPerformance  today's resolved numbers per active agent
  WeekTrend         this week's house totals against the weekly target
  EODWeek           Mon-Fri house rows and a finalized flag
  TargetHistory     every weekly target with actuals and hit/miss
  KPIs              QA pass rate, audit recovery, active audits
  FloorCapacity     attendance percent summed per day of this week
  Alerts            missing attendance, missing QA, open audits
  StateSummary      lifetime totals over frozen history
*/
package floor

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Reports builds views from a full state read.
type Reports struct {
	store    Store
	settings Settings
}

func NewReports(store Store, settings Settings) *Reports {
	return &Reports{store: store, settings: settings}
}

type reportInput struct {
	state   State
	data    *Dataset
	now     time.Time
	today   string
	weekKey string
	active  []Agent
}

func (r *Reports) load(ctx context.Context) (reportInput, error) {
	st, err := LoadState(ctx, r.store)
	if err != nil {
		return reportInput{}, err
	}
	now, today := r.settings.now()
	return reportInput{
		state:   st,
		data:    NewDataset(st.Agents, st.Snapshots, st.PerfHistory, today, r.settings.CloseSlot),
		now:     now,
		today:   today,
		weekKey: r.settings.Calendar.WeekKey(now),
		active:  ActiveAgents(st.Agents),
	}, nil
}

func ids(agents []Agent) []string {
	out := make([]string, len(agents))
	for i, a := range agents {
		out[i] = a.ID
	}
	return out
}

// ratio returns num/den, or nil when den is zero.
func ratio(num decimal.Decimal, den int) *float64 {
	if den == 0 {
		return nil
	}
	return floatPtr(num.Div(decimal.NewFromInt(int64(den))).InexactFloat64())
}

// =============================================================================
// HOUSE LIVE
// =============================================================================

type HouseLiveView struct {
	DateKey           string   `json:"dateKey"`
	Calls             int      `json:"calls"`
	Sales             int      `json:"sales"`
	Marketing         float64  `json:"marketing"`
	MarketingOverride bool     `json:"marketingOverride"`
	CPA               *float64 `json:"cpa"`
	CVR               *float64 `json:"cvr"`
}

// HouseLive sums today's latest live snapshot of every active agent.
func (r *Reports) HouseLive(ctx context.Context) (HouseLiveView, error) {
	in, err := r.load(ctx)
	if err != nil {
		return HouseLiveView{}, err
	}
	v := HouseLiveView{DateKey: in.today}
	for _, a := range in.active {
		if s, ok := in.data.LiveSnapshot(a.ID); ok {
			v.Calls += s.BillableCalls
			v.Sales += s.Sales
		}
	}
	marketing := decimal.NewFromInt(int64(v.Calls)).Mul(r.settings.CostPerCall)
	if hm := in.state.HouseMarketing; hm != nil && hm.DateKey == in.today {
		marketing = decimal.NewFromFloat(hm.Amount)
		v.MarketingOverride = true
	}
	v.Marketing = marketing.InexactFloat64()
	v.CPA = ratio(marketing, v.Sales)
	v.CVR = ratio(decimal.NewFromInt(int64(v.Sales)), v.Calls)
	return v, nil
}

// =============================================================================
// AGENT PERFORMANCE
// =============================================================================

type AgentPerformanceRow struct {
	AgentID   string  `json:"agentId"`
	AgentName string  `json:"agentName"`
	Source    Source  `json:"source"`
	Metrics   Metrics `json:"metrics"`
}

// AgentPerformance resolves today's numbers for every active agent.
func (r *Reports) AgentPerformance(ctx context.Context) ([]AgentPerformanceRow, error) {
	in, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]AgentPerformanceRow, 0, len(in.active))
	for _, a := range in.active {
		res := in.data.Resolve(in.today, a.ID)
		out = append(out, AgentPerformanceRow{
			AgentID:   a.ID,
			AgentName: a.Name,
			Source:    res.Source,
			Metrics:   ComputeMetrics(res.Calls, res.Sales, r.settings.CostPerCall),
		})
	}
	return out, nil
}

// =============================================================================
// WEEK TREND
// =============================================================================

type WeekTrendView struct {
	WeekKey       string        `json:"weekKey"`
	Metrics       Metrics       `json:"metrics"`
	Target        *WeeklyTarget `json:"target"`
	SalesProgress *float64      `json:"salesProgress"`
	CPADelta      *float64      `json:"cpaDelta"`
}

// WeekTrend compares this week's house totals with its target.
func (r *Reports) WeekTrend(ctx context.Context) (WeekTrendView, error) {
	in, err := r.load(ctx)
	if err != nil {
		return WeekTrendView{}, err
	}
	dates, _ := WeekDates(in.weekKey)
	calls, sales, _ := in.data.Totals(dates, ids(in.active))
	v := WeekTrendView{WeekKey: in.weekKey, Metrics: ComputeMetrics(calls, sales, r.settings.CostPerCall)}

	for _, t := range in.state.WeeklyTargets {
		if t.WeekKey != in.weekKey {
			continue
		}
		v.Target = &t
		if t.TargetSales > 0 {
			p := math.Min(float64(sales)/float64(t.TargetSales)*100, 100)
			v.SalesProgress = &p
		}
		if v.Metrics.CPA != nil {
			d := decimal.NewFromFloat(*v.Metrics.CPA).Sub(decimal.NewFromFloat(t.TargetCPA))
			v.CPADelta = floatPtr(d.InexactFloat64())
		}
		break
	}
	return v, nil
}

// =============================================================================
// END OF DAY
// =============================================================================

type EODRow struct {
	DateKey   string     `json:"dateKey"`
	Deals     int        `json:"deals"`
	Calls     int        `json:"calls"`
	Marketing float64    `json:"marketing"`
	CPA       *float64   `json:"cpa"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

type EODWeekView struct {
	WeekKey   string   `json:"weekKey"`
	Rows      []EODRow `json:"rows"`
	Deals     int      `json:"deals"`
	Calls     int      `json:"calls"`
	Marketing float64  `json:"marketing"`
	CPA       *float64 `json:"cpa"`
	Finalized bool     `json:"finalized"`
}

// EODWeek builds the Mon-Fri house rows for weekKey. An empty weekKey means
// the current week. The week is final once Friday has passed, or on Friday
// after the finalize time.
func (r *Reports) EODWeek(ctx context.Context, weekKey string) (EODWeekView, error) {
	in, err := r.load(ctx)
	if err != nil {
		return EODWeekView{}, err
	}
	if weekKey == "" {
		weekKey = in.weekKey
	}
	anchor, err := WeekKeyForDate(weekKey)
	if err != nil {
		return EODWeekView{}, invalid(err)
	}
	dates, _ := WeekDates(anchor)

	latest := map[string]time.Time{}
	for _, s := range in.state.Snapshots {
		if s.UpdatedAt.After(latest[s.DateKey]) {
			latest[s.DateKey] = s.UpdatedAt
		}
	}

	v := EODWeekView{WeekKey: anchor, Rows: make([]EODRow, 0, len(dates))}
	agentIDs := ids(in.active)
	for _, d := range dates {
		calls, sales, _ := in.data.Totals([]string{d}, agentIDs)
		marketing := decimal.NewFromInt(int64(calls)).Mul(r.settings.CostPerCall)
		row := EODRow{
			DateKey:   d,
			Deals:     sales,
			Calls:     calls,
			Marketing: marketing.InexactFloat64(),
			CPA:       ratio(marketing, sales),
		}
		if t, ok := latest[d]; ok {
			row.UpdatedAt = &t
		}
		v.Rows = append(v.Rows, row)
		v.Deals += sales
		v.Calls += calls
	}
	total := decimal.NewFromInt(int64(v.Calls)).Mul(r.settings.CostPerCall)
	v.Marketing = total.InexactFloat64()
	v.CPA = ratio(total, v.Deals)

	friday := dates[len(dates)-1]
	v.Finalized = friday < in.today ||
		(friday == in.today && r.settings.Calendar.MinuteOfDay(in.now) >= r.settings.EODFinalizeAt)
	return v, nil
}

// =============================================================================
// TARGET HISTORY
// =============================================================================

type TargetHistoryRow struct {
	WeekKey       string   `json:"weekKey"`
	TargetSales   int      `json:"targetSales"`
	TargetCPA     float64  `json:"targetCpa"`
	ActualSales   int      `json:"actualSales"`
	ActualCPA     *float64 `json:"actualCpa"`
	SalesHit      bool     `json:"salesHit"`
	CPAHit        bool     `json:"cpaHit"`
	SalesDeltaPct *float64 `json:"salesDeltaPct"`
	CPADeltaPct   *float64 `json:"cpaDeltaPct"`
}

// TargetHistory scores every weekly target against its week, newest first.
func (r *Reports) TargetHistory(ctx context.Context) ([]TargetHistoryRow, error) {
	in, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	targets := append([]WeeklyTarget(nil), in.state.WeeklyTargets...)
	sort.SliceStable(targets, func(i, j int) bool { return targets[i].WeekKey > targets[j].WeekKey })

	agentIDs := ids(in.active)
	out := make([]TargetHistoryRow, 0, len(targets))
	for _, t := range targets {
		dates, err := WeekDates(t.WeekKey)
		if err != nil {
			continue
		}
		calls, sales, _ := in.data.Totals(dates, agentIDs)
		marketing := decimal.NewFromInt(int64(calls)).Mul(r.settings.CostPerCall)
		row := TargetHistoryRow{
			WeekKey:     t.WeekKey,
			TargetSales: t.TargetSales,
			TargetCPA:   t.TargetCPA,
			ActualSales: sales,
			ActualCPA:   ratio(marketing, sales),
			SalesHit:    sales >= t.TargetSales,
		}
		if t.TargetSales > 0 {
			d := float64(sales-t.TargetSales) / float64(t.TargetSales) * 100
			row.SalesDeltaPct = &d
		}
		if row.ActualCPA != nil {
			row.CPAHit = *row.ActualCPA <= t.TargetCPA
			if t.TargetCPA > 0 {
				d := (*row.ActualCPA - t.TargetCPA) / t.TargetCPA * 100
				row.CPADeltaPct = &d
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// =============================================================================
// KPIs
// =============================================================================

type KPIView struct {
	Scope              Scope    `json:"scope"`
	Period             Period   `json:"period"`
	QaPassRate         *float64 `json:"qaPassRate"`
	QaCount            int      `json:"qaCount"`
	AuditRecoveryHours *float64 `json:"auditRecoveryHours"`
	ActiveAuditCount   int      `json:"activeAuditCount"`
}

// KPIs computes QA and audit indicators over period for the active agents in
// scope.
func (r *Reports) KPIs(ctx context.Context, scope Scope, period Period) (KPIView, error) {
	in, err := r.load(ctx)
	if err != nil {
		return KPIView{}, err
	}
	agentIDs, err := in.data.ScopeAgents(scope)
	if err != nil {
		return KPIView{}, err
	}
	inScope := make(map[string]bool, len(agentIDs))
	for _, id := range agentIDs {
		inScope[id] = true
	}
	inPeriod := map[string]bool{}
	for _, d := range r.settings.PeriodDates(period, in.now) {
		inPeriod[d] = true
	}

	v := KPIView{Scope: scope, Period: period}
	good := 0
	for _, q := range in.state.QaRecords {
		if !inScope[q.AgentID] || !inPeriod[q.DateKey] {
			continue
		}
		v.QaCount++
		if q.Decision == DecisionGoodSale {
			good++
		}
	}
	v.QaPassRate = ratio(decimal.NewFromInt(int64(good)), v.QaCount)

	var hours float64
	resolved := 0
	for _, a := range in.state.AuditRecords {
		if !inScope[a.AgentID] || !inPeriod[r.settings.Calendar.DateKey(a.DiscoveryTs)] {
			continue
		}
		if a.Active() {
			v.ActiveAuditCount++
		}
		if a.ResolutionTs != nil {
			hours += math.Max(0, a.ResolutionTs.Sub(a.DiscoveryTs).Hours())
			resolved++
		}
	}
	if resolved > 0 {
		avg := hours / float64(resolved)
		v.AuditRecoveryHours = &avg
	}
	return v, nil
}

// =============================================================================
// FLOOR CAPACITY
// =============================================================================

type CapacityView struct {
	WeekKey string             `json:"weekKey"`
	ByDate  map[string]float64 `json:"byDate"`
	Total   float64            `json:"total"`
}

// FloorCapacity converts this week's attendance percents into agent-days.
func (r *Reports) FloorCapacity(ctx context.Context) (CapacityView, error) {
	in, err := r.load(ctx)
	if err != nil {
		return CapacityView{}, err
	}
	active := map[string]bool{}
	for _, a := range in.active {
		active[a.ID] = true
	}
	dates, _ := WeekDates(in.weekKey)
	v := CapacityView{WeekKey: in.weekKey, ByDate: make(map[string]float64, len(dates))}
	for _, d := range dates {
		v.ByDate[d] = 0
	}
	for _, rec := range in.state.Attendance {
		if rec.WeekKey != in.weekKey || !active[rec.AgentID] {
			continue
		}
		day := float64(rec.Percent) / 100
		v.ByDate[rec.DateKey] += day
		v.Total += day
	}
	return v, nil
}

// =============================================================================
// ALERTS
// =============================================================================

type AlertsView struct {
	DateKey           string   `json:"dateKey"`
	AttendanceMissing bool     `json:"attendanceMissing"`
	MissingQaAgents   []string `json:"missingQaAgents"`
	OpenAuditAgents   []string `json:"openAuditAgents"`
}

// Alerts lists today's outstanding follow-ups.
func (r *Reports) Alerts(ctx context.Context) (AlertsView, error) {
	in, err := r.load(ctx)
	if err != nil {
		return AlertsView{}, err
	}
	v := AlertsView{DateKey: in.today, MissingQaAgents: []string{}, OpenAuditAgents: []string{}}

	submitted := false
	for _, s := range in.state.AttendanceSubmissions {
		if s.DateKey == in.today {
			submitted = true
			break
		}
	}
	v.AttendanceMissing = !submitted && len(in.active) > 0 &&
		r.settings.Calendar.MinuteOfDay(in.now) >= r.settings.AttendanceAlertAt

	hasQa := map[string]bool{}
	for _, q := range in.state.QaRecords {
		if q.DateKey == in.today {
			hasQa[q.AgentID] = true
		}
	}
	openAudit := map[string]bool{}
	for _, a := range in.state.AuditRecords {
		if a.NeedsAction() {
			openAudit[a.AgentID] = true
		}
	}
	for _, a := range in.active {
		if !hasQa[a.ID] {
			v.MissingQaAgents = append(v.MissingQaAgents, a.ID)
		}
		if openAudit[a.ID] {
			v.OpenAuditAgents = append(v.OpenAuditAgents, a.ID)
		}
	}
	return v, nil
}

// =============================================================================
// STATE SUMMARY
// =============================================================================

type StateSummaryView struct {
	TotalSales     int      `json:"totalSales"`
	TotalCalls     int      `json:"totalCalls"`
	QaPassRate     *float64 `json:"qaPassRate"`
	OpenAuditCount int      `json:"openAuditCount"`
}

// StateSummary totals frozen history and QA/audit state across all time.
func StateSummary(st State) StateSummaryView {
	var v StateSummaryView
	for _, h := range st.PerfHistory {
		v.TotalSales += h.Sales
		v.TotalCalls += h.BillableCalls
	}
	good := 0
	for _, q := range st.QaRecords {
		if q.Decision == DecisionGoodSale {
			good++
		}
	}
	v.QaPassRate = ratio(decimal.NewFromInt(int64(good)), len(st.QaRecords))
	for _, a := range st.AuditRecords {
		if !a.Worked() {
			v.OpenAuditCount++
		}
	}
	return v
}

// Summary reads the state and returns StateSummary.
func (r *Reports) Summary(ctx context.Context) (StateSummaryView, error) {
	st, err := LoadState(ctx, r.store)
	if err != nil {
		return StateSummaryView{}, err
	}
	return StateSummary(st), nil
}
