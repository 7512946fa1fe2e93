/*
aggregate.go - Scoped rollups and rankings

PURPOSE:
  Answers "what are the numbers right now" for the house or a single agent,
  over today, this business week, or this calendar month. Live intraday
  snapshots and frozen history are blended with one resolution rule.

RESOLUTION RULE (per date, per agent):
  1. date is today and the agent has a live snapshot -> latest live snapshot
  2. a snapshot exists at the close slot for that date  -> close snapshot
  3. a perfHistory row exists for that date             -> frozen row
  4. otherwise                                          -> no contribution

  Every (date, agent) pair resolves to at most one source, so a day is never
  counted twice even while its live snapshot and frozen row coexist.

TOTALS:
  Calls and sales are summed; marketing, CPA and CVR are recomputed from the
  sums. Per-row ratios are never averaged.

SEE ALSO:
  - kpi.go: ComputeMetrics
  - reports.go: views built on the same Dataset
*/
package floor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// =============================================================================
// SCOPE AND PERIOD
// =============================================================================

type ScopeKind string

const (
	ScopeHouse ScopeKind = "house"
	ScopeAgent ScopeKind = "agent"
)

// Scope selects either every active agent or one specific active agent.
type Scope struct {
	Kind    ScopeKind `json:"kind"`
	AgentID string    `json:"agentId,omitempty"`
}

func HouseScope() Scope { return Scope{Kind: ScopeHouse} }
func AgentScope(id string) Scope { return Scope{Kind: ScopeAgent, AgentID: id} }

// ParseScope builds a scope from query values.
func ParseScope(kind, agentID string) (Scope, error) {
	switch ScopeKind(kind) {
	case "", ScopeHouse:
		return HouseScope(), nil
	case ScopeAgent:
		if agentID == "" {
			return Scope{}, fmt.Errorf("%w: agent scope needs an agentId", ErrInvalidInput)
		}
		return AgentScope(agentID), nil
	}
	return Scope{}, fmt.Errorf("%w: unknown scope %q", ErrInvalidInput, kind)
}

type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

func ParsePeriod(v string) (Period, error) {
	switch Period(v) {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return Period(v), nil
	case "":
		return PeriodDay, nil
	}
	return "", fmt.Errorf("%w: unknown period %q", ErrInvalidInput, v)
}

// PeriodDates enumerates the dateKeys a period covers as of now.
func (s Settings) PeriodDates(p Period, now time.Time) []string {
	switch p {
	case PeriodWeek:
		dates, _ := WeekDates(s.Calendar.WeekKey(now))
		return dates
	case PeriodMonth:
		return s.Calendar.MonthDates(now)
	default:
		return []string{s.Calendar.DateKey(now)}
	}
}

// =============================================================================
// DATASET - indexed view of agents, snapshots and history
// =============================================================================

type dateAgent struct {
	date  string
	agent string
}

// Dataset indexes the three collections the rollups read.
type Dataset struct {
	Agents []Agent
	Today  string

	live   map[string]Snapshot
	close  map[dateAgent]Snapshot
	frozen map[dateAgent]PerfHistory
}

// NewDataset indexes rows for resolution as of today.
func NewDataset(agents []Agent, snapshots []Snapshot, history []PerfHistory, today, closeSlot string) *Dataset {
	d := &Dataset{
		Agents: agents,
		Today:  today,
		live:   make(map[string]Snapshot),
		close:  make(map[dateAgent]Snapshot),
		frozen: make(map[dateAgent]PerfHistory),
	}
	for _, s := range snapshots {
		if s.DateKey == today {
			if cur, ok := d.live[s.AgentID]; !ok || s.UpdatedAt.After(cur.UpdatedAt) {
				d.live[s.AgentID] = s
			}
		}
		if s.Slot == closeSlot {
			d.close[dateAgent{s.DateKey, s.AgentID}] = s
		}
	}
	for _, h := range history {
		k := dateAgent{h.DateKey, h.AgentID}
		if _, ok := d.frozen[k]; !ok {
			d.frozen[k] = h
		}
	}
	return d
}

// Source names where a resolved value came from.
type Source string

const (
	SourceLive   Source = "live"
	SourceClose  Source = "close"
	SourceFrozen Source = "frozen"
	SourceNone   Source = "none"
)

// Resolved is one agent's numbers for one date.
type Resolved struct {
	DateKey string `json:"dateKey"`
	AgentID string `json:"agentId"`
	Calls   int    `json:"calls"`
	Sales   int    `json:"sales"`
	Source  Source `json:"source"`
}

// Resolve applies the resolution rule to (date, agent).
func (d *Dataset) Resolve(date, agentID string) Resolved {
	r := Resolved{DateKey: date, AgentID: agentID, Source: SourceNone}
	if date == d.Today {
		if s, ok := d.live[agentID]; ok {
			r.Calls, r.Sales, r.Source = s.BillableCalls, s.Sales, SourceLive
			return r
		}
	}
	k := dateAgent{date, agentID}
	if s, ok := d.close[k]; ok {
		r.Calls, r.Sales, r.Source = s.BillableCalls, s.Sales, SourceClose
		return r
	}
	if h, ok := d.frozen[k]; ok {
		r.Calls, r.Sales, r.Source = h.BillableCalls, h.Sales, SourceFrozen
		return r
	}
	return r
}

// LiveSnapshot returns the agent's latest snapshot for today.
func (d *Dataset) LiveSnapshot(agentID string) (Snapshot, bool) {
	s, ok := d.live[agentID]
	return s, ok
}

// Totals sums resolved counts over dates and agents.
func (d *Dataset) Totals(dates []string, agentIDs []string) (calls, sales, contributions int) {
	for _, date := range dates {
		for _, id := range agentIDs {
			r := d.Resolve(date, id)
			if r.Source == SourceNone {
				continue
			}
			calls += r.Calls
			sales += r.Sales
			contributions++
		}
	}
	return calls, sales, contributions
}

// ScopeAgents returns the agent ids a scope covers.
func (d *Dataset) ScopeAgents(scope Scope) ([]string, error) {
	active := ActiveAgents(d.Agents)
	if scope.Kind == ScopeAgent {
		for _, a := range active {
			if a.ID == scope.AgentID {
				return []string{a.ID}, nil
			}
		}
		return nil, fmt.Errorf("%w: %q", ErrAgentNotFound, scope.AgentID)
	}
	ids := make([]string, len(active))
	for i, a := range active {
		ids[i] = a.ID
	}
	return ids, nil
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator computes scoped metrics and rankings from the store.
type Aggregator struct {
	store    Store
	settings Settings
}

func NewAggregator(store Store, settings Settings) *Aggregator {
	return &Aggregator{store: store, settings: settings}
}

// Load reads the collections the rollups need and indexes them as of now.
func (a *Aggregator) Load(ctx context.Context) (*Dataset, time.Time, error) {
	agents, err := a.store.Agents().Get(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	snaps, err := a.store.Snapshots().Get(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	history, err := a.store.PerfHistory().Get(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	now, today := a.settings.now()
	return NewDataset(agents, snaps, history, today, a.settings.CloseSlot), now, nil
}

// Aggregate returns the metrics of scope over period.
func (a *Aggregator) Aggregate(ctx context.Context, scope Scope, period Period) (Metrics, error) {
	d, now, err := a.Load(ctx)
	if err != nil {
		return Metrics{}, err
	}
	return a.aggregate(d, now, scope, period)
}

func (a *Aggregator) aggregate(d *Dataset, now time.Time, scope Scope, period Period) (Metrics, error) {
	ids, err := d.ScopeAgents(scope)
	if err != nil {
		return Metrics{}, err
	}
	calls, sales, _ := d.Totals(a.settings.PeriodDates(period, now), ids)
	return ComputeMetrics(calls, sales, a.settings.CostPerCall), nil
}

// ScopeSummary holds day, week and month metrics for one scope.
type ScopeSummary struct {
	Scope   Scope   `json:"scope"`
	DateKey string  `json:"dateKey"`
	WeekKey string  `json:"weekKey"`
	Day     Metrics `json:"day"`
	Week    Metrics `json:"week"`
	Month   Metrics `json:"month"`
}

// Summary computes all three periods from a single read.
func (a *Aggregator) Summary(ctx context.Context, scope Scope) (ScopeSummary, error) {
	d, now, err := a.Load(ctx)
	if err != nil {
		return ScopeSummary{}, err
	}
	out := ScopeSummary{
		Scope:   scope,
		DateKey: d.Today,
		WeekKey: a.settings.Calendar.WeekKey(now),
	}
	if out.Day, err = a.aggregate(d, now, scope, PeriodDay); err != nil {
		return ScopeSummary{}, err
	}
	if out.Week, err = a.aggregate(d, now, scope, PeriodWeek); err != nil {
		return ScopeSummary{}, err
	}
	if out.Month, err = a.aggregate(d, now, scope, PeriodMonth); err != nil {
		return ScopeSummary{}, err
	}
	return out, nil
}

// =============================================================================
// RANKING
// =============================================================================

type RankMetric string

const (
	RankSales RankMetric = "sales"
	RankCPA   RankMetric = "cpa"
	RankCVR   RankMetric = "cvr"
)

func ParseRankMetric(v string) (RankMetric, error) {
	switch RankMetric(v) {
	case RankSales, RankCPA, RankCVR:
		return RankMetric(v), nil
	case "":
		return RankSales, nil
	}
	return "", fmt.Errorf("%w: unknown ranking metric %q", ErrInvalidInput, v)
}

// Ranking is one agent's position on a leaderboard.
type Ranking struct {
	Rank      int     `json:"rank"`
	AgentID   string  `json:"agentId"`
	AgentName string  `json:"agentName"`
	Metrics   Metrics `json:"metrics"`
}

// Rank orders active agents by metric over period. An agent with no resolved
// rows in the period has no CPA and sorts after every agent that has one.
// Ties keep agent list order.
func (a *Aggregator) Rank(ctx context.Context, metric RankMetric, period Period) ([]Ranking, error) {
	d, now, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	dates := a.settings.PeriodDates(period, now)

	rows := make([]Ranking, 0, len(d.Agents))
	for _, ag := range ActiveAgents(d.Agents) {
		calls, sales, n := d.Totals(dates, []string{ag.ID})
		m := ComputeMetrics(calls, sales, a.settings.CostPerCall)
		if n == 0 {
			m.CPA = nil
		}
		rows = append(rows, Ranking{AgentID: ag.ID, AgentName: ag.Name, Metrics: m})
	}

	SortRankings(rows, metric)
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows, nil
}

// SortRankings stable-sorts rows by metric.
func SortRankings(rows []Ranking, metric RankMetric) {
	switch metric {
	case RankCVR:
		sort.SliceStable(rows, func(i, j int) bool {
			return orNegOne(rows[i].Metrics.CVR) > orNegOne(rows[j].Metrics.CVR)
		})
	case RankCPA:
		sort.SliceStable(rows, func(i, j int) bool {
			return orInf(rows[i].Metrics.CPA) < orInf(rows[j].Metrics.CPA)
		})
	default:
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Metrics.Sales > rows[j].Metrics.Sales
		})
	}
}

func orNegOne(v *float64) float64 {
	if v == nil {
		return -1
	}
	return *v
}

func orInf(v *float64) float64 {
	if v == nil {
		return math.Inf(1)
	}
	return *v
}
