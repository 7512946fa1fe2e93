/*
handlers.go - HTTP handlers for the floor engine

PURPOSE:
  Exposes the floor engine over REST. Handlers parse the request, call one
  floor operation and wrap the result in the data envelope. They hold no
  business rules of their own.

ENDPOINTS:
  Health:
    GET  /health                      store probe
  Metrics:
    GET  /metrics/summary             lifetime totals
    GET  /metrics/scope               day/week/month for house or one agent
    GET  /metrics/rankings            agents ranked by sales, cpa or cvr
  Reports:
    GET  /reports/house-live          today's live house totals
    GET  /reports/agents              today's numbers per agent
    GET  /reports/week-trend          this week against its target
    GET  /reports/eod                 Mon-Fri end-of-day rows
    GET  /reports/targets             weekly target history
    GET  /reports/kpis                QA and audit KPIs (?scope=&agentId=&period=)
    GET  /reports/capacity            floor capacity from attendance
    GET  /reports/alerts              attendance, QA and audit alerts
  Entries:
    POST /entries/snapshots           record an intraday snapshot
    PUT  /entries/attendance          set one agent's attendance
    PUT  /entries/weekly-target       set this week's target
  Submissions:
    GET  /submissions/attendance      conflict check for a day
    POST /submissions/attendance      submit a day's attendance
    GET  /submissions/intraday        conflict check for a slot
    POST /submissions/intraday        submit a slot
  Admin:
    GET  /admin/freeze                scheduler status and last pass
    POST /admin/freeze                run one freeze pass now

  Collection routes (/state, /{resource}) live in resources.go.

SUBMISSION CONFLICTS:
  A differing signature without confirm=true is NOT an error. The response
  is 200 with status "needs_confirmation" and nothing is written.

SEE ALSO:
  - resources.go: collection and state routes
  - errors.go: envelopes and error codes
  - server.go: router and middleware
*/
package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/nbleicher/vc-dash-sub000/floor"
	"github.com/nbleicher/vc-dash-sub000/logger"
)

const maxBodyBytes = 8 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the engines every route delegates to.
type Handler struct {
	Store    floor.Store
	Settings floor.Settings

	log       *logger.Logger
	freezer   *floor.Freezer
	scheduler *FreezeScheduler
	tracker   *floor.Tracker
	agg       *floor.Aggregator
	entries   *floor.Entries
	reports   *floor.Reports
}

// NewHandler wires the engines over store.
func NewHandler(store floor.Store, settings floor.Settings, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		Store:    store,
		Settings: settings,
		log:      log,
		freezer:  floor.NewFreezer(store, settings),
		tracker:  floor.NewTracker(store, settings),
		agg:      floor.NewAggregator(store, settings),
		entries:  floor.NewEntries(store, settings),
		reports:  floor.NewReports(store, settings),
	}
}

// UseScheduler routes manual freezes through s so they share its freezer
// lock and show up in its metrics.
func (h *Handler) UseScheduler(s *FreezeScheduler) {
	h.scheduler = s
	h.freezer = s.Freezer
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(h.log, w, r, err)
}

func (h *Handler) today() string {
	return h.Settings.Calendar.DateKey(h.Settings.Clock.Now())
}

// readBody returns the raw request body, rejecting empty and oversized ones.
func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, newError(CodeValidation, "Request body could not be read.", err)
	}
	if len(raw) == 0 {
		return nil, newError(CodeValidation, "Request body is required.", nil)
	}
	return raw, nil
}

// decodeJSON decodes the body into dst and validates its tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	raw, err := readBody(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return newError(CodeValidation, "Invalid request body.", err)
	}
	return floor.Validate(dst)
}

// =============================================================================
// HEALTH
// =============================================================================

// Health probes the store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		h.fail(w, r, newError(CodeDBUnavailable, "", err))
		return
	}
	writeData(w, http.StatusOK, HealthDTO{Status: "ok"})
}

// =============================================================================
// METRICS
// =============================================================================

// GetStateSummary returns lifetime totals over frozen history.
func (h *Handler) GetStateSummary(w http.ResponseWriter, r *http.Request) {
	v, err := h.reports.Summary(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, v)
}

// GetScopeSummary returns day, week and month metrics for one scope.
func (h *Handler) GetScopeSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope, err := floor.ParseScope(q.Get("scope"), q.Get("agentId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.agg.Summary(r.Context(), scope)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, v)
}

// GetRankings ranks active agents.
func (h *Handler) GetRankings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metric, err := floor.ParseRankMetric(q.Get("metric"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	period, err := floor.ParsePeriod(q.Get("period"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := h.agg.Rank(r.Context(), metric, period)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rows)
}

// =============================================================================
// REPORTS
// =============================================================================

func (h *Handler) GetHouseLive(w http.ResponseWriter, r *http.Request) {
	v, err := h.reports.HouseLive(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, v)
}

func (h *Handler) GetAgentPerformance(w http.ResponseWriter, r *http.Request) {
	v, err := h.reports.AgentPerformance(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, v)
}

func (h *Handler) GetWeekTrend(w http.ResponseWriter, r *http.Request) {
	v, err := h.reports.WeekTrend(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, v)
}

// GetEODWeek accepts ?weekKey= (any date of the week); empty means this week.
func (h *Handler) GetEODWeek(w http.ResponseWriter, r *http.Request) {
	v, err := h.reports.EODWeek(r.Context(), r.URL.Query().Get("weekKey"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, v)
}

func (h *Handler) GetTargetHistory(w http.ResponseWriter, r *http.Request) {
	v, err := h.reports.TargetHistory(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, v)
}

// GetKPIs accepts ?scope=&agentId=&period=, defaulting to the house today.
func (h *Handler) GetKPIs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope, err := floor.ParseScope(q.Get("scope"), q.Get("agentId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	period, err := floor.ParsePeriod(q.Get("period"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.reports.KPIs(r.Context(), scope, period)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, v)
}

func (h *Handler) GetFloorCapacity(w http.ResponseWriter, r *http.Request) {
	v, err := h.reports.FloorCapacity(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, v)
}

func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	v, err := h.reports.Alerts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, v)
}

// =============================================================================
// ENTRIES
// =============================================================================

// RecordSnapshot upserts today's snapshot for one agent and slot.
func (h *Handler) RecordSnapshot(w http.ResponseWriter, r *http.Request) {
	var req floor.SnapshotEntry
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.entries.RecordSnapshot(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}

// SetAttendance upserts one agent's attendance for a day.
func (h *Handler) SetAttendance(w http.ResponseWriter, r *http.Request) {
	var req AttendanceEntryRequest
	raw, err := readBody(w, r)
	if err == nil {
		if jerr := json.Unmarshal(raw, &req); jerr != nil {
			err = newError(CodeValidation, "Invalid request body.", jerr)
		}
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.entries.SetAttendance(r.Context(), req.AttendanceEntry, req.Confirm)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// SetWeeklyTarget upserts this week's target.
func (h *Handler) SetWeeklyTarget(w http.ResponseWriter, r *http.Request) {
	var req floor.WeeklyTargetEntry
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	target, err := h.entries.SetWeeklyTarget(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, target)
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

// CheckAttendance accepts ?dateKey=, defaulting to today.
func (h *Handler) CheckAttendance(w http.ResponseWriter, r *http.Request) {
	dateKey := r.URL.Query().Get("dateKey")
	if dateKey == "" {
		dateKey = h.today()
	}
	check, err := h.tracker.CheckAttendance(r.Context(), dateKey)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, check)
}

func (h *Handler) SubmitAttendance(w http.ResponseWriter, r *http.Request) {
	var req AttendanceSubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.DateKey == "" {
		req.DateKey = h.today()
	}
	res, err := h.tracker.SubmitAttendance(r.Context(), req.DateKey, req.SubmittedBy, req.Confirm)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// CheckIntraSlot accepts ?dateKey=&slot=. The window is not enforced for
// reads.
func (h *Handler) CheckIntraSlot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dateKey := q.Get("dateKey")
	if dateKey == "" {
		dateKey = h.today()
	}
	if q.Get("slot") == "" {
		h.fail(w, r, &floor.ValidationError{Fields: map[string]string{"slot": "is required"}})
		return
	}
	check, err := h.tracker.CheckIntraSlot(r.Context(), dateKey, q.Get("slot"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, check)
}

func (h *Handler) SubmitIntraSlot(w http.ResponseWriter, r *http.Request) {
	var req IntraSubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.DateKey == "" {
		req.DateKey = h.today()
	}
	res, err := h.tracker.SubmitIntraSlot(r.Context(), req.DateKey, req.Slot, req.SubmittedBy, req.Confirm)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// =============================================================================
// ADMIN
// =============================================================================

// TriggerFreeze runs one gated freeze pass now.
func (h *Handler) TriggerFreeze(w http.ResponseWriter, r *http.Request) {
	var (
		res floor.FreezeResult
		err error
	)
	if h.scheduler != nil {
		res, err = h.scheduler.RunNow(r.Context())
	} else {
		res, err = h.freezer.Run(r.Context())
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// GetFreezeStatus reports the scheduler and its last pass.
func (h *Handler) GetFreezeStatus(w http.ResponseWriter, r *http.Request) {
	dto := FreezeStatusDTO{}
	if h.scheduler != nil {
		dto.Scheduled = h.scheduler.Enabled
		dto.Interval = h.scheduler.CheckInterval.String()
		if next, ok := h.scheduler.NextRunTime(); ok {
			next = next.UTC()
			dto.NextRunAt = &next
		}
		if run, ok := h.scheduler.LastRun(); ok {
			dto.LastRun = &run
		}
	}
	writeData(w, http.StatusOK, dto)
}

// =============================================================================
// FALLBACKS
// =============================================================================

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.fail(w, r, newError(CodeNotFound, "No route for "+r.Method+" "+r.URL.Path+".", nil))
}
