/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and every route. This is
  the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:   chi request id, echoed back as X-Request-Id
  2. RealIP:      client address behind a proxy
  3. Logger:      zerolog access line with request id, status, latency
  4. Recoverer:   panic -> INTERNAL_ERROR envelope instead of a crash
  5. Instrument:  prometheus counters by route pattern
  6. CORS:        configured frontend origins only

ROUTE GROUPS:
  /health             store probe
  /state/*            collections by key, scalar metadata
  /{resource}[/{id}]  per-entity collection routes
  /metrics/*          aggregates and rankings
  /reports/*          dashboard views
  /entries/*          single-row edits
  /submissions/*      attendance and intraday submissions
  /admin/freeze       freeze status and manual trigger
  /internal/metrics   prometheus exposition (when a gatherer is set)

SECURITY NOTE:
  No authentication middleware. The service is expected to run behind the
  dashboard's own gateway.

SEE ALSO:
  - handlers.go, resources.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nbleicher/vc-dash-sub000/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions carries the cross-cutting pieces of the router.
type RouterOptions struct {
	AllowedOrigins []string
	HTTPMetrics    *metrics.HTTP
	// Gatherer backs /internal/metrics. Nil leaves the route unregistered.
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(recoverer(h.log))
	r.Use(instrument(opts.HTTPMetrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Cache-Control", "Pragma"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.NotFound(h.NotFound)

	r.Get("/health", h.Health)

	// State routes
	r.Route("/state", func(r chi.Router) {
		r.Get("/", h.GetState)
		r.Get("/last-policies-bot-run", h.GetLastPoliciesBotRun)
		r.Post("/last-policies-bot-run", h.SetLastPoliciesBotRun)
		r.Post("/house-marketing", h.SetHouseMarketing)
		r.Get("/{key}", h.GetStateKey)
		r.Put("/{key}", h.PutStateKey)
	})

	// Per-entity collection routes
	for _, res := range Resources {
		r.Get("/"+res.Path, h.getResource(res))
		r.Put("/"+res.Path, h.putResource(res))
		r.Patch("/"+res.Path+"/{id}", h.patchResource(res))
	}

	// Metrics routes
	r.Route("/metrics", func(r chi.Router) {
		r.Get("/summary", h.GetStateSummary)
		r.Get("/scope", h.GetScopeSummary)
		r.Get("/rankings", h.GetRankings)
	})

	// Report routes
	r.Route("/reports", func(r chi.Router) {
		r.Get("/house-live", h.GetHouseLive)
		r.Get("/agents", h.GetAgentPerformance)
		r.Get("/week-trend", h.GetWeekTrend)
		r.Get("/eod", h.GetEODWeek)
		r.Get("/targets", h.GetTargetHistory)
		r.Get("/kpis", h.GetKPIs)
		r.Get("/capacity", h.GetFloorCapacity)
		r.Get("/alerts", h.GetAlerts)
	})

	// Entry routes
	r.Route("/entries", func(r chi.Router) {
		r.Post("/snapshots", h.RecordSnapshot)
		r.Put("/attendance", h.SetAttendance)
		r.Put("/weekly-target", h.SetWeeklyTarget)
	})

	// Submission routes
	r.Route("/submissions", func(r chi.Router) {
		r.Get("/attendance", h.CheckAttendance)
		r.Post("/attendance", h.SubmitAttendance)
		r.Get("/intraday", h.CheckIntraSlot)
		r.Post("/intraday", h.SubmitIntraSlot)
	})

	// Admin routes
	r.Route("/admin", func(r chi.Router) {
		r.Get("/freeze", h.GetFreezeStatus)
		r.Post("/freeze", h.TriggerFreeze)
	})

	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/internal/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
