/*
resources.go - Whole-collection routes

PURPOSE:
  Two route families over the same twelve collections:

    /state, /state/{key}          collection keys as stored (perfHistory, ...)
    /{resource}, /{resource}/{id} kebab-case paths for the UI (perf-history, ...)

  Both GET the whole list and PUT a full replacement. PATCH on a resource
  path shallow-merges the body onto the row whose id field matches, then
  writes the whole collection back.

SEE ALSO:
  - floor/store.go: GetCollection, ReplaceCollection, PatchCollectionRow
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/nbleicher/vc-dash-sub000/floor"
)

// Resource maps a URL path segment to a collection.
type Resource struct {
	Path       string
	Collection floor.Collection
}

// Resources lists the per-entity convenience routes.
var Resources = []Resource{
	{Path: "agents", Collection: floor.CollectionAgents},
	{Path: "snapshots", Collection: floor.CollectionSnapshots},
	{Path: "perf-history", Collection: floor.CollectionPerfHistory},
	{Path: "qa-records", Collection: floor.CollectionQaRecords},
	{Path: "audit-records", Collection: floor.CollectionAuditRecords},
	{Path: "attendance", Collection: floor.CollectionAttendance},
	{Path: "spiff-records", Collection: floor.CollectionSpiffRecords},
	{Path: "weekly-targets", Collection: floor.CollectionWeeklyTargets},
	{Path: "vault-meetings", Collection: floor.CollectionVaultMeetings},
	{Path: "vault-docs", Collection: floor.CollectionVaultDocs},
}

// =============================================================================
// STATE
// =============================================================================

// GetState returns every collection and scalar.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	st, err := floor.LoadState(r.Context(), h.Store)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	writeData(w, http.StatusOK, st)
}

func (h *Handler) stateCollection(r *http.Request) (floor.Collection, error) {
	c, err := floor.ParseCollection(chi.URLParam(r, "key"))
	if err != nil {
		return "", newError(CodeInvalidResource, "Unknown state resource.", err)
	}
	return c, nil
}

// GetStateKey returns one collection by key.
func (h *Handler) GetStateKey(w http.ResponseWriter, r *http.Request) {
	c, err := h.stateCollection(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.getCollection(w, r, c)
}

// PutStateKey replaces one collection by key.
func (h *Handler) PutStateKey(w http.ResponseWriter, r *http.Request) {
	c, err := h.stateCollection(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.replaceCollection(w, r, c)
}

func (h *Handler) GetLastPoliciesBotRun(w http.ResponseWriter, r *http.Request) {
	ts, err := h.Store.Meta().LastPoliciesBotRun(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, BotRunDTO{LastPoliciesBotRun: ts})
}

func (h *Handler) SetLastPoliciesBotRun(w http.ResponseWriter, r *http.Request) {
	var req BotRunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ts := strings.TrimSpace(req.Timestamp)
	if ts == "" {
		h.fail(w, r, &floor.ValidationError{Fields: map[string]string{"timestamp": "is required"}})
		return
	}
	if err := h.entries.SetLastPoliciesBotRun(r.Context(), &ts); err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, OKDTO{OK: true})
}

func (h *Handler) SetHouseMarketing(w http.ResponseWriter, r *http.Request) {
	var req HouseMarketingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	hm := floor.HouseMarketing{DateKey: req.DateKey, Amount: *req.Amount}
	if _, err := h.entries.SetHouseMarketing(r.Context(), hm); err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, OKDTO{OK: true})
}

// =============================================================================
// RESOURCES
// =============================================================================

func (h *Handler) getResource(res Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.getCollection(w, r, res.Collection)
	}
}

func (h *Handler) putResource(res Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.replaceCollection(w, r, res.Collection)
	}
}

func (h *Handler) patchResource(res Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		raw, err := readBody(w, r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		var patch map[string]any
		if err := json.Unmarshal(raw, &patch); err != nil || patch == nil {
			h.fail(w, r, newError(CodeValidation, "Patch body must be a JSON object.", err))
			return
		}

		row, err := floor.PatchCollectionRow(r.Context(), h.Store, res.Collection, id, patch)
		if floor.IsNotFound(err) {
			h.fail(w, r, newError(CodeNotFound, fmt.Sprintf("No %s record found for id %s.", res.Path, id), err))
			return
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeData(w, http.StatusOK, row)
	}
}

func (h *Handler) getCollection(w http.ResponseWriter, r *http.Request, c floor.Collection) {
	rows, err := floor.GetCollection(r.Context(), h.Store, c)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rows)
}

func (h *Handler) replaceCollection(w http.ResponseWriter, r *http.Request, c floor.Collection) {
	raw, err := readBody(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := floor.ReplaceCollection(r.Context(), h.Store, c, raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rows)
}
