/*
dto.go - Request and response bodies

PURPOSE:
  Wire shapes that are not already floor types. Collection rows, report
  views and entry inputs are served as the floor types themselves, since
  their JSON tags are the contract.

NAMING CONVENTION:
  - *Request: request bodies, validated with floor.Validate
  - *DTO: response bodies

SEE ALSO:
  - handlers.go, resources.go: use these types
*/
package api

import (
	"time"

	"github.com/nbleicher/vc-dash-sub000/floor"
)

// =============================================================================
// STATE SCALARS
// =============================================================================

type BotRunRequest struct {
	Timestamp string `json:"timestamp" validate:"required"`
}

type BotRunDTO struct {
	LastPoliciesBotRun *string `json:"lastPoliciesBotRun"`
}

type HouseMarketingRequest struct {
	DateKey string   `json:"dateKey" validate:"required,datetime=2006-01-02"`
	Amount  *float64 `json:"amount" validate:"required,min=0"`
}

type OKDTO struct {
	OK bool `json:"ok"`
}

type HealthDTO struct {
	Status string `json:"status"`
}

// =============================================================================
// ENTRIES AND SUBMISSIONS
// =============================================================================

type AttendanceEntryRequest struct {
	floor.AttendanceEntry
	Confirm bool `json:"confirm"`
}

type AttendanceSubmitRequest struct {
	DateKey     string `json:"dateKey" validate:"omitempty,datetime=2006-01-02"`
	SubmittedBy string `json:"submittedBy" validate:"required"`
	Confirm     bool   `json:"confirm"`
}

type IntraSubmitRequest struct {
	DateKey     string `json:"dateKey" validate:"omitempty,datetime=2006-01-02"`
	Slot        string `json:"slot" validate:"required"`
	SubmittedBy string `json:"submittedBy" validate:"required"`
	Confirm     bool   `json:"confirm"`
}

// =============================================================================
// ADMIN
// =============================================================================

type FreezeStatusDTO struct {
	Scheduled bool       `json:"scheduled"`
	Interval  string     `json:"interval,omitempty"`
	NextRunAt *time.Time `json:"nextRunAt,omitempty"`
	LastRun   *FreezeRun `json:"lastRun"`
}
