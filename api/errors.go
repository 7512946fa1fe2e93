/*
errors.go - Error codes and JSON envelopes

PURPOSE:
  Every response is an envelope: {"data": ...} on success and
  {"error": {"code", "message", "details"}} on failure. This file owns the
  code table and the mapping from floor errors to codes.

CODE TABLE:
  VALIDATION_ERROR   400  bad body, bad query parameter, duplicate key
  INVALID_RESOURCE   400  unknown collection key
  NOT_FOUND          404  patch target or agent missing
  OUTSIDE_WINDOW     422  intraday write outside its slot window
  DB_UNAVAILABLE     503  health probe failed
  INTERNAL_ERROR     500  store failure or anything unclassified

SEE ALSO:
  - floor/errors.go: sentinel and structured domain errors
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nbleicher/vc-dash-sub000/floor"
	"github.com/nbleicher/vc-dash-sub000/logger"
)

type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeInvalidResource Code = "INVALID_RESOURCE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeOutsideWindow   Code = "OUTSIDE_WINDOW"
	CodeDBUnavailable   Code = "DB_UNAVAILABLE"
	CodeInternal        Code = "INTERNAL_ERROR"
)

type Metadata struct {
	HTTPStatus     int
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "Request validation failed.",
		DetailsAllowed: true,
	},
	CodeInvalidResource: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "Unknown state resource.",
	},
	CodeNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "Resource not found.",
	},
	CodeOutsideWindow: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "The slot is not open for edits.",
		DetailsAllowed: true,
	},
	CodeDBUnavailable: {
		HTTPStatus:    http.StatusServiceUnavailable,
		PublicMessage: "Database is unavailable.",
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		PublicMessage: "Internal server error.",
	},
}

// MetadataFor returns the table entry for code, defaulting to internal.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// =============================================================================
// API ERROR
// =============================================================================

// Error is an error already classified for the wire.
type Error struct {
	Code    Code
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// classify maps any error to an *Error.
func classify(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var verr *floor.ValidationError
	if errors.As(err, &verr) {
		return &Error{Code: CodeValidation, Details: verr.Fields, Err: err}
	}

	var werr *floor.WindowError
	if errors.As(err, &werr) {
		return &Error{
			Code:    CodeOutsideWindow,
			Message: werr.Error(),
			Details: map[string]any{"dateKey": werr.DateKey, "slot": werr.Slot, "today": werr.Today},
			Err:     err,
		}
	}

	switch {
	case errors.Is(err, floor.ErrUnknownCollection):
		return newError(CodeInvalidResource, "", err)
	case floor.IsNotFound(err):
		return newError(CodeNotFound, err.Error(), err)
	case floor.IsClientError(err):
		return newError(CodeValidation, err.Error(), err)
	}
	return newError(CodeInternal, "", err)
}

// =============================================================================
// ENVELOPES
// =============================================================================

type successEnvelope struct {
	Data any `json:"data"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successEnvelope{Data: data})
}

// writeError classifies err, logs server-side failures and writes the
// error envelope. Messages of internal errors never reach the client.
func writeError(log *logger.Logger, w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	e := classify(err)
	meta := MetadataFor(e.Code)

	msg := e.Message
	if msg == "" || meta.HTTPStatus >= http.StatusInternalServerError {
		msg = meta.PublicMessage
	}
	body := errorBody{Code: string(e.Code), Message: msg}
	if meta.DetailsAllowed && e.Details != nil {
		body.Details = e.Details
	}

	if log != nil {
		ctx := log.WithField(r.Context(), "error_code", string(e.Code))
		if meta.HTTPStatus >= http.StatusInternalServerError {
			log.Error(ctx, "request.error", err)
		} else {
			log.Debug(ctx, "request.rejected")
		}
	}

	writeJSON(w, meta.HTTPStatus, errorEnvelope{Error: body})
}
