/*
errors.go - Error types for the floor engine

ERROR CATEGORIES:
  1. Request errors - unknown collection, bad slot, missing agent/row
  2. Window errors - intraday entry attempted outside its slot
  3. Store errors - backend failures, always wrapping ErrStoreUnavailable

Submission conflicts are NOT errors. They come back as a result status
(see submission.go) so the caller decides how to resolve them.
*/
package floor

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnknownCollection is returned for a collection key outside the fixed set.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrRowNotFound is returned when a patch targets an id that is not present.
	ErrRowNotFound = errors.New("row not found")

	// ErrDuplicateRow is returned when a replacement list repeats a row key.
	ErrDuplicateRow = errors.New("duplicate row key")

	// ErrAgentNotFound is returned for an unknown or inactive agent.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrUnknownSlot is returned for a slot key outside the schedule.
	ErrUnknownSlot = errors.New("unknown slot")

	// ErrOutsideWindow is returned when an intraday write misses its slot window.
	ErrOutsideWindow = errors.New("slot window closed")

	// ErrInvalidInput covers malformed payloads and parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable wraps every backend failure.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StoreError describes a failed backend operation.
type StoreError struct {
	Op         string
	Collection Collection
	Err        error
}

func (e *StoreError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Collection, e.Err)
}

// Unwrap exposes both the sentinel and the driver error to errors.Is/As.
func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

// NewStoreError wraps err unless it already is a domain error.
func NewStoreError(op string, c Collection, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDuplicateRow) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return &StoreError{Op: op, Collection: c, Err: err}
}

// DuplicateRowError names the repeated key.
type DuplicateRowError struct {
	Collection Collection
	Key        string
}

func (e *DuplicateRowError) Error() string {
	return fmt.Sprintf("duplicate %s key %q", e.Collection, e.Key)
}

func (e *DuplicateRowError) Unwrap() error { return ErrDuplicateRow }

// RowNotFoundError names the collection and id a patch could not match.
type RowNotFoundError struct {
	Collection Collection
	ID         string
}

func (e *RowNotFoundError) Error() string {
	return fmt.Sprintf("no %s row with id %q", e.Collection, e.ID)
}

func (e *RowNotFoundError) Unwrap() error { return ErrRowNotFound }

// WindowError explains why an intraday write was rejected.
type WindowError struct {
	DateKey string
	Slot    string
	Today   string
	Minute  int
}

func (e *WindowError) Error() string {
	if e.DateKey != e.Today {
		return fmt.Sprintf("slot %s on %s is not editable (today is %s)", e.Slot, e.DateKey, e.Today)
	}
	return fmt.Sprintf("slot %s is not open at %02d:%02d", e.Slot, e.Minute/60, e.Minute%60)
}

func (e *WindowError) Unwrap() error { return ErrOutsideWindow }

// =============================================================================
// ERROR HELPERS
// =============================================================================

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnknownCollection) ||
		errors.Is(err, ErrDuplicateRow) ||
		errors.Is(err, ErrUnknownSlot) ||
		errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRowNotFound) || errors.Is(err, ErrAgentNotFound)
}
