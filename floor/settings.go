package floor

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Settings carries the temporal and cost parameters shared by the engines.
type Settings struct {
	Calendar    Calendar
	Clock       Clock
	CostPerCall decimal.Decimal
	Slots       Schedule
	CloseSlot   string

	// FreezeCutoff is the local minute-of-day at which the day may be frozen.
	FreezeCutoff int
	// AttendanceAlertAt is the local minute-of-day after which a missing
	// attendance submission raises an alert.
	AttendanceAlertAt int
	// EODFinalizeAt is the local minute-of-day on Friday after which the
	// week's end-of-day summary is final.
	EODFinalizeAt int
}

// DefaultSettings returns the floor's standard configuration.
func DefaultSettings() Settings {
	return Settings{
		Calendar:          MustCalendar(DefaultZone),
		Clock:             SystemClock{},
		CostPerCall:       DefaultCostPerCall,
		Slots:             DefaultSlots,
		CloseSlot:         CloseSlot,
		FreezeCutoff:      23*60 + 50,
		AttendanceAlertAt: 17*60 + 30,
		EODFinalizeAt:     18*60 + 15,
	}
}

// now returns the current instant and its date key.
func (s Settings) now() (time.Time, string) {
	t := s.Clock.Now()
	return t, s.Calendar.DateKey(t)
}

// ParseClockMinute parses "HH:MM" into a minute-of-day.
func ParseClockMinute(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("%w: time of day %q: %v", ErrInvalidInput, v, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// NewID returns a prefixed random row id such as "perf_<uuid>".
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
