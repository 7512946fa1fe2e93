package floor

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"
)

// DefaultZone is the single timezone the floor operates in.
const DefaultZone = "America/New_York"

const dateLayout = "2006-01-02"

// =============================================================================
// CLOCK - single injected time source
// =============================================================================

// Clock supplies the current instant. Everything that asks "what is today"
// goes through a Clock so tests can pin time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock returns a settable instant.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixedClock(t time.Time) *FixedClock { return &FixedClock{t: t} }

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// =============================================================================
// CALENDAR - date and week keys in the floor's zone
// =============================================================================

// Calendar maps instants to civil dateKeys and Monday-anchored weekKeys.
// All methods are pure.
type Calendar struct {
	Zone *time.Location
}

// NewCalendar loads the named zone. An empty name selects DefaultZone.
func NewCalendar(zone string) (Calendar, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Calendar{}, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return Calendar{Zone: loc}, nil
}

// MustCalendar is NewCalendar for zones known to exist.
func MustCalendar(zone string) Calendar {
	c, err := NewCalendar(zone)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Calendar) zone() *time.Location {
	if c.Zone == nil {
		return time.UTC
	}
	return c.Zone
}

// Local converts t to the floor's zone.
func (c Calendar) Local(t time.Time) time.Time { return t.In(c.zone()) }

// DateKey formats the civil date of t as YYYY-MM-DD.
func (c Calendar) DateKey(t time.Time) string {
	return c.Local(t).Format(dateLayout)
}

// WeekKey is the dateKey of the Monday on or before t's civil date.
func (c Calendar) WeekKey(t time.Time) string {
	k, _ := WeekKeyForDate(c.DateKey(t))
	return k
}

// MinuteOfDay returns minutes since local midnight.
func (c Calendar) MinuteOfDay(t time.Time) int {
	l := c.Local(t)
	return l.Hour()*60 + l.Minute()
}

// MonthDates lists every dateKey of t's civil month.
func (c Calendar) MonthDates(t time.Time) []string {
	l := c.Local(t)
	first := time.Date(l.Year(), l.Month(), 1, 12, 0, 0, 0, time.UTC)
	days := first.AddDate(0, 1, -1).Day()
	out := make([]string, days)
	for i := 0; i < days; i++ {
		out[i] = first.AddDate(0, 0, i).Format(dateLayout)
	}
	return out
}

// MonthPrefix returns "YYYY-MM" for t's civil month.
func (c Calendar) MonthPrefix(t time.Time) string {
	return c.Local(t).Format("2006-01")
}

// WeekDates returns Monday..Friday of the week starting at weekKey.
func WeekDates(weekKey string) ([]string, error) {
	base, err := ParseDateKey(weekKey)
	if err != nil {
		return nil, err
	}
	out := make([]string, 5)
	for i := range out {
		out[i] = base.AddDate(0, 0, i).Format(dateLayout)
	}
	return out, nil
}

// ParseDateKey parses a dateKey into a UTC noon instant, which keeps
// day arithmetic clear of DST transitions.
func ParseDateKey(key string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, key, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date key %q: %w", key, err)
	}
	return d.Add(12 * time.Hour), nil
}

// AddDays shifts a dateKey by n calendar days.
func AddDays(key string, n int) (string, error) {
	d, err := ParseDateKey(key)
	if err != nil {
		return "", err
	}
	return d.AddDate(0, 0, n).Format(dateLayout), nil
}

// WeekKeyForDate returns the Monday anchoring the week that contains dateKey.
func WeekKeyForDate(dateKey string) (string, error) {
	d, err := ParseDateKey(dateKey)
	if err != nil {
		return "", err
	}
	delta := 1 - int(d.Weekday())
	if d.Weekday() == time.Sunday {
		delta = -6
	}
	return d.AddDate(0, 0, delta).Format(dateLayout), nil
}
