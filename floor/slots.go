package floor

// Slot is a fixed time-of-day checkpoint at which intraday numbers are recorded.
type Slot struct {
	Key         string // "HH:MM"
	Label       string
	MinuteOfDay int
}

// DefaultSlots is the floor's ordered slot schedule.
var DefaultSlots = Schedule{
	{Key: "11:00", Label: "11:00 AM", MinuteOfDay: 11 * 60},
	{Key: "13:00", Label: "1:00 PM", MinuteOfDay: 13 * 60},
	{Key: "15:00", Label: "3:00 PM", MinuteOfDay: 15 * 60},
	{Key: "17:00", Label: "5:00 PM", MinuteOfDay: 17 * 60},
}

// CloseSlot is the slot treated as the day's final number.
const CloseSlot = "17:00"

// Schedule is an ordered list of slots, earliest first.
type Schedule []Slot

// Index returns the position of key in the schedule, or -1.
func (s Schedule) Index(key string) int {
	for i, slot := range s {
		if slot.Key == key {
			return i
		}
	}
	return -1
}

// Lookup finds a slot by key.
func (s Schedule) Lookup(key string) (Slot, bool) {
	if i := s.Index(key); i >= 0 {
		return s[i], true
	}
	return Slot{}, false
}

// Window returns the [start, end) minute-of-day interval during which the
// slot accepts entries. The last slot stays open until midnight.
func (s Schedule) Window(key string) (start, end int, ok bool) {
	i := s.Index(key)
	if i < 0 {
		return 0, 0, false
	}
	start = s[i].MinuteOfDay
	end = 24 * 60
	if i+1 < len(s) {
		end = s[i+1].MinuteOfDay
	}
	return start, end, true
}

// IsOpen reports whether minute falls inside the slot's window.
func (s Schedule) IsOpen(key string, minute int) bool {
	start, end, ok := s.Window(key)
	return ok && minute >= start && minute < end
}
