package salon

import (
	"fmt"
	"strings"
	"time"
)

// DayHours is an open/close pair in business-local wall clock, "HH:MM" 24-hour.
// For a technician schedule Open is the shift start and Close the shift end.
type DayHours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// WeeklyHours maps weekdays to hours. A nil day means closed / not working.
type WeeklyHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

// ForDay returns the hours for a weekday, or nil when there is no entry.
func (w WeeklyHours) ForDay(weekday time.Weekday) *DayHours {
	switch weekday {
	case time.Sunday:
		return w.Sunday
	case time.Monday:
		return w.Monday
	case time.Tuesday:
		return w.Tuesday
	case time.Wednesday:
		return w.Wednesday
	case time.Thursday:
		return w.Thursday
	case time.Friday:
		return w.Friday
	case time.Saturday:
		return w.Saturday
	default:
		return nil
	}
}

// Set assigns hours for a weekday. A nil value clears the day.
func (w *WeeklyHours) Set(weekday time.Weekday, hours *DayHours) {
	switch weekday {
	case time.Sunday:
		w.Sunday = hours
	case time.Monday:
		w.Monday = hours
	case time.Tuesday:
		w.Tuesday = hours
	case time.Wednesday:
		w.Wednesday = hours
	case time.Thursday:
		w.Thursday = hours
	case time.Friday:
		w.Friday = hours
	case time.Saturday:
		w.Saturday = hours
	}
}

// WorkingDays lists the weekdays that have an entry, Monday first.
func (w WeeklyHours) WorkingDays() []time.Weekday {
	order := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
		time.Friday, time.Saturday, time.Sunday,
	}
	var days []time.Weekday
	for _, d := range order {
		if w.ForDay(d) != nil {
			days = append(days, d)
		}
	}
	return days
}

// HasAnyHours reports whether at least one weekday is configured.
func (w WeeklyHours) HasAnyHours() bool {
	return len(w.WorkingDays()) > 0
}

// Describe renders the schedule for speech, e.g. "Monday 09:00-17:00, Tuesday 10:00-18:00".
func (w WeeklyHours) Describe() string {
	var parts []string
	for _, d := range w.WorkingDays() {
		h := w.ForDay(d)
		parts = append(parts, fmt.Sprintf("%s %s-%s", d, h.Open, h.Close))
	}
	if len(parts) == 0 {
		return "no working days"
	}
	return strings.Join(parts, ", ")
}

// IsOpenAt reports whether t falls inside the configured hours, evaluated in loc.
// With no hours configured at all the business is treated as always open
// (appointment-only salons).
func (w WeeklyHours) IsOpenAt(t time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	hours := w.ForDay(local.Weekday())
	if hours == nil {
		return !w.HasAnyHours()
	}
	open, err := ParseClock(hours.Open)
	if err != nil {
		return false
	}
	closing, err := ParseClock(hours.Close)
	if err != nil {
		return false
	}
	current := MinutesSinceMidnight(local)
	return current >= open && current < closing
}

// ParseClock converts "HH:MM" (or "HH:MM:SS") into minutes since midnight.
// "24:00" is accepted as end of day.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" || s == "24:00:00" {
		return 24 * 60, nil
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("salon: invalid clock %q", s)
}

// MinutesSinceMidnight returns the wall-clock minute of day of t in its own location.
func MinutesSinceMidnight(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
