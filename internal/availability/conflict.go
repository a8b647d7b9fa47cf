package availability

import (
	"time"

	"github.com/wolfman30/salon-voice-booking/internal/salon"
)

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewInterval spans minutes from start; non-positive lengths use the default duration.
func NewInterval(start time.Time, minutes int) Interval {
	if minutes <= 0 {
		minutes = salon.DefaultDurationMinutes
	}
	return Interval{Start: start, End: start.Add(time.Duration(minutes) * time.Minute)}
}

// Overlaps reports whether two half-open intervals intersect. Touching
// boundaries do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// FindConflicts returns the technician's active appointments that start at or
// after now and overlap req. The appointment being moved is skipped via excludeID.
func FindConflicts(req Interval, technicianID string, existing []salon.Appointment, now time.Time, excludeID string) []salon.Appointment {
	var out []salon.Appointment
	for _, a := range existing {
		if a.Status != salon.StatusActive || a.Time == nil || !a.AssignedTo(technicianID) {
			continue
		}
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		if a.Time.Before(now) {
			continue
		}
		if req.Overlaps(Interval{Start: *a.Time, End: a.End()}) {
			out = append(out, a)
		}
	}
	return out
}
