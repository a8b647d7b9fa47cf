package availability

import (
	"time"

	"github.com/wolfman30/salon-voice-booking/internal/salon"
)

// ShiftVerdict is the outcome of a shift window check.
type ShiftVerdict string

const (
	ShiftOK            ShiftVerdict = "ok"
	ShiftNotWorkingDay ShiftVerdict = "not_working_day"
	ShiftOutside       ShiftVerdict = "outside_shift"
)

// CheckShift reports whether [start, start+duration) fits the technician's
// shift on the local weekday of start. Both bounds are inclusive minutes since
// local midnight, so an appointment may end exactly at shift end.
func CheckShift(start time.Time, durationMinutes int, schedule salon.WeeklyHours, loc *time.Location) ShiftVerdict {
	if loc == nil {
		loc = time.UTC
	}
	if durationMinutes <= 0 {
		durationMinutes = salon.DefaultDurationMinutes
	}
	local := start.In(loc)
	shift := schedule.ForDay(local.Weekday())
	if shift == nil {
		return ShiftNotWorkingDay
	}
	shiftStart, err := salon.ParseClock(shift.Open)
	if err != nil {
		return ShiftOutside
	}
	shiftEnd, err := salon.ParseClock(shift.Close)
	if err != nil {
		return ShiftOutside
	}
	begin := salon.MinutesSinceMidnight(local)
	end := begin + durationMinutes
	if begin >= shiftStart && end <= shiftEnd {
		return ShiftOK
	}
	return ShiftOutside
}
