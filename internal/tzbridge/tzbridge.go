// Package tzbridge converts between business-local wall clocks and UTC instants.
package tzbridge

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidTimezone is returned for an empty or unknown IANA zone name.
	ErrInvalidTimezone = errors.New("invalid timezone")

	// ErrInvalidWallClock is returned when a wall-clock string matches no accepted layout.
	ErrInvalidWallClock = errors.New("invalid wall clock time")
)

// SpokenLayout is the format read back to callers.
const SpokenLayout = "Monday, January 2, 2006 at 3:04 PM MST"

const spokenNoZoneLayout = "Monday, January 2, 2006 at 3:04 PM"

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	spokenNoZoneLayout,
}

// LoadLocation loads an IANA zone, rejecting the empty name that
// time.LoadLocation would silently treat as UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty zone name", ErrInvalidTimezone)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	return loc, nil
}

// ResolveLocation loads name, falling back to fallback and finally UTC. The
// boolean reports whether name itself could not be used.
func ResolveLocation(name, fallback string) (*time.Location, bool) {
	if loc, err := LoadLocation(name); err == nil {
		return loc, false
	}
	if loc, err := LoadLocation(fallback); err == nil {
		return loc, true
	}
	return time.UTC, true
}

// LocalToUTC interprets wallClock as a reading on the clocks of tz.
//
// Any offset in the input is discarded. A reading that falls in a
// spring-forward gap is moved forward by the size of the gap; an ambiguous
// fall-back reading resolves to the earlier instant unless a zone abbreviation
// in the input names the later one.
func LocalToUTC(wallClock, tz string) (time.Time, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	return ParseLocal(wallClock, loc)
}

// ParseLocal is LocalToUTC for an already loaded location.
func ParseLocal(wallClock string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(wallClock)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidWallClock)
	}

	if t, err := time.ParseInLocation(SpokenLayout, s, loc); err == nil {
		if t.Location() == loc {
			return t.UTC(), nil
		}
		// Abbreviation unknown to loc: keep only the clock reading.
		return resolveWallClock(t, loc), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return resolveWallClock(t, loc), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return resolveWallClock(t, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidWallClock, wallClock)
}

// UTCToLocal renders instant on the clocks of tz in SpokenLayout.
func UTCToLocal(instant time.Time, tz string) (string, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return "", err
	}
	return FormatSpoken(instant, loc), nil
}

// FormatSpoken renders instant in loc in SpokenLayout.
func FormatSpoken(instant time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return instant.In(loc).Format(SpokenLayout)
}

// resolveWallClock maps the calendar fields of reading onto an instant in loc.
func resolveWallClock(reading time.Time, loc *time.Location) time.Time {
	naive := time.Date(reading.Year(), reading.Month(), reading.Day(),
		reading.Hour(), reading.Minute(), reading.Second(), 0, time.UTC)

	_, before := naive.Add(-24 * time.Hour).In(loc).Zone()
	_, after := naive.Add(24 * time.Hour).In(loc).Zone()

	var matches []time.Time
	for _, offset := range uniqueOffsets(before, after) {
		candidate := naive.Add(-time.Duration(offset) * time.Second)
		if sameClock(candidate.In(loc), naive) {
			matches = append(matches, candidate)
		}
	}

	switch len(matches) {
	case 0:
		// Gap: interpreting with the pre-transition offset lands gap-size later.
		return naive.Add(-time.Duration(before) * time.Second).UTC()
	case 1:
		return matches[0].UTC()
	default:
		earliest := matches[0]
		for _, m := range matches[1:] {
			if m.Before(earliest) {
				earliest = m
			}
		}
		return earliest.UTC()
	}
}

func uniqueOffsets(a, b int) []int {
	if a == b {
		return []int{a}
	}
	return []int{a, b}
}

func sameClock(local, naive time.Time) bool {
	y1, m1, d1 := local.Date()
	y2, m2, d2 := naive.Date()
	return y1 == y2 && m1 == m2 && d1 == d2 &&
		local.Hour() == naive.Hour() && local.Minute() == naive.Minute() && local.Second() == naive.Second()
}
