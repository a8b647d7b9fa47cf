// Package availability decides whether a technician can take an appointment
// at a given instant: qualification, then shift window, then conflicts.
package availability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/salon-voice-booking/internal/catalog"
	"github.com/wolfman30/salon-voice-booking/internal/salon"
)

// Anyone is the selector that lets the resolver pick a technician.
const Anyone = "ANYONE"

// Reason is a machine-readable unavailability code.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonNoQualifiedTechnician Reason = "no_qualified_technician"
	ReasonOutsideWorkingHours   Reason = "outside_working_hours"
	ReasonFullyBooked           Reason = "fully_booked"
	ReasonTechnicianNotFound    Reason = "technician_not_found"
	ReasonNotEnoughTechnicians  Reason = "not_enough_technicians"
	ReasonNoServices            Reason = "no_services"
)

// IsAnyone reports whether selector asks for any technician.
func IsAnyone(selector string) bool {
	s := strings.TrimSpace(selector)
	return s == "" || strings.EqualFold(s, Anyone)
}

// Candidate is a technician reference returned to callers.
type Candidate struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func candidateOf(t salon.Technician) Candidate {
	return Candidate{ID: t.ID, Name: t.Name()}
}

// RejectedSchedule explains why a qualified technician failed the shift check.
type RejectedSchedule struct {
	TechnicianID string       `json:"technician_id"`
	Name         string       `json:"name"`
	Verdict      ShiftVerdict `json:"reason"`
	WorkingDays  []string     `json:"working_days"`
	Hours        string       `json:"hours"`
}

// Query is one availability question.
type Query struct {
	BusinessID string
	Start      time.Time
	Location   *time.Location
	Selector   string
	Services   []string
	// Resolution, when set, replaces resolving Services against Catalog.
	Resolution *catalog.Resolution

	Technicians []salon.Technician
	Catalog     []salon.Service

	// ExcludeAppointmentID skips the appointment being moved during conflict checks.
	ExcludeAppointmentID string
	// ExcludeTechnicians removes technicians from consideration entirely.
	ExcludeTechnicians map[string]bool
}

// Decision is the resolver's answer.
type Decision struct {
	Available    bool               `json:"available"`
	Technician   *salon.Technician  `json:"-"`
	Reason       Reason             `json:"reason,omitempty"`
	Detail       ShiftVerdict       `json:"detail,omitempty"`
	Message      string             `json:"message"`
	Alternatives []Candidate        `json:"alternative_technicians,omitempty"`
	Rejected     []RejectedSchedule `json:"rejected_schedules,omitempty"`
	Resolution   catalog.Resolution `json:"-"`
	Interval     Interval           `json:"-"`
}

// Resolver runs the availability pipeline.
type Resolver struct {
	now func() time.Time
}

// NewResolver builds a resolver. A nil clock uses time.Now.
func NewResolver(now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{now: now}
}

// Now returns the resolver's clock reading in UTC.
func (r *Resolver) Now() time.Time {
	return r.now().UTC()
}

// pass is the result of running the filters over one candidate set.
type pass struct {
	qualified []salon.Technician
	working   []salon.Technician
	available []salon.Technician
	rejected  []RejectedSchedule
}

// Check answers q. It only reads through reader; callers that go on to write
// must use the same transaction.
func (r *Resolver) Check(ctx context.Context, reader salon.AppointmentReader, q Query) (*Decision, error) {
	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}
	res := q.resolve()
	interval := NewInterval(q.Start.UTC(), res.TotalDurationMinutes)
	d := &Decision{Resolution: res, Interval: interval}

	anyone := IsAnyone(q.Selector)
	candidates := orderTechnicians(q.Technicians, q.ExcludeTechnicians)
	if !anyone {
		candidates = pick(candidates, strings.TrimSpace(q.Selector))
	}
	if len(candidates) == 0 {
		d.Reason = ReasonTechnicianNotFound
		d.Message = "Technician not found."
		return d, nil
	}

	p, err := r.run(ctx, reader, q, candidates, interval, res, loc)
	if err != nil {
		return nil, err
	}
	d.Rejected = p.rejected

	switch {
	case len(p.qualified) == 0:
		d.Reason = ReasonNoQualifiedTechnician
		if anyone {
			d.Message = "No technicians are qualified to perform this service."
		} else {
			d.Message = fmt.Sprintf("%s is not qualified to perform this service.", candidates[0].Name())
		}
	case len(p.working) == 0:
		d.Reason = ReasonOutsideWorkingHours
		d.Detail = shiftDetail(p.rejected)
		d.Message = outsideHoursMessage(anyone, p.qualified, interval.Start.In(loc), d.Detail)
	case len(p.available) == 0:
		d.Reason = ReasonFullyBooked
		d.Message = "No, that time is already fully booked."
		if !anyone {
			alts, err := r.alternatives(ctx, reader, q, candidates[0].ID, interval, res, loc)
			if err != nil {
				return nil, err
			}
			d.Alternatives = alts
			if len(alts) > 0 {
				names := make([]string, 0, len(alts))
				for _, a := range alts {
					names = append(names, a.Name)
				}
				verb := "is"
				if len(names) > 1 {
					verb = "are"
				}
				d.Message += fmt.Sprintf(" %s %s available at that time instead.", catalog.JoinSpoken(names), verb)
			}
		}
	default:
		chosen := p.available[0]
		d.Available = true
		d.Technician = &chosen
		d.Message = fmt.Sprintf("Yes, that time is available with %s.", chosen.Name())
	}
	return d, nil
}

func (q Query) resolve() catalog.Resolution {
	if q.Resolution != nil {
		return *q.Resolution
	}
	return catalog.Resolve(q.Services, q.Catalog)
}

// run applies qualification, shift window and conflict filters in order.
func (r *Resolver) run(ctx context.Context, reader salon.AppointmentReader, q Query, candidates []salon.Technician, interval Interval, res catalog.Resolution, loc *time.Location) (pass, error) {
	var p pass
	p.qualified = QualifiedTechnicians(candidates, res.MatchedServiceIDs)
	if len(p.qualified) == 0 {
		return p, nil
	}

	for _, t := range p.qualified {
		verdict := CheckShift(interval.Start, res.TotalDurationMinutes, t.Schedule, loc)
		if verdict == ShiftOK {
			p.working = append(p.working, t)
			continue
		}
		p.rejected = append(p.rejected, rejectedOf(t, verdict))
	}
	if len(p.working) == 0 {
		return p, nil
	}

	ids := make([]string, 0, len(p.working))
	for _, t := range p.working {
		ids = append(ids, t.ID)
	}
	now := r.Now()
	existing, err := reader.ListActiveAppointments(ctx, q.BusinessID, ids, now)
	if err != nil {
		return p, fmt.Errorf("availability: list active appointments: %w", err)
	}
	for _, t := range p.working {
		if len(FindConflicts(interval, t.ID, existing, now, q.ExcludeAppointmentID)) == 0 {
			p.available = append(p.available, t)
		}
	}
	return p, nil
}

// alternatives reruns the filters over everyone except the requested technician.
func (r *Resolver) alternatives(ctx context.Context, reader salon.AppointmentReader, q Query, requestedID string, interval Interval, res catalog.Resolution, loc *time.Location) ([]Candidate, error) {
	exclude := map[string]bool{requestedID: true}
	for id := range q.ExcludeTechnicians {
		exclude[id] = true
	}
	others := orderTechnicians(q.Technicians, exclude)
	if len(others) == 0 {
		return nil, nil
	}
	p, err := r.run(ctx, reader, q, others, interval, res, loc)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(p.available))
	for _, t := range p.available {
		out = append(out, candidateOf(t))
	}
	return out, nil
}

// orderTechnicians returns a copy in selection order: first name, last name, ID.
func orderTechnicians(techs []salon.Technician, exclude map[string]bool) []salon.Technician {
	out := make([]salon.Technician, 0, len(techs))
	for _, t := range techs {
		if !exclude[t.ID] {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if fa, fb := strings.ToLower(a.FirstName), strings.ToLower(b.FirstName); fa != fb {
			return fa < fb
		}
		if la, lb := strings.ToLower(a.LastName), strings.ToLower(b.LastName); la != lb {
			return la < lb
		}
		return a.ID < b.ID
	})
	return out
}

func pick(techs []salon.Technician, id string) []salon.Technician {
	for _, t := range techs {
		if t.ID == id {
			return []salon.Technician{t}
		}
	}
	return nil
}

func rejectedOf(t salon.Technician, verdict ShiftVerdict) RejectedSchedule {
	days := t.Schedule.WorkingDays()
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, d.String())
	}
	return RejectedSchedule{
		TechnicianID: t.ID,
		Name:         t.Name(),
		Verdict:      verdict,
		WorkingDays:  names,
		Hours:        t.Schedule.Describe(),
	}
}

// shiftDetail is not_working_day only when nobody works that weekday at all.
func shiftDetail(rejected []RejectedSchedule) ShiftVerdict {
	for _, r := range rejected {
		if r.Verdict == ShiftOutside {
			return ShiftOutside
		}
	}
	return ShiftNotWorkingDay
}

func outsideHoursMessage(anyone bool, qualified []salon.Technician, local time.Time, detail ShiftVerdict) string {
	weekday := local.Weekday()
	if anyone || len(qualified) != 1 {
		if detail == ShiftNotWorkingDay {
			return fmt.Sprintf("No one who can do that service works on %ss. Please choose a different day.", weekday)
		}
		return "There is a conflict. The requested time is outside of our working hours for these technicians."
	}
	t := qualified[0]
	name := t.Name()
	if detail == ShiftNotWorkingDay {
		days := t.Schedule.WorkingDays()
		if len(days) == 0 {
			return fmt.Sprintf("%s doesn't have any shifts scheduled.", name)
		}
		names := make([]string, 0, len(days))
		for _, d := range days {
			names = append(names, d.String())
		}
		return fmt.Sprintf("%s doesn't work on %ss. %s works %s.", name, weekday, name, catalog.JoinSpoken(names))
	}
	shift := t.Schedule.ForDay(weekday)
	if shift == nil {
		return fmt.Sprintf("That time is outside %s's hours.", name)
	}
	return fmt.Sprintf("That time is outside %s's hours. On %s %s works from %s to %s.",
		name, weekday, name, SpokenClock(shift.Open), SpokenClock(shift.Close))
}

// SpokenClock renders "13:30" as "1:30 PM". Unparseable input is returned as is.
func SpokenClock(clock string) string {
	mins, err := salon.ParseClock(clock)
	if err != nil {
		return clock
	}
	if mins >= 24*60 {
		return "midnight"
	}
	return time.Date(2000, 1, 1, mins/60, mins%60, 0, 0, time.UTC).Format("3:04 PM")
}
