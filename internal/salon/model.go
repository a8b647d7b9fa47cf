// Package salon holds the salon booking data model and its persistence.
package salon

import (
	"strings"
	"time"
)

// DefaultDurationMinutes is the duration assumed for an appointment or a
// requested service whose length is unknown.
const DefaultDurationMinutes = 60

// Business is a salon reachable at a phone number.
type Business struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Phone    string      `json:"phone"`
	Timezone string      `json:"timezone"` // IANA, e.g. "America/Los_Angeles"
	Hours    WeeklyHours `json:"hours"`
}

// Technician performs services according to a weekly shift schedule.
type Technician struct {
	ID         string      `json:"id"`
	BusinessID string      `json:"business_id"`
	FirstName  string      `json:"first_name"`
	LastName   string      `json:"last_name"`
	Skills     []string    `json:"skills"` // qualified service IDs
	Schedule   WeeklyHours `json:"schedule"`
}

// Name returns the display name used in spoken responses.
func (t Technician) Name() string {
	return strings.TrimSpace(t.FirstName + " " + t.LastName)
}

// Service is a catalog entry.
type Service struct {
	ID              string `json:"id"`
	BusinessID      string `json:"business_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int    `json:"price_cents"`
}

// EffectiveDuration is the service duration, or the default when unset.
func (s Service) EffectiveDuration() int {
	if s.DurationMinutes <= 0 {
		return DefaultDurationMinutes
	}
	return s.DurationMinutes
}

// Customer is keyed by (BusinessID, Phone).
type Customer struct {
	ID         string `json:"id"`
	BusinessID string `json:"business_id"`
	Phone      string `json:"phone"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
}

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition enforces pending -> active -> completed and
// pending|active -> cancelled.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusActive || to == StatusCancelled
	case StatusActive:
		return to == StatusCompleted || to == StatusCancelled
	default:
		return false
	}
}

// Appointment is a booking row. TechnicianID and Time are nil while a phone
// conversation is still filling in a pending appointment.
type Appointment struct {
	ID              string     `json:"id"`
	BusinessID      string     `json:"business_id"`
	CustomerID      string     `json:"customer_id"`
	TechnicianID    *string    `json:"technician_id,omitempty"`
	Time            *time.Time `json:"time,omitempty"`
	Status          Status     `json:"status"`
	ServiceIDs      []string   `json:"service_ids"`
	DurationMinutes int        `json:"duration_minutes"`
	CreatedAt       time.Time  `json:"created_at"`
}

// EffectiveDuration falls back to the default when the duration is unresolved.
func (a Appointment) EffectiveDuration() int {
	if a.DurationMinutes <= 0 {
		return DefaultDurationMinutes
	}
	return a.DurationMinutes
}

// End returns the exclusive end of the appointment, or the zero time when unscheduled.
func (a Appointment) End() time.Time {
	if a.Time == nil {
		return time.Time{}
	}
	return a.Time.Add(time.Duration(a.EffectiveDuration()) * time.Minute)
}

// AssignedTo reports whether the appointment belongs to the technician.
func (a Appointment) AssignedTo(technicianID string) bool {
	return a.TechnicianID != nil && *a.TechnicianID == technicianID
}

// Clone returns a deep copy so stores never share slices or pointers with callers.
func (a Appointment) Clone() Appointment {
	out := a
	if a.TechnicianID != nil {
		id := *a.TechnicianID
		out.TechnicianID = &id
	}
	if a.Time != nil {
		t := *a.Time
		out.Time = &t
	}
	out.ServiceIDs = append([]string(nil), a.ServiceIDs...)
	return out
}

// DurationFor sums the catalog durations of the given service IDs, falling back to
// the default when nothing resolves.
func DurationFor(serviceIDs []string, catalog []Service) int {
	byID := make(map[string]Service, len(catalog))
	for _, s := range catalog {
		byID[s.ID] = s
	}
	total := 0
	for _, id := range serviceIDs {
		if s, ok := byID[id]; ok {
			total += s.EffectiveDuration()
		}
	}
	if total == 0 {
		return DefaultDurationMinutes
	}
	return total
}

// StringPtr is a small helper for nullable columns.
func StringPtr(s string) *string {
	return &s
}

// TimePtr returns a pointer to a UTC copy of t.
func TimePtr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}
