package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/salon-voice-booking/internal/events"
	"github.com/wolfman30/salon-voice-booking/internal/salon"
)

// ServiceMode selects how new services combine with the existing ones.
type ServiceMode string

const (
	ModeAppend  ServiceMode = "append"
	ModeReplace ServiceMode = "replace"
)

// ParseServiceMode defaults to append.
func ParseServiceMode(s string) (ServiceMode, error) {
	switch ServiceMode(s) {
	case "", ModeAppend:
		return ModeAppend, nil
	case ModeReplace:
		return ModeReplace, nil
	default:
		return "", fmt.Errorf("%w: unknown service update mode %q", ErrInvalidInput, s)
	}
}

// NewBooking describes an appointment to insert.
type NewBooking struct {
	BusinessID   string
	CustomerID   string
	TechnicianID *string
	Time         *time.Time
	ServiceIDs   []string
	Catalog      []salon.Service
	// DurationMinutes is the reserved length. Zero derives it from the catalog.
	DurationMinutes int
	// Status defaults to active when both technician and time are known, pending otherwise.
	Status salon.Status
}

// AppointmentEvent is the outbox payload for appointment changes.
type AppointmentEvent struct {
	AppointmentID   string       `json:"appointment_id"`
	BusinessID      string       `json:"business_id"`
	CustomerID      string       `json:"customer_id"`
	TechnicianID    *string      `json:"technician_id,omitempty"`
	Time            *time.Time   `json:"time,omitempty"`
	Status          salon.Status `json:"status"`
	ServiceIDs      []string     `json:"service_ids"`
	DurationMinutes int          `json:"duration_minutes"`
}

func eventOf(a salon.Appointment) AppointmentEvent {
	return AppointmentEvent{
		AppointmentID:   a.ID,
		BusinessID:      a.BusinessID,
		CustomerID:      a.CustomerID,
		TechnicianID:    a.TechnicianID,
		Time:            a.Time,
		Status:          a.Status,
		ServiceIDs:      a.ServiceIDs,
		DurationMinutes: a.EffectiveDuration(),
	}
}

// CreateBooking inserts the appointment, links its services and records the
// event. Any failure leaves nothing behind once the caller's transaction rolls back.
func CreateBooking(ctx context.Context, tx salon.Tx, nb NewBooking) (*salon.Appointment, error) {
	status := nb.Status
	if status == "" {
		status = salon.StatusPending
		if nb.TechnicianID != nil && nb.Time != nil {
			status = salon.StatusActive
		}
	}
	if status == salon.StatusActive && (nb.TechnicianID == nil || nb.Time == nil) {
		return nil, fmt.Errorf("%w: active appointment needs a technician and a time", ErrInvalidInput)
	}
	serviceIDs := dedupe(nb.ServiceIDs)
	duration := nb.DurationMinutes
	if duration <= 0 {
		duration = salon.DurationFor(serviceIDs, nb.Catalog)
	}
	appt := &salon.Appointment{
		BusinessID:      nb.BusinessID,
		CustomerID:      nb.CustomerID,
		TechnicianID:    nb.TechnicianID,
		Status:          status,
		DurationMinutes: duration,
	}
	if nb.Time != nil {
		appt.Time = salon.TimePtr(*nb.Time)
	}
	if err := tx.InsertAppointment(ctx, appt); err != nil {
		return nil, err
	}
	if len(serviceIDs) > 0 {
		if err := tx.ReplaceServices(ctx, appt.ID, serviceIDs); err != nil {
			return nil, err
		}
	}
	appt.ServiceIDs = serviceIDs

	eventType := events.TypeAppointmentStarted
	if status == salon.StatusActive {
		eventType = events.TypeAppointmentBooked
	}
	if err := tx.EnqueueEvent(ctx, appt.BusinessID, eventType, eventOf(*appt)); err != nil {
		return nil, err
	}
	return appt, nil
}

// Changes lists the fields to modify. Nil fields are left alone.
type Changes struct {
	Time         *time.Time
	TechnicianID *string
	ServiceIDs   []string
	Mode         ServiceMode
	Status       *salon.Status
	Catalog      []salon.Service
	// DurationMinutes overrides the reserved length when positive.
	DurationMinutes int
	// EventType overrides the recorded event type.
	EventType string
}

// UpdateBooking applies ch to the appointment and writes only what changed.
// It returns ErrNoOp when the result equals the stored row.
func UpdateBooking(ctx context.Context, tx salon.Tx, businessID, id string, ch Changes) (*salon.Appointment, error) {
	current, err := tx.GetAppointment(ctx, businessID, id)
	if err != nil {
		return nil, err
	}
	next := current.Clone()

	if ch.Time != nil {
		next.Time = salon.TimePtr(*ch.Time)
	}
	if ch.TechnicianID != nil {
		next.TechnicianID = salon.StringPtr(*ch.TechnicianID)
	}
	if ch.Status != nil {
		if *ch.Status != current.Status && !current.Status.CanTransition(*ch.Status) {
			return nil, Fail(KindInvalidInput,
				fmt.Sprintf("That appointment is %s and can't be changed.", current.Status), nil)
		}
		next.Status = *ch.Status
	}
	servicesChanged := false
	if len(ch.ServiceIDs) > 0 {
		if ch.Mode == ModeReplace {
			next.ServiceIDs = dedupe(ch.ServiceIDs)
		} else {
			next.ServiceIDs = dedupe(append(append([]string(nil), current.ServiceIDs...), ch.ServiceIDs...))
		}
		servicesChanged = !sameStrings(next.ServiceIDs, current.ServiceIDs)
		if servicesChanged {
			next.DurationMinutes = salon.DurationFor(next.ServiceIDs, ch.Catalog)
		}
	}
	if ch.DurationMinutes > 0 {
		next.DurationMinutes = ch.DurationMinutes
	}

	rowChanged := !sameTime(next.Time, current.Time) ||
		!sameString(next.TechnicianID, current.TechnicianID) ||
		next.Status != current.Status ||
		next.DurationMinutes != current.DurationMinutes
	if !rowChanged && !servicesChanged {
		return current, ErrNoOp
	}
	if next.Status == salon.StatusActive && (next.TechnicianID == nil || next.Time == nil) {
		return nil, fmt.Errorf("%w: active appointment needs a technician and a time", ErrInvalidInput)
	}

	if rowChanged {
		if err := tx.UpdateAppointment(ctx, &next); err != nil {
			return nil, err
		}
	}
	if servicesChanged {
		if err := tx.ReplaceServices(ctx, next.ID, next.ServiceIDs); err != nil {
			return nil, err
		}
	}

	eventType := ch.EventType
	if eventType == "" {
		eventType = events.TypeAppointmentChanged
	}
	if err := tx.EnqueueEvent(ctx, next.BusinessID, eventType, eventOf(next)); err != nil {
		return nil, err
	}
	return &next, nil
}

// CancelBooking moves an active or pending appointment to cancelled.
func CancelBooking(ctx context.Context, tx salon.Tx, businessID, id string) (*salon.Appointment, error) {
	current, err := tx.GetAppointment(ctx, businessID, id)
	if err != nil {
		if errors.Is(err, salon.ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: appointment %s", ErrNotFound, id)
		}
		return nil, err
	}
	if current.Status.Terminal() {
		return current, fmt.Errorf("%w: appointment already %s", ErrNoOp, current.Status)
	}
	next := current.Clone()
	next.Status = salon.StatusCancelled
	if err := tx.UpdateAppointment(ctx, &next); err != nil {
		return nil, err
	}
	if err := tx.EnqueueEvent(ctx, next.BusinessID, events.TypeAppointmentCancelled, eventOf(next)); err != nil {
		return nil, err
	}
	return &next, nil
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
