package booking

import (
	"time"

	"github.com/wolfman30/salon-voice-booking/internal/availability"
)

// Caller identifies who is calling which salon.
type Caller struct {
	BusinessPhone string
	CustomerPhone string
}

// AvailabilityRequest asks whether a slot is free.
type AvailabilityRequest struct {
	Time         string
	Services     []string
	TechnicianID string
}

// AvailabilityResult answers an AvailabilityRequest.
type AvailabilityResult struct {
	Available              bool                            `json:"available"`
	Reason                 availability.Reason             `json:"reason,omitempty"`
	Detail                 availability.ShiftVerdict       `json:"detail,omitempty"`
	Message                string                          `json:"message"`
	Technician             *availability.Candidate         `json:"technician,omitempty"`
	AlternativeTechnicians []availability.Candidate        `json:"alternative_technicians,omitempty"`
	RejectedSchedules      []availability.RejectedSchedule `json:"rejected_schedules,omitempty"`
	UnmatchedServices      []string                        `json:"unmatched_services,omitempty"`
	DurationMinutes        int                             `json:"duration_minutes"`
	RequestedTimeUTC       time.Time                       `json:"requested_time_utc"`
}

// BookRequest books a new appointment.
type BookRequest struct {
	Time         string
	Services     []string
	TechnicianID string
	FirstName    string
	LastName     string
}

// BookResult is returned by Book and Reschedule.
type BookResult struct {
	Success           bool                    `json:"success"`
	Message           string                  `json:"message"`
	AppointmentID     string                  `json:"appointment_id,omitempty"`
	BookedTimeUTC     *time.Time              `json:"booked_time_utc,omitempty"`
	Technician        *availability.Candidate `json:"technician,omitempty"`
	Services          []string                `json:"services,omitempty"`
	UnmatchedServices []string                `json:"unmatched_services,omitempty"`
	NewCustomer       bool                    `json:"new_customer,omitempty"`
}

// RescheduleRequest changes an existing appointment located by its time.
type RescheduleRequest struct {
	CurrentTime       string
	NewTime           string
	NewTechnicianID   string
	NewServices       []string
	ServiceUpdateMode string
}

// CancelRequest locates the appointment by ID or by its time.
type CancelRequest struct {
	AppointmentTime string
	AppointmentID   string
}

// CancelResult reports a cancellation.
type CancelResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	AppointmentID string `json:"appointment_id,omitempty"`
}

// AppointmentView is an appointment as read back to the caller.
type AppointmentView struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	TimeUTC      *time.Time `json:"time_utc,omitempty"`
	SpokenTime   string     `json:"spoken_time,omitempty"`
	Technician   string     `json:"technician,omitempty"`
	TechnicianID string     `json:"technician_id,omitempty"`
	Services     []string   `json:"services"`
}

// ListResult is returned by ListUpcoming.
type ListResult struct {
	Found        bool              `json:"found"`
	Message      string            `json:"message"`
	Appointments []AppointmentView `json:"appointments"`
}

// StartResult is returned by StartPending.
type StartResult struct {
	Message        string   `json:"message"`
	Count          int      `json:"count"`
	AppointmentIDs []string `json:"appointment_ids"`
	NewCustomer    bool     `json:"new_customer,omitempty"`
}

// AddServiceResult is returned by AddService.
type AddServiceResult struct {
	Found         bool   `json:"found"`
	Message       string `json:"message"`
	ServiceID     string `json:"service_id,omitempty"`
	AppointmentID string `json:"appointment_id,omitempty"`
}

// Assignment is one line of a batch technician assignment.
type Assignment struct {
	AppointmentID string                  `json:"appointment_id"`
	Technician    *availability.Candidate `json:"technician,omitempty"`
	Reason        availability.Reason     `json:"reason,omitempty"`
	Message       string                  `json:"message"`
}

// AssignResult is returned by AssignTechnicians.
type AssignResult struct {
	Capable     bool         `json:"capable"`
	Message     string       `json:"message"`
	Assignments []Assignment `json:"assignments"`
}

// ConfirmRequest books every pending appointment of the caller at one time.
type ConfirmRequest struct {
	Time         string
	TechnicianID string
}

// ConfirmResult is returned by ConfirmPending.
type ConfirmResult struct {
	Success       bool         `json:"success"`
	Message       string       `json:"message"`
	BookedTimeUTC *time.Time   `json:"booked_time_utc,omitempty"`
	Assignments   []Assignment `json:"assignments"`
}
