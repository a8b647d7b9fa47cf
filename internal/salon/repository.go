package salon

import (
	"context"
	"time"
)

// Directory resolves the read-mostly context of a call: which business was
// dialed, who works there and what it sells.
type Directory interface {
	BusinessByPhone(ctx context.Context, phone string) (*Business, error)
	ListTechnicians(ctx context.Context, businessID string) ([]Technician, error)
	ListServices(ctx context.Context, businessID string) ([]Service, error)
}

// AppointmentReader is the read side the availability pipeline needs.
type AppointmentReader interface {
	// ListActiveAppointments returns active appointments of the given technicians
	// starting at or after from. An empty technician list means every technician.
	ListActiveAppointments(ctx context.Context, businessID string, technicianIDs []string, from time.Time) ([]Appointment, error)
}

// Tx is one unit of work. Everything done through a Tx commits or rolls back together.
type Tx interface {
	AppointmentReader

	FindCustomer(ctx context.Context, businessID, phone string) (*Customer, error)
	CreateCustomer(ctx context.Context, customer *Customer) error

	GetAppointment(ctx context.Context, businessID, id string) (*Appointment, error)
	// FindAppointmentByTime locates a customer's appointment starting at the instant,
	// preferring active over pending over terminal rows.
	FindAppointmentByTime(ctx context.Context, businessID, customerID string, at time.Time) (*Appointment, error)
	// ListCustomerAppointments returns the customer's appointments in the status,
	// oldest first.
	ListCustomerAppointments(ctx context.Context, businessID, customerID string, status Status) ([]Appointment, error)

	InsertAppointment(ctx context.Context, appt *Appointment) error
	UpdateAppointment(ctx context.Context, appt *Appointment) error
	// ReplaceServices makes the join table hold exactly serviceIDs for the appointment.
	ReplaceServices(ctx context.Context, appointmentID string, serviceIDs []string) error

	// EnqueueEvent records a domain event in the outbox as part of the transaction.
	EnqueueEvent(ctx context.Context, businessID, eventType string, payload any) error
}

// Store is the full persistence contract of the booking core.
//
// InTx must isolate the read (conflict scan) from concurrent writers so that a
// check-then-insert for one technician cannot interleave with another; a
// concurrent overlapping write must fail with ErrSlotTaken rather than succeed.
type Store interface {
	Directory
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
