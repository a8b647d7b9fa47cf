package salon

import "errors"

var (
	// ErrBusinessNotFound is returned when no business owns the phone number.
	ErrBusinessNotFound = errors.New("business not found")

	// ErrCustomerNotFound is returned when the caller is not a known customer.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrTechnicianNotFound is returned for an unknown technician ID.
	ErrTechnicianNotFound = errors.New("technician not found")

	// ErrAppointmentNotFound is returned when no appointment matches a locator.
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotTaken is returned when the store rejects a write because another
	// transaction booked an overlapping interval for the same technician.
	ErrSlotTaken = errors.New("technician already booked for that time")

	// ErrServiceLink is returned when appointment service links cannot be written.
	ErrServiceLink = errors.New("appointment service links failed")
)
