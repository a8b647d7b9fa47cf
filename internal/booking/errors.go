package booking

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/wolfman30/salon-voice-booking/internal/availability"
	"github.com/wolfman30/salon-voice-booking/internal/salon"
	"github.com/wolfman30/salon-voice-booking/internal/tzbridge"
)

// Kind classifies a booking failure. It doubles as the machine reason code.
type Kind string

const (
	KindNotFound              Kind = "not_found"
	KindInvalidInput          Kind = "invalid_input"
	KindNoQualifiedTechnician Kind = "no_qualified_technician"
	KindOutsideWorkingHours   Kind = "outside_working_hours"
	KindFullyBooked           Kind = "fully_booked"
	KindConflict              Kind = "conflict"
	KindInvalidTimezone       Kind = "invalid_timezone"
	KindPersistence           Kind = "persistence_failure"
	KindServiceLinkFailed     Kind = "service_link_failed"
	KindNoOp                  Kind = "no_op"
)

var (
	ErrNotFound              = errors.New("booking: not found")
	ErrInvalidInput          = errors.New("booking: invalid input")
	ErrNoQualifiedTechnician = errors.New("booking: no qualified technician")
	ErrOutsideWorkingHours   = errors.New("booking: outside working hours")
	ErrFullyBooked           = errors.New("booking: fully booked")
	// ErrConflict is the store's slot-taken error: a concurrent booking won the race.
	ErrConflict          = salon.ErrSlotTaken
	ErrInvalidTimezone   = tzbridge.ErrInvalidTimezone
	ErrPersistence       = errors.New("booking: persistence failure")
	ErrServiceLinkFailed = salon.ErrServiceLink
	ErrNoOp              = errors.New("booking: nothing to change")
)

var kindSentinels = map[Kind]error{
	KindNotFound:              ErrNotFound,
	KindInvalidInput:          ErrInvalidInput,
	KindNoQualifiedTechnician: ErrNoQualifiedTechnician,
	KindOutsideWorkingHours:   ErrOutsideWorkingHours,
	KindFullyBooked:           ErrFullyBooked,
	KindConflict:              ErrConflict,
	KindInvalidTimezone:       ErrInvalidTimezone,
	KindPersistence:           ErrPersistence,
	KindServiceLinkFailed:     ErrServiceLinkFailed,
	KindNoOp:                  ErrNoOp,
}

// Failure is a classified error carrying the sentence the voice agent speaks.
type Failure struct {
	Kind    Kind           `json:"reason"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

// Fail builds a Failure. err may be nil.
func Fail(kind Kind, message string, err error) *Failure {
	return &Failure{Kind: kind, Message: message, Err: err}
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is matches the sentinel of the failure's kind.
func (f *Failure) Is(target error) bool {
	return kindSentinels[f.Kind] == target
}

// WithDetails attaches structured context such as alternative technicians.
func (f *Failure) WithDetails(details map[string]any) *Failure {
	f.Details = details
	return f
}

// HTTPStatus maps the kind onto a response status. Unavailability is a
// successful answer to the question asked, so it is 200.
func (f *Failure) HTTPStatus() int {
	return StatusFor(f.Kind)
}

// StatusFor maps a kind onto an HTTP status.
func StatusFor(kind Kind) int {
	switch kind {
	case KindNoQualifiedTechnician, KindOutsideWorkingHours, KindFullyBooked:
		return http.StatusOK
	case KindInvalidInput, KindInvalidTimezone:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindNoOp:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// AsFailure converts any error into a Failure, classifying store and
// timezone errors and treating everything else as a persistence failure.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	switch {
	case errors.Is(err, salon.ErrSlotTaken):
		return Fail(KindConflict, "Sorry, someone just booked that time. Would you like to try a different time?", err)
	case errors.Is(err, salon.ErrServiceLink):
		return Fail(KindServiceLinkFailed, "I couldn't save the services on your appointment, so nothing was booked. Please try again.", err)
	case errors.Is(err, tzbridge.ErrInvalidTimezone):
		return Fail(KindInvalidTimezone, "The salon's time zone is not set up correctly.", err)
	case errors.Is(err, salon.ErrBusinessNotFound):
		return Fail(KindNotFound, "I couldn't find that salon.", err)
	case errors.Is(err, salon.ErrAppointmentNotFound):
		return Fail(KindNotFound, "I couldn't find that appointment.", err)
	case errors.Is(err, salon.ErrCustomerNotFound):
		return Fail(KindNotFound, "I couldn't find your customer record.", err)
	case errors.Is(err, ErrNotFound):
		return Fail(KindNotFound, "I couldn't find that appointment.", err)
	case errors.Is(err, ErrInvalidInput):
		return Fail(KindInvalidInput, "I didn't quite get that. Could you say it again?", err)
	case errors.Is(err, ErrNoOp):
		return Fail(KindNoOp, "That appointment already looks like that, so there's nothing to change.", err)
	default:
		return Fail(KindPersistence, "Sorry, something went wrong saving that. Please try again.", fmt.Errorf("%w: %v", ErrPersistence, err))
	}
}

// KindOf classifies err; nil has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return AsFailure(err).Kind
}

// kindForReason maps an availability reason to a failure kind.
func kindForReason(r availability.Reason) Kind {
	switch r {
	case availability.ReasonNoQualifiedTechnician:
		return KindNoQualifiedTechnician
	case availability.ReasonOutsideWorkingHours:
		return KindOutsideWorkingHours
	case availability.ReasonFullyBooked, availability.ReasonNotEnoughTechnicians:
		return KindFullyBooked
	case availability.ReasonTechnicianNotFound:
		return KindNotFound
	default:
		return KindInvalidInput
	}
}

// unavailable turns a negative decision into a Failure with its details.
func unavailable(d *availability.Decision) *Failure {
	f := Fail(kindForReason(d.Reason), d.Message, nil)
	details := map[string]any{}
	if d.Detail != "" {
		details["detail"] = d.Detail
	}
	if len(d.Alternatives) > 0 {
		details["alternative_technicians"] = d.Alternatives
	}
	if len(d.Rejected) > 0 {
		details["rejected_schedules"] = d.Rejected
	}
	if len(details) > 0 {
		f.Details = details
	}
	return f
}
