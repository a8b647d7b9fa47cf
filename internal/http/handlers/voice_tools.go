package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/salon-voice-booking/internal/availability"
	"github.com/wolfman30/salon-voice-booking/internal/booking"
	"github.com/wolfman30/salon-voice-booking/pkg/logging"
)

// BookingService is the booking surface the voice tools call into.
type BookingService interface {
	CheckAvailability(ctx context.Context, caller booking.Caller, req booking.AvailabilityRequest) (*booking.AvailabilityResult, error)
	Book(ctx context.Context, caller booking.Caller, req booking.BookRequest) (*booking.BookResult, error)
	Reschedule(ctx context.Context, caller booking.Caller, req booking.RescheduleRequest) (*booking.BookResult, error)
	Cancel(ctx context.Context, caller booking.Caller, req booking.CancelRequest) (*booking.CancelResult, error)
	ListUpcoming(ctx context.Context, caller booking.Caller) (*booking.ListResult, error)
	StartPending(ctx context.Context, caller booking.Caller, count int) (*booking.StartResult, error)
	AddService(ctx context.Context, caller booking.Caller, serviceQuery string) (*booking.AddServiceResult, error)
	AssignTechnicians(ctx context.Context, caller booking.Caller) (*booking.AssignResult, error)
	ConfirmPending(ctx context.Context, caller booking.Caller, req booking.ConfirmRequest) (*booking.ConfirmResult, error)
}

// VoiceToolsHandler serves the webhook tools the voice agent calls mid-call.
// Every response carries a "message" the agent can read out.
type VoiceToolsHandler struct {
	svc                  BookingService
	defaultBusinessPhone string
	validate             *validator.Validate
	logger               *logging.Logger
}

// NewVoiceToolsHandler builds the handler. defaultBusinessPhone is used when
// a request carries no call.to_number.
func NewVoiceToolsHandler(svc BookingService, defaultBusinessPhone string, logger *logging.Logger) *VoiceToolsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &VoiceToolsHandler{
		svc:                  svc,
		defaultBusinessPhone: normalizePhone(defaultBusinessPhone),
		validate:             v,
		logger:               logger,
	}
}

type checkAvailabilityArgs struct {
	AppointmentTime string     `json:"appointment_time" validate:"required"`
	Services        StringList `json:"services"`
	TechnicianID    string     `json:"technician_id" validate:"max=64"`
}

type bookAppointmentArgs struct {
	AppointmentTime string     `json:"appointment_time" validate:"required"`
	Services        StringList `json:"services"`
	TechnicianID    string     `json:"technician_id" validate:"max=64"`
	FirstName       string     `json:"first_name" validate:"max=100"`
	LastName        string     `json:"last_name" validate:"max=100"`
}

type changeAppointmentArgs struct {
	CurrentAppointmentTime string     `json:"current_appointment_time" validate:"required"`
	NewTime                string     `json:"new_time"`
	NewTechnicianID        string     `json:"new_technician_id" validate:"max=64"`
	NewServices            StringList `json:"new_services"`
	ServiceUpdateMode      string     `json:"service_update_mode" validate:"omitempty,oneof=append replace"`
}

type cancelAppointmentArgs struct {
	AppointmentTime string `json:"appointment_time" validate:"required_without=AppointmentID"`
	AppointmentID   string `json:"appointment_id" validate:"max=64"`
}

type startAppointmentsArgs struct {
	Count FlexInt `json:"count" validate:"omitempty,min=1,max=10"`
}

type addServiceArgs struct {
	Services string `json:"services" validate:"required,max=200"`
}

type confirmAppointmentsArgs struct {
	AppointmentTime string `json:"appointment_time" validate:"required"`
	TechnicianID    string `json:"technician_id" validate:"max=64"`
}

type noArgs struct{}

// CheckAvailability handles POST /voice/tools/check-availability.
func (h *VoiceToolsHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var args checkAvailabilityArgs
	caller, ok := h.decode(w, r, &args)
	if !ok {
		return
	}
	res, err := h.svc.CheckAvailability(r.Context(), caller, booking.AvailabilityRequest{
		Time:         args.AppointmentTime,
		Services:     args.Services,
		TechnicianID: selectorOrAnyone(args.TechnicianID),
	})
	h.respond(w, r, res, err)
}

// BookAppointment handles POST /voice/tools/book-appointment.
func (h *VoiceToolsHandler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var args bookAppointmentArgs
	caller, ok := h.decode(w, r, &args)
	if !ok {
		return
	}
	res, err := h.svc.Book(r.Context(), caller, booking.BookRequest{
		Time:         args.AppointmentTime,
		Services:     args.Services,
		TechnicianID: selectorOrAnyone(args.TechnicianID),
		FirstName:    args.FirstName,
		LastName:     args.LastName,
	})
	h.respond(w, r, res, err)
}

// ChangeAppointment handles POST /voice/tools/change-appointment.
func (h *VoiceToolsHandler) ChangeAppointment(w http.ResponseWriter, r *http.Request) {
	var args changeAppointmentArgs
	caller, ok := h.decode(w, r, &args)
	if !ok {
		return
	}
	res, err := h.svc.Reschedule(r.Context(), caller, booking.RescheduleRequest{
		CurrentTime:       args.CurrentAppointmentTime,
		NewTime:           args.NewTime,
		NewTechnicianID:   args.NewTechnicianID,
		NewServices:       args.NewServices,
		ServiceUpdateMode: args.ServiceUpdateMode,
	})
	h.respond(w, r, res, err)
}

// CancelAppointment handles POST /voice/tools/cancel-appointment.
func (h *VoiceToolsHandler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	var args cancelAppointmentArgs
	caller, ok := h.decode(w, r, &args)
	if !ok {
		return
	}
	res, err := h.svc.Cancel(r.Context(), caller, booking.CancelRequest{
		AppointmentTime: args.AppointmentTime,
		AppointmentID:   args.AppointmentID,
	})
	h.respond(w, r, res, err)
}

// ListAppointments handles POST /voice/tools/list-appointments.
func (h *VoiceToolsHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	var args noArgs
	caller, ok := h.decode(w, r, &args)
	if !ok {
		return
	}
	res, err := h.svc.ListUpcoming(r.Context(), caller)
	h.respond(w, r, res, err)
}

// StartAppointments handles POST /voice/tools/start-appointments.
func (h *VoiceToolsHandler) StartAppointments(w http.ResponseWriter, r *http.Request) {
	var args startAppointmentsArgs
	caller, ok := h.decode(w, r, &args)
	if !ok {
		return
	}
	count := int(args.Count)
	if count == 0 {
		count = 1
	}
	res, err := h.svc.StartPending(r.Context(), caller, count)
	h.respond(w, r, res, err)
}

// AddService handles POST /voice/tools/add-service.
func (h *VoiceToolsHandler) AddService(w http.ResponseWriter, r *http.Request) {
	var args addServiceArgs
	caller, ok := h.decode(w, r, &args)
	if !ok {
		return
	}
	res, err := h.svc.AddService(r.Context(), caller, args.Services)
	h.respond(w, r, res, err)
}

// AssignTechnicians handles POST /voice/tools/assign-technicians.
func (h *VoiceToolsHandler) AssignTechnicians(w http.ResponseWriter, r *http.Request) {
	var args noArgs
	caller, ok := h.decode(w, r, &args)
	if !ok {
		return
	}
	res, err := h.svc.AssignTechnicians(r.Context(), caller)
	h.respond(w, r, res, err)
}

// ConfirmAppointments handles POST /voice/tools/confirm-appointments.
func (h *VoiceToolsHandler) ConfirmAppointments(w http.ResponseWriter, r *http.Request) {
	var args confirmAppointmentsArgs
	caller, ok := h.decode(w, r, &args)
	if !ok {
		return
	}
	res, err := h.svc.ConfirmPending(r.Context(), caller, booking.ConfirmRequest{
		Time:         args.AppointmentTime,
		TechnicianID: selectorOrAnyone(args.TechnicianID),
	})
	h.respond(w, r, res, err)
}

// HealthCheck handles GET /health.
func (h *VoiceToolsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads and validates the envelope, writing a 400 on failure.
func (h *VoiceToolsHandler) decode(w http.ResponseWriter, r *http.Request, args any) (booking.Caller, bool) {
	call, err := decodeEnvelope(r, args)
	if err != nil {
		h.logger.Warn("voice tool request rejected", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadRequest, errorBody{
			Reason:  booking.KindInvalidInput,
			Message: "I couldn't read that request.",
			Details: map[string]any{"error": err.Error()},
		})
		return booking.Caller{}, false
	}
	if err := h.validate.Struct(args); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Reason:  booking.KindInvalidInput,
			Message: validationMessage(err),
		})
		return booking.Caller{}, false
	}

	caller := booking.Caller{
		BusinessPhone: normalizePhone(call.ToNumber),
		CustomerPhone: normalizePhone(call.FromNumber),
	}
	if caller.BusinessPhone == "" {
		caller.BusinessPhone = h.defaultBusinessPhone
	}
	return caller, true
}

type errorBody struct {
	Success bool           `json:"success"`
	Reason  booking.Kind   `json:"reason"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// respond writes res, or the classified failure with its mapped status.
func (h *VoiceToolsHandler) respond(w http.ResponseWriter, r *http.Request, res any, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, res)
		return
	}
	f := booking.AsFailure(err)
	status := f.HTTPStatus()
	if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
		f = booking.Fail(booking.KindPersistence, "Sorry, that took too long. Please try again.", err)
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("voice tool failed", "path", r.URL.Path, "reason", f.Kind, "error", err)
	}
	writeJSON(w, status, errorBody{Reason: f.Kind, Message: f.Message, Details: f.Details})
}

func selectorOrAnyone(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return availability.Anyone
	}
	return id
}

// validationMessage turns validator errors into one sentence per field.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "The request is invalid."
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required.", fe.Field()))
		case "required_without":
			parts = append(parts, fmt.Sprintf("%s or %s is required.", fe.Field(), toSnake(fe.Param())))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of: %s.", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", ")))
		case "min", "max":
			parts = append(parts, fmt.Sprintf("%s is out of range.", fe.Field()))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid.", fe.Field()))
		}
	}
	return strings.Join(parts, " ")
}

// toSnake renders a Go field name the way it appears in JSON.
func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(name[i-1] >= 'A' && name[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
