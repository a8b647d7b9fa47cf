// Package booking runs the voice-agent booking operations: checking
// availability, booking, moving and cancelling appointments, and the
// multi-step pending appointment flow.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/salon-voice-booking/internal/availability"
	"github.com/wolfman30/salon-voice-booking/internal/catalog"
	"github.com/wolfman30/salon-voice-booking/internal/events"
	"github.com/wolfman30/salon-voice-booking/internal/observability/metrics"
	"github.com/wolfman30/salon-voice-booking/internal/salon"
	"github.com/wolfman30/salon-voice-booking/internal/tzbridge"
	"github.com/wolfman30/salon-voice-booking/pkg/logging"
)

var tracer = otel.Tracer("salon.internal.booking")

// MaxPendingPerCall caps StartPending.
const MaxPendingPerCall = 10

// Service implements the booking tools on top of a salon.Store.
type Service struct {
	store           salon.Store
	resolver        *availability.Resolver
	logger          *logging.Logger
	metrics         *metrics.BookingMetrics
	defaultTimezone string
	now             func() time.Time
}

// NewService wires the booking operations to a store.
func NewService(store salon.Store, logger *logging.Logger) *Service {
	if store == nil {
		panic("booking: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:           store,
		resolver:        availability.NewResolver(time.Now),
		logger:          logger,
		defaultTimezone: "America/Los_Angeles",
		now:             time.Now,
	}
}

func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

// WithDefaultTimezone sets the zone used for businesses without a valid one.
func (s *Service) WithDefaultTimezone(tz string) *Service {
	if tz != "" {
		s.defaultTimezone = tz
	}
	return s
}

// WithClock replaces the clock used for "now" decisions.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
		s.resolver = availability.NewResolver(now)
	}
	return s
}

// callContext is the directory data one request works against.
type callContext struct {
	business    *salon.Business
	loc         *time.Location
	technicians []salon.Technician
	catalog     []salon.Service
}

func (s *Service) load(ctx context.Context, caller Caller) (*callContext, error) {
	phone := strings.TrimSpace(caller.BusinessPhone)
	if phone == "" {
		return nil, Fail(KindInvalidInput, "I couldn't tell which salon you called.", nil)
	}
	b, err := s.store.BusinessByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, salon.ErrBusinessNotFound) {
			return nil, Fail(KindNotFound, "I couldn't find that salon.", err)
		}
		return nil, fmt.Errorf("booking: load business: %w", err)
	}
	loc, fellBack := tzbridge.ResolveLocation(b.Timezone, s.defaultTimezone)
	if fellBack {
		s.logger.Warn("business timezone unusable, using default",
			"business_id", b.ID, "timezone", b.Timezone, "fallback", loc.String())
	}
	techs, err := s.store.ListTechnicians(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("booking: list technicians: %w", err)
	}
	services, err := s.store.ListServices(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("booking: list services: %w", err)
	}
	return &callContext{business: b, loc: loc, technicians: techs, catalog: services}, nil
}

// parseTime reads a business-local wall clock.
func (s *Service) parseTime(cc *callContext, raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, Fail(KindInvalidInput, "No time provided.", nil)
	}
	at, err := tzbridge.ParseLocal(raw, cc.loc)
	if err != nil {
		return time.Time{}, Fail(KindInvalidInput, "I didn't catch a valid date and time. Could you say it again?", err)
	}
	return at, nil
}

// parseFuture is parseTime that also rejects instants already past.
func (s *Service) parseFuture(cc *callContext, raw string) (time.Time, error) {
	at, err := s.parseTime(cc, raw)
	if err != nil {
		return time.Time{}, err
	}
	if at.Before(s.now()) {
		return time.Time{}, Fail(KindInvalidInput, "That time has already passed. Please choose a future time.", nil)
	}
	return at, nil
}

// begin starts a span for op and returns the function that ends it.
func (s *Service) begin(ctx context.Context, op string, caller Caller) (context.Context, func(*error)) {
	ctx, span := tracer.Start(ctx, "booking."+op)
	span.SetAttributes(attribute.String("salon.business_phone", caller.BusinessPhone))
	started := time.Now()
	return ctx, func(errp *error) {
		*errp = s.finish(span, op, started, *errp)
	}
}

func (s *Service) finish(span trace.Span, op string, started time.Time, err error) error {
	defer span.End()
	outcome := "success"
	if err != nil {
		f := AsFailure(err)
		err = f
		outcome = string(f.Kind)
		span.RecordError(f)
		if f.HTTPStatus() >= 500 {
			span.SetStatus(codes.Error, f.Message)
			s.logger.Error("booking operation failed", "operation", op, "reason", f.Kind, "error", f)
		} else {
			s.logger.Info("booking operation rejected", "operation", op, "reason", f.Kind)
		}
	}
	s.metrics.ObserveOperation(op, outcome, time.Since(started).Seconds())
	return err
}

func (s *Service) query(cc *callContext, at time.Time, selector string) availability.Query {
	return availability.Query{
		BusinessID:  cc.business.ID,
		Start:       at,
		Location:    cc.loc,
		Selector:    selector,
		Technicians: cc.technicians,
		Catalog:     cc.catalog,
	}
}

// CheckAvailability answers whether the requested slot can be booked.
func (s *Service) CheckAvailability(ctx context.Context, caller Caller, req AvailabilityRequest) (res *AvailabilityResult, err error) {
	ctx, end := s.begin(ctx, "check_availability", caller)
	defer end(&err)

	cc, err := s.load(ctx, caller)
	if err != nil {
		return nil, err
	}
	at, err := s.parseFuture(cc, req.Time)
	if err != nil {
		return nil, err
	}

	var d *availability.Decision
	err = s.store.InTx(ctx, func(ctx context.Context, tx salon.Tx) error {
		q := s.query(cc, at, req.TechnicianID)
		q.Services = req.Services
		var err error
		d, err = s.resolver.Check(ctx, tx, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveUnavailable(string(d.Reason))

	res = &AvailabilityResult{
		Available:              d.Available,
		Reason:                 d.Reason,
		Detail:                 d.Detail,
		Message:                d.Message + unmatchedNote(d.Resolution.Unmatched),
		AlternativeTechnicians: d.Alternatives,
		RejectedSchedules:      d.Rejected,
		UnmatchedServices:      d.Resolution.Unmatched,
		DurationMinutes:        d.Resolution.TotalDurationMinutes,
		RequestedTimeUTC:       at,
	}
	if d.Technician != nil {
		res.Technician = &availability.Candidate{ID: d.Technician.ID, Name: d.Technician.Name()}
	}
	return res, nil
}

// Book validates the slot and books it in one transaction. An unknown caller
// becomes a new customer.
func (s *Service) Book(ctx context.Context, caller Caller, req BookRequest) (res *BookResult, err error) {
	ctx, end := s.begin(ctx, "book", caller)
	defer end(&err)

	cc, err := s.load(ctx, caller)
	if err != nil {
		return nil, err
	}
	at, err := s.parseFuture(cc, req.Time)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx salon.Tx) error {
		q := s.query(cc, at, req.TechnicianID)
		q.Services = req.Services
		d, err := s.resolver.Check(ctx, tx, q)
		if err != nil {
			return err
		}
		s.metrics.ObserveUnavailable(string(d.Reason))
		if !d.Available {
			return unavailable(d)
		}

		customer, created, err := s.ensureCustomer(ctx, tx, cc, caller.CustomerPhone, req.FirstName, req.LastName)
		if err != nil {
			return err
		}
		appt, err := CreateBooking(ctx, tx, NewBooking{
			BusinessID:   cc.business.ID,
			CustomerID:   customer.ID,
			TechnicianID: salon.StringPtr(d.Technician.ID),
			Time:         &at,
			ServiceIDs:   d.Resolution.MatchedServiceIDs,
			Catalog:      cc.catalog,
			// Unrecognized services hold the default length too.
			DurationMinutes: d.Resolution.TotalDurationMinutes,
		})
		if err != nil {
			return err
		}

		spoken := tzbridge.FormatSpoken(at, cc.loc)
		res = &BookResult{
			Success:           true,
			Message:           fmt.Sprintf("Success. I have booked your appointment with %s for %s.", d.Technician.Name(), spoken) + unmatchedNote(d.Resolution.Unmatched),
			AppointmentID:     appt.ID,
			BookedTimeUTC:     appt.Time,
			Technician:        &availability.Candidate{ID: d.Technician.ID, Name: d.Technician.Name()},
			Services:          d.Resolution.Names(),
			UnmatchedServices: d.Resolution.Unmatched,
			NewCustomer:       created,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("appointment booked", "business_id", cc.business.ID, "appointment_id", res.AppointmentID, "technician_id", res.Technician.ID)
	return res, nil
}

// Reschedule moves or edits the caller's appointment found at CurrentTime.
func (s *Service) Reschedule(ctx context.Context, caller Caller, req RescheduleRequest) (res *BookResult, err error) {
	ctx, end := s.begin(ctx, "reschedule", caller)
	defer end(&err)

	if strings.TrimSpace(req.CurrentTime) == "" {
		return nil, Fail(KindInvalidInput, "I need to know which appointment time to update.", nil)
	}
	mode, err := ParseServiceMode(req.ServiceUpdateMode)
	if err != nil {
		return nil, Fail(KindInvalidInput, "I can either add the new services or replace the old ones.", err)
	}
	cc, err := s.load(ctx, caller)
	if err != nil {
		return nil, err
	}
	currentAt, err := s.parseTime(cc, req.CurrentTime)
	if err != nil {
		return nil, err
	}
	var newAt *time.Time
	if strings.TrimSpace(req.NewTime) != "" {
		t, err := s.parseFuture(cc, req.NewTime)
		if err != nil {
			return nil, err
		}
		newAt = &t
	}
	newTech := strings.TrimSpace(req.NewTechnicianID)

	err = s.store.InTx(ctx, func(ctx context.Context, tx salon.Tx) error {
		appt, err := s.findByTime(ctx, tx, cc, caller, currentAt)
		if isLookupMiss(err) {
			return Fail(KindNotFound, "I couldn't find an appointment at that time.", err)
		}
		if err != nil {
			return err
		}

		var requested catalog.Resolution
		if len(req.NewServices) > 0 {
			requested = catalog.Resolve(req.NewServices, cc.catalog)
		}
		finalServices := appt.ServiceIDs
		if len(requested.MatchedServiceIDs) > 0 {
			if mode == ModeReplace {
				finalServices = dedupe(requested.MatchedServiceIDs)
			} else {
				finalServices = dedupe(append(append([]string(nil), appt.ServiceIDs...), requested.MatchedServiceIDs...))
			}
		}

		timeChanged := newAt != nil && (appt.Time == nil || !newAt.Equal(*appt.Time))
		techChanged := newTech != "" && (availability.IsAnyone(newTech) || !appt.AssignedTo(newTech))
		servicesChanged := !sameStrings(finalServices, appt.ServiceIDs)
		duration := rescheduledMinutes(*appt, finalServices, mode, requested, cc.catalog)
		durationChanged := duration != appt.EffectiveDuration()
		if !timeChanged && !techChanged && !servicesChanged && !durationChanged {
			res = &BookResult{Success: true, Message: "No changes were needed." + unmatchedNote(requested.Unmatched), AppointmentID: appt.ID, BookedTimeUTC: appt.Time, UnmatchedServices: requested.Unmatched}
			return nil
		}

		changes := Changes{Time: newAt, ServiceIDs: requested.MatchedServiceIDs, Mode: mode, Catalog: cc.catalog, DurationMinutes: duration}
		finalTime := appt.Time
		if newAt != nil {
			finalTime = newAt
		}

		var chosen *salon.Technician
		switch {
		case finalTime != nil:
			selector := newTech
			if selector == "" && appt.TechnicianID != nil {
				selector = *appt.TechnicianID
			}
			resolution := catalog.Resolution{
				MatchedServiceIDs:    finalServices,
				Matched:              catalog.ByIDs(finalServices, cc.catalog),
				TotalDurationMinutes: duration,
			}
			q := s.query(cc, *finalTime, selector)
			q.Resolution = &resolution
			q.ExcludeAppointmentID = appt.ID
			d, err := s.resolver.Check(ctx, tx, q)
			if err != nil {
				return err
			}
			s.metrics.ObserveUnavailable(string(d.Reason))
			if !d.Available {
				return unavailable(d)
			}
			chosen = d.Technician
		case techChanged && !availability.IsAnyone(newTech):
			t, ok := findTechnician(cc.technicians, newTech)
			if !ok {
				return Fail(KindNotFound, "Technician not found.", nil)
			}
			if !availability.Qualified(t.Skills, finalServices) {
				return Fail(KindNoQualifiedTechnician, fmt.Sprintf("%s is not qualified to perform this service.", t.Name()), nil)
			}
			chosen = &t
		}
		if chosen != nil {
			changes.TechnicianID = salon.StringPtr(chosen.ID)
		}

		updated, err := UpdateBooking(ctx, tx, cc.business.ID, appt.ID, changes)
		if errors.Is(err, ErrNoOp) {
			res = &BookResult{Success: true, Message: "No changes were needed.", AppointmentID: appt.ID, BookedTimeUTC: appt.Time}
			return nil
		}
		if err != nil {
			return err
		}

		names := serviceNames(updated.ServiceIDs, cc.catalog)
		label := "appointment"
		if len(names) > 0 {
			label = strings.Join(names, " and ")
		}
		msg := fmt.Sprintf("Updated! Your %s is saved.", label)
		if updated.Time != nil {
			msg = fmt.Sprintf("Updated! Your %s is set for %s.", label, tzbridge.FormatSpoken(*updated.Time, cc.loc))
		}
		res = &BookResult{
			Success:           true,
			Message:           msg + unmatchedNote(requested.Unmatched),
			AppointmentID:     updated.ID,
			BookedTimeUTC:     updated.Time,
			Services:          names,
			UnmatchedServices: requested.Unmatched,
		}
		if chosen != nil {
			res.Technician = &availability.Candidate{ID: chosen.ID, Name: chosen.Name()}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Cancel cancels the caller's appointment located by ID or by time.
func (s *Service) Cancel(ctx context.Context, caller Caller, req CancelRequest) (res *CancelResult, err error) {
	ctx, end := s.begin(ctx, "cancel", caller)
	defer end(&err)

	const notFound = "No active appointment found at that time."
	if strings.TrimSpace(req.AppointmentID) == "" && strings.TrimSpace(req.AppointmentTime) == "" {
		return nil, Fail(KindInvalidInput, "Which appointment would you like to cancel?", nil)
	}
	cc, err := s.load(ctx, caller)
	if err != nil {
		return nil, err
	}
	var at time.Time
	if req.AppointmentID == "" {
		if at, err = s.parseTime(cc, req.AppointmentTime); err != nil {
			return nil, err
		}
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx salon.Tx) error {
		var appt *salon.Appointment
		var err error
		if id := strings.TrimSpace(req.AppointmentID); id != "" {
			appt, err = s.findByID(ctx, tx, cc, caller, id)
		} else {
			appt, err = s.findByTime(ctx, tx, cc, caller, at)
		}
		if isLookupMiss(err) {
			return Fail(KindNotFound, notFound, err)
		}
		if err != nil {
			return err
		}
		cancelled, err := CancelBooking(ctx, tx, cc.business.ID, appt.ID)
		switch {
		case errors.Is(err, ErrNoOp):
			return Fail(KindNoOp, notFound, err)
		case errors.Is(err, ErrNotFound):
			return Fail(KindNotFound, notFound, err)
		case err != nil:
			return err
		}
		res = &CancelResult{
			Success:       true,
			Message:       "Appointment cancelled successfully. Ask if they would like to reschedule for a different time.",
			AppointmentID: cancelled.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListUpcoming reads back the caller's active appointments from now on.
func (s *Service) ListUpcoming(ctx context.Context, caller Caller) (res *ListResult, err error) {
	ctx, end := s.begin(ctx, "list_upcoming", caller)
	defer end(&err)

	cc, err := s.load(ctx, caller)
	if err != nil {
		return nil, err
	}
	res = &ListResult{Message: "You don't have any active upcoming appointments.", Appointments: []AppointmentView{}}

	err = s.store.InTx(ctx, func(ctx context.Context, tx salon.Tx) error {
		customer, err := tx.FindCustomer(ctx, cc.business.ID, strings.TrimSpace(caller.CustomerPhone))
		if errors.Is(err, salon.ErrCustomerNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		appts, err := tx.ListCustomerAppointments(ctx, cc.business.ID, customer.ID, salon.StatusActive)
		if err != nil {
			return err
		}
		now := s.now()
		var upcoming []salon.Appointment
		for _, a := range appts {
			if a.Time != nil && !a.Time.Before(now) {
				upcoming = append(upcoming, a)
			}
		}
		sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].Time.Before(*upcoming[j].Time) })
		for _, a := range upcoming {
			res.Appointments = append(res.Appointments, s.view(cc, a))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(res.Appointments) == 0 {
		return res, nil
	}

	first := res.Appointments[0]
	res.Found = true
	what := "an appointment"
	if len(first.Services) > 0 {
		what = catalog.JoinSpoken(first.Services)
	}
	with := ""
	if first.Technician != "" {
		with = " with " + first.Technician
	}
	res.Message = fmt.Sprintf("Found %d appointment(s). The first one is for %s%s on %s.", len(res.Appointments), what, with, first.SpokenTime)
	return res, nil
}

// StartPending opens count empty pending appointments for the caller.
func (s *Service) StartPending(ctx context.Context, caller Caller, count int) (res *StartResult, err error) {
	ctx, end := s.begin(ctx, "start_pending", caller)
	defer end(&err)

	if count < 1 || count > MaxPendingPerCall {
		return nil, Fail(KindInvalidInput, fmt.Sprintf("I can start between 1 and %d appointments at a time.", MaxPendingPerCall), nil)
	}
	cc, err := s.load(ctx, caller)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx salon.Tx) error {
		customer, created, err := s.ensureCustomer(ctx, tx, cc, caller.CustomerPhone, "", "")
		if err != nil {
			return err
		}
		ids := make([]string, 0, count)
		for i := 0; i < count; i++ {
			appt, err := CreateBooking(ctx, tx, NewBooking{
				BusinessID: cc.business.ID,
				CustomerID: customer.ID,
				Catalog:    cc.catalog,
				Status:     salon.StatusPending,
			})
			if err != nil {
				return err
			}
			ids = append(ids, appt.ID)
		}
		msg := "I have started a new appointment for you."
		if count > 1 {
			msg = fmt.Sprintf("I have started %d new appointments for you.", count)
		}
		res = &StartResult{Message: msg, Count: count, AppointmentIDs: ids, NewCustomer: created}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// AddService links the named service to the caller's most recent pending appointment.
func (s *Service) AddService(ctx context.Context, caller Caller, serviceQuery string) (res *AddServiceResult, err error) {
	ctx, end := s.begin(ctx, "add_service", caller)
	defer end(&err)

	serviceQuery = strings.TrimSpace(serviceQuery)
	if serviceQuery == "" {
		return nil, Fail(KindInvalidInput, "Please specify which service you are asking about.", nil)
	}
	cc, err := s.load(ctx, caller)
	if err != nil {
		return nil, err
	}
	svc, ok := catalog.Match(serviceQuery, cc.catalog)
	if !ok {
		return &AddServiceResult{Message: fmt.Sprintf("I'm sorry, we don't offer a service called %q.", serviceQuery)}, nil
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx salon.Tx) error {
		pending, err := s.pendingFor(ctx, tx, cc, caller)
		if err != nil {
			return err
		}
		latest := pending[len(pending)-1]
		_, err = UpdateBooking(ctx, tx, cc.business.ID, latest.ID, Changes{
			ServiceIDs: []string{svc.ID},
			Mode:       ModeAppend,
			Catalog:    cc.catalog,
			EventType:  events.TypeAppointmentServiceAdd,
		})
		if err != nil && !errors.Is(err, ErrNoOp) {
			return err
		}
		res = &AddServiceResult{
			Found:         true,
			Message:       fmt.Sprintf("Yes, we offer %s.", svc.Name),
			ServiceID:     svc.ID,
			AppointmentID: latest.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

const notEnoughTechnicians = "We don't have enough unique technicians. Everyone qualified is already assigned to your other appointments."

// AssignTechnicians gives each pending appointment of the caller its own technician.
func (s *Service) AssignTechnicians(ctx context.Context, caller Caller) (res *AssignResult, err error) {
	ctx, end := s.begin(ctx, "assign_technicians", caller)
	defer end(&err)

	cc, err := s.load(ctx, caller)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx salon.Tx) error {
		pending, err := s.pendingFor(ctx, tx, cc, caller)
		if err != nil {
			return err
		}
		items := make([]availability.BatchItem, 0, len(pending))
		for _, a := range pending {
			items = append(items, availability.BatchItem{AppointmentID: a.ID, Start: a.Time, ServiceIDs: a.ServiceIDs})
		}
		outcomes, err := s.resolver.AssignBatch(ctx, tx, availability.BatchQuery{
			BusinessID:  cc.business.ID,
			Location:    cc.loc,
			Technicians: cc.technicians,
			Catalog:     cc.catalog,
			Items:       items,
		})
		if err != nil {
			return err
		}

		res = &AssignResult{Capable: true}
		var lines []string
		for i, o := range outcomes {
			a := Assignment{AppointmentID: o.AppointmentID, Reason: o.Reason, Message: o.Message}
			if o.Assigned() {
				a.Technician = &availability.Candidate{ID: o.Technician.ID, Name: o.Technician.Name()}
				_, err := UpdateBooking(ctx, tx, cc.business.ID, o.AppointmentID, Changes{
					TechnicianID: salon.StringPtr(o.Technician.ID),
					EventType:    events.TypeTechniciansAssigned,
				})
				if err != nil && !errors.Is(err, ErrNoOp) {
					return err
				}
			} else if o.Reason != availability.ReasonNoServices {
				res.Capable = false
			}
			res.Assignments = append(res.Assignments, a)
			lines = append(lines, batchLabel(i, len(outcomes))+o.Message)
		}
		res.Message = strings.Join(lines, " ")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ConfirmPending books every pending appointment of the caller at one time,
// each with a different technician. Either all are confirmed or none.
func (s *Service) ConfirmPending(ctx context.Context, caller Caller, req ConfirmRequest) (res *ConfirmResult, err error) {
	ctx, end := s.begin(ctx, "confirm_pending", caller)
	defer end(&err)

	cc, err := s.load(ctx, caller)
	if err != nil {
		return nil, err
	}
	at, err := s.parseFuture(cc, req.Time)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx salon.Tx) error {
		pending, err := s.pendingFor(ctx, tx, cc, caller)
		if err != nil {
			return err
		}

		used := make(map[string]bool)
		chosen := make([]salon.Technician, len(pending))
		for _, i := range pinnedFirst(pending) {
			a := pending[i]
			label := batchLabel(i, len(pending))
			selector := strings.TrimSpace(req.TechnicianID)
			if a.TechnicianID != nil {
				selector = *a.TechnicianID
			}
			if !availability.IsAnyone(selector) && used[selector] {
				return Fail(KindFullyBooked, label+notEnoughTechnicians, nil)
			}
			resolution := catalog.Resolution{
				MatchedServiceIDs:    a.ServiceIDs,
				Matched:              catalog.ByIDs(a.ServiceIDs, cc.catalog),
				TotalDurationMinutes: salon.DurationFor(a.ServiceIDs, cc.catalog),
			}
			q := s.query(cc, at, selector)
			q.Resolution = &resolution
			q.ExcludeAppointmentID = a.ID
			q.ExcludeTechnicians = used
			d, err := s.resolver.Check(ctx, tx, q)
			if err != nil {
				return err
			}
			s.metrics.ObserveUnavailable(string(d.Reason))
			if !d.Available {
				if len(used) > 0 && (d.Reason == availability.ReasonTechnicianNotFound || d.Reason == availability.ReasonNoQualifiedTechnician) &&
					len(availability.QualifiedTechnicians(cc.technicians, a.ServiceIDs)) > 0 {
					return Fail(KindFullyBooked, label+notEnoughTechnicians, nil)
				}
				f := unavailable(d)
				f.Message = label + f.Message
				return f
			}
			used[d.Technician.ID] = true
			chosen[i] = *d.Technician
		}

		active := salon.StatusActive
		res = &ConfirmResult{Success: true, BookedTimeUTC: salon.TimePtr(at)}
		names := make([]string, 0, len(pending))
		for i, a := range pending {
			if _, err := UpdateBooking(ctx, tx, cc.business.ID, a.ID, Changes{
				Time:         &at,
				TechnicianID: salon.StringPtr(chosen[i].ID),
				Status:       &active,
				Catalog:      cc.catalog,
				EventType:    events.TypeAppointmentsConfirmed,
			}); err != nil {
				return err
			}
			names = append(names, chosen[i].Name())
			res.Assignments = append(res.Assignments, Assignment{
				AppointmentID: a.ID,
				Technician:    &availability.Candidate{ID: chosen[i].ID, Name: chosen[i].Name()},
				Message:       fmt.Sprintf("Assigned %s.", chosen[i].Name()),
			})
		}
		spoken := tzbridge.FormatSpoken(at, cc.loc)
		if len(pending) == 1 {
			res.Message = fmt.Sprintf("Success. I have booked your appointment with %s for %s.", names[0], spoken)
		} else {
			res.Message = fmt.Sprintf("Success. I have booked your %d appointments for %s with %s.", len(pending), spoken, catalog.JoinSpoken(names))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// pinnedFirst orders appointment indexes so those already holding a
// technician claim them before the open ones pick from who is left.
func pinnedFirst(pending []salon.Appointment) []int {
	order := make([]int, 0, len(pending))
	for i, a := range pending {
		if a.TechnicianID != nil {
			order = append(order, i)
		}
	}
	for i, a := range pending {
		if a.TechnicianID == nil {
			order = append(order, i)
		}
	}
	return order
}

// ensureCustomer finds the caller or creates them.
func (s *Service) ensureCustomer(ctx context.Context, tx salon.Tx, cc *callContext, phone, first, last string) (*salon.Customer, bool, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, false, Fail(KindInvalidInput, "I couldn't get your phone number.", nil)
	}
	customer, err := tx.FindCustomer(ctx, cc.business.ID, phone)
	if err == nil {
		return customer, false, nil
	}
	if !errors.Is(err, salon.ErrCustomerNotFound) {
		return nil, false, err
	}
	customer = &salon.Customer{BusinessID: cc.business.ID, Phone: phone, FirstName: strings.TrimSpace(first), LastName: strings.TrimSpace(last)}
	if err := tx.CreateCustomer(ctx, customer); err != nil {
		return nil, false, err
	}
	if err := tx.EnqueueEvent(ctx, cc.business.ID, events.TypeCustomerCreated, customer); err != nil {
		return nil, false, err
	}
	s.logger.Info("customer created", "business_id", cc.business.ID, "customer_id", customer.ID)
	return customer, true, nil
}

// isLookupMiss reports whether err means the caller or appointment is absent,
// as opposed to the store failing.
func isLookupMiss(err error) bool {
	return errors.Is(err, salon.ErrCustomerNotFound) || errors.Is(err, salon.ErrAppointmentNotFound)
}

// rescheduledMinutes is the length to reserve after an edit. Unrecognized
// services hold the default length, and time already held for them is kept
// unless matched services replace the list.
func rescheduledMinutes(appt salon.Appointment, final []string, mode ServiceMode, requested catalog.Resolution, cat []salon.Service) int {
	if sameStrings(final, appt.ServiceIDs) && len(requested.Unmatched) == 0 {
		return appt.EffectiveDuration()
	}
	extra := salon.DefaultDurationMinutes * len(requested.Unmatched)
	if mode != ModeReplace || len(requested.MatchedServiceIDs) == 0 {
		extra += unlistedMinutes(appt, cat)
	}
	total := extra
	if len(final) > 0 {
		total += salon.DurationFor(final, cat)
	}
	if total <= 0 {
		return salon.DefaultDurationMinutes
	}
	return total
}

// unlistedMinutes is the part of the stored length not covered by the
// appointment's catalog services.
func unlistedMinutes(appt salon.Appointment, cat []salon.Service) int {
	if len(appt.ServiceIDs) == 0 {
		return 0
	}
	return max(0, appt.EffectiveDuration()-salon.DurationFor(appt.ServiceIDs, cat))
}

// findByTime locates the caller's live appointment at the instant.
func (s *Service) findByTime(ctx context.Context, tx salon.Tx, cc *callContext, caller Caller, at time.Time) (*salon.Appointment, error) {
	customer, err := tx.FindCustomer(ctx, cc.business.ID, strings.TrimSpace(caller.CustomerPhone))
	if err != nil {
		return nil, err
	}
	appt, err := tx.FindAppointmentByTime(ctx, cc.business.ID, customer.ID, at)
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, salon.ErrAppointmentNotFound
	}
	return appt, nil
}

// findByID loads an appointment and, when the caller is known, checks ownership.
func (s *Service) findByID(ctx context.Context, tx salon.Tx, cc *callContext, caller Caller, id string) (*salon.Appointment, error) {
	appt, err := tx.GetAppointment(ctx, cc.business.ID, id)
	if err != nil {
		return nil, err
	}
	if phone := strings.TrimSpace(caller.CustomerPhone); phone != "" {
		customer, err := tx.FindCustomer(ctx, cc.business.ID, phone)
		if err != nil {
			return nil, err
		}
		if customer.ID != appt.CustomerID {
			return nil, salon.ErrAppointmentNotFound
		}
	}
	return appt, nil
}

// pendingFor lists the caller's pending appointments, oldest first.
func (s *Service) pendingFor(ctx context.Context, tx salon.Tx, cc *callContext, caller Caller) ([]salon.Appointment, error) {
	const none = "You don't have any appointments in progress."
	customer, err := tx.FindCustomer(ctx, cc.business.ID, strings.TrimSpace(caller.CustomerPhone))
	if errors.Is(err, salon.ErrCustomerNotFound) {
		return nil, Fail(KindNotFound, none, err)
	}
	if err != nil {
		return nil, err
	}
	pending, err := tx.ListCustomerAppointments(ctx, cc.business.ID, customer.ID, salon.StatusPending)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, Fail(KindNotFound, none, nil)
	}
	return pending, nil
}

func (s *Service) view(cc *callContext, a salon.Appointment) AppointmentView {
	v := AppointmentView{
		ID:       a.ID,
		Status:   string(a.Status),
		TimeUTC:  a.Time,
		Services: serviceNames(a.ServiceIDs, cc.catalog),
	}
	if a.Time != nil {
		v.SpokenTime = tzbridge.FormatSpoken(*a.Time, cc.loc)
	}
	if a.TechnicianID != nil {
		v.TechnicianID = *a.TechnicianID
		if t, ok := findTechnician(cc.technicians, *a.TechnicianID); ok {
			v.Technician = t.Name()
		}
	}
	return v
}

func findTechnician(techs []salon.Technician, id string) (salon.Technician, bool) {
	for _, t := range techs {
		if t.ID == id {
			return t, true
		}
	}
	return salon.Technician{}, false
}

func serviceNames(ids []string, services []salon.Service) []string {
	matched := catalog.ByIDs(ids, services)
	out := make([]string, 0, len(matched))
	for _, s := range matched {
		out = append(out, s.Name)
	}
	return out
}

func batchLabel(i, total int) string {
	if total <= 1 {
		return ""
	}
	return fmt.Sprintf("Appt %d: ", i+1)
}

// unmatchedNote tells the caller which requested services are not on the menu.
func unmatchedNote(unmatched []string) string {
	if len(unmatched) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(unmatched))
	for _, u := range unmatched {
		quoted = append(quoted, fmt.Sprintf("%q", u))
	}
	return fmt.Sprintf(" We don't offer a service called %s, so I allowed an hour for it.", strings.Join(quoted, " or "))
}
