package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salon-voice-booking/internal/availability"
	"github.com/wolfman30/salon-voice-booking/internal/events"
	"github.com/wolfman30/salon-voice-booking/internal/observability/metrics"
	"github.com/wolfman30/salon-voice-booking/internal/salon"
	"github.com/wolfman30/salon-voice-booking/pkg/logging"
)

const (
	salonPhone    = "+15550000000"
	customerPhone = "+15551111111"
)

var la = mustLoad("America/Los_Angeles")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Monday 2030-01-07 on the salon's clock.
func monday(hour, minute int) time.Time {
	return time.Date(2030, 1, 7, hour, minute, 0, 0, la).UTC()
}

func weekdays(open, close string) salon.WeeklyHours {
	h := &salon.DayHours{Open: open, Close: close}
	return salon.WeeklyHours{Monday: h, Tuesday: h, Wednesday: h, Thursday: h, Friday: h}
}

var fixtureCatalog = []salon.Service{
	{ID: "mani", BusinessID: "biz", Name: "Manicure", DurationMinutes: 30},
	{ID: "pedi", BusinessID: "biz", Name: "Pedicure", DurationMinutes: 45},
	{ID: "lash", BusinessID: "biz", Name: "Lash Extensions", DurationMinutes: 120},
}

func newFixtureRepo() *salon.InMemoryRepository {
	repo := salon.NewInMemoryRepository(nil)
	repo.AddBusiness(salon.Business{ID: "biz", Name: "Polished", Phone: salonPhone, Timezone: "America/Los_Angeles"})
	for _, s := range fixtureCatalog {
		repo.AddService(s)
	}
	repo.AddTechnician(salon.Technician{ID: "t-zoe", BusinessID: "biz", FirstName: "Zoe", LastName: "Park", Skills: []string{"mani", "pedi"}, Schedule: weekdays("09:00", "17:00")})
	repo.AddTechnician(salon.Technician{ID: "t-ana", BusinessID: "biz", FirstName: "Ana", LastName: "Lee", Skills: []string{"mani", "pedi", "lash"}, Schedule: weekdays("10:00", "18:00")})
	repo.AddTechnician(salon.Technician{ID: "t-bo", BusinessID: "biz", FirstName: "Bo", LastName: "Kim", Skills: []string{"mani"}, Schedule: salon.WeeklyHours{Saturday: &salon.DayHours{Open: "09:00", Close: "15:00"}}})
	repo.AddCustomer(salon.Customer{ID: "c1", BusinessID: "biz", Phone: customerPhone, FirstName: "Mia"})
	return repo
}

func newTestService(store salon.Store) *Service {
	return NewService(store, logging.Discard()).
		WithClock(func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) })
}

var caller = Caller{BusinessPhone: salonPhone, CustomerPhone: customerPhone}

func pendingAppt(id string, created time.Time, services ...string) salon.Appointment {
	return salon.Appointment{
		ID: id, BusinessID: "biz", CustomerID: "c1", Status: salon.StatusPending,
		ServiceIDs: services, DurationMinutes: salon.DurationFor(services, fixtureCatalog), CreatedAt: created,
	}
}

func failureOf(t *testing.T, err error) *Failure {
	t.Helper()
	require.Error(t, err)
	f, ok := err.(*Failure)
	require.True(t, ok, "expected *Failure, got %T", err)
	return f
}

func TestCheckAvailabilityPicksFirstTechnicianByName(t *testing.T) {
	svc := newTestService(newFixtureRepo())

	res, err := svc.CheckAvailability(context.Background(), caller, AvailabilityRequest{
		Time: "2030-01-07T11:00:00", Services: []string{"manicure"}, TechnicianID: availability.Anyone,
	})
	require.NoError(t, err)
	assert.True(t, res.Available)
	require.NotNil(t, res.Technician)
	assert.Equal(t, "t-ana", res.Technician.ID)
	assert.Equal(t, "Yes, that time is available with Ana Lee.", res.Message)
	assert.Equal(t, 30, res.DurationMinutes)
	assert.True(t, res.RequestedTimeUTC.Equal(monday(11, 0)))
}

func TestCheckAvailabilityTechnicianOffThatDay(t *testing.T) {
	svc := newTestService(newFixtureRepo())

	res, err := svc.CheckAvailability(context.Background(), caller, AvailabilityRequest{
		Time: "2030-01-07T11:00:00", Services: []string{"manicure"}, TechnicianID: "t-bo",
	})
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, availability.ReasonOutsideWorkingHours, res.Reason)
	assert.Contains(t, res.Message, "Bo Kim doesn't work on Mondays")
	require.Len(t, res.RejectedSchedules, 1)
}

func TestCheckAvailabilityNotesUnmatchedServices(t *testing.T) {
	svc := newTestService(newFixtureRepo())

	res, err := svc.CheckAvailability(context.Background(), caller, AvailabilityRequest{
		Time: "2030-01-07T11:00:00", Services: []string{"manicure and balayage"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"balayage"}, res.UnmatchedServices)
	assert.Equal(t, 90, res.DurationMinutes)
	assert.Contains(t, res.Message, `"balayage"`)
}

func TestCheckAvailabilityRejectsBadInput(t *testing.T) {
	svc := newTestService(newFixtureRepo())
	ctx := context.Background()

	_, err := svc.CheckAvailability(ctx, caller, AvailabilityRequest{})
	f := failureOf(t, err)
	assert.Equal(t, KindInvalidInput, f.Kind)
	assert.Equal(t, "No time provided.", f.Message)

	_, err = svc.CheckAvailability(ctx, caller, AvailabilityRequest{Time: "next tuesday-ish"})
	assert.Equal(t, KindInvalidInput, KindOf(err))

	_, err = svc.CheckAvailability(ctx, caller, AvailabilityRequest{Time: "2029-12-01T11:00:00"})
	f = failureOf(t, err)
	assert.Equal(t, KindInvalidInput, f.Kind)
	assert.Equal(t, 400, f.HTTPStatus())
	assert.Contains(t, f.Message, "already passed")

	_, err = svc.CheckAvailability(ctx, Caller{BusinessPhone: "+19990000000"}, AvailabilityRequest{Time: "2030-01-07T11:00:00"})
	f = failureOf(t, err)
	assert.Equal(t, KindNotFound, f.Kind)
	assert.Equal(t, 404, f.HTTPStatus())
}

func TestCheckAvailabilityFallsBackFromInvalidTimezone(t *testing.T) {
	repo := newFixtureRepo()
	repo.AddBusiness(salon.Business{ID: "moon", Phone: "+15553333333", Timezone: "Mars/Olympus_Mons"})
	svc := newTestService(repo).WithDefaultTimezone("America/Los_Angeles")

	res, err := svc.CheckAvailability(context.Background(), Caller{BusinessPhone: "+15553333333"}, AvailabilityRequest{Time: "2030-01-07T11:00:00"})
	require.NoError(t, err)
	assert.True(t, res.RequestedTimeUTC.Equal(monday(11, 0)))
	assert.Equal(t, availability.ReasonTechnicianNotFound, res.Reason)
}

func TestBookCreatesCustomerAndAppointment(t *testing.T) {
	repo := newFixtureRepo()
	svc := newTestService(repo)
	newCaller := Caller{BusinessPhone: salonPhone, CustomerPhone: "+15552222222"}

	res, err := svc.Book(context.Background(), newCaller, BookRequest{
		Time: "2030-01-07T11:00:00", Services: []string{"Manicure"}, FirstName: "Lin", LastName: "Wu",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.NewCustomer)
	assert.Equal(t, "Success. I have booked your appointment with Ana Lee for Monday, January 7, 2030 at 11:00 AM PST.", res.Message)
	assert.Equal(t, []string{"Manicure"}, res.Services)

	stored, ok := repo.Appointment(res.AppointmentID)
	require.True(t, ok)
	assert.Equal(t, salon.StatusActive, stored.Status)
	assert.True(t, stored.AssignedTo("t-ana"))
	assert.Equal(t, []string{"mani"}, stored.ServiceIDs)
	assert.Equal(t, []string{events.TypeCustomerCreated, events.TypeAppointmentBooked}, repo.Outbox().Types())
}

func TestBookFullyBookedOffersAlternatives(t *testing.T) {
	repo := newFixtureRepo()
	repo.AddAppointment(activeAppt("a1", "t-ana", monday(11, 0), "mani"))
	svc := newTestService(repo)

	_, err := svc.Book(context.Background(), caller, BookRequest{
		Time: "2030-01-07T11:00:00", Services: []string{"manicure"}, TechnicianID: "t-ana",
	})
	f := failureOf(t, err)
	assert.Equal(t, KindFullyBooked, f.Kind)
	assert.Equal(t, 200, f.HTTPStatus())
	assert.Equal(t, "No, that time is already fully booked. Zoe Park is available at that time instead.", f.Message)
	assert.Equal(t, []availability.Candidate{{ID: "t-zoe", Name: "Zoe Park"}}, f.Details["alternative_technicians"])

	assert.Len(t, repo.Appointments("biz"), 1)
	assert.Equal(t, 0, repo.Outbox().Len())
}

func TestBookTwiceForSameTechnicianFails(t *testing.T) {
	repo := newFixtureRepo()
	svc := newTestService(repo)
	req := BookRequest{Time: "2030-01-07T11:00:00", Services: []string{"manicure"}, TechnicianID: "t-zoe"}

	_, err := svc.Book(context.Background(), caller, req)
	require.NoError(t, err)
	_, err = svc.Book(context.Background(), caller, req)
	assert.Equal(t, KindFullyBooked, KindOf(err))
	assert.Len(t, repo.Appointments("biz"), 1)
}

func TestBookHoldsDefaultLengthForUnknownService(t *testing.T) {
	repo := newFixtureRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	res, err := svc.Book(ctx, caller, BookRequest{
		Time: "2030-01-07T10:00:00", Services: []string{"manicure", "quantum haircut"}, TechnicianID: "t-zoe",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"quantum haircut"}, res.UnmatchedServices)
	stored, ok := repo.Appointment(res.AppointmentID)
	require.True(t, ok)
	assert.Equal(t, []string{"mani"}, stored.ServiceIDs)
	assert.Equal(t, 90, stored.DurationMinutes)

	_, err = svc.Book(ctx, caller, BookRequest{
		Time: "2030-01-07T10:30:00", Services: []string{"manicure"}, TechnicianID: "t-zoe",
	})
	assert.Equal(t, KindFullyBooked, KindOf(err))
	assert.Len(t, repo.Appointments("biz"), 1)
}

type slotTakenStore struct {
	*salon.InMemoryRepository
}

func (slotTakenStore) InTx(ctx context.Context, fn func(ctx context.Context, tx salon.Tx) error) error {
	return salon.ErrSlotTaken
}

func TestBookReportsConcurrentConflict(t *testing.T) {
	svc := newTestService(slotTakenStore{newFixtureRepo()})

	_, err := svc.Book(context.Background(), caller, BookRequest{Time: "2030-01-07T11:00:00"})
	f := failureOf(t, err)
	assert.Equal(t, KindConflict, f.Kind)
	assert.Equal(t, 409, f.HTTPStatus())
	assert.ErrorIs(t, err, ErrConflict)
}

func TestBookRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := newTestService(newFixtureRepo()).WithMetrics(metrics.NewBookingMetrics(reg))

	_, err := svc.Book(context.Background(), caller, BookRequest{Time: "2030-01-07T11:00:00"})
	require.NoError(t, err)
	_, err = svc.Book(context.Background(), caller, BookRequest{Time: "2030-01-07T11:00:00", TechnicianID: "t-bo"})
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "salon_booking_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = testutil.GatherAndCount(reg, "salon_booking_unavailable_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRescheduleMovesAppointment(t *testing.T) {
	repo := newFixtureRepo()
	repo.AddAppointment(activeAppt("a1", "t-ana", monday(11, 0), "mani"))
	svc := newTestService(repo)

	res, err := svc.Reschedule(context.Background(), caller, RescheduleRequest{
		CurrentTime: "2030-01-07T11:00:00", NewTime: "2030-01-07T14:00:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "Updated! Your Manicure is set for Monday, January 7, 2030 at 2:00 PM PST.", res.Message)

	stored, _ := repo.Appointment("a1")
	assert.True(t, stored.Time.Equal(monday(14, 0)))
	assert.True(t, stored.AssignedTo("t-ana"))
	assert.Equal(t, []string{events.TypeAppointmentChanged}, repo.Outbox().Types())
}

func TestRescheduleAppendsServicesWithoutSelfConflict(t *testing.T) {
	repo := newFixtureRepo()
	repo.AddAppointment(activeAppt("a1", "t-ana", monday(11, 0), "mani"))
	svc := newTestService(repo)

	res, err := svc.Reschedule(context.Background(), caller, RescheduleRequest{
		CurrentTime: "2030-01-07T11:00:00", NewServices: []string{"pedicure"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Updated! Your Manicure and Pedicure is set for Monday, January 7, 2030 at 11:00 AM PST.", res.Message)

	stored, _ := repo.Appointment("a1")
	assert.Equal(t, []string{"mani", "pedi"}, stored.ServiceIDs)
	assert.Equal(t, 75, stored.DurationMinutes)
}

func TestRescheduleReplaceServices(t *testing.T) {
	repo := newFixtureRepo()
	repo.AddAppointment(activeAppt("a1", "t-ana", monday(11, 0), "mani"))
	svc := newTestService(repo)

	_, err := svc.Reschedule(context.Background(), caller, RescheduleRequest{
		CurrentTime: "2030-01-07T11:00:00", NewServices: []string{"lash extensions"}, ServiceUpdateMode: "replace",
	})
	require.NoError(t, err)
	stored, _ := repo.Appointment("a1")
	assert.Equal(t, []string{"lash"}, stored.ServiceIDs)
	assert.Equal(t, 120, stored.DurationMinutes)
}

func TestRescheduleIntoBookedSlotLeavesAppointment(t *testing.T) {
	repo := newFixtureRepo()
	repo.AddAppointment(activeAppt("a1", "t-ana", monday(11, 0), "mani"))
	repo.AddAppointment(activeAppt("a2", "t-ana", monday(14, 0), "mani"))
	svc := newTestService(repo)

	_, err := svc.Reschedule(context.Background(), caller, RescheduleRequest{
		CurrentTime: "2030-01-07T11:00:00", NewTime: "2030-01-07T14:00:00",
	})
	f := failureOf(t, err)
	assert.Equal(t, KindFullyBooked, f.Kind)
	stored, _ := repo.Appointment("a1")
	assert.True(t, stored.Time.Equal(monday(11, 0)))
	assert.Equal(t, 0, repo.Outbox().Len())
}

func TestRescheduleNoChanges(t *testing.T) {
	repo := newFixtureRepo()
	repo.AddAppointment(activeAppt("a1", "t-ana", monday(11, 0), "mani"))
	svc := newTestService(repo)

	res, err := svc.Reschedule(context.Background(), caller, RescheduleRequest{
		CurrentTime: "2030-01-07T11:00:00", NewTime: "2030-01-07T11:00:00", NewTechnicianID: "t-ana",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "No changes were needed.", res.Message)
	assert.Equal(t, 0, repo.Outbox().Len())
}

func TestRescheduleKeepsTimeHeldForUnknownServices(t *testing.T) {
	repo := newFixtureRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	booked, err := svc.Book(ctx, caller, BookRequest{
		Time: "2030-01-07T10:00:00", Services: []string{"manicure", "quantum haircut"}, TechnicianID: "t-zoe",
	})
	require.NoError(t, err)
	repo.AddAppointment(activeAppt("a2", "t-zoe", monday(15, 0), "mani"))

	_, err = svc.Reschedule(ctx, caller, RescheduleRequest{CurrentTime: "2030-01-07T10:00:00", NewTime: "2030-01-07T14:00:00"})
	assert.Equal(t, KindFullyBooked, KindOf(err))

	_, err = svc.Reschedule(ctx, caller, RescheduleRequest{CurrentTime: "2030-01-07T10:00:00", NewTime: "2030-01-07T12:00:00"})
	require.NoError(t, err)
	stored, _ := repo.Appointment(booked.AppointmentID)
	assert.True(t, stored.Time.Equal(monday(12, 0)))
	assert.Equal(t, 90, stored.DurationMinutes)

	_, err = svc.Reschedule(ctx, caller, RescheduleRequest{CurrentTime: "2030-01-07T12:00:00", NewServices: []string{"pedicure"}})
	require.NoError(t, err)
	stored, _ = repo.Appointment(booked.AppointmentID)
	assert.Equal(t, []string{"mani", "pedi"}, stored.ServiceIDs)
	assert.Equal(t, 135, stored.DurationMinutes)

	_, err = svc.Reschedule(ctx, caller, RescheduleRequest{CurrentTime: "2030-01-07T12:00:00", NewServices: []string{"pedicure"}, ServiceUpdateMode: "replace"})
	require.NoError(t, err)
	stored, _ = repo.Appointment(booked.AppointmentID)
	assert.Equal(t, []string{"pedi"}, stored.ServiceIDs)
	assert.Equal(t, 45, stored.DurationMinutes)
}

func TestRescheduleValidation(t *testing.T) {
	svc := newTestService(newFixtureRepo())
	ctx := context.Background()

	_, err := svc.Reschedule(ctx, caller, RescheduleRequest{NewTime: "2030-01-07T11:00:00"})
	f := failureOf(t, err)
	assert.Equal(t, "I need to know which appointment time to update.", f.Message)

	_, err = svc.Reschedule(ctx, caller, RescheduleRequest{CurrentTime: "2030-01-07T11:00:00", ServiceUpdateMode: "merge"})
	assert.Equal(t, KindInvalidInput, KindOf(err))

	_, err = svc.Reschedule(ctx, caller, RescheduleRequest{CurrentTime: "2030-01-07T11:00:00", NewTime: "2030-01-07T12:00:00"})
	f = failureOf(t, err)
	assert.Equal(t, KindNotFound, f.Kind)
	assert.Equal(t, "I couldn't find an appointment at that time.", f.Message)
}

func TestCancelByTimeThenAgain(t *testing.T) {
	repo := newFixtureRepo()
	repo.AddAppointment(activeAppt("a1", "t-ana", monday(11, 0), "mani"))
	svc := newTestService(repo)
	ctx := context.Background()

	res, err := svc.Cancel(ctx, caller, CancelRequest{AppointmentTime: "2030-01-07T11:00:00"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "a1", res.AppointmentID)
	stored, _ := repo.Appointment("a1")
	assert.Equal(t, salon.StatusCancelled, stored.Status)

	_, err = svc.Cancel(ctx, caller, CancelRequest{AppointmentTime: "2030-01-07T11:00:00"})
	f := failureOf(t, err)
	assert.Equal(t, KindNotFound, f.Kind)
	assert.Equal(t, "No active appointment found at that time.", f.Message)

	_, err = svc.Cancel(ctx, caller, CancelRequest{AppointmentID: "a1"})
	f = failureOf(t, err)
	assert.Equal(t, KindNoOp, f.Kind)
	assert.Equal(t, 422, f.HTTPStatus())
	assert.Equal(t, []string{events.TypeAppointmentCancelled}, repo.Outbox().Types())
}

func TestCancelByIDChecksOwnership(t *testing.T) {
	repo := newFixtureRepo()
	repo.AddCustomer(salon.Customer{ID: "c2", BusinessID: "biz", Phone: "+15554444444"})
	repo.AddAppointment(activeAppt("a1", "t-ana", monday(11, 0), "mani"))
	svc := newTestService(repo)

	_, err := svc.Cancel(context.Background(), Caller{BusinessPhone: salonPhone, CustomerPhone: "+15554444444"}, CancelRequest{AppointmentID: "a1"})
	assert.Equal(t, KindNotFound, KindOf(err))
	stored, _ := repo.Appointment("a1")
	assert.Equal(t, salon.StatusActive, stored.Status)
}

type flakyLookupStore struct {
	*salon.InMemoryRepository
}

func (s flakyLookupStore) InTx(ctx context.Context, fn func(ctx context.Context, tx salon.Tx) error) error {
	return s.InMemoryRepository.InTx(ctx, func(ctx context.Context, tx salon.Tx) error {
		return fn(ctx, flakyLookupTx{tx})
	})
}

type flakyLookupTx struct {
	salon.Tx
}

func (flakyLookupTx) FindCustomer(context.Context, string, string) (*salon.Customer, error) {
	return nil, errors.New("connection reset by peer")
}

func TestLookupFailuresAreNotReportedAsMissing(t *testing.T) {
	repo := newFixtureRepo()
	repo.AddAppointment(activeAppt("a1", "t-ana", monday(11, 0), "mani"))
	svc := newTestService(flakyLookupStore{repo})
	ctx := context.Background()

	_, err := svc.Reschedule(ctx, caller, RescheduleRequest{CurrentTime: "2030-01-07T11:00:00", NewTime: "2030-01-07T14:00:00"})
	f := failureOf(t, err)
	assert.Equal(t, KindPersistence, f.Kind)
	assert.Equal(t, 500, f.HTTPStatus())
	assert.ErrorIs(t, err, ErrPersistence)

	_, err = svc.Cancel(ctx, caller, CancelRequest{AppointmentTime: "2030-01-07T11:00:00"})
	assert.Equal(t, KindPersistence, KindOf(err))

	_, err = svc.Cancel(ctx, caller, CancelRequest{AppointmentID: "a1"})
	assert.Equal(t, KindPersistence, KindOf(err))

	stored, _ := repo.Appointment("a1")
	assert.Equal(t, salon.StatusActive, stored.Status)
	assert.True(t, stored.Time.Equal(monday(11, 0)))
}

func TestListUpcoming(t *testing.T) {
	repo := newFixtureRepo()
	tuesday := time.Date(2030, 1, 8, 10, 0, 0, 0, la).UTC()
	repo.AddAppointment(activeAppt("a2", "t-zoe", tuesday, "pedi"))
	repo.AddAppointment(activeAppt("a1", "t-ana", monday(11, 0), "mani"))
	cancelled := activeAppt("a0", "t-ana", monday(9, 0), "mani")
	cancelled.Status = salon.StatusCancelled
	repo.AddAppointment(cancelled)
	svc := newTestService(repo)

	res, err := svc.ListUpcoming(context.Background(), caller)
	require.NoError(t, err)
	assert.True(t, res.Found)
	require.Len(t, res.Appointments, 2)
	assert.Equal(t, "a1", res.Appointments[0].ID)
	assert.Equal(t, "Found 2 appointment(s). The first one is for Manicure with Ana Lee on Monday, January 7, 2030 at 11:00 AM PST.", res.Message)

	res, err = svc.ListUpcoming(context.Background(), Caller{BusinessPhone: salonPhone, CustomerPhone: "+15550001111"})
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, "You don't have any active upcoming appointments.", res.Message)
}

func TestStartPending(t *testing.T) {
	repo := newFixtureRepo()
	svc := newTestService(repo)

	res, err := svc.StartPending(context.Background(), Caller{BusinessPhone: salonPhone, CustomerPhone: "+15557777777"}, 2)
	require.NoError(t, err)
	assert.Equal(t, "I have started 2 new appointments for you.", res.Message)
	assert.True(t, res.NewCustomer)
	require.Len(t, res.AppointmentIDs, 2)
	for _, id := range res.AppointmentIDs {
		stored, ok := repo.Appointment(id)
		require.True(t, ok)
		assert.Equal(t, salon.StatusPending, stored.Status)
	}
	assert.Equal(t, []string{events.TypeCustomerCreated, events.TypeAppointmentStarted, events.TypeAppointmentStarted}, repo.Outbox().Types())

	res, err = svc.StartPending(context.Background(), caller, 1)
	require.NoError(t, err)
	assert.Equal(t, "I have started a new appointment for you.", res.Message)
	assert.False(t, res.NewCustomer)

	_, err = svc.StartPending(context.Background(), caller, 0)
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestAddServiceTargetsLatestPending(t *testing.T) {
	repo := newFixtureRepo()
	created := time.Date(2029, 12, 31, 12, 0, 0, 0, time.UTC)
	repo.AddAppointment(pendingAppt("p1", created, "mani"))
	repo.AddAppointment(pendingAppt("p2", created.Add(time.Minute)))
	svc := newTestService(repo)

	res, err := svc.AddService(context.Background(), caller, "pedicures")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, "Yes, we offer Pedicure.", res.Message)
	assert.Equal(t, "p2", res.AppointmentID)

	p1, _ := repo.Appointment("p1")
	p2, _ := repo.Appointment("p2")
	assert.Equal(t, []string{"mani"}, p1.ServiceIDs)
	assert.Equal(t, []string{"pedi"}, p2.ServiceIDs)
	assert.Equal(t, []string{events.TypeAppointmentServiceAdd}, repo.Outbox().Types())
}

func TestAddServiceUnknownAndMissingPending(t *testing.T) {
	repo := newFixtureRepo()
	svc := newTestService(repo)

	res, err := svc.AddService(context.Background(), caller, "Balayage")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, `I'm sorry, we don't offer a service called "Balayage".`, res.Message)

	_, err = svc.AddService(context.Background(), caller, "manicure")
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = svc.AddService(context.Background(), caller, " ")
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestAssignTechniciansGivesDistinctTechnicians(t *testing.T) {
	repo := newFixtureRepo()
	created := time.Date(2029, 12, 31, 12, 0, 0, 0, time.UTC)
	repo.AddAppointment(pendingAppt("p1", created, "mani"))
	repo.AddAppointment(pendingAppt("p2", created.Add(time.Minute), "mani"))
	repo.AddAppointment(pendingAppt("p3", created.Add(2*time.Minute)))
	svc := newTestService(repo)

	res, err := svc.AssignTechnicians(context.Background(), caller)
	require.NoError(t, err)
	assert.True(t, res.Capable)
	assert.Equal(t, "Appt 1: Assigned Ana Lee. Appt 2: Assigned Bo Kim. Appt 3: No services listed.", res.Message)

	p1, _ := repo.Appointment("p1")
	p2, _ := repo.Appointment("p2")
	p3, _ := repo.Appointment("p3")
	assert.True(t, p1.AssignedTo("t-ana"))
	assert.True(t, p2.AssignedTo("t-bo"))
	assert.Nil(t, p3.TechnicianID)
	assert.Equal(t, salon.StatusPending, p1.Status)
	assert.Equal(t, []string{events.TypeTechniciansAssigned, events.TypeTechniciansAssigned}, repo.Outbox().Types())
}

func TestAssignTechniciansRunsOutOfTechnicians(t *testing.T) {
	repo := newFixtureRepo()
	created := time.Date(2029, 12, 31, 12, 0, 0, 0, time.UTC)
	repo.AddAppointment(pendingAppt("p1", created, "lash"))
	repo.AddAppointment(pendingAppt("p2", created.Add(time.Minute), "lash"))
	svc := newTestService(repo)

	res, err := svc.AssignTechnicians(context.Background(), caller)
	require.NoError(t, err)
	assert.False(t, res.Capable)
	require.Len(t, res.Assignments, 2)
	assert.Equal(t, availability.ReasonNotEnoughTechnicians, res.Assignments[1].Reason)
}

func TestConfirmPendingBooksAllAtOnce(t *testing.T) {
	repo := newFixtureRepo()
	created := time.Date(2029, 12, 31, 12, 0, 0, 0, time.UTC)
	repo.AddAppointment(pendingAppt("p1", created, "mani"))
	repo.AddAppointment(pendingAppt("p2", created.Add(time.Minute), "pedi"))
	svc := newTestService(repo)

	res, err := svc.ConfirmPending(context.Background(), caller, ConfirmRequest{Time: "2030-01-07T11:00:00"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Success. I have booked your 2 appointments for Monday, January 7, 2030 at 11:00 AM PST with Ana Lee and Zoe Park.", res.Message)

	p1, _ := repo.Appointment("p1")
	p2, _ := repo.Appointment("p2")
	assert.Equal(t, salon.StatusActive, p1.Status)
	assert.Equal(t, salon.StatusActive, p2.Status)
	assert.True(t, p1.AssignedTo("t-ana"))
	assert.True(t, p2.AssignedTo("t-zoe"))
	assert.True(t, p2.Time.Equal(monday(11, 0)))
	assert.Equal(t, []string{events.TypeAppointmentsConfirmed, events.TypeAppointmentsConfirmed}, repo.Outbox().Types())
}

func TestConfirmPendingIsAllOrNothing(t *testing.T) {
	repo := newFixtureRepo()
	created := time.Date(2029, 12, 31, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"p1", "p2", "p3"} {
		repo.AddAppointment(pendingAppt(id, created.Add(time.Duration(i)*time.Minute), "mani"))
	}
	svc := newTestService(repo)

	_, err := svc.ConfirmPending(context.Background(), caller, ConfirmRequest{Time: "2030-01-07T11:00:00"})
	f := failureOf(t, err)
	assert.Equal(t, KindOutsideWorkingHours, f.Kind)
	assert.Contains(t, f.Message, "Appt 3: ")

	for _, id := range []string{"p1", "p2", "p3"} {
		stored, _ := repo.Appointment(id)
		assert.Equal(t, salon.StatusPending, stored.Status, id)
		assert.Nil(t, stored.TechnicianID, id)
	}
	assert.Equal(t, 0, repo.Outbox().Len())
}

func TestConfirmPendingHonoursAssignedTechnicians(t *testing.T) {
	repo := newFixtureRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	started, err := svc.StartPending(ctx, caller, 2)
	require.NoError(t, err)
	require.Len(t, started.AppointmentIDs, 2)
	added, err := svc.AddService(ctx, caller, "lash")
	require.NoError(t, err)
	assert.Equal(t, started.AppointmentIDs[1], added.AppointmentID)

	assigned, err := svc.AssignTechnicians(ctx, caller)
	require.NoError(t, err)
	assert.Equal(t, "Appt 1: No services listed. Appt 2: Assigned Ana Lee.", assigned.Message)

	res, err := svc.ConfirmPending(ctx, caller, ConfirmRequest{Time: "2030-01-07T11:00:00", TechnicianID: availability.Anyone})
	require.NoError(t, err)
	assert.Equal(t, "Success. I have booked your 2 appointments for Monday, January 7, 2030 at 11:00 AM PST with Zoe Park and Ana Lee.", res.Message)

	first, _ := repo.Appointment(started.AppointmentIDs[0])
	second, _ := repo.Appointment(started.AppointmentIDs[1])
	assert.True(t, first.AssignedTo("t-zoe"))
	assert.True(t, second.AssignedTo("t-ana"))
	assert.Equal(t, salon.StatusActive, first.Status)
	assert.Equal(t, salon.StatusActive, second.Status)
}

func TestConfirmPendingWithoutPending(t *testing.T) {
	svc := newTestService(newFixtureRepo())
	_, err := svc.ConfirmPending(context.Background(), caller, ConfirmRequest{Time: "2030-01-07T11:00:00"})
	f := failureOf(t, err)
	assert.Equal(t, KindNotFound, f.Kind)
	assert.Equal(t, "You don't have any appointments in progress.", f.Message)
}
