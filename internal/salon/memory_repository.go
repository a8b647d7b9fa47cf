package salon

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/salon-voice-booking/internal/events"
)

// InMemoryRepository is a Store for local development and tests. Transactions
// are serialized by a mutex and rolled back by restoring a snapshot.
type InMemoryRepository struct {
	dirMu       sync.RWMutex
	businesses  map[string]Business // by ID
	phones      map[string]string   // phone -> business ID
	technicians map[string][]Technician
	services    map[string][]Service

	txMu         sync.Mutex
	customers    map[string]Customer
	appointments map[string]Appointment
	outbox       *events.MemoryOutbox
	now          func() time.Time
	lastCreated  time.Time
}

// NewInMemoryRepository creates an empty store. A nil outbox gets a private one.
func NewInMemoryRepository(outbox *events.MemoryOutbox) *InMemoryRepository {
	if outbox == nil {
		outbox = events.NewMemoryOutbox()
	}
	return &InMemoryRepository{
		businesses:   make(map[string]Business),
		phones:       make(map[string]string),
		technicians:  make(map[string][]Technician),
		services:     make(map[string][]Service),
		customers:    make(map[string]Customer),
		appointments: make(map[string]Appointment),
		outbox:       outbox,
		now:          time.Now,
	}
}

// Outbox exposes the events written by committed transactions.
func (r *InMemoryRepository) Outbox() *events.MemoryOutbox {
	return r.outbox
}

func (r *InMemoryRepository) AddBusiness(b Business) {
	r.dirMu.Lock()
	defer r.dirMu.Unlock()
	r.businesses[b.ID] = b
	r.phones[b.Phone] = b.ID
}

func (r *InMemoryRepository) AddTechnician(t Technician) {
	r.dirMu.Lock()
	defer r.dirMu.Unlock()
	t.Skills = append([]string(nil), t.Skills...)
	r.technicians[t.BusinessID] = append(r.technicians[t.BusinessID], t)
}

func (r *InMemoryRepository) AddService(s Service) {
	r.dirMu.Lock()
	defer r.dirMu.Unlock()
	r.services[s.BusinessID] = append(r.services[s.BusinessID], s)
}

func (r *InMemoryRepository) AddCustomer(c Customer) {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.customers[c.ID] = c
}

// AddAppointment seeds a row without overlap checks.
func (r *InMemoryRepository) AddAppointment(a Appointment) {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.stamp()
	}
	r.appointments[a.ID] = a.Clone()
}

// stamp returns a creation time after every earlier one, so rows inserted in
// one transaction keep their order. Callers hold txMu.
func (r *InMemoryRepository) stamp() time.Time {
	ts := r.now().UTC()
	if !ts.After(r.lastCreated) {
		ts = r.lastCreated.Add(time.Microsecond)
	}
	r.lastCreated = ts
	return ts
}

// Appointment returns a copy of a stored row.
func (r *InMemoryRepository) Appointment(id string) (Appointment, bool) {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return Appointment{}, false
	}
	return a.Clone(), true
}

// Appointments returns every row of the business ordered by creation.
func (r *InMemoryRepository) Appointments(businessID string) []Appointment {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.BusinessID == businessID {
			out = append(out, a.Clone())
		}
	}
	sortByCreated(out)
	return out
}

func (r *InMemoryRepository) BusinessByPhone(ctx context.Context, phone string) (*Business, error) {
	r.dirMu.RLock()
	defer r.dirMu.RUnlock()
	id, ok := r.phones[phone]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	b := r.businesses[id]
	return &b, nil
}

func (r *InMemoryRepository) ListTechnicians(ctx context.Context, businessID string) ([]Technician, error) {
	r.dirMu.RLock()
	defer r.dirMu.RUnlock()
	src := r.technicians[businessID]
	out := make([]Technician, len(src))
	copy(out, src)
	return out, nil
}

func (r *InMemoryRepository) ListServices(ctx context.Context, businessID string) ([]Service, error) {
	r.dirMu.RLock()
	defer r.dirMu.RUnlock()
	src := r.services[businessID]
	out := make([]Service, len(src))
	copy(out, src)
	return out, nil
}

func (r *InMemoryRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.txMu.Lock()
	defer r.txMu.Unlock()

	customers := make(map[string]Customer, len(r.customers))
	for k, v := range r.customers {
		customers[k] = v
	}
	appointments := make(map[string]Appointment, len(r.appointments))
	for k, v := range r.appointments {
		appointments[k] = v.Clone()
	}
	outboxLen := r.outbox.Len()

	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.customers = customers
		r.appointments = appointments
		r.outbox.Truncate(outboxLen)
		return err
	}
	return nil
}

// memoryTx operates on the repository while InTx holds txMu.
type memoryTx struct {
	repo *InMemoryRepository
}

func (t *memoryTx) FindCustomer(ctx context.Context, businessID, phone string) (*Customer, error) {
	for _, c := range t.repo.customers {
		if c.BusinessID == businessID && c.Phone == phone {
			out := c
			return &out, nil
		}
	}
	return nil, ErrCustomerNotFound
}

func (t *memoryTx) CreateCustomer(ctx context.Context, customer *Customer) error {
	if customer == nil {
		return fmt.Errorf("salon: customer required")
	}
	if _, err := t.FindCustomer(ctx, customer.BusinessID, customer.Phone); err == nil {
		return fmt.Errorf("salon: customer %s already exists", customer.Phone)
	}
	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}
	t.repo.customers[customer.ID] = *customer
	return nil
}

func (t *memoryTx) ListActiveAppointments(ctx context.Context, businessID string, technicianIDs []string, from time.Time) ([]Appointment, error) {
	wanted := make(map[string]bool, len(technicianIDs))
	for _, id := range technicianIDs {
		wanted[id] = true
	}
	var out []Appointment
	for _, a := range t.repo.appointments {
		if a.BusinessID != businessID || a.Status != StatusActive || a.Time == nil || a.TechnicianID == nil {
			continue
		}
		if a.Time.Before(from) {
			continue
		}
		if len(wanted) > 0 && !wanted[*a.TechnicianID] {
			continue
		}
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(*out[j].Time) })
	return out, nil
}

func (t *memoryTx) GetAppointment(ctx context.Context, businessID, id string) (*Appointment, error) {
	a, ok := t.repo.appointments[id]
	if !ok || a.BusinessID != businessID {
		return nil, ErrAppointmentNotFound
	}
	out := a.Clone()
	return &out, nil
}

func (t *memoryTx) FindAppointmentByTime(ctx context.Context, businessID, customerID string, at time.Time) (*Appointment, error) {
	var best *Appointment
	for _, a := range t.repo.appointments {
		if a.BusinessID != businessID || a.CustomerID != customerID || a.Time == nil || !a.Time.Equal(at) {
			continue
		}
		if best == nil || statusRank(a.Status) < statusRank(best.Status) ||
			(statusRank(a.Status) == statusRank(best.Status) && a.CreatedAt.After(best.CreatedAt)) {
			c := a.Clone()
			best = &c
		}
	}
	if best == nil {
		return nil, ErrAppointmentNotFound
	}
	return best, nil
}

func (t *memoryTx) ListCustomerAppointments(ctx context.Context, businessID, customerID string, status Status) ([]Appointment, error) {
	var out []Appointment
	for _, a := range t.repo.appointments {
		if a.BusinessID == businessID && a.CustomerID == customerID && a.Status == status {
			out = append(out, a.Clone())
		}
	}
	sortByCreated(out)
	return out, nil
}

func (t *memoryTx) InsertAppointment(ctx context.Context, appt *Appointment) error {
	if appt == nil {
		return fmt.Errorf("salon: appointment required")
	}
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = t.repo.stamp()
	}
	if err := t.checkOverlap(*appt); err != nil {
		return err
	}
	stored := appt.Clone()
	stored.ServiceIDs = nil // links are written by ReplaceServices
	t.repo.appointments[appt.ID] = stored
	return nil
}

func (t *memoryTx) UpdateAppointment(ctx context.Context, appt *Appointment) error {
	if appt == nil {
		return fmt.Errorf("salon: appointment required")
	}
	existing, ok := t.repo.appointments[appt.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	if err := t.checkOverlap(*appt); err != nil {
		return err
	}
	updated := appt.Clone()
	updated.ServiceIDs = existing.ServiceIDs
	updated.CreatedAt = existing.CreatedAt
	t.repo.appointments[appt.ID] = updated
	return nil
}

func (t *memoryTx) ReplaceServices(ctx context.Context, appointmentID string, serviceIDs []string) error {
	a, ok := t.repo.appointments[appointmentID]
	if !ok {
		return fmt.Errorf("%w: appointment %s missing", ErrServiceLink, appointmentID)
	}
	t.repo.dirMu.RLock()
	known := make(map[string]bool)
	for _, s := range t.repo.services[a.BusinessID] {
		known[s.ID] = true
	}
	t.repo.dirMu.RUnlock()
	for _, id := range serviceIDs {
		if !known[id] {
			return fmt.Errorf("%w: unknown service %s", ErrServiceLink, id)
		}
	}
	a.ServiceIDs = append([]string(nil), serviceIDs...)
	t.repo.appointments[appointmentID] = a
	return nil
}

func (t *memoryTx) EnqueueEvent(ctx context.Context, businessID, eventType string, payload any) error {
	_, err := t.repo.outbox.Insert(ctx, businessID, eventType, payload)
	return err
}

// checkOverlap mirrors the database exclusion constraint on active rows.
func (t *memoryTx) checkOverlap(appt Appointment) error {
	if appt.Status != StatusActive || appt.Time == nil || appt.TechnicianID == nil {
		return nil
	}
	start, end := *appt.Time, appt.End()
	for _, other := range t.repo.appointments {
		if other.ID == appt.ID || other.Status != StatusActive || other.Time == nil || !other.AssignedTo(*appt.TechnicianID) {
			continue
		}
		if start.Before(other.End()) && other.Time.Before(end) {
			return ErrSlotTaken
		}
	}
	return nil
}

func statusRank(s Status) int {
	switch s {
	case StatusActive:
		return 0
	case StatusPending:
		return 1
	default:
		return 2
	}
}

func sortByCreated(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if appts[i].CreatedAt.Equal(appts[j].CreatedAt) {
			return appts[i].ID < appts[j].ID
		}
		return appts[i].CreatedAt.Before(appts[j].CreatedAt)
	})
}
