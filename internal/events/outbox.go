// Package events records booking events in a transactional outbox and relays
// them to downstream transports.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Booking event types.
const (
	TypeAppointmentBooked     = "salon.appointment.booked.v1"
	TypeAppointmentChanged    = "salon.appointment.changed.v1"
	TypeAppointmentCancelled  = "salon.appointment.cancelled.v1"
	TypeAppointmentStarted    = "salon.appointment.started.v1"
	TypeAppointmentServiceAdd = "salon.appointment.service_added.v1"
	TypeTechniciansAssigned   = "salon.appointment.technicians_assigned.v1"
	TypeAppointmentsConfirmed = "salon.appointment.confirmed.v1"
	TypeCustomerCreated       = "salon.customer.created.v1"
)

// OutboxEntry represents a pending event.
type OutboxEntry struct {
	ID         uuid.UUID       `json:"id"`
	BusinessID string          `json:"business_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

// Outbox is the read side the Deliverer drains.
type Outbox interface {
	FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
}

// Execer is satisfied by pgx pools, connections and transactions.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type db interface {
	Execer
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const insertOutboxSQL = `
	INSERT INTO outbox (id, business_id, type, payload)
	VALUES ($1, $2, $3, $4)
`

// Append writes an event through exec, which is normally the caller's open
// transaction so the event commits with the change it describes.
func Append(ctx context.Context, exec Execer, businessID, eventType string, payload any) (uuid.UUID, error) {
	if exec == nil {
		return uuid.Nil, fmt.Errorf("events: exec required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal payload: %w", err)
	}
	id := uuid.New()
	if _, err := exec.Exec(ctx, insertOutboxSQL, id, businessID, eventType, data); err != nil {
		return uuid.Nil, fmt.Errorf("events: insert outbox: %w", err)
	}
	return id, nil
}

// OutboxStore persists events for reliable delivery.
type OutboxStore struct {
	db db
}

// NewOutboxStore accepts a *pgxpool.Pool or anything with the same Exec/Query surface.
func NewOutboxStore(pool db) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: pool}
}

func (s *OutboxStore) Insert(ctx context.Context, businessID, eventType string, payload any) (uuid.UUID, error) {
	return Append(ctx, s.db, businessID, eventType, payload)
}

func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	query := `
		SELECT id, business_id, type, payload, created_at
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.BusinessID, &entry.Type, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}
