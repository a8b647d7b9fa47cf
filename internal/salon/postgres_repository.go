package salon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/salon-voice-booking/internal/events"
)

// Postgres error codes the store translates.
const (
	pgSerializationFailure = "40001"
	pgExclusionViolation   = "23P01"
	pgForeignKeyViolation  = "23503"
)

// PgxDB is the pgx surface the repository uses; *pgxpool.Pool satisfies it.
type PgxDB interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores salons, customers and appointments in Postgres.
type PostgresRepository struct {
	db PgxDB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(db PgxDB) *PostgresRepository {
	if db == nil {
		panic("salon: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) BusinessByPhone(ctx context.Context, phone string) (*Business, error) {
	query := `
		SELECT id::text, name, phone, timezone, hours
		FROM businesses
		WHERE phone = $1
	`
	var b Business
	var hours []byte
	if err := r.db.QueryRow(ctx, query, phone).Scan(&b.ID, &b.Name, &b.Phone, &b.Timezone, &hours); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBusinessNotFound
		}
		return nil, fmt.Errorf("salon: select business: %w", err)
	}
	if err := decodeHours(hours, &b.Hours); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *PostgresRepository) ListTechnicians(ctx context.Context, businessID string) ([]Technician, error) {
	query := `
		SELECT t.id::text, t.business_id::text, t.first_name, t.last_name, t.schedule,
			COALESCE(array_agg(ts.service_id::text ORDER BY ts.service_id) FILTER (WHERE ts.service_id IS NOT NULL), '{}')
		FROM technicians t
		LEFT JOIN technician_services ts ON ts.technician_id = t.id
		WHERE t.business_id = $1
		GROUP BY t.id
		ORDER BY t.first_name, t.last_name, t.id
	`
	rows, err := r.db.Query(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("salon: list technicians: %w", err)
	}
	defer rows.Close()

	var out []Technician
	for rows.Next() {
		var t Technician
		var schedule []byte
		if err := rows.Scan(&t.ID, &t.BusinessID, &t.FirstName, &t.LastName, &schedule, &t.Skills); err != nil {
			return nil, fmt.Errorf("salon: scan technician: %w", err)
		}
		if err := decodeHours(schedule, &t.Schedule); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListServices(ctx context.Context, businessID string) ([]Service, error) {
	query := `
		SELECT id::text, business_id::text, name, duration_minutes, price_cents
		FROM services
		WHERE business_id = $1
		ORDER BY name, id
	`
	rows, err := r.db.Query(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("salon: list services: %w", err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.Name, &s.DurationMinutes, &s.PriceCents); err != nil {
			return nil, fmt.Errorf("salon: scan service: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InTx runs fn in a serializable transaction. Serialization failures and
// exclusion violations surface as ErrSlotTaken.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("salon: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("salon: commit: %w", err))
	}
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) FindCustomer(ctx context.Context, businessID, phone string) (*Customer, error) {
	query := `
		SELECT id::text, business_id::text, phone, first_name, last_name
		FROM customers
		WHERE business_id = $1 AND phone = $2
	`
	var c Customer
	if err := t.tx.QueryRow(ctx, query, businessID, phone).Scan(&c.ID, &c.BusinessID, &c.Phone, &c.FirstName, &c.LastName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("salon: select customer: %w", err)
	}
	return &c, nil
}

func (t *postgresTx) CreateCustomer(ctx context.Context, customer *Customer) error {
	query := `
		INSERT INTO customers (business_id, phone, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text
	`
	if err := t.tx.QueryRow(ctx, query, customer.BusinessID, customer.Phone, customer.FirstName, customer.LastName).Scan(&customer.ID); err != nil {
		return fmt.Errorf("salon: insert customer: %w", err)
	}
	return nil
}

const appointmentColumns = `
	a.id::text, a.business_id::text, a.customer_id::text, a.technician_id::text, a.time,
	a.status, a.duration_minutes, a.created_at,
	COALESCE(array_agg(s.service_id::text ORDER BY s.position) FILTER (WHERE s.service_id IS NOT NULL), '{}')
`

func (t *postgresTx) ListActiveAppointments(ctx context.Context, businessID string, technicianIDs []string, from time.Time) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments a
		LEFT JOIN appointment_services s ON s.appointment_id = a.id
		WHERE a.business_id = $1
			AND a.status = 'active'
			AND a.technician_id IS NOT NULL
			AND a.time >= $2
			AND (cardinality($3::text[]) = 0 OR a.technician_id::text = ANY($3::text[]))
		GROUP BY a.id
		ORDER BY a.time
	`
	if technicianIDs == nil {
		technicianIDs = []string{}
	}
	return t.queryAppointments(ctx, query, businessID, from.UTC(), technicianIDs)
}

func (t *postgresTx) GetAppointment(ctx context.Context, businessID, id string) (*Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments a
		LEFT JOIN appointment_services s ON s.appointment_id = a.id
		WHERE a.business_id = $1 AND a.id::text = $2
		GROUP BY a.id
	`
	return t.queryOne(ctx, query, businessID, id)
}

func (t *postgresTx) FindAppointmentByTime(ctx context.Context, businessID, customerID string, at time.Time) (*Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments a
		LEFT JOIN appointment_services s ON s.appointment_id = a.id
		WHERE a.business_id = $1 AND a.customer_id::text = $2 AND a.time = $3
		GROUP BY a.id
		ORDER BY CASE a.status WHEN 'active' THEN 0 WHEN 'pending' THEN 1 ELSE 2 END, a.created_at DESC
		LIMIT 1
	`
	return t.queryOne(ctx, query, businessID, customerID, at.UTC())
}

func (t *postgresTx) ListCustomerAppointments(ctx context.Context, businessID, customerID string, status Status) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments a
		LEFT JOIN appointment_services s ON s.appointment_id = a.id
		WHERE a.business_id = $1 AND a.customer_id::text = $2 AND a.status = $3
		GROUP BY a.id
		ORDER BY a.created_at, a.id
	`
	return t.queryAppointments(ctx, query, businessID, customerID, string(status))
}

func (t *postgresTx) InsertAppointment(ctx context.Context, appt *Appointment) error {
	query := `
		INSERT INTO appointments (business_id, customer_id, technician_id, time, status, duration_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id::text, created_at
	`
	err := t.tx.QueryRow(ctx, query,
		appt.BusinessID,
		appt.CustomerID,
		appt.TechnicianID,
		utcPtr(appt.Time),
		string(appt.Status),
		appt.DurationMinutes,
	).Scan(&appt.ID, &appt.CreatedAt)
	if err != nil {
		return mapPgError(fmt.Errorf("salon: insert appointment: %w", err))
	}
	return nil
}

func (t *postgresTx) UpdateAppointment(ctx context.Context, appt *Appointment) error {
	query := `
		UPDATE appointments
		SET technician_id = $3, time = $4, status = $5, duration_minutes = $6, updated_at = now()
		WHERE business_id = $1 AND id::text = $2
	`
	ct, err := t.tx.Exec(ctx, query,
		appt.BusinessID,
		appt.ID,
		appt.TechnicianID,
		utcPtr(appt.Time),
		string(appt.Status),
		appt.DurationMinutes,
	)
	if err != nil {
		return mapPgError(fmt.Errorf("salon: update appointment: %w", err))
	}
	if ct.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (t *postgresTx) ReplaceServices(ctx context.Context, appointmentID string, serviceIDs []string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM appointment_services WHERE appointment_id::text = $1`, appointmentID); err != nil {
		return fmt.Errorf("%w: clear links: %v", ErrServiceLink, err)
	}
	for i, id := range serviceIDs {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO appointment_services (appointment_id, service_id, position)
			VALUES ($1, $2, $3)
		`, appointmentID, id, i)
		if err != nil {
			return fmt.Errorf("%w: link %s: %v", ErrServiceLink, id, err)
		}
	}
	return nil
}

func (t *postgresTx) EnqueueEvent(ctx context.Context, businessID, eventType string, payload any) error {
	_, err := events.Append(ctx, t.tx, businessID, eventType, payload)
	return err
}

func (t *postgresTx) queryOne(ctx context.Context, query string, args ...any) (*Appointment, error) {
	appts, err := t.queryAppointments(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(appts) == 0 {
		return nil, ErrAppointmentNotFound
	}
	return &appts[0], nil
}

func (t *postgresTx) queryAppointments(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(fmt.Errorf("salon: select appointments: %w", err))
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		var a Appointment
		var status string
		if err := rows.Scan(
			&a.ID,
			&a.BusinessID,
			&a.CustomerID,
			&a.TechnicianID,
			&a.Time,
			&status,
			&a.DurationMinutes,
			&a.CreatedAt,
			&a.ServiceIDs,
		); err != nil {
			return nil, fmt.Errorf("salon: scan appointment: %w", err)
		}
		a.Status = Status(status)
		if a.Time != nil {
			a.Time = TimePtr(*a.Time)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

// mapPgError translates constraint and isolation failures into domain errors.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgSerializationFailure, pgExclusionViolation:
		return fmt.Errorf("%w: %v", ErrSlotTaken, err)
	case pgForeignKeyViolation:
		if pgErr.TableName == "appointment_services" {
			return fmt.Errorf("%w: %v", ErrServiceLink, err)
		}
	}
	return err
}

func decodeHours(raw []byte, dst *WeeklyHours) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("salon: decode hours: %w", err)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return TimePtr(*t)
}
