package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewOutboxStore(mock)

	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), "biz-1", TypeAppointmentBooked, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	_, err = store.Insert(context.Background(), "biz-1", TypeAppointmentBooked, map[string]string{"appointment_id": "a1"})
	require.NoError(t, err)

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "business_id", "type", "payload", "created_at"}).
		AddRow(id, "biz-1", TypeAppointmentBooked, []byte(`{"appointment_id":"a1"}`), now)
	mock.ExpectQuery("SELECT id").WithArgs(int32(10)).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.JSONEq(t, `{"appointment_id":"a1"}`, string(entries[0].Payload))

	mock.ExpectExec("UPDATE outbox").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendRejectsUnmarshalablePayload(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = Append(context.Background(), mock, "biz-1", "x", make(chan int))
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendWrapsExecError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("boom")
	mock.ExpectExec("INSERT INTO outbox").WillReturnError(boom)
	_, err = Append(context.Background(), mock, "biz-1", "x", struct{}{})
	require.ErrorIs(t, err, boom)
}

func TestMemoryOutboxTruncate(t *testing.T) {
	m := NewMemoryOutbox()
	ctx := context.Background()
	_, _ = m.Insert(ctx, "b", TypeAppointmentBooked, nil)
	_, _ = m.Insert(ctx, "b", TypeAppointmentCancelled, nil)
	m.Truncate(1)
	assert.Equal(t, []string{TypeAppointmentBooked}, m.Types())
}
