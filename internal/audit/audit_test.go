package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-scheduling/internal/appointments"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

func TestService_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewService(db, logging.Discard())
	at := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO appointment_audit_log").
		WithArgs(
			"entry-1", ActionStatusChanged, "apt_1", "Dr. X", "2024-02-01",
			"Scheduled", "Confirmed", nil, pq.Array([]string{}), nil, at,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = service.Record(context.Background(), Entry{
		ID:             "entry-1",
		Action:         ActionStatusChanged,
		AppointmentID:  "apt_1",
		DoctorName:     "Dr. X",
		Date:           "2024-02-01",
		PreviousStatus: "Scheduled",
		Status:         "Confirmed",
		CreatedAt:      at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_RecordWrapsErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO appointment_audit_log").WillReturnError(errors.New("connection refused"))

	err = NewService(db, logging.Discard()).Record(context.Background(), Entry{Action: ActionDeleted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit: failed to record entry")
}

func TestService_Query(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "action", "appointment_id", "doctor_name", "appointment_date",
		"previous_status", "status", "idempotency_key", "conflict_ids", "details", "created_at",
	}).AddRow("e2", "appointment.conflict_rejected", nil, "Dr. X", "2024-02-01", nil, nil, "k1", "{apt_1,apt_2}", []byte(`{"time":"09:15"}`), at)

	mock.ExpectQuery("FROM appointment_audit_log WHERE 1 = 1 AND action = \\$1 ORDER BY created_at DESC LIMIT 5").
		WithArgs(ActionConflictRejected).
		WillReturnRows(rows)

	entries, err := NewService(db, logging.Discard()).Query(context.Background(), Filter{Action: ActionConflictRejected, Limit: 5})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionConflictRejected, entries[0].Action)
	assert.Empty(t, entries[0].AppointmentID)
	assert.Equal(t, "k1", entries[0].IdempotencyKey)
	assert.Equal(t, []string{"apt_1", "apt_2"}, entries[0].ConflictIDs)
	assert.JSONEq(t, `{"time":"09:15"}`, string(entries[0].Details))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntryFromChange(t *testing.T) {
	rec := appointments.Appointment{ID: "apt_9", PatientName: "A", Date: "2024-02-01", Time: "09:15", Duration: 30, DoctorName: "Dr. X", Status: appointments.StatusScheduled}

	entry, ok := EntryFromChange(appointments.Change{Type: appointments.ChangeCreated, Appointment: rec, IdempotencyKey: "k"})
	require.True(t, ok)
	assert.Equal(t, ActionCreated, entry.Action)
	assert.Equal(t, "apt_9", entry.AppointmentID)
	assert.Equal(t, "k", entry.IdempotencyKey)

	entry, ok = EntryFromChange(appointments.Change{
		Type:        appointments.ChangeConflictRejected,
		Appointment: rec,
		Conflicts:   []appointments.ConflictRef{{ID: "apt_1", Time: "09:00"}},
	})
	require.True(t, ok)
	assert.Equal(t, ActionConflictRejected, entry.Action)
	assert.Empty(t, entry.AppointmentID)
	assert.Equal(t, []string{"apt_1"}, entry.ConflictIDs)
	assert.JSONEq(t, `{"patient_name":"A","time":"09:15","duration":30}`, string(entry.Details))

	_, ok = EntryFromChange(appointments.Change{Type: "unknown"})
	assert.False(t, ok)
}

func TestServiceObservesStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO appointment_audit_log").
		WithArgs(sqlmock.AnyArg(), ActionCreated, sqlmock.AnyArg(), "Dr. X", "2024-02-01",
			nil, "Scheduled", "key-1", sqlmock.AnyArg(), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO appointment_audit_log").
		WithArgs(sqlmock.AnyArg(), ActionConflictRejected, nil, "Dr. X", "2024-02-01",
			nil, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := appointments.NewStore(
		appointments.WithLogger(logging.Discard()),
		appointments.WithObservers(NewService(db, logging.Discard())),
	)
	p := appointments.Payload{
		"patientName": "A",
		"date":        "2024-02-01",
		"time":        "09:00",
		"duration":    30,
		"doctorName":  "Dr. X",
		"mode":        "in-person",
	}
	_, err = store.Create(context.Background(), p, "key-1")
	require.NoError(t, err)
	_, err = store.Create(context.Background(), p, "key-1")
	require.NoError(t, err, "replay writes no audit row")
	_, err = store.Create(context.Background(), p, "")
	require.ErrorIs(t, err, appointments.ErrConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}
