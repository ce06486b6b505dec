package snapshot

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/wolfman30/clinic-scheduling/internal/appointments"
)

type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSink mirrors the record set into appointment_snapshots. Each write
// replaces the table contents inside a single transaction.
type PostgresSink struct {
	db db
}

func NewPostgresSink(db db) *PostgresSink {
	if db == nil {
		panic("snapshot: pgx pool required")
	}
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Write(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := make([]string, 0, len(snap.Appointments))
	for _, a := range snap.Appointments {
		ids = append(ids, a.ID)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM appointment_snapshots WHERE NOT (id = ANY($1))`, ids); err != nil {
		return fmt.Errorf("snapshot: prune rows: %w", err)
	}

	const upsert = `
		INSERT INTO appointment_snapshots (
			id, position, patient_name, appointment_date, appointment_time,
			duration_minutes, doctor_name, status, mode, snapshot_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			position = EXCLUDED.position,
			patient_name = EXCLUDED.patient_name,
			appointment_date = EXCLUDED.appointment_date,
			appointment_time = EXCLUDED.appointment_time,
			duration_minutes = EXCLUDED.duration_minutes,
			doctor_name = EXCLUDED.doctor_name,
			status = EXCLUDED.status,
			mode = EXCLUDED.mode,
			snapshot_at = EXCLUDED.snapshot_at
	`
	for i, a := range snap.Appointments {
		if _, err := tx.Exec(ctx, upsert,
			a.ID, i, a.PatientName, a.Date, a.Time,
			a.Duration, a.DoctorName, string(a.Status), string(a.Mode), snap.TakenAt,
		); err != nil {
			return fmt.Errorf("snapshot: upsert %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("snapshot: commit: %w", err)
	}
	return nil
}

// Load returns the stored records in their original order.
func (s *PostgresSink) Load(ctx context.Context) ([]appointments.Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, patient_name, appointment_date, appointment_time,
			duration_minutes, doctor_name, status, mode
		FROM appointment_snapshots
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: query: %w", err)
	}
	defer rows.Close()

	out := []appointments.Appointment{}
	for rows.Next() {
		var a appointments.Appointment
		var status, mode string
		if err := rows.Scan(&a.ID, &a.PatientName, &a.Date, &a.Time, &a.Duration, &a.DoctorName, &status, &mode); err != nil {
			return nil, fmt.Errorf("snapshot: scan: %w", err)
		}
		a.Status = appointments.Status(status)
		a.Mode = appointments.Mode(mode)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: rows: %w", err)
	}
	return out, nil
}
