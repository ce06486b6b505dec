// Package audit keeps an append-only trail of appointment mutations.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/wolfman30/clinic-scheduling/internal/appointments"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

// Action identifies what happened to an appointment.
type Action string

const (
	ActionCreated          Action = "appointment.created"
	ActionStatusChanged    Action = "appointment.status_changed"
	ActionDeleted          Action = "appointment.deleted"
	ActionConflictRejected Action = "appointment.conflict_rejected"
)

// Entry is one immutable audit row.
type Entry struct {
	ID             string          `json:"id"`
	Action         Action          `json:"action"`
	AppointmentID  string          `json:"appointment_id,omitempty"`
	DoctorName     string          `json:"doctor_name,omitempty"`
	Date           string          `json:"date,omitempty"`
	PreviousStatus string          `json:"previous_status,omitempty"`
	Status         string          `json:"status,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	ConflictIDs    []string        `json:"conflict_ids,omitempty"`
	Details        json.RawMessage `json:"details,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Service writes and queries the audit trail.
type Service struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewService creates a new audit service.
func NewService(db *sql.DB, logger *logging.Logger) *Service {
	if db == nil {
		panic("audit: sql db required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{db: db, logger: logger.WithComponent("audit")}
}

// Record inserts entry, filling in the id and timestamp when missing.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.ConflictIDs == nil {
		entry.ConflictIDs = []string{}
	}

	query := `
		INSERT INTO appointment_audit_log (
			id, action, appointment_id, doctor_name, appointment_date,
			previous_status, status, idempotency_key, conflict_ids, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Action,
		nullString(entry.AppointmentID),
		nullString(entry.DoctorName),
		nullString(entry.Date),
		nullString(entry.PreviousStatus),
		nullString(entry.Status),
		nullString(entry.IdempotencyKey),
		pq.Array(entry.ConflictIDs),
		nullJSON(entry.Details),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to record entry: %w", err)
	}
	return nil
}

// Filter narrows Query results. Zero values are ignored.
type Filter struct {
	AppointmentID string
	Action        Action
	Since         time.Time
	Limit         int
}

// Query returns entries newest first.
func (s *Service) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `
		SELECT id, action, appointment_id, doctor_name, appointment_date,
			   previous_status, status, idempotency_key, conflict_ids, details, created_at
		FROM appointment_audit_log
		WHERE 1 = 1
	`
	var args []any
	argIdx := 1
	if filter.AppointmentID != "" {
		query += fmt.Sprintf(" AND appointment_id = $%d", argIdx)
		args = append(args, filter.AppointmentID)
		argIdx++
	}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, filter.Action)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.Since)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var apptID, doctor, date, prev, status, key sql.NullString
		var details []byte
		if err := rows.Scan(
			&e.ID, &e.Action, &apptID, &doctor, &date,
			&prev, &status, &key, pq.Array(&e.ConflictIDs), &details, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("audit: failed to scan entry: %w", err)
		}
		e.AppointmentID = apptID.String
		e.DoctorName = doctor.String
		e.Date = date.String
		e.PreviousStatus = prev.String
		e.Status = status.String
		e.IdempotencyKey = key.String
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read entries: %w", err)
	}
	return entries, nil
}

// Observe implements appointments.Observer.
func (s *Service) Observe(ctx context.Context, change appointments.Change) error {
	entry, ok := EntryFromChange(change)
	if !ok {
		return nil
	}
	if err := s.Record(ctx, entry); err != nil {
		return err
	}
	s.logger.Debug("audit entry recorded", "action", entry.Action, "appointment_id", entry.AppointmentID)
	return nil
}

// EntryFromChange maps a store change onto an audit entry.
func EntryFromChange(change appointments.Change) (Entry, bool) {
	rec := change.Appointment
	entry := Entry{
		AppointmentID:  rec.ID,
		DoctorName:     rec.DoctorName,
		Date:           rec.Date,
		Status:         string(rec.Status),
		IdempotencyKey: change.IdempotencyKey,
		CreatedAt:      change.OccurredAt,
	}
	switch change.Type {
	case appointments.ChangeCreated:
		entry.Action = ActionCreated
	case appointments.ChangeStatusChanged:
		entry.Action = ActionStatusChanged
		entry.PreviousStatus = string(change.PreviousStatus)
	case appointments.ChangeDeleted:
		entry.Action = ActionDeleted
	case appointments.ChangeConflictRejected:
		// The candidate id was never committed.
		entry.Action = ActionConflictRejected
		entry.AppointmentID = ""
		entry.Status = ""
		for _, c := range change.Conflicts {
			entry.ConflictIDs = append(entry.ConflictIDs, c.ID)
		}
		details, _ := json.Marshal(map[string]any{
			"patient_name": rec.PatientName,
			"time":         rec.Time,
			"duration":     rec.Duration,
		})
		entry.Details = details
	default:
		return Entry{}, false
	}
	return entry, true
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
