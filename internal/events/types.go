package events

import (
	"time"

	"github.com/wolfman30/clinic-scheduling/internal/appointments"
)

// AppointmentCreatedV1 is emitted once per stored appointment. Idempotent
// replays emit nothing.
type AppointmentCreatedV1 struct {
	Appointment    appointments.Appointment `json:"appointment"`
	IdempotencyKey string                   `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
}

func (AppointmentCreatedV1) EventType() string {
	return "appointment.created.v1"
}

// AppointmentStatusChangedV1 captures a status transition.
type AppointmentStatusChangedV1 struct {
	AppointmentID  string              `json:"appointment_id"`
	PreviousStatus appointments.Status `json:"previous_status"`
	Status         appointments.Status `json:"status"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`
	ChangedAt      time.Time           `json:"changed_at"`
}

func (AppointmentStatusChangedV1) EventType() string {
	return "appointment.status_changed.v1"
}

// AppointmentDeletedV1 carries the removed record so consumers can drop it
// from their projections.
type AppointmentDeletedV1 struct {
	Appointment appointments.Appointment `json:"appointment"`
	DeletedAt   time.Time                `json:"deleted_at"`
}

func (AppointmentDeletedV1) EventType() string {
	return "appointment.deleted.v1"
}

// FromChange maps a store change to its event. Rejected creates have no
// event and return nil.
func FromChange(c appointments.Change) CanonicalEvent {
	switch c.Type {
	case appointments.ChangeCreated:
		return AppointmentCreatedV1{Appointment: c.Appointment, IdempotencyKey: c.IdempotencyKey, CreatedAt: c.OccurredAt}
	case appointments.ChangeStatusChanged:
		return AppointmentStatusChangedV1{
			AppointmentID:  c.Appointment.ID,
			PreviousStatus: c.PreviousStatus,
			Status:         c.Appointment.Status,
			IdempotencyKey: c.IdempotencyKey,
			ChangedAt:      c.OccurredAt,
		}
	case appointments.ChangeDeleted:
		return AppointmentDeletedV1{Appointment: c.Appointment, DeletedAt: c.OccurredAt}
	}
	return nil
}
