// Package snapshot persists point-in-time copies of the appointment set so a
// restarted process can recover its records.
package snapshot

import (
	"context"
	"time"

	"github.com/wolfman30/clinic-scheduling/internal/appointments"
)

// Snapshot is the full record set at TakenAt, in store order.
type Snapshot struct {
	TakenAt      time.Time                  `json:"taken_at"`
	Appointments []appointments.Appointment `json:"appointments"`
}

// Sink stores snapshots somewhere durable.
type Sink interface {
	Name() string
	Write(ctx context.Context, snap Snapshot) error
}

// Loader reads back the most recent snapshot.
type Loader interface {
	Load(ctx context.Context) ([]appointments.Appointment, error)
}
