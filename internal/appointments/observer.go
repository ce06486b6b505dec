package appointments

import (
	"context"
	"time"
)

// ChangeType names a committed (or rejected) mutation.
type ChangeType string

const (
	ChangeCreated          ChangeType = "created"
	ChangeStatusChanged    ChangeType = "status_changed"
	ChangeDeleted          ChangeType = "deleted"
	ChangeConflictRejected ChangeType = "conflict_rejected"
)

// Change describes one mutation. Idempotent replays produce no Change.
type Change struct {
	Type           ChangeType
	Appointment    Appointment
	PreviousStatus Status
	IdempotencyKey string
	Conflicts      []ConflictRef
	OccurredAt     time.Time
}

// Observer is notified after the store lock is released. Errors are logged
// and never alter the result returned to the caller.
type Observer interface {
	Observe(ctx context.Context, change Change) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, change Change) error

func (f ObserverFunc) Observe(ctx context.Context, change Change) error {
	return f(ctx, change)
}
