package appointments

import (
	"context"
	"sync"
)

// Operation scopes idempotency keys so a key used for a create never
// replays as a status update and vice versa.
type Operation string

const (
	OpCreate       Operation = "create"
	OpUpdateStatus Operation = "update_status"
)

// Ledger remembers the result of each keyed mutation. The Store calls it
// only while holding its write lock, so lookup, mutation and record are one
// critical section within a process.
type Ledger interface {
	Lookup(ctx context.Context, op Operation, key string) (Appointment, bool, error)
	// Record stores result under key. A key that is already bound keeps its
	// first result.
	Record(ctx context.Context, op Operation, key string, result Appointment) error
	Len(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

type ledgerKey struct {
	op  Operation
	key string
}

// MemoryLedger is a process-lifetime ledger with no expiry.
type MemoryLedger struct {
	mu      sync.RWMutex
	results map[ledgerKey]Appointment
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{results: make(map[ledgerKey]Appointment)}
}

func (l *MemoryLedger) Lookup(_ context.Context, op Operation, key string) (Appointment, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.results[ledgerKey{op: op, key: key}]
	return rec, ok, nil
}

func (l *MemoryLedger) Record(_ context.Context, op Operation, key string, result Appointment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := ledgerKey{op: op, key: key}
	if _, exists := l.results[k]; !exists {
		l.results[k] = result
	}
	return nil
}

func (l *MemoryLedger) Len(context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.results), nil
}

func (l *MemoryLedger) Reset(context.Context) error {
	l.mu.Lock()
	l.results = make(map[ledgerKey]Appointment)
	l.mu.Unlock()
	return nil
}
