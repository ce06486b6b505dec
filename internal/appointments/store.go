package appointments

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/clinic-scheduling/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Recorder receives engine measurements.
type Recorder interface {
	ObserveOperation(op, outcome string, seconds float64)
	ObserveIdempotentReplay(op string)
	SetAppointments(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string, float64) {}
func (nopRecorder) ObserveIdempotentReplay(string)           {}
func (nopRecorder) SetAppointments(int)                      {}

// StoreOption customizes a Store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	ledger      Ledger
	logger      *logging.Logger
	recorder    Recorder
	observers   []Observer
	newID       IDGenerator
	idAttempts  int
	clusterMode ClusterMode
	maxPerSlot  int
	now         func() time.Time
}

// WithLedger replaces the default in-memory idempotency ledger.
func WithLedger(l Ledger) StoreOption {
	return func(cfg *storeConfig) {
		if l != nil {
			cfg.ledger = l
		}
	}
}

func WithLogger(logger *logging.Logger) StoreOption {
	return func(cfg *storeConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithRecorder wires Prometheus (or any other) measurements.
func WithRecorder(r Recorder) StoreOption {
	return func(cfg *storeConfig) {
		if r != nil {
			cfg.recorder = r
		}
	}
}

// WithObservers registers observers notified after each committed mutation.
func WithObservers(observers ...Observer) StoreOption {
	return func(cfg *storeConfig) {
		for _, o := range observers {
			if o != nil {
				cfg.observers = append(cfg.observers, o)
			}
		}
	}
}

// WithIDGenerator overrides RandomID. Used by tests to force collisions.
func WithIDGenerator(gen IDGenerator) StoreOption {
	return func(cfg *storeConfig) {
		if gen != nil {
			cfg.newID = gen
		}
	}
}

func WithIDAttempts(n int) StoreOption {
	return func(cfg *storeConfig) {
		if n > 0 {
			cfg.idAttempts = n
		}
	}
}

func WithClusterMode(mode ClusterMode) StoreOption {
	return func(cfg *storeConfig) {
		cfg.clusterMode = ParseClusterMode(string(mode))
	}
}

// WithMaxPerSlot sets the occupancy threshold used by ConflictSummary.
func WithMaxPerSlot(n int) StoreOption {
	return func(cfg *storeConfig) {
		if n > 0 {
			cfg.maxPerSlot = n
		}
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(cfg *storeConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// Store owns the appointment set and its idempotency ledger. Every mutation
// runs ledger lookup, validation, conflict detection, the write and the
// ledger record under one write lock.
type Store struct {
	mu      sync.RWMutex
	records []Appointment
	// issued holds every id ever assigned so ids stay unique after deletes.
	issued map[string]struct{}

	ledger      Ledger
	logger      *logging.Logger
	recorder    Recorder
	observers   []Observer
	newID       IDGenerator
	idAttempts  int
	clusterMode ClusterMode
	maxPerSlot  int
	now         func() time.Time
	tracer      trace.Tracer
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	cfg := storeConfig{
		idAttempts:  DefaultIDAttempts,
		clusterMode: ClusterPairwise,
		maxPerSlot:  DefaultMaxPerSlot,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ledger == nil {
		cfg.ledger = NewMemoryLedger()
	}
	if cfg.logger == nil {
		cfg.logger = logging.Default()
	}
	if cfg.recorder == nil {
		cfg.recorder = nopRecorder{}
	}
	if cfg.newID == nil {
		cfg.newID = RandomID
	}

	return &Store{
		records:     []Appointment{},
		issued:      make(map[string]struct{}),
		ledger:      cfg.ledger,
		logger:      cfg.logger.WithComponent("appointments.store"),
		recorder:    cfg.recorder,
		observers:   cfg.observers,
		newID:       cfg.newID,
		idAttempts:  cfg.idAttempts,
		clusterMode: cfg.clusterMode,
		maxPerSlot:  cfg.maxPerSlot,
		now:         cfg.now,
		tracer:      otel.Tracer("clinic.internal.appointments"),
	}
}

// List returns copies of the records matching every non-empty filter, in
// insertion order.
func (s *Store) List(ctx context.Context, filters Filters) (out []Appointment, err error) {
	_, span := s.tracer.Start(ctx, "appointments.list")
	defer span.End()
	defer s.finish(span, "list", s.now(), &err)

	if err := checkFilters(filters, FilterDate, FilterStatus, FilterDoctorName); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterRecords(s.records, filters), nil
}

// Get returns a copy of the record with id.
func (s *Store) Get(ctx context.Context, id string) (rec Appointment, err error) {
	_, span := s.tracer.Start(ctx, "appointments.get")
	defer span.End()
	defer s.finish(span, "get", s.now(), &err)

	id = strings.TrimSpace(id)
	if id == "" {
		return Appointment{}, invalidArgument("Appointment ID is required")
	}
	span.SetAttributes(attribute.String("clinic.appointment_id", id))

	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return Appointment{}, notFound(id)
	}
	return s.records[idx], nil
}

// Create validates p, rejects it if it overlaps an existing appointment of
// the same doctor on the same date, and stores it with status Scheduled.
// A non-empty key that was already used for a create replays the first
// result without touching the store, whatever p holds this time.
func (s *Store) Create(ctx context.Context, p Payload, key string) (rec Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.create")
	defer span.End()
	defer s.finish(span, "create", s.now(), &err)

	rec, change, err := s.create(ctx, p, key)
	if change != nil {
		s.notify(ctx, *change)
	}
	if err == nil {
		span.SetAttributes(attribute.String("clinic.appointment_id", rec.ID))
	}
	return rec, err
}

func (s *Store) create(ctx context.Context, p Payload, key string) (Appointment, *Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok, err := s.replay(ctx, OpCreate, key); err != nil || ok {
		return prev, nil, err
	}

	if ok, errs := Validate(p); !ok {
		return Appointment{}, nil, validationFailed(errs)
	}

	candidate := fromPayload(p)
	id, err := nextID(s.newID, s.idAttempts, s.taken)
	if err != nil {
		s.logger.Error("appointment id space exhausted", "attempts", s.idAttempts)
		return Appointment{}, nil, err
	}
	candidate.ID = id
	candidate.Status = StatusScheduled

	if conflicts := FindConflicts(candidate, s.records); len(conflicts) > 0 {
		cerr := conflictWith(conflicts)
		return Appointment{}, &Change{
			Type:           ChangeConflictRejected,
			Appointment:    candidate,
			IdempotencyKey: key,
			Conflicts:      cerr.Conflicts,
			OccurredAt:     s.now().UTC(),
		}, cerr
	}

	s.records = append(s.records, candidate)
	s.issued[id] = struct{}{}

	if err := s.remember(ctx, OpCreate, key, candidate); err != nil {
		s.records = s.records[:len(s.records)-1]
		delete(s.issued, id)
		return Appointment{}, nil, err
	}
	s.recorder.SetAppointments(len(s.records))

	s.logger.Info("appointment created",
		"id", candidate.ID,
		"doctor", candidate.DoctorName,
		"date", candidate.Date,
		"time", candidate.Time,
	)
	return candidate, &Change{
		Type:           ChangeCreated,
		Appointment:    candidate,
		IdempotencyKey: key,
		OccurredAt:     s.now().UTC(),
	}, nil
}

// UpdateStatus sets the status of an existing appointment. Time fields never
// change here, so conflicts are not re-checked. An unknown id is reported as
// not found before the status value is checked.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status, key string) (rec Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.update_status")
	defer span.End()
	defer s.finish(span, "update_status", s.now(), &err)
	span.SetAttributes(
		attribute.String("clinic.appointment_id", id),
		attribute.String("clinic.appointment_status", string(status)),
	)

	rec, change, err := s.updateStatus(ctx, id, status, key)
	if change != nil {
		s.notify(ctx, *change)
	}
	return rec, err
}

func (s *Store) updateStatus(ctx context.Context, id string, status Status, key string) (Appointment, *Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok, err := s.replay(ctx, OpUpdateStatus, key); err != nil || ok {
		return prev, nil, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return Appointment{}, nil, invalidArgument("Appointment ID is required")
	}
	idx := s.indexOf(id)
	if idx < 0 {
		return Appointment{}, nil, notFound(id)
	}
	if !status.IsValid() {
		return Appointment{}, nil, invalidArgument("Invalid status: %s. Must be one of: %s", status, statusList())
	}

	previous := s.records[idx].Status
	s.records[idx].Status = status
	updated := s.records[idx]

	if err := s.remember(ctx, OpUpdateStatus, key, updated); err != nil {
		s.records[idx].Status = previous
		return Appointment{}, nil, err
	}

	s.logger.Info("appointment status updated", "id", id, "from", previous, "to", status)
	return updated, &Change{
		Type:           ChangeStatusChanged,
		Appointment:    updated,
		PreviousStatus: previous,
		IdempotencyKey: key,
		OccurredAt:     s.now().UTC(),
	}, nil
}

// Delete removes the record with id. It reports false, not an error, when
// no such record exists.
func (s *Store) Delete(ctx context.Context, id string) (removed bool, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.delete")
	defer span.End()
	defer s.finish(span, "delete", s.now(), &err)

	id = strings.TrimSpace(id)
	if id == "" {
		return false, invalidArgument("Appointment ID is required")
	}
	span.SetAttributes(attribute.String("clinic.appointment_id", id))

	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return false, nil
	}
	rec := s.records[idx]
	s.records = append(s.records[:idx], s.records[idx+1:]...)
	s.recorder.SetAppointments(len(s.records))
	s.mu.Unlock()

	s.logger.Info("appointment deleted", "id", id)
	s.notify(ctx, Change{Type: ChangeDeleted, Appointment: rec, OccurredAt: s.now().UTC()})
	return true, nil
}

// Dashboard aggregates statistics over a consistent copy of the record set.
func (s *Store) Dashboard(ctx context.Context) (d Dashboard, err error) {
	_, span := s.tracer.Start(ctx, "appointments.dashboard")
	defer span.End()
	defer s.finish(span, "dashboard", s.now(), &err)

	return ComputeDashboard(s.Snapshot(ctx)), nil
}

// Snapshot returns a copy of every stored record in insertion order.
func (s *Store) Snapshot(context.Context) []Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.records)
}

// Seed appends records as they are, skipping validation and conflict
// detection. Ids must be non-empty and unused.
func (s *Store) Seed(_ context.Context, records []Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkImported(records, s.taken); err != nil {
		return err
	}
	for _, r := range records {
		s.records = append(s.records, r)
		s.issued[r.ID] = struct{}{}
	}
	s.recorder.SetAppointments(len(s.records))
	return nil
}

// Restore replaces the record set, typically with a persisted snapshot.
// The idempotency ledger is left untouched.
func (s *Store) Restore(_ context.Context, records []Appointment) error {
	if err := checkImported(records, func(string) bool { return false }); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = cloneAll(records)
	for _, r := range records {
		s.issued[r.ID] = struct{}{}
	}
	s.recorder.SetAppointments(len(s.records))
	s.logger.Info("appointments restored", "count", len(records))
	return nil
}

// Reset clears every record, every issued id and the idempotency ledger.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.Reset(ctx); err != nil {
		return fmt.Errorf("appointments: reset ledger: %w", err)
	}
	s.records = []Appointment{}
	s.issued = make(map[string]struct{})
	s.recorder.SetAppointments(0)
	return nil
}

// IdempotencyKeyCount reports how many keys the ledger holds.
func (s *Store) IdempotencyKeyCount(ctx context.Context) (int, error) {
	n, err := s.ledger.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("appointments: count idempotency keys: %w", err)
	}
	return n, nil
}

// replay looks key up for op. Ledger outages are transient so a retrying
// caller can try again once the backend is back.
func (s *Store) replay(ctx context.Context, op Operation, key string) (Appointment, bool, error) {
	if key == "" {
		return Appointment{}, false, nil
	}
	prev, ok, err := s.ledger.Lookup(ctx, op, key)
	if err != nil {
		s.logger.Error("idempotency lookup failed", "op", op, "error", err)
		return Appointment{}, false, Transient(err)
	}
	if ok {
		s.recorder.ObserveIdempotentReplay(string(op))
		s.logger.Debug("idempotent replay", "op", op, "id", prev.ID)
	}
	return prev, ok, nil
}

// remember binds key to result. The caller undoes its mutation when this
// fails, so a keyed call never takes effect without its ledger entry.
func (s *Store) remember(ctx context.Context, op Operation, key string, result Appointment) error {
	if key == "" {
		return nil
	}
	if err := s.ledger.Record(ctx, op, key, result); err != nil {
		s.logger.Error("idempotency record failed", "op", op, "id", result.ID, "error", err)
		return Transient(err)
	}
	return nil
}

func (s *Store) notify(ctx context.Context, change Change) {
	for _, o := range s.observers {
		if err := o.Observe(ctx, change); err != nil {
			s.logger.Warn("appointment observer failed",
				"change", change.Type,
				"id", change.Appointment.ID,
				"error", err,
			)
		}
	}
}

func (s *Store) finish(span trace.Span, op string, started time.Time, errp *error) {
	outcome := "ok"
	if err := *errp; err != nil {
		outcome = string(KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	s.recorder.ObserveOperation(op, outcome, s.now().Sub(started).Seconds())
}

func (s *Store) indexOf(id string) int {
	for i := range s.records {
		if s.records[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) taken(id string) bool {
	_, ok := s.issued[id]
	return ok
}

// checkFilters rejects unknown keys and malformed date or status values.
// Keys are checked in sorted order so the reported error is deterministic.
func checkFilters(filters Filters, allowed ...string) error {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		known := false
		for _, a := range allowed {
			if k == a {
				known = true
				break
			}
		}
		if !known {
			return invalidArgument("Unsupported filter: %s. Allowed filters: %s", k, strings.Join(allowed, ", "))
		}
		v := filters.get(k)
		if v == "" {
			continue
		}
		switch k {
		case FilterDate, FilterStartDate, FilterEndDate:
			if _, err := parseDate(v); err != nil {
				return invalidArgument("Invalid date format: %s. Expected YYYY-MM-DD", v)
			}
		case FilterStatus:
			if !Status(v).IsValid() {
				return invalidArgument("Invalid status: %s. Must be one of: %s", v, statusList())
			}
		}
	}
	return nil
}

// filterRecords applies the equality filters and the optional inclusive
// start_date/end_date bounds. ISO dates compare correctly as strings.
func filterRecords(records []Appointment, filters Filters) []Appointment {
	date := filters.get(FilterDate)
	status := filters.get(FilterStatus)
	doctor := filters.get(FilterDoctorName)
	from := filters.get(FilterStartDate)
	to := filters.get(FilterEndDate)

	out := []Appointment{}
	for _, r := range records {
		if date != "" && r.Date != date {
			continue
		}
		if status != "" && string(r.Status) != status {
			continue
		}
		if doctor != "" && r.DoctorName != doctor {
			continue
		}
		if from != "" && r.Date < from {
			continue
		}
		if to != "" && r.Date > to {
			continue
		}
		out = append(out, r)
	}
	return out
}

func checkImported(records []Appointment, taken func(string) bool) error {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			return invalidArgument("Imported appointment is missing an ID")
		}
		if _, dup := seen[r.ID]; dup || taken(r.ID) {
			return invalidArgument("Duplicate appointment ID: %s", r.ID)
		}
		seen[r.ID] = struct{}{}
		if _, err := r.Slot(); err != nil {
			return invalidArgument("Appointment %s has an invalid time slot: %v", r.ID, err)
		}
		if _, err := parseDate(r.Date); err != nil {
			return invalidArgument("Appointment %s has an invalid date: %s", r.ID, r.Date)
		}
		if r.Duration <= 0 || r.Duration > MaxDurationMinutes {
			return invalidArgument("Appointment %s has an invalid duration: %d", r.ID, r.Duration)
		}
		if !r.Status.IsValid() {
			return invalidArgument("Appointment %s has an invalid status: %s", r.ID, r.Status)
		}
		if !r.Mode.IsValid() {
			return invalidArgument("Appointment %s has an invalid mode: %s", r.ID, r.Mode)
		}
	}
	return nil
}

func statusList() string {
	names := make([]string, len(Statuses))
	for i, st := range Statuses {
		names[i] = string(st)
	}
	return strings.Join(names, ", ")
}
