package snapshot

import (
	"context"
	"time"

	"github.com/wolfman30/clinic-scheduling/internal/appointments"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

type source interface {
	Snapshot(ctx context.Context) []appointments.Appointment
}

type snapshotMetrics interface {
	ObserveSnapshot(sink string, appointments int, err error)
}

const (
	defaultInterval   = 5 * time.Minute
	finalWriteTimeout = 10 * time.Second
)

// Worker copies the store into every sink on an interval and once more when
// its context ends.
type Worker struct {
	source   source
	sinks    []Sink
	interval time.Duration
	metrics  snapshotMetrics
	logger   *logging.Logger
	now      func() time.Time
}

func NewWorker(src source, sinks []Sink, logger *logging.Logger) *Worker {
	if src == nil {
		panic("snapshot: source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		source:   src,
		sinks:    sinks,
		interval: defaultInterval,
		logger:   logger.WithComponent("snapshot.worker"),
		now:      time.Now,
	}
}

func (w *Worker) WithInterval(d time.Duration) *Worker {
	if d > 0 {
		w.interval = d
	}
	return w
}

func (w *Worker) WithMetrics(m snapshotMetrics) *Worker {
	w.metrics = m
	return w
}

// Run blocks until ctx is cancelled, then performs a final write.
func (w *Worker) Run(ctx context.Context) {
	if len(w.sinks) == 0 {
		w.logger.Info("no snapshot sinks configured")
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
			w.WriteOnce(final)
			cancel()
			return
		case <-ticker.C:
			w.WriteOnce(ctx)
		}
	}
}

// WriteOnce writes the current records to every sink. It returns the number
// of sinks that failed; failures are logged and never stop the others.
func (w *Worker) WriteOnce(ctx context.Context) int {
	snap := Snapshot{
		TakenAt:      w.now().UTC(),
		Appointments: w.source.Snapshot(ctx),
	}
	failed := 0
	for _, sink := range w.sinks {
		err := sink.Write(ctx, snap)
		if w.metrics != nil {
			w.metrics.ObserveSnapshot(sink.Name(), len(snap.Appointments), err)
		}
		if err != nil {
			failed++
			w.logger.Error("snapshot write failed", "sink", sink.Name(), "error", err)
			continue
		}
		w.logger.Debug("snapshot written", "sink", sink.Name(), "appointments", len(snap.Appointments))
	}
	return failed
}
