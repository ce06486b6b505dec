package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "clinic"
	subsystem = "scheduling"
)

// SchedulingMetrics exposes counters/histograms for the appointment engine.
// It satisfies appointments.Recorder.
type SchedulingMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationLatency  *prometheus.HistogramVec
	replaysTotal      *prometheus.CounterVec
	appointments      prometheus.Gauge
	eventsTotal       *prometheus.CounterVec
	snapshotsTotal    *prometheus.CounterVec
	snapshotDocuments prometheus.Gauge
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operations_total",
			Help:      "Engine operations by outcome (ok or error kind)",
		}, []string{"operation", "outcome"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operation_latency_seconds",
			Help:      "Latency of engine operations",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		replaysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "idempotent_replays_total",
			Help:      "Mutations answered from the idempotency ledger",
		}, []string{"operation"}),
		appointments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "appointments",
			Help:      "Appointments currently stored",
		}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_published_total",
			Help:      "Lifecycle events handed to the publisher",
		}, []string{"event_type", "status"}),
		snapshotsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "snapshots_total",
			Help:      "Snapshot writes by sink and status",
		}, []string{"sink", "status"}),
		snapshotDocuments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "snapshot_appointments",
			Help:      "Appointments in the last written snapshot",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.operationsTotal,
		m.operationLatency,
		m.replaysTotal,
		m.appointments,
		m.eventsTotal,
		m.snapshotsTotal,
		m.snapshotDocuments,
	)
	return m
}

func (m *SchedulingMetrics) ObserveOperation(op, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(op, outcome).Inc()
	m.operationLatency.WithLabelValues(op).Observe(seconds)
}

func (m *SchedulingMetrics) ObserveIdempotentReplay(op string) {
	if m == nil {
		return
	}
	m.replaysTotal.WithLabelValues(op).Inc()
}

func (m *SchedulingMetrics) SetAppointments(n int) {
	if m == nil {
		return
	}
	m.appointments.Set(float64(n))
}

func (m *SchedulingMetrics) ObserveEvent(eventType string, published bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !published {
		status = "error"
	}
	m.eventsTotal.WithLabelValues(eventType, status).Inc()
}

func (m *SchedulingMetrics) ObserveSnapshot(sink string, appointments int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.snapshotsTotal.WithLabelValues(sink, "error").Inc()
		return
	}
	m.snapshotsTotal.WithLabelValues(sink, "ok").Inc()
	m.snapshotDocuments.Set(float64(appointments))
}
