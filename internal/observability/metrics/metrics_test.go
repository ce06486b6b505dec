package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

func TestSchedulingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)

	m.ObserveOperation("create", "ok", 0.002)
	m.ObserveOperation("create", "conflict", 0.001)
	m.ObserveOperation("create", "ok", 0.003)
	m.ObserveIdempotentReplay("create")
	m.SetAppointments(7)
	m.ObserveEvent("appointment.created.v1", true)
	m.ObserveEvent("appointment.created.v1", false)
	m.ObserveSnapshot("s3", 7, nil)
	m.ObserveSnapshot("postgres", 0, errors.New("down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("create", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.replaysTotal.WithLabelValues("create")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.appointments))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("appointment.created.v1", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.snapshotsTotal.WithLabelValues("postgres", "error")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.snapshotDocuments))
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveOperation("get", "ok", 0.1)
	m.ObserveIdempotentReplay("create")
	m.SetAppointments(1)
	m.ObserveEvent("appointment.deleted.v1", true)
	m.ObserveSnapshot("s3", 1, nil)
}

func TestSummarize(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)
	for i := 0; i < 10; i++ {
		m.ObserveOperation("list", "ok", 0.002)
	}
	m.ObserveOperation("get", "not_found", 0.0001)
	m.ObserveIdempotentReplay("create")
	m.ObserveIdempotentReplay("update_status")

	summary, err := Summarize(reg)
	require.NoError(t, err)

	list := summary.Operations["list"]
	assert.Equal(t, int64(10), list.Total)
	assert.Equal(t, map[string]int64{"ok": 10}, list.Outcomes)
	assert.Greater(t, list.P95Ms, 1.0)
	assert.LessOrEqual(t, list.P95Ms, 2.5)

	assert.Equal(t, int64(1), summary.Operations["get"].Outcomes["not_found"])
	assert.Equal(t, int64(2), summary.Replays)
}

func TestHistogramQuantile(t *testing.T) {
	upper := func(v float64) *float64 { return &v }
	count := func(v uint64) *uint64 { return &v }

	h := &dto.Histogram{
		SampleCount: count(100),
		Bucket: []*dto.Bucket{
			{UpperBound: upper(0.2), CumulativeCount: count(100)},
			{UpperBound: upper(0.1), CumulativeCount: count(50)},
		},
	}
	// 95th observation sits 90% of the way through the (0.1, 0.2] bucket.
	assert.InDelta(t, 0.19, histogramQuantile(0.95, h), 1e-9)
	assert.Equal(t, 0.0, histogramQuantile(0.95, &dto.Histogram{}))
}

type failingGatherer struct{}

func (failingGatherer) Gather() ([]*dto.MetricFamily, error) {
	return nil, errors.New("boom")
}

func TestSummaryHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)
	m.ObserveOperation("dashboard", "ok", 0.001)

	rr := httptest.NewRecorder()
	SummaryHandler(reg, logging.Discard())(rr, httptest.NewRequest(http.MethodGet, "/api/ops/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `"dashboard"`))

	rr = httptest.NewRecorder()
	SummaryHandler(failingGatherer{}, logging.Discard())(rr, httptest.NewRequest(http.MethodGet, "/api/ops/metrics", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
